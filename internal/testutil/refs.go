package testutil

import (
	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/event"
)

// RefList builds the stored refs list for a patch.
func RefList(refs ...event.Ref) doc.List {
	out := make(doc.List, len(refs))
	for i, r := range refs {
		out[i] = r.Value()
	}
	return out
}
