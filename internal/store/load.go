package store

import (
	"bytes"
	"errors"
	"fmt"
	"os"

	"github.com/roach88/ledger/internal/doc"
	"github.com/roach88/ledger/internal/fsutil"
)

// collection is a decoded collection file.
type collection struct {
	events []doc.Object

	// corrupt is set when the file had content that could not be used as a
	// collection; events is then empty.
	corrupt string

	// dropped counts list entries that were not objects.
	dropped int

	// wrapped is set when the file used the legacy {"events": [...]} form.
	wrapped bool
}

// readCollectionFile returns the raw file content, or nil if the file does
// not exist.
func readCollectionFile(path string) ([]byte, error) {
	data, err := os.ReadFile(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return data, nil
}

// decodeCollection parses collection bytes. It never fails: unusable input
// yields an empty collection with corrupt set.
func decodeCollection(data []byte) collection {
	if len(bytes.TrimSpace(data)) == 0 {
		return collection{}
	}
	v, err := doc.Decode(data)
	if err != nil {
		return collection{corrupt: fmt.Sprintf("unparseable: %v", err)}
	}

	var c collection
	var list doc.List
	switch val := v.(type) {
	case doc.List:
		list = val
	case doc.Object:
		events, ok := val["events"].(doc.List)
		if !ok {
			return collection{corrupt: "object without events list"}
		}
		list = events
		c.wrapped = true
	default:
		return collection{corrupt: "wrong shape: " + doc.KindOf(v)}
	}

	c.events = make([]doc.Object, 0, len(list))
	for _, item := range list {
		obj, ok := item.(doc.Object)
		if !ok {
			c.dropped++
			continue
		}
		c.events = append(c.events, obj)
	}
	return c
}

// encodeCollection renders events as the canonical bare list written to disk.
func encodeCollection(events []doc.Object) ([]byte, error) {
	list := make(doc.List, len(events))
	for i, ev := range events {
		list[i] = ev
	}
	data, err := doc.MarshalCanonical(list)
	if err != nil {
		return nil, err
	}
	return append(data, '\n'), nil
}

// loadForRead reads the collection for the read path. Corruption is
// logged and yields an empty collection.
func (s *Store) loadForRead() ([]doc.Object, error) {
	data, err := readCollectionFile(s.cfg.Path)
	if err != nil {
		return nil, newError(CodeReadFailed, "read collection", err)
	}
	c := decodeCollection(data)
	s.logDecode(c)
	return c.events, nil
}

// loadForWrite reads the collection for the write path. A corrupt file is
// copied aside before the caller overwrites it.
func (s *Store) loadForWrite(now int64) ([]doc.Object, error) {
	data, err := readCollectionFile(s.cfg.Path)
	if err != nil {
		return nil, newError(CodeReadFailed, "read collection", err)
	}
	c := decodeCollection(data)
	s.logDecode(c)
	if c.corrupt != "" {
		s.metrics.CorruptReset()
		backup := fmt.Sprintf("%s.corrupt-%d", s.cfg.Path, now)
		if err := fsutil.CopyFile(s.cfg.Path, backup); err != nil {
			s.logger.Error("failed to preserve corrupt collection", "backup", backup, "error", err)
		} else {
			s.logger.Warn("corrupt collection preserved before reset", "backup", backup)
		}
	}
	return c.events, nil
}

func (s *Store) logDecode(c collection) {
	if c.corrupt != "" {
		s.logger.Warn("collection unusable, treating as empty", "reason", c.corrupt)
	}
	if c.dropped > 0 {
		s.logger.Warn("collection contained non-object entries", "dropped", c.dropped)
	}
	if c.wrapped {
		s.logger.Debug("collection uses legacy events wrapper")
	}
}
