// Package journal records every persisted event change in an append-only
// SQLite log.
//
// The event collection file only holds the latest state of each event. The
// journal keeps the sequence of creates, updates and finalizes that led
// there, for audit and downstream reports. A *Journal is a
// store.ChangeSink.
//
// Ordering: History and Recent order by the journal's own seq, which is
// assigned at insert and strictly increasing.
package journal
