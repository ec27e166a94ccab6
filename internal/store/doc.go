// Package store provides the file-backed event collection.
//
// One collection lives in one JSON file. A sibling ".lock" file carries the
// OS advisory lock that serializes access across processes:
//   - writers (Upsert) hold an exclusive lock across load, merge and persist
//   - readers (ReadAll and friends) hold a shared lock while parsing
//
// # Write path
//
// Upsert checks source and type against the configured allow-lists, picks
// its target with event.Correlate (explicit id, then refs, most recently
// updated wins), deep-merges the patch, enforces the retention cap by
// position and writes the whole collection atomically (temp file + rename,
// copy fallback). A failed write is reported as CodeWriteFailed; it is
// never reported as success.
//
// # File format
//
// The writer always produces a bare JSON list of event objects in canonical
// form. The reader also accepts a legacy wrapper object {"events": [...]}.
// Anything else (unparseable bytes, a scalar, an object without an events
// list) is treated as an empty collection and logged; on the write path the
// unreadable file is first copied aside as "<path>.corrupt-<unix>" so the
// reset never destroys the only copy.
package store
