// Package doc provides the tagged-variant document model events are stored in.
//
// Every event, patch and nested field is a Value: Null, String, Int, Float,
// Bool, List or Object. The split between List and Object is what the
// merge rule keys on:
//   - List values replace wholesale (refs, tags, items are always supplied complete)
//   - Object values merge recursively, patch wins on conflict
//
// doc imports nothing internal.
package doc
