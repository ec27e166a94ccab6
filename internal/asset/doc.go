// Package asset moves camera captures from a per-session temporary
// directory into permanent per-customer storage.
//
// Filesystem contract:
//
//	temp:      <TmpRoot>[/<ModuleSubdir>]/<session>/{<file>, thumb/<file>}
//	permanent: <DataRoot>/<kn>/{<file>, thumb/<file>}
//
// A Finalize call is all-or-nothing. Every item and source file is
// validated before the first move; if a move fails, the pairs already moved
// are moved back and the temporary directory is kept. Concurrent calls for
// the same session are serialized by a lease on
// <TmpRoot>/.locks/<session>.lock.
package asset
