// Package engine owns the authoritative document state and executes every
// structural edit as a single transaction.
//
// The engine holds the committed mapping of document id to immutable file
// snapshot. A transaction produces a new mapping from the old one, the patch
// engine diffs the two into a forward/inverse patch pair, the history
// controller stages the log append (with redo-tail truncation and bounded
// pruning) and the cursor move, and the whole group commits to the log
// store.
//
// Commits are optimistic: the in-memory state, statistics trees and
// subscriber views update synchronously before the durable write is handed
// to an ordered background writer. A crash between the two loses at most
// the trailing edits, never their ordering. A failed durable write is
// retried once and then logged; the in-memory state stays authoritative.
//
// All mutation entry points serialize on one mutex: there is exactly one
// writer for the document state, and two edits can never interleave their
// read-modify-write.
package engine
