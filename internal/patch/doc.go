// Package patch computes and applies structural diffs between document
// states.
//
// Diff compares two snapshots of the full document state and returns a
// forward/inverse patch pair: applying forward to the before-state yields the
// after-state, applying inverse to the after-state yields the before-state,
// by value equality. A patch is an ordered list of ops, each addressing a
// path through the state tree (document, track, segment) and replacing a
// range of children at that level.
//
// Apply is total over well-formed inputs: an op that references a document
// or index range that does not exist in the target state reports an
// internal-consistency error. That can only happen when a patch is applied
// to a snapshot other than the one it was computed against, which the
// engine's single-writer transaction model rules out.
package patch
