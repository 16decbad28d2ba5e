// Package batch implements the staged file operation engine: operations are
// planned against a draft batch, committed in submission order, and the most
// recent committed batch can be undone by replaying recorded inverses in
// reverse order.
//
// Commits are deliberately not atomic across a batch. Filesystem operations
// cannot be rolled back transactionally, so each operation's outcome is
// reported individually and a failure never touches operations that already
// applied.
package batch
