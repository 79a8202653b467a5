// Package tasks runs long adapter operations (scans, connects) off the
// message delivery path.
//
// Each task occupies a named slot, one per site and operation kind. A new
// task in an occupied slot cancels the running one; the cancelled task's
// result is dropped when it tries to Commit. The new task starts its work
// only after the cancelled one has returned, so cleanup such as stopping
// discovery never overlaps the next operation on the adapter. Stop cancels
// everything and waits for every goroutine to exit.
package tasks
