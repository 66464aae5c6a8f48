// Package scheduler owns the due-task sweep: a single serialized loop that
// reads due tasks from the store, advances each task's schedule, persists
// the new state, and only then hands the firing to the dispatcher.
//
// Persist-before-dispatch is the de-duplication mechanism: re-running a
// sweep at the same instant finds no due tasks because NextExecutionTime
// already advanced. A task whose persist keeps failing stays due and is
// retried next sweep (at-least-once persistence, at-most-once dispatch).
package scheduler
