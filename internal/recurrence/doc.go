// Package recurrence implements the recurrence rule model and the pure
// next-occurrence evaluator used by the scheduler.
//
// A Rule is a sparse per-field constraint (seconds..years); evaluation is a
// forward field-by-field scan with carry, bounded by a safety horizon so
// contradictory rules (e.g. Feb 31) fail instead of looping forever.
package recurrence
