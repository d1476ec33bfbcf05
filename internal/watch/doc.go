// Package watch re-runs an export whenever its source file (or the export
// profile) changes. Rapid events are debounced, runs never overlap, and each
// run reports how its counts moved relative to the previous one.
package watch
