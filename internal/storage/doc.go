// Package storage persists trigger snapshots and run history.
//
// The daemon saves a job's marshalled trigger state after every fire, so
// a restart restores each schedule exactly where it left off instead of
// recomputing (and possibly re-firing or skipping) fire times.
package storage
