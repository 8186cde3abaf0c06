package mlfq

import "errors"

// Error taxonomy (spec.md §7). These are returned, never panicked: the
// core degrades a misbehaving call to "this task not managed by MLFQ"
// rather than aborting the process.
var (
	ErrTableFull       = errors.New("mlfq: task table full")
	ErrAlreadyPresent  = errors.New("mlfq: task already registered")
	ErrNotFound        = errors.New("mlfq: task not registered")
	ErrInvalidArgument = errors.New("mlfq: invalid argument")
)
