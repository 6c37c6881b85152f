package domain

import "errors"

var (
	// ErrJobNotFound is returned when a bulk job id is unknown.
	ErrJobNotFound = errors.New("bulk job not found")
	// ErrJobTerminal is returned when an operation targets a finished job.
	ErrJobTerminal = errors.New("bulk job already finished")
	// ErrStoreNotFound is returned when a store id is unknown.
	ErrStoreNotFound = errors.New("store not found")
	// ErrStoreInactive is returned when a store may not run jobs.
	ErrStoreInactive = errors.New("store is not active")
)
