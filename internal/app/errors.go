package service

import "errors"

// Sentinel errors returned by the service.
var (
	// ErrInsufficientData means no signal could produce an estimate.
	ErrInsufficientData = errors.New("insufficient data for an estimate")
	// ErrNotStarted is returned by async operations before Start.
	ErrNotStarted = errors.New("service not started")
	// ErrQueueFull is returned when a job cannot be queued.
	ErrQueueFull = errors.New("job queue full")
	// ErrAlreadyQueued is returned when the same job is already pending.
	ErrAlreadyQueued = errors.New("job already queued")
	// ErrUnknownJob is returned for job kinds the service does not run.
	ErrUnknownJob = errors.New("unknown job kind")
)
