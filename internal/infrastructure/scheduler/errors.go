package scheduler

import "errors"

var (
	// ErrSchedulerNotRunning is returned when a checkout or notification is
	// handed to a scheduler that has not been started or is shutting down
	ErrSchedulerNotRunning = errors.New("scheduler: not running")

	// ErrJobQueueFull is returned when the bounded queue cannot take another job
	ErrJobQueueFull = errors.New("scheduler: job queue is full")

	// ErrInvalidConfig is returned by the constructors for non-positive
	// intervals, worker counts or queue sizes
	ErrInvalidConfig = errors.New("scheduler: invalid configuration")
)
