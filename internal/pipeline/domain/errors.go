package domain

import "errors"

var (
	// ErrJobNotFound is returned when a job cannot be found in the database
	ErrJobNotFound = errors.New("job not found")

	// ErrChunkNotFound is returned when a chunk cannot be found in the database
	ErrChunkNotFound = errors.New("chunk not found")

	// ErrVersionConflict is returned when a version-gated write loses the race
	// and retries are exhausted; callers must treat the row state as unknown
	ErrVersionConflict = errors.New("optimistic lock conflict, retries exhausted")

	// ErrStaleTransition is returned when a chunk transition targets a stage
	// the chunk is already at or past; redelivered messages treat it as a no-op
	ErrStaleTransition = errors.New("stale chunk transition")

	// ErrJobNotReady is returned when a stitch is requested for a job whose
	// chunks are not all video_ready
	ErrJobNotReady = errors.New("job has chunks that are not video_ready")

	// ErrStitchAlreadyTriggered is returned when another worker already won
	// the stitch-trigger race for the job
	ErrStitchAlreadyTriggered = errors.New("stitch already triggered")

	// ErrPropagationFailed is returned when a chunk failure could not be
	// propagated to the parent job; raised, never swallowed
	ErrPropagationFailed = errors.New("failed to propagate chunk failure to job")

	// ErrInvalidMessage is returned when a queue message is malformed
	ErrInvalidMessage = errors.New("invalid pipeline message")

	// ErrAudioTooShort / ErrAudioTooLong reject out-of-range source durations
	// before any pipeline work starts
	ErrAudioTooShort = errors.New("audio duration below minimum")
	ErrAudioTooLong  = errors.New("audio duration above maximum")

	// ErrTooManyChunks rejects jobs whose chunk count exceeds the cap
	ErrTooManyChunks = errors.New("chunk count exceeds maximum")
)

// RetryableError wraps transient errors that should trigger a queue requeue
type RetryableError struct {
	Err error
}

func (e *RetryableError) Error() string {
	return "retryable error: " + e.Err.Error()
}

func (e *RetryableError) Unwrap() error {
	return e.Err
}

// NewRetryableError creates a new retryable error
func NewRetryableError(err error) error {
	return &RetryableError{Err: err}
}
