// Package providers wraps the external AI generation services as opaque
// "start operation, poll status" collaborators.
package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrOperationNotFound is returned when polling an unknown operation
	ErrOperationNotFound = errors.New("operation not found")

	// ErrOperationFailed is returned when a provider reports a failed operation
	ErrOperationFailed = errors.New("provider operation failed")

	// ErrPollTimeout is returned when an operation does not finish within the
	// polling deadline; treated as a failure of the step, not a hang
	ErrPollTimeout = errors.New("provider operation poll timeout")
)

// SceneRequest describes a scene-image generation.
type SceneRequest struct {
	Prompt      string `json:"prompt"`
	AspectRatio string `json:"aspectRatio,omitempty"`
}

// VideoRequest describes an image-to-video generation.
type VideoRequest struct {
	ImageURL   string `json:"imageUrl"`
	Prompt     string `json:"prompt,omitempty"`
	DurationMs int64  `json:"durationMs"`
	Fps        int    `json:"fps"`
}

// Operation is the polled state of an in-flight generation.
type Operation struct {
	ID        string `json:"id"`
	Done      bool   `json:"done"`
	ResultURL string `json:"resultUrl,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SceneGenerator produces a still image for one chunk of the song.
type SceneGenerator interface {
	StartScene(ctx context.Context, req SceneRequest) (string, error)
	Poll(ctx context.Context, operationID string) (Operation, error)
	Cancel(ctx context.Context, operationID string) error
}

// VideoGenerator animates a scene image into a video segment.
type VideoGenerator interface {
	StartVideo(ctx context.Context, req VideoRequest) (string, error)
	Poll(ctx context.Context, operationID string) (Operation, error)
	Cancel(ctx context.Context, operationID string) error
}

// Poller is the polling slice shared by both generator kinds.
type Poller interface {
	Poll(ctx context.Context, operationID string) (Operation, error)
}

// Polling defaults, used when the caller passes a non-positive interval or
// timeout.
const (
	DefaultPollInterval = 5 * time.Second
	DefaultPollTimeout  = 10 * time.Minute
)

// PollUntilDone polls an operation at the given interval until it finishes or
// the timeout elapses. A provider-reported failure surfaces as
// ErrOperationFailed; exceeding the deadline as ErrPollTimeout.
func PollUntilDone(ctx context.Context, poller Poller, operationID string, interval, timeout time.Duration) (Operation, error) {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if timeout <= 0 {
		timeout = DefaultPollTimeout
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		op, err := poller.Poll(ctx, operationID)
		if err != nil {
			return Operation{}, err
		}
		if op.Done {
			if op.Error != "" {
				return op, fmt.Errorf("%w: %s", ErrOperationFailed, op.Error)
			}
			if op.ResultURL == "" {
				return op, fmt.Errorf("%w: operation %s finished without a result", ErrOperationFailed, operationID)
			}
			return op, nil
		}

		select {
		case <-ticker.C:
		case <-ctx.Done():
			return Operation{}, fmt.Errorf("%w: operation %s after %s", ErrPollTimeout, operationID, timeout)
		}
	}
}
