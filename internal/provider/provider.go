// Package provider is the stateless boundary to the external generative
// model API. The operating mode (live or degraded/synthetic) is selected once
// at construction and fixed for the adapter's lifetime.
package provider

import (
	"context"
	"errors"
	"fmt"

	"comic-server/internal/model"
)

// Moderation is the result of the provider's moderation capability.
type Moderation struct {
	Flagged    bool
	Categories []string
}

// Client exposes the provider's three capabilities.
type Client interface {
	// CompleteText runs a text completion against the named model.
	CompleteText(ctx context.Context, prompt, modelName string) (string, error)
	// SynthesizeImage produces an image reference for the prompt.
	SynthesizeImage(ctx context.Context, prompt string, style model.StyleCategory) (string, error)
	// Moderate classifies text for unsafe content.
	Moderate(ctx context.Context, text string) (Moderation, error)
	// Degraded reports whether the adapter runs in synthetic mode.
	Degraded() bool
}

// Error codes for provider failures.
const (
	ErrCodeModelNotFound = "model_not_found"
	ErrCodeTimeout       = "timeout"
	ErrCodeUpstream      = "upstream"
)

// Error is a typed provider failure. Code is stable; the wrapped error
// carries upstream detail for logs only.
type Error struct {
	Code string
	err  error
}

func (e *Error) Error() string {
	return fmt.Sprintf("provider error (%s): %v", e.Code, e.err)
}

func (e *Error) Unwrap() error { return e.err }

// NewError builds a typed provider error from an upstream cause.
func NewError(code string, err error) *Error {
	return &Error{Code: code, err: err}
}

// IsModelNotFound reports whether err is a rejection of an unknown or
// unavailable model, which is the orchestrator's cue to retry once against
// the fallback model.
func IsModelNotFound(err error) bool {
	var pe *Error
	return errors.As(err, &pe) && pe.Code == ErrCodeModelNotFound
}
