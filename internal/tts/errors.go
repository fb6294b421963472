package tts

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/speech-gateway/internal/tts/audio"
)

// Client input errors.
var (
	// ErrUnsupportedModel indicates a base model outside the supported set.
	ErrUnsupportedModel = errors.New("unsupported model")
	// ErrUnsupportedLanguage indicates a language code the model cannot speak.
	ErrUnsupportedLanguage = errors.New("unsupported language")
	// ErrVoiceNotFound indicates a named voice with no matching sample file.
	ErrVoiceNotFound = errors.New("voice not found")
	// ErrUnsupportedFormat indicates an unknown response_format.
	ErrUnsupportedFormat = audio.ErrUnsupportedFormat
	// ErrInvalidParameter indicates a numeric parameter outside its range.
	ErrInvalidParameter = errors.New("invalid parameter")
	// ErrEmptyInput indicates that the input text is empty.
	ErrEmptyInput = errors.New("input text cannot be empty")
)

// Service and internal errors.
var (
	// ErrModelNotReady indicates that the model has not finished initializing.
	ErrModelNotReady = errors.New("model not initialized")
	// ErrModelFailure wraps any error raised by the model capability.
	ErrModelFailure = errors.New("model failure")
	// ErrEncodingFailed indicates the requested container could not be produced.
	ErrEncodingFailed = errors.New("audio encoding failed")
	// ErrInternal marks unexpected faults, including recovered panics.
	ErrInternal = errors.New("internal error")
)

// Kind classifies an error for transports.
type Kind string

// Error kinds.
const (
	KindInternal     Kind = "internal"
	KindInvalidInput Kind = "invalid_input"
	KindUnavailable  Kind = "unavailable"
	KindCanceled     Kind = "canceled"
)

var invalidInputErrors = []error{
	ErrUnsupportedModel,
	ErrUnsupportedLanguage,
	ErrVoiceNotFound,
	ErrUnsupportedFormat,
	ErrInvalidParameter,
	ErrEmptyInput,
}

// KindOf maps err onto a Kind. Unknown errors are KindInternal.
func KindOf(err error) Kind {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrModelNotReady):
		return KindUnavailable
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return KindCanceled
	}

	for _, target := range invalidInputErrors {
		if errors.Is(err, target) {
			return KindInvalidInput
		}
	}

	return KindInternal
}

// newPanicError converts a recovered panic value into an ErrInternal.
func newPanicError(stage string, recovered any) error {
	return fmt.Errorf("%w: panic during %s: %v", ErrInternal, stage, recovered)
}
