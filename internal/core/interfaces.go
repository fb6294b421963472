// Package core defines the contracts shared by the speech transports.
package core

import (
	"context"

	"github.com/book-expert/events"
	"github.com/book-expert/speech-gateway/internal/tts"
)

// Event types carried in the EVENT_TYPE_HEADER of worker replies.
const (
	EVENT_TYPE_HEADER       = "Event-Type"
	EVENT_SPEECH_REQUESTED  = "speech.requested"
	EVENT_SPEECH_CREATED    = "speech.created"
	EVENT_SPEECH_FAILED     = "speech.failed"
	CONTENT_TYPE_HEADER_KEY = "Content-Type"
)

// ObjectStore defines the interface for interacting with a key-value blob store.
type ObjectStore interface {
	Download(ctx context.Context, key string) ([]byte, error)
	Upload(ctx context.Context, key string, data []byte, contentType string) error
}

// Synthesizer turns a speech request into encoded audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, req tts.SpeechRequest) (tts.Speech, error)
}

// SpeechRequestedEvent asks a worker to synthesize Request.
type SpeechRequestedEvent struct {
	Header  events.EventHeader `json:"header"`
	Request tts.SpeechRequest  `json:"request"`
}

// SpeechCreatedEvent reports audio stored under AudioKey.
type SpeechCreatedEvent struct {
	Header      events.EventHeader `json:"header"`
	AudioKey    string             `json:"audio_key"`
	ContentType string             `json:"content_type"`
	SizeBytes   int                `json:"size_bytes"`
	DurationMs  int64              `json:"duration_ms"`
}

// SpeechFailedEvent reports why a request produced no audio. Kind is one of
// the tts.Kind values.
type SpeechFailedEvent struct {
	Header events.EventHeader `json:"header"`
	Kind   string             `json:"kind"`
	Detail string             `json:"detail"`
}
