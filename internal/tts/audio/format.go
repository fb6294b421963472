// Package audio provides waveform data structures, silence segmentation,
// post-processing, and container encoding for synthesized speech.
package audio

import (
	"errors"
	"fmt"
	"strings"
)

// Format represents supported response containers.
type Format string

const (
	FORMAT_MP3  Format = "mp3"
	FORMAT_WAV  Format = "wav"
	FORMAT_OPUS Format = "opus"
	FORMAT_FLAC Format = "flac"
	FORMAT_PCM  Format = "pcm"
	FORMAT_AAC  Format = "aac"
)

// DEFAULT_FORMAT is used when a request does not name a container.
const DEFAULT_FORMAT = FORMAT_MP3

// DEFAULT_CONTENT_TYPE is reported for formats missing from the content-type table.
const DEFAULT_CONTENT_TYPE = "audio/wav"

// ErrUnsupportedFormat is returned for response formats outside the supported set.
var ErrUnsupportedFormat = errors.New("unsupported response format")

var contentTypes = map[Format]string{
	FORMAT_MP3:  "audio/mpeg",
	FORMAT_WAV:  "audio/wav",
	FORMAT_OPUS: "audio/opus",
	FORMAT_FLAC: "audio/flac",
	FORMAT_PCM:  "audio/pcm",
	FORMAT_AAC:  "audio/aac",
}

// Formats lists every supported container in a stable order.
func Formats() []Format {
	return []Format{FORMAT_MP3, FORMAT_OPUS, FORMAT_AAC, FORMAT_FLAC, FORMAT_WAV, FORMAT_PCM}
}

// ParseFormat maps a request value onto a Format. An empty value yields DEFAULT_FORMAT.
func ParseFormat(value string) (Format, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	if normalized == "" {
		return DEFAULT_FORMAT, nil
	}

	format := Format(normalized)
	if _, ok := contentTypes[format]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, value)
	}

	return format, nil
}

// ContentType returns the MIME type for the format, defaulting to audio/wav.
func (f Format) ContentType() string {
	contentType, ok := contentTypes[f]
	if !ok {
		return DEFAULT_CONTENT_TYPE
	}

	return contentType
}

// Filename returns the suggested download name for the format.
func (f Format) Filename() string {
	return "speech." + string(f)
}
