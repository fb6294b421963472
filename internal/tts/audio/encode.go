package audio

import (
	"context"
	"errors"
	"fmt"

	"github.com/book-expert/logger"
)

// ErrTranscoderUnavailable reports that no external transcoder can be run.
var ErrTranscoderUnavailable = errors.New("transcoder unavailable")

// Transcoder converts a WAV stream into a compressed container.
type Transcoder interface {
	Transcode(ctx context.Context, wav []byte, format Format) ([]byte, error)
}

const logFmtDegradedEncoding = "No %s encoder available (%v); returning WAV instead"

// Encoder serializes waveforms into the requested container.
//
// pcm, wav and flac are produced in-process. mp3, opus and aac go through the
// Transcoder; when it is missing or unavailable the WAV encoding is returned
// instead and reported as FORMAT_WAV.
type Encoder struct {
	transcoder Transcoder
	log        *logger.Logger
}

// NewEncoder creates an Encoder. transcoder may be nil.
func NewEncoder(transcoder Transcoder, log *logger.Logger) *Encoder {
	return &Encoder{
		transcoder: transcoder,
		log:        log,
	}
}

// Encode returns the container bytes and the format they are actually in,
// which differs from format only when a compressed encoding degrades to WAV.
func (e *Encoder) Encode(ctx context.Context, w Waveform, format Format) ([]byte, Format, error) {
	validateErr := w.Validate()
	if validateErr != nil {
		return nil, "", validateErr
	}

	var (
		data     []byte
		produced = format
		err      error
	)

	switch format {
	case FORMAT_PCM:
		data = EncodePCM(w)
	case FORMAT_WAV:
		data, err = EncodeWAV(w)
	case FORMAT_FLAC:
		data, err = EncodeFLAC(w)
	case FORMAT_MP3, FORMAT_OPUS, FORMAT_AAC:
		data, produced, err = e.encodeCompressed(ctx, w, format)
	default:
		return nil, "", fmt.Errorf("%w: %q", ErrUnsupportedFormat, format)
	}

	if err != nil {
		return nil, "", err
	}

	return data, produced, nil
}

func (e *Encoder) encodeCompressed(ctx context.Context, w Waveform, format Format) ([]byte, Format, error) {
	wav, err := EncodeWAV(w)
	if err != nil {
		return nil, "", err
	}

	if e.transcoder == nil {
		e.log.Warn(logFmtDegradedEncoding, format, ErrTranscoderUnavailable)

		return wav, FORMAT_WAV, nil
	}

	data, err := e.transcoder.Transcode(ctx, wav, format)
	if errors.Is(err, ErrTranscoderUnavailable) {
		e.log.Warn(logFmtDegradedEncoding, format, err)

		return wav, FORMAT_WAV, nil
	}

	if err != nil {
		return nil, "", fmt.Errorf("failed to transcode to %s: %w", format, err)
	}

	return data, format, nil
}
