package audio

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
)

// DEFAULT_FFMPEG_BINARY is looked up on PATH when no explicit binary is configured.
const DEFAULT_FFMPEG_BINARY = "ffmpeg"

var errEmptyTranscodeOutput = errors.New("transcoder produced no output")

// ffmpegArgs holds the codec and muxer selection per compressed container.
var ffmpegArgs = map[Format][]string{
	FORMAT_MP3:  {"-c:a", "libmp3lame", "-q:a", "2", "-f", "mp3"},
	FORMAT_OPUS: {"-c:a", "libopus", "-b:a", "64k", "-f", "ogg"},
	FORMAT_AAC:  {"-c:a", "aac", "-b:a", "128k", "-f", "adts"},
}

// FFmpegTranscoder pipes WAV data through an ffmpeg process.
type FFmpegTranscoder struct {
	binary string
}

// NewFFmpegTranscoder creates a transcoder for the given binary name or path.
func NewFFmpegTranscoder(binary string) *FFmpegTranscoder {
	if binary == "" {
		binary = DEFAULT_FFMPEG_BINARY
	}

	return &FFmpegTranscoder{binary: binary}
}

// Available reports whether the ffmpeg binary can be found.
func (t *FFmpegTranscoder) Available() bool {
	_, err := exec.LookPath(t.binary)

	return err == nil
}

// Transcode converts wav into format. A missing binary yields
// ErrTranscoderUnavailable; a run stopped by ctx returns ctx's error.
func (t *FFmpegTranscoder) Transcode(ctx context.Context, wav []byte, format Format) ([]byte, error) {
	codecArgs, ok := ffmpegArgs[format]
	if !ok {
		return nil, fmt.Errorf("%w: ffmpeg cannot produce %q", ErrUnsupportedFormat, format)
	}

	path, err := exec.LookPath(t.binary)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrTranscoderUnavailable, err)
	}

	args := []string{"-hide_banner", "-loglevel", "error", "-f", "wav", "-i", "pipe:0", "-vn"}
	args = append(args, codecArgs...)
	args = append(args, "pipe:1")

	var stdout, stderr bytes.Buffer

	// #nosec G204 -- binary comes from configuration, arguments are fixed per format
	cmd := exec.CommandContext(ctx, path, args...)
	cmd.Stdin = bytes.NewReader(wav)
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	if runErr != nil {
		ctxErr := ctx.Err()
		if ctxErr != nil {
			return nil, fmt.Errorf("ffmpeg interrupted: %w", ctxErr)
		}

		return nil, fmt.Errorf(
			"ffmpeg failed: %w - output: %s",
			runErr,
			strings.TrimSpace(stderr.String()),
		)
	}

	if stdout.Len() == 0 {
		return nil, errEmptyTranscodeOutput
	}

	return stdout.Bytes(), nil
}
