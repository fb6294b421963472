package audio

import (
	"errors"
	"fmt"
)

// DEFAULT_SHORT_TEXT_THRESHOLD is the input length, in characters, up to which
// only the first audible segment is kept.
const DEFAULT_SHORT_TEXT_THRESHOLD = 50

const ERR_FMT_SHORT_TEXT_NEGATIVE = "%w: short text threshold must be non-negative, got %d"

// ErrInvalidCleanConfig is returned by CleanConfig.Validate.
var ErrInvalidCleanConfig = errors.New("invalid clean settings")

// CleanConfig holds the trailing-artifact trimming policy.
type CleanConfig struct {
	Silence            SilenceConfig
	ShortTextThreshold int
}

// DefaultCleanConfig returns the default trimming policy.
func DefaultCleanConfig() CleanConfig {
	return CleanConfig{
		Silence:            DefaultSilenceConfig(),
		ShortTextThreshold: DEFAULT_SHORT_TEXT_THRESHOLD,
	}
}

// Validate checks the silence settings and the threshold.
func (c CleanConfig) Validate() error {
	silenceErr := c.Silence.Validate()
	if silenceErr != nil {
		return silenceErr
	}

	if c.ShortTextThreshold < 0 {
		return fmt.Errorf(ERR_FMT_SHORT_TEXT_NEGATIVE, ErrInvalidCleanConfig, c.ShortTextThreshold)
	}

	return nil
}

// CleanResult describes what Clean did to a waveform.
type CleanResult struct {
	Waveform Waveform
	Segments int
	Kept     int
}

// Trimmed reports whether any segment was dropped.
func (r CleanResult) Trimmed() bool {
	return r.Kept < r.Segments
}

// Cleaner trims repeated or garbled audio the model sometimes emits after
// the intended utterance.
type Cleaner struct {
	config CleanConfig
}

// NewCleaner validates cfg and returns a Cleaner.
func NewCleaner(cfg CleanConfig) (*Cleaner, error) {
	err := cfg.Validate()
	if err != nil {
		return nil, err
	}

	return &Cleaner{config: cfg}, nil
}

// Config returns the active trimming policy.
func (c *Cleaner) Config() CleanConfig {
	return c.config
}

// Clean splits w on silence. Inputs longer than the short-text threshold keep
// every segment in order; shorter inputs keep only the first one, since extra
// segments after a single word or phrase are repetition. A waveform with no
// audible segment is returned unchanged.
func (c *Cleaner) Clean(w Waveform, inputLength int) (CleanResult, error) {
	segments, err := SplitOnSilence(w, c.config.Silence)
	if err != nil {
		return CleanResult{}, fmt.Errorf("failed to split waveform on silence: %w", err)
	}

	if len(segments) == 0 {
		return CleanResult{Waveform: w}, nil
	}

	kept := segments
	if inputLength <= c.config.ShortTextThreshold {
		kept = segments[:1]
	}

	return CleanResult{
		Waveform: w.Concat(kept),
		Segments: len(segments),
		Kept:     len(kept),
	}, nil
}
