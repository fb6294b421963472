package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Defaults for silence detection.
const (
	DEFAULT_MIN_SILENCE          = 200 * time.Millisecond
	DEFAULT_SILENCE_THRESHOLD_DB = -40.0
	DEFAULT_SEEK_STEP            = time.Millisecond
	DEFAULT_KEEP_SILENCE         = time.Duration(0)
)

// Constants for silence configuration errors.
const (
	ERR_FMT_MIN_SILENCE_RANGE     = "%w: minimum silence must be at least 1ms, got %s"
	ERR_FMT_THRESHOLD_RANGE       = "%w: silence threshold must be below 0 dBFS, got %.1f"
	ERR_FMT_SEEK_STEP_RANGE       = "%w: seek step must be between 1ms and the minimum silence, got %s"
	ERR_FMT_KEEP_SILENCE_NEGATIVE = "%w: keep silence must be non-negative, got %s"
)

// ErrInvalidSilenceConfig is returned by SilenceConfig.Validate.
var ErrInvalidSilenceConfig = errors.New("invalid silence settings")

// Segment is a half-open [Start, End) range of sample offsets holding audible audio.
type Segment struct {
	Start int
	End   int
}

// Len returns the number of samples in the segment.
func (s Segment) Len() int {
	return s.End - s.Start
}

// SilenceConfig controls how a waveform is split into audible runs.
//
// A window of MinSilence is considered silent when its RMS level is at or
// below ThresholdDB (relative to full scale). Windows are evaluated every
// SeekStep. KeepSilence pads every returned segment on both sides.
type SilenceConfig struct {
	MinSilence  time.Duration
	ThresholdDB float64
	SeekStep    time.Duration
	KeepSilence time.Duration
}

// DefaultSilenceConfig returns 200ms / -40 dBFS detection with no padding.
func DefaultSilenceConfig() SilenceConfig {
	return SilenceConfig{
		MinSilence:  DEFAULT_MIN_SILENCE,
		ThresholdDB: DEFAULT_SILENCE_THRESHOLD_DB,
		SeekStep:    DEFAULT_SEEK_STEP,
		KeepSilence: DEFAULT_KEEP_SILENCE,
	}
}

// Validate checks that the settings can drive segmentation.
func (c SilenceConfig) Validate() error {
	if c.MinSilence < time.Millisecond {
		return fmt.Errorf(ERR_FMT_MIN_SILENCE_RANGE, ErrInvalidSilenceConfig, c.MinSilence)
	}

	if c.ThresholdDB >= 0 || math.IsNaN(c.ThresholdDB) {
		return fmt.Errorf(ERR_FMT_THRESHOLD_RANGE, ErrInvalidSilenceConfig, c.ThresholdDB)
	}

	if c.SeekStep < time.Millisecond || c.SeekStep > c.MinSilence {
		return fmt.Errorf(ERR_FMT_SEEK_STEP_RANGE, ErrInvalidSilenceConfig, c.SeekStep)
	}

	if c.KeepSilence < 0 {
		return fmt.Errorf(ERR_FMT_KEEP_SILENCE_NEGATIVE, ErrInvalidSilenceConfig, c.KeepSilence)
	}

	return nil
}

// msRange is a half-open range in milliseconds.
type msRange struct {
	start int
	end   int
}

// SplitOnSilence returns the audible runs of w in order. A fully silent
// waveform yields no segments; a waveform without any qualifying silence
// yields a single segment covering all samples.
func SplitOnSilence(w Waveform, cfg SilenceConfig) ([]Segment, error) {
	configErr := cfg.Validate()
	if configErr != nil {
		return nil, configErr
	}

	waveErr := w.Validate()
	if waveErr != nil {
		return nil, waveErr
	}

	if w.Len() == 0 {
		return nil, nil
	}

	totalMs := w.lengthMs()
	voiced := nonSilentRanges(detectSilence(w, cfg), totalMs)

	segments := make([]Segment, 0, len(voiced))

	for _, r := range voiced {
		segment := Segment{
			Start: sampleAt(w, r.start, totalMs),
			End:   sampleAt(w, r.end, totalMs),
		}
		if segment.Len() > 0 {
			segments = append(segments, segment)
		}
	}

	if cfg.KeepSilence > 0 {
		keep := w.msToSample(int(cfg.KeepSilence / time.Millisecond))
		segments = padSegments(segments, keep, w.Len())
	}

	return segments, nil
}

// detectSilence returns merged silent ranges, evaluating a MinSilence window
// at every SeekStep.
func detectSilence(w Waveform, cfg SilenceConfig) []msRange {
	totalMs := w.lengthMs()
	windowMs := int(cfg.MinSilence / time.Millisecond)
	stepMs := int(cfg.SeekStep / time.Millisecond)

	if totalMs < windowMs {
		return nil
	}

	energy := cumulativeEnergy(w.Samples)
	threshold := dbToAmplitude(cfg.ThresholdDB)
	lastStart := totalMs - windowMs

	var starts []int

	check := func(startMs int) {
		from := w.msToSample(startMs)
		to := w.msToSample(startMs + windowMs)

		if windowRMS(energy, from, to) <= threshold {
			starts = append(starts, startMs)
		}
	}

	for startMs := 0; startMs <= lastStart; startMs += stepMs {
		check(startMs)
	}

	if lastStart%stepMs != 0 {
		check(lastStart)
	}

	if len(starts) == 0 {
		return nil
	}

	var ranges []msRange

	rangeStart := starts[0]
	prev := starts[0]

	for _, start := range starts[1:] {
		continuous := start == prev+stepMs
		hasGap := start > prev+windowMs

		if !continuous && hasGap {
			ranges = append(ranges, msRange{start: rangeStart, end: prev + windowMs})
			rangeStart = start
		}

		prev = start
	}

	return append(ranges, msRange{start: rangeStart, end: prev + windowMs})
}

// nonSilentRanges inverts silent ranges over [0, totalMs).
func nonSilentRanges(silent []msRange, totalMs int) []msRange {
	if len(silent) == 0 {
		return []msRange{{start: 0, end: totalMs}}
	}

	if silent[0].start == 0 && silent[0].end >= totalMs {
		return nil
	}

	var (
		voiced  []msRange
		prevEnd int
	)

	for _, r := range silent {
		if r.start > prevEnd {
			voiced = append(voiced, msRange{start: prevEnd, end: r.start})
		}

		prevEnd = r.end
	}

	if prevEnd < totalMs {
		voiced = append(voiced, msRange{start: prevEnd, end: totalMs})
	}

	return voiced
}

// padSegments widens each segment by keep samples. Overlaps between
// neighbours are split at their midpoint.
func padSegments(segments []Segment, keep, length int) []Segment {
	padded := make([]Segment, len(segments))

	for i, segment := range segments {
		padded[i] = Segment{Start: segment.Start - keep, End: segment.End + keep}
	}

	for i := 0; i+1 < len(padded); i++ {
		if padded[i+1].Start < padded[i].End {
			mid := (padded[i].End + padded[i+1].Start) / 2
			padded[i].End = mid
			padded[i+1].Start = mid
		}
	}

	for i := range padded {
		padded[i].Start = max(padded[i].Start, 0)
		padded[i].End = min(padded[i].End, length)
	}

	return padded
}

// sampleAt maps a millisecond offset to a sample offset; the final
// millisecond boundary covers any trailing partial millisecond.
func sampleAt(w Waveform, ms, totalMs int) int {
	if ms >= totalMs {
		return w.Len()
	}

	return w.msToSample(ms)
}

func cumulativeEnergy(samples []float32) []float64 {
	energy := make([]float64, len(samples)+1)

	for i, sample := range samples {
		value := float64(sample)
		energy[i+1] = energy[i] + value*value
	}

	return energy
}

func windowRMS(energy []float64, from, to int) float64 {
	if to <= from {
		return 0
	}

	mean := (energy[to] - energy[from]) / float64(to-from)

	return math.Sqrt(math.Max(mean, 0))
}

func dbToAmplitude(db float64) float64 {
	return math.Pow(10, db/20)
}
