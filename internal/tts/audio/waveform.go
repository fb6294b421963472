package audio

import (
	"errors"
	"fmt"
	"math"
	"time"
)

// Constants for waveform validation limits.
const (
	MIN_SAMPLE_RATE = 1000
	MAX_SAMPLE_RATE = 192000
)

// Constants for error messages and formats.
const (
	ERR_FMT_SAMPLE_RATE_RANGE = "%w: sample rate %d outside %d..%d Hz"
	ERR_FMT_NON_FINITE_SAMPLE = "%w: non-finite sample at offset %d"
)

// ErrInvalidWaveform marks a waveform that cannot be analysed or encoded.
var ErrInvalidWaveform = errors.New("invalid waveform")

// Waveform is a mono sequence of samples in [-1, 1] at SampleRate Hz.
type Waveform struct {
	Samples    []float32
	SampleRate int
}

// Len returns the number of samples.
func (w Waveform) Len() int {
	return len(w.Samples)
}

// Duration returns the playback length of the waveform.
func (w Waveform) Duration() time.Duration {
	if w.SampleRate <= 0 {
		return 0
	}

	return time.Duration(int64(len(w.Samples)) * int64(time.Second) / int64(w.SampleRate))
}

// Validate checks the sample rate bounds and that every sample is finite.
func (w Waveform) Validate() error {
	if w.SampleRate < MIN_SAMPLE_RATE || w.SampleRate > MAX_SAMPLE_RATE {
		return fmt.Errorf(
			ERR_FMT_SAMPLE_RATE_RANGE,
			ErrInvalidWaveform,
			w.SampleRate,
			MIN_SAMPLE_RATE,
			MAX_SAMPLE_RATE,
		)
	}

	for i, sample := range w.Samples {
		value := float64(sample)
		if math.IsNaN(value) || math.IsInf(value, 0) {
			return fmt.Errorf(ERR_FMT_NON_FINITE_SAMPLE, ErrInvalidWaveform, i)
		}
	}

	return nil
}

// Concat joins the given segments of w, in order, into a new waveform.
func (w Waveform) Concat(segments []Segment) Waveform {
	total := 0
	for _, segment := range segments {
		total += segment.Len()
	}

	samples := make([]float32, 0, total)
	for _, segment := range segments {
		samples = append(samples, w.Samples[segment.Start:segment.End]...)
	}

	return Waveform{Samples: samples, SampleRate: w.SampleRate}
}

// msToSample converts a millisecond offset into a sample offset.
func (w Waveform) msToSample(ms int) int {
	return int(int64(ms) * int64(w.SampleRate) / 1000)
}

// lengthMs is the waveform length in whole milliseconds.
func (w Waveform) lengthMs() int {
	return int(int64(len(w.Samples)) * 1000 / int64(w.SampleRate))
}
