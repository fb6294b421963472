// Package audio_test tests silence segmentation, cleaning and encoding.
package audio_test

import (
	"testing"
	"time"

	"github.com/book-expert/speech-gateway/internal/tts/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 8000

// run describes a stretch of constant amplitude; zero amplitude is silence.
type run struct {
	amplitude float32
	ms        int
}

func buildWaveform(runs ...run) audio.Waveform {
	var samples []float32

	for _, r := range runs {
		n := r.ms * testSampleRate / 1000
		for i := range n {
			value := r.amplitude
			if i%2 == 1 {
				value = -value
			}

			samples = append(samples, value)
		}
	}

	return audio.Waveform{Samples: samples, SampleRate: testSampleRate}
}

// threeRuns is 300ms voiced, 300ms silent, 300ms voiced, 300ms silent, 300ms voiced.
func threeRuns() audio.Waveform {
	return buildWaveform(
		run{amplitude: 0.5, ms: 300},
		run{ms: 300},
		run{amplitude: 0.3, ms: 300},
		run{ms: 300},
		run{amplitude: 0.4, ms: 300},
	)
}

func samplesAt(ms int) int {
	return ms * testSampleRate / 1000
}

func TestSplitOnSilence_ThreeRuns(t *testing.T) {
	t.Parallel()

	segments, err := audio.SplitOnSilence(threeRuns(), audio.DefaultSilenceConfig())
	require.NoError(t, err)

	expected := []audio.Segment{
		{Start: 0, End: samplesAt(300)},
		{Start: samplesAt(600), End: samplesAt(900)},
		{Start: samplesAt(1200), End: samplesAt(1500)},
	}
	assert.Equal(t, expected, segments)
}

func TestSplitOnSilence_LeadingAndTrailingSilence(t *testing.T) {
	t.Parallel()

	wave := buildWaveform(
		run{ms: 250},
		run{amplitude: 0.5, ms: 400},
		run{ms: 250},
	)

	segments, err := audio.SplitOnSilence(wave, audio.DefaultSilenceConfig())
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, audio.Segment{Start: samplesAt(250), End: samplesAt(650)}, segments[0])
}

func TestSplitOnSilence_ShortPauseIsNotSilence(t *testing.T) {
	t.Parallel()

	wave := buildWaveform(
		run{amplitude: 0.5, ms: 300},
		run{ms: 150},
		run{amplitude: 0.5, ms: 300},
	)

	segments, err := audio.SplitOnSilence(wave, audio.DefaultSilenceConfig())
	require.NoError(t, err)
	require.Len(t, segments, 1)
	assert.Equal(t, wave.Len(), segments[0].Len())
}

func TestSplitOnSilence_FullySilent(t *testing.T) {
	t.Parallel()

	segments, err := audio.SplitOnSilence(buildWaveform(run{ms: 1000}), audio.DefaultSilenceConfig())
	require.NoError(t, err)
	assert.Empty(t, segments)
}

func TestSplitOnSilence_QuietButAudible(t *testing.T) {
	t.Parallel()

	// 0.02 is about -34 dBFS, above the -40 dBFS threshold.
	wave := buildWaveform(run{amplitude: 0.02, ms: 600})

	segments, err := audio.SplitOnSilence(wave, audio.DefaultSilenceConfig())
	require.NoError(t, err)
	assert.Len(t, segments, 1)
}

func TestSplitOnSilence_KeepSilencePadsSegments(t *testing.T) {
	t.Parallel()

	cfg := audio.DefaultSilenceConfig()
	cfg.KeepSilence = 100 * time.Millisecond

	segments, err := audio.SplitOnSilence(threeRuns(), cfg)
	require.NoError(t, err)
	require.Len(t, segments, 3)

	assert.Equal(t, 0, segments[0].Start)
	assert.Equal(t, samplesAt(400), segments[0].End)
	assert.Equal(t, samplesAt(500), segments[1].Start)
	assert.Equal(t, samplesAt(1500), segments[2].End)
}

func TestSplitOnSilence_InvalidInput(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		wave audio.Waveform
		cfg  audio.SilenceConfig
		want error
	}{
		{
			name: "zero sample rate",
			wave: audio.Waveform{Samples: []float32{0.1, 0.2}, SampleRate: 0},
			cfg:  audio.DefaultSilenceConfig(),
			want: audio.ErrInvalidWaveform,
		},
		{
			name: "positive threshold",
			wave: threeRuns(),
			cfg: audio.SilenceConfig{
				MinSilence:  200 * time.Millisecond,
				ThresholdDB: 3,
				SeekStep:    time.Millisecond,
			},
			want: audio.ErrInvalidSilenceConfig,
		},
		{
			name: "seek step longer than window",
			wave: threeRuns(),
			cfg: audio.SilenceConfig{
				MinSilence:  200 * time.Millisecond,
				ThresholdDB: -40,
				SeekStep:    time.Second,
			},
			want: audio.ErrInvalidSilenceConfig,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			_, err := audio.SplitOnSilence(testCase.wave, testCase.cfg)
			require.ErrorIs(t, err, testCase.want)
		})
	}
}
