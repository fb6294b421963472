package audio_test

import (
	"testing"

	"github.com/book-expert/speech-gateway/internal/tts/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCleaner(t *testing.T) *audio.Cleaner {
	t.Helper()

	cleaner, err := audio.NewCleaner(audio.DefaultCleanConfig())
	require.NoError(t, err)

	return cleaner
}

func TestCleaner_ShortTextKeepsFirstSegment(t *testing.T) {
	t.Parallel()

	wave := threeRuns()

	result, err := newTestCleaner(t).Clean(wave, 12)
	require.NoError(t, err)

	assert.Equal(t, wave.Samples[:samplesAt(300)], result.Waveform.Samples)
	assert.Equal(t, testSampleRate, result.Waveform.SampleRate)
	assert.Equal(t, 3, result.Segments)
	assert.Equal(t, 1, result.Kept)
	assert.True(t, result.Trimmed())
}

func TestCleaner_ThresholdIsInclusive(t *testing.T) {
	t.Parallel()

	result, err := newTestCleaner(t).Clean(threeRuns(), audio.DEFAULT_SHORT_TEXT_THRESHOLD)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Kept)
}

func TestCleaner_LongTextKeepsAllSegments(t *testing.T) {
	t.Parallel()

	wave := threeRuns()

	result, err := newTestCleaner(t).Clean(wave, audio.DEFAULT_SHORT_TEXT_THRESHOLD+1)
	require.NoError(t, err)

	var expected []float32
	expected = append(expected, wave.Samples[0:samplesAt(300)]...)
	expected = append(expected, wave.Samples[samplesAt(600):samplesAt(900)]...)
	expected = append(expected, wave.Samples[samplesAt(1200):samplesAt(1500)]...)

	assert.Equal(t, expected, result.Waveform.Samples)
	assert.Equal(t, 3, result.Kept)
	assert.False(t, result.Trimmed())
}

func TestCleaner_SilentWaveformUnchanged(t *testing.T) {
	t.Parallel()

	wave := buildWaveform(run{ms: 800})

	result, err := newTestCleaner(t).Clean(wave, 5)
	require.NoError(t, err)
	assert.Equal(t, wave, result.Waveform)
	assert.Zero(t, result.Segments)
}

func TestCleaner_InvalidWaveformReturnsError(t *testing.T) {
	t.Parallel()

	_, err := newTestCleaner(t).Clean(audio.Waveform{Samples: []float32{0.3}}, 5)
	require.ErrorIs(t, err, audio.ErrInvalidWaveform)
}

func TestNewCleaner_RejectsNegativeThreshold(t *testing.T) {
	t.Parallel()

	cfg := audio.DefaultCleanConfig()
	cfg.ShortTextThreshold = -1

	_, err := audio.NewCleaner(cfg)
	require.ErrorIs(t, err, audio.ErrInvalidCleanConfig)
}
