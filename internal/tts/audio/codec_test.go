package audio_test

import (
	"context"
	"encoding/binary"
	"errors"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-gateway/internal/tts/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var errMockTranscode = errors.New("mock transcode error")

type mockTranscoder struct {
	err    error
	output []byte
	calls  int
	format audio.Format
}

func (m *mockTranscoder) Transcode(_ context.Context, _ []byte, format audio.Format) ([]byte, error) {
	m.calls++
	m.format = format

	if m.err != nil {
		return nil, m.err
	}

	return m.output, nil
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "audio-test.log")
	require.NoError(t, err)

	return log
}

func TestEncodePCM_LengthAndScaling(t *testing.T) {
	t.Parallel()

	wave := audio.Waveform{
		Samples:    []float32{0, 1, -1, 0.5, 1.7, -2},
		SampleRate: 24000,
	}

	data := audio.EncodePCM(wave)
	require.Len(t, data, 2*wave.Len())

	expected := []int16{0, 32767, -32767, 16383, 32767, -32768}
	for i, want := range expected {
		got := int16(binary.LittleEndian.Uint16(data[2*i:]))
		assert.Equal(t, want, got, "sample %d", i)
	}
}

func TestEncodeWAV_DecodesBack(t *testing.T) {
	t.Parallel()

	wave := threeRuns()

	data, err := audio.EncodeWAV(wave)
	require.NoError(t, err)
	require.Equal(t, "RIFF", string(data[:4]))
	require.Equal(t, "WAVE", string(data[8:12]))

	decoded, err := audio.DecodeWAV(data)
	require.NoError(t, err)
	require.Equal(t, testSampleRate, decoded.SampleRate)
	require.Equal(t, wave.Len(), decoded.Len())

	for i := 0; i < wave.Len(); i += 997 {
		assert.InDelta(t, wave.Samples[i], decoded.Samples[i], 1e-3)
	}
}

func TestEncodeFLAC_WritesStreamMarker(t *testing.T) {
	t.Parallel()

	data, err := audio.EncodeFLAC(threeRuns())
	require.NoError(t, err)
	require.Greater(t, len(data), 4)
	assert.Equal(t, "fLaC", string(data[:4]))
}

func TestDecodeWAV_RejectsGarbage(t *testing.T) {
	t.Parallel()

	_, err := audio.DecodeWAV([]byte("definitely not a wav file"))
	require.Error(t, err)
}

func TestEncoder_Encode(t *testing.T) {
	t.Parallel()

	wave := threeRuns()

	tests := []struct {
		format      audio.Format
		contentType string
		prefix      string
	}{
		{format: audio.FORMAT_WAV, contentType: "audio/wav", prefix: "RIFF"},
		{format: audio.FORMAT_FLAC, contentType: "audio/flac", prefix: "fLaC"},
		{format: audio.FORMAT_PCM, contentType: "audio/pcm"},
	}

	encoder := audio.NewEncoder(nil, newTestLogger(t))

	for _, testCase := range tests {
		t.Run(string(testCase.format), func(t *testing.T) {
			t.Parallel()

			data, produced, err := encoder.Encode(context.Background(), wave, testCase.format)
			require.NoError(t, err)
			assert.Equal(t, testCase.format, produced)
			assert.Equal(t, testCase.contentType, produced.ContentType())

			if testCase.prefix != "" {
				assert.Equal(t, testCase.prefix, string(data[:4]))
			}
		})
	}
}

func TestEncoder_CompressedUsesTranscoder(t *testing.T) {
	t.Parallel()

	transcoder := &mockTranscoder{output: []byte("ID3 fake mp3")}
	encoder := audio.NewEncoder(transcoder, newTestLogger(t))

	data, produced, err := encoder.Encode(context.Background(), threeRuns(), audio.FORMAT_MP3)
	require.NoError(t, err)
	assert.Equal(t, []byte("ID3 fake mp3"), data)
	assert.Equal(t, audio.FORMAT_MP3, produced)
	assert.Equal(t, "audio/mpeg", produced.ContentType())
	assert.Equal(t, 1, transcoder.calls)
	assert.Equal(t, audio.FORMAT_MP3, transcoder.format)
}

func TestEncoder_DegradesToWAVWithoutTranscoder(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name       string
		transcoder audio.Transcoder
	}{
		{name: "no transcoder", transcoder: nil},
		{name: "unavailable transcoder", transcoder: &mockTranscoder{err: audio.ErrTranscoderUnavailable}},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			encoder := audio.NewEncoder(testCase.transcoder, newTestLogger(t))

			data, produced, err := encoder.Encode(context.Background(), threeRuns(), audio.FORMAT_OPUS)
			require.NoError(t, err)
			assert.Equal(t, "RIFF", string(data[:4]))
			assert.Equal(t, audio.FORMAT_WAV, produced)
			assert.Equal(t, "audio/wav", produced.ContentType())
		})
	}
}

func TestEncoder_TranscoderFailureIsFatal(t *testing.T) {
	t.Parallel()

	encoder := audio.NewEncoder(&mockTranscoder{err: errMockTranscode}, newTestLogger(t))

	_, _, err := encoder.Encode(context.Background(), threeRuns(), audio.FORMAT_AAC)
	require.ErrorIs(t, err, errMockTranscode)
}

func TestEncoder_UnknownFormat(t *testing.T) {
	t.Parallel()

	encoder := audio.NewEncoder(nil, newTestLogger(t))

	_, _, err := encoder.Encode(context.Background(), threeRuns(), audio.Format("ogg"))
	require.ErrorIs(t, err, audio.ErrUnsupportedFormat)
}

func TestParseFormat(t *testing.T) {
	t.Parallel()

	format, err := audio.ParseFormat("")
	require.NoError(t, err)
	assert.Equal(t, audio.FORMAT_MP3, format)

	format, err = audio.ParseFormat(" FLAC ")
	require.NoError(t, err)
	assert.Equal(t, audio.FORMAT_FLAC, format)

	_, err = audio.ParseFormat("midi")
	require.ErrorIs(t, err, audio.ErrUnsupportedFormat)
}

func TestFormat_ContentType(t *testing.T) {
	t.Parallel()

	expected := map[audio.Format]string{
		audio.FORMAT_MP3:  "audio/mpeg",
		audio.FORMAT_WAV:  "audio/wav",
		audio.FORMAT_OPUS: "audio/opus",
		audio.FORMAT_FLAC: "audio/flac",
		audio.FORMAT_PCM:  "audio/pcm",
		audio.FORMAT_AAC:  "audio/aac",
		audio.Format("x"): "audio/wav",
	}

	for format, contentType := range expected {
		assert.Equal(t, contentType, format.ContentType(), string(format))
	}

	assert.Equal(t, "speech.mp3", audio.FORMAT_MP3.Filename())
}
