package tts_test

import (
	"context"
	"errors"
	"sort"
	"strings"
	"sync"
	"testing"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-gateway/internal/tts"
	"github.com/book-expert/speech-gateway/internal/tts/audio"
	"github.com/stretchr/testify/require"
)

const testSampleRate = 8000

var (
	errMockLoad     = errors.New("mock load error")
	errMockGenerate = errors.New("mock generate error")
)

// mockModel is a configurable implementation of tts.Model.
type mockModel struct {
	mutex     sync.Mutex
	loadErr   error
	loads     int
	waveform  audio.Waveform
	err       error
	panicMsg  string
	release   chan struct{}
	started   chan struct{}
	calls     []tts.GenerateParams
	languages map[string]string
}

func (m *mockModel) Name() string   { return "mock-model" }
func (m *mockModel) Device() string { return "cpu" }

func (m *mockModel) Load(_ context.Context) error {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	m.loads++

	return m.loadErr
}

func (m *mockModel) SupportedLanguages() map[string]string {
	return m.languages
}

func (m *mockModel) Generate(_ context.Context, params tts.GenerateParams) (audio.Waveform, error) {
	m.mutex.Lock()
	m.calls = append(m.calls, params)
	m.mutex.Unlock()

	if m.started != nil {
		m.started <- struct{}{}
	}

	if m.release != nil {
		<-m.release
	}

	if m.panicMsg != "" {
		panic(m.panicMsg)
	}

	return m.waveform, m.err
}

func (m *mockModel) loadCount() int {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.loads
}

func (m *mockModel) lastCall() tts.GenerateParams {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	return m.calls[len(m.calls)-1]
}

// mockVoices is an in-memory tts.VoiceResolver.
type mockVoices map[string]string

func (m mockVoices) Resolve(name string) (string, bool) {
	path, ok := m[strings.ToLower(name)]

	return path, ok
}

func (m mockVoices) ListNames() []string {
	names := make([]string, 0, len(m))
	for name := range m {
		names = append(names, name)
	}

	sort.Strings(names)

	return names
}

// staticLanguages is a fixed tts.LanguageSource.
type staticLanguages map[string]string

func (s staticLanguages) SupportedLanguages() map[string]string {
	return s
}

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()

	log, err := logger.New(t.TempDir(), "tts-test.log")
	require.NoError(t, err)

	return log
}

// threeRunWaveform is 300ms voiced, 300ms silent, 300ms voiced, 300ms silent, 300ms voiced.
func threeRunWaveform() audio.Waveform {
	var samples []float32

	appendRun := func(amplitude float32, ms int) {
		for i := range ms * testSampleRate / 1000 {
			value := amplitude
			if i%2 == 1 {
				value = -value
			}

			samples = append(samples, value)
		}
	}

	appendRun(0.5, 300)
	appendRun(0, 300)
	appendRun(0.3, 300)
	appendRun(0, 300)
	appendRun(0.4, 300)

	return audio.Waveform{Samples: samples, SampleRate: testSampleRate}
}

func samplesAt(ms int) int {
	return ms * testSampleRate / 1000
}

func float64Ptr(value float64) *float64 {
	return &value
}
