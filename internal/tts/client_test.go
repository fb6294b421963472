package tts_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/book-expert/speech-gateway/internal/tts"
	"github.com/book-expert/speech-gateway/internal/tts/audio"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testModelName = "chatterbox-multilingual"
	testTimeout   = 5 * time.Second
)

// inferenceServer mimics the inference server endpoints.
type inferenceServer struct {
	mutex       sync.Mutex
	t           *testing.T
	wav         []byte
	contentType string
	status      int
	lastRequest tts.GenerateRequest
}

func (s *inferenceServer) handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /health", func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.Header().Set("Content-Type", "application/json")
		assert.NoError(s.t, json.NewEncoder(responseWriter).Encode(tts.HealthResponse{
			Status: "healthy",
			Model:  testModelName,
			Device: "cuda",
		}))
	})

	mux.HandleFunc("GET /v1/languages", func(responseWriter http.ResponseWriter, _ *http.Request) {
		responseWriter.Header().Set("Content-Type", "application/json")
		assert.NoError(s.t, json.NewEncoder(responseWriter).Encode(map[string]any{
			"languages": map[string]string{"en": "English", "fr": "French"},
		}))
	})

	mux.HandleFunc("POST /v1/generate/speech", func(responseWriter http.ResponseWriter, request *http.Request) {
		assert.Equal(s.t, "application/json", request.Header.Get("Content-Type"))
		assert.Equal(s.t, "audio/wav", request.Header.Get("Accept"))

		s.mutex.Lock()
		defer s.mutex.Unlock()

		assert.NoError(s.t, json.NewDecoder(request.Body).Decode(&s.lastRequest))

		if s.status != 0 && s.status != http.StatusOK {
			responseWriter.Header().Set("Content-Type", "application/json")
			responseWriter.WriteHeader(s.status)
			_, _ = responseWriter.Write([]byte(`{"detail":"Invalid speaker reference path","error_code":"INVALID_SPEAKER_PATH"}`))

			return
		}

		contentType := s.contentType
		if contentType == "" {
			contentType = "audio/wav"
		}

		responseWriter.Header().Set("Content-Type", contentType)
		_, _ = responseWriter.Write(s.wav)
	})

	return mux
}

func newInferenceServer(t *testing.T) (*inferenceServer, *httptest.Server) {
	t.Helper()

	wav, err := audio.EncodeWAV(threeRunWaveform())
	require.NoError(t, err)

	fake := &inferenceServer{t: t, wav: wav}
	server := httptest.NewServer(fake.handler())
	t.Cleanup(server.Close)

	return fake, server
}

func TestHTTPModel_LoadAndGenerate(t *testing.T) {
	t.Parallel()

	fake, server := newInferenceServer(t)
	model := tts.NewHTTPModel(server.URL+"/", testModelName, "cpu", testTimeout)

	require.NoError(t, model.Load(context.Background()))
	assert.Equal(t, "cuda", model.Device())
	assert.Equal(t, map[string]string{"en": "English", "fr": "French"}, model.SupportedLanguages())

	waveform, err := model.Generate(context.Background(), tts.GenerateParams{
		Text:               "Hello, world!",
		Language:           "fr",
		ReferenceAudioPath: "/voices/aimee.mp3",
		Temperature:        0.8,
		GuidanceWeight:     0.35,
		Exaggeration:       1.2,
	})
	require.NoError(t, err)
	assert.Equal(t, threeRunWaveform().Len(), waveform.Len())
	assert.Equal(t, testSampleRate, waveform.SampleRate)

	fake.mutex.Lock()
	defer fake.mutex.Unlock()

	assert.Equal(t, tts.GenerateRequest{
		Text:           "Hello, world!",
		SpeakerRefPath: "/voices/aimee.mp3",
		Language:       "fr",
		Temperature:    0.8,
		CFGWeight:      0.35,
		Exaggeration:   1.2,
	}, fake.lastRequest)
}

func TestHTTPModel_GenerateSpeechErrors(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		configure func(*inferenceServer)
		text      string
		wantMsg   string
		wantErr   error
	}{
		{name: "empty text", text: "", wantErr: tts.ErrEmptyInput},
		{
			name:      "service error",
			configure: func(s *inferenceServer) { s.status = http.StatusBadRequest },
			text:      "Hello",
			wantMsg:   "Invalid speaker reference path (code: INVALID_SPEAKER_PATH)",
		},
		{
			name:      "wrong content type",
			configure: func(s *inferenceServer) { s.contentType = "text/plain" },
			text:      "Hello",
			wantMsg:   "unexpected content type",
		},
		{
			name:      "empty audio",
			configure: func(s *inferenceServer) { s.wav = nil },
			text:      "Hello",
			wantErr:   tts.ErrEmptyAudio,
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			fake, server := newInferenceServer(t)
			if testCase.configure != nil {
				fake.mutex.Lock()
				testCase.configure(fake)
				fake.mutex.Unlock()
			}

			model := tts.NewHTTPModel(server.URL, testModelName, "cpu", testTimeout)

			_, err := model.GenerateSpeech(context.Background(), tts.GenerateRequest{Text: testCase.text})
			require.Error(t, err)

			if testCase.wantErr != nil {
				require.ErrorIs(t, err, testCase.wantErr)
			}

			if testCase.wantMsg != "" {
				assert.Contains(t, err.Error(), testCase.wantMsg)
			}
		})
	}
}

func TestHTTPModel_AcceptsWAVMediaTypeVariants(t *testing.T) {
	t.Parallel()

	for _, contentType := range []string{"audio/wav; codecs=1", "audio/x-wav", "Audio/WAV", "audio/wave"} {
		t.Run(contentType, func(t *testing.T) {
			t.Parallel()

			fake, server := newInferenceServer(t)

			fake.mutex.Lock()
			fake.contentType = contentType
			fake.mutex.Unlock()

			model := tts.NewHTTPModel(server.URL, testModelName, "cpu", testTimeout)

			waveform, err := model.Generate(context.Background(), tts.GenerateParams{Text: "Hello"})
			require.NoError(t, err)
			assert.Equal(t, threeRunWaveform().Len(), waveform.Len())
		})
	}
}

func TestHTTPModel_GenerateRejectsInvalidWAV(t *testing.T) {
	t.Parallel()

	fake, server := newInferenceServer(t)

	fake.mutex.Lock()
	fake.wav = []byte("RIFF....WAVE")
	fake.mutex.Unlock()

	model := tts.NewHTTPModel(server.URL, testModelName, "cpu", testTimeout)

	_, err := model.Generate(context.Background(), tts.GenerateParams{Text: "Hello"})
	require.Error(t, err)
}

func TestHTTPModel_Timeout(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, request *http.Request) {
		select {
		case <-request.Context().Done():
		case <-time.After(2 * time.Second):
		}

		responseWriter.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)

	model := tts.NewHTTPModel(server.URL, testModelName, "cpu", 50*time.Millisecond)

	_, err := model.GenerateSpeech(context.Background(), tts.GenerateRequest{Text: "Hello"})
	require.Error(t, err)
}

func TestHTTPModel_HealthCheck(t *testing.T) {
	t.Parallel()

	_, server := newInferenceServer(t)
	model := tts.NewHTTPModel(server.URL, testModelName, "cpu", testTimeout)

	health, err := model.HealthCheck(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "healthy", health.Status)

	down := httptest.NewServer(http.HandlerFunc(func(responseWriter http.ResponseWriter, _ *http.Request) {
		http.Error(responseWriter, "loading", http.StatusServiceUnavailable)
	}))
	t.Cleanup(down.Close)

	downModel := tts.NewHTTPModel(down.URL, testModelName, "cpu", testTimeout)

	_, err = downModel.HealthCheck(context.Background())
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "503"))
	require.Error(t, downModel.Load(context.Background()))
}

func TestHTTPModel_NetworkError(t *testing.T) {
	t.Parallel()

	model := tts.NewHTTPModel("http://127.0.0.1:1", testModelName, "cpu", time.Second)

	_, err := model.HealthCheck(context.Background())
	require.Error(t, err)
}
