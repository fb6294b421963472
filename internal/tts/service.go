package tts

import (
	"context"
	"errors"
	"fmt"
	"time"
	"unicode"
	"unicode/utf8"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-gateway/internal/tts/audio"
)

// Model listing constants.
const (
	MODEL_CREATED          int64 = 1704067200
	modelObject                  = "model"
	ownerResembleAI              = "resemble-ai"
	ownerOpenAICompatible        = "openai-compatible"
	defaultVoiceName             = "Default (No Voice Cloning)"
	multilingualModelDesc        = "Multilingual TTS model supporting 23+ languages"
	aliasModelDesc               = "Alias for " + MODEL_MULTILINGUAL
	languageModelDescFmt         = "Multilingual TTS model (auto-set to %s)"
	healthStatusHealthy          = "healthy"
	healthStatusUnhealthy        = "unhealthy"
	stageClean                   = "cleaning"
	stageSynthesis               = "synthesis"
)

// FORMAT_LABEL_INVALID is the format reported to the Recorder for requests
// whose response_format does not parse.
const FORMAT_LABEL_INVALID = "invalid"

// Recorder receives pipeline observations. Implementations must be safe for
// concurrent use.
type Recorder interface {
	ObserveRequest(format string, kind Kind, elapsed time.Duration)
	ObserveAudio(format string, sizeBytes int, duration time.Duration)
	ObserveCleaning(segments, kept int, degraded bool)
}

// Speech is an encoded synthesis result.
type Speech struct {
	Audio       []byte
	ContentType string
	Format      audio.Format
	Filename    string
	Duration    time.Duration
	Segments    int
	Kept        int
}

// VoiceInfo describes a selectable voice.
type VoiceInfo struct {
	ID        string   `json:"id"`
	Name      string   `json:"name"`
	Languages []string `json:"languages"`
}

// ModelInfo describes a selectable model identifier.
type ModelInfo struct {
	ID          string `json:"id"`
	Object      string `json:"object"`
	Created     int64  `json:"created"`
	OwnedBy     string `json:"owned_by"`
	Description string `json:"description"`
}

// Health reports whether the model is loaded.
type Health struct {
	Status string `json:"status"`
	Model  string `json:"model,omitempty"`
	Device string `json:"device,omitempty"`
	Error  string `json:"error,omitempty"`
}

// Healthy reports whether the status is healthy.
func (h Health) Healthy() bool {
	return h.Status == healthStatusHealthy
}

// ServiceOption configures a Service.
type ServiceOption func(*Service)

// WithRecorder attaches a Recorder.
func WithRecorder(recorder Recorder) ServiceOption {
	return func(s *Service) {
		s.recorder = recorder
	}
}

// Service runs the full pipeline: resolve, invoke, clean, encode. It is
// created once by the process and shared by all transports.
type Service struct {
	resolver *Resolver
	invoker  *Invoker
	cleaner  *audio.Cleaner
	encoder  *audio.Encoder
	voices   VoiceResolver
	recorder Recorder
	log      *logger.Logger
}

// NewService wires the pipeline stages. voices may be nil.
func NewService(
	resolver *Resolver,
	invoker *Invoker,
	cleaner *audio.Cleaner,
	encoder *audio.Encoder,
	voices VoiceResolver,
	log *logger.Logger,
	opts ...ServiceOption,
) *Service {
	service := &Service{
		resolver: resolver,
		invoker:  invoker,
		cleaner:  cleaner,
		encoder:  encoder,
		voices:   voices,
		log:      log,
	}

	for _, opt := range opts {
		opt(service)
	}

	return service
}

// Initialize loads the model once.
func (s *Service) Initialize(ctx context.Context) error {
	return s.invoker.Initialize(ctx)
}

// Ready reports whether the model is loaded.
func (s *Service) Ready() bool {
	return s.invoker.Ready()
}

// Synthesize turns req into encoded audio. Errors are classified by KindOf;
// a panic in any stage is returned as ErrInternal.
func (s *Service) Synthesize(ctx context.Context, req SpeechRequest) (speech Speech, err error) {
	start := time.Now()
	format := observedFormat(req.ResponseFormat)

	defer func() {
		if recovered := recover(); recovered != nil {
			s.log.Error("Recovered from panic during synthesis: %v", recovered)
			err = newPanicError(stageSynthesis, recovered)
		}

		if s.recorder != nil {
			s.recorder.ObserveRequest(format, KindOf(err), time.Since(start))
		}
	}()

	resolved, err := s.resolver.Resolve(req)
	if err != nil {
		return Speech{}, err
	}

	format = string(resolved.ResponseFormat)

	s.log.Info(
		"Generating speech: text_len=%d, lang=%s, voice=%s, format=%s, model=%s",
		resolved.InputLength,
		resolved.Language,
		resolved.Voice,
		resolved.ResponseFormat,
		resolved.Model,
	)

	waveform, err := s.invoker.Invoke(ctx, resolved)
	if err != nil {
		return Speech{}, err
	}

	cleaned, result := s.clean(waveform, resolved.InputLength)

	data, produced, err := s.encoder.Encode(ctx, cleaned, resolved.ResponseFormat)
	if err != nil {
		if errors.Is(err, ErrUnsupportedFormat) || KindOf(err) == KindCanceled {
			return Speech{}, err
		}

		return Speech{}, fmt.Errorf("%w: %s: %w", ErrEncodingFailed, resolved.ResponseFormat, err)
	}

	if s.recorder != nil {
		s.recorder.ObserveAudio(format, len(data), cleaned.Duration())
	}

	return Speech{
		Audio:       data,
		ContentType: produced.ContentType(),
		Format:      produced,
		Filename:    produced.Filename(),
		Duration:    cleaned.Duration(),
		Segments:    result.Segments,
		Kept:        result.Kept,
	}, nil
}

// observedFormat bounds the Recorder's format values to the known formats.
func observedFormat(value string) string {
	format, err := audio.ParseFormat(value)
	if err != nil {
		return FORMAT_LABEL_INVALID
	}

	return string(format)
}

// clean applies the cleaner best-effort; any failure yields the original waveform.
func (s *Service) clean(waveform audio.Waveform, inputLength int) (audio.Waveform, audio.CleanResult) {
	result, ok := recoverWaveform(s.log, stageClean, func() (audio.CleanResult, error) {
		return s.cleaner.Clean(waveform, inputLength)
	})

	if s.recorder != nil {
		s.recorder.ObserveCleaning(result.Segments, result.Kept, !ok)
	}

	if !ok {
		return waveform, audio.CleanResult{Waveform: waveform}
	}

	switch {
	case result.Segments == 0:
		s.log.Warn("Silence trimming found no audio, keeping original waveform")
	case result.Trimmed():
		s.log.Info("Short text detected (%d chars). Keeping only first segment of %d", inputLength, result.Segments)
	default:
		s.log.Info("Silence trimming: kept %d segments", result.Kept)
	}

	return result.Waveform, result
}

// recoverWaveform runs fn and reports false when it fails or panics, so that
// the caller can fall back to its input unchanged.
func recoverWaveform(
	log *logger.Logger,
	stage string,
	fn func() (audio.CleanResult, error),
) (result audio.CleanResult, ok bool) {
	defer func() {
		if recovered := recover(); recovered != nil {
			log.Warn("Audio %s panicked, keeping original waveform: %v", stage, recovered)

			result, ok = audio.CleanResult{}, false
		}
	}()

	result, err := fn()
	if err != nil {
		log.Warn("Audio %s failed, keeping original waveform: %v", stage, err)

		return audio.CleanResult{}, false
	}

	if result.Waveform.Len() == 0 {
		log.Warn("Audio %s produced an empty waveform, keeping original", stage)

		return audio.CleanResult{}, false
	}

	return result, true
}

// Voices lists the default voice followed by every discovered sample.
func (s *Service) Voices() []VoiceInfo {
	languages := LanguageCodes(s.invoker.SupportedLanguages())

	voices := []VoiceInfo{{
		ID:        DEFAULT_VOICE,
		Name:      defaultVoiceName,
		Languages: languages,
	}}

	if s.voices == nil {
		return voices
	}

	for _, name := range s.voices.ListNames() {
		voices = append(voices, VoiceInfo{
			ID:        name,
			Name:      capitalize(name),
			Languages: languages,
		})
	}

	return voices
}

// Models lists the base models and one language-pinned variant per language.
func (s *Service) Models() []ModelInfo {
	models := []ModelInfo{
		newModelInfo(MODEL_MULTILINGUAL, ownerResembleAI, multilingualModelDesc),
		newModelInfo(MODEL_TTS1, ownerOpenAICompatible, aliasModelDesc),
		newModelInfo(MODEL_TTS1_HD, ownerOpenAICompatible, aliasModelDesc),
	}

	languages := s.invoker.SupportedLanguages()

	for _, code := range LanguageCodes(languages) {
		models = append(models, newModelInfo(
			MODEL_MULTILINGUAL+modelLanguageSeparator+code,
			ownerResembleAI,
			fmt.Sprintf(languageModelDescFmt, languages[code]),
		))
	}

	return models
}

// Health reports the model state.
func (s *Service) Health() Health {
	if !s.invoker.Ready() {
		return Health{Status: healthStatusUnhealthy, Error: ErrModelNotReady.Error()}
	}

	return Health{
		Status: healthStatusHealthy,
		Model:  s.invoker.ModelName(),
		Device: s.invoker.Device(),
	}
}

func newModelInfo(id, owner, description string) ModelInfo {
	return ModelInfo{
		ID:          id,
		Object:      modelObject,
		Created:     MODEL_CREATED,
		OwnedBy:     owner,
		Description: description,
	}
}

// capitalize upper-cases the first rune and lower-cases the rest.
func capitalize(s string) string {
	first, size := utf8.DecodeRuneInString(s)
	if size == 0 {
		return s
	}

	rest := []rune(s[size:])
	for i, r := range rest {
		rest[i] = unicode.ToLower(r)
	}

	return string(unicode.ToUpper(first)) + string(rest)
}
