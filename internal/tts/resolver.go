package tts

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/book-expert/speech-gateway/internal/tts/audio"
	"github.com/book-expert/speech-gateway/internal/tts/text"
)

// Model identifiers.
const (
	MODEL_MULTILINGUAL = "chatterbox-multilingual"
	MODEL_TURBO        = "chatterbox-turbo"
	MODEL_CHATTERBOX   = "chatterbox"
	MODEL_TTS1         = "tts-1"
	MODEL_TTS1_HD      = "tts-1-hd"
	DEFAULT_MODEL      = MODEL_MULTILINGUAL
)

// DEFAULT_VOICE selects the base model voice without reference audio.
const DEFAULT_VOICE = "default"

const (
	modelLanguageSeparator = "-"
	maxListedVoices        = 10
)

// Parameter bounds.
const (
	MIN_TEMPERATURE  = 0.0
	MAX_TEMPERATURE  = 2.0
	MIN_CFG_WEIGHT   = 0.0
	MAX_CFG_WEIGHT   = 1.0
	MIN_EXAGGERATION = 0.0
	MAX_EXAGGERATION = 2.0
	MIN_SPEED        = 0.25
	MAX_SPEED        = 4.0
)

// Compiled-in parameter defaults, overridable through configuration.
const (
	DEFAULT_TEMPERATURE  = 0.5
	DEFAULT_CFG_WEIGHT   = 0.35
	DEFAULT_EXAGGERATION = 1.0
)

// SupportedModels lists the accepted base model identifiers.
var SupportedModels = []string{
	MODEL_MULTILINGUAL,
	MODEL_TURBO,
	MODEL_CHATTERBOX,
	MODEL_TTS1,
	MODEL_TTS1_HD,
}

// SpeechRequest is the client request as received from a transport.
// Optional numeric fields are pointers so that an explicit zero is kept.
type SpeechRequest struct {
	Model          string   `json:"model,omitempty"`
	Input          string   `json:"input"`
	Voice          string   `json:"voice,omitempty"`
	ResponseFormat string   `json:"response_format,omitempty"`
	Speed          *float64 `json:"speed,omitempty"`
	Language       string   `json:"language,omitempty"`
	Temperature    *float64 `json:"temperature,omitempty"`
	CFGWeight      *float64 `json:"cfg_weight,omitempty"`
	Exaggeration   *float64 `json:"exaggeration,omitempty"`
	AudioPrompt    string   `json:"audio_prompt,omitempty"`
}

// SynthesisRequest holds fully resolved synthesis parameters.
type SynthesisRequest struct {
	Model              string
	Text               string
	Language           string
	Voice              string
	ReferenceAudioPath string
	Temperature        float64
	GuidanceWeight     float64
	Exaggeration       float64
	ResponseFormat     audio.Format
	// InputLength is the rune count of the raw input, before sanitizing.
	InputLength int
}

// Defaults are applied to numeric parameters a request leaves unset.
type Defaults struct {
	Temperature  float64
	CFGWeight    float64
	Exaggeration float64
}

// DefaultParameters returns the compiled-in parameter defaults.
func DefaultParameters() Defaults {
	return Defaults{
		Temperature:  DEFAULT_TEMPERATURE,
		CFGWeight:    DEFAULT_CFG_WEIGHT,
		Exaggeration: DEFAULT_EXAGGERATION,
	}
}

// VoiceResolver maps voice names to reference audio paths.
type VoiceResolver interface {
	Resolve(name string) (string, bool)
	ListNames() []string
}

// LanguageSource reports the language codes the model accepts.
type LanguageSource interface {
	SupportedLanguages() map[string]string
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithNormalizer runs n over the input before it is sanitized.
func WithNormalizer(n *text.Normalizer) ResolverOption {
	return func(r *Resolver) {
		r.normalizer = n
	}
}

// Resolver turns a SpeechRequest into a SynthesisRequest.
type Resolver struct {
	voices     VoiceResolver
	languages  LanguageSource
	defaults   Defaults
	normalizer *text.Normalizer
}

// NewResolver creates a Resolver. voices may be nil when voice cloning by name
// is not available.
func NewResolver(
	voices VoiceResolver,
	languages LanguageSource,
	defaults Defaults,
	opts ...ResolverOption,
) *Resolver {
	resolver := &Resolver{
		voices:    voices,
		languages: languages,
		defaults:  defaults,
	}

	for _, opt := range opts {
		opt(resolver)
	}

	return resolver
}

// Resolve validates req and derives the synthesis parameters. Every error it
// returns is a client input error.
func (r *Resolver) Resolve(req SpeechRequest) (SynthesisRequest, error) {
	if strings.TrimSpace(req.Input) == "" {
		return SynthesisRequest{}, ErrEmptyInput
	}

	model, suffixLanguage, err := r.resolveModel(req.Model)
	if err != nil {
		return SynthesisRequest{}, err
	}

	format, err := audio.ParseFormat(req.ResponseFormat)
	if err != nil {
		return SynthesisRequest{}, err
	}

	params, err := r.resolveParameters(req)
	if err != nil {
		return SynthesisRequest{}, err
	}

	referencePath, err := r.resolveReference(req)
	if err != nil {
		return SynthesisRequest{}, err
	}

	language := suffixLanguage
	if language == "" {
		language = strings.ToLower(strings.TrimSpace(req.Language))
	}

	input := req.Input
	if r.normalizer != nil {
		input = r.normalizer.Normalize(input)
	}

	voice := req.Voice
	if voice == "" {
		voice = DEFAULT_VOICE
	}

	return SynthesisRequest{
		Model:              model,
		Text:               text.Sanitize(input),
		Language:           language,
		Voice:              voice,
		ReferenceAudioPath: referencePath,
		Temperature:        params.Temperature,
		GuidanceWeight:     params.CFGWeight,
		Exaggeration:       params.Exaggeration,
		ResponseFormat:     format,
		InputLength:        utf8.RuneCountInString(req.Input),
	}, nil
}

// resolveModel splits a language suffix off the model name and validates the
// remaining base model.
func (r *Resolver) resolveModel(requested string) (string, string, error) {
	model := strings.TrimSpace(requested)
	if model == "" {
		model = DEFAULT_MODEL
	}

	var language string

	if idx := strings.LastIndex(model, modelLanguageSeparator); idx >= 0 {
		candidate := model[idx+len(modelLanguageSeparator):]
		if _, ok := r.supportedLanguages()[candidate]; ok {
			language = candidate
			model = model[:idx]
		}
	}

	for _, supported := range SupportedModels {
		if model == supported {
			return model, language, nil
		}
	}

	return "", "", fmt.Errorf(
		"%w: %s. Supported: %s or with language suffix (e.g., %s-es)",
		ErrUnsupportedModel,
		requested,
		strings.Join(SupportedModels, ", "),
		MODEL_MULTILINGUAL,
	)
}

func (r *Resolver) supportedLanguages() map[string]string {
	if r.languages == nil {
		return DefaultLanguages
	}

	return r.languages.SupportedLanguages()
}

func (r *Resolver) resolveParameters(req SpeechRequest) (Defaults, error) {
	params := r.defaults

	if req.Speed != nil {
		rangeErr := checkRange("speed", *req.Speed, MIN_SPEED, MAX_SPEED)
		if rangeErr != nil {
			return Defaults{}, rangeErr
		}
	}

	if req.Temperature != nil {
		params.Temperature = *req.Temperature
	}

	if req.CFGWeight != nil {
		params.CFGWeight = *req.CFGWeight
	}

	if req.Exaggeration != nil {
		params.Exaggeration = *req.Exaggeration
	}

	checks := []struct {
		name     string
		value    float64
		min, max float64
	}{
		{name: "temperature", value: params.Temperature, min: MIN_TEMPERATURE, max: MAX_TEMPERATURE},
		{name: "cfg_weight", value: params.CFGWeight, min: MIN_CFG_WEIGHT, max: MAX_CFG_WEIGHT},
		{name: "exaggeration", value: params.Exaggeration, min: MIN_EXAGGERATION, max: MAX_EXAGGERATION},
	}

	for _, check := range checks {
		rangeErr := checkRange(check.name, check.value, check.min, check.max)
		if rangeErr != nil {
			return Defaults{}, rangeErr
		}
	}

	return params, nil
}

// resolveReference applies the reference audio priority: an explicit
// audio_prompt, then a named voice, then none.
func (r *Resolver) resolveReference(req SpeechRequest) (string, error) {
	if req.AudioPrompt != "" {
		return req.AudioPrompt, nil
	}

	if req.Voice == "" || req.Voice == DEFAULT_VOICE {
		return "", nil
	}

	if r.voices != nil {
		if path, ok := r.voices.Resolve(req.Voice); ok {
			return path, nil
		}
	}

	return "", r.voiceNotFound(req.Voice)
}

func (r *Resolver) voiceNotFound(voice string) error {
	var available []string
	if r.voices != nil {
		available = r.voices.ListNames()
	}

	if len(available) == 0 {
		return fmt.Errorf("%w: '%s'. No voice samples are available", ErrVoiceNotFound, voice)
	}

	listed := available
	suffix := ""

	if len(available) > maxListedVoices {
		listed = available[:maxListedVoices]
		suffix = " and more..."
	}

	return fmt.Errorf(
		"%w: '%s'. Available voices: %s%s",
		ErrVoiceNotFound,
		voice,
		strings.Join(listed, ", "),
		suffix,
	)
}

func checkRange(name string, value, lower, upper float64) error {
	if value < lower || value > upper {
		return fmt.Errorf("%w: %s must be between %g and %g, got %g", ErrInvalidParameter, name, lower, upper, value)
	}

	return nil
}
