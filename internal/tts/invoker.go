package tts

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-gateway/internal/tts/audio"
)

// DEFAULT_WORKERS bounds concurrent model invocations when no count is configured.
const DEFAULT_WORKERS = 1

// GenerateParams are the inputs handed to the model for one utterance.
type GenerateParams struct {
	Text               string
	Language           string
	ReferenceAudioPath string
	Temperature        float64
	GuidanceWeight     float64
	Exaggeration       float64
}

// Model is the speech model capability.
type Model interface {
	Name() string
	Device() string
	// Load prepares the model. It is called until it succeeds once.
	Load(ctx context.Context) error
	SupportedLanguages() map[string]string
	Generate(ctx context.Context, params GenerateParams) (audio.Waveform, error)
}

// Invoker guards model initialization and runs model calls on a bounded pool.
type Invoker struct {
	model      Model
	log        *logger.Logger
	initMutex  sync.Mutex
	ready      atomic.Bool
	languages  atomic.Pointer[map[string]string]
	workerPool chan struct{}
}

type generateResult struct {
	waveform audio.Waveform
	err      error
}

// NewInvoker creates an Invoker running at most workers model calls at once.
func NewInvoker(model Model, workers int, log *logger.Logger) *Invoker {
	if workers <= 0 {
		workers = DEFAULT_WORKERS
	}

	return &Invoker{
		model:      model,
		log:        log,
		workerPool: make(chan struct{}, workers),
	}
}

// Initialize loads the model once. Concurrent callers wait for the first
// attempt; a failed attempt leaves the invoker uninitialized so that a later
// call can retry.
func (i *Invoker) Initialize(ctx context.Context) error {
	if i.ready.Load() {
		return nil
	}

	i.initMutex.Lock()
	defer i.initMutex.Unlock()

	if i.ready.Load() {
		return nil
	}

	start := time.Now()
	i.log.Info("Loading model %s on device %s", i.model.Name(), i.model.Device())

	err := i.model.Load(ctx)
	if err != nil {
		i.log.Error("Failed to load model %s: %v", i.model.Name(), err)

		return fmt.Errorf("failed to load model %s: %w", i.model.Name(), err)
	}

	languages := maps.Clone(i.model.SupportedLanguages())
	if len(languages) == 0 {
		languages = maps.Clone(DefaultLanguages)
	}

	i.languages.Store(&languages)
	i.ready.Store(true)

	i.log.System(
		"Model %s loaded in %s (%d languages)",
		i.model.Name(),
		time.Since(start).Round(time.Millisecond),
		len(languages),
	)

	return nil
}

// Ready reports whether Initialize has succeeded.
func (i *Invoker) Ready() bool {
	return i.ready.Load()
}

// ModelName returns the name of the underlying model.
func (i *Invoker) ModelName() string {
	return i.model.Name()
}

// Device returns the device the model runs on.
func (i *Invoker) Device() string {
	return i.model.Device()
}

// SupportedLanguages returns the model's language table, or DefaultLanguages
// before initialization.
func (i *Invoker) SupportedLanguages() map[string]string {
	if languages := i.languages.Load(); languages != nil {
		return *languages
	}

	return DefaultLanguages
}

// Invoke runs one synthesis. A request that ends while waiting for a worker
// slot never reaches the model. Once the slot is held the model call is
// detached from ctx: when ctx ends first, Invoke returns ctx.Err() and the
// inference completes in the background.
func (i *Invoker) Invoke(ctx context.Context, req SynthesisRequest) (audio.Waveform, error) {
	if !i.Ready() {
		return audio.Waveform{}, ErrModelNotReady
	}

	if req.Language != "" {
		if _, ok := i.SupportedLanguages()[req.Language]; !ok {
			return audio.Waveform{}, fmt.Errorf(
				"%w: %s. Supported: %s",
				ErrUnsupportedLanguage,
				req.Language,
				strings.Join(LanguageCodes(i.SupportedLanguages()), ", "),
			)
		}
	}

	params := GenerateParams{
		Text:               req.Text,
		Language:           req.Language,
		ReferenceAudioPath: req.ReferenceAudioPath,
		Temperature:        req.Temperature,
		GuidanceWeight:     req.GuidanceWeight,
		Exaggeration:       req.Exaggeration,
	}

	select {
	case i.workerPool <- struct{}{}:
	case <-ctx.Done():
		return audio.Waveform{}, fmt.Errorf("synthesis abandoned while queued: %w", ctx.Err())
	}

	resultChan := make(chan generateResult, 1)

	go i.generate(context.WithoutCancel(ctx), params, resultChan)

	select {
	case <-ctx.Done():
		return audio.Waveform{}, fmt.Errorf("synthesis abandoned: %w", ctx.Err())
	case result := <-resultChan:
		return result.waveform, result.err
	}
}

// generate calls the model on an already acquired worker slot, releases the
// slot and reports exactly one result on resultChan.
func (i *Invoker) generate(ctx context.Context, params GenerateParams, resultChan chan<- generateResult) {
	defer func() { <-i.workerPool }()

	defer func() {
		if recovered := recover(); recovered != nil {
			i.log.Error("Model %s panicked: %v", i.model.Name(), recovered)
			resultChan <- generateResult{err: fmt.Errorf("%w: %w", ErrModelFailure, newPanicError("generation", recovered))}
		}
	}()

	waveform, err := i.model.Generate(ctx, params)
	if err != nil {
		resultChan <- generateResult{err: fmt.Errorf("%w: %w", ErrModelFailure, err)}

		return
	}

	if waveform.Len() == 0 {
		resultChan <- generateResult{err: fmt.Errorf("%w: model returned an empty waveform", ErrModelFailure)}

		return
	}

	resultChan <- generateResult{waveform: waveform}
}
