// main package for the speech gateway service
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/book-expert/logger"
	"github.com/book-expert/speech-gateway/internal/config"
	"github.com/book-expert/speech-gateway/internal/metrics"
	"github.com/book-expert/speech-gateway/internal/objectstore"
	"github.com/book-expert/speech-gateway/internal/server"
	"github.com/book-expert/speech-gateway/internal/tts"
	"github.com/book-expert/speech-gateway/internal/tts/audio"
	"github.com/book-expert/speech-gateway/internal/tts/text"
	"github.com/book-expert/speech-gateway/internal/voices"
	"github.com/book-expert/speech-gateway/internal/worker"
	"github.com/dustin/go-humanize"
	"github.com/nats-io/nats.go"
	"golang.org/x/sync/errgroup"
)

const (
	bootstrapLogFile = "speech-gateway-bootstrap.log"
	serviceLogFile   = "speech-gateway.log"
)

var errUnknownBackend = errors.New("unknown model backend")

func setupLogger(logPath, file string) (*logger.Logger, error) {
	log, err := logger.New(logPath, file)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger in %s: %w", logPath, err)
	}

	return log, nil
}

func run() error {
	bootstrapLog, err := setupLogger(os.TempDir(), bootstrapLogFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to create bootstrap logger: %v\n", err)

		return err
	}

	bootstrapLog.Info("Bootstrap logger created.")

	cfg, err := config.Load(bootstrapLog)
	if err != nil {
		bootstrapLog.Error("Failed to load configuration: %v", err)

		return fmt.Errorf("failed to load configuration: %w", err)
	}

	bootstrapLog.Info("Configuration loaded successfully.")

	log, err := setupLogger(cfg.Paths.BaseLogsDir, serviceLogFile)
	if err != nil {
		bootstrapLog.Error("Failed to create final logger: %v", err)

		return fmt.Errorf("failed to create final logger: %w", err)
	}

	defer func() {
		closeErr := log.Close()
		if closeErr != nil {
			fmt.Fprintf(os.Stderr, "error closing final logger: %v\n", closeErr)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return serve(ctx, cfg, log)
}

func serve(ctx context.Context, cfg *config.Config, log *logger.Logger) error {
	model, err := newModel(cfg, log)
	if err != nil {
		return err
	}

	voiceCache := voices.New(
		cfg.Voices.Dir,
		config.Seconds(cfg.Voices.CacheTTLSeconds),
		log,
		voices.WithExtension(cfg.Voices.Extension),
	)
	voiceCache.Scan()
	logVoiceSamples(voiceCache, log)

	recorder := metrics.New()

	service, err := newService(cfg, model, voiceCache, recorder, log)
	if err != nil {
		return err
	}

	serverOpts := []server.Option{server.WithObserver(recorder)}
	if cfg.Server.MetricsEnabled {
		serverOpts = append(serverOpts, server.WithMetrics(recorder.Handler()))
	}

	httpServer := server.New(server.Config{
		Host:            cfg.Server.Host,
		Port:            cfg.Server.Port,
		ReadTimeout:     config.Seconds(cfg.Server.ReadTimeoutSeconds),
		WriteTimeout:    config.Seconds(cfg.Server.WriteTimeoutSeconds),
		ShutdownTimeout: config.Seconds(cfg.Server.ShutdownTimeoutSeconds),
		MaxBodyBytes:    cfg.Server.MaxBodyBytes,
	}, service, log, serverOpts...)

	var speechWorker *worker.NatsWorker

	if cfg.NATS.Enabled {
		natsConnection, err := nats.Connect(cfg.NATS.URL, nats.Name("speech-gateway"))
		if err != nil {
			return fmt.Errorf("failed to connect to NATS at %s: %w", cfg.NATS.URL, err)
		}
		defer natsConnection.Close()

		speechWorker, err = newWorker(cfg, natsConnection, service, log)
		if err != nil {
			return err
		}
	}

	group, groupCtx := errgroup.WithContext(ctx)

	group.Go(func() error {
		initializeWithRetry(groupCtx, service, config.Seconds(cfg.TTS.InitRetrySeconds), log)

		return nil
	})

	group.Go(func() error {
		return httpServer.Run(groupCtx)
	})

	if speechWorker != nil {
		group.Go(func() error {
			return speechWorker.Run(groupCtx)
		})
	}

	log.System(
		"Speech gateway started: model=%s backend=%s voices=%s nats=%t",
		cfg.TTS.ModelName,
		cfg.TTS.Backend,
		cfg.Voices.Dir,
		cfg.NATS.Enabled,
	)

	err = group.Wait()
	if err != nil {
		log.Error("Speech gateway stopped with error: %v", err)

		return err
	}

	log.System("Speech gateway stopped.")

	return nil
}

// logVoiceSamples reports each discovered voice sample and returns the count.
func logVoiceSamples(cache *voices.Cache, log *logger.Logger) int {
	entries := cache.Entries()
	if len(entries) == 0 {
		log.Warn("No voice samples in %s; only the default voice is available", cache.Dir())

		return 0
	}

	for _, entry := range entries {
		log.Info("Voice %s: %s (%s)", entry.Name, entry.Filename, humanize.IBytes(uint64(entry.SizeBytes)))
	}

	return len(entries)
}

func newModel(cfg *config.Config, log *logger.Logger) (tts.Model, error) {
	switch cfg.TTS.Backend {
	case config.BACKEND_HTTP:
		return tts.NewHTTPModel(
			cfg.TTS.ServiceURL,
			cfg.TTS.ModelName,
			cfg.TTS.Device,
			config.Seconds(cfg.TTS.TimeoutSeconds),
		), nil
	case config.BACKEND_COMMAND:
		return tts.NewCommandModel(
			cfg.TTS.BinaryPath,
			cfg.TTS.ModelPath,
			cfg.TTS.ModelName,
			cfg.TTS.Device,
			log,
		), nil
	default:
		return nil, fmt.Errorf("%w: %q", errUnknownBackend, cfg.TTS.Backend)
	}
}

func newService(
	cfg *config.Config,
	model tts.Model,
	voiceCache *voices.Cache,
	recorder tts.Recorder,
	log *logger.Logger,
) (*tts.Service, error) {
	cleaner, err := audio.NewCleaner(audio.CleanConfig{
		Silence: audio.SilenceConfig{
			MinSilence:  config.Milliseconds(cfg.Audio.MinSilenceMs),
			ThresholdDB: cfg.Audio.SilenceThresholdDB,
			SeekStep:    audio.DEFAULT_SEEK_STEP,
			KeepSilence: config.Milliseconds(cfg.Audio.KeepSilenceMs),
		},
		ShortTextThreshold: cfg.Audio.ShortTextThreshold,
	})
	if err != nil {
		return nil, fmt.Errorf("invalid audio configuration: %w", err)
	}

	transcoder := audio.NewFFmpegTranscoder(cfg.TTS.FFmpegPath)
	if !transcoder.Available() {
		log.Warn("ffmpeg not found, mp3/opus/aac responses will carry WAV data")
	}

	invoker := tts.NewInvoker(model, cfg.TTS.Workers, log)

	var resolverOpts []tts.ResolverOption
	if cfg.TTS.NormalizeText {
		resolverOpts = append(resolverOpts, tts.WithNormalizer(text.NewNormalizer()))
	}

	resolver := tts.NewResolver(voiceCache, invoker, tts.Defaults{
		Temperature:  cfg.TTS.Temperature,
		CFGWeight:    cfg.TTS.CFGWeight,
		Exaggeration: cfg.TTS.Exaggeration,
	}, resolverOpts...)

	return tts.NewService(
		resolver,
		invoker,
		cleaner,
		audio.NewEncoder(transcoder, log),
		voiceCache,
		log,
		tts.WithRecorder(recorder),
	), nil
}

func newWorker(
	cfg *config.Config,
	natsConnection *nats.Conn,
	service *tts.Service,
	log *logger.Logger,
) (*worker.NatsWorker, error) {
	jetstreamContext, err := natsConnection.JetStream()
	if err != nil {
		return nil, fmt.Errorf("failed to get JetStream context: %w", err)
	}

	store, err := objectstore.New(jetstreamContext, cfg.NATS.AudioObjectStoreBucket)
	if err != nil {
		return nil, fmt.Errorf("failed to open audio object store: %w", err)
	}

	return worker.NewNatsWorker(natsConnection, worker.Config{
		Subject:        cfg.NATS.SpeechRequestedSubject,
		Queue:          cfg.NATS.QueueGroup,
		CreatedSubject: cfg.NATS.SpeechCreatedSubject,
		FailedSubject:  cfg.NATS.SpeechFailedSubject,
		Timeout:        config.Seconds(cfg.NATS.JobTimeoutSeconds),
	}, store, service, log)
}

// initializeWithRetry loads the model, retrying until it succeeds or ctx ends.
// Requests are answered with 503 until then.
func initializeWithRetry(ctx context.Context, service *tts.Service, interval time.Duration, log *logger.Logger) {
	if interval <= 0 {
		interval = 10 * time.Second
	}

	for {
		err := service.Initialize(ctx)
		if err == nil {
			return
		}

		log.Warn("Model initialization failed, retrying in %s: %v", interval, err)

		select {
		case <-ctx.Done():
			return
		case <-time.After(interval):
		}
	}
}

func main() {
	err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Service exited with error: %v\n", err)
		os.Exit(1)
	}
}
