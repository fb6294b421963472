// Package worker provides a NATS worker that processes speech jobs.
package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/book-expert/events"
	"github.com/book-expert/logger"
	"github.com/book-expert/speech-gateway/internal/core"
	"github.com/book-expert/speech-gateway/internal/tts"
	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
)

// Defaults for Config.
const (
	DEFAULT_SUBJECT = core.EVENT_SPEECH_REQUESTED
	DEFAULT_QUEUE   = "speech-workers"
	DEFAULT_TIMEOUT = 5 * time.Minute
)

var (
	// ErrSubjectEmpty indicates that the worker has no subject to listen on.
	ErrSubjectEmpty = errors.New("worker subject cannot be empty")
	// ErrMalformedEvent indicates that a message could not be decoded.
	ErrMalformedEvent = errors.New("malformed speech request event")
)

// Config holds the subjects and limits of a worker.
type Config struct {
	// Subject receives SpeechRequestedEvent messages.
	Subject string
	// Queue is the queue group; empty subscribes every worker to every message.
	Queue string
	// CreatedSubject and FailedSubject receive results of messages that were
	// published without a reply subject.
	CreatedSubject string
	FailedSubject  string
	// Timeout bounds one job, upload included.
	Timeout time.Duration
}

// DefaultConfig returns the compiled-in worker settings.
func DefaultConfig() Config {
	return Config{
		Subject:        DEFAULT_SUBJECT,
		Queue:          DEFAULT_QUEUE,
		CreatedSubject: core.EVENT_SPEECH_CREATED,
		FailedSubject:  core.EVENT_SPEECH_FAILED,
		Timeout:        DEFAULT_TIMEOUT,
	}
}

// NatsWorker listens for speech jobs on a NATS subject and processes them.
type NatsWorker struct {
	natsConnection *nats.Conn
	config         Config
	store          core.ObjectStore
	synthesizer    core.Synthesizer
	log            *logger.Logger
}

// NewNatsWorker creates a new instance of a NATS worker.
func NewNatsWorker(
	natsConnection *nats.Conn,
	cfg Config,
	store core.ObjectStore,
	synthesizer core.Synthesizer,
	log *logger.Logger,
) (*NatsWorker, error) {
	if cfg.Subject == "" {
		return nil, ErrSubjectEmpty
	}

	if cfg.Timeout <= 0 {
		cfg.Timeout = DEFAULT_TIMEOUT
	}

	return &NatsWorker{
		natsConnection: natsConnection,
		config:         cfg,
		store:          store,
		synthesizer:    synthesizer,
		log:            log,
	}, nil
}

// Run starts the worker and blocks until ctx is canceled, then drains the
// subscription.
func (w *NatsWorker) Run(ctx context.Context) error {
	var (
		sub *nats.Subscription
		err error
	)

	handler := func(msg *nats.Msg) {
		w.handleMessage(ctx, msg)
	}

	if w.config.Queue != "" {
		sub, err = w.natsConnection.QueueSubscribe(w.config.Subject, w.config.Queue, handler)
	} else {
		sub, err = w.natsConnection.Subscribe(w.config.Subject, handler)
	}

	if err != nil {
		return fmt.Errorf("failed to subscribe to subject %s: %w", w.config.Subject, err)
	}

	w.log.System("Speech worker listening on %s (queue %q)", w.config.Subject, w.config.Queue)

	<-ctx.Done()

	drainErr := sub.Drain()
	if drainErr != nil {
		return fmt.Errorf("failed to drain subscription: %w", drainErr)
	}

	return nil
}

func (w *NatsWorker) handleMessage(parent context.Context, msg *nats.Msg) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), w.config.Timeout)
	defer cancel()

	event, err := w.parseEvent(msg)
	if err != nil {
		w.log.Error("Failed to parse speech request: %v", err)
		w.publishFailure(msg, events.EventHeader{}, err)

		return
	}

	created, err := w.processSpeechJob(ctx, event)
	if err != nil {
		w.log.Error("Failed to process speech job for workflow %s: %v", event.Header.WorkflowID, err)
		w.publishFailure(msg, event.Header, err)

		return
	}

	w.log.Info(
		"Speech job for workflow %s stored as %s (%d bytes)",
		event.Header.WorkflowID,
		created.AudioKey,
		created.SizeBytes,
	)

	err = w.publishReplyEvent(msg, core.EVENT_SPEECH_CREATED, w.config.CreatedSubject, created)
	if err != nil {
		w.log.Error("Failed to publish reply event for workflow %s: %v", event.Header.WorkflowID, err)
	}
}

// processSpeechJob synthesizes the requested audio and uploads it.
func (w *NatsWorker) processSpeechJob(
	ctx context.Context,
	event *core.SpeechRequestedEvent,
) (*core.SpeechCreatedEvent, error) {
	speech, err := w.synthesizer.Synthesize(ctx, event.Request)
	if err != nil {
		return nil, err
	}

	audioKey := uuid.NewString() + "." + string(speech.Format)

	err = w.store.Upload(ctx, audioKey, speech.Audio, speech.ContentType)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to upload audio data for key '%s': %w", tts.ErrInternal, audioKey, err)
	}

	return &core.SpeechCreatedEvent{
		Header:      replyHeader(event.Header),
		AudioKey:    audioKey,
		ContentType: speech.ContentType,
		SizeBytes:   len(speech.Audio),
		DurationMs:  speech.Duration.Milliseconds(),
	}, nil
}

func (w *NatsWorker) publishFailure(msg *nats.Msg, header events.EventHeader, cause error) {
	failed := &core.SpeechFailedEvent{
		Header: replyHeader(header),
		Kind:   string(tts.KindOf(cause)),
		Detail: cause.Error(),
	}

	err := w.publishReplyEvent(msg, core.EVENT_SPEECH_FAILED, w.config.FailedSubject, failed)
	if err != nil {
		w.log.Error("Failed to publish failure event for workflow %s: %v", header.WorkflowID, err)
	}
}

// publishReplyEvent responds to msg, or publishes to subject when msg carries
// no reply subject.
func (w *NatsWorker) publishReplyEvent(msg *nats.Msg, eventType, subject string, replyEvent any) error {
	replyData, err := json.Marshal(replyEvent)
	if err != nil {
		return fmt.Errorf("failed to marshal reply event: %w", err)
	}

	target := msg.Reply
	if target == "" {
		target = subject
	}

	if target == "" {
		return nil
	}

	reply := nats.NewMsg(target)
	reply.Header.Set(core.EVENT_TYPE_HEADER, eventType)
	reply.Data = replyData

	err = w.natsConnection.PublishMsg(reply)
	if err != nil {
		return fmt.Errorf("failed to publish reply event: %w", err)
	}

	return nil
}

func (w *NatsWorker) parseEvent(msg *nats.Msg) (*core.SpeechRequestedEvent, error) {
	var event core.SpeechRequestedEvent

	err := json.Unmarshal(msg.Data, &event)
	if err != nil {
		return nil, fmt.Errorf("%w: %w: %w", tts.ErrInvalidParameter, ErrMalformedEvent, err)
	}

	return &event, nil
}

// replyHeader keeps the workflow and identity fields and stamps a new event.
func replyHeader(request events.EventHeader) events.EventHeader {
	return events.EventHeader{
		Timestamp:  time.Now(),
		WorkflowID: request.WorkflowID,
		EventID:    uuid.NewString(),
		UserID:     request.UserID,
		TenantID:   request.TenantID,
	}
}
