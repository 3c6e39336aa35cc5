package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/pubsub/v2"
	"github.com/rs/zerolog"

	"github.com/bluebikes/stationtraffic/internal/traffic"
)

// Job types accepted in worker messages.
const (
	JobTypeDatasetImport = "dataset_import"
	JobTypeHealthCheck   = "health_check"
)

// ErrUnknownJobType is returned by Dispatch for an unrecognised job type.
var ErrUnknownJobType = errors.New("unknown job type")

// JobMessage is the payload of a worker Pub/Sub message.
type JobMessage struct {
	JobType string `json:"job_type"`

	// Reason is logged with the run, e.g. "new monthly export".
	Reason string `json:"reason,omitempty"`
}

// PubSubHandler handles Pub/Sub messages for the worker.
type PubSubHandler struct {
	client           *pubsub.Client
	subscriber       *pubsub.Subscriber
	subscriptionName string
	importJob        *ImportJob
	logger           zerolog.Logger
}

// PubSubConfig holds configuration for the Pub/Sub handler.
type PubSubConfig struct {
	ProjectID        string
	SubscriptionName string
	ImportJob        *ImportJob
	Logger           zerolog.Logger
}

// NewPubSubHandler creates a new Pub/Sub handler.
func NewPubSubHandler(ctx context.Context, cfg PubSubConfig) (*PubSubHandler, error) {
	client, err := pubsub.NewClient(ctx, cfg.ProjectID)
	if err != nil {
		return nil, fmt.Errorf("creating pubsub client: %w", err)
	}

	subscriber := client.Subscriber(cfg.SubscriptionName)

	// Imports replace the whole dataset; one at a time is enough.
	subscriber.ReceiveSettings.MaxOutstandingMessages = 1
	subscriber.ReceiveSettings.MaxExtension = 15 * time.Minute

	return &PubSubHandler{
		client:           client,
		subscriber:       subscriber,
		subscriptionName: cfg.SubscriptionName,
		importJob:        cfg.ImportJob,
		logger:           cfg.Logger,
	}, nil
}

// Start begins processing Pub/Sub messages. It blocks until ctx is done.
func (h *PubSubHandler) Start(ctx context.Context) error {
	h.logger.Info().
		Str("subscription", h.subscriptionName).
		Msg("starting pubsub handler")

	return h.subscriber.Receive(ctx, func(ctx context.Context, msg *pubsub.Message) {
		h.handleMessage(ctx, msg)
	})
}

// Close closes the Pub/Sub client.
func (h *PubSubHandler) Close() error {
	return h.client.Close()
}

func (h *PubSubHandler) handleMessage(ctx context.Context, msg *pubsub.Message) {
	startTime := time.Now()

	logger := h.logger.With().
		Str("message_id", msg.ID).
		Str("publish_time", msg.PublishTime.Format(time.RFC3339)).
		Logger()

	logger.Debug().Msg("received pubsub message")

	err := Dispatch(ctx, h.importJob, logger, msg.Data)
	switch {
	case err == nil:
		logger.Info().Dur("duration", time.Since(startTime)).Msg("job completed successfully")
		msg.Ack()
	case IsPermanent(err):
		// Redelivery cannot fix these.
		logger.Error().Err(err).Msg("job rejected")
		msg.Ack()
	default:
		logger.Error().Err(err).Msg("job failed")
		msg.Nack()
	}
}

// Dispatch decodes a JobMessage and runs the job it names.
func Dispatch(ctx context.Context, job *ImportJob, logger zerolog.Logger, data []byte) error {
	var m JobMessage
	if err := json.Unmarshal(data, &m); err != nil {
		return &permanentError{err: fmt.Errorf("parse message: %w", err)}
	}

	switch m.JobType {
	case JobTypeDatasetImport:
		logger.Info().Str("reason", m.Reason).Msg("dataset import requested")
		_, err := job.Run(ctx)
		if errors.Is(err, traffic.ErrMalformedData) || errors.Is(err, ErrEmptyDataset) {
			return &permanentError{err: err}
		}
		return err
	case JobTypeHealthCheck:
		return job.Check(ctx)
	default:
		return &permanentError{err: fmt.Errorf("%w: %q", ErrUnknownJobType, m.JobType)}
	}
}

// permanentError marks failures that a retry would repeat.
type permanentError struct {
	err error
}

func (e *permanentError) Error() string { return e.err.Error() }
func (e *permanentError) Unwrap() error { return e.err }

// IsPermanent reports whether err should not be retried.
func IsPermanent(err error) bool {
	var p *permanentError
	return errors.As(err, &p)
}
