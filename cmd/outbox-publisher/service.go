package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"math/rand"
	"net/http"
	"time"

	"github.com/google/uuid"

	hooks "github.com/tonipcv/kr-saas-sub001/internal/webhooks"
	"github.com/tonipcv/kr-saas-sub001/pkg/config"
	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
)

const (
	defaultBatchSize       = 50
	defaultPollMs          = 500
	defaultDeliveryTimeout = 15 * time.Second
	defaultMaxAttempts     = 10
	maxBackoff             = 10 * time.Second
	jitterWindow           = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type outboxRepository interface {
	FetchUnpublishedForPublish(limit, maxAttempts int) ([]models.OutboxEvent, error)
	ActiveEndpoints(clinicID uuid.UUID) ([]models.WebhookEndpoint, error)
	MarkPublished(id uuid.UUID) error
	MarkFailed(id uuid.UUID, err error) error
}

// deliverer pushes one outbox event to one tenant endpoint.
type deliverer interface {
	Deliver(ctx context.Context, endpoint models.WebhookEndpoint, event models.OutboxEvent) error
}

type ServiceParams struct {
	Config     *config.Config
	Logger     *logger.Logger
	Repository outboxRepository
	Deliverer  deliverer
}

// Service drains outbox_events and delivers each one to the active
// webhook endpoints of its clinic, signing every request with the
// endpoint's shared secret.
type Service struct {
	cfg          *config.Config
	logg         *logger.Logger
	repo         outboxRepository
	deliver      deliverer
	batchSize    int
	maxAttempts  int
	pollInterval time.Duration
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Config == nil {
		return nil, errors.New("config is required")
	}
	if params.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if params.Repository == nil {
		return nil, errors.New("outbox repository is required")
	}

	del := params.Deliverer
	if del == nil {
		timeout := params.Config.Outbox.DeliveryTimeout
		if timeout <= 0 {
			timeout = defaultDeliveryTimeout
		}
		del = &httpDeliverer{client: &http.Client{Timeout: timeout}}
	}

	batch := params.Config.Outbox.BatchSize
	if batch <= 0 {
		batch = defaultBatchSize
	}
	pollMs := params.Config.Outbox.PollIntervalMS
	if pollMs <= 0 {
		pollMs = defaultPollMs
	}
	maxAttempts := params.Config.Outbox.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = defaultMaxAttempts
	}

	return &Service{
		cfg:          params.Config,
		logg:         params.Logger,
		repo:         params.Repository,
		deliver:      del,
		batchSize:    batch,
		maxAttempts:  maxAttempts,
		pollInterval: time.Duration(pollMs) * time.Millisecond,
	}, nil
}

func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}

	interval := s.pollInterval
	backoff := interval

	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "outbox publisher context canceled")
			return ctx.Err()
		default:
		}

		processed, err := s.processBatch(ctx)
		if err != nil {
			s.logg.Error(ctx, "outbox publisher batch error", err)
			backoff = nextBackoff(backoff, interval, maxBackoff)
			if err := s.sleep(ctx, withJitter(backoff)); err != nil {
				return err
			}
			continue
		}

		backoff = interval

		if processed {
			continue
		}

		if err := s.sleep(ctx, withJitter(interval)); err != nil {
			return err
		}
	}
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	events, err := s.repo.FetchUnpublishedForPublish(s.batchSize, s.maxAttempts)
	if err != nil {
		return false, err
	}
	if len(events) == 0 {
		return false, nil
	}

	for _, event := range events {
		s.publishOne(ctx, event)
	}
	return true, nil
}

// publishOne delivers one event to every active endpoint of its clinic.
// The event is marked published only after every endpoint accepted it;
// a single failing endpoint reschedules the whole event, so endpoints
// must tolerate redelivery of an event id they already saw.
func (s *Service) publishOne(ctx context.Context, event models.OutboxEvent) {
	fields := s.eventFields(event)
	ctxWithFields := s.logg.WithFields(ctx, fields)

	if event.ClinicID == nil {
		// Nothing to deliver to; settle the row so it stops polling.
		if err := s.repo.MarkPublished(event.ID); err != nil {
			s.logg.Error(ctxWithFields, "failed to settle clinic-less outbox event", err)
		}
		return
	}

	endpoints, err := s.repo.ActiveEndpoints(*event.ClinicID)
	if err != nil {
		s.fail(ctxWithFields, event, fmt.Errorf("loading endpoints: %w", err))
		return
	}
	if len(endpoints) == 0 {
		if err := s.repo.MarkPublished(event.ID); err != nil {
			s.logg.Error(ctxWithFields, "failed to settle outbox event without endpoints", err)
		}
		return
	}

	for _, endpoint := range endpoints {
		if err := s.deliver.Deliver(ctx, endpoint, event); err != nil {
			epCtx := s.logg.WithField(ctxWithFields, "endpoint_url", endpoint.URL)
			s.fail(epCtx, event, err)
			return
		}
	}

	if err := s.repo.MarkPublished(event.ID); err != nil {
		s.logg.Error(ctxWithFields, "failed to mark outbox event published", err)
		return
	}
	s.logg.Info(ctxWithFields, "outbox event delivered")
}

func (s *Service) fail(ctx context.Context, event models.OutboxEvent, cause error) {
	nextAttempt := event.AttemptCount + 1
	ctx = s.logg.WithFields(ctx, map[string]any{
		"attempt_count": nextAttempt,
		"error":         cause.Error(),
	})
	if nextAttempt >= s.maxAttempts {
		s.logg.Warn(ctx, "outbox event exhausted delivery attempts")
	} else {
		s.logg.Warn(ctx, "outbox delivery failed")
	}
	if err := s.repo.MarkFailed(event.ID, cause); err != nil {
		s.logg.Error(ctx, "failed to record outbox delivery failure", err)
	}
}

func (s *Service) eventFields(event models.OutboxEvent) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"attempt_count":  event.AttemptCount,
	}
	if event.ClinicID != nil {
		fields["clinic_id"] = event.ClinicID.String()
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

func (s *Service) sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

func nextBackoff(current, base, max time.Duration) time.Duration {
	if current <= 0 {
		current = base
	}
	next := current * 2
	if next > max {
		return max
	}
	return next
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	jitter := time.Duration(jitterSource.Int63n(int64(jitterWindow)))
	return d + jitter
}

type httpDeliverer struct {
	client *http.Client
}

func (d *httpDeliverer) Deliver(ctx context.Context, endpoint models.WebhookEndpoint, event models.OutboxEvent) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint.URL, bytes.NewReader(event.Payload))
	if err != nil {
		return fmt.Errorf("building request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-Webhook-Id", event.ID.String())
	req.Header.Set("X-Webhook-Event", event.EventType.String())
	req.Header.Set("X-Hub-Signature-256", "sha256="+hooks.Sign(endpoint.Secret, event.Payload))

	resp, err := d.client.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", endpoint.URL, err)
	}
	defer resp.Body.Close()
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return fmt.Errorf("endpoint %s returned status %d", endpoint.URL, resp.StatusCode)
	}
	return nil
}
