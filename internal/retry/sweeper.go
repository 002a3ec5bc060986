package retry

import (
	"context"
	"fmt"
	"time"

	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	"github.com/tonipcv/kr-saas-sub001/internal/webhookevents"
	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
	"github.com/tonipcv/kr-saas-sub001/pkg/metrics"
)

const jobName = "webhook_retry_sweep"

// Parser re-parses a stored raw delivery into the reconciler event. The
// sweeper keeps one per provider.
type Parser func(body []byte, contentType string) (reconciler.Event, error)

type SweeperParams struct {
	Events      webhookevents.Repository
	Reconciler  *reconciler.Service
	Parsers     map[enums.Provider]Parser
	Logger      *logger.Logger
	Metrics     *metrics.JobMetrics
	Interval    time.Duration
	BatchSize   int
	MaxAttempts int
	BackoffBase time.Duration
	BackoffCap  time.Duration
}

// Sweeper drains the webhook event log's retry queue: deliveries that
// were recorded but whose processing failed, or that were parked by the
// async ingestion mode.
type Sweeper struct {
	events      webhookevents.Repository
	rec         *reconciler.Service
	parsers     map[enums.Provider]Parser
	logg        *logger.Logger
	mtr         *metrics.JobMetrics
	interval    time.Duration
	batchSize   int
	maxAttempts int
	backoffBase time.Duration
	backoffCap  time.Duration
	now         func() time.Time
}

func NewSweeper(params SweeperParams) (*Sweeper, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook event repo required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if len(params.Parsers) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "at least one provider parser required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	s := &Sweeper{
		events:      params.Events,
		rec:         params.Reconciler,
		parsers:     params.Parsers,
		logg:        params.Logger,
		mtr:         params.Metrics,
		interval:    params.Interval,
		batchSize:   params.BatchSize,
		maxAttempts: params.MaxAttempts,
		backoffBase: params.BackoffBase,
		backoffCap:  params.BackoffCap,
		now:         time.Now,
	}
	if s.interval <= 0 {
		s.interval = 30 * time.Second
	}
	if s.batchSize <= 0 {
		s.batchSize = 50
	}
	if s.maxAttempts <= 0 {
		s.maxAttempts = 10
	}
	if s.backoffBase <= 0 {
		s.backoffBase = time.Minute
	}
	if s.backoffCap <= 0 {
		s.backoffCap = 6 * time.Hour
	}
	return s, nil
}

// Run sweeps on the configured interval until the context is canceled.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.logg.Info(ctx, fmt.Sprintf("webhook retry sweeper running every %s", s.interval))
	for {
		select {
		case <-ctx.Done():
			s.logg.Info(ctx, "webhook retry sweeper stopping")
			return
		case <-ticker.C:
			if _, err := s.SweepOnce(ctx); err != nil {
				s.logg.Error(ctx, "webhook retry sweep failed", err)
			}
		}
	}
}

// SweepOnce processes one batch of due deliveries and reports how many
// were attempted.
func (s *Sweeper) SweepOnce(ctx context.Context) (int, error) {
	started := s.now()
	defer func() {
		s.mtr.ObserveDuration(jobName, s.now().Sub(started))
	}()

	due, err := s.events.DueForRetry(ctx, s.batchSize, s.maxAttempts)
	if err != nil {
		s.mtr.IncFailure(jobName)
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to list due webhook events")
	}

	for i := range due {
		s.retryOne(ctx, &due[i])
	}
	s.mtr.IncSuccess(jobName)
	return len(due), nil
}

func (s *Sweeper) retryOne(ctx context.Context, row *models.WebhookEvent) {
	ctx = s.logg.WithProvider(ctx, row.Provider.String())
	ctx = s.logg.WithField(ctx, "webhook_event_id", row.ID.String())

	parser, ok := s.parsers[row.Provider]
	if !ok {
		// No parser means the event can never succeed; park it at the
		// attempt ceiling so it stops coming back.
		s.fail(ctx, row, fmt.Errorf("no parser registered for provider %s", row.Provider))
		return
	}

	ev, err := parser(row.Raw, "application/json")
	if err != nil {
		s.fail(ctx, row, err)
		return
	}

	outcome, err := s.rec.Process(ctx, ev)
	if err != nil {
		s.fail(ctx, row, err)
		return
	}

	if err := s.events.MarkProcessed(ctx, row.ID); err != nil {
		s.logg.Error(ctx, "failed to mark retried webhook processed", err)
		return
	}
	s.logg.Info(ctx, fmt.Sprintf("webhook retry succeeded on attempt %d (applied=%t)", row.AttemptCount+1, outcome.Applied))
}

// fail reschedules the event with exponential backoff: base times 5 per
// prior attempt, capped.
func (s *Sweeper) fail(ctx context.Context, row *models.WebhookEvent, cause error) {
	next := s.now().Add(s.backoff(row.AttemptCount))
	s.logg.Warn(ctx, fmt.Sprintf("webhook retry attempt %d failed, next at %s: %v", row.AttemptCount+1, next.Format(time.RFC3339), cause))
	if err := s.events.MarkFailed(ctx, row.ID, cause, next); err != nil {
		s.logg.Error(ctx, "failed to reschedule webhook event", err)
	}
}

func (s *Sweeper) backoff(attempts int) time.Duration {
	d := s.backoffBase
	for i := 0; i < attempts; i++ {
		d *= 5
		if d >= s.backoffCap {
			return s.backoffCap
		}
	}
	if d > s.backoffCap {
		d = s.backoffCap
	}
	return d
}
