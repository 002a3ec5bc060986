package webhooks

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/internal/reconciler"
	"github.com/tonipcv/kr-saas-sub001/internal/webhookevents"
	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
	"github.com/tonipcv/kr-saas-sub001/pkg/metrics"
)

// Parser turns a raw provider delivery into the provider-agnostic event.
type Parser func(body []byte, contentType string) (reconciler.Event, error)

// Ack is the body returned to the provider. Providers only care that the
// delivery was accepted; will_retry is informational.
type Ack struct {
	Received  bool `json:"received"`
	WillRetry bool `json:"will_retry,omitempty"`
	Duplicate bool `json:"duplicate,omitempty"`
}

// IngestorParams wires the shared webhook ingestion pipeline.
type IngestorParams struct {
	Events     webhookevents.Repository
	Reconciler *reconciler.Service
	Logger     *logger.Logger
	Metrics    *metrics.WebhookMetrics
	// Async records the delivery and parks it for the retry sweeper
	// instead of processing inline.
	Async bool
}

// Ingestor is the processing boundary between a provider HTTP delivery
// and the reconciler. Once the raw delivery is recorded, nothing past
// that point is allowed to surface as a non-2xx response; failures are
// parked on the event row for the sweeper.
type Ingestor struct {
	events webhookevents.Repository
	rec    *reconciler.Service
	logg   *logger.Logger
	mtr    *metrics.WebhookMetrics
	async  bool
	now    func() time.Time
}

func NewIngestor(params IngestorParams) (*Ingestor, error) {
	if params.Events == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "webhook event repo required")
	}
	if params.Reconciler == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "reconciler required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Ingestor{
		events: params.Events,
		rec:    params.Reconciler,
		logg:   params.Logger,
		mtr:    params.Metrics,
		async:  params.Async,
		now:    time.Now,
	}, nil
}

// Ingest records the delivery and runs it through the reconciler. The
// returned Ack is always safe to answer with HTTP 200; the error return
// is reserved for failures before the delivery was made durable.
func (i *Ingestor) Ingest(ctx context.Context, parser Parser, body []byte, contentType string) (Ack, error) {
	started := i.now()

	ev, parseErr := parser(body, contentType)
	if parseErr != nil {
		// Malformed payloads are still acknowledged; the provider will
		// not produce a better body by retrying.
		i.logg.Warn(ctx, fmt.Sprintf("webhook body rejected by parser: %v", parseErr))
		return Ack{Received: true}, nil
	}
	ctx = i.logg.WithProvider(ctx, ev.Provider.String())
	i.mtr.IncReceived(ev.Provider.String())

	if ev.HookID == "" {
		// Deliveries without an id still need an idempotency key.
		sum := sha256.Sum256(body)
		ev.HookID = "raw_" + hex.EncodeToString(sum[:8])
	}

	result, row, err := i.events.Record(ctx, webhookevents.RecordParams{
		Provider:  ev.Provider,
		HookID:    ev.HookID,
		EventID:   ev.EventID,
		EventType: ev.Type,
		RawStatus: ev.RawStatus,
		Raw:       ev.Raw,
	})
	if err != nil {
		// The one failure that may bubble up: the delivery was never
		// made durable, so the provider has to redeliver.
		return Ack{}, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "failed to record webhook delivery")
	}

	ack := Ack{Received: true}
	if result == webhookevents.RecordDuplicate {
		i.mtr.IncDuplicate(ev.Provider.String())
		ack.Duplicate = true
		if row.ProcessedAt != nil {
			return ack, nil
		}
		// Recorded earlier but never finished; fall through and
		// reprocess. The reconciler is idempotent under replay.
	}

	if i.async {
		if err := i.events.ScheduleImmediate(ctx, row.ID); err != nil {
			i.logg.Error(ctx, "failed to schedule webhook for async processing", err)
		}
		ack.WillRetry = true
		return ack, nil
	}

	if failed := i.process(ctx, row.ID, ev); failed {
		ack.WillRetry = true
	}
	i.mtr.ObserveDuration(ev.Provider.String(), i.now().Sub(started))
	return ack, nil
}

// process runs the reconciler and records the outcome on the event row.
// Returns true when the delivery was parked for retry.
func (i *Ingestor) process(ctx context.Context, eventID uuid.UUID, ev reconciler.Event) (failed bool) {
	defer func() {
		if r := recover(); r != nil {
			err := fmt.Errorf("panic processing webhook: %v", r)
			i.logg.Error(ctx, "webhook processing panicked", err)
			i.park(ctx, eventID, ev.Provider.String(), err)
			failed = true
		}
	}()

	outcome, err := i.rec.Process(ctx, ev)
	if err != nil {
		i.logg.Error(ctx, "webhook processing failed", err)
		i.park(ctx, eventID, ev.Provider.String(), err)
		return true
	}

	if outcome.Applied {
		i.mtr.IncTransition(ev.Provider.String(), outcome.Status.String())
	} else {
		i.mtr.IncNoop(ev.Provider.String())
	}

	if err := i.events.MarkProcessed(ctx, eventID); err != nil {
		i.logg.Error(ctx, "failed to mark webhook processed", err)
	}
	i.attach(ctx, eventID, ev)
	return false
}

func (i *Ingestor) park(ctx context.Context, eventID uuid.UUID, provider string, cause error) {
	i.mtr.IncFailure(provider)
	// First failure retries immediately; the sweeper applies backoff on
	// subsequent attempts.
	if err := i.events.MarkFailed(ctx, eventID, cause, i.now()); err != nil {
		i.logg.Error(ctx, "failed to park webhook for retry", err)
	}
}

func (i *Ingestor) attach(ctx context.Context, eventID uuid.UUID, ev reconciler.Event) {
	var orderID, chargeID *string
	if ev.OrderID != "" {
		orderID = &ev.OrderID
	}
	if ev.ChargeID != "" {
		chargeID = &ev.ChargeID
	}
	if orderID == nil && chargeID == nil {
		return
	}
	if err := i.events.AttachResources(ctx, eventID, orderID, chargeID); err != nil {
		i.logg.Error(ctx, "failed to attach webhook resources", err)
	}
}
