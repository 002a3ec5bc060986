package subscriptions

import (
	"context"
	"time"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
)

// Activator turns a confirmed paid transaction into an ACTIVE
// subscription with a computed billing period.
type Activator struct {
	repo Repository
	logg *logger.Logger
	now  func() time.Time
}

type ActivatorParams struct {
	Repo   Repository
	Logger *logger.Logger
	Now    func() time.Time
}

func NewActivator(params ActivatorParams) (*Activator, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "subscription repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &Activator{repo: params.Repo, logg: params.Logger, now: now}, nil
}

// Activate locates the subscription by provider subscription id or by
// the denormalized order id and activates it for one billing period.
// Idempotent: already-ACTIVE rows are never matched.
func (a *Activator) Activate(ctx context.Context, provider enums.Provider, subscriptionRef, orderID string) (bool, error) {
	sub, err := a.repo.FindActivatable(ctx, provider, subscriptionRef, orderID)
	if err != nil {
		return false, err
	}
	if sub == nil {
		return false, nil
	}

	unit, count, err := a.repo.ResolveInterval(ctx, sub)
	if err != nil {
		return false, err
	}

	periodStart := a.now()
	periodEnd := AddInterval(periodStart, unit, count)

	applied, err := a.repo.Activate(ctx, sub.ID, periodStart, periodEnd)
	if err != nil {
		return false, err
	}
	if applied {
		fields := map[string]any{
			"subscription_id": sub.ID.String(),
			"period_end":      periodEnd,
		}
		a.logg.Info(a.logg.WithFields(ctx, fields), "subscription activated")
	}
	return applied, nil
}

// AddInterval advances t by count billing units.
func AddInterval(t time.Time, unit enums.IntervalUnit, count int) time.Time {
	if count <= 0 {
		count = 1
	}
	switch unit {
	case enums.IntervalUnitDay:
		return t.AddDate(0, 0, count)
	case enums.IntervalUnitWeek:
		return t.AddDate(0, 0, 7*count)
	case enums.IntervalUnitYear:
		return t.AddDate(count, 0, 0)
	default:
		return t.AddDate(0, count, 0)
	}
}
