package reconciler

import (
	"context"

	"gorm.io/gorm"

	"github.com/tonipcv/kr-saas-sub001/internal/payments/status"
	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
	pkgerrors "github.com/tonipcv/kr-saas-sub001/pkg/errors"
	"github.com/tonipcv/kr-saas-sub001/pkg/logger"
)

// Transition describes an applied status change handed to the dispatcher.
type Transition struct {
	Transaction *models.PaymentTransaction
	Event       Event
	NewStatus   enums.TransactionStatus
}

// SubscriptionActivator activates the subscription linked to a paid
// transaction. Returned bool reports whether an activation happened.
type SubscriptionActivator interface {
	Activate(ctx context.Context, provider enums.Provider, subscriptionRef, orderID string) (bool, error)
}

// SideEffectDispatcher runs the post-commit consequences of a transition.
// Implementations must contain their own failures.
type SideEffectDispatcher interface {
	Dispatch(ctx context.Context, transition Transition)
}

// PaidVerifier re-fetches an order from the provider to confirm a paid
// claim. Used for PIX, whose paid webhook can fire before settlement.
type PaidVerifier interface {
	VerifyPaid(ctx context.Context, orderID string) (bool, error)
}

// ChargeSplitApplier pushes a deferred revenue split to the provider's
// charge object.
type ChargeSplitApplier interface {
	ApplySplit(ctx context.Context, chargeID string, resolution SplitResolution) error
}

type ServiceParams struct {
	Repo          Repository
	Resolver      SplitResolver
	Activator     SubscriptionActivator
	Dispatcher    SideEffectDispatcher
	PixVerifier   PaidVerifier
	SplitApplier  ChargeSplitApplier
	Logger        *logger.Logger
	SplitEnabled  bool
}

// Service is the transaction reconciler: it applies one webhook event to
// the payment_transactions table and fires the downstream consequences.
type Service struct {
	repo         Repository
	resolver     SplitResolver
	activator    SubscriptionActivator
	dispatcher   SideEffectDispatcher
	pixVerifier  PaidVerifier
	splitApplier ChargeSplitApplier
	logg         *logger.Logger
	splitEnabled bool
}

func NewService(params ServiceParams) (*Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction repo required")
	}
	if params.Logger == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "logger required")
	}
	return &Service{
		repo:         params.Repo,
		resolver:     params.Resolver,
		activator:    params.Activator,
		dispatcher:   params.Dispatcher,
		pixVerifier:  params.PixVerifier,
		splitApplier: params.SplitApplier,
		logg:         params.Logger,
		splitEnabled: params.SplitEnabled,
	}, nil
}

// WithTx rebinds the repository for callers that already hold a
// transaction.
func (s *Service) WithTx(tx *gorm.DB) *Service {
	clone := *s
	clone.repo = s.repo.WithTx(tx)
	return &clone
}

// Process applies a single provider event. Only a failure of the
// authoritative status write is returned as an error; every auxiliary
// step logs and keeps going.
func (s *Service) Process(ctx context.Context, ev Event) (Outcome, error) {
	ctx = s.logg.WithProvider(ctx, ev.Provider.String())
	var outcome Outcome

	// A charge-prefixed token must never occupy the order-id slot.
	if ev.OrderID != "" && LooksLikeChargeID(ev.OrderID) {
		if ev.ChargeID == "" {
			ev.ChargeID = ev.OrderID
		}
		ev.OrderID = ""
	}

	// Subscription-scoped webhooks carry no order id; the subscription id
	// doubles as the lookup key.
	orderKey := ev.OrderID
	if orderKey == "" && ev.SubscriptionID != "" && !LooksLikeChargeID(ev.SubscriptionID) {
		orderKey = ev.SubscriptionID
	}

	// Self-healing for rows ingested with the charge id in the order slot.
	if ev.OrderID != "" && ev.ChargeID != "" {
		if repaired, err := s.repo.RepairChargeInOrderSlot(ctx, ev.Provider, ev.ChargeID, ev.OrderID); err != nil {
			s.logg.Error(ctx, "charge-in-order-slot repair failed", err)
		} else if repaired {
			s.logg.Warn(s.logg.WithField(ctx, "order_id", ev.OrderID), "repaired charge id stored in order slot")
		}
	}

	norm := status.Normalize(ev.Provider, ev.Type, ev.RawStatus)

	var resolution *SplitResolution
	if s.resolver != nil {
		var err error
		resolution, err = s.resolver.Resolve(ctx, ev, ev.AmountCents)
		if err != nil {
			s.logg.Error(ctx, "split resolution failed", err)
			resolution = nil
		}
	}

	row, applied, err := s.settle(ctx, ev, orderKey, norm)
	if err != nil {
		return outcome, err
	}
	if row == nil {
		s.logg.Warn(ctx, "event carried no usable order or charge id")
		return outcome, nil
	}

	outcome.TransactionID = row.ID.String()
	outcome.Applied = applied
	if norm.Known() {
		outcome.Status = norm.Legacy
	} else {
		outcome.Status = row.Status
	}

	splitWasUnset := row.ClinicAmountCents == nil
	s.bookkeep(ctx, ev, row, resolution)

	if applied && norm.Legacy == enums.TransactionStatusPaid &&
		ev.EffectiveMethod() == enums.PaymentMethodPix {
		if downgraded := s.verifyPix(ctx, ev, row, orderKey); downgraded {
			outcome.PixDowngraded = true
			outcome.Applied = false
			outcome.Status = enums.TransactionStatusPending
			return outcome, nil
		}
	}

	if applied && s.splitEnabled && s.splitApplier != nil &&
		resolution != nil && splitWasUnset && ev.ChargeID != "" {
		if err := s.splitApplier.ApplySplit(ctx, ev.ChargeID, *resolution); err != nil {
			s.logg.Error(ctx, "deferred split application failed", err)
		}
	}

	if applied && norm.Legacy == enums.TransactionStatusPaid && s.activator != nil {
		if ref := ev.SubscriptionRef(); ref != "" || orderKey != "" {
			activated, err := s.activator.Activate(ctx, ev.Provider, ref, orderKey)
			if err != nil {
				s.logg.Error(ctx, "subscription activation failed", err)
			}
			outcome.Activated = activated
		}
	}

	if applied && s.dispatcher != nil {
		s.dispatcher.Dispatch(ctx, Transition{
			Transaction: row,
			Event:       ev,
			NewStatus:   norm.Legacy,
		})
	}

	return outcome, nil
}

// settle runs the update-or-insert dance keyed by order id, then repeats
// the conditional update keyed by charge id. Returns the row the event
// landed on and whether the status transition applied.
func (s *Service) settle(ctx context.Context, ev Event, orderKey string, norm status.Normalized) (*models.PaymentTransaction, bool, error) {
	applied := false

	var orderRow *models.PaymentTransaction
	if orderKey != "" {
		if norm.Known() {
			ok, err := s.repo.ApplyStatusByOrderID(ctx, ev.Provider, orderKey, norm.Legacy)
			if err != nil {
				return nil, false, err
			}
			applied = ok
		}
		row, err := s.repo.FindByOrderID(ctx, ev.Provider, orderKey)
		if err != nil {
			return nil, false, err
		}
		orderRow = row
	}

	// The charge-keyed update runs even when the order pass landed on a
	// row: an earlier charge-only delivery may have created a separate
	// row under the charge id, and that one must advance too. When both
	// keys resolve to the same row the second update is a no-op.
	if ev.ChargeID != "" && norm.Known() {
		ok, err := s.repo.ApplyStatusByChargeID(ctx, ev.Provider, ev.ChargeID, norm.Legacy)
		if err != nil {
			return nil, false, err
		}
		applied = applied || ok
	}

	if orderRow != nil {
		return orderRow, applied, nil
	}

	if orderKey != "" {
		row, inserted, err := s.insertPlaceholder(ctx, ev, orderKey, "", norm)
		if err != nil {
			return nil, false, err
		}
		if row != nil {
			return row, applied || inserted, nil
		}
	}

	if ev.ChargeID != "" {
		row, err := s.repo.FindByChargeID(ctx, ev.Provider, ev.ChargeID)
		if err != nil {
			return nil, false, err
		}
		if row != nil {
			return row, applied, nil
		}
		row, inserted, err := s.insertPlaceholder(ctx, ev, "", ev.ChargeID, norm)
		if err != nil {
			return nil, false, err
		}
		return row, applied || inserted, nil
	}

	return nil, applied, nil
}

// insertPlaceholder creates the missing row for a webhook that arrived
// before checkout finished writing. A lost insert race falls back to one
// more conditional update against the winner's row.
func (s *Service) insertPlaceholder(ctx context.Context, ev Event, orderKey, chargeID string, norm status.Normalized) (*models.PaymentTransaction, bool, error) {
	placeholder := enums.TransactionStatusPending
	if norm.Known() {
		placeholder = norm.Legacy
	}

	row := &models.PaymentTransaction{
		Provider:          ev.Provider,
		ProviderV2:        ev.Provider.Canonical(),
		Status:            placeholder,
		AmountCents:       ev.AmountCents,
		Currency:          currencyOrDefault(ev.Currency),
		PaymentMethodType: ev.EffectiveMethod(),
		Installments:      installmentsOrDefault(ev.Installments),
		RawPayload:        ev.Raw,
	}
	if orderKey != "" {
		row.ProviderOrderID = &orderKey
	}
	if chargeID != "" {
		row.ProviderChargeID = &chargeID
	}
	if ev.ChargeID != "" && orderKey != "" {
		row.ProviderChargeID = &ev.ChargeID
	}

	err := s.repo.InsertPlaceholder(ctx, row)
	if err == nil {
		s.logg.Warn(s.logg.WithField(ctx, "transaction_id", row.ID.String()),
			"created placeholder transaction for early webhook")
		return row, norm.Known(), nil
	}

	// Lost the race against checkout or a concurrent delivery: the row
	// exists now, retry the conditional update once.
	applied := false
	if norm.Known() {
		if orderKey != "" {
			if ok, uerr := s.repo.ApplyStatusByOrderID(ctx, ev.Provider, orderKey, norm.Legacy); uerr == nil {
				applied = ok
			}
		} else if chargeID != "" {
			if ok, uerr := s.repo.ApplyStatusByChargeID(ctx, ev.Provider, chargeID, norm.Legacy); uerr == nil {
				applied = ok
			}
		}
	}
	var existing *models.PaymentTransaction
	var ferr error
	if orderKey != "" {
		existing, ferr = s.repo.FindByOrderID(ctx, ev.Provider, orderKey)
	} else {
		existing, ferr = s.repo.FindByChargeID(ctx, ev.Provider, chargeID)
	}
	if ferr != nil {
		return nil, false, ferr
	}
	if existing == nil {
		return nil, false, err
	}
	return existing, applied, nil
}

func (s *Service) bookkeep(ctx context.Context, ev Event, row *models.PaymentTransaction, resolution *SplitResolution) {
	bk := Bookkeeping{
		RawPayload:   ev.Raw,
		AmountCents:  ev.AmountCents,
		Currency:     ev.Currency,
		Method:       ev.EffectiveMethod(),
		Installments: ev.Installments,
		OrderID:      ev.OrderID,
		ChargeID:     ev.ChargeID,
	}
	if resolution != nil {
		bk.ClinicID = &resolution.ClinicID
		bk.Shares = &resolution.Shares
	}
	if err := s.repo.UpdateBookkeeping(ctx, row.ID, bk); err != nil {
		s.logg.Error(ctx, "transaction bookkeeping update failed", err)
	}
}

// verifyPix cross-checks a PIX paid claim against the provider before
// trusting it. Returns true when the row was downgraded back to pending.
func (s *Service) verifyPix(ctx context.Context, ev Event, row *models.PaymentTransaction, orderKey string) bool {
	// The payload itself can settle the question without a round trip.
	if ev.PaidAmountCents > 0 && ev.AmountCents > 0 && ev.PaidAmountCents >= ev.AmountCents {
		return false
	}
	if status.Normalize(ev.Provider, "", ev.NestedStatus).Legacy == enums.TransactionStatusPaid {
		return false
	}

	if s.pixVerifier == nil || ev.OrderID == "" {
		return false
	}
	confirmed, err := s.pixVerifier.VerifyPaid(ctx, ev.OrderID)
	if err != nil {
		// Keep the paid status on verification transport errors; the
		// provider's own retries or the sweep will re-check.
		s.logg.Error(ctx, "pix paid verification failed", err)
		return false
	}
	if confirmed {
		return false
	}

	if err := s.repo.ForceStatus(ctx, row.ID, enums.TransactionStatusPending); err != nil {
		s.logg.Error(ctx, "pix downgrade write failed", err)
		return false
	}
	s.logg.Warn(s.logg.WithField(ctx, "order_id", orderKey),
		"downgraded premature pix paid webhook to pending")
	return true
}

func currencyOrDefault(currency string) string {
	if currency == "" {
		return "BRL"
	}
	return currency
}

func installmentsOrDefault(installments int) int {
	if installments <= 0 {
		return 1
	}
	return installments
}
