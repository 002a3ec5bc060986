package reconciler

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tonipcv/kr-saas-sub001/internal/payments/split"
	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// SplitResolution carries the resolved tenant and computed shares for an
// event, when resolvable.
type SplitResolution struct {
	ClinicID    uuid.UUID
	MerchantID  uuid.UUID
	RecipientID string
	Shares      split.Shares
}

// SplitResolver locates the clinic behind an event and computes its
// revenue split. A nil resolution with nil error means no clinic could
// be determined, which is not a failure.
type SplitResolver interface {
	Resolve(ctx context.Context, ev Event, grossCents int64) (*SplitResolution, error)
}

type dbSplitResolver struct {
	db *gorm.DB
}

// NewSplitResolver builds the default resolver backed by the merchants
// and customer_subscriptions tables.
func NewSplitResolver(db *gorm.DB) SplitResolver {
	return &dbSplitResolver{db: db}
}

// Resolve prefers the clinic id carried in the event metadata, then
// walks subscription -> merchant -> clinic.
func (r *dbSplitResolver) Resolve(ctx context.Context, ev Event, grossCents int64) (*SplitResolution, error) {
	if grossCents <= 0 {
		return nil, nil
	}

	if raw := ev.MetadataValue("clinicId"); raw != "" {
		clinicID, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("metadata clinicId %q: %w", raw, err)
		}
		merchant, err := r.merchantForClinic(ctx, ev.Provider, clinicID)
		if err != nil || merchant == nil {
			return nil, err
		}
		return r.build(merchant, grossCents)
	}

	sub, err := r.subscriptionForEvent(ctx, ev)
	if err != nil || sub == nil {
		return nil, err
	}
	var merchant models.Merchant
	err = r.db.WithContext(ctx).First(&merchant, "id = ?", sub.MerchantID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.build(&merchant, grossCents)
}

func (r *dbSplitResolver) merchantForClinic(ctx context.Context, provider enums.Provider, clinicID uuid.UUID) (*models.Merchant, error) {
	var merchant models.Merchant
	err := r.db.WithContext(ctx).
		Where("clinic_id = ? AND provider = ? AND active = ?", clinicID, provider, true).
		First(&merchant).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &merchant, nil
}

func (r *dbSplitResolver) subscriptionForEvent(ctx context.Context, ev Event) (*models.CustomerSubscription, error) {
	query := r.db.WithContext(ctx).Model(&models.CustomerSubscription{})

	if ref := ev.SubscriptionRef(); ref != "" {
		var sub models.CustomerSubscription
		err := query.Where("provider_subscription_id = ?", ref).First(&sub).Error
		if err == nil {
			return &sub, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if ev.OrderID != "" {
		// The checkout path denormalizes "<provider>OrderId" into the
		// subscription metadata; match it textually so the lookup works
		// on both jsonb and plain-text storage.
		pattern := fmt.Sprintf(`%%"%sOrderId":"%s"%%`, ev.Provider, ev.OrderID)
		var sub models.CustomerSubscription
		err := r.db.WithContext(ctx).
			Where("CAST(metadata AS TEXT) LIKE ?", pattern).
			First(&sub).Error
		if err == nil {
			return &sub, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}
	return nil, nil
}

func (r *dbSplitResolver) build(merchant *models.Merchant, grossCents int64) (*SplitResolution, error) {
	shares, err := split.Compute(grossCents, split.Terms{
		ClinicSplitPercent:  merchant.SplitPercent,
		PlatformFeeBps:      merchant.PlatformFeeBps,
		TransactionFeeCents: merchant.TransactionFeeCents,
	})
	if err != nil {
		return nil, err
	}
	resolution := &SplitResolution{
		ClinicID:   merchant.ClinicID,
		MerchantID: merchant.ID,
		Shares:     shares,
	}
	if merchant.RecipientID != nil {
		resolution.RecipientID = *merchant.RecipientID
	}
	return resolution, nil
}
