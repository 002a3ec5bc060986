package subscriptions

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// Repository persists customer subscriptions.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindActivatable(ctx context.Context, provider enums.Provider, subscriptionRef, orderID string) (*models.CustomerSubscription, error)
	Activate(ctx context.Context, id uuid.UUID, periodStart, periodEnd time.Time) (bool, error)
	UpsertPending(ctx context.Context, sub *models.CustomerSubscription) error
	ResolveInterval(ctx context.Context, sub *models.CustomerSubscription) (enums.IntervalUnit, int, error)
	FindByID(ctx context.Context, id uuid.UUID) (*models.CustomerSubscription, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a subscription repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindActivatable locates the subscription behind a paid event, skipping
// rows that are already ACTIVE so re-delivery is a no-op.
func (r *repository) FindActivatable(ctx context.Context, provider enums.Provider, subscriptionRef, orderID string) (*models.CustomerSubscription, error) {
	if subscriptionRef != "" {
		var sub models.CustomerSubscription
		err := r.db.WithContext(ctx).
			Where("provider_subscription_id = ? AND status <> ?", subscriptionRef, enums.SubscriptionStatusActive).
			First(&sub).Error
		if err == nil {
			return &sub, nil
		}
		if !errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, err
		}
	}

	if orderID != "" {
		pattern := fmt.Sprintf(`%%"%sOrderId":"%s"%%`, provider, orderID)
		var sub models.CustomerSubscription
		err := r.db.WithContext(ctx).
			Where("status <> ?", enums.SubscriptionStatusActive).
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

// Activate flips the row to ACTIVE with the given period, guarded by the
// status precondition so two concurrent paid webhooks activate once.
func (r *repository) Activate(ctx context.Context, id uuid.UUID, periodStart, periodEnd time.Time) (bool, error) {
	res := r.db.WithContext(ctx).
		Model(&models.CustomerSubscription{}).
		Where("id = ? AND status <> ?", id, enums.SubscriptionStatusActive).
		Updates(map[string]any{
			"status":               enums.SubscriptionStatusActive,
			"current_period_start": periodStart,
			"current_period_end":   periodEnd,
			"start_at":             gorm.Expr("COALESCE(start_at, ?)", periodStart),
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpsertPending writes the checkout-time PENDING row, keyed by the
// provider subscription id.
func (r *repository) UpsertPending(ctx context.Context, sub *models.CustomerSubscription) error {
	if sub.ID == uuid.Nil {
		sub.ID = uuid.New()
	}
	if sub.Status == "" {
		sub.Status = enums.SubscriptionStatusPending
	}
	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "provider_subscription_id"}},
			DoUpdates: clause.AssignmentColumns([]string{
				"metadata", "product_id", "offer_id", "updated_at",
			}),
		}).
		Create(sub).Error
}

// ResolveInterval reads the billing interval from the linked offer,
// falling back to the product's own interval fields.
func (r *repository) ResolveInterval(ctx context.Context, sub *models.CustomerSubscription) (enums.IntervalUnit, int, error) {
	if sub.OfferID != nil {
		var offer models.Offer
		err := r.db.WithContext(ctx).First(&offer, "id = ?", *sub.OfferID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, err
		}
		if err == nil && offer.IntervalUnit != nil && *offer.IntervalUnit != "" {
			count := 1
			if offer.IntervalCount != nil && *offer.IntervalCount > 0 {
				count = *offer.IntervalCount
			}
			return *offer.IntervalUnit, count, nil
		}
	}

	if sub.ProductID != nil {
		var product models.Product
		err := r.db.WithContext(ctx).First(&product, "id = ?", *sub.ProductID).Error
		if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
			return "", 0, err
		}
		if err == nil && product.IntervalUnit != "" {
			count := product.IntervalCount
			if count <= 0 {
				count = 1
			}
			return product.IntervalUnit, count, nil
		}
	}

	return enums.IntervalUnitMonth, 1, nil
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.CustomerSubscription, error) {
	var sub models.CustomerSubscription
	err := r.db.WithContext(ctx).First(&sub, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &sub, nil
}
