package checkout

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// Repository covers the catalog and billing lookups the subscribe flow
// needs, plus the local pre-insert of the processing transaction.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error)
	OfferByID(ctx context.Context, id uuid.UUID) (*models.Offer, error)
	OfferPriceForCountry(ctx context.Context, offerID uuid.UUID, country string) (*models.OfferPrice, error)
	MerchantForClinic(ctx context.Context, clinicID uuid.UUID, provider enums.Provider) (*models.Merchant, error)
	MonthlyTransactionCount(ctx context.Context, clinicID uuid.UUID, at time.Time) (int64, error)
	CacheOfferPlan(ctx context.Context, offerID uuid.UUID, planID string, priceCents int64) error
	InsertProcessingTransaction(ctx context.Context, row *models.PaymentTransaction) error
}

type repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) ProductByID(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var row models.Product
	err := r.db.WithContext(ctx).
		Where("id = ? AND active = ?", id, true).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) OfferByID(ctx context.Context, id uuid.UUID) (*models.Offer, error) {
	var row models.Offer
	err := r.db.WithContext(ctx).
		Where("id = ? AND active = ?", id, true).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) OfferPriceForCountry(ctx context.Context, offerID uuid.UUID, country string) (*models.OfferPrice, error) {
	if country == "" {
		return nil, nil
	}
	var row models.OfferPrice
	err := r.db.WithContext(ctx).
		Where("offer_id = ? AND UPPER(country) = UPPER(?)", offerID, country).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

func (r *repository) MerchantForClinic(ctx context.Context, clinicID uuid.UUID, provider enums.Provider) (*models.Merchant, error) {
	var row models.Merchant
	err := r.db.WithContext(ctx).
		Where("clinic_id = ? AND provider = ? AND active = ?", clinicID, provider, true).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// MonthlyTransactionCount counts the clinic's transactions in the
// calendar month containing at. Failed rows count too; the ceiling is
// on attempts, not successes.
func (r *repository) MonthlyTransactionCount(ctx context.Context, clinicID uuid.UUID, at time.Time) (int64, error) {
	monthStart := time.Date(at.Year(), at.Month(), 1, 0, 0, 0, 0, at.Location())
	monthEnd := monthStart.AddDate(0, 1, 0)

	var count int64
	err := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("clinic_id = ?", clinicID).
		Where("created_at >= ? AND created_at < ?", monthStart, monthEnd).
		Count(&count).Error
	return count, err
}

// CacheOfferPlan stores the provider plan created for an offer together
// with the price it was created at, so later price drift forces a new
// plan instead of billing the stale amount.
func (r *repository) CacheOfferPlan(ctx context.Context, offerID uuid.UUID, planID string, priceCents int64) error {
	return r.db.WithContext(ctx).
		Model(&models.Offer{}).
		Where("id = ?", offerID).
		Updates(map[string]any{
			"provider_plan_id":          planID,
			"provider_plan_price_cents": priceCents,
		}).Error
}

func (r *repository) InsertProcessingTransaction(ctx context.Context, row *models.PaymentTransaction) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	return r.db.WithContext(ctx).Create(row).Error
}
