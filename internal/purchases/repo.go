package purchases

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// Repository persists purchase receipts.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Ensure(ctx context.Context, purchase *models.Purchase) (bool, error)
	UpdateStatusByKey(ctx context.Context, idempotencyKey string, status enums.PurchaseStatus) (bool, error)
	FindByKey(ctx context.Context, idempotencyKey string) (*models.Purchase, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a purchase repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Ensure inserts the purchase unless one already exists for its
// idempotency key. Returns whether a row was created.
func (r *repository) Ensure(ctx context.Context, purchase *models.Purchase) (bool, error) {
	if purchase.ExternalIdempotencyKey == "" {
		return false, errors.New("idempotency key required")
	}
	if purchase.ID == uuid.Nil {
		purchase.ID = uuid.New()
	}
	if purchase.Status == "" {
		purchase.Status = enums.PurchaseStatusCompleted
	}
	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "external_idempotency_key"}},
			DoNothing: true,
		}).
		Create(purchase)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// UpdateStatusByKey updates an existing purchase; it never creates one.
func (r *repository) UpdateStatusByKey(ctx context.Context, idempotencyKey string, status enums.PurchaseStatus) (bool, error) {
	if idempotencyKey == "" {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.Purchase{}).
		Where("external_idempotency_key = ?", idempotencyKey).
		Update("status", status)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByKey(ctx context.Context, idempotencyKey string) (*models.Purchase, error) {
	var purchase models.Purchase
	err := r.db.WithContext(ctx).
		First(&purchase, "external_idempotency_key = ?", idempotencyKey).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &purchase, nil
}
