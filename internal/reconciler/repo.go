package reconciler

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/tonipcv/kr-saas-sub001/internal/payments/split"
	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// Bookkeeping is the non-status state refreshed on every delivery,
// regardless of whether the status transition applied.
type Bookkeeping struct {
	RawPayload   json.RawMessage
	AmountCents  int64
	Currency     string
	Method       enums.PaymentMethodType
	Installments int
	ChargeID     string
	OrderID      string
	CustomerID   *uuid.UUID
	ClinicID     *uuid.UUID
	ProductID    *uuid.UUID
	Shares       *split.Shares
}

// Repository persists payment transactions. Status mutation happens only
// through the conditional single-statement updates below; there is no
// read-modify-write path.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	ApplyStatusByOrderID(ctx context.Context, provider enums.Provider, orderID string, next enums.TransactionStatus) (bool, error)
	ApplyStatusByChargeID(ctx context.Context, provider enums.Provider, chargeID string, next enums.TransactionStatus) (bool, error)
	FindByOrderID(ctx context.Context, provider enums.Provider, orderID string) (*models.PaymentTransaction, error)
	FindByChargeID(ctx context.Context, provider enums.Provider, chargeID string) (*models.PaymentTransaction, error)
	InsertPlaceholder(ctx context.Context, row *models.PaymentTransaction) error
	UpdateBookkeeping(ctx context.Context, id uuid.UUID, bk Bookkeeping) error
	RepairChargeInOrderSlot(ctx context.Context, provider enums.Provider, chargeID, orderID string) (bool, error)
	ForceStatus(ctx context.Context, id uuid.UUID, status enums.TransactionStatus) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a transaction repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// ApplyStatusByOrderID performs the anti-downgrade compare-and-swap: the
// row moves to next only if its current status is an allowed predecessor.
// The WHERE predicate makes the check and the write one atomic statement,
// so two concurrent deliveries can never produce a lost update.
func (r *repository) ApplyStatusByOrderID(ctx context.Context, provider enums.Provider, orderID string, next enums.TransactionStatus) (bool, error) {
	return r.applyStatus(ctx, "provider_order_id", provider, orderID, next)
}

// ApplyStatusByChargeID is the charge-keyed variant for providers whose
// webhook carries only a charge id.
func (r *repository) ApplyStatusByChargeID(ctx context.Context, provider enums.Provider, chargeID string, next enums.TransactionStatus) (bool, error) {
	return r.applyStatus(ctx, "provider_charge_id", provider, chargeID, next)
}

func (r *repository) applyStatus(ctx context.Context, keyColumn string, provider enums.Provider, key string, next enums.TransactionStatus) (bool, error) {
	if key == "" {
		return false, nil
	}
	predecessors := enums.AllowedPredecessors(next)
	if len(predecessors) == 0 {
		return false, nil
	}

	updates := map[string]any{
		"status":    next,
		"status_v2": next.Canonical(),
	}
	if next == enums.TransactionStatusPaid {
		updates["paid_at"] = gorm.Expr("COALESCE(paid_at, ?)", time.Now())
	}

	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("provider = ? AND "+keyColumn+" = ?", provider, key).
		Where("status IN ?", statusStrings(predecessors)).
		Updates(updates)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *repository) FindByOrderID(ctx context.Context, provider enums.Provider, orderID string) (*models.PaymentTransaction, error) {
	return r.findByKey(ctx, "provider_order_id", provider, orderID)
}

func (r *repository) FindByChargeID(ctx context.Context, provider enums.Provider, chargeID string) (*models.PaymentTransaction, error) {
	return r.findByKey(ctx, "provider_charge_id", provider, chargeID)
}

func (r *repository) findByKey(ctx context.Context, keyColumn string, provider enums.Provider, key string) (*models.PaymentTransaction, error) {
	if key == "" {
		return nil, nil
	}
	var row models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Where("provider = ? AND "+keyColumn+" = ?", provider, key).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &row, nil
}

// InsertPlaceholder creates the row a webhook expected to find. This is
// the self-healing path for deliveries that outrun the checkout write.
func (r *repository) InsertPlaceholder(ctx context.Context, row *models.PaymentTransaction) error {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.Status == "" {
		row.Status = enums.TransactionStatusPending
	}
	row.StatusV2 = row.Status.Canonical()
	return r.db.WithContext(ctx).Create(row).Error
}

// UpdateBookkeeping refreshes payload and identifier columns without
// touching status. Identifiers only back-fill missing values.
func (r *repository) UpdateBookkeeping(ctx context.Context, id uuid.UUID, bk Bookkeeping) error {
	updates := map[string]any{}
	if len(bk.RawPayload) > 0 {
		updates["raw_payload"] = bk.RawPayload
	}
	if bk.AmountCents > 0 {
		updates["amount_cents"] = bk.AmountCents
	}
	if bk.Currency != "" {
		updates["currency"] = bk.Currency
	}
	if bk.Method != "" && bk.Method != enums.PaymentMethodUnknown {
		updates["payment_method_type"] = bk.Method
	}
	if bk.Installments > 0 {
		updates["installments"] = bk.Installments
	}
	if bk.OrderID != "" {
		updates["provider_order_id"] = gorm.Expr("COALESCE(provider_order_id, ?)", bk.OrderID)
	}
	if bk.ChargeID != "" {
		updates["provider_charge_id"] = gorm.Expr("COALESCE(provider_charge_id, ?)", bk.ChargeID)
	}
	if bk.CustomerID != nil {
		updates["customer_id"] = gorm.Expr("COALESCE(customer_id, ?)", *bk.CustomerID)
	}
	if bk.ClinicID != nil {
		updates["clinic_id"] = gorm.Expr("COALESCE(clinic_id, ?)", *bk.ClinicID)
	}
	if bk.ProductID != nil {
		updates["product_id"] = gorm.Expr("COALESCE(product_id, ?)", *bk.ProductID)
	}
	if bk.Shares != nil {
		// Deferred split application: only fill if checkout left it empty.
		updates["clinic_amount_cents"] = gorm.Expr("COALESCE(clinic_amount_cents, ?)", bk.Shares.ClinicAmountCents)
		updates["platform_amount_cents"] = gorm.Expr("COALESCE(platform_amount_cents, ?)", bk.Shares.PlatformAmountCents)
		updates["platform_fee_cents"] = gorm.Expr("COALESCE(platform_fee_cents, ?)", bk.Shares.PlatformFeeCents)
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Updates(updates).Error
}

// RepairChargeInOrderSlot fixes rows where a charge id was historically
// stored in the order-id column: swap the charge id out and put the real
// order id in.
func (r *repository) RepairChargeInOrderSlot(ctx context.Context, provider enums.Provider, chargeID, orderID string) (bool, error) {
	if chargeID == "" || orderID == "" {
		return false, nil
	}
	res := r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("provider = ? AND provider_order_id = ?", provider, chargeID).
		Updates(map[string]any{
			"provider_order_id":  orderID,
			"provider_charge_id": chargeID,
		})
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

// ForceStatus writes the status unconditionally. Reserved for the PIX
// premature-paid downgrade, which deliberately moves backwards.
func (r *repository) ForceStatus(ctx context.Context, id uuid.UUID, status enums.TransactionStatus) error {
	return r.db.WithContext(ctx).
		Model(&models.PaymentTransaction{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"status":    status,
			"status_v2": status.Canonical(),
		}).Error
}

func statusStrings(statuses []enums.TransactionStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
