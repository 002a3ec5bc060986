package webhookevents

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/tonipcv/kr-saas-sub001/pkg/db/models"
	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// RecordResult tells the handler whether this delivery is new.
type RecordResult string

const (
	RecordInserted  RecordResult = "inserted"
	RecordDuplicate RecordResult = "duplicate"
)

// RecordParams describe an inbound delivery before any processing.
type RecordParams struct {
	Provider  enums.Provider
	HookID    string
	EventID   string
	EventType string
	RawStatus string
	Raw       json.RawMessage
}

// Repository persists the webhook event log.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Record(ctx context.Context, params RecordParams) (RecordResult, *models.WebhookEvent, error)
	AttachResources(ctx context.Context, id uuid.UUID, orderID, chargeID *string) error
	MarkFailed(ctx context.Context, id uuid.UUID, processErr error, nextRetryAt time.Time) error
	MarkProcessed(ctx context.Context, id uuid.UUID) error
	DueForRetry(ctx context.Context, limit int, maxAttempts int) ([]models.WebhookEvent, error)
	ScheduleImmediate(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a webhook event repository bound to the database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Record inserts the delivery or reports it as already seen. Insert-or-
// ignore on (provider, hook_id); this is the first write on every webhook
// request so the delivery is durable even if processing later fails.
func (r *repository) Record(ctx context.Context, params RecordParams) (RecordResult, *models.WebhookEvent, error) {
	row := models.WebhookEvent{
		ID:       uuid.New(),
		Provider: params.Provider,
		HookID:   params.HookID,
		Type:     params.EventType,
		Status:   params.RawStatus,
		Raw:      params.Raw,
	}
	if params.EventID != "" {
		row.ProviderEventID = &params.EventID
	}

	res := r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "provider"}, {Name: "hook_id"}},
			DoNothing: true,
		}).
		Create(&row)
	if res.Error != nil {
		return "", nil, res.Error
	}
	if res.RowsAffected > 0 {
		return RecordInserted, &row, nil
	}

	var existing models.WebhookEvent
	if err := r.db.WithContext(ctx).
		Where("provider = ? AND hook_id = ?", params.Provider, params.HookID).
		First(&existing).Error; err != nil {
		return "", nil, err
	}
	return RecordDuplicate, &existing, nil
}

// AttachResources back-fills resolved ids without overwriting values set
// by an earlier pass.
func (r *repository) AttachResources(ctx context.Context, id uuid.UUID, orderID, chargeID *string) error {
	updates := map[string]any{}
	if orderID != nil && *orderID != "" {
		updates["resource_order_id"] = gorm.Expr("COALESCE(resource_order_id, ?)", *orderID)
	}
	if chargeID != nil && *chargeID != "" {
		updates["resource_charge_id"] = gorm.Expr("COALESCE(resource_charge_id, ?)", *chargeID)
	}
	if len(updates) == 0 {
		return nil
	}
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(updates).Error
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, processErr error, nextRetryAt time.Time) error {
	msg := ""
	if processErr != nil {
		msg = processErr.Error()
	}
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processing_error": msg,
			"is_retryable":     true,
			"next_retry_at":    nextRetryAt,
			"attempt_count":    gorm.Expr("attempt_count + 1"),
		}).Error
}

func (r *repository) MarkProcessed(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"processed_at":  now,
			"is_retryable":  false,
			"next_retry_at": nil,
		}).Error
}

// DueForRetry lists retryable events whose next_retry_at is in the past.
func (r *repository) DueForRetry(ctx context.Context, limit int, maxAttempts int) ([]models.WebhookEvent, error) {
	if limit <= 0 {
		limit = 50
	}
	var rows []models.WebhookEvent
	err := r.db.WithContext(ctx).
		Where("is_retryable = ? AND processed_at IS NULL", true).
		Where("next_retry_at IS NOT NULL AND next_retry_at <= ?", time.Now()).
		Where("attempt_count < ?", maxAttempts).
		Order("next_retry_at ASC").
		Limit(limit).
		Find(&rows).Error
	return rows, err
}

// ScheduleImmediate parks the event for the sweeper with next_retry_at
// set to now. Used by the async ingestion mode.
func (r *repository) ScheduleImmediate(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).
		Model(&models.WebhookEvent{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"is_retryable":  true,
			"next_retry_at": time.Now(),
		}).Error
}
