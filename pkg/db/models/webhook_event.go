package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// WebhookEvent is the append-only log of received provider webhooks.
// The (provider, hook_id) pair is the idempotency key; recording the
// event is the first write on every webhook request.
type WebhookEvent struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	Provider        enums.Provider `gorm:"column:provider;not null;uniqueIndex:idx_webhook_events_provider_hook"`
	HookID          string         `gorm:"column:hook_id;not null;uniqueIndex:idx_webhook_events_provider_hook"`
	ProviderEventID *string        `gorm:"column:provider_event_id"`
	Type            string         `gorm:"column:type;not null;default:''"`
	Status          string         `gorm:"column:status;not null;default:''"`

	Raw              json.RawMessage `gorm:"column:raw;type:jsonb"`
	ResourceOrderID  *string         `gorm:"column:resource_order_id;index"`
	ResourceChargeID *string         `gorm:"column:resource_charge_id"`

	NextRetryAt     *time.Time `gorm:"column:next_retry_at;index"`
	ProcessingError *string    `gorm:"column:processing_error"`
	IsRetryable     bool       `gorm:"column:is_retryable;not null;default:false"`
	AttemptCount    int        `gorm:"column:attempt_count;not null;default:0"`
	ProcessedAt     *time.Time `gorm:"column:processed_at"`

	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
