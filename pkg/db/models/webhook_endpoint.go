package models

import (
	"time"

	"github.com/google/uuid"
)

// WebhookEndpoint is a tenant-registered listener URL. Outbound event
// deliveries are HMAC-signed with the endpoint's shared secret.
type WebhookEndpoint struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	ClinicID  uuid.UUID `gorm:"column:clinic_id;type:uuid;not null;index"`
	URL       string    `gorm:"column:url;not null"`
	Secret    string    `gorm:"column:secret;not null"`
	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
