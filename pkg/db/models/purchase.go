package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// Purchase is the fulfillment-side record created when a transaction is
// confirmed paid. ExternalIdempotencyKey carries the provider order id so
// repeated paid webhooks never create a second row.
type Purchase struct {
	ID                     uuid.UUID            `gorm:"column:id;type:uuid;primaryKey"`
	ExternalIdempotencyKey string               `gorm:"column:external_idempotency_key;not null;unique"`
	Status                 enums.PurchaseStatus `gorm:"column:status;not null;default:'COMPLETED'"`
	CustomerID             *uuid.UUID           `gorm:"column:customer_id;type:uuid;index"`
	ClinicID               *uuid.UUID           `gorm:"column:clinic_id;type:uuid;index"`
	ProductID              *uuid.UUID           `gorm:"column:product_id;type:uuid"`
	TransactionID          *uuid.UUID           `gorm:"column:transaction_id;type:uuid"`
	AmountCents            int64                `gorm:"column:amount_cents;not null;default:0"`
	Currency               string               `gorm:"column:currency;not null;default:'BRL'"`
	CreatedAt              time.Time            `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt              time.Time            `gorm:"column:updated_at;autoUpdateTime"`
}
