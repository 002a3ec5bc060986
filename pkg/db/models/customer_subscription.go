package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// CustomerSubscription persists recurring billing state for a customer.
type CustomerSubscription struct {
	ID                     uuid.UUID                `gorm:"column:id;type:uuid;primaryKey"`
	Status                 enums.SubscriptionStatus `gorm:"column:status;not null;default:'PENDING';index"`
	Provider               enums.Provider           `gorm:"column:provider;not null"`
	ProviderSubscriptionID *string                  `gorm:"column:provider_subscription_id;unique"`

	MerchantID uuid.UUID  `gorm:"column:merchant_id;type:uuid;not null;index"`
	CustomerID uuid.UUID  `gorm:"column:customer_id;type:uuid;not null;index"`
	ProductID  *uuid.UUID `gorm:"column:product_id;type:uuid"`
	OfferID    *uuid.UUID `gorm:"column:offer_id;type:uuid"`

	CurrentPeriodStart *time.Time `gorm:"column:current_period_start"`
	CurrentPeriodEnd   *time.Time `gorm:"column:current_period_end"`
	StartAt            *time.Time `gorm:"column:start_at"`

	Metadata  json.RawMessage `gorm:"column:metadata;type:jsonb"`
	CreatedAt time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
