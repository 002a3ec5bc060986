package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// CustomerProvider links a customer to their account id on a payment
// provider. AccountID disambiguates multiple provider accounts per tenant.
type CustomerProvider struct {
	ID                 uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID         uuid.UUID      `gorm:"column:customer_id;type:uuid;not null;uniqueIndex:idx_customer_providers_key"`
	Provider           enums.Provider `gorm:"column:provider;not null;uniqueIndex:idx_customer_providers_key"`
	AccountID          string         `gorm:"column:account_id;not null;default:'';uniqueIndex:idx_customer_providers_key"`
	ProviderCustomerID string         `gorm:"column:provider_customer_id;not null"`
	CreatedAt          time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt          time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
