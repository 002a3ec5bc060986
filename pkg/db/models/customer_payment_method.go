package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// CustomerPaymentMethod stores a masked card reference. Only brand, last4
// and expiry are ever persisted; de-duplication is by last4 within the
// customer+provider+account scope.
type CustomerPaymentMethod struct {
	ID              uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	CustomerID      uuid.UUID      `gorm:"column:customer_id;type:uuid;not null;index"`
	Provider        enums.Provider `gorm:"column:provider;not null"`
	AccountID       string         `gorm:"column:account_id;not null;default:''"`
	ProviderCardID  *string        `gorm:"column:provider_card_id"`
	Brand           string         `gorm:"column:brand;not null;default:''"`
	Last4           string         `gorm:"column:last4;not null;default:''"`
	ExpirationMonth int            `gorm:"column:expiration_month;not null;default:0"`
	ExpirationYear  int            `gorm:"column:expiration_year;not null;default:0"`
	CreatedAt       time.Time      `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt       time.Time      `gorm:"column:updated_at;autoUpdateTime"`
}
