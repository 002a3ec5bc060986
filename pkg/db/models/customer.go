package models

import (
	"time"

	"github.com/google/uuid"
)

// Customer is a merchant-scoped buyer identity keyed by email.
type Customer struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	MerchantID uuid.UUID `gorm:"column:merchant_id;type:uuid;not null;uniqueIndex:idx_customers_merchant_email"`
	Email      string    `gorm:"column:email;not null;uniqueIndex:idx_customers_merchant_email"`
	Name       string    `gorm:"column:name;not null;default:''"`
	Phone      *string   `gorm:"column:phone"`
	Document   *string   `gorm:"column:document"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
