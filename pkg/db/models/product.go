package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// Product is a sellable item. Recurring products carry interval fields
// used as the fallback when the offer does not define its own.
type Product struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ClinicID      uuid.UUID          `gorm:"column:clinic_id;type:uuid;not null;index"`
	Name          string             `gorm:"column:name;not null"`
	Type          string             `gorm:"column:type;not null;default:'one_time'"`
	PriceCents    int64              `gorm:"column:price_cents;not null;default:0"`
	Currency      string             `gorm:"column:currency;not null;default:'BRL'"`
	IntervalUnit  enums.IntervalUnit `gorm:"column:interval_unit;not null;default:'month'"`
	IntervalCount int                `gorm:"column:interval_count;not null;default:1"`
	Active        bool               `gorm:"column:active;not null;default:true"`
	CreatedAt     time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt     time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}

// IsRecurring reports whether the product sells as a subscription.
func (p Product) IsRecurring() bool {
	return p.Type == "recurring" || p.Type == "subscription"
}
