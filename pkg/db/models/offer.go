package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// Offer is a priced variant of a product. ProviderPlanID caches the
// provider-side plan created for it; ProviderPlanPriceCents records the
// price that plan was created with so price drift forces a recreate.
type Offer struct {
	ID            uuid.UUID          `gorm:"column:id;type:uuid;primaryKey"`
	ProductID     uuid.UUID          `gorm:"column:product_id;type:uuid;not null;index"`
	Name          string             `gorm:"column:name;not null;default:''"`
	PriceCents    int64              `gorm:"column:price_cents;not null;default:0"`
	Currency      string             `gorm:"column:currency;not null;default:'BRL'"`
	IntervalUnit  *enums.IntervalUnit `gorm:"column:interval_unit"`
	IntervalCount *int                `gorm:"column:interval_count"`

	ProviderPlanID         *string `gorm:"column:provider_plan_id"`
	ProviderPlanPriceCents *int64  `gorm:"column:provider_plan_price_cents"`

	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// OfferPrice is a per-country price override for an offer.
type OfferPrice struct {
	ID         uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	OfferID    uuid.UUID `gorm:"column:offer_id;type:uuid;not null;uniqueIndex:idx_offer_prices_offer_country"`
	Country    string    `gorm:"column:country;not null;uniqueIndex:idx_offer_prices_offer_country"`
	PriceCents int64     `gorm:"column:price_cents;not null"`
	Currency   string    `gorm:"column:currency;not null;default:'BRL'"`
	CreatedAt  time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
