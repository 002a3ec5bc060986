package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// Merchant holds a clinic's billing configuration on a provider: the
// split terms, the provider recipient that receives the clinic share,
// and the monthly transaction ceiling.
type Merchant struct {
	ID       uuid.UUID      `gorm:"column:id;type:uuid;primaryKey"`
	ClinicID uuid.UUID      `gorm:"column:clinic_id;type:uuid;not null;index"`
	Provider enums.Provider `gorm:"column:provider;not null"`

	SplitPercent        float64 `gorm:"column:split_percent;not null;default:100"`
	PlatformFeeBps      int64   `gorm:"column:platform_fee_bps;not null;default:0"`
	TransactionFeeCents int64   `gorm:"column:transaction_fee_cents;not null;default:0"`
	RecipientID         *string `gorm:"column:recipient_id"`
	MonthlyTxLimit      *int64  `gorm:"column:monthly_tx_limit"`

	Active    bool      `gorm:"column:active;not null;default:true"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
