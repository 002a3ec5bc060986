package models

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"github.com/tonipcv/kr-saas-sub001/pkg/enums"
)

// PaymentTransaction is the authoritative record of money movement. The
// legacy Status column drives all decisions; StatusV2 is a write-only
// mirror in the canonical vocabulary.
type PaymentTransaction struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;primaryKey"`
	Provider   enums.Provider          `gorm:"column:provider;not null;index"`
	ProviderV2 string                  `gorm:"column:provider_v2"`
	Status     enums.TransactionStatus `gorm:"column:status;not null;default:'pending';index"`
	StatusV2   enums.CanonicalStatus   `gorm:"column:status_v2"`

	ProviderOrderID  *string `gorm:"column:provider_order_id;index"`
	ProviderChargeID *string `gorm:"column:provider_charge_id;index"`

	AmountCents       int64                   `gorm:"column:amount_cents;not null;default:0"`
	Currency          string                  `gorm:"column:currency;not null;default:'BRL'"`
	PaymentMethodType enums.PaymentMethodType `gorm:"column:payment_method_type;not null;default:'unknown'"`
	Installments      int                     `gorm:"column:installments;not null;default:1"`

	ClinicAmountCents   *int64 `gorm:"column:clinic_amount_cents"`
	PlatformAmountCents *int64 `gorm:"column:platform_amount_cents"`
	PlatformFeeCents    *int64 `gorm:"column:platform_fee_cents"`

	CustomerID       *uuid.UUID `gorm:"column:customer_id;type:uuid;index"`
	ClinicID         *uuid.UUID `gorm:"column:clinic_id;type:uuid;index"`
	DoctorID         *uuid.UUID `gorm:"column:doctor_id;type:uuid"`
	ProductID        *uuid.UUID `gorm:"column:product_id;type:uuid"`
	PatientProfileID *uuid.UUID `gorm:"column:patient_profile_id;type:uuid"`

	RawPayload json.RawMessage `gorm:"column:raw_payload;type:jsonb"`
	PaidAt     *time.Time      `gorm:"column:paid_at"`
	CreatedAt  time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
