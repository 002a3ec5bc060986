package models

import (
	"time"

	"github.com/google/uuid"
)

// User is the account a patient profile belongs to. Only the identity
// fields the notification path reads are modeled.
type User struct {
	ID        uuid.UUID `gorm:"column:id;type:uuid;primaryKey"`
	Email     string    `gorm:"column:email;not null"`
	Name      string    `gorm:"column:name;not null;default:''"`
	CreatedAt time.Time `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time `gorm:"column:updated_at;autoUpdateTime"`
}

// PatientProfile links a clinic patient to their user account. It is the
// last resort for resolving a notification recipient when the provider
// payload and checkout metadata carry no email.
type PatientProfile struct {
	ID        uuid.UUID  `gorm:"column:id;type:uuid;primaryKey"`
	UserID    uuid.UUID  `gorm:"column:user_id;type:uuid;not null;index"`
	ClinicID  *uuid.UUID `gorm:"column:clinic_id;type:uuid;index"`
	CreatedAt time.Time  `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt time.Time  `gorm:"column:updated_at;autoUpdateTime"`
}
