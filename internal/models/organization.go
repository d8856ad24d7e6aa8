package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	PayoutStatusPending = "pending"
	PayoutStatusActive  = "active"
)

type Organization struct {
	gorm.Model
	ID              uuid.UUID `gorm:"type:uuid;primary_key"`
	Name            string    `gorm:"not null"`
	Description     string
	PayoutAccountID string `gorm:"index"`
	PayoutStatus    string `gorm:"not null;default:'pending'"`
	OwnerID         uuid.UUID
	Owner           User
	Events          []Event
}

func (organization *Organization) BeforeCreate(tx *gorm.DB) (err error) {
	if organization.ID == uuid.Nil {
		organization.ID = uuid.New()
	}
	return
}
