package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	TicketStatusAvailable = "available"
	TicketStatusBooked    = "booked"
)

type TicketType struct {
	gorm.Model
	ID       uuid.UUID `gorm:"type:uuid;primary_key"`
	Name     string    `gorm:"not null"`
	Price    int       `gorm:"not null"`
	Currency string    `gorm:"not null;default:'usd'"`
	Quota    int       `gorm:"not null"`
	EventID  uuid.UUID
	Event    Event
}

func (ticketType *TicketType) BeforeCreate(tx *gorm.DB) (err error) {
	if ticketType.ID == uuid.Nil {
		ticketType.ID = uuid.New()
	}
	return
}

// Ticket is one saleable unit. Price and currency are denormalized from the
// ticket type at provisioning time so a later price change never rewrites
// already-sold inventory. Status moves available -> booked exactly once, on
// payment reconciliation; a hold on a ticket lives in the lock store only and
// is never written to this row.
type Ticket struct {
	gorm.Model
	ID           uuid.UUID `gorm:"type:uuid;primary_key"`
	Name         string    `gorm:"not null"`
	Price        int       `gorm:"not null"`
	Currency     string    `gorm:"not null;default:'usd'"`
	Status       string    `gorm:"not null;default:'available';index"`
	EventID      uuid.UUID `gorm:"index"`
	Event        Event
	TicketTypeID uuid.UUID `gorm:"index"`
	TicketType   TicketType
	UserID       *uuid.UUID `gorm:"type:uuid"`
	BookedAt     *time.Time
	CheckedInAt  *time.Time
}

func (ticket *Ticket) BeforeCreate(tx *gorm.DB) (err error) {
	if ticket.ID == uuid.Nil {
		ticket.ID = uuid.New()
	}
	return
}
