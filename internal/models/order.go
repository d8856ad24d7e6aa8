package models

import (
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Order status transitions are pending -> {completed, failed, cancelled} and
// nothing else. Every webhook-driven mutation is guarded by a
// "WHERE status = 'pending'" clause, which is what makes duplicate and
// out-of-order gateway deliveries safe no-ops.
const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusFailed    = "failed"
	OrderStatusCancelled = "cancelled"
)

type Order struct {
	gorm.Model
	ID                uuid.UUID `gorm:"type:uuid;primary_key"`
	Status            string    `gorm:"not null;default:'pending';index"`
	Total             int       `gorm:"not null"`
	Currency          string    `gorm:"not null;default:'usd'"`
	CheckoutSessionID string    `gorm:"index"`
	PaymentReference  string    `gorm:"index"`
	UserID            uuid.UUID `gorm:"index"`
	User              User
	EventID           uuid.UUID
	Event             Event
	Items             []OrderItem
}

func (order *Order) BeforeCreate(tx *gorm.DB) (err error) {
	if order.ID == uuid.Nil {
		order.ID = uuid.New()
	}
	return
}

func (order *Order) IsTerminal() bool {
	return order.Status != OrderStatusPending
}

type OrderItem struct {
	gorm.Model
	ID       uuid.UUID `gorm:"type:uuid;primary_key"`
	OrderID  uuid.UUID `gorm:"index"`
	TicketID uuid.UUID `gorm:"index"`
	Ticket   Ticket
}

func (item *OrderItem) BeforeCreate(tx *gorm.DB) (err error) {
	if item.ID == uuid.Nil {
		item.ID = uuid.New()
	}
	return
}
