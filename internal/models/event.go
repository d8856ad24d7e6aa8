package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

const (
	EventStatusDraft     = "draft"
	EventStatusPublished = "published"
)

type Event struct {
	gorm.Model
	ID             uuid.UUID `gorm:"type:uuid;primary_key"`
	Title          string    `gorm:"not null"`
	Description    string    `gorm:"not null"`
	StartTime      time.Time `gorm:"not null"`
	EndTime        time.Time `gorm:"not null"`
	Venue          string    `gorm:"not null"`
	City           string    `gorm:"not null"`
	BannerPath     string
	Status         string `gorm:"not null;default:'draft'"`
	OrganizationID uuid.UUID
	Organization   Organization
	Categories     []Category `gorm:"many2many:event_categories;"`
	TicketTypes    []TicketType
}

func (event *Event) BeforeCreate(tx *gorm.DB) (err error) {
	if event.ID == uuid.Nil {
		event.ID = uuid.New()
	}
	return
}
