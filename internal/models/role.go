package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Seeded at startup. Organizers own organizations and run events; attendees
// buy tickets. Nothing stops one user from doing both through role changes.
const (
	RoleOrganizer = "organizer"
	RoleAttendee  = "attendee"
	RoleAdmin     = "admin"
)

type Role struct {
	ID        uuid.UUID `gorm:"type:uuid;default:uuid_generate_v4();primary_key"`
	Name      string    `gorm:"unique;not null"`
	CreatedAt time.Time
	UpdatedAt time.Time
	DeletedAt gorm.DeletedAt `gorm:"index"`
}
