package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/pradiptarn/gigtix/internal/helpers"
	"github.com/pradiptarn/gigtix/internal/models"
)

type TicketTypeRequest struct {
	Name     string `json:"name" binding:"required"`
	Price    int    `json:"price" binding:"required,min=0"`
	Currency string `json:"currency"`
	Quota    int    `json:"quota" binding:"required,min=1"`
}

// CreateTicketType creates a ticket type and provisions its inventory: one
// ticket row per quota unit, all inside one transaction so a half-provisioned
// type never becomes visible.
func CreateTicketType(c *gin.Context) {
	eventIDStr := c.Param("id")
	eventID, err := uuid.Parse(eventIDStr)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid event ID.")
		return
	}

	var req TicketTypeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}
	if req.Currency == "" {
		req.Currency = "usd"
	}

	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var event models.Event
	if err := gormDB.Where("id = ?", eventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error finding event.")
		return
	}

	if _, err := ownedOrganization(gormDB, event.OrganizationID, userID); err != nil {
		helpers.RespondWithError(c, http.StatusForbidden, "You don't have permission to modify this event.")
		return
	}

	ticketType := models.TicketType{
		ID:       uuid.New(),
		Name:     req.Name,
		Price:    req.Price,
		Currency: req.Currency,
		Quota:    req.Quota,
		EventID:  eventID,
	}

	tickets := make([]models.Ticket, req.Quota)
	for i := range tickets {
		tickets[i] = models.Ticket{
			ID:           uuid.New(),
			Name:         req.Name,
			Price:        req.Price,
			Currency:     req.Currency,
			Status:       models.TicketStatusAvailable,
			EventID:      eventID,
			TicketTypeID: ticketType.ID,
		}
	}

	err = gormDB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&ticketType).Error; err != nil {
			return err
		}
		return tx.Create(&tickets).Error
	})
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create ticket type.")
		return
	}

	c.JSON(http.StatusCreated, gin.H{
		"message":        "Ticket type created successfully.",
		"ticket_type_id": ticketType.ID,
		"provisioned":    len(tickets),
	})
}

// ListEventTickets returns the event's remaining available tickets. Holds live
// only in the lock store, so a listed ticket can still be lost to a
// concurrent checkout; the purchase path is the authority.
func ListEventTickets(c *gin.Context) {
	eventID := c.Param("id")

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	var tickets []models.Ticket
	err := gormDB.Where("event_id = ? AND status = ?", eventID, models.TicketStatusAvailable).
		Order("name ASC").Find(&tickets).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving tickets.")
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"tickets": tickets,
		"total":   len(tickets),
	})
}
