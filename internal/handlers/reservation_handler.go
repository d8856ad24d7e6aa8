package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/pradiptarn/gigtix/internal/helpers"
	"github.com/pradiptarn/gigtix/internal/middleware"
)

// ReleaseReservations frees every hold the caller owns, the escape hatch for
// an abandoned checkout. Orders stay pending; only a gateway-side expiry or
// cancellation webhook moves them.
func ReleaseReservations(c *gin.Context) {
	userID, exists := c.Get("user_id")
	if !exists {
		helpers.RespondWithError(c, http.StatusUnauthorized, "User ID not found in token.")
		return
	}
	userUUID, ok := userID.(uuid.UUID)
	if !ok {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Invalid user ID type.")
		return
	}

	manager := middleware.GetReservationManager(c)
	if manager == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Reservation manager not found.")
		return
	}

	manager.ReleaseAll(c.Request.Context(), userUUID)

	c.JSON(http.StatusOK, gin.H{"message": "All reservations released."})
}
