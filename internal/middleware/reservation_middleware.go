package middleware

import (
	"github.com/gin-gonic/gin"

	"github.com/pradiptarn/gigtix/internal/reservation"
)

func ReservationMiddleware(manager *reservation.Manager) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Set("reservation_manager", manager)
		c.Next()
	}
}

func GetReservationManager(c *gin.Context) *reservation.Manager {
	manager, exists := c.Get("reservation_manager")
	if !exists {
		return nil
	}
	return manager.(*reservation.Manager)
}
