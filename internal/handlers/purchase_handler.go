package handlers

import (
	"net/http"
	"os"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pradiptarn/gigtix/internal/helpers"
	"github.com/pradiptarn/gigtix/internal/middleware"
	"github.com/pradiptarn/gigtix/internal/models"
	"github.com/pradiptarn/gigtix/internal/payments"
)

type PurchaseRequest struct {
	EventID   uuid.UUID   `json:"event_id" binding:"required"`
	TicketIDs []uuid.UUID `json:"ticket_ids" binding:"required,min=1"`
}

func platformFeePercent() int {
	if value := os.Getenv("PLATFORM_FEE_PERCENT"); value != "" {
		if n, err := helpers.StringToInt(value); err == nil && n >= 0 {
			return n
		}
	}
	return 5
}

// Purchase reserves every requested ticket, persists a pending order, and
// opens a hosted checkout session. The hold acquisition is all-or-nothing:
// losing the race on any single ticket aborts the whole request, and a
// deferred guard releases every hold taken in this call on any exit path that
// did not hand the buyer a checkout URL. There is no shared transaction
// between the lock store and the database, so a crash between acquisition and
// the order insert leaves holds that only the TTL cleans up.
func Purchase(c *gin.Context) {
	var req PurchaseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Invalid input. Please check your fields.")
		return
	}

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

	db, exists := c.Get("db")
	if !exists {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return
	}
	gormDB := db.(*gorm.DB)

	manager := middleware.GetReservationManager(c)
	gateway := middleware.GetGatewayClient(c)
	logger := middleware.GetLogger(c)
	if manager == nil || gateway == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Service dependencies not found.")
		return
	}

	ctx := c.Request.Context()

	var event models.Event
	if err := gormDB.Where("id = ?", req.EventID).First(&event).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Event not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving event.")
		return
	}
	if event.Status != models.EventStatusPublished {
		helpers.RespondWithError(c, http.StatusUnprocessableEntity, "Event is not open for sales.")
		return
	}

	var organization models.Organization
	if err := gormDB.Where("id = ?", event.OrganizationID).First(&organization).Error; err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving organization.")
		return
	}
	if organization.PayoutStatus != models.PayoutStatusActive || organization.PayoutAccountID == "" {
		helpers.RespondWithError(c, http.StatusUnprocessableEntity, "This organizer is not accepting payments yet.")
		return
	}

	// Conflict pre-check before touching anything: if any requested ticket is
	// held by someone else, the whole request fails. No partial purchase.
	for _, ticketID := range req.TicketIDs {
		if manager.IsHeldByOther(ctx, ticketID, userUUID) {
			middleware.RecordReservationConflict()
			helpers.RespondWithError(c, http.StatusConflict, "One or more tickets are currently reserved by another buyer.")
			return
		}
	}

	// Availability filter checks the rows only, not the lock store: the
	// per-id check above plus the atomic acquire below arbitrate holds. This
	// catches tickets a concurrent completed order already booked.
	var tickets []models.Ticket
	err := gormDB.Where("id IN ? AND event_id = ? AND status = ?",
		req.TicketIDs, req.EventID, models.TicketStatusAvailable).Find(&tickets).Error
	if err != nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving tickets.")
		return
	}
	if len(tickets) != len(req.TicketIDs) {
		helpers.RespondWithError(c, http.StatusUnprocessableEntity, "Some tickets are no longer available.")
		return
	}

	// All-or-nothing acquisition. The deferred guard is the compensating
	// action for every failure from here on: gateway errors, database errors,
	// or losing the SetNX race mid-list all release the holds taken so far.
	acquired := make([]uuid.UUID, 0, len(tickets))
	handedOff := false
	defer func() {
		if handedOff {
			return
		}
		for _, ticketID := range acquired {
			manager.Release(ctx, ticketID)
		}
	}()

	for _, ticket := range tickets {
		if !manager.Acquire(ctx, ticket.ID, userUUID) {
			middleware.RecordReservationConflict()
			helpers.RespondWithError(c, http.StatusConflict, "Tickets were just reserved by another buyer. Please try again.")
			return
		}
		acquired = append(acquired, ticket.ID)
	}

	total := 0
	currency := tickets[0].Currency
	lineItems := make([]payments.LineItem, 0, len(tickets))
	for _, ticket := range tickets {
		total += ticket.Price
		lineItems = append(lineItems, payments.LineItem{
			Name:     ticket.Name,
			Amount:   ticket.Price,
			Currency: ticket.Currency,
			Quantity: 1,
		})
	}
	applicationFee := total * platformFeePercent() / 100

	order := models.Order{
		ID:       uuid.New(),
		Status:   models.OrderStatusPending,
		Total:    total,
		Currency: currency,
		UserID:   userUUID,
		EventID:  event.ID,
	}

	err = gormDB.Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&order).Error; err != nil {
			return err
		}
		items := make([]models.OrderItem, len(tickets))
		for i, ticket := range tickets {
			items[i] = models.OrderItem{
				ID:       uuid.New(),
				OrderID:  order.ID,
				TicketID: ticket.ID,
			}
		}
		return tx.Create(&items).Error
	})
	if err != nil {
		logger.Error("failed to persist order", zap.String("event_id", event.ID.String()), zap.Error(err))
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to create order.")
		return
	}

	// The webhook has no other way to recover the order/ticket linkage than
	// this metadata.
	session, err := gateway.CreateCheckoutSession(ctx, payments.CheckoutSessionParams{
		LineItems:            lineItems,
		DestinationAccount:   organization.PayoutAccountID,
		ApplicationFeeAmount: applicationFee,
		SuccessURL:           os.Getenv("CHECKOUT_SUCCESS_URL"),
		CancelURL:            os.Getenv("CHECKOUT_CANCEL_URL"),
		Metadata: map[string]string{
			"order_id":   order.ID.String(),
			"event_id":   event.ID.String(),
			"user_id":    userUUID.String(),
			"ticket_ids": helpers.JoinUUIDs(acquired),
		},
	})
	if err != nil {
		// The pending order row stays behind; only a later session-expiry
		// webhook or manual intervention closes it out.
		logger.Error("failed to create checkout session", zap.String("order_id", order.ID.String()), zap.Error(err))
		helpers.RespondWithError(c, http.StatusBadGateway, "Failed to create checkout session.")
		return
	}

	if err := gormDB.Model(&order).Update("checkout_session_id", session.ID).Error; err != nil {
		logger.Error("failed to persist checkout session reference",
			zap.String("order_id", order.ID.String()),
			zap.String("session_id", session.ID),
			zap.Error(err))
		helpers.RespondWithError(c, http.StatusInternalServerError, "Failed to finalize order.")
		return
	}
	order.CheckoutSessionID = session.ID

	// Holds stay with the buyer until the gateway reports an outcome or the
	// TTL lapses.
	handedOff = true

	c.JSON(http.StatusCreated, gin.H{
		"order":                order,
		"checkout_url":         session.URL,
		"hold_expires_in_secs": int(manager.TTL().Seconds()),
	})
}

func GetOrder(c *gin.Context) {
	orderID := c.Param("id")

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

	var order models.Order
	if err := gormDB.Preload("Items.Ticket").Where("id = ? AND user_id = ?", orderID, userID).First(&order).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			helpers.RespondWithError(c, http.StatusNotFound, "Order not found.")
			return
		}
		helpers.RespondWithError(c, http.StatusInternalServerError, "Error retrieving order.")
		return
	}

	c.JSON(http.StatusOK, order)
}
