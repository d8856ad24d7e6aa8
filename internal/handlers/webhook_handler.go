package handlers

import (
	"encoding/json"
	"io"
	"net/http"
	"os"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/pradiptarn/gigtix/internal/helpers"
	"github.com/pradiptarn/gigtix/internal/middleware"
	"github.com/pradiptarn/gigtix/internal/models"
	"github.com/pradiptarn/gigtix/internal/payments"
	"github.com/pradiptarn/gigtix/internal/reservation"
)

// Webhook reconciliation rules:
//   - The signature is verified against the raw bytes before any JSON parse.
//   - Order mutations carry a "WHERE status = 'pending'" guard, so duplicate
//     and out-of-order deliveries are no-ops.
//   - Once the signature verifies, the endpoint answers 200 even when the
//     event was a duplicate or matched nothing: an error response would only
//     trigger redelivery of something already safely ignored.
//   - Relational updates and lock releases are both attempted even when one
//     fails; an unreleased lock self-expires via TTL.

// HandlePaymentWebhook processes checkout session and payment lifecycle
// events signed with the payment endpoint secret.
func HandlePaymentWebhook(c *gin.Context) {
	event, gormDB, logger, ok := verifyWebhook(c, os.Getenv("PAYMENT_WEBHOOK_SECRET"))
	if !ok {
		return
	}

	manager := middleware.GetReservationManager(c)

	switch event.Type {
	case payments.EventCheckoutSessionCompleted:
		handleSessionCompleted(c, gormDB, logger, event)
	case payments.EventCheckoutSessionExpired:
		handleSessionExpired(c, gormDB, logger, event)
	case payments.EventPaymentSucceeded:
		handlePaymentSucceeded(c, gormDB, manager, logger, event)
	case payments.EventPaymentCanceled:
		handlePaymentCanceled(c, gormDB, manager, logger, event)
	default:
		logger.Info("ignoring unhandled payment event",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
		middleware.RecordWebhookEvent(event.Type, "ignored")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

// HandleConnectWebhook processes connected-account events signed with the
// connect endpoint secret. Account activation is independent of any order.
func HandleConnectWebhook(c *gin.Context) {
	event, gormDB, logger, ok := verifyWebhook(c, os.Getenv("CONNECT_WEBHOOK_SECRET"))
	if !ok {
		return
	}

	switch event.Type {
	case payments.EventAccountUpdated:
		handleAccountUpdated(c, gormDB, logger, event)
	default:
		logger.Info("ignoring unhandled connect event",
			zap.String("event_id", event.ID),
			zap.String("event_type", event.Type))
		middleware.RecordWebhookEvent(event.Type, "ignored")
	}

	c.JSON(http.StatusOK, gin.H{"received": true})
}

func verifyWebhook(c *gin.Context, secret string) (*payments.Event, *gorm.DB, *zap.Logger, bool) {
	logger := middleware.GetLogger(c)

	rawBody, err := io.ReadAll(c.Request.Body)
	if err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Failed to read request body.")
		return nil, nil, nil, false
	}

	signature := c.GetHeader(payments.SignatureHeader)
	if err := payments.VerifySignature(rawBody, signature, secret); err != nil {
		logger.Warn("rejected webhook with invalid signature", zap.String("remote", c.ClientIP()))
		helpers.RespondWithError(c, http.StatusUnauthorized, "Invalid webhook signature.")
		return nil, nil, nil, false
	}

	var event payments.Event
	if err := json.Unmarshal(rawBody, &event); err != nil {
		helpers.RespondWithError(c, http.StatusBadRequest, "Malformed event payload.")
		return nil, nil, nil, false
	}

	gormDB := middleware.GetDB(c)
	if gormDB == nil {
		helpers.RespondWithError(c, http.StatusInternalServerError, "Database connection not found.")
		return nil, nil, nil, false
	}

	return &event, gormDB, logger, true
}

// handleSessionCompleted records the gateway's payment reference on the
// order. It does not finalize status; payment.succeeded does that.
func handleSessionCompleted(c *gin.Context, gormDB *gorm.DB, logger *zap.Logger, event *payments.Event) {
	var session payments.SessionObject
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		logger.Warn("malformed session object", zap.String("event_id", event.ID), zap.Error(err))
		middleware.RecordWebhookEvent(event.Type, "error")
		return
	}

	var order models.Order
	if err := gormDB.Where("checkout_session_id = ?", session.ID).First(&order).Error; err != nil {
		logger.Info("no order for completed session",
			zap.String("event_id", event.ID),
			zap.String("session_id", session.ID))
		middleware.RecordWebhookEvent(event.Type, "ignored")
		return
	}

	if session.PaymentID != "" && order.PaymentReference == "" {
		if err := gormDB.Model(&order).Update("payment_reference", session.PaymentID).Error; err != nil {
			logger.Error("failed to persist payment reference",
				zap.String("order_id", order.ID.String()),
				zap.Error(err))
			middleware.RecordWebhookEvent(event.Type, "error")
			return
		}
	}
	middleware.RecordWebhookEvent(event.Type, "applied")
}

// handleSessionExpired cancels a still-pending order whose checkout session
// lapsed at the gateway. Holds are not touched here; they expire on their own.
func handleSessionExpired(c *gin.Context, gormDB *gorm.DB, logger *zap.Logger, event *payments.Event) {
	var session payments.SessionObject
	if err := json.Unmarshal(event.Data.Object, &session); err != nil {
		logger.Warn("malformed session object", zap.String("event_id", event.ID), zap.Error(err))
		middleware.RecordWebhookEvent(event.Type, "error")
		return
	}

	result := gormDB.Model(&models.Order{}).
		Where("checkout_session_id = ? AND status = ?", session.ID, models.OrderStatusPending).
		Update("status", models.OrderStatusCancelled)
	if result.Error != nil {
		logger.Error("failed to cancel expired order",
			zap.String("session_id", session.ID),
			zap.Error(result.Error))
		middleware.RecordWebhookEvent(event.Type, "error")
		return
	}
	if result.RowsAffected == 0 {
		middleware.RecordWebhookEvent(event.Type, "ignored")
		return
	}
	middleware.RecordWebhookEvent(event.Type, "applied")
}

// handlePaymentSucceeded is the booking step: complete the order, mark every
// ticket on it booked by the buyer, and free the holds.
func handlePaymentSucceeded(c *gin.Context, gormDB *gorm.DB, manager *reservation.Manager, logger *zap.Logger, event *payments.Event) {
	var payment payments.PaymentObject
	if err := json.Unmarshal(event.Data.Object, &payment); err != nil {
		logger.Warn("malformed payment object", zap.String("event_id", event.ID), zap.Error(err))
		middleware.RecordWebhookEvent(event.Type, "error")
		return
	}

	order, found := findOrderForPayment(gormDB, payment)
	if !found {
		logger.Info("no order for payment event",
			zap.String("event_id", event.ID),
			zap.String("payment_id", payment.ID))
		middleware.RecordWebhookEvent(event.Type, "ignored")
		return
	}
	if order.IsTerminal() {
		logger.Info("duplicate payment event for finalized order",
			zap.String("event_id", event.ID),
			zap.String("order_id", order.ID.String()),
			zap.String("order_status", order.Status))
		middleware.RecordWebhookEvent(event.Type, "duplicate")
		return
	}

	var items []models.OrderItem
	if err := gormDB.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
		logger.Error("failed to load order items",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
		middleware.RecordWebhookEvent(event.Type, "error")
		return
	}
	ticketIDs := make([]uuid.UUID, len(items))
	for i, item := range items {
		ticketIDs[i] = item.TicketID
	}
	if len(ticketIDs) == 0 {
		// Item rows can lag the order when the insert raced a crash. The
		// session metadata echoed back on payment events is the fallback
		// linkage.
		if ids, err := helpers.ParseUUIDList(payment.Metadata["ticket_ids"]); err == nil {
			ticketIDs = ids
		}
	}

	now := time.Now()
	err := gormDB.Transaction(func(tx *gorm.DB) error {
		result := tx.Model(&models.Order{}).
			Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
			Updates(map[string]interface{}{
				"status":            models.OrderStatusCompleted,
				"payment_reference": payment.ID,
			})
		if result.Error != nil {
			return result.Error
		}
		if result.RowsAffected == 0 {
			// Lost to a concurrent delivery of the same event.
			return nil
		}
		return tx.Model(&models.Ticket{}).
			Where("id IN ?", ticketIDs).
			Updates(map[string]interface{}{
				"status":    models.TicketStatusBooked,
				"user_id":   order.UserID,
				"booked_at": now,
			}).Error
	})
	if err != nil {
		logger.Error("failed to finalize paid order",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
		middleware.RecordWebhookEvent(event.Type, "error")
	} else {
		middleware.RecordWebhookEvent(event.Type, "applied")
	}

	// Holds are released whether or not the relational update went through;
	// a failed release is fine, the TTL covers it.
	if manager != nil {
		releaseOrderHolds(c, manager, ticketIDs)
	}
}

// handlePaymentCanceled fails a pending order and frees its holds. Ticket
// rows are untouched: the inventory was never sold.
func handlePaymentCanceled(c *gin.Context, gormDB *gorm.DB, manager *reservation.Manager, logger *zap.Logger, event *payments.Event) {
	var payment payments.PaymentObject
	if err := json.Unmarshal(event.Data.Object, &payment); err != nil {
		logger.Warn("malformed payment object", zap.String("event_id", event.ID), zap.Error(err))
		middleware.RecordWebhookEvent(event.Type, "error")
		return
	}

	order, found := findOrderForPayment(gormDB, payment)
	if !found {
		logger.Info("no order for payment event",
			zap.String("event_id", event.ID),
			zap.String("payment_id", payment.ID))
		middleware.RecordWebhookEvent(event.Type, "ignored")
		return
	}
	if order.IsTerminal() {
		middleware.RecordWebhookEvent(event.Type, "duplicate")
		return
	}

	result := gormDB.Model(&models.Order{}).
		Where("id = ? AND status = ?", order.ID, models.OrderStatusPending).
		Update("status", models.OrderStatusFailed)
	if result.Error != nil {
		logger.Error("failed to mark order failed",
			zap.String("order_id", order.ID.String()),
			zap.Error(result.Error))
		middleware.RecordWebhookEvent(event.Type, "error")
	} else if result.RowsAffected == 0 {
		middleware.RecordWebhookEvent(event.Type, "duplicate")
	} else {
		middleware.RecordWebhookEvent(event.Type, "applied")
	}

	var items []models.OrderItem
	if err := gormDB.Where("order_id = ?", order.ID).Find(&items).Error; err != nil {
		logger.Error("failed to load order items for release",
			zap.String("order_id", order.ID.String()),
			zap.Error(err))
		return
	}
	ticketIDs := make([]uuid.UUID, len(items))
	for i, item := range items {
		ticketIDs[i] = item.TicketID
	}
	if manager != nil {
		releaseOrderHolds(c, manager, ticketIDs)
	}
}

// handleAccountUpdated activates the organization payout profile once the
// connected account has finished onboarding.
func handleAccountUpdated(c *gin.Context, gormDB *gorm.DB, logger *zap.Logger, event *payments.Event) {
	var account payments.Account
	if err := json.Unmarshal(event.Data.Object, &account); err != nil {
		logger.Warn("malformed account object", zap.String("event_id", event.ID), zap.Error(err))
		middleware.RecordWebhookEvent(event.Type, "error")
		return
	}

	if !account.ChargesEnabled || !account.DetailsSubmitted {
		middleware.RecordWebhookEvent(event.Type, "ignored")
		return
	}

	result := gormDB.Model(&models.Organization{}).
		Where("payout_account_id = ? AND payout_status = ?", account.ID, models.PayoutStatusPending).
		Update("payout_status", models.PayoutStatusActive)
	if result.Error != nil {
		logger.Error("failed to activate payout profile",
			zap.String("account_id", account.ID),
			zap.Error(result.Error))
		middleware.RecordWebhookEvent(event.Type, "error")
		return
	}
	if result.RowsAffected == 0 {
		logger.Info("account update matched no pending payout profile",
			zap.String("account_id", account.ID))
		middleware.RecordWebhookEvent(event.Type, "ignored")
		return
	}
	middleware.RecordWebhookEvent(event.Type, "applied")
}

// findOrderForPayment resolves the order a payment event refers to: the
// order_id embedded in session metadata first, then the persisted payment
// reference from an earlier session-completed delivery.
func findOrderForPayment(gormDB *gorm.DB, payment payments.PaymentObject) (*models.Order, bool) {
	var order models.Order

	if orderIDStr := payment.Metadata["order_id"]; orderIDStr != "" {
		if orderID, err := uuid.Parse(orderIDStr); err == nil {
			if err := gormDB.Where("id = ?", orderID).First(&order).Error; err == nil {
				return &order, true
			}
		}
	}

	if payment.ID != "" {
		if err := gormDB.Where("payment_reference = ?", payment.ID).First(&order).Error; err == nil {
			return &order, true
		}
	}

	return nil, false
}

func releaseOrderHolds(c *gin.Context, manager *reservation.Manager, ticketIDs []uuid.UUID) {
	ctx := c.Request.Context()
	for _, ticketID := range ticketIDs {
		manager.Release(ctx, ticketID)
	}
}
