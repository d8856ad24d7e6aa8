package handlers

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap/zaptest"
	"gorm.io/gorm"

	"github.com/pradiptarn/gigtix/internal/middleware"
	"github.com/pradiptarn/gigtix/internal/models"
	"github.com/pradiptarn/gigtix/internal/payments"
	"github.com/pradiptarn/gigtix/internal/reservation"
)

const (
	testPaymentSecret = "whsec_payment_test"
	testConnectSecret = "whsec_connect_test"
)

func setupWebhookRouter(t *testing.T, db *gorm.DB, manager *reservation.Manager) *gin.Engine {
	t.Setenv("PAYMENT_WEBHOOK_SECRET", testPaymentSecret)
	t.Setenv("CONNECT_WEBHOOK_SECRET", testConnectSecret)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(middleware.DatabaseMiddleware(db))
	router.Use(middleware.LoggerMiddleware(zaptest.NewLogger(t)))
	router.Use(middleware.ReservationMiddleware(manager))
	router.POST("/v1/webhooks/payment", HandlePaymentWebhook)
	router.POST("/v1/webhooks/connect", HandleConnectWebhook)
	return router
}

func signedWebhookRequest(path string, body []byte, secret string, at time.Time) *http.Request {
	req := httptest.NewRequest("POST", path, bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(payments.SignatureHeader, payments.SignPayload(body, secret, at))
	return req
}

func paymentEventBody(eventType, paymentID string, orderID uuid.UUID) []byte {
	return []byte(fmt.Sprintf(
		`{"id":"evt_test","type":"%s","data":{"object":{"id":"%s","amount":2500,"currency":"usd","metadata":{"order_id":"%s"}}}}`,
		eventType, paymentID, orderID,
	))
}

func TestPaymentSucceededBooksTicketsAndReleasesHolds(t *testing.T) {
	db, mock := setupTestDB(t)
	store := reservation.NewMemoryStore()
	manager := reservation.NewManager(store, time.Minute, nil)

	buyerID := uuid.New()
	orderID := uuid.New()
	ticket1 := uuid.New()
	ticket2 := uuid.New()

	ctx := context.Background()
	manager.Acquire(ctx, ticket1, buyerID)
	manager.Acquire(ctx, ticket2, buyerID)

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "user_id", "total"}).
			AddRow(orderID, models.OrderStatusPending, buyerID, 2500))
	mock.ExpectQuery(`SELECT \* FROM "order_items"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "ticket_id"}).
			AddRow(uuid.New(), orderID, ticket1).
			AddRow(uuid.New(), orderID, ticket2))
	mock.ExpectBegin()
	mock.ExpectExec(`UPDATE "orders"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(`UPDATE "tickets"`).WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectCommit()

	router := setupWebhookRouter(t, db, manager)

	body := paymentEventBody(payments.EventPaymentSucceeded, "pay_test", orderID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest("/v1/webhooks/payment", body, testPaymentSecret, time.Now()))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if manager.IsHeld(ctx, ticket1) || manager.IsHeld(ctx, ticket2) {
		t.Error("holds must be released once the order settles")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet database expectations: %v", err)
	}
}

func TestPaymentSucceededDuplicateDeliveryIsNoOp(t *testing.T) {
	db, mock := setupTestDB(t)
	manager := reservation.NewManager(reservation.NewMemoryStore(), time.Minute, nil)

	orderID := uuid.New()

	// A terminal order short-circuits before any item load or mutation.
	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "user_id"}).
			AddRow(orderID, models.OrderStatusCompleted, uuid.New()))

	router := setupWebhookRouter(t, db, manager)

	body := paymentEventBody(payments.EventPaymentSucceeded, "pay_test", orderID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest("/v1/webhooks/payment", body, testPaymentSecret, time.Now()))

	if w.Code != http.StatusOK {
		t.Fatalf("duplicates must still answer 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet database expectations: %v", err)
	}
}

func TestPaymentCanceledFailsOrderAndReleasesHolds(t *testing.T) {
	db, mock := setupTestDB(t)
	store := reservation.NewMemoryStore()
	manager := reservation.NewManager(store, time.Minute, nil)

	buyerID := uuid.New()
	orderID := uuid.New()
	ticketID := uuid.New()

	ctx := context.Background()
	manager.Acquire(ctx, ticketID, buyerID)

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "user_id"}).
			AddRow(orderID, models.OrderStatusPending, buyerID))
	// Only the order flips to failed; ticket rows stay available.
	mock.ExpectExec(`UPDATE "orders"`).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectQuery(`SELECT \* FROM "order_items"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "order_id", "ticket_id"}).
			AddRow(uuid.New(), orderID, ticketID))

	router := setupWebhookRouter(t, db, manager)

	body := paymentEventBody(payments.EventPaymentCanceled, "pay_test", orderID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest("/v1/webhooks/payment", body, testPaymentSecret, time.Now()))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if manager.IsHeld(ctx, ticketID) {
		t.Error("holds must be released when the payment is canceled")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet database expectations: %v", err)
	}
}

func TestPaymentCanceledAfterCompletionIsNoOp(t *testing.T) {
	db, mock := setupTestDB(t)
	manager := reservation.NewManager(reservation.NewMemoryStore(), time.Minute, nil)

	orderID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "user_id"}).
			AddRow(orderID, models.OrderStatusCompleted, uuid.New()))

	router := setupWebhookRouter(t, db, manager)

	body := paymentEventBody(payments.EventPaymentCanceled, "pay_test", orderID)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest("/v1/webhooks/payment", body, testPaymentSecret, time.Now()))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("a completed order must not be touched by a late cancel: %v", err)
	}
}

func TestSessionExpiredCancelsPendingOrder(t *testing.T) {
	db, mock := setupTestDB(t)
	manager := reservation.NewManager(reservation.NewMemoryStore(), time.Minute, nil)

	mock.ExpectExec(`UPDATE "orders"`).WillReturnResult(sqlmock.NewResult(0, 1))

	router := setupWebhookRouter(t, db, manager)

	body := []byte(`{"id":"evt_test","type":"checkout.session.expired","data":{"object":{"id":"cs_expired"}}}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest("/v1/webhooks/payment", body, testPaymentSecret, time.Now()))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet database expectations: %v", err)
	}
}

func TestSessionCompletedPersistsPaymentReference(t *testing.T) {
	db, mock := setupTestDB(t)
	manager := reservation.NewManager(reservation.NewMemoryStore(), time.Minute, nil)

	orderID := uuid.New()

	mock.ExpectQuery(`SELECT \* FROM "orders"`).
		WillReturnRows(sqlmock.NewRows([]string{"id", "status", "checkout_session_id", "payment_reference"}).
			AddRow(orderID, models.OrderStatusPending, "cs_live", ""))
	mock.ExpectExec(`UPDATE "orders"`).WillReturnResult(sqlmock.NewResult(0, 1))

	router := setupWebhookRouter(t, db, manager)

	body := []byte(`{"id":"evt_test","type":"checkout.session.completed","data":{"object":{"id":"cs_live","payment_id":"pay_live"}}}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest("/v1/webhooks/payment", body, testPaymentSecret, time.Now()))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet database expectations: %v", err)
	}
}

func TestWebhookRejectsInvalidSignature(t *testing.T) {
	db, mock := setupTestDB(t)
	manager := reservation.NewManager(reservation.NewMemoryStore(), time.Minute, nil)

	router := setupWebhookRouter(t, db, manager)

	body := paymentEventBody(payments.EventPaymentSucceeded, "pay_test", uuid.New())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest("/v1/webhooks/payment", body, "whsec_wrong", time.Now()))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("nothing may touch the database before the signature verifies: %v", err)
	}
}

func TestWebhookRejectsStaleTimestamp(t *testing.T) {
	db, _ := setupTestDB(t)
	manager := reservation.NewManager(reservation.NewMemoryStore(), time.Minute, nil)

	router := setupWebhookRouter(t, db, manager)

	body := paymentEventBody(payments.EventPaymentSucceeded, "pay_test", uuid.New())
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest("/v1/webhooks/payment", body, testPaymentSecret, time.Now().Add(-10*time.Minute)))

	if w.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for a replayed delivery, got %d: %s", w.Code, w.Body.String())
	}
}

func TestWebhookIgnoresUnknownEventType(t *testing.T) {
	db, mock := setupTestDB(t)
	manager := reservation.NewManager(reservation.NewMemoryStore(), time.Minute, nil)

	router := setupWebhookRouter(t, db, manager)

	body := []byte(`{"id":"evt_test","type":"invoice.created","data":{"object":{}}}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest("/v1/webhooks/payment", body, testPaymentSecret, time.Now()))

	if w.Code != http.StatusOK {
		t.Fatalf("unknown event types must be acknowledged, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unknown events must not touch the database: %v", err)
	}
}

func TestAccountUpdatedActivatesPayoutProfile(t *testing.T) {
	db, mock := setupTestDB(t)
	manager := reservation.NewManager(reservation.NewMemoryStore(), time.Minute, nil)

	mock.ExpectExec(`UPDATE "organizations"`).WillReturnResult(sqlmock.NewResult(0, 1))

	router := setupWebhookRouter(t, db, manager)

	body := []byte(`{"id":"evt_test","type":"account.updated","data":{"object":{"id":"acct_org","charges_enabled":true,"details_submitted":true,"payouts_enabled":true}}}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest("/v1/webhooks/connect", body, testConnectSecret, time.Now()))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet database expectations: %v", err)
	}
}

func TestAccountUpdatedIncompleteOnboardingIgnored(t *testing.T) {
	db, mock := setupTestDB(t)
	manager := reservation.NewManager(reservation.NewMemoryStore(), time.Minute, nil)

	router := setupWebhookRouter(t, db, manager)

	body := []byte(`{"id":"evt_test","type":"account.updated","data":{"object":{"id":"acct_org","charges_enabled":false,"details_submitted":true}}}`)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, signedWebhookRequest("/v1/webhooks/connect", body, testConnectSecret, time.Now()))

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("incomplete onboarding must not touch the database: %v", err)
	}
}
