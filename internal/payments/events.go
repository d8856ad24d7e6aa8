package payments

import "encoding/json"

// Webhook event types the reconciler understands. Anything else is logged and
// ignored so the gateway never re-delivers events we simply do not care about.
const (
	EventCheckoutSessionCompleted = "checkout.session.completed"
	EventCheckoutSessionExpired   = "checkout.session.expired"
	EventPaymentSucceeded         = "payment.succeeded"
	EventPaymentCanceled          = "payment.canceled"
	EventAccountUpdated           = "account.updated"
)

// Event is the envelope of every webhook delivery. Data.Object is decoded
// lazily into the type matching Event.Type.
type Event struct {
	ID   string `json:"id"`
	Type string `json:"type"`
	Data struct {
		Object json.RawMessage `json:"object"`
	} `json:"data"`
}

// SessionObject is the payload of checkout.session.* events.
type SessionObject struct {
	ID        string            `json:"id"`
	PaymentID string            `json:"payment_id"`
	Status    string            `json:"status"`
	Metadata  map[string]string `json:"metadata"`
}

// PaymentObject is the payload of payment.* events. Metadata is copied from
// the originating checkout session by the gateway, so order linkage survives
// even when the session-completed event was never delivered.
type PaymentObject struct {
	ID       string            `json:"id"`
	Amount   int               `json:"amount"`
	Currency string            `json:"currency"`
	Metadata map[string]string `json:"metadata"`
}
