package reservation

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	keyPrefix      = "ticket:"
	DefaultHoldTTL = 600 * time.Second
)

// Manager wraps the lock store with ticket-hold semantics. A hold is a
// short-lived exclusive claim on one ticket: key "ticket:<ticketID>" holding
// the claimant's user id, expiring after the configured TTL. The lock store is
// the sole arbiter between racing buyers; the ticket row itself never records
// a hold.
type Manager struct {
	store  Store
	ttl    time.Duration
	logger *zap.Logger
}

func NewManager(store Store, ttl time.Duration, logger *zap.Logger) *Manager {
	if ttl <= 0 {
		ttl = DefaultHoldTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, ttl: ttl, logger: logger}
}

func (m *Manager) TTL() time.Duration {
	return m.ttl
}

func lockKey(ticketID uuid.UUID) string {
	return keyPrefix + ticketID.String()
}

// Acquire claims a hold on the ticket for the user. It returns false when the
// ticket is already held by anyone, including the same user: re-acquisition is
// deliberately not idempotent so callers check-then-act explicitly. Store
// errors also report false: a hold we cannot confirm is treated as not taken,
// failing toward unavailability rather than an oversell.
func (m *Manager) Acquire(ctx context.Context, ticketID, userID uuid.UUID) bool {
	ok, err := m.store.SetNX(ctx, lockKey(ticketID), userID.String(), m.ttl)
	if err != nil {
		m.logger.Error("failed to acquire ticket hold",
			zap.String("ticket_id", ticketID.String()),
			zap.Error(err))
		return false
	}
	return ok
}

// IsHeld reports whether anyone currently holds the ticket. A store error
// reports true for the same fail-safe reason Acquire reports false.
func (m *Manager) IsHeld(ctx context.Context, ticketID uuid.UUID) bool {
	_, found, err := m.store.Get(ctx, lockKey(ticketID))
	if err != nil {
		m.logger.Error("failed to check ticket hold",
			zap.String("ticket_id", ticketID.String()),
			zap.Error(err))
		return true
	}
	return found
}

// IsHeldByOther reports whether a user other than userID holds the ticket.
func (m *Manager) IsHeldByOther(ctx context.Context, ticketID, userID uuid.UUID) bool {
	holder, found, err := m.store.Get(ctx, lockKey(ticketID))
	if err != nil {
		m.logger.Error("failed to check ticket hold",
			zap.String("ticket_id", ticketID.String()),
			zap.Error(err))
		return true
	}
	return found && holder != userID.String()
}

// Release frees the hold on a ticket regardless of holder. It is idempotent:
// releasing an unheld ticket reports true. Only a store failure reports false,
// and even then the hold self-expires via TTL.
func (m *Manager) Release(ctx context.Context, ticketID uuid.UUID) bool {
	if err := m.store.Del(ctx, lockKey(ticketID)); err != nil {
		m.logger.Warn("failed to release ticket hold",
			zap.String("ticket_id", ticketID.String()),
			zap.Error(err))
		return false
	}
	return true
}

// ReleaseAll frees every hold whose holder is userID, leaving other users'
// holds intact. Best-effort: failures are logged and skipped. Linear in the
// number of active holds, which stays small because holds are TTL-bounded.
func (m *Manager) ReleaseAll(ctx context.Context, userID uuid.UUID) {
	keys, err := m.store.Keys(ctx, keyPrefix+"*")
	if err != nil {
		m.logger.Error("failed to enumerate ticket holds", zap.Error(err))
		return
	}

	holder := userID.String()
	for _, key := range keys {
		value, found, err := m.store.Get(ctx, key)
		if err != nil || !found || value != holder {
			continue
		}
		if err := m.store.Del(ctx, key); err != nil {
			m.logger.Warn("failed to release ticket hold",
				zap.String("key", key),
				zap.Error(err))
		}
	}
}
