package reservation

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
)

func newTestManager(ttl time.Duration) (*Manager, *MemoryStore) {
	store := NewMemoryStore()
	return NewManager(store, ttl, nil), store
}

func TestAcquireIsExclusive(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(time.Minute)

	ticketID := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	if !manager.Acquire(ctx, ticketID, alice) {
		t.Fatal("first acquire should succeed")
	}
	if manager.Acquire(ctx, ticketID, bob) {
		t.Error("acquire by another user should fail while held")
	}
	if manager.Acquire(ctx, ticketID, alice) {
		t.Error("re-acquire by the holder should also fail")
	}
}

func TestAcquireAfterTTLElapsed(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(30 * time.Millisecond)

	ticketID := uuid.New()
	if !manager.Acquire(ctx, ticketID, uuid.New()) {
		t.Fatal("first acquire should succeed")
	}

	time.Sleep(60 * time.Millisecond)

	if manager.IsHeld(ctx, ticketID) {
		t.Error("hold should have expired")
	}
	if !manager.Acquire(ctx, ticketID, uuid.New()) {
		t.Error("acquire should succeed after the hold expired")
	}
}

func TestIsHeldByOther(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(time.Minute)

	ticketID := uuid.New()
	alice := uuid.New()
	bob := uuid.New()

	if manager.IsHeldByOther(ctx, ticketID, alice) {
		t.Error("unheld ticket should not report a conflicting hold")
	}

	manager.Acquire(ctx, ticketID, alice)

	if manager.IsHeldByOther(ctx, ticketID, alice) {
		t.Error("holder should not conflict with their own hold")
	}
	if !manager.IsHeldByOther(ctx, ticketID, bob) {
		t.Error("another user should see the ticket as held")
	}
	if !manager.IsHeld(ctx, ticketID) {
		t.Error("IsHeld should report the hold")
	}
}

func TestReleaseIsIdempotent(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(time.Minute)

	ticketID := uuid.New()
	if !manager.Release(ctx, ticketID) {
		t.Error("releasing an unheld ticket should report true")
	}

	manager.Acquire(ctx, ticketID, uuid.New())
	if !manager.Release(ctx, ticketID) {
		t.Error("release should succeed")
	}
	if manager.IsHeld(ctx, ticketID) {
		t.Error("ticket should be free after release")
	}
	if !manager.Release(ctx, ticketID) {
		t.Error("second release should still report true")
	}
}

func TestReleaseAllScopedToUser(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(time.Minute)

	alice := uuid.New()
	bob := uuid.New()
	aliceTickets := []uuid.UUID{uuid.New(), uuid.New()}
	bobTicket := uuid.New()

	for _, ticketID := range aliceTickets {
		if !manager.Acquire(ctx, ticketID, alice) {
			t.Fatal("acquire should succeed")
		}
	}
	if !manager.Acquire(ctx, bobTicket, bob) {
		t.Fatal("acquire should succeed")
	}

	manager.ReleaseAll(ctx, alice)

	for _, ticketID := range aliceTickets {
		if manager.IsHeld(ctx, ticketID) {
			t.Errorf("ticket %s should have been released", ticketID)
		}
	}
	if !manager.IsHeld(ctx, bobTicket) {
		t.Error("another user's hold must survive ReleaseAll")
	}
}

func TestConcurrentAcquireSingleWinner(t *testing.T) {
	ctx := context.Background()
	manager, _ := newTestManager(time.Minute)

	ticketID := uuid.New()
	const attempts = 32

	var wg sync.WaitGroup
	var mu sync.Mutex
	winners := 0

	for i := 0; i < attempts; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if manager.Acquire(ctx, ticketID, uuid.New()) {
				mu.Lock()
				winners++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if winners != 1 {
		t.Errorf("expected exactly one winner, got %d", winners)
	}
}
