package session

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/peiyulin/carelink-linebot-go/internal/logger"
	"github.com/peiyulin/carelink-linebot-go/internal/storage"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	db, err := storage.NewTestDB()
	if err != nil {
		t.Fatalf("NewTestDB() error = %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	return NewStore(db, logger.NewWithWriter("error", io.Discard))
}

func TestKeyedLockSerializes(t *testing.T) {
	locks := newKeyedLock()

	var (
		wg      sync.WaitGroup
		counter int
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock := locks.Lock("U1")
			defer unlock()
			counter++
		}()
	}
	wg.Wait()

	if counter != 100 {
		t.Errorf("counter = %d, want 100", counter)
	}
	if locks.Size() != 0 {
		t.Errorf("Size() = %d, want 0 after all released", locks.Size())
	}
}

func TestKeyedLockIndependentKeys(t *testing.T) {
	locks := newKeyedLock()

	unlockA := locks.Lock("A")
	defer unlockA()

	done := make(chan struct{})
	go func() {
		unlockB := locks.Lock("B")
		unlockB()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("lock on B blocked by holder of A")
	}
}

func TestGetReturnsEmptySessionForNewUser(t *testing.T) {
	store := newTestStore(t)

	sess, expiredFlow, err := store.Get(context.Background(), "U_new")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if expiredFlow != "" {
		t.Errorf("expiredFlow = %q for new user", expiredFlow)
	}
	if sess == nil || sess.UserID != "U_new" || sess.FlowName != "" {
		t.Errorf("sess = %+v, want empty session for U_new", sess)
	}
}

func TestLazyExpiry(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.StartFlow(ctx, "U1", "create_group", "await_title", nil, -time.Minute); err != nil {
		t.Fatalf("StartFlow() error = %v", err)
	}

	sess, expiredFlow, err := store.Get(ctx, "U1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if expiredFlow != "create_group" {
		t.Errorf("expiredFlow = %q, want create_group", expiredFlow)
	}
	if sess.FlowName != "" {
		t.Errorf("FlowName = %q, want cleared", sess.FlowName)
	}

	// The clear persisted: the next read is a plain no-flow session.
	sess, expiredFlow, err = store.Get(ctx, "U1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if expiredFlow != "" {
		t.Error("expiry reported twice for the same deadline")
	}
	if sess.FlowName != "" {
		t.Errorf("FlowName = %q, want still cleared", sess.FlowName)
	}
}

func TestFlowWithinDeadlineNotExpired(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	if err := store.StartFlow(ctx, "U1", "add_family", "await_name", nil, 10*time.Minute); err != nil {
		t.Fatalf("StartFlow() error = %v", err)
	}

	sess, expiredFlow, err := store.Get(ctx, "U1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if expiredFlow != "" {
		t.Errorf("expiredFlow = %q inside deadline", expiredFlow)
	}
	if sess.FlowName != "add_family" {
		t.Errorf("FlowName = %q, want add_family", sess.FlowName)
	}
}
