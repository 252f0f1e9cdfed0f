package notify

import (
	"path/filepath"
	"testing"

	"github.com/termhub/termhubd/internal/apierr"
	"github.com/termhub/termhubd/internal/store"
)

func openTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	st, err := store.Open(filepath.Join(dir, "test.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { st.Close() })
	return st
}

func TestParseKindRejectsUnknown(t *testing.T) {
	if _, err := ParseKind("bogus"); apierr.KindOf(err) != apierr.InvalidInput {
		t.Fatalf("expected invalid input, got %v", err)
	}
	if k, err := ParseKind("completed"); err != nil || k != KindCompleted {
		t.Fatalf("expected KindCompleted, got %v %v", k, err)
	}
}

// TestNotificationGating exercises scenario S4: notifyOnInput=true,
// notifyOnCompleted=false. A "completed" publish is suppressed; a
// subsequent "needs-input" publish is delivered once.
func TestNotificationGating(t *testing.T) {
	st := openTestStore(t)
	if err := st.UpsertPreferences(store.Preferences{
		UserID: "u1", BrowserEnabled: true, VisualEnabled: true,
		NotifyOnInput: true, NotifyOnCompleted: false,
	}); err != nil {
		t.Fatalf("upsert prefs: %v", err)
	}

	bus := NewBus(st)
	received := make(chan Notification, 4)
	sub := bus.Subscribe("u1", func(n Notification) { received <- n })
	defer sub.Cancel()

	bus.Publish("sess-1", KindCompleted)
	select {
	case n := <-received:
		t.Fatalf("expected no notification for completed, got %+v", n)
	default:
	}

	bus.Publish("sess-1", KindNeedsInput)
	select {
	case n := <-received:
		if n.Kind != KindNeedsInput || n.SessionID != "sess-1" {
			t.Fatalf("unexpected notification %+v", n)
		}
	default:
		t.Fatalf("expected a needs-input notification")
	}
}

func TestLatestForAndClear(t *testing.T) {
	st := openTestStore(t)
	bus := NewBus(st)

	if _, ok := bus.LatestFor("s1"); ok {
		t.Fatalf("expected no latest notification before any publish")
	}
	bus.Publish("s1", KindCompleted)
	n, ok := bus.LatestFor("s1")
	if !ok || n.Kind != KindCompleted {
		t.Fatalf("expected latest completed notification, got %+v ok=%v", n, ok)
	}

	bus.ClearForSession("s1")
	if _, ok := bus.LatestFor("s1"); ok {
		t.Fatalf("expected latest cleared")
	}
}

func TestSubscribeCancelStopsDelivery(t *testing.T) {
	st := openTestStore(t)
	if err := st.UpsertPreferences(store.Preferences{UserID: "u1", NotifyOnCompleted: true}); err != nil {
		t.Fatalf("upsert prefs: %v", err)
	}
	bus := NewBus(st)
	received := make(chan Notification, 4)
	sub := bus.Subscribe("u1", func(n Notification) { received <- n })
	sub.Cancel()
	sub.Cancel() // idempotent

	bus.Publish("s1", KindCompleted)
	select {
	case n := <-received:
		t.Fatalf("expected no delivery after cancel, got %+v", n)
	default:
	}
}
