// Package notify implements the Notification Bus: a process-wide
// publish/subscribe keyed by session ID, gated by per-user notification
// preferences and backed by a latest-per-session map for badge restoration
// on reattach. There is no direct teacher analog — sandbox-api has no
// notification concept — so this is grounded in the general
// gin-handler-calls-into-singleton-service pattern the teacher uses for
// GetSessionManager()/GetTerminalHandler(), generalized into an explicit
// publish/subscribe type instead of a package-level global.
package notify

import (
	"sync"
	"time"

	"github.com/termhub/termhubd/internal/apierr"
	"github.com/termhub/termhubd/internal/store"
)

// Kind is a notification kind; the only two the hook ingress accepts.
type Kind string

const (
	KindNeedsInput Kind = "needs-input"
	KindCompleted  Kind = "completed"
)

// ParseKind validates a path-parameter string against the known kinds.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindNeedsInput, KindCompleted:
		return Kind(s), nil
	default:
		return "", apierr.New(apierr.InvalidInput, "kind must be needs-input or completed")
	}
}

// Notification is the {session ID, kind, timestamp} tuple published by the
// hook ingress and delivered to gated subscribers.
type Notification struct {
	SessionID string
	Kind      Kind
	Timestamp time.Time
}

// Listener is called once per matching Publish. Implementations must be
// cheap and non-blocking, the same contract every other fan-out path in
// the tree imposes.
type Listener func(Notification)

// Subscription is a cancellable subscribe handle.
type Subscription struct {
	cancel func()
	once   sync.Once
}

// Cancel unregisters the subscription. Safe to call more than once.
func (s *Subscription) Cancel() {
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
	})
}

// Bus is the Notification Bus. One instance is shared process-wide.
type Bus struct {
	st *store.Store

	mu        sync.Mutex
	latest    map[string]Notification
	listeners map[int]subscriber
	nextID    int
}

type subscriber struct {
	userID string
	fn     Listener
}

// NewBus constructs a Notification Bus backed by st for preference lookups.
func NewBus(st *store.Store) *Bus {
	return &Bus{
		st:        st,
		latest:    make(map[string]Notification),
		listeners: make(map[int]subscriber),
	}
}

// Subscribe registers fn to be called for every Publish whose kind the
// userID principal's preferences allow. Connection Handlers subscribe once
// per open connection, when the connection opens.
func (b *Bus) Subscribe(userID string, fn Listener) *Subscription {
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.listeners[id] = subscriber{userID: userID, fn: fn}
	b.mu.Unlock()

	return &Subscription{cancel: func() {
		b.mu.Lock()
		delete(b.listeners, id)
		b.mu.Unlock()
	}}
}

// Publish records sessionId/kind as the latest notification for that
// session and fans it out to every subscriber whose principal's
// preferences enable that kind. Preference lookups happen outside the
// bus's own lock, matching the "never hold the lock across a store read"
// discipline used throughout the session package.
func (b *Bus) Publish(sessionID string, kind Kind) {
	n := Notification{SessionID: sessionID, Kind: kind, Timestamp: time.Now()}

	b.mu.Lock()
	b.latest[sessionID] = n
	subs := make([]subscriber, 0, len(b.listeners))
	for _, s := range b.listeners {
		subs = append(subs, s)
	}
	b.mu.Unlock()

	for _, s := range subs {
		if b.allows(s.userID, kind) {
			s.fn(n)
		}
	}
}

func (b *Bus) allows(userID string, kind Kind) bool {
	prefs, err := b.st.GetPreferences(userID)
	if err != nil {
		return false
	}
	if kind == KindNeedsInput {
		return prefs.NotifyOnInput
	}
	return prefs.NotifyOnCompleted
}

// ClearForSession drops the latest-notification record for a session. The
// Connection Handler calls this whenever any connection attaches to the
// session.
func (b *Bus) ClearForSession(sessionID string) {
	b.mu.Lock()
	delete(b.latest, sessionID)
	b.mu.Unlock()
}

// LatestFor returns the most recent notification recorded for a session,
// for badge restoration, and whether one exists.
func (b *Bus) LatestFor(sessionID string) (Notification, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.latest[sessionID]
	return n, ok
}
