package session

import (
	"sync"
	"time"

	"github.com/termhub/termhubd/internal/ptyadapter"
	"github.com/termhub/termhubd/internal/ring"
)

// DataFunc and ExitFunc mirror ptyadapter's callback shapes; listeners
// registered through Manager.SubscribeData/SubscribeExit must be cheap,
// the same contract the PTY Adapter itself imposes.
type DataFunc func(data []byte)
type ExitFunc func(code int)

// Subscription is a cancellable handle returned by SubscribeData and
// SubscribeExit, per the design's preference for an explicit value with a
// Cancel method over a bare function-return handle.
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

// liveSession is the in-memory, owning representation of one
// non-terminated session: its PTY, its scrollback ring, its attached
// client set and its data/exit subscriber sets. All of these are mutated
// under mu, the "per-session lock" the design requires — never held
// across a transport send or a store write.
type liveSession struct {
	id      string
	adapter *ptyadapter.Adapter

	mu               sync.Mutex
	ring             *ring.Ring
	dataSubs         map[int]DataFunc
	exitSubs         map[int]ExitFunc
	nextSubID        int
	clients          map[string]struct{}
	cols, rows       int
	externalHandle   string
	lastTouchPersist time.Time
	emptySince       time.Time
	discarded        bool
}

func newLiveSession(id string, adapter *ptyadapter.Adapter, capacity, cols, rows int, externalHandle string) *liveSession {
	return &liveSession{
		id:             id,
		adapter:        adapter,
		ring:           ring.New(capacity),
		dataSubs:       make(map[int]DataFunc),
		exitSubs:       make(map[int]ExitFunc),
		clients:        make(map[string]struct{}),
		cols:           cols,
		rows:           rows,
		externalHandle: externalHandle,
		emptySince:     time.Now(),
	}
}

// markDiscarded flags the liveSession as torn down outside the normal
// handlePTYExit path (explicit Terminate, or Create's compensating
// cleanup), so a subsequent PTY exit callback knows not to touch the
// store on a row it may not have created.
func (ls *liveSession) markDiscarded() {
	ls.mu.Lock()
	ls.discarded = true
	ls.mu.Unlock()
}

func (ls *liveSession) isDiscarded() bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.discarded
}

// idleFor reports how long the session has had zero attached clients, or 0
// if at least one client is currently attached.
func (ls *liveSession) idleFor(now time.Time) time.Duration {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if len(ls.clients) > 0 || ls.emptySince.IsZero() {
		return 0
	}
	return now.Sub(ls.emptySince)
}

// onData is the PTY Adapter's data callback: append to the ring, then
// fan out to every data subscriber with the raw bytes. No per-subscriber
// buffering; subscribers (Connection Handlers) own their own backpressure.
func (ls *liveSession) onData(data []byte) {
	ls.mu.Lock()
	ls.ring.Append(data)
	subs := make([]DataFunc, 0, len(ls.dataSubs))
	for _, fn := range ls.dataSubs {
		subs = append(subs, fn)
	}
	ls.mu.Unlock()

	for _, fn := range subs {
		fn(data)
	}
}

func (ls *liveSession) onExit(code int) {
	ls.mu.Lock()
	subs := make([]ExitFunc, 0, len(ls.exitSubs))
	for _, fn := range ls.exitSubs {
		subs = append(subs, fn)
	}
	ls.mu.Unlock()

	for _, fn := range subs {
		fn(code)
	}
}

func (ls *liveSession) subscribeData(fn DataFunc) *Subscription {
	ls.mu.Lock()
	id := ls.nextSubID
	ls.nextSubID++
	ls.dataSubs[id] = fn
	ls.mu.Unlock()

	return &Subscription{cancel: func() {
		ls.mu.Lock()
		delete(ls.dataSubs, id)
		ls.mu.Unlock()
	}}
}

func (ls *liveSession) subscribeExit(fn ExitFunc) *Subscription {
	ls.mu.Lock()
	id := ls.nextSubID
	ls.nextSubID++
	ls.exitSubs[id] = fn
	ls.mu.Unlock()

	return &Subscription{cancel: func() {
		ls.mu.Lock()
		delete(ls.exitSubs, id)
		ls.mu.Unlock()
	}}
}

// attachClient adds clientID to the attached set and reports whether this
// was the first attach (status should transition to active).
func (ls *liveSession) attachClient(clientID string) (firstAttach bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	firstAttach = len(ls.clients) == 0
	ls.clients[clientID] = struct{}{}
	if firstAttach {
		ls.emptySince = time.Time{}
	}
	return firstAttach
}

// detachClient removes clientID and reports whether the set is now empty
// (status should transition to idle).
func (ls *liveSession) detachClient(clientID string) (nowEmpty bool) {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	delete(ls.clients, clientID)
	nowEmpty = len(ls.clients) == 0
	if nowEmpty {
		ls.emptySince = time.Now()
	}
	return nowEmpty
}

func (ls *liveSession) clientCount() int {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return len(ls.clients)
}

func (ls *liveSession) scrollback() string {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	return ls.ring.Joined()
}

func (ls *liveSession) setDims(cols, rows int) {
	ls.mu.Lock()
	ls.cols, ls.rows = cols, rows
	ls.mu.Unlock()
}

// shouldPersistTouch reports whether at least the debounce interval has
// elapsed since the last durable last-accessed update, and if so marks
// now as the new baseline.
func (ls *liveSession) shouldPersistTouch(now time.Time, debounce time.Duration) bool {
	ls.mu.Lock()
	defer ls.mu.Unlock()
	if now.Sub(ls.lastTouchPersist) < debounce {
		return false
	}
	ls.lastTouchPersist = now
	return true
}
