// Package session implements the Session Manager: session lifecycle,
// fan-out, quota enforcement and idle reaping. It is the exclusive owner
// of every live PTY, scrollback ring and attached-client table, generalized
// from the teacher's terminal.SessionManager/ManagedSession
// (handler/terminal/session_manager.go) — a single global map of
// PTY-backed buffers — into the full create/get/list/write/resize/rename/
// move/terminate/delete/subscribe/attach/detach contract.
package session

import (
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/termhub/termhubd/internal/apierr"
	"github.com/termhub/termhubd/internal/persistence"
	"github.com/termhub/termhubd/internal/ptyadapter"
	"github.com/termhub/termhubd/internal/store"
)

// touchDebounce is the minimum interval between durable last-accessed
// updates triggered by Write.
const touchDebounce = 5 * time.Second

// reaperInterval is how often the idle reaper runs.
const reaperInterval = 60 * time.Second

// CreateOpts are the inputs to Create. Create itself validates
// name/shell/cwd/dims; the Connection Handler passes session.create
// payloads through without checking them first.
type CreateOpts struct {
	Name  string
	Shell string
	Cwd   string
	Cols  int
	Rows  int
	Owner string
	Env   map[string]string
}

// SessionView is a durable session record augmented with the
// in-memory-liveness flag list() must report.
type SessionView struct {
	store.Session
	Attachable bool
}

// Manager is the Session Manager. Construct one per server; tests
// construct fresh instances rather than relying on a global singleton, per
// the design's guidance against module-scoped state.
type Manager struct {
	st          *store.Store
	helper      persistence.Helper
	maxSessions int
	idleTimeout time.Duration
	ringCap     int

	mu   sync.RWMutex
	live map[string]*liveSession

	stopCh chan struct{}
	wg     sync.WaitGroup
}

// NewManager constructs a Session Manager. idleTimeout == 0 disables idle
// reaping.
func NewManager(st *store.Store, helper persistence.Helper, maxSessions int, idleTimeout time.Duration, ringCapacity int) *Manager {
	return &Manager{
		st:          st,
		helper:      helper,
		maxSessions: maxSessions,
		idleTimeout: idleTimeout,
		ringCap:     ringCapacity,
		live:        make(map[string]*liveSession),
		stopCh:      make(chan struct{}),
	}
}

// Start launches the idle reaper background task.
func (m *Manager) Start() {
	m.wg.Add(1)
	go m.reapLoop()
}

// Shutdown stops the idle reaper, persists scrollback for every live
// session when the fallback helper is in effect, marks every live session
// idle (never terminated) and kills the PTYs that have no external
// multiplexer handle. A new Manager starts with an empty live table and
// does not reload these sessions, so after a restart they are listed but
// not attachable.
func (m *Manager) Shutdown() {
	close(m.stopCh)
	m.wg.Wait()

	m.mu.Lock()
	ids := make([]string, 0, len(m.live))
	for id := range m.live {
		ids = append(ids, id)
	}
	m.mu.Unlock()

	for _, id := range ids {
		m.mu.RLock()
		ls, ok := m.live[id]
		m.mu.RUnlock()
		if !ok {
			continue
		}

		if !m.helper.UsesMultiplexer() {
			if err := m.st.SaveScrollback(id, ls.scrollback()); err != nil {
				logrus.WithError(err).WithField("session_id", id).Warn("session: shutdown scrollback persist failed")
			}
		}

		if sess, err := m.st.GetSession(id); err == nil {
			sess.Status = store.StatusIdle
			if err := m.st.UpdateSession(sess); err != nil {
				logrus.WithError(err).WithField("session_id", id).Warn("session: shutdown mark-idle failed")
			}
		}

		if ls.externalHandle == "" {
			ls.markDiscarded()
			ls.adapter.Kill()
		}
	}
}

func (m *Manager) reapLoop() {
	defer m.wg.Done()
	if m.idleTimeout <= 0 {
		<-m.stopCh
		return
	}
	ticker := time.NewTicker(reaperInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			m.reapIdle()
		case <-m.stopCh:
			return
		}
	}
}

func (m *Manager) reapIdle() {
	now := time.Now()
	m.mu.RLock()
	candidates := make([]string, 0)
	for id, ls := range m.live {
		if ls.idleFor(now) >= m.idleTimeout {
			candidates = append(candidates, id)
		}
	}
	m.mu.RUnlock()

	for _, id := range candidates {
		if _, err := m.Terminate(id); err != nil {
			logrus.WithError(err).WithField("session_id", id).Warn("session: idle reap failed")
		}
	}
}

// Create allocates a new session: PTY spawn, optional multiplexer handle,
// ring + callback wiring, then a durable insert. If the durable insert
// fails, the PTY and any external handle are torn down and the ring is
// discarded before the error is surfaced — the session is only published
// to the in-memory table after a successful insert.
func (m *Manager) Create(opts CreateOpts) (store.Session, error) {
	name, err := ValidateName(opts.Name)
	if err != nil {
		return store.Session{}, err
	}
	if err := ValidateShell(opts.Shell); err != nil {
		return store.Session{}, err
	}
	if err := ValidateCwd(opts.Cwd); err != nil {
		return store.Session{}, err
	}
	cols, rows := opts.Cols, opts.Rows
	if cols == 0 && rows == 0 {
		cols, rows = 80, 24
	}
	if err := ValidateDims(cols, rows); err != nil {
		return store.Session{}, err
	}

	count, err := m.st.CountNonTerminated()
	if err != nil {
		return store.Session{}, apierr.Wrap(apierr.TransientStore, "count sessions", err)
	}
	if count >= m.maxSessions {
		return store.Session{}, apierr.New(apierr.QuotaExceeded, fmt.Sprintf("Maximum session limit (%d) reached", m.maxSessions))
	}

	id := uuid.New().String()

	adapter, err := ptyadapter.Spawn(ptyadapter.Opts{
		Shell: opts.Shell, Cwd: opts.Cwd, Cols: cols, Rows: rows, Env: opts.Env, SessionID: id,
	})
	if err != nil {
		return store.Session{}, apierr.Wrap(apierr.TransientStore, "spawn pty", err)
	}

	var handle string
	if m.helper.UsesMultiplexer() {
		handle, err = m.helper.CreateHandle(id)
		if err != nil {
			adapter.Kill()
			return store.Session{}, apierr.Wrap(apierr.TransientStore, "create multiplexer handle", err)
		}
	}

	ls := newLiveSession(id, adapter, m.ringCap, cols, rows, handle)
	adapter.OnData(ls.onData)
	adapter.OnExit(func(code int) { m.handlePTYExit(ls, code) })

	now := time.Now()
	maxOrder, err := m.st.MaxSortOrder(nil)
	if err != nil {
		ls.markDiscarded()
		adapter.Kill()
		m.helper.TeardownHandle(handle)
		return store.Session{}, apierr.Wrap(apierr.TransientStore, "compute sort order", err)
	}

	sess := store.Session{
		ID: id, Name: name, Shell: opts.Shell, Cwd: opts.Cwd,
		CreatedAt: now, LastAccessedAt: now, OwnerID: opts.Owner,
		Status: store.StatusIdle, Cols: cols, Rows: rows,
		ExternalMuxHandle: handle, CategoryID: nil, SortOrder: maxOrder + 1,
	}
	if err := m.st.InsertSession(sess); err != nil {
		ls.markDiscarded()
		adapter.Kill()
		m.helper.TeardownHandle(handle)
		return store.Session{}, apierr.Wrap(apierr.TransientStore, "insert session", err)
	}

	m.mu.Lock()
	m.live[id] = ls
	m.mu.Unlock()

	if err := m.st.AppendEvent(id, store.EventCreate, ""); err != nil {
		logrus.WithError(err).WithField("session_id", id).Warn("session: append create event failed")
	}

	return sess, nil
}

// handlePTYExit runs when the child process exits on its own (not via an
// explicit Terminate). It fans the exit out to subscribers and then
// performs the same store/bookkeeping cleanup Terminate does, skipping the
// already-dead adapter's Kill call.
func (m *Manager) handlePTYExit(ls *liveSession, code int) {
	ls.onExit(code)

	if ls.isDiscarded() {
		return
	}

	m.mu.Lock()
	_, stillLive := m.live[ls.id]
	delete(m.live, ls.id)
	m.mu.Unlock()
	if !stillLive {
		return
	}

	if !m.helper.UsesMultiplexer() {
		if err := m.st.SaveScrollback(ls.id, ls.scrollback()); err != nil {
			logrus.WithError(err).WithField("session_id", ls.id).Warn("session: exit scrollback persist failed")
		}
	}
	if ls.externalHandle != "" {
		m.helper.TeardownHandle(ls.externalHandle)
	}

	if sess, err := m.st.GetSession(ls.id); err == nil {
		sess.Status = store.StatusTerminated
		if err := m.st.UpdateSession(sess); err != nil {
			logrus.WithError(err).WithField("session_id", ls.id).Warn("session: exit mark-terminated failed")
		}
	}
	if err := m.st.AppendEvent(ls.id, store.EventExit, fmt.Sprintf("code=%d", code)); err != nil {
		logrus.WithError(err).WithField("session_id", ls.id).Warn("session: append exit event failed")
	}
}

// Get returns the durable record for id plus whether a live in-memory
// session exists for it.
func (m *Manager) Get(id string) (store.Session, bool, error) {
	sess, err := m.st.GetSession(id)
	if err != nil {
		return store.Session{}, false, apierr.New(apierr.NotFound, "session not found")
	}
	return sess, m.isLive(id), nil
}

// List merges the durable records with an attachable flag set iff a live
// in-memory session exists for that id at the moment of the call.
func (m *Manager) List() ([]SessionView, error) {
	sessions, err := m.st.ListSessions()
	if err != nil {
		return nil, apierr.Wrap(apierr.TransientStore, "list sessions", err)
	}
	out := make([]SessionView, 0, len(sessions))
	for _, s := range sessions {
		out = append(out, SessionView{Session: s, Attachable: m.isLive(s.ID)})
	}
	return out, nil
}

func (m *Manager) isLive(id string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.live[id]
	return ok
}

func (m *Manager) getLive(id string) (*liveSession, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ls, ok := m.live[id]
	return ls, ok
}

// Write forwards bytes to the PTY, marks the session active, and debounces
// (≥5s) the durable last-accessed update.
func (m *Manager) Write(id string, data []byte) error {
	ls, ok := m.getLive(id)
	if !ok {
		return apierr.New(apierr.NotFound, "session not found")
	}
	ls.adapter.Write(data)

	now := time.Now()
	if !ls.shouldPersistTouch(now, touchDebounce) {
		return nil
	}
	sess, err := m.st.GetSession(id)
	if err != nil {
		return nil // swallowed per design: debounced touches swallow errors
	}
	sess.LastAccessedAt = now
	if sess.Status != store.StatusTerminated {
		sess.Status = store.StatusActive
	}
	if err := m.st.UpdateSession(sess); err != nil {
		logrus.WithError(err).WithField("session_id", id).Warn("session: debounced touch failed")
	}
	return nil
}

// Resize forwards to the PTY, mutates the in-memory dimensions, and
// durably updates cols/rows.
func (m *Manager) Resize(id string, cols, rows int) error {
	if err := ValidateDims(cols, rows); err != nil {
		return err
	}
	ls, ok := m.getLive(id)
	if !ok {
		return apierr.New(apierr.NotFound, "session not found")
	}
	ls.adapter.Resize(cols, rows)
	ls.setDims(cols, rows)

	sess, err := m.st.GetSession(id)
	if err != nil {
		return apierr.New(apierr.NotFound, "session not found")
	}
	sess.Cols, sess.Rows = cols, rows
	if err := m.st.UpdateSession(sess); err != nil {
		return apierr.Wrap(apierr.TransientStore, "update session dims", err)
	}
	return nil
}

// Rename is a durable mutation with an event-log entry. rename(id,n)
// applied twice is a no-op after the first: the final durable name is n
// either way.
func (m *Manager) Rename(id, name string) error {
	trimmed, err := ValidateName(name)
	if err != nil {
		return err
	}
	sess, err := m.st.GetSession(id)
	if err != nil {
		return apierr.New(apierr.NotFound, "session not found")
	}
	sess.Name = trimmed
	if err := m.st.UpdateSession(sess); err != nil {
		return apierr.Wrap(apierr.TransientStore, "rename session", err)
	}
	if err := m.st.AppendEvent(id, store.EventRename, trimmed); err != nil {
		logrus.WithError(err).WithField("session_id", id).Warn("session: append rename event failed")
	}
	return nil
}

// Move assigns the session to categoryID (nil for uncategorized),
// recomputing sort_order to end-of-target-category.
func (m *Manager) Move(id string, categoryID *string) error {
	sess, err := m.st.GetSession(id)
	if err != nil {
		return apierr.New(apierr.NotFound, "session not found")
	}
	if categoryID != nil {
		if _, err := m.st.GetCategory(*categoryID); err != nil {
			return apierr.New(apierr.NotFound, "Category not found")
		}
	}
	maxOrder, err := m.st.MaxSortOrder(categoryID)
	if err != nil {
		return apierr.Wrap(apierr.TransientStore, "compute sort order", err)
	}
	sess.CategoryID = categoryID
	sess.SortOrder = maxOrder + 1
	if err := m.st.UpdateSession(sess); err != nil {
		return apierr.Wrap(apierr.TransientStore, "move session", err)
	}
	details := ""
	if categoryID != nil {
		details = *categoryID
	}
	if err := m.st.AppendEvent(id, store.EventMove, details); err != nil {
		logrus.WithError(err).WithField("session_id", id).Warn("session: append move event failed")
	}
	return nil
}

// Terminate tears down a live session: persists scrollback if the fallback
// helper is in effect, tears down the external multiplexer handle if any,
// kills the PTY, drops listeners/ring/debounce state, and marks the
// session terminated in the store. Returns false if id has no live
// in-memory session (including already-terminated or never-existed ids —
// see DESIGN.md for the rationale).
func (m *Manager) Terminate(id string) (bool, error) {
	m.mu.Lock()
	ls, ok := m.live[id]
	if ok {
		delete(m.live, id)
	}
	m.mu.Unlock()
	if !ok {
		return false, nil
	}

	ls.markDiscarded()

	if !m.helper.UsesMultiplexer() {
		if err := m.st.SaveScrollback(id, ls.scrollback()); err != nil {
			logrus.WithError(err).WithField("session_id", id).Warn("session: terminate scrollback persist failed")
		}
	}
	if ls.externalHandle != "" {
		m.helper.TeardownHandle(ls.externalHandle)
	}
	ls.adapter.Kill()

	sess, err := m.st.GetSession(id)
	if err != nil {
		return true, apierr.Wrap(apierr.TransientStore, "load session for terminate", err)
	}
	sess.Status = store.StatusTerminated
	if err := m.st.UpdateSession(sess); err != nil {
		return true, apierr.Wrap(apierr.TransientStore, "mark session terminated", err)
	}
	if err := m.st.AppendEvent(id, store.EventTerminate, ""); err != nil {
		logrus.WithError(err).WithField("session_id", id).Warn("session: append terminate event failed")
	}
	return true, nil
}

// Delete terminates the session if live, then removes it from the store,
// cascading to scrollback and the event log.
func (m *Manager) Delete(id string) error {
	if _, err := m.Terminate(id); err != nil {
		return err
	}
	_ = m.st.AppendEvent(id, store.EventDelete, "")
	if err := m.st.DeleteSession(id); err != nil {
		return apierr.Wrap(apierr.TransientStore, "delete session", err)
	}
	return nil
}

// SubscribeData registers fn to receive every chunk of raw PTY output for
// id, in PTY emission order.
func (m *Manager) SubscribeData(id string, fn DataFunc) (*Subscription, error) {
	ls, ok := m.getLive(id)
	if !ok {
		return nil, apierr.New(apierr.NotFound, "session not found")
	}
	return ls.subscribeData(fn), nil
}

// SubscribeExit registers fn to be called once with the PTY's exit code.
func (m *Manager) SubscribeExit(id string, fn ExitFunc) (*Subscription, error) {
	ls, ok := m.getLive(id)
	if !ok {
		return nil, apierr.New(apierr.NotFound, "session not found")
	}
	return ls.subscribeExit(fn), nil
}

// AttachClient is pure bookkeeping: tracks the attached client set. On the
// first attach the session transitions to active (durably).
func (m *Manager) AttachClient(id, clientID string) error {
	ls, ok := m.getLive(id)
	if !ok {
		return apierr.New(apierr.NotFound, "session not found")
	}
	if first := ls.attachClient(clientID); first {
		m.setStatus(id, store.StatusActive)
		_ = m.st.AppendEvent(id, store.EventAttachClient, clientID)
	}
	return nil
}

// DetachClient is pure bookkeeping: on the last detach the session
// transitions to idle (durably).
func (m *Manager) DetachClient(id, clientID string) error {
	ls, ok := m.getLive(id)
	if !ok {
		return apierr.New(apierr.NotFound, "session not found")
	}
	if empty := ls.detachClient(clientID); empty {
		m.setStatus(id, store.StatusIdle)
		_ = m.st.AppendEvent(id, store.EventDetachClient, clientID)
	}
	return nil
}

func (m *Manager) setStatus(id string, status store.Status) {
	sess, err := m.st.GetSession(id)
	if err != nil {
		return
	}
	if sess.Status == store.StatusTerminated {
		return
	}
	sess.Status = status
	if err := m.st.UpdateSession(sess); err != nil {
		logrus.WithError(err).WithField("session_id", id).Warn("session: status update failed")
	}
}

// GetScrollback returns the live ring contents for a live session, or the
// last persisted blob (possibly empty) for a terminated/unloaded one.
func (m *Manager) GetScrollback(id string) (string, error) {
	if ls, ok := m.getLive(id); ok {
		return ls.scrollback(), nil
	}
	blob, err := m.st.GetScrollback(id)
	if err != nil {
		return "", apierr.Wrap(apierr.TransientStore, "get scrollback", err)
	}
	return blob, nil
}
