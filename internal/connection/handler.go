// Package connection implements the Connection Handler: the per-client
// state machine that gates a websocket transport behind the identity
// collaborator, wires it to a session's data/exit subscriptions, and
// dispatches each inbound frame through the rate limiter and protocol
// codec. Generalized from the teacher's TerminalHandler.HandleTerminalWS
// (handler/terminal.go) — upgrade, subscribe, a channel-fed writer
// goroutine racing a read loop — into the full attach/detach/multi-session
// state machine the design requires.
package connection

import (
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/termhub/termhubd/internal/apierr"
	"github.com/termhub/termhubd/internal/category"
	"github.com/termhub/termhubd/internal/identity"
	"github.com/termhub/termhubd/internal/notify"
	"github.com/termhub/termhubd/internal/protocol"
	"github.com/termhub/termhubd/internal/ratelimit"
	"github.com/termhub/termhubd/internal/session"
	"github.com/termhub/termhubd/internal/store"
)

// outboxCapacity bounds the per-connection fan-out channel. PTY data that
// cannot be enqueued is dropped rather than blocking the producer, per the
// design's non-blocking fan-out requirement.
const outboxCapacity = 256

var upgrader = websocket.Upgrader{
	ReadBufferSize:  4096,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// Deps bundles every collaborator a Connection Handler needs. One Deps is
// shared across every connection the server serves.
type Deps struct {
	Manager    *session.Manager
	Categories *category.Service
	Bus        *notify.Bus
	Limiter    *ratelimit.Limiter
	Registry   *Registry
	Resolver   identity.Resolver
}

// state is the Connection Handler's lifecycle state.
type state int

const (
	statePending state = iota
	stateOpen
	stateAttached
	stateClosed
)

// Handler is one client's Connection Handler instance: per-client state
// machine, subscription wiring, and serialized outbound transport.
type Handler struct {
	id        string
	conn      *websocket.Conn
	principal identity.Principal
	deps      Deps

	mu                sync.Mutex
	state             state
	attachedSessionID string
	dataSub           *session.Subscription
	exitSub           *session.Subscription

	notifySub *notify.Subscription

	outbox    chan []byte
	writeMu   sync.Mutex
	closeOnce sync.Once
	done      chan struct{}
}

// Serve upgrades r to a websocket connection and runs its Connection
// Handler to completion, blocking until the client disconnects. Call this
// from the gin `/ws` route.
func Serve(w http.ResponseWriter, r *http.Request, deps Deps) {
	principal, err := deps.Resolver.Resolve(r)
	if err != nil {
		conn, upErr := upgrader.Upgrade(w, r, nil)
		if upErr != nil {
			return
		}
		_ = conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(4001, "unauthorized"), time.Now().Add(time.Second))
		conn.Close()
		return
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		logrus.WithError(err).Warn("connection: upgrade failed")
		return
	}

	h := &Handler{
		id:        uuid.New().String(),
		conn:      conn,
		principal: principal,
		deps:      deps,
		state:     stateOpen,
		outbox:    make(chan []byte, outboxCapacity),
		done:      make(chan struct{}),
	}
	h.run()
}

func (h *Handler) run() {
	h.deps.Registry.register(h)
	defer h.deps.Registry.unregister(h)
	defer h.cleanup()

	go h.writeLoop()

	h.send(protocol.TypeAuthSuccess, "", nil)

	h.notifySub = h.deps.Bus.Subscribe(h.principal.UserID, func(n notify.Notification) {
		h.send(protocol.TypeNotification, "", protocol.NotificationPayload{
			SessionID: n.SessionID, Kind: string(n.Kind), Timestamp: n.Timestamp,
		})
	})

	for {
		msgType, raw, err := h.conn.ReadMessage()
		if err != nil {
			return
		}
		if msgType == websocket.BinaryMessage {
			h.send(protocol.TypeError, "", protocol.ErrorPayload{Message: "binary frames are not supported"})
			continue
		}

		frame, err := protocol.Parse(raw)
		if err != nil {
			h.send(protocol.TypeError, "", protocol.ErrorPayload{Message: err.Error()})
			continue
		}

		if !h.deps.Limiter.TryAcquire(h.id) {
			h.send(protocol.TypeError, frame.ID, protocol.ErrorPayload{Message: "Rate limit exceeded"})
			continue
		}

		h.dispatch(frame)
	}
}

func (h *Handler) writeLoop() {
	for {
		select {
		case frame, ok := <-h.outbox:
			if !ok {
				return
			}
			h.writeMu.Lock()
			err := h.conn.WriteMessage(websocket.TextMessage, frame)
			h.writeMu.Unlock()
			if err != nil {
				h.closeTransport()
				return
			}
		case <-h.done:
			return
		}
	}
}

// enqueue is the non-blocking fan-out entry point used by PTY data
// callbacks: it never blocks the producer, dropping the frame if the
// client's outbox is full.
func (h *Handler) enqueue(frame []byte) {
	select {
	case h.outbox <- frame:
	default:
		logrus.WithField("client_id", h.id).Warn("connection: outbox full, dropping frame")
	}
}

// send builds and enqueues a frame. Used for direct replies and
// unsolicited pushes alike; replies pass the originating request's id,
// unsolicited events pass "".
func (h *Handler) send(typ, id string, payload interface{}) {
	frame, err := protocol.Encode(typ, id, payload)
	if err != nil {
		logrus.WithError(err).Warn("connection: encode failed")
		return
	}
	h.enqueue(frame)
}

// broadcast sends frame to every other open connection.
func (h *Handler) broadcast(typ string, payload interface{}) {
	frame, err := protocol.Encode(typ, "", payload)
	if err != nil {
		logrus.WithError(err).Warn("connection: broadcast encode failed")
		return
	}
	h.deps.Registry.Broadcast(frame, h.id)
}

func (h *Handler) closeTransport() {
	h.closeOnce.Do(func() { close(h.done) })
}

// cleanup runs once per connection on the way out: unsubscribe both
// tokens, detach-client, remove the rate-limit bucket, close the
// transport.
func (h *Handler) cleanup() {
	h.mu.Lock()
	h.state = stateClosed
	sid := h.attachedSessionID
	dataSub, exitSub, notifySub := h.dataSub, h.exitSub, h.notifySub
	h.attachedSessionID = ""
	h.dataSub, h.exitSub, h.notifySub = nil, nil, nil
	h.mu.Unlock()

	if dataSub != nil {
		dataSub.Cancel()
	}
	if exitSub != nil {
		exitSub.Cancel()
	}
	if notifySub != nil {
		notifySub.Cancel()
	}
	if sid != "" {
		_ = h.deps.Manager.DetachClient(sid, h.id)
	}
	h.deps.Limiter.Remove(h.id)
	h.closeTransport()
	h.conn.Close()
}

// detachCurrent releases the current attachment, if any: cancels both
// subscription tokens and reports detach-client to the Session Manager.
// Safe to call when nothing is attached.
func (h *Handler) detachCurrent() {
	h.mu.Lock()
	sid := h.attachedSessionID
	dataSub, exitSub := h.dataSub, h.exitSub
	h.attachedSessionID = ""
	h.dataSub, h.exitSub = nil, nil
	if h.state == stateAttached {
		h.state = stateOpen
	}
	h.mu.Unlock()

	if dataSub != nil {
		dataSub.Cancel()
	}
	if exitSub != nil {
		exitSub.Cancel()
	}
	if sid != "" {
		_ = h.deps.Manager.DetachClient(sid, h.id)
	}
}

// attachTo attaches the connection to id, releasing any prior attachment
// first (mandatory ordering: the previous data subscription must not leak).
// Re-attaching to the session already attached is a no-op past the
// bookkeeping: no new subscriptions are created. The returned pending kind
// restores a notification badge the client may have missed while detached
// (the design's latest-per-session map exists for exactly this); it is
// read before the bus entry is cleared so the restoration is not lost on
// the very attach that is meant to deliver it.
func (h *Handler) attachTo(id string) (store.Session, string, string, error) {
	h.mu.Lock()
	current := h.attachedSessionID
	h.mu.Unlock()

	if current == id {
		sess, _, err := h.deps.Manager.Get(id)
		if err != nil {
			return store.Session{}, "", "", err
		}
		scrollback, err := h.deps.Manager.GetScrollback(id)
		if err != nil {
			return store.Session{}, "", "", err
		}
		return sess, scrollback, "", nil
	}

	h.detachCurrent()

	sess, _, err := h.deps.Manager.Get(id)
	if err != nil {
		return store.Session{}, "", "", err
	}

	dataSub, err := h.deps.Manager.SubscribeData(id, func(data []byte) {
		frame, err := protocol.Encode(protocol.TypeTerminalDataOut, "", protocol.TerminalDataPayload{
			SessionID: id, Data: string(data),
		})
		if err != nil {
			return
		}
		h.enqueue(frame)
	})
	if err != nil {
		return store.Session{}, "", "", err
	}
	exitSub, err := h.deps.Manager.SubscribeExit(id, func(code int) { h.onSessionExit(id, code) })
	if err != nil {
		dataSub.Cancel()
		return store.Session{}, "", "", err
	}
	if err := h.deps.Manager.AttachClient(id, h.id); err != nil {
		dataSub.Cancel()
		exitSub.Cancel()
		return store.Session{}, "", "", err
	}

	h.mu.Lock()
	h.attachedSessionID = id
	h.dataSub, h.exitSub = dataSub, exitSub
	h.state = stateAttached
	h.mu.Unlock()

	var pendingKind string
	if n, ok := h.deps.Bus.LatestFor(id); ok {
		pendingKind = string(n.Kind)
	}
	h.deps.Bus.ClearForSession(id)

	scrollback, err := h.deps.Manager.GetScrollback(id)
	if err != nil {
		scrollback = ""
	}
	return sess, scrollback, pendingKind, nil
}

// onSessionExit runs on the PTY's exit-callback path (not the read loop's
// goroutine): it releases the attachment and pushes a terminal.exit frame
// carrying the PTY's real exit code, followed by a session.terminated
// frame, to this client only. Connections that are not attached to the
// session receive no frame when its PTY exits.
func (h *Handler) onSessionExit(id string, code int) {
	h.mu.Lock()
	if h.attachedSessionID != id {
		h.mu.Unlock()
		return
	}
	dataSub, exitSub := h.dataSub, h.exitSub
	h.attachedSessionID = ""
	h.dataSub, h.exitSub = nil, nil
	h.state = stateOpen
	h.mu.Unlock()

	if dataSub != nil {
		dataSub.Cancel()
	}
	if exitSub != nil {
		exitSub.Cancel()
	}

	h.send(protocol.TypeTerminalExit, "", protocol.TerminalExitPayload{SessionID: id, ExitCode: code})

	sess, _, err := h.deps.Manager.Get(id)
	if err != nil {
		return
	}
	h.send(protocol.TypeSessionTerminated, "", protocol.SessionRecordPayload{Session: toSessionRecord(sess, false)})
}

// replyError reports err to the originating request. Session
// create/attach/rename/terminate/delete failures use session.error; every
// other rejection uses the generic error type, matching the wire examples
// in the design (create's quota error is session.error, move's category
// error is the generic error).
func (h *Handler) replyError(id string, useSessionError bool, err error) {
	typ := protocol.TypeError
	if useSessionError {
		typ = protocol.TypeSessionError
	}
	msg := err.Error()
	if ae, ok := err.(*apierr.Error); ok {
		msg = ae.Message
	}
	h.send(typ, id, protocol.ErrorPayload{Message: msg})
}
