package connection

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/termhub/termhubd/internal/category"
	"github.com/termhub/termhubd/internal/identity"
	"github.com/termhub/termhubd/internal/notify"
	"github.com/termhub/termhubd/internal/persistence"
	"github.com/termhub/termhubd/internal/protocol"
	"github.com/termhub/termhubd/internal/ratelimit"
	"github.com/termhub/termhubd/internal/session"
	"github.com/termhub/termhubd/internal/store"
)

func newTestServer(t *testing.T, maxSessions int, capacity int, interval time.Duration) (*httptest.Server, *session.Manager) {
	t.Helper()
	st, err := store.Open(t.TempDir() + "/termhubd.db")
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() { st.Close() })

	mgr := session.NewManager(st, &persistence.FallbackHelper{}, maxSessions, 0, 4096)
	mgr.Start()
	t.Cleanup(mgr.Shutdown)

	deps := Deps{
		Manager:    mgr,
		Categories: category.NewService(st),
		Bus:        notify.NewBus(st),
		Limiter:    ratelimit.New(capacity, interval),
		Registry:   NewRegistry(),
		Resolver:   identity.DisabledResolver{},
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/ws", func(w http.ResponseWriter, r *http.Request) {
		Serve(w, r, deps)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv, mgr
}

func dial(t *testing.T, srv *httptest.Server) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) protocol.Frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read message: %v", err)
	}
	f, err := protocol.Parse(raw)
	if err != nil {
		t.Fatalf("parse frame: %v (raw=%s)", err, raw)
	}
	return f
}

// readFrameOfType skips over unsolicited frames (e.g. an extra
// terminal.data echo) until it finds one matching typ, or times out.
func readFrameOfType(t *testing.T, conn *websocket.Conn, typ string) protocol.Frame {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		f := readFrame(t, conn)
		if f.Type == typ {
			return f
		}
	}
	t.Fatalf("timed out waiting for frame type %q", typ)
	return protocol.Frame{}
}

func send(t *testing.T, conn *websocket.Conn, typ, id string, payload interface{}) {
	t.Helper()
	frame, err := protocol.Encode(typ, id, payload)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		t.Fatalf("write: %v", err)
	}
}

// TestScenarioS1CreateAttachEcho exercises the spec's first walkthrough:
// session.create replies session.created (id echoed), followed by an
// unsolicited session.attached, then typed input round-trips through the
// PTY as terminal.data.
func TestScenarioS1CreateAttachEcho(t *testing.T) {
	srv, _ := newTestServer(t, 10, 100, 10*time.Millisecond)
	conn := dial(t, srv)

	// auth.success greets every new connection.
	authFrame := readFrame(t, conn)
	if authFrame.Type != protocol.TypeAuthSuccess {
		t.Fatalf("expected auth.success, got %s", authFrame.Type)
	}

	send(t, conn, protocol.TypeSessionCreate, "1", protocol.SessionCreatePayload{
		Name: "T", Shell: "/bin/sh", Cols: 80, Rows: 24,
	})

	created := readFrameOfType(t, conn, protocol.TypeSessionCreated)
	if created.ID != "1" {
		t.Fatalf("expected created reply id=1, got %q", created.ID)
	}
	var createdPayload protocol.SessionRecordPayload
	if err := protocol.DecodePayload(created, &createdPayload); err != nil {
		t.Fatalf("decode created payload: %v", err)
	}
	sessionID := createdPayload.Session.ID
	if sessionID == "" {
		t.Fatalf("expected non-empty session id")
	}

	attached := readFrameOfType(t, conn, protocol.TypeSessionAttached)
	if attached.ID != "" {
		t.Fatalf("expected unsolicited session.attached (empty id), got %q", attached.ID)
	}
	var attachedPayload protocol.SessionAttachedPayload
	if err := protocol.DecodePayload(attached, &attachedPayload); err != nil {
		t.Fatalf("decode attached payload: %v", err)
	}
	if attachedPayload.Session.ID != sessionID {
		t.Fatalf("attached session id mismatch")
	}

	send(t, conn, protocol.TypeTerminalData, "", protocol.TerminalDataPayload{
		SessionID: sessionID, Data: "echo hi\r",
	})

	deadline := time.Now().Add(3 * time.Second)
	var collected strings.Builder
	for time.Now().Before(deadline) {
		f := readFrameOfType(t, conn, protocol.TypeTerminalDataOut)
		var p protocol.TerminalDataPayload
		if err := protocol.DecodePayload(f, &p); err != nil {
			t.Fatalf("decode terminal.data: %v", err)
		}
		collected.WriteString(p.Data)
		if strings.Contains(collected.String(), "hi\r\n") {
			return
		}
	}
	t.Fatalf("never observed echoed output, got %q", collected.String())
}

// TestScenarioS2QuotaExceededUsesSessionError verifies a quota rejection on
// session.create arrives as session.error, not the generic error type.
func TestScenarioS2QuotaExceededUsesSessionError(t *testing.T) {
	srv, _ := newTestServer(t, 1, 100, 10*time.Millisecond)
	conn := dial(t, srv)
	readFrame(t, conn) // auth.success

	send(t, conn, protocol.TypeSessionCreate, "1", protocol.SessionCreatePayload{Name: "A", Shell: "/bin/sh"})
	readFrameOfType(t, conn, protocol.TypeSessionCreated)
	readFrameOfType(t, conn, protocol.TypeSessionAttached)

	send(t, conn, protocol.TypeSessionCreate, "2", protocol.SessionCreatePayload{Name: "B", Shell: "/bin/sh"})
	errFrame := readFrameOfType(t, conn, protocol.TypeSessionError)
	if errFrame.ID != "2" {
		t.Fatalf("expected session.error id=2, got %q", errFrame.ID)
	}
	var p protocol.ErrorPayload
	if err := protocol.DecodePayload(errFrame, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if !strings.Contains(p.Message, "Maximum session limit") {
		t.Fatalf("unexpected error message: %q", p.Message)
	}
}

// TestScenarioS3ReattachPreservesHistory writes data to a session, detaches,
// reattaches, and checks the joined scrollback contains the earlier output.
func TestScenarioS3ReattachPreservesHistory(t *testing.T) {
	srv, mgr := newTestServer(t, 10, 100, 10*time.Millisecond)
	conn := dial(t, srv)
	readFrame(t, conn) // auth.success

	send(t, conn, protocol.TypeSessionCreate, "1", protocol.SessionCreatePayload{Name: "T", Shell: "/bin/sh"})
	created := readFrameOfType(t, conn, protocol.TypeSessionCreated)
	var createdPayload protocol.SessionRecordPayload
	protocol.DecodePayload(created, &createdPayload)
	sessionID := createdPayload.Session.ID
	readFrameOfType(t, conn, protocol.TypeSessionAttached)

	if err := mgr.Write(sessionID, []byte("echo marker\r")); err != nil {
		t.Fatalf("write: %v", err)
	}
	time.Sleep(300 * time.Millisecond)

	send(t, conn, protocol.TypeSessionDetach, "2", nil)
	readFrameOfType(t, conn, protocol.TypeSessionDetached)

	send(t, conn, protocol.TypeSessionAttach, "3", protocol.SessionAttachPayload{SessionID: sessionID})
	reattached := readFrameOfType(t, conn, protocol.TypeSessionAttached)
	if reattached.ID != "3" {
		t.Fatalf("expected session.attached id=3, got %q", reattached.ID)
	}
	var reattachedPayload protocol.SessionAttachedPayload
	if err := protocol.DecodePayload(reattached, &reattachedPayload); err != nil {
		t.Fatalf("decode reattached payload: %v", err)
	}
	if !strings.Contains(reattachedPayload.Scrollback, "marker") {
		t.Fatalf("expected scrollback to contain prior output, got %q", reattachedPayload.Scrollback)
	}
}

// TestScenarioS5MoveToUnknownCategoryUsesGenericError verifies session.move
// failures arrive as the generic error type, not session.error.
func TestScenarioS5MoveToUnknownCategoryUsesGenericError(t *testing.T) {
	srv, _ := newTestServer(t, 10, 100, 10*time.Millisecond)
	conn := dial(t, srv)
	readFrame(t, conn) // auth.success

	send(t, conn, protocol.TypeSessionCreate, "1", protocol.SessionCreatePayload{Name: "T", Shell: "/bin/sh"})
	created := readFrameOfType(t, conn, protocol.TypeSessionCreated)
	var createdPayload protocol.SessionRecordPayload
	protocol.DecodePayload(created, &createdPayload)
	sessionID := createdPayload.Session.ID
	readFrameOfType(t, conn, protocol.TypeSessionAttached)

	bogus := "does-not-exist"
	send(t, conn, protocol.TypeSessionMove, "2", protocol.SessionMovePayload{SessionID: sessionID, CategoryID: &bogus})

	errFrame := readFrameOfType(t, conn, protocol.TypeError)
	if errFrame.ID != "2" {
		t.Fatalf("expected error id=2, got %q", errFrame.ID)
	}
	var p protocol.ErrorPayload
	if err := protocol.DecodePayload(errFrame, &p); err != nil {
		t.Fatalf("decode error payload: %v", err)
	}
	if !strings.Contains(p.Message, "Category not found") {
		t.Fatalf("unexpected error message: %q", p.Message)
	}
}

// TestScenarioS6RateLimitExceeded exercises the design's rate limit
// scenario: a bucket of capacity 3 with a 10s refill interval, 4 requests
// fired back to back, expecting 3 normal replies and a 4th rate-limit
// rejection that still carries the request's correlation id.
func TestScenarioS6RateLimitExceeded(t *testing.T) {
	srv, _ := newTestServer(t, 10, 3, 10*time.Second)
	conn := dial(t, srv)
	readFrame(t, conn) // auth.success

	for i := 0; i < 4; i++ {
		send(t, conn, protocol.TypePing, string(rune('0'+i)), nil)
	}

	var rateLimited int
	for i := 0; i < 4; i++ {
		f := readFrame(t, conn)
		if f.Type == protocol.TypeError {
			var p protocol.ErrorPayload
			if err := protocol.DecodePayload(f, &p); err != nil {
				t.Fatalf("decode error payload: %v", err)
			}
			if !strings.Contains(p.Message, "Rate limit") {
				t.Fatalf("unexpected error message: %q", p.Message)
			}
			rateLimited++
		} else if f.Type != protocol.TypePong {
			t.Fatalf("unexpected frame type %q", f.Type)
		}
	}
	if rateLimited != 1 {
		t.Fatalf("expected exactly 1 rate-limited reply, got %d", rateLimited)
	}
}

// TestReattachToCurrentSessionIsIdempotent verifies re-attaching to the
// session already attached does not tear down and recreate subscriptions.
func TestReattachToCurrentSessionIsIdempotent(t *testing.T) {
	srv, _ := newTestServer(t, 10, 100, 10*time.Millisecond)
	conn := dial(t, srv)
	readFrame(t, conn) // auth.success

	send(t, conn, protocol.TypeSessionCreate, "1", protocol.SessionCreatePayload{Name: "T", Shell: "/bin/sh"})
	created := readFrameOfType(t, conn, protocol.TypeSessionCreated)
	var createdPayload protocol.SessionRecordPayload
	protocol.DecodePayload(created, &createdPayload)
	sessionID := createdPayload.Session.ID
	readFrameOfType(t, conn, protocol.TypeSessionAttached)

	send(t, conn, protocol.TypeSessionAttach, "2", protocol.SessionAttachPayload{SessionID: sessionID})
	again := readFrameOfType(t, conn, protocol.TypeSessionAttached)
	if again.ID != "2" {
		t.Fatalf("expected session.attached id=2, got %q", again.ID)
	}
}
