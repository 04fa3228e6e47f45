package websocket

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	ws "github.com/coder/websocket"

	"github.com/dukerupert/pointledger/internal/auth"
)

var testLogger = slog.New(slog.NewTextHandler(io.Discard, nil))

// mockClient creates a Client with a send channel but no real connection.
func mockClient(hub *Hub, accountID int64, admin bool) *Client {
	return &Client{
		hub:       hub,
		send:      make(chan []byte, sendBufferSize),
		accountID: accountID,
		admin:     admin,
	}
}

func receive(t *testing.T, c *Client) (Message, bool) {
	t.Helper()
	select {
	case data := <-c.send:
		var got Message
		if err := json.Unmarshal(data, &got); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		return got, true
	case <-time.After(50 * time.Millisecond):
		return Message{}, false
	}
}

func TestRegisterUnregister(t *testing.T) {
	hub := NewHub(testLogger)

	c1 := mockClient(hub, 1, false)
	c2 := mockClient(hub, 2, false)

	hub.Register(c1)
	hub.Register(c2)
	if got := hub.ClientCount(); got != 2 {
		t.Fatalf("expected 2 clients, got %d", got)
	}

	hub.Unregister(c1)
	if got := hub.ClientCount(); got != 1 {
		t.Fatalf("expected 1 client after unregister, got %d", got)
	}

	hub.Unregister(c2)
	// Should not panic
	hub.Unregister(c2)
	if got := hub.ClientCount(); got != 0 {
		t.Fatalf("expected 0 clients, got %d", got)
	}
}

func TestPublishRoutesToOwnerAndAdmins(t *testing.T) {
	hub := NewHub(testLogger)

	owner := mockClient(hub, 1, false)
	other := mockClient(hub, 2, false)
	admin := mockClient(hub, 3, true)
	for _, c := range []*Client{owner, other, admin} {
		hub.Register(c)
		defer hub.Unregister(c)
	}

	hub.Publish(NewMessage(EntityEarning, ActionSubmitted, 1, 42, map[string]any{"points": float64(20)}))

	for name, c := range map[string]*Client{"owner": owner, "admin": admin} {
		got, ok := receive(t, c)
		if !ok {
			t.Fatalf("%s: timeout waiting for message", name)
		}
		if got.Type != "earning_submitted" {
			t.Errorf("%s: type = %s, want earning_submitted", name, got.Type)
		}
		if got.AccountID != 1 || got.ID != 42 {
			t.Errorf("%s: account_id=%d id=%d, want 1/42", name, got.AccountID, got.ID)
		}
		if got.Extra["points"] != float64(20) {
			t.Errorf("%s: extra = %v", name, got.Extra)
		}
	}
	if _, ok := receive(t, other); ok {
		t.Error("other account must not receive the event")
	}
}

func TestPublishFullBuffer(t *testing.T) {
	hub := NewHub(testLogger)
	c := mockClient(hub, 1, false)
	hub.Register(c)
	defer hub.Unregister(c)

	for i := 0; i < sendBufferSize; i++ {
		hub.Publish(NewMessage(EntityEarning, ActionSubmitted, 1, int64(i), nil))
	}
	// This should drop the message, not panic or block
	hub.Publish(NewMessage(EntityEarning, ActionSubmitted, 1, 999, nil))

	if got := len(c.send); got != sendBufferSize {
		t.Errorf("expected %d buffered messages, got %d", sendBufferSize, got)
	}
}

func TestNewMessage(t *testing.T) {
	msg := NewMessage(EntityRedemption, ActionRequested, 7, 5, nil)
	if msg.Type != "redemption_requested" {
		t.Errorf("expected type redemption_requested, got %s", msg.Type)
	}
	if msg.Entity != EntityRedemption || msg.Action != ActionRequested {
		t.Errorf("entity/action = %s/%s", msg.Entity, msg.Action)
	}
	if msg.AccountID != 7 || msg.ID != 5 {
		t.Errorf("account_id/id = %d/%d, want 7/5", msg.AccountID, msg.ID)
	}
}

func TestConcurrentAccess(t *testing.T) {
	hub := NewHub(testLogger)
	var wg sync.WaitGroup

	for i := 0; i < 20; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c := mockClient(hub, int64(i%3), i%5 == 0)
			hub.Register(c)
			hub.Publish(NewMessage(EntityEarning, ActionSubmitted, int64(i%3), 0, nil))
			for {
				select {
				case <-c.send:
				default:
					hub.Unregister(c)
					return
				}
			}
		}()
	}
	wg.Wait()

	if got := hub.ClientCount(); got != 0 {
		t.Errorf("expected 0 clients after concurrent test, got %d", got)
	}
}

func TestHandleWebSocketUnauthenticated(t *testing.T) {
	hub := NewHub(testLogger)
	rec := httptest.NewRecorder()
	HandleWebSocket(hub, nil, testLogger)(rec, httptest.NewRequest(http.MethodGet, "/ws", nil))
	if rec.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want 401", rec.Code)
	}
}

func TestHandleWebSocketDelivers(t *testing.T) {
	hub := NewHub(testLogger)
	inner := HandleWebSocket(hub, nil, testLogger)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithAuth(r.Context(), auth.AuthContext{AccountID: 9})
		inner(w, r.WithContext(ctx))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.Publish(NewMessage(EntityRedemption, ActionApproved, 9, 3, nil))

	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var got Message
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if got.Type != "redemption_approved" || got.ID != 3 {
		t.Errorf("got %+v", got)
	}

	conn.Close(ws.StatusNormalClosure, "")
}

func TestDisconnectSession(t *testing.T) {
	hub := NewHub(testLogger)

	a := mockClient(hub, 1, false)
	a.sessionID = 10
	b := mockClient(hub, 1, false)
	b.sessionID = 11
	hub.Register(a)
	hub.Register(b)

	if n := hub.DisconnectSession(10); n != 1 {
		t.Fatalf("dropped %d clients, want 1", n)
	}
	if _, ok := <-a.send; ok {
		t.Error("send channel of dropped client should be closed")
	}
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", hub.ClientCount())
	}

	// Unregister after a disconnect must not close the channel twice.
	hub.Unregister(a)
	hub.Unregister(b)
	if hub.ClientCount() != 0 {
		t.Errorf("ClientCount = %d, want 0", hub.ClientCount())
	}
}

func TestDisconnectAccount(t *testing.T) {
	hub := NewHub(testLogger)

	a1 := mockClient(hub, 1, false)
	a1.sessionID = 10
	a2 := mockClient(hub, 1, false)
	a2.sessionID = 11
	other := mockClient(hub, 2, false)
	hub.Register(a1)
	hub.Register(a2)
	hub.Register(other)
	defer hub.Unregister(other)

	if n := hub.DisconnectAccount(1); n != 2 {
		t.Fatalf("dropped %d clients, want 2", n)
	}
	if hub.ClientCount() != 1 {
		t.Errorf("ClientCount = %d, want 1", hub.ClientCount())
	}
	hub.Publish(NewMessage(EntityEarning, ActionSubmitted, 2, 1, nil))
	if _, ok := receive(t, other); !ok {
		t.Error("remaining account should still receive events")
	}
}

func TestDisconnectSessionClosesConnection(t *testing.T) {
	hub := NewHub(testLogger)
	inner := HandleWebSocket(hub, nil, testLogger)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := auth.WithAuth(r.Context(), auth.AuthContext{AccountID: 4, SessionID: 77})
		inner(w, r.WithContext(ctx))
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	conn, _, err := ws.Dial(ctx, "ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.CloseNow()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	hub.DisconnectSession(77)

	_, _, err = conn.Read(ctx)
	if got := ws.CloseStatus(err); got != ws.StatusPolicyViolation {
		t.Errorf("close status = %v (err %v), want policy violation", got, err)
	}
}
