package engine

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/benbjohnson/clock"

	"github.com/chirpsocial/chirp/internal/ack"
	"github.com/chirpsocial/chirp/internal/bus"
	"github.com/chirpsocial/chirp/internal/conn"
	"github.com/chirpsocial/chirp/internal/rest"
	"github.com/chirpsocial/chirp/internal/router"
	"github.com/chirpsocial/chirp/internal/state"
	"github.com/chirpsocial/chirp/internal/status"
	"github.com/chirpsocial/chirp/internal/wire"
)

func notificationFrame(id string) wire.Frame {
	return wire.NotificationFrame{Notification: wire.Notification{ID: id, Type: "NEW_FOLLOWER", CreatedAt: 1000}}
}

func chatFrame(id, name string) wire.Frame {
	return wire.NewChatFrame{Chat: wire.Chat{ID: id, Name: name}}
}

type testTokens struct{}

func (testTokens) Token(ctx context.Context) (string, error) { return "tok", nil }
func (testTokens) OnAuthRejected()                           {}

// apiRecorder is a scriptable REST backend.
type apiRecorder struct {
	mu       sync.Mutex
	requests []string
	handler  func(w http.ResponseWriter, r *http.Request) bool
}

func (a *apiRecorder) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	a.mu.Lock()
	a.requests = append(a.requests, r.Method+" "+r.URL.Path)
	h := a.handler
	a.mu.Unlock()
	if h != nil && h(w, r) {
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (a *apiRecorder) seen(req string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, r := range a.requests {
		if r == req {
			return true
		}
	}
	return false
}

func newTestEngine(t *testing.T, api *apiRecorder) *Engine {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	b := bus.New()
	machine := status.NewMachine(b)
	tokens := testTokens{}
	mgr := conn.NewManager(conn.Options{URL: "ws://127.0.0.1:1"}, tokens, machine, b, nil, clock.New(), nil)
	rt := router.New(mgr, nil)
	st := state.New("u1", b, nil)
	client := rest.New(srv.URL, tokens, nil)
	q := ack.New(ack.ExecutorFunc(func(ctx context.Context, op ack.Op) error {
		switch op.Kind {
		case ack.KindMarkRead:
			return client.MarkMessageRead(ctx, op.TargetID)
		case ack.KindMarkAllRead:
			return client.MarkChatRead(ctx, op.TargetID)
		case ack.KindMarkDelivered:
			return client.MarkMessageDelivered(ctx, op.TargetID)
		case ack.KindNotificationRead:
			return client.MarkNotificationRead(ctx, op.TargetID)
		case ack.KindNotificationsSeen:
			return client.MarkNotificationsSeen(ctx)
		}
		return nil
	}), clock.New(), b, nil, ack.Options{})

	e := New("u1", mgr, rt, st, q, client, nil, b, nil)
	if err := e.Start(context.Background()); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(e.Stop)
	return e
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not reached")
}

func TestSendMessageReconciles(t *testing.T) {
	api := &apiRecorder{handler: func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == http.MethodPost && r.URL.Path == "/messages" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"id":"srv-1","chatId":"c1","senderId":"u1","content":"hi","createdAt":1000}`))
			return true
		}
		return false
	}}
	e := newTestEngine(t, api)

	clientID := e.SendMessage("c1", "hi")
	if clientID == "" {
		t.Fatal("want a correlation id")
	}
	// Appears immediately as pending.
	msgs := e.Store().Messages("c1")
	if len(msgs) != 1 || !msgs[0].Pending {
		t.Fatalf("messages = %+v, want one pending entry", msgs)
	}

	waitFor(t, func() bool {
		msgs := e.Store().Messages("c1")
		return len(msgs) == 1 && !msgs[0].Pending && msgs[0].ID == "srv-1"
	})
}

func TestSendMessageFailureDropsPendingCopy(t *testing.T) {
	api := &apiRecorder{handler: func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path == "/messages" {
			http.Error(w, "oops", http.StatusInternalServerError)
			return true
		}
		return false
	}}
	e := newTestEngine(t, api)

	e.SendMessage("c1", "hi")
	waitFor(t, func() bool { return len(e.Store().Messages("c1")) == 0 })
}

func TestToggleConfirmedByServer(t *testing.T) {
	api := &apiRecorder{handler: func(w http.ResponseWriter, r *http.Request) bool {
		if r.Method == http.MethodPut && r.URL.Path == "/likes/post-1" {
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`{"active":true,"count":42}`))
			return true
		}
		return false
	}}
	e := newTestEngine(t, api)
	e.Store().SeedToggle(state.ToggleLike, "post-1", state.ToggleState{Active: false, Count: 41})

	e.Toggle(state.ToggleLike, "post-1")
	waitFor(t, func() bool {
		st := e.Store().Toggle(state.ToggleLike, "post-1")
		return st.Active && st.Count == 42
	})
}

func TestToggleRevertedOnServerError(t *testing.T) {
	api := &apiRecorder{handler: func(w http.ResponseWriter, r *http.Request) bool {
		if r.URL.Path == "/follows/u9" {
			http.Error(w, "nope", http.StatusInternalServerError)
			return true
		}
		return false
	}}
	e := newTestEngine(t, api)
	e.Store().SeedToggle(state.ToggleFollow, "u9", state.ToggleState{Active: false, Count: 7})

	e.Toggle(state.ToggleFollow, "u9")
	waitFor(t, func() bool {
		st := e.Store().Toggle(state.ToggleFollow, "u9")
		return !st.Active && st.Count == 7
	})
	if !api.seen("PUT /follows/u9") {
		t.Error("toggle never reached the API")
	}
}

func TestNotificationReadLocalThenAcked(t *testing.T) {
	api := &apiRecorder{}
	e := newTestEngine(t, api)

	e.Store().Apply(state.FrameEvent{Frame: notificationFrame("n1")})
	e.MarkNotificationRead("n1")

	ns := e.Store().Notifications()
	if len(ns) != 1 || !ns[0].Read {
		t.Fatalf("notifications = %+v, want read locally at once", ns)
	}
	waitFor(t, func() bool { return api.seen("POST /notifications/n1/read") })
}

func TestResyncReplacesDataset(t *testing.T) {
	api := &apiRecorder{handler: func(w http.ResponseWriter, r *http.Request) bool {
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/chats":
			_, _ = w.Write([]byte(`[{"id":"c2","name":"fresh"}]`))
		case "/notifications":
			_, _ = w.Write([]byte(`[{"id":"n2","type":"POST_LIKED","createdAt":1000}]`))
		case "/sync/counts":
			_, _ = w.Write([]byte(`{"unreadNotifications":1,"unseenNotifications":1,"chatUnread":{}}`))
		default:
			return false
		}
		return true
	}}
	e := newTestEngine(t, api)

	e.Store().Apply(state.FrameEvent{Frame: chatFrame("c1", "stale")})
	e.resync("test")

	waitFor(t, func() bool {
		_, stale := e.Store().Chat("c1")
		_, fresh := e.Store().Chat("c2")
		return !stale && fresh && len(e.Store().Notifications()) == 1
	})
}
