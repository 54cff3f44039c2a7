package rest

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

type staticTokens string

func (s staticTokens) Token(ctx context.Context) (string, error) { return string(s), nil }

func TestRequestsCarryBearerToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens("tok-1"), nil)
	if err := c.MarkMessageRead(context.Background(), "m1"); err != nil {
		t.Fatal(err)
	}
	if gotAuth != "Bearer tok-1" {
		t.Errorf("authorization = %q, want bearer token", gotAuth)
	}
}

func TestAuthStatusClassification(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "expired", http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens("stale"), nil)
	err := c.MarkChatRead(context.Background(), "c1")
	if err == nil {
		t.Fatal("want error on 401")
	}
	if !IsAuthError(err) {
		t.Errorf("IsAuthError(%v) = false, want true", err)
	}
}

func TestServerErrorIsNotAuth(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "boom", http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens("tok"), nil)
	err := c.MarkNotificationsSeen(context.Background())
	if err == nil {
		t.Fatal("want error on 500")
	}
	if IsAuthError(err) {
		t.Errorf("IsAuthError(%v) = true, want false for 500", err)
	}
}

func TestFetchCounts(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/sync/counts" {
			t.Errorf("path = %q", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"unreadNotifications":3,"unseenNotifications":1,"chatUnread":{"c1":2}}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens("tok"), nil)
	counts, err := c.FetchCounts(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if counts.UnreadNotifications != 3 || counts.UnseenNotifications != 1 || counts.ChatUnread["c1"] != 2 {
		t.Errorf("counts = %+v", counts)
	}
}

func TestFetchChatsSkipsMalformedEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"id":"c1","name":"alice"},{"name":"no id"}]`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens("tok"), nil)
	chats, err := c.FetchChats(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(chats) != 1 || chats[0].ID != "c1" {
		t.Errorf("chats = %v, want the single well-formed entry", chats)
	}
}

func TestSendMessageReturnsAuthoritativeCopy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/messages" {
			t.Errorf("%s %s", r.Method, r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"id":"srv-1","clientId":"corr-1","chatId":"c1","senderId":"u1","content":"hi","createdAt":1000}`))
	}))
	defer srv.Close()

	c := New(srv.URL, staticTokens("tok"), nil)
	m, err := c.SendMessage(context.Background(), "corr-1", "c1", "hi")
	if err != nil {
		t.Fatal(err)
	}
	if m.ID != "srv-1" || m.ClientID != "corr-1" {
		t.Errorf("message = %+v", m)
	}
}
