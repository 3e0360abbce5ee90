package server

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

type fakeAccount bool

func (a fakeAccount) IsAuthenticated() bool { return bool(a) }

type fakeCycles time.Time

func (c fakeCycles) LastCycle() time.Time { return time.Time(c) }

type fakeFeed struct{ clients int }

func (f *fakeFeed) HandleWS(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusTeapot)
}

func (f *fakeFeed) ClientCount() int { return f.clients }

var fixedNow = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func newTestRouter(auth bool, last time.Time, feed Feed) http.Handler {
	srv := NewServer(fakeAccount(auth), fakeCycles(last), feed, time.Minute, zap.NewNop())
	srv.now = func() time.Time { return fixedNow }
	return NewRouter(srv, zap.NewNop())
}

func getHealth(t *testing.T, h http.Handler) (int, healthResponse) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var body healthResponse
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatalf("decoding health response: %v", err)
	}
	return rec.Code, body
}

func TestHealthOK(t *testing.T) {
	last := fixedNow.Add(-10 * time.Second)
	code, body := getHealth(t, newTestRouter(true, last, &fakeFeed{clients: 2}))

	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body.Status != "ok" || !body.Authenticated {
		t.Errorf("unexpected body: %+v", body)
	}
	if body.LastCycle == nil || !body.LastCycle.Equal(last) {
		t.Errorf("expected last cycle %s, got %v", last, body.LastCycle)
	}
	if body.FeedClients != 2 {
		t.Errorf("expected 2 feed clients, got %d", body.FeedClients)
	}
}

func TestHealthStarting(t *testing.T) {
	code, body := getHealth(t, newTestRouter(true, time.Time{}, nil))

	if code != http.StatusOK {
		t.Errorf("expected 200, got %d", code)
	}
	if body.Status != "starting" {
		t.Errorf("expected starting, got %s", body.Status)
	}
	if body.LastCycle != nil {
		t.Errorf("expected no last cycle, got %v", body.LastCycle)
	}
}

func TestHealthStale(t *testing.T) {
	code, body := getHealth(t, newTestRouter(true, fixedNow.Add(-5*time.Minute), nil))

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if body.Status != "stale" {
		t.Errorf("expected stale, got %s", body.Status)
	}
}

func TestHealthUnauthorized(t *testing.T) {
	code, body := getHealth(t, newTestRouter(false, time.Time{}, nil))

	if code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", code)
	}
	if body.Status != "unauthorized" || body.Authenticated {
		t.Errorf("unexpected body: %+v", body)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := newTestRouter(true, fixedNow, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}
	body, _ := io.ReadAll(rec.Body)
	if !strings.Contains(string(body), "go_goroutines") {
		t.Error("expected default Go collector metrics in output")
	}
}

func TestFeedRoute(t *testing.T) {
	h := newTestRouter(true, fixedNow, &fakeFeed{})
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusTeapot {
		t.Errorf("expected feed handler to be mounted, got %d", rec.Code)
	}
}

func TestFeedRouteAbsentWithoutFeed(t *testing.T) {
	h := newTestRouter(true, fixedNow, nil)
	req := httptest.NewRequest(http.MethodGet, "/ws", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %d", rec.Code)
	}
}

type recordingReplier struct {
	err    error
	chatID int64
	text   string
}

func (r *recordingReplier) Reply(_ context.Context, chatID int64, text string) error {
	r.chatID, r.text = chatID, text
	return r.err
}

func newReplyRouter(replier Replier, token string) http.Handler {
	srv := NewServer(fakeAccount(true), fakeCycles(fixedNow), nil, time.Minute, zap.NewNop()).
		WithReplies(replier, token)
	return NewRouter(srv, zap.NewNop())
}

func postReply(h http.Handler, path, auth, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestReplySendsMessage(t *testing.T) {
	replier := &recordingReplier{}
	h := newReplyRouter(replier, "secret")

	rec := postReply(h, "/chats/42/messages", "Bearer secret", `{"text":"on my way"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", rec.Code, rec.Body.String())
	}
	if replier.chatID != 42 || replier.text != "on my way" {
		t.Errorf("unexpected reply: %d %q", replier.chatID, replier.text)
	}
}

func TestReplyRequiresToken(t *testing.T) {
	replier := &recordingReplier{}
	h := newReplyRouter(replier, "secret")

	for _, auth := range []string{"", "Bearer wrong", "secret"} {
		rec := postReply(h, "/chats/42/messages", auth, `{"text":"hi"}`)
		if rec.Code != http.StatusUnauthorized {
			t.Errorf("auth %q: expected 401, got %d", auth, rec.Code)
		}
	}
	if replier.chatID != 0 {
		t.Error("replier must not be called without a valid token")
	}
}

func TestReplyRejectsBadInput(t *testing.T) {
	h := newReplyRouter(&recordingReplier{}, "secret")

	cases := []struct {
		path, body string
	}{
		{"/chats/abc/messages", `{"text":"hi"}`},
		{"/chats/0/messages", `{"text":"hi"}`},
		{"/chats/42/messages", `{"text":"   "}`},
		{"/chats/42/messages", `not json`},
	}
	for _, tc := range cases {
		rec := postReply(h, tc.path, "Bearer secret", tc.body)
		if rec.Code != http.StatusBadRequest {
			t.Errorf("%s %s: expected 400, got %d", tc.path, tc.body, rec.Code)
		}
	}
}

func TestReplyUpstreamFailure(t *testing.T) {
	h := newReplyRouter(&recordingReplier{err: errors.New("flood control")}, "secret")

	rec := postReply(h, "/chats/42/messages", "Bearer secret", `{"text":"hi"}`)
	if rec.Code != http.StatusBadGateway {
		t.Errorf("expected 502, got %d", rec.Code)
	}
}

func TestReplyRouteDisabledWithoutToken(t *testing.T) {
	h := newReplyRouter(&recordingReplier{}, "")

	rec := postReply(h, "/chats/42/messages", "", `{"text":"hi"}`)
	if rec.Code != http.StatusNotFound && rec.Code != http.StatusMethodNotAllowed {
		t.Errorf("expected route to be absent, got %d", rec.Code)
	}
}
