package server

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

// Account reports whether the session is logged in.
type Account interface {
	IsAuthenticated() bool
}

// Cycles reports when the runner last completed a cycle.
type Cycles interface {
	LastCycle() time.Time
}

// Feed is the websocket endpoint of the live event hub.
type Feed interface {
	HandleWS(w http.ResponseWriter, r *http.Request)
	ClientCount() int
}

// Replier sends a chat message from the account.
type Replier interface {
	Reply(ctx context.Context, chatID int64, text string) error
}

// ReplyFunc adapts a function to Replier.
type ReplyFunc func(ctx context.Context, chatID int64, text string) error

func (f ReplyFunc) Reply(ctx context.Context, chatID int64, text string) error {
	return f(ctx, chatID, text)
}

type Server struct {
	account    Account
	cycles     Cycles
	feed       Feed
	replier    Replier
	replyToken string
	// staleAfter is how long without a completed cycle before health
	// reports the runner as stale.
	staleAfter time.Duration
	now        func() time.Time
	logger     *zap.Logger
}

// NewServer builds the ops handlers. feed may be nil.
func NewServer(account Account, cycles Cycles, feed Feed, staleAfter time.Duration, logger *zap.Logger) *Server {
	return &Server{
		account:    account,
		cycles:     cycles,
		feed:       feed,
		staleAfter: staleAfter,
		now:        time.Now,
		logger:     logger,
	}
}

// WithReplies enables POST /chats/{chatID}/messages, guarded by token.
func (s *Server) WithReplies(replier Replier, token string) *Server {
	s.replier = replier
	s.replyToken = token
	return s
}

type healthResponse struct {
	Status        string     `json:"status"`
	Authenticated bool       `json:"authenticated"`
	LastCycle     *time.Time `json:"last_cycle,omitempty"`
	FeedClients   int        `json:"feed_clients"`
}

// handleHealth reports "ok", "starting" before the first completed cycle,
// "stale" when cycles stopped completing, or "unauthorized".
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{
		Status:        "ok",
		Authenticated: s.account.IsAuthenticated(),
	}
	if s.feed != nil {
		resp.FeedClients = s.feed.ClientCount()
	}

	code := http.StatusOK
	last := s.cycles.LastCycle()
	switch {
	case !resp.Authenticated:
		resp.Status = "unauthorized"
		code = http.StatusServiceUnavailable
	case last.IsZero():
		resp.Status = "starting"
	case s.staleAfter > 0 && s.now().Sub(last) > s.staleAfter:
		resp.Status = "stale"
		code = http.StatusServiceUnavailable
	}
	if !last.IsZero() {
		utc := last.UTC()
		resp.LastCycle = &utc
	}

	writeJSON(w, code, resp, s.logger)
}

// maxReplyBody bounds the reply request body.
const maxReplyBody = 16 * 1024

type replyRequest struct {
	Text string `json:"text"`
}

type replyResponse struct {
	Status string `json:"status,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (s *Server) handleReply(w http.ResponseWriter, r *http.Request) {
	chatID, err := strconv.ParseInt(chi.URLParam(r, "chatID"), 10, 64)
	if err != nil || chatID <= 0 {
		writeJSON(w, http.StatusBadRequest, replyResponse{Error: "invalid chat id"}, s.logger)
		return
	}

	var req replyRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxReplyBody)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, replyResponse{Error: "invalid JSON body"}, s.logger)
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		writeJSON(w, http.StatusBadRequest, replyResponse{Error: "text is required"}, s.logger)
		return
	}

	if err := s.replier.Reply(r.Context(), chatID, req.Text); err != nil {
		s.logger.Error("reply failed", zap.Int64("chatID", chatID), zap.Error(err))
		writeJSON(w, http.StatusBadGateway, replyResponse{Error: err.Error()}, s.logger)
		return
	}

	s.logger.Info("reply sent", zap.Int64("chatID", chatID))
	writeJSON(w, http.StatusOK, replyResponse{Status: "sent"}, s.logger)
}

func writeJSON(w http.ResponseWriter, code int, v any, logger *zap.Logger) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		logger.Debug("failed to write response", zap.Error(err))
	}
}
