// Package api exposes the platform over HTTP: content and unlock states,
// lesson completion, profiles, the shop, leaderboards and a websocket
// event stream.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/funnet/funnet-server/internal/content"
	"github.com/funnet/funnet-server/internal/economy"
	"github.com/funnet/funnet-server/internal/leaderboard"
	"github.com/funnet/funnet-server/internal/ledger"
	"github.com/funnet/funnet-server/internal/player"
	"github.com/funnet/funnet-server/internal/progress"
)

// HealthChecker is a dependency probed by the readiness endpoint.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Server holds the HTTP handlers and their collaborators.
type Server struct {
	content  *content.Loader
	progress progress.Store
	ledger   *ledger.Service
	economy  *economy.Service
	board    *leaderboard.Board
	hub      *Hub
	auth     Authenticator
	checks   map[string]HealthChecker
}

// Options wires a Server. Board and Hub may be nil when the corresponding
// backends are not configured.
type Options struct {
	Content  *content.Loader
	Progress progress.Store
	Ledger   *ledger.Service
	Economy  *economy.Service
	Board    *leaderboard.Board
	Hub      *Hub
	Auth     Authenticator
	Checks   map[string]HealthChecker
}

// NewServer creates the API server.
func NewServer(opts Options) (*Server, error) {
	if opts.Content == nil || opts.Progress == nil || opts.Ledger == nil || opts.Economy == nil {
		return nil, fmt.Errorf("api server: missing collaborators")
	}
	if opts.Auth == nil {
		opts.Auth = HeaderAuth{}
	}
	return &Server{
		content:  opts.Content,
		progress: opts.Progress,
		ledger:   opts.Ledger,
		economy:  opts.Economy,
		board:    opts.Board,
		hub:      opts.Hub,
		auth:     opts.Auth,
		checks:   opts.Checks,
	}, nil
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /readyz", s.handleReadyz)

	mux.HandleFunc("GET /api/topics", s.handleTopics)
	mux.HandleFunc("GET /api/topics/{name}/nodes", s.withUser(s.handleTopicNodes))
	mux.HandleFunc("GET /api/lessons/{id}", s.withUser(s.handleLesson))
	mux.HandleFunc("POST /api/lessons/{id}/complete", s.withUser(s.handleCompleteLesson))

	mux.HandleFunc("GET /api/profile", s.withUser(s.handleProfile))

	mux.HandleFunc("GET /api/leaderboard", s.withUser(s.handleLeaderboard))
	mux.HandleFunc("GET /api/leaderboard/export", s.withUser(s.handleLeaderboardExport))

	mux.HandleFunc("GET /api/shop/items", s.handleShopItems)
	mux.HandleFunc("POST /api/shop/purchase", s.withUser(s.handlePurchase))
	mux.HandleFunc("GET /api/shop/inventory", s.withUser(s.handleInventory))
	mux.HandleFunc("GET /api/shop/transactions", s.withUser(s.handleTransactions))

	mux.HandleFunc("GET /api/events", s.withUser(s.handleEvents))

	return mux
}

type userHandler func(w http.ResponseWriter, r *http.Request, userID string)

// withUser resolves the calling user or rejects the request.
func (s *Server) withUser(next userHandler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID, err := s.auth.UserID(r)
		if err != nil {
			writeError(w, err)
			return
		}
		next(w, r, userID)
	}
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleReadyz(w http.ResponseWriter, r *http.Request) {
	for name, check := range s.checks {
		if err := check.HealthCheck(r.Context()); err != nil {
			slog.Error("readiness check failed", "dependency", name, "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{
				"status": "unavailable", "dependency": name,
			})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}

func (s *Server) handleTopics(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"topics": s.content.TopicNames()})
}

// nodeView is a learning node decorated with the caller's unlock state.
type nodeView struct {
	content.LearningNode
	State progress.NodeState `json:"state"`
}

func (s *Server) handleTopicNodes(w http.ResponseWriter, r *http.Request, userID string) {
	topic, ok := s.content.Topic(r.PathValue("name"))
	if !ok {
		writeError(w, fmt.Errorf("topic %s: %w", r.PathValue("name"), content.ErrNotFound))
		return
	}

	snap, err := s.progress.Snapshot(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}

	states := progress.EvaluateAll(snap, topic)
	nodes := make([]nodeView, 0)
	for _, n := range content.Flatten(topic) {
		nodes = append(nodes, nodeView{LearningNode: n, State: states[n.ID]})
	}
	writeJSON(w, http.StatusOK, map[string]any{"topic": topic.Name, "nodes": nodes})
}

func (s *Server) handleLesson(w http.ResponseWriter, r *http.Request, userID string) {
	lessonID := r.PathValue("id")
	lesson, ok := s.content.Lesson(lessonID)
	if !ok {
		writeError(w, fmt.Errorf("lesson %s: %w", lessonID, content.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, lesson)
}

// handleCompleteLesson records a finished lesson for the caller. The
// client runs the question loop; the server owns the rewards. Completing
// an already completed lesson succeeds with the alreadyCompleted flag set
// and awards nothing.
func (s *Server) handleCompleteLesson(w http.ResponseWriter, r *http.Request, userID string) {
	lessonID := r.PathValue("id")
	_, node, err := s.content.LessonRefOf(lessonID)
	if err != nil {
		writeError(w, err)
		return
	}

	outcome, err := player.Complete(r.Context(), userID, lessonID, node, player.Deps{
		Rewards:  s.ledger,
		Progress: s.progress,
		Gems:     s.economy,
	})
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, outcome)
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request, userID string) {
	profile, err := s.ledger.Profile(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	balance, err := s.economy.Balance(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	boosts, err := s.economy.ActiveBoosts(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"profile":      profile,
		"balance":      balance,
		"activeBoosts": boosts,
	})
}

func (s *Server) handleLeaderboard(w http.ResponseWriter, r *http.Request, userID string) {
	if s.board == nil {
		writeJSON(w, http.StatusOK, map[string]any{"entries": []leaderboard.Entry{}})
		return
	}

	period, err := leaderboard.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, err)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	entries, err := s.board.Top(r.Context(), period, limit)
	if err != nil {
		writeError(w, err)
		return
	}

	resp := map[string]any{"period": period, "entries": entries}
	if me, err := s.board.RankOf(r.Context(), period, userID); err == nil {
		resp["me"] = me
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLeaderboardExport(w http.ResponseWriter, r *http.Request, userID string) {
	if s.board == nil {
		writeError(w, fmt.Errorf("leaderboard: %w", leaderboard.ErrNotFound))
		return
	}

	period, err := leaderboard.ParsePeriod(r.URL.Query().Get("period"))
	if err != nil {
		writeError(w, err)
		return
	}

	data, err := s.board.ExportXLSX(r.Context(), period, 100)
	if err != nil {
		writeError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=leaderboard-%s.xlsx", period))
	w.Write(data)
}

func (s *Server) handleShopItems(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{"items": s.economy.Items()})
}

type purchaseRequest struct {
	ItemID string `json:"itemId"`
}

func (s *Server) handlePurchase(w http.ResponseWriter, r *http.Request, userID string) {
	var req purchaseRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.ItemID == "" {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "itemId is required"})
		return
	}

	res, err := s.economy.Purchase(r.Context(), userID, req.ItemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleInventory(w http.ResponseWriter, r *http.Request, userID string) {
	items, err := s.economy.Inventory(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if items == nil {
		items = []economy.InventoryItem{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"items": items})
}

func (s *Server) handleTransactions(w http.ResponseWriter, r *http.Request, userID string) {
	txs, err := s.economy.Transactions(r.Context(), userID)
	if err != nil {
		writeError(w, err)
		return
	}
	if txs == nil {
		txs = []economy.GemTransaction{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"transactions": txs})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", "error", err)
	}
}

// writeError maps domain errors onto HTTP statuses.
func writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, ErrNotAuthenticated):
		status = http.StatusUnauthorized
	case errors.Is(err, content.ErrNotFound),
		errors.Is(err, economy.ErrItemNotFound),
		errors.Is(err, leaderboard.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, economy.ErrInsufficientFunds),
		errors.Is(err, economy.ErrInventoryFull):
		status = http.StatusConflict
	case errors.Is(err, leaderboard.ErrUnknownPeriod):
		status = http.StatusBadRequest
	}

	if status == http.StatusInternalServerError {
		slog.Error("request failed", "error", err)
		writeJSON(w, status, map[string]string{"error": "internal error"})
		return
	}
	writeJSON(w, status, map[string]string{"error": err.Error()})
}
