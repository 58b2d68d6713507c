package api

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/funnet/funnet-server/internal/ledger"
)

// Event is pushed to a subscribed client when their progress changes.
type Event struct {
	Type     string               `json:"type"`
	UserID   string               `json:"userId"`
	LessonID string               `json:"lessonId,omitempty"`
	NodeID   string               `json:"nodeId,omitempty"`
	Reward   *ledger.LessonReward `json:"reward,omitempty"`
}

type subscriber struct {
	userID string
	ch     chan Event
}

// Hub fans committed reward events out to websocket subscribers. Each
// client only receives its own user's events. Implements ledger.Listener.
type Hub struct {
	mu   sync.Mutex
	subs map[*subscriber]struct{}
}

// NewHub creates an empty event hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[*subscriber]struct{})}
}

func (h *Hub) subscribe(userID string) *subscriber {
	sub := &subscriber{userID: userID, ch: make(chan Event, 16)}
	h.mu.Lock()
	h.subs[sub] = struct{}{}
	h.mu.Unlock()
	return sub
}

func (h *Hub) unsubscribe(sub *subscriber) {
	h.mu.Lock()
	delete(h.subs, sub)
	h.mu.Unlock()
}

// publish delivers the event to the user's subscribers. Slow clients drop
// events rather than block the publisher.
func (h *Hub) publish(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for sub := range h.subs {
		if sub.userID != ev.UserID {
			continue
		}
		select {
		case sub.ch <- ev:
		default:
		}
	}
}

// LessonCompleted is part of ledger.Listener.
func (h *Hub) LessonCompleted(ctx context.Context, userID, lessonID string, reward ledger.LessonReward) {
	h.publish(Event{
		Type:     "progress-changed",
		UserID:   userID,
		LessonID: lessonID,
		Reward:   &reward,
	})
}

// NodeCompleted is part of ledger.Listener.
func (h *Hub) NodeCompleted(ctx context.Context, userID, nodeID string) {
	h.publish(Event{
		Type:   "node-completed",
		UserID: userID,
		NodeID: nodeID,
	})
}

// handleEvents upgrades the request to a websocket and streams the
// caller's events until the client goes away.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request, userID string) {
	if s.hub == nil {
		writeJSON(w, http.StatusNotImplemented, map[string]string{"error": "events not configured"})
		return
	}

	conn, err := websocket.Accept(w, r, nil)
	if err != nil {
		slog.Warn("websocket accept failed", "error", err)
		return
	}
	defer conn.CloseNow()

	sub := s.hub.subscribe(userID)
	defer s.hub.unsubscribe(sub)

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	// The client never sends application messages; the read loop just
	// notices disconnects.
	go func() {
		defer cancel()
		for {
			if _, _, err := conn.Read(ctx); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			conn.Close(websocket.StatusNormalClosure, "server shutting down")
			return
		case ev := <-sub.ch:
			writeCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
			err := wsjson.Write(writeCtx, conn, ev)
			cancel()
			if err != nil {
				return
			}
		}
	}
}
