package api_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"

	"github.com/funnet/funnet-server/internal/api"
	"github.com/funnet/funnet-server/internal/content"
	"github.com/funnet/funnet-server/internal/economy"
	"github.com/funnet/funnet-server/internal/ledger"
	"github.com/funnet/funnet-server/internal/player"
	"github.com/funnet/funnet-server/internal/progress"
)

const topicJSON = `{
  "topic": "Maths",
  "sections": [{
    "name": "Fraction",
    "units": [{
      "name": "Unit 1",
      "nodes": [
        {"id": "FRA-101", "type": "skill", "title": "Basics",
         "lessons": [{"id": "FRA-101-L1", "question_count": 1, "content_ref": "FRA-101-L1.json", "reward": {"xp": 10, "bonus_xp": 0}}]},
        {"id": "FRA-102", "type": "checkpoint", "title": "Checkpoint",
         "lessons": [{"id": "FRA-102-L1", "question_count": 1, "content_ref": "FRA-102-L1.json", "reward": {"xp": 10, "bonus_xp": 0}}],
         "requires": ["FRA-101"],
         "reward": {"gems": 20, "badge": "starter"}}
      ]
    }]
  }]
}`

const lessonJSON = `{
  "lesson_id": "FRA-101-L1",
  "questions": [
    {"type": "MCQ", "question": "1/2 of 8?", "correct_feedback": "y", "incorrect_feedback": "n",
     "explanation": "e", "options": ["4", "2"], "answer": "4"}
  ]
}`

const shopYAML = "items:\n  - id: streak-freeze\n    name: Streak Freeze\n    price_gems: 30\n    max_inventory: 2\n"

type testEnv struct {
	server   *httptest.Server
	progress *progress.MemoryStore
	ledger   *ledger.Service
	economy  *economy.Service
	hub      *api.Hub
}

func newEnv(t *testing.T) testEnv {
	t.Helper()

	dir := t.TempDir()
	files := map[string]string{
		"maths.topic.json": topicJSON,
		"FRA-101-L1.json":  lessonJSON,
	}
	for name, data := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(data), 0o644); err != nil {
			t.Fatal(err)
		}
	}

	loader, err := content.NewLoader(dir)
	if err != nil {
		t.Fatalf("NewLoader() error = %v", err)
	}
	catalog, err := economy.ParseCatalog([]byte(shopYAML))
	if err != nil {
		t.Fatalf("ParseCatalog() error = %v", err)
	}

	ps := progress.NewMemoryStore()
	ledgerSvc := ledger.NewService(ledger.NewMemoryStore(ps, ledger.DefaultLevelStep), 10)
	economySvc := economy.NewService(catalog, economy.NewMemoryStore(), nil)
	hub := api.NewHub()
	ledgerSvc.Subscribe(hub)

	srv, err := api.NewServer(api.Options{
		Content:  loader,
		Progress: ps,
		Ledger:   ledgerSvc,
		Economy:  economySvc,
		Hub:      hub,
	})
	if err != nil {
		t.Fatalf("NewServer() error = %v", err)
	}

	ts := httptest.NewServer(srv.Handler())
	t.Cleanup(ts.Close)
	return testEnv{server: ts, progress: ps, ledger: ledgerSvc, economy: economySvc, hub: hub}
}

func (e testEnv) do(t *testing.T, method, path, userID string, body any) *http.Response {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatal(err)
		}
	}
	req, err := http.NewRequest(method, e.server.URL+path, &buf)
	if err != nil {
		t.Fatal(err)
	}
	if userID != "" {
		req.Header.Set("X-User-ID", userID)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	if err := json.NewDecoder(resp.Body).Decode(&v); err != nil {
		t.Fatalf("decode response: %v", err)
	}
	return v
}

func TestHealthz(t *testing.T) {
	env := newEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
}

func TestAuthRequired(t *testing.T) {
	env := newEnv(t)
	for _, path := range []string{"/api/topics/Maths/nodes", "/api/profile", "/api/shop/inventory"} {
		resp := env.do(t, http.MethodGet, path, "", nil)
		if resp.StatusCode != http.StatusUnauthorized {
			t.Errorf("GET %s without user: status = %d, want 401", path, resp.StatusCode)
		}
	}
}

func TestTopicNodes_StatesForFreshUser(t *testing.T) {
	env := newEnv(t)

	resp := env.do(t, http.MethodGet, "/api/topics/Maths/nodes", "u1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}

	body := decode[struct {
		Nodes []struct {
			ID    string `json:"id"`
			State struct {
				IsLocked    bool `json:"isLocked"`
				IsAvailable bool `json:"isAvailable"`
			} `json:"state"`
		} `json:"nodes"`
	}](t, resp)

	if len(body.Nodes) != 2 {
		t.Fatalf("got %d nodes, want 2", len(body.Nodes))
	}
	if body.Nodes[0].State.IsLocked || !body.Nodes[0].State.IsAvailable {
		t.Errorf("first node state = %+v, want available", body.Nodes[0].State)
	}
	if !body.Nodes[1].State.IsLocked {
		t.Errorf("checkpoint state = %+v, want locked", body.Nodes[1].State)
	}
}

func TestTopicNodes_UnknownTopic(t *testing.T) {
	env := newEnv(t)
	resp := env.do(t, http.MethodGet, "/api/topics/Physics/nodes", "u1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestCompleteLesson(t *testing.T) {
	env := newEnv(t)

	resp := env.do(t, http.MethodPost, "/api/lessons/FRA-101-L1/complete", "u1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	out := decode[player.Outcome](t, resp)
	if out.Reward.Awarded != 10 || out.AlreadyCompleted {
		t.Errorf("outcome = %+v, want fresh 10 XP award", out)
	}
	if !out.NodeCompleted {
		t.Error("NodeCompleted = false, want true (only lesson of FRA-101)")
	}

	// Replay succeeds with the flag set.
	resp = env.do(t, http.MethodPost, "/api/lessons/FRA-101-L1/complete", "u1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("replay status = %d, want 200", resp.StatusCode)
	}
	out = decode[player.Outcome](t, resp)
	if !out.AlreadyCompleted || out.Reward.Awarded != 0 {
		t.Errorf("replay outcome = %+v, want alreadyCompleted with no award", out)
	}
}

func TestCompleteLesson_UnknownLesson(t *testing.T) {
	env := newEnv(t)
	resp := env.do(t, http.MethodPost, "/api/lessons/PHY-101-L1/complete", "u1", nil)
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("status = %d, want 404", resp.StatusCode)
	}
}

func TestProfile(t *testing.T) {
	env := newEnv(t)
	env.do(t, http.MethodPost, "/api/lessons/FRA-101-L1/complete", "u1", nil)

	resp := env.do(t, http.MethodGet, "/api/profile", "u1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("status = %d, want 200", resp.StatusCode)
	}
	body := decode[struct {
		Profile ledger.Profile  `json:"profile"`
		Balance economy.Balance `json:"balance"`
	}](t, resp)
	if body.Profile.TotalXPEarned != 10 || body.Profile.LessonsCompleted != 1 {
		t.Errorf("profile = %+v, want 10 XP and one lesson", body.Profile)
	}
}

func TestShop(t *testing.T) {
	env := newEnv(t)
	ctx := context.Background()

	resp := env.do(t, http.MethodGet, "/api/shop/items", "", nil)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("items status = %d, want 200", resp.StatusCode)
	}

	// No gems yet.
	resp = env.do(t, http.MethodPost, "/api/shop/purchase", "u1", map[string]string{"itemId": "streak-freeze"})
	if resp.StatusCode != http.StatusConflict {
		t.Errorf("broke purchase status = %d, want 409", resp.StatusCode)
	}

	resp = env.do(t, http.MethodPost, "/api/shop/purchase", "u1", map[string]string{"itemId": "golden-ticket"})
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("unknown item status = %d, want 404", resp.StatusCode)
	}

	if _, err := env.economy.Credit(ctx, "u1", 50, "test"); err != nil {
		t.Fatal(err)
	}
	resp = env.do(t, http.MethodPost, "/api/shop/purchase", "u1", map[string]string{"itemId": "streak-freeze"})
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("funded purchase status = %d, want 200", resp.StatusCode)
	}
	res := decode[economy.PurchaseResult](t, resp)
	if res.NewGemBalance != 20 {
		t.Errorf("NewGemBalance = %d, want 20", res.NewGemBalance)
	}

	resp = env.do(t, http.MethodGet, "/api/shop/inventory", "u1", nil)
	body := decode[struct {
		Items []economy.InventoryItem `json:"items"`
	}](t, resp)
	if len(body.Items) != 1 || body.Items[0].ItemID != "streak-freeze" {
		t.Errorf("inventory = %+v, want one streak-freeze", body.Items)
	}

	resp = env.do(t, http.MethodGet, "/api/shop/transactions", "u1", nil)
	txBody := decode[struct {
		Transactions []economy.GemTransaction `json:"transactions"`
	}](t, resp)
	if len(txBody.Transactions) != 2 {
		t.Errorf("got %d transactions, want credit + purchase", len(txBody.Transactions))
	}
}

func TestLeaderboard_NoBoardConfigured(t *testing.T) {
	env := newEnv(t)
	resp := env.do(t, http.MethodGet, "/api/leaderboard", "u1", nil)
	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200 with empty entries", resp.StatusCode)
	}
}

func TestEvents_PushOnLessonCompletion(t *testing.T) {
	env := newEnv(t)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	wsURL := "ws" + strings.TrimPrefix(env.server.URL, "http") + "/api/events"
	conn, _, err := websocket.Dial(ctx, wsURL, &websocket.DialOptions{
		HTTPHeader: http.Header{"X-User-ID": []string{"u1"}},
	})
	if err != nil {
		t.Fatalf("websocket dial: %v", err)
	}
	defer conn.CloseNow()

	// Give the handler a beat to register the subscription.
	time.Sleep(100 * time.Millisecond)
	env.do(t, http.MethodPost, "/api/lessons/FRA-101-L1/complete", "u1", nil)

	var ev api.Event
	if err := wsjson.Read(ctx, conn, &ev); err != nil {
		t.Fatalf("read event: %v", err)
	}
	if ev.Type != "progress-changed" || ev.LessonID != "FRA-101-L1" {
		t.Errorf("event = %+v, want progress-changed for FRA-101-L1", ev)
	}
	if ev.Reward == nil || ev.Reward.Awarded != 10 {
		t.Errorf("event reward = %+v, want 10 XP", ev.Reward)
	}
}

// failingCheck always reports unhealthy.
type failingCheck struct{}

func (failingCheck) HealthCheck(ctx context.Context) error { return errors.New("down") }

func TestReadyz_FailingDependency(t *testing.T) {
	loaderDir := t.TempDir()
	if err := os.WriteFile(filepath.Join(loaderDir, "maths.topic.json"), []byte(topicJSON), 0o644); err != nil {
		t.Fatal(err)
	}
	loader, err := content.NewLoader(loaderDir)
	if err != nil {
		t.Fatal(err)
	}
	catalog, err := economy.ParseCatalog([]byte(shopYAML))
	if err != nil {
		t.Fatal(err)
	}

	ps := progress.NewMemoryStore()
	srv, err := api.NewServer(api.Options{
		Content:  loader,
		Progress: ps,
		Ledger:   ledger.NewService(ledger.NewMemoryStore(ps, ledger.DefaultLevelStep), 10),
		Economy:  economy.NewService(catalog, economy.NewMemoryStore(), nil),
		Checks:   map[string]api.HealthChecker{"database": failingCheck{}},
	})
	if err != nil {
		t.Fatal(err)
	}
	ts := httptest.NewServer(srv.Handler())
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/readyz")
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}
