package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/seenimoa/newsentiment/internal/checkpoint"
	"github.com/seenimoa/newsentiment/internal/config"
	"github.com/seenimoa/newsentiment/internal/llm"
	"github.com/seenimoa/newsentiment/internal/logging"
	"github.com/seenimoa/newsentiment/internal/pipeline"
	"github.com/seenimoa/newsentiment/pkg/models"
)

// ════════════════════════════════════════════════════════════════════
// Test Helpers
// ════════════════════════════════════════════════════════════════════

// headlineSource serves fixed headlines per symbol.
type headlineSource struct {
	headlines map[string][]string
}

func (s *headlineSource) Name() string                   { return "fixed" }
func (s *headlineSource) Ping(ctx context.Context) error { return nil }

func (s *headlineSource) Fetch(ctx context.Context, item models.WorkItem) ([]models.NewsItem, error) {
	var out []models.NewsItem
	for _, h := range s.headlines[item.CompanyID] {
		out = append(out, models.NewsItem{CompanyID: item.CompanyID, TargetDate: item.TargetDate, Headline: h})
	}
	return out, nil
}

func workItems() []models.WorkItem {
	var items []models.WorkItem
	for _, d := range []string{"2024-06-03", "2024-06-04"} {
		day, _ := time.Parse(models.DateLayout, d)
		items = append(items,
			models.WorkItem{CompanyID: "AAPL", CompanyName: "Apple Inc.", TargetDate: day},
			models.WorkItem{CompanyID: "MSFT", CompanyName: "Microsoft Corporation", TargetDate: day},
		)
	}
	return items
}

func newScheduler(t *testing.T, tracker *pipeline.Tracker) *pipeline.Scheduler {
	t.Helper()
	src := &headlineSource{headlines: map[string][]string{
		"AAPL": {"Apple shares surge on record growth", "Apple faces lawsuit over App Store"},
	}}
	cfg := pipeline.DefaultConfig()
	s, err := pipeline.New(cfg, src, llm.NewKeywordScorer(),
		pipeline.WithTracker(tracker), pipeline.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("pipeline.New: %v", err)
	}
	return s
}

func runPipeline(t *testing.T, s *pipeline.Scheduler) *pipeline.RunReport {
	t.Helper()
	cp, err := checkpoint.Open(filepath.Join(t.TempDir(), checkpoint.FileName), checkpoint.Header{},
		checkpoint.WithLogger(logging.Discard()))
	if err != nil {
		t.Fatalf("checkpoint.Open: %v", err)
	}
	defer cp.Close()
	rep, err := s.Run(context.Background(), workItems(), cp)
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	return rep
}

func testServer(t *testing.T) (*Server, *pipeline.Tracker) {
	t.Helper()
	tracker := pipeline.NewTracker()
	srv := NewServer(config.StatusConfig{}, tracker, WithLogger(logging.Discard()), WithVersion("test"))
	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	go srv.Hub().Run(ctx)
	return srv, tracker
}

func get(t *testing.T, srv *Server, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)
	return rec
}

func decodeResponse(t *testing.T, rec *httptest.ResponseRecorder, data interface{}) APIResponse {
	t.Helper()
	var raw struct {
		Success bool            `json:"success"`
		Data    json.RawMessage `json:"data"`
		Error   string          `json:"error"`
	}
	if err := json.NewDecoder(rec.Body).Decode(&raw); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if data != nil && len(raw.Data) > 0 {
		if err := json.Unmarshal(raw.Data, data); err != nil {
			t.Fatalf("failed to decode data: %v", err)
		}
	}
	return APIResponse{Success: raw.Success, Error: raw.Error}
}

// ════════════════════════════════════════════════════════════════════
// REST endpoints
// ════════════════════════════════════════════════════════════════════

func TestHealth(t *testing.T) {
	srv, _ := testServer(t)
	for _, path := range []string{"/health", "/api/v1/health"} {
		rec := get(t, srv, path)
		if rec.Code != http.StatusOK {
			t.Fatalf("%s: status %d", path, rec.Code)
		}
		var data map[string]interface{}
		resp := decodeResponse(t, rec, &data)
		if !resp.Success || data["status"] != "ok" || data["version"] != "test" {
			t.Errorf("%s: got %+v %v", path, resp, data)
		}
	}
}

func TestProgressBeforeRun(t *testing.T) {
	srv, _ := testServer(t)
	rec := get(t, srv, "/api/v1/progress")
	var p models.Progress
	decodeResponse(t, rec, &p)
	if p.Total != 0 || p.RunID != "" {
		t.Errorf("expected empty progress, got %+v", p)
	}

	rec = get(t, srv, "/api/v1/pending")
	if body := strings.TrimSpace(rec.Body.String()); !strings.Contains(body, `"data":[]`) {
		t.Errorf("pending before run: got %s", body)
	}
}

func TestProgressAfterRun(t *testing.T) {
	srv, tracker := testServer(t)
	rep := runPipeline(t, newScheduler(t, tracker))

	var p models.Progress
	decodeResponse(t, get(t, srv, "/api/v1/progress"), &p)
	if p.Total != 4 || p.Done != 4 || p.Pending != 0 || p.InFlight != 0 {
		t.Errorf("progress: got %+v", p)
	}
	if p.RunID != rep.RunID {
		t.Errorf("RunID: got %q, want %q", p.RunID, rep.RunID)
	}
}

func TestItems(t *testing.T) {
	srv, tracker := testServer(t)
	runPipeline(t, newScheduler(t, tracker))

	var all ItemsResponse
	decodeResponse(t, get(t, srv, "/api/v1/items"), &all)
	if all.Count != 4 || len(all.Items) != 4 {
		t.Fatalf("items: got %d", all.Count)
	}
	if all.Items[0].Key != "2024-06-03/AAPL" || all.Items[1].Key != "2024-06-03/MSFT" {
		t.Errorf("order: got %s, %s", all.Items[0].Key, all.Items[1].Key)
	}

	var aapl ItemsResponse
	decodeResponse(t, get(t, srv, "/api/v1/items?symbol=aapl&state=done"), &aapl)
	if aapl.Count != 2 {
		t.Fatalf("AAPL items: got %d", aapl.Count)
	}
	for _, it := range aapl.Items {
		if it.CompanyID != "AAPL" || it.Outcome != models.OutcomeScored || it.NewsCount != 2 {
			t.Errorf("AAPL item: got %+v", it)
		}
	}

	var pending ItemsResponse
	decodeResponse(t, get(t, srv, "/api/v1/items?state=pending"), &pending)
	if pending.Count != 0 || pending.Items == nil {
		t.Errorf("pending filter: got %+v", pending)
	}
}

func TestItemsBadState(t *testing.T) {
	srv, _ := testServer(t)
	rec := get(t, srv, "/api/v1/items?state=bogus")
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status: got %d, want 400", rec.Code)
	}
	resp := decodeResponse(t, rec, nil)
	if resp.Success || !strings.Contains(resp.Error, "bogus") {
		t.Errorf("got %+v", resp)
	}
}

func TestItemByKey(t *testing.T) {
	srv, tracker := testServer(t)
	runPipeline(t, newScheduler(t, tracker))

	rec := get(t, srv, "/api/v1/items/2024-06-04/msft")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	var st pipeline.ItemStatus
	decodeResponse(t, rec, &st)
	if st.Key != "2024-06-04/MSFT" || st.Outcome != models.OutcomeNoNews {
		t.Errorf("got %+v", st)
	}

	if rec := get(t, srv, "/api/v1/items/2024-06-05/MSFT"); rec.Code != http.StatusNotFound {
		t.Errorf("missing item: got %d, want 404", rec.Code)
	}
}

func TestProgressPage(t *testing.T) {
	srv, _ := testServer(t)

	rec := get(t, srv, "/")
	if rec.Code != http.StatusOK {
		t.Fatalf("status: got %d", rec.Code)
	}
	if ct := rec.Header().Get("Content-Type"); !strings.HasPrefix(ct, "text/html") {
		t.Errorf("Content-Type: got %q", ct)
	}
	if !strings.Contains(rec.Body.String(), "/api/v1/ws") {
		t.Error("page should connect to the websocket")
	}
	if rec := get(t, srv, "/nope.js"); rec.Code != http.StatusNotFound {
		t.Errorf("missing asset: got %d, want 404", rec.Code)
	}
}

func TestCORSPreflight(t *testing.T) {
	tracker := pipeline.NewTracker()
	srv := NewServer(config.StatusConfig{CORSOrigins: []string{"http://localhost:3000"}}, tracker,
		WithLogger(logging.Discard()))

	req := httptest.NewRequest(http.MethodOptions, "/api/v1/progress", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", "GET")
	rec := httptest.NewRecorder()
	srv.Router().ServeHTTP(rec, req)

	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "http://localhost:3000" {
		t.Errorf("Allow-Origin: got %q", got)
	}
}

// ════════════════════════════════════════════════════════════════════
// WebSocket
// ════════════════════════════════════════════════════════════════════

func dial(t *testing.T, srv *Server) *websocket.Conn {
	t.Helper()
	ts := httptest.NewServer(srv.Router())
	t.Cleanup(ts.Close)
	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/api/v1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readMessage(t *testing.T, conn *websocket.Conn) WSMessage {
	t.Helper()
	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	var msg WSMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, hub *WSHub, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for hub.ClientCount() < n {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %d websocket clients", n)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestWebSocketSnapshotAndPing(t *testing.T) {
	srv, _ := testServer(t)
	conn := dial(t, srv)

	if msg := readMessage(t, conn); msg.Type != "snapshot" {
		t.Fatalf("first message: got %q, want snapshot", msg.Type)
	}

	waitForClients(t, srv.Hub(), 1)
	if err := conn.WriteJSON(WSMessage{Type: "ping"}); err != nil {
		t.Fatal(err)
	}
	if msg := readMessage(t, conn); msg.Type != "pong" {
		t.Errorf("got %q, want pong", msg.Type)
	}
}

func TestWebSocketStreamsRunEvents(t *testing.T) {
	srv, tracker := testServer(t)
	conn := dial(t, srv)
	readMessage(t, conn) // snapshot
	waitForClients(t, srv.Hub(), 1)

	runPipeline(t, newScheduler(t, tracker))

	seen := map[string]int{}
	for seen["run_finished"] == 0 {
		msg := readMessage(t, conn)
		seen[msg.Type]++
	}
	if seen["run_started"] != 1 {
		t.Errorf("run_started events: got %d", seen["run_started"])
	}
	// each of 4 items moves through fetching and done; AAPL also scores
	if seen["item"] < 8 {
		t.Errorf("item events: got %d, want at least 8", seen["item"])
	}
}

func TestHubStopClosesClients(t *testing.T) {
	hub := NewWSHub()
	ctx, cancel := context.WithCancel(context.Background())
	stopped := make(chan struct{})
	go func() {
		hub.Run(ctx)
		close(stopped)
	}()

	client := &WSClient{hub: hub, send: make(chan WSMessage, 1)}
	if !hub.Register(client) {
		t.Fatal("Register on a running hub should succeed")
	}
	cancel()
	<-stopped

	if _, ok := <-client.send; ok {
		t.Error("client channel should be closed")
	}
	if hub.Register(&WSClient{hub: hub, send: make(chan WSMessage)}) {
		t.Error("Register after stop should fail")
	}
	hub.Unregister(client) // must not block
}
