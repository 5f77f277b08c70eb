package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/coder/websocket"

	"github.com/noteport/noteport/internal/progress"
	"github.com/noteport/noteport/internal/types"
)

func startServer(t *testing.T) (*Server, *Handler) {
	t.Helper()
	logger := log.New(io.Discard, "", 0)
	server := NewServer(&Config{Host: "127.0.0.1", Port: 0, Logger: logger})
	handler := NewHandler(server, logger)
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	t.Cleanup(func() { _ = server.Stop() })
	return server, handler
}

func dial(t *testing.T, ctx context.Context, server *Server) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	t.Cleanup(func() { _ = conn.Close(websocket.StatusNormalClosure, "") })
	return conn
}

func readMessage(t *testing.T, ctx context.Context, conn *websocket.Conn) Message {
	t.Helper()
	_, data, err := conn.Read(ctx)
	if err != nil {
		t.Fatalf("Read() failed: %v", err)
	}
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		t.Fatalf("failed to unmarshal message: %v", err)
	}
	return msg
}

func waitForClients(t *testing.T, server *Server, n int) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for server.ClientCount() != n {
		if time.Now().After(deadline) {
			t.Fatalf("ClientCount() = %d, want %d", server.ClientCount(), n)
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestServerStartStop(t *testing.T) {
	server := NewServer(&Config{Host: "127.0.0.1", Port: 0, Logger: log.New(io.Discard, "", 0)})
	if err := server.Start(); err != nil {
		t.Fatalf("Start() failed: %v", err)
	}
	if addr := server.GetAddr(); strings.HasSuffix(addr, ":0") {
		t.Errorf("GetAddr() = %q, want the bound port", addr)
	}
	if err := server.Stop(); err != nil {
		t.Fatalf("Stop() failed: %v", err)
	}
}

func TestHealth(t *testing.T) {
	server, _ := startServer(t)

	resp, err := http.Get("http://" + server.GetAddr() + "/health")
	if err != nil {
		t.Fatalf("GET /health failed: %v", err)
	}
	defer resp.Body.Close()

	var body struct {
		Status  string `json:"status"`
		Clients int    `json:"clients"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if body.Status != "ok" || body.Clients != 0 {
		t.Errorf("health = %+v, want ok with 0 clients", body)
	}
}

func TestRootPageIgnoresHostHeader(t *testing.T) {
	server, _ := startServer(t)

	req, err := http.NewRequest(http.MethodGet, "http://"+server.GetAddr()+"/", nil)
	if err != nil {
		t.Fatal(err)
	}
	req.Host = "evil.example:1"
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET / failed: %v", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	page := string(body)
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("GET / = %d", resp.StatusCode)
	}
	if strings.Contains(page, "evil.example") {
		t.Errorf("page echoes the Host header:\n%s", page)
	}
	if !strings.Contains(page, "location.host") {
		t.Errorf("page does not build the socket URL from location.host:\n%s", page)
	}
}

func TestWelcomeCarriesStats(t *testing.T) {
	server, handler := startServer(t)
	handler.Progress(progress.Event{Operation: "import", Current: 1, Total: 1, Path: "a.md", Result: types.Succeeded("a.md", "n1")})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Fatalf("first message type = %s, want %s", msg.Type, MessageTypeStats)
	}
	var stats StatsData
	if err := json.Unmarshal(msg.Data, &stats); err != nil {
		t.Fatalf("unmarshal stats: %v", err)
	}
	if stats.Files != 1 || stats.Succeeded != 1 {
		t.Errorf("stats = %+v, want 1 file succeeded", stats)
	}
}

func TestProgressBroadcast(t *testing.T) {
	server, handler := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	a := dial(t, ctx, server)
	b := dial(t, ctx, server)
	readMessage(t, ctx, a)
	readMessage(t, ctx, b)
	waitForClients(t, server, 2)

	handler.Progress(progress.Event{
		Operation: "export",
		Current:   1,
		Total:     2,
		Path:      "Plan.md",
		Result:    types.Failed("Plan.md", types.CodeWriteFailed, errors.New("disk full")),
	})

	for _, conn := range []*websocket.Conn{a, b} {
		msg := readMessage(t, ctx, conn)
		if msg.Type != MessageTypeProgress {
			t.Fatalf("type = %s, want %s", msg.Type, MessageTypeProgress)
		}
		var data ProgressData
		if err := json.Unmarshal(msg.Data, &data); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		if data.Path != "Plan.md" || data.Percent != 50 || data.Error != "WRITE_FAILED: disk full" {
			t.Errorf("progress = %+v", data)
		}
	}

	if got := handler.Stats(); got.Failed != 1 || got.Files != 1 {
		t.Errorf("Stats() = %+v, want 1 failed", got)
	}
}

func TestSummaryBroadcast(t *testing.T) {
	server, handler := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn := dial(t, ctx, server)
	readMessage(t, ctx, conn)
	waitForClients(t, server, 1)

	s := types.NewSummary(types.NewOperationContext("import"), "obsidian", 2)
	s.Record(types.Succeeded("a.md", "n1"))
	s.Record(types.SkippedResult("b.md", "n2", "exists"))
	s.Warn("unresolved link")
	handler.Summary(s)
	handler.Summary(nil)

	msg := readMessage(t, ctx, conn)
	if msg.Type != MessageTypeSummary {
		t.Fatalf("type = %s, want %s", msg.Type, MessageTypeSummary)
	}
	var data SummaryData
	if err := json.Unmarshal(msg.Data, &data); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if data.Operation != "import" || data.Succeeded != 1 || data.Skipped != 1 || len(data.Warnings) != 1 {
		t.Errorf("summary = %+v", data)
	}

	msg = readMessage(t, ctx, conn)
	if msg.Type != MessageTypeStats {
		t.Errorf("type = %s, want stats after summary", msg.Type)
	}
	if got := handler.Stats().Operations; got != 1 {
		t.Errorf("Operations = %d, want 1", got)
	}
}

func TestClientDisconnect(t *testing.T) {
	server, _ := startServer(t)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	conn, _, err := websocket.Dial(ctx, "ws://"+server.GetAddr()+"/ws", nil)
	if err != nil {
		t.Fatalf("Dial() failed: %v", err)
	}
	readMessage(t, ctx, conn)
	waitForClients(t, server, 1)

	_ = conn.Close(websocket.StatusNormalClosure, "")
	waitForClients(t, server, 0)
}
