package dashboard

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/noteport/noteport/internal/progress"
	"github.com/noteport/noteport/internal/types"
)

// ProgressData is the payload of a progress message.
type ProgressData struct {
	Operation string  `json:"operation"`
	Current   int     `json:"current"`
	Total     int     `json:"total"`
	Percent   float64 `json:"percent"`
	Path      string  `json:"path"`
	NoteID    string  `json:"note_id,omitempty"`
	Skipped   bool    `json:"skipped,omitempty"`
	Error     string  `json:"error,omitempty"`
}

// SummaryData is the payload of a summary message.
type SummaryData struct {
	OperationID string        `json:"operation_id"`
	Operation   string        `json:"operation"`
	Format      string        `json:"format,omitempty"`
	Total       int           `json:"total"`
	Succeeded   int           `json:"succeeded"`
	Skipped     int           `json:"skipped"`
	Failed      int           `json:"failed"`
	Warnings    []string      `json:"warnings,omitempty"`
	Duration    time.Duration `json:"duration"`
}

// StatsData counts files seen since the handler was created.
type StatsData struct {
	Operations int `json:"operations"`
	Files      int `json:"files"`
	Succeeded  int `json:"succeeded"`
	Skipped    int `json:"skipped"`
	Failed     int `json:"failed"`
}

// Handler turns progress events and summaries into dashboard messages.
type Handler struct {
	server *Server
	logger *log.Logger

	mu    sync.Mutex
	stats StatsData
}

// NewHandler creates a handler broadcasting through server. New clients
// receive the handler's current stats.
func NewHandler(server *Server, logger *log.Logger) *Handler {
	if logger == nil {
		logger = log.New(os.Stderr, "[dashboard] ", log.LstdFlags)
	}
	h := &Handler{server: server, logger: logger}
	server.hello = h.statsMessage
	return h
}

// Progress broadcasts one finished file. Its signature matches
// progress.Func.
func (h *Handler) Progress(e progress.Event) {
	h.mu.Lock()
	h.stats.Files++
	switch {
	case e.Result.Skipped:
		h.stats.Skipped++
	case e.Result.Success:
		h.stats.Succeeded++
	default:
		h.stats.Failed++
	}
	h.mu.Unlock()

	data := ProgressData{
		Operation: e.Operation,
		Current:   e.Current,
		Total:     e.Total,
		Percent:   e.Percent(),
		Path:      e.Path,
		NoteID:    e.Result.NoteID,
		Skipped:   e.Result.Skipped,
	}
	if e.Result.Error != nil {
		data.Error = e.Result.Error.Error()
	}
	h.send(MessageTypeProgress, data)
}

// Summary broadcasts the totals of a finished operation followed by the
// updated stats.
func (h *Handler) Summary(s *types.OperationSummary) {
	if s == nil {
		return
	}
	h.mu.Lock()
	h.stats.Operations++
	h.mu.Unlock()

	h.send(MessageTypeSummary, SummaryData{
		OperationID: s.OperationID,
		Operation:   s.Operation,
		Format:      s.Format,
		Total:       s.TotalFiles,
		Succeeded:   s.SuccessfulFiles - s.SkippedFiles,
		Skipped:     s.SkippedFiles,
		Failed:      s.FailedFiles,
		Warnings:    s.Warnings,
		Duration:    s.Duration,
	})
	h.server.Broadcast(h.statsMessage())
}

// Stats returns a copy of the running totals.
func (h *Handler) Stats() StatsData {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.stats
}

func (h *Handler) statsMessage() Message {
	data, _ := json.Marshal(h.Stats())
	return Message{Type: MessageTypeStats, Timestamp: time.Now(), Data: data}
}

func (h *Handler) send(t MessageType, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Printf("failed to marshal %s data: %v", t, err)
		return
	}
	h.server.Broadcast(Message{Type: t, Timestamp: time.Now(), Data: data})
}
