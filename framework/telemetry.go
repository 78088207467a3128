package framework

import (
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// EventType categorizes telemetry events.
type EventType string

const (
	EventTurnStart         EventType = "turn_start"
	EventTurnFinish        EventType = "turn_finish"
	EventLLMPrompt         EventType = "llm_prompt"
	EventLLMResponse       EventType = "llm_response"
	EventParseFailure      EventType = "parse_failure"
	EventValidationWarning EventType = "validation_warning"
	EventStateMerge        EventType = "state_merge"
	EventFinalized         EventType = "finalized"
	EventPlanReady         EventType = "plan_ready"
	EventPlanFailure       EventType = "plan_failure"
)

// Event captures structured telemetry data.
type Event struct {
	Type           EventType              `json:"type"`
	ConversationID string                 `json:"conversation_id,omitempty"`
	Turn           int                    `json:"turn,omitempty"`
	Message        string                 `json:"message,omitempty"`
	Timestamp      time.Time              `json:"timestamp"`
	Metadata       map[string]interface{} `json:"metadata,omitempty"`
}

// Telemetry receives conversation traces. Tests typically swap in a
// recording sink.
type Telemetry interface {
	Emit(event Event)
}

// NopTelemetry drops every event.
type NopTelemetry struct{}

// Emit implements Telemetry.
func (NopTelemetry) Emit(Event) {}

// MultiplexTelemetry broadcasts events to multiple sinks.
type MultiplexTelemetry struct {
	Sinks []Telemetry
}

// Emit forwards the event to all registered sinks.
func (m MultiplexTelemetry) Emit(event Event) {
	for _, s := range m.Sinks {
		if s != nil {
			s.Emit(event)
		}
	}
}

// JSONFileTelemetry writes events as newline-delimited JSON to a file.
// This allows external tools to tail and process the stream in real-time.
type JSONFileTelemetry struct {
	path string
	file *os.File
	enc  *json.Encoder
	mu   sync.Mutex
}

// NewJSONFileTelemetry opens (or creates) the log file.
func NewJSONFileTelemetry(path string) (*JSONFileTelemetry, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	return &JSONFileTelemetry{
		path: path,
		file: f,
		enc:  json.NewEncoder(f),
	}, nil
}

// Emit writes the JSON record.
func (j *JSONFileTelemetry) Emit(event Event) {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.enc != nil {
		_ = j.enc.Encode(event)
	}
}

// Close releases the file handle.
func (j *JSONFileTelemetry) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.file != nil {
		err := j.file.Close()
		j.file = nil
		j.enc = nil
		return err
	}
	return nil
}

// LoggerTelemetry emits events via the standard logger so every turn is
// visible in the runtime log without extra tooling.
type LoggerTelemetry struct {
	Logger *log.Logger
}

// Emit logs the event.
func (t LoggerTelemetry) Emit(event Event) {
	logger := t.Logger
	if logger == nil {
		logger = log.Default()
	}
	logger.Printf("[%s] conversation=%s turn=%d meta=%v msg=%s\n", event.Type, event.ConversationID, event.Turn, event.Metadata, event.Message)
}

// RecordingTelemetry keeps events in memory.
type RecordingTelemetry struct {
	mu     sync.Mutex
	events []Event
}

// Emit implements Telemetry.
func (r *RecordingTelemetry) Emit(event Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
}

// Events returns a copy of the recorded events.
func (r *RecordingTelemetry) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]Event(nil), r.events...)
}

// OfType returns the recorded events of one type.
func (r *RecordingTelemetry) OfType(kind EventType) []Event {
	var out []Event
	for _, e := range r.Events() {
		if e.Type == kind {
			out = append(out, e)
		}
	}
	return out
}
