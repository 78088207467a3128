package framework

import (
	"bufio"
	"bytes"
	"encoding/json"
	"log"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestJSONFileTelemetryWritesNDJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "telemetry.jsonl")
	sink, err := NewJSONFileTelemetry(path)
	require.NoError(t, err)

	sink.Emit(Event{Type: EventTurnStart, ConversationID: "c1", Turn: 1, Timestamp: time.Now()})
	sink.Emit(Event{Type: EventTurnFinish, ConversationID: "c1", Turn: 1, Timestamp: time.Now()})
	require.NoError(t, sink.Close())
	require.NoError(t, sink.Close())

	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()
	var types []EventType
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		var e Event
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &e))
		types = append(types, e.Type)
	}
	assert.Equal(t, []EventType{EventTurnStart, EventTurnFinish}, types)
}

func TestMultiplexTelemetryFansOut(t *testing.T) {
	var buf bytes.Buffer
	rec := &RecordingTelemetry{}
	mux := MultiplexTelemetry{Sinks: []Telemetry{rec, nil, LoggerTelemetry{Logger: log.New(&buf, "", 0)}}}
	mux.Emit(Event{Type: EventFinalized, ConversationID: "c2", Message: "finalized"})

	assert.Len(t, rec.OfType(EventFinalized), 1)
	assert.Contains(t, buf.String(), "[finalized] conversation=c2")
}

func TestTurnContextRoundTrip(t *testing.T) {
	ctx := WithTurnContext(nil, TurnContext{ConversationID: "c3", Turn: 2, Kind: CallPlan})
	got, ok := TurnContextFrom(ctx)
	require.True(t, ok)
	assert.Equal(t, CallPlan, got.Kind)

	_, ok = TurnContextFrom(nil)
	assert.False(t, ok)
}
