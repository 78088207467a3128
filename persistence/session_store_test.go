package persistence

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lexcodex/ceylo/trip"
)

func sampleSnapshot(id string, updated time.Time) ConversationSnapshot {
	return ConversationSnapshot{
		ID: id,
		Profile: trip.Profile{
			Destination: "Kandy",
			GroupType:   "Couple",
			Duration:    "5",
			Interests:   []string{"Culture", "Hiking"},
		},
		Phase: trip.PhaseFinalized,
		Turns: []trip.Turn{
			{Speaker: trip.SpeakerUser, Text: "5 days in Kandy as a couple", At: updated},
			{Speaker: trip.SpeakerAssistant, Text: "What is your budget?", Category: trip.CategoryBudget, At: updated},
		},
		Plan:      &trip.Plan{Destination: "Kandy", Duration: "5 days"},
		UserTurns: 1,
		CreatedAt: updated.Add(-time.Minute),
		UpdatedAt: updated,
	}
}

func exerciseStore(t *testing.T, store SessionStore) {
	t.Helper()
	ctx := context.Background()
	base := time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC)

	_, err := store.Load(ctx, "missing")
	require.ErrorIs(t, err, ErrSnapshotNotFound)

	require.NoError(t, store.Save(ctx, sampleSnapshot("older", base)))
	require.NoError(t, store.Save(ctx, sampleSnapshot("newer", base.Add(time.Hour))))

	loaded, err := store.Load(ctx, "older")
	require.NoError(t, err)
	assert.Equal(t, "Kandy", loaded.Profile.Destination)
	assert.Equal(t, []string{"Culture", "Hiking"}, loaded.Profile.Interests)
	assert.Equal(t, trip.PhaseFinalized, loaded.Phase)
	require.Len(t, loaded.Turns, 2)
	assert.Equal(t, trip.CategoryBudget, loaded.Turns[1].Category)
	require.NotNil(t, loaded.Plan)
	assert.Equal(t, trip.Text("5 days"), loaded.Plan.Duration)

	updated := sampleSnapshot("older", base.Add(2*time.Hour))
	updated.Profile.Budget = "Luxury"
	require.NoError(t, store.Save(ctx, updated))
	loaded, err = store.Load(ctx, "older")
	require.NoError(t, err)
	assert.Equal(t, "Luxury", loaded.Profile.Budget)

	list, err := store.List(ctx)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, "older", list[0].ID)
	assert.Equal(t, "Kandy", list[0].Destination)
	assert.True(t, list[0].HasPlan)
	assert.Equal(t, trip.PhaseFinalized, list[0].Phase)

	require.NoError(t, store.Delete(ctx, "older"))
	require.NoError(t, store.Delete(ctx, "older"))
	_, err = store.Load(ctx, "older")
	require.ErrorIs(t, err, ErrSnapshotNotFound)
	list, err = store.List(ctx)
	require.NoError(t, err)
	assert.Len(t, list, 1)
}

func TestFileStore(t *testing.T) {
	store, err := NewFileStore(filepath.Join(t.TempDir(), "sessions"))
	require.NoError(t, err)
	exerciseStore(t, store)
}

func TestFileStoreRejectsPathIDs(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	err = store.Save(context.Background(), ConversationSnapshot{ID: "../escape"})
	assert.Error(t, err)
}

func TestFileStoreHonoursCancelledContext(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, store.Save(ctx, ConversationSnapshot{ID: "x"}), context.Canceled)
}

func TestMemoryStore(t *testing.T) {
	exerciseStore(t, NewMemoryStore())
}

func TestSQLiteStore(t *testing.T) {
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ceylo.db"))
	require.NoError(t, err)
	defer store.Close()
	exerciseStore(t, store)
}

func TestPostgresStore(t *testing.T) {
	dsn := os.Getenv("CEYLO_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("CEYLO_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	store, err := NewPostgresStore(ctx, dsn)
	require.NoError(t, err)
	defer store.Close()
	_, err = store.pool.Exec(ctx, `DELETE FROM ceylo_conversations WHERE id IN ('older', 'newer')`)
	require.NoError(t, err)
	exerciseStore(t, store)
}
