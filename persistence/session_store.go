package persistence

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/lexcodex/ceylo/trip"
)

// ErrSnapshotNotFound is returned by Load for unknown conversation ids.
var ErrSnapshotNotFound = errors.New("conversation snapshot not found")

// ConversationSnapshot is the durable form of one conversation.
type ConversationSnapshot struct {
	ID        string       `json:"id"`
	Profile   trip.Profile `json:"profile"`
	Phase     trip.Phase   `json:"phase"`
	Turns     []trip.Turn  `json:"turns"`
	Plan      *trip.Plan   `json:"plan,omitempty"`
	UserTurns int          `json:"user_turns"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}

// Summary describes a stored conversation for listings.
type Summary struct {
	ID          string     `json:"id"`
	Phase       trip.Phase `json:"phase"`
	Destination string     `json:"destination,omitempty"`
	UserTurns   int        `json:"user_turns"`
	HasPlan     bool       `json:"has_plan"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Summarize builds the listing entry for a snapshot.
func (s ConversationSnapshot) Summarize() Summary {
	return Summary{
		ID:          s.ID,
		Phase:       s.Phase,
		Destination: s.Profile.Destination,
		UserTurns:   s.UserTurns,
		HasPlan:     s.Plan != nil,
		UpdatedAt:   s.UpdatedAt,
	}
}

// SessionStore persists conversation snapshots.
type SessionStore interface {
	Save(ctx context.Context, snapshot ConversationSnapshot) error
	Load(ctx context.Context, id string) (*ConversationSnapshot, error)
	List(ctx context.Context) ([]Summary, error)
	Delete(ctx context.Context, id string) error
	Close() error
}

func sortSummaries(items []Summary) {
	sort.SliceStable(items, func(i, j int) bool {
		return items[i].UpdatedAt.After(items[j].UpdatedAt)
	})
}

func checkContext(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}
