package server

import (
	"context"
	"errors"
	"net/http"

	"github.com/lexcodex/ceylo/agents"
	"github.com/lexcodex/ceylo/persistence"
	"github.com/lexcodex/ceylo/trip"
)

// Conversations is the conversation registry the surfaces talk to.
// *agents.Manager implements it.
type Conversations interface {
	Create(ctx context.Context) (*agents.Conversation, error)
	Get(ctx context.Context, id string) (*agents.Conversation, error)
	Send(ctx context.Context, id, text string) (*agents.TurnResult, error)
	Reset(ctx context.Context, id string) (*agents.Conversation, error)
	Delete(ctx context.Context, id string) error
	List(ctx context.Context) ([]persistence.Summary, error)
}

// ConversationView is the wire form of a conversation.
type ConversationView struct {
	ID           string       `json:"id"`
	Phase        trip.Phase   `json:"phase"`
	Profile      trip.Profile `json:"profile"`
	Missing      []trip.Slot  `json:"missing"`
	Turns        []trip.Turn  `json:"turns"`
	QuickReplies []string     `json:"quick_replies"`
	Plan         *trip.Plan   `json:"plan,omitempty"`
	Busy         bool         `json:"busy"`
}

// NewConversationView snapshots a conversation for clients. Quick replies
// come from the last assistant turn.
func NewConversationView(conv *agents.Conversation) ConversationView {
	turns := conv.Turns()
	profile := conv.Profile()
	view := ConversationView{
		ID:      conv.ID,
		Phase:   conv.Phase(),
		Profile: profile,
		Missing: profile.MissingSlots(),
		Turns:   turns,
		Plan:    conv.Plan(),
		Busy:    conv.Busy(),
	}
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].Speaker == trip.SpeakerAssistant {
			view.QuickReplies = trip.Offered(turns[i].Category, view.Phase)
			break
		}
	}
	if view.QuickReplies == nil {
		view.QuickReplies = []string{}
	}
	return view
}

// MessageRequest is the body of a send call.
type MessageRequest struct {
	Text string `json:"text"`
}

type errorBody struct {
	Error string `json:"error"`
}

func statusFor(err error) int {
	switch {
	case errors.Is(err, agents.ErrConversationNotFound):
		return http.StatusNotFound
	case errors.Is(err, agents.ErrBusy):
		return http.StatusConflict
	case errors.Is(err, agents.ErrEmptyMessage):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
