package agents

import (
	"github.com/lexcodex/ceylo/persistence"
	"github.com/lexcodex/ceylo/trip"
)

// Snapshot captures the conversation for a store.
func (c *Conversation) Snapshot() persistence.ConversationSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return persistence.ConversationSnapshot{
		ID:        c.ID,
		Profile:   c.state.Profile.Clone(),
		Phase:     c.state.Phase,
		Turns:     c.history.Turns(),
		Plan:      c.plan,
		UserTurns: c.userTurns,
		CreatedAt: c.createdAt,
		UpdatedAt: c.updatedAt,
	}
}

// RestoreConversation rebuilds a conversation from a snapshot. The phase is
// restored as stored, so a finalized conversation never plans twice.
func RestoreConversation(snapshot persistence.ConversationSnapshot, env *Environment) *Conversation {
	env = normalizeEnv(env)
	c := &Conversation{
		ID:        snapshot.ID,
		env:       env,
		state:     trip.State{Profile: snapshot.Profile.Clone(), Phase: snapshot.Phase},
		history:   trip.NewHistory(snapshot.Turns),
		plan:      snapshot.Plan,
		userTurns: snapshot.UserTurns,
		createdAt: snapshot.CreatedAt,
		updatedAt: snapshot.UpdatedAt,
	}
	if c.history.Len() == 0 {
		c.history.Append(trip.Turn{Speaker: trip.SpeakerAssistant, Text: GreetingMessage})
	}
	return c
}
