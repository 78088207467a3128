package trip

import (
	"strings"
	"time"
)

// DefaultWindow is the number of recent turns fed to extraction prompts.
const DefaultWindow = 5

// Speaker identifies who produced a turn.
type Speaker string

const (
	SpeakerUser      Speaker = "user"
	SpeakerAssistant Speaker = "assistant"
)

// Turn is one entry of the conversation log. Turns are never edited once
// appended.
type Turn struct {
	Speaker  Speaker   `json:"speaker"`
	Text     string    `json:"text"`
	Category Category  `json:"ui,omitempty"`
	Plan     *Plan     `json:"plan,omitempty"`
	Failed   bool      `json:"failed,omitempty"`
	At       time.Time `json:"at"`
}

// History is the append-only turn log of one conversation.
type History struct {
	turns []Turn
}

// NewHistory seeds a history with existing turns, e.g. from a snapshot.
func NewHistory(turns []Turn) History {
	return History{turns: append([]Turn(nil), turns...)}
}

// Append adds a turn at the end.
func (h *History) Append(turn Turn) {
	if turn.At.IsZero() {
		turn.At = time.Now().UTC()
	}
	h.turns = append(h.turns, turn)
}

// Len returns the number of turns.
func (h *History) Len() int {
	return len(h.turns)
}

// Turns returns a copy of every turn in order.
func (h *History) Turns() []Turn {
	return append([]Turn(nil), h.turns...)
}

// Last returns the most recent turn.
func (h *History) Last() (Turn, bool) {
	if len(h.turns) == 0 {
		return Turn{}, false
	}
	return h.turns[len(h.turns)-1], true
}

// Window returns up to n of the most recent turns, skipping failure fallbacks
// which carry no information for the Oracle.
func (h *History) Window(n int) []Turn {
	if n <= 0 {
		return nil
	}
	out := make([]Turn, 0, n)
	for i := len(h.turns) - 1; i >= 0 && len(out) < n; i-- {
		if h.turns[i].Failed {
			continue
		}
		out = append(out, h.turns[i])
	}
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out
}

// Transcript renders turns as "speaker: text" lines.
func Transcript(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Failed {
			continue
		}
		text := strings.TrimSpace(t.Text)
		if text == "" && t.Plan != nil {
			text = "(shared the trip plan)"
		}
		b.WriteString(string(t.Speaker))
		b.WriteString(": ")
		b.WriteString(strings.ReplaceAll(text, "\n", " "))
		b.WriteString("\n")
	}
	return b.String()
}
