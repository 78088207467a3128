package trip

// Phase is the conversation mode. Finalized is terminal for a conversation.
type Phase int

const (
	PhaseGathering Phase = iota
	PhaseFinalized
)

func (p Phase) String() string {
	switch p {
	case PhaseFinalized:
		return "finalized"
	default:
		return "gathering"
	}
}

// MarshalText implements encoding.TextMarshaler.
func (p Phase) MarshalText() ([]byte, error) {
	return []byte(p.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (p *Phase) UnmarshalText(text []byte) error {
	if string(text) == "finalized" {
		*p = PhaseFinalized
	} else {
		*p = PhaseGathering
	}
	return nil
}

// Advance returns the next phase given the Oracle's signal for the current
// turn and whether this call performed the Gathering to Finalized transition.
// Slot completeness is not checked here; the Oracle decides readiness.
func Advance(phase Phase, category Category, ready bool) (Phase, bool) {
	if phase == PhaseFinalized {
		return PhaseFinalized, false
	}
	if category == CategoryFinalize || ready {
		return PhaseFinalized, true
	}
	return phase, false
}

// Finalizer tracks the phase of one conversation and reports the transition
// exactly once.
type Finalizer struct {
	phase Phase
}

// Phase returns the current phase.
func (f *Finalizer) Phase() Phase {
	return f.phase
}

// Observe feeds the current turn's signal and returns true only on the turn
// that finalizes.
func (f *Finalizer) Observe(category Category, ready bool) bool {
	var fired bool
	f.phase, fired = Advance(f.phase, category, ready)
	return fired
}
