package trip

import "fmt"

// ParseError reports Oracle output that is not usable. Raw keeps the original
// text for diagnostics.
type ParseError struct {
	Reason string
	Raw    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("parse oracle reply: %s", e.Reason)
}

func parseErrorf(raw, format string, args ...interface{}) *ParseError {
	return &ParseError{Reason: fmt.Sprintf(format, args...), Raw: raw}
}

// ValidationWarning records a dropped piece of an otherwise valid reply. These
// are logged, never shown to the user.
type ValidationWarning struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (w ValidationWarning) String() string {
	return w.Field + ": " + w.Reason
}
