package trip

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"sort"
	"strings"

	"github.com/samber/lo"
)

// ExtractionResponse is the validated reply for a normal turn.
type ExtractionResponse struct {
	Resp     string
	Update   ProfileUpdate
	Category Category
	Ready    bool
	Warnings []ValidationWarning
}

// ParseExtraction validates the Oracle's raw text against the
// {resp, extractedState, ui} contract. Every failure is a *ParseError.
func ParseExtraction(raw string) (*ExtractionResponse, error) {
	envelope, perr := decodeObject(raw)
	if perr != nil {
		return nil, perr
	}
	respRaw, ok := envelope["resp"]
	if !ok || isNull(respRaw) {
		return nil, parseErrorf(raw, "missing resp")
	}
	var resp string
	if err := json.Unmarshal(respRaw, &resp); err != nil {
		return nil, parseErrorf(raw, "resp is not a string")
	}
	resp = strings.TrimSpace(resp)
	if resp == "" {
		return nil, parseErrorf(raw, "resp is empty")
	}
	out := &ExtractionResponse{Resp: resp}

	if stateRaw, ok := envelope["extractedState"]; ok && !isNull(stateRaw) {
		var state map[string]json.RawMessage
		if err := json.Unmarshal(stateRaw, &state); err != nil || state == nil {
			return nil, parseErrorf(raw, "extractedState is not an object")
		}
		update, warnings := decodeState(state)
		out.Update = update
		out.Warnings = append(out.Warnings, warnings...)
	}

	if uiRaw, ok := envelope["ui"]; ok && !isNull(uiRaw) {
		var name string
		if err := json.Unmarshal(uiRaw, &name); err != nil {
			out.Warnings = append(out.Warnings, ValidationWarning{Field: "ui", Reason: "not a string"})
		} else if category, known := ParseCategory(name); known {
			out.Category = category
		} else if strings.TrimSpace(name) != "" {
			out.Warnings = append(out.Warnings, ValidationWarning{Field: "ui", Reason: "unknown category " + name})
		}
	}

	if readyRaw, ok := envelope["ready"]; ok && !isNull(readyRaw) {
		if err := json.Unmarshal(readyRaw, &out.Ready); err != nil {
			out.Warnings = append(out.Warnings, ValidationWarning{Field: "ready", Reason: "not a boolean"})
		}
	}

	for _, key := range sortedKeys(envelope) {
		switch key {
		case "resp", "extractedState", "ui", "ready":
		default:
			out.Warnings = append(out.Warnings, ValidationWarning{Field: key, Reason: "unknown top-level key"})
		}
	}
	return out, nil
}

// decodeObject strictly decodes a single JSON object.
func decodeObject(raw string) (map[string]json.RawMessage, *ParseError) {
	trimmed := strings.TrimSpace(raw)
	if trimmed == "" {
		return nil, parseErrorf(raw, "empty reply")
	}
	dec := json.NewDecoder(strings.NewReader(trimmed))
	var envelope map[string]json.RawMessage
	if err := dec.Decode(&envelope); err != nil {
		return nil, parseErrorf(raw, "invalid json: %v", err)
	}
	if envelope == nil {
		return nil, parseErrorf(raw, "reply is not a json object")
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		return nil, parseErrorf(raw, "trailing data after json object")
	}
	return envelope, nil
}

// decodeState converts an extractedState object into a profile update.
// Unknown keys and unusable values are dropped with a warning.
func decodeState(state map[string]json.RawMessage) (ProfileUpdate, []ValidationWarning) {
	update := ProfileUpdate{Values: make(map[Slot]string)}
	var warnings []ValidationWarning
	for _, key := range sortedKeys(state) {
		value := state[key]
		slot, ok := ParseSlot(key)
		if !ok {
			warnings = append(warnings, ValidationWarning{Field: key, Reason: "unknown field"})
			continue
		}
		if isNull(value) {
			continue
		}
		if slot == SlotInterests {
			interests, clear, ok := decodeInterests(value)
			if !ok {
				warnings = append(warnings, ValidationWarning{Field: key, Reason: "expected a list of strings"})
				continue
			}
			update.Interests = interests
			update.ClearInterests = clear
			continue
		}
		scalar, ok := decodeScalar(value)
		if !ok {
			warnings = append(warnings, ValidationWarning{Field: key, Reason: "expected a string or number"})
			continue
		}
		if scalar != "" {
			update.Values[slot] = scalar
		}
	}
	return update, warnings
}

func decodeScalar(raw json.RawMessage) (string, bool) {
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return "", false
	}
	switch value := v.(type) {
	case string:
		return strings.TrimSpace(value), true
	case json.Number:
		return value.String(), true
	}
	return "", false
}

// decodeInterests accepts a list of strings or a comma separated string. An
// empty list is the explicit clear signal.
func decodeInterests(raw json.RawMessage) ([]string, bool, bool) {
	var list []interface{}
	if err := json.Unmarshal(raw, &list); err == nil {
		if len(list) == 0 {
			return nil, true, true
		}
		items := lo.FilterMap(list, func(item interface{}, _ int) (string, bool) {
			s, ok := item.(string)
			s = strings.TrimSpace(s)
			return s, ok && s != ""
		})
		return items, false, true
	}
	var joined string
	if err := json.Unmarshal(raw, &joined); err == nil {
		items := lo.FilterMap(strings.Split(joined, ","), func(item string, _ int) (string, bool) {
			item = strings.TrimSpace(item)
			return item, item != ""
		})
		return items, false, true
	}
	return nil, false, false
}

func isNull(raw json.RawMessage) bool {
	return len(raw) == 0 || string(bytes.TrimSpace(raw)) == "null"
}

func sortedKeys(m map[string]json.RawMessage) []string {
	keys := lo.Keys(m)
	sort.Strings(keys)
	return keys
}
