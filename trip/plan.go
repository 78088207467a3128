package trip

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// Text is a string field that also accepts JSON numbers and booleans, since
// the Oracle is loose about types in nested itinerary data.
type Text string

// UnmarshalJSON implements json.Unmarshaler.
func (t *Text) UnmarshalJSON(data []byte) error {
	if isNull(data) {
		*t = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*t = Text(strings.TrimSpace(s))
		return nil
	}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var v interface{}
	if err := dec.Decode(&v); err != nil {
		return err
	}
	switch value := v.(type) {
	case json.Number:
		*t = Text(value.String())
	case bool:
		*t = Text(fmt.Sprint(value))
	default:
		return fmt.Errorf("expected text, got %s", string(data))
	}
	return nil
}

// Flag is a boolean that also accepts "true"/"yes" strings.
type Flag bool

// UnmarshalJSON implements json.Unmarshaler.
func (f *Flag) UnmarshalJSON(data []byte) error {
	var b bool
	if err := json.Unmarshal(data, &b); err == nil {
		*f = Flag(b)
		return nil
	}
	var t Text
	if err := t.UnmarshalJSON(data); err != nil {
		return err
	}
	switch strings.ToLower(string(t)) {
	case "true", "yes", "1":
		*f = true
	default:
		*f = false
	}
	return nil
}

// Plan is the itinerary produced on finalization.
type Plan struct {
	Destination Text                `json:"destination"`
	Duration    Text                `json:"duration"`
	Budget      Text                `json:"budget"`
	Route       Route               `json:"route"`
	Hotels      []Hotel             `json:"hotels"`
	Transport   Transport           `json:"transport"`
	Itinerary   []DayPlan           `json:"itinerary"`
	Warnings    []ValidationWarning `json:"-"`
}

// Route is the ordered road sequence; it keys the map/routing collaborator.
type Route struct {
	Summary Text   `json:"summary,omitempty"`
	Roads   []Text `json:"roads"`
}

// Hotel is one accommodation offer.
type Hotel struct {
	Name          Text `json:"name"`
	Location      Text `json:"location,omitempty"`
	PricePerNight Text `json:"price_per_night,omitempty"`
	Rating        Text `json:"rating,omitempty"`
	Contact       Text `json:"contact,omitempty"`
}

// Transport describes how the group moves and who provides it.
type Transport struct {
	Mode      Text       `json:"mode"`
	Providers []Provider `json:"providers"`
}

// Provider is a transport operator with contact details.
type Provider struct {
	Name    Text `json:"name"`
	Type    Text `json:"type,omitempty"`
	Contact Text `json:"contact,omitempty"`
}

// DayPlan lists the activities of one day.
type DayPlan struct {
	Day        Text       `json:"day"`
	Title      Text       `json:"title,omitempty"`
	Activities []Activity `json:"activities"`
}

// Activity is one itinerary entry.
type Activity struct {
	Time        Text `json:"time,omitempty"`
	Name        Text `json:"name"`
	Description Text `json:"description,omitempty"`
	Location    Text `json:"location,omitempty"`
	HiddenGem   Flag `json:"hidden_gem"`
}

// ParsePlan validates the finalization reply. Only the presence of a
// trip_plan object is required; sections that are missing or malformed come
// back empty and are listed in Plan.Warnings.
func ParsePlan(raw string) (*Plan, error) {
	envelope, perr := decodeObject(raw)
	if perr != nil {
		return nil, perr
	}
	planRaw, ok := envelope["trip_plan"]
	if !ok || isNull(planRaw) {
		return nil, parseErrorf(raw, "missing trip_plan")
	}
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(planRaw, &sections); err != nil || sections == nil {
		return nil, parseErrorf(raw, "trip_plan is not an object")
	}
	plan := &Plan{}
	// decode reports success so a half-decoded section can be discarded.
	decode := func(key string, target interface{}) bool {
		value, ok := sections[key]
		if !ok || isNull(value) {
			return false
		}
		if err := json.Unmarshal(value, target); err != nil {
			plan.Warnings = append(plan.Warnings, ValidationWarning{Field: "trip_plan." + key, Reason: err.Error()})
			return false
		}
		return true
	}
	var destination, duration, budget Text
	if decode("destination", &destination) {
		plan.Destination = destination
	}
	if decode("duration", &duration) {
		plan.Duration = duration
	}
	if decode("budget", &budget) {
		plan.Budget = budget
	}
	var route Route
	if decode("route", &route) {
		plan.Route = route
	}
	var hotels []Hotel
	if decode("hotels", &hotels) {
		plan.Hotels = hotels
	}
	var transport Transport
	if decode("transport", &transport) {
		plan.Transport = transport
	}
	var days []DayPlan
	if decode("itinerary", &days) {
		plan.Itinerary = days
	}
	return plan, nil
}

// RenderPlan formats a plan as plain text. Empty sections are rendered with a
// placeholder line rather than omitted.
func RenderPlan(p *Plan) string {
	if p == nil {
		return ""
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Trip to %s\n", orDash(p.Destination))
	fmt.Fprintf(&b, "Duration: %s · Budget: %s\n", orDash(p.Duration), orDash(p.Budget))

	b.WriteString("\nRoute\n")
	if len(p.Route.Roads) == 0 {
		b.WriteString("  No route suggested.\n")
	} else {
		roads := make([]string, 0, len(p.Route.Roads))
		for _, r := range p.Route.Roads {
			roads = append(roads, string(r))
		}
		fmt.Fprintf(&b, "  %s\n", strings.Join(roads, " → "))
	}
	if p.Route.Summary != "" {
		fmt.Fprintf(&b, "  %s\n", p.Route.Summary)
	}

	b.WriteString("\nHotels\n")
	if len(p.Hotels) == 0 {
		b.WriteString("  No hotels suggested.\n")
	}
	for _, h := range p.Hotels {
		fmt.Fprintf(&b, "  - %s", orDash(h.Name))
		if h.Location != "" {
			fmt.Fprintf(&b, " (%s)", h.Location)
		}
		if h.PricePerNight != "" {
			fmt.Fprintf(&b, " · %s/night", h.PricePerNight)
		}
		if h.Rating != "" {
			fmt.Fprintf(&b, " · %s★", h.Rating)
		}
		if h.Contact != "" {
			fmt.Fprintf(&b, " · %s", h.Contact)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nTransport\n")
	fmt.Fprintf(&b, "  Mode: %s\n", orDash(p.Transport.Mode))
	if len(p.Transport.Providers) == 0 {
		b.WriteString("  No providers listed.\n")
	}
	for _, pr := range p.Transport.Providers {
		fmt.Fprintf(&b, "  - %s", orDash(pr.Name))
		if pr.Type != "" {
			fmt.Fprintf(&b, " [%s]", pr.Type)
		}
		if pr.Contact != "" {
			fmt.Fprintf(&b, " · %s", pr.Contact)
		}
		b.WriteString("\n")
	}

	b.WriteString("\nItinerary\n")
	if len(p.Itinerary) == 0 {
		b.WriteString("  No activities planned.\n")
	}
	for i, day := range p.Itinerary {
		label := string(day.Day)
		if label == "" {
			label = fmt.Sprint(i + 1)
		}
		fmt.Fprintf(&b, "  Day %s", label)
		if day.Title != "" {
			fmt.Fprintf(&b, ": %s", day.Title)
		}
		b.WriteString("\n")
		for _, a := range day.Activities {
			b.WriteString("    - ")
			if a.Time != "" {
				fmt.Fprintf(&b, "%s ", a.Time)
			}
			b.WriteString(orDash(a.Name))
			if a.Location != "" {
				fmt.Fprintf(&b, " @ %s", a.Location)
			}
			if a.HiddenGem {
				b.WriteString(" 💎 hidden gem")
			}
			b.WriteString("\n")
			if a.Description != "" {
				fmt.Fprintf(&b, "      %s\n", a.Description)
			}
		}
	}
	return b.String()
}

func orDash(t Text) string {
	if strings.TrimSpace(string(t)) == "" {
		return "—"
	}
	return string(t)
}
