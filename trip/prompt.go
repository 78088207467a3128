package trip

import (
	"encoding/json"
	"strings"

	"github.com/samber/lo"
)

const extractionInstructions = `You are Ceylo, a friendly travel assistant who plans trips around Sri Lanka.
Your job is to fill in the traveller's trip profile while chatting naturally.

Trip profile fields:
- source: where the traveller starts from
- destination: the main place(s) they want to visit
- groupType: one of Solo, Couple, Family, Group
- groupCount: number of travellers
- budget: one of Economy, Standard, Luxury
- duration: trip length in days
- interests: list of interests, e.g. Wildlife, Culture, Hiking, Beaches
- transport: one of Private Car, Rentals, Public Trains

Rules:
1. Extract every field the user's message mentions, several at once when possible.
2. Ask for missing fields conversationally, one or two at a time.
3. If the user asks something unrelated to planning, answer briefly, then steer back to the trip.
4. Only put fields in extractedState that the user stated or clearly implied in their latest message.
5. Set "ui" to the field you are asking about (budget, interests, groupType, transport) so quick replies can be offered, or null for free text.
6. When destination, duration, group and budget are known, summarise the trip and set "ui" to "finalize" to ask for confirmation. If the user confirms (for example "Yes Generate"), reply briefly and set "ui" to "finalize" again. Never do this once the itinerary has been generated.

Respond ONLY with a JSON object of this exact shape:
{"resp": "<your reply to the user>", "extractedState": {<fields from this message>}, "ui": "<budget|interests|groupType|transport|finalize>" or null}`

const planInstructions = `You are Ceylo, an expert Sri Lanka travel planner.
Using the confirmed trip profile and the conversation below, produce a complete itinerary.

Respond ONLY with a JSON object of this exact shape:
{"trip_plan": {
  "destination": "<main destination>",
  "duration": "<number of days>",
  "budget": "<Economy|Standard|Luxury>",
  "route": {"summary": "<one sentence>", "roads": ["<road or highway names in travel order>"]},
  "hotels": [{"name": "", "location": "", "price_per_night": "", "rating": "", "contact": ""}],
  "transport": {"mode": "<how the group travels>", "providers": [{"name": "", "type": "", "contact": ""}]},
  "itinerary": [{"day": 1, "title": "", "activities": [{"time": "", "name": "", "description": "", "location": "", "hidden_gem": false}]}]
}}

Include one entry in "itinerary" per day. Mark lesser-known local spots with "hidden_gem": true.`

const plannedNote = `The itinerary for this trip has already been generated. Do not set "ui" to "finalize" and do not offer to generate it again. Answer questions about the planned trip, and tell the user to start a new trip if they want a different plan.`

// BuildExtractionPrompt composes the per-turn extraction prompt. The Oracle
// keeps no state between calls, so the current profile is always included.
func BuildExtractionPrompt(profile Profile, phase Phase, window []Turn, utterance string) string {
	var b strings.Builder
	b.WriteString(extractionInstructions)
	if phase == PhaseFinalized {
		b.WriteString("\n\n")
		b.WriteString(plannedNote)
	}
	b.WriteString("\n\nCurrent trip profile (null means unknown):\n")
	b.WriteString(profileJSON(profile))
	b.WriteString("\n\nMissing fields: ")
	missing := profile.MissingSlots()
	if len(missing) == 0 {
		b.WriteString("none")
	} else {
		b.WriteString(strings.Join(lo.Map(missing, func(s Slot, _ int) string { return string(s) }), ", "))
	}
	b.WriteString("\n\nRecent conversation:\n")
	if transcript := Transcript(window); transcript != "" {
		b.WriteString(transcript)
	} else {
		b.WriteString("(none)\n")
	}
	b.WriteString("\nNew user message:\n")
	b.WriteString(strings.TrimSpace(utterance))
	b.WriteString("\n")
	return b.String()
}

// BuildPlanPrompt composes the itinerary prompt from the profile and the full
// conversation so far.
func BuildPlanPrompt(profile Profile, turns []Turn) string {
	var b strings.Builder
	b.WriteString(planInstructions)
	b.WriteString("\n\nTrip profile:\n")
	b.WriteString(profileJSON(profile))
	b.WriteString("\n\nConversation:\n")
	b.WriteString(Transcript(turns))
	return b.String()
}

func profileJSON(profile Profile) string {
	data, err := json.Marshal(profile)
	if err != nil {
		return "{}"
	}
	return string(data)
}
