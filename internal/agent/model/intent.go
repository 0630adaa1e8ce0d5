package model

import "strings"

// Intent is a conversational category the router maps free text into.
type Intent string

const (
	IntentGreet                    Intent = "greet"
	IntentGoodbye                  Intent = "goodbye"
	IntentAskHelp                  Intent = "ask_help"
	IntentAskPianoDescription      Intent = "ask_piano_description"
	IntentAskPianoStabilimenti     Intent = "ask_piano_stabilimenti"
	IntentAskPianoAttivita         Intent = "ask_piano_attivita"
	IntentAskPianoGeneric          Intent = "ask_piano_generic"
	IntentSearchPianiByTopic       Intent = "search_piani_by_topic"
	IntentAskPriorityEstablishment Intent = "ask_priority_establishment"
	IntentAskRiskBasedPriority     Intent = "ask_risk_based_priority"
	IntentAskSuggestControls       Intent = "ask_suggest_controls"
	IntentAskDelayedPlans          Intent = "ask_delayed_plans"
	IntentCheckIfPlanDelayed       Intent = "check_if_plan_delayed"
	IntentAskEstablishmentHistory  Intent = "ask_establishment_history"
	IntentAskTopRiskActivities     Intent = "ask_top_risk_activities"
	IntentAnalyzeNCByCategory      Intent = "analyze_nc_by_category"
	IntentInfoProcedure            Intent = "info_procedure"
	IntentAskNearbyPriority        Intent = "ask_nearby_priority"
	IntentConfirmShowDetails       Intent = "confirm_show_details"
	IntentDeclineShowDetails       Intent = "decline_show_details"

	// IntentFallback is reserved for anything the router cannot place.
	IntentFallback Intent = "fallback"
)

// validIntents lists the closed vocabulary in prompt order.
var validIntents = []Intent{
	IntentGreet,
	IntentGoodbye,
	IntentAskHelp,
	IntentAskPianoDescription,
	IntentAskPianoStabilimenti,
	IntentAskPianoAttivita,
	IntentAskPianoGeneric,
	IntentSearchPianiByTopic,
	IntentAskPriorityEstablishment,
	IntentAskRiskBasedPriority,
	IntentAskSuggestControls,
	IntentAskDelayedPlans,
	IntentCheckIfPlanDelayed,
	IntentAskEstablishmentHistory,
	IntentAskTopRiskActivities,
	IntentAnalyzeNCByCategory,
	IntentInfoProcedure,
	IntentAskNearbyPriority,
	IntentConfirmShowDetails,
	IntentDeclineShowDetails,
}

var validIntentSet = func() map[Intent]struct{} {
	m := make(map[Intent]struct{}, len(validIntents))
	for _, it := range validIntents {
		m[it] = struct{}{}
	}
	return m
}()

// ValidIntents returns a copy of the 20 valid intents, fallback excluded.
func ValidIntents() []Intent {
	out := make([]Intent, len(validIntents))
	copy(out, validIntents)
	return out
}

func (i Intent) String() string {
	return string(i)
}

// IsValid reports whether i belongs to the closed vocabulary (fallback excluded).
func (i Intent) IsValid() bool {
	_, ok := validIntentSet[i]
	return ok
}

// ParseIntent normalises raw classifier output. Anything outside the
// vocabulary becomes IntentFallback.
func ParseIntent(raw string) Intent {
	it := Intent(strings.ToLower(strings.TrimSpace(raw)))
	if it.IsValid() {
		return it
	}
	return IntentFallback
}
