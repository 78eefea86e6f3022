package advisory

import "time"

// Category groups actions by the kind of field activity they concern.
type Category string

const (
	CategoryIrrigation    Category = "irrigation"
	CategoryPestControl   Category = "pest-control"
	CategoryHarvesting    Category = "harvesting"
	CategoryAlert         Category = "alert"
	CategoryClarification Category = "clarification"
	CategoryGuidance      Category = "guidance"
)

var categoryOrder = map[Category]int{
	CategoryAlert:         0,
	CategoryPestControl:   1,
	CategoryIrrigation:    2,
	CategoryHarvesting:    3,
	CategoryGuidance:      4,
	CategoryClarification: 5,
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categoryOrder[c]
	return ok
}

// Rank orders categories for deterministic output; lower ranks first.
func (c Category) Rank() int {
	if r, ok := categoryOrder[c]; ok {
		return r
	}
	return len(categoryOrder)
}

// Severity is totally ordered: urgent > advisory > info.
type Severity int

const (
	SeverityInfo Severity = iota + 1
	SeverityAdvisory
	SeverityUrgent
)

func (s Severity) String() string {
	switch s {
	case SeverityInfo:
		return "info"
	case SeverityAdvisory:
		return "advisory"
	case SeverityUrgent:
		return "urgent"
	}
	return "unknown"
}

// ParseSeverity parses the textual form used in rule tables.
func ParseSeverity(s string) (Severity, bool) {
	switch s {
	case "info":
		return SeverityInfo, true
	case "advisory":
		return SeverityAdvisory, true
	case "urgent":
		return SeverityUrgent, true
	}
	return 0, false
}

func (s Severity) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

func (s *Severity) UnmarshalText(b []byte) error {
	v, ok := ParseSeverity(string(b))
	if !ok {
		return &UnknownValueError{Field: "severity", Value: string(b)}
	}
	*s = v
	return nil
}

// Provenance names the component that produced an action.
type Provenance string

const (
	ProvenanceDiseaseAlert     Provenance = "disease-alert"
	ProvenanceDiseaseTreatment Provenance = "disease-treatment"
	ProvenanceWeatherUrgent    Provenance = "weather-urgent"
	ProvenanceWeatherAdvisory  Provenance = "weather-advisory"
	ProvenanceWeatherInfo      Provenance = "weather-info"
	ProvenanceConversational   Provenance = "conversational-answer"
)

var provenancePriority = map[Provenance]int{
	ProvenanceDiseaseAlert:     0,
	ProvenanceDiseaseTreatment: 1,
	ProvenanceWeatherUrgent:    2,
	ProvenanceWeatherAdvisory:  3,
	ProvenanceWeatherInfo:      4,
	ProvenanceConversational:   5,
}

// Priority is the final ranking tie-break; lower values rank first.
func (p Provenance) Priority() int {
	if v, ok := provenancePriority[p]; ok {
		return v
	}
	return len(provenancePriority)
}

// WeatherProvenance maps a weather action's severity to its provenance.
func WeatherProvenance(s Severity) Provenance {
	switch s {
	case SeverityUrgent:
		return ProvenanceWeatherUrgent
	case SeverityAdvisory:
		return ProvenanceWeatherAdvisory
	}
	return ProvenanceWeatherInfo
}

// Action is one recommendation. Actions are values; components build new
// slices instead of patching existing ones.
type Action struct {
	Category    Category          `json:"category"`
	Severity    Severity          `json:"severity"`
	MessageKey  string            `json:"message_key"`
	Params      map[string]string `json:"params,omitempty"`
	Confidence  float64           `json:"confidence"`
	Provenance  Provenance        `json:"provenance"`
	RuleID      string            `json:"rule_id,omitempty"`
	Region      string            `json:"region,omitempty"`
	TriggeredAt time.Time         `json:"triggered_at,omitzero"`
	Text        string            `json:"text,omitempty"`
}

// Clone returns a deep copy of a.
func (a Action) Clone() Action {
	if a.Params != nil {
		p := make(map[string]string, len(a.Params))
		for k, v := range a.Params {
			p[k] = v
		}
		a.Params = p
	}
	return a
}

// DedupKey identifies actions that say the same thing.
func (a Action) DedupKey() string {
	return string(a.Category) + "|" + a.MessageKey
}

// UnknownValueError reports an unrecognised enumeration value.
type UnknownValueError struct {
	Field string
	Value string
}

func (e *UnknownValueError) Error() string {
	return "advisory: unknown " + e.Field + " " + `"` + e.Value + `"`
}
