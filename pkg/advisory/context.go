package advisory

// CropContext describes the active plot. It is supplied by the farm
// management collaborator and is read-only to the engine.
type CropContext struct {
	Crop        string `json:"crop"`
	GrowthStage string `json:"growth_stage,omitempty"`
	District    string `json:"district,omitempty"`
	Region      string `json:"region,omitempty"`
	PlotID      string `json:"plot_id,omitempty"`
	Language    string `json:"language,omitempty"`
}

// AlertRegion is the scope used for community alerts.
func (c CropContext) AlertRegion() string {
	if c.Region != "" {
		return c.Region
	}
	return c.District
}

// Input returns the context as the map handed to rule conditions.
func (c CropContext) Input() map[string]any {
	return map[string]any{
		"crop":         c.Crop,
		"growth_stage": c.GrowthStage,
		"district":     c.District,
		"region":       c.Region,
	}
}

// Detection is the last disease detection remembered across requests.
type Detection struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
	Crop       string  `json:"crop,omitempty"`
}

// SessionDelta is the state the caller should persist and feed back with the
// next request. The engine never stores it.
type SessionDelta struct {
	LastIntent    string     `json:"last_intent,omitempty"`
	LastTopic     string     `json:"last_topic,omitempty"`
	LastLanguage  string     `json:"last_language,omitempty"`
	LastDetection *Detection `json:"last_detection,omitempty"`
}

// Merge returns a new delta with the non-empty fields of next applied over d.
func (d SessionDelta) Merge(next SessionDelta) SessionDelta {
	out := d
	if next.LastIntent != "" {
		out.LastIntent = next.LastIntent
	}
	if next.LastTopic != "" {
		out.LastTopic = next.LastTopic
	}
	if next.LastLanguage != "" {
		out.LastLanguage = next.LastLanguage
	}
	if next.LastDetection != nil {
		det := *next.LastDetection
		out.LastDetection = &det
	}
	return out
}
