package advisory

import (
	"errors"
	"testing"
	"time"
)

func f(v float64) *float64 { return &v }

func TestWeatherObservationIsImmutable(t *testing.T) {
	day := WeatherDay{Date: "2026-10-15", TempMaxC: f(31), TempMinC: f(24), HumidityPct: f(70), RainMM: f(2), WindKmh: f(8)}
	obs, err := NewWeatherObservation(time.Now(), day, 1.0)
	if err != nil {
		t.Fatalf("NewWeatherObservation returned error: %v", err)
	}

	*day.TempMaxC = 45
	got, ok := obs.Weather()
	if !ok {
		t.Fatal("Expected weather payload")
	}
	if *got.TempMaxC != 31 {
		t.Errorf("Observation changed with its source: max temp %v", *got.TempMaxC)
	}

	*got.TempMaxC = 50
	again, _ := obs.Weather()
	if *again.TempMaxC != 31 {
		t.Errorf("Observation changed through accessor: max temp %v", *again.TempMaxC)
	}
}

func TestImageLabelObservation(t *testing.T) {
	labels := []Label{{Label: "leaf_blight", Confidence: 0.82}, {Label: "bud_rot", Confidence: 0.1}}
	obs, err := NewImageLabelObservation(time.Now(), labels, "coconut")
	if err != nil {
		t.Fatalf("NewImageLabelObservation returned error: %v", err)
	}
	if obs.SourceConfidence() != 0.82 {
		t.Errorf("Expected source confidence 0.82, got %v", obs.SourceConfidence())
	}
	labels[0].Label = "changed"
	if obs.Labels()[0].Label != "leaf_blight" {
		t.Error("Observation labels aliased caller slice")
	}

	_, err = NewImageLabelObservation(time.Now(), []Label{{Label: "x", Confidence: 1.5}}, "")
	if !errors.Is(err, ErrInvalidObservation) {
		t.Errorf("Expected ErrInvalidObservation, got %v", err)
	}
}

func TestWeatherDayUsable(t *testing.T) {
	full := WeatherDay{TempMaxC: f(31), TempMinC: f(24), HumidityPct: f(70), RainMM: f(0), WindKmh: f(8)}
	if !full.Usable() {
		t.Error("Expected complete day to be usable")
	}

	tests := map[string]WeatherDay{
		"missing max":        {TempMinC: f(24), HumidityPct: f(70), RainMM: f(0), WindKmh: f(8)},
		"min above max":      {TempMaxC: f(20), TempMinC: f(24), HumidityPct: f(70), RainMM: f(0), WindKmh: f(8)},
		"humidity over 100":  {TempMaxC: f(31), TempMinC: f(24), HumidityPct: f(140), RainMM: f(0), WindKmh: f(8)},
		"negative rain":      {TempMaxC: f(31), TempMinC: f(24), HumidityPct: f(70), RainMM: f(-1), WindKmh: f(8)},
		"missing everything": {},
	}
	for name, day := range tests {
		t.Run(name, func(t *testing.T) {
			if day.Usable() {
				t.Errorf("Expected %s to be unusable", name)
			}
		})
	}
}

func TestObservationRecord(t *testing.T) {
	rec := ObservationRecord{Kind: KindUtterance, Text: "നെല്ല് എങ്ങനെ നടാം?", Language: "ml-IN"}
	obs, err := rec.Observation()
	if err != nil {
		t.Fatalf("Observation returned error: %v", err)
	}
	if obs.Language() != LanguageMalayalam {
		t.Errorf("Expected language ml, got %q", obs.Language())
	}
	if obs.SourceConfidence() != 1.0 {
		t.Errorf("Expected deterministic confidence 1.0, got %v", obs.SourceConfidence())
	}

	_, err = ObservationRecord{Kind: KindWeather}.Observation()
	if !IsWrappingError(err, ErrInvalidObservation) {
		t.Errorf("Expected ErrInvalidObservation, got %v", err)
	}
}

func TestSeverityOrdering(t *testing.T) {
	if !(SeverityUrgent > SeverityAdvisory && SeverityAdvisory > SeverityInfo) {
		t.Fatal("Severity order must be urgent > advisory > info")
	}
	for _, s := range []Severity{SeverityInfo, SeverityAdvisory, SeverityUrgent} {
		parsed, ok := ParseSeverity(s.String())
		if !ok || parsed != s {
			t.Errorf("ParseSeverity(%q) = %v, %v", s.String(), parsed, ok)
		}
	}
}

func TestProvenancePriority(t *testing.T) {
	order := []Provenance{
		ProvenanceDiseaseAlert,
		ProvenanceDiseaseTreatment,
		ProvenanceWeatherUrgent,
		ProvenanceWeatherAdvisory,
		ProvenanceConversational,
	}
	for i := 1; i < len(order); i++ {
		if order[i-1].Priority() >= order[i].Priority() {
			t.Errorf("Expected %s to outrank %s", order[i-1], order[i])
		}
	}
}

func TestSessionDeltaMerge(t *testing.T) {
	prev := SessionDelta{LastIntent: IntentWeatherQuery, LastDetection: &Detection{Label: "blast", Confidence: 0.6}}
	next := prev.Merge(SessionDelta{LastIntent: IntentDiseaseQuery})
	if next.LastIntent != IntentDiseaseQuery {
		t.Errorf("Expected last intent to be replaced, got %q", next.LastIntent)
	}
	if next.LastDetection == nil || next.LastDetection.Label != "blast" {
		t.Errorf("Expected last detection to be kept, got %+v", next.LastDetection)
	}
}
