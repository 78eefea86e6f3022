package advisory

import (
	"fmt"
	"math"
	"time"
)

// ObservationKind tags what an Observation carries.
type ObservationKind string

const (
	KindWeather    ObservationKind = "weather"
	KindImageLabel ObservationKind = "image-label"
	KindUtterance  ObservationKind = "utterance"
)

// WeatherDay is one day of an already-parsed forecast. Nil fields are missing
// measurements.
type WeatherDay struct {
	Date        string   `json:"date" yaml:"date"`
	TempMaxC    *float64 `json:"temp_max_c,omitempty" yaml:"temp_max_c,omitempty"`
	TempMinC    *float64 `json:"temp_min_c,omitempty" yaml:"temp_min_c,omitempty"`
	HumidityPct *float64 `json:"humidity_pct,omitempty" yaml:"humidity_pct,omitempty"`
	RainMM      *float64 `json:"rain_mm,omitempty" yaml:"rain_mm,omitempty"`
	WindKmh     *float64 `json:"wind_kmh,omitempty" yaml:"wind_kmh,omitempty"`
}

// Usable reports whether every measurement is present, finite and plausible.
func (d WeatherDay) Usable() bool {
	for _, v := range []*float64{d.TempMaxC, d.TempMinC, d.HumidityPct, d.RainMM, d.WindKmh} {
		if v == nil || math.IsNaN(*v) || math.IsInf(*v, 0) {
			return false
		}
	}
	switch {
	case *d.TempMinC > *d.TempMaxC:
		return false
	case *d.HumidityPct < 0 || *d.HumidityPct > 100:
		return false
	case *d.RainMM < 0 || *d.WindKmh < 0:
		return false
	}
	return true
}

// Input returns the day as the map handed to rule conditions.
func (d WeatherDay) Input() map[string]any {
	m := map[string]any{"date": d.Date}
	put := func(k string, v *float64) {
		if v != nil {
			m[k] = *v
		}
	}
	put("temp_max_c", d.TempMaxC)
	put("temp_min_c", d.TempMinC)
	put("humidity_pct", d.HumidityPct)
	put("rain_mm", d.RainMM)
	put("wind_kmh", d.WindKmh)
	return m
}

func (d WeatherDay) clone() WeatherDay {
	cp := func(v *float64) *float64 {
		if v == nil {
			return nil
		}
		x := *v
		return &x
	}
	return WeatherDay{
		Date:        d.Date,
		TempMaxC:    cp(d.TempMaxC),
		TempMinC:    cp(d.TempMinC),
		HumidityPct: cp(d.HumidityPct),
		RainMM:      cp(d.RainMM),
		WindKmh:     cp(d.WindKmh),
	}
}

// Label is one (label, confidence) pair from image classification.
type Label struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Observation is one immutable structured fact fed into a single request.
type Observation struct {
	kind       ObservationKind
	at         time.Time
	confidence float64
	language   string

	weather WeatherDay
	labels  []Label
	crop    string
	text    string
}

// NewWeatherObservation creates a weather observation for one forecast day.
func NewWeatherObservation(at time.Time, day WeatherDay, sourceConfidence float64) (Observation, error) {
	if err := checkConfidence(sourceConfidence); err != nil {
		return Observation{}, err
	}
	return Observation{kind: KindWeather, at: at, confidence: sourceConfidence, weather: day.clone()}, nil
}

// NewImageLabelObservation records an image classification result. The
// source confidence is the top label's confidence.
func NewImageLabelObservation(at time.Time, labels []Label, cropHint string) (Observation, error) {
	top := 0.0
	for _, l := range labels {
		if err := checkConfidence(l.Confidence); err != nil {
			return Observation{}, fmt.Errorf("label %q: %w", l.Label, err)
		}
		if l.Confidence > top {
			top = l.Confidence
		}
	}
	cp := make([]Label, len(labels))
	copy(cp, labels)
	return Observation{kind: KindImageLabel, at: at, confidence: top, labels: cp, crop: cropHint}, nil
}

// NewUtteranceObservation records a text (or transcribed) query.
func NewUtteranceObservation(at time.Time, text, lang string, sourceConfidence float64) (Observation, error) {
	if err := checkConfidence(sourceConfidence); err != nil {
		return Observation{}, err
	}
	if text == "" {
		return Observation{}, fmt.Errorf("%w: empty utterance", ErrInvalidObservation)
	}
	return Observation{
		kind:       KindUtterance,
		at:         at,
		confidence: sourceConfidence,
		language:   NormalizeLanguage(lang),
		text:       text,
	}, nil
}

func checkConfidence(c float64) error {
	if math.IsNaN(c) || c < 0 || c > 1 {
		return fmt.Errorf("%w: confidence %v outside [0,1]", ErrInvalidObservation, c)
	}
	return nil
}

func (o Observation) Kind() ObservationKind     { return o.kind }
func (o Observation) At() time.Time             { return o.at }
func (o Observation) SourceConfidence() float64 { return o.confidence }
func (o Observation) Language() string          { return o.language }
func (o Observation) Text() string              { return o.text }
func (o Observation) CropHint() string          { return o.crop }

// Weather returns the weather payload and whether this is a weather observation.
func (o Observation) Weather() (WeatherDay, bool) {
	if o.kind != KindWeather {
		return WeatherDay{}, false
	}
	return o.weather.clone(), true
}

// Labels returns a copy of the image labels.
func (o Observation) Labels() []Label {
	cp := make([]Label, len(o.labels))
	copy(cp, o.labels)
	return cp
}
