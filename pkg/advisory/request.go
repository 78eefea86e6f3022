package advisory

import (
	"fmt"
	"time"
)

// MediaKind tags raw media that still needs a capability provider.
type MediaKind string

const (
	MediaImage MediaKind = "image"
	MediaAudio MediaKind = "audio"
)

// Media is a raw photo or voice message attached to a request.
type Media struct {
	Kind     MediaKind `json:"kind"`
	Data     []byte    `json:"data"`
	MimeType string    `json:"mime_type,omitempty"`
	CropHint string    `json:"crop_hint,omitempty"`
	At       time.Time `json:"at,omitzero"`
}

// Request is the input of Engine.Evaluate.
type Request struct {
	Observations []Observation
	Media        []Media
	Context      CropContext
	Session      *SessionDelta
}

// ObservationRecord is the wire form of an Observation used by callers that
// decode requests from JSON.
type ObservationRecord struct {
	Kind             ObservationKind `json:"kind"`
	At               time.Time       `json:"at"`
	SourceConfidence *float64        `json:"source_confidence,omitempty"`
	Language         string          `json:"language,omitempty"`
	Weather          *WeatherDay     `json:"weather,omitempty"`
	Labels           []Label         `json:"labels,omitempty"`
	CropHint         string          `json:"crop_hint,omitempty"`
	Text             string          `json:"text,omitempty"`
}

// Observation validates the record and builds the immutable Observation.
// A missing source confidence means the source is deterministic.
func (r ObservationRecord) Observation() (Observation, error) {
	conf := 1.0
	if r.SourceConfidence != nil {
		conf = *r.SourceConfidence
	}
	switch r.Kind {
	case KindWeather:
		if r.Weather == nil {
			return Observation{}, fmt.Errorf("%w: weather observation without payload", ErrInvalidObservation)
		}
		return NewWeatherObservation(r.At, *r.Weather, conf)
	case KindImageLabel:
		return NewImageLabelObservation(r.At, r.Labels, r.CropHint)
	case KindUtterance:
		return NewUtteranceObservation(r.At, r.Text, r.Language, conf)
	}
	return Observation{}, fmt.Errorf("%w: unknown kind %q", ErrInvalidObservation, r.Kind)
}

// RequestRecord is the wire form of a Request.
type RequestRecord struct {
	Observations []ObservationRecord `json:"observations"`
	Media        []Media             `json:"media,omitempty"`
	Context      CropContext         `json:"context"`
	Session      *SessionDelta       `json:"session,omitempty"`
}

// Request converts the record, failing on the first invalid observation.
func (r RequestRecord) Request() (Request, error) {
	obs := make([]Observation, 0, len(r.Observations))
	for i, rec := range r.Observations {
		o, err := rec.Observation()
		if err != nil {
			return Request{}, fmt.Errorf("observation %d: %w", i, err)
		}
		obs = append(obs, o)
	}
	return Request{Observations: obs, Media: r.Media, Context: r.Context, Session: r.Session}, nil
}
