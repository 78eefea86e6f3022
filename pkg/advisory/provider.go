package advisory

import "context"

// Outcome tags a well-formed capability result.
type Outcome int

const (
	OutcomeOK Outcome = iota
	// OutcomeLowConfidence means the best result is below the configured
	// floor. It is not an error; callers branch on it.
	OutcomeLowConfidence
)

func (o Outcome) String() string {
	if o == OutcomeLowConfidence {
		return "low_confidence"
	}
	return "ok"
}

// Intent is the result of intent classification.
type Intent struct {
	Tag            string            `json:"tag"`
	Language       string            `json:"language"`
	NormalizedText string            `json:"normalized_text"`
	Confidence     float64           `json:"confidence"`
	Slots          map[string]string `json:"slots,omitempty"`
}

// Transcript is the result of speech-to-text.
type Transcript struct {
	Text       string  `json:"text"`
	Language   string  `json:"language"`
	Confidence float64 `json:"confidence"`
}

// Intent tags understood by the router.
const (
	IntentWeatherQuery    = "weather-query"
	IntentDiseaseQuery    = "disease-query"
	IntentCropGuide       = "crop-guide"
	IntentSchemeQuery     = "scheme-query"
	IntentFertilizerQuery = "fertilizer-query"
	IntentSoilQuery       = "soil-query"
	IntentGreeting        = "greeting"
	IntentUnknown         = "unknown"
)

// ImageClassifier returns labels ordered by confidence desc.
type ImageClassifier interface {
	Name() string
	ClassifyImage(ctx context.Context, image []byte, cropHint string) ([]Label, error)
}

// IntentClassifier classifies and normalizes a text query.
type IntentClassifier interface {
	Name() string
	ClassifyIntent(ctx context.Context, text, languageHint string) (Intent, error)
}

// SpeechSynthesizer turns text into audio.
type SpeechSynthesizer interface {
	Name() string
	SynthesizeSpeech(ctx context.Context, text, language string) ([]byte, error)
}

// Transcriber turns audio into text.
type Transcriber interface {
	Name() string
	Transcribe(ctx context.Context, audio []byte) (Transcript, error)
}

// Lookup is implemented by providers that answer in-process without model
// inference, such as keyword matchers. They get the shorter lookup timeout.
type Lookup interface {
	IsLookup() bool
}

// ImageClassification is the adapter-level image result.
type ImageClassification struct {
	Labels  []Label
	Outcome Outcome
}

// IntentClassification is the adapter-level intent result.
type IntentClassification struct {
	Intent  Intent
	Outcome Outcome
}
