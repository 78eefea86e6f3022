package advisory

import "context"

// Treatment is guidance for one (disease, crop) pair. An empty Crop marks a
// crop-agnostic entry.
type Treatment struct {
	DiseaseID  string   `json:"disease_id" yaml:"disease"`
	Crop       string   `json:"crop,omitempty" yaml:"crop,omitempty"`
	MessageKey string   `json:"message_key" yaml:"message_key"`
	Steps      []string `json:"steps,omitempty" yaml:"steps,omitempty"`
	Contagious bool     `json:"contagious" yaml:"contagious"`
	Severity   string   `json:"severity,omitempty" yaml:"severity,omitempty"`
}

// Guide is a static knowledge article (crop guide or scheme).
type Guide struct {
	Key        string `json:"key" yaml:"key"`
	Topic      string `json:"topic" yaml:"topic"`
	MessageKey string `json:"message_key" yaml:"message_key"`
}

// Knowledge is the static knowledge collaborator. Lookups return ErrNotFound
// when no entry exists.
type Knowledge interface {
	LookupTreatment(ctx context.Context, diseaseID, cropID string) (Treatment, error)
	LookupGuide(ctx context.Context, key string) (Guide, error)
}

// Translator resolves language-neutral message keys. Returns ErrNotFound when
// the key has no text in the language.
type Translator interface {
	Resolve(ctx context.Context, messageKey, language string) (string, error)
}
