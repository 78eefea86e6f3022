package config

import "github.com/apple/pkl-go/pkl"

type Providers struct {
	// Which backend serves the capabilities.
	Backend string `pkl:"backend"`

	InferenceTimeout *pkl.Duration `pkl:"inferenceTimeout"`

	LookupTimeout *pkl.Duration `pkl:"lookupTimeout"`

	ConfidenceFloor float64 `pkl:"confidenceFloor"`

	HttpModel *HttpModel `pkl:"httpModel"`

	Gemini *Gemini `pkl:"gemini"`
}

type HttpModel struct {
	BaseUrl string `pkl:"baseUrl"`

	CacheSize int `pkl:"cacheSize"`

	CacheTtl *pkl.Duration `pkl:"cacheTtl"`
}

type Gemini struct {
	// Environment variable holding the API key.
	ApiKeyEnv string `pkl:"apiKeyEnv"`

	Model string `pkl:"model"`

	SpeechModel string `pkl:"speechModel"`

	Voice string `pkl:"voice"`
}

type Disease struct {
	EscalationFloor float64 `pkl:"escalationFloor"`
}

type Fusion struct {
	Cap int `pkl:"cap"`
}
