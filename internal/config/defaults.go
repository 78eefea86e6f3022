package config

import (
	"time"

	"github.com/apple/pkl-go/pkl"
)

// Default returns the values AppConfig.pkl declares, for running without a
// config file.
func Default() *AppConfig {
	return &AppConfig{
		DefaultLanguage: "en",
		MetricsAddr:     ":9090",
		Providers: &Providers{
			Backend:          "keyword",
			InferenceTimeout: &pkl.Duration{Value: 10, Unit: pkl.Second},
			LookupTimeout:    &pkl.Duration{Value: 3, Unit: pkl.Second},
			ConfidenceFloor:  0.35,
		},
		Disease: &Disease{EscalationFloor: 0.7},
		Fusion:  &Fusion{Cap: 5},
	}
}

// DefaultHttpModel returns the httpModel block defaults for baseURL.
func DefaultHttpModel(baseURL string) *HttpModel {
	return &HttpModel{
		BaseUrl:   baseURL,
		CacheSize: 256,
		CacheTtl:  &pkl.Duration{Value: 10, Unit: pkl.Minute},
	}
}

// DefaultGemini returns the gemini block defaults.
func DefaultGemini() *Gemini {
	return &Gemini{
		ApiKeyEnv:   "GEMINI_API_KEY",
		Model:       "gemini-2.5-flash",
		SpeechModel: "gemini-2.5-flash-preview-tts",
		Voice:       "Kore",
	}
}

// GoDuration converts d, treating nil as zero.
func GoDuration(d *pkl.Duration) time.Duration {
	if d == nil {
		return 0
	}
	return d.GoDuration()
}

// Deref returns *s, or "" for nil.
func Deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
