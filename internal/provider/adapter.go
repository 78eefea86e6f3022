// Package provider wraps capability providers with timeouts, a single
// retry, output validation and confidence-floor tagging.
package provider

import (
	"context"
	"errors"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/asimihsan/advisory_engine/internal/metrics"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

const (
	DefaultInferenceTimeout = 10 * time.Second
	DefaultLookupTimeout    = 3 * time.Second
	DefaultFloor            = 0.35

	CapabilityImage      = "image_classification"
	CapabilityIntent     = "intent_classification"
	CapabilitySpeech     = "speech_synthesis"
	CapabilityTranscribe = "transcription"
)

var errMalformed = errors.New("malformed provider output")

// Options tunes the adapter.
type Options struct {
	// InferenceTimeout bounds every attempt against a model-backed provider.
	InferenceTimeout time.Duration
	// LookupTimeout bounds attempts against providers implementing
	// advisory.Lookup.
	LookupTimeout time.Duration
	// Floor is the confidence below which a result is tagged low-confidence.
	Floor float64
}

// DefaultOptions returns the standard timeouts and floor.
func DefaultOptions() Options {
	return Options{
		InferenceTimeout: DefaultInferenceTimeout,
		LookupTimeout:    DefaultLookupTimeout,
		Floor:            DefaultFloor,
	}
}

// Providers is the set of backends an Adapter fronts. Any may be nil; calls
// to a missing capability fail with ErrProviderUnavailable.
type Providers struct {
	Image       advisory.ImageClassifier
	Intent      advisory.IntentClassifier
	Speech      advisory.SpeechSynthesizer
	Transcriber advisory.Transcriber
}

// Adapter is safe for concurrent use if the wrapped providers are.
type Adapter struct {
	p      Providers
	opts   Options
	logger *zap.Logger
}

// NewAdapter creates an adapter. Zero option fields take their defaults.
func NewAdapter(p Providers, opts Options, logger *zap.Logger) *Adapter {
	def := DefaultOptions()
	if opts.InferenceTimeout <= 0 {
		opts.InferenceTimeout = def.InferenceTimeout
	}
	if opts.LookupTimeout <= 0 {
		opts.LookupTimeout = def.LookupTimeout
	}
	if opts.Floor <= 0 {
		opts.Floor = def.Floor
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Adapter{p: p, opts: opts, logger: logger.Named("provider")}
}

// Floor returns the configured confidence floor.
func (a *Adapter) Floor() float64 { return a.opts.Floor }

// ClassifyImage returns labels sorted by confidence desc.
func (a *Adapter) ClassifyImage(ctx context.Context, image []byte, cropHint string) (advisory.ImageClassification, error) {
	if a.p.Image == nil {
		return advisory.ImageClassification{}, notConfigured(CapabilityImage)
	}
	name := a.p.Image.Name()
	labels, err := call(ctx, a, CapabilityImage, name, a.timeoutFor(a.p.Image), func(ctx context.Context) ([]advisory.Label, error) {
		labels, err := a.p.Image.ClassifyImage(ctx, image, cropHint)
		if err != nil {
			return nil, err
		}
		return validLabels(labels)
	})
	if err != nil {
		return advisory.ImageClassification{}, err
	}

	res := advisory.ImageClassification{Labels: labels}
	if len(labels) == 0 || labels[0].Confidence < a.opts.Floor {
		res.Outcome = advisory.OutcomeLowConfidence
		metrics.LowConfidenceResults.WithLabelValues(CapabilityImage, name).Inc()
	}
	return res, nil
}

// ClassifyIntent classifies text. An empty tag is reported as unknown.
func (a *Adapter) ClassifyIntent(ctx context.Context, text, languageHint string) (advisory.IntentClassification, error) {
	if a.p.Intent == nil {
		return advisory.IntentClassification{}, notConfigured(CapabilityIntent)
	}
	name := a.p.Intent.Name()
	intent, err := call(ctx, a, CapabilityIntent, name, a.timeoutFor(a.p.Intent), func(ctx context.Context) (advisory.Intent, error) {
		intent, err := a.p.Intent.ClassifyIntent(ctx, text, languageHint)
		if err != nil {
			return advisory.Intent{}, err
		}
		if !validConfidence(intent.Confidence) {
			return advisory.Intent{}, fmt.Errorf("%w: intent confidence %v", errMalformed, intent.Confidence)
		}
		return intent, nil
	})
	if err != nil {
		return advisory.IntentClassification{}, err
	}

	if intent.Tag == "" {
		intent.Tag = advisory.IntentUnknown
	}
	intent.Language = advisory.NormalizeLanguage(intent.Language)
	if intent.Language == "" {
		intent.Language = advisory.NormalizeLanguage(languageHint)
	}
	if intent.NormalizedText == "" {
		intent.NormalizedText = strings.TrimSpace(text)
	}

	res := advisory.IntentClassification{Intent: intent}
	if intent.Confidence < a.opts.Floor {
		res.Outcome = advisory.OutcomeLowConfidence
		metrics.LowConfidenceResults.WithLabelValues(CapabilityIntent, name).Inc()
	}
	return res, nil
}

// Transcribe converts audio to text.
func (a *Adapter) Transcribe(ctx context.Context, audio []byte) (advisory.Transcript, error) {
	if a.p.Transcriber == nil {
		return advisory.Transcript{}, notConfigured(CapabilityTranscribe)
	}
	return call(ctx, a, CapabilityTranscribe, a.p.Transcriber.Name(), a.timeoutFor(a.p.Transcriber), func(ctx context.Context) (advisory.Transcript, error) {
		tr, err := a.p.Transcriber.Transcribe(ctx, audio)
		if err != nil {
			return advisory.Transcript{}, err
		}
		if !validConfidence(tr.Confidence) {
			return advisory.Transcript{}, fmt.Errorf("%w: transcript confidence %v", errMalformed, tr.Confidence)
		}
		tr.Language = advisory.NormalizeLanguage(tr.Language)
		return tr, nil
	})
}

// SynthesizeSpeech converts text to audio.
func (a *Adapter) SynthesizeSpeech(ctx context.Context, text, language string) ([]byte, error) {
	if a.p.Speech == nil {
		return nil, notConfigured(CapabilitySpeech)
	}
	return call(ctx, a, CapabilitySpeech, a.p.Speech.Name(), a.timeoutFor(a.p.Speech), func(ctx context.Context) ([]byte, error) {
		audio, err := a.p.Speech.SynthesizeSpeech(ctx, text, language)
		if err != nil {
			return nil, err
		}
		if len(audio) == 0 {
			return nil, fmt.Errorf("%w: empty audio", errMalformed)
		}
		return audio, nil
	})
}

// timeoutFor picks the per-attempt timeout for p.
func (a *Adapter) timeoutFor(p any) time.Duration {
	if l, ok := p.(advisory.Lookup); ok && l.IsLookup() {
		return a.opts.LookupTimeout
	}
	return a.opts.InferenceTimeout
}

// call runs fn with a per-attempt timeout and retries once. Cancellation of
// ctx is returned as is and never retried.
func call[T any](ctx context.Context, a *Adapter, capability, name string, timeout time.Duration, fn func(context.Context) (T, error)) (T, error) {
	timer := prometheus.NewTimer(metrics.ProviderCallLatency.WithLabelValues(capability, name))
	defer timer.ObserveDuration()

	var (
		zero    T
		lastErr error
	)
	for attempt := 1; attempt <= 2; attempt++ {
		if err := ctx.Err(); err != nil {
			return zero, err
		}
		actx, cancel := context.WithTimeout(ctx, timeout)
		v, err := fn(actx)
		cancel()
		if err == nil {
			return v, nil
		}
		if ctxErr := ctx.Err(); ctxErr != nil {
			return zero, ctxErr
		}

		lastErr = err
		metrics.ProviderErrors.WithLabelValues(capability, name, errorType(err)).Inc()
		a.logger.Warn("Capability provider call failed",
			zap.String("capability", capability),
			zap.String("provider", name),
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	return zero, fmt.Errorf("%w: %s via %s: %v", advisory.ErrProviderUnavailable, capability, name, lastErr)
}

func errorType(err error) string {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, errMalformed):
		return "malformed"
	case errors.Is(err, advisory.ErrProviderUnavailable):
		return "unavailable"
	}
	return "error"
}

func notConfigured(capability string) error {
	return fmt.Errorf("%w: no %s provider configured", advisory.ErrProviderUnavailable, capability)
}

func validConfidence(c float64) bool {
	return !math.IsNaN(c) && c >= 0 && c <= 1
}

func validLabels(labels []advisory.Label) ([]advisory.Label, error) {
	out := make([]advisory.Label, 0, len(labels))
	for _, l := range labels {
		if strings.TrimSpace(l.Label) == "" {
			return nil, fmt.Errorf("%w: empty label", errMalformed)
		}
		if !validConfidence(l.Confidence) {
			return nil, fmt.Errorf("%w: label %q confidence %v", errMalformed, l.Label, l.Confidence)
		}
		out = append(out, l)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Confidence > out[j].Confidence })
	return out, nil
}
