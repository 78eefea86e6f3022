// Package mock provides scriptable capability providers for tests and the
// CLI's offline mode.
package mock

import (
	"context"
	"sync"
	"time"

	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

// Provider implements every capability interface with canned values.
// FailTimes makes the first N calls of each capability return Err.
type Provider struct {
	ProviderName string

	Labels     []advisory.Label
	Intent     advisory.Intent
	Transcript advisory.Transcript
	Audio      []byte

	Err       error
	FailTimes int
	// Delay blocks each call, honoring cancellation.
	Delay time.Duration

	mu    sync.Mutex
	calls map[string]int
}

var (
	_ advisory.ImageClassifier   = (*Provider)(nil)
	_ advisory.IntentClassifier  = (*Provider)(nil)
	_ advisory.SpeechSynthesizer = (*Provider)(nil)
	_ advisory.Transcriber       = (*Provider)(nil)
)

// NewProvider creates a mock that succeeds with empty results.
func NewProvider(name string) *Provider {
	return &Provider{ProviderName: name, calls: make(map[string]int)}
}

// WithLabels sets the image classification result.
func (p *Provider) WithLabels(labels ...advisory.Label) *Provider {
	p.Labels = labels
	return p
}

// WithIntent sets the intent classification result.
func (p *Provider) WithIntent(intent advisory.Intent) *Provider {
	p.Intent = intent
	return p
}

// WithTranscript sets the transcription result.
func (p *Provider) WithTranscript(tr advisory.Transcript) *Provider {
	p.Transcript = tr
	return p
}

// WithAudio sets the speech synthesis result.
func (p *Provider) WithAudio(audio []byte) *Provider {
	p.Audio = audio
	return p
}

// WithError makes every call fail with err.
func (p *Provider) WithError(err error) *Provider {
	p.Err = err
	p.FailTimes = -1
	return p
}

// WithFailures makes the first n calls of each capability fail with err.
func (p *Provider) WithFailures(n int, err error) *Provider {
	p.Err = err
	p.FailTimes = n
	return p
}

// WithDelay makes every call block for d.
func (p *Provider) WithDelay(d time.Duration) *Provider {
	p.Delay = d
	return p
}

// Calls returns how many times capability was invoked.
func (p *Provider) Calls(capability string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.calls[capability]
}

// Name implements the capability interfaces.
func (p *Provider) Name() string {
	if p.ProviderName == "" {
		return "mock"
	}
	return p.ProviderName
}

func (p *Provider) begin(ctx context.Context, capability string) error {
	p.mu.Lock()
	if p.calls == nil {
		p.calls = make(map[string]int)
	}
	p.calls[capability]++
	n := p.calls[capability]
	p.mu.Unlock()

	if p.Delay > 0 {
		t := time.NewTimer(p.Delay)
		defer t.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-t.C:
		}
	}
	if p.Err != nil && (p.FailTimes < 0 || n <= p.FailTimes) {
		return p.Err
	}
	return nil
}

// ClassifyImage implements advisory.ImageClassifier.
func (p *Provider) ClassifyImage(ctx context.Context, _ []byte, _ string) ([]advisory.Label, error) {
	if err := p.begin(ctx, "image"); err != nil {
		return nil, err
	}
	out := make([]advisory.Label, len(p.Labels))
	copy(out, p.Labels)
	return out, nil
}

// ClassifyIntent implements advisory.IntentClassifier.
func (p *Provider) ClassifyIntent(ctx context.Context, text, languageHint string) (advisory.Intent, error) {
	if err := p.begin(ctx, "intent"); err != nil {
		return advisory.Intent{}, err
	}
	intent := p.Intent
	if intent.NormalizedText == "" {
		intent.NormalizedText = text
	}
	if intent.Language == "" {
		intent.Language = languageHint
	}
	return intent, nil
}

// SynthesizeSpeech implements advisory.SpeechSynthesizer.
func (p *Provider) SynthesizeSpeech(ctx context.Context, _, _ string) ([]byte, error) {
	if err := p.begin(ctx, "speech"); err != nil {
		return nil, err
	}
	return append([]byte(nil), p.Audio...), nil
}

// Transcribe implements advisory.Transcriber.
func (p *Provider) Transcribe(ctx context.Context, _ []byte) (advisory.Transcript, error) {
	if err := p.begin(ctx, "transcribe"); err != nil {
		return advisory.Transcript{}, err
	}
	return p.Transcript, nil
}
