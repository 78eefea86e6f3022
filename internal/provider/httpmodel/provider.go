// Package httpmodel talks to a self-hosted model server over HTTP/JSON. One
// Provider serves every capability the server exposes.
package httpmodel

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/asimihsan/advisory_engine/internal/metrics"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

const (
	imagePath      = "/v1/classify/image"
	intentPath     = "/v1/classify/intent"
	transcribePath = "/v1/transcribe"
	synthesizePath = "/v1/synthesize"

	maxResponseBytes = 16 << 20
)

type cachedLabels struct {
	labels []advisory.Label
	expiry time.Time
}

// Provider implements the four capability interfaces against a model server.
type Provider struct {
	baseURL    string
	httpClient *http.Client
	cacheTTL   time.Duration

	// image results keyed by sha256(image)|crop hint
	cache *lru.Cache[string, cachedLabels]
	now   func() time.Time
}

var (
	_ advisory.ImageClassifier   = (*Provider)(nil)
	_ advisory.IntentClassifier  = (*Provider)(nil)
	_ advisory.SpeechSynthesizer = (*Provider)(nil)
	_ advisory.Transcriber       = (*Provider)(nil)
)

// NewProvider creates a model server client. A cacheSize of zero disables
// the image result cache.
func NewProvider(baseURL string, cacheSize int, cacheTTL time.Duration) (*Provider, error) {
	p := &Provider{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: 30 * time.Second},
		cacheTTL:   cacheTTL,
		now:        time.Now,
	}
	if cacheSize > 0 {
		c, err := lru.New[string, cachedLabels](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("creating image cache: %w", err)
		}
		p.cache = c
	}
	return p, nil
}

// Name implements the capability interfaces.
func (p *Provider) Name() string { return "httpmodel" }

type imageRequest struct {
	Image    []byte `json:"image"`
	CropHint string `json:"crop_hint,omitempty"`
}

type imageResponse struct {
	Labels []advisory.Label `json:"labels"`
}

// ClassifyImage implements advisory.ImageClassifier.
func (p *Provider) ClassifyImage(ctx context.Context, image []byte, cropHint string) ([]advisory.Label, error) {
	key := cacheKey(image, cropHint)
	if labels, ok := p.cached(key); ok {
		return labels, nil
	}

	var resp imageResponse
	if err := p.postJSON(ctx, imagePath, imageRequest{Image: image, CropHint: cropHint}, &resp); err != nil {
		return nil, err
	}

	if p.cache != nil {
		p.cache.Add(key, cachedLabels{labels: copyLabels(resp.Labels), expiry: p.now().Add(p.cacheTTL)})
	}
	return resp.Labels, nil
}

func (p *Provider) cached(key string) ([]advisory.Label, bool) {
	if p.cache == nil {
		return nil, false
	}
	entry, ok := p.cache.Get(key)
	if !ok || !p.now().Before(entry.expiry) {
		if ok {
			p.cache.Remove(key)
		}
		metrics.ModelCacheLookups.WithLabelValues(p.Name(), "miss").Inc()
		return nil, false
	}
	metrics.ModelCacheLookups.WithLabelValues(p.Name(), "hit").Inc()
	return copyLabels(entry.labels), true
}

type intentRequest struct {
	Text         string `json:"text"`
	LanguageHint string `json:"language_hint,omitempty"`
}

// ClassifyIntent implements advisory.IntentClassifier.
func (p *Provider) ClassifyIntent(ctx context.Context, text, languageHint string) (advisory.Intent, error) {
	var intent advisory.Intent
	if err := p.postJSON(ctx, intentPath, intentRequest{Text: text, LanguageHint: languageHint}, &intent); err != nil {
		return advisory.Intent{}, err
	}
	return intent, nil
}

type transcribeRequest struct {
	Audio []byte `json:"audio"`
}

// Transcribe implements advisory.Transcriber.
func (p *Provider) Transcribe(ctx context.Context, audio []byte) (advisory.Transcript, error) {
	var tr advisory.Transcript
	if err := p.postJSON(ctx, transcribePath, transcribeRequest{Audio: audio}, &tr); err != nil {
		return advisory.Transcript{}, err
	}
	return tr, nil
}

type synthesizeRequest struct {
	Text     string `json:"text"`
	Language string `json:"language"`
}

// SynthesizeSpeech implements advisory.SpeechSynthesizer. The server
// answers with raw audio bytes.
func (p *Provider) SynthesizeSpeech(ctx context.Context, text, language string) ([]byte, error) {
	resp, err := p.post(ctx, synthesizePath, synthesizeRequest{Text: text, Language: language})
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	audio, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: reading audio: %v", advisory.ErrProviderUnavailable, err)
	}
	return audio, nil
}

func (p *Provider) postJSON(ctx context.Context, path string, body, out any) error {
	resp, err := p.post(ctx, path, body)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if err := json.NewDecoder(io.LimitReader(resp.Body, maxResponseBytes)).Decode(out); err != nil {
		return fmt.Errorf("decoding %s response: %w", path, err)
	}
	return nil
}

func (p *Provider) post(ctx context.Context, path string, body any) (*http.Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", path, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", advisory.ErrProviderUnavailable, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("%w: %s returned status %d", advisory.ErrProviderUnavailable, path, resp.StatusCode)
	}
	return resp, nil
}

func cacheKey(image []byte, cropHint string) string {
	sum := sha256.Sum256(image)
	return hex.EncodeToString(sum[:]) + "|" + cropHint
}

func copyLabels(labels []advisory.Label) []advisory.Label {
	out := make([]advisory.Label, len(labels))
	copy(out, labels)
	return out
}
