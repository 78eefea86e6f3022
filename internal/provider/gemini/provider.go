// Package gemini implements the capability interfaces on the Gemini API.
// Classification and transcription ask for JSON constrained by a response
// schema; speech synthesis asks for the audio modality.
package gemini

import (
	"bytes"
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"google.golang.org/genai"

	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

const (
	DefaultModel       = "gemini-2.5-flash"
	DefaultSpeechModel = "gemini-2.5-flash-preview-tts"
	DefaultVoice       = "Kore"

	pcmSampleRate = 24000
)

// Config configures the Gemini provider.
type Config struct {
	APIKey      string
	Model       string
	SpeechModel string
	Voice       string
	// BaseURL overrides the API endpoint.
	BaseURL string
}

// Provider is safe for concurrent use.
type Provider struct {
	client *genai.Client
	cfg    Config
}

var (
	_ advisory.ImageClassifier   = (*Provider)(nil)
	_ advisory.IntentClassifier  = (*Provider)(nil)
	_ advisory.SpeechSynthesizer = (*Provider)(nil)
	_ advisory.Transcriber       = (*Provider)(nil)
)

// NewProvider creates a Gemini client.
func NewProvider(ctx context.Context, cfg Config) (*Provider, error) {
	if cfg.APIKey == "" {
		return nil, errors.New("gemini API key is required")
	}
	if cfg.Model == "" {
		cfg.Model = DefaultModel
	}
	if cfg.SpeechModel == "" {
		cfg.SpeechModel = DefaultSpeechModel
	}
	if cfg.Voice == "" {
		cfg.Voice = DefaultVoice
	}

	cc := &genai.ClientConfig{APIKey: cfg.APIKey, Backend: genai.BackendGeminiAPI}
	if cfg.BaseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: cfg.BaseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("creating gemini client: %w", err)
	}
	return &Provider{client: client, cfg: cfg}, nil
}

// Name implements the capability interfaces.
func (p *Provider) Name() string { return "gemini:" + p.cfg.Model }

var labelsSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"labels": {
			Type: genai.TypeArray,
			Items: &genai.Schema{
				Type: genai.TypeObject,
				Properties: map[string]*genai.Schema{
					"label":      {Type: genai.TypeString},
					"confidence": {Type: genai.TypeNumber},
				},
				Required: []string{"label", "confidence"},
			},
		},
	},
	Required: []string{"labels"},
}

// ClassifyImage implements advisory.ImageClassifier.
func (p *Provider) ClassifyImage(ctx context.Context, image []byte, cropHint string) ([]advisory.Label, error) {
	subject := "a crop plant"
	if cropHint != "" {
		subject = "a " + cropHint + " plant"
	}
	prompt := "This photo shows " + subject + ". Name the diseases visible on it as snake_case labels, " +
		"for example leaf_blight or bud_rot, or the single label healthy if there is none. " +
		"Give each label a confidence between 0 and 1."

	parts := []*genai.Part{
		genai.NewPartFromBytes(image, http.DetectContentType(image)),
		genai.NewPartFromText(prompt),
	}
	var out struct {
		Labels []advisory.Label `json:"labels"`
	}
	if err := p.generateJSON(ctx, parts, labelsSchema, &out); err != nil {
		return nil, err
	}
	return out.Labels, nil
}

var intentSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"tag": {Type: genai.TypeString, Enum: []string{
			advisory.IntentWeatherQuery,
			advisory.IntentDiseaseQuery,
			advisory.IntentCropGuide,
			advisory.IntentSchemeQuery,
			advisory.IntentFertilizerQuery,
			advisory.IntentSoilQuery,
			advisory.IntentGreeting,
			advisory.IntentUnknown,
		}},
		"language":        {Type: genai.TypeString, Enum: []string{advisory.LanguageEnglish, advisory.LanguageMalayalam}},
		"normalized_text": {Type: genai.TypeString},
		"confidence":      {Type: genai.TypeNumber},
		"crop":            {Type: genai.TypeString},
		"scheme":          {Type: genai.TypeString},
		"topic":           {Type: genai.TypeString},
	},
	Required: []string{"tag", "language", "confidence"},
}

// ClassifyIntent implements advisory.IntentClassifier.
func (p *Provider) ClassifyIntent(ctx context.Context, text, languageHint string) (advisory.Intent, error) {
	prompt := "Classify this farmer's question. Use crop for the crop it mentions in English, " +
		"scheme for a government scheme as snake_case and topic for a subject such as planting. " +
		"Leave slots empty when absent."
	if languageHint != "" {
		prompt += " The farmer usually speaks " + languageHint + "."
	}
	parts := []*genai.Part{genai.NewPartFromText(prompt), genai.NewPartFromText(text)}

	var out struct {
		Tag            string  `json:"tag"`
		Language       string  `json:"language"`
		NormalizedText string  `json:"normalized_text"`
		Confidence     float64 `json:"confidence"`
		Crop           string  `json:"crop"`
		Scheme         string  `json:"scheme"`
		Topic          string  `json:"topic"`
	}
	if err := p.generateJSON(ctx, parts, intentSchema, &out); err != nil {
		return advisory.Intent{}, err
	}

	slots := map[string]string{}
	for k, v := range map[string]string{"crop": out.Crop, "scheme": out.Scheme, "topic": out.Topic} {
		if v = strings.TrimSpace(v); v != "" {
			slots[k] = strings.ToLower(v)
		}
	}
	return advisory.Intent{
		Tag:            out.Tag,
		Language:       out.Language,
		NormalizedText: out.NormalizedText,
		Confidence:     out.Confidence,
		Slots:          slots,
	}, nil
}

var transcriptSchema = &genai.Schema{
	Type: genai.TypeObject,
	Properties: map[string]*genai.Schema{
		"text":       {Type: genai.TypeString},
		"language":   {Type: genai.TypeString},
		"confidence": {Type: genai.TypeNumber},
	},
	Required: []string{"text", "language", "confidence"},
}

// Transcribe implements advisory.Transcriber.
func (p *Provider) Transcribe(ctx context.Context, audio []byte) (advisory.Transcript, error) {
	mime := http.DetectContentType(audio)
	if !strings.HasPrefix(mime, "audio/") && mime != "application/ogg" {
		mime = "audio/wav"
	}
	parts := []*genai.Part{
		genai.NewPartFromBytes(audio, mime),
		genai.NewPartFromText("Transcribe this recording in its original language and give the BCP 47 language code."),
	}
	var tr advisory.Transcript
	if err := p.generateJSON(ctx, parts, transcriptSchema, &tr); err != nil {
		return advisory.Transcript{}, err
	}
	return tr, nil
}

// SynthesizeSpeech implements advisory.SpeechSynthesizer. Raw PCM from the
// API is returned as a WAV file.
func (p *Provider) SynthesizeSpeech(ctx context.Context, text, language string) ([]byte, error) {
	config := &genai.GenerateContentConfig{
		ResponseModalities: []string{"AUDIO"},
		SpeechConfig: &genai.SpeechConfig{
			LanguageCode: speechLanguage(language),
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: p.cfg.Voice},
			},
		},
	}
	contents := []*genai.Content{genai.NewContentFromText(text, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.SpeechModel, contents, config)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", advisory.ErrProviderUnavailable, err)
	}
	blob := inlineData(resp)
	if blob == nil {
		return nil, errors.New("gemini returned no audio")
	}
	if strings.Contains(blob.MIMEType, "L16") || strings.Contains(blob.MIMEType, "pcm") {
		return wavFromPCM(blob.Data, sampleRate(blob.MIMEType)), nil
	}
	return blob.Data, nil
}

func (p *Provider) generateJSON(ctx context.Context, parts []*genai.Part, schema *genai.Schema, out any) error {
	config := &genai.GenerateContentConfig{
		ResponseMIMEType: "application/json",
		ResponseSchema:   schema,
	}
	contents := []*genai.Content{genai.NewContentFromParts(parts, genai.RoleUser)}

	resp, err := p.client.Models.GenerateContent(ctx, p.cfg.Model, contents, config)
	if err != nil {
		return fmt.Errorf("%w: %v", advisory.ErrProviderUnavailable, err)
	}
	text := resp.Text()
	if text == "" {
		return errors.New("gemini returned an empty response")
	}
	if err := json.Unmarshal([]byte(text), out); err != nil {
		return fmt.Errorf("decoding gemini response: %w", err)
	}
	return nil
}

func inlineData(resp *genai.GenerateContentResponse) *genai.Blob {
	if resp == nil {
		return nil
	}
	for _, c := range resp.Candidates {
		if c == nil || c.Content == nil {
			continue
		}
		for _, part := range c.Content.Parts {
			if part != nil && part.InlineData != nil && len(part.InlineData.Data) > 0 {
				return part.InlineData
			}
		}
	}
	return nil
}

func speechLanguage(lang string) string {
	switch advisory.NormalizeLanguage(lang) {
	case advisory.LanguageMalayalam:
		return "ml-IN"
	default:
		return "en-IN"
	}
}

// sampleRate reads the rate parameter of a mime type like
// audio/L16;codec=pcm;rate=24000.
func sampleRate(mime string) int {
	for _, param := range strings.Split(mime, ";") {
		if v, ok := strings.CutPrefix(strings.TrimSpace(param), "rate="); ok {
			if rate, err := strconv.Atoi(v); err == nil && rate > 0 {
				return rate
			}
		}
	}
	return pcmSampleRate
}

// wavFromPCM prepends a RIFF header to 16-bit mono little-endian PCM.
func wavFromPCM(pcm []byte, rate int) []byte {
	const (
		channels      = 1
		bitsPerSample = 16
	)
	var buf bytes.Buffer
	buf.Grow(44 + len(pcm))
	w := func(v any) { _ = binary.Write(&buf, binary.LittleEndian, v) }

	buf.WriteString("RIFF")
	w(uint32(36 + len(pcm)))
	buf.WriteString("WAVEfmt ")
	w(uint32(16))
	w(uint16(1))
	w(uint16(channels))
	w(uint32(rate))
	w(uint32(rate * channels * bitsPerSample / 8))
	w(uint16(channels * bitsPerSample / 8))
	w(uint16(bitsPerSample))
	buf.WriteString("data")
	w(uint32(len(pcm)))
	buf.Write(pcm)
	return buf.Bytes()
}
