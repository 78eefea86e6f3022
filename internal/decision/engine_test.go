package decision

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/asimihsan/advisory_engine/internal/knowledge"
	"github.com/asimihsan/advisory_engine/internal/policy/file"
	"github.com/asimihsan/advisory_engine/internal/provider"
	"github.com/asimihsan/advisory_engine/internal/provider/mock"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var today = time.Date(2026, 10, 15, 6, 0, 0, 0, time.UTC)

func f(v float64) *float64 { return &v }

func mild(i int) advisory.WeatherDay {
	return advisory.WeatherDay{
		Date:        today.AddDate(0, 0, i).Format("2006-01-02"),
		TempMaxC:    f(31),
		TempMinC:    f(24),
		HumidityPct: f(70),
		RainMM:      f(3),
		WindKmh:     f(10),
	}
}

func forecast(t *testing.T, conf float64, days ...advisory.WeatherDay) []advisory.Observation {
	t.Helper()
	out := make([]advisory.Observation, len(days))
	for i, d := range days {
		obs, err := advisory.NewWeatherObservation(today.AddDate(0, 0, i), d, conf)
		require.NoError(t, err)
		out[i] = obs
	}
	return out
}

func utterance(t *testing.T, text, lang string) advisory.Observation {
	t.Helper()
	obs, err := advisory.NewUtteranceObservation(today, text, lang, 1)
	require.NoError(t, err)
	return obs
}

func photo() advisory.Media {
	return advisory.Media{Kind: advisory.MediaImage, Data: []byte("jpeg"), At: today}
}

type recordingAudit struct {
	mu       sync.Mutex
	results  []advisory.AdvisoryResult
	failures []error
}

func (r *recordingAudit) LogAdvisory(_ context.Context, _ advisory.CropContext, result advisory.AdvisoryResult, _ string, _ time.Duration) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.results = append(r.results, result)
	return nil
}

func (r *recordingAudit) LogEngineError(_ context.Context, err error, _ advisory.CropContext, _ string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failures = append(r.failures, err)
	return nil
}

func newEngine(t *testing.T, p provider.Providers) (*Engine, *recordingAudit) {
	t.Helper()
	table, err := file.New("").GetRuleTable(context.Background())
	require.NoError(t, err)
	store, err := knowledge.Default()
	require.NoError(t, err)

	audit := &recordingAudit{}
	adapter := provider.NewAdapter(p, provider.Options{InferenceTimeout: time.Second, LookupTimeout: time.Second}, nil)
	engine, err := New(Deps{
		Adapter:    adapter,
		Rules:      table,
		Knowledge:  store,
		Translator: store,
		Audit:      audit,
	}, Options{})
	require.NoError(t, err)
	engine.now = func() time.Time { return today }
	return engine, audit
}

func all(p *mock.Provider) provider.Providers {
	return provider.Providers{Image: p, Intent: p, Speech: p, Transcriber: p}
}

func engineError(t *testing.T, err error) *advisory.EngineError {
	t.Helper()
	require.Error(t, err)
	ee, ok := advisory.AsEngineError(err)
	require.True(t, ok, "expected EngineError, got %T: %v", err, err)
	return ee
}

func TestEvaluate_HeatStressWindow(t *testing.T) {
	engine, audit := newEngine(t, all(mock.NewProvider("m")))
	days := []advisory.WeatherDay{mild(0), mild(1), mild(2), mild(3), mild(4)}
	days[2].TempMaxC = f(38)
	obs := forecast(t, 1, days...)

	result, err := engine.Evaluate(context.Background(), advisory.Request{
		Observations: obs,
		Context:      advisory.CropContext{Crop: "rice", District: "Palakkad"},
	})
	require.NoError(t, err)

	require.Len(t, result.Actions, 1)
	action := result.Actions[0]
	assert.Equal(t, "irrigation-stress", action.RuleID)
	assert.Equal(t, advisory.SeverityAdvisory, action.Severity)
	assert.Equal(t, obs[2].At(), action.TriggeredAt)
	assert.Contains(t, action.Text, days[2].Date)
	assert.Contains(t, action.Text, "rice")

	assert.Equal(t, "en", result.Language)
	assert.Equal(t, today, result.GeneratedAt)
	_, err = uuid.Parse(result.RequestID)
	assert.NoError(t, err)
	assert.Empty(t, result.Notices)
	assert.Equal(t, "en", result.SessionDelta.LastLanguage)

	require.Len(t, audit.results, 1)
	assert.Equal(t, result.RequestID, audit.results[0].RequestID)
}

func TestEvaluate_ContagiousDiseaseEscalates(t *testing.T) {
	p := mock.NewProvider("m").WithLabels(
		advisory.Label{Label: "leaf_rot", Confidence: 0.1},
		advisory.Label{Label: "leaf_blight", Confidence: 0.82},
	)
	engine, _ := newEngine(t, all(p))

	result, err := engine.Evaluate(context.Background(), advisory.Request{
		Media:   []advisory.Media{photo()},
		Context: advisory.CropContext{Crop: "coconut", District: "Kottayam"},
	})
	require.NoError(t, err)

	require.Len(t, result.Actions, 2)
	alert, treatment := result.Actions[0], result.Actions[1]
	assert.Equal(t, advisory.CategoryAlert, alert.Category)
	assert.Equal(t, advisory.SeverityUrgent, alert.Severity)
	assert.Equal(t, "Kottayam", alert.Region)
	assert.Equal(t, advisory.ProvenanceDiseaseAlert, alert.Provenance)
	assert.Equal(t, advisory.CategoryPestControl, treatment.Category)
	assert.Equal(t, 0.82, treatment.Confidence)
	assert.Equal(t, "treatment.leaf_blight.coconut", treatment.MessageKey)

	want := &advisory.Detection{Label: "leaf_blight", Confidence: 0.82, Crop: "coconut"}
	if diff := cmp.Diff(want, result.SessionDelta.LastDetection); diff != "" {
		t.Errorf("LastDetection mismatch (-want +got):\n%s", diff)
	}
	assert.Equal(t, 1, p.Calls("image"))
	assert.Zero(t, p.Calls("intent"))
}

func TestEvaluate_IntentProviderUnavailable(t *testing.T) {
	failing := mock.NewProvider("down").WithError(errors.New("connection refused"))
	engine, _ := newEngine(t, provider.Providers{Intent: failing})

	result, err := engine.Evaluate(context.Background(), advisory.Request{
		Observations: []advisory.Observation{utterance(t, "will it rain tomorrow", "en")},
		Context:      advisory.CropContext{Crop: "rice"},
	})
	require.NoError(t, err)

	require.Len(t, result.Actions, 1)
	assert.Equal(t, advisory.CategoryClarification, result.Actions[0].Category)
	assert.Equal(t, advisory.MsgRouterRetry, result.Actions[0].MessageKey)
	assert.NotEmpty(t, result.Actions[0].Text)
	assert.True(t, result.HasNotice(advisory.NoticeProviderUnavailable))
	assert.Equal(t, 2, failing.Calls("intent"), "one retry before giving up")
}

func TestEvaluate_UnclearPhoto(t *testing.T) {
	p := mock.NewProvider("m").WithLabels(advisory.Label{Label: "unknown", Confidence: 0.20})
	engine, _ := newEngine(t, all(p))

	result, err := engine.Evaluate(context.Background(), advisory.Request{
		Media:   []advisory.Media{photo()},
		Context: advisory.CropContext{Crop: "coconut", District: "Kottayam"},
	})
	require.NoError(t, err)

	require.Len(t, result.Actions, 1)
	assert.Equal(t, advisory.CategoryClarification, result.Actions[0].Category)
	assert.Equal(t, 0.20, result.Actions[0].Confidence)
	assert.True(t, result.HasNotice(advisory.NoticeLowConfidence))
	assert.Nil(t, result.SessionDelta.LastDetection)
}

func TestEvaluate_DiseaseOutranksWeatherAtEqualSeverity(t *testing.T) {
	p := mock.NewProvider("m").WithLabels(advisory.Label{Label: "brown_spot", Confidence: 0.9})
	engine, _ := newEngine(t, all(p))

	days := []advisory.WeatherDay{mild(0), mild(1), mild(2)}
	days[0].TempMaxC = f(38)
	for i := range days {
		days[i].HumidityPct = f(90)
	}

	result, err := engine.Evaluate(context.Background(), advisory.Request{
		Observations: forecast(t, 0.9, days...),
		Media:        []advisory.Media{photo()},
		Context:      advisory.CropContext{Crop: "rice", District: "Alappuzha"},
	})
	require.NoError(t, err)

	got := make([]advisory.Provenance, len(result.Actions))
	for i, a := range result.Actions {
		assert.Equal(t, advisory.SeverityAdvisory, a.Severity)
		got[i] = a.Provenance
	}
	want := []advisory.Provenance{
		advisory.ProvenanceDiseaseTreatment,
		advisory.ProvenanceWeatherAdvisory,
		advisory.ProvenanceWeatherAdvisory,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("provenance order mismatch (-want +got):\n%s", diff)
	}
}

func TestEvaluate_AnswerConfidenceCappedBySource(t *testing.T) {
	intent := advisory.Intent{Tag: advisory.IntentCropGuide, Language: "en", Confidence: 0.95,
		Slots: map[string]string{"crop": "rice"}}

	t.Run("text utterance", func(t *testing.T) {
		engine, _ := newEngine(t, all(mock.NewProvider("m").WithIntent(intent)))
		question, err := advisory.NewUtteranceObservation(today, "how do I grow rice", "en", 0.4)
		require.NoError(t, err)

		result, err := engine.Evaluate(context.Background(), advisory.Request{
			Observations: []advisory.Observation{question},
		})
		require.NoError(t, err)
		require.Len(t, result.Actions, 1)
		assert.Equal(t, "guide.rice", result.Actions[0].MessageKey)
		assert.Equal(t, 0.4, result.Actions[0].Confidence)
	})

	t.Run("voice transcript", func(t *testing.T) {
		p := mock.NewProvider("m").
			WithTranscript(advisory.Transcript{Text: "how do I grow rice", Language: "en", Confidence: 0.4}).
			WithIntent(intent)
		engine, _ := newEngine(t, all(p))

		result, err := engine.Evaluate(context.Background(), advisory.Request{
			Media: []advisory.Media{{Kind: advisory.MediaAudio, Data: []byte("ogg"), At: today}},
		})
		require.NoError(t, err)
		require.Len(t, result.Actions, 1)
		assert.Equal(t, "guide.rice", result.Actions[0].MessageKey)
		assert.Equal(t, 0.4, result.Actions[0].Confidence)
	})

	t.Run("intent confidence below the source", func(t *testing.T) {
		low := intent
		low.Confidence = 0.6
		engine, _ := newEngine(t, all(mock.NewProvider("m").WithIntent(low)))

		result, err := engine.Evaluate(context.Background(), advisory.Request{
			Observations: []advisory.Observation{utterance(t, "how do I grow rice", "en")},
		})
		require.NoError(t, err)
		require.Len(t, result.Actions, 1)
		assert.Equal(t, 0.6, result.Actions[0].Confidence)
	})
}

func TestEvaluate_VoiceQueryInMalayalam(t *testing.T) {
	p := mock.NewProvider("m").
		WithTranscript(advisory.Transcript{Text: "നാളെ മഴ പെയ്യുമോ", Language: "ml-IN", Confidence: 0.9}).
		WithIntent(advisory.Intent{Tag: advisory.IntentWeatherQuery, Confidence: 0.9})
	engine, _ := newEngine(t, all(p))

	days := []advisory.WeatherDay{mild(0), mild(1), mild(2)}
	days[1].RainMM = f(20)

	result, err := engine.Evaluate(context.Background(), advisory.Request{
		Observations: forecast(t, 1, days...),
		Media:        []advisory.Media{{Kind: advisory.MediaAudio, Data: []byte("ogg"), At: today}},
		Context:      advisory.CropContext{Crop: "pepper"},
	})
	require.NoError(t, err)

	assert.Equal(t, "ml", result.Language)
	require.NotEmpty(t, result.Actions)
	assert.Equal(t, "heavy-rain-drainage", result.Actions[0].RuleID)
	assert.NotContains(t, result.Actions[0].Text, "{")
	assert.Equal(t, advisory.IntentWeatherQuery, result.SessionDelta.LastIntent)
	assert.Equal(t, "ml", result.SessionDelta.LastLanguage)
	assert.Equal(t, 1, p.Calls("transcribe"))

	keys := map[string]int{}
	for _, a := range result.Actions {
		keys[a.MessageKey]++
	}
	for k, n := range keys {
		assert.Equal(t, 1, n, "action %s reported twice", k)
	}
}

func TestEvaluate_FollowUpUsesSessionDetection(t *testing.T) {
	p := mock.NewProvider("m").WithIntent(advisory.Intent{Tag: advisory.IntentDiseaseQuery, Language: "en", Confidence: 0.8})
	engine, _ := newEngine(t, all(p))

	session := &advisory.SessionDelta{
		LastLanguage:  "en",
		LastDetection: &advisory.Detection{Label: "quick_wilt", Confidence: 0.75, Crop: "pepper"},
	}
	result, err := engine.Evaluate(context.Background(), advisory.Request{
		Observations: []advisory.Observation{utterance(t, "what should I spray?", "en")},
		Context:      advisory.CropContext{Crop: "pepper", Region: "Wayanad"},
		Session:      session,
	})
	require.NoError(t, err)

	require.NotEmpty(t, result.Actions)
	assert.Equal(t, advisory.CategoryAlert, result.Actions[0].Category)
	assert.Equal(t, "Wayanad", result.Actions[0].Region)
	assert.Equal(t, advisory.IntentDiseaseQuery, result.SessionDelta.LastIntent)
	assert.Equal(t, "quick_wilt", session.LastDetection.Label, "caller session is not modified")
}

func TestEvaluate_MissingForecast(t *testing.T) {
	engine, _ := newEngine(t, all(mock.NewProvider("m")))
	day := mild(0)
	day.RainMM = nil

	result, err := engine.Evaluate(context.Background(), advisory.Request{
		Observations: forecast(t, 1, day),
		Context:      advisory.CropContext{Crop: "rice", Language: "ml"},
	})
	require.NoError(t, err)
	assert.Empty(t, result.Actions)
	require.Len(t, result.Notices, 1)
	assert.Equal(t, advisory.NoticeDataInsufficient, result.Notices[0].Code)
	assert.NotEmpty(t, result.Notices[0].Text)
	assert.Equal(t, "ml", result.Language)
}

func TestEvaluate_ImageProviderDownStillAdvisesOnWeather(t *testing.T) {
	down := mock.NewProvider("down").WithError(errors.New("503"))
	engine, _ := newEngine(t, provider.Providers{Image: down})
	days := []advisory.WeatherDay{mild(0)}
	days[0].TempMaxC = f(41)

	result, err := engine.Evaluate(context.Background(), advisory.Request{
		Observations: forecast(t, 1, days...),
		Media:        []advisory.Media{photo()},
		Context:      advisory.CropContext{Crop: "coconut"},
	})
	require.NoError(t, err)
	require.NotEmpty(t, result.Actions)
	assert.Equal(t, "extreme-heat", result.Actions[0].RuleID)
	assert.True(t, result.HasNotice(advisory.NoticeProviderUnavailable))
}

// blockingPair only returns once both capabilities have been entered, so
// it deadlocks (until ctx expires) if the engine calls them sequentially.
type blockingPair struct {
	image, intent chan struct{}
}

func (b *blockingPair) Name() string { return "pair" }

func (b *blockingPair) ClassifyImage(ctx context.Context, _ []byte, _ string) ([]advisory.Label, error) {
	close(b.image)
	select {
	case <-b.intent:
		return []advisory.Label{{Label: "healthy", Confidence: 0.95}}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (b *blockingPair) ClassifyIntent(ctx context.Context, text, _ string) (advisory.Intent, error) {
	close(b.intent)
	select {
	case <-b.image:
		return advisory.Intent{Tag: advisory.IntentGreeting, Language: "en", Confidence: 0.9}, nil
	case <-ctx.Done():
		return advisory.Intent{}, ctx.Err()
	}
}

func TestEvaluate_ImageAndIntentRunConcurrently(t *testing.T) {
	pair := &blockingPair{image: make(chan struct{}), intent: make(chan struct{})}
	engine, _ := newEngine(t, provider.Providers{Image: pair, Intent: pair})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	result, err := engine.Evaluate(ctx, advisory.Request{
		Observations: []advisory.Observation{utterance(t, "hello", "en")},
		Media:        []advisory.Media{photo()},
		Context:      advisory.CropContext{Crop: "rice"},
	})
	require.NoError(t, err)

	keys := make([]string, len(result.Actions))
	for i, a := range result.Actions {
		keys[i] = a.MessageKey
	}
	assert.ElementsMatch(t, []string{"guide.greeting", advisory.MsgDiseaseHealthy}, keys)
}

func TestEvaluate_Errors(t *testing.T) {
	t.Run("no input", func(t *testing.T) {
		engine, audit := newEngine(t, all(mock.NewProvider("m")))
		_, err := engine.Evaluate(context.Background(), advisory.Request{Context: advisory.CropContext{Language: "ml"}})
		ee := engineError(t, err)
		assert.Equal(t, advisory.CodeNoInput, ee.Code)
		assert.ErrorIs(t, err, advisory.ErrNoInput)
		assert.NotEmpty(t, ee.Message)
		assert.Len(t, audit.failures, 1)
	})

	t.Run("empty media", func(t *testing.T) {
		engine, _ := newEngine(t, all(mock.NewProvider("m")))
		_, err := engine.Evaluate(context.Background(), advisory.Request{
			Media: []advisory.Media{{Kind: advisory.MediaImage}},
		})
		assert.Equal(t, advisory.CodeInvalidInput, engineError(t, err).Code)
	})

	t.Run("already cancelled", func(t *testing.T) {
		engine, _ := newEngine(t, all(mock.NewProvider("m")))
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		_, err := engine.Evaluate(ctx, advisory.Request{Media: []advisory.Media{photo()}})
		ee := engineError(t, err)
		assert.Equal(t, advisory.CodeCancelled, ee.Code)
		assert.Equal(t, "The request was cancelled.", ee.Message)
	})

	t.Run("cancelled during provider call", func(t *testing.T) {
		slow := mock.NewProvider("slow").
			WithLabels(advisory.Label{Label: "blast", Confidence: 0.9}).
			WithDelay(10 * time.Second)
		engine, audit := newEngine(t, all(slow))

		ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
		defer cancel()
		result, err := engine.Evaluate(ctx, advisory.Request{Media: []advisory.Media{photo()}})
		assert.Equal(t, advisory.CodeCancelled, engineError(t, err).Code)
		assert.Empty(t, result.Actions, "partial results are discarded")
		assert.Empty(t, audit.results)
	})

	t.Run("untranslated top action", func(t *testing.T) {
		engine, _ := newEngine(t, all(mock.NewProvider("m")))
		days := []advisory.WeatherDay{mild(0)}
		days[0].TempMaxC = f(41)
		_, err := engine.Evaluate(context.Background(), advisory.Request{
			Observations: forecast(t, 1, days...),
			Context:      advisory.CropContext{Crop: "rice", Language: "fr"},
		})
		ee := engineError(t, err)
		assert.Equal(t, advisory.CodeLocalizationMissing, ee.Code)
		assert.ErrorIs(t, err, advisory.ErrLocalizationMissing)
		assert.Equal(t, "This advice is not available in your language yet.", ee.Message)
	})
}

func TestEvaluate_Deterministic(t *testing.T) {
	p := mock.NewProvider("m").WithLabels(advisory.Label{Label: "leaf_blight", Confidence: 0.82})
	engine, _ := newEngine(t, all(p))
	days := []advisory.WeatherDay{mild(0), mild(1), mild(2), mild(3), mild(4)}
	days[1].WindKmh = f(30)
	req := advisory.Request{
		Observations: forecast(t, 1, days...),
		Media:        []advisory.Media{photo()},
		Context:      advisory.CropContext{Crop: "coconut", District: "Kozhikode"},
	}

	first, err := engine.Evaluate(context.Background(), req)
	require.NoError(t, err)
	for i := 0; i < 10; i++ {
		again, err := engine.Evaluate(context.Background(), req)
		require.NoError(t, err)
		if diff := cmp.Diff(first.Actions, again.Actions); diff != "" {
			t.Fatalf("run %d differs (-first +again):\n%s", i, diff)
		}
	}
	assert.LessOrEqual(t, len(first.Actions), 5)
}

func TestSpeak(t *testing.T) {
	p := mock.NewProvider("m").
		WithLabels(advisory.Label{Label: "bud_rot", Confidence: 0.9}).
		WithAudio([]byte("RIFF"))
	engine, _ := newEngine(t, all(p))

	result, err := engine.Evaluate(context.Background(), advisory.Request{
		Media:   []advisory.Media{photo()},
		Context: advisory.CropContext{Crop: "coconut", Language: "ml"},
	})
	require.NoError(t, err)

	audio, err := engine.Speak(context.Background(), result)
	require.NoError(t, err)
	assert.Equal(t, []byte("RIFF"), audio)
	assert.Equal(t, 1, p.Calls("speech"))

	_, err = engine.Speak(context.Background(), advisory.AdvisoryResult{Language: "en"})
	assert.Equal(t, advisory.CodeNoInput, engineError(t, err).Code)
}

func TestSpeak_ProviderUnavailable(t *testing.T) {
	engine, _ := newEngine(t, provider.Providers{})
	result := advisory.AdvisoryResult{
		Language: "en",
		Actions:  []advisory.Action{{MessageKey: "x", Text: "hello"}},
	}
	_, err := engine.Speak(context.Background(), result)
	assert.Equal(t, advisory.CodeProviderUnavailable, engineError(t, err).Code)
}

func TestNewRequiresCollaborators(t *testing.T) {
	_, err := New(Deps{}, Options{})
	assert.Error(t, err)
}
