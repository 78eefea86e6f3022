package keyword

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

func TestClassifyIntent(t *testing.T) {
	c := New()

	tests := []struct {
		text      string
		hint      string
		wantTag   string
		wantLang  string
		wantSlots map[string]string
	}{
		{"Will it RAIN tomorrow?", "", advisory.IntentWeatherQuery, "en", map[string]string{}},
		{"നാളെ മഴ പെയ്യുമോ?", "en", advisory.IntentWeatherQuery, "ml", map[string]string{}},
		{"hello, will it rain", "", advisory.IntentWeatherQuery, "en", map[string]string{}},
		{"my coconut has leaf rot", "", advisory.IntentDiseaseQuery, "en", map[string]string{"crop": "coconut"}},
		{"തെങ്ങിന് രോഗം", "", advisory.IntentDiseaseQuery, "ml", map[string]string{"crop": "coconut"}},
		{"how much fertilizer for paddy", "", advisory.IntentFertilizerQuery, "en", map[string]string{"crop": "rice"}},
		{"tell me about PM Kisan scheme", "", advisory.IntentSchemeQuery, "en", map[string]string{"scheme": "pm_kisan"}},
		{"when to plant rice", "", advisory.IntentCropGuide, "en", map[string]string{"crop": "rice", "topic": "planting"}},
		{"soil ph test", "", advisory.IntentSoilQuery, "en", map[string]string{}},
		{"Namaskaram", "ml", advisory.IntentGreeting, "en", map[string]string{}},
		{"നമസ്കാരം", "", advisory.IntentGreeting, "ml", map[string]string{}},
		{"what is the capital of france", "", advisory.IntentUnknown, "en", map[string]string{}},
	}
	for _, tt := range tests {
		t.Run(tt.text, func(t *testing.T) {
			intent, err := c.ClassifyIntent(context.Background(), tt.text, tt.hint)
			require.NoError(t, err)
			assert.Equal(t, tt.wantTag, intent.Tag)
			assert.Equal(t, tt.wantLang, intent.Language)
			assert.Equal(t, tt.wantSlots, intent.Slots)
			assert.GreaterOrEqual(t, intent.Confidence, 0.0)
			assert.LessOrEqual(t, intent.Confidence, 1.0)
		})
	}
}

func TestWordBoundaries(t *testing.T) {
	c := New()

	intent, err := c.ClassifyIntent(context.Background(), "this carrot thing", "")
	require.NoError(t, err)
	assert.Equal(t, advisory.IntentUnknown, intent.Tag, "neither hi nor rot should match inside words")
}

func TestEmptyText(t *testing.T) {
	intent, err := New().ClassifyIntent(context.Background(), "   ", "ml")
	require.NoError(t, err)
	assert.Equal(t, advisory.IntentUnknown, intent.Tag)
	assert.Equal(t, "ml", intent.Language)
	assert.Zero(t, intent.Confidence)
}

func TestMoreHitsRaiseConfidence(t *testing.T) {
	c := New()
	one, err := c.ClassifyIntent(context.Background(), "rain", "")
	require.NoError(t, err)
	three, err := c.ClassifyIntent(context.Background(), "rain, wind and monsoon forecast", "")
	require.NoError(t, err)
	assert.Greater(t, three.Confidence, one.Confidence)
	assert.LessOrEqual(t, three.Confidence, 0.9)
}

func TestConcurrentUse(t *testing.T) {
	c := New()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			intent, err := c.ClassifyIntent(context.Background(), "weather", "")
			assert.NoError(t, err)
			assert.Equal(t, advisory.IntentWeatherQuery, intent.Tag)
		}()
	}
	wg.Wait()
}

func TestCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := New().ClassifyIntent(ctx, "weather", "")
	assert.ErrorIs(t, err, context.Canceled)
}

func TestDetectLanguage(t *testing.T) {
	assert.Equal(t, "ml", DetectLanguage("rice നെല്ല്"))
	assert.Equal(t, "en", DetectLanguage("rice"))
	assert.Equal(t, "", DetectLanguage("123 ?"))
}
