package knowledge

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/asimihsan/advisory_engine/internal/engine/opa"
	"github.com/asimihsan/advisory_engine/internal/policy/file"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

func TestLookupTreatment(t *testing.T) {
	store, err := Default()
	require.NoError(t, err)
	ctx := context.Background()

	t.Run("crop specific", func(t *testing.T) {
		tr, err := store.LookupTreatment(ctx, "leaf_blight", "coconut")
		require.NoError(t, err)
		assert.Equal(t, "treatment.leaf_blight.coconut", tr.MessageKey)
		assert.True(t, tr.Contagious)
	})

	t.Run("label spelling is normalized", func(t *testing.T) {
		tr, err := store.LookupTreatment(ctx, "Leaf Blight", "Coconut")
		require.NoError(t, err)
		assert.Equal(t, "leaf_blight", tr.DiseaseID)
	})

	t.Run("crop agnostic entry", func(t *testing.T) {
		tr, err := store.LookupTreatment(ctx, "leaf_blight", "")
		require.NoError(t, err)
		assert.Equal(t, "treatment.leaf_blight", tr.MessageKey)
		assert.Empty(t, tr.Crop)
	})

	t.Run("unknown pair", func(t *testing.T) {
		_, err := store.LookupTreatment(ctx, "leaf_blight", "banana")
		assert.ErrorIs(t, err, advisory.ErrNotFound)
	})

	t.Run("returned steps are a copy", func(t *testing.T) {
		tr, err := store.LookupTreatment(ctx, "blast", "rice")
		require.NoError(t, err)
		tr.Steps[0] = "mutated"
		again, err := store.LookupTreatment(ctx, "blast", "rice")
		require.NoError(t, err)
		assert.NotEqual(t, "mutated", again.Steps[0])
	})

	t.Run("cancelled context", func(t *testing.T) {
		cctx, cancel := context.WithCancel(ctx)
		cancel()
		_, err := store.LookupTreatment(cctx, "blast", "rice")
		assert.ErrorIs(t, err, context.Canceled)
	})
}

func TestLookupGuide(t *testing.T) {
	store, err := Default()
	require.NoError(t, err)

	g, err := store.LookupGuide(context.Background(), "Rice.Fertilizer")
	require.NoError(t, err)
	assert.Equal(t, "guide.rice.fertilizer", g.MessageKey)
	assert.Equal(t, advisory.IntentFertilizerQuery, g.Topic)

	_, err = store.LookupGuide(context.Background(), "banana.fertilizer")
	assert.ErrorIs(t, err, advisory.ErrNotFound)
}

func TestResolve(t *testing.T) {
	store, err := Default()
	require.NoError(t, err)
	ctx := context.Background()

	en, err := store.Resolve(ctx, "weather.irrigation_stress", "en")
	require.NoError(t, err)
	assert.Contains(t, en, "{date}")

	ml, err := store.Resolve(ctx, "weather.irrigation_stress", "ml-IN")
	require.NoError(t, err)
	assert.NotEqual(t, en, ml)

	_, err = store.Resolve(ctx, "weather.irrigation_stress", "ta")
	assert.ErrorIs(t, err, advisory.ErrNotFound)

	_, err = store.Resolve(ctx, "no.such.key", "en")
	assert.ErrorIs(t, err, advisory.ErrNotFound)
}

// Every key the engine can emit must be translated in every language.
func TestDefaultTablesAreComplete(t *testing.T) {
	store, err := Default()
	require.NoError(t, err)
	assert.Equal(t, []string{"en", "ml"}, store.Languages())

	table, err := file.Compile(context.Background(), opa.NewEngine(), file.DefaultSource())
	require.NoError(t, err)

	keys := append(store.MessageKeys(), advisory.EngineMessageKeys()...)
	for _, r := range table.Rules() {
		keys = append(keys, r.Consequence.MessageKey)
	}

	for _, lang := range store.Languages() {
		assert.Empty(t, store.MissingTranslations(lang, keys), "language %s", lang)
	}
}

func TestParseRejectsBadTables(t *testing.T) {
	tests := []struct {
		name      string
		knowledge string
		messages  string
	}{
		{"not yaml", "treatments: [", "en: {}"},
		{"treatment without key", "treatments:\n  - disease: blast\n", "en: {}"},
		{"bad severity", "treatments:\n  - {disease: blast, message_key: k, severity: severe}\n", "en: {}"},
		{"duplicate", "treatments:\n  - {disease: blast, crop: rice, message_key: a}\n  - {disease: Blast, crop: rice, message_key: b}\n", "en: {}"},
		{"guide without key", "guides:\n  - {topic: soil-query, message_key: k}\n", "en: {}"},
		{"bad language", "{}", "not a language tag!: {k: v}"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.knowledge), []byte(tt.messages))
			assert.ErrorIs(t, err, advisory.ErrConfigLoad)
		})
	}
}

func TestLoadFiles(t *testing.T) {
	dir := t.TempDir()
	msgPath := filepath.Join(dir, "messages.yaml")
	require.NoError(t, os.WriteFile(msgPath, []byte("en:\n  guide.greeting: hi there\n"), 0o644))

	store, err := LoadFiles("", msgPath)
	require.NoError(t, err)

	text, err := store.Resolve(context.Background(), "guide.greeting", "en")
	require.NoError(t, err)
	assert.Equal(t, "hi there", text)

	_, err = store.LookupTreatment(context.Background(), "blast", "rice")
	assert.NoError(t, err, "built-in knowledge table is used when no path is given")

	_, err = LoadFiles(filepath.Join(dir, "missing.yaml"), "")
	assert.ErrorIs(t, err, advisory.ErrConfigLoad)
}

func TestNormalizeID(t *testing.T) {
	for in, want := range map[string]string{
		"Leaf Blight":       "leaf_blight",
		"  quick-wilt ":     "quick_wilt",
		"bacterial__blight": "bacterial_blight",
		"":                  "",
	} {
		assert.Equal(t, want, NormalizeID(in), "input %q", in)
		assert.False(t, strings.Contains(NormalizeID(in), " "))
	}
}
