package main

import (
	"context"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/asimihsan/advisory_engine/internal/audit/stdout"
	"github.com/asimihsan/advisory_engine/internal/config"
	"github.com/asimihsan/advisory_engine/internal/decision"
	"github.com/asimihsan/advisory_engine/internal/disease"
	"github.com/asimihsan/advisory_engine/internal/knowledge"
	"github.com/asimihsan/advisory_engine/internal/policy/file"
	"github.com/asimihsan/advisory_engine/internal/provider"
	"github.com/asimihsan/advisory_engine/internal/provider/gemini"
	"github.com/asimihsan/advisory_engine/internal/provider/httpmodel"
	"github.com/asimihsan/advisory_engine/internal/provider/keyword"
	"github.com/asimihsan/advisory_engine/internal/provider/mock"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

// buildEngine assembles the engine described by cfg.
func buildEngine(ctx context.Context, cfg *config.AppConfig, logger *zap.Logger) (*decision.Engine, error) {
	table, err := file.New(config.Deref(cfg.RulesPath)).GetRuleTable(ctx)
	if err != nil {
		return nil, err
	}
	store, err := knowledge.LoadFiles(config.Deref(cfg.KnowledgePath), config.Deref(cfg.MessagesPath))
	if err != nil {
		return nil, err
	}
	providers, err := buildProviders(ctx, cfg.Providers)
	if err != nil {
		return nil, err
	}

	adapter := provider.NewAdapter(providers, provider.Options{
		InferenceTimeout: config.GoDuration(cfg.Providers.InferenceTimeout),
		LookupTimeout:    config.GoDuration(cfg.Providers.LookupTimeout),
		Floor:            cfg.Providers.ConfidenceFloor,
	}, logger)

	logger.Info("Engine configured",
		zap.String("config_id", configID),
		zap.String("rule_table_id", table.ID()),
		zap.String("backend", cfg.Providers.Backend),
		zap.Strings("languages", store.Languages()))

	return decision.New(decision.Deps{
		Adapter:    adapter,
		Rules:      table,
		Knowledge:  store,
		Translator: store,
		Audit:      stdout.NewWithLogger(logger),
		Logger:     logger,
	}, decision.Options{
		Disease: disease.Config{
			Floor:           cfg.Providers.ConfidenceFloor,
			EscalationFloor: cfg.Disease.EscalationFloor,
		},
		Cap:             cfg.Fusion.Cap,
		DefaultLanguage: cfg.DefaultLanguage,
	})
}

func buildProviders(ctx context.Context, pc *config.Providers) (provider.Providers, error) {
	switch pc.Backend {
	case "mock":
		p := mock.NewProvider("mock").
			WithLabels(advisory.Label{Label: "healthy", Confidence: 0.9}).
			WithTranscript(advisory.Transcript{Text: "hello", Language: advisory.LanguageEnglish, Confidence: 1}).
			WithAudio([]byte("RIFF"))
		return provider.Providers{Image: p, Intent: keyword.New(), Speech: p, Transcriber: p}, nil

	case "keyword":
		// Text-only deployments: no photo or voice support.
		return provider.Providers{Intent: keyword.New()}, nil

	case "httpmodel":
		hm := pc.HttpModel
		p, err := httpmodel.NewProvider(hm.BaseUrl, hm.CacheSize, config.GoDuration(hm.CacheTtl))
		if err != nil {
			return provider.Providers{}, err
		}
		return provider.Providers{Image: p, Intent: p, Speech: p, Transcriber: p}, nil

	case "gemini":
		g := pc.Gemini
		p, err := gemini.NewProvider(ctx, gemini.Config{
			APIKey:      os.Getenv(g.ApiKeyEnv),
			Model:       g.Model,
			SpeechModel: g.SpeechModel,
			Voice:       g.Voice,
		})
		if err != nil {
			return provider.Providers{}, fmt.Errorf("%w: %v", advisory.ErrConfigLoad, err)
		}
		return provider.Providers{Image: p, Intent: p, Speech: p, Transcriber: p}, nil
	}
	return provider.Providers{}, fmt.Errorf("%w: unknown provider backend %q", advisory.ErrConfigLoad, pc.Backend)
}
