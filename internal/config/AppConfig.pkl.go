// Package config holds the Go binding of config/AppConfig.pkl.
package config

import (
	"context"

	"github.com/apple/pkl-go/pkl"
)

// AppConfig mirrors the advisory_engine.AppConfig Pkl module.
type AppConfig struct {
	// Language used when neither the request nor the session names one.
	DefaultLanguage string `pkl:"defaultLanguage"`

	// Rule table file; nil selects the built-in table.
	RulesPath *string `pkl:"rulesPath"`

	// Knowledge and message tables; nil selects the built-in tables.
	KnowledgePath *string `pkl:"knowledgePath"`

	MessagesPath *string `pkl:"messagesPath"`

	// Address of the Prometheus endpoint served by `advisory-engine serve`.
	MetricsAddr string `pkl:"metricsAddr"`

	Providers *Providers `pkl:"providers"`

	Disease *Disease `pkl:"disease"`

	Fusion *Fusion `pkl:"fusion"`
}

// LoadFromPath loads the pkl module at the given path and evaluates it into an AppConfig
func LoadFromPath(ctx context.Context, path string) (ret *AppConfig, err error) {
	evaluator, err := pkl.NewEvaluator(ctx, pkl.PreconfiguredOptions)
	if err != nil {
		return nil, err
	}
	defer func() {
		cerr := evaluator.Close()
		if err == nil {
			err = cerr
		}
	}()
	ret, err = Load(ctx, evaluator, pkl.FileSource(path))
	return ret, err
}

// Load loads the pkl module at the given source and evaluates it with the given evaluator into an AppConfig
func Load(ctx context.Context, evaluator pkl.Evaluator, source *pkl.ModuleSource) (*AppConfig, error) {
	var ret AppConfig
	if err := evaluator.EvaluateModule(ctx, source, &ret); err != nil {
		return nil, err
	}
	return &ret, nil
}
