// Package weather evaluates the declarative weather rule table against a
// forecast window.
package weather

import (
	"context"
	"runtime"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/asimihsan/advisory_engine/internal/metrics"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

// Advice is the rule engine output for one window.
type Advice struct {
	Actions []advisory.Action
	// DataInsufficient is set when no day of the window was usable.
	DataInsufficient bool
	SkippedDays      int
}

// Engine evaluates a rule table. It holds no per-request state and is safe
// for concurrent use.
type Engine struct {
	table       advisory.RuleTable
	rules       []advisory.Rule
	logger      *zap.Logger
	parallelism int
}

// NewEngine creates a weather rule engine over table.
func NewEngine(table advisory.RuleTable, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{
		table:       table,
		rules:       table.Rules(),
		logger:      logger.Named("weather"),
		parallelism: runtime.GOMAXPROCS(0),
	}
}

// TableID identifies the rule table in use.
func (e *Engine) TableID() string {
	return e.table.ID()
}

type day struct {
	index int
	at    time.Time
	conf  float64
	data  advisory.WeatherDay
}

type firing struct {
	index int
	at    time.Time
	conf  float64
	date  string
}

// Advise evaluates every rule whose crop filter matches crop against the
// weather observations in window. Non-weather observations are ignored.
// Days are ordered by observation time, so the earliest day is day 0 for
// within_days and wins trigger ties whatever the input order.
// The only error returned is context cancellation.
func (e *Engine) Advise(ctx context.Context, window []advisory.Observation, crop advisory.CropContext) (Advice, error) {
	if err := ctx.Err(); err != nil {
		return Advice{}, err
	}

	var days []advisory.Observation
	for _, obs := range window {
		if obs.Kind() == advisory.KindWeather {
			days = append(days, obs)
		}
	}
	sort.SliceStable(days, func(i, j int) bool { return days[i].At().Before(days[j].At()) })

	var (
		usable  []day
		skipped int
		index   int
	)
	for _, obs := range days {
		data, ok := obs.Weather()
		if !ok {
			continue
		}
		if data.Usable() {
			usable = append(usable, day{index: index, at: obs.At(), conf: obs.SourceConfidence(), data: data})
		} else {
			skipped++
			e.logger.Debug("Skipping unusable forecast day", zap.Int("index", index), zap.String("date", data.Date))
		}
		index++
	}

	if len(usable) == 0 {
		return Advice{DataInsufficient: true, SkippedDays: skipped}, nil
	}

	cropInput := crop.Input()
	fired := make([]*firing, len(e.rules))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(e.parallelism)
	for i, rule := range e.rules {
		if !rule.AppliesTo(crop) {
			continue
		}
		i, rule := i, rule
		g.Go(func() error {
			f, err := e.evaluate(gctx, rule, usable, cropInput)
			if err != nil {
				return err
			}
			fired[i] = f
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return Advice{}, err
	}
	if err := ctx.Err(); err != nil {
		return Advice{}, err
	}

	type ranked struct {
		action advisory.Action
		index  int
	}
	var out []ranked
	for i, f := range fired {
		if f == nil {
			continue
		}
		rule := e.rules[i]
		metrics.RuleFirings.WithLabelValues(rule.ID).Inc()

		action := advisory.Action{
			Category:    rule.Consequence.Category,
			Severity:    rule.Consequence.Severity,
			MessageKey:  rule.Consequence.MessageKey,
			Params:      map[string]string{"date": f.date, "crop": crop.Crop},
			Confidence:  f.conf,
			Provenance:  advisory.WeatherProvenance(rule.Consequence.Severity),
			RuleID:      rule.ID,
			TriggeredAt: f.at,
		}
		if action.Category == advisory.CategoryAlert {
			action.Region = crop.AlertRegion()
		}
		out = append(out, ranked{action: action, index: f.index})
	}

	// Registration order is preserved by the stable sort as the last key.
	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i].action, out[j].action
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Category != b.Category {
			return a.Category.Rank() < b.Category.Rank()
		}
		return out[i].index < out[j].index
	})

	actions := make([]advisory.Action, len(out))
	for i, r := range out {
		actions[i] = r.action
	}
	return Advice{Actions: actions, SkippedDays: skipped}, nil
}

func (e *Engine) evaluate(ctx context.Context, rule advisory.Rule, usable []day, cropInput map[string]any) (*firing, error) {
	horizon := usable
	if rule.WithinDays > 0 {
		horizon = nil
		for _, d := range usable {
			if d.index < rule.WithinDays {
				horizon = append(horizon, d)
			}
		}
	}
	if len(horizon) == 0 {
		return nil, nil
	}

	switch rule.Scope {
	case advisory.ScopeWindow:
		window := make([]any, len(horizon))
		conf := 1.0
		for i, d := range horizon {
			window[i] = d.data.Input()
			conf = min(conf, d.conf)
		}
		ok, err := e.holds(ctx, rule, map[string]any{"window": window, "crop": cropInput})
		if err != nil || !ok {
			return nil, err
		}
		first := horizon[0]
		return &firing{index: first.index, at: first.at, conf: conf, date: first.data.Date}, nil

	default:
		for _, d := range horizon {
			ok, err := e.holds(ctx, rule, map[string]any{"day": d.data.Input(), "crop": cropInput})
			if err != nil {
				return nil, err
			}
			if ok {
				return &firing{index: d.index, at: d.at, conf: d.conf, date: d.data.Date}, nil
			}
		}
	}
	return nil, nil
}

// holds evaluates a condition. Evaluation failures other than cancellation
// are logged and count as "does not hold" so one bad rule never aborts the
// window.
func (e *Engine) holds(ctx context.Context, rule advisory.Rule, input map[string]any) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	ok, err := rule.Condition.Holds(ctx, input)
	if err == nil {
		return ok, nil
	}
	if ctx.Err() != nil {
		return false, ctx.Err()
	}
	e.logger.Warn("Rule condition failed", zap.String("rule", rule.ID), zap.Error(err))
	return false, nil
}
