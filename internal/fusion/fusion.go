// Package fusion merges the actions of one request into a ranked,
// localized list.
package fusion

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/asimihsan/advisory_engine/internal/metrics"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

// DefaultCap is the maximum number of actions in a result.
const DefaultCap = 5

// Fuser is stateless and safe for concurrent use.
type Fuser struct {
	translator advisory.Translator
	cap        int
	logger     *zap.Logger
}

// New creates a Fuser. A non-positive limit selects DefaultCap.
func New(translator advisory.Translator, limit int, logger *zap.Logger) *Fuser {
	if limit <= 0 {
		limit = DefaultCap
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Fuser{translator: translator, cap: limit, logger: logger.Named("fusion")}
}

// Fuse deduplicates, ranks, caps and localizes actions. The input slice is
// not modified. A missing translation for the top action fails with
// ErrLocalizationMissing; lower actions without one are dropped.
func (f *Fuser) Fuse(ctx context.Context, actions []advisory.Action, language string) ([]advisory.Action, error) {
	ranked := Rank(actions)
	if len(ranked) > f.cap {
		f.logger.Debug("Capping actions", zap.Int("total", len(ranked)), zap.Int("cap", f.cap))
		ranked = ranked[:f.cap]
	}

	out := make([]advisory.Action, 0, len(ranked))
	for i, a := range ranked {
		text, err := f.translator.Resolve(ctx, a.MessageKey, language)
		if err != nil {
			if ctxErr := ctx.Err(); ctxErr != nil {
				return nil, ctxErr
			}
			if !errors.Is(err, advisory.ErrNotFound) {
				return nil, err
			}
			if i == 0 {
				return nil, fmt.Errorf("%w: top action %q in %q", advisory.ErrLocalizationMissing, a.MessageKey, language)
			}
			f.logger.Info("Dropping untranslated action",
				zap.String("message_key", a.MessageKey),
				zap.String("language", language))
			continue
		}
		a.Text = Interpolate(text, a.Params)
		out = append(out, a)
	}

	metrics.FusedActions.Observe(float64(len(out)))
	return out, nil
}

// Rank deduplicates by category and message key, keeping the most confident
// action (the first wins ties), then sorts by severity desc, confidence
// desc and provenance priority. The sort is stable, so ranking an already
// ranked list is a no-op.
func Rank(actions []advisory.Action) []advisory.Action {
	index := make(map[string]int, len(actions))
	out := make([]advisory.Action, 0, len(actions))
	for _, a := range actions {
		k := a.DedupKey()
		if i, ok := index[k]; ok {
			if a.Confidence > out[i].Confidence {
				out[i] = a.Clone()
			}
			continue
		}
		index[k] = len(out)
		out = append(out, a.Clone())
	}

	sort.SliceStable(out, func(i, j int) bool {
		a, b := out[i], out[j]
		if a.Severity != b.Severity {
			return a.Severity > b.Severity
		}
		if a.Confidence != b.Confidence {
			return a.Confidence > b.Confidence
		}
		return a.Provenance.Priority() < b.Provenance.Priority()
	})
	return out
}

// Interpolate replaces {name} placeholders with params. Unknown
// placeholders are left as is.
func Interpolate(text string, params map[string]string) string {
	if len(params) == 0 || !strings.Contains(text, "{") {
		return text
	}
	pairs := make([]string, 0, 2*len(params))
	for k, v := range params {
		pairs = append(pairs, "{"+k+"}", v)
	}
	return strings.NewReplacer(pairs...).Replace(text)
}
