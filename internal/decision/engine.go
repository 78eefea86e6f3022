// Package decision wires the advisory components into one request pipeline:
// provider calls, routing, weather rules, disease mapping, then fusion.
package decision

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/asimihsan/advisory_engine/internal/disease"
	"github.com/asimihsan/advisory_engine/internal/fusion"
	"github.com/asimihsan/advisory_engine/internal/metrics"
	"github.com/asimihsan/advisory_engine/internal/provider"
	"github.com/asimihsan/advisory_engine/internal/router"
	"github.com/asimihsan/advisory_engine/internal/weather"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

// Deps are the collaborators of an Engine. Audit and Logger are optional.
type Deps struct {
	Adapter    *provider.Adapter
	Rules      advisory.RuleTable
	Knowledge  advisory.Knowledge
	Translator advisory.Translator
	Audit      advisory.AuditLogger
	Logger     *zap.Logger
}

// Options tunes an Engine. Zero fields take their defaults.
type Options struct {
	Disease disease.Config
	// Cap bounds the number of actions per result.
	Cap int
	// DefaultLanguage is used when neither the request nor the session
	// names one.
	DefaultLanguage string
}

// Engine is safe for concurrent use. It holds only read-only tables; all
// per-request state lives on the stack of Evaluate.
type Engine struct {
	adapter    *provider.Adapter
	weather    *weather.Engine
	disease    *disease.Mapper
	router     *router.Router
	fuser      *fusion.Fuser
	translator advisory.Translator
	audit      advisory.AuditLogger
	logger     *zap.Logger

	defaultLanguage string
	now             func() time.Time
}

// New creates an Engine.
func New(deps Deps, opts Options) (*Engine, error) {
	switch {
	case deps.Adapter == nil:
		return nil, errors.New("decision: capability adapter is required")
	case deps.Rules == nil:
		return nil, errors.New("decision: rule table is required")
	case deps.Knowledge == nil:
		return nil, errors.New("decision: knowledge base is required")
	case deps.Translator == nil:
		return nil, errors.New("decision: translator is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.Disease == (disease.Config{}) {
		opts.Disease = disease.DefaultConfig()
	}
	if opts.DefaultLanguage == "" {
		opts.DefaultLanguage = advisory.LanguageEnglish
	}

	w := weather.NewEngine(deps.Rules, logger)
	d := disease.NewMapper(deps.Knowledge, opts.Disease, logger)
	return &Engine{
		adapter:         deps.Adapter,
		weather:         w,
		disease:         d,
		router:          router.New(w, d, deps.Knowledge, logger),
		fuser:           fusion.New(deps.Translator, opts.Cap, logger),
		translator:      deps.Translator,
		audit:           deps.Audit,
		logger:          logger.Named("decision"),
		defaultLanguage: advisory.NormalizeLanguage(opts.DefaultLanguage),
		now:             time.Now,
	}, nil
}

// RuleTableID identifies the rule table behind weather actions.
func (e *Engine) RuleTableID() string {
	return e.weather.TableID()
}

// gathered is what the concurrent provider phase produced.
type gathered struct {
	images       []advisory.Observation
	imageFailed  bool
	utterance    *advisory.Observation
	conversation bool
	intent       advisory.IntentClassification
	intentErr    error
}

// Evaluate turns one request into a ranked, localized AdvisoryResult. Every
// error it returns is an *advisory.EngineError.
func (e *Engine) Evaluate(ctx context.Context, req advisory.Request) (advisory.AdvisoryResult, error) {
	start := time.Now()
	requestID := uuid.NewString()

	session := advisory.SessionDelta{}
	if req.Session != nil {
		session = *req.Session
	}
	fallbackLang := e.pickLanguage("", req.Context, session)

	if err := ctx.Err(); err != nil {
		return advisory.AdvisoryResult{}, e.fail(ctx, req.Context, requestID, fallbackLang, advisory.CodeCancelled, err)
	}
	if len(req.Observations) == 0 && len(req.Media) == 0 {
		return advisory.AdvisoryResult{}, e.fail(ctx, req.Context, requestID, fallbackLang, advisory.CodeNoInput, advisory.ErrNoInput)
	}
	if err := validateMedia(req.Media); err != nil {
		return advisory.AdvisoryResult{}, e.fail(ctx, req.Context, requestID, fallbackLang, advisory.CodeInvalidInput, err)
	}

	g, err := e.gather(ctx, req, session)
	if err != nil {
		return advisory.AdvisoryResult{}, e.fail(ctx, req.Context, requestID, fallbackLang, classify(err), err)
	}

	observations := make([]advisory.Observation, 0, len(req.Observations)+len(g.images)+1)
	observations = append(observations, req.Observations...)
	observations = append(observations, g.images...)
	if g.utterance != nil && !containsUtterance(req.Observations, *g.utterance) {
		observations = append(observations, *g.utterance)
	}

	var (
		actions []advisory.Action
		notices []advisory.NoticeCode
		delta   = session
		target  = router.TargetNone
		lang    = fallbackLang
	)
	if g.imageFailed {
		notices = append(notices, advisory.NoticeProviderUnavailable)
	}

	if g.conversation {
		var (
			hint       string
			sourceConf *float64
		)
		if g.utterance != nil {
			hint = g.utterance.Language()
			c := g.utterance.SourceConfidence()
			sourceConf = &c
		}
		out, err := e.router.Route(ctx, router.Input{
			Classification:   g.intent,
			ClassifyErr:      g.intentErr,
			Observations:     observations,
			Crop:             req.Context,
			Session:          session,
			Language:         e.pickLanguage(hint, req.Context, session),
			SourceConfidence: sourceConf,
		})
		if err != nil {
			return advisory.AdvisoryResult{}, e.fail(ctx, req.Context, requestID, fallbackLang, classify(err), err)
		}
		actions = append(actions, out.Actions...)
		notices = append(notices, out.Notices...)
		delta = out.Delta
		target = out.Target
		if out.Language != "" {
			lang = out.Language
		}
	}

	if target != router.TargetWeather && hasKind(observations, advisory.KindWeather) {
		advice, err := e.weather.Advise(ctx, observations, req.Context)
		if err != nil {
			return advisory.AdvisoryResult{}, e.fail(ctx, req.Context, requestID, lang, classify(err), err)
		}
		actions = append(actions, advice.Actions...)
		if advice.DataInsufficient {
			notices = append(notices, advisory.NoticeDataInsufficient)
		}
	}

	if target != router.TargetDisease {
		if obs, ok := latestImage(observations); ok {
			advice, err := e.disease.Map(ctx, obs, req.Context)
			if err != nil {
				return advisory.AdvisoryResult{}, e.fail(ctx, req.Context, requestID, lang, classify(err), err)
			}
			actions = append(actions, advice.Actions...)
			if advice.LowConfidence {
				notices = append(notices, advisory.NoticeLowConfidence)
			}
			if advice.NoGuidance {
				notices = append(notices, advisory.NoticeNoGuidance)
			}
			if advice.Detection != nil {
				delta = delta.Merge(advisory.SessionDelta{LastDetection: advice.Detection, LastTopic: advice.Detection.Label})
			}
		}
	}

	fused, err := e.fuser.Fuse(ctx, actions, lang)
	if err != nil {
		return advisory.AdvisoryResult{}, e.fail(ctx, req.Context, requestID, lang, classify(err), err)
	}
	if delta.LastLanguage == "" {
		delta.LastLanguage = lang
	}

	result := advisory.AdvisoryResult{
		RequestID:    requestID,
		Language:     lang,
		Actions:      fused,
		Notices:      e.localizeNotices(ctx, notices, lang),
		SessionDelta: delta,
		GeneratedAt:  e.now().UTC(),
	}
	if err := ctx.Err(); err != nil {
		return advisory.AdvisoryResult{}, e.fail(ctx, req.Context, requestID, lang, advisory.CodeCancelled, err)
	}

	e.logger.Debug("Evaluated request",
		zap.String("request_id", requestID),
		zap.String("language", lang),
		zap.Int("actions", len(fused)),
		zap.Int("notices", len(result.Notices)))
	if e.audit != nil {
		if err := e.audit.LogAdvisory(ctx, req.Context, result, e.weather.TableID(), time.Since(start)); err != nil {
			e.logger.Warn("Failed to write audit record", zap.String("request_id", requestID), zap.Error(err))
		}
	}
	return result, nil
}

// gather runs image classification and the transcription to intent chain
// concurrently. Provider failures are recorded, not returned; the only
// error is cancellation.
func (e *Engine) gather(ctx context.Context, req advisory.Request, session advisory.SessionDelta) (gathered, error) {
	var (
		res gathered
		mu  sync.Mutex
	)
	grp, gctx := errgroup.WithContext(ctx)

	for _, m := range req.Media {
		if m.Kind != advisory.MediaImage {
			continue
		}
		grp.Go(func() error {
			hint := m.CropHint
			if hint == "" {
				hint = req.Context.Crop
			}
			cls, err := e.adapter.ClassifyImage(gctx, m.Data, hint)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
				e.logger.Warn("Image classification unavailable", zap.Error(err))
				mu.Lock()
				res.imageFailed = true
				mu.Unlock()
				return nil
			}
			obs, err := advisory.NewImageLabelObservation(e.mediaTime(m), cls.Labels, hint)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				e.logger.Warn("Discarding invalid image labels", zap.Error(err))
				res.imageFailed = true
				return nil
			}
			res.images = append(res.images, obs)
			return nil
		})
	}

	audio, hasAudio := latestMedia(req.Media, advisory.MediaAudio)
	utterance, hasText := latestUtterance(req.Observations)
	if hasAudio || hasText {
		res.conversation = true
		grp.Go(func() error {
			if hasAudio && (!hasText || !e.mediaTime(audio).Before(utterance.At())) {
				tr, err := e.adapter.Transcribe(gctx, audio.Data)
				if err == nil {
					utterance, err = advisory.NewUtteranceObservation(e.mediaTime(audio), tr.Text, tr.Language, tr.Confidence)
				}
				if err != nil {
					if ctxErr := ctx.Err(); ctxErr != nil {
						return ctxErr
					}
					e.logger.Warn("Transcription failed", zap.Error(err))
					mu.Lock()
					res.intentErr = err
					mu.Unlock()
					return nil
				}
			}

			hint := e.pickLanguage(utterance.Language(), req.Context, session)
			cls, err := e.adapter.ClassifyIntent(gctx, utterance.Text(), hint)
			if err != nil {
				if ctxErr := ctx.Err(); ctxErr != nil {
					return ctxErr
				}
			}

			mu.Lock()
			defer mu.Unlock()
			res.utterance = &utterance
			res.intent = cls
			res.intentErr = err
			return nil
		})
	}

	if err := grp.Wait(); err != nil {
		return gathered{}, err
	}
	if err := ctx.Err(); err != nil {
		return gathered{}, err
	}
	return res, nil
}

// Speak synthesizes the top action of result in the result's language.
func (e *Engine) Speak(ctx context.Context, result advisory.AdvisoryResult) ([]byte, error) {
	top, ok := result.Top()
	if !ok || top.Text == "" {
		return nil, e.fail(ctx, advisory.CropContext{}, result.RequestID, result.Language, advisory.CodeNoInput,
			fmt.Errorf("%w: result has no localized action to speak", advisory.ErrNoInput))
	}
	audio, err := e.adapter.SynthesizeSpeech(ctx, top.Text, result.Language)
	if err != nil {
		return nil, e.fail(ctx, advisory.CropContext{}, result.RequestID, result.Language, classify(err), err)
	}
	return audio, nil
}

// fail converts err into an EngineError with a localized message, records
// it and returns it.
func (e *Engine) fail(ctx context.Context, crop advisory.CropContext, requestID, lang string, code advisory.ErrorCode, err error) error {
	if ctx.Err() != nil {
		code = advisory.CodeCancelled
	}
	// Messages and audit records are still written for cancelled requests.
	bg := context.WithoutCancel(ctx)

	ee := &advisory.EngineError{Code: code, MessageKey: advisory.ErrorMessageKey(code), Err: err}
	if code == advisory.CodeLocalizationMissing {
		lang = e.defaultLanguage
	}
	if msg, rerr := e.translator.Resolve(bg, ee.MessageKey, lang); rerr == nil {
		ee.Message = msg
	} else if msg, rerr := e.translator.Resolve(bg, ee.MessageKey, e.defaultLanguage); rerr == nil {
		ee.Message = msg
	}

	metrics.EvaluateErrors.WithLabelValues(string(code)).Inc()
	e.logger.Info("Request failed",
		zap.String("request_id", requestID),
		zap.String("code", string(code)),
		zap.Error(err))
	if e.audit != nil {
		if aerr := e.audit.LogEngineError(bg, ee, crop, requestID); aerr != nil {
			e.logger.Warn("Failed to write audit record", zap.String("request_id", requestID), zap.Error(aerr))
		}
	}
	return ee
}

func classify(err error) advisory.ErrorCode {
	switch {
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return advisory.CodeCancelled
	case errors.Is(err, advisory.ErrLocalizationMissing):
		return advisory.CodeLocalizationMissing
	case errors.Is(err, advisory.ErrProviderUnavailable):
		return advisory.CodeProviderUnavailable
	case errors.Is(err, advisory.ErrInvalidObservation):
		return advisory.CodeInvalidInput
	}
	return advisory.CodeInternal
}

// pickLanguage prefers the detected language, then the plot, then the
// session, then the engine default.
func (e *Engine) pickLanguage(detected string, crop advisory.CropContext, session advisory.SessionDelta) string {
	for _, l := range []string{detected, crop.Language, session.LastLanguage} {
		if n := advisory.NormalizeLanguage(l); n != "" {
			return n
		}
	}
	return e.defaultLanguage
}

func (e *Engine) localizeNotices(ctx context.Context, codes []advisory.NoticeCode, lang string) []advisory.Notice {
	var out []advisory.Notice
	seen := make(map[advisory.NoticeCode]bool, len(codes))
	for _, c := range codes {
		if seen[c] {
			continue
		}
		seen[c] = true
		n := advisory.Notice{Code: c, MessageKey: advisory.NoticeMessageKey(c)}
		if text, err := e.translator.Resolve(ctx, n.MessageKey, lang); err == nil {
			n.Text = text
		}
		out = append(out, n)
	}
	return out
}

func (e *Engine) mediaTime(m advisory.Media) time.Time {
	if m.At.IsZero() {
		return e.now().UTC()
	}
	return m.At
}

func validateMedia(media []advisory.Media) error {
	for i, m := range media {
		if m.Kind != advisory.MediaImage && m.Kind != advisory.MediaAudio {
			return fmt.Errorf("%w: media %d has unknown kind %q", advisory.ErrInvalidObservation, i, m.Kind)
		}
		if len(m.Data) == 0 {
			return fmt.Errorf("%w: media %d is empty", advisory.ErrInvalidObservation, i)
		}
	}
	return nil
}

func hasKind(observations []advisory.Observation, kind advisory.ObservationKind) bool {
	for _, o := range observations {
		if o.Kind() == kind {
			return true
		}
	}
	return false
}

// latestImage returns the most recent image-label observation; later
// entries win ties.
func latestImage(observations []advisory.Observation) (advisory.Observation, bool) {
	return latestOf(observations, advisory.KindImageLabel)
}

func latestUtterance(observations []advisory.Observation) (advisory.Observation, bool) {
	return latestOf(observations, advisory.KindUtterance)
}

func latestOf(observations []advisory.Observation, kind advisory.ObservationKind) (advisory.Observation, bool) {
	var (
		latest advisory.Observation
		found  bool
	)
	for _, o := range observations {
		if o.Kind() != kind {
			continue
		}
		if !found || !o.At().Before(latest.At()) {
			latest, found = o, true
		}
	}
	return latest, found
}

func latestMedia(media []advisory.Media, kind advisory.MediaKind) (advisory.Media, bool) {
	var (
		latest advisory.Media
		found  bool
	)
	for _, m := range media {
		if m.Kind != kind {
			continue
		}
		if !found || !m.At.Before(latest.At) {
			latest, found = m, true
		}
	}
	return latest, found
}

func containsUtterance(observations []advisory.Observation, u advisory.Observation) bool {
	for _, o := range observations {
		if o.Kind() == advisory.KindUtterance && o.At().Equal(u.At()) && o.Text() == u.Text() {
			return true
		}
	}
	return false
}
