// Package router drives the per-request conversational state machine:
// Received -> Classified -> {Answered | Delegated | NeedsClarification}.
package router

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/asimihsan/advisory_engine/internal/disease"
	"github.com/asimihsan/advisory_engine/internal/knowledge"
	"github.com/asimihsan/advisory_engine/internal/metrics"
	"github.com/asimihsan/advisory_engine/internal/weather"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

// State is a router state.
type State string

const (
	StateReceived           State = "received"
	StateClassified         State = "classified"
	StateAnswered           State = "answered"
	StateDelegated          State = "delegated"
	StateNeedsClarification State = "needs-clarification"
)

// Target names the component a Delegated request was handed to.
type Target string

const (
	TargetNone    Target = ""
	TargetWeather Target = "weather"
	TargetDisease Target = "disease"
)

// WeatherAdvisor is the weather rule engine as seen by the router.
type WeatherAdvisor interface {
	Advise(ctx context.Context, window []advisory.Observation, crop advisory.CropContext) (weather.Advice, error)
}

// DiseaseAdvisor is the disease mapper as seen by the router.
type DiseaseAdvisor interface {
	Map(ctx context.Context, obs advisory.Observation, crop advisory.CropContext) (disease.Advice, error)
}

// Input is everything the router sees for one request.
type Input struct {
	// Classification is the adapter result; ignored when ClassifyErr is set.
	Classification advisory.IntentClassification
	ClassifyErr    error

	// Observations are this request's observations; weather and image-label
	// observations feed delegated calls.
	Observations []advisory.Observation
	Crop         advisory.CropContext
	Session      advisory.SessionDelta

	// Language is used for prompts when the classifier did not detect one.
	Language string

	// SourceConfidence is the confidence of the classified utterance, from
	// the transcript or the text observation. Nil means fully trusted.
	SourceConfidence *float64
}

// confidence caps c at the utterance's source confidence.
func (in Input) confidence(c float64) float64 {
	if in.SourceConfidence == nil {
		return c
	}
	return min(c, *in.SourceConfidence)
}

// Outcome is the terminal router result.
type Outcome struct {
	State    State
	Path     []State
	Target   Target
	Intent   advisory.Intent
	Language string
	Actions  []advisory.Action
	Notices  []advisory.NoticeCode
	Delta    advisory.SessionDelta
}

// Router is stateless; session continuity lives in the delta it returns.
type Router struct {
	weather   WeatherAdvisor
	disease   DiseaseAdvisor
	knowledge advisory.Knowledge
	logger    *zap.Logger
}

// New creates a router.
func New(w WeatherAdvisor, d DiseaseAdvisor, k advisory.Knowledge, logger *zap.Logger) *Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Router{weather: w, disease: d, knowledge: k, logger: logger.Named("router")}
}

// Route runs the state machine. Provider failures and unknown intents end
// in NeedsClarification; the only error returned is cancellation.
func (r *Router) Route(ctx context.Context, in Input) (Outcome, error) {
	out := Outcome{
		State:    StateReceived,
		Path:     []State{StateReceived},
		Language: advisory.NormalizeLanguage(in.Language),
	}

	if in.ClassifyErr != nil {
		if err := ctx.Err(); err != nil {
			return Outcome{}, err
		}
		r.logger.Warn("Intent classification failed", zap.Error(in.ClassifyErr))
		out.Notices = append(out.Notices, advisory.NoticeProviderUnavailable)
		return r.finish(out, in.Session, clarify(advisory.MsgRouterRetry, 0)), nil
	}

	intent := in.Classification.Intent
	out.Intent = intent
	if lang := advisory.NormalizeLanguage(intent.Language); lang != "" {
		out.Language = lang
	}
	out.State = StateClassified
	out.Path = append(out.Path, StateClassified)
	out.Delta.LastLanguage = out.Language

	if in.Classification.Outcome == advisory.OutcomeLowConfidence {
		out.Notices = append(out.Notices, advisory.NoticeLowConfidence)
		return r.finish(out, in.Session, clarify(advisory.MsgRouterRestate, in.confidence(intent.Confidence))), nil
	}

	var (
		err  error
		next = out
	)
	switch intent.Tag {
	case advisory.IntentWeatherQuery:
		next, err = r.delegateWeather(ctx, out, in)
	case advisory.IntentDiseaseQuery:
		next, err = r.delegateDisease(ctx, out, in)
	case advisory.IntentCropGuide, advisory.IntentSchemeQuery, advisory.IntentFertilizerQuery,
		advisory.IntentSoilQuery, advisory.IntentGreeting:
		next, err = r.answer(ctx, out, in)
	default:
		return r.finish(out, in.Session, clarify(advisory.MsgRouterRestate, in.confidence(intent.Confidence))), nil
	}
	if err != nil {
		return Outcome{}, err
	}
	return r.finish(next, in.Session), nil
}

func (r *Router) delegateWeather(ctx context.Context, out Outcome, in Input) (Outcome, error) {
	advice, err := r.weather.Advise(ctx, in.Observations, in.Crop)
	if err != nil {
		return Outcome{}, err
	}
	out.State = StateDelegated
	out.Target = TargetWeather
	out.Delta.LastIntent = advisory.IntentWeatherQuery
	out.Delta.LastTopic = string(TargetWeather)
	out.Actions = advice.Actions
	if advice.DataInsufficient {
		out.Notices = append(out.Notices, advisory.NoticeDataInsufficient)
		out.Actions = []advisory.Action{{
			Category:   advisory.CategoryGuidance,
			Severity:   advisory.SeverityInfo,
			MessageKey: advisory.MsgWeatherDataInsufficient,
			Confidence: in.confidence(out.Intent.Confidence),
			Provenance: advisory.ProvenanceWeatherInfo,
		}}
	}
	return out, nil
}

func (r *Router) delegateDisease(ctx context.Context, out Outcome, in Input) (Outcome, error) {
	out.Delta.LastIntent = advisory.IntentDiseaseQuery

	obs, ok := latestImage(in.Observations)
	if !ok && in.Session.LastDetection != nil {
		det := in.Session.LastDetection
		var err error
		obs, err = advisory.NewImageLabelObservation(latestAt(in.Observations),
			[]advisory.Label{{Label: det.Label, Confidence: det.Confidence}}, det.Crop)
		if err != nil {
			r.logger.Warn("Ignoring corrupt session detection", zap.Error(err))
		} else {
			ok = true
		}
	}
	if !ok {
		out.State = StateNeedsClarification
		out.Actions = []advisory.Action{clarify(advisory.MsgDiseaseSendPhoto, in.confidence(out.Intent.Confidence))}
		return out, nil
	}

	advice, err := r.disease.Map(ctx, obs, in.Crop)
	if err != nil {
		return Outcome{}, err
	}
	out.State = StateDelegated
	out.Target = TargetDisease
	out.Actions = advice.Actions
	if advice.LowConfidence {
		out.Notices = append(out.Notices, advisory.NoticeLowConfidence)
	}
	if advice.NoGuidance {
		out.Notices = append(out.Notices, advisory.NoticeNoGuidance)
	}
	if advice.Detection != nil {
		out.Delta.LastDetection = advice.Detection
		out.Delta.LastTopic = advice.Detection.Label
	}
	return out, nil
}

func (r *Router) answer(ctx context.Context, out Outcome, in Input) (Outcome, error) {
	intent := out.Intent
	out.State = StateAnswered
	out.Delta.LastIntent = intent.Tag

	crop := knowledge.NormalizeID(intent.Slots["crop"])
	if crop == "" {
		crop = knowledge.NormalizeID(in.Crop.Crop)
	}

	for _, key := range guideKeys(intent, crop) {
		g, err := r.knowledge.LookupGuide(ctx, key)
		if errors.Is(err, advisory.ErrNotFound) {
			continue
		}
		if err != nil {
			return Outcome{}, err
		}
		out.Delta.LastTopic = g.Key
		out.Actions = []advisory.Action{answerAction(g.MessageKey, in.confidence(intent.Confidence))}
		return out, nil
	}

	r.logger.Debug("No guide for intent", zap.String("intent", intent.Tag), zap.String("crop", crop))
	out.Notices = append(out.Notices, advisory.NoticeNoGuidance)
	out.Actions = []advisory.Action{answerAction(advisory.MsgGuideGeneral, in.confidence(intent.Confidence))}
	return out, nil
}

// guideKeys lists knowledge keys from most to least specific.
func guideKeys(intent advisory.Intent, crop string) []string {
	var keys []string
	withCrop := func(suffix string) {
		if crop != "" {
			keys = append(keys, crop+"."+suffix)
		}
		keys = append(keys, suffix)
	}
	switch intent.Tag {
	case advisory.IntentGreeting:
		keys = append(keys, "greeting")
	case advisory.IntentFertilizerQuery:
		withCrop("fertilizer")
	case advisory.IntentSoilQuery:
		withCrop("soil")
	case advisory.IntentSchemeQuery:
		if s := knowledge.NormalizeID(intent.Slots["scheme"]); s != "" {
			keys = append(keys, "scheme."+s)
		}
		keys = append(keys, "scheme")
	case advisory.IntentCropGuide:
		if crop != "" {
			if topic := knowledge.NormalizeID(intent.Slots["topic"]); topic != "" {
				keys = append(keys, crop+"."+topic)
			}
			keys = append(keys, crop)
		}
		keys = append(keys, "general")
	}
	return keys
}

func (r *Router) finish(out Outcome, session advisory.SessionDelta, prompt ...advisory.Action) Outcome {
	if len(prompt) > 0 {
		out.State = StateNeedsClarification
		out.Actions = prompt
	}
	if out.Path[len(out.Path)-1] != out.State {
		out.Path = append(out.Path, out.State)
	}
	out.Delta = session.Merge(out.Delta)

	tag := out.Intent.Tag
	if tag == "" {
		tag = "none"
	}
	metrics.RouterOutcomes.WithLabelValues(string(out.State), tag).Inc()
	r.logger.Debug("Routed request",
		zap.String("state", string(out.State)),
		zap.String("intent", tag),
		zap.String("target", string(out.Target)),
		zap.String("language", out.Language))
	return out
}

func clarify(key string, confidence float64) advisory.Action {
	return advisory.Action{
		Category:   advisory.CategoryClarification,
		Severity:   advisory.SeverityInfo,
		MessageKey: key,
		Confidence: confidence,
		Provenance: advisory.ProvenanceConversational,
	}
}

func answerAction(key string, confidence float64) advisory.Action {
	return advisory.Action{
		Category:   advisory.CategoryGuidance,
		Severity:   advisory.SeverityInfo,
		MessageKey: key,
		Confidence: confidence,
		Provenance: advisory.ProvenanceConversational,
	}
}

// latestImage returns the most recent image-label observation; later
// entries win ties.
func latestImage(observations []advisory.Observation) (advisory.Observation, bool) {
	var (
		latest advisory.Observation
		found  bool
	)
	for _, o := range observations {
		if o.Kind() != advisory.KindImageLabel {
			continue
		}
		if !found || !o.At().Before(latest.At()) {
			latest, found = o, true
		}
	}
	return latest, found
}

func latestAt(observations []advisory.Observation) time.Time {
	var at time.Time
	for _, o := range observations {
		if o.At().After(at) {
			at = o.At()
		}
	}
	return at
}
