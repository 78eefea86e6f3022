// Package disease turns an image classification result into treatment
// guidance, gating on confidence and escalating contagious detections.
package disease

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"go.uber.org/zap"

	"github.com/asimihsan/advisory_engine/internal/knowledge"
	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

const (
	DefaultFloor           = 0.35
	DefaultEscalationFloor = 0.7

	healthyLabel = "healthy"
)

// Config holds the mapper thresholds.
type Config struct {
	// Floor is the minimum top-label confidence for a treatment.
	Floor float64
	// EscalationFloor is the minimum confidence for a community alert on a
	// contagious disease.
	EscalationFloor float64
}

// DefaultConfig returns the standard thresholds.
func DefaultConfig() Config {
	return Config{Floor: DefaultFloor, EscalationFloor: DefaultEscalationFloor}
}

// Advice is the mapper output for one classification.
type Advice struct {
	Actions []advisory.Action
	// Detection is set when the top label cleared the floor.
	Detection     *advisory.Detection
	LowConfidence bool
	NoGuidance    bool
}

// Mapper is stateless and safe for concurrent use.
type Mapper struct {
	knowledge advisory.Knowledge
	cfg       Config
	logger    *zap.Logger
}

// NewMapper creates a mapper backed by the knowledge collaborator k.
func NewMapper(k advisory.Knowledge, cfg Config, logger *zap.Logger) *Mapper {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Floor <= 0 {
		cfg.Floor = DefaultFloor
	}
	if cfg.EscalationFloor <= 0 {
		cfg.EscalationFloor = DefaultEscalationFloor
	}
	return &Mapper{knowledge: k, cfg: cfg, logger: logger.Named("disease")}
}

// Map produces advice for an image-label observation. The crop hint of the
// observation wins over the plot's crop; with neither, only crop-agnostic
// treatments match. Knowledge misses become an informational action; the
// only errors returned are for a wrong observation kind and cancellation.
func (m *Mapper) Map(ctx context.Context, obs advisory.Observation, crop advisory.CropContext) (Advice, error) {
	if obs.Kind() != advisory.KindImageLabel {
		return Advice{}, fmt.Errorf("%w: disease mapper needs an image-label observation, got %s", advisory.ErrInvalidObservation, obs.Kind())
	}
	if err := ctx.Err(); err != nil {
		return Advice{}, err
	}

	top, ok := topLabel(obs.Labels())
	cropID := knowledge.NormalizeID(obs.CropHint())
	if cropID == "" {
		cropID = knowledge.NormalizeID(crop.Crop)
	}

	base := advisory.Action{
		Confidence:  top.Confidence,
		Provenance:  advisory.ProvenanceDiseaseTreatment,
		TriggeredAt: obs.At(),
		Params:      map[string]string{"crop": displayCrop(cropID)},
	}

	if !ok || top.Confidence < m.cfg.Floor {
		a := base
		a.Category = advisory.CategoryClarification
		a.Severity = advisory.SeverityInfo
		a.MessageKey = advisory.MsgDiseaseImageUnclear
		m.logger.Debug("image below confidence floor",
			zap.String("label", top.Label),
			zap.Float64("confidence", top.Confidence),
			zap.Float64("floor", m.cfg.Floor))
		return Advice{Actions: []advisory.Action{a}, LowConfidence: true}, nil
	}

	diseaseID := knowledge.NormalizeID(top.Label)
	advice := Advice{
		Detection: &advisory.Detection{Label: diseaseID, Confidence: top.Confidence, Crop: cropID},
	}
	base.Params["disease"] = displayName(diseaseID)

	if diseaseID == healthyLabel {
		a := base
		a.Category = advisory.CategoryGuidance
		a.Severity = advisory.SeverityInfo
		a.MessageKey = advisory.MsgDiseaseHealthy
		advice.Actions = []advisory.Action{a}
		return advice, nil
	}

	treatment, err := m.lookup(ctx, diseaseID, cropID)
	if errors.Is(err, advisory.ErrNotFound) {
		a := base
		a.Category = advisory.CategoryGuidance
		a.Severity = advisory.SeverityInfo
		a.MessageKey = advisory.MsgDiseaseNoGuidance
		advice.Actions = []advisory.Action{a}
		advice.NoGuidance = true
		return advice, nil
	}
	if err != nil {
		return Advice{}, err
	}

	severity := advisory.SeverityAdvisory
	if s, ok := advisory.ParseSeverity(treatment.Severity); ok {
		severity = s
	}
	a := base.Clone()
	a.Category = advisory.CategoryPestControl
	a.Severity = severity
	a.MessageKey = treatment.MessageKey
	advice.Actions = append(advice.Actions, a)

	if treatment.Contagious && top.Confidence >= m.cfg.EscalationFloor {
		alert := base.Clone()
		alert.Category = advisory.CategoryAlert
		alert.Severity = advisory.SeverityUrgent
		alert.MessageKey = advisory.MsgDiseaseCommunityAlert
		alert.Provenance = advisory.ProvenanceDiseaseAlert
		alert.Region = crop.AlertRegion()
		alert.Params["region"] = alert.Region
		advice.Actions = append(advice.Actions, alert)
		m.logger.Info("contagious detection flagged for community alert",
			zap.String("disease", diseaseID),
			zap.String("crop", cropID),
			zap.String("region", alert.Region),
			zap.Float64("confidence", top.Confidence))
	}

	return advice, nil
}

// lookup tries the crop-specific entry, then the crop-agnostic one.
func (m *Mapper) lookup(ctx context.Context, diseaseID, cropID string) (advisory.Treatment, error) {
	if cropID != "" {
		t, err := m.knowledge.LookupTreatment(ctx, diseaseID, cropID)
		if err == nil || !errors.Is(err, advisory.ErrNotFound) {
			return t, err
		}
	}
	return m.knowledge.LookupTreatment(ctx, diseaseID, "")
}

// topLabel returns the highest-confidence label; the first wins ties.
func topLabel(labels []advisory.Label) (advisory.Label, bool) {
	if len(labels) == 0 {
		return advisory.Label{}, false
	}
	top := labels[0]
	for _, l := range labels[1:] {
		if l.Confidence > top.Confidence {
			top = l
		}
	}
	return top, true
}

func displayName(id string) string {
	return strings.ReplaceAll(id, "_", " ")
}

func displayCrop(id string) string {
	if id == "" {
		return "plant"
	}
	return displayName(id)
}
