// Package stdout writes audit records as structured JSON log lines.
package stdout

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/asimihsan/advisory_engine/pkg/advisory"
)

// Logger implements advisory.AuditLogger on a zap logger.
type Logger struct {
	logger *zap.Logger
}

var _ advisory.AuditLogger = (*Logger)(nil)

// New creates an audit logger writing JSON lines to stdout.
func New() *Logger {
	enc := zapcore.NewJSONEncoder(zap.NewProductionEncoderConfig())
	core := zapcore.NewCore(enc, zapcore.Lock(os.Stdout), zapcore.InfoLevel)
	return NewWithLogger(zap.New(core))
}

// NewWithLogger creates an audit logger on top of logger.
func NewWithLogger(logger *zap.Logger) *Logger {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Logger{logger: logger.Named("audit")}
}

// LogAdvisory implements advisory.AuditLogger.
func (l *Logger) LogAdvisory(ctx context.Context, crop advisory.CropContext, result advisory.AdvisoryResult, ruleTableID string, evalDuration time.Duration) error {
	keys := make([]string, len(result.Actions))
	for i, a := range result.Actions {
		keys[i] = fmt.Sprintf("%s:%s:%s", a.Severity, a.Category, a.MessageKey)
	}
	notices := make([]string, len(result.Notices))
	for i, n := range result.Notices {
		notices[i] = string(n.Code)
	}

	l.logger.Info("Advisory issued",
		zap.String("request_id", result.RequestID),
		zap.String("rule_table_id", ruleTableID),
		zap.String("crop", crop.Crop),
		zap.String("region", crop.AlertRegion()),
		zap.String("plot_id", crop.PlotID),
		zap.String("language", result.Language),
		zap.Strings("actions", keys),
		zap.Strings("notices", notices),
		zap.Duration("eval_duration", evalDuration))
	return nil
}

// LogEngineError implements advisory.AuditLogger.
func (l *Logger) LogEngineError(ctx context.Context, err error, crop advisory.CropContext, requestID string) error {
	fields := []zap.Field{
		zap.String("request_id", requestID),
		zap.String("crop", crop.Crop),
		zap.String("plot_id", crop.PlotID),
		zap.Error(err),
	}
	if ee, ok := advisory.AsEngineError(err); ok {
		fields = append(fields, zap.String("code", string(ee.Code)))
	}
	l.logger.Warn("Advisory failed", fields...)
	return nil
}

// Sync flushes buffered records.
func (l *Logger) Sync() error {
	return l.logger.Sync()
}
