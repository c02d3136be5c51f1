package audit

import (
	"time"

	"go.uber.org/zap"
)

// ZapSink logs every transition and counter as a structured zap event. It is
// the sink used in development and as the always-on half of the production
// MultiSink, independent of whether Prometheus scraping is configured.
type ZapSink struct {
	logger *zap.Logger
}

// NewZapSink wraps logger.
func NewZapSink(logger *zap.Logger) *ZapSink {
	return &ZapSink{logger: logger}
}

func (z *ZapSink) RecordTransition(t Transition) {
	fields := []zap.Field{
		zap.String("requestId", t.RequestID),
		zap.String("network", t.Network),
		zap.String("payer", t.Payer),
		zap.String("hook", t.Hook),
		zap.String("state", t.State),
		zap.Duration("elapsed", t.Elapsed),
	}
	if t.Transaction != "" {
		fields = append(fields, zap.String("transaction", t.Transaction))
	}
	if t.Reason != "" {
		fields = append(fields, zap.String("reason", t.Reason))
		z.logger.Warn("settlement transition", fields...)
		return
	}
	z.logger.Info("settlement transition", fields...)
}

func (z *ZapSink) RecordVerifyDuration(network string, d time.Duration) {
	z.logger.Debug("verify duration", zap.String("network", network), zap.Duration("duration", d))
}

func (z *ZapSink) RecordSettleDuration(network string, d time.Duration) {
	z.logger.Debug("settle duration", zap.String("network", network), zap.Duration("duration", d))
}

func (z *ZapSink) RecordGasUsed(network string, gasUsed uint64) {
	z.logger.Debug("gas used", zap.String("network", network), zap.Uint64("gasUsed", gasUsed))
}

func (z *ZapSink) IncrementError(network, reason string) {
	z.logger.Warn("settlement error", zap.String("network", network), zap.String("reason", reason))
}

var _ Sink = (*ZapSink)(nil)
