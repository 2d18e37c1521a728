package services

import (
	"context"

	"go.uber.org/zap"

	"github.com/gridbase/backend/pkg/utils"
)

// ZapErrorReporter logs unexpected errors with an event id the user can quote.
type ZapErrorReporter struct {
	logger *zap.Logger
}

// NewZapErrorReporter creates a reporter writing to logger.
func NewZapErrorReporter(logger *zap.Logger) *ZapErrorReporter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ZapErrorReporter{logger: logger}
}

// Report logs err and returns its event id.
func (r *ZapErrorReporter) Report(_ context.Context, err error, fields map[string]any) string {
	event := utils.NewEventID()
	zf := make([]zap.Field, 0, len(fields)+2)
	zf = append(zf, zap.String("event_id", event), zap.Error(err))
	for k, v := range fields {
		zf = append(zf, zap.Any(k, v))
	}
	r.logger.Error("unexpected formula error", zf...)
	return event
}
