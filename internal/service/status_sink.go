package service

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"memory-filter/internal/domain"
)

// StatusSink recibe los eventos de estado del filtro. El reporte es
// best-effort: un error nunca afecta al payload.
type StatusSink interface {
	Emit(ctx context.Context, event domain.StatusEvent) error
}

// NopStatusSink descarta los eventos.
type NopStatusSink struct{}

func (NopStatusSink) Emit(context.Context, domain.StatusEvent) error { return nil }

// LogStatusSink escribe los eventos en el log.
type LogStatusSink struct {
	logger *zap.Logger
}

func NewLogStatusSink(logger *zap.Logger) *LogStatusSink {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogStatusSink{logger: logger}
}

func (s *LogStatusSink) Emit(_ context.Context, event domain.StatusEvent) error {
	s.logger.Info("filter status",
		zap.String("description", event.Description),
		zap.Bool("done", event.Done),
		zap.Bool("hidden", event.Hidden),
	)
	return nil
}

// MultiStatusSink reenvía cada evento a todos los sinks.
type MultiStatusSink []StatusSink

func (m MultiStatusSink) Emit(ctx context.Context, event domain.StatusEvent) error {
	var errs []error
	for _, s := range m {
		if s == nil {
			continue
		}
		if err := s.Emit(ctx, event); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
