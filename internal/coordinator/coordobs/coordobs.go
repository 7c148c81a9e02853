package coordobs

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"agent-trading-bot/internal/interfaces"
	"agent-trading-bot/internal/logger"
	"agent-trading-bot/internal/trace"
	"agent-trading-bot/internal/types"
)

// observableCoordinator wraps a Coordinator with logging and tracing.
type observableCoordinator struct {
	coordinator interfaces.Coordinator
}

var _ interfaces.Coordinator = (*observableCoordinator)(nil)

// Wrap wraps a coordinator with observability middleware.
func Wrap(coordinator interfaces.Coordinator) interfaces.Coordinator {
	return &observableCoordinator{
		coordinator: coordinator,
	}
}

func (oc *observableCoordinator) Start(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "coordinator.Start")
	defer span.End()

	if err := oc.coordinator.Start(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Failed to start coordinator", err)
		return err
	}
	return nil
}

func (oc *observableCoordinator) Tick(ctx context.Context) (*types.TickReport, error) {
	ctx, span := trace.StartSpan(ctx, "coordinator.Tick")
	defer span.End()

	report, err := oc.coordinator.Tick(ctx)
	if err != nil {
		logger.ErrorWithErr(ctx, "Tick failed", err)
		return report, err
	}

	span.SetAttributes(
		attribute.Int64("tick.seq", int64(report.Seq)),
		attribute.Int("tick.messages", report.Messages),
		attribute.Int("tick.applied", report.Applied),
		attribute.Int("tick.errors", report.Errors),
	)
	if report.Errors > 0 {
		span.SetStatus(codes.Error, "tick had agent or application errors")
	}
	return report, nil
}

func (oc *observableCoordinator) Dispatch(ctx context.Context, cmd types.SystemCommand) error {
	ctx, span := trace.StartSpan(ctx, "coordinator.Dispatch")
	defer span.End()

	span.SetAttributes(attribute.String("command", string(cmd.Command)))
	if err := oc.coordinator.Dispatch(ctx, cmd); err != nil {
		logger.ErrorWithErr(ctx, "Command dispatch failed", err,
			"command", string(cmd.Command), "source", cmd.SourceAgent)
		return err
	}
	return nil
}

func (oc *observableCoordinator) State() types.RunState {
	return oc.coordinator.State()
}

func (oc *observableCoordinator) Shutdown(ctx context.Context) error {
	ctx, span := trace.StartSpan(ctx, "coordinator.Shutdown")
	defer span.End()

	if err := oc.coordinator.Shutdown(ctx); err != nil {
		logger.ErrorWithErr(ctx, "Shutdown failed", err)
		return err
	}
	logger.Info(ctx, "Coordinator shutdown complete")
	return nil
}
