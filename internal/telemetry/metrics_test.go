package telemetry_test

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Washington-NKE/lovewise-relay/internal/telemetry"
)

func TestMetricsInitialization(t *testing.T) {
	ctx := context.Background()

	// Smoke test: every instrument records without a provider installed
	telemetry.ConnectionsActive.Add(ctx, 1)
	telemetry.ConnectionsActive.Add(ctx, -1)
	telemetry.ConnectionsSuperseded.Add(ctx, 1)
	telemetry.ConnectionsRejected.Add(ctx, 1)
	telemetry.HeartbeatEvictions.Add(ctx, 1)
	telemetry.FramesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("type", "ping")))
	telemetry.FramesDropped.Add(ctx, 1)
	telemetry.MessagesRouted.Add(ctx, 1)
	telemetry.MessagesDelivered.Add(ctx, 1)
	telemetry.CollaboratorFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", "partners_of")))
	telemetry.GameSessionsActive.Add(ctx, 1)
	telemetry.GameMovesRelayed.Add(ctx, 1)
}
