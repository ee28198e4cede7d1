// Package telemetry provides the OpenTelemetry metric instruments of the relay.
//
// Instruments are created from the global meter provider. Until the process installs
// a provider they are no-ops, so packages can record unconditionally.
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/Washington-NKE/lovewise-relay"

//nolint:gochecknoglobals // OpenTelemetry metrics must be global for instrumentation
var meter = otel.Meter(instrumentationName)

// Connection metrics.
//
//nolint:gochecknoglobals // OpenTelemetry metrics must be global for instrumentation
var (
	ConnectionsActive, _ = meter.Int64UpDownCounter(
		"relay.connections.active",
		metric.WithDescription("Currently registered connections"),
	)

	ConnectionsSuperseded, _ = meter.Int64Counter(
		"relay.connections.superseded",
		metric.WithDescription("Connections closed because the same user connected again"),
	)

	ConnectionsRejected, _ = meter.Int64Counter(
		"relay.connections.rejected",
		metric.WithDescription("Handshakes rejected for a missing or invalid user id"),
	)

	HeartbeatEvictions, _ = meter.Int64Counter(
		"relay.heartbeat.evictions",
		metric.WithDescription("Connections terminated for missing heartbeats"),
	)
)

// Message metrics.
//
//nolint:gochecknoglobals // OpenTelemetry metrics must be global for instrumentation
var (
	FramesReceived, _ = meter.Int64Counter(
		"relay.frames.received",
		metric.WithDescription("Frames received from clients"),
	)

	FramesDropped, _ = meter.Int64Counter(
		"relay.frames.dropped",
		metric.WithDescription("Frames dropped for failing to parse or carrying an unknown type"),
	)

	MessagesRouted, _ = meter.Int64Counter(
		"relay.messages.routed",
		metric.WithDescription("Direct messages routed"),
	)

	MessagesDelivered, _ = meter.Int64Counter(
		"relay.messages.delivered",
		metric.WithDescription("Direct messages pushed to an online receiver"),
	)

	CollaboratorFailures, _ = meter.Int64Counter(
		"relay.collaborator.failures",
		metric.WithDescription("Failed calls to relationship, activity or message stores"),
	)
)

// Game metrics.
//
//nolint:gochecknoglobals // OpenTelemetry metrics must be global for instrumentation
var (
	GameSessionsActive, _ = meter.Int64UpDownCounter(
		"relay.game.sessions.active",
		metric.WithDescription("Game sessions held in memory"),
	)

	GameMovesRelayed, _ = meter.Int64Counter(
		"relay.game.moves",
		metric.WithDescription("Game moves relayed"),
	)
)

// RecordCollaboratorFailure counts a failed call to an external collaborator.
func RecordCollaboratorFailure(ctx context.Context, op string) {
	CollaboratorFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("op", op)))
}

// RecordFrame counts a received frame by type.
func RecordFrame(ctx context.Context, frameType string) {
	FramesReceived.Add(ctx, 1, metric.WithAttributes(attribute.String("type", frameType)))
}
