package websocket

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/metric"
)

// HubMetrics holds the event hub instruments. A nil *HubMetrics records nothing.
type HubMetrics struct {
	connectionsActive metric.Int64UpDownCounter
	messagesSent      metric.Int64Counter
	messagesDropped   metric.Int64Counter
}

// InitializeHubMetrics creates the hub metrics
func InitializeHubMetrics(meter metric.Meter) (*HubMetrics, error) {
	m := &HubMetrics{}
	var err error

	m.connectionsActive, err = meter.Int64UpDownCounter(
		"websocket_connections_active",
		metric.WithDescription("Number of active WebSocket connections"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create connections gauge: %w", err)
	}

	m.messagesSent, err = meter.Int64Counter(
		"websocket_messages_sent_total",
		metric.WithDescription("Total number of messages delivered to clients"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create messages counter: %w", err)
	}

	m.messagesDropped, err = meter.Int64Counter(
		"websocket_messages_dropped_total",
		metric.WithDescription("Total number of messages dropped on a full queue"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create dropped counter: %w", err)
	}

	return m, nil
}

func (m *HubMetrics) recordConnection(ctx context.Context, delta int64) {
	if m != nil {
		m.connectionsActive.Add(ctx, delta)
	}
}

func (m *HubMetrics) recordSent(ctx context.Context) {
	if m != nil {
		m.messagesSent.Add(ctx, 1)
	}
}

func (m *HubMetrics) recordDropped(ctx context.Context) {
	if m != nil {
		m.messagesDropped.Add(ctx, 1)
	}
}
