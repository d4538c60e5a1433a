package runtime

import (
	"context"
	"group-cart/contract"
	"group-cart/domain"
	"group-cart/domain/event"
	"group-cart/observability"
	"log/slog"
	"slices"
)

// Broadcaster delivers encoded events to connections of the registry.
//
// Delivery is best-effort and at-most-once: there is no retry and no ordering
// guarantee across receivers. A frame is encoded once per call, so every
// receiver of one broadcast gets the same bytes.
type Broadcaster struct {
	log      *slog.Logger
	registry contract.IRegistry
	metrics  *observability.Metrics
}

func NewBroadcaster(log *slog.Logger, registry contract.IRegistry, metrics *observability.Metrics) *Broadcaster {
	return &Broadcaster{log: log, registry: registry, metrics: metrics}
}

// SendTo delivers one event to a single connection.
// A connection that has gone away is silently skipped.
func (b *Broadcaster) SendTo(_ context.Context, connID domain.ConnectionID, eventName string, payload any) {
	frame, err := event.Encode(eventName, payload)
	if err != nil {
		b.log.Error("Unable to encode event", "event", eventName, "error", err)
		return
	}
	if b.deliver(connID, eventName, frame) {
		b.metrics.Delivered(observability.Unicast, 1)
	}
}

// BroadcastToGroup delivers one event to every connection bound to the group
// at call time, except the excluded ones. It returns the number of frames handed over.
func (b *Broadcaster) BroadcastToGroup(_ context.Context, groupID domain.GroupID, eventName string,
	payload any, exclude ...domain.ConnectionID) int {
	targets := b.registry.ConnectionsInGroup(groupID)
	if len(targets) == 0 {
		return 0
	}
	frame, err := event.Encode(eventName, payload)
	if err != nil {
		b.log.Error("Unable to encode event", "event", eventName, "group_id", groupID, "error", err)
		return 0
	}

	delivered := 0
	for _, connID := range targets {
		if slices.Contains(exclude, connID) {
			continue
		}
		if b.deliver(connID, eventName, frame) {
			delivered++
		}
	}
	b.metrics.Delivered(observability.Broadcast, delivered)
	return delivered
}

func (b *Broadcaster) deliver(connID domain.ConnectionID, eventName string, frame []byte) bool {
	conn, ok := b.registry.Connection(connID)
	if !ok {
		b.log.Debug("Connection gone before delivery", "connection_id", connID, "event", eventName)
		b.metrics.Dropped()
		return false
	}
	if err := conn.Send(frame); err != nil {
		b.log.Debug("Frame dropped", "connection_id", connID, "event", eventName, "error", err)
		b.metrics.Dropped()
		return false
	}
	return true
}
