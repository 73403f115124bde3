// Package routing decides who receives a message, persists it, fans it
// out and reports delivery status back to the sender. It owns no
// transport: connections are reached through contract.EventSink.
package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"chat-router/contract"
	"chat-router/domain"
	"chat-router/domain/event"
)

type Set map[domain.ConnectionID]struct{}

var _ contract.ConnectionRegistry = (*Registry)(nil)

// Registry is the in-process connection registry. It maps a user to the
// set of their live connections (multi-device) and a room channel token
// to its subscribed connections. The routing core only reads it; the
// transport owns connect/disconnect and room membership.
type Registry struct {
	mu       sync.RWMutex
	log      *slog.Logger
	sinks    map[domain.ConnectionID]contract.EventSink
	userConn map[int64]Set  // user id -> connections
	channels map[string]Set // room channel token -> connections
}

func NewRegistry(log *slog.Logger) *Registry {
	return &Registry{
		log:      log,
		sinks:    make(map[domain.ConnectionID]contract.EventSink),
		userConn: make(map[int64]Set),
		channels: make(map[string]Set),
	}
}

// Connect registers a live connection for a user. A user may hold
// several connections concurrently, one per device.
func (r *Registry) Connect(userID int64, conn domain.ConnectionID, sink contract.EventSink) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.sinks[conn] = sink
	if _, ok := r.userConn[userID]; !ok {
		r.userConn[userID] = make(Set)
	}
	r.userConn[userID][conn] = struct{}{}
}

// Disconnect removes a connection everywhere it appears. Empty sets are
// dropped to prevent the maps from growing over time.
func (r *Registry) Disconnect(userID int64, conn domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.sinks, conn)

	if conns, ok := r.userConn[userID]; ok {
		delete(conns, conn)
		if len(conns) == 0 {
			delete(r.userConn, userID)
		}
	}
	for channel, members := range r.channels {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
}

// JoinChannel subscribes a connection to a room channel token.
func (r *Registry) JoinChannel(channel string, conn domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.channels[channel]; !ok {
		r.channels[channel] = make(Set)
	}
	r.channels[channel][conn] = struct{}{}
}

func (r *Registry) LeaveChannel(channel string, conn domain.ConnectionID) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if members, ok := r.channels[channel]; ok {
		delete(members, conn)
		if len(members) == 0 {
			delete(r.channels, channel)
		}
	}
}

// ConnectionsFor returns a snapshot of the user's live connections.
// The snapshot can go stale the moment it is returned, which is fine:
// a disconnect racing a resolution is resolved by Broadcast dropping
// unreachable ids.
func (r *Registry) ConnectionsFor(userID int64) []domain.ConnectionID {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns, ok := r.userConn[userID]
	if !ok {
		return nil
	}
	snapshot := make([]domain.ConnectionID, 0, len(conns))
	for conn := range conns {
		snapshot = append(snapshot, conn)
	}
	return snapshot
}

// Broadcast emits one frame to every resolved target. A channel token
// fans out to the channel's subscribers, a connection list to each id.
// Stale ids are skipped silently.
func (r *Registry) Broadcast(ctx context.Context, targets domain.TargetSet, frame event.Frame) {
	for _, sink := range r.snapshotSinks(targets) {
		if err := sink.Consume(ctx, frame); err != nil {
			r.log.Debug(fmt.Sprintf("Dropping unreachable connection on %s", frame.Event), "error", err)
		}
	}
}

// EmitTo sends one frame to a single connection, typically the sender's
// own for confirmations and errors.
func (r *Registry) EmitTo(ctx context.Context, conn domain.ConnectionID, frame event.Frame) {
	r.mu.RLock()
	sink, ok := r.sinks[conn]
	r.mu.RUnlock()
	if !ok {
		r.log.Debug(fmt.Sprintf("No sink for connection %s", conn))
		return
	}
	if err := sink.Consume(ctx, frame); err != nil {
		r.log.Debug("Sender sink unreachable", "connection", conn, "error", err)
	}
}

// snapshotSinks resolves the target set to sinks under a read lock so
// that the actual emission happens lock-free.
func (r *Registry) snapshotSinks(targets domain.TargetSet) []contract.EventSink {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var sinks []contract.EventSink
	if targets.Channel != "" {
		for conn := range r.channels[targets.Channel] {
			if sink, ok := r.sinks[conn]; ok {
				sinks = append(sinks, sink)
			}
		}
		return sinks
	}
	for _, conn := range targets.Connections {
		if sink, ok := r.sinks[conn]; ok {
			sinks = append(sinks, sink)
		}
	}
	return sinks
}
