package routing

import (
	"context"
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"

	"chat-router/domain"
	"chat-router/domain/event"
)

// recordingSink captures consumed frames for assertions.
type recordingSink struct {
	mu     sync.Mutex
	frames []event.Frame
}

func (s *recordingSink) Consume(_ context.Context, f event.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, f)
	return nil
}

func (s *recordingSink) Events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	var events []string
	for _, f := range s.frames {
		events = append(events, f.Event)
	}
	return events
}

func TestRegistry_Connect_Multi_Device(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromString("ERROR"))

	c1 := domain.ConnectionID(uuid.NewString())
	c2 := domain.ConnectionID(uuid.NewString())

	// Given one user connected from two devices
	registry.Connect(1, c1, &recordingSink{})
	registry.Connect(1, c2, &recordingSink{})

	// Then both connections resolve
	conns := registry.ConnectionsFor(1)
	req.Len(conns, 2)
	req.Contains(conns, c1)
	req.Contains(conns, c2)

	// When one device disconnects
	registry.Disconnect(1, c1)
	req.Equal([]domain.ConnectionID{c2}, registry.ConnectionsFor(1))

	// When the last device disconnects
	registry.Disconnect(1, c2)
	req.Empty(registry.ConnectionsFor(1))
}

func TestRegistry_Broadcast_To_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromString("ERROR"))

	sink1, sink2 := &recordingSink{}, &recordingSink{}
	c1 := domain.ConnectionID("c1")
	c2 := domain.ConnectionID("c2")
	registry.Connect(1, c1, sink1)
	registry.Connect(2, c2, sink2)

	frame := event.Frame{Event: event.Message}
	registry.Broadcast(context.Background(), domain.TargetSet{Connections: []domain.ConnectionID{c1, c2}}, frame)

	req.Equal([]string{event.Message}, sink1.Events())
	req.Equal([]string{event.Message}, sink2.Events())
}

func TestRegistry_Broadcast_To_Channel(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromString("ERROR"))

	member, outsider := &recordingSink{}, &recordingSink{}
	registry.Connect(1, "c1", member)
	registry.Connect(2, "c2", outsider)
	registry.JoinChannel("room7", "c1")

	registry.Broadcast(context.Background(), domain.TargetSet{Channel: "room7"}, event.Frame{Event: event.Message})

	req.Len(member.Events(), 1)
	req.Empty(outsider.Events())

	// When the member leaves the channel
	registry.LeaveChannel("room7", "c1")
	registry.Broadcast(context.Background(), domain.TargetSet{Channel: "room7"}, event.Frame{Event: event.Message})
	req.Len(member.Events(), 1)
}

func TestRegistry_Broadcast_Skips_Stale_Connections(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry(logs.GetLoggerFromString("ERROR"))

	sink := &recordingSink{}
	registry.Connect(1, "c1", sink)

	// A target list can be stale: unknown ids are dropped silently
	registry.Broadcast(context.Background(),
		domain.TargetSet{Connections: []domain.ConnectionID{"c1", "gone"}},
		event.Frame{Event: event.Message})

	req.Len(sink.Events(), 1)
}

func TestRegistry_EmitTo_Unknown_Connection_Is_Noop(t *testing.T) {
	registry := NewRegistry(logs.GetLoggerFromString("ERROR"))
	registry.EmitTo(context.Background(), "gone", event.Frame{Event: event.Error})
}
