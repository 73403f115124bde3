package routing

import (
	"context"
	"fmt"
	"testing"

	"github.com/mama165/sdk-go/logs"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-router/domain"
	"chat-router/domain/event"
	"chat-router/mocks"
)

func newCoordinator(t *testing.T) (*Coordinator, *mocks.MockPersistenceGateway, *mocks.MockConnectionRegistry) {
	ctrl := gomock.NewController(t)
	gateway := mocks.NewMockPersistenceGateway(ctrl)
	registry := mocks.NewMockConnectionRegistry(ctrl)
	log := logs.GetLoggerFromString("ERROR")
	return NewCoordinator(gateway, registry, NewResolver(gateway, log), log), gateway, registry
}

func TestCoordinator_Deliver_Direct_Conversation(t *testing.T) {
	req := require.New(t)
	coordinator, gateway, registry := newCoordinator(t)

	// User A (c1, c2) sends "hi" to the direct conversation 42 with user B (c3)
	to := domain.NewConversationDestination(domain.KindUser, 2, 42)
	env := domain.NewEnvelope(to, domain.MessageKindUser, "hi", domain.UserRef{ID: 1, Name: "Alice"}, "c1")

	conversation := &domain.Conversation{
		ID:           42,
		Participants: []domain.UserRef{{ID: 1, Name: "Alice"}, {ID: 2, Name: "Bob"}},
	}

	gateway.EXPECT().CreateMessage(gomock.Any(), int64(1), int64(42), "hi").Return(int64(101), nil)
	// One read for the card, one for resolution
	gateway.EXPECT().FindConversation(gomock.Any(), int64(42)).Return(conversation, nil).Times(2)
	registry.EXPECT().ConnectionsFor(int64(1)).Return([]domain.ConnectionID{"c1", "c2"})
	registry.EXPECT().ConnectionsFor(int64(2)).Return([]domain.ConnectionID{"c3"})

	var broadcasts []event.Frame
	registry.EXPECT().
		Broadcast(gomock.Any(), gomock.Any(), gomock.Any()).
		Do(func(_ context.Context, targets domain.TargetSet, frame event.Frame) {
			req.ElementsMatch([]domain.ConnectionID{"c2", "c3"}, targets.Connections)
			broadcasts = append(broadcasts, frame)
		}).
		Times(3)

	registry.EXPECT().
		EmitTo(gomock.Any(), domain.ConnectionID("c1"), gomock.Any()).
		Do(func(_ context.Context, _ domain.ConnectionID, frame event.Frame) {
			req.Equal("confirmationuser2", frame.Event)
			payload, ok := frame.Payload.(event.ConfirmationPayload)
			req.True(ok)
			req.Equal(int64(101), *payload.Message.ID)
			req.NotNil(payload.Conversation)
			req.Equal([]domain.UserRef{{ID: 2, Name: "Bob"}}, payload.Conversation.Participants)
		})

	card, outcome := coordinator.Deliver(context.Background(), env)

	req.True(outcome.OK)
	req.NotNil(card)
	req.Equal(domain.StatusDelivered, env.Body.Status)
	req.Equal(int64(101), *env.Body.ID)

	// Generic channel, destination-scoped channel, self-echo; identical payloads
	req.Len(broadcasts, 3)
	req.Equal(event.Message, broadcasts[0].Event)
	req.Equal("user1", broadcasts[1].Event)
	req.Equal("user2", broadcasts[2].Event)
	for _, frame := range broadcasts {
		req.Equal(broadcasts[0].Payload, frame.Payload)
	}
}

func TestCoordinator_Deliver_Missing_Conversation_ID(t *testing.T) {
	req := require.New(t)
	coordinator, _, registry := newCoordinator(t)

	to := domain.NewDestination(domain.KindUser, 2)
	env := domain.NewEnvelope(to, domain.MessageKindUser, "hi", domain.UserRef{ID: 1}, "c1")

	// Only the error frame to the sender, zero broadcast emissions
	registry.EXPECT().
		EmitTo(gomock.Any(), domain.ConnectionID("c1"), gomock.Any()).
		Do(func(_ context.Context, _ domain.ConnectionID, frame event.Frame) {
			req.Equal(event.Error, frame.Event)
			req.Equal(event.ErrorPayload{Message: "No conversation id"}, frame.Payload)
		})

	card, outcome := coordinator.Deliver(context.Background(), env)

	req.False(outcome.OK)
	req.Equal("No conversation id", outcome.Reason)
	req.Nil(card)
	req.Equal(domain.StatusSent, env.Body.Status)
}

func TestCoordinator_Deliver_Persistence_Failure(t *testing.T) {
	req := require.New(t)
	coordinator, gateway, registry := newCoordinator(t)

	to := domain.NewConversationDestination(domain.KindUser, 2, 42)
	env := domain.NewEnvelope(to, domain.MessageKindUser, "hi", domain.UserRef{ID: 1}, "c1")

	gateway.EXPECT().
		CreateMessage(gomock.Any(), int64(1), int64(42), "hi").
		Return(int64(0), fmt.Errorf("disk full"))

	registry.EXPECT().
		EmitTo(gomock.Any(), domain.ConnectionID("c1"), gomock.Any()).
		Do(func(_ context.Context, _ domain.ConnectionID, frame event.Frame) {
			req.Equal(event.Error, frame.Event)
			req.Equal(event.ErrorPayload{Message: "Couldn't add message to DB."}, frame.Payload)
		})

	card, outcome := coordinator.Deliver(context.Background(), env)

	// Recovered locally: structured failure, absorbing failed status, no fanout
	req.False(outcome.OK)
	req.Equal("Couldn't add message to DB.", outcome.Reason)
	req.Nil(card)
	req.Equal(domain.StatusFailed, env.Body.Status)
}

func TestCoordinator_Deliver_Room_Proceeds_Without_Subscribers(t *testing.T) {
	req := require.New(t)
	coordinator, gateway, registry := newCoordinator(t)

	to := domain.NewConversationDestination(domain.KindRoom, 7, 43)
	env := domain.NewEnvelope(to, domain.MessageKindUser, "hi", domain.UserRef{ID: 1}, "c1")

	gateway.EXPECT().CreateMessage(gomock.Any(), int64(1), int64(43), "hi").Return(int64(102), nil)
	gateway.EXPECT().FindConversation(gomock.Any(), int64(43)).Return(nil, nil)

	// The channel token goes straight to the transport; no self-echo for rooms
	var events []string
	registry.EXPECT().
		Broadcast(gomock.Any(), domain.TargetSet{Channel: "room7"}, gomock.Any()).
		Do(func(_ context.Context, _ domain.TargetSet, frame event.Frame) {
			events = append(events, frame.Event)
		}).
		Times(2)
	registry.EXPECT().
		EmitTo(gomock.Any(), domain.ConnectionID("c1"), gomock.Any()).
		Do(func(_ context.Context, _ domain.ConnectionID, frame event.Frame) {
			req.Equal("confirmationroom7", frame.Event)
			payload := frame.Payload.(event.ConfirmationPayload)
			// Unknown conversation: confirmation fires, enrichment is absent
			req.Nil(payload.Conversation)
		})

	card, outcome := coordinator.Deliver(context.Background(), env)

	req.True(outcome.OK)
	req.Nil(card)
	req.Equal([]string{event.Message, "room7"}, events)
}
