package test

import (
	"context"
	"log/slog"
	"sync"
	"testing"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"

	"chat-router/domain"
	"chat-router/domain/event"
	"chat-router/moderation"
	"chat-router/repositories"
	"chat-router/routing"
	"chat-router/services"
)

// captureSink records every frame a connection would receive.
type captureSink struct {
	mu     sync.Mutex
	frames []event.Frame
}

func (s *captureSink) Consume(_ context.Context, frame event.Frame) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.frames = append(s.frames, frame)
	return nil
}

func (s *captureSink) events() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Map(s.frames, func(f event.Frame, _ int) string { return f.Event })
}

func (s *captureSink) find(name string) (event.Frame, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return lo.Find(s.frames, func(f event.Frame) bool { return f.Event == name })
}

func Test_Scenario(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	// Reduced to 16 Mo for testing (avoid 20 Go of storage)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { db.Close() })

	log := slog.Default()
	gateway, err := repositories.NewBadgerGateway(db, log, lo.ToPtr(100))
	req.NoError(err)
	t.Cleanup(func() { gateway.Close() })

	registry := routing.NewRegistry(log)
	resolver := routing.NewResolver(gateway, log)
	coordinator := routing.NewCoordinator(gateway, registry, resolver, log)
	receipts := routing.NewReceiptProcessor(gateway, registry, log, 4)
	moderator, err := moderation.NewModerator([]string{"rude"}, '*')
	req.NoError(err)
	service := services.NewMessagingService(coordinator, receipts, gateway, moderator, log)

	// Given Alice on two devices and Bob on one, sharing conversation 42
	alice := domain.UserRef{ID: 1, Name: "Alice"}
	bob := domain.UserRef{ID: 2, Name: "Bob"}
	req.NoError(gateway.PutUser(ctx, alice))
	req.NoError(gateway.PutUser(ctx, bob))
	req.NoError(gateway.CreateConversation(ctx, domain.Conversation{
		ID:           42,
		Participants: []domain.UserRef{alice, bob},
	}))

	c1, c2, c3 := &captureSink{}, &captureSink{}, &captureSink{}
	registry.Connect(alice.ID, "c1", c1)
	registry.Connect(alice.ID, "c2", c2)
	registry.Connect(bob.ID, "c3", c3)

	// When Alice sends a message to Bob from her first device
	result, err := service.SendMessage(ctx, alice, "c1", services.SendRequest{
		Kind:           domain.KindUser,
		ChildID:        bob.ID,
		ConversationID: lo.ToPtr(int64(42)),
		Content:        "hello, don't be rude",
	})
	req.NoError(err)
	req.True(result.Outcome.OK)
	req.Equal(domain.StatusDelivered, result.Message.Status)
	req.NotNil(result.Message.ID)
	messageID := *result.Message.ID

	// Then content was masked before persistence and fanout
	req.Equal("hello, don't be ****", result.Message.Content)

	// Then Bob's device and Alice's other device both got the three
	// channels with an identical payload, the origin got only the
	// confirmation
	expected := []string{"message", "user1", "user2"}
	req.ElementsMatch(expected, c2.events())
	req.ElementsMatch(expected, c3.events())

	generic, ok := c3.find("message")
	req.True(ok)
	scoped, ok := c3.find("user1")
	req.True(ok)
	req.Equal(generic.Payload, scoped.Payload)
	payload, ok := generic.Payload.(event.MessagePayload)
	req.True(ok)
	req.Equal(alice, payload.From)
	req.Equal("hello, don't be ****", payload.Message.Content)

	confirmation, ok := c1.find("confirmationuser2")
	req.True(ok)
	req.Len(c1.events(), 1)
	confirmationPayload, ok := confirmation.Payload.(event.ConfirmationPayload)
	req.True(ok)
	req.NotNil(confirmationPayload.Conversation)
	// The card describes the other side of the conversation
	req.Equal([]domain.UserRef{bob}, confirmationPayload.Conversation.Participants)

	// When Bob reads up to the new message
	err = service.MarkRead(ctx, bob.ID, services.MarkReadRequest{
		ConversationID: 42,
		MessageID:      messageID,
	})
	req.NoError(err)

	// Then the store holds the seen status
	stored, _, err := gateway.GetMessages(ctx, 42, nil)
	req.NoError(err)
	req.Len(stored, 1)
	req.Equal(domain.StatusSeen, stored[0].Status)

	// Then both of Alice's devices got the watermark, Bob none
	for _, sink := range []*captureSink{c1, c2} {
		frame, ok := sink.find(event.ReadMessages)
		req.True(ok)
		read, ok := frame.Payload.(event.ReadPayload)
		req.True(ok)
		req.Equal(int64(42), read.ConversationID)
		req.Equal(messageID, read.MessageID)
	}
	_, ok = c3.find(event.ReadMessages)
	req.False(ok)

	// When Bob reads again, nothing is delivered-unseen anymore
	err = service.MarkRead(ctx, bob.ID, services.MarkReadRequest{
		ConversationID: 42,
		MessageID:      messageID,
	})
	req.NoError(err)
	frames := lo.Filter(c1.frames, func(f event.Frame, _ int) bool { return f.Event == event.ReadMessages })
	req.Len(frames, 1)
}

func Test_Scenario_Room(t *testing.T) {
	ctx := context.Background()
	req := require.New(t)
	db, err := badger.Open(badger.DefaultOptions(t.TempDir()).
		WithLoggingLevel(badger.ERROR).
		WithValueLogFileSize(16 << 20))
	req.NoError(err)
	t.Cleanup(func() { db.Close() })

	log := slog.Default()
	gateway, err := repositories.NewBadgerGateway(db, log, lo.ToPtr(100))
	req.NoError(err)
	t.Cleanup(func() { gateway.Close() })

	registry := routing.NewRegistry(log)
	resolver := routing.NewResolver(gateway, log)
	coordinator := routing.NewCoordinator(gateway, registry, resolver, log)
	receipts := routing.NewReceiptProcessor(gateway, registry, log, 4)
	service := services.NewMessagingService(coordinator, receipts, gateway, nil, log)

	alice := domain.UserRef{ID: 1, Name: "Alice"}
	bob := domain.UserRef{ID: 2, Name: "Bob"}
	req.NoError(gateway.PutUser(ctx, alice))
	req.NoError(gateway.PutUser(ctx, bob))
	req.NoError(gateway.CreateConversation(ctx, domain.Conversation{
		ID:           43,
		IsRoom:       true,
		RoomID:       lo.ToPtr(int64(7)),
		RoomName:     "general",
		Participants: []domain.UserRef{alice, bob},
	}))

	c1, c3 := &captureSink{}, &captureSink{}
	registry.Connect(alice.ID, "c1", c1)
	registry.Connect(bob.ID, "c3", c3)
	registry.JoinChannel("room7", "c1")
	registry.JoinChannel("room7", "c3")

	result, err := service.SendMessage(ctx, alice, "c1", services.SendRequest{
		Kind:           domain.KindRoom,
		ChildID:        7,
		ConversationID: lo.ToPtr(int64(43)),
		Content:        "hello room",
	})
	req.NoError(err)
	req.True(result.Outcome.OK)

	// Room fanout goes through the channel token, the origin connection
	// included, and fires no self-echo
	req.ElementsMatch([]string{"message", "room7"}, c3.events())
	req.ElementsMatch([]string{"message", "room7", "confirmationroom7"}, c1.events())

	confirmation, ok := c1.find("confirmationroom7")
	req.True(ok)
	card := confirmation.Payload.(event.ConfirmationPayload).Conversation
	req.NotNil(card)
	req.NotNil(card.Room)
	req.Equal("general", card.Room.Name)
}
