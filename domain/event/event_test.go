package event

import (
	"testing"

	"github.com/stretchr/testify/require"

	"chat-router/domain"
)

func TestDestinationChannel_User_Uses_Sender_ID(t *testing.T) {
	req := require.New(t)
	to := domain.NewDestination(domain.KindUser, 2)
	from := domain.UserRef{ID: 1, Name: "Alice"}

	req.Equal("user1", DestinationChannel(to, from))
}

func TestDestinationChannel_Room_Uses_Room_ID(t *testing.T) {
	req := require.New(t)
	to := domain.NewDestination(domain.KindRoom, 7)
	from := domain.UserRef{ID: 1, Name: "Alice"}

	req.Equal("room7", DestinationChannel(to, from))
}

func TestSelfEchoChannel_Direct_Conversation_Only(t *testing.T) {
	req := require.New(t)

	echo, ok := SelfEchoChannel(domain.NewDestination(domain.KindUser, 2))
	req.True(ok)
	req.Equal("user2", echo)

	// Rooms never fire the self-echo channel
	_, ok = SelfEchoChannel(domain.NewDestination(domain.KindRoom, 7))
	req.False(ok)
}

func TestConfirmationChannel(t *testing.T) {
	req := require.New(t)
	req.Equal("confirmationuser2", ConfirmationChannel(domain.NewDestination(domain.KindUser, 2)))
	req.Equal("confirmationroom7", ConfirmationChannel(domain.NewDestination(domain.KindRoom, 7)))
}

func TestNewMessagePayload_Shape_Is_Channel_Independent(t *testing.T) {
	req := require.New(t)
	to := domain.NewConversationDestination(domain.KindUser, 2, 42)
	env := domain.NewEnvelope(to, domain.MessageKindUser, "hi", domain.UserRef{ID: 1, Name: "Alice"}, "c1")
	env.MarkDelivered(101)

	payload := NewMessagePayload(env)
	req.Equal(domain.KindUser, payload.To.Kind)
	req.Equal(int64(42), *payload.To.ConversationID)
	req.Equal(int64(1), payload.From.ID)
	req.Equal("hi", payload.Message.Content)
	req.Equal(domain.StatusDelivered, payload.Message.Status)
}
