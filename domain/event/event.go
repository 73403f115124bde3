// Package event defines the wire event catalogue: channel names and
// payload shapes emitted to connections. Receivers never need to
// distinguish payload shape by channel, only by which channel fired.
package event

import (
	"fmt"

	"chat-router/domain"
)

const (
	// Message is the generic channel, always fired on a delivery.
	Message = "message"
	// Error carries a human-readable failure reason to the sender.
	Error = "error"
	// ReadMessages notifies participants of a read-receipt watermark.
	ReadMessages = "readMessages"
)

// DestinationChannel is the destination-scoped channel. Its identity
// component depends on who sent the message: direct conversations use
// the sender id, rooms use the room id.
func DestinationChannel(to domain.Destination, from domain.UserRef) string {
	switch to.Kind {
	case domain.KindUser:
		return fmt.Sprintf("%s%d", to.Kind, from.ID)
	case domain.KindRoom:
		return fmt.Sprintf("%s%d", to.Kind, to.ChildID)
	default:
		return string(to.Kind)
	}
}

// SelfEchoChannel gives the other participant's own sessions one stable
// channel name per conversation partner, regardless of who sent the
// current message. It only applies to direct conversations.
func SelfEchoChannel(to domain.Destination) (string, bool) {
	if to.Kind != domain.KindUser {
		return "", false
	}
	return fmt.Sprintf("user%d", to.ChildID), true
}

// ConfirmationChannel is the sender-only channel fired once per
// successful delivery.
func ConfirmationChannel(to domain.Destination) string {
	return fmt.Sprintf("confirmation%s%d", to.Kind, to.ChildID)
}

// Frame is one outbound emission: a channel name and its payload.
type Frame struct {
	Event   string `json:"event"`
	Payload any    `json:"payload"`
}

// MessagePayload is the shape shared by the generic, destination-scoped
// and self-echo channels.
type MessagePayload struct {
	To      DestinationView    `json:"to"`
	From    domain.UserRef     `json:"from"`
	Message domain.MessageBody `json:"message"`
}

// DestinationView is the JSON projection of a Destination.
type DestinationView struct {
	Kind           domain.DestinationKind `json:"kind"`
	ChildID        int64                  `json:"childId"`
	ConversationID *int64                 `json:"conversationId,omitempty"`
}

func ViewOf(d domain.Destination) DestinationView {
	view := DestinationView{Kind: d.Kind, ChildID: d.ChildID}
	if id, ok := d.ConversationID(); ok {
		view.ConversationID = &id
	}
	return view
}

func NewMessagePayload(e *domain.Envelope) MessagePayload {
	return MessagePayload{To: ViewOf(e.To), From: e.From, Message: e.Body}
}

type ConfirmationPayload struct {
	Message      domain.MessageBody       `json:"message"`
	Conversation *domain.ConversationCard `json:"conversation"`
}

type ErrorPayload struct {
	Message string `json:"message"`
}

type ReadPayload struct {
	ConversationID int64 `json:"conversationId"`
	MessageID      int64 `json:"messageId"`
}
