// Package domain contains core concepts of the message routing system.
// This file defines Destination, the logical target of a send.
// No transport or persistence logic should be added here.
package domain

import "fmt"

type DestinationKind string

const (
	KindUser DestinationKind = "user"
	KindRoom DestinationKind = "room"
)

// Destination identifies where a message goes.
// For a direct conversation, ChildID is the other user's id.
// For a room, ChildID is the room id.
type Destination struct {
	Kind           DestinationKind
	ChildID        int64
	conversationID *int64
}

func NewDestination(kind DestinationKind, childID int64) Destination {
	return Destination{Kind: kind, ChildID: childID}
}

func NewConversationDestination(kind DestinationKind, childID, conversationID int64) Destination {
	return Destination{Kind: kind, ChildID: childID, conversationID: &conversationID}
}

// ConversationID returns the bound conversation id, or false when none is set yet.
func (d Destination) ConversationID() (int64, bool) {
	if d.conversationID == nil {
		return 0, false
	}
	return *d.conversationID, true
}

// BindConversation sets the conversation id once.
// The binding is monotonic unset->set, rebinding is rejected.
func (d *Destination) BindConversation(id int64) error {
	if d.conversationID != nil {
		return fmt.Errorf("conversation already bound to %d", *d.conversationID)
	}
	d.conversationID = &id
	return nil
}

// RoomChannel is the channel-name token handed to the transport for room
// destinations. Actual recipients are decided by the transport's own
// room subscriptions, not by the resolver.
func (d Destination) RoomChannel() string {
	return fmt.Sprintf("room%d", d.ChildID)
}
