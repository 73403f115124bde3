package domain

import "time"

// Conversation is the persisted membership record of a direct
// conversation or a room-backed one.
type Conversation struct {
	ID           int64
	IsRoom       bool
	RoomID       *int64
	RoomName     string
	Participants []UserRef
}

// Card builds the denormalized read-model attached to confirmations.
// Participants exclude the given user so the client can render the
// other side without a second round trip.
func (c Conversation) Card(excludeUserID int64) ConversationCard {
	others := make([]UserRef, 0, len(c.Participants))
	for _, p := range c.Participants {
		if p.ID != excludeUserID {
			others = append(others, p)
		}
	}
	card := ConversationCard{ID: c.ID, Participants: others}
	if c.IsRoom && c.RoomID != nil {
		card.Room = &RoomInfo{ID: *c.RoomID, Name: c.RoomName}
	}
	return card
}

type RoomInfo struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// ConversationCard is immutable after construction and discarded with
// the request it enriched.
type ConversationCard struct {
	ID           int64     `json:"id"`
	Room         *RoomInfo `json:"room,omitempty"`
	Participants []UserRef `json:"participants"`
}

// StoredMessage is the persisted message record.
type StoredMessage struct {
	ID             int64          `json:"id"`
	UserID         int64          `json:"userId"`
	ConversationID int64          `json:"conversationId"`
	Content        string         `json:"content"`
	Status         DeliveryStatus `json:"status"`
	At             time.Time      `json:"at"`
}
