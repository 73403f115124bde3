package repositories

import (
	"context"
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/samber/lo"

	"chat-router/contract"
	"chat-router/domain"
	"chat-router/errors"
)

const sequenceBandwidth = 64

var _ contract.PersistenceGateway = (*BadgerGateway)(nil)

// BadgerGateway is the default PersistenceGateway, backed by BadgerDB.
//
// Message keys are formatted as "msg:{conversation_19d}:{id_19d}" so a
// prefix scan per conversation yields messages in id order
// (lexicographical thanks to the zero padding). A secondary index
// "idx:msg:{id_19d}" maps a bare message id back to its primary key.
// Ids come from a badger Sequence and are monotonic.
type BadgerGateway struct {
	db            *badger.DB
	seq           *badger.Sequence
	log           *slog.Logger
	limitMessages *int
}

func NewBadgerGateway(db *badger.DB, log *slog.Logger, limitMessages *int) (*BadgerGateway, error) {
	seq, err := db.GetSequence([]byte("seq:message"), sequenceBandwidth)
	if err != nil {
		return nil, fmt.Errorf("message sequence: %w", err)
	}
	return &BadgerGateway{db: db, seq: seq, log: log, limitMessages: limitMessages}, nil
}

// Close releases the id sequence. Unused leased ids are dropped, which
// keeps ids monotonic but not dense. Callers close the DB themselves.
func (g *BadgerGateway) Close() error {
	return g.seq.Release()
}

func messageKey(conversationID, messageID int64) []byte {
	return []byte(fmt.Sprintf("msg:%019d:%019d", conversationID, messageID))
}

func messageIndexKey(messageID int64) []byte {
	return []byte(fmt.Sprintf("idx:msg:%019d", messageID))
}

func conversationKey(conversationID int64) []byte {
	return []byte(fmt.Sprintf("conv:%019d", conversationID))
}

func userKey(userID int64) []byte {
	return []byte(fmt.Sprintf("user:%019d", userID))
}

// conversationRecord is the stored membership shape. Participants are
// kept as ids and resolved to UserRefs on read.
type conversationRecord struct {
	ID             int64   `json:"id"`
	IsRoom         bool    `json:"isRoom"`
	RoomID         *int64  `json:"roomId,omitempty"`
	RoomName       string  `json:"roomName,omitempty"`
	ParticipantIDs []int64 `json:"participantIds"`
}

// CreateMessage persists one message and returns its store-assigned id.
// Successful persistence is what moves a message to delivered, so the
// record is written in that state.
func (g *BadgerGateway) CreateMessage(_ context.Context, userID, conversationID int64, content string) (int64, error) {
	next, err := g.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next message id: %w", err)
	}
	messageID := int64(next) + 1 // sequences start at zero

	record := domain.StoredMessage{
		ID:             messageID,
		UserID:         userID,
		ConversationID: conversationID,
		Content:        content,
		Status:         domain.StatusDelivered,
		At:             time.Now().UTC(),
	}
	value, err := json.Marshal(record)
	if err != nil {
		return 0, err
	}

	err = g.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(messageKey(conversationID, messageID), value); err != nil {
			return err
		}
		return txn.Set(messageIndexKey(messageID), messageKey(conversationID, messageID))
	})
	if err != nil {
		return 0, err
	}
	return messageID, nil
}

// FindConversation loads a conversation with its participants resolved.
// A missing id yields (nil, nil), a miss is not an error.
func (g *BadgerGateway) FindConversation(_ context.Context, conversationID int64) (*domain.Conversation, error) {
	var record conversationRecord
	var participants []domain.UserRef

	err := g.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(conversationKey(conversationID))
		if err != nil {
			return err
		}
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &record)
		}); err != nil {
			return err
		}

		for _, id := range record.ParticipantIDs {
			userItem, err := txn.Get(userKey(id))
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				// Membership can outlive a user record, skip silently.
				continue
			}
			if err != nil {
				return err
			}
			var user domain.UserRef
			if err := userItem.Value(func(v []byte) error {
				return json.Unmarshal(v, &user)
			}); err != nil {
				return err
			}
			participants = append(participants, user)
		}
		return nil
	})
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	return &domain.Conversation{
		ID:           record.ID,
		IsRoom:       record.IsRoom,
		RoomID:       record.RoomID,
		RoomName:     record.RoomName,
		Participants: participants,
	}, nil
}

// UpdateMessageStatus moves a message to the requested status. Illegal
// transitions (anything out of failed or seen, seen straight from sent)
// are rejected with ErrStatusTransition.
func (g *BadgerGateway) UpdateMessageStatus(_ context.Context, messageID int64, status domain.DeliveryStatus) error {
	if !status.Valid() {
		return fmt.Errorf("status %q: %w", status, errors.ErrStatusTransition)
	}
	return g.db.Update(func(txn *badger.Txn) error {
		indexItem, err := txn.Get(messageIndexKey(messageID))
		if stderrors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("message %d: %w", messageID, errors.ErrMessageNotFound)
		}
		if err != nil {
			return err
		}
		var primaryKey []byte
		if err := indexItem.Value(func(v []byte) error {
			primaryKey = append([]byte(nil), v...)
			return nil
		}); err != nil {
			return err
		}

		item, err := txn.Get(primaryKey)
		if err != nil {
			return err
		}
		var record domain.StoredMessage
		if err := item.Value(func(v []byte) error {
			return json.Unmarshal(v, &record)
		}); err != nil {
			return err
		}

		if !record.Status.CanTransition(status) {
			return fmt.Errorf("message %d %s -> %s: %w",
				messageID, record.Status, status, errors.ErrStatusTransition)
		}
		record.Status = status
		value, err := json.Marshal(record)
		if err != nil {
			return err
		}
		return txn.Set(primaryKey, value)
	})
}

// UnreadBefore lists delivered messages of the conversation authored by
// someone other than readerID with id at or below the watermark.
func (g *BadgerGateway) UnreadBefore(_ context.Context, conversationID, readerID, watermark int64) ([]domain.StoredMessage, error) {
	messages, err := g.scanConversation(conversationID, false, nil, nil)
	if err != nil {
		return nil, err
	}
	return lo.Filter(messages, func(m domain.StoredMessage, _ int) bool {
		return m.Status == domain.StatusDelivered && m.UserID != readerID && m.ID <= watermark
	}), nil
}

// GetMessages pages backwards through a conversation. The cursor is the
// id part of the last key returned, pass it back to continue the scan.
func (g *BadgerGateway) GetMessages(_ context.Context, conversationID int64, cursor *string) ([]domain.StoredMessage, *string, error) {
	var lastKey string
	messages, err := g.scanConversation(conversationID, true, cursor, &lastKey)
	if err != nil {
		return nil, nil, err
	}
	return messages, &lastKey, nil
}

func (g *BadgerGateway) scanConversation(conversationID int64, reverse bool,
	cursor *string, lastKey *string) ([]domain.StoredMessage, error) {

	var messages []domain.StoredMessage
	err := g.db.View(func(txn *badger.Txn) error {
		prefixStr := fmt.Sprintf("msg:%019d:", conversationID)
		prefix := []byte(prefixStr)
		options := badger.DefaultIteratorOptions
		options.Reverse = reverse
		it := txn.NewIterator(options)
		defer it.Close()

		seekKey := prefix
		if reverse {
			switch cursor {
			case nil:
				// Seek past the newest possible id then walk backwards.
				seekKey = append([]byte(prefixStr), []byte("9999999999999999999")...)
			default:
				seekKey = append([]byte(prefixStr), []byte(*cursor)...)
			}
		}
		it.Seek(seekKey)

		if reverse && cursor != nil && it.ValidForPrefix(prefix) {
			it.Next()
		}

		for ; it.ValidForPrefix(prefix); it.Next() {
			if reverse && g.limitMessages != nil && len(messages) == *g.limitMessages {
				g.log.Debug(fmt.Sprintf("Maximum of %d messages reached", *g.limitMessages))
				break
			}
			item := it.Item()
			if lastKey != nil {
				*lastKey = string(item.Key()[len(prefixStr):])
			}
			var record domain.StoredMessage
			if err := item.Value(func(v []byte) error {
				return json.Unmarshal(v, &record)
			}); err != nil {
				return err
			}
			messages = append(messages, record)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// CreateConversation registers a conversation's membership. The id is
// caller-assigned: conversations are managed by an outer surface, the
// routing core only reads them.
func (g *BadgerGateway) CreateConversation(_ context.Context, conversation domain.Conversation) error {
	record := conversationRecord{
		ID:       conversation.ID,
		IsRoom:   conversation.IsRoom,
		RoomID:   conversation.RoomID,
		RoomName: conversation.RoomName,
		ParticipantIDs: lo.Map(conversation.Participants, func(u domain.UserRef, _ int) int64 {
			return u.ID
		}),
	}
	value, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(conversationKey(conversation.ID), value)
	})
}

// PutUser upserts the denormalized user record referenced by
// conversation membership.
func (g *BadgerGateway) PutUser(_ context.Context, user domain.UserRef) error {
	value, err := json.Marshal(user)
	if err != nil {
		return err
	}
	return g.db.Update(func(txn *badger.Txn) error {
		return txn.Set(userKey(user.ID), value)
	})
}
