package repositories

import (
	"context"
	stderrors "errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"chat-router/contract"
	"chat-router/domain"
	"chat-router/errors"
)

var _ contract.PersistenceGateway = (*PostgresGateway)(nil)

// PostgresGateway is the relational PersistenceGateway backend. Message
// ids come from a bigserial column, which also provides the monotonic
// ordering the read-receipt watermark depends on.
//
// Expected schema:
//
//	messages(id bigserial primary key, user_id bigint, conversation_id bigint,
//	         content text, status text, created_at timestamptz)
//	conversations(id bigint primary key, is_room boolean, room_id bigint, room_name text)
//	conversation_participants(conversation_id bigint, user_id bigint)
//	users(id bigint primary key, name text)
type PostgresGateway struct {
	db            *pgxpool.Pool
	log           *slog.Logger
	limitMessages *int
}

func NewPostgresGateway(db *pgxpool.Pool, log *slog.Logger, limitMessages *int) *PostgresGateway {
	return &PostgresGateway{db: db, log: log, limitMessages: limitMessages}
}

func (g *PostgresGateway) CreateMessage(ctx context.Context, userID, conversationID int64, content string) (int64, error) {
	query := `
		INSERT INTO messages (user_id, conversation_id, content, status, created_at)
		VALUES ($1, $2, $3, $4, $5)
		RETURNING id
	`

	var id int64
	err := g.db.QueryRow(ctx, query,
		userID, conversationID, content, domain.StatusDelivered, time.Now().UTC(),
	).Scan(&id)
	if err != nil {
		g.log.Error("Failed to create message", "error", err)
		return 0, err
	}
	return id, nil
}

func (g *PostgresGateway) FindConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error) {
	query := `
		SELECT id, is_room, room_id, room_name
		FROM conversations
		WHERE id = $1
	`

	conversation := &domain.Conversation{}
	var roomName *string
	err := g.db.QueryRow(ctx, query, conversationID).Scan(
		&conversation.ID, &conversation.IsRoom, &conversation.RoomID, &roomName,
	)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		g.log.Error("Failed to get conversation", "error", err)
		return nil, err
	}
	if roomName != nil {
		conversation.RoomName = *roomName
	}

	participantsQuery := `
		SELECT u.id, u.name
		FROM conversation_participants cp
		JOIN users u ON u.id = cp.user_id
		WHERE cp.conversation_id = $1
	`
	rows, err := g.db.Query(ctx, participantsQuery, conversationID)
	if err != nil {
		g.log.Error("Failed to get participants", "error", err)
		return nil, err
	}
	defer rows.Close()

	for rows.Next() {
		var user domain.UserRef
		if err := rows.Scan(&user.ID, &user.Name); err != nil {
			return nil, err
		}
		conversation.Participants = append(conversation.Participants, user)
	}
	return conversation, rows.Err()
}

func (g *PostgresGateway) UpdateMessageStatus(ctx context.Context, messageID int64, status domain.DeliveryStatus) error {
	if !status.Valid() {
		return fmt.Errorf("status %q: %w", status, errors.ErrStatusTransition)
	}
	var current domain.DeliveryStatus
	err := g.db.QueryRow(ctx, `SELECT status FROM messages WHERE id = $1`, messageID).Scan(&current)
	if stderrors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("message %d: %w", messageID, errors.ErrMessageNotFound)
	}
	if err != nil {
		return err
	}
	if !current.CanTransition(status) {
		return fmt.Errorf("message %d %s -> %s: %w", messageID, current, status, errors.ErrStatusTransition)
	}

	_, err = g.db.Exec(ctx, `UPDATE messages SET status = $2 WHERE id = $1`, messageID, status)
	if err != nil {
		g.log.Error("Failed to update message status", "message", messageID, "error", err)
	}
	return err
}

func (g *PostgresGateway) UnreadBefore(ctx context.Context, conversationID, readerID, watermark int64) ([]domain.StoredMessage, error) {
	query := `
		SELECT id, user_id, conversation_id, content, status, created_at
		FROM messages
		WHERE conversation_id = $1 AND user_id <> $2 AND id <= $3 AND status = $4
		ORDER BY id
	`

	rows, err := g.db.Query(ctx, query, conversationID, readerID, watermark, domain.StatusDelivered)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return scanMessages(rows)
}

// GetMessages pages backwards by id. The cursor is the last returned id.
func (g *PostgresGateway) GetMessages(ctx context.Context, conversationID int64, cursor *string) ([]domain.StoredMessage, *string, error) {
	before := int64(1<<63 - 1)
	if cursor != nil {
		parsed, err := strconv.ParseInt(*cursor, 10, 64)
		if err != nil {
			return nil, nil, fmt.Errorf("bad cursor %q: %w", *cursor, err)
		}
		before = parsed
	}
	limit := 50
	if g.limitMessages != nil {
		limit = *g.limitMessages
	}

	query := `
		SELECT id, user_id, conversation_id, content, status, created_at
		FROM messages
		WHERE conversation_id = $1 AND id < $2
		ORDER BY id DESC
		LIMIT $3
	`
	rows, err := g.db.Query(ctx, query, conversationID, before, limit)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	messages, err := scanMessages(rows)
	if err != nil {
		return nil, nil, err
	}
	var lastKey string
	if len(messages) > 0 {
		lastKey = strconv.FormatInt(messages[len(messages)-1].ID, 10)
	}
	return messages, &lastKey, nil
}

func scanMessages(rows pgx.Rows) ([]domain.StoredMessage, error) {
	var messages []domain.StoredMessage
	for rows.Next() {
		var m domain.StoredMessage
		if err := rows.Scan(&m.ID, &m.UserID, &m.ConversationID, &m.Content, &m.Status, &m.At); err != nil {
			return nil, err
		}
		messages = append(messages, m)
	}
	return messages, rows.Err()
}
