//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"chat-router/domain"
	"chat-router/domain/event"
)

// PersistenceGateway is the durable store for messages and conversation
// membership. Message ids are monotonic and assigned by the store.
type PersistenceGateway interface {
	CreateMessage(ctx context.Context, userID, conversationID int64, content string) (int64, error)
	// FindConversation returns the conversation with its participants,
	// or nil when the id resolves to nothing. A miss is not an error.
	FindConversation(ctx context.Context, conversationID int64) (*domain.Conversation, error)
	UpdateMessageStatus(ctx context.Context, messageID int64, status domain.DeliveryStatus) error
	// UnreadBefore lists delivered messages of a conversation authored by
	// someone other than readerID with id <= watermark.
	UnreadBefore(ctx context.Context, conversationID, readerID, watermark int64) ([]domain.StoredMessage, error)
	GetMessages(ctx context.Context, conversationID int64, cursor *string) ([]domain.StoredMessage, *string, error)
}

// ConnectionLookup is the read-only view of the live connection map.
// It may be mutated concurrently by connect/disconnect events owned
// elsewhere, so callers must re-read it on every resolution.
type ConnectionLookup interface {
	ConnectionsFor(userID int64) []domain.ConnectionID
}

// ConnectionRegistry adds the broadcast primitives on top of the lookup.
// Unreachable connection ids are dropped by the transport, never reported
// as errors to the routing core.
type ConnectionRegistry interface {
	ConnectionLookup
	Broadcast(ctx context.Context, targets domain.TargetSet, frame event.Frame)
	EmitTo(ctx context.Context, conn domain.ConnectionID, frame event.Frame)
}

// EventSink receives outbound frames for one connection.
type EventSink interface {
	Consume(ctx context.Context, frame event.Frame) error
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}
