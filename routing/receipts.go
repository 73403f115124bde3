package routing

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/samber/lo"

	"chat-router/contract"
	"chat-router/domain"
	"chat-router/domain/event"
)

// ReceiptProcessor batch-updates message status to seen and notifies the
// other participants. Clients acknowledge a watermark, the highest
// message id they have seen, not individual ids.
type ReceiptProcessor struct {
	gateway    contract.PersistenceGateway
	registry   contract.ConnectionRegistry
	log        *slog.Logger
	numWorkers int
}

func NewReceiptProcessor(gateway contract.PersistenceGateway, registry contract.ConnectionRegistry,
	log *slog.Logger, numWorkers int) *ReceiptProcessor {
	if numWorkers < 1 {
		numWorkers = 1
	}
	return &ReceiptProcessor{gateway: gateway, registry: registry, log: log, numWorkers: numWorkers}
}

// MarkRead transitions every delivered message of the conversation
// authored by someone other than the reader, with id <= watermark, to
// seen. Reapplying the same watermark is a no-op. A failed update does
// not abort the batch: failures are logged and the notification still
// fires once per participant.
func (p *ReceiptProcessor) MarkRead(ctx context.Context, conversationID, readerID, watermark int64) error {
	messages, err := p.gateway.UnreadBefore(ctx, conversationID, readerID, watermark)
	if err != nil {
		return fmt.Errorf("mark read: list messages for conversation %d: %w", conversationID, err)
	}
	if len(messages) == 0 {
		// Nothing below the watermark is still delivered-unseen, the
		// acknowledgement already happened. Stay silent.
		return nil
	}

	failed := p.updateBatch(ctx, messages)
	if failed > 0 {
		p.log.Warn("Partial read-receipt batch",
			"conversation", conversationID, "failed", failed, "total", len(messages))
	}

	p.notify(ctx, conversationID, readerID, watermark)
	return nil
}

// updateBatch runs the status updates through a bounded worker pool so
// that partial failures stay observable and the batch has a definite
// completion point before notification.
func (p *ReceiptProcessor) updateBatch(ctx context.Context, messages []domain.StoredMessage) int {
	if len(messages) == 0 {
		return 0
	}

	jobs := make(chan domain.StoredMessage, len(messages))
	var wg sync.WaitGroup
	var mu sync.Mutex
	failed := 0

	for i := 0; i < p.numWorkers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for msg := range jobs {
				if !msg.Status.CanTransition(domain.StatusSeen) {
					continue
				}
				if err := p.gateway.UpdateMessageStatus(ctx, msg.ID, domain.StatusSeen); err != nil {
					p.log.Error("Read-receipt update failed", "message", msg.ID, "error", err)
					mu.Lock()
					failed++
					mu.Unlock()
				}
			}
		}()
	}

	for _, msg := range messages {
		jobs <- msg
	}
	close(jobs)
	wg.Wait()
	return failed
}

// notify emits a single readMessages frame per participant connection,
// excluding the reader's own devices.
func (p *ReceiptProcessor) notify(ctx context.Context, conversationID, readerID, watermark int64) {
	conversation, err := p.gateway.FindConversation(ctx, conversationID)
	if err != nil || conversation == nil {
		p.log.Debug(fmt.Sprintf("No conversation %d to notify", conversationID), "error", err)
		return
	}

	others := lo.Filter(conversation.Participants, func(u domain.UserRef, _ int) bool {
		return u.ID != readerID
	})
	conns := lo.Uniq(lo.FlatMap(others, func(u domain.UserRef, _ int) []domain.ConnectionID {
		return p.registry.ConnectionsFor(u.ID)
	}))
	if len(conns) == 0 {
		return
	}

	p.registry.Broadcast(ctx, domain.TargetSet{Connections: conns}, event.Frame{
		Event:   event.ReadMessages,
		Payload: event.ReadPayload{ConversationID: conversationID, MessageID: watermark},
	})
}
