package routing

import (
	"context"
	"log/slog"

	"chat-router/contract"
	"chat-router/domain"
	"chat-router/domain/event"
)

const (
	reasonNoConversation = "No conversation id"
	reasonStoreFailure   = "Couldn't add message to DB."
)

// Outcome is the structured result of one delivery. Nothing in the
// delivery path is allowed to surface as an unhandled fault to the
// transport: every failure ends here or in an "error" frame.
type Outcome struct {
	OK     bool
	Reason string
}

func success() Outcome { return Outcome{OK: true} }
func failure(reason string) Outcome { return Outcome{Reason: reason} }

// Coordinator orchestrates one message delivery: persist, read the
// conversation card, resolve recipients, fan out, confirm to the
// sender. Persistence strictly precedes fanout, an unsaved message is
// never broadcast.
type Coordinator struct {
	gateway  contract.PersistenceGateway
	registry contract.ConnectionRegistry
	resolver *Resolver
	log      *slog.Logger
}

func NewCoordinator(gateway contract.PersistenceGateway, registry contract.ConnectionRegistry,
	resolver *Resolver, log *slog.Logger) *Coordinator {
	return &Coordinator{gateway: gateway, registry: registry, resolver: resolver, log: log}
}

// Deliver runs the delivery pipeline for one envelope and reports the
// outcome to the originating connection. The envelope is not retained
// beyond this call.
func (c *Coordinator) Deliver(ctx context.Context, env *domain.Envelope) (*domain.ConversationCard, Outcome) {
	conversationID, ok := env.To.ConversationID()
	if !ok {
		// Status stays unresolved, no broadcast, no store write.
		outcome := failure(reasonNoConversation)
		c.emitError(ctx, env, outcome)
		return nil, outcome
	}

	messageID, err := c.gateway.CreateMessage(ctx, env.From.ID, conversationID, env.Body.Content)
	if err != nil {
		env.MarkFailed()
		c.log.Error("Message persistence failed", "conversation", conversationID, "error", err)
		outcome := failure(reasonStoreFailure)
		c.emitError(ctx, env, outcome)
		return nil, outcome
	}
	env.MarkDelivered(messageID)

	card := c.readCard(ctx, env, conversationID)

	targets, err := c.resolver.Resolve(ctx, env, c.registry, nil)
	if err != nil {
		// The message is saved, the card is built. A resolution fault
		// degrades to an empty fanout rather than failing the send.
		c.log.Error("Recipient resolution failed", "conversation", conversationID, "error", err)
		targets = domain.TargetSet{}
	}
	env.Targets = targets

	c.broadcast(ctx, env)
	c.confirm(ctx, env, card)
	return card, success()
}

// readCard enriches the confirmation with the conversation read-model.
// A missing conversation is not an error, the enrichment is simply absent.
func (c *Coordinator) readCard(ctx context.Context, env *domain.Envelope, conversationID int64) *domain.ConversationCard {
	conversation, err := c.gateway.FindConversation(ctx, conversationID)
	if err != nil {
		c.log.Warn("Conversation read failed, confirmation fires without card",
			"conversation", conversationID, "error", err)
		return nil
	}
	if conversation == nil {
		return nil
	}
	card := conversation.Card(env.From.ID)
	return &card
}

// broadcast fans the identical payload out on the generic channel, the
// destination-scoped channel and, for direct conversations, the
// self-echo channel.
func (c *Coordinator) broadcast(ctx context.Context, env *domain.Envelope) {
	if env.Targets.Empty() {
		return
	}
	payload := event.NewMessagePayload(env)

	c.registry.Broadcast(ctx, env.Targets, event.Frame{Event: event.Message, Payload: payload})
	c.registry.Broadcast(ctx, env.Targets, event.Frame{
		Event:   event.DestinationChannel(env.To, env.From),
		Payload: payload,
	})
	if echo, ok := event.SelfEchoChannel(env.To); ok {
		c.registry.Broadcast(ctx, env.Targets, event.Frame{Event: echo, Payload: payload})
	}
}

// confirm fires once per successful delivery, never retried, never
// duplicated.
func (c *Coordinator) confirm(ctx context.Context, env *domain.Envelope, card *domain.ConversationCard) {
	c.registry.EmitTo(ctx, env.Origin, event.Frame{
		Event:   event.ConfirmationChannel(env.To),
		Payload: event.ConfirmationPayload{Message: env.Body, Conversation: card},
	})
}

// emitError reports a failed send to the sender only. Other
// participants see nothing for a failed send.
func (c *Coordinator) emitError(ctx context.Context, env *domain.Envelope, outcome Outcome) {
	c.registry.EmitTo(ctx, env.Origin, event.Frame{
		Event:   event.Error,
		Payload: event.ErrorPayload{Message: outcome.Reason},
	})
}
