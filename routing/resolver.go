package routing

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/samber/lo"

	"chat-router/contract"
	"chat-router/domain"
	"chat-router/errors"
)

// Resolver computes the fanout target set for a logical destination.
// Room destinations resolve structurally to a channel token; the
// transport's own subscriptions decide the actual recipients. Direct
// conversations resolve to the other participants' connections plus the
// sender's own other devices.
type Resolver struct {
	gateway contract.PersistenceGateway
	log     *slog.Logger
}

func NewResolver(gateway contract.PersistenceGateway, log *slog.Logger) *Resolver {
	return &Resolver{gateway: gateway, log: log}
}

// Resolve reads the live connection map exactly once per call. The
// result must never be cached across requests: connect/disconnect can
// change the map between two sends.
//
// An unknown conversation yields an empty target set, not an error.
// Broadcast degrades to a no-op while persistence and confirmation
// still run.
func (r *Resolver) Resolve(ctx context.Context, env *domain.Envelope,
	lookup contract.ConnectionLookup, explicitUserIDs []int64) (domain.TargetSet, error) {

	if len(explicitUserIDs) > 0 {
		return domain.TargetSet{Connections: r.flatten(lookup, explicitUserIDs, env.Origin)}, nil
	}

	switch env.To.Kind {
	case domain.KindRoom:
		return domain.TargetSet{Channel: env.To.RoomChannel()}, nil
	case domain.KindUser:
		return r.resolveConversation(ctx, env, lookup)
	default:
		return domain.TargetSet{}, fmt.Errorf("resolve kind %q: %w", env.To.Kind, errors.ErrUnknownDestination)
	}
}

func (r *Resolver) resolveConversation(ctx context.Context, env *domain.Envelope,
	lookup contract.ConnectionLookup) (domain.TargetSet, error) {

	conversationID, ok := env.To.ConversationID()
	if !ok {
		return domain.TargetSet{}, nil
	}

	conversation, err := r.gateway.FindConversation(ctx, conversationID)
	if err != nil {
		return domain.TargetSet{}, fmt.Errorf("resolve conversation %d: %w", conversationID, err)
	}
	if conversation == nil {
		r.log.Debug(fmt.Sprintf("Conversation %d doesn't exist, empty target set", conversationID))
		return domain.TargetSet{}, nil
	}

	// Recipients are every other participant's connections, plus the
	// sender's other logged-in devices (multi-device echo). The
	// originating connection is excluded exactly once.
	ids := lo.Map(conversation.Participants, func(p domain.UserRef, _ int) int64 { return p.ID })
	if !lo.Contains(ids, env.From.ID) {
		ids = append(ids, env.From.ID)
	}
	return domain.TargetSet{Connections: r.flatten(lookup, ids, env.Origin)}, nil
}

// flatten expands each user id to its live connections, skipping users
// with none and dropping the originating connection. No error for a
// partial result: fewer targets is a degraded delivery, not a failure.
func (r *Resolver) flatten(lookup contract.ConnectionLookup, userIDs []int64,
	origin domain.ConnectionID) []domain.ConnectionID {

	conns := lo.FlatMap(lo.Uniq(userIDs), func(id int64, _ int) []domain.ConnectionID {
		return lookup.ConnectionsFor(id)
	})
	return lo.Filter(lo.Uniq(conns), func(c domain.ConnectionID, _ int) bool {
		return c != origin
	})
}
