package ws

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"chat-router/auth"
	"chat-router/domain"
	"chat-router/domain/event"
	"chat-router/observability"
	"chat-router/routing"
	"chat-router/services"
)

var upgrader = websocket.Upgrader{
	CheckOrigin: func(r *http.Request) bool {
		return true // origin checking belongs to the deployment in front
	},
}

// inboundFrame is the client-to-server frame. Action selects the shape,
// unused fields stay zero.
type inboundFrame struct {
	Action         string                 `json:"action"`
	Kind           domain.DestinationKind `json:"kind,omitempty"`
	ChildID        int64                  `json:"childId,omitempty"`
	ConversationID *int64                 `json:"conversationId,omitempty"`
	MessageKind    domain.MessageKind     `json:"messageKind,omitempty"`
	Content        string                 `json:"content,omitempty"`
	MessageID      int64                  `json:"messageId,omitempty"`
	RoomID         int64                  `json:"roomId,omitempty"`
	Cursor         *string                `json:"cursor,omitempty"`
}

const (
	actionSend     = "send"
	actionMarkRead = "markRead"
	actionJoin     = "join"
	actionLeave    = "leave"
	actionHistory  = "history"
)

// Handler upgrades authenticated requests to websocket connections and
// bridges inbound frames to the messaging service.
type Handler struct {
	service    services.IMessagingService
	registry   *routing.Registry
	monitor    *observability.Monitor
	log        *slog.Logger
	bufferSize int
}

func NewHandler(service services.IMessagingService, registry *routing.Registry,
	monitor *observability.Monitor, log *slog.Logger, bufferSize int) *Handler {
	return &Handler{service: service, registry: registry, monitor: monitor, log: log, bufferSize: bufferSize}
}

// HandleConnect authenticates via the token query parameter, registers
// the connection and runs the read pump until the peer goes away.
func (h *Handler) HandleConnect(c *gin.Context) {
	claims, err := auth.ValidateToken(c.Query("token"))
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	user := domain.UserRef{ID: claims.UserID, Name: claims.UserName}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Error("Failed to upgrade connection", "error", err)
		return
	}

	client := NewClient(domain.ConnectionID(uuid.NewString()), user, conn, h.bufferSize, h.log)
	h.registry.Connect(user.ID, client.ID, client)
	h.monitor.ConnectionOpened()
	h.log.Info("Connection opened", "user", user.ID, "connection", client.ID)

	// Deferred so the teardown also runs when a panic unwinds through
	// dispatch, otherwise the sink would stay registered forever.
	defer func() {
		h.registry.Disconnect(user.ID, client.ID)
		client.Close()
		h.monitor.ConnectionClosed()
		h.log.Info("Connection closed", "user", user.ID, "connection", client.ID)
	}()

	go client.WritePump()
	client.ReadPump(c.Request.Context(), h.dispatch)
}

// dispatch routes one inbound frame. Every failure path ends in an
// error frame to this connection, nothing escapes to the transport.
func (h *Handler) dispatch(ctx context.Context, client *Client, data []byte) {
	h.monitor.FrameReceived()

	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		h.emitError(ctx, client, "malformed frame")
		return
	}

	switch frame.Action {
	case actionSend:
		result, err := h.service.SendMessage(ctx, client.User, client.ID, services.SendRequest{
			Kind:           frame.Kind,
			ChildID:        frame.ChildID,
			ConversationID: frame.ConversationID,
			MessageKind:    frame.MessageKind,
			Content:        frame.Content,
		})
		if err != nil {
			h.emitError(ctx, client, err.Error())
			return
		}
		if !result.Outcome.OK {
			h.log.Debug(fmt.Sprintf("Send failed : %s", result.Outcome.Reason), "user", client.User.ID)
		}
	case actionMarkRead:
		err := h.service.MarkRead(ctx, client.User.ID, services.MarkReadRequest{
			ConversationID: orZero(frame.ConversationID),
			MessageID:      frame.MessageID,
		})
		if err != nil {
			h.emitError(ctx, client, err.Error())
		}
	case actionJoin:
		h.registry.JoinChannel(fmt.Sprintf("room%d", frame.RoomID), client.ID)
	case actionLeave:
		h.registry.LeaveChannel(fmt.Sprintf("room%d", frame.RoomID), client.ID)
	case actionHistory:
		messages, cursor, err := h.service.History(ctx, services.HistoryRequest{
			ConversationID: orZero(frame.ConversationID),
			Cursor:         frame.Cursor,
		})
		if err != nil {
			h.emitError(ctx, client, err.Error())
			return
		}
		_ = client.Consume(ctx, event.Frame{Event: "history", Payload: gin.H{
			"messages": messages,
			"cursor":   cursor,
		}})
	default:
		h.emitError(ctx, client, fmt.Sprintf("unknown action %q", frame.Action))
	}
}

func (h *Handler) emitError(ctx context.Context, client *Client, reason string) {
	h.monitor.ErrorEmitted()
	_ = client.Consume(ctx, event.Frame{Event: event.Error, Payload: event.ErrorPayload{Message: reason}})
}

func orZero(v *int64) int64 {
	if v == nil {
		return 0
	}
	return *v
}
