package ws

import (
	"context"
	"log/slog"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"chat-router/auth"
	"chat-router/domain"
	mocks "chat-router/mocks/servicemocks"
	"chat-router/observability"
	"chat-router/routing"
	"chat-router/services"
)

func TestHandler_Teardown_Runs_When_Dispatch_Panics(t *testing.T) {
	req := require.New(t)
	ctrl := gomock.NewController(t)
	log := slog.Default()

	// Given a service that blows up mid-delivery
	service := mocks.NewMockIMessagingService(ctrl)
	service.EXPECT().SendMessage(gomock.Any(), gomock.Any(), gomock.Any(), gomock.Any()).
		DoAndReturn(func(context.Context, domain.UserRef, domain.ConnectionID, services.SendRequest) (services.SendResult, error) {
			panic("store unavailable")
		})

	registry := routing.NewRegistry(log)
	monitor := observability.NewMonitor(log)
	handler := NewHandler(service, registry, monitor, log, 8)

	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/ws", handler.HandleConnect)
	server := httptest.NewServer(router)
	defer server.Close()

	token, err := auth.GenerateToken(1, "Alice", time.Minute)
	req.NoError(err)
	peer, _, err := websocket.DefaultDialer.Dial(
		"ws"+strings.TrimPrefix(server.URL, "http")+"/ws?token="+token, nil)
	req.NoError(err)
	defer peer.Close()

	req.Eventually(func() bool {
		return len(registry.ConnectionsFor(1)) == 1
	}, time.Second, 10*time.Millisecond)

	// When the inbound frame triggers the panic
	frame := []byte(`{"action":"send","kind":"user","childId":2,"content":"hi"}`)
	req.NoError(peer.WriteMessage(websocket.TextMessage, frame))

	// Then the connection is deregistered and the gauge settles even
	// though the panic unwound past the read loop
	req.Eventually(func() bool {
		return len(registry.ConnectionsFor(1)) == 0
	}, time.Second, 10*time.Millisecond)
	req.Eventually(func() bool {
		return monitor.Snapshot().ConnectionsOpen == 0
	}, time.Second, 10*time.Millisecond)
}
