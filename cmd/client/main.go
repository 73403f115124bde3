package main

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/gookit/color"
	"github.com/gorilla/websocket"
	"github.com/mama165/sdk-go/logs"

	"chat-router/auth"
)

// Exit codes for the client application.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

// Config defines the client-side environment variables.
type Config struct {
	ServerAddress  string `env:"CHAT_SERVER_ADDR,default=localhost:8080"`
	Token          string `env:"CHAT_TOKEN"`
	AuthSecret     string `env:"AUTH_SECRET"`
	UserID         int64  `env:"CHAT_USER_ID,default=1"`
	UserName       string `env:"CHAT_USER_NAME,default=Alice"`
	PeerID         int64  `env:"CHAT_PEER_ID,default=2"`
	ConversationID int64  `env:"CHAT_CONVERSATION_ID,default=1"`
	LogLevel       string `env:"LOG_LEVEL,required=true"`
}

func main() {
	// The main function manages the OS exit code based on run()'s return.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Client error: %v", err)
	}
	os.Exit(code)
}

// run handles the websocket client lifecycle: configuration loading,
// authentication, the receive loop and the stdin send loop.
func run() (int, error) {
	// 1. Load configuration from environment variables.
	var config Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	log := logs.GetLoggerFromString(config.LogLevel)

	// 2. Setup context to handle termination signals (Ctrl+C).
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 3. Without an explicit token, mint one locally from the shared secret.
	token := config.Token
	if token == "" {
		auth.SetSecret(config.AuthSecret)
		var err error
		token, err = auth.GenerateToken(config.UserID, config.UserName, 24*time.Hour)
		if err != nil {
			return exitConfig, fmt.Errorf("token generation: %w", err)
		}
	}

	// 4. Establish the websocket connection.
	u := url.URL{Scheme: "ws", Host: config.ServerAddress, Path: "/ws",
		RawQuery: "token=" + url.QueryEscape(token)}
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return exitRuntime, fmt.Errorf("could not connect to server at %s: %w", config.ServerAddress, err)
	}
	defer func() {
		log.Info("Closing connection...")
		_ = conn.Close()
	}()

	log.Info(fmt.Sprintf(">>> Connected to %s as %s! Type to chat (Ctrl+C to quit)...",
		config.ServerAddress, config.UserName))

	// 5. Reception loop, one goroutine printing every inbound frame.
	received := make(chan struct{})
	go func() {
		defer close(received)
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				if ctx.Err() == nil {
					log.Error("Read failed", "error", err)
				}
				return
			}
			printFrame(data)
		}
	}()

	// 6. Send loop, each stdin line becomes one message to the peer.
	lines := readLines(ctx)
	for {
		select {
		case <-ctx.Done():
			log.Info("Stopping client...")
			return exitOK, nil
		case <-received:
			return exitRuntime, fmt.Errorf("server closed the connection")
		case line, ok := <-lines:
			if !ok {
				return exitOK, nil
			}
			frame := map[string]any{
				"action":         "send",
				"kind":           "user",
				"childId":        config.PeerID,
				"conversationId": config.ConversationID,
				"content":        line,
			}
			data, err := json.Marshal(frame)
			if err != nil {
				return exitRuntime, err
			}
			if err := conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return exitRuntime, fmt.Errorf("write failed: %w", err)
			}
		}
	}
}

// readLines pumps stdin lines into a channel so the select loop can
// also react to signals.
func readLines(ctx context.Context) <-chan string {
	lines := make(chan string)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(os.Stdin)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
	}()
	return lines
}

// printFrame renders one inbound frame, event name highlighted.
func printFrame(data []byte) {
	var frame struct {
		Event   string          `json:"event"`
		Payload json.RawMessage `json:"payload"`
	}
	if err := json.Unmarshal(data, &frame); err != nil {
		fmt.Println(string(data))
		return
	}

	label := color.New(color.FgGreen).Render(frame.Event)
	if frame.Event == "error" {
		label = color.New(color.FgRed).Render(frame.Event)
	}
	fmt.Printf("[%s] [%s] %s\n", time.Now().Format(time.TimeOnly), label, string(frame.Payload))
}
