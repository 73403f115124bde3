package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/Netflix/go-env"
	"github.com/dgraph-io/badger/v4"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"
	"github.com/mama165/sdk-go/logs"

	"chat-router/auth"
	"chat-router/contract"
	"chat-router/domain"
	routererrors "chat-router/errors"
	"chat-router/internal"
	"chat-router/moderation"
	"chat-router/observability"
	"chat-router/repositories"
	"chat-router/routing"
	"chat-router/routing/workers"
	"chat-router/services"
	"chat-router/transport/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Fatal error: %v\n", err)
		os.Exit(1)
	}
}

// run initializes all components, manages the server lifecycle, and centralizes error reporting.
// Returning instead of os.Exit keeps defers (database cleanup) running on the way out.
func run() error {
	_ = godotenv.Load()

	var config internal.Config
	if _, err := env.UnmarshalFromEnviron(&config); err != nil {
		return fmt.Errorf("config error: %w", err)
	}
	log := logs.GetLoggerFromString(config.LogLevel)
	auth.SetSecret(config.AuthSecret)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Persistence backend selection
	var gateway contract.PersistenceGateway
	var history services.HistoryReader
	switch config.StoreKind {
	case "badger":
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.INFO))
		if err != nil {
			return fmt.Errorf("database opening failed: %w", err)
		}
		defer func() {
			log.Info("Closing BadgerDB...")
			_ = db.Close()
		}()
		badgerGateway, err := repositories.NewBadgerGateway(db, log, config.LimitMessages)
		if err != nil {
			return err
		}
		defer badgerGateway.Close()
		gateway, history = badgerGateway, badgerGateway
	case "postgres":
		pool, err := pgxpool.New(ctx, config.PostgresDSN)
		if err != nil {
			return fmt.Errorf("postgres pool: %w", err)
		}
		defer pool.Close()
		pgGateway := repositories.NewPostgresGateway(pool, log, config.LimitMessages)
		gateway, history = pgGateway, pgGateway
	default:
		return fmt.Errorf("%w: %s", routererrors.ErrUnsupportedStoreKind, config.StoreKind)
	}

	if config.Seed {
		if err := seedDemo(ctx, gateway); err != nil {
			return fmt.Errorf("seed: %w", err)
		}
		log.Info("Seeded demo users and conversation")
	}

	// Routing core
	registry := routing.NewRegistry(log)
	resolver := routing.NewResolver(gateway, log)
	coordinator := routing.NewCoordinator(gateway, registry, resolver, log)
	receipts := routing.NewReceiptProcessor(gateway, registry, log, config.ReceiptWorkers)

	moderator, err := loadModerator(config)
	if err != nil {
		return err
	}
	service := services.NewMessagingService(coordinator, receipts, history, moderator, log)

	// Supervised background workers
	sup := workers.NewSupervisor(log, config.RestartInterval)
	sup.Add(workers.NewHealthMonitorWorker(log, config.HealthInterval))
	go sup.Run(ctx)

	// HTTP surface: websocket upgrade + liveness + monitoring
	monitor := observability.NewMonitor(log)
	handler := ws.NewHandler(service, registry, monitor, log, config.ConnectionBufferSize)
	router := gin.New()
	router.Use(gin.Recovery())
	router.GET("/ws", handler.HandleConnect)
	router.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	router.GET("/statz", func(c *gin.Context) {
		c.JSON(http.StatusOK, monitor.Snapshot())
	})
	if config.Seed {
		// Demo-only token minting, the seeded users have no other way in
		router.POST("/token", func(c *gin.Context) {
			var body struct {
				UserID   int64  `json:"userId" binding:"required"`
				UserName string `json:"userName" binding:"required"`
			}
			if err := c.ShouldBindJSON(&body); err != nil {
				c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
				return
			}
			token, err := auth.GenerateToken(body.UserID, body.UserName, config.AuthTokenDuration)
			if err != nil {
				c.JSON(http.StatusInternalServerError, gin.H{"error": "token generation failed"})
				return
			}
			c.JSON(http.StatusOK, gin.H{"token": token})
		})
	}

	address := fmt.Sprintf("%s:%d", config.Host, config.Port)
	server := &http.Server{Addr: address, Handler: router}

	errChan := make(chan error, 1)
	go func() {
		log.Info("Starting server", "address", address, "at", time.Now().UTC())
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		log.Info("Shutting down gracefully...")
	case err := <-errChan:
		return err
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	_ = server.Shutdown(shutdownCtx)
	sup.Stop()
	log.Info("Program stopped cleanly")

	return nil
}

// directorySeeder is the optional slice of a gateway that can register
// users and conversations directly, without an outer admin surface.
type directorySeeder interface {
	PutUser(ctx context.Context, user domain.UserRef) error
	CreateConversation(ctx context.Context, conversation domain.Conversation) error
}

// seedDemo registers two users sharing conversation 1. Intended for
// local runs and the end to end suite, never for production stores.
func seedDemo(ctx context.Context, gateway contract.PersistenceGateway) error {
	seeder, ok := gateway.(directorySeeder)
	if !ok {
		return fmt.Errorf("store does not support seeding")
	}
	alice := domain.UserRef{ID: 1, Name: "Alice"}
	bob := domain.UserRef{ID: 2, Name: "Bob"}
	for _, user := range []domain.UserRef{alice, bob} {
		if err := seeder.PutUser(ctx, user); err != nil {
			return err
		}
	}
	return seeder.CreateConversation(ctx, domain.Conversation{
		ID:           1,
		Participants: []domain.UserRef{alice, bob},
	})
}

// loadModerator builds the censor pass from the configured word list.
// No file configured means no moderation.
func loadModerator(config internal.Config) (*moderation.Moderator, error) {
	if config.CensoredWordsFile == "" {
		return nil, nil
	}
	replacement, err := internal.CharacterRune(config.ModerationCharReplacement)
	if err != nil {
		return nil, err
	}
	raw, err := os.ReadFile(config.CensoredWordsFile)
	if err != nil {
		return nil, fmt.Errorf("censored words: %w", err)
	}
	return moderation.NewModerator(strings.Split(string(raw), "\n"), replacement)
}
