package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"google.golang.org/api/option"

	fbapp "firebase.google.com/go/v4"

	"adchat/internal/adapter/api"
	"adchat/internal/adapter/api/handler"
	apimiddleware "adchat/internal/adapter/api/middleware"
	"adchat/internal/adapter/api/router"
	"adchat/internal/adapter/repository"
	"adchat/internal/adapter/repository/memory"
	domainrepo "adchat/internal/domain/repository"
	"adchat/internal/fanout"
	"adchat/internal/infrastructure/firebase"
	"adchat/internal/infrastructure/ratelimit"
	"adchat/internal/infrastructure/storage"
	"adchat/internal/infrastructure/websocket"
	"adchat/internal/usecase"
	"adchat/pkg/config"
	"adchat/pkg/logger"
)

type stores struct {
	threads   domainrepo.ThreadRepository
	index     domainrepo.IndexRepository
	messages  domainrepo.MessageRepository
	presence  domainrepo.PresenceRepository
	tickets   domainrepo.TicketRepository
	committer fanout.Committer
}

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var opts []option.ClientOption
	if cfg.FirebaseServiceAccountJSON != "" {
		log.Printf("Using Firebase service account from environment variable")
		opts = append(opts, option.WithCredentialsJSON([]byte(cfg.FirebaseServiceAccountJSON)))
	} else if cfg.FirebaseServiceAccountPath != "" {
		if _, err := os.Stat(cfg.FirebaseServiceAccountPath); os.IsNotExist(err) {
			log.Fatalf("Service account file does not exist: %s", cfg.FirebaseServiceAccountPath)
		}
		log.Printf("Using Firebase service account from file: %s", cfg.FirebaseServiceAccountPath)
		opts = append(opts, option.WithCredentialsFile(cfg.FirebaseServiceAccountPath))
	}

	var firebaseApp *fbapp.App
	if cfg.UsesFirebase() {
		firebaseApp, err = fbapp.NewApp(ctx, &fbapp.Config{ProjectID: cfg.FirebaseProject}, opts...)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase: %v", err)
		}
	}

	var st stores
	switch cfg.StoreBackend {
	case config.BackendMemory:
		logger.Warn("Using in-memory store; data is lost on restart")
		store := memory.New()
		st = stores{
			threads:   store.Threads(),
			index:     store.Index(),
			messages:  store.Messages(),
			presence:  store.Presence(),
			tickets:   store.Tickets(),
			committer: store,
		}

	case config.BackendFirestore:
		firestoreClient, err := firestore.NewClient(ctx, cfg.FirebaseProject, opts...)
		if err != nil {
			log.Fatalf("Failed to create Firestore client: %v", err)
		}
		defer firestoreClient.Close()

		st = stores{
			threads:   repository.NewFirestoreThreadRepository(firestoreClient),
			index:     repository.NewFirestoreIndexRepository(firestoreClient),
			messages:  repository.NewFirestoreMessageRepository(firestoreClient),
			presence:  repository.NewFirestorePresenceRepository(firestoreClient),
			tickets:   repository.NewFirestoreTicketRepository(firestoreClient),
			committer: repository.NewFirestoreCommitter(firestoreClient),
		}

	default:
		log.Fatalf("Unknown STORE_BACKEND %q", cfg.StoreBackend)
	}

	switch cfg.PresenceBackend {
	case config.BackendStore:
	case config.BackendRedis:
		redisClient, err := repository.NewRedisClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("Failed to configure Redis: %v", err)
		}
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			log.Fatalf("Failed to connect to Redis at %s: %v", cfg.RedisURL, err)
		}
		st.presence = repository.NewRedisPresenceRepository(redisClient, cfg.PresenceStaleAfter)

	default:
		log.Fatalf("Unknown PRESENCE_BACKEND %q", cfg.PresenceBackend)
	}

	switch cfg.TicketStore {
	case config.BackendStore:
	case config.BackendPostgres, config.BackendMySQL:
		db, err := repository.OpenTicketDB(cfg.TicketStore, cfg.TicketDBDSN)
		if err != nil {
			log.Fatalf("Failed to open ticket database: %v", err)
		}
		st.tickets = repository.NewGormTicketRepository(db)

	default:
		log.Fatalf("Unknown TICKET_STORE %q", cfg.TicketStore)
	}

	rateLimiter := ratelimit.NewRateLimiter()
	rateLimiter.StartCleanupRoutine(ctx.Done())

	writer := fanout.NewWriter(st.committer)
	threadUseCase := usecase.NewThreadUseCase(st.threads, st.index, st.messages, writer).
		WithRateLimiter(rateLimiter).
		WithCascadeDelete(cfg.CascadeDeleteMessages)
	messageUseCase := usecase.NewMessageUseCase(st.threads, st.messages, writer).
		WithRateLimiter(rateLimiter)
	presenceUseCase := usecase.NewPresenceUseCase(st.presence, cfg.PresenceStaleAfter)
	ticketUseCase := usecase.NewTicketUseCase(st.tickets, threadUseCase, messageUseCase, usecase.SupportAgent{
		ID:   cfg.SupportAgentID,
		Name: cfg.SupportAgentName,
	}).WithRateLimiter(rateLimiter)

	var (
		verifier apimiddleware.TokenVerifier
		profiles handler.ProfileLookup
	)
	switch cfg.AuthMode {
	case config.AuthModeFirebase:
		authClient, err := firebaseApp.Auth(ctx)
		if err != nil {
			log.Fatalf("Failed to initialize Firebase Auth: %v", err)
		}
		firebaseAuthClient := firebase.NewFirebaseAuthClient(authClient)
		verifier = firebaseAuthClient
		profiles = firebaseAuthClient

	case config.AuthModeHeader:
		logger.Warn("AUTH_MODE=header: trusting %s from the gateway", apimiddleware.UserIDHeader)

	default:
		log.Fatalf("Unknown AUTH_MODE %q", cfg.AuthMode)
	}

	authMiddleware := apimiddleware.NewAuthMiddleware(verifier)
	supportMiddleware := apimiddleware.NewSupportMiddleware(cfg.SupportAgentIDs)

	handler.Setup(threadUseCase, messageUseCase, presenceUseCase, ticketUseCase, supportMiddleware, profiles)

	e := echo.New()

	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())

	e.Validator = api.NewValidator()

	router.Setup(e, authMiddleware, supportMiddleware)

	if cfg.StorageBucket != "" {
		storageClient, err := storage.NewCloudStorageClient(ctx, cfg.StorageBucket, opts...)
		if err != nil {
			log.Fatalf("Failed to initialize Cloud Storage: %v", err)
		}
		defer storageClient.Close()

		handler.GetThreadHandler().WithFileService(storageClient)
		fileHandler := handler.NewFileHandler(storageClient, threadUseCase, cfg.MaxUploadBytes)
		router.SetupFileRouter(e, fileHandler, authMiddleware, rateLimiter)
	} else {
		logger.Info("STORAGE_BUCKET not set; attachment uploads are disabled")
	}

	wsManager := websocket.NewManager(threadUseCase, messageUseCase, presenceUseCase).
		WithHeartbeat(cfg.PresenceHeartbeat)
	wsManager.Start(ctx)
	wsHandler := handler.NewWebSocketHandler(wsManager, authMiddleware, cfg.AllowedOrigins)
	router.SetupWebSocketRouter(e, wsHandler)

	go func() {
		log.Printf("Starting server on port %s...", cfg.ServerPort)
		if err := e.Start(":" + cfg.ServerPort); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server stopped: %v", err)
		}
	}()

	<-ctx.Done()
	log.Printf("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		log.Printf("Shutdown error: %v", err)
	}
}
