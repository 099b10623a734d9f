package main

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"jamiah-chat/internal/config"
	"jamiah-chat/internal/event"
	"jamiah-chat/internal/httpserver"
	"jamiah-chat/internal/queue/adapter"
	"jamiah-chat/internal/queue/port"
	"jamiah-chat/internal/queue/task"
	"jamiah-chat/internal/security"
	"jamiah-chat/internal/store"
	"jamiah-chat/internal/store/postgres"
	"jamiah-chat/internal/store/sqlite"
	"jamiah-chat/internal/ws"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Initialize database
	var (
		db    *sql.DB
		repos store.Repos
	)
	switch cfg.DBDriver {
	case "postgres":
		db, err = postgres.Open(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		if err := postgres.Migrate(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		repos = store.NewPostgresRepos(db)
	default:
		db, err = sqlite.Open(cfg.SQLitePath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		if err := sqlite.Migrate(db); err != nil {
			log.Fatalf("failed to run migrations: %v", err)
		}
		repos = store.NewSQLiteRepos(db)
	}
	defer db.Close()

	// Event bus: NATS when configured, in-process otherwise
	var bus event.Bus
	if cfg.NATSURL != "" {
		bus, err = event.ConnectNATS(cfg.NATSURL)
		if err != nil {
			log.Fatalf("failed to connect to NATS: %v", err)
		}
	} else {
		bus = event.NewMemoryBus()
	}
	defer bus.Close()

	// Background queue: only when Redis is configured; preview updates run
	// inline without it
	workerCtx, stopWorker := context.WithCancel(context.Background())
	defer stopWorker()

	var queueClient port.Client
	if cfg.RedisURL != "" {
		client, err := adapter.NewAsynqClient(cfg.RedisURL)
		if err != nil {
			log.Fatalf("failed to create queue client: %v", err)
		}
		defer client.Close()
		queueClient = client

		worker, err := adapter.NewAsynqServer(cfg.RedisURL, cfg.WorkerConcurrency)
		if err != nil {
			log.Fatalf("failed to create queue worker: %v", err)
		}
		task.RegisterUpdatePreviewTask(worker, repos.Conversations, bus)
		go func() {
			if err := worker.Run(workerCtx); err != nil {
				log.Printf("queue worker stopped: %v", err)
			}
		}()
	}

	// Security components
	tokenSvc := security.NewTokenService(cfg.JWTSecret, time.Duration(cfg.AccessTokenMinutes)*time.Minute)
	passwordHasher := security.NewPasswordHasher(0)

	encryptor, err := security.NewEncryptor([]byte(cfg.EncryptKey))
	if err != nil {
		log.Fatalf("failed to initialize encryptor: %v", err)
	}

	// Initialize WebSocket hub
	hub := ws.NewHub()

	// Build HTTP router
	router := httpserver.NewRouter(cfg, repos, hub, tokenSvc, passwordHasher, encryptor, bus, queueClient)

	srv := &http.Server{
		Addr:         cfg.HTTPAddr(),
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	go func() {
		log.Printf("Starting Jamiah Chat server on %s\n", cfg.HTTPAddr())
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("server error: %v", err)
		}
	}()

	// Graceful shutdown
	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop

	log.Println("Shutting down server...")
	stopWorker()
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		log.Printf("graceful shutdown failed: %v", err)
	}
}
