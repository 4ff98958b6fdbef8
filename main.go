package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/SherClockHolmes/webpush-go"
	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"campus-notify-go/internal/bus"
	"campus-notify-go/internal/handlers"
	"campus-notify-go/internal/hub"
	"campus-notify-go/internal/notify"
	"campus-notify-go/internal/store"
)

type config struct {
	Port             string        `env:"PORT" envDefault:"8080"`
	DatabaseURL      string        `env:"DATABASE_URL,required"`
	RedisAddr        string        `env:"REDIS_ADDR" envDefault:"localhost:6379"`
	RedisPassword    string        `env:"REDIS_PASSWORD"`
	RedisDB          int           `env:"REDIS_DB" envDefault:"0"`
	SessionBuffer    int           `env:"SESSION_BUFFER" envDefault:"32"`
	HeartbeatTimeout time.Duration `env:"HEARTBEAT_TIMEOUT" envDefault:"45s"`
	VAPIDPublicKey   string        `env:"VAPID_PUBLIC_KEY"`
	VAPIDPrivateKey  string        `env:"VAPID_PRIVATE_KEY"`
	PushSubscriber   string        `env:"PUSH_SUBSCRIBER" envDefault:"mailto:admin@example.com"`
	Debug            bool          `env:"DEBUG" envDefault:"false"`
}

func main() {
	log := zerolog.New(os.Stdout).With().Timestamp().Logger()

	// Load .env file
	if err := godotenv.Load(); err != nil {
		log.Info().Msg("no .env file found, using environment")
	}

	var cfg config
	if err := env.Parse(&cfg); err != nil {
		log.Fatal().Err(err).Msg("invalid configuration")
	}
	if !cfg.Debug {
		log = log.Level(zerolog.InfoLevel)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Durable notification store (PostgreSQL)
	pgStore, err := store.NewPostgresStore(cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to PostgreSQL")
	}
	defer pgStore.Close()

	if err := pgStore.RunMigrations(ctx); err != nil {
		log.Fatal().Err(err).Msg("failed to run migrations")
	}
	log.Info().Msg("database migrations completed")

	// Event bus (Redis pub/sub)
	eventBus := bus.NewRedisBus(&redis.Options{
		Addr:     cfg.RedisAddr,
		Password: cfg.RedisPassword,
		DB:       cfg.RedisDB,
	}, log)
	defer eventBus.Close()

	// Session connection manager
	sessionHub := hub.NewHub(cfg.SessionBuffer, cfg.HeartbeatTimeout, log)
	defer sessionHub.Close()
	go sessionHub.Run(ctx)
	go func() {
		if err := eventBus.Run(ctx, sessionHub.Deliver); err != nil && ctx.Err() == nil {
			log.Error().Err(err).Msg("bus pump stopped")
		}
	}()

	// Web push offline fallback
	if cfg.VAPIDPrivateKey == "" || cfg.VAPIDPublicKey == "" {
		log.Info().Msg("VAPID keys not configured, generating new keys")
		privateKey, publicKey, err := webpush.GenerateVAPIDKeys()
		if err != nil {
			log.Fatal().Err(err).Msg("failed to generate VAPID keys")
		}
		cfg.VAPIDPrivateKey = privateKey
		cfg.VAPIDPublicKey = publicKey
		log.Info().Str("VAPID_PUBLIC_KEY", publicKey).Str("VAPID_PRIVATE_KEY", privateKey).
			Msg("add these to your .env file to persist them")
	}
	pushSender := notify.NewWebPushSender(pgStore, cfg.VAPIDPublicKey, cfg.VAPIDPrivateKey, cfg.PushSubscriber, log)

	// Publish boundary for the producer modules
	service := notify.NewService(pgStore, eventBus, log,
		notify.WithOfflinePush(sessionHub, pushSender))

	h := handlers.NewHandler(service, sessionHub, pushSender, pgStore, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/api/session", h.BindSessionHandler)
	mux.HandleFunc("/api/notifications", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodGet:
			h.ListNotificationsHandler(w, r)
		case http.MethodPost:
			h.PublishHandler(w, r)
		default:
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		}
	})
	mux.HandleFunc("/api/notifications/unread-count", h.UnreadCountHandler)
	mux.HandleFunc("/api/notifications/read-all", h.MarkAllReadHandler)
	mux.HandleFunc("/api/notifications/", h.MarkReadHandler)
	mux.HandleFunc("/events", h.SSEHandler)
	mux.HandleFunc("/api/push/key", h.GetVAPIDKeyHandler)
	mux.HandleFunc("/api/push/subscribe", h.SubscribePushHandler)
	mux.Handle("/metrics", promhttp.Handler())

	server := &http.Server{
		Addr:    ":" + cfg.Port,
		Handler: mux,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("server shutdown failed")
		}
	}()

	log.Info().Str("port", cfg.Port).Msg("listening")
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		log.Fatal().Err(err).Msg("server failed")
	}
}
