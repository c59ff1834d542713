package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/kinchat-server/internal/auth"
	"github.com/vovakirdan/kinchat-server/internal/config"
	"github.com/vovakirdan/kinchat-server/internal/core"
	"github.com/vovakirdan/kinchat-server/internal/service/friends"
	"github.com/vovakirdan/kinchat-server/internal/service/messages"
	"github.com/vovakirdan/kinchat-server/internal/store"
	"github.com/vovakirdan/kinchat-server/internal/store/mongo"
	"github.com/vovakirdan/kinchat-server/internal/store/redis"
	"github.com/vovakirdan/kinchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/kinchat-server/internal/transport/http"
)

const backendConnectTimeout = 10 * time.Second

type closer struct {
	name  string
	close func() error
}

// App wires together core and transport layers.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	closers         []closer
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	a := &App{shutdownTimeout: cfg.ShutdownTimeout, log: logger}

	st, err := sqlite.New(cfg.Store.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	a.closers = append(a.closers, closer{name: "sqlite", close: st.Close})
	logger.Info().Str("db_path", cfg.Store.DatabasePath).Msg("database initialized")

	messageStore, err := a.openMessageStore(ctx, cfg.Store, st)
	if err != nil {
		a.cleanup()
		return nil, err
	}
	lastSeen, err := a.openLastSeenStore(ctx, cfg.Presence, st)
	if err != nil {
		a.cleanup()
		return nil, err
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWT.Secret),
		Issuer:   cfg.JWT.Issuer,
		Audience: cfg.JWT.Audience,
		TTL:      cfg.JWT.TTL,
	})
	friendsService := friends.New(st, friends.WithFriendsOnly(cfg.Messaging.FriendsOnly))

	a.hub = core.NewHub(messageStore, core.Options{
		Policy:         friendsService,
		LastSeen:       lastSeen,
		TypingTimeout:  cfg.Presence.TypingTimeout,
		MaxTextLength:  cfg.Messaging.MaxTextLength,
		PersistTimeout: cfg.Messaging.PersistTimeout,
		Logger:         logger,
	})

	a.server = transporthttp.NewServer(transporthttp.Deps{
		Hub:      a.hub,
		Auth:     authService,
		Users:    st,
		LastSeen: lastSeen,
		Friends:  friendsService,
		Messages: messages.New(messageStore),
	}, cfg, logger)

	return a, nil
}

func (a *App) openMessageStore(ctx context.Context, cfg config.StoreConfig, fallback store.MessageStore) (store.MessageStore, error) {
	if cfg.MessagesDriver != config.DriverMongo {
		return fallback, nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, backendConnectTimeout)
	defer cancel()

	ms, err := mongo.New(connectCtx, cfg.MongoURI, cfg.MongoDatabase)
	if err != nil {
		return nil, fmt.Errorf("init mongo message store: %w", err)
	}
	a.closers = append(a.closers, closer{name: "mongo", close: ms.Close})
	a.log.Info().Str("database", cfg.MongoDatabase).Msg("messages stored in mongo")
	return ms, nil
}

func (a *App) openLastSeenStore(ctx context.Context, cfg config.PresenceConfig, fallback store.LastSeenStore) (store.LastSeenStore, error) {
	if cfg.LastSeenBackend != config.BackendRedis {
		return fallback, nil
	}
	connectCtx, cancel := context.WithTimeout(ctx, backendConnectTimeout)
	defer cancel()

	ls, err := redis.NewLastSeenStore(connectCtx, cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("init redis last seen store: %w", err)
	}
	a.closers = append(a.closers, closer{name: "redis", close: ls.Close})
	a.log.Info().Msg("last seen stored in redis")
	return ls, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("http server listening")
		if err := a.server.ListenAndServe(); err != nil && !errors.Is(err, stdhttp.ErrServerClosed) {
			serverErr <- err
			return
		}
		serverErr <- nil
	}()

	select {
	case err := <-serverErr:
		a.cleanup()
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), a.shutdownTimeout)
		defer cancel()

		a.log.Info().Msg("shutting down http server")
		if err := a.server.Shutdown(shutdownCtx); err != nil {
			a.cleanup()
			return err
		}

		a.cleanup()
		return <-serverErr
	}
}

// cleanup closes the stores in reverse order of opening.
func (a *App) cleanup() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		c := a.closers[i]
		if err := c.close(); err != nil {
			a.log.Warn().Err(err).Str("store", c.name).Msg("failed to close store")
		} else {
			a.log.Info().Str("store", c.name).Msg("store closed")
		}
	}
	a.closers = nil
}
