package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/rs/zerolog"

	"github.com/okultahta/tahta-server/internal/auth"
	"github.com/okultahta/tahta-server/internal/config"
	"github.com/okultahta/tahta-server/internal/core"
	"github.com/okultahta/tahta-server/internal/discovery"
	"github.com/okultahta/tahta-server/internal/realtime/redisrelay"
	"github.com/okultahta/tahta-server/internal/store"
	"github.com/okultahta/tahta-server/internal/store/gormstore"
	"github.com/okultahta/tahta-server/internal/store/sqlite"
	transporthttp "github.com/okultahta/tahta-server/internal/transport/http"
)

// App wires together storage, the hub and the transport layer.
type App struct {
	cfg             *config.Config
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	redis           *redis.Client
	relay           *redisrelay.Relay
	advertiser      *discovery.Advertiser
	log             *zerolog.Logger
}

// OpenStore opens the configured database backend.
func OpenStore(cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case "sqlite", "":
		st, err := sqlite.New(cfg.Path)
		if err != nil {
			return nil, fmt.Errorf("open sqlite: %w", err)
		}
		return st, nil
	case "postgres":
		st, err := gormstore.Open(cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("open postgres: %w", err)
		}
		return st, nil
	default:
		return nil, fmt.Errorf("unknown database driver %q", cfg.Driver)
	}
}

// JWTConfig converts the configured token settings.
func JWTConfig(cfg config.JWTConfig) *auth.JWTConfig {
	return &auth.JWTConfig{
		Secret:   []byte(cfg.Secret),
		Issuer:   cfg.Issuer,
		Audience: cfg.Audience,
		TTL:      cfg.TTL,
	}
}

// New constructs the application with provided configuration.
func New(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	st, err := OpenStore(cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("driver", cfg.Database.Driver).Msg("database initialized")

	a := &App{
		cfg:             cfg,
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		log:             logger,
	}

	opts := []core.Option{core.WithLogger(logger)}
	if cfg.Redis.Addr != "" {
		client, err := redisrelay.NewClient(ctx, redisrelay.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init redis: %w", err)
		}
		a.redis = client

		relay, err := redisrelay.New(ctx, client, cfg.Redis.Channel, logger)
		if err != nil {
			a.cleanup()
			return nil, fmt.Errorf("init relay: %w", err)
		}
		a.relay = relay
		opts = append(opts, core.WithRelay(relay))
		logger.Info().Str("redis", cfg.Redis.Addr).Msg("cross-instance relay enabled")
	}

	authService := auth.NewService(st, JWTConfig(cfg.JWT))
	a.hub = core.NewHub(opts...)
	a.server = transporthttp.NewServer(a.hub, authService, st, cfg, logger)
	return a, nil
}

// Handler exposes the HTTP handler, mainly for tests.
func (a *App) Handler() stdhttp.Handler {
	return a.server.Handler
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	hubCtx, stopHub := context.WithCancel(ctx)
	defer stopHub()
	go a.hub.Run(hubCtx)

	if a.cfg.Discovery.MDNS {
		a.advertise()
	}

	go func() {
		a.log.Info().Str("addr", a.server.Addr).Msg("starting tahta server")
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

func (a *App) advertise() {
	port, err := discovery.PortOf(a.server.Addr)
	if err != nil {
		a.log.Warn().Err(err).Msg("mdns disabled")
		return
	}
	adv, err := discovery.Advertise(a.cfg.Discovery.Instance, port)
	if err != nil {
		a.log.Warn().Err(err).Msg("mdns advertisement failed")
		return
	}
	a.advertiser = adv
	a.log.Info().Int("port", port).Str("service", discovery.ServiceType).Msg("mdns advertisement started")
}

// cleanup closes database and other resources.
func (a *App) cleanup() {
	if a.advertiser != nil {
		if err := a.advertiser.Shutdown(); err != nil {
			a.log.Warn().Err(err).Msg("failed to stop mdns")
		}
	}
	if a.relay != nil {
		if err := a.relay.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close relay")
		}
	}
	if a.redis != nil {
		if err := a.redis.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis")
		}
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close store")
		} else {
			a.log.Info().Msg("store closed")
		}
	}
}
