package app

import (
	"context"
	"errors"
	"fmt"
	stdhttp "net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/vovakirdan/socialchat-server/internal/auth"
	"github.com/vovakirdan/socialchat-server/internal/config"
	"github.com/vovakirdan/socialchat-server/internal/core"
	kafkaexport "github.com/vovakirdan/socialchat-server/internal/export/kafka"
	"github.com/vovakirdan/socialchat-server/internal/media"
	"github.com/vovakirdan/socialchat-server/internal/presence/redismirror"
	"github.com/vovakirdan/socialchat-server/internal/pubsub"
	"github.com/vovakirdan/socialchat-server/internal/service/follows"
	"github.com/vovakirdan/socialchat-server/internal/service/messages"
	"github.com/vovakirdan/socialchat-server/internal/store"
	"github.com/vovakirdan/socialchat-server/internal/store/sqlite"
	transporthttp "github.com/vovakirdan/socialchat-server/internal/transport/http"
)

const redisPingTimeout = 3 * time.Second

// App wires together storage, the hub, services and the HTTP transport.
type App struct {
	server          *stdhttp.Server
	shutdownTimeout time.Duration
	hub             *core.Hub
	store           store.Store
	bus             *pubsub.WatermillBridge
	mirror          *redismirror.Mirror
	exporter        *kafkaexport.Exporter
	log             *zerolog.Logger
}

// New constructs the application with provided configuration.
func New(cfg *config.Config, logger *zerolog.Logger) (*App, error) {
	st, err := sqlite.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("init store: %w", err)
	}
	logger.Info().Str("db_path", cfg.DatabasePath).Msg("database initialized")

	mediaStore, err := media.NewDirStore(cfg.MediaDir, cfg.MaxAttachmentBytes)
	if err != nil {
		_ = st.Close()
		return nil, fmt.Errorf("init media: %w", err)
	}
	logger.Info().Str("media_dir", cfg.MediaDir).Msg("media storage initialized")

	a := &App{
		shutdownTimeout: cfg.ShutdownTimeout,
		store:           st,
		bus:             pubsub.NewWatermillBridge(logger),
		log:             logger,
	}

	var hubOpts []core.Option
	if cfg.RedisAddr != "" {
		a.mirror = redismirror.New(cfg.RedisAddr, cfg.RedisPresenceKey)
		pingCtx, cancel := context.WithTimeout(context.Background(), redisPingTimeout)
		if err := a.mirror.Ping(pingCtx); err != nil {
			// The sink retries on every presence change.
			logger.Warn().Err(err).Str("redis_addr", cfg.RedisAddr).Msg("redis unreachable, presence mirror will retry")
		}
		cancel()
		hubOpts = append(hubOpts, core.WithPresenceSink(a.mirror))
		logger.Info().Str("redis_addr", cfg.RedisAddr).Str("key", a.mirror.Key()).Msg("presence mirror enabled")
	}

	if len(cfg.KafkaBrokers) > 0 {
		a.exporter = kafkaexport.New(kafkaexport.NewWriter(cfg.KafkaBrokers, cfg.KafkaTopic), logger)
		logger.Info().Strs("brokers", cfg.KafkaBrokers).Str("topic", cfg.KafkaTopic).Msg("kafka export enabled")
	}

	authService := auth.NewService(st, &auth.JWTConfig{
		Secret:   []byte(cfg.JWTSecret),
		Issuer:   cfg.JWTIssuer,
		Audience: cfg.JWTAudience,
		TTL:      cfg.JWTTTL,
	})

	a.hub = core.NewHub(logger, hubOpts...)
	followService := follows.New(st)
	messageService := messages.New(st, mediaStore, a.hub, followService, logger,
		messages.WithPublisher(a.bus),
		messages.WithMaxAttachments(cfg.MaxAttachments),
	)

	a.server = transporthttp.NewServer(transporthttp.Deps{
		Hub:      a.hub,
		Auth:     authService,
		Store:    st,
		Follows:  followService,
		Messages: messageService,
		Media:    mediaStore,
	}, cfg, logger)

	return a, nil
}

// Run starts the HTTP server and blocks until context cancellation or fatal error.
func (a *App) Run(ctx context.Context) error {
	serverErr := make(chan error, 1)

	go a.hub.Run(ctx)

	if a.exporter != nil {
		if err := a.exporter.Start(ctx, a.bus); err != nil {
			a.cleanup()
			return fmt.Errorf("start kafka export: %w", err)
		}
	}

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

// cleanup closes the bus, integrations and database in dependency order.
func (a *App) cleanup() {
	if err := a.bus.Close(); err != nil {
		a.log.Warn().Err(err).Msg("failed to close bus")
	}
	if a.exporter != nil {
		if err := a.exporter.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close kafka writer")
		}
	}
	if a.mirror != nil {
		if err := a.mirror.Close(); err != nil {
			a.log.Warn().Err(err).Msg("failed to close redis client")
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
