package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	_ "soundwork/docs"
	"soundwork/pkg/accounts"
	"soundwork/pkg/config"
	"soundwork/pkg/db"
	"soundwork/pkg/feed"
	"soundwork/pkg/journal"
	"soundwork/pkg/ledger"
	"soundwork/pkg/logger"
	"soundwork/pkg/marketplace"
	"soundwork/pkg/middleware"
	"soundwork/pkg/notify"
	"soundwork/pkg/pubsub"
	"soundwork/pkg/telemetry"
)

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the marketplace API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd.Context())
		},
	}
}

func newLogger(c *config.Config) (*zap.Logger, error) {
	return logger.New(logger.Config{
		Level:       c.Log.Level,
		File:        c.Log.File,
		MaxSizeMB:   c.Log.MaxSizeMB,
		MaxBackups:  c.Log.MaxBackups,
		MaxAgeDays:  c.Log.MaxAgeDays,
		Compress:    c.Log.Compress,
		Development: !c.IsProduction(),
	})
}

// backend is the storage the ledger and address book run on.
type backend struct {
	journal  journal.Journal
	accounts accounts.AccountRepository
	close    func()
}

func openBackend(ctx context.Context, c *config.Config, log *zap.Logger) (*backend, error) {
	if c.Database.Backend == config.BackendMemory {
		log.Warn("using in-memory storage, state is lost on exit")
		return &backend{
			journal:  journal.NewMemoryJournal(),
			accounts: accounts.NewMemoryAccountRepository(),
			close:    func() {},
		}, nil
	}

	pool, err := connectPool(ctx, c, log)
	if err != nil {
		return nil, err
	}
	return &backend{
		journal:  journal.NewPostgresJournal(pool),
		accounts: accounts.NewPostgresAccountRepository(pool),
		close:    pool.Close,
	}, nil
}

func connectPool(ctx context.Context, c *config.Config, log *zap.Logger) (*pgxpool.Pool, error) {
	return db.Connect(ctx, db.Config{
		URL:             c.Database.URL,
		MaxConns:        c.Database.MaxConns,
		MinConns:        c.Database.MinConns,
		MaxConnIdleTime: c.Database.MaxConnIdleTime,
		ApplySchema:     c.Database.ApplySchema,
		SchemaPath:      c.Database.SchemaPath,
	}, log)
}

func runServe(parent context.Context) error {
	if parent == nil {
		parent = context.Background()
	}
	ctx, stop := signal.NotifyContext(parent, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	log, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer func() { _ = log.Sync() }()

	shutdownTracing, err := telemetry.Setup(ctx, telemetry.Config{
		Endpoint:    cfg.Telemetry.Endpoint,
		ServiceName: cfg.Telemetry.ServiceName,
	}, log)
	if err != nil {
		return err
	}
	defer func() {
		flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := shutdownTracing(flushCtx); err != nil {
			log.Warn("tracer shutdown failed", zap.Error(err))
		}
	}()

	store, err := openBackend(ctx, cfg, log)
	if err != nil {
		return err
	}
	defer store.close()

	l, err := ledger.New(ledger.Config{
		Owner:       ledger.Address(cfg.Marketplace.OwnerAddress),
		Marketplace: ledger.Address(cfg.Marketplace.MarketplaceAddress),
		Recorder:    store.journal,
	})
	if err != nil {
		return err
	}
	restored, err := journal.Restore(ctx, store.journal, l)
	if err != nil {
		return fmt.Errorf("restore ledger: %w", err)
	}
	log.Info("ledger restored", zap.Int("events", restored), zap.Int64("seq", l.Seq()))

	hub := feed.NewHub(log.Named("feed"))
	defer hub.Close()
	publishers := []marketplace.EventPublisher{hub}

	if cfg.Redis.URL != "" {
		client, err := pubsub.Connect(ctx, cfg.Redis.URL)
		if err != nil {
			return err
		}
		defer func() { _ = client.Close() }()

		redisPub := pubsub.NewRedisPublisher(client, cfg.Redis.Channel)
		publishers = append(publishers, redisPub)
		relay := pubsub.NewRelay(client, cfg.Redis.Channel, redisPub.Origin(), hub, log.Named("relay"))
		go func() {
			if err := relay.Run(ctx); err != nil {
				log.Error("relay stopped", zap.Error(err))
			}
		}()
	}

	accountService := accounts.NewAccountService(store.accounts)

	if cfg.Email.SendGridAPIKey != "" {
		notifier := notify.NewNotifier(notify.NewEmailService(notify.EmailConfig{
			APIKey:      cfg.Email.SendGridAPIKey,
			SenderEmail: cfg.Email.SenderEmail,
			SenderName:  cfg.Email.SenderName,
		}), accountService, 0, log.Named("notify"))
		publishers = append(publishers, notifier)
		go notifier.Run(ctx)
	} else {
		log.Info("email notifications disabled, SENDGRID_API_KEY not set")
	}

	marketService := marketplace.NewMarketplaceService(l, log.Named("marketplace"), publishers...)
	limiter := middleware.NewRateLimiter(cfg.RateLimit.RPS, cfg.RateLimit.Burst)

	gin.SetMode(cfg.Server.GinMode)
	router := gin.New()
	router.Use(middleware.Logger(log.Named("http")), gin.Recovery())
	router.Use(cors.New(corsConfig(cfg.CORS)))

	marketplace.NewMarketplaceHandler(marketService, limiter).RegisterRoutes(router)
	accounts.NewAccountHandler(accountService).RegisterRoutes(router)
	feed.NewHandler(hub, log.Named("feed"), originAllowed(cfg.CORS.AllowedOrigins)).RegisterRoutes(router)

	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	settings := tlsSettingsFrom(cfg)
	if err := settings.Validate(); err != nil {
		return fmt.Errorf("TLS settings invalid: %w", err)
	}

	srv := &http.Server{
		Addr:              ":" + cfg.Server.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- listen(srv, settings)
	}()
	log.Info("server listening", zap.String("addr", srv.Addr), zap.Bool("tls", settings.EnableTLS))

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case <-ctx.Done():
	}
	log.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server forced to shutdown: %w", err)
	}
	log.Info("server exiting")
	return nil
}

func corsConfig(c config.CORSConfig) cors.Config {
	origins := c.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"*"}
	}
	return cors.Config{
		AllowOrigins:     origins,
		AllowMethods:     []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.CallerHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: c.AllowCredentials && !contains(origins, "*"),
		MaxAge:           12 * time.Hour,
	}
}

// originAllowed mirrors the CORS origin list for websocket upgrades.
func originAllowed(origins []string) func(string) bool {
	if len(origins) == 0 || contains(origins, "*") {
		return nil
	}
	return func(origin string) bool { return contains(origins, origin) }
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
