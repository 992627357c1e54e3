package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kollektive-hackathon/coinflip-backend/internal/audit"
	"github.com/kollektive-hackathon/coinflip-backend/internal/custody"
	"github.com/kollektive-hackathon/coinflip-backend/internal/game"
	"github.com/kollektive-hackathon/coinflip-backend/internal/notify"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/config"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/middleware"
	"github.com/kollektive-hackathon/coinflip-backend/internal/pkg/pubsub"
	hub "github.com/kollektive-hackathon/coinflip-backend/internal/pkg/ws"
	"github.com/kollektive-hackathon/coinflip-backend/internal/randomness"
	"github.com/kollektive-hackathon/coinflip-backend/internal/registry"
	"github.com/kollektive-hackathon/coinflip-backend/internal/ws"
	"github.com/kollektive-hackathon/coinflip-backend/pkg/firebase"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
)

const (
	serverWriteTimeout = 10 * time.Second

	// publishWindow bounds a randomness request inside a join, which must
	// answer before the server write timeout.
	publishWindow = serverWriteTimeout / 2
)

type ledgerCustodian interface {
	custody.Custodian
	custody.Ledger
}

func main() {
	config.Setup()
	setupZerolog()
	cfg := config.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var db *gorm.DB
	if cfg.DbUrl != "" {
		db = setupDb(cfg.DbUrl)
	}

	var pubsubClient *pubsub.Client
	if cfg.RandomnessMode == config.RandomnessPubSub || cfg.EventsMode == config.EventsPubSub {
		client, err := pubsub.NewClient(ctx, cfg.GoogleProjectId)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to create pubsub client")
		}
		pubsubClient = client
		defer func() { _ = pubsubClient.Close() }()
	}

	gameRegistry := setupRegistry(db)
	custodian := setupCustodian(cfg, db)
	notificationHub := hub.NewNotificationHub()
	notifier, pubsubNotifier := setupNotifier(cfg, notificationHub, pubsubClient)

	port, coordinator, pubsubPort, err := setupRandomness(cfg, pubsubClient)
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid randomness setup")
	}

	engine, err := game.NewEngine(gameRegistry, custodian, port, notifier, game.Settings{
		TimeoutDuration:  cfg.TimeoutDuration,
		FeeBps:           cfg.FeeBps,
		TreasuryAccount:  cfg.TreasuryAccount,
		RandomnessSla:    cfg.RandomnessSla,
		CustodianTimeout: cfg.CustodianTimeout,
		SupportedTokens:  cfg.SupportedTokens,
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Invalid engine settings")
	}

	if coordinator != nil {
		coordinator.Bind(engine)
	}
	if pubsubPort != nil {
		go func() {
			if err := pubsubPort.Listen(ctx, engine); err != nil && !errors.Is(err, context.Canceled) {
				log.Error().Err(err).Msg("Randomness subscription stopped")
			}
		}()
	}

	setupAuth(ctx, cfg)

	apiRouter := setupApiRouter(engine, custodian, audit.NewAuditor(gameRegistry), notificationHub)
	server := &http.Server{
		Addr:         cfg.Port,
		Handler:      apiRouter,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: serverWriteTimeout,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		_ = server.Shutdown(shutdownCtx)
	}()

	log.Info().Str("port", cfg.Port).Msg("Coinflip backend listening")
	if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		log.Fatal().Err(err).Msg("Server failed")
	}

	if pubsubNotifier != nil {
		pubsubNotifier.Wait()
	}
}

func setupDb(dbUrl string) *gorm.DB {
	db, err := gorm.Open(postgres.Open(dbUrl), &gorm.Config{})

	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize database")
	}

	sqlDb, _ := db.DB()

	sqlDb.SetMaxOpenConns(50)
	sqlDb.SetConnMaxLifetime(time.Minute * 10)

	return db
}

func setupRegistry(db *gorm.DB) *registry.Registry {
	if db == nil {
		log.Warn().Msg("DB_URL not set, games are kept in memory")
		return registry.New(registry.NewMemoryStore())
	}
	if err := registry.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate game registry")
	}
	return registry.New(registry.NewGormStore(db))
}

func setupCustodian(cfg config.Config, db *gorm.DB) ledgerCustodian {
	if cfg.CustodianMode == config.CustodianMemory {
		return custody.NewMemoryCustodian()
	}
	if db == nil {
		log.Fatal().Msg("CUSTODIAN_MODE=ledger needs DB_URL")
	}
	if err := custody.Migrate(db); err != nil {
		log.Fatal().Err(err).Msg("Failed to migrate custody ledger")
	}
	return custody.NewLedgerCustodian(db)
}

func setupRandomness(cfg config.Config, client *pubsub.Client) (randomness.Port, *randomness.LocalCoordinator, *randomness.PubSubPort, error) {
	switch cfg.RandomnessMode {
	case config.RandomnessLocal:
		coordinator := randomness.NewLocalCoordinator().WithAutoFulfill(cfg.LocalAutoFulfillDelay)
		return coordinator, coordinator, nil, nil
	case config.RandomnessPubSub:
		if client == nil {
			return nil, nil, nil, errors.New("RANDOMNESS_MODE=pubsub needs a pubsub client")
		}
		pubsubPort := randomness.NewPubSubPort(client, client).WithPublishWindow(publishWindow)
		return pubsubPort, nil, pubsubPort, nil
	default:
		return nil, nil, nil, fmt.Errorf("unknown RANDOMNESS_MODE %q", cfg.RandomnessMode)
	}
}

func setupNotifier(cfg config.Config, broadcaster notify.Broadcaster, client *pubsub.Client) (notify.Notifier, *notify.PubSubNotifier) {
	notifiers := notify.MultiNotifier{notify.LogNotifier{}, notify.NewHubNotifier(broadcaster)}
	if cfg.EventsMode != config.EventsPubSub {
		return notifiers, nil
	}
	pubsubNotifier := notify.NewPubSubNotifier(client)
	return append(notifiers, pubsubNotifier), pubsubNotifier
}

func setupAuth(ctx context.Context, cfg config.Config) {
	if cfg.AuthDisabled {
		log.Warn().Msg("AUTH_DISABLED is set, bearer tokens are taken as wallet addresses")
		middleware.UseVerifier(middleware.DevVerifier{})
		return
	}
	verifier, err := firebase.NewVerifier(ctx)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize firebase auth")
	}
	middleware.UseVerifier(verifier)
}

func setupApiRouter(engine *game.Engine, ledger custody.Ledger, auditor *audit.Auditor, notificationHub *hub.WebSocketNotificationHub) *gin.Engine {
	apiRouter := gin.New()
	middleware.RegisterGlobalMiddleware(apiRouter)

	routerGroup := apiRouter.Group("/coinflip-api")

	ws.RegisterRoutes(routerGroup, notificationHub)
	game.RegisterRoutes(routerGroup, engine)
	custody.RegisterRoutes(routerGroup, ledger)
	audit.RegisterRoutes(routerGroup, auditor)

	return apiRouter
}

func setupZerolog() {
	zerolog.LevelFieldName = "severity"
	zerolog.TimestampFieldName = "time"
	zerolog.TimeFieldFormat = time.RFC3339Nano
}
