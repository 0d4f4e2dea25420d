// README: Entry point; loads config, wires the dialogue stack, starts the HTTP server and background sweepers.
package main

import (
	"context"
	"database/sql"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"novobot/internal/ai"
	"novobot/internal/config"
	httptransport "novobot/internal/http"
	"novobot/internal/http/handlers"
	"novobot/internal/infra"
	"novobot/internal/keylock"
	"novobot/internal/maps"
	"novobot/internal/modules/aiusage"
	"novobot/internal/modules/booking"
	"novobot/internal/modules/preference"
	"novobot/internal/modules/pricing"
	"novobot/internal/modules/response"
	"novobot/internal/modules/session"
	"novobot/internal/modules/transcript"
	"novobot/internal/modules/validation"
	"novobot/internal/service"
)

const version = "1.0.0"

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger := infra.NewLogger(cfg.Log.File, cfg.Log.Production)
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	loc, err := time.LoadLocation(cfg.Timezone)
	if err != nil {
		logger.Fatal("load timezone", zap.String("tz", cfg.Timezone), zap.Error(err))
	}

	// Postgres is optional; config.Load rejects a postgres preference store without a DSN.
	var dbPool *pgxpool.Pool
	if cfg.DB.DSN != "" {
		dbPool, err = infra.NewDB(ctx, cfg.DB.DSN)
		if err != nil {
			logger.Fatal("postgres init", zap.Error(err))
		}
		defer dbPool.Close()
	}

	locks := keylock.New()
	sessions := newSessionStore(ctx, cfg, logger)
	go session.NewSweeper(sessions, locks, cfg.Session.Idle(), cfg.Session.SweepInterval(), logger).RunEviction(ctx)

	var sqliteDB *sql.DB
	if cfg.PreferenceStore == "sqlite" {
		sqliteDB, err = infra.NewSQLite(cfg.SQLite.Path)
		if err != nil {
			logger.Fatal("sqlite init", zap.Error(err))
		}
		defer sqliteDB.Close()
	}

	prefStore := newPreferenceStore(ctx, cfg, dbPool, sqliteDB, logger)
	prefSvc := preference.NewService(prefStore, cfg.Memory, logger)

	// Interfaces stay untyped nil without a Maps key so the keyword fallbacks apply.
	var geo validation.Geocoder
	var distance pricing.DistanceEstimator
	if cfg.Maps.APIKey != "" {
		locality := "Concordia, Entre Ríos"
		places, err := maps.NewPlacesService(cfg.Maps.APIKey)
		if err != nil {
			logger.Fatal("places init", zap.Error(err))
		}
		geocoder, err := maps.NewGeocoder(cfg.Maps.APIKey, locality, places)
		if err != nil {
			logger.Fatal("geocoder init", zap.Error(err))
		}
		routes, err := maps.NewRouteService(cfg.Maps.APIKey, locality)
		if err != nil {
			logger.Fatal("routes init", zap.Error(err))
		}
		geo = geocoder
		distance = maps.NewDistanceEstimator(routes, geocoder, cfg.Tariff.RoadFactor, logger)
	}

	validator := validation.NewService(cfg.Validation, geo, logger)
	pricingSvc := pricing.NewService(cfg.Tariff, distance, logger)
	composer := response.NewComposer(cfg.Tariff, cfg.Validation)

	var bookingStore booking.Store = booking.NewMemoryStore()
	if dbPool != nil {
		bookingStore = booking.NewPostgresStore(dbPool)
	}
	bookingSvc := booking.NewService(bookingStore, logger)
	turns := newTranscriptStore(ctx, dbPool, sqliteDB, logger)

	deps := service.Deps{
		Sessions:        sessions,
		Locks:           locks,
		Validator:       validator,
		Pricing:         pricingSvc,
		Composer:        composer,
		Preferences:     prefSvc,
		Bookings:        bookingSvc,
		Transcript:      turns,
		RephraseTimeout: time.Duration(cfg.AI.TimeoutMs) * time.Millisecond,
		Location:        loc,
		Log:             logger,
	}
	switch cfg.AI.Provider {
	case "gemini":
		gemini, err := ai.NewGeminiRephraser(ctx, cfg.AI.GeminiKey)
		if err != nil {
			logger.Fatal("gemini init", zap.Error(err))
		}
		defer gemini.Close()
		deps.Rephraser = gemini
	case "openai":
		deps.Rephraser = ai.NewOpenAIRephraser(cfg.AI.OpenAIKey, cfg.AI.OpenAIModel)
	}
	if deps.Rephraser != nil && dbPool != nil {
		deps.Quota = aiusage.NewService(aiusage.NewStore(dbPool, cfg.AI.MonthlyTokens))
	}
	assistant := service.NewAssistant(deps)

	var verifier infra.OperatorVerifier
	if cfg.Firebase.ProjectID != "" {
		verifier, err = infra.NewFirebaseVerifier(ctx, cfg.Firebase.ProjectID, cfg.Firebase.CredentialsFile, cfg.Firebase.CheckRevoked)
		if err != nil {
			logger.Fatal("firebase init", zap.Error(err))
		}
	} else {
		logger.Warn("NOVO_FIREBASE_PROJECT_ID not set; admin endpoints disabled")
	}

	router := httptransport.NewRouter(httptransport.RouterDeps{
		Chat:               handlers.NewChatHandler(assistant, logger),
		Admin:              handlers.NewAdminHandler(prefSvc, bookingSvc, turns),
		Info:               handlers.NewInfoHandler(version, pricingSvc.RangeTable(), cfg.Validation),
		Verifier:           verifier,
		WebhookToken:       cfg.HTTP.WebhookToken,
		RateLimitPerMinute: cfg.HTTP.RateLimitPerMinute,
		Log:                logger,
	})

	if err := httptransport.Serve(ctx, httptransport.NewServer(cfg.HTTP.Addr, router), logger); err != nil {
		logger.Error("http server", zap.Error(err))
	}

	flushCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	prefSvc.Flush(flushCtx)
}

func newSessionStore(ctx context.Context, cfg config.Config, logger *zap.Logger) session.Store {
	if cfg.Session.Store != "redis" {
		return session.NewMemoryStore()
	}
	client, err := infra.NewRedis(ctx, cfg.Redis.Addr)
	if err != nil {
		logger.Fatal("redis init", zap.Error(err))
	}
	return session.NewRedisStore(client, cfg.Session.Idle())
}

func newPreferenceStore(ctx context.Context, cfg config.Config, dbPool *pgxpool.Pool, sqliteDB *sql.DB, logger *zap.Logger) preference.Store {
	switch cfg.PreferenceStore {
	case "postgres":
		return preference.NewPostgresStore(dbPool)
	case "sqlite":
		store, err := preference.NewSQLiteStore(ctx, sqliteDB)
		if err != nil {
			logger.Fatal("sqlite schema", zap.Error(err))
		}
		return store
	default:
		return preference.NewMemoryStore()
	}
}

// newTranscriptStore follows the database the deployment already has: Postgres,
// then the embedded SQLite file, then memory.
func newTranscriptStore(ctx context.Context, dbPool *pgxpool.Pool, sqliteDB *sql.DB, logger *zap.Logger) transcript.Store {
	switch {
	case dbPool != nil:
		return transcript.NewPostgresStore(dbPool)
	case sqliteDB != nil:
		store, err := transcript.NewSQLiteStore(ctx, sqliteDB)
		if err != nil {
			logger.Fatal("sqlite schema", zap.Error(err))
		}
		return store
	default:
		return transcript.NewMemoryStore()
	}
}
