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

	_ "github.com/jackc/pgx/v5/stdlib"
	"go.uber.org/zap"

	"caseguard.org/internal/audit"
	"caseguard.org/internal/config"
	"caseguard.org/internal/httpapi"
	"caseguard.org/internal/identity"
	"caseguard.org/internal/lockout"
	"caseguard.org/internal/obs"
	"caseguard.org/internal/records"
	"caseguard.org/internal/session"
	"caseguard.org/internal/vault"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger, err := obs.NewLogger(cfg.Env)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	obs.Init()

	v, err := vault.New(cfg.FieldKey, logger)
	if err != nil {
		logger.Fatal("field key", zap.Error(err))
	}
	hasher, err := vault.NewHasher(cfg.LookupSecret)
	if err != nil {
		logger.Fatal("lookup secret", zap.Error(err))
	}
	sessions, err := session.NewManager(cfg.SessionKey, session.DefaultTTL)
	if err != nil {
		logger.Fatal("session key", zap.Error(err))
	}

	var primary *sql.DB
	if cfg.PrimaryDSN != "" {
		primary, err = sql.Open("pgx", cfg.PrimaryDSN)
		if err != nil {
			logger.Fatal("open primary db", zap.Error(err))
		}
		primary.SetMaxOpenConns(20)
		primary.SetMaxIdleConns(10)
		primary.SetConnMaxLifetime(30 * time.Minute)
		defer primary.Close()
	}

	// The audit trail writes to its own database over its own DSN.
	var auditStore audit.Store
	var auditPG *audit.PGStore
	if cfg.AuditDSN != "" {
		auditPG, err = audit.Open(cfg.AuditDSN)
		if err != nil {
			logger.Fatal("open audit db", zap.Error(err))
		}
		defer auditPG.Close()
		auditStore = auditPG
	} else {
		if cfg.Env == "production" {
			logger.Fatal("audit database is required in production")
		}
		logger.Warn("no audit DSN configured, audit entries go to the log only")
		auditStore = logOnlyAuditStore{logger: logger}
	}
	recorder := audit.NewRecorder(auditStore, logger, 512)

	var counters lockout.CounterStore
	if cfg.RedisAddr != "" {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		store, err := lockout.DialRedis(ctx, cfg.RedisAddr)
		cancel()
		if err != nil {
			logger.Fatal("redis", zap.Error(err))
		}
		defer store.Close()
		counters = store
	} else {
		if cfg.Env == "production" {
			logger.Fatal("redis is required in production, lockouts must span workers")
		}
		counters = lockout.NewMemoryStore()
	}
	staffGuard, err := lockout.NewGuard(counters, session.SurfaceStaff, lockout.DefaultThreshold, lockout.DefaultWindow, logger)
	if err != nil {
		logger.Fatal("staff lockout guard", zap.Error(err))
	}
	portalGuard, err := lockout.NewGuard(counters, session.SurfacePortal, lockout.DefaultThreshold, lockout.DefaultWindow, logger)
	if err != nil {
		logger.Fatal("portal lockout guard", zap.Error(err))
	}

	var identityStore identity.Store
	var recordStore records.Store
	if primary != nil {
		identityStore = identity.NewPGStore(primary)
		recordStore = records.NewPGStore(primary)
	} else {
		if cfg.Env == "production" {
			logger.Fatal("primary database is required in production")
		}
		logger.Warn("no primary DSN configured, using in-memory stores")
		identityStore = identity.NewInMemory()
		recordStore = records.NewInMemory()
	}

	identities, err := identity.NewService(identityStore, v, hasher, logger)
	if err != nil {
		logger.Fatal("identity service", zap.Error(err))
	}
	recordsSvc, err := records.NewService(recordStore, v, recorder, logger)
	if err != nil {
		logger.Fatal("records service", zap.Error(err))
	}

	api := httpapi.New(httpapi.Deps{
		Identities:  identities,
		Records:     recordsSvc,
		Sessions:    sessions,
		Recorder:    recorder,
		StaffGuard:  staffGuard,
		PortalGuard: portalGuard,
		Ready:       httpapi.ReadyProbe{DB: primary},
		Logger:      logger,
		Version:     obs.Version,
	})

	srv := &http.Server{
		Addr:              cfg.ListenAddr,
		Handler:           api.Handler(),
		ReadTimeout:       15 * time.Second,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      15 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	logger.Info("starting caseguard-api",
		zap.String("version", obs.Version),
		zap.String("build_date", obs.BuildDate),
		zap.String("addr", srv.Addr),
		zap.String("env", cfg.Env),
	)

	go func() {
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("listen", zap.Error(err))
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, os.Interrupt, syscall.SIGTERM)
	<-stop
	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
	// Drain queued audit entries before the stores close.
	if err := recorder.Close(ctx); err != nil {
		logger.Error("audit drain incomplete", zap.Error(err))
	}
	logger.Info("stopped")
}

// logOnlyAuditStore backs the recorder in development when no audit
// database is configured.
type logOnlyAuditStore struct {
	logger *zap.Logger
}

func (s logOnlyAuditStore) Append(_ context.Context, e *audit.Entry) error {
	s.logger.Info("audit",
		zap.String("action", e.Action),
		zap.String("actor_id", e.ActorID),
		zap.String("resource_type", e.ResourceType),
		zap.String("resource_id", e.ResourceID),
		zap.String("program_id", e.ProgramID),
	)
	return nil
}
