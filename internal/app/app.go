package app

import (
	"context"
	"fmt"
	"time"

	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/data/db"
	medihttp "github.com/AWE-Awareness-App/MEDI-chatbot/internal/http"
	httpH "github.com/AWE-Awareness-App/MEDI-chatbot/internal/http/handlers"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/observability"
	"github.com/AWE-Awareness-App/MEDI-chatbot/internal/platform/logger"
)

const redisCollectInterval = 15 * time.Second

type App struct {
	Log      *logger.Logger
	Cfg      Config
	DB       *db.Service
	Metrics  *observability.Metrics
	Clients  Clients
	Repos    Repos
	Services Services
	Server   *medihttp.Server

	shutdownOtel func(context.Context) error
	cancel       context.CancelFunc
}

// Load reads configuration and builds a logger for it.
func Load() (Config, *logger.Logger, error) {
	cfg, err := LoadConfig()
	if err != nil {
		return Config{}, nil, err
	}
	log, err := logger.New(cfg.App.LogMode)
	if err != nil {
		return Config{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, log, nil
}

// OpenDatabase connects and runs migrations. The pgvector schema is only
// created when that backend is selected.
func OpenDatabase(log *logger.Logger, cfg Config) (*db.Service, error) {
	dsn := cfg.Database.DSN()
	if dsn == "" {
		return nil, fmt.Errorf("missing DATABASE_URL (or POSTGRES_HOST/POSTGRES_NAME)")
	}
	svc, err := db.NewService(log, db.Config{DSN: dsn, MaxOpenConns: cfg.Database.MaxOpenConns})
	if err != nil {
		return nil, fmt.Errorf("init database: %w", err)
	}
	withKnowledge := cfg.RAG.Backend == string(VectorBackendPgvector)
	if withKnowledge && svc.Dialect() != db.DialectPostgres {
		log.Warn("pgvector backend needs postgres; knowledge schema skipped", "dialect", svc.Dialect())
	}
	if err := svc.Migrate(cfg.LLM.EmbedDim, withKnowledge); err != nil {
		_ = svc.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return svc, nil
}

func New(ctx context.Context, log *logger.Logger, cfg Config) (*App, error) {
	ctx, cancel := context.WithCancel(ctx)
	a := &App{Log: log, Cfg: cfg, cancel: cancel}

	a.shutdownOtel = observability.InitOTel(ctx, log, observability.OtelConfig{
		Enabled:     cfg.Observability.OtelEnabled,
		ServiceName: cfg.App.Name,
		Environment: cfg.App.Env,
		SampleRatio: cfg.Observability.OtelSampleRatio,
		Endpoint:    cfg.Observability.OtelEndpoint,
		Headers:     observability.ParseHeaders(cfg.Observability.OtelHeaders),
		Insecure:    cfg.Observability.OtelInsecure,
	})
	a.Metrics = observability.New(cfg.Observability.MetricsEnabled)

	svc, err := OpenDatabase(log, cfg)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	a.DB = svc
	a.Metrics.RegisterDBStats(log, svc.DB(), "medi")

	clients, err := wireClients(ctx, log, cfg)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	a.Clients = clients
	a.Metrics.StartRedisCollector(ctx, log, clients.Redis, redisCollectInterval)

	a.Repos = wireRepos(svc.DB(), log)
	services, err := wireServices(ctx, log, cfg, svc.DB(), a.Repos, clients, a.Metrics)
	if err != nil {
		a.Close(context.Background())
		return nil, err
	}
	a.Services = services
	a.Server = medihttp.NewServer(routerConfig(log, cfg, clients, services, a.Metrics))
	return a, nil
}

func routerConfig(log *logger.Logger, cfg Config, clients Clients, services Services, metrics *observability.Metrics) medihttp.RouterConfig {
	var sender httpH.MenuSender
	if clients.Twilio != nil {
		sender = clients.Twilio
	}
	rc := medihttp.RouterConfig{
		Log:           log,
		Metrics:       metrics,
		CORSOrigins:   cfg.HTTP.CORSAllowOrigins,
		ChatHandler:   httpH.NewChatHandler(log, services.Chat),
		TwilioHandler: httpH.NewTwilioHandler(log, services.Chat, sender, cfg.Twilio.MenuTemplateSID),
		HealthHandler: httpH.NewHealthHandler(cfg.App.Name, cfg.App.Env),
	}
	if cfg.Observability.OtelEnabled {
		rc.ServiceName = cfg.App.Name
	}
	return rc
}

// Run serves HTTP until ctx is cancelled.
func (a *App) Run(ctx context.Context) error {
	if a == nil || a.Server == nil {
		return fmt.Errorf("app not initialized")
	}
	return a.Server.Run(ctx, a.Cfg.Addr())
}

func (a *App) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if a.cancel != nil {
		a.cancel()
		a.cancel = nil
	}
	if a.shutdownOtel != nil {
		if err := a.shutdownOtel(ctx); err != nil {
			a.Log.Warn("OTel shutdown failed", "error", err)
		}
	}
	a.Clients.Close()
	if a.DB != nil {
		if err := a.DB.Close(); err != nil {
			a.Log.Warn("Database close failed", "error", err)
		}
	}
	a.Log.Sync()
}
