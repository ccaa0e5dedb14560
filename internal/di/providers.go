package di

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/wire"
	"github.com/redis/go-redis/v9"
	"gorm.io/gorm"

	"github.com/hector-minka/collections-bridge/internal/app"
	"github.com/hector-minka/collections-bridge/internal/config"
	"github.com/hector-minka/collections-bridge/internal/database"
	httpapi "github.com/hector-minka/collections-bridge/internal/http"
	"github.com/hector-minka/collections-bridge/internal/http/handler"
	"github.com/hector-minka/collections-bridge/internal/ledger"
	"github.com/hector-minka/collections-bridge/internal/observability"
	"github.com/hector-minka/collections-bridge/internal/repository"
	"github.com/hector-minka/collections-bridge/internal/service"
)

var ConfigSet = wire.NewSet(config.Load)

var ObservabilitySet = wire.NewSet(
	observability.NewLogger,
	provideRuntime,
)

var DatabaseSet = wire.NewSet(provideOpenDB)

var LedgerSet = wire.NewSet(
	provideSigner,
	provideLedgerClient,
	wire.Bind(new(ledger.Client), new(*ledger.HTTPClient)),
)

var RepositorySet = wire.NewSet(repository.NewCollectionRepository)

var ServiceSet = wire.NewSet(
	service.NewCollectionsService,
	provideTaskRunner,
	provideDedupeStore,
	provideEvidenceArchive,
)

var HTTPSet = wire.NewSet(
	provideCollectionsHandler,
	handler.NewHealthHandler,
	httpapi.NewRouter,
	provideHTTPServer,
)

var AppSet = wire.NewSet(app.New)

func provideRuntime(cfg *config.Config, logger *slog.Logger) (*observability.Runtime, error) {
	return observability.InitRuntime(context.Background(), cfg, logger)
}

func provideOpenDB(cfg *config.Config) (*gorm.DB, error) {
	db, err := database.Open(cfg)
	if err != nil {
		return nil, err
	}
	if err := database.Migrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

func provideSigner(cfg *config.Config) (*ledger.RecordSigner, error) {
	return ledger.NewRecordSigner(cfg.SignerFormat, cfg.SignerPublic, cfg.SignerSecret)
}

func provideLedgerClient(cfg *config.Config, signer *ledger.RecordSigner, logger *slog.Logger) *ledger.HTTPClient {
	return ledger.NewHTTPClient(ledger.ClientOptions{
		Server:                  cfg.LedgerServer,
		Ledger:                  cfg.LedgerName,
		Timeout:                 cfg.LedgerTimeout,
		IntentClaimSourceHandle: cfg.IntentClaimSourceHandle,
	}, signer, logger)
}

func provideTaskRunner(logger *slog.Logger) *service.TaskRunner {
	return service.NewTaskRunner(logger)
}

func provideDedupeStore(cfg *config.Config, db *gorm.DB, logger *slog.Logger) (service.EventDedupeStore, error) {
	if !cfg.DedupeEnabled {
		return nil, nil
	}
	if cfg.DedupeRedisEnabled {
		opts, err := redis.ParseURL(cfg.RedisURL)
		if err != nil {
			return nil, err
		}
		logger.Info("event dedupe backed by redis")
		return service.NewRedisEventDedupeStore(redis.NewClient(opts), ""), nil
	}
	return service.NewDBEventDedupeStore(db), nil
}

func provideEvidenceArchive(cfg *config.Config) (service.EvidenceArchive, error) {
	if !cfg.ArchiveEnabled {
		return nil, nil
	}
	return service.NewMinIOEvidenceArchive(
		cfg.ArchiveEndpoint,
		cfg.ArchiveAccessKey,
		cfg.ArchiveSecretKey,
		cfg.ArchiveBucket,
		cfg.ArchiveUseSSL,
	)
}

func provideCollectionsHandler(
	svc *service.CollectionsService,
	runner *service.TaskRunner,
	dedupe service.EventDedupeStore,
	archive service.EvidenceArchive,
	cfg *config.Config,
	logger *slog.Logger,
) *handler.CollectionsHandler {
	return handler.NewCollectionsHandler(svc, runner, dedupe, archive, cfg.DedupeTTL, logger)
}

func provideHTTPServer(cfg *config.Config, router http.Handler) *http.Server {
	return &http.Server{
		Addr:              ":" + cfg.HTTPPort,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

// MigrationRunner applies the schema without starting the server.
type MigrationRunner struct {
	db *gorm.DB
}

func NewMigrationRunner(db *gorm.DB) *MigrationRunner {
	return &MigrationRunner{db: db}
}

func (m *MigrationRunner) Run() error {
	return database.Migrate(m.db)
}
