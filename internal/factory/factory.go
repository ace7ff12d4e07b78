package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/kms"
	"github.com/go-chi/chi/v5"

	"botops-console/internal/audit"
	"botops-console/internal/bucketing"
	"botops-console/internal/client"
	"botops-console/internal/config"
	"botops-console/internal/encryption"
	"botops-console/internal/handler"
	"botops-console/internal/hashing"
	"botops-console/internal/notify"
	"botops-console/internal/remote"
	redisrepo "botops-console/internal/repository/redis"
	"botops-console/internal/repository/scylla"
	"botops-console/internal/service"
	"botops-console/internal/tls"
	"botops-console/internal/util"
)

const (
	userBuckets  = 64
	eventBuckets = 32
)

// Factory wires and owns the lifecycle of all application dependencies.
type Factory struct {
	config     *config.Config
	tlsManager *tls.TLSManager

	// Clients
	redisClient      *client.RedisClient
	scyllaClient     *scylla.ScyllaClient
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient
	kmsClient        *kms.Client

	// Managers
	hasher            *hashing.Hasher
	encryptionManager *encryption.EncryptionManager
	bucketingManager  *bucketing.BucketingManager

	// Collaborators
	recorder      *audit.Recorder
	notifier      *notify.WebhookNotifier
	remoteClient  *remote.Client
	sessionCache  *redisrepo.SessionCache
	userRepo      scylla.UserRepository
	sessionRepo   scylla.SessionRepository
	botRepo       scylla.BotRepository
	leadRepo      scylla.LeadRepository

	// Services
	authService *service.AuthService
	botService  *service.BotService
	leadService *service.LeadService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads config and initializes every dependency.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tls.NewTLSManager(&tls.TLSConfig{
			EnableTLS:   cfg.Server.EnableTLS,
			AutoCert:    cfg.Server.AutoCert,
			Domain:      cfg.Server.Domain,
			CertFile:    cfg.Server.CertFile,
			KeyFile:     cfg.Server.KeyFile,
			AutoCertDir: cfg.Server.AutoCertDir,
			Email:       cfg.Server.Email,
			Environment: cfg.Environment,
		})
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}

	f.initializeManagers()
	f.initializeServices()

	util.Info("Factory initialized successfully",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
		util.Bool("trusted_mode", cfg.Auth.TrustedMode),
	)

	return f, nil
}

// initializeClients brings up the external service clients. Scylla is the
// system of record and must be up; the rest degrade gracefully outside
// production.
func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if redisClient, err := client.NewRedisClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
	} else {
		f.redisClient = redisClient
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
		} else {
			util.Info("Redis client initialized and healthy")
		}
	}

	scyllaClient, err := scylla.NewScyllaClient(f.config, util.Get())
	if err != nil {
		return fmt.Errorf("scylla: %w", err)
	}
	f.scyllaClient = scyllaClient
	if err := f.scyllaClient.HealthCheck(); err != nil {
		return fmt.Errorf("scylla health check: %w", err)
	}
	util.Info("ScyllaDB client initialized and healthy")

	if producer, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
		util.Warn("Kafka producer initialization failed - proceeding without Kafka", util.ErrorField(err))
	} else {
		f.kafkaProducer = producer
	}

	if esClient, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
	} else {
		f.esClient = esClient
		util.Info("Elasticsearch client initialized and healthy")
	}

	if chClient, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
		initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
	} else {
		f.clickhouseClient = chClient
		util.Info("ClickHouse client initialized and healthy")
	}

	if f.config.KMS.Enabled {
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(f.config.KMS.Region))
		if err != nil {
			initErrors = append(initErrors, fmt.Errorf("kms: %w", err))
		} else {
			f.kmsClient = kms.NewFromConfig(awsCfg)
			util.Info("KMS client initialized", util.String("region", f.config.KMS.Region))
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("Service initialization warning", util.ErrorField(err))
		}
	}

	return nil
}

func (f *Factory) initializeManagers() {
	f.hasher = hashing.NewHasher(f.config)
	f.encryptionManager = encryption.NewEncryptionManager(f.config, f.kmsClient)
	f.bucketingManager = bucketing.NewBucketingManager(userBuckets, eventBuckets)

	util.Info("Managers initialized successfully")
}

func (f *Factory) initializeServices() {
	f.userRepo = scylla.NewScyllaUserRepository(f.scyllaClient, f.bucketingManager)
	f.sessionRepo = scylla.NewScyllaSessionRepository(f.scyllaClient)
	f.botRepo = scylla.NewScyllaBotRepository(f.scyllaClient)
	f.leadRepo = scylla.NewScyllaLeadRepository(f.scyllaClient)

	if f.redisClient != nil {
		f.sessionCache = redisrepo.NewSessionCache(f.redisClient)
	}

	f.recorder = audit.NewRecorder(f.kafkaProducer, f.clickhouseClient, f.bucketingManager)
	f.notifier = notify.NewWebhookNotifier(f.config)
	f.remoteClient = remote.NewClient(f.config)

	var cache service.SessionCache
	if f.sessionCache != nil {
		cache = f.sessionCache
	}

	f.authService = service.NewAuthService(
		f.config,
		f.userRepo,
		f.sessionRepo,
		cache,
		f.hasher,
		f.notifier,
		f.recorder,
		f.bucketingManager,
	)
	f.botService = service.NewBotService(f.botRepo, f.remoteClient)
	f.leadService = service.NewLeadService(f.leadRepo, f.encryptionManager, f.esClient, f.config.Elasticsearch.LeadIndex)

	util.Info("Services initialized successfully")
}

// Router builds the HTTP router over the wired handlers.
func (f *Factory) Router() chi.Router {
	sessionAuth := handler.NewSessionAuth(f.authService, f.config.Auth.CookieName)
	authHandler := handler.NewAuthHandler(f.authService, f.config)
	botHandler := handler.NewBotHandler(f.botService)
	leadHandler := handler.NewLeadHandler(f.leadService)

	return handler.NewRouter(f.config, authHandler, botHandler, leadHandler, sessionAuth, util.Get())
}

// EnsureAdmin provisions the configured admin identity if missing.
func (f *Factory) EnsureAdmin(ctx context.Context) error {
	return f.authService.EnsureAdmin(ctx)
}

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.redisClient != nil {
		if err := f.redisClient.HealthCheck(ctx); err != nil {
			healthErrors["redis"] = err
		}
	}

	if f.scyllaClient != nil {
		if err := f.scyllaClient.HealthCheck(); err != nil {
			healthErrors["scylla"] = err
		}
	} else {
		healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(); err != nil {
			healthErrors["elasticsearch"] = err
		}
	}

	if f.clickhouseClient != nil {
		if err := f.clickhouseClient.HealthCheck(ctx); err != nil {
			healthErrors["clickhouse"] = err
		}
	}

	if f.kafkaProducer != nil {
		if err := f.kafkaProducer.HealthCheck(ctx); err != nil {
			healthErrors["kafka"] = err
		}
	}

	return healthErrors
}

func (f *Factory) IsHealthy(ctx context.Context) bool {
	healthErrors := f.HealthCheck(ctx)
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

// Close tears everything down in dependency order.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("Shutting down factory...")

		if f.authService != nil {
			f.authService.Close()
			util.Info("Auth service sweeper stopped")
		}

		if f.recorder != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			if err := f.recorder.Flush(ctx); err != nil {
				util.Warn("Audit recorder flush incomplete", util.ErrorField(err))
			}
			cancel()
		}

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("Failed to close ClickHouse client", util.ErrorField(err))
			}
		}

		if f.esClient != nil {
			f.esClient.Close()
		}

		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("Failed to close Kafka producer", util.ErrorField(err))
			}
		}

		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}

		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("Failed to close Redis client", util.ErrorField(err))
			}
		}

		if f.encryptionManager != nil {
			f.encryptionManager.ClearCache()
		}

		util.Sync()
		util.Info("Factory shutdown completed")
	})

	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tls.TLSManager {
	return f.tlsManager
}

func (f *Factory) AuthService() *service.AuthService {
	return f.authService
}
