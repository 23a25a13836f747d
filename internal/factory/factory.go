package factory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"campus-auth/internal/bucketing"
	"campus-auth/internal/client"
	"campus-auth/internal/config"
	"campus-auth/internal/encryption"
	"campus-auth/internal/events"
	"campus-auth/internal/hashing"
	"campus-auth/internal/notify"
	redisrepo "campus-auth/internal/repository/redis"
	"campus-auth/internal/service"
	"campus-auth/internal/store"
	scyllastore "campus-auth/internal/store/scylla"
	"campus-auth/internal/tlsutil"
	"campus-auth/internal/token"
	"campus-auth/internal/util"
)

// Factory owns the lifecycle of every dependency: clients, managers, stores,
// and services. Optional backends (redis, scylla, kafka, clickhouse,
// elasticsearch) are wired only when enabled; in development the service
// degrades to in-memory equivalents so it runs with nothing installed.
type Factory struct {
	config     *config.Config
	tlsManager *tlsutil.Manager

	redisClient      *client.RedisClient
	scyllaClient     *scyllastore.Client
	kafkaProducer    *client.KafkaProducer
	esClient         *client.ESClient
	clickhouseClient *client.ClickHouseClient

	hasher            *hashing.Hasher
	encryptionManager *encryption.Manager
	bucketingManager  *bucketing.Manager
	signer            *token.Signer

	userStore store.UserStore
	notifier  notify.Notifier
	limiter   *redisrepo.OTPLimiter
	recorder  *events.Recorder

	authService      *service.AuthService
	analyticsService *service.AnalyticsService

	closeOnce sync.Once
	closed    chan struct{}
}

// NewFactory loads configuration, initializes logging, and brings up every
// enabled dependency.
func NewFactory() (*Factory, error) {
	cfg := config.LoadConfig()

	util.Init(cfg.Environment, cfg.Logging.Level, cfg.Logging.Format)

	f := &Factory{
		config: cfg,
		closed: make(chan struct{}),
	}

	if cfg.Server.EnableTLS {
		f.tlsManager = tlsutil.NewManager(&cfg.Server)
	}

	if err := f.initializeClients(); err != nil {
		return nil, fmt.Errorf("failed to initialize clients: %w", err)
	}
	if err := f.initializeManagers(); err != nil {
		return nil, fmt.Errorf("failed to initialize managers: %w", err)
	}
	f.initializeCollaborators()

	util.Info("factory initialized",
		util.String("environment", cfg.Environment),
		util.Bool("tls_enabled", cfg.Server.EnableTLS),
		util.Bool("scylla_enabled", cfg.Scylla.Enabled),
		util.Bool("redis_enabled", cfg.Redis.Enabled),
		util.Bool("kms_enabled", cfg.KMS.Enabled),
	)

	return f, nil
}

func (f *Factory) initializeClients() error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var initErrors []error

	if f.config.Redis.Enabled {
		if c, err := client.NewRedisClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("redis: %w", err))
		} else {
			f.redisClient = c
			if err := c.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("redis health check: %w", err))
			}
		}
	}

	if f.config.Scylla.Enabled {
		if c, err := scyllastore.NewClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("scylla: %w", err))
		} else {
			f.scyllaClient = c
			if err := c.HealthCheck(ctx); err != nil {
				initErrors = append(initErrors, fmt.Errorf("scylla health check: %w", err))
			}
		}
	}

	if f.config.Kafka.Enabled {
		if p, err := client.NewKafkaProducer(f.config, util.Get()); err != nil {
			util.Warn("Kafka producer initialization failed, proceeding without Kafka", util.ErrorField(err))
		} else {
			f.kafkaProducer = p
		}
	}

	if f.config.Elasticsearch.Enabled {
		if c, err := client.NewElasticsearchClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("elasticsearch: %w", err))
		} else {
			f.esClient = c
		}
	}

	if f.config.Clickhouse.Enabled {
		if c, err := client.NewClickHouseClient(f.config, util.Get()); err != nil {
			initErrors = append(initErrors, fmt.Errorf("clickhouse: %w", err))
		} else {
			f.clickhouseClient = c
		}
	}

	if len(initErrors) > 0 {
		if f.config.IsProduction() {
			return fmt.Errorf("critical service initialization failed: %v", initErrors)
		}
		for _, err := range initErrors {
			util.Warn("service initialization warning", util.ErrorField(err))
		}
	}
	return nil
}

func (f *Factory) initializeManagers() error {
	f.hasher = hashing.NewHasher(hashing.DefaultParams)
	f.bucketingManager = bucketing.NewManager(f.config.Bucketing.UserBuckets)
	f.signer = token.NewSigner(f.config.Auth.JWTSecret, f.config.Auth.TokenTTL)

	kmsClient, err := encryption.NewKMSClient(context.Background(), f.config)
	if err != nil {
		return fmt.Errorf("kms: %w", err)
	}
	f.encryptionManager = encryption.NewManager(f.config, kmsClient)
	return nil
}

func (f *Factory) initializeCollaborators() {
	if f.scyllaClient != nil {
		f.userStore = scyllastore.NewCredentialStore(
			f.scyllaClient, f.bucketingManager, f.encryptionManager, util.Get())
	} else {
		util.Warn("scylla unavailable, using in-memory credential store")
		f.userStore = store.NewMemory()
	}

	if f.config.SMTP.Enabled {
		f.notifier = notify.NewSMTPNotifier(&f.config.SMTP, util.Get())
	} else {
		f.notifier = notify.NewDevNotifier(util.Get())
	}

	if f.redisClient != nil {
		f.limiter = redisrepo.NewOTPLimiter(f.redisClient, redisrepo.OTPLimiterConfig{
			MaxSends:     f.config.Auth.MaxOTPSends,
			SendWindow:   f.config.Auth.OTPSendWindow,
			MaxAttempts:  f.config.Auth.MaxOTPAttempts,
			LockDuration: f.config.Auth.OTPLockDuration,
		}, util.Get())
	}

	if f.kafkaProducer != nil || f.clickhouseClient != nil || f.esClient != nil {
		f.recorder = events.NewRecorder(events.RecorderOptions{
			Kafka:           f.kafkaProducer,
			ClickHouse:      f.clickhouseClient,
			Elasticsearch:   f.esClient,
			ClickHouseTable: f.config.Clickhouse.Table,
			ESIndex:         f.config.Elasticsearch.Index,
		}, util.Get())

		ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
		defer cancel()
		if err := f.recorder.EnsureSchema(ctx); err != nil {
			util.Warn("failed to prepare event table", util.ErrorField(err))
		}
	}
}

// AuthService returns the credential lifecycle manager, building it on first
// use.
func (f *Factory) AuthService() *service.AuthService {
	if f.authService == nil {
		opts := service.AuthServiceOptions{
			OTPLength: f.config.Auth.OTPLength,
			OTPTTL:    f.config.Auth.OTPTTL,
		}
		if f.limiter != nil {
			opts.Limiter = f.limiter
		}
		if f.recorder != nil {
			opts.Recorder = f.recorder
		}
		f.authService = service.NewAuthService(
			f.userStore, f.notifier, f.signer, f.hasher, util.Get(), opts)
	}
	return f.authService
}

// AnalyticsService returns the event-trail query service, or nil when no
// sinks are configured.
func (f *Factory) AnalyticsService() *service.AnalyticsService {
	if f.recorder == nil {
		return nil
	}
	if f.analyticsService == nil {
		f.analyticsService = service.NewAnalyticsService(f.recorder, util.Get())
	}
	return f.analyticsService
}

func (f *Factory) HealthCheck(ctx context.Context) map[string]error {
	healthErrors := make(map[string]error)

	if f.config.Redis.Enabled {
		if f.redisClient != nil {
			if err := f.redisClient.HealthCheck(ctx); err != nil {
				healthErrors["redis"] = err
			}
		} else {
			healthErrors["redis"] = fmt.Errorf("redis client not initialized")
		}
	}

	if f.config.Scylla.Enabled {
		if f.scyllaClient != nil {
			if err := f.scyllaClient.HealthCheck(ctx); err != nil {
				healthErrors["scylla"] = err
			}
		} else {
			healthErrors["scylla"] = fmt.Errorf("scylla client not initialized")
		}
	}

	if f.esClient != nil {
		if err := f.esClient.HealthCheck(ctx); err != nil {
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
	// kafka is best-effort: events degrade, auth does not
	delete(healthErrors, "kafka")
	return len(healthErrors) == 0
}

// Close shuts dependencies down in reverse dependency order. Safe to call
// more than once.
func (f *Factory) Close() error {
	f.closeOnce.Do(func() {
		close(f.closed)
		util.Info("shutting down factory")

		if f.clickhouseClient != nil {
			if err := f.clickhouseClient.Close(); err != nil {
				util.Error("failed to close ClickHouse client", util.ErrorField(err))
			}
		}
		if f.esClient != nil {
			f.esClient.Close()
		}
		if f.kafkaProducer != nil {
			if err := f.kafkaProducer.Close(); err != nil {
				util.Error("failed to close Kafka producer", util.ErrorField(err))
			}
		}
		if f.scyllaClient != nil {
			f.scyllaClient.Close()
		}
		if f.redisClient != nil {
			if err := f.redisClient.Close(); err != nil {
				util.Error("failed to close Redis client", util.ErrorField(err))
			}
		}

		util.Sync()
		util.Info("factory shutdown completed")
	})
	return nil
}

func (f *Factory) WaitForClose() {
	<-f.closed
}

func (f *Factory) Config() *config.Config {
	return f.config
}

func (f *Factory) TLSManager() *tlsutil.Manager {
	return f.tlsManager
}

func (f *Factory) Signer() *token.Signer {
	return f.signer
}
