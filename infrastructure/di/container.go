// Package di wires the application together. Construction is explicit
// provider functions composed in NewContainer; each provider mirrors one
// configuration concern.
package di

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awsdynamodb "github.com/aws/aws-sdk-go-v2/service/dynamodb"
	awseventbridge "github.com/aws/aws-sdk-go-v2/service/eventbridge"
	"go.uber.org/zap"

	"brainflow-backend/application/ports"
	"brainflow-backend/application/services/merge"
	"brainflow-backend/application/services/oracle"
	"brainflow-backend/application/services/organizer"
	"brainflow-backend/application/services/paths"
	"brainflow-backend/application/services/session"
	domaincfg "brainflow-backend/domain/config"
	"brainflow-backend/infrastructure/config"
	"brainflow-backend/infrastructure/messaging/eventbridge"
	"brainflow-backend/infrastructure/messaging/logging"
	mockoracle "brainflow-backend/infrastructure/oracle/mock"
	openaioracle "brainflow-backend/infrastructure/oracle/openai"
	dynamostore "brainflow-backend/infrastructure/persistence/dynamodb"
	"brainflow-backend/infrastructure/persistence/memory"
	sqlitestore "brainflow-backend/infrastructure/persistence/sqlite"
	"brainflow-backend/pkg/auth"
	"brainflow-backend/pkg/observability"
)

// Container holds all application dependencies
type Container struct {
	Config       *config.Config
	DomainConfig *domaincfg.DomainConfig
	Logger       *zap.Logger
	Store        ports.PageStore
	Publisher    ports.EventPublisher
	Oracle       *oracle.Client
	Organizer    *organizer.Service
	Sessions     *session.Manager
	Metrics      *observability.Metrics
	RateLimiter  auth.RateLimiter

	dynamoClient *awsdynamodb.Client
	closers      []func() error
}

// NewContainer builds the full dependency graph from configuration
func NewContainer(ctx context.Context, cfg *config.Config) (*Container, error) {
	logger, err := ProvideLogger(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to create logger: %w", err)
	}

	c := &Container{
		Config: cfg,
		Logger: logger,
	}

	c.DomainConfig = ProvideDomainConfig(cfg, logger)
	c.Metrics = observability.NewMetrics()

	if err := c.provideStore(ctx); err != nil {
		return nil, err
	}
	if err := c.providePublisher(ctx); err != nil {
		return nil, err
	}

	provider, err := ProvideOracleProvider(cfg, logger)
	if err != nil {
		return nil, err
	}
	c.Oracle = oracle.NewClient(provider, c.DomainConfig, logger)

	resolver := paths.NewResolver(c.Store, c.DomainConfig, logger)
	engine := merge.NewEngine(c.DomainConfig, logger)
	c.Organizer = organizer.NewService(c.Store, c.Oracle, resolver, engine, c.Metrics, c.DomainConfig, logger)
	c.Sessions = session.NewManager(ctx, c.Organizer, c.Publisher, c.Metrics, c.DomainConfig, nil, logger)

	// A shared DynamoDB table makes rate limiting survive horizontal scaling;
	// the in-process limiter covers the single-host stores.
	if c.dynamoClient != nil {
		c.RateLimiter = auth.NewDistributedUserRateLimiter(c.dynamoClient, cfg.DynamoDBTable, 120)
	} else {
		c.RateLimiter = auth.NewSlidingWindowLimiter(120, time.Minute)
	}

	if cfg.TuningFile != "" {
		if err := c.watchTuning(cfg.TuningFile); err != nil {
			return nil, err
		}
	}

	return c, nil
}

// Close tears down resources in reverse construction order
func (c *Container) Close() error {
	var firstErr error
	for i := len(c.closers) - 1; i >= 0; i-- {
		if err := c.closers[i](); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// ProvideLogger creates a logger matched to the environment
func ProvideLogger(cfg *config.Config) (*zap.Logger, error) {
	if cfg.IsProduction() {
		return zap.NewProduction()
	}
	return zap.NewDevelopment()
}

// ProvideDomainConfig loads environment defaults plus the tuning overlay
func ProvideDomainConfig(cfg *config.Config, logger *zap.Logger) *domaincfg.DomainConfig {
	dc := domaincfg.LoadDomainConfig(cfg.Environment)

	if cfg.TuningFile != "" {
		tuning, err := config.LoadTuning(cfg.TuningFile)
		if err != nil {
			logger.Warn("Ignoring unreadable tuning file",
				zap.String("path", cfg.TuningFile),
				zap.Error(err),
			)
			return dc
		}
		dc.DebounceDelay, dc.OrganizeThreshold, dc.BatchSize =
			tuning.Apply(dc.DebounceDelay, dc.OrganizeThreshold, dc.BatchSize)
	}
	return dc
}

// ProvideAWSConfig loads the default AWS configuration
func ProvideAWSConfig(ctx context.Context, cfg *config.Config) (aws.Config, error) {
	return awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(cfg.AWSRegion))
}

// ProvideOracleProvider selects the configured oracle backend
func ProvideOracleProvider(cfg *config.Config, logger *zap.Logger) (ports.OracleProvider, error) {
	switch cfg.OracleProvider {
	case "openai":
		return openaioracle.NewProvider(openaioracle.Config{
			APIKey:  cfg.OracleAPIKey,
			BaseURL: cfg.OracleBaseURL,
			Model:   cfg.OracleModel,
			Timeout: time.Duration(cfg.OracleTimeout) * time.Second,
		}, logger), nil
	case "mock":
		return mockoracle.NewProvider(), nil
	default:
		return nil, fmt.Errorf("unknown oracle provider %q", cfg.OracleProvider)
	}
}

func (c *Container) provideStore(ctx context.Context) error {
	switch c.Config.StoreKind {
	case "memory":
		c.Store = memory.NewTreeStore()
	case "sqlite":
		store, err := sqlitestore.NewTreeStore(c.Config.SQLitePath)
		if err != nil {
			return fmt.Errorf("failed to open sqlite store: %w", err)
		}
		c.Store = store
		c.closers = append(c.closers, store.Close)
	case "dynamodb":
		awsCfg, err := ProvideAWSConfig(ctx, c.Config)
		if err != nil {
			return fmt.Errorf("failed to load AWS config: %w", err)
		}
		c.dynamoClient = awsdynamodb.NewFromConfig(awsCfg)
		c.Store = dynamostore.NewTreeStore(c.dynamoClient, c.Config.DynamoDBTable, c.Logger)
	default:
		return fmt.Errorf("unknown store kind %q", c.Config.StoreKind)
	}
	c.Logger.Info("Store configured", zap.String("kind", c.Config.StoreKind))
	return nil
}

func (c *Container) providePublisher(ctx context.Context) error {
	if !c.Config.EnableEvents {
		c.Publisher = logging.NewPublisher(c.Logger)
		return nil
	}
	awsCfg, err := ProvideAWSConfig(ctx, c.Config)
	if err != nil {
		return fmt.Errorf("failed to load AWS config: %w", err)
	}
	client := awseventbridge.NewFromConfig(awsCfg)
	c.Publisher = eventbridge.NewPublisher(client, c.Config.EventBusName, c.Logger)
	c.Logger.Info("EventBridge publisher configured", zap.String("bus", c.Config.EventBusName))
	return nil
}

func (c *Container) watchTuning(path string) error {
	stop, err := config.WatchTuning(path, c.Logger, func(t *config.Tuning) {
		delay, threshold, batchSize := t.Apply(
			c.DomainConfig.DebounceDelay,
			c.DomainConfig.OrganizeThreshold,
			c.DomainConfig.BatchSize,
		)
		c.Sessions.SetTuning(delay, threshold, batchSize)
	})
	if err != nil {
		return fmt.Errorf("failed to watch tuning file: %w", err)
	}
	c.closers = append(c.closers, stop)
	return nil
}
