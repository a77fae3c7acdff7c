package container

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/procureflow/internal/application/dispatcher"
	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/application/procurement"
	"github.com/garyjia/procureflow/internal/application/route"
	"github.com/garyjia/procureflow/internal/application/service"
	"github.com/garyjia/procureflow/internal/application/workflow"
	"github.com/garyjia/procureflow/internal/infrastructure/observability"
	"github.com/garyjia/procureflow/internal/infrastructure/persistence/sqlstore"
	httpapi "github.com/garyjia/procureflow/internal/interfaces/http"
)

// Container manages all application dependencies and lifecycle.
// It follows Clean Architecture principles with ordered initialization
// and reverse-order teardown.
type Container struct {
	config *Config
	logger *zap.Logger

	// Observability
	shutdownTracing func(context.Context) error

	// Infrastructure - Data
	sqlxDB       *sqlx.DB
	db           *sqlstore.DB
	repositories *RepositoryBundle

	// Infrastructure - External
	larkMessenger port.LarkMessageSender
	publisher     port.EventPublisher

	// Application
	dispatcher dispatcher.Dispatcher
	core       *CoreBundle
	services   *ServiceBundle

	// Interfaces
	server *httpapi.Server

	// Lifecycle
	mu     sync.RWMutex
	ready  atomic.Bool
	closed atomic.Bool
}

// RepositoryBundle groups all repositories for convenient access.
type RepositoryBundle struct {
	Routes         port.RouteRepository
	Instances      port.InstanceRepository
	Quotes         port.QuoteRepository
	QuoteItems     port.QuoteItemRepository
	PurchaseOrders port.PurchaseOrderRepository
	Logs           port.ProcurementLogRepository
	Users          port.UserRepository
}

// ServiceBundle groups all application services.
// Notification and Forwarder are nil when their transport is disabled.
type ServiceBundle struct {
	Documents    service.DocumentService
	Notification service.NotificationService
	Forwarder    *service.EventForwarder
}

// HealthStatus represents the health of all components.
type HealthStatus struct {
	Overall    bool                       `json:"overall"`
	Components map[string]ComponentHealth `json:"components"`
}

// ComponentHealth represents health of a single component.
type ComponentHealth struct {
	Healthy bool   `json:"healthy"`
	Message string `json:"message,omitempty"`
}

// NewContainer creates a new container from configuration.
// It does not initialize components - call Start() to initialize.
func NewContainer(cfg *Config, logger *zap.Logger) (*Container, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	return &Container{
		config: cfg,
		logger: logger,
	}, nil
}

// Start initializes all components.
// Components are initialized in dependency order:
// 1. Tracing
// 2. Database and repositories
// 3. External clients (Lark, Kafka)
// 4. Event dispatcher
// 5. Approval engine and reconciler
// 6. Application services and event consumers
// 7. HTTP server
func (c *Container) Start(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container has been closed")
	}

	if c.ready.Load() {
		return fmt.Errorf("container already started")
	}

	c.logger.Info("Starting container initialization")

	shutdown, err := observability.InitTracing(observability.TracingConfig{
		Enabled:     c.config.Tracing.Enabled,
		ServiceName: c.config.Tracing.ServiceName,
		SampleRatio: c.config.Tracing.SampleRatio,
	}, c.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize tracing: %w", err)
	}
	c.shutdownTracing = shutdown

	if err := c.initDatabase(ctx); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize database: %w", err)
	}
	c.logger.Info("Database initialized")

	if err := c.initExternalClients(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize external clients: %w", err)
	}
	c.logger.Info("External clients initialized")

	if err := c.initApplication(); err != nil {
		c.teardown()
		return fmt.Errorf("failed to initialize application: %w", err)
	}
	c.logger.Info("Application initialized")

	c.server = httpapi.NewServer(httpapi.ServerConfig{
		Host:         c.config.Server.Host,
		Port:         c.config.Server.Port,
		ReadTimeout:  c.config.Server.ReadTimeout,
		WriteTimeout: c.config.Server.WriteTimeout,
		ServiceName:  c.config.Tracing.ServiceName,
	}, httpapi.Services{
		Engine:      c.core.Engine,
		Documents:   c.services.Documents,
		Routes:      c.core.Routes,
		Procurement: c.core.Reconciler,
	}, &zapLoggerAdapter{logger: c.logger})

	c.ready.Store(true)
	c.logger.Info("Container started successfully")

	return nil
}

// Close gracefully shuts down all components in reverse order.
func (c *Container) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return fmt.Errorf("container already closed")
	}

	c.logger.Info("Closing container")
	errs := c.teardown()

	c.closed.Store(true)
	c.ready.Store(false)

	if len(errs) > 0 {
		c.logger.Error("Container closed with errors", zap.Int("error_count", len(errs)))
		return fmt.Errorf("container closed with %d errors", len(errs))
	}

	c.logger.Info("Container closed successfully")
	return nil
}

// teardown releases every initialized component, last started first
func (c *Container) teardown() []error {
	var errs []error

	// Dispatcher first so in-flight handlers finish before their transports close
	if c.dispatcher != nil {
		if err := c.dispatcher.Close(); err != nil {
			c.logger.Error("Failed to close dispatcher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close dispatcher: %w", err))
		} else {
			c.logger.Info("Dispatcher closed")
		}
		c.dispatcher = nil
	}

	if c.publisher != nil {
		if err := c.publisher.Close(); err != nil {
			c.logger.Error("Failed to close event publisher", zap.Error(err))
			errs = append(errs, fmt.Errorf("close publisher: %w", err))
		} else {
			c.logger.Info("Event publisher closed")
		}
		c.publisher = nil
	}

	if c.sqlxDB != nil {
		if err := c.sqlxDB.Close(); err != nil {
			c.logger.Error("Failed to close database", zap.Error(err))
			errs = append(errs, fmt.Errorf("close database: %w", err))
		} else {
			c.logger.Info("Database closed")
		}
		c.sqlxDB = nil
	}

	if c.shutdownTracing != nil {
		if err := c.shutdownTracing(context.Background()); err != nil {
			c.logger.Error("Failed to shut down tracing", zap.Error(err))
			errs = append(errs, fmt.Errorf("shutdown tracing: %w", err))
		}
		c.shutdownTracing = nil
	}

	return errs
}

// Ready returns true when all components are initialized.
func (c *Container) Ready() bool {
	return c.ready.Load()
}

// Health returns health status of all components.
func (c *Container) Health(ctx context.Context) *HealthStatus {
	c.mu.RLock()
	defer c.mu.RUnlock()

	status := &HealthStatus{
		Overall:    true,
		Components: make(map[string]ComponentHealth),
	}

	if c.sqlxDB != nil {
		if err := c.sqlxDB.PingContext(ctx); err != nil {
			status.Components["database"] = ComponentHealth{
				Healthy: false,
				Message: fmt.Sprintf("ping failed: %v", err),
			}
			status.Overall = false
		} else {
			status.Components["database"] = ComponentHealth{Healthy: true}
		}
	} else {
		status.Components["database"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	if c.dispatcher != nil {
		status.Components["dispatcher"] = ComponentHealth{Healthy: true}
	} else {
		status.Components["dispatcher"] = ComponentHealth{
			Healthy: false,
			Message: "not initialized",
		}
		status.Overall = false
	}

	status.Components["lark"] = optionalHealth(c.larkMessenger != nil)
	status.Components["kafka"] = optionalHealth(c.publisher != nil)

	return status
}

func optionalHealth(enabled bool) ComponentHealth {
	if enabled {
		return ComponentHealth{Healthy: true}
	}
	return ComponentHealth{Healthy: true, Message: "disabled"}
}

// initDatabase initializes the database and all repositories using providers.
func (c *Container) initDatabase(ctx context.Context) error {
	dbBundle, err := ProvideDatabase(ctx, &c.config.Database, c.logger)
	if err != nil {
		return err
	}

	c.sqlxDB = dbBundle.SqlxDB
	c.db = dbBundle.TransactionMgr

	repos, err := ProvideRepositories(c.db, c.logger)
	if err != nil {
		c.sqlxDB.Close()
		c.sqlxDB = nil
		return err
	}

	c.repositories = repos
	return nil
}

// initExternalClients initializes the Lark messenger and the Kafka publisher using providers.
func (c *Container) initExternalClients() error {
	c.larkMessenger = ProvideLarkMessenger(&c.config.Lark, c.logger)

	publisher, err := ProvideEventPublisher(&c.config.Kafka, c.logger)
	if err != nil {
		return err
	}
	c.publisher = publisher

	return nil
}

// initApplication wires the dispatcher, the approval core and the services.
func (c *Container) initApplication() error {
	disp, err := ProvideDispatcher(c.logger)
	if err != nil {
		return err
	}
	c.dispatcher = disp

	core, err := ProvideCore(&CoreDeps{
		Repos:       c.repositories,
		TxManager:   c.db,
		Dispatcher:  c.dispatcher,
		Procurement: &c.config.Procurement,
		Logger:      c.logger,
	})
	if err != nil {
		return err
	}
	c.core = core

	services, err := ProvideServices(&ServiceDeps{
		Repos:      c.repositories,
		TxManager:  c.db,
		Dispatcher: c.dispatcher,
		Messenger:  c.larkMessenger,
		Publisher:  c.publisher,
		Logger:     c.logger,
	})
	if err != nil {
		return err
	}
	c.services = services

	return nil
}

// Getters for accessing container components

// DB returns the transaction manager.
func (c *Container) DB() port.TransactionManager {
	return c.db
}

// Repositories returns all repositories.
func (c *Container) Repositories() *RepositoryBundle {
	return c.repositories
}

// Dispatcher returns the event dispatcher.
func (c *Container) Dispatcher() dispatcher.Dispatcher {
	return c.dispatcher
}

// ApprovalEngine returns the approval engine.
func (c *Container) ApprovalEngine() workflow.ApprovalEngine {
	return c.core.Engine
}

// Routes returns the route service.
func (c *Container) Routes() *route.Service {
	return c.core.Routes
}

// Reconciler returns the procurement reconciler.
func (c *Container) Reconciler() *procurement.Reconciler {
	return c.core.Reconciler
}

// Services returns all application services.
func (c *Container) Services() *ServiceBundle {
	return c.services
}

// HTTPServer returns the HTTP server.
func (c *Container) HTTPServer() *httpapi.Server {
	return c.server
}

// Logger returns the container's logger.
func (c *Container) Logger() *zap.Logger {
	return c.logger
}

// Config returns the container's configuration.
func (c *Container) Config() *Config {
	return c.config
}

// zapLoggerAdapter adapts zap.Logger to the key-value Logger interfaces of the application packages.
type zapLoggerAdapter struct {
	logger *zap.Logger
}

func (a *zapLoggerAdapter) Info(msg string, keysAndValues ...interface{}) {
	a.logger.Info(msg, convertToZapFields(keysAndValues...)...)
}

func (a *zapLoggerAdapter) Error(msg string, keysAndValues ...interface{}) {
	a.logger.Error(msg, convertToZapFields(keysAndValues...)...)
}

// convertToZapFields converts key-value pairs to zap fields.
func convertToZapFields(keysAndValues ...interface{}) []zap.Field {
	fields := make([]zap.Field, 0, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		key, ok := keysAndValues[i].(string)
		if !ok {
			continue
		}
		fields = append(fields, zap.Any(key, keysAndValues[i+1]))
	}
	return fields
}
