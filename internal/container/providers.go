package container

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/garyjia/procureflow/internal/application/dispatcher"
	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/application/procurement"
	"github.com/garyjia/procureflow/internal/application/route"
	"github.com/garyjia/procureflow/internal/application/service"
	"github.com/garyjia/procureflow/internal/application/workflow"
	"github.com/garyjia/procureflow/internal/infrastructure/export"
	infraLark "github.com/garyjia/procureflow/internal/infrastructure/external/lark"
	"github.com/garyjia/procureflow/internal/infrastructure/messaging/kafka"
	"github.com/garyjia/procureflow/internal/infrastructure/persistence/repository"
	"github.com/garyjia/procureflow/internal/infrastructure/persistence/sqlstore"
	"github.com/garyjia/procureflow/pkg/database"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	SqlxDB         *sqlx.DB
	TransactionMgr *sqlstore.DB
}

// ProvideDatabase opens the configured database and applies pending migrations when enabled.
func ProvideDatabase(ctx context.Context, cfg *DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.Open(ctx, database.Config{
		Driver:          cfg.Driver,
		Path:            cfg.Path,
		DSN:             cfg.DSN,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
	}, logger)
	if err != nil {
		return nil, err
	}

	if cfg.AutoMigrate {
		if err := database.NewMigrator(db, logger).Up(); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to run migrations: %w", err)
		}
	}

	return &DatabaseBundle{
		SqlxDB:         db,
		TransactionMgr: sqlstore.NewDB(db, logger),
	}, nil
}

// ProvideRepositories creates all repository instances.
func ProvideRepositories(db *sqlstore.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database is required")
	}

	return &RepositoryBundle{
		Routes:         repository.NewRouteRepository(db, logger),
		Instances:      repository.NewInstanceRepository(db, logger),
		Quotes:         repository.NewQuoteRepository(db, logger),
		QuoteItems:     repository.NewQuoteItemRepository(db, logger),
		PurchaseOrders: repository.NewPurchaseOrderRepository(db, logger),
		Logs:           repository.NewProcurementLogRepository(db, logger),
		Users:          repository.NewUserRepository(db, logger),
	}, nil
}

// ProvideLarkMessenger creates the Lark message sender, or nil when Lark is disabled.
func ProvideLarkMessenger(cfg *LarkConfig, logger *zap.Logger) port.LarkMessageSender {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Lark notifications disabled")
		return nil
	}

	client := infraLark.NewClient(infraLark.Config{
		AppID:     cfg.AppID,
		AppSecret: cfg.AppSecret,
	}, logger)
	return infraLark.NewMessenger(client, logger)
}

// ProvideEventPublisher creates the Kafka publisher, or nil when forwarding is disabled.
func ProvideEventPublisher(cfg *KafkaConfig, logger *zap.Logger) (port.EventPublisher, error) {
	if cfg == nil || !cfg.Enabled {
		logger.Info("Kafka event forwarding disabled")
		return nil, nil
	}

	publisher, err := kafka.NewPublisher(kafka.Config{
		Brokers:  cfg.Brokers,
		Topic:    cfg.Topic,
		ClientID: cfg.ClientID,
	}, logger)
	if err != nil {
		return nil, err
	}
	return publisher, nil
}

// ProvideDispatcher creates the event dispatcher.
func ProvideDispatcher(logger *zap.Logger) (dispatcher.Dispatcher, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return dispatcher.NewDispatcher(
		dispatcher.WithLogger(&zapLoggerAdapter{logger: logger}),
	), nil
}

// CoreDeps holds dependencies for the approval engine and the reconciler.
type CoreDeps struct {
	Repos       *RepositoryBundle
	TxManager   port.TransactionManager
	Dispatcher  dispatcher.Dispatcher
	Procurement *ProcurementConfig
	Logger      *zap.Logger
}

// CoreBundle groups the approval and procurement core.
type CoreBundle struct {
	Routes     *route.Service
	Engine     workflow.ApprovalEngine
	Reconciler *procurement.Reconciler
}

// ProvideCore wires the route service, the reconciler and the approval engine.
// With auto ordering on, a purchase order approval places the order in the same transaction.
func ProvideCore(deps *CoreDeps) (*CoreBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("core dependencies are required")
	}

	if deps.Procurement == nil {
		deps.Procurement = &ProcurementConfig{}
	}
	policy, err := procurement.ParseReversionPolicy(deps.Procurement.ReversionPolicy)
	if err != nil {
		return nil, err
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}
	repos := deps.Repos

	routes := route.NewService(repos.Routes, deps.TxManager, logger)

	reconciler := procurement.NewReconciler(
		repos.PurchaseOrders,
		repos.QuoteItems,
		repos.Quotes,
		repos.Logs,
		deps.TxManager,
		logger,
		procurement.WithPolicy(policy),
		procurement.WithDispatcher(deps.Dispatcher),
		procurement.WithExporter(export.NewLogExporter(deps.Logger)),
	)

	var orderOpts []workflow.PurchaseOrderAdapterOption
	if deps.Procurement.AutoOrderOnApproval {
		orderOpts = append(orderOpts, workflow.WithApprovedOrderHook(reconciler.PlaceApprovedOrder))
	}

	engine := workflow.NewEngine(
		repos.Instances,
		routes,
		deps.TxManager,
		[]workflow.DocumentAdapter{
			workflow.NewQuoteAdapter(repos.Quotes),
			workflow.NewPurchaseOrderAdapter(repos.PurchaseOrders, orderOpts...),
		},
		logger,
		workflow.WithDispatcher(deps.Dispatcher),
	)

	deps.Logger.Info("Approval core wired",
		zap.String("reversion_policy", string(policy)),
		zap.Bool("auto_order_on_approval", deps.Procurement.AutoOrderOnApproval))

	return &CoreBundle{
		Routes:     routes,
		Engine:     engine,
		Reconciler: reconciler,
	}, nil
}

// ServiceDeps holds dependencies for the application services.
type ServiceDeps struct {
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Messenger  port.LarkMessageSender
	Publisher  port.EventPublisher
	Logger     *zap.Logger
}

// ProvideServices creates the application services and subscribes the event consumers.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	logger := &zapLoggerAdapter{logger: deps.Logger}
	repos := deps.Repos

	bundle := &ServiceBundle{
		Documents: service.NewDocumentService(
			repos.Users,
			repos.Quotes,
			repos.QuoteItems,
			repos.PurchaseOrders,
			repos.Routes,
			deps.TxManager,
			logger,
		),
	}

	if deps.Messenger != nil {
		bundle.Notification = service.NewNotificationService(repos.Users, deps.Messenger, logger)
		bundle.Notification.Register(deps.Dispatcher)
	}

	if deps.Publisher != nil {
		bundle.Forwarder = service.NewEventForwarder(deps.Publisher, logger)
		bundle.Forwarder.Register(deps.Dispatcher)
	}

	return bundle, nil
}
