// Package container provides dependency injection and lifecycle management
// for the procurement approval service following Clean Architecture principles.
package container

import (
	"fmt"
	"time"

	"github.com/garyjia/procureflow/internal/application/procurement"
	"github.com/garyjia/procureflow/pkg/database"
)

// Config holds all configuration for the Container.
// It aggregates configurations for all subsystems.
type Config struct {
	// Database configuration
	Database DatabaseConfig

	// Lark messaging configuration
	Lark LarkConfig

	// Kafka event forwarding configuration
	Kafka KafkaConfig

	// Procurement reconciliation configuration
	Procurement ProcurementConfig

	// Server configuration
	Server ServerConfig

	// Tracing configuration
	Tracing TracingConfig
}

// DatabaseConfig holds database connection settings.
type DatabaseConfig struct {
	// Driver is sqlite3 or pgx
	Driver string

	// Path to SQLite database file
	Path string

	// DSN overrides Path; required for pgx
	DSN string

	// MaxOpenConns is the maximum number of open connections
	MaxOpenConns int

	// MaxIdleConns is the maximum number of idle connections
	MaxIdleConns int

	// ConnMaxLifetime is the maximum connection lifetime
	ConnMaxLifetime time.Duration

	// AutoMigrate applies pending migrations on start
	AutoMigrate bool
}

// LarkConfig holds Lark API settings.
type LarkConfig struct {
	// Enabled turns on approval notifications
	Enabled bool

	// AppID is the Lark application ID
	AppID string

	// AppSecret is the Lark application secret
	AppSecret string
}

// KafkaConfig holds event forwarding settings.
type KafkaConfig struct {
	// Enabled turns on forwarding of committed events
	Enabled bool

	// Brokers lists the bootstrap brokers
	Brokers []string

	// Topic receives every domain event
	Topic string

	// ClientID identifies the producer
	ClientID string
}

// ProcurementConfig holds reconciliation settings.
type ProcurementConfig struct {
	// ReversionPolicy is recompute or always_reset
	ReversionPolicy string

	// AutoOrderOnApproval orders a purchase order as soon as its approval completes
	AutoOrderOnApproval bool
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	// Host to bind to
	Host string

	// Port to listen on
	Port int

	// ReadTimeout for HTTP server
	ReadTimeout time.Duration

	// WriteTimeout for HTTP server
	WriteTimeout time.Duration
}

// TracingConfig holds OpenTelemetry settings.
type TracingConfig struct {
	Enabled     bool
	ServiceName string
	SampleRatio float64
}

// DefaultConfig returns a Config with sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Database: DatabaseConfig{
			Driver:          database.DriverSQLite,
			Path:            "data/procureflow.db",
			MaxOpenConns:    1,
			MaxIdleConns:    1,
			ConnMaxLifetime: 5 * time.Minute,
			AutoMigrate:     true,
		},
		Kafka: KafkaConfig{
			Topic:    "procureflow.events",
			ClientID: "procureflow",
		},
		Procurement: ProcurementConfig{
			ReversionPolicy: string(procurement.ReversionRecompute),
		},
		Server: ServerConfig{
			Host:         "0.0.0.0",
			Port:         8080,
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		Tracing: TracingConfig{
			ServiceName: "procureflow",
			SampleRatio: 1,
		},
	}
}

// Validate checks that required configuration values are present.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case "", database.DriverSQLite:
		if c.Database.Path == "" && c.Database.DSN == "" {
			return fmt.Errorf("database.path is required")
		}
	case database.DriverPostgres:
		if c.Database.DSN == "" {
			return fmt.Errorf("database.dsn is required for driver %s", c.Database.Driver)
		}
	default:
		return fmt.Errorf("unsupported database.driver %q", c.Database.Driver)
	}

	if c.Lark.Enabled {
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required")
		}
	}

	if c.Kafka.Enabled {
		if len(c.Kafka.Brokers) == 0 {
			return fmt.Errorf("kafka.brokers is required")
		}
		if c.Kafka.Topic == "" {
			return fmt.Errorf("kafka.topic is required")
		}
	}

	if _, err := procurement.ParseReversionPolicy(c.Procurement.ReversionPolicy); err != nil {
		return fmt.Errorf("procurement.reversion_policy: %w", err)
	}

	return nil
}
