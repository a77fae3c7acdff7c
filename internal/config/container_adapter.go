package config

import (
	"strings"

	"github.com/garyjia/procureflow/internal/container"
)

// ToContainerConfig converts the application Config to a container.Config.
// This provides a bridge between the file-based config loaded by viper
// and the container's configuration structure.
func (c *Config) ToContainerConfig() *container.Config {
	return &container.Config{
		Database: container.DatabaseConfig{
			Driver:          c.Database.Driver,
			Path:            c.Database.Path,
			DSN:             c.Database.DSN,
			MaxOpenConns:    c.Database.MaxOpenConns,
			MaxIdleConns:    c.Database.MaxIdleConns,
			ConnMaxLifetime: c.Database.ConnMaxLifetime,
			AutoMigrate:     c.Database.AutoMigrate,
		},
		Lark: container.LarkConfig{
			Enabled:   c.Lark.Enabled,
			AppID:     c.Lark.AppID,
			AppSecret: c.Lark.AppSecret,
		},
		Kafka: container.KafkaConfig{
			Enabled:  c.Kafka.Enabled,
			Brokers:  splitBrokers(c.Kafka.Brokers),
			Topic:    c.Kafka.Topic,
			ClientID: c.Kafka.ClientID,
		},
		Procurement: container.ProcurementConfig{
			ReversionPolicy:     c.Procurement.ReversionPolicy,
			AutoOrderOnApproval: c.Procurement.AutoOrderOnApproval,
		},
		Server: container.ServerConfig{
			Host:         c.Server.Host,
			Port:         c.Server.Port,
			ReadTimeout:  c.Server.ReadTimeout,
			WriteTimeout: c.Server.WriteTimeout,
		},
		Tracing: container.TracingConfig{
			Enabled:     c.Tracing.Enabled,
			ServiceName: c.Tracing.ServiceName,
			SampleRatio: c.Tracing.SampleRatio,
		},
	}
}

// splitBrokers accepts both a YAML list and a comma separated environment value
func splitBrokers(brokers []string) []string {
	var out []string
	for _, b := range brokers {
		for _, part := range strings.Split(b, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}
