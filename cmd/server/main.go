package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/procureflow/internal/application/port"
	"github.com/garyjia/procureflow/internal/config"
	"github.com/garyjia/procureflow/internal/container"
	"github.com/garyjia/procureflow/pkg/database"
	"github.com/garyjia/procureflow/pkg/utils"
)

const version = "1.0.0"

func main() {
	var configPath string

	rootCmd := &cobra.Command{
		Use:           "procureflow",
		Short:         "Quote and purchase order approval service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "configs/config.yaml", "path to the YAML config file")

	rootCmd.AddCommand(
		serveCommand(&configPath),
		migrateCommand(&configPath),
		exportLogsCommand(&configPath),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// bootstrap loads configuration and builds the logger shared by every command
func bootstrap(configPath string) (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load configuration: %w", err)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func serveCommand(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			logger.Info("Starting procureflow",
				zap.String("version", version),
				zap.Int("port", cfg.Server.Port))

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
			if err != nil {
				return err
			}
			if err := c.Start(ctx); err != nil {
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					logger.Error("Shutdown finished with errors", zap.Error(err))
				}
			}()

			if err := c.HTTPServer().Start(ctx); err != nil {
				logger.Error("Server stopped", zap.Error(err))
				return err
			}

			logger.Info("Server exited")
			return nil
		},
	}
}

func migrateCommand(configPath *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "manage the database schema",
	}

	run := func(apply func(*database.Migrator) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			db, err := database.Open(cmd.Context(), database.Config{
				Driver: cfg.Database.Driver,
				Path:   cfg.Database.Path,
				DSN:    cfg.Database.DSN,
			}, logger)
			if err != nil {
				return err
			}
			defer db.Close()

			return apply(database.NewMigrator(db, logger))
		}
	}

	cmd.AddCommand(
		&cobra.Command{
			Use:   "up",
			Short: "migrate all the way up",
			Args:  cobra.NoArgs,
			RunE:  run((*database.Migrator).Up),
		},
		&cobra.Command{
			Use:   "down",
			Short: "roll back every migration",
			Args:  cobra.NoArgs,
			RunE:  run((*database.Migrator).Down),
		},
		&cobra.Command{
			Use:   "version",
			Short: "print the applied schema version",
			Args:  cobra.NoArgs,
			RunE: run(func(m *database.Migrator) error {
				v, dirty, err := m.Version()
				if err != nil {
					return err
				}
				fmt.Printf("version=%d dirty=%t\n", v, dirty)
				return nil
			}),
		},
	)
	return cmd
}

func exportLogsCommand(configPath *string) *cobra.Command {
	var (
		orderID int64
		itemID  int64
		out     string
	)

	cmd := &cobra.Command{
		Use:   "export-logs",
		Short: "write procurement logs to an xlsx workbook",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if orderID == 0 && itemID == 0 {
				return fmt.Errorf("one of --order-id or --item-id is required")
			}

			cfg, logger, err := bootstrap(*configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			c, err := container.NewContainer(cfg.ToContainerConfig(), logger)
			if err != nil {
				return err
			}
			ctx := context.Background()
			if err := c.Start(ctx); err != nil {
				return err
			}
			defer c.Close()

			f, err := os.Create(out)
			if err != nil {
				return fmt.Errorf("create %s: %w", out, err)
			}
			defer f.Close()

			filter := port.LogFilter{PurchaseOrderID: orderID, QuoteItemID: itemID}
			if err := c.Reconciler().ExportLogs(ctx, filter, f); err != nil {
				return err
			}

			logger.Info("Procurement logs exported", zap.String("path", out))
			return nil
		},
	}

	cmd.Flags().Int64Var(&orderID, "order-id", 0, "purchase order whose logs to export")
	cmd.Flags().Int64Var(&itemID, "item-id", 0, "quote item whose logs to export")
	cmd.Flags().StringVarP(&out, "out", "o", "procurement_logs.xlsx", "output file")
	return cmd
}
