// cmd/gateway-collector/main.go
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/k256-xyz/gateway-go/internal/app"
	"github.com/k256-xyz/gateway-go/internal/config"
	"github.com/k256-xyz/gateway-go/pkg/logger"
)

func main() {
	var cfgFile string

	root := &cobra.Command{
		Use:   "gateway-collector",
		Short: "Solana market-data gateway collector",
		RunE: func(cmd *cobra.Command, args []string) error {
			// 1) Конфиг
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			// 2) Логгер
			log, err := logger.New(logger.Config{
				Level:   cfg.Logging.Level,
				DevMode: cfg.Logging.DevMode,
			})
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			defer log.Sync()

			if cfg.Logging.DevMode {
				cfg.Print()
			}
			log.Info("starting gateway-collector",
				zap.String("version", cfg.ServiceVersion),
				zap.String("endpoint", cfg.Gateway.Endpoint))

			// 3) Graceful shutdown по SIGINT/SIGTERM
			ctx, stop := signal.NotifyContext(context.Background(),
				os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := app.Run(ctx, cfg, log); err != nil {
				log.Error("collector exited with error", zap.Error(err))
				return err
			}
			log.Info("collector stopped")
			return nil
		},
		SilenceUsage: true,
	}

	root.Flags().StringVar(&cfgFile, "config", "", "path to config file (optional)")
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
