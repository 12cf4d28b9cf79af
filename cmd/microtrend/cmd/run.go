package cmd

import (
	"context"
	"fmt"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/kjannette/microtrend-backend/internal/api"
	"github.com/kjannette/microtrend-backend/internal/bot"
)

const banner = `
╔══════════════════════════════════════╗
║      MicroTrend Futures Bot          ║
║                                      ║
╚══════════════════════════════════════╝
`

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the API server and, with AUTO_START, the trading loop",
	Args:  cobra.NoArgs,
	RunE:  runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)
}

func runServer(cmd *cobra.Command, args []string) error {
	fmt.Fprint(cmd.OutOrStdout(), banner)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	a, err := buildApp(ctx)
	if err != nil {
		return err
	}
	defer a.close()
	cfg, log := a.cfg, a.log

	svc := bot.NewService(ctx, a.engine, bot.ServiceOptions{
		Interval: cfg.CycleInterval(),
		Offset:   cfg.CycleOffset(),
		Cooldown: cfg.ErrorCooldown(),
	}, a.notify, log)

	srv := api.NewServer(svc, api.Options{
		Port:       cfg.APIPort,
		APIKey:     cfg.APIKey,
		CORSOrigin: cfg.CORSAllowOrigin,
		Checks:     a.checks,
		Logger:     log,
	})
	errCh := make(chan error, 1)
	go func() { errCh <- srv.Start() }()

	if cfg.AutoStart {
		svc.Start()
	} else {
		log.Info("trading loop idle, POST /v1/start to begin")
	}

	select {
	case <-ctx.Done():
		log.Info("shutting down gracefully")
	case err := <-errCh:
		if err != nil {
			log.Error("api server failed", zap.Error(err))
			svc.Stop()
			return err
		}
	}

	svc.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api shutdown", zap.Error(err))
	}
	log.Info("shutdown complete")
	return nil
}
