package main

import (
	"context"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/sells-group/utility-bills/internal/analytics"
	"github.com/sells-group/utility-bills/internal/server"
)

const shutdownTimeout = 30 * time.Second

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the upload and reporting HTTP server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		env, err := initPipeline(ctx, "serve")
		if err != nil {
			return err
		}
		defer env.Close()

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		scfg := serverConfig()
		scfg.Breaker = env.Breaker

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.New(scfg, env.Pipeline, env.Store, env.Metrics).Handler(),
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       cfg.Server.ReadTimeout(),
			WriteTimeout:      cfg.Server.WriteTimeout(),
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := srv.Shutdown(shutdownCtx); err != nil {
				zap.L().Warn("server shutdown", zap.Error(err))
			}
		}()

		zap.L().Info("starting server", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			return eris.Wrap(err, "server listen")
		}

		return nil
	},
}

func serverConfig() server.Config {
	return server.Config{
		CSRFCookie:     cfg.Upload.CSRFCookie,
		CORSOrigins:    cfg.Server.CORSOrigins,
		UploadRPS:      cfg.Server.UploadRPS,
		UploadBurst:    cfg.Server.UploadBurst,
		MaxUploadBytes: cfg.Upload.MaxBytes,
		Thresholds:     thresholds(),
	}
}

func thresholds() analytics.Thresholds {
	return analytics.Thresholds{
		VariancePct:   cfg.Analytics.VarianceThresholdPct,
		UnderuseRatio: cfg.Analytics.UnderuseRatio,
	}
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
