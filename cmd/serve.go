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

	"github.com/civic-tools/civicd/internal/api"
	"github.com/civic-tools/civicd/pkg/congress"
	"github.com/civic-tools/civicd/pkg/nominatim"
	"github.com/civic-tools/civicd/pkg/usps"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP API server",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		server := api.NewServer(cfg,
			usps.NewClient(cfg.USPS.UserID, usps.WithBaseURL(cfg.USPS.BaseURL)),
			nominatim.NewClient(cfg.Nominatim.UserAgent,
				nominatim.WithBaseURL(cfg.Nominatim.BaseURL),
				nominatim.WithRateLimit(cfg.Nominatim.RateRPS)),
			congress.NewClient(cfg.Congress.APIKey,
				congress.WithBaseURL(cfg.Congress.BaseURL),
				congress.WithPageLimit(cfg.Congress.PageLimit)),
		)

		port := servePort
		if port == 0 {
			port = cfg.Server.Port
		}

		srv := &http.Server{
			Addr:              fmt.Sprintf(":%d", port),
			Handler:           server.Router(),
			ReadHeaderTimeout: 10 * time.Second,
		}

		go func() {
			<-ctx.Done()
			zap.L().Info("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
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

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 0, "server port (default from config)")
	rootCmd.AddCommand(serveCmd)
}
