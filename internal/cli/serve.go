package cli

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/rcliao/glucomem/internal/api"
	"github.com/rcliao/glucomem/internal/logger"
	"github.com/rcliao/glucomem/internal/recall"
)

func init() {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve the HTTP API",
		Run:   runServe,
	}

	cmd.Flags().String("addr", "", "Listen address (default: $GLUCOMEM_HTTP_ADDR or :8080)")

	RootCmd.AddCommand(cmd)
}

func runServe(cmd *cobra.Command, args []string) {
	addr, _ := cmd.Flags().GetString("addr")

	cfg := loadConfig()
	if addr != "" {
		cfg.HTTPAddr = addr
	}
	log := logger.New("glucomem").Level(cfg.Level())

	s, err := openStore(cfg)
	if err != nil {
		exitErr("open store", err)
	}
	defer s.Close()

	h := api.NewHandler(s, newConsolidator(cfg, s, log), recall.NewAssembler(s, cfg.Location()), log).
		WithLocation(cfg.Location())
	server := api.NewServer(cfg.HTTPAddr, api.NewRouter(h))

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", cfg.HTTPAddr).Str("db_path", cfg.DBPath).Str("timezone", cfg.Timezone).Msg("HTTP server starting")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
		log.Info().Msg("shutting down server")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := server.Shutdown(shutdownCtx); err != nil {
			log.Error().Stack().Err(err).Msg("server forced to shutdown")
		}
	case err := <-errCh:
		log.Error().Stack().Err(err).Msg("HTTP server failed")
		s.Close()
		exitErr("serve", err)
	}
}
