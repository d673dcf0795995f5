package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/pflag"

	"github.com/siplo/one2one/internal/adapters/engine"
	"github.com/siplo/one2one/internal/adapters/history"
	router "github.com/siplo/one2one/internal/adapters/http"
	signaladapter "github.com/siplo/one2one/internal/adapters/signal"
	"github.com/siplo/one2one/internal/app"
	"github.com/siplo/one2one/internal/app/call"
	"github.com/siplo/one2one/internal/config"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	// Human-friendly output for terminal; in production you may want JSON only.
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	configPath := pflag.String("config", "", "path to config file")
	port := pflag.Int("port", 0, "override listen port")
	engineURI := pflag.String("engine", "", "override media engine ws uri")
	pflag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if *port != 0 {
		cfg.Port = *port
	}
	if *engineURI != "" {
		cfg.EngineWSURI = *engineURI
	}

	registry := app.NewUserRegistry()
	queue := app.NewCandidateQueue()
	recorder := history.NewRecorder()

	prov := &call.Provisioner{
		Engine:        engine.New(),
		EngineAddr:    cfg.EngineWSURI,
		History:       recorder,
		Queue:         queue,
		RecordingsURI: cfg.RecordingsURI,
		StepTimeout:   cfg.StepTimeout,
	}
	calls := call.NewManager(registry, queue, prov, recorder)
	ctrl := signaladapter.NewController(calls, cfg.ReadLimit, cfg.PingPeriod)

	r := router.SetupRouter(ctx, cfg, ctrl)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Str("engine", cfg.EngineWSURI).Msg("one2one signaling server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
