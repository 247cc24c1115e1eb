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

	router "chatrelay/internal/adapters/http"
	wsignal "chatrelay/internal/adapters/signal"
	"chatrelay/internal/app"
	"chatrelay/internal/app/orch"
	"chatrelay/internal/config"
	"chatrelay/internal/snapshot"
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Initialize zerolog global logger early so config.Load can use it.
	zerolog.TimeFieldFormat = zerolog.TimeFormatUnix
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	zerolog.SetGlobalLevel(zerolog.InfoLevel)

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load config")
	}
	if lvl, err := zerolog.ParseLevel(cfg.LogLevel); err == nil {
		zerolog.SetGlobalLevel(lvl)
	}

	rooms := app.NewRoomManager()
	registry := app.NewRegistry()
	calls := app.NewCallOrchestrator(cfg.CallTimeout)

	o := &orch.Orchestrator{
		Registry: registry,
		Rooms:    rooms,
		Calls:    calls,
	}

	store := snapshot.NewStore(cfg.SnapshotPath)
	if st, err := store.Load(); err != nil {
		log.Error().Err(err).Msg("snapshot load failed, starting empty")
	} else {
		snapshot.Restore(rooms, st)
		log.Info().Int("rooms", len(st.Rooms)).Msg("restored snapshot")
	}
	go snapshot.Run(ctx, store, rooms, cfg.SnapshotInterval)

	ctl := wsignal.NewController(o, cfg)
	r := router.SetupRouter(ctx, cfg, ctl, rooms)
	addr := fmt.Sprintf(":%d", cfg.Port)

	srv := &http.Server{
		Addr:    addr,
		Handler: r,
	}

	go func() {
		log.Info().Str("addr", addr).Msg("chatrelay server started")
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("server error")
		}
	}()

	<-ctx.Done()
	log.Info().Msg("Shutting down")

	if err := store.Save(snapshot.Collect(rooms)); err != nil {
		log.Error().Err(err).Msg("final snapshot save failed")
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}
	log.Info().Msg("Server exited gracefully")
}
