package main

import (
	"context"
	"database/sql"
	"fmt"
	"net/http"

	"ladderwatch/internal/config"
	"ladderwatch/internal/constants"
	fxmodules "ladderwatch/internal/fx"
	"ladderwatch/internal/ingest"
	"ladderwatch/internal/logger"
	"ladderwatch/internal/middleware"
	"ladderwatch/internal/server"

	"github.com/rs/cors"
	"github.com/rs/zerolog"
	"go.uber.org/fx"
)

func main() {
	fx.New(
		fxmodules.Module,
		fx.Invoke(runServer),
	).Run()
}

func runServer(
	lc fx.Lifecycle,
	srv *server.Server,
	orch *ingest.Orchestrator,
	cfg *config.Config,
	db *sql.DB,
	log zerolog.Logger,
) {
	logger.ApplyLevel(cfg.LogLevel)

	c := cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	})

	requestIDMiddleware := middleware.RequestID(log)
	handler := requestIDMiddleware(c.Handler(srv.Routes()))

	httpSrv := &http.Server{
		Addr:    fmt.Sprintf(":%s", cfg.ServerPort),
		Handler: handler,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			orch.Preload(ctx)
			if cfg.AutoStart {
				orch.Start()
			}

			go func() {
				log.Info().Str("addr", httpSrv.Addr).Msg("server starting")
				if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatal().Err(err).Msg("server failed")
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			log.Info().Msg("shutting down server")
			shutdownCtx, cancel := context.WithTimeout(context.Background(), constants.ShutdownTimeout)
			defer cancel()

			orch.Stop()

			if err := db.Close(); err != nil {
				log.Warn().Err(err).Msg("error closing database connection")
			}

			if err := httpSrv.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("server shutdown failed")
				return err
			}
			log.Info().Msg("server stopped gracefully")
			return nil
		},
	})
}
