package handler

import (
	"context"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/wadjakorntonsri/tinylink/pkg/adapters/handler"
	"github.com/wadjakorntonsri/tinylink/pkg/adapters/repository"
	"github.com/wadjakorntonsri/tinylink/pkg/config"
	"github.com/wadjakorntonsri/tinylink/pkg/core/services"
	"github.com/wadjakorntonsri/tinylink/pkg/logger"
)

var mux http.Handler

func init() {
	cfg := config.Load()
	logger.Init(cfg.AppEnv, cfg.LogLevel)

	// Note: On Vercel, db.sqlite is ephemeral unless DATABASE_URL points at Turso or PostgreSQL
	repo, err := repository.Open(context.Background(), cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}

	mux = handler.NewRouter(cfg, services.NewLinkService(repo))
}

// Handler is the entrypoint for Vercel
func Handler(w http.ResponseWriter, r *http.Request) {
	mux.ServeHTTP(w, r)
}
