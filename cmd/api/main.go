package main

import (
	"net/http"
	"os"

	"github.com/rs/zerolog"

	"github.com/Malick44/ZemwifiApp-sub001/internal/api"
	"github.com/Malick44/ZemwifiApp-sub001/internal/cashin"
	"github.com/Malick44/ZemwifiApp-sub001/internal/config"
	"github.com/Malick44/ZemwifiApp-sub001/internal/reaper"
	"github.com/Malick44/ZemwifiApp-sub001/internal/store"
)

func main() {
	log := zerolog.New(os.Stderr).With().Timestamp().Logger()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}
	if cfg.Env == "development" {
		log = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	pg, err := store.NewPostgres(cfg.DBSource)
	if err != nil {
		log.Fatal().Err(err).Msg("unable to connect to database")
	}
	defer pg.Close()

	// Initialize Layers
	engine := cashin.NewEngine(pg, pg, cashin.Policy{AllowHostPayer: cfg.AllowHostPayer}, log)
	handler := api.NewHandler(engine, pg, log)

	sweeper := reaper.New(engine, cfg.ExpiryWindow, cfg.ExpireAccepted, log)
	if err := sweeper.Start(cfg.ReapSchedule); err != nil {
		log.Fatal().Err(err).Str("schedule", cfg.ReapSchedule).Msg("reaper start failed")
	}
	defer sweeper.Stop()

	log.Info().Str("port", cfg.Port).Str("env", cfg.Env).Msg("server starting")
	if err := http.ListenAndServe(":"+cfg.Port, handler.Router()); err != nil {
		log.Fatal().Err(err).Msg("server stopped")
	}
}
