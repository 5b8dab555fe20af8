package main

import (
	"context"
	"fmt"
	"net/http"
	"os"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	zero "github.com/rs/zerolog/log"
	"github.com/sidereusnuntius/feather/internal/activity"
	"github.com/sidereusnuntius/feather/internal/client"
	"github.com/sidereusnuntius/feather/internal/config"
	db "github.com/sidereusnuntius/feather/internal/db/impl"
	"github.com/sidereusnuntius/feather/internal/domain"
	"github.com/sidereusnuntius/feather/internal/initialization"
	"github.com/sidereusnuntius/feather/internal/notify"
	"github.com/sidereusnuntius/feather/internal/queue"
	"github.com/sidereusnuntius/feather/internal/resolver"
	"github.com/sidereusnuntius/feather/internal/web"
	"github.com/sidereusnuntius/feather/internal/wellknown"

	_ "github.com/mattn/go-sqlite3"
)

func main() {
	zero.Logger = zero.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	cfg, err := config.ReadConfig()
	if err != nil {
		zero.Fatal().Err(err).Msg("unable to read configuration")
	}

	d, err := initialization.OpenDB(cfg.DbUrl)
	if err != nil {
		zero.Fatal().Err(err).Msg("unable to open database")
	}
	zero.Info().Msg("database connection established")

	if os.Getenv("SETUP") != "" {
		if err = initialization.SetupDB(&cfg, d, cfg.MigrationsFolder, cfg.DbUrl); err != nil {
			zero.Fatal().Err(err).Msg("migration failed")
		}
	}

	blClient, err := initialization.InitQueue(&cfg)
	if err != nil {
		zero.Fatal().Err(err).Msg("unable to open the task queue database")
	}

	hub := notify.NewHub()
	dd := db.New(cfg, d, hub)

	ctx := context.Background()
	instance, key, err := initialization.EnsureInstanceActor(ctx, dd, &cfg)
	if err != nil {
		zero.Fatal().Err(err).Msg("unable to set up the instance actor")
	}

	keyId := domain.LocalKeyURI(cfg.Url, instance.Username)
	c, err := client.New(cfg, &http.Client{}, key, keyId)
	if err != nil {
		zero.Fatal().Err(err).Send()
	}

	res, err := resolver.New(cfg, dd, c)
	if err != nil {
		zero.Fatal().Err(err).Send()
	}

	q := queue.New(dd, c, blClient)
	machine := activity.New(cfg, dd, c, res, q)
	q.Start(ctx, machine)

	handler := web.New(cfg, dd, machine, res, c, hub)
	router := chi.NewRouter()
	if cfg.Debug {
		router.Use(middleware.Logger)
	}
	handler.Mount(router)
	wellknown.Mount(cfg, dd, router)

	s := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Port),
		Handler: router,
	}

	zero.Info().Uint16("port", cfg.Port).Msg("started server")
	if err = s.ListenAndServe(); err != nil {
		zero.Fatal().Err(err).Msg("server stopped")
	}
}
