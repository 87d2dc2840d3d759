package main

import (
	"context"
	"log"
	"net/http"

	"github.com/coder/websocket"
	"go.uber.org/zap"

	"github.com/avalonline/avalon-backend/internal/config"
	"github.com/avalonline/avalon-backend/internal/httpapi"
	"github.com/avalonline/avalon-backend/internal/registry"
	"github.com/avalonline/avalon-backend/internal/store"
	"github.com/avalonline/avalon-backend/internal/ws"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal(err)
	}

	logger, err := zap.NewProduction()
	if err != nil {
		log.Fatal(err)
	}
	defer logger.Sync()

	st, err := store.Open(cfg.DatabaseURL, logger)
	if err != nil {
		logger.Fatal("opening store", zap.Error(err))
	}

	ctx := context.Background()
	reg := registry.New(ctx, registry.Deps{
		Stats: st,
		Log:   logger,
		Grace: cfg.EvictionGrace,
	})

	var acceptOpts *websocket.AcceptOptions
	if cfg.Dev {
		acceptOpts = &websocket.AcceptOptions{InsecureSkipVerify: true}
	}
	sockets := &ws.Server{
		Registry: reg,
		Store:    st,
		Log:      logger,
		Accept:   acceptOpts,
	}

	handler := httpapi.SetupRoutes(httpapi.New(reg, st, logger), sockets)

	logger.Info("listening", zap.String("addr", cfg.Addr))
	if err := http.ListenAndServe(cfg.Addr, handler); err != nil {
		logger.Fatal("server stopped", zap.Error(err))
	}
}
