// cmd/server/main.go
package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/agraham02/family-games/internal/auth"
	"github.com/agraham02/family-games/internal/cache"
	"github.com/agraham02/family-games/internal/config"
	"github.com/agraham02/family-games/internal/database"
	"github.com/agraham02/family-games/internal/games"
	"github.com/agraham02/family-games/internal/games/spades"
	"github.com/agraham02/family-games/internal/handlers"
	"github.com/agraham02/family-games/internal/middleware"
	"github.com/agraham02/family-games/internal/room"
	"github.com/agraham02/family-games/internal/session"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	logger := logrus.New()
	if level, err := logrus.ParseLevel(cfg.LogLevel); err == nil {
		logger.SetLevel(level)
	}

	if cfg.JWTPrivateKeyPath != "" && cfg.JWTPublicKeyPath != "" {
		if err := auth.InitFromPath(cfg.JWTPrivateKeyPath, cfg.JWTPublicKeyPath); err != nil {
			log.Fatalf("auth keys: %v", err)
		}
	} else {
		auth.Init()
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	// Postgres and Redis are both optional; the server is fully functional
	// in memory without them.
	var flagSource games.MetadataSource
	if cfg.DatabaseURL != "" {
		if err := database.ConnectDB(ctx, cfg.DatabaseURL); err != nil {
			logger.Warnf("postgres unavailable, running without persistence: %v", err)
		} else {
			flagSource = database.FlagSource{}
		}
	}
	if cfg.RedisAddr != "" {
		if err := cache.ConnectRedis(cfg.RedisAddr, cfg.RedisDB); err != nil {
			logger.Warnf("redis unavailable, action log disabled: %v", err)
		}
	}

	registry := games.NewRegistry(logger, flagSource)
	registry.Register(spades.New())

	store := room.NewStore(logger)
	orch := session.NewOrchestrator(logger, store, registry)
	srv := handlers.NewServer(logger, store, registry, orch)

	mux := http.NewServeMux()
	logged := middleware.LogMiddleware(logger)

	mux.Handle("/rooms/create", logged(handlers.CreateRoomHandler(srv)))
	mux.Handle("/rooms/join", logged(handlers.JoinRoomHandler(srv)))
	mux.Handle("/rooms/request-join", logged(handlers.RequestJoinHandler(srv)))
	mux.Handle("/rooms/me", logged(handlers.GetRoomHandler(srv)))
	mux.Handle("/rooms/teams/", logged(handlers.UpdateTeamsHandler(srv)))
	mux.Handle("/rooms/ws/", logged(handlers.RoomWSHandler(srv)))
	mux.Handle("/games/list", logged(handlers.ListGamesHandler(srv)))
	mux.Handle("/games/schema", logged(handlers.GameSettingsSchemaHandler(srv)))

	httpServer := &http.Server{
		Addr:    cfg.Addr,
		Handler: mux,
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		logger.Infof("listening on %s", cfg.Addr)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return httpServer.Shutdown(shutdownCtx)
	})

	// Janitor: delete rooms that have sat empty past the grace period.
	g.Go(func() error {
		ticker := time.NewTicker(cfg.EmptyRoomSweepInterval)
		defer ticker.Stop()
		for {
			select {
			case <-gctx.Done():
				return nil
			case now := <-ticker.C:
				if n := store.CleanupEmpty(now); n > 0 {
					logger.Infof("swept %d empty rooms", n)
				}
			}
		}
	})

	if err := g.Wait(); err != nil {
		logger.Fatalf("server exited: %v", err)
	}
	logger.Info("shutdown complete")
}
