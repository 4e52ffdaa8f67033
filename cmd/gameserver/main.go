// Package main provides the game server binary: websocket and telnet
// transports in front of the matchmaking loop, plus the admin surface.
package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/admin"
	"github.com/cory-johannsen/duel/internal/cluster"
	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/events"
	"github.com/cory-johannsen/duel/internal/frontend/telnet"
	"github.com/cory-johannsen/duel/internal/frontend/ws"
	"github.com/cory-johannsen/duel/internal/gameserver"
	"github.com/cory-johannsen/duel/internal/observability"
	"github.com/cory-johannsen/duel/internal/physics"
	"github.com/cory-johannsen/duel/internal/server"
	"github.com/cory-johannsen/duel/internal/session"
)

// healthInterval is how often the gRPC health status is re-evaluated.
const healthInterval = 5 * time.Second

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}

	logger, err := observability.NewLogger(cfg.Logging, cfg.Server.Name)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)

	var pub events.Publisher = events.Nop{}
	if cfg.Events.NatsURL != "" {
		nats, err := events.Connect(cfg.Events, cfg.Server.Name, logger)
		if err != nil {
			logger.Fatal("connecting to nats", zap.Error(err))
		}
		pub = nats
		lifecycle.Add("events", nats)
	}

	tick := cfg.Session.TickInterval
	manager := session.NewManager(func(matchID string) session.Core {
		return physics.NewEngine(matchID, tick)
	}, pub, logger)

	game := gameserver.New(cfg.Session, cfg.Latency, manager, logger)
	lifecycle.Add("gameserver", game)

	wsAcceptor := ws.NewAcceptor(cfg.WebSocket, game, logger)
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: wsAcceptor.ListenAndServe,
		StopFn:  wsAcceptor.Stop,
	})

	if cfg.Telnet.Enabled {
		handler := telnet.NewHandler(game, cfg.WebSocket.SendBuffer, logger)
		telnetAcceptor := telnet.NewAcceptor(cfg.Telnet, handler, logger)
		lifecycle.Add("telnet", &server.FuncService{
			StartFn: telnetAcceptor.ListenAndServe,
			StopFn:  telnetAcceptor.Stop,
		})
	}

	health := admin.NewHealthAggregator()
	health.AddCheck("gameserver", func(ctx context.Context) error {
		_, err := game.Snapshot(ctx)
		return err
	})
	health.AddCheck("websocket", func(context.Context) error {
		if wsAcceptor.Addr() == "" {
			return errors.New("not listening")
		}
		return nil
	})

	api := admin.NewAPI(cfg.Admin, cfg.Server.Name, game, health, logger)
	lifecycle.Add("admin", &server.FuncService{
		StartFn: api.ListenAndServe,
		StopFn:  api.Stop,
	})

	if cfg.Admin.GRPCPort != 0 {
		grpcHealth := admin.NewGRPCHealth(cfg.Admin.GRPCAddr(), health, healthInterval, logger)
		lifecycle.Add("grpc-health", grpcHealth)
	}

	if cfg.Cluster.ConsulAddr != "" {
		registrar, err := cluster.NewRegistrar(&cfg, logger)
		if err != nil {
			logger.Fatal("creating consul registrar", zap.Error(err))
		}
		lifecycle.Add("consul", registrar)
	}

	logger.Info("game server initialized",
		zap.Duration("startup", time.Since(start)),
		zap.String("ws_addr", cfg.WebSocket.Addr()),
		zap.Bool("telnet", cfg.Telnet.Enabled),
		zap.String("admin_addr", cfg.Admin.Addr()),
		zap.Duration("latency", cfg.Latency.Initial()),
	)

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
