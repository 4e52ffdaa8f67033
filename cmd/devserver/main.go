// Package main provides the all-in-one development server. It runs the game
// server with both transports and the admin API, skips Consul and NATS, and
// can fill the lobby with in-process bots.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"time"

	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/admin"
	"github.com/cory-johannsen/duel/internal/config"
	"github.com/cory-johannsen/duel/internal/events"
	"github.com/cory-johannsen/duel/internal/frontend/telnet"
	"github.com/cory-johannsen/duel/internal/frontend/ws"
	"github.com/cory-johannsen/duel/internal/gameserver"
	"github.com/cory-johannsen/duel/internal/loadbot"
	"github.com/cory-johannsen/duel/internal/observability"
	"github.com/cory-johannsen/duel/internal/physics"
	"github.com/cory-johannsen/duel/internal/server"
	"github.com/cory-johannsen/duel/internal/session"
)

func main() {
	start := time.Now()

	configPath := flag.String("config", "configs/dev.yaml", "path to configuration file")
	bots := flag.Int("bots", 0, "number of in-process bots to connect")
	latencyMs := flag.Float64("latency", -1, "override the initial simulated latency in milliseconds")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	cfg.Telnet.Enabled = true
	cfg.Logging.Format = "console"
	if *latencyMs >= 0 {
		cfg.Latency.InitialMs = *latencyMs
	}

	logger, err := observability.NewLogger(cfg.Logging, cfg.Server.Name)
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	logger.Info("starting development server",
		zap.String("ws_addr", cfg.WebSocket.Addr()),
		zap.String("telnet_addr", cfg.Telnet.Addr()),
		zap.String("admin_addr", cfg.Admin.Addr()),
	)

	tick := cfg.Session.TickInterval
	manager := session.NewManager(func(matchID string) session.Core {
		return physics.NewEngine(matchID, tick)
	}, events.Nop{}, logger)
	game := gameserver.New(cfg.Session, cfg.Latency, manager, logger)

	wsAcceptor := ws.NewAcceptor(cfg.WebSocket, game, logger)
	telnetAcceptor := telnet.NewAcceptor(cfg.Telnet, telnet.NewHandler(game, cfg.WebSocket.SendBuffer, logger), logger)

	health := admin.NewHealthAggregator()
	health.AddCheck("gameserver", func(ctx context.Context) error {
		_, err := game.Snapshot(ctx)
		return err
	})
	api := admin.NewAPI(cfg.Admin, cfg.Server.Name, game, health, logger)

	lifecycle := server.NewLifecycle(logger, cfg.Server.ShutdownTimeout)
	lifecycle.Add("gameserver", game)
	lifecycle.Add("websocket", &server.FuncService{
		StartFn: wsAcceptor.ListenAndServe,
		StopFn:  wsAcceptor.Stop,
	})
	lifecycle.Add("telnet", &server.FuncService{
		StartFn: telnetAcceptor.ListenAndServe,
		StopFn:  telnetAcceptor.Stop,
	})
	lifecycle.Add("admin", &server.FuncService{
		StartFn: api.ListenAndServe,
		StopFn:  api.Stop,
	})

	if *bots > 0 {
		botCtx, cancelBots := context.WithCancel(context.Background())
		done := make(chan struct{})
		url := fmt.Sprintf("ws://127.0.0.1:%d%s", cfg.WebSocket.Port, cfg.WebSocket.Path)
		swarm := loadbot.NewSwarm(*bots, 100*time.Millisecond, loadbot.Config{
			URL:           url,
			InputInterval: 100 * time.Millisecond,
			PingEvery:     10,
			Colors:        []string{"red", "blue"},
		}, logger.Named("bots"))
		lifecycle.Add("bots", &server.FuncService{
			StartFn: func() error {
				defer close(done)
				// give the websocket listener a moment to bind
				select {
				case <-botCtx.Done():
					return nil
				case <-time.After(500 * time.Millisecond):
				}
				summary, err := swarm.Run(botCtx)
				if err != nil {
					return err
				}
				logger.Info("bots finished", zap.Any("summary", summary))
				return nil
			},
			StopFn: func() {
				cancelBots()
				<-done
			},
		})
	}

	logger.Info("development server initialized", zap.Duration("startup", time.Since(start)))

	if err := lifecycle.Run(context.Background()); err != nil {
		logger.Fatal("server error", zap.Error(err))
	}
}
