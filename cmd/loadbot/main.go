// Package main provides a load generator that plays many synthetic duels
// against a running game server.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/cory-johannsen/duel/internal/loadbot"
)

func main() {
	url := flag.String("url", "ws://127.0.0.1:4004/ws", "websocket endpoint")
	bots := flag.Int("bots", 10, "number of bots")
	duration := flag.Duration("duration", 30*time.Second, "how long to play")
	interval := flag.Duration("input-interval", 50*time.Millisecond, "period between input batches")
	pingEvery := flag.Int("ping-every", 20, "send a ping after this many input batches (0 disables)")
	stagger := flag.Duration("stagger", 10*time.Millisecond, "delay between bot connections")
	colors := flag.String("colors", "red,blue,green", "comma-separated colours to cycle through")
	verbose := flag.Bool("v", false, "debug logging")
	flag.Parse()

	if *bots <= 0 || *interval <= 0 {
		flag.Usage()
		os.Exit(1)
	}

	zapCfg := zap.NewDevelopmentConfig()
	if !*verbose {
		zapCfg.Level = zap.NewAtomicLevelAt(zap.InfoLevel)
	}
	logger, err := zapCfg.Build()
	if err != nil {
		log.Fatalf("initializing logger: %v", err)
	}
	defer logger.Sync()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()
	ctx, cancelRun := context.WithTimeout(ctx, *duration)
	defer cancelRun()

	var palette []string
	if *colors != "" {
		palette = strings.Split(*colors, ",")
	}

	logger.Info("starting bots",
		zap.String("url", *url),
		zap.Int("bots", *bots),
		zap.Duration("duration", *duration),
	)
	swarm := loadbot.NewSwarm(*bots, *stagger, loadbot.Config{
		URL:           *url,
		InputInterval: *interval,
		PingEvery:     *pingEvery,
		Colors:        palette,
	}, logger)

	summary, err := swarm.Run(ctx)
	if err != nil {
		logger.Fatal("running bots", zap.Error(err))
	}

	enc := yaml.NewEncoder(os.Stdout)
	enc.SetIndent(2)
	if err := enc.Encode(summary); err != nil {
		logger.Fatal("writing summary", zap.Error(err))
	}
	if summary.Failed > 0 {
		os.Exit(2)
	}
}
