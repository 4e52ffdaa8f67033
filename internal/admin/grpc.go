package admin

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync"
	"time"

	"go.uber.org/zap"
	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/reflection"
)

// ServiceName is the gRPC health service name reported for the game server.
const ServiceName = "duel.GameServer"

// GRPCHealth serves grpc.health.v1 and keeps the status in step with the
// health aggregator.
type GRPCHealth struct {
	addr     string
	checks   *HealthAggregator
	interval time.Duration
	logger   *zap.Logger

	server *grpc.Server
	health *health.Server

	mu       sync.Mutex
	listener net.Listener
	closing  bool
	quit     chan struct{}
	wg       sync.WaitGroup
}

// NewGRPCHealth creates a health server on addr that re-evaluates checks
// every interval.
//
// Precondition: checks and logger must be non-nil; interval > 0.
func NewGRPCHealth(addr string, checks *HealthAggregator, interval time.Duration, logger *zap.Logger) *GRPCHealth {
	srv := grpc.NewServer()
	hs := health.NewServer()
	healthpb.RegisterHealthServer(srv, hs)
	reflection.Register(srv)

	hs.SetServingStatus("", healthpb.HealthCheckResponse_NOT_SERVING)
	hs.SetServingStatus(ServiceName, healthpb.HealthCheckResponse_NOT_SERVING)

	return &GRPCHealth{
		addr:     addr,
		checks:   checks,
		interval: interval,
		logger:   logger,
		server:   srv,
		health:   hs,
		quit:     make(chan struct{}),
	}
}

// Start serves until Stop is called.
func (g *GRPCHealth) Start() error {
	listener, err := net.Listen("tcp", g.addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", g.addr, err)
	}

	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		listener.Close()
		return nil
	}
	g.listener = listener
	g.wg.Add(1)
	g.mu.Unlock()

	g.refresh()
	go g.watch()

	g.logger.Info("grpc health listening", zap.String("addr", listener.Addr().String()))
	if err := g.server.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("serving grpc health: %w", err)
	}
	return nil
}

// Addr returns the listening address, or "" before Start.
func (g *GRPCHealth) Addr() string {
	g.mu.Lock()
	defer g.mu.Unlock()
	if g.listener == nil {
		return ""
	}
	return g.listener.Addr().String()
}

func (g *GRPCHealth) watch() {
	defer g.wg.Done()
	ticker := time.NewTicker(g.interval)
	defer ticker.Stop()
	for {
		select {
		case <-g.quit:
			return
		case <-ticker.C:
			g.refresh()
		}
	}
}

// refresh runs the checks once and publishes the result.
func (g *GRPCHealth) refresh() {
	ctx, cancel := context.WithTimeout(context.Background(), g.interval)
	defer cancel()

	status := healthpb.HealthCheckResponse_SERVING
	if failures := g.checks.Check(ctx); len(failures) > 0 {
		status = healthpb.HealthCheckResponse_NOT_SERVING
		g.logger.Warn("health checks failing", zap.Any("failures", failures))
	}
	g.health.SetServingStatus("", status)
	g.health.SetServingStatus(ServiceName, status)
}

// Stop marks every service NOT_SERVING and stops the server gracefully.
// It is idempotent.
func (g *GRPCHealth) Stop() {
	g.mu.Lock()
	if g.closing {
		g.mu.Unlock()
		return
	}
	g.closing = true
	g.mu.Unlock()

	close(g.quit)
	g.wg.Wait()
	g.health.Shutdown()
	g.server.GracefulStop()
}
