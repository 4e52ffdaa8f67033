// Package cluster registers the game server with a Consul agent so load
// balancers and matchctl can discover it.
package cluster

import (
	"fmt"
	"os"
	"strconv"
	"sync"
	"time"

	consul "github.com/hashicorp/consul/api"
	"go.uber.org/zap"

	"github.com/cory-johannsen/duel/internal/config"
)

// deregisterAfter removes an instance whose check stays critical this long.
const deregisterAfter = time.Minute

// agent is the subset of the Consul agent API used for registration.
type agent interface {
	ServiceRegister(reg *consul.AgentServiceRegistration) error
	ServiceDeregister(serviceID string) error
}

// Registrar registers one game server instance on Start and removes it on
// Stop.
type Registrar struct {
	agent  agent
	reg    *consul.AgentServiceRegistration
	logger *zap.Logger

	mu         sync.Mutex
	registered bool
}

// NewRegistrar connects to the Consul agent at cfg.Cluster.ConsulAddr.
//
// Precondition: cfg.Cluster.ConsulAddr must be non-empty.
func NewRegistrar(cfg *config.Config, logger *zap.Logger) (*Registrar, error) {
	ccfg := consul.DefaultConfig()
	ccfg.Address = cfg.Cluster.ConsulAddr
	client, err := consul.NewClient(ccfg)
	if err != nil {
		return nil, fmt.Errorf("creating consul client for %s: %w", cfg.Cluster.ConsulAddr, err)
	}
	return newRegistrar(client.Agent(), Registration(cfg, advertiseHost()), logger), nil
}

func newRegistrar(a agent, reg *consul.AgentServiceRegistration, logger *zap.Logger) *Registrar {
	return &Registrar{agent: a, reg: reg, logger: logger}
}

// advertiseHost is the name the Consul agent uses to reach this instance.
func advertiseHost() string {
	if host := os.Getenv("HOSTNAME"); host != "" {
		return host
	}
	host, err := os.Hostname()
	if err != nil || host == "" {
		return "localhost"
	}
	return host
}

// Registration builds the Consul service entry for this instance. The
// service port is the websocket port and the check polls the admin
// /healthz endpoint on host.
func Registration(cfg *config.Config, host string) *consul.AgentServiceRegistration {
	tags := []string{"websocket"}
	meta := map[string]string{
		"server":  cfg.Server.Name,
		"ws_path": cfg.WebSocket.Path,
	}
	if cfg.Telnet.Enabled {
		tags = append(tags, "telnet")
		meta["telnet_port"] = strconv.Itoa(cfg.Telnet.Port)
	}

	return &consul.AgentServiceRegistration{
		ID:   fmt.Sprintf("%s-%s-%d", cfg.Cluster.ServiceName, host, cfg.WebSocket.Port),
		Name: cfg.Cluster.ServiceName,
		Port: cfg.WebSocket.Port,
		Tags: tags,
		Meta: meta,
		Check: &consul.AgentServiceCheck{
			HTTP:                           fmt.Sprintf("http://%s:%d/healthz", host, cfg.Admin.Port),
			Interval:                       cfg.Cluster.CheckInterval.String(),
			Timeout:                        "5s",
			DeregisterCriticalServiceAfter: deregisterAfter.String(),
		},
	}
}

// ServiceID returns the registered instance ID.
func (r *Registrar) ServiceID() string {
	return r.reg.ID
}

// Start registers the instance. It returns immediately.
func (r *Registrar) Start() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.registered {
		return nil
	}
	if err := r.agent.ServiceRegister(r.reg); err != nil {
		return fmt.Errorf("registering %s with consul: %w", r.reg.ID, err)
	}
	r.registered = true
	r.logger.Info("registered with consul",
		zap.String("service", r.reg.Name),
		zap.String("service_id", r.reg.ID),
		zap.String("check", r.reg.Check.HTTP),
	)
	return nil
}

// Stop deregisters the instance if Start registered it.
func (r *Registrar) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.registered {
		return
	}
	r.registered = false
	if err := r.agent.ServiceDeregister(r.reg.ID); err != nil {
		r.logger.Warn("consul deregistration failed", zap.String("service_id", r.reg.ID), zap.Error(err))
		return
	}
	r.logger.Info("deregistered from consul", zap.String("service_id", r.reg.ID))
}
