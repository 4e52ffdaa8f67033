// Package config provides Viper-based configuration loading for the duel server.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// ServerConfig holds process-wide settings.
type ServerConfig struct {
	// Name identifies this instance in logs, events, and service discovery.
	Name string `mapstructure:"name"`
	// ShutdownTimeout bounds how long each service may take to stop.
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// WebSocketConfig holds the WebSocket game transport settings.
type WebSocketConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
	// Path is the HTTP route upgraded to a WebSocket connection.
	Path string `mapstructure:"path"`
	// ReadTimeout is the maximum silence before a connection is considered dead.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-frame write deadline.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	// SendBuffer is the number of outbound messages buffered per connection
	// before further messages are dropped.
	SendBuffer int `mapstructure:"send_buffer"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (w WebSocketConfig) Addr() string {
	return fmt.Sprintf("%s:%d", w.Host, w.Port)
}

// TelnetConfig holds the line-oriented TCP transport settings.
type TelnetConfig struct {
	// Enabled turns the telnet listener on.
	Enabled bool   `mapstructure:"enabled"`
	Host    string `mapstructure:"host"`
	Port    int    `mapstructure:"port"`
	// ReadTimeout is the per-read timeout for telnet connections.
	ReadTimeout time.Duration `mapstructure:"read_timeout"`
	// WriteTimeout is the per-write timeout for telnet connections.
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// Addr returns the "host:port" listen address.
//
// Postcondition: Returns a non-empty string in "host:port" format.
func (t TelnetConfig) Addr() string {
	return fmt.Sprintf("%s:%d", t.Host, t.Port)
}

// AdminConfig holds the operator-facing HTTP and gRPC health endpoints.
type AdminConfig struct {
	Host string `mapstructure:"host"`
	// Port serves the REST admin API.
	Port int `mapstructure:"port"`
	// GRPCPort serves the gRPC health service. Zero disables it.
	GRPCPort int `mapstructure:"grpc_port"`
}

// Addr returns the "host:port" REST listen address.
func (a AdminConfig) Addr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.Port)
}

// GRPCAddr returns the "host:port" gRPC health listen address.
func (a AdminConfig) GRPCAddr() string {
	return fmt.Sprintf("%s:%d", a.Host, a.GRPCPort)
}

// SessionConfig holds match orchestration settings.
type SessionConfig struct {
	// TickInterval is the period of each match's physics update.
	TickInterval time.Duration `mapstructure:"tick_interval"`
	// EventBuffer is the capacity of the server event loop queue.
	EventBuffer int `mapstructure:"event_buffer"`
}

// LatencyConfig holds the simulated network delay settings.
type LatencyConfig struct {
	// InitialMs is the simulated one-way delay applied at startup, in milliseconds.
	InitialMs float64 `mapstructure:"initial_ms"`
	// AllowClientControl lets clients change the delay with "l." messages.
	AllowClientControl bool `mapstructure:"allow_client_control"`
}

// Initial returns InitialMs as a duration.
func (l LatencyConfig) Initial() time.Duration {
	return time.Duration(l.InitialMs * float64(time.Millisecond))
}

// LoggingConfig holds structured logging settings.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	Level string `mapstructure:"level"`
	// Format is the log output format: "json" or "console".
	Format string `mapstructure:"format"`
}

// ClusterConfig holds Consul service registration settings.
// Registration is skipped when ConsulAddr is empty.
type ClusterConfig struct {
	ConsulAddr    string        `mapstructure:"consul_addr"`
	ServiceName   string        `mapstructure:"service_name"`
	CheckInterval time.Duration `mapstructure:"check_interval"`
}

// EventsConfig holds NATS match event publishing settings.
// Publishing is disabled when NatsURL is empty.
type EventsConfig struct {
	NatsURL       string `mapstructure:"nats_url"`
	SubjectPrefix string `mapstructure:"subject_prefix"`
}

// Config is the top-level application configuration.
type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Telnet    TelnetConfig    `mapstructure:"telnet"`
	Admin     AdminConfig     `mapstructure:"admin"`
	Session   SessionConfig   `mapstructure:"session"`
	Latency   LatencyConfig   `mapstructure:"latency"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Cluster   ClusterConfig   `mapstructure:"cluster"`
	Events    EventsConfig    `mapstructure:"events"`
}

// Validate checks all configuration invariants.
//
// Postcondition: Returns nil if configuration is valid, or an error describing all violations.
func (c Config) Validate() error {
	var errs []string

	checks := []error{
		validateServer(c.Server),
		validateWebSocket(c.WebSocket),
		validateTelnet(c.Telnet),
		validateAdmin(c.Admin),
		validateSession(c.Session),
		validateLatency(c.Latency),
		validateLogging(c.Logging),
		validateCluster(c.Cluster),
		validateEvents(c.Events),
	}
	for _, err := range checks {
		if err != nil {
			errs = append(errs, err.Error())
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

func validPort(p int) bool {
	return p >= 1 && p <= 65535
}

func validateServer(s ServerConfig) error {
	var errs []string
	if s.Name == "" {
		errs = append(errs, "server.name must not be empty")
	}
	if s.ShutdownTimeout <= 0 {
		errs = append(errs, fmt.Sprintf("server.shutdown_timeout must be > 0, got %s", s.ShutdownTimeout))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateWebSocket(w WebSocketConfig) error {
	var errs []string
	if !validPort(w.Port) {
		errs = append(errs, fmt.Sprintf("websocket.port must be 1-65535, got %d", w.Port))
	}
	if !strings.HasPrefix(w.Path, "/") {
		errs = append(errs, fmt.Sprintf("websocket.path must start with '/', got %q", w.Path))
	}
	if w.ReadTimeout <= 0 {
		errs = append(errs, "websocket.read_timeout must be positive")
	}
	if w.WriteTimeout <= 0 {
		errs = append(errs, "websocket.write_timeout must be positive")
	}
	if w.SendBuffer < 1 {
		errs = append(errs, fmt.Sprintf("websocket.send_buffer must be >= 1, got %d", w.SendBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateTelnet(t TelnetConfig) error {
	if !t.Enabled {
		return nil
	}
	var errs []string
	if !validPort(t.Port) {
		errs = append(errs, fmt.Sprintf("telnet.port must be 1-65535, got %d", t.Port))
	}
	if t.ReadTimeout < 0 {
		errs = append(errs, "telnet.read_timeout must not be negative")
	}
	if t.WriteTimeout < 0 {
		errs = append(errs, "telnet.write_timeout must not be negative")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateAdmin(a AdminConfig) error {
	var errs []string
	if !validPort(a.Port) {
		errs = append(errs, fmt.Sprintf("admin.port must be 1-65535, got %d", a.Port))
	}
	if a.GRPCPort != 0 && !validPort(a.GRPCPort) {
		errs = append(errs, fmt.Sprintf("admin.grpc_port must be 0 or 1-65535, got %d", a.GRPCPort))
	}
	if a.GRPCPort != 0 && a.GRPCPort == a.Port {
		errs = append(errs, "admin.grpc_port must differ from admin.port")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateSession(s SessionConfig) error {
	var errs []string
	if s.TickInterval <= 0 {
		errs = append(errs, fmt.Sprintf("session.tick_interval must be > 0, got %s", s.TickInterval))
	}
	if s.EventBuffer < 1 {
		errs = append(errs, fmt.Sprintf("session.event_buffer must be >= 1, got %d", s.EventBuffer))
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateLatency(l LatencyConfig) error {
	if l.InitialMs < 0 {
		return fmt.Errorf("latency.initial_ms must be >= 0, got %v", l.InitialMs)
	}
	return nil
}

func validateLogging(l LoggingConfig) error {
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[l.Level] {
		return fmt.Errorf("logging.level must be one of [debug, info, warn, error], got %q", l.Level)
	}
	validFormats := map[string]bool{"json": true, "console": true}
	if !validFormats[l.Format] {
		return fmt.Errorf("logging.format must be one of [json, console], got %q", l.Format)
	}
	return nil
}

func validateCluster(c ClusterConfig) error {
	if c.ConsulAddr == "" {
		return nil
	}
	var errs []string
	if c.ServiceName == "" {
		errs = append(errs, "cluster.service_name must not be empty when cluster.consul_addr is set")
	}
	if c.CheckInterval <= 0 {
		errs = append(errs, "cluster.check_interval must be positive")
	}
	if len(errs) > 0 {
		return fmt.Errorf("%s", strings.Join(errs, "; "))
	}
	return nil
}

func validateEvents(e EventsConfig) error {
	if e.NatsURL == "" {
		return nil
	}
	if e.SubjectPrefix == "" {
		return errors.New("events.subject_prefix must not be empty when events.nats_url is set")
	}
	if strings.ContainsAny(e.SubjectPrefix, " *>") {
		return fmt.Errorf("events.subject_prefix must not contain spaces or wildcards, got %q", e.SubjectPrefix)
	}
	return nil
}

// Load reads configuration from the given file path, applies environment variable
// overrides, and validates the result.
//
// Precondition: path must be a valid file path to a YAML configuration file.
// Postcondition: Returns a valid Config or a non-nil error.
func Load(path string) (Config, error) {
	v := viper.New()
	v.SetConfigFile(path)

	// Environment variable overrides with DUEL_ prefix
	v.SetEnvPrefix("DUEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	SetDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		return Config{}, fmt.Errorf("reading config file: %w", err)
	}

	return LoadFromViper(v)
}

// LoadFromViper builds a Config from an already-configured Viper instance.
//
// Precondition: v must be non-nil and have configuration values set.
// Postcondition: Returns a valid Config or a non-nil error.
func LoadFromViper(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("unmarshalling config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// SetDefaults installs the built-in defaults on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault("server.name", "duel")
	v.SetDefault("server.shutdown_timeout", "10s")

	v.SetDefault("websocket.host", "0.0.0.0")
	v.SetDefault("websocket.port", 4004)
	v.SetDefault("websocket.path", "/ws")
	v.SetDefault("websocket.read_timeout", "60s")
	v.SetDefault("websocket.write_timeout", "10s")
	v.SetDefault("websocket.send_buffer", 256)

	v.SetDefault("telnet.enabled", false)
	v.SetDefault("telnet.host", "0.0.0.0")
	v.SetDefault("telnet.port", 4005)
	v.SetDefault("telnet.read_timeout", "5m")
	v.SetDefault("telnet.write_timeout", "30s")

	v.SetDefault("admin.host", "127.0.0.1")
	v.SetDefault("admin.port", 8090)
	v.SetDefault("admin.grpc_port", 8091)

	v.SetDefault("session.tick_interval", "15ms")
	v.SetDefault("session.event_buffer", 1024)

	v.SetDefault("latency.initial_ms", 0)
	v.SetDefault("latency.allow_client_control", true)

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")

	v.SetDefault("cluster.consul_addr", "")
	v.SetDefault("cluster.service_name", "duel-gameserver")
	v.SetDefault("cluster.check_interval", "10s")

	v.SetDefault("events.nats_url", "")
	v.SetDefault("events.subject_prefix", "duel")
}
