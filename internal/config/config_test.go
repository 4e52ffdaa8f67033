package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"
)

func validConfig() Config {
	return Config{
		Server: ServerConfig{
			Name:            "duel",
			ShutdownTimeout: 10 * time.Second,
		},
		WebSocket: WebSocketConfig{
			Host:         "0.0.0.0",
			Port:         4004,
			Path:         "/ws",
			ReadTimeout:  time.Minute,
			WriteTimeout: 10 * time.Second,
			SendBuffer:   256,
		},
		Telnet: TelnetConfig{
			Enabled:      true,
			Host:         "0.0.0.0",
			Port:         4005,
			ReadTimeout:  5 * time.Minute,
			WriteTimeout: 30 * time.Second,
		},
		Admin: AdminConfig{
			Host:     "127.0.0.1",
			Port:     8090,
			GRPCPort: 8091,
		},
		Session: SessionConfig{
			TickInterval: 15 * time.Millisecond,
			EventBuffer:  1024,
		},
		Latency: LatencyConfig{
			AllowClientControl: true,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
	}
}

func TestValidConfig(t *testing.T) {
	cfg := validConfig()
	assert.NoError(t, cfg.Validate())
}

func TestAddrs(t *testing.T) {
	cfg := validConfig()
	assert.Equal(t, "0.0.0.0:4004", cfg.WebSocket.Addr())
	assert.Equal(t, "0.0.0.0:4005", cfg.Telnet.Addr())
	assert.Equal(t, "127.0.0.1:8090", cfg.Admin.Addr())
	assert.Equal(t, "127.0.0.1:8091", cfg.Admin.GRPCAddr())
}

func TestLatencyInitial(t *testing.T) {
	l := LatencyConfig{InitialMs: 150}
	assert.Equal(t, 150*time.Millisecond, l.Initial())

	l = LatencyConfig{InitialMs: 0.5}
	assert.Equal(t, 500*time.Microsecond, l.Initial())
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	err := os.WriteFile(path, []byte(`
server:
  name: duel-test
websocket:
  port: 5004
  path: /play
telnet:
  enabled: true
  host: 127.0.0.1
  port: 5005
latency:
  initial_ms: 150
  allow_client_control: false
logging:
  level: debug
  format: console
`), 0644)
	require.NoError(t, err)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "duel-test", cfg.Server.Name)
	assert.Equal(t, 5004, cfg.WebSocket.Port)
	assert.Equal(t, "/play", cfg.WebSocket.Path)
	assert.True(t, cfg.Telnet.Enabled)
	assert.Equal(t, 5005, cfg.Telnet.Port)
	assert.Equal(t, 150*time.Millisecond, cfg.Latency.Initial())
	assert.False(t, cfg.Latency.AllowClientControl)
	assert.Equal(t, "debug", cfg.Logging.Level)

	// defaults fill the rest
	assert.Equal(t, 15*time.Millisecond, cfg.Session.TickInterval)
	assert.Equal(t, 256, cfg.WebSocket.SendBuffer)
	assert.Equal(t, 10*time.Second, cfg.Server.ShutdownTimeout)
}

func TestLoadEnvOverride(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "test.yaml")
	require.NoError(t, os.WriteFile(path, []byte("server:\n  name: file-name\n"), 0644))

	t.Setenv("DUEL_SERVER_NAME", "env-name")
	t.Setenv("DUEL_LATENCY_INITIAL_MS", "75")

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-name", cfg.Server.Name)
	assert.Equal(t, 75*time.Millisecond, cfg.Latency.Initial())
}

func TestLoadInvalidPath(t *testing.T) {
	_, err := Load("/nonexistent/path.yaml")
	assert.Error(t, err)
}

func TestLoadFromViperDefaults(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	cfg, err := LoadFromViper(v)
	require.NoError(t, err)
	assert.Equal(t, "duel", cfg.Server.Name)
	assert.False(t, cfg.Telnet.Enabled)
	assert.Empty(t, cfg.Cluster.ConsulAddr)
	assert.Empty(t, cfg.Events.NatsURL)
}

func TestLoadFromViperInvalid(t *testing.T) {
	v := viper.New()
	SetDefaults(v)
	v.Set("logging.level", "trace")
	v.Set("websocket.port", 0)
	_, err := LoadFromViper(v)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "logging.level")
	assert.Contains(t, err.Error(), "websocket.port")
}

func TestValidateServer(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Name = ""
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Server.ShutdownTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateWebSocket(t *testing.T) {
	cfg := validConfig()
	cfg.WebSocket.Path = "ws"
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.WebSocket.SendBuffer = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.WebSocket.ReadTimeout = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateTelnetPort(t *testing.T) {
	cfg := validConfig()
	cfg.Telnet.Port = 0
	assert.Error(t, cfg.Validate())

	// a disabled listener is not checked
	cfg.Telnet.Enabled = false
	assert.NoError(t, cfg.Validate())
}

func TestValidateAdmin(t *testing.T) {
	cfg := validConfig()
	cfg.Admin.GRPCPort = 0
	assert.NoError(t, cfg.Validate(), "grpc health is optional")

	cfg = validConfig()
	cfg.Admin.GRPCPort = cfg.Admin.Port
	assert.Error(t, cfg.Validate())
}

func TestValidateSession(t *testing.T) {
	cfg := validConfig()
	cfg.Session.TickInterval = 0
	assert.Error(t, cfg.Validate())

	cfg = validConfig()
	cfg.Session.EventBuffer = 0
	assert.Error(t, cfg.Validate())
}

func TestValidateLatencyNegative(t *testing.T) {
	cfg := validConfig()
	cfg.Latency.InitialMs = -1
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingLevel(t *testing.T) {
	for _, level := range []string{"debug", "info", "warn", "error"} {
		cfg := validConfig()
		cfg.Logging.Level = level
		assert.NoError(t, cfg.Validate(), "level %q should be valid", level)
	}
	cfg := validConfig()
	cfg.Logging.Level = "trace"
	assert.Error(t, cfg.Validate())
}

func TestValidateLoggingFormat(t *testing.T) {
	for _, format := range []string{"json", "console"} {
		cfg := validConfig()
		cfg.Logging.Format = format
		assert.NoError(t, cfg.Validate(), "format %q should be valid", format)
	}
	cfg := validConfig()
	cfg.Logging.Format = "xml"
	assert.Error(t, cfg.Validate())
}

func TestValidateCluster(t *testing.T) {
	cfg := validConfig()
	cfg.Cluster.ConsulAddr = "consul:8500"
	assert.Error(t, cfg.Validate(), "service name and interval required")

	cfg.Cluster.ServiceName = "duel"
	cfg.Cluster.CheckInterval = 10 * time.Second
	assert.NoError(t, cfg.Validate())
}

func TestValidateEvents(t *testing.T) {
	cfg := validConfig()
	cfg.Events.NatsURL = "nats://localhost:4222"
	assert.Error(t, cfg.Validate())

	cfg.Events.SubjectPrefix = "duel.*"
	assert.Error(t, cfg.Validate())

	cfg.Events.SubjectPrefix = "duel"
	assert.NoError(t, cfg.Validate())
}

func TestValidateAggregatesErrors(t *testing.T) {
	cfg := validConfig()
	cfg.Server.Name = ""
	cfg.Session.EventBuffer = 0
	err := cfg.Validate()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "server.name")
	assert.Contains(t, err.Error(), "session.event_buffer")
}

// Property-based tests

func TestPropertyValidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.IntRange(1, 65535).Draw(t, "port")
		cfg := validConfig()
		cfg.WebSocket.Port = port
		if err := cfg.Validate(); err != nil {
			t.Fatalf("valid port %d rejected: %v", port, err)
		}
	})
}

func TestPropertyInvalidPortRange(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		port := rapid.OneOf(
			rapid.IntRange(-1000, 0),
			rapid.IntRange(65536, 100000),
		).Draw(t, "port")
		cfg := validConfig()
		cfg.WebSocket.Port = port
		if err := cfg.Validate(); err == nil {
			t.Fatalf("invalid port %d accepted", port)
		}
	})
}

func TestPropertyLatencyNonNegativeAccepted(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		ms := rapid.Float64Range(0, 10000).Draw(t, "ms")
		cfg := validConfig()
		cfg.Latency.InitialMs = ms
		if err := cfg.Validate(); err != nil {
			t.Fatalf("latency %v rejected: %v", ms, err)
		}
		if cfg.Latency.Initial() < 0 {
			t.Fatalf("negative duration for %v", ms)
		}
	})
}
