// control/config.go
// Author: momentics <momentics@gmail.com>
//
// Declarative configuration document: pollers, clients and servers loaded
// from YAML with HIOSOCK_* environment overrides.

package control

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/momentics/hioload-sock/api"
	"github.com/momentics/hioload-sock/internal/logging"
	"github.com/spf13/viper"
)

// Default endpoint values.
const (
	DefaultPort                = 13251
	DefaultReconnectIntervalMs = 5000
	DefaultConnectTimeoutMs    = 5000
	DefaultReadTimeoutMs       = 5000
	DefaultWriteTimeoutMs      = 5000
)

// Config is the root configuration document.
type Config struct {
	Log     logging.Config `mapstructure:"log"`
	Metrics MetricsConfig  `mapstructure:"metrics"`
	Pollers []PollerSpec   `mapstructure:"pollers"`
	Servers []ServerSpec   `mapstructure:"servers"`
	Clients []ClientSpec   `mapstructure:"clients"`
}

// MetricsConfig controls the Prometheus endpoint of the CLI.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Addr   string `mapstructure:"addr"`
}

// PollerSpec declares one poller.
type PollerSpec struct {
	Name           string `mapstructure:"name"`
	DrivingMode    string `mapstructure:"driving_mode"`
	TickIntervalMs int    `mapstructure:"tick_interval_ms"`
}

// EndpointSpec holds the options shared by clients and servers.
// Booleans left unset take their documented default.
type EndpointSpec struct {
	Name                string `mapstructure:"name"`
	Poller              string `mapstructure:"poller"`
	Address             string `mapstructure:"address"`
	Port                *int   `mapstructure:"port"`
	AutoReconnect       *bool  `mapstructure:"auto_reconnect"`
	ReconnectIntervalMs int    `mapstructure:"reconnect_interval_ms"`
	NoDelay             *bool  `mapstructure:"no_delay"`
	AllowFailureOnInit  bool   `mapstructure:"allow_failure_on_init"`
	EnableLogging       bool   `mapstructure:"enable_logging"`
}

// ClientSpec declares one outbound endpoint.
type ClientSpec struct {
	EndpointSpec          `mapstructure:",squash"`
	ConnectOnStart        *bool `mapstructure:"connect_on_start"`
	ReconnectBackoffMaxMs int   `mapstructure:"reconnect_backoff_max_ms"`
	ConnectTimeoutMs      int   `mapstructure:"connect_timeout_ms"`
	ReadTimeoutMs         int   `mapstructure:"read_timeout_ms"`
	WriteTimeoutMs        int   `mapstructure:"write_timeout_ms"`
}

// ServerSpec declares one listening endpoint.
type ServerSpec struct {
	EndpointSpec `mapstructure:",squash"`
}

// PortOr returns the configured port or def.
func (e EndpointSpec) PortOr(def int) int {
	if e.Port == nil {
		return def
	}
	return *e.Port
}

// BoolOr returns *p, or def when p is nil.
func BoolOr(p *bool, def bool) bool {
	if p == nil {
		return def
	}
	return *p
}

// IntOr returns v, or def when v is zero.
func IntOr(v, def int) int {
	if v == 0 {
		return def
	}
	return v
}

// Default returns an empty document with default logging.
func Default() *Config {
	return &Config{
		Log:     logging.DefaultConfig(),
		Metrics: MetricsConfig{Addr: ":9100"},
	}
}

// Load reads configuration from path (if non-empty, or HIOSOCK_CONFIG),
// then applies environment overrides with the HIOSOCK prefix.
// Example: HIOSOCK_LOG_LEVEL=debug
func Load(path string) (*Config, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("HIOSOCK")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	v.SetDefault("log.level", cfg.Log.Level)
	v.SetDefault("log.format", cfg.Log.Format)
	v.SetDefault("log.outputs", cfg.Log.Outputs)
	v.SetDefault("log.development", cfg.Log.Development)
	v.SetDefault("metrics.enable", cfg.Metrics.Enable)
	v.SetDefault("metrics.addr", cfg.Metrics.Addr)

	if path == "" {
		path = os.Getenv("HIOSOCK_CONFIG")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("hiosock")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks cross references and value ranges.
func (c *Config) Validate() error {
	pollers := make(map[string]struct{}, len(c.Pollers))
	for _, p := range c.Pollers {
		if p.Name == "" {
			return invalid("poller without name")
		}
		if _, dup := pollers[p.Name]; dup {
			return invalid(fmt.Sprintf("duplicate poller %q", p.Name))
		}
		if _, err := api.ParseDrivingMode(strings.ToLower(p.DrivingMode)); err != nil {
			return invalid(fmt.Sprintf("poller %q: %v", p.Name, err))
		}
		if p.TickIntervalMs < 0 {
			return invalid(fmt.Sprintf("poller %q: negative tick_interval_ms", p.Name))
		}
		pollers[p.Name] = struct{}{}
	}

	endpoints := make(map[string]struct{}, len(c.Clients)+len(c.Servers))
	check := func(kind string, e EndpointSpec, durations ...int) error {
		if e.Name == "" {
			return invalid(kind + " without name")
		}
		if _, dup := endpoints[e.Name]; dup {
			return invalid(fmt.Sprintf("duplicate endpoint %q", e.Name))
		}
		endpoints[e.Name] = struct{}{}
		if _, ok := pollers[e.Poller]; !ok {
			return invalid(fmt.Sprintf("%s %q references unknown poller %q", kind, e.Name, e.Poller))
		}
		if port := e.PortOr(DefaultPort); port < 0 || port > 65535 {
			return invalid(fmt.Sprintf("%s %q: port %d out of range", kind, e.Name, port))
		}
		for _, d := range append(durations, e.ReconnectIntervalMs) {
			if d < 0 {
				return invalid(fmt.Sprintf("%s %q: negative duration", kind, e.Name))
			}
		}
		return nil
	}
	for _, s := range c.Servers {
		if err := check("server", s.EndpointSpec); err != nil {
			return err
		}
	}
	for _, cl := range c.Clients {
		if err := check("client", cl.EndpointSpec,
			cl.ConnectTimeoutMs, cl.ReadTimeoutMs, cl.WriteTimeoutMs, cl.ReconnectBackoffMaxMs); err != nil {
			return err
		}
	}
	return nil
}

func invalid(msg string) error {
	return api.NewError(api.KindStartup, api.ErrCodeInvalidArgument, msg).
		WithOp("config").
		WithCause(api.ErrInvalidArgument)
}
