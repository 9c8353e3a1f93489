package config

import (
	"fmt"
	"time"

	"github.com/spf13/viper"
)

// Config holds all runtime configuration for the WAMP router daemon.
type Config struct {
	Router    RouterConfig    `mapstructure:"router"`
	Transport TransportConfig `mapstructure:"transport"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	NATS      NATSConfig      `mapstructure:"nats"`
}

// RouterConfig controls realm behaviour and the listener addresses.
type RouterConfig struct {
	ListenAddr       string   `mapstructure:"listen_addr"`
	WebSocketAddr    string   `mapstructure:"websocket_addr"`
	WebSocketPath    string   `mapstructure:"websocket_path"`
	Realms           []string `mapstructure:"realms"`
	AutoCreateRealms bool     `mapstructure:"auto_create_realms"`
	DiscloseCaller   bool     `mapstructure:"disclose_caller"`
	DisclosePublisher bool    `mapstructure:"disclose_publisher"`
}

// TransportConfig controls raw-socket negotiation limits and heartbeat.
type TransportConfig struct {
	HandshakeTimeout  time.Duration `mapstructure:"handshake_timeout"`
	HeartbeatInterval time.Duration `mapstructure:"heartbeat_interval"`
	MaxReceiveLength  uint32        `mapstructure:"max_receive_length"`
}

// AuthConfig controls the ticket authenticator. An empty JWTSecret
// disables authentication (anonymous sessions).
type AuthConfig struct {
	JWTSecret     string        `mapstructure:"jwt_secret"`
	JWTIssuer     string        `mapstructure:"jwt_issuer"`
	TokenDuration time.Duration `mapstructure:"token_duration"`
}

// MetricsConfig controls the Prometheus/diagnostics endpoint.
type MetricsConfig struct {
	Enabled    bool   `mapstructure:"enabled"`
	ListenAddr string `mapstructure:"listen_addr"`
	Endpoint   string `mapstructure:"endpoint"`
}

// LoggingConfig controls zap logger level/encoding.
type LoggingConfig struct {
	Level       string `mapstructure:"level"`
	Development bool   `mapstructure:"development"`
}

// NATSConfig controls the optional realm event mirror. An empty URL
// disables it.
type NATSConfig struct {
	URL           string        `mapstructure:"url"`
	SubjectPrefix string        `mapstructure:"subject_prefix"`
	MaxReconnects int           `mapstructure:"max_reconnects"`
	ReconnectWait time.Duration `mapstructure:"reconnect_wait"`
}

// Load reads configuration from environment variables and an optional
// wamp.yaml config file.
func Load() (Config, error) {
	v := viper.New()

	v.SetDefault("router.listen_addr", "0.0.0.0:8080")
	v.SetDefault("router.websocket_addr", "")
	v.SetDefault("router.websocket_path", "/ws")
	v.SetDefault("router.realms", []string{"default"})
	v.SetDefault("router.auto_create_realms", false)
	v.SetDefault("router.disclose_caller", false)
	v.SetDefault("router.disclose_publisher", false)

	v.SetDefault("transport.handshake_timeout", 10*time.Second)
	v.SetDefault("transport.heartbeat_interval", 30*time.Second)
	v.SetDefault("transport.max_receive_length", uint32(16<<20))

	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("auth.jwt_issuer", "wampgo-router")
	v.SetDefault("auth.token_duration", time.Hour)

	v.SetDefault("metrics.enabled", true)
	v.SetDefault("metrics.listen_addr", ":9090")
	v.SetDefault("metrics.endpoint", "/metrics")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.development", false)

	v.SetDefault("nats.url", "")
	v.SetDefault("nats.subject_prefix", "wamp")
	v.SetDefault("nats.max_reconnects", 10)
	v.SetDefault("nats.reconnect_wait", 2*time.Second)

	v.SetConfigName("wamp")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")
	v.SetEnvPrefix("WAMP")
	v.AutomaticEnv()

	// Config file is optional.
	_ = v.ReadInConfig()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config unmarshal: %w", err)
	}

	if cfg.Transport.MaxReceiveLength < 512 {
		cfg.Transport.MaxReceiveLength = 512
	}
	if len(cfg.Router.Realms) == 0 && !cfg.Router.AutoCreateRealms {
		return Config{}, fmt.Errorf("no realms configured and auto_create_realms disabled")
	}

	return cfg, nil
}
