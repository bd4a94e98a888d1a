package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// AppConfig carries top-level application identity, surfaced in logs
// and admin responses.
type AppConfig struct {
	Name string `mapstructure:"name"`
	Env  string `mapstructure:"env"`
}

// HTTPConfig configures the admin HTTP surface (healthz/readyz/metrics
// and the read-only session endpoints).
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
	Pprof        HTTPPprof     `mapstructure:"pprof"`
}

// HTTPPprof toggles the pprof debug mux under the HTTP server.
type HTTPPprof struct {
	Enable bool   `mapstructure:"enable"`
	Prefix string `mapstructure:"prefix"`
}

// TCPConfig configures the device-facing TCP listener.
type TCPConfig struct {
	Addr              string        `mapstructure:"addr"`
	ReadTimeout       time.Duration `mapstructure:"readTimeout"`
	WriteTimeout      time.Duration `mapstructure:"writeTimeout"`
	MaxConnections    int           `mapstructure:"maxConnections"`
	ConnectionBacklog int           `mapstructure:"connectionBacklog"`
	// AcceptRatePerSec/AcceptBurst bound how fast new connections are
	// admitted; FrameRatePerSec/FrameBurst bound the read chunks per
	// already-open connection that are handed on to the protocol
	// handler (one token per socket read; chunks over the limit are
	// dropped), grounded on tcpserver.RateLimiter.
	AcceptRatePerSec int `mapstructure:"acceptRatePerSec"`
	AcceptBurst      int `mapstructure:"acceptBurst"`
	FrameRatePerSec  int `mapstructure:"frameRatePerSec"`
	FrameBurst       int `mapstructure:"frameBurst"`
	// BreakerThreshold/BreakerTimeout configure the circuit breaker
	// wrapped around the session store (RegistryUnavailable, spec §7).
	BreakerThreshold int           `mapstructure:"breakerThreshold"`
	BreakerTimeout   time.Duration `mapstructure:"breakerTimeout"`
}

// GatewayConfig holds the protocol-level options spec §6.4 names:
// session TTL, sweeper cadence, frame-size cap, and the two strict-mode
// gates on the codec's lenient-by-default CRC/stop-bit policy.
type GatewayConfig struct {
	IdleTimeoutSeconds     int  `mapstructure:"idleTimeoutSeconds"`
	CleanupIntervalSeconds int  `mapstructure:"cleanupIntervalSeconds"`
	MaxFrameLength         int  `mapstructure:"maxFrameLength"`
	StrictCRC              bool `mapstructure:"strictCRC"`
	StrictStopBits         bool `mapstructure:"strictStopBits"`
}

// IdleTimeout returns the configured idle timeout as a time.Duration.
func (g GatewayConfig) IdleTimeout() time.Duration {
	return time.Duration(g.IdleTimeoutSeconds) * time.Second
}

// CleanupInterval returns the configured sweeper cadence.
func (g GatewayConfig) CleanupInterval() time.Duration {
	return time.Duration(g.CleanupIntervalSeconds) * time.Second
}

// RedisConfig configures the Redis connection backing the session
// registry's by_id/by_imei persistence (spec §6.2).
type RedisConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	Addr         string        `mapstructure:"addr"`
	Password     string        `mapstructure:"password"`
	DB           int           `mapstructure:"db"`
	PoolSize     int           `mapstructure:"poolSize"`
	MinIdleConns int           `mapstructure:"minIdleConns"`
	DialTimeout  time.Duration `mapstructure:"dialTimeout"`
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

// NATSConfig configures the telemetry bus connection (spec §6.3).
type NATSConfig struct {
	Enabled        bool   `mapstructure:"enabled"`
	URL            string `mapstructure:"url"`
	SessionsTopic  string `mapstructure:"sessionsTopic"`
	LocationTopic  string `mapstructure:"locationTopic"`
	StatusTopic    string `mapstructure:"statusTopic"`
	ConnectTimeout time.Duration `mapstructure:"connectTimeout"`
}

// LumberjackConfig configures zap's rolling file output.
type LumberjackConfig struct {
	Filename   string `mapstructure:"filename"`
	MaxSizeMB  int    `mapstructure:"maxSize"`
	MaxBackups int    `mapstructure:"maxBackups"`
	MaxAgeDays int    `mapstructure:"maxAge"`
	Compress   bool   `mapstructure:"compress"`
}

// LoggingConfig configures the zap logger level, encoding, and file
// sink.
type LoggingConfig struct {
	Level  string           `mapstructure:"level"`
	Format string           `mapstructure:"format"`
	File   LumberjackConfig `mapstructure:"file"`
}

// MetricsConfig configures Prometheus metrics exposition.
type MetricsConfig struct {
	Enable bool   `mapstructure:"enable"`
	Path   string `mapstructure:"path"`
}

// Config is the top-level configuration tree loaded by Load.
type Config struct {
	App     AppConfig     `mapstructure:"app"`
	HTTP    HTTPConfig    `mapstructure:"http"`
	TCP     TCPConfig     `mapstructure:"tcp"`
	Gateway GatewayConfig `mapstructure:"gateway"`
	Redis   RedisConfig   `mapstructure:"redis"`
	NATS    NATSConfig    `mapstructure:"nats"`
	Logging LoggingConfig `mapstructure:"logging"`
	Metrics MetricsConfig `mapstructure:"metrics"`
}

// Load reads YAML/TOML/JSON configuration from path plus environment
// variable overrides. An empty path falls back to the GT06_CONFIG
// env var, then to configs/example.yaml.
func Load(path string) (*Config, error) {
	v := viper.New()

	if path == "" {
		path = os.Getenv("GT06_CONFIG")
	}

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.SetConfigName("example")
		v.SetConfigType("yaml")
	}

	setDefaults(v)

	v.SetEnvPrefix("GT06")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file on first run is fine; defaults and env
		// vars carry the configuration.
		var notFound viper.ConfigFileNotFoundError
		if fmt.Sprintf("%T", err) != fmt.Sprintf("%T", notFound) {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("app.name", "gt06-gateway")
	v.SetDefault("app.env", "dev")

	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.readTimeout", "5s")
	v.SetDefault("http.writeTimeout", "10s")
	v.SetDefault("http.pprof.enable", false)
	v.SetDefault("http.pprof.prefix", "/debug/pprof")

	v.SetDefault("tcp.addr", ":7000")
	v.SetDefault("tcp.readTimeout", "5s")
	v.SetDefault("tcp.writeTimeout", "10s")
	v.SetDefault("tcp.maxConnections", 5000)
	v.SetDefault("tcp.connectionBacklog", 1024)
	v.SetDefault("tcp.acceptRatePerSec", 200)
	v.SetDefault("tcp.acceptBurst", 400)
	v.SetDefault("tcp.frameRatePerSec", 50)
	v.SetDefault("tcp.frameBurst", 100)
	v.SetDefault("tcp.breakerThreshold", 5)
	v.SetDefault("tcp.breakerTimeout", "30s")

	v.SetDefault("gateway.idleTimeoutSeconds", 600)
	v.SetDefault("gateway.cleanupIntervalSeconds", 60)
	v.SetDefault("gateway.maxFrameLength", 1024)
	v.SetDefault("gateway.strictCRC", false)
	v.SetDefault("gateway.strictStopBits", false)

	v.SetDefault("redis.enabled", true)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.poolSize", 20)
	v.SetDefault("redis.minIdleConns", 5)
	v.SetDefault("redis.dialTimeout", "5s")
	v.SetDefault("redis.readTimeout", "3s")
	v.SetDefault("redis.writeTimeout", "3s")

	v.SetDefault("nats.enabled", true)
	v.SetDefault("nats.url", "nats://localhost:4222")
	v.SetDefault("nats.sessionsTopic", "device.sessions")
	v.SetDefault("nats.locationTopic", "device.location")
	v.SetDefault("nats.statusTopic", "device.status")
	v.SetDefault("nats.connectTimeout", "5s")

	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("logging.file.filename", "logs/gt06-gateway.log")
	v.SetDefault("logging.file.maxSize", 100)
	v.SetDefault("logging.file.maxBackups", 7)
	v.SetDefault("logging.file.maxAge", 30)
	v.SetDefault("logging.file.compress", true)

	v.SetDefault("metrics.enable", true)
	v.SetDefault("metrics.path", "/metrics")
}
