package ops

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"oms/internal/bus"
	"oms/internal/chaos"
	"oms/internal/errors"
	"oms/internal/og"
	"oms/internal/order"
	"oms/internal/risk"
	"oms/internal/venue"
	"oms/pkg/conn"
	"oms/pkg/exception"
)

// Environment overrides applied after the file is read.
const (
	EnvDBDSN         = "OMS_DB_DSN"
	EnvRedisPassword = "OMS_REDIS_PASSWORD"
	EnvVenueAPIKey   = "OMS_VENUE_API_KEY"
	EnvLogLevel      = "OMS_LOG_LEVEL"
	EnvHTTPAddr      = "OMS_HTTP_ADDR"
)

const (
	VenuePaper = "paper"
	VenueHTTP  = "http"

	StoreMemory = "memory"
	StoreGorm   = "gorm"
)

// Config mirrors the config file layout. Durations accept strings such as
// "24h" in both formats; bare JSON numbers are nanoseconds.
type Config struct {
	Risk    risk.Config   `json:"risk" yaml:"risk"`
	Order   OrderConfig   `json:"order" yaml:"order"`
	Bus     bus.Config    `json:"bus" yaml:"bus"`
	Venue   VenueConfig   `json:"venue" yaml:"venue"`
	Store   StoreConfig   `json:"store" yaml:"store"`
	HTTP    HTTPConfig    `json:"http" yaml:"http"`
	Log     LogConfig     `json:"log" yaml:"log"`
	Profile ProfileConfig `json:"profile" yaml:"profile"`
}

// OrderConfig tunes the order pipeline and its state machine.
type OrderConfig struct {
	order.Config `yaml:",inline"`
	MaxRetries   int `json:"maxRetries" yaml:"maxRetries"`
}

// VenueConfig selects the exchange adapter and its decorators.
type VenueConfig struct {
	Kind  string            `json:"kind" yaml:"kind"`
	Paper venue.PaperConfig `json:"paper" yaml:"paper"`
	HTTP  venue.HTTPConfig  `json:"http" yaml:"http"`
	// Timeout wraps every venue call with a deadline. 0 disables it.
	Timeout time.Duration `json:"timeout" yaml:"timeout"`
	Chaos   chaos.Config  `json:"chaos" yaml:"chaos"`
}

// StoreConfig selects the record store.
type StoreConfig struct {
	Kind string      `json:"kind" yaml:"kind"`
	Conn conn.Option `json:"conn" yaml:"conn"`
}

// HTTPConfig configures the admin API.
type HTTPConfig struct {
	Addr string `json:"addr" yaml:"addr"`
}

// LogConfig configures logging verbosity.
type LogConfig struct {
	Level string `json:"level" yaml:"level"`
}

// ProfileConfig enables continuous profiling.
type ProfileConfig struct {
	Enabled       bool              `json:"enabled" yaml:"enabled"`
	ServerAddress string            `json:"serverAddress" yaml:"serverAddress"`
	AppName       string            `json:"appName" yaml:"appName"`
	Tags          map[string]string `json:"tags" yaml:"tags"`
}

// Default returns the configuration used when no file is given: a paper
// venue, the local channel and an in-memory store.
func Default() Config {
	return Config{
		Risk:  risk.DefaultConfig(),
		Order: OrderConfig{Config: order.DefaultConfig(), MaxRetries: og.DefaultMaxRetries},
		Bus:   bus.Config{Kind: bus.KindLocal, Redis: bus.RedisConfigDefaults()},
		Venue: VenueConfig{Kind: VenuePaper},
		Store: StoreConfig{Kind: StoreMemory},
		HTTP:  HTTPConfig{Addr: ":8080"},
		Log:   LogConfig{Level: "info"},
		Profile: ProfileConfig{
			ServerAddress: "http://localhost:4040",
			AppName:       "oms.trader",
		},
	}
}

// LoadEnv reads .env style files into the process environment. Missing files are ignored.
func LoadEnv(files ...string) error {
	if len(files) == 0 {
		files = []string{".env"}
	}
	for _, f := range files {
		if err := godotenv.Load(f); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return errors.Wrapf(err, "load env %s", f)
		}
	}
	return nil
}

// Load reads path on top of Default, picking the decoder by extension,
// then applies environment overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, errors.Wrapf(err, "read config %s", path)
	}

	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".yaml", ".yml":
		err = yaml.Unmarshal(data, &cfg)
	case ".json", "":
		err = decodeJSON(data, &cfg)
	default:
		return Config{}, errors.Wrapf(exception.ErrInvalidConfig, "unsupported config extension %q", ext)
	}
	if err != nil {
		return Config{}, errors.Wrapf(exception.ErrInvalidConfig, "decode %s: %v", path, err)
	}

	cfg.ApplyEnv()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overrides secrets and deployment knobs from the environment.
func (c *Config) ApplyEnv() {
	if v := os.Getenv(EnvDBDSN); v != "" {
		c.Store.Conn.ConnString = v
	}
	if v := os.Getenv(EnvRedisPassword); v != "" {
		c.Bus.Redis.Password = v
	}
	if v := os.Getenv(EnvVenueAPIKey); v != "" {
		c.Venue.HTTP.APIKey = v
	}
	if v := os.Getenv(EnvLogLevel); v != "" {
		c.Log.Level = v
	}
	if v := os.Getenv(EnvHTTPAddr); v != "" {
		c.HTTP.Addr = v
	}
}

// Validate checks every section.
func (c Config) Validate() error {
	if err := c.Risk.Validate(); err != nil {
		return err
	}
	if err := c.Order.Validate(); err != nil {
		return err
	}
	if c.Order.MaxRetries < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "order.maxRetries must be >= 0")
	}
	if err := c.Venue.Chaos.Validate(); err != nil {
		return err
	}
	if c.Venue.Timeout < 0 {
		return errors.Wrap(exception.ErrInvalidConfig, "venue.timeout must be >= 0")
	}

	switch strings.ToLower(c.Venue.Kind) {
	case "", VenuePaper:
	case VenueHTTP:
		if c.Venue.HTTP.BaseURL == "" {
			return errors.Wrap(exception.ErrInvalidConfig, "venue.http.baseUrl is empty")
		}
	default:
		return errors.Wrapf(exception.ErrInvalidConfig, "unknown venue kind %q", c.Venue.Kind)
	}

	switch strings.ToLower(c.Store.Kind) {
	case "", StoreMemory, StoreGorm:
	default:
		return errors.Wrapf(exception.ErrInvalidConfig, "unknown store kind %q", c.Store.Kind)
	}

	switch bus.Kind(strings.ToLower(string(c.Bus.Kind))) {
	case "", bus.KindLocal, bus.KindRecorder, bus.KindRedis:
	default:
		return errors.Wrapf(exception.ErrInvalidConfig, "unknown bus kind %q", c.Bus.Kind)
	}
	return nil
}
