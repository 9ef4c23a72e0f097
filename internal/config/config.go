// Package config loads the sentiq YAML configuration, fills documented
// defaults, applies environment overrides and validates the result.
package config

import (
	"errors"
	"fmt"
	"os"
	"reflect"
	"strings"
	"time"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"sentiq/internal/domain"
)

// DefaultPath is used when neither a flag nor SENTIQ_CONFIG names a file.
const DefaultPath = "config/sentiq.yaml"

// Config is the top-level configuration.
type Config struct {
	Storage  Storage  `yaml:"storage"`
	Server   Server   `yaml:"server"`
	Alpaca   Alpaca   `yaml:"alpaca"`
	Logging  Logging  `yaml:"logging"`
	Gather   Gather   `yaml:"gather"`
	Backtest Backtest `yaml:"backtest"`
}

// Storage holds paths for data persistence.
type Storage struct {
	DataDir    string `yaml:"data_dir" default:"data" validate:"required"`
	SQLitePath string `yaml:"sqlite_path" default:"data/sentiq.db" validate:"required"`
}

// Server holds network listener configuration.
type Server struct {
	Host     string `yaml:"host" default:"127.0.0.1"`
	Port     int    `yaml:"port" default:"8080" validate:"gte=1,lte=65535"`
	GRPCPort int    `yaml:"grpc_port" default:"9090" validate:"gte=0,lte=65535"`
}

// Alpaca holds credentials and endpoints. Credentials come from the
// environment in practice.
type Alpaca struct {
	APIKey    string `yaml:"api_key"`
	APISecret string `yaml:"api_secret"`
	BaseURL   string `yaml:"base_url" default:"https://paper-api.alpaca.markets"`
	DataURL   string `yaml:"data_url"`
}

// Logging configures the application logger.
type Logging struct {
	Level  string `yaml:"level" default:"info" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" default:"json" validate:"oneof=json text"`
}

// Gather controls daily bar and news retrieval.
type Gather struct {
	Symbols         []string      `yaml:"symbols"`
	StartDate       string        `yaml:"start_date" default:"2020-01-01" validate:"datetime=2006-01-02"`
	Feed            string        `yaml:"feed" default:"iex" validate:"oneof=iex sip"`
	BatchSize       int           `yaml:"batch_size" default:"100" validate:"gte=1,lte=10000"`
	RateLimitPerMin int           `yaml:"rate_limit_per_min" default:"180" validate:"gte=1"`
	Retries         int           `yaml:"retries" default:"3" validate:"gte=1"`
	NewsLookback    time.Duration `yaml:"news_lookback" default:"168h"`
	NewsLimit       int           `yaml:"news_limit" default:"50" validate:"gte=1"`
}

// Backtest holds the walk-forward, backtest and signal parameters.
type Backtest struct {
	Classifier       string  `yaml:"classifier" default:"forest" validate:"oneof=forest rf linear lr"`
	Seed             uint64  `yaml:"seed" default:"42"`
	TrainRatio       float64 `yaml:"train_ratio" default:"0.7" validate:"gt=0,lt=1"`
	Workers          int     `yaml:"workers" validate:"gte=0"`
	VolWindow        int     `yaml:"vol_window" default:"3" validate:"gte=2"`
	Cost             float64 `yaml:"cost" default:"0.001" validate:"gte=0"`
	ConfThreshold    float64 `yaml:"conf_threshold" default:"0.52" validate:"gte=0,lt=1"`
	SignalThreshold  float64 `yaml:"signal_threshold" default:"0.6" validate:"gt=0,lte=1"`
	MaxDrawdownLimit float64 `yaml:"max_drawdown_limit" default:"0.3" validate:"gt=0,lte=1"`
	PositionCap      float64 `yaml:"position_cap" default:"3" validate:"gt=0"`
}

var validate = func() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("yaml"), ",")
		if name == "-" {
			return ""
		}
		return name
	})
	return v
}()

// Path resolves the configuration file: flag value, then SENTIQ_CONFIG, then
// DefaultPath.
func Path(flag string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv("SENTIQ_CONFIG"); v != "" {
		return v
	}
	return DefaultPath
}

// Load reads the YAML file at path over the documented defaults, applies
// environment overrides and validates the result. Fields the file sets,
// including explicit zeros, win over defaults. A missing file is not an
// error when path is DefaultPath; every field then takes its default.
func Load(path string) (*Config, error) {
	cfg, err := withDefaults()
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && path == DefaultPath:
	default:
		return nil, err
	}
	return finish(cfg)
}

// Default returns the configuration with every default applied and
// environment overrides honoured.
func Default() (*Config, error) {
	cfg, err := withDefaults()
	if err != nil {
		return nil, err
	}
	return finish(cfg)
}

func withDefaults() (*Config, error) {
	cfg := &Config{}
	if err := defaults.Set(cfg); err != nil {
		return nil, fmt.Errorf("applying defaults: %w", err)
	}
	return cfg, nil
}

func finish(cfg *Config) (*Config, error) {
	applyEnvOverrides(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks field constraints and returns the first violation as a
// *domain.ConfigError.
func (c *Config) Validate() error {
	err := validate.Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) && len(verrs) > 0 {
		fe := verrs[0]
		return &domain.ConfigError{
			Field:  fieldName(fe.Namespace()),
			Reason: fmt.Sprintf("value %v fails %q", fe.Value(), ruleText(fe)),
		}
	}
	return err
}

func ruleText(fe validator.FieldError) string {
	if fe.Param() == "" {
		return fe.Tag()
	}
	return fe.Tag() + "=" + fe.Param()
}

// fieldName drops the root struct from a namespace such as
// "Config.backtest.train_ratio".
func fieldName(ns string) string {
	if _, rest, ok := strings.Cut(ns, "."); ok {
		return rest
	}
	return ns
}

// applyEnvOverrides checks well-known environment variables and overrides the
// corresponding configuration fields when they are set.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("DATA_DIR"); v != "" {
		cfg.Storage.DataDir = v
	}
	if v := os.Getenv("SQLITE_PATH"); v != "" {
		cfg.Storage.SQLitePath = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		cfg.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("LOG_FORMAT"); v != "" {
		cfg.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("ALPACA_DATA_URL"); v != "" {
		cfg.Alpaca.DataURL = v
	}
	if v := os.Getenv("SENTIQ_CLASSIFIER"); v != "" {
		cfg.Backtest.Classifier = strings.ToLower(v)
	}

	// Canonical names used by the Alpaca SDK.
	if v := os.Getenv("APCA_API_KEY_ID"); v != "" {
		cfg.Alpaca.APIKey = v
	}
	if v := os.Getenv("APCA_API_SECRET_KEY"); v != "" {
		cfg.Alpaca.APISecret = v
	}
}
