package config

import (
	"fmt"
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Store    StoreConfig    `yaml:"store" mapstructure:"store"`
	Log      LogConfig      `yaml:"log" mapstructure:"log"`
	Scorer   ScorerConfig   `yaml:"scorer" mapstructure:"scorer"`
	Features FeatureConfig  `yaml:"features" mapstructure:"features"`
	Analysis AnalysisConfig `yaml:"analysis" mapstructure:"analysis"`
}

// StoreConfig configures the database backend.
type StoreConfig struct {
	Driver      string `yaml:"driver" mapstructure:"driver"`
	DatabaseURL string `yaml:"database_url" mapstructure:"database_url"`
	MaxConns    int32  `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns    int32  `yaml:"min_conns" mapstructure:"min_conns"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// ScorerConfig holds the category weights of the scoring engine.
// Weights sum to 1.0.
type ScorerConfig struct {
	DemandWeight  float64 `yaml:"demand_weight" mapstructure:"demand_weight"`
	PriceWeight   float64 `yaml:"price_weight" mapstructure:"price_weight"`
	ContentWeight float64 `yaml:"content_weight" mapstructure:"content_weight"`
	MarketWeight  float64 `yaml:"market_weight" mapstructure:"market_weight"`
}

// FeatureConfig holds the business heuristics used during feature extraction.
type FeatureConfig struct {
	// BrandAllowList holds lowercase substrings of well-known brands.
	BrandAllowList []string `yaml:"brand_allow_list" mapstructure:"brand_allow_list"`
	// GenericBrands holds lowercase brand values that mean "no real brand".
	GenericBrands []string `yaml:"generic_brands" mapstructure:"generic_brands"`

	// Market saturation buckets.
	SaturationHighReviews int     `yaml:"saturation_high_reviews" mapstructure:"saturation_high_reviews"`
	SaturationLowReviews  int     `yaml:"saturation_low_reviews" mapstructure:"saturation_low_reviews"`
	SaturationRatingFloor float64 `yaml:"saturation_rating_floor" mapstructure:"saturation_rating_floor"`
}

// AnalysisConfig configures the analysis orchestrator.
type AnalysisConfig struct {
	BatchSize          int `yaml:"batch_size" mapstructure:"batch_size"`
	BatchPauseMs       int `yaml:"batch_pause_ms" mapstructure:"batch_pause_ms"`
	StalenessHours     int `yaml:"staleness_hours" mapstructure:"staleness_hours"`
	RescoreLimit       int `yaml:"rescore_limit" mapstructure:"rescore_limit"`
	RescoreMinAgeHours int `yaml:"rescore_min_age_hours" mapstructure:"rescore_min_age_hours"`
}

// DefaultBrandAllowList is the shipped list of well-known brand substrings.
var DefaultBrandAllowList = []string{
	"apple", "samsung", "sony", "nike", "adidas", "lego", "anker",
	"logitech", "bose", "philips", "dyson", "nintendo", "microsoft",
	"canon", "dell", "hp", "lenovo", "kitchenaid", "instant pot",
}

// DefaultGenericBrands lists brand values treated as unbranded.
var DefaultGenericBrands = []string{
	"generic", "unbranded", "no brand", "unknown", "n/a", "none", "oem",
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("SCORER")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("store.driver", "postgres")
	v.SetDefault("store.max_conns", 10)
	v.SetDefault("store.min_conns", 2)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")
	v.SetDefault("scorer.demand_weight", 0.35)
	v.SetDefault("scorer.price_weight", 0.30)
	v.SetDefault("scorer.content_weight", 0.20)
	v.SetDefault("scorer.market_weight", 0.15)
	v.SetDefault("features.brand_allow_list", DefaultBrandAllowList)
	v.SetDefault("features.generic_brands", DefaultGenericBrands)
	v.SetDefault("features.saturation_high_reviews", 10000)
	v.SetDefault("features.saturation_low_reviews", 100)
	v.SetDefault("features.saturation_rating_floor", 4.0)
	v.SetDefault("analysis.batch_size", 10)
	v.SetDefault("analysis.batch_pause_ms", 100)
	v.SetDefault("analysis.staleness_hours", 24)
	v.SetDefault("analysis.rescore_limit", 100)
	v.SetDefault("analysis.rescore_min_age_hours", 24)

	// Read config file (optional)
	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, eris.Wrap(err, "config: read file")
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, eris.Wrap(err, "config: unmarshal")
	}

	return &cfg, nil
}

// Validate checks the settings required by a command mode. Mode "store"
// covers commands that only touch the database; "analysis" additionally
// checks orchestrator settings.
func (c *Config) Validate(mode string) error {
	var errs []string

	switch mode {
	case "store", "analysis":
	default:
		return eris.Errorf("config: unknown mode %q", mode)
	}

	switch c.Store.Driver {
	case "postgres":
		if c.Store.DatabaseURL == "" {
			errs = append(errs, "store.database_url is required for the postgres driver")
		}
	case "sqlite":
	default:
		errs = append(errs, fmt.Sprintf("store.driver must be postgres or sqlite (got %q)", c.Store.Driver))
	}
	if c.Store.MaxConns < 0 || c.Store.MinConns < 0 {
		errs = append(errs, "store.max_conns and store.min_conns must be >= 0")
	}
	if c.Store.MaxConns > 0 && c.Store.MinConns > c.Store.MaxConns {
		errs = append(errs, "store.min_conns must be <= store.max_conns")
	}

	if mode == "analysis" {
		if c.Analysis.BatchSize < 1 || c.Analysis.BatchSize > 100 {
			errs = append(errs, "analysis.batch_size must be between 1 and 100")
		}
		if c.Analysis.BatchPauseMs < 0 {
			errs = append(errs, "analysis.batch_pause_ms must be >= 0")
		}
		if c.Analysis.StalenessHours <= 0 {
			errs = append(errs, "analysis.staleness_hours must be > 0")
		}
		if c.Analysis.RescoreMinAgeHours < 0 {
			errs = append(errs, "analysis.rescore_min_age_hours must be >= 0")
		}
	}

	if len(errs) > 0 {
		return eris.Errorf("config: validation failed: %s", strings.Join(errs, "; "))
	}
	return nil
}

// InitLogger initializes the global zap logger.
func InitLogger(cfg LogConfig) error {
	var zapCfg zap.Config
	if cfg.Format == "console" {
		zapCfg = zap.NewDevelopmentConfig()
	} else {
		zapCfg = zap.NewProductionConfig()
	}

	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return eris.Wrap(err, "config: parse log level")
	}
	zapCfg.Level.SetLevel(level)

	logger, err := zapCfg.Build()
	if err != nil {
		return eris.Wrap(err, "config: build logger")
	}
	zap.ReplaceGlobals(logger)

	return nil
}
