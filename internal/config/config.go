package config

import (
	"strings"

	"github.com/rotisserie/eris"
	"github.com/spf13/viper"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config holds the full application configuration.
type Config struct {
	Server    ServerConfig    `yaml:"server" mapstructure:"server"`
	CORS      CORSConfig      `yaml:"cors" mapstructure:"cors"`
	USPS      USPSConfig      `yaml:"usps" mapstructure:"usps"`
	Nominatim NominatimConfig `yaml:"nominatim" mapstructure:"nominatim"`
	Congress  CongressConfig  `yaml:"congress" mapstructure:"congress"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// ServerConfig configures the HTTP gateway.
type ServerConfig struct {
	Port           int   `yaml:"port" mapstructure:"port"`
	MaxUploadBytes int64 `yaml:"max_upload_bytes" mapstructure:"max_upload_bytes"`
}

// CORSConfig configures cross-origin policy. Origins is comma-separated;
// empty means localhost development defaults.
type CORSConfig struct {
	Origins     string `yaml:"origins" mapstructure:"origins"`
	Credentials bool   `yaml:"credentials" mapstructure:"credentials"`
}

// USPSConfig holds USPS Web Tools API settings.
type USPSConfig struct {
	UserID  string `yaml:"user_id" mapstructure:"user_id"`
	BaseURL string `yaml:"base_url" mapstructure:"base_url"`
}

// NominatimConfig holds Nominatim geocoding settings. RateRPS should stay
// at 1 to comply with the Nominatim usage policy.
type NominatimConfig struct {
	BaseURL   string  `yaml:"base_url" mapstructure:"base_url"`
	UserAgent string  `yaml:"user_agent" mapstructure:"user_agent"`
	RateRPS   float64 `yaml:"rate_rps" mapstructure:"rate_rps"`
}

// CongressConfig holds Congress.gov API settings.
type CongressConfig struct {
	APIKey    string `yaml:"api_key" mapstructure:"api_key"`
	BaseURL   string `yaml:"base_url" mapstructure:"base_url"`
	PageLimit int    `yaml:"page_limit" mapstructure:"page_limit"`
}

// LogConfig configures logging.
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}

// AllowedOrigins expands the configured origin list. A single "*" entry
// means wildcard; empty config falls back to localhost dev origins.
func (c CORSConfig) AllowedOrigins() []string {
	raw := strings.TrimSpace(c.Origins)
	if raw == "" {
		return []string{"http://localhost:3000", "http://localhost:3002", "http://localhost:3003"}
	}
	var origins []string
	for _, o := range strings.Split(raw, ",") {
		if o = strings.TrimSpace(o); o != "" {
			origins = append(origins, o)
		}
	}
	return origins
}

// AllowCredentials reports whether credentialed requests are allowed.
// Wildcard origins force credentials off.
func (c CORSConfig) AllowCredentials() bool {
	if strings.TrimSpace(c.Origins) == "*" {
		return false
	}
	return c.Credentials
}

// Load reads configuration from file and environment.
func Load() (*Config, error) {
	v := viper.New()

	// Config file
	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	// Environment
	v.SetEnvPrefix("CIVICD")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Defaults
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.max_upload_bytes", 10*1024*1024)
	// Empty defaults register the key so AutomaticEnv can override it.
	v.SetDefault("cors.origins", "")
	v.SetDefault("cors.credentials", true)
	v.SetDefault("usps.user_id", "")
	v.SetDefault("usps.base_url", "https://secure.shippingapis.com/ShippingAPI.dll")
	v.SetDefault("nominatim.base_url", "https://nominatim.openstreetmap.org")
	v.SetDefault("nominatim.user_agent", "civicd/1.0 (admin@civic.example)")
	v.SetDefault("nominatim.rate_rps", 1)
	v.SetDefault("congress.api_key", "")
	v.SetDefault("congress.base_url", "https://api.congress.gov/v3")
	v.SetDefault("congress.page_limit", 250)
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "json")

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
