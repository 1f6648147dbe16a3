package config

import (
	"errors"
	"strings"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application.
type Config struct {
	Feed     Feed     `mapstructure:"feed"`
	Advisor  Advisor  `mapstructure:"advisor"`
	Trading  Trading  `mapstructure:"trading"`
	Risk     Risk     `mapstructure:"risk"`
	Logger   Logger   `mapstructure:"logger"`
	Server   Server   `mapstructure:"server"`
	Database Database `mapstructure:"database"`
}

// Feed holds the configuration for the market data feed client.
type Feed struct {
	BaseURL        string  `mapstructure:"base_url"`
	PollInterval   int     `mapstructure:"poll_interval"`
	RateLimit      float64 `mapstructure:"rate_limit"`
	RateLimitBurst int     `mapstructure:"rate_limit_burst"`
}

// Advisor holds the configuration for the external advisory service.
type Advisor struct {
	BaseURL   string `mapstructure:"base_url"`
	TimeoutMS int    `mapstructure:"timeout_ms"`
}

// Trading holds the configuration for the trading engine.
type Trading struct {
	Pairs             []string `mapstructure:"pairs"`
	Mode              string   `mapstructure:"mode"`
	AutopilotInterval int      `mapstructure:"autopilot_interval"`
	SettleInterval    int      `mapstructure:"settle_interval"`
	MinNotional       float64  `mapstructure:"min_notional"`
	InitialBalance    float64  `mapstructure:"initial_balance"`
}

// Risk holds the default risk configuration applied when the database has
// no stored one yet.
type Risk struct {
	StopLossPct    float64 `mapstructure:"stop_loss_pct"`
	TakeProfitPct  float64 `mapstructure:"take_profit_pct"`
	MaxDrawdownPct float64 `mapstructure:"max_drawdown_pct"`
	RiskFraction   float64 `mapstructure:"risk_fraction"`
	MaxPosition    float64 `mapstructure:"max_position"`
}

// Server holds the configuration for the HTTP API server.
type Server struct {
	Port int `mapstructure:"port"`
}

// Database holds the configuration for the database.
type Database struct {
	DSN string `mapstructure:"dsn"`
}

// Logger holds the configuration for the logger.
type Logger struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig reads configuration from file or environment variables. A
// missing config file is not an error; defaults cover every key so the
// engine can start from a clean checkout.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yml")

	// Allow environment variables to override config file
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	setDefaults()

	if err = viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return
		}
		err = nil
	}

	err = viper.Unmarshal(&config)
	return
}

func setDefaults() {
	viper.SetDefault("feed.base_url", "https://api.coingecko.com/api/v3")
	viper.SetDefault("feed.poll_interval", 8)
	viper.SetDefault("feed.rate_limit", 10) // requests per second
	viper.SetDefault("feed.rate_limit_burst", 5)

	viper.SetDefault("advisor.timeout_ms", 6500)

	viper.SetDefault("trading.pairs", []string{"BTC/USD", "ETH/USD", "SOL/USD"})
	viper.SetDefault("trading.mode", "TRIAL")
	viper.SetDefault("trading.autopilot_interval", 10)
	viper.SetDefault("trading.settle_interval", 5)
	viper.SetDefault("trading.min_notional", 10)
	viper.SetDefault("trading.initial_balance", 10000)

	viper.SetDefault("risk.stop_loss_pct", 2)
	viper.SetDefault("risk.take_profit_pct", 5)
	viper.SetDefault("risk.max_drawdown_pct", 15)
	viper.SetDefault("risk.risk_fraction", 0.05)
	viper.SetDefault("risk.max_position", 1000)

	viper.SetDefault("logger.level", "info")
	viper.SetDefault("logger.format", "console")

	viper.SetDefault("server.port", 8750)

	viper.SetDefault("database.dsn", "tradepilot.db")
}
