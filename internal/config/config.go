package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Arbitrage ArbitrageConfig
	Portfolio PortfolioConfig
	Database  DatabaseConfig
	Redis     RedisConfig
	Exchanges map[string]ExchangeConfig
	LogLevel  string `mapstructure:"log_level"`
}

// ArbitrageConfig defines the arbitrage-related settings.
type ArbitrageConfig struct {
	Enabled            bool          `mapstructure:"enabled"`
	MinSpreadPercent   float64       `mapstructure:"min_spread_percent"`
	MinNotional        float64       `mapstructure:"min_notional"`
	MaxNotional        float64       `mapstructure:"max_notional"`
	FeeMargin          float64       `mapstructure:"fee_margin"`
	PriceOffset        float64       `mapstructure:"price_offset"`
	MinBookSize        float64       `mapstructure:"min_book_size"`
	BookDepth          int           `mapstructure:"book_depth"`
	Cycles             int           `mapstructure:"cycles"`
	CycleDelay         time.Duration `mapstructure:"cycle_delay"`
	Workers            int           `mapstructure:"workers"`
	Venues             []string      `mapstructure:"venues"`
	SellVenues         []string      `mapstructure:"sell_venues"`
	BuyVenues          []string      `mapstructure:"buy_venues"`
	Pairs              []string      `mapstructure:"pairs"`
	ExcludedCurrencies []string      `mapstructure:"excluded_currencies"`
	OrderAttempts      int           `mapstructure:"order_attempts"`
	OrderRetryDelay    time.Duration `mapstructure:"order_retry_delay"`
	BalanceAttempts    int           `mapstructure:"balance_attempts"`
	BalanceRetryDelay  time.Duration `mapstructure:"balance_retry_delay"`
	ReconcileAttempts  int           `mapstructure:"reconcile_attempts"`
	ReconcileDelay     time.Duration `mapstructure:"reconcile_delay"`
}

// PortfolioConfig controls the before/after portfolio report.
type PortfolioConfig struct {
	Display           bool   `mapstructure:"display"`
	Convert           bool   `mapstructure:"convert"`
	ReferenceCurrency string `mapstructure:"reference_currency"`
	RateVenue         string `mapstructure:"rate_venue"`
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Enabled  bool
	Host     string
	Port     int
	User     string
	Password string
	DBName   string
	SSLMode  string `mapstructure:"sslmode"`
}

// DSN builds a postgres connection string.
func (d DatabaseConfig) DSN() string {
	sslMode := d.SSLMode
	if sslMode == "" {
		sslMode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s", d.User, d.Password, d.Host, d.Port, d.DBName, sslMode)
}

// RedisConfig defines the rate cache connection.
type RedisConfig struct {
	Enabled  bool
	Addr     string
	Password string
	DB       int
	RateTTL  time.Duration `mapstructure:"rate_ttl"`
}

// ExchangeConfig defines settings for a specific exchange.
type ExchangeConfig struct {
	Enabled   bool   `mapstructure:"enabled"`
	APIKey    string `mapstructure:"api_key"`
	APISecret string `mapstructure:"api_secret"`
	BaseURL   string `mapstructure:"base_url"`
	WSURL     string `mapstructure:"ws_url"`
	// Paper wraps the venue with simulated balances and fills.
	Paper           bool               `mapstructure:"paper"`
	PaperBalances   map[string]float64 `mapstructure:"paper_balances"`
	PaperFeePercent float64            `mapstructure:"paper_fee_percent"`
}

// knownExchanges get their credentials bound to environment variables
// such as EXCHANGES_BINANCE_API_KEY.
var knownExchanges = []string{"binance", "kraken", "wallex"}

func setDefaults(v *viper.Viper) {
	v.SetDefault("log_level", "info")

	v.SetDefault("arbitrage.enabled", false)
	v.SetDefault("arbitrage.min_spread_percent", 1.0)
	v.SetDefault("arbitrage.min_notional", 0.004)
	v.SetDefault("arbitrage.max_notional", 0.07)
	v.SetDefault("arbitrage.fee_margin", 0.005)
	v.SetDefault("arbitrage.price_offset", 0.001)
	v.SetDefault("arbitrage.min_book_size", 0.0)
	v.SetDefault("arbitrage.book_depth", 5)
	v.SetDefault("arbitrage.cycles", 15)
	v.SetDefault("arbitrage.cycle_delay", 5*time.Second)
	v.SetDefault("arbitrage.workers", 1)
	v.SetDefault("arbitrage.venues", []string{})
	v.SetDefault("arbitrage.sell_venues", []string{})
	v.SetDefault("arbitrage.buy_venues", []string{})
	v.SetDefault("arbitrage.pairs", []string{})
	v.SetDefault("arbitrage.excluded_currencies", []string{"EUR", "USD", "GBP", "AUD", "JPY", "CNY"})
	v.SetDefault("arbitrage.order_attempts", 3)
	v.SetDefault("arbitrage.order_retry_delay", time.Second)
	v.SetDefault("arbitrage.balance_attempts", 3)
	v.SetDefault("arbitrage.balance_retry_delay", time.Second)
	v.SetDefault("arbitrage.reconcile_attempts", 50)
	v.SetDefault("arbitrage.reconcile_delay", 5*time.Second)

	v.SetDefault("portfolio.display", true)
	v.SetDefault("portfolio.convert", false)
	v.SetDefault("portfolio.reference_currency", "BTC")
	v.SetDefault("portfolio.rate_venue", "")

	v.SetDefault("database.enabled", false)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.user", "postgres")
	v.SetDefault("database.password", "")
	v.SetDefault("database.dbname", "crossarb")
	v.SetDefault("database.sslmode", "disable")

	v.SetDefault("redis.enabled", false)
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("redis.rate_ttl", 24*time.Hour)
}

// LoadConfig reads configuration from file or environment variables.
// A .env file in the working directory, if present, is loaded into the environment first.
func LoadConfig(path string) (config Config, err error) {
	if err = godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return config, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.AddConfigPath(path)
	v.SetConfigName("config")
	v.SetConfigType("yaml")

	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	setDefaults(v)
	for _, name := range knownExchanges {
		for _, key := range []string{"enabled", "api_key", "api_secret"} {
			k := "exchanges." + name + "." + key
			if err = v.BindEnv(k); err != nil {
				return config, err
			}
		}
	}

	if err = v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return config, err
		}
	}

	if err = v.Unmarshal(&config); err != nil {
		return config, err
	}
	err = config.Validate()
	return
}

// Validate rejects configurations the engine cannot run with.
func (c Config) Validate() error {
	a := c.Arbitrage
	var errs []error
	if a.MinNotional <= 0 {
		errs = append(errs, errors.New("arbitrage.min_notional must be positive"))
	}
	if a.MaxNotional < a.MinNotional {
		errs = append(errs, errors.New("arbitrage.max_notional must be >= min_notional"))
	}
	if a.FeeMargin < 0 || a.FeeMargin >= 1 {
		errs = append(errs, errors.New("arbitrage.fee_margin must be in [0, 1)"))
	}
	if a.PriceOffset < 0 || a.PriceOffset >= 0.1 {
		errs = append(errs, errors.New("arbitrage.price_offset must be in [0, 0.1)"))
	}
	if a.Cycles < 1 {
		errs = append(errs, errors.New("arbitrage.cycles must be >= 1"))
	}
	if a.Workers < 1 {
		errs = append(errs, errors.New("arbitrage.workers must be >= 1"))
	}
	if a.OrderAttempts < 1 || a.BalanceAttempts < 1 || a.ReconcileAttempts < 1 {
		errs = append(errs, errors.New("arbitrage attempt bounds must be >= 1"))
	}
	if c.Portfolio.Convert && c.Portfolio.ReferenceCurrency == "" {
		errs = append(errs, errors.New("portfolio.reference_currency is required when convert is set"))
	}
	return errors.Join(errs...)
}

// EnabledExchanges returns the names of enabled exchanges, restricted to
// arbitrage.venues when that list is set and kept in its order.
func (c Config) EnabledExchanges() []string {
	var names []string
	if len(c.Arbitrage.Venues) > 0 {
		for _, n := range c.Arbitrage.Venues {
			if ex, ok := c.Exchanges[n]; ok && ex.Enabled {
				names = append(names, n)
			}
		}
		return names
	}
	for _, n := range knownExchanges {
		if ex, ok := c.Exchanges[n]; ok && ex.Enabled {
			names = append(names, n)
		}
	}
	return names
}
