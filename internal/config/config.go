package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config stores all configuration for the application.
// The values are read by viper from a config file or environment variables.
type Config struct {
	Scrape   ScrapeConfig
	Database DatabaseConfig
	Sources  SourcesConfig
}

// ScrapeConfig defines the scrape pipeline settings.
type ScrapeConfig struct {
	RateLimitSeconds    float64 `mapstructure:"rate_limit_seconds"`
	DailyScrapeTime     string  `mapstructure:"daily_scrape_time"` // HH:MM
	Timezone            string  `mapstructure:"timezone"`
	FetchTimeoutSeconds int     `mapstructure:"fetch_timeout_seconds"`
	MaxRetries          int     `mapstructure:"max_retries"`
}

// RateLimit returns the minimum delay between scrape requests.
func (s ScrapeConfig) RateLimit() time.Duration {
	return time.Duration(s.RateLimitSeconds * float64(time.Second))
}

// FetchTimeout returns the per-request HTTP timeout.
func (s ScrapeConfig) FetchTimeout() time.Duration {
	return time.Duration(s.FetchTimeoutSeconds) * time.Second
}

// DatabaseConfig defines the database connection settings.
type DatabaseConfig struct {
	Host               string
	Port               int
	User               string
	Password           string
	DBName             string
	SSLMode            string `mapstructure:"sslmode"`
	StatementTimeoutMS int    `mapstructure:"statement_timeout_ms"`
}

// URL returns the pgx connection string. The statement timeout rides
// along as a server runtime parameter so every query on the pool is
// bounded without per-call deadlines.
func (d DatabaseConfig) URL() string {
	url := fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DBName, d.SSLMode)
	if d.StatementTimeoutMS > 0 {
		url += fmt.Sprintf("&statement_timeout=%d", d.StatementTimeoutMS)
	}
	return url
}

// SourcesConfig defines the remote source endpoints per commodity.
type SourcesConfig struct {
	CME SourceURLs `mapstructure:"cme"`
	EIA SourceURLs `mapstructure:"eia"`
}

// SourceURLs holds one endpoint per commodity.
type SourceURLs struct {
	WTIURL string `mapstructure:"wti_url"`
	HHURL  string `mapstructure:"hh_url"`
}

// LoadConfig reads configuration from file or environment variables.
func LoadConfig(path string) (config Config, err error) {
	viper.AddConfigPath(path)
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")

	viper.SetDefault("scrape.rate_limit_seconds", 2.0)
	viper.SetDefault("scrape.daily_scrape_time", "18:00")
	viper.SetDefault("scrape.timezone", "America/New_York")
	viper.SetDefault("scrape.fetch_timeout_seconds", 30)
	viper.SetDefault("scrape.max_retries", 3)
	viper.SetDefault("database.sslmode", "disable")
	viper.SetDefault("database.statement_timeout_ms", 30000)
	viper.SetDefault("sources.cme.wti_url",
		"https://www.cmegroup.com/markets/energy/crude-oil/light-sweet-crude.settlements.html")
	viper.SetDefault("sources.cme.hh_url",
		"https://www.cmegroup.com/markets/energy/natural-gas/natural-gas.settlements.html")
	viper.SetDefault("sources.eia.wti_url",
		"https://www.eia.gov/dnav/pet/hist/LeafHandler.ashx?n=PET&s=RWTC&f=D")
	viper.SetDefault("sources.eia.hh_url",
		"https://www.eia.gov/dnav/ng/hist/rngwhhdD.htm")

	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()

	err = viper.ReadInConfig()
	if err != nil {
		return
	}

	err = viper.Unmarshal(&config)
	return
}
