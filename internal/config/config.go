// =================================
// File: internal/config/config.go
// =================================
package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/spf13/viper"

	"github.com/rovshanmuradov/solana-pnl/internal/pnl"
)

type Config struct {
	Wallets             []string    `mapstructure:"wallets"`
	RPCURL              string      `mapstructure:"rpc_url"`
	SolanaTrackerURL    string      `mapstructure:"solanatracker_url"`
	SolanaTrackerAPIKey string      `mapstructure:"solanatracker_api_key"`
	DexScreenerURL      string      `mapstructure:"dexscreener_url"`
	PollIntervalMs      int         `mapstructure:"poll_interval_ms"`
	Retries             int         `mapstructure:"retries"`
	RequestsPerMinute   int         `mapstructure:"requests_per_minute"`
	Workers             int         `mapstructure:"workers"`
	Store               StoreConfig `mapstructure:"store"`
	Kafka               KafkaConfig `mapstructure:"kafka"`
	MetricsAddr         string      `mapstructure:"metrics_addr"`
	JournalDir          string      `mapstructure:"journal_dir"`
	ExportDir           string      `mapstructure:"export_dir"`
	UnmatchedPolicy     string      `mapstructure:"unmatched_policy"`
	BaseAssets          []string    `mapstructure:"base_assets"`
	DebugLogging        bool        `mapstructure:"debug_logging"`
	LogFile             string      `mapstructure:"log_file"`
}

// StoreConfig выбирает хранилище состояния кошельков
type StoreConfig struct {
	Driver        string `mapstructure:"driver"`
	Path          string `mapstructure:"path"`
	PostgresURL   string `mapstructure:"postgres_url"`
	RedisAddr     string `mapstructure:"redis_addr"`
	RedisPassword string `mapstructure:"redis_password"`
	RedisDB       int    `mapstructure:"redis_db"`
}

// KafkaConfig включает публикацию реализаций, если заданы брокеры
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

const (
	DefaultRPCURL            = "https://api.mainnet-beta.solana.com"
	DefaultSolanaTrackerURL  = "https://data.solanatracker.io"
	DefaultDexScreenerURL    = "https://api.dexscreener.com"
	DefaultPollIntervalMs    = 60000
	DefaultRetries           = 3
	DefaultRequestsPerMinute = 60
	DefaultWorkers           = 4
	DefaultStoreDriver       = "file"
	DefaultStorePath         = "data/state"
	DefaultKafkaTopic        = "solana-pnl.realizations"
	DefaultJournalDir        = "data/journal"
	DefaultExportDir         = "exports"
	DefaultLogFile           = "solana-pnl.log"

	envPrefix = "SOLANA_PNL"
)

var storeDrivers = map[string]bool{"memory": true, "file": true, "postgres": true, "redis": true}

// PollInterval returns the configured interval as a duration.
func (c *Config) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalMs) * time.Millisecond
}

// Policy returns the parsed unmatched-sell policy.
func (c *Config) Policy() pnl.UnmatchedPolicy {
	p, _ := pnl.ParsePolicy(c.UnmatchedPolicy)
	return p
}

// LoadConfig reads path (may be empty) and applies SOLANA_PNL_* overrides.
func LoadConfig(path string) (*Config, error) {
	v := viper.New()

	defaults := map[string]interface{}{
		"rpc_url":               DefaultRPCURL,
		"solanatracker_url":     DefaultSolanaTrackerURL,
		"solanatracker_api_key": "",
		"dexscreener_url":       DefaultDexScreenerURL,
		"poll_interval_ms":      DefaultPollIntervalMs,
		"retries":               DefaultRetries,
		"requests_per_minute":   DefaultRequestsPerMinute,
		"workers":               DefaultWorkers,
		"store.driver":          DefaultStoreDriver,
		"store.path":            DefaultStorePath,
		"store.postgres_url":    "",
		"store.redis_addr":      "",
		"store.redis_password":  "",
		"store.redis_db":        0,
		"kafka.topic":           DefaultKafkaTopic,
		"metrics_addr":          "",
		"journal_dir":           DefaultJournalDir,
		"export_dir":            DefaultExportDir,
		"unmatched_policy":      string(pnl.UnmatchedIgnore),
		"debug_logging":         false,
		"log_file":              DefaultLogFile,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if err := loadEnvironmentVariables(v, &cfg); err != nil {
		return nil, err
	}

	return &cfg, validateConfig(&cfg)
}

func validateConfig(cfg *Config) error {
	if len(cfg.Wallets) == 0 {
		return errors.New("wallets is empty")
	}
	for _, w := range cfg.Wallets {
		if _, err := solana.PublicKeyFromBase58(w); err != nil {
			return fmt.Errorf("invalid wallet address %q", w)
		}
	}
	for _, u := range []string{cfg.RPCURL, cfg.SolanaTrackerURL, cfg.DexScreenerURL} {
		if err := validateURLWithCache(u, "http"); err != nil {
			return errors.New("invalid API URL protocol")
		}
	}
	if err := validateNumericParams(cfg); err != nil {
		return err
	}
	if err := validateStore(&cfg.Store); err != nil {
		return err
	}
	if len(cfg.Kafka.Brokers) > 0 && cfg.Kafka.Topic == "" {
		return errors.New("kafka.topic is required when brokers are set")
	}
	if _, err := pnl.ParsePolicy(cfg.UnmatchedPolicy); err != nil {
		return err
	}
	return nil
}

func validateNumericParams(cfg *Config) error {
	if cfg.PollIntervalMs <= 0 {
		return errors.New("invalid poll_interval_ms")
	}
	if cfg.Workers < 0 {
		return errors.New("invalid workers count")
	}
	if cfg.RequestsPerMinute <= 0 {
		return errors.New("invalid requests_per_minute")
	}
	if cfg.Retries < 0 {
		return errors.New("invalid retries count")
	}
	return nil
}

func validateStore(s *StoreConfig) error {
	s.Driver = strings.ToLower(strings.TrimSpace(s.Driver))
	if !storeDrivers[s.Driver] {
		return fmt.Errorf("unknown store.driver %q", s.Driver)
	}
	switch s.Driver {
	case "file":
		if s.Path == "" {
			return errors.New("store.path is required for the file store")
		}
	case "postgres":
		if err := validateURLWithCache(s.PostgresURL, "postgres"); err != nil {
			return errors.New("invalid store.postgres_url")
		}
	case "redis":
		if s.RedisAddr == "" {
			return errors.New("store.redis_addr is required for the redis store")
		}
	}
	return nil
}

var urlCache sync.Map

func validateURLWithCache(rawURL string, protocol string) error {
	if _, ok := urlCache.Load(rawURL); ok {
		return nil
	}
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return errors.New("invalid URL format")
	}
	if !strings.HasPrefix(parsed.Scheme, protocol) {
		return errors.New("invalid URL protocol")
	}
	urlCache.Store(rawURL, parsed)
	return nil
}

// loadEnvironmentVariables разбирает списки из переменных окружения через запятую.
func loadEnvironmentVariables(v *viper.Viper, cfg *Config) error {
	if list := splitList(v.GetString("WALLETS")); len(list) > 0 {
		cfg.Wallets = list
	}
	if list := splitList(v.GetString("KAFKA_BROKERS")); len(list) > 0 {
		cfg.Kafka.Brokers = list
	}
	if list := splitList(v.GetString("BASE_ASSETS")); len(list) > 0 {
		cfg.BaseAssets = list
	}
	return nil
}

func splitList(raw string) []string {
	var out []string
	for _, item := range strings.Split(raw, ",") {
		clean := strings.TrimSpace(item)
		if clean != "" {
			out = append(out, clean)
		}
	}
	return out
}
