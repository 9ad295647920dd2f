package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/viper"
)

const (
	MinPollInterval   = 30 * time.Second
	MaxGeometricRatio = 3.0
)

type Config struct {
	Exchange      ExchangeConfig
	Telegram      TelegramConfig
	Notifications NotificationsConfig
	Scale         ScaleConfig
	Storage       StorageConfig
	Runtime       RuntimeConfig
}

type ExchangeConfig struct {
	BaseURL           string
	WSURL             string
	Mainnet           bool
	AccountAddress    string
	PrivateKey        string
	VaultAddress      string
	RequestsPerSecond float64
}

type TelegramConfig struct {
	Token  string
	ChatID int64
}

type NotificationsConfig struct {
	StatePath      string
	PollInterval   time.Duration
	BatchThreshold int
}

type ScaleConfig struct {
	TickSize       float64
	SizeDecimals   int
	GeometricRatio float64
}

type StorageConfig struct {
	Driver string
	DSN    string
}

type RuntimeConfig struct {
	DryRun      bool
	MetricsAddr string
	Log         LogConfig
}

type LogConfig struct {
	Level      string
	Format     string
	File       string
	MaxSize    int
	MaxBackups int
	MaxAge     int
	Compress   bool
}

var envPattern = regexp.MustCompile(`\$\{(\w+)\}`)

func Load() (*Config, error) {
	return LoadFrom("configs")
}

// LoadFrom reads config.yaml from dir. A missing file falls back to defaults.
func LoadFrom(dir string) (*Config, error) {
	v := viper.New()
	v.AddConfigPath(dir)
	v.SetConfigName("config")
	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("Не удалось прочитать конфигурацию: %w", err)
		}
	}

	cfg := &Config{}

	cfg.Exchange = ExchangeConfig{
		BaseURL:           v.GetString("exchange.base_url"),
		WSURL:             v.GetString("exchange.ws_url"),
		Mainnet:           v.GetBool("exchange.mainnet"),
		AccountAddress:    envSub(v, "exchange.account_address"),
		PrivateKey:        envSub(v, "exchange.private_key"),
		VaultAddress:      envSub(v, "exchange.vault_address"),
		RequestsPerSecond: v.GetFloat64("exchange.requests_per_second"),
	}

	chatID := envSub(v, "telegram.chat_id")
	cfg.Telegram = TelegramConfig{Token: envSub(v, "telegram.token")}
	if chatID != "" {
		id, err := strconv.ParseInt(chatID, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("Некорректный telegram.chat_id %q: %w", chatID, err)
		}
		cfg.Telegram.ChatID = id
	}

	cfg.Notifications = NotificationsConfig{
		StatePath:      v.GetString("notifications.state_path"),
		PollInterval:   v.GetDuration("notifications.poll_interval"),
		BatchThreshold: v.GetInt("notifications.batch_threshold"),
	}

	cfg.Scale = ScaleConfig{
		TickSize:       v.GetFloat64("scale.tick_size"),
		SizeDecimals:   v.GetInt("scale.size_decimals"),
		GeometricRatio: v.GetFloat64("scale.geometric_ratio"),
	}

	cfg.Storage = StorageConfig{
		Driver: strings.ToLower(v.GetString("storage.driver")),
		DSN:    envSub(v, "storage.dsn"),
	}

	cfg.Runtime = RuntimeConfig{
		DryRun:      v.GetBool("runtime.dry_run"),
		MetricsAddr: v.GetString("runtime.metrics_addr"),
		Log: LogConfig{
			Level:      v.GetString("runtime.log.level"),
			Format:     v.GetString("runtime.log.format"),
			File:       v.GetString("runtime.log.file"),
			MaxSize:    v.GetInt("runtime.log.max_size"),
			MaxBackups: v.GetInt("runtime.log.max_backups"),
			MaxAge:     v.GetInt("runtime.log.max_age"),
			Compress:   v.GetBool("runtime.log.compress"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.Notifications.PollInterval < MinPollInterval {
		return fmt.Errorf("notifications.poll_interval должен быть не меньше %s, получено %s", MinPollInterval, c.Notifications.PollInterval)
	}
	if c.Notifications.BatchThreshold < 1 {
		return fmt.Errorf("notifications.batch_threshold должен быть положительным")
	}
	switch c.Storage.Driver {
	case "memory":
	case "postgres":
		if c.Storage.DSN == "" {
			return fmt.Errorf("storage.dsn обязателен для postgres")
		}
	default:
		return fmt.Errorf("Неизвестный storage.driver %q", c.Storage.Driver)
	}
	if c.Scale.GeometricRatio <= 1 || c.Scale.GeometricRatio > MaxGeometricRatio {
		return fmt.Errorf("scale.geometric_ratio должен быть в диапазоне (1, %v], получено %v", MaxGeometricRatio, c.Scale.GeometricRatio)
	}
	if c.Scale.TickSize <= 0 || c.Scale.SizeDecimals < 0 {
		return fmt.Errorf("Некорректные параметры округления scale")
	}
	return nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("exchange.base_url", "https://api.hyperliquid.xyz")
	v.SetDefault("exchange.ws_url", "wss://api.hyperliquid.xyz/ws")
	v.SetDefault("exchange.mainnet", true)
	v.SetDefault("exchange.requests_per_second", 5)
	v.SetDefault("notifications.state_path", "data/notification_state.json")
	v.SetDefault("notifications.poll_interval", 300*time.Second)
	v.SetDefault("notifications.batch_threshold", 5)
	v.SetDefault("scale.tick_size", 0.01)
	v.SetDefault("scale.size_decimals", 4)
	v.SetDefault("scale.geometric_ratio", 1.5)
	v.SetDefault("storage.driver", "memory")
	v.SetDefault("runtime.metrics_addr", ":9090")
	v.SetDefault("runtime.log.level", "info")
	v.SetDefault("runtime.log.format", "text")
	v.SetDefault("runtime.log.file", "stdout")
}

func envSub(v *viper.Viper, key string) string {
	val := v.GetString(key)
	if val == "" {
		return ""
	}

	return envPattern.ReplaceAllStringFunc(val, func(match string) string {
		envKey := strings.TrimSuffix(strings.TrimPrefix(match, "${"), "}")
		return os.Getenv(envKey)
	})
}
