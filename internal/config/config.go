package config

import (
	"fmt"
	"os"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Mode   string `mapstructure:"mode"`
	Port   int    `mapstructure:"port"`
	Secret string `mapstructure:"secret"`

	// TokenUpstream proxies token requests to an external issuer when
	// set; empty means tokens are minted locally with Secret.
	TokenUpstream string        `mapstructure:"token_upstream"`
	TokenTTL      time.Duration `mapstructure:"token_ttl"`

	GatewayURL string `mapstructure:"gateway_url"`

	RingTimeout    time.Duration `mapstructure:"ring_timeout"`
	RenewInterval  time.Duration `mapstructure:"renew_interval"`
	NoiseThreshold int           `mapstructure:"noise_threshold"`

	HistoryPath string `mapstructure:"history_path"`

	TokenRateLimit  int           `mapstructure:"token_rate_limit"`
	TokenRateWindow time.Duration `mapstructure:"token_rate_window"`
}

func Load() (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")

	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	fileName := fmt.Sprintf("config/config.%s.yaml", env)

	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("secret", "")
	v.SetDefault("token_ttl", "2m")
	v.SetDefault("gateway_url", "ws://localhost:8188")
	v.SetDefault("ring_timeout", "30s")
	v.SetDefault("renew_interval", "45s")
	v.SetDefault("noise_threshold", 5)
	v.SetDefault("history_path", "voicebook.db")
	v.SetDefault("token_rate_limit", 30)
	v.SetDefault("token_rate_window", "1m")

	if err := v.ReadInConfig(); err != nil {
		fmt.Printf("⚠️ Config file not found (%s), using defaults\n", fileName)
	} else {
		fmt.Printf("✅ Loaded config: %s\n", fileName)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	fmt.Printf("🧩 Mode: %s | Port: %d\n", cfg.Mode, cfg.Port)
	return &cfg, nil
}
