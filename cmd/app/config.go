package main

import (
	"fmt"
	"strings"

	"isle_quest_backend/internal/payment"
	"isle_quest_backend/internal/repository"

	"github.com/spf13/viper"
)

const (
	configPath   = "./"
	configName   = "config"
	configFormat = "yaml"
)

type Config struct {
	Database repository.Config `yaml:"database"`
	Server   ServerConfig      `yaml:"server"`

	Payments  PaymentsConfig  `yaml:"payments"`
	RateLimit RateLimitConfig `yaml:"rateLimit"`

	LogLevel string `yaml:"logLevel"`
}

type ServerConfig struct {
	Host string `yaml:"host"`
	Port string `yaml:"port"`
}

type PaymentsConfig struct {
	Client payment.ClientConfig `yaml:"client"`

	ReceiveAddress string `yaml:"receiveAddress"`
	// MinAmount is in nanotons, kept as a string so it survives YAML and env
	// without float rounding.
	MinAmount string  `yaml:"minAmount"`
	BonusXP   float64 `yaml:"bonusXP"`
}

type RateLimitConfig struct {
	WindowSeconds int   `yaml:"windowSeconds"`
	Limit         int64 `yaml:"limit"`
	// RedisAddr switches the counter store from in-process memory to redis
	// when set, so several instances share one window.
	RedisAddr     string `yaml:"redisAddr"`
	RedisPassword string `yaml:"redisPassword"`
}

func LoadConfig() (*Config, error) {
	viper.SetConfigName(configName)
	viper.AddConfigPath(configPath)
	viper.SetConfigType(configFormat)

	viper.AutomaticEnv()
	viper.SetEnvPrefix("APP")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	viper.WatchConfig()

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	return &cfg, nil
}
