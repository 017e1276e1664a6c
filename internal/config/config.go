// Package config loads runtime settings from the environment, after
// reading an optional .env file.
package config

import (
	"errors"
	"fmt"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

type Config struct {
	Environment string `env:"ENVIRONMENT" envDefault:"production"`

	Log      LogConfig      `envPrefix:"LOG_"`
	Discord  DiscordConfig  `envPrefix:"DISCORD_"`
	Lavalink LavalinkConfig `envPrefix:"LAVALINK_"`
	Spotify  SpotifyConfig  `envPrefix:"SPOTIFY_"`
	YouTube  YouTubeConfig  `envPrefix:"YOUTUBE_"`
	Player   PlayerConfig   `envPrefix:"PLAYER_"`
	Storage  StorageConfig  `envPrefix:"STORAGE_"`
	Redis    RedisConfig    `envPrefix:"REDIS_"`
	Metrics  MetricsConfig  `envPrefix:"METRICS_"`
}

type LogConfig struct {
	Level      string `env:"LEVEL"`
	File       string `env:"FILE"`
	MaxSizeMB  int    `env:"MAX_SIZE_MB" envDefault:"20"`
	MaxBackups int    `env:"MAX_BACKUPS" envDefault:"5"`
}

type DiscordConfig struct {
	Token      string `env:"TOKEN,required,notEmpty"`
	ShardCount int    `env:"SHARD_COUNT" envDefault:"1"`
}

type LavalinkConfig struct {
	Host              string        `env:"HOST" envDefault:"localhost"`
	Port              int           `env:"PORT" envDefault:"2333"`
	Password          string        `env:"PASSWORD" envDefault:"youshallnotpass"`
	Secure            bool          `env:"SECURE" envDefault:"false"`
	ReconnectAttempts int           `env:"RECONNECT_ATTEMPTS" envDefault:"3"`
	ReconnectInterval time.Duration `env:"RECONNECT_INTERVAL" envDefault:"15s"`
}

type SpotifyConfig struct {
	ClientID     string        `env:"CLIENT_ID"`
	ClientSecret string        `env:"CLIENT_SECRET"`
	TokenURL     string        `env:"TOKEN_URL"`
	APIURL       string        `env:"API_URL"`
	TokenRefresh time.Duration `env:"TOKEN_REFRESH" envDefault:"1h"`
}

type YouTubeConfig struct {
	APIKey string `env:"API_KEY"`
	APIURL string `env:"API_URL"`
}

type PlayerConfig struct {
	IdleTimeout         time.Duration `env:"IDLE_TIMEOUT" envDefault:"1m"`
	DefaultVolume       int           `env:"DEFAULT_VOLUME" envDefault:"50"`
	VolumeStep          int           `env:"VOLUME_STEP" envDefault:"10"`
	VoiceConnectTimeout time.Duration `env:"VOICE_CONNECT_TIMEOUT" envDefault:"10s"`
	LiveUpdates         bool          `env:"LIVE_UPDATES" envDefault:"true"`
}

type StorageConfig struct {
	Backend string `env:"BACKEND" envDefault:"json"`
	Path    string `env:"PATH" envDefault:"datastore.json"`
	DSN     string `env:"DSN" envDefault:"lavaplayer.db"`
}

type RedisConfig struct {
	Addr     string `env:"ADDR" envDefault:"localhost:6379"`
	Password string `env:"PASSWORD"`
	DB       int    `env:"DB" envDefault:"0"`
	Key      string `env:"KEY"`
}

type MetricsConfig struct {
	Bind string `env:"BIND"`
}

// Load reads envFiles (".env" when none are given; a missing file is not an
// error) and parses the environment.
func Load(envFiles ...string) (*Config, error) {
	if len(envFiles) == 0 {
		_ = godotenv.Load()
	} else if err := godotenv.Load(envFiles...); err != nil {
		return nil, fmt.Errorf("load env file: %w", err)
	}

	cfg := &Config{}
	if err := env.Parse(cfg); err != nil {
		return nil, fmt.Errorf("parse environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate rejects settings the player cannot run with.
func (c *Config) Validate() error {
	var errs []error
	if c.Discord.ShardCount < 1 {
		errs = append(errs, errors.New("DISCORD_SHARD_COUNT must be at least 1"))
	}
	if c.Lavalink.Port < 1 || c.Lavalink.Port > 65535 {
		errs = append(errs, fmt.Errorf("LAVALINK_PORT %d out of range", c.Lavalink.Port))
	}
	if c.Lavalink.ReconnectAttempts < 1 {
		errs = append(errs, errors.New("LAVALINK_RECONNECT_ATTEMPTS must be at least 1"))
	}
	if c.Player.IdleTimeout <= 0 {
		errs = append(errs, errors.New("PLAYER_IDLE_TIMEOUT must be positive"))
	}
	if c.Player.DefaultVolume < 0 || c.Player.DefaultVolume > 200 {
		errs = append(errs, fmt.Errorf("PLAYER_DEFAULT_VOLUME %d out of [0,200]", c.Player.DefaultVolume))
	}
	if c.Player.VolumeStep < 1 {
		errs = append(errs, errors.New("PLAYER_VOLUME_STEP must be positive"))
	}
	switch c.Storage.Backend {
	case "json", "sqlite", "redis":
	default:
		errs = append(errs, fmt.Errorf("STORAGE_BACKEND %q is not one of json, sqlite, redis", c.Storage.Backend))
	}
	return errors.Join(errs...)
}

// Redacted returns a copy safe to print.
func (c Config) Redacted() Config {
	mask := func(s string) string {
		if s == "" {
			return ""
		}
		return "****"
	}
	c.Discord.Token = mask(c.Discord.Token)
	c.Lavalink.Password = mask(c.Lavalink.Password)
	c.Spotify.ClientSecret = mask(c.Spotify.ClientSecret)
	c.YouTube.APIKey = mask(c.YouTube.APIKey)
	c.Redis.Password = mask(c.Redis.Password)
	return c
}
