package config

import (
	"errors"
	"log/slog"
	"strings"

	"github.com/spf13/viper"
)

// Load reads configuration from a yaml file and environment variables.
func Load(logger *slog.Logger, fileName string) (*Config, error) {
	v := viper.New()

	v.SetDefault("server.address", ":8080")
	v.SetDefault("server.auth.jwtSecret", "default-secret-key-change-me")
	v.SetDefault("server.auth.tokenSalt", "default-token-salt-change-me")
	v.SetDefault("server.auth.passwordSalt", "default-password-salt-change-me")
	v.SetDefault("server.connectionLimit.maxPerUser", 5)
	v.SetDefault("server.connectionLimit.mode", "cycle")
	v.SetDefault("transport.readTimeout", "60s")
	v.SetDefault("history.length", 1000)
	v.SetDefault("history.visibleLength", 128)
	v.SetDefault("database.path", "roomhub.db")
	v.SetDefault("logLevel", "info")

	v.SetConfigName(fileName)
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("ROOMHUB")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
		logger.Warn("Config file not found, relying on defaults and env vars")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.History.VisibleLength > cfg.History.Length {
		return nil, errors.New("history.visibleLength must not exceed history.length")
	}
	if len(cfg.Rooms) == 0 {
		cfg.Rooms = []RoomConfig{{ID: 1, Name: "Main", Plugins: DefaultPlugins()}}
	}
	return &cfg, nil
}

// DefaultPlugins is the plugin set a room gets when the config does not
// name one.
func DefaultPlugins() []string {
	return []string{
		"sanitizer",
		"welcomer",
		"message",
		"help",
		"mp",
		"motto",
		"kick",
		"setright",
		"historyclear",
		"poll",
	}
}
