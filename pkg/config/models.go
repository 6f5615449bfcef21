package config

import "time"

type Config struct {
	Server    ServerConfig
	Transport TransportConfig
	History   HistoryConfig
	Database  DatabaseConfig
	LogLevel  string       `mapstructure:"logLevel"`
	Rooms     []RoomConfig `mapstructure:"rooms"`
	// Operators lists the identifiers whose votes override polls and
	// who may call opOnly commands.
	Operators []string `mapstructure:"operators"`
}

type ServerConfig struct {
	Address         string
	Auth            AuthConfig
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

type AuthConfig struct {
	JWTSecret string `mapstructure:"jwtSecret"`
	// TokenSalt signs the {userId, timestamp, signature} resume tokens.
	TokenSalt string `mapstructure:"tokenSalt"`
	// PasswordSalt is mixed into stored password hashes.
	PasswordSalt string `mapstructure:"passwordSalt"`
}

type ConnectionLimitConfig struct {
	MaxPerUser int    `mapstructure:"maxPerUser"`
	Mode       string `mapstructure:"mode"` // "reject" or "cycle"
}

type TransportConfig struct {
	ReadTimeout time.Duration `mapstructure:"readTimeout"`
}

type HistoryConfig struct {
	// Length is the number of messages kept in memory per room.
	Length int `mapstructure:"length"`
	// VisibleLength is the slice sent to joining connections. Must not
	// exceed Length.
	VisibleLength int `mapstructure:"visibleLength"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

type RoomConfig struct {
	ID      int64    `mapstructure:"id"`
	Name    string   `mapstructure:"name"`
	Plugins []string `mapstructure:"plugins"`
}

// IsOperator reports whether identifier is a configured operator.
func (c *Config) IsOperator(identifier string) bool {
	for _, op := range c.Operators {
		if op == identifier {
			return true
		}
	}
	return false
}
