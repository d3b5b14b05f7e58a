package config

import (
	"errors"
	"fmt"
	"time"
)

// Config holds the full bridge configuration.
type Config struct {
	LogLevel  string          `mapstructure:"log_level" yaml:"log_level"`
	Voice     VoiceConfig     `mapstructure:"voice" yaml:"voice"`
	Matrix    MatrixConfig    `mapstructure:"matrix" yaml:"matrix"`
	Reconnect ReconnectConfig `mapstructure:"reconnect" yaml:"reconnect"`
}

// VoiceConfig describes the voice server's ServerQuery endpoint.
type VoiceConfig struct {
	Host     string `mapstructure:"host" yaml:"host"`
	Port     int    `mapstructure:"port" yaml:"port"`
	Username string `mapstructure:"username" yaml:"username"`
	Password string `mapstructure:"password" yaml:"password"`
	ServerID int    `mapstructure:"server_id" yaml:"server_id"`
	// EventTimeout bounds a single wait for the next server event. A
	// keepalive is sent once per wait, so this also caps keepalive cadence.
	EventTimeout time.Duration `mapstructure:"event_timeout" yaml:"event_timeout"`
}

// MatrixConfig describes the chat-network account and notification targets.
type MatrixConfig struct {
	Homeserver string `mapstructure:"homeserver" yaml:"homeserver"`
	Username   string `mapstructure:"username" yaml:"username"`
	Password   string `mapstructure:"password" yaml:"password"`
	// EventRooms receive presence notifications. Commands are answered in
	// whatever room they arrive from, member or not of this list.
	EventRooms []string `mapstructure:"event_rooms" yaml:"event_rooms"`
}

// ReconnectConfig bounds the retry policy around voice-server query failures.
type ReconnectConfig struct {
	InitialInterval time.Duration `mapstructure:"initial_interval" yaml:"initial_interval"`
	MaxInterval     time.Duration `mapstructure:"max_interval" yaml:"max_interval"`
	MaxElapsed      time.Duration `mapstructure:"max_elapsed" yaml:"max_elapsed"`
}

// Default returns configuration with reasonable starter defaults.
func Default() Config {
	return Config{
		LogLevel: "info",
		Voice: VoiceConfig{
			Port:         10011,
			ServerID:     1,
			EventTimeout: 60 * time.Second,
		},
		Reconnect: ReconnectConfig{
			InitialInterval: time.Second,
			MaxInterval:     30 * time.Second,
			MaxElapsed:      5 * time.Minute,
		},
	}
}

// Addr returns the host:port dial address for the query session.
func (c VoiceConfig) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Validate reports the first missing required option. The process should
// exit with this diagnostic rather than limp along half-configured.
func (c Config) Validate() error {
	switch {
	case c.Voice.Host == "":
		return errors.New("voice.host is required")
	case c.Voice.Username == "":
		return errors.New("voice.username is required")
	case c.Voice.Password == "":
		return errors.New("voice.password is required")
	case c.Matrix.Homeserver == "":
		return errors.New("matrix.homeserver is required")
	case c.Matrix.Username == "":
		return errors.New("matrix.username is required")
	case c.Matrix.Password == "":
		return errors.New("matrix.password is required")
	case len(c.Matrix.EventRooms) == 0:
		return errors.New("matrix.event_rooms must name at least one room")
	case c.Voice.EventTimeout <= 0:
		return errors.New("voice.event_timeout must be positive")
	}
	return nil
}
