package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

const (
	envConfigDefaultPath = "TSBRIDGE_CONFIG_DEFAULT_PATH"
	defaultConfigName    = "config.yaml"
)

// Load builds configuration from defaults, optional config file, env vars, and returns the resolved path.
// Precedence: defaults < config file < env vars.
func Load(logger *zerolog.Logger, explicitPath string) (Config, string, error) {
	cfg := Default()

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetDefault("log_level", cfg.LogLevel)
	v.SetDefault("voice.host", cfg.Voice.Host)
	v.SetDefault("voice.port", cfg.Voice.Port)
	v.SetDefault("voice.username", cfg.Voice.Username)
	v.SetDefault("voice.password", cfg.Voice.Password)
	v.SetDefault("voice.server_id", cfg.Voice.ServerID)
	v.SetDefault("voice.event_timeout", cfg.Voice.EventTimeout)
	v.SetDefault("matrix.homeserver", cfg.Matrix.Homeserver)
	v.SetDefault("matrix.username", cfg.Matrix.Username)
	v.SetDefault("matrix.password", cfg.Matrix.Password)
	v.SetDefault("matrix.event_rooms", cfg.Matrix.EventRooms)
	v.SetDefault("reconnect.initial_interval", cfg.Reconnect.InitialInterval)
	v.SetDefault("reconnect.max_interval", cfg.Reconnect.MaxInterval)
	v.SetDefault("reconnect.max_elapsed", cfg.Reconnect.MaxElapsed)

	v.SetEnvPrefix("TSBRIDGE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	configPath := resolveConfigPath(explicitPath)
	v.SetConfigFile(configPath)

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if errors.As(err, &notFound) || errors.Is(err, os.ErrNotExist) {
			if writeErr := writeDefaultConfig(configPath, cfg); writeErr != nil && logger != nil {
				logger.Warn().Err(writeErr).Str("path", configPath).Msg("failed to write default config")
			} else if logger != nil {
				logger.Info().Str("path", configPath).Msg("created default config")
			}
			if readErr := v.ReadInConfig(); readErr != nil && logger != nil {
				logger.Warn().Err(readErr).Str("path", configPath).Msg("failed to read config after writing default")
			}
		} else {
			return cfg, configPath, fmt.Errorf("read config: %w", err)
		}
	}

	if err := v.Unmarshal(&cfg); err != nil {
		return cfg, configPath, fmt.Errorf("unmarshal config: %w", err)
	}

	cfg.Matrix.EventRooms = normalizeRooms(cfg.Matrix.EventRooms)

	return cfg, configPath, nil
}

// normalizeRooms flattens comma-joined entries (the env var form) and strips
// whitespace and empties.
func normalizeRooms(raw []string) []string {
	rooms := make([]string, 0, len(raw))
	for _, entry := range raw {
		for _, p := range strings.Split(entry, ",") {
			if p = strings.TrimSpace(p); p != "" {
				rooms = append(rooms, p)
			}
		}
	}
	return rooms
}

func resolveConfigPath(explicitPath string) string {
	if explicitPath != "" {
		return explicitPath
	}

	if base := os.Getenv(envConfigDefaultPath); base != "" {
		if err := os.MkdirAll(base, 0o755); err == nil {
			return filepath.Join(base, defaultConfigName)
		}
	}

	cwd, err := os.Getwd()
	if err != nil {
		return defaultConfigName
	}
	return filepath.Join(cwd, defaultConfigName)
}

func writeDefaultConfig(path string, cfg Config) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o600)
}
