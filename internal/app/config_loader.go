package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
	"github.com/sridip-de/yt-dlp-gui/internal/domain"
)

// EnvPrefix prefixes environment overrides, e.g. YTDLW_DOWNLOADER_BINARY
const EnvPrefix = "YTDLW"

// LoadConfig loads configuration from file and environment
func LoadConfig(configPath string) (*domain.Config, error) {
	config := domain.DefaultConfig()

	v := viper.New()
	v.SetConfigType("yaml")

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("config")
		v.AddConfigPath("./configs")
		v.AddConfigPath("$HOME/.ytdlw")
		v.AddConfigPath("/etc/ytdlw")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvKeys(v)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	config = expandPaths(config)

	if err := validateConfig(config); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return config, nil
}

// bindEnvKeys registers every key for environment overrides
func bindEnvKeys(v *viper.Viper) {
	keys := []string{
		"server.host", "server.port",
		"downloader.binary", "downloader.default_output_dir", "downloader.subtitle_language",
		"downloader.retries", "downloader.socket_timeout", "downloader.extractor_args", "downloader.user_agent",
		"supervisor.grace_period", "supervisor.tail_lines",
		"fetch.idle_timeout",
		"events.buffer_size",
		"cache.enabled", "cache.database_path", "cache.ttl",
		"notification.enabled", "notification.method",
		"logging.level", "logging.format", "logging.output_path", "logging.logs_dir",
	}
	for _, key := range keys {
		_ = v.BindEnv(key)
	}
}

// expandPaths expands environment variables in path configurations
func expandPaths(config *domain.Config) *domain.Config {
	config.Downloader.DefaultOutputDir = expandPath(config.Downloader.DefaultOutputDir)
	config.Cache.DatabasePath = expandPath(config.Cache.DatabasePath)
	config.Logging.LogsDir = expandPath(config.Logging.LogsDir)

	if config.Logging.OutputPath != "stdout" && config.Logging.OutputPath != "stderr" {
		config.Logging.OutputPath = expandPath(config.Logging.OutputPath)
	}

	return config
}

// expandPath expands environment variables and ~ in paths
func expandPath(path string) string {
	if path == "" {
		return path
	}

	if home, err := os.UserHomeDir(); err == nil {
		if path == "~" {
			return home
		}
		if strings.HasPrefix(path, "~/") {
			path = filepath.Join(home, path[2:])
		}
		path = strings.ReplaceAll(path, "$HOME", home)
	}

	return os.ExpandEnv(path)
}

// validateConfig checks the configuration and reports every problem at once
func validateConfig(config *domain.Config) error {
	var result *multierror.Error

	if config.Server.Port < 1 || config.Server.Port > 65535 {
		result = multierror.Append(result, fmt.Errorf("invalid server port: %d", config.Server.Port))
	}
	if strings.TrimSpace(config.Downloader.Binary) == "" {
		result = multierror.Append(result, fmt.Errorf("downloader binary not configured"))
	}
	if config.Downloader.Retries < 0 {
		result = multierror.Append(result, fmt.Errorf("retries cannot be negative"))
	}
	if config.Downloader.SocketTimeout < 0 {
		result = multierror.Append(result, fmt.Errorf("socket timeout cannot be negative"))
	}
	if config.Supervisor.GracePeriod <= 0 {
		result = multierror.Append(result, fmt.Errorf("supervisor grace period must be positive"))
	}
	if config.Supervisor.TailLines < 1 {
		result = multierror.Append(result, fmt.Errorf("supervisor tail lines must be at least 1"))
	}
	if config.Fetch.IdleTimeout <= 0 {
		result = multierror.Append(result, fmt.Errorf("fetch idle timeout must be positive"))
	}
	if config.Events.BufferSize < 1 {
		result = multierror.Append(result, fmt.Errorf("event buffer size must be at least 1"))
	}
	if config.Cache.Enabled && config.Cache.DatabasePath == "" {
		result = multierror.Append(result, fmt.Errorf("cache database path not configured"))
	}
	if config.Cache.TTL < 0 {
		result = multierror.Append(result, fmt.Errorf("cache ttl cannot be negative"))
	}

	if config.Logging.Level == "" {
		config.Logging.Level = "info"
	}
	if config.Downloader.SubtitleLanguage == "" {
		config.Downloader.SubtitleLanguage = "en"
	}

	return result.ErrorOrNil()
}

// SaveConfig saves configuration to file using the same keys LoadConfig reads
func SaveConfig(config *domain.Config, path string) error {
	var settings map[string]interface{}
	if err := mapstructure.Decode(config, &settings); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	v := viper.New()
	v.SetConfigType("yaml")
	for section, values := range settings {
		v.Set(section, durationsToStrings(values))
	}

	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	if err := v.WriteConfigAs(path); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// durationsToStrings renders durations as "30s" rather than nanoseconds
func durationsToStrings(value interface{}) interface{} {
	switch v := value.(type) {
	case time.Duration:
		return v.String()
	case map[string]interface{}:
		for key, inner := range v {
			v[key] = durationsToStrings(inner)
		}
		return v
	default:
		return value
	}
}
