package domain

import "time"

// Config represents the application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Downloader   DownloaderConfig   `mapstructure:"downloader"`
	Supervisor   SupervisorConfig   `mapstructure:"supervisor"`
	Fetch        FetchConfig        `mapstructure:"fetch"`
	Events       EventsConfig       `mapstructure:"events"`
	Cache        CacheConfig        `mapstructure:"cache"`
	Notification NotificationConfig `mapstructure:"notification"`
	Logging      LoggingConfig      `mapstructure:"logging"`
}

// ServerConfig contains HTTP server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// DownloaderConfig describes the external yt-dlp binary and the fixed
// reliability flags prepended to every invocation
type DownloaderConfig struct {
	Binary           string        `mapstructure:"binary"`
	DefaultOutputDir string        `mapstructure:"default_output_dir"`
	SubtitleLanguage string        `mapstructure:"subtitle_language"`
	Retries          int           `mapstructure:"retries"`
	SocketTimeout    time.Duration `mapstructure:"socket_timeout"`
	ExtractorArgs    string        `mapstructure:"extractor_args"`
	UserAgent        string        `mapstructure:"user_agent"`
}

// SupervisorConfig controls process supervision
type SupervisorConfig struct {
	GracePeriod time.Duration `mapstructure:"grace_period"` // SIGTERM -> SIGKILL escalation
	TailLines   int           `mapstructure:"tail_lines"`
}

// FetchConfig controls the format listing operation
type FetchConfig struct {
	IdleTimeout time.Duration `mapstructure:"idle_timeout"`
}

// EventsConfig controls the event delivery channel
type EventsConfig struct {
	BufferSize int `mapstructure:"buffer_size"`
}

// CacheConfig controls the format catalog cache
type CacheConfig struct {
	Enabled      bool          `mapstructure:"enabled"`
	DatabasePath string        `mapstructure:"database_path"`
	TTL          time.Duration `mapstructure:"ttl"`
}

// NotificationConfig contains notification-related configuration
type NotificationConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Method  string `mapstructure:"method"` // osascript, notify-send
}

// LoggingConfig contains logging-related configuration
type LoggingConfig struct {
	Level      string `mapstructure:"level"`       // debug, info, warn, error
	Format     string `mapstructure:"format"`      // json, console
	OutputPath string `mapstructure:"output_path"` // stdout, stderr, or file path
	LogsDir    string `mapstructure:"logs_dir"`    // category event logs, empty disables
}

// DefaultConfig returns a configuration with default values
func DefaultConfig() *Config {
	return &Config{
		Server: ServerConfig{
			Host: "localhost",
			Port: 8080,
		},
		Downloader: DownloaderConfig{
			Binary:           "yt-dlp",
			DefaultOutputDir: "$HOME/Downloads",
			SubtitleLanguage: "en",
			Retries:          10,
			SocketTimeout:    30 * time.Second,
			ExtractorArgs:    "youtube:player_client=web,youtube:ignore_consent_challenge=true",
			UserAgent:        "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36",
		},
		Supervisor: SupervisorConfig{
			GracePeriod: 5 * time.Second,
			TailLines:   200,
		},
		Fetch: FetchConfig{
			IdleTimeout: 60 * time.Second,
		},
		Events: EventsConfig{
			BufferSize: 256,
		},
		Cache: CacheConfig{
			Enabled:      false,
			DatabasePath: "$HOME/.ytdlw/catalog.db",
			TTL:          30 * time.Minute,
		},
		Notification: NotificationConfig{
			Enabled: false,
			Method:  "notify-send",
		},
		Logging: LoggingConfig{
			Level:      "info",
			Format:     "console",
			OutputPath: "stderr",
			LogsDir:    "",
		},
	}
}
