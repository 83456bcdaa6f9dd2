package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var (
	ErrMissingTelegramToken = errors.New("TELEGRAM_TOKEN is required")
	ErrMissingFernetKey     = errors.New("FERNET_KEY is required")
)

type Config struct {
	Server    ServerConfig
	Telegram  TelegramConfig
	Cipher    CipherConfig
	Access    AccessConfig
	QR        QRConfig
	UpdateLog UpdateLogConfig
	Throttle  ThrottleConfig
	Database  DatabaseConfig
	Logger    LoggerConfig
}

type ServerConfig struct {
	Host            string
	Port            int
	ShutdownTimeout time.Duration
}

func (s ServerConfig) Addr() string {
	return fmt.Sprintf("%s:%d", s.Host, s.Port)
}

type TelegramConfig struct {
	Token         string
	APIEndpoint   string
	FileEndpoint  string
	Timeout       time.Duration
	WebhookSecret string
	MaxPhotoBytes int64
}

type CipherConfig struct {
	// Keys are URL-safe base64 Fernet keys. The first one encrypts, all of
	// them are tried on decrypt.
	Keys []string
	TTL  time.Duration
}

type AccessConfig struct {
	AllowedUsernames []string
}

type QRConfig struct {
	ModulePixels int
	Border       int
}

type UpdateLogConfig struct {
	Size int
	TTL  time.Duration
}

type ThrottleConfig struct {
	PerSecond float64
	Burst     int
}

type DatabaseConfig struct {
	URL          string
	MaxOpenConns int
	MaxIdleConns int
}

func (d DatabaseConfig) Enabled() bool {
	return d.URL != ""
}

// KubernetesConfig is used by deployctl; the server never talks to a
// cluster.
type KubernetesConfig struct {
	InCluster      bool
	KubeConfigPath string
	Namespace      string
}

type LoggerConfig struct {
	Level  string
	Format string
}

// Flags returns the command line flags the server accepts. Values given on
// the command line win over the environment.
func Flags() *pflag.FlagSet {
	fs := pflag.NewFlagSet("server", pflag.ContinueOnError)
	fs.String("host", "0.0.0.0", "interface to bind")
	fs.Int("port", 8000, "port to listen on")
	return fs
}

func Load(flags *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	// Defaults
	v.SetDefault("SERVER_HOST", "0.0.0.0")
	v.SetDefault("SERVER_PORT", 8000)
	v.SetDefault("SHUTDOWN_TIMEOUT", "10s")
	v.SetDefault("TELEGRAM_API_ENDPOINT", "https://api.telegram.org/bot%s/%s")
	v.SetDefault("TELEGRAM_FILE_ENDPOINT", "https://api.telegram.org/file/bot%s/%s")
	v.SetDefault("TELEGRAM_TIMEOUT", "30s")
	v.SetDefault("MAX_PHOTO_BYTES", 20<<20)
	v.SetDefault("FERNET_TTL", "0s")
	v.SetDefault("QR_MODULE_PIXELS", 8)
	v.SetDefault("QR_BORDER", 2)
	v.SetDefault("UPDATE_LOG_SIZE", 10000)
	v.SetDefault("UPDATE_LOG_TTL", "24h")
	v.SetDefault("BOT_RATE_PER_SECOND", 0.0)
	v.SetDefault("BOT_RATE_BURST", 5)
	v.SetDefault("DATABASE_MAX_OPEN_CONNS", 10)
	v.SetDefault("DATABASE_MAX_IDLE_CONNS", 2)
	v.SetDefault("LOGGER_LEVEL", "info")
	v.SetDefault("LOGGER_FORMAT", "json")

	// Env
	v.AutomaticEnv()

	if flags != nil {
		if f := flags.Lookup("host"); f != nil && f.Changed {
			v.Set("SERVER_HOST", f.Value.String())
		}
		if f := flags.Lookup("port"); f != nil && f.Changed {
			v.Set("SERVER_PORT", f.Value.String())
		}
	}

	cfg := &Config{
		Server: ServerConfig{
			Host:            v.GetString("SERVER_HOST"),
			Port:            v.GetInt("SERVER_PORT"),
			ShutdownTimeout: duration(v, "SHUTDOWN_TIMEOUT", 10*time.Second),
		},
		Telegram: TelegramConfig{
			Token:         strings.TrimSpace(v.GetString("TELEGRAM_TOKEN")),
			APIEndpoint:   v.GetString("TELEGRAM_API_ENDPOINT"),
			FileEndpoint:  v.GetString("TELEGRAM_FILE_ENDPOINT"),
			Timeout:       duration(v, "TELEGRAM_TIMEOUT", 30*time.Second),
			WebhookSecret: strings.TrimSpace(v.GetString("WEBHOOK_SECRET_TOKEN")),
			MaxPhotoBytes: v.GetInt64("MAX_PHOTO_BYTES"),
		},
		Cipher: CipherConfig{
			Keys: splitList(v.GetString("FERNET_KEY")),
			TTL:  duration(v, "FERNET_TTL", 0),
		},
		Access: AccessConfig{
			AllowedUsernames: splitList(v.GetString("ALLOWED_USERNAMES")),
		},
		QR: QRConfig{
			ModulePixels: v.GetInt("QR_MODULE_PIXELS"),
			Border:       v.GetInt("QR_BORDER"),
		},
		UpdateLog: UpdateLogConfig{
			Size: v.GetInt("UPDATE_LOG_SIZE"),
			TTL:  duration(v, "UPDATE_LOG_TTL", 24*time.Hour),
		},
		Throttle: ThrottleConfig{
			PerSecond: v.GetFloat64("BOT_RATE_PER_SECOND"),
			Burst:     v.GetInt("BOT_RATE_BURST"),
		},
		Database: DatabaseConfig{
			URL:          v.GetString("DATABASE_URL"),
			MaxOpenConns: v.GetInt("DATABASE_MAX_OPEN_CONNS"),
			MaxIdleConns: v.GetInt("DATABASE_MAX_IDLE_CONNS"),
		},
		Logger: LoggerConfig{
			Level:  v.GetString("LOGGER_LEVEL"),
			Format: v.GetString("LOGGER_FORMAT"),
		},
	}

	if cfg.Telegram.Token == "" {
		return nil, ErrMissingTelegramToken
	}
	if len(cfg.Cipher.Keys) == 0 {
		return nil, ErrMissingFernetKey
	}
	if cfg.Server.Port <= 0 || cfg.Server.Port > 65535 {
		return nil, fmt.Errorf("invalid SERVER_PORT %d", cfg.Server.Port)
	}

	return cfg, nil
}

func duration(v *viper.Viper, key string, fallback time.Duration) time.Duration {
	d, err := time.ParseDuration(v.GetString(key))
	if err != nil {
		return fallback
	}
	return d
}

// splitList splits a comma separated value, trimming entries and dropping
// blanks.
func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
