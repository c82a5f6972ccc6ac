// Package config resolves the bot's startup settings from flags, environment
// variables, .env files and an optional config file. Settings are immutable
// once loaded.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	KeyToken             = "token"
	KeyGuildID           = "guild_id"
	KeyVoiceChannelID    = "voice_channel_id"
	KeyWelcomeChannelID  = "welcome_channel_id"
	KeyDataFile          = "data_file"
	KeyTickInterval      = "tick_interval"
	KeyFlushInterval     = "flush_interval"
	KeyReconnectInterval = "reconnect_interval"
	KeyIdleTimeout       = "idle_timeout"
	KeyGreetingCooldown  = "greeting_cooldown"
	KeyMetricsAddr       = "metrics_addr"

	configName = "voicetime"

	// minInterval is the smallest accepted timer setting.
	minInterval = time.Second
)

type Config struct {
	// Discord
	Token            string
	GuildID          string
	VoiceChannelID   string
	WelcomeChannelID string

	// Storage
	DataFile string

	// Timers
	TickInterval      time.Duration
	FlushInterval     time.Duration
	ReconnectInterval time.Duration
	IdleTimeout       time.Duration
	GreetingCooldown  time.Duration

	// Metrics listener, empty disables it
	MetricsAddr string
}

// env maps every key to the environment variable it is read from.
var env = map[string]string{
	KeyToken:             "DISCORD_TOKEN",
	KeyGuildID:           "GUILD_ID",
	KeyVoiceChannelID:    "VOICE_CHANNEL_ID",
	KeyWelcomeChannelID:  "WELCOME_CHANNEL_ID",
	KeyDataFile:          "DATA_FILE",
	KeyTickInterval:      "TICK_INTERVAL",
	KeyFlushInterval:     "FLUSH_INTERVAL",
	KeyReconnectInterval: "RECONNECT_INTERVAL",
	KeyIdleTimeout:       "IDLE_TIMEOUT",
	KeyGreetingCooldown:  "GREETING_COOLDOWN",
	KeyMetricsAddr:       "METRICS_ADDR",
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) {
	v.SetDefault(KeyDataFile, "voice_time.json")
	v.SetDefault(KeyTickInterval, "1m")
	v.SetDefault(KeyFlushInterval, "1m")
	v.SetDefault(KeyReconnectInterval, "10s")
	v.SetDefault(KeyIdleTimeout, "5m")
	v.SetDefault(KeyGreetingCooldown, "10m")

	for key, name := range env {
		_ = v.BindEnv(key, name)
	}
}

// LoadDotEnv loads .env.local and .env from the working directory. Variables
// already present in the environment win.
func LoadDotEnv() {
	for _, p := range []string{".env.local", ".env"} {
		if err := godotenv.Load(p); err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				continue
			}
			log.Printf("Warning: Failed to load %s: %v", p, err)
		} else {
			log.Printf("Loaded environment from %s", p)
		}
	}
}

// Load resolves the configuration from v. configFile may be empty, in which
// case an optional voicetime.{toml,yaml,json} in the working directory is
// used when present.
func Load(v *viper.Viper, configFile string) (*Config, error) {
	if v == nil {
		v = viper.New()
	}
	SetDefaults(v)

	if configFile != "" {
		v.SetConfigFile(configFile)
	} else {
		v.SetConfigName(configName)
		v.AddConfigPath(".")
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		log.Printf("Using config file %s", v.ConfigFileUsed())
	}

	cfg := &Config{
		Token:             v.GetString(KeyToken),
		GuildID:           v.GetString(KeyGuildID),
		VoiceChannelID:    v.GetString(KeyVoiceChannelID),
		WelcomeChannelID:  v.GetString(KeyWelcomeChannelID),
		DataFile:          v.GetString(KeyDataFile),
		TickInterval:      duration(v, KeyTickInterval),
		FlushInterval:     duration(v, KeyFlushInterval),
		ReconnectInterval: duration(v, KeyReconnectInterval),
		IdleTimeout:       duration(v, KeyIdleTimeout),
		GreetingCooldown:  duration(v, KeyGreetingCooldown),
		MetricsAddr:       v.GetString(KeyMetricsAddr),
	}
	return cfg, nil
}

// Validate checks the settings required before connecting to Discord.
func (c *Config) Validate() error {
	var missing []string
	if c.Token == "" {
		missing = append(missing, env[KeyToken])
	}
	if c.GuildID == "" {
		missing = append(missing, env[KeyGuildID])
	}
	if c.VoiceChannelID == "" {
		missing = append(missing, env[KeyVoiceChannelID])
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing required settings: %v", missing)
	}

	intervals := map[string]time.Duration{
		KeyTickInterval:      c.TickInterval,
		KeyFlushInterval:     c.FlushInterval,
		KeyReconnectInterval: c.ReconnectInterval,
		KeyIdleTimeout:       c.IdleTimeout,
		KeyGreetingCooldown:  c.GreetingCooldown,
	}
	for key, d := range intervals {
		if d < minInterval {
			return fmt.Errorf("%s must be at least %s, got %s", key, minInterval, d)
		}
	}
	return nil
}

// duration reads key as a duration. A bare integer such as "60" counts as
// seconds rather than nanoseconds.
func duration(v *viper.Viper, key string) time.Duration {
	if n, err := strconv.ParseInt(strings.TrimSpace(v.GetString(key)), 10, 64); err == nil {
		return time.Duration(n) * time.Second
	}
	return v.GetDuration(key)
}
