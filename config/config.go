package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type ServerConfig struct {
	Addr        string   `mapstructure:"addr"`
	CORSOrigins []string `mapstructure:"cors_origins"`
	// TrustedProxies lists the peers (IPs or CIDRs) whose X-Forwarded-For
	// header is believed by the auth rate limiter.
	TrustedProxies []string `mapstructure:"trusted_proxies"`
}

type DatabaseConfig struct {
	Path string `mapstructure:"path"`
}

// RedisConfig leaves Addr empty to run without Redis. Caching, rate
// limiting and the scan lock are then disabled.
type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type JWTConfig struct {
	Secret string        `mapstructure:"secret"`
	TTL    time.Duration `mapstructure:"ttl"`
}

type LogConfig struct {
	File  string `mapstructure:"file"`
	Level string `mapstructure:"level"`
}

type WorkersConfig struct {
	Notifications int `mapstructure:"notifications"`
}

type RateLimitConfig struct {
	Limit      int           `mapstructure:"limit"`
	Window     time.Duration `mapstructure:"window"`
	AuthLimit  int           `mapstructure:"auth_limit"`
	AuthWindow time.Duration `mapstructure:"auth_window"`
}

type ReminderConfig struct {
	DedupMode    string        `mapstructure:"dedup_mode"`
	ImminentCron string        `mapstructure:"imminent_cron"`
	UpcomingCron string        `mapstructure:"upcoming_cron"`
	Timezone     string        `mapstructure:"timezone"`
	Timeout      time.Duration `mapstructure:"timeout"`
	PageSize     int           `mapstructure:"page_size"`
	Lookback     time.Duration `mapstructure:"lookback"`
}

type Config struct {
	Server    ServerConfig    `mapstructure:"server"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	JWT       JWTConfig       `mapstructure:"jwt"`
	Log       LogConfig       `mapstructure:"log"`
	Workers   WorkersConfig   `mapstructure:"workers"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Reminder  ReminderConfig  `mapstructure:"reminder"`
}

const envPrefix = "TASKFLOW"

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.addr", ":8080")
	v.SetDefault("server.cors_origins", []string{"http://localhost:3000"})
	v.SetDefault("server.trusted_proxies", []string{})
	v.SetDefault("database.path", "tasks.db")
	v.SetDefault("redis.addr", "")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)
	v.SetDefault("jwt.secret", "")
	v.SetDefault("jwt.ttl", 24*time.Hour)
	v.SetDefault("log.file", "logs/app.log")
	v.SetDefault("log.level", "info")
	v.SetDefault("workers.notifications", 5)
	v.SetDefault("ratelimit.limit", 100)
	v.SetDefault("ratelimit.window", time.Minute)
	v.SetDefault("ratelimit.auth_limit", 5)
	v.SetDefault("ratelimit.auth_window", 15*time.Minute)
	v.SetDefault("reminder.dedup_mode", "scoped")
	v.SetDefault("reminder.imminent_cron", "0 * * * *")
	v.SetDefault("reminder.upcoming_cron", "0 9 * * *")
	v.SetDefault("reminder.timezone", "Local")
	v.SetDefault("reminder.timeout", 5*time.Minute)
	v.SetDefault("reminder.page_size", 100)
	v.SetDefault("reminder.lookback", 24*time.Hour)
}

// Load reads defaults, then the YAML file at path if it exists, then
// TASKFLOW_* environment variables (TASKFLOW_REDIS_ADDR for redis.addr).
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.Is(err, os.ErrNotExist) && !errors.As(err, &notFound) {
				return nil, fmt.Errorf("reading config %s: %w", path, err)
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return errors.New("jwt.secret is required (set TASKFLOW_JWT_SECRET)")
	}
	if c.JWT.TTL <= 0 {
		return errors.New("jwt.ttl must be positive")
	}
	if c.Workers.Notifications <= 0 {
		return errors.New("workers.notifications must be positive")
	}
	if c.Reminder.PageSize <= 0 {
		return errors.New("reminder.page_size must be positive")
	}
	if c.Reminder.Timeout <= 0 || c.Reminder.Lookback <= 0 {
		return errors.New("reminder.timeout and reminder.lookback must be positive")
	}
	if _, err := c.Location(); err != nil {
		return err
	}
	return nil
}

// Location resolves reminder.timezone for the cron schedules.
func (c *Config) Location() (*time.Location, error) {
	if c.Reminder.Timezone == "" || strings.EqualFold(c.Reminder.Timezone, "Local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Reminder.Timezone)
	if err != nil {
		return nil, fmt.Errorf("reminder.timezone %q: %w", c.Reminder.Timezone, err)
	}
	return loc, nil
}
