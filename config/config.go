package config

import (
	"fmt"
	"os"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
)

type Config struct {
	Port       string     `yaml:"port" env:"PORT" env-default:"8080"`
	Env        string     `yaml:"env" env:"APP_ENV" env-default:"production"`
	Timezone   string     `yaml:"timezone" env:"CAMPSITE_TIMEZONE" env-default:"UTC"`
	Log        Log        `yaml:"log"`
	Database   Database   `yaml:"database"`
	Redis      Redis      `yaml:"redis"`
	Cache      Cache      `yaml:"cache"`
	Kafka      Kafka      `yaml:"kafka"`
	Worker     Worker     `yaml:"worker"`
	Reconciler Reconciler `yaml:"reconciler"`
}

type Log struct {
	Level  string `yaml:"level" env:"LOG_LEVEL" env-default:"info"`
	Format string `yaml:"format" env:"LOG_FORMAT" env-default:"json"`
}

type Database struct {
	User         string `yaml:"user" env:"DB_USER" env-required:"true"`
	Password     string `yaml:"password" env:"DB_PASSWORD" env-required:"true"`
	DatabaseName string `yaml:"database_name" env:"DB_NAME" env-required:"true"`
	Host         string `yaml:"host" env:"DB_HOST" env-default:"localhost"`
	Port         string `yaml:"port" env:"DB_PORT" env-default:"5432"`
	SSLMode      string `yaml:"ssl_mode" env:"DB_SSL_MODE" env-default:"disable"`

	// Connection Pool Settings
	MaxOpenConns    int `yaml:"max_open_conns" env:"DB_MAX_OPEN_CONNS" env-default:"25"`
	MaxIdleConns    int `yaml:"max_idle_conns" env:"DB_MAX_IDLE_CONNS" env-default:"10"`
	ConnMaxLifetime int `yaml:"conn_max_lifetime_minutes" env:"DB_CONN_MAX_LIFETIME" env-default:"30"`

	QueryTimeoutSeconds int `yaml:"query_timeout_seconds" env:"DB_QUERY_TIMEOUT" env-default:"5"`
}

func (d *Database) GetDatabaseURL() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		d.User, d.Password, d.Host, d.Port, d.DatabaseName, d.SSLMode)
}

func (d *Database) QueryTimeout() time.Duration {
	return time.Duration(d.QueryTimeoutSeconds) * time.Second
}

type Redis struct {
	Enabled  bool   `yaml:"enabled" env:"REDIS_ENABLED" env-default:"true"`
	Host     string `yaml:"host" env:"REDIS_HOST" env-default:"localhost"`
	Port     string `yaml:"port" env:"REDIS_PORT" env-default:"6379"`
	Password string `yaml:"password" env:"REDIS_PASSWORD" env-default:""`
	DB       int    `yaml:"db" env:"REDIS_DB" env-default:"0"`
}

func (r *Redis) GetRedisURL() string {
	return fmt.Sprintf("%s:%s", r.Host, r.Port)
}

type Cache struct {
	Key string `yaml:"key" env:"CACHE_KEY" env-default:"campsite:booked_dates"`
}

type Kafka struct {
	Enabled            bool     `yaml:"enabled" env:"KAFKA_ENABLED" env-default:"false"`
	Brokers            []string `yaml:"brokers" env:"KAFKA_BROKERS" env-default:"localhost:9092" env-separator:","`
	BookingEventsTopic string   `yaml:"booking_events_topic" env:"KAFKA_BOOKING_EVENTS_TOPIC" env-default:"campsite-booking-events"`
	CacheResetTopic    string   `yaml:"cache_reset_topic" env:"KAFKA_CACHE_RESET_TOPIC" env-default:"campsite-cache-reset"`
	ConsumerGroup      string   `yaml:"consumer_group" env:"KAFKA_CONSUMER_GROUP" env-default:"campsite-service"`
}

type Worker struct {
	MaxWorkers         int `yaml:"max_workers" env:"WORKER_MAX_WORKERS" env-default:"8"`
	QueueSize          int `yaml:"queue_size" env:"WORKER_QUEUE_SIZE" env-default:"1024"`
	TaskTimeoutSeconds int `yaml:"task_timeout_seconds" env:"WORKER_TASK_TIMEOUT" env-default:"10"`
}

func (w *Worker) TaskTimeout() time.Duration {
	return time.Duration(w.TaskTimeoutSeconds) * time.Second
}

type Reconciler struct {
	Enabled         bool `yaml:"enabled" env:"RECONCILER_ENABLED" env-default:"true"`
	IntervalMinutes int  `yaml:"interval_minutes" env:"RECONCILER_INTERVAL_MINUTES" env-default:"60"`
	RunOnStart      bool `yaml:"run_on_start" env:"RECONCILER_RUN_ON_START" env-default:"true"`
}

func (r *Reconciler) Interval() time.Duration {
	return time.Duration(r.IntervalMinutes) * time.Minute
}

// Location resolves the configured timezone, used to decide what "today" is.
func (c *Config) Location() (*time.Location, error) {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return nil, fmt.Errorf("invalid timezone %q: %w", c.Timezone, err)
	}
	return loc, nil
}

func Initialise(configPath string, useEnv bool) (*Config, error) {
	cfg := &Config{}

	if useEnv {
		if err := cleanenv.ReadEnv(cfg); err != nil {
			return nil, fmt.Errorf("failed to read environment variables: %w", err)
		}
		return cfg, nil
	}

	if configPath != "" {
		if _, err := os.Stat(configPath); err == nil {
			if err := cleanenv.ReadConfig(configPath, cfg); err != nil {
				return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
			}
			return cfg, nil
		}
	}

	// Fallback to environment variables
	if err := cleanenv.ReadEnv(cfg); err != nil {
		return nil, fmt.Errorf("failed to read environment variables: %w", err)
	}

	return cfg, nil
}
