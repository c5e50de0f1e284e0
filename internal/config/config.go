package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/go-viper/mapstructure/v2"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// EnvPrefix - префикс переменных окружения, SIMPLETASK_SERVER_PORT и т.п.
const EnvPrefix = "SIMPLETASK"

const DefaultPath = "config.yml"

type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Repository    RepositoryConfig    `yaml:"repository"`
	Database      DatabaseConfig      `yaml:"database"`
	SQLite        SQLiteConfig        `yaml:"sqlite"`
	Logging       LoggingConfig       `yaml:"logging"`
	Notifications NotificationsConfig `yaml:"notifications"`
	Widget        WidgetConfig        `yaml:"widget"`
	Worker        WorkerConfig        `yaml:"worker"`
}

type ServerConfig struct {
	Port            string        `yaml:"port"`
	Host            string        `yaml:"host"`
	RateLimit       int           `yaml:"rate_limit"`
	ReadTimeout     time.Duration `yaml:"read_timeout"`
	WriteTimeout    time.Duration `yaml:"write_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
	CORSOrigins     []string      `yaml:"cors_origins"`
}

type RepositoryConfig struct {
	Type string `yaml:"type"` // "inmemory", "postgres" или "sqlite"
}

type DatabaseConfig struct {
	URL            string        `yaml:"url"`
	MaxConnections int32         `yaml:"max_connections"`
	MinConnections int32         `yaml:"min_connections"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	ConnectRetries uint64        `yaml:"connect_retries"`
	// AutoMigrate применяет миграции при старте сервера
	AutoMigrate bool `yaml:"auto_migrate"`
}

type SQLiteConfig struct {
	Path string `yaml:"path"`
}

type LoggingConfig struct {
	Development bool `yaml:"development"`
}

type NotificationsConfig struct {
	// Enabled - выдано ли разрешение на уведомления при старте
	Enabled bool `yaml:"enabled"`
}

type WidgetConfig struct {
	Enabled bool   `yaml:"enabled"`
	Path    string `yaml:"path"`
}

type WorkerConfig struct {
	Interval  time.Duration `yaml:"interval"`
	BatchSize int           `yaml:"batch_size"`
}

const (
	RepositoryInMemory = "inmemory"
	RepositoryPostgres = "postgres"
	RepositorySQLite   = "sqlite"
)

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", "8080")
	v.SetDefault("server.host", "")
	v.SetDefault("server.rate_limit", 100)
	v.SetDefault("server.read_timeout", 10*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 15*time.Second)
	v.SetDefault("server.cors_origins", []string{"*"})

	v.SetDefault("repository.type", RepositoryInMemory)

	v.SetDefault("database.url", "")
	v.SetDefault("database.max_connections", 10)
	v.SetDefault("database.min_connections", 2)
	v.SetDefault("database.idle_timeout", 5*time.Minute)
	v.SetDefault("database.connect_retries", 5)
	v.SetDefault("database.auto_migrate", true)

	v.SetDefault("sqlite.path", "data/simpletask.db")

	v.SetDefault("logging.development", false)

	v.SetDefault("notifications.enabled", true)

	v.SetDefault("widget.enabled", true)
	v.SetDefault("widget.path", "data/nextTask.json")

	v.SetDefault("worker.interval", time.Minute)
	v.SetDefault("worker.batch_size", 100)
}

// Load читает конфиг из path, переменных окружения и .env.
// Отсутствующий файл не ошибка: используются значения по умолчанию.
func Load(path string) (*Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("ошибка чтения .env: %w", err)
	}

	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path == "" {
		path = DefaultPath
	}
	v.SetConfigFile(path)
	v.SetConfigType("yaml")

	if _, err := os.Stat(path); err == nil {
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("ошибка парсинга %s: %w", path, err)
		}
	} else if !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("не могу открыть %s: %w", path, err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg, func(dc *mapstructure.DecoderConfig) {
		dc.TagName = "yaml"
	}); err != nil {
		return nil, fmt.Errorf("ошибка разбора конфига: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error

	if c.Server.Port == "" {
		errs = append(errs, errors.New("server.port не задан"))
	}

	switch c.Repository.Type {
	case RepositoryInMemory:
	case RepositoryPostgres:
		if c.Database.URL == "" {
			errs = append(errs, errors.New("database.url обязателен для postgres"))
		}
		if c.Database.MinConnections > c.Database.MaxConnections {
			errs = append(errs, errors.New("database.min_connections больше max_connections"))
		}
	case RepositorySQLite:
		if c.SQLite.Path == "" {
			errs = append(errs, errors.New("sqlite.path обязателен для sqlite"))
		}
	default:
		errs = append(errs, fmt.Errorf("неизвестный repository.type %q", c.Repository.Type))
	}

	if c.Widget.Enabled && c.Widget.Path == "" {
		errs = append(errs, errors.New("widget.path обязателен при включённом виджете"))
	}
	if c.Worker.Interval <= 0 {
		errs = append(errs, errors.New("worker.interval должен быть положительным"))
	}
	if c.Worker.BatchSize <= 0 {
		errs = append(errs, errors.New("worker.batch_size должен быть положительным"))
	}

	if len(errs) > 0 {
		return fmt.Errorf("неверный конфиг: %w", errors.Join(errs...))
	}
	return nil
}

// Dump возвращает итоговый конфиг в YAML, пароль в database.url скрыт
func (c *Config) Dump() ([]byte, error) {
	masked := *c
	masked.Database.URL = maskURL(c.Database.URL)
	return yaml.Marshal(&masked)
}

func maskURL(raw string) string {
	at := strings.LastIndex(raw, "@")
	scheme := strings.Index(raw, "://")
	if at < 0 || scheme < 0 || at < scheme {
		return raw
	}
	userinfo := raw[scheme+3 : at]
	colon := strings.Index(userinfo, ":")
	if colon < 0 {
		return raw
	}
	return raw[:scheme+3] + userinfo[:colon] + ":***" + raw[at:]
}

func (c *Config) GetServerAddr() string {
	return fmt.Sprintf("%s:%s", c.Server.Host, c.Server.Port)
}
