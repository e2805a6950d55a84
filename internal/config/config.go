package config

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/vadimbarashkov/shortlink/internal/shortcode"
	"gopkg.in/yaml.v3"
)

const (
	EnvDev   = "dev"
	EnvStage = "stage"
	EnvProd  = "prod"
)

const (
	DriverPostgres = "postgres"
	DriverRedis    = "redis"
	DriverMemory   = "memory"
)

var (
	ErrUnknownDriver      = errors.New("unknown driver")
	ErrInvalidMaxAttempts = errors.New("max_attempts must be positive")
)

type Config struct {
	Env        string    `yaml:"env"`
	ShortCode  ShortCode `yaml:"short_code"`
	Cache      Cache     `yaml:"cache"`
	Storage    Storage   `yaml:"storage"`
	Clicks     Clicks    `yaml:"clicks"`
	HTTPServer `yaml:"http_server"`
	Postgres   `yaml:"postgres"`
	Redis      Redis `yaml:"redis"`
}

type ShortCode struct {
	Length      int    `yaml:"length"`
	Alphabet    string `yaml:"alphabet"`
	MaxAttempts int    `yaml:"max_attempts"`
}

var defaultShortCode = ShortCode{
	Length:      shortcode.DefaultLength,
	Alphabet:    shortcode.DefaultAlphabet,
	MaxAttempts: 10,
}

type Cache struct {
	Driver string        `yaml:"driver"`
	TTL    time.Duration `yaml:"ttl"`
}

var defaultCache = Cache{
	Driver: DriverRedis,
	TTL:    24 * time.Hour,
}

type Storage struct {
	Driver  string        `yaml:"driver"`
	Timeout time.Duration `yaml:"timeout"`
}

var defaultStorage = Storage{
	Driver:  DriverPostgres,
	Timeout: 3 * time.Second,
}

type Clicks struct {
	QueueSize     int           `yaml:"queue_size"`
	BatchSize     int           `yaml:"batch_size"`
	FlushInterval time.Duration `yaml:"flush_interval"`
	FlushTimeout  time.Duration `yaml:"flush_timeout"`
}

var defaultClicks = Clicks{
	QueueSize:     1024,
	BatchSize:     100,
	FlushInterval: time.Second,
	FlushTimeout:  3 * time.Second,
}

type HTTPServer struct {
	Port           int           `yaml:"port"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
	IdleTimeout    time.Duration `yaml:"idle_timeout"`
	MaxHeaderBytes int           `yaml:"max_header_bytes"`
	CertFile       string        `yaml:"cert_file"`
	KeyFile        string        `yaml:"key_file"`
}

var defaultHTTPServer = HTTPServer{
	Port:           8080,
	ReadTimeout:    5 * time.Second,
	WriteTimeout:   10 * time.Second,
	IdleTimeout:    time.Minute,
	MaxHeaderBytes: 1 << 20,
}

func (s *HTTPServer) Addr() string {
	return fmt.Sprintf(":%d", s.Port)
}

type Postgres struct {
	User            string        `yaml:"user"`
	Password        string        `yaml:"password"`
	Host            string        `yaml:"host"`
	Port            int           `yaml:"port"`
	DB              string        `yaml:"db"`
	SSLMode         string        `yaml:"sslmode"`
	ConnMaxIdleTime time.Duration `yaml:"conn_max_idle_time"`
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
	MaxIdleConns    int           `yaml:"max_idle_conns"`
	MaxOpenConns    int           `yaml:"max_open_conns"`
}

var defaultPostgres = Postgres{
	Host:            "localhost",
	Port:            5432,
	SSLMode:         "disable",
	ConnMaxIdleTime: 5 * time.Minute,
	ConnMaxLifetime: 30 * time.Minute,
	MaxIdleConns:    5,
	MaxOpenConns:    25,
}

func (p *Postgres) DSN() string {
	return fmt.Sprintf("postgres://%s:%s@%s:%d/%s?sslmode=%s",
		p.User, p.Password, p.Host, p.Port, p.DB, p.SSLMode)
}

type Redis struct {
	Host         string        `yaml:"host"`
	Port         int           `yaml:"port"`
	Password     string        `yaml:"password"`
	DB           int           `yaml:"db"`
	DialTimeout  time.Duration `yaml:"dial_timeout"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
	PoolSize     int           `yaml:"pool_size"`
	MinIdleConns int           `yaml:"min_idle_conns"`
}

var defaultRedis = Redis{
	Host:         "localhost",
	Port:         6379,
	DialTimeout:  5 * time.Second,
	ReadTimeout:  500 * time.Millisecond,
	WriteTimeout: 500 * time.Millisecond,
	PoolSize:     10,
	MinIdleConns: 2,
}

func (r *Redis) Addr() string {
	return fmt.Sprintf("%s:%d", r.Host, r.Port)
}

func Load(path string) (*Config, error) {
	const op = "config.Load"

	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%s: failed to open config file: %w", op, err)
	}
	defer f.Close()

	var cfg Config
	setDefaults(&cfg)

	if err := yaml.NewDecoder(f).Decode(&cfg); err != nil {
		return nil, fmt.Errorf("%s: failed to decode config file: %w", op, err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	return &cfg, nil
}

func setDefaults(cfg *Config) {
	cfg.Env = EnvDev
	cfg.ShortCode = defaultShortCode
	cfg.Cache = defaultCache
	cfg.Storage = defaultStorage
	cfg.Clicks = defaultClicks
	cfg.HTTPServer = defaultHTTPServer
	cfg.Postgres = defaultPostgres
	cfg.Redis = defaultRedis
}

func (cfg *Config) validate() error {
	if _, err := shortcode.New(cfg.ShortCode.Alphabet, cfg.ShortCode.Length); err != nil {
		return fmt.Errorf("short_code: %w", err)
	}
	if cfg.ShortCode.MaxAttempts <= 0 {
		return fmt.Errorf("short_code: %w", ErrInvalidMaxAttempts)
	}

	switch cfg.Storage.Driver {
	case DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("storage: %w: %q", ErrUnknownDriver, cfg.Storage.Driver)
	}

	switch cfg.Cache.Driver {
	case DriverRedis, DriverMemory:
	default:
		return fmt.Errorf("cache: %w: %q", ErrUnknownDriver, cfg.Cache.Driver)
	}

	return nil
}
