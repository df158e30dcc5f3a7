// Package config loads server settings from built-in defaults, an optional
// TOML file and the process environment, in that order.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/jason-s-yu/codeduel/internal/historian"
	"github.com/jason-s-yu/codeduel/internal/problems"
	"github.com/sirupsen/logrus"
)

const (
	EnvDevelopment = "development"
	EnvProduction  = "production"
)

type Redis struct {
	Addr            string        `toml:"addr"`
	Password        string        `toml:"password"`
	DB              int           `toml:"db"`
	EventQueue      string        `toml:"event_queue"`
	ProblemCacheTTL time.Duration `toml:"problem_cache_ttl"`
}

// Enabled reports whether a Redis server was configured at all.
func (r Redis) Enabled() bool {
	return r.Addr != ""
}

type Auth struct {
	// TokenExpire accepts a Go duration or "never".
	TokenExpire    string `toml:"token_expire"`
	PrivateKeyPath string `toml:"private_key_path"`
	PublicKeyPath  string `toml:"public_key_path"`
}

type Matchmaking struct {
	RatingTolerance  int           `toml:"rating_tolerance"`
	CountdownSeconds int           `toml:"countdown_seconds"`
	TickInterval     time.Duration `toml:"tick_interval"`
	LivenessInterval time.Duration `toml:"liveness_interval"`
	SweepInterval    time.Duration `toml:"sweep_interval"`
	QueueStaleAfter  time.Duration `toml:"queue_stale_after"`
	InboundRPS       float64       `toml:"inbound_rps"`
	InboundBurst     int           `toml:"inbound_burst"`
	ClientBuffer     int           `toml:"client_buffer"`
}

type Config struct {
	Env               string `toml:"env"`
	Port              string `toml:"port"`
	LogLevel          string `toml:"log_level"`
	DatabaseURL       string `toml:"database_url"`
	InMemory          bool   `toml:"in_memory"`
	ProblemServiceURL string `toml:"problem_service_url"`
	// AllowedOrigins are websocket origin patterns. Empty allows any origin
	// outside production.
	AllowedOrigins []string `toml:"allowed_origins"`

	Redis       Redis             `toml:"redis"`
	Auth        Auth              `toml:"auth"`
	Matchmaking Matchmaking       `toml:"matchmaking"`
	Selector    problems.Options  `toml:"selector"`
	Historian   historian.Options `toml:"historian"`
}

// Default returns the settings used when nothing else is configured.
func Default() Config {
	return Config{
		Env:      EnvDevelopment,
		Port:     "8080",
		LogLevel: "info",
		Redis: Redis{
			EventQueue:      "codeduel_events",
			ProblemCacheTTL: 24 * time.Hour,
		},
		Auth: Auth{
			TokenExpire: "24h",
		},
		Matchmaking: Matchmaking{
			RatingTolerance:  100,
			CountdownSeconds: 3,
			TickInterval:     time.Second,
			LivenessInterval: 30 * time.Second,
			SweepInterval:    5 * time.Second,
			QueueStaleAfter:  10 * time.Minute,
			InboundRPS:       5,
			InboundBurst:     10,
			ClientBuffer:     16,
		},
		Selector: problems.DefaultOptions(),
	}
}

// Load reads path (if non-empty) over the defaults, then applies environment
// overrides. A missing file is an error; an empty path is not.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if _, err := toml.DecodeFile(path, &cfg); err != nil {
			return Config{}, fmt.Errorf("decode config %s: %w", path, err)
		}
	}
	if err := cfg.ApplyEnv(os.LookupEnv); err != nil {
		return Config{}, err
	}
	cfg.FillDefaults()
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// ApplyEnv overlays environment variables read through lookup.
func (c *Config) ApplyEnv(lookup func(string) (string, bool)) error {
	get := func(key string) string {
		v, ok := lookup(key)
		if !ok {
			return ""
		}
		return strings.TrimSpace(v)
	}

	if v := get("CODEDUEL_ENV"); v != "" {
		c.Env = v
	}
	if v := get("PORT"); v != "" {
		c.Port = v
	}
	if v := get("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := get("DATABASE_URL"); v != "" {
		c.DatabaseURL = v
	} else if url := postgresURLFromParts(get); url != "" {
		c.DatabaseURL = url
	}
	if v := get("CODEDUEL_IN_MEMORY"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return fmt.Errorf("CODEDUEL_IN_MEMORY: %w", err)
		}
		c.InMemory = b
	}
	if v := get("PROBLEM_SERVICE_URL"); v != "" {
		c.ProblemServiceURL = v
	}
	if v := get("ALLOWED_ORIGINS"); v != "" {
		c.AllowedOrigins = strings.Split(v, ",")
	}
	if v := get("REDIS_ADDR"); v != "" {
		c.Redis.Addr = v
	}
	if v := get("REDIS_PASSWORD"); v != "" {
		c.Redis.Password = v
	}
	if v := get("REDIS_DB"); v != "" {
		db, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("REDIS_DB: %w", err)
		}
		c.Redis.DB = db
	}
	if v := get("TOKEN_EXPIRE_TIME"); v != "" {
		c.Auth.TokenExpire = v
	}
	if v := get("JWT_PRIVATE_KEY_PATH"); v != "" {
		c.Auth.PrivateKeyPath = v
	}
	if v := get("JWT_PUBLIC_KEY_PATH"); v != "" {
		c.Auth.PublicKeyPath = v
	}
	return nil
}

// postgresURLFromParts builds a DSN from the POSTGRES_* / PG_* variables when
// at least the user and host are present.
func postgresURLFromParts(get func(string) string) string {
	user, host := get("POSTGRES_USER"), get("PG_HOST")
	if user == "" || host == "" {
		return ""
	}
	port := get("PG_PORT")
	if port == "" {
		port = "5432"
	}
	db := get("PG_DATABASE")
	if db == "" {
		db = "postgres"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s", user, get("POSTGRES_PASSWORD"), host, port, db)
}

// FillDefaults replaces zero values left by a partial file.
func (c *Config) FillDefaults() {
	def := Default()
	if c.Env == "" {
		c.Env = def.Env
	}
	if c.Port == "" {
		c.Port = def.Port
	}
	if c.LogLevel == "" {
		c.LogLevel = def.LogLevel
	}
	if c.Redis.EventQueue == "" {
		c.Redis.EventQueue = def.Redis.EventQueue
	}
	if c.Redis.ProblemCacheTTL <= 0 {
		c.Redis.ProblemCacheTTL = def.Redis.ProblemCacheTTL
	}

	m, dm := &c.Matchmaking, def.Matchmaking
	if m.RatingTolerance <= 0 {
		m.RatingTolerance = dm.RatingTolerance
	}
	if m.CountdownSeconds <= 0 {
		m.CountdownSeconds = dm.CountdownSeconds
	}
	if m.TickInterval <= 0 {
		m.TickInterval = dm.TickInterval
	}
	if m.LivenessInterval <= 0 {
		m.LivenessInterval = dm.LivenessInterval
	}
	if m.SweepInterval <= 0 {
		m.SweepInterval = dm.SweepInterval
	}
	if m.QueueStaleAfter <= 0 {
		m.QueueStaleAfter = dm.QueueStaleAfter
	}
	if m.InboundRPS <= 0 {
		m.InboundRPS = dm.InboundRPS
	}
	if m.InboundBurst <= 0 {
		m.InboundBurst = dm.InboundBurst
	}
	if m.ClientBuffer <= 0 {
		m.ClientBuffer = dm.ClientBuffer
	}
	c.Selector.FillDefaults()
	if c.Historian.Queue == "" {
		c.Historian.Queue = c.Redis.EventQueue
	}
	c.Historian.FillDefaults()
}

// Validate checks settings that have no sensible default.
func (c *Config) Validate() error {
	var errs []error
	if !c.InMemory && c.DatabaseURL == "" {
		errs = append(errs, errors.New("database_url is required unless in_memory is set"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, fmt.Errorf("log_level: %w", err))
	}
	if _, err := strconv.Atoi(c.Port); err != nil {
		errs = append(errs, fmt.Errorf("port %q is not a number", c.Port))
	}
	if (c.Auth.PrivateKeyPath == "") != (c.Auth.PublicKeyPath == "") {
		errs = append(errs, errors.New("auth key paths must be set together"))
	}
	return errors.Join(errs...)
}

// Production reports whether the server runs in production mode.
func (c Config) Production() bool {
	return c.Env == EnvProduction
}

// OriginPatterns returns the websocket origin patterns to accept.
func (c Config) OriginPatterns() []string {
	if len(c.AllowedOrigins) > 0 {
		return c.AllowedOrigins
	}
	if c.Production() {
		return nil
	}
	return []string{"*"}
}

// Addr is the listen address for the HTTP server.
func (c Config) Addr() string {
	return ":" + c.Port
}

// NewLogger builds the process logger: JSON in production, text otherwise.
func (c Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	if c.Production() {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	}
	return logger
}
