// Package config loads gymroster settings: defaults, then an optional YAML
// file, then a .env file, then GYMROSTER_* environment variables.
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"gymroster/internal/domain/month"
)

// Config holds the settings of every gymroster binary.
type Config struct {
	Env     string        `yaml:"env" validate:"oneof=development production"`
	Log     LogConfig     `yaml:"log"`
	Server  ServerConfig  `yaml:"server"`
	Console ConsoleConfig `yaml:"console"`
	Mail    MailConfig    `yaml:"mail"`
	Months  MonthsConfig  `yaml:"months"`
}

type LogConfig struct {
	Level       string        `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
	SlowRequest time.Duration `yaml:"slow_request" validate:"gte=0"`
	SlowQuery   time.Duration `yaml:"slow_query" validate:"gte=0"`
}

// ServerConfig configures cmd/server, the roster store.
type ServerConfig struct {
	Addr               string        `yaml:"addr" validate:"required"`
	DBPath             string        `yaml:"db_path" validate:"required"`
	UploadDir          string        `yaml:"upload_dir" validate:"required"`
	AdminUsername      string        `yaml:"admin_username" validate:"required"`
	AdminPassword      string        `yaml:"admin_password"`
	SeedCourse         string        `yaml:"seed_course" validate:"required"`
	RateLimitPerSecond int           `yaml:"rate_limit_per_second" validate:"gte=1"`
	OutboxInterval     time.Duration `yaml:"outbox_interval" validate:"gte=1000000000"`
}

// ConsoleConfig configures cmd/console, the admin roster console.
type ConsoleConfig struct {
	Addr            string        `yaml:"addr" validate:"required"`
	DBPath          string        `yaml:"db_path" validate:"required"`
	RemoteURL       string        `yaml:"remote_url" validate:"required,url"`
	RemoteTimeout   time.Duration `yaml:"remote_timeout" validate:"gte=0"`
	CSRFKey         string        `yaml:"csrf_key" validate:"omitempty,hexadecimal,len=64"`
	Courses         []string      `yaml:"courses" validate:"min=1,dive,required"`
	DocumentCourses []string      `yaml:"document_courses" validate:"dive,required"`
}

type MailConfig struct {
	ResendAPIKey string `yaml:"resend_api_key"`
	From         string `yaml:"from" validate:"required"`
	ReplyTo      string `yaml:"reply_to" validate:"omitempty,email"`
}

// MonthsConfig sets the month sequences. The console lists ConsoleYears
// years from the start month; the server propagates over ServerYears.
type MonthsConfig struct {
	StartMonth   int `yaml:"start_month" validate:"min=1,max=12"`
	StartYear    int `yaml:"start_year" validate:"min=2000,max=2999"`
	ConsoleYears int `yaml:"console_years" validate:"min=1,max=50"`
	ServerYears  int `yaml:"server_years" validate:"min=1,max=50"`
}

// Start returns the first month of both sequences.
func (m MonthsConfig) Start() month.Month {
	return month.Month{Year: m.StartYear, Number: m.StartMonth}
}

// ConsoleSequence returns the months the console offers.
func (m MonthsConfig) ConsoleSequence() []month.Month {
	return month.Sequence(m.Start(), m.ConsoleYears)
}

// ServerKeys returns the keys of the server's month sequence.
func (m MonthsConfig) ServerKeys() []string {
	return month.Keys(month.Sequence(m.Start(), m.ServerYears))
}

// IsProduction reports whether Env is "production".
func (c Config) IsProduction() bool {
	return c.Env == "production"
}

// Defaults returns the development configuration.
func Defaults() Config {
	return Config{
		Env: "development",
		Log: LogConfig{Level: "info", SlowRequest: 200 * time.Millisecond, SlowQuery: 50 * time.Millisecond},
		Server: ServerConfig{
			Addr:               ":8080",
			DBPath:             "gymroster.db",
			UploadDir:          "uploads",
			AdminUsername:      "admin",
			SeedCourse:         "BodyBuilding",
			RateLimitPerSecond: 10,
			OutboxInterval:     30 * time.Second,
		},
		Console: ConsoleConfig{
			Addr:            ":8081",
			DBPath:          "console.db",
			RemoteURL:       "http://localhost:8080",
			RemoteTimeout:   10 * time.Second,
			Courses:         []string{"BodyBuilding", "Yoga", "Pilates", "Functional", "Zumba"},
			DocumentCourses: []string{"BodyBuilding"},
		},
		Mail: MailConfig{
			From: "Gymnica Fitness Club <noreply@gymnica.it>",
		},
		Months: MonthsConfig{
			StartMonth:   month.DefaultStartNumber,
			StartYear:    month.DefaultStartYear,
			ConsoleYears: month.ConsoleYears,
			ServerYears:  month.ServerYears,
		},
	}
}

// Load builds the configuration from the process environment.
// GYMROSTER_CONFIG names an optional YAML file; GYMROSTER_ENV_FILE names
// the .env file (default ".env"), which never overrides variables that
// are already set.
// POST: the returned Config has passed Validate
func Load() (Config, error) {
	envFile := os.Getenv("GYMROSTER_ENV_FILE")
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return Config{}, fmt.Errorf("load %s: %w", envFile, err)
	}

	cfg := Defaults()
	if path := os.Getenv("GYMROSTER_CONFIG"); path != "" {
		if err := loadFromFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, os.LookupEnv); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func loadFromFile(path string, cfg *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config file: %w", err)
	}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("parse config file: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks every section.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) && len(verrs) > 0 {
			fe := verrs[0]
			return fmt.Errorf("invalid config %s: failed %q rule", fe.Namespace(), fe.Tag())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

type binding struct {
	name  string
	apply func(cfg *Config, v string) error
}

func str(dst func(*Config) *string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		*dst(cfg) = v
		return nil
	}
}

func list(dst func(*Config) *[]string) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		var out []string
		for _, item := range strings.Split(v, ",") {
			if item = strings.TrimSpace(item); item != "" {
				out = append(out, item)
			}
		}
		*dst(cfg) = out
		return nil
	}
}

func integer(dst func(*Config) *int) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(cfg) = n
		return nil
	}
}

func duration(dst func(*Config) *time.Duration) func(*Config, string) error {
	return func(cfg *Config, v string) error {
		d, err := time.ParseDuration(strings.TrimSpace(v))
		if err != nil {
			return err
		}
		*dst(cfg) = d
		return nil
	}
}

var bindings = []binding{
	{"GYMROSTER_ENV", str(func(c *Config) *string { return &c.Env })},
	{"LOG_LEVEL", str(func(c *Config) *string { return &c.Log.Level })},
	{"GYMROSTER_LOG_LEVEL", str(func(c *Config) *string { return &c.Log.Level })},
	{"GYMROSTER_SLOW_REQUEST", duration(func(c *Config) *time.Duration { return &c.Log.SlowRequest })},
	{"GYMROSTER_SLOW_QUERY", duration(func(c *Config) *time.Duration { return &c.Log.SlowQuery })},

	{"GYMROSTER_SERVER_ADDR", str(func(c *Config) *string { return &c.Server.Addr })},
	{"GYMROSTER_DB_PATH", str(func(c *Config) *string { return &c.Server.DBPath })},
	{"GYMROSTER_UPLOAD_DIR", str(func(c *Config) *string { return &c.Server.UploadDir })},
	{"GYMROSTER_ADMIN_USERNAME", str(func(c *Config) *string { return &c.Server.AdminUsername })},
	{"GYMROSTER_ADMIN_PASSWORD", str(func(c *Config) *string { return &c.Server.AdminPassword })},
	{"GYMROSTER_SEED_COURSE", str(func(c *Config) *string { return &c.Server.SeedCourse })},
	{"GYMROSTER_RATE_LIMIT", integer(func(c *Config) *int { return &c.Server.RateLimitPerSecond })},
	{"GYMROSTER_OUTBOX_INTERVAL", duration(func(c *Config) *time.Duration { return &c.Server.OutboxInterval })},

	{"GYMROSTER_CONSOLE_ADDR", str(func(c *Config) *string { return &c.Console.Addr })},
	{"GYMROSTER_CONSOLE_DB_PATH", str(func(c *Config) *string { return &c.Console.DBPath })},
	{"GYMROSTER_REMOTE_URL", str(func(c *Config) *string { return &c.Console.RemoteURL })},
	{"GYMROSTER_REMOTE_TIMEOUT", duration(func(c *Config) *time.Duration { return &c.Console.RemoteTimeout })},
	{"GYMROSTER_CSRF_KEY", str(func(c *Config) *string { return &c.Console.CSRFKey })},
	{"GYMROSTER_COURSES", list(func(c *Config) *[]string { return &c.Console.Courses })},
	{"GYMROSTER_DOCUMENT_COURSES", list(func(c *Config) *[]string { return &c.Console.DocumentCourses })},

	{"RESEND_API_KEY", str(func(c *Config) *string { return &c.Mail.ResendAPIKey })},
	{"GYMROSTER_RESEND_API_KEY", str(func(c *Config) *string { return &c.Mail.ResendAPIKey })},
	{"GYMROSTER_MAIL_FROM", str(func(c *Config) *string { return &c.Mail.From })},
	{"GYMROSTER_MAIL_REPLY_TO", str(func(c *Config) *string { return &c.Mail.ReplyTo })},

	{"GYMROSTER_START_MONTH", integer(func(c *Config) *int { return &c.Months.StartMonth })},
	{"GYMROSTER_START_YEAR", integer(func(c *Config) *int { return &c.Months.StartYear })},
	{"GYMROSTER_CONSOLE_YEARS", integer(func(c *Config) *int { return &c.Months.ConsoleYears })},
	{"GYMROSTER_SERVER_YEARS", integer(func(c *Config) *int { return &c.Months.ServerYears })},
}

// applyEnv overrides cfg with every bound variable that is set. Later
// bindings for the same field win.
func applyEnv(cfg *Config, lookup func(string) (string, bool)) error {
	for _, b := range bindings {
		v, ok := lookup(b.name)
		if !ok {
			continue
		}
		if err := b.apply(cfg, v); err != nil {
			return fmt.Errorf("invalid %s: %w", b.name, err)
		}
	}
	return nil
}
