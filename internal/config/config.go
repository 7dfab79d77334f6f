package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/posflag"
	"github.com/knadh/koanf/v2"
	"github.com/spf13/pflag"

	"github.com/conorfennell/attendance/internal/domain"
)

// EnvPrefix is the prefix of environment overrides. A double underscore
// separates nesting levels, e.g. ATTENDANCE_SYNC__REPO_URL.
const EnvPrefix = "ATTENDANCE_"

// legacySecrets maps the original deployment's secret names to config keys.
var legacySecrets = map[string]string{
	"MY_GITHUB_REPO_URL": "sync.repo-url",
	"MY_GITHUB_TOKEN":    "sync.token",
	"MY_GIT_NAME":        "sync.name",
	"MY_GIT_EMAIL":       "sync.email",
}

// Config is the full application configuration.
type Config struct {
	Addr           string  `koanf:"addr" validate:"required"`
	DataDir        string  `koanf:"data-dir" validate:"required"`
	SchoolStart    string  `koanf:"school-start" validate:"required,datetime=2006-01-02"`
	CountingPolicy string  `koanf:"counting-policy" validate:"oneof=retroactive from-creation"`
	Storage        Storage `koanf:"storage"`
	Sync           Sync    `koanf:"sync"`
	Web            Web     `koanf:"web"`
	Log            Log     `koanf:"log"`
}

type Storage struct {
	Backend    string `koanf:"backend" validate:"oneof=csv sqlite"`
	SQLitePath string `koanf:"sqlite-path" validate:"required_if=Backend sqlite"`
}

type Sync struct {
	Enabled     bool          `koanf:"enabled"`
	PullOnStart bool          `koanf:"pull-on-start"`
	RepoURL     string        `koanf:"repo-url"`
	Token       string        `koanf:"token"`
	Name        string        `koanf:"name"`
	Email       string        `koanf:"email" validate:"omitempty,email"`
	Timeout     time.Duration `koanf:"timeout" validate:"gt=0"`
	QueueSize   int           `koanf:"queue-size" validate:"gt=0"`
}

type Web struct {
	CSRFKey       string `koanf:"csrf-key" validate:"omitempty,len=32"`
	SecureCookies bool   `koanf:"secure-cookies"`
}

type Log struct {
	Level  string `koanf:"level" validate:"oneof=debug info warn error"`
	Format string `koanf:"format" validate:"oneof=text json"`
}

// SchoolStartDate returns the parsed school start date.
func (c *Config) SchoolStartDate() time.Time {
	d, _ := domain.ParseDate(c.SchoolStart)
	return d
}

// Flags returns the command-line flag set. Its defaults are the configuration defaults.
func Flags() *pflag.FlagSet {
	f := pflag.NewFlagSet("attendance", pflag.ContinueOnError)
	f.String("config", "", "Path to a YAML config file")
	f.String("addr", ":8080", "HTTP listen address")
	f.String("data-dir", ".", "Directory holding the CSV tables")
	f.String("school-start", "2025-09-29", "First day counted for expected classes (YYYY-MM-DD)")
	f.String("counting-policy", "retroactive", "Expected-class counting: retroactive or from-creation")
	f.String("storage.backend", "csv", "Record store backend: csv or sqlite")
	f.String("storage.sqlite-path", "attendance.db", "SQLite database path for the sqlite backend")
	f.Bool("sync.enabled", true, "Commit and push changed tables to the remote repository")
	f.Bool("sync.pull-on-start", false, "Pull the remote branch before serving")
	f.String("sync.repo-url", "", "Remote repository URL (https)")
	f.String("sync.token", "", "Access token for the remote repository")
	f.String("sync.name", "", "Committer name")
	f.String("sync.email", "", "Committer email")
	f.Duration("sync.timeout", 30*time.Second, "Timeout of a single push")
	f.Int("sync.queue-size", 16, "Pending change events before new ones are dropped")
	f.String("web.csrf-key", "", "32-byte CSRF key; random when empty")
	f.Bool("web.secure-cookies", false, "Mark cookies Secure (serve over HTTPS)")
	f.String("log.level", "info", "Log level: debug, info, warn or error")
	f.String("log.format", "text", "Log format: text or json")
	return f
}

// Load parses args and builds the configuration from, in increasing priority,
// flag defaults, the YAML file, legacy secrets, ATTENDANCE_ variables and
// explicitly set flags.
func Load(args []string) (*Config, error) {
	f := Flags()
	if err := f.Parse(args); err != nil {
		return nil, err
	}

	k := koanf.New(".")
	// Against an empty koanf every flag is new, so this loads all defaults.
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flag defaults: %w", err)
	}

	if path, _ := f.GetString("config"); path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
		}
	}
	if err := k.Load(env.ProviderWithValue("MY_GIT", ".", legacyEnv), nil); err != nil {
		return nil, fmt.Errorf("failed to load legacy secrets: %w", err)
	}
	if err := k.Load(env.ProviderWithValue(EnvPrefix, ".", prefixedEnv), nil); err != nil {
		return nil, fmt.Errorf("failed to load environment: %w", err)
	}
	// Every key exists by now, so only flags set on the command line apply.
	if err := k.Load(posflag.Provider(f, ".", k), nil); err != nil {
		return nil, fmt.Errorf("failed to load flags: %w", err)
	}

	var cfg Config
	if err := k.Unmarshal("", &cfg); err != nil {
		return nil, fmt.Errorf("failed to decode config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks the configuration with its struct tags.
func (c *Config) Validate() error {
	err := validator.New(validator.WithRequiredStructEnabled()).Struct(c)
	var verrs validator.ValidationErrors
	if errors.As(err, &verrs) {
		msgs := make([]string, 0, len(verrs))
		for _, fe := range verrs {
			msgs = append(msgs, fmt.Sprintf("%s: failed %q", fe.Namespace(), fe.Tag()))
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, ", "))
	}
	return err
}

// legacyEnv keeps only the original secret names.
func legacyEnv(key, value string) (string, interface{}) {
	if value == "" {
		return "", nil
	}
	return legacySecrets[key], value
}

// prefixedEnv turns ATTENDANCE_SYNC__REPO_URL into sync.repo-url.
func prefixedEnv(key, value string) (string, interface{}) {
	if value == "" {
		return "", nil
	}
	key = strings.ToLower(strings.TrimPrefix(key, EnvPrefix))
	parts := strings.Split(key, "__")
	for i, p := range parts {
		parts[i] = strings.ReplaceAll(p, "_", "-")
	}
	return strings.Join(parts, "."), value
}
