// Package config assembles the server configuration from defaults, an
// optional TOML or YAML file, the environment and command line flags, in
// that order of precedence.
package config

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/fatih/color"
	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// DefaultPort is the port the server listens on when none is configured.
const DefaultPort = 6789

// Environment variables consulted by Load.
const (
	EnvPort      = "WEBSERVER_PORT"
	EnvMIME      = "WEBSERVER_MIME"
	EnvRoot      = "WEBSERVER_ROOT"
	EnvLogLevel  = "WEBSERVER_LOG_LEVEL"
	EnvAccessLog = "WEBSERVER_ACCESS_LOG"
)

// ErrUsage means the command line was incomplete; no server should start.
var ErrUsage = errors.New("usage")

// ValidationError reports a configuration value that cannot be used.
type ValidationError struct {
	Field  string
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Reason)
}

// Config is the complete server configuration.
type Config struct {
	Port           int           `toml:"port" yaml:"port"`
	MIMEPath       string        `toml:"mime" yaml:"mime"`
	Root           string        `toml:"root" yaml:"root"`
	MaxConns       int           `toml:"max_conns" yaml:"max_conns"`
	ReadTimeout    time.Duration `toml:"read_timeout" yaml:"read_timeout"`
	WriteTimeout   time.Duration `toml:"write_timeout" yaml:"write_timeout"`
	DateGMT        bool          `toml:"date_gmt" yaml:"date_gmt"`
	AllowTraversal bool          `toml:"allow_traversal" yaml:"allow_traversal"`
	AccessLog      string        `toml:"access_log" yaml:"access_log"`
	LogLevel       string        `toml:"log_level" yaml:"log_level"`
	LogFormat      string        `toml:"log_format" yaml:"log_format"`
}

// DefaultMaxConns is the number of connections handled at once unless
// -max-conns says otherwise. Later clients wait in the listen backlog.
const DefaultMaxConns = 128

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Port:         DefaultPort,
		Root:         ".",
		MaxConns:     DefaultMaxConns,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		LogLevel:     "info",
		LogFormat:    "text",
	}
}

// LoadFile overlays the settings in a .toml, .yaml or .yml file onto cfg.
// Unknown keys are an error.
func LoadFile(path string, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		md, err := toml.DecodeFile(path, cfg)
		if err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
		if undecoded := md.Undecoded(); len(undecoded) > 0 {
			return &ValidationError{Field: "config", Reason: fmt.Sprintf("unknown keys %v in %s", undecoded, path)}
		}
		return nil
	case ".yaml", ".yml":
		f, err := os.Open(path)
		if err != nil {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
		defer f.Close()
		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(cfg); err != nil && !errors.Is(err, io.EOF) {
			return fmt.Errorf("reading config %s: %w", path, err)
		}
		return nil
	default:
		return &ValidationError{Field: "config", Reason: fmt.Sprintf("unsupported file type %q", filepath.Ext(path))}
	}
}

// Getenv looks up an environment variable, returning "" when unset.
type Getenv func(key string) string

// EnvWithDotEnv returns a lookup that prefers the process environment and
// falls back to the variables in the dotenv file at path. A missing file is
// not an error.
func EnvWithDotEnv(path string) (Getenv, error) {
	vars, err := godotenv.Read(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return os.Getenv, nil
		}
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return func(key string) string {
		if v, ok := os.LookupEnv(key); ok {
			return v
		}
		return vars[key]
	}, nil
}

func applyEnv(cfg *Config, getenv Getenv) error {
	if getenv == nil {
		return nil
	}
	if v := getenv(EnvPort); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return &ValidationError{Field: EnvPort, Reason: err.Error()}
		}
		cfg.Port = port
	}
	if v := getenv(EnvMIME); v != "" {
		cfg.MIMEPath = v
	}
	if v := getenv(EnvRoot); v != "" {
		cfg.Root = v
	}
	if v := getenv(EnvLogLevel); v != "" {
		cfg.LogLevel = v
	}
	if v := getenv(EnvAccessLog); v != "" {
		cfg.AccessLog = v
	}
	return nil
}

func newFlagSet(name string, cfg *Config, configPath *string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.MIMEPath, "mime", cfg.MIMEPath, "path to the MIME map file (required)")
	fs.IntVar(&cfg.Port, "port", cfg.Port, "port to listen on")
	fs.StringVar(&cfg.Root, "root", cfg.Root, "directory to serve files from")
	fs.IntVar(&cfg.MaxConns, "max-conns", cfg.MaxConns, "maximum concurrently handled connections (0 = unbounded)")
	fs.DurationVar(&cfg.ReadTimeout, "read-timeout", cfg.ReadTimeout, "deadline for reading a request (0 = none)")
	fs.DurationVar(&cfg.WriteTimeout, "write-timeout", cfg.WriteTimeout, "deadline for writing a response (0 = none)")
	fs.BoolVar(&cfg.DateGMT, "date-gmt", cfg.DateGMT, "send the Date header in GMT instead of local time")
	fs.BoolVar(&cfg.AllowTraversal, "allow-traversal", cfg.AllowTraversal, "allow request targets to leave the root with ..")
	fs.StringVar(&cfg.AccessLog, "access-log", cfg.AccessLog, "SQLite file to record served requests in")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "text or json")
	fs.StringVar(configPath, "config", *configPath, "TOML or YAML config file")
	return fs
}

// Load builds the configuration for the command line args (without the
// program name). Missing -mime yields ErrUsage; -h yields flag.ErrHelp.
func Load(args []string, getenv Getenv) (Config, error) {
	// First pass only finds -config; the second applies flags on top of
	// file and environment values.
	var configPath string
	firstPass := Default()
	if err := newFlagSet("webserver", &firstPass, &configPath).Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return Config{}, err
		}
		return Config{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	cfg := Default()
	if configPath != "" {
		if err := LoadFile(configPath, &cfg); err != nil {
			return Config{}, err
		}
	}
	if err := applyEnv(&cfg, getenv); err != nil {
		return Config{}, err
	}
	if err := newFlagSet("webserver", &cfg, &configPath).Parse(args); err != nil {
		return Config{}, fmt.Errorf("%w: %v", ErrUsage, err)
	}

	if cfg.MIMEPath == "" {
		return Config{}, fmt.Errorf("%w: -mime is required", ErrUsage)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks value ranges.
func (c Config) Validate() error {
	if c.Port < 0 || c.Port > 65535 {
		return &ValidationError{Field: "port", Reason: fmt.Sprintf("%d is outside 0-65535", c.Port)}
	}
	if c.ReadTimeout < 0 {
		return &ValidationError{Field: "read_timeout", Reason: "must not be negative"}
	}
	if c.WriteTimeout < 0 {
		return &ValidationError{Field: "write_timeout", Reason: "must not be negative"}
	}
	if _, err := ParseLevel(c.LogLevel); err != nil {
		return &ValidationError{Field: "log_level", Reason: err.Error()}
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		return &ValidationError{Field: "log_format", Reason: fmt.Sprintf("%q is not text or json", c.LogFormat)}
	}
	return nil
}

// ParseLevel converts a level name to a slog.Level.
func ParseLevel(s string) (slog.Level, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(s)); err != nil {
		return 0, err
	}
	return level, nil
}

// PrintUsage writes the usage message, led by reason when it is not empty.
func PrintUsage(w io.Writer, program string, reason string) {
	if reason != "" {
		color.New(color.FgRed, color.Bold).Fprintf(w, "%s\n\n", reason)
	}
	color.New(color.FgYellow).Fprintf(w, "Usage: %s -mime <path/to/mime.types> [options]\n\n", program)

	var configPath string
	cfg := Default()
	fs := newFlagSet(program, &cfg, &configPath)
	fs.SetOutput(w)
	fs.PrintDefaults()
}
