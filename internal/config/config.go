package config

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

const minSecretLen = 32

type Config struct {
	Port     string `yaml:"port"`
	LogLevel string `yaml:"log_level"`

	DataFiles  []string `yaml:"data_files"`
	DataDSN    string   `yaml:"data_dsn"`
	DataQuery  string   `yaml:"data_query"`
	StrictLoad bool     `yaml:"strict_load"`

	JWTSecret        string `yaml:"jwt_secret"`
	WriteLimitPerMin int    `yaml:"write_limit_per_min"`

	MetricsEnabled bool   `yaml:"metrics_enabled"`
	MetricsToken   string `yaml:"metrics_token"`
}

func Default() Config {
	return Config{
		Port:             "8080",
		LogLevel:         "info",
		WriteLimitPerMin: 120,
		MetricsEnabled:   true,
	}
}

// Load starts from defaults, overlays the YAML file at path (if any), then
// the environment.
func Load(path string) (Config, error) {
	cfg := Default()

	if path != "" {
		f, err := os.Open(path)
		if err != nil {
			return cfg, fmt.Errorf("open config: %w", err)
		}
		defer f.Close()

		dec := yaml.NewDecoder(f)
		dec.KnownFields(true)
		if err := dec.Decode(&cfg); err != nil && !errors.Is(err, io.EOF) {
			return cfg, fmt.Errorf("decode config %s: %w", path, err)
		}
	}

	if err := cfg.applyEnv(os.LookupEnv); err != nil {
		return cfg, err
	}
	return cfg, cfg.Validate()
}

func (c *Config) applyEnv(lookup func(string) (string, bool)) error {
	str := func(k string, dst *string) {
		if v, ok := lookup(k); ok && v != "" {
			*dst = v
		}
	}

	str("PORT", &c.Port)
	str("LOG_LEVEL", &c.LogLevel)
	str("DATA_DSN", &c.DataDSN)
	str("DATA_QUERY", &c.DataQuery)
	str("JWT_SECRET", &c.JWTSecret)
	str("METRICS_TOKEN", &c.MetricsToken)

	if v, ok := lookup("DATA_FILES"); ok && v != "" {
		c.DataFiles = splitList(v)
	}

	var errs []error
	if v, ok := lookup("STRICT_LOAD"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		errs = append(errs, envErr("STRICT_LOAD", err))
		c.StrictLoad = b
	}
	if v, ok := lookup("METRICS_ENABLED"); ok && v != "" {
		b, err := strconv.ParseBool(v)
		errs = append(errs, envErr("METRICS_ENABLED", err))
		c.MetricsEnabled = b
	}
	if v, ok := lookup("WRITE_LIMIT_PER_MIN"); ok && v != "" {
		n, err := strconv.Atoi(v)
		errs = append(errs, envErr("WRITE_LIMIT_PER_MIN", err))
		c.WriteLimitPerMin = n
	}
	return errors.Join(errs...)
}

func (c Config) Validate() error {
	var errs []error
	if c.Port == "" {
		errs = append(errs, errors.New("port is required"))
	} else if n, err := strconv.Atoi(c.Port); err != nil || n < 0 || n > 65535 {
		errs = append(errs, fmt.Errorf("port %q is not a valid port", c.Port))
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < minSecretLen {
		errs = append(errs, fmt.Errorf("jwt_secret must be at least %d chars", minSecretLen))
	}
	if c.WriteLimitPerMin < 0 {
		errs = append(errs, errors.New("write_limit_per_min must not be negative"))
	}
	return errors.Join(errs...)
}

func (c Config) Addr() string { return ":" + c.Port }

func envErr(key string, err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("env %s: %w", key, err)
}

func splitList(v string) []string {
	var out []string
	for _, p := range strings.Split(v, ",") {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
