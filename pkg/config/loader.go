package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/rhuss/datagem/pkg/storage"
)

// searchPaths are tried in order when neither an explicit path nor
// DATAGEM_CONFIG names a config file.
var searchPaths = []string{"config.yaml", "/etc/datagem/config.yaml"}

// Load builds the configuration in layers: Defaults, then the YAML file,
// then environment overrides, then secrets read from _file references.
// The result is validated before it is returned.
//
// The file is configPath if set, else DATAGEM_CONFIG, else the first of
// searchPaths that exists. Running without any file is allowed.
func Load(configPath string) (*Config, error) {
	cfg := Defaults()

	if path := findConfigFile(configPath); path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("reading config file: %w", err)
		}
		if err := yaml.Unmarshal(data, &cfg); err != nil {
			return nil, fmt.Errorf("parsing %s: %w", path, err)
		}
	}
	if err := applyEnv(&cfg); err != nil {
		return nil, fmt.Errorf("environment: %w", err)
	}
	if err := readSecrets(&cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return &cfg, nil
}

func findConfigFile(explicit string) string {
	if explicit != "" {
		return explicit
	}
	if p := os.Getenv("DATAGEM_CONFIG"); p != "" {
		return p
	}
	for _, p := range searchPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// applyEnv overlays environment variables. DATABASE_URL and
// GEMINI_API_KEYS keep the names existing deployments use; the rest carry
// the DATAGEM_ prefix. Malformed numbers are reported together.
func applyEnv(cfg *Config) error {
	for name, dst := range map[string]*string{
		"DATAGEM_BACKEND_URL":   &cfg.Engine.BackendURL,
		"DATAGEM_MODEL":         &cfg.Engine.Model,
		"DATAGEM_API_KEYS_FILE": &cfg.Engine.APIKeysFile,
		"DATAGEM_SANDBOX":       &cfg.Sandbox.Type,
		"DATAGEM_SANDBOX_URL":   &cfg.Sandbox.RemoteURL,
	} {
		if v := os.Getenv(name); v != "" {
			*dst = v
		}
	}

	var errs []error
	if v := os.Getenv("DATAGEM_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err != nil {
			errs = append(errs, fmt.Errorf("DATAGEM_PORT: %q is not a number", v))
		} else {
			cfg.Server.Port = port
		}
	}
	if v := os.Getenv("DATAGEM_SANDBOX_TIMEOUT"); v != "" {
		secs, err := strconv.Atoi(v)
		if err != nil || secs <= 0 {
			errs = append(errs, fmt.Errorf("DATAGEM_SANDBOX_TIMEOUT: %q is not a positive number of seconds", v))
		} else {
			cfg.Sandbox.Timeout = time.Duration(secs) * time.Second
		}
	}

	// DATAGEM_API_KEYS wins over GEMINI_API_KEYS.
	for _, name := range []string{"DATAGEM_API_KEYS", "GEMINI_API_KEYS"} {
		if keys := splitKeys(os.Getenv(name)); len(keys) > 0 {
			cfg.Engine.APIKeys = keys
			break
		}
	}

	if v := os.Getenv("DATAGEM_SEARCH_URL"); v != "" {
		cfg.Search.Backend = "searxng"
		cfg.Search.URL = v
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		if err := applyDatabaseURL(cfg, v); err != nil {
			errs = append(errs, err)
		}
	}
	if v := os.Getenv("DATAGEM_MCP"); v != "" {
		cfg.MCP.Enabled = v == "true" || v == "1"
	}
	return errors.Join(errs...)
}

// applyDatabaseURL picks the storage backend from the URL scheme.
func applyDatabaseURL(cfg *Config, raw string) error {
	backend, dsn, err := storage.ParseDatabaseURL(raw)
	if err != nil {
		return fmt.Errorf("DATABASE_URL: %w", err)
	}
	cfg.Storage.Type = backend
	switch backend {
	case storage.BackendSQLite:
		cfg.Storage.SQLite.Path = dsn
	case storage.BackendPostgres:
		cfg.Storage.Postgres.DSN = dsn
	}
	return nil
}

func splitKeys(s string) []string {
	var keys []string
	for _, k := range strings.Split(s, ",") {
		if k = strings.TrimSpace(k); k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}

// readSecrets fills values from their _file references when the value
// itself is unset. The API key file holds one key per line; blank lines
// and # comments are skipped.
func readSecrets(cfg *Config) error {
	if f := cfg.Engine.APIKeysFile; f != "" && len(cfg.Engine.APIKeys) == 0 {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("engine.api_keys_file: %w", err)
		}
		for _, line := range strings.Split(string(data), "\n") {
			if line = strings.TrimSpace(line); line != "" && !strings.HasPrefix(line, "#") {
				cfg.Engine.APIKeys = append(cfg.Engine.APIKeys, line)
			}
		}
	}
	if f := cfg.Storage.Postgres.DSNFile; f != "" && cfg.Storage.Postgres.DSN == "" {
		data, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("storage.postgres.dsn_file: %w", err)
		}
		cfg.Storage.Postgres.DSN = strings.TrimSpace(string(data))
	}
	return nil
}
