package config

import (
	"errors"
	"fmt"
	"net/url"
)

// Validate checks the configuration for required fields and valid values.
// Returns an error with a descriptive field path on failure.
func (c *Config) Validate() error {
	var errs []error

	// At least one upstream key is required.
	if len(c.Engine.APIKeys) == 0 {
		errs = append(errs, fmt.Errorf("engine.api_keys is required (set GEMINI_API_KEYS or DATAGEM_API_KEYS)"))
	}

	if c.Engine.Model == "" {
		errs = append(errs, fmt.Errorf("engine.model is required"))
	}

	if c.Engine.BackendURL != "" {
		if u, err := url.Parse(c.Engine.BackendURL); err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, fmt.Errorf("engine.backend_url must be an absolute URL, got %q", c.Engine.BackendURL))
		}
	}

	if c.Engine.MaxToolCalls < 0 {
		errs = append(errs, fmt.Errorf("engine.max_tool_calls must be >= 0, got %d", c.Engine.MaxToolCalls))
	}

	if c.Server.Port <= 0 {
		errs = append(errs, fmt.Errorf("server.port must be > 0, got %d", c.Server.Port))
	}

	switch c.Sandbox.Type {
	case "local":
		if len(c.Sandbox.Interpreter) == 0 {
			errs = append(errs, fmt.Errorf("sandbox.interpreter is required when sandbox.type is \"local\""))
		}
	case "remote":
		if c.Sandbox.RemoteURL == "" {
			errs = append(errs, fmt.Errorf("sandbox.remote_url is required when sandbox.type is \"remote\""))
		}
	case "kubernetes":
		if c.Sandbox.Kubernetes.Template == "" {
			errs = append(errs, fmt.Errorf("sandbox.kubernetes.template is required when sandbox.type is \"kubernetes\""))
		}
	default:
		errs = append(errs, fmt.Errorf("sandbox.type must be \"local\", \"remote\" or \"kubernetes\", got %q", c.Sandbox.Type))
	}

	if c.Sandbox.Timeout <= 0 {
		errs = append(errs, fmt.Errorf("sandbox.timeout must be > 0, got %s", c.Sandbox.Timeout))
	}

	switch c.Search.Backend {
	case "placeholder", "":
	case "searxng":
		if c.Search.Enabled && c.Search.URL == "" {
			errs = append(errs, fmt.Errorf("search.url is required when search.backend is \"searxng\""))
		}
	default:
		errs = append(errs, fmt.Errorf("search.backend must be \"placeholder\" or \"searxng\", got %q", c.Search.Backend))
	}

	switch c.Storage.Type {
	case "sqlite":
		if c.Storage.SQLite.Path == "" {
			errs = append(errs, fmt.Errorf("storage.sqlite.path is required when storage.type is \"sqlite\""))
		}
	case "memory":
	case "postgres":
		if c.Storage.Postgres.DSN == "" && c.Storage.Postgres.DSNFile == "" {
			errs = append(errs, fmt.Errorf("storage.postgres.dsn or storage.postgres.dsn_file is required when storage.type is \"postgres\""))
		}
	default:
		errs = append(errs, fmt.Errorf("storage.type must be \"sqlite\", \"memory\" or \"postgres\", got %q", c.Storage.Type))
	}

	return errors.Join(errs...)
}
