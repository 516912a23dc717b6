// Package config provides unified configuration for the DataGem server.
//
// Configuration is loaded with a layered approach:
//  1. Built-in defaults
//  2. YAML config file (discovered or explicitly specified)
//  3. Environment variable overrides (DATAGEM_ prefix, plus DATABASE_URL
//     and GEMINI_API_KEYS)
//  4. File reference resolution (_file suffix fields)
//  5. Validation
package config

import "time"

// Config holds all configuration for the DataGem server.
type Config struct {
	Server        ServerConfig        `yaml:"server"`
	Engine        EngineConfig        `yaml:"engine"`
	Sandbox       SandboxConfig       `yaml:"sandbox"`
	Search        SearchConfig        `yaml:"search"`
	Storage       StorageConfig       `yaml:"storage"`
	MCP           MCPConfig           `yaml:"mcp"`
	Observability ObservabilityConfig `yaml:"observability"`
}

// ObservabilityConfig holds monitoring and instrumentation settings.
type ObservabilityConfig struct {
	Metrics MetricsConfig `yaml:"metrics"`
}

// MetricsConfig holds Prometheus metrics endpoint settings.
type MetricsConfig struct {
	Enabled bool `yaml:"enabled"` // default: true
}

// ServerConfig holds HTTP server settings.
type ServerConfig struct {
	Port            int           `yaml:"port"`             // default: 8000
	ReadTimeout     time.Duration `yaml:"read_timeout"`     // default: 30s
	MaxBodySize     int64         `yaml:"max_body_size"`    // default: 10 MB
	MaxDatasetRows  int           `yaml:"max_dataset_rows"` // default: 100000
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"` // default: 30s
}

// EngineConfig holds the upstream model and dispatcher settings.
type EngineConfig struct {
	BackendURL      string        `yaml:"backend_url"`       // default: Gemini OpenAI-compatible endpoint
	Model           string        `yaml:"model"`             // default: gemini-2.5-flash
	APIKeys         []string      `yaml:"api_keys"`          // ordered credential pool
	APIKeysFile     string        `yaml:"api_keys_file"`     // _file variant, one key per line
	SystemPrompt    string        `yaml:"system_prompt"`     // optional override
	Temperature     *float64      `yaml:"temperature"`       // optional
	MaxOutputTokens *int          `yaml:"max_output_tokens"` // optional
	MaxToolCalls    int           `yaml:"max_tool_calls"`    // default: 10
	QuotaRetries    int           `yaml:"quota_retries"`     // default: 1
	HistoryLimit    int           `yaml:"history_limit"`     // default: 0 (history not replayed)
	Timeout         time.Duration `yaml:"timeout"`           // per upstream request, default: 120s
}

// SandboxConfig selects where generated code runs.
type SandboxConfig struct {
	Type           string        `yaml:"type"`        // "local", "remote" or "kubernetes", default: "local"
	Interpreter    []string      `yaml:"interpreter"` // default: ["python3"]
	Timeout        time.Duration `yaml:"timeout"`     // default: 30s
	CPUSeconds     int           `yaml:"cpu_seconds"`
	MemoryMB       int           `yaml:"memory_mb"`
	IsolateNetwork bool          `yaml:"isolate_network"`
	MaxOutputBytes int           `yaml:"max_output_bytes"`

	// RemoteURL is the sandbox-server base URL for type "remote".
	RemoteURL string `yaml:"remote_url"`

	Kubernetes KubernetesSandboxConfig `yaml:"kubernetes"`
}

// KubernetesSandboxConfig configures SandboxClaim based execution.
type KubernetesSandboxConfig struct {
	Template     string        `yaml:"template"`
	Namespace    string        `yaml:"namespace"`     // default: "default"
	ReadyTimeout time.Duration `yaml:"ready_timeout"` // default: 60s
	Port         int           `yaml:"port"`          // default: 8080
}

// SearchConfig configures the google_search tool.
type SearchConfig struct {
	Enabled    bool   `yaml:"enabled"`     // default: true
	Backend    string `yaml:"backend"`     // "placeholder" or "searxng", default: "placeholder"
	URL        string `yaml:"url"`         // SearXNG base URL
	MaxResults int    `yaml:"max_results"` // default: 5
}

// StorageConfig holds chat history persistence settings.
type StorageConfig struct {
	Type     string         `yaml:"type"`     // "sqlite", "memory" or "postgres", default: "sqlite"
	MaxSize  int            `yaml:"max_size"` // for memory store, default: 10000
	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig holds SQLite settings.
type SQLiteConfig struct {
	Path string `yaml:"path"` // default: ./datagem.db
}

// PostgresConfig holds PostgreSQL-specific settings.
type PostgresConfig struct {
	DSN            string `yaml:"dsn"`
	DSNFile        string `yaml:"dsn_file"`         // _file variant for dsn
	MaxConns       int32  `yaml:"max_conns"`        // default: 10
	MigrateOnStart bool   `yaml:"migrate_on_start"` // default: true
}

// MCPConfig controls the MCP endpoint serving the tool catalog.
type MCPConfig struct {
	Enabled bool `yaml:"enabled"` // default: false
}

// Defaults returns a Config with all default values filled in.
func Defaults() Config {
	return Config{
		Server: ServerConfig{
			Port:            8000,
			ReadTimeout:     30 * time.Second,
			MaxBodySize:     10 << 20,
			MaxDatasetRows:  100_000,
			ShutdownTimeout: 30 * time.Second,
		},
		Engine: EngineConfig{
			Model:        "gemini-2.5-flash",
			MaxToolCalls: 10,
			QuotaRetries: 1,
			Timeout:      120 * time.Second,
		},
		Sandbox: SandboxConfig{
			Type:        "local",
			Interpreter: []string{"python3"},
			Timeout:     30 * time.Second,
			Kubernetes: KubernetesSandboxConfig{
				Namespace:    "default",
				ReadyTimeout: 60 * time.Second,
				Port:         8080,
			},
		},
		Search: SearchConfig{
			Enabled:    true,
			Backend:    "placeholder",
			MaxResults: 5,
		},
		Storage: StorageConfig{
			Type:    "sqlite",
			MaxSize: 10000,
			SQLite: SQLiteConfig{
				Path: "./datagem.db",
			},
			Postgres: PostgresConfig{
				MaxConns:       10,
				MigrateOnStart: true,
			},
		},
		Observability: ObservabilityConfig{
			Metrics: MetricsConfig{
				Enabled: true,
			},
		},
	}
}
