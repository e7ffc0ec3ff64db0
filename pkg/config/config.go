// Package config loads process-wide startup configuration from the
// environment, with per-role defaults.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Role identifies which agent a process runs as.
type Role string

const (
	RoleFacade       Role = "facade"
	RoleOrchestrator Role = "orchestrator"
	RoleDiscovery    Role = "discovery"
	RoleAnalysis     Role = "analysis"
	RoleRelationship Role = "relationship"
)

// defaultPorts maps each role to its conventional listen port.
var defaultPorts = map[Role]int{
	RoleFacade:       3000,
	RoleOrchestrator: 3001,
	RoleDiscovery:    3002,
	RoleAnalysis:     3003,
	RoleRelationship: 3004,
}

// LLMConfig configures the orchestrator's language model endpoint.
type LLMConfig struct {
	BaseURL string
	APIKey  string
	Model   string
}

// WorkerConfig holds the base URLs of the known workers.
type WorkerConfig struct {
	DiscoveryURL    string
	AnalysisURL     string
	RelationshipURL string
}

// DatabaseConfig selects the durable store. An empty driver keeps
// everything in memory.
type DatabaseConfig struct {
	Driver string // "sqlite3", "postgres" or "mysql"
	DSN    string
}

// Config is the process-wide startup configuration.
type Config struct {
	Role          Role
	Port          int
	BaseURL       string
	EnableLogging bool

	// Client behavior.
	Timeout           time.Duration
	MaxRetries        int
	RetryDelay        time.Duration
	MaxSockets        int
	KeepAlive         bool
	AgentCardCacheTTL time.Duration

	// Orchestrator polling.
	PollInterval time.Duration
	StaleAfter   time.Duration

	// Task retention for terminal tasks.
	TaskRetention time.Duration

	LLM      LLMConfig
	Workers  WorkerConfig
	Database DatabaseConfig

	// CatalogPath points at the YAML repository catalog for workers.
	CatalogPath string
}

// Load reads the configuration for a role from the environment.
// A .env file in the working directory is honored when present.
func Load(role Role) (*Config, error) {
	_ = godotenv.Load()

	port, ok := defaultPorts[role]
	if !ok {
		return nil, fmt.Errorf("unknown role %q", role)
	}
	port = envInt("PORT", port)

	cfg := &Config{
		Role:          role,
		Port:          port,
		BaseURL:       envString("BASE_URL", fmt.Sprintf("http://localhost:%d", port)),
		EnableLogging: envBool("ENABLE_LOGGING", true),

		Timeout:           envDuration("TIMEOUT", 30*time.Second),
		MaxRetries:        envInt("MAX_RETRIES", 3),
		RetryDelay:        envDuration("RETRY_DELAY", 500*time.Millisecond),
		MaxSockets:        envInt("MAX_SOCKETS", 10),
		KeepAlive:         envBool("KEEP_ALIVE", true),
		AgentCardCacheTTL: envDuration("AGENT_CARD_CACHE_TTL", 5*time.Minute),

		PollInterval: envDuration("POLL_INTERVAL", time.Second),
		StaleAfter:   envDuration("STALE_AFTER", 2*time.Minute),

		TaskRetention: envDuration("TASK_RETENTION", time.Hour),

		LLM: LLMConfig{
			BaseURL: envString("LLM_BASE_URL", "https://api.openai.com/v1"),
			APIKey:  envString("LLM_API_KEY", os.Getenv("OPENAI_API_KEY")),
			Model:   envString("LLM_MODEL", "gpt-4o-mini"),
		},
		Workers: WorkerConfig{
			DiscoveryURL:    envString("DISCOVERY_URL", "http://localhost:3002"),
			AnalysisURL:     envString("ANALYSIS_URL", "http://localhost:3003"),
			RelationshipURL: envString("RELATIONSHIP_URL", "http://localhost:3004"),
		},
		Database: DatabaseConfig{
			Driver: envString("DB_DRIVER", ""),
			DSN:    envString("DB_DSN", ""),
		},
		CatalogPath: envString("CATALOG_PATH", ""),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration for obvious misconfiguration.
func (c *Config) Validate() error {
	if c.Port <= 0 || c.Port > 65535 {
		return fmt.Errorf("invalid port %d", c.Port)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be >= 0, got %d", c.MaxRetries)
	}
	if c.MaxSockets <= 0 {
		return fmt.Errorf("max sockets must be > 0, got %d", c.MaxSockets)
	}
	if c.Timeout <= 0 {
		return fmt.Errorf("timeout must be > 0, got %v", c.Timeout)
	}
	switch c.Database.Driver {
	case "", "sqlite3", "postgres", "mysql":
	default:
		return fmt.Errorf("unsupported database driver %q", c.Database.Driver)
	}
	return nil
}

// ListenAddr returns the address the agent's HTTP server binds to.
func (c *Config) ListenAddr() string {
	return fmt.Sprintf(":%d", c.Port)
}

func envString(key, fallback string) string {
	if v := os.Getenv("AGENTMESH_" + key); v != "" {
		return v
	}
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	v := envString(key, "")
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}

func envBool(key string, fallback bool) bool {
	v := envString(key, "")
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return fallback
	}
	return b
}

func envDuration(key string, fallback time.Duration) time.Duration {
	v := envString(key, "")
	if v == "" {
		return fallback
	}
	if d, err := time.ParseDuration(v); err == nil {
		return d
	}
	// Bare integers are interpreted as milliseconds.
	if n, err := strconv.Atoi(v); err == nil {
		return time.Duration(n) * time.Millisecond
	}
	return fallback
}
