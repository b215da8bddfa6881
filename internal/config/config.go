package config

import (
	"os"
	"strconv"
	"strings"
)

// Config holds all configuration for the resolution engine.
type Config struct {
	Port      int
	Version   string
	Database  DatabaseConfig
	Telemetry TelemetryConfig
	Auth      AuthConfig
	DHT       DHTConfig
	Patterns  PatternConfig
}

// DatabaseConfig configures the optional Postgres-backed Calibrator,
// Knowledge Store, and pattern vector store. When URL is empty the engine
// runs entirely in-memory.
type DatabaseConfig struct {
	URL            string
	MaxConnections int
}

type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

type AuthConfig struct {
	APIKeyHeader string
	OIDCIssuer   string
	OIDCAudience string
}

// DHTConfig configures this node's participation in the distributed
// pattern network.
type DHTConfig struct {
	Enabled        bool
	ListenAddr     string
	BootstrapPeers []string
}

// PatternConfig configures the Pattern Index's optional semantic layer and
// rebuild source directory.
type PatternConfig struct {
	RebuildDir      string
	EmbeddingDriver string // "", "ollama", "openai"
	VectorStore     string // "", "memory", "pgvector"
}

// Load reads configuration from environment variables with sensible
// defaults — an unconfigured engine runs fully in-memory, single-node,
// with the DHT disabled.
func Load() *Config {
	return &Config{
		Port:    envInt("RESOLVER_PORT", 8080),
		Version: envStr("RESOLVER_VERSION", "0.1.0"),
		Database: DatabaseConfig{
			URL:            envStr("DATABASE_URL", ""),
			MaxConnections: envInt("DATABASE_MAX_CONNECTIONS", 25),
		},
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", true),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  envStr("OTEL_SERVICE_NAME", "resolver-engine"),
		},
		Auth: AuthConfig{
			APIKeyHeader: envStr("AUTH_API_KEY_HEADER", "Authorization"),
			OIDCIssuer:   envStr("AUTH_OIDC_ISSUER", ""),
			OIDCAudience: envStr("AUTH_OIDC_AUDIENCE", ""),
		},
		DHT: DHTConfig{
			Enabled:        envBool("RESOLVER_DHT_ENABLED", false),
			ListenAddr:     envStr("RESOLVER_DHT_LISTEN", "0.0.0.0:7946"),
			BootstrapPeers: envList("RESOLVER_DHT_BOOTSTRAP_PEERS"),
		},
		Patterns: PatternConfig{
			RebuildDir:      envStr("RESOLVER_PATTERNS_DIR", ""),
			EmbeddingDriver: envStr("RESOLVER_EMBEDDING_DRIVER", ""),
			VectorStore:     envStr("RESOLVER_VECTOR_STORE", ""),
		},
	}
}

func envStr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) int {
	if v := os.Getenv(key); v != "" {
		if i, err := strconv.Atoi(v); err == nil {
			return i
		}
	}
	return fallback
}

func envBool(key string, fallback bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return fallback
}

func envList(key string) []string {
	v := os.Getenv(key)
	if v == "" {
		return nil
	}
	var out []string
	for _, item := range strings.Split(v, ",") {
		item = strings.TrimSpace(item)
		if item != "" {
			out = append(out, item)
		}
	}
	return out
}
