// Package config loads per-process infrastructure settings. Each service
// (engine, gateway, orchestrator, tool server, generation backend, training
// service) gets its listen port, OTEL endpoint, shared-volume root, and peer
// URLs from the environment, following the same envStr/envInt/envBool/
// envDuration helper idiom across all six binaries.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds the infra settings common to every service binary.
type Config struct {
	Port        int
	ServiceName string
	SharedRoot  string // shared volume root, e.g. /shared
	PostgresURL string // optional; empty means in-memory store

	Telemetry TelemetryConfig
	Peers     PeerConfig
	Auth      AuthConfig
}

// TelemetryConfig configures OpenTelemetry tracing.
type TelemetryConfig struct {
	Enabled      bool
	OTLPEndpoint string
	ServiceName  string
}

// PeerConfig carries the URLs this service calls out to. Not every service
// needs every field; unused fields are simply left at their default.
type PeerConfig struct {
	EngineURL         string
	EngineFallbackURL string // HA standby
	GatewayURL        string
	OrchestratorURL   string
	ToolServerURL     string
	GenBackendURL     string
	TrainServiceURL   string
}

// AuthConfig configures the inter-service service-account auth.
type AuthConfig struct {
	ServiceAccountSecret string
	APIKeyHeader         string
}

// Load reads configuration from the environment with sensible defaults.
// serviceName seeds both Config.ServiceName and Telemetry.ServiceName so
// every emitted span and log line is attributable to one process.
func Load(serviceName string, defaultPort int) *Config {
	return &Config{
		Port:        envInt("COGCORE_PORT", defaultPort),
		ServiceName: serviceName,
		SharedRoot:  envStr("COGCORE_SHARED_ROOT", "/shared"),
		PostgresURL: envStr("COGCORE_POSTGRES_URL", ""),
		Telemetry: TelemetryConfig{
			Enabled:      envBool("OTEL_ENABLED", false),
			OTLPEndpoint: envStr("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
			ServiceName:  serviceName,
		},
		Peers: PeerConfig{
			EngineURL:         envStr("COGCORE_ENGINE_URL", "http://localhost:8081"),
			EngineFallbackURL: envStr("COGCORE_ENGINE_FALLBACK_URL", "http://localhost:8181"),
			GatewayURL:        envStr("COGCORE_GATEWAY_URL", "http://localhost:8080"),
			OrchestratorURL:   envStr("COGCORE_ORCHESTRATOR_URL", "http://localhost:8082"),
			ToolServerURL:     envStr("COGCORE_TOOLSERVER_URL", "http://localhost:8083"),
			GenBackendURL:     envStr("COGCORE_GENBACKEND_URL", "http://localhost:8084"),
			TrainServiceURL:   envStr("COGCORE_TRAINSERVICE_URL", "http://localhost:8085"),
		},
		Auth: AuthConfig{
			ServiceAccountSecret: envStr("COGCORE_SA_SECRET", ""),
			APIKeyHeader:         envStr("COGCORE_API_KEY_HEADER", "Authorization"),
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

func envDuration(key string, fallback time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return fallback
}
