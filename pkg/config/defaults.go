package config

import "time"

// DefaultServerConfig returns the built-in server defaults.
func DefaultServerConfig() *ServerConfig {
	return &ServerConfig{
		HTTPAddr:            ":8080",
		ShutdownGrace:       10 * time.Second,
		MaxHolderInboxDepth: 256,
	}
}

// DefaultDatabaseConfig returns the built-in database defaults.
func DefaultDatabaseConfig() *DatabaseConfig {
	return &DatabaseConfig{
		DSNEnv:          "FLUXRELAY_DATABASE_DSN",
		MaxConns:        10,
		ConnMaxLifetime: time.Hour,
	}
}

// DefaultGatewayConfig returns the built-in gateway defaults: no upstreams,
// a listen address, and the conventional JWT secret env var name.
func DefaultGatewayConfig() *GatewayConfig {
	return &GatewayConfig{
		HTTPAddr:     ":8443",
		JWTSecretEnv: "FLUXRELAY_GATEWAY_JWT_SECRET",
		Upstreams:    nil,
	}
}

// DefaultHolderDefaults returns the built-in holder bounds.
func DefaultHolderDefaults() *HolderDefaults {
	return &HolderDefaults{
		MaxCollectDebounceMs: 10000,
		RunnerRequestTimeout: 15 * time.Second,
	}
}

// DefaultTriggerConfig returns the built-in trigger scheduler defaults.
func DefaultTriggerConfig() *TriggerConfig {
	return &TriggerConfig{
		SchedulerTickZone: "UTC",
		MaxConcurrentRuns: 16,
	}
}

// DefaultWorkflowConfig returns the built-in workflow reconciler defaults.
func DefaultWorkflowConfig() *WorkflowConfig {
	return &WorkflowConfig{
		ApprovalTimeoutSweep: time.Minute,
		StaleExecutionSweep:  5 * time.Minute,
		StaleExecutionAfter:  30 * time.Minute,
	}
}
