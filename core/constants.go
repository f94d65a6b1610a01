package core

import "time"

// Environment variables used by the engine. Config.LoadFromEnv reads all of
// them except EnvDevMode and EnvAnthropicKey.
const (
	EnvRedisURL      = "PATTERNRUNNER_REDIS_URL"      // Execution cache backing store
	EnvPostgresURL   = "PATTERNRUNNER_POSTGRES_URL"   // Pricing Pack Store DSN
	EnvPatternDir    = "PATTERNRUNNER_PATTERN_DIR"    // Pattern source directory
	EnvNamespace     = "PATTERNRUNNER_NAMESPACE"      // Deployment namespace, used in log/metric labels
	EnvPort          = "PORT"                         // HTTP server port for the Request API
	EnvDevMode       = "PATTERNRUNNER_DEV_MODE"       // Development mode flag
	EnvAnthropicKey  = "ANTHROPIC_API_KEY"            // ClaudeAgent upstream credential
	EnvMaxInFlight   = "PATTERNRUNNER_MAX_IN_FLIGHT"  // Backpressure ceiling
)

// Resource limits enforced at pattern load time and during execution.
const (
	MaxStepsPerPattern     = 100
	MaxParallelGroupWidth  = 16
	DefaultMaxInFlight     = 256
)

// Circuit breaker and retry defaults.
const (
	DefaultCircuitWindowSize        = 20
	DefaultCircuitFailureRate       = 0.5
	DefaultCircuitMinFailures       = 5
	DefaultCircuitCooldown          = 30 * time.Second
	DefaultCircuitCooldownCeiling   = 10 * time.Minute
	DefaultRetryMaxAttempts         = 3
	DefaultRetryBaseDelay           = 250 * time.Millisecond
	DefaultRetryMaxDelay            = 5 * time.Second
)
