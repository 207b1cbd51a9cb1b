// Package config provides configuration management for the execution core.
//
// Configuration can be loaded from multiple sources (in order of precedence):
// 1. Environment variables (highest priority)
// 2. Configuration file (JSON or YAML)
// 3. Default values (lowest priority)
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the complete configuration surface for the execution core.
type Config struct {
	Server     ServerConfig     `json:"server" yaml:"server"`
	Executor   ExecutorConfig   `json:"executor" yaml:"executor"`
	Optimizer  OptimizerConfig  `json:"optimizer" yaml:"optimizer"`
	Confidence ConfidenceConfig `json:"confidence" yaml:"confidence"`
	Synthesis  SynthesisConfig  `json:"synthesis" yaml:"synthesis"`
	Logging    LoggingConfig    `json:"logging" yaml:"logging"`
}

// ServerConfig contains process-level identification.
type ServerConfig struct {
	Name        string `json:"name" yaml:"name"`
	Version     string `json:"version" yaml:"version"`
	Environment string `json:"environment" yaml:"environment"`
}

// ExecutorConfig governs the Dynamic Executor (C11).
type ExecutorConfig struct {
	MaxConcurrentTools       int     `json:"max_concurrent_tools" yaml:"max_concurrent_tools"`
	ExecutionTimeoutSeconds   float64 `json:"execution_timeout_seconds" yaml:"execution_timeout_seconds"`
	ResourceMonitoringEnabled bool    `json:"resource_monitoring_enabled" yaml:"resource_monitoring_enabled"`
	PreferAsync               bool    `json:"prefer_async" yaml:"prefer_async"`
	CPUBoundThresholdSeconds  float64 `json:"cpu_bound_threshold_seconds" yaml:"cpu_bound_threshold_seconds"`
}

// OptimizerConfig governs the Execution Optimizer (C9).
type OptimizerConfig struct {
	Strategy                string  `json:"strategy" yaml:"strategy"`
	TargetCPUUtilization    float64 `json:"target_cpu_utilization" yaml:"target_cpu_utilization"`
	TargetMemoryUtilization float64 `json:"target_memory_utilization" yaml:"target_memory_utilization"`
	MinParallelBenefit      float64 `json:"min_parallel_benefit" yaml:"min_parallel_benefit"`
	CacheTTLSeconds         int     `json:"cache_ttl_seconds" yaml:"cache_ttl_seconds"`
	EnableCaching           bool    `json:"enable_caching" yaml:"enable_caching"`
}

// ConfidenceConfig governs the Confidence Aggregator (C12).
type ConfidenceConfig struct {
	DefaultAggregationMethod string  `json:"default_aggregation_method" yaml:"default_aggregation_method"`
	OutlierZ                 float64 `json:"outlier_z" yaml:"outlier_z"`
	ConsensusThreshold       float64 `json:"consensus_threshold" yaml:"consensus_threshold"`
}

// SynthesisConfig governs the Response Synthesizer (C13).
type SynthesisConfig struct {
	DefaultStrategy       string `json:"default_strategy" yaml:"default_strategy"`
	DefaultConflictPolicy string `json:"default_conflict_policy" yaml:"default_conflict_policy"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	Level            string `json:"level" yaml:"level"`
	Format           string `json:"format" yaml:"format"`
	EnableTimestamps bool   `json:"enable_timestamps" yaml:"enable_timestamps"`
}

// Default returns the default configuration.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name:        "dtcore",
			Version:     "1.0.0",
			Environment: "development",
		},
		Executor: ExecutorConfig{
			MaxConcurrentTools:        4,
			ExecutionTimeoutSeconds:   300,
			ResourceMonitoringEnabled: true,
			PreferAsync:               true,
			CPUBoundThresholdSeconds:  2.0,
		},
		Optimizer: OptimizerConfig{
			Strategy:                "balanced",
			TargetCPUUtilization:    0.8,
			TargetMemoryUtilization: 0.7,
			MinParallelBenefit:      1.2,
			CacheTTLSeconds:         3600,
			EnableCaching:           true,
		},
		Confidence: ConfidenceConfig{
			DefaultAggregationMethod: "weighted_average",
			OutlierZ:                 2.0,
			ConsensusThreshold:       0.7,
		},
		Synthesis: SynthesisConfig{
			DefaultStrategy:       "comprehensive",
			DefaultConflictPolicy: "confidence_weighted",
		},
		Logging: LoggingConfig{
			Level:            "info",
			Format:           "text",
			EnableTimestamps: true,
		},
	}
}

// Load loads configuration from environment variables over the defaults.
func Load() (*Config, error) {
	cfg := Default()

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// LoadFromFile loads configuration from a JSON or YAML file (by extension),
// then applies environment variable overrides.
func LoadFromFile(path string) (*Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if strings.HasSuffix(path, ".yaml") || strings.HasSuffix(path, ".yml") {
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	} else {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := cfg.loadFromEnv(); err != nil {
		return nil, fmt.Errorf("failed to load from environment: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return cfg, nil
}

// loadFromEnv overrides configuration from environment variables.
// Environment variables follow the pattern: DTC_<SECTION>_<KEY>
// Example: DTC_SERVER_NAME, DTC_EXECUTOR_MAX_CONCURRENT_TOOLS
func (c *Config) loadFromEnv() error {
	if v := os.Getenv("DTC_SERVER_NAME"); v != "" {
		c.Server.Name = v
	}
	if v := os.Getenv("DTC_SERVER_VERSION"); v != "" {
		c.Server.Version = v
	}
	if v := os.Getenv("DTC_SERVER_ENVIRONMENT"); v != "" {
		c.Server.Environment = v
	}

	if v := os.Getenv("DTC_EXECUTOR_MAX_CONCURRENT_TOOLS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Executor.MaxConcurrentTools = n
		}
	}
	if v := os.Getenv("DTC_EXECUTOR_EXECUTION_TIMEOUT_SECONDS"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Executor.ExecutionTimeoutSeconds = n
		}
	}
	if v := os.Getenv("DTC_EXECUTOR_RESOURCE_MONITORING_ENABLED"); v != "" {
		c.Executor.ResourceMonitoringEnabled = parseBool(v)
	}
	if v := os.Getenv("DTC_EXECUTOR_PREFER_ASYNC"); v != "" {
		c.Executor.PreferAsync = parseBool(v)
	}
	if v := os.Getenv("DTC_EXECUTOR_CPU_BOUND_THRESHOLD_SECONDS"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Executor.CPUBoundThresholdSeconds = n
		}
	}

	if v := os.Getenv("DTC_OPTIMIZER_STRATEGY"); v != "" {
		c.Optimizer.Strategy = v
	}
	if v := os.Getenv("DTC_OPTIMIZER_TARGET_CPU_UTILIZATION"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Optimizer.TargetCPUUtilization = n
		}
	}
	if v := os.Getenv("DTC_OPTIMIZER_TARGET_MEMORY_UTILIZATION"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Optimizer.TargetMemoryUtilization = n
		}
	}
	if v := os.Getenv("DTC_OPTIMIZER_MIN_PARALLEL_BENEFIT"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Optimizer.MinParallelBenefit = n
		}
	}
	if v := os.Getenv("DTC_OPTIMIZER_CACHE_TTL_SECONDS"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Optimizer.CacheTTLSeconds = n
		}
	}
	if v := os.Getenv("DTC_OPTIMIZER_ENABLE_CACHING"); v != "" {
		c.Optimizer.EnableCaching = parseBool(v)
	}

	if v := os.Getenv("DTC_CONFIDENCE_DEFAULT_AGGREGATION_METHOD"); v != "" {
		c.Confidence.DefaultAggregationMethod = v
	}
	if v := os.Getenv("DTC_CONFIDENCE_OUTLIER_Z"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Confidence.OutlierZ = n
		}
	}
	if v := os.Getenv("DTC_CONFIDENCE_CONSENSUS_THRESHOLD"); v != "" {
		if n, err := strconv.ParseFloat(v, 64); err == nil {
			c.Confidence.ConsensusThreshold = n
		}
	}

	if v := os.Getenv("DTC_SYNTHESIS_DEFAULT_STRATEGY"); v != "" {
		c.Synthesis.DefaultStrategy = v
	}
	if v := os.Getenv("DTC_SYNTHESIS_DEFAULT_CONFLICT_POLICY"); v != "" {
		c.Synthesis.DefaultConflictPolicy = v
	}

	if v := os.Getenv("DTC_LOGGING_LEVEL"); v != "" {
		c.Logging.Level = strings.ToLower(v)
	}
	if v := os.Getenv("DTC_LOGGING_FORMAT"); v != "" {
		c.Logging.Format = strings.ToLower(v)
	}
	if v := os.Getenv("DTC_LOGGING_ENABLE_TIMESTAMPS"); v != "" {
		c.Logging.EnableTimestamps = parseBool(v)
	}

	return nil
}

// Validate checks that the configuration is internally consistent.
func (c *Config) Validate() error {
	if c.Server.Name == "" {
		return fmt.Errorf("server.name cannot be empty")
	}
	if c.Server.Environment != "development" && c.Server.Environment != "staging" && c.Server.Environment != "production" {
		return fmt.Errorf("server.environment must be one of: development, staging, production")
	}

	if c.Executor.MaxConcurrentTools < 1 {
		return fmt.Errorf("executor.max_concurrent_tools must be >= 1")
	}
	if c.Executor.ExecutionTimeoutSeconds <= 0 {
		return fmt.Errorf("executor.execution_timeout_seconds must be > 0")
	}
	if c.Executor.CPUBoundThresholdSeconds <= 0 {
		return fmt.Errorf("executor.cpu_bound_threshold_seconds must be > 0")
	}

	validStrategies := map[string]bool{
		"throughput-max": true, "latency-min": true, "resource-efficient": true,
		"balanced": true, "adaptive": true,
	}
	if !validStrategies[c.Optimizer.Strategy] {
		return fmt.Errorf("optimizer.strategy must be one of: throughput-max, latency-min, resource-efficient, balanced, adaptive")
	}
	if c.Optimizer.TargetCPUUtilization <= 0 || c.Optimizer.TargetCPUUtilization > 1 {
		return fmt.Errorf("optimizer.target_cpu_utilization must be in (0, 1]")
	}
	if c.Optimizer.TargetMemoryUtilization <= 0 || c.Optimizer.TargetMemoryUtilization > 1 {
		return fmt.Errorf("optimizer.target_memory_utilization must be in (0, 1]")
	}
	if c.Optimizer.MinParallelBenefit <= 0 {
		return fmt.Errorf("optimizer.min_parallel_benefit must be > 0")
	}
	if c.Optimizer.CacheTTLSeconds < 0 {
		return fmt.Errorf("optimizer.cache_ttl_seconds cannot be negative")
	}

	validMethods := map[string]bool{
		"weighted_average": true, "bayesian_fusion": true, "minimum_consensus": true,
		"uncertainty_weighted": true, "dynamic_weighting": true,
	}
	if !validMethods[c.Confidence.DefaultAggregationMethod] {
		return fmt.Errorf("confidence.default_aggregation_method must be one of: weighted_average, bayesian_fusion, minimum_consensus, uncertainty_weighted, dynamic_weighting")
	}
	if c.Confidence.OutlierZ <= 0 {
		return fmt.Errorf("confidence.outlier_z must be > 0")
	}
	if c.Confidence.ConsensusThreshold <= 0 || c.Confidence.ConsensusThreshold > 1 {
		return fmt.Errorf("confidence.consensus_threshold must be in (0, 1]")
	}

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[c.Logging.Level] {
		return fmt.Errorf("logging.level must be one of: debug, info, warn, error")
	}
	if c.Logging.Format != "text" && c.Logging.Format != "json" {
		return fmt.Errorf("logging.format must be 'text' or 'json'")
	}

	return nil
}

// parseBool parses a boolean from string (handles various formats).
func parseBool(s string) bool {
	s = strings.ToLower(strings.TrimSpace(s))
	return s == "true" || s == "1" || s == "yes" || s == "on" || s == "enabled"
}

// ToJSON serializes the configuration to JSON.
func (c *Config) ToJSON() ([]byte, error) {
	return json.MarshalIndent(c, "", "  ")
}

// SaveToFile saves the configuration to a JSON file.
func (c *Config) SaveToFile(path string) error {
	data, err := c.ToJSON()
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}
