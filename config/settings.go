// Package config provides application settings loaded from environment variables.
//
// Settings are created via New() which handles:
// - Environment variable parsing with validation
// - Default value application
// - Provider-specific configuration lookup

package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Settings holds all application configuration.
type Settings struct {
	LLM      LLMConfig
	Graph    GraphConfig
	Pipeline PipelineConfig
	Analysis AnalysisConfig
	Server   ServerConfig
	Storage  StorageConfig
}

// LLMConfig holds LLM provider configuration.
type LLMConfig struct {
	Provider    string
	Model       string
	MaxTokens   uint32
	Temperature float64
}

// GraphConfig holds the Neo4j connection and query cache settings.
type GraphConfig struct {
	URI       string
	Username  string
	Password  string
	Database  string
	CacheSize int
	CacheTTL  time.Duration
}

// PipelineConfig holds the execution pipeline tunables.
type PipelineConfig struct {
	MaxIterations int
	StepTimeout   time.Duration
	LLMTimeout    time.Duration
	MaxContextAge time.Duration
	SweepInterval time.Duration
}

// AnalysisConfig holds the iterative analysis thresholds.
type AnalysisConfig struct {
	CompletenessThreshold float64
	ConfidenceThreshold   float64
	MaxFollowUpSteps      int
	MinSuccessfulResults  int
}

// ServerConfig holds the HTTP server settings.
type ServerConfig struct {
	Addr string
}

// StorageConfig holds the conversation store settings.
type StorageConfig struct {
	SQLitePath string
}

// providerInfo holds configuration for a specific LLM provider.
type providerInfo struct {
	modelEnv     string
	defaultModel string
	apiKeyEnv    string
}

// Supported providers and their configuration.
var providers = map[string]providerInfo{
	"openai":    {"OPENAI_MODEL", "gpt-4o-mini", "OPENAI_API_KEY"},
	"anthropic": {"ANTHROPIC_MODEL", "claude-sonnet-4-20250514", "ANTHROPIC_API_KEY"},
	"gemini":    {"GEMINI_MODEL", "gemini-2.0-flash", "GEMINI_API_KEY"},
}

// Provider aliases map to canonical names.
var providerAliases = map[string]string{
	"claude": "anthropic",
	"google": "gemini",
	"gpt":    "openai",
}

// New creates settings for the specified provider, loading values from
// environment variables. Returns an error if the provider is unknown or an
// environment variable contains an invalid value.
func New(provider string) (Settings, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return Settings{}, err
	}

	maxTokens, err := getEnvUint32("LLM_MAX_TOKENS", 4096)
	if err != nil {
		return Settings{}, err
	}
	temperature, err := getEnvFloat64("LLM_TEMPERATURE", 0.2)
	if err != nil {
		return Settings{}, err
	}

	cacheSize, err := getEnvInt("GRAPH_CACHE_SIZE", 256)
	if err != nil {
		return Settings{}, err
	}
	cacheTTL, err := getEnvDuration("GRAPH_CACHE_TTL", 5*time.Minute)
	if err != nil {
		return Settings{}, err
	}

	maxIterations, err := getEnvInt("PIPELINE_MAX_ITERATIONS", 3)
	if err != nil {
		return Settings{}, err
	}
	stepTimeout, err := getEnvDuration("PIPELINE_STEP_TIMEOUT", 10*time.Second)
	if err != nil {
		return Settings{}, err
	}
	llmTimeout, err := getEnvDuration("PIPELINE_LLM_TIMEOUT", 30*time.Second)
	if err != nil {
		return Settings{}, err
	}
	maxContextAge, err := getEnvDuration("PIPELINE_CONTEXT_MAX_AGE", 30*time.Minute)
	if err != nil {
		return Settings{}, err
	}
	sweepInterval, err := getEnvDuration("PIPELINE_SWEEP_INTERVAL", 5*time.Minute)
	if err != nil {
		return Settings{}, err
	}

	completeness, err := getEnvFloat64("ANALYSIS_COMPLETENESS_THRESHOLD", 0.8)
	if err != nil {
		return Settings{}, err
	}
	confidence, err := getEnvFloat64("ANALYSIS_CONFIDENCE_THRESHOLD", 0.7)
	if err != nil {
		return Settings{}, err
	}
	maxFollowUp, err := getEnvInt("ANALYSIS_MAX_FOLLOWUP_STEPS", 3)
	if err != nil {
		return Settings{}, err
	}
	minSuccessful, err := getEnvInt("ANALYSIS_MIN_SUCCESSFUL_RESULTS", 1)
	if err != nil {
		return Settings{}, err
	}

	model := os.Getenv(info.modelEnv)
	if model == "" {
		model = info.defaultModel
	}

	return Settings{
		LLM: LLMConfig{
			Provider:    provider,
			Model:       model,
			MaxTokens:   maxTokens,
			Temperature: temperature,
		},
		Graph: GraphConfig{
			URI:       getEnv("NEO4J_URI", "bolt://localhost:7687"),
			Username:  getEnv("NEO4J_USERNAME", "neo4j"),
			Password:  os.Getenv("NEO4J_PASSWORD"),
			Database:  getEnv("NEO4J_DATABASE", "neo4j"),
			CacheSize: cacheSize,
			CacheTTL:  cacheTTL,
		},
		Pipeline: PipelineConfig{
			MaxIterations: maxIterations,
			StepTimeout:   stepTimeout,
			LLMTimeout:    llmTimeout,
			MaxContextAge: maxContextAge,
			SweepInterval: sweepInterval,
		},
		Analysis: AnalysisConfig{
			CompletenessThreshold: completeness,
			ConfidenceThreshold:   confidence,
			MaxFollowUpSteps:      maxFollowUp,
			MinSuccessfulResults:  minSuccessful,
		},
		Server: ServerConfig{
			Addr: getEnv("SERVER_ADDR", ":8080"),
		},
		Storage: StorageConfig{
			SQLitePath: getEnv("SQLITE_PATH", "data/glance.db"),
		},
	}, nil
}

// MustNew creates settings for the specified provider.
// Panics if the provider is unknown or environment variables are invalid.
// Use this only when configuration errors should be fatal.
func MustNew(provider string) Settings {
	settings, err := New(provider)
	if err != nil {
		panic(fmt.Sprintf("config: %v", err))
	}
	return settings
}

// normalizeProvider converts provider aliases to canonical names.
func normalizeProvider(provider string) string {
	provider = strings.ToLower(provider)
	if canonical, ok := providerAliases[provider]; ok {
		return canonical
	}
	return provider
}

// getProviderInfo returns configuration for a provider.
func getProviderInfo(provider string) (providerInfo, error) {
	info, ok := providers[provider]
	if !ok {
		return providerInfo{}, fmt.Errorf("unknown provider: %q", provider)
	}
	return info, nil
}

// APIKeyFor returns the API key for a provider from environment variables.
func APIKeyFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	key := os.Getenv(info.apiKeyEnv)
	if key == "" {
		return "", fmt.Errorf("%s environment variable not set", info.apiKeyEnv)
	}
	return key, nil
}

// ModelFor returns the model for a provider, checking environment first.
func ModelFor(provider string) (string, error) {
	provider = normalizeProvider(provider)

	info, err := getProviderInfo(provider)
	if err != nil {
		return "", err
	}

	if val := os.Getenv(info.modelEnv); val != "" {
		return val, nil
	}
	return info.defaultModel, nil
}

// SupportedProviders returns the list of supported provider names.
func SupportedProviders() []string {
	result := make([]string, 0, len(providers))
	for name := range providers {
		result = append(result, name)
	}
	return result
}

// Environment variable helpers with proper error handling

func getEnv(key, defaultVal string) string {
	if val := os.Getenv(key); val != "" {
		return val
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) (int, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.Atoi(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return i, nil
}

func getEnvUint32(key string, defaultVal uint32) (uint32, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	i, err := strconv.ParseUint(val, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return uint32(i), nil
}

func getEnvFloat64(key string, defaultVal float64) (float64, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	f, err := strconv.ParseFloat(val, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return f, nil
}

func getEnvDuration(key string, defaultVal time.Duration) (time.Duration, error) {
	val := os.Getenv(key)
	if val == "" {
		return defaultVal, nil
	}
	d, err := time.ParseDuration(val)
	if err != nil {
		return 0, fmt.Errorf("invalid value for %s: %q: %w", key, val, err)
	}
	return d, nil
}
