// Package config manages the per-project configuration file and credentials.
//
// Project settings (agent models, workflow, docker, review, github) live in
// .devteam/config.json. State belongs in the database, never here: run
// history, build status, and timestamps have no place in the config file.
//
// The config is a process-wide singleton: LoadConfig fills it once at
// startup, validating before use, and GetConfig hands out copies so callers
// cannot mutate the shared instance. Schema changes must bump SchemaVersion.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"devopsteam/pkg/logx"
)

// Global config instance with mutex protection.
// projectDir is set once during LoadConfig and never changes - it defines where all
// devteam files are stored relative to the project root.
//
//nolint:gochecknoglobals // Intentional singleton pattern for config management
var (
	config     *Config
	projectDir string       // Immutable after LoadConfig - set once at startup
	logger     *logx.Logger // Package logger for config operations
	mu         sync.RWMutex
)

// getLogger returns the config logger, initializing it if needed.
func getLogger() *logx.Logger {
	if logger == nil {
		logger = logx.NewLogger("config")
	}
	return logger
}

// LogInfo logs an info message using the config logger.
// This is exposed for other packages (like main) to use consistent logging.
func LogInfo(format string, args ...interface{}) {
	getLogger().Info(format, args...)
}

// ModelInfo contains static information about a known LLM model.
// This data is hardcoded in the application, not user-configurable.
type ModelInfo struct {
	Provider         string  // API provider (groq, anthropic, google, ollama)
	InputCPM         float64 // Cost per million input tokens (USD)
	OutputCPM        float64 // Cost per million output tokens (USD)
	MaxContextTokens int     // Maximum context window size in tokens
	MaxOutputTokens  int     // Maximum output tokens per request
}

// KnownModels registry contains pricing and provider information for common models.
// This is optional - unknown models will be inferred via ProviderPatterns.
//
//nolint:gochecknoglobals // Intentional global for static model registry
var KnownModels = map[string]ModelInfo{
	// Groq-hosted open models
	"llama3-8b-8192": {
		Provider:         ProviderGroq,
		InputCPM:         0.05,
		OutputCPM:        0.08,
		MaxContextTokens: 8192,
		MaxOutputTokens:  8192,
	},
	"llama3-70b-8192": {
		Provider:         ProviderGroq,
		InputCPM:         0.59,
		OutputCPM:        0.79,
		MaxContextTokens: 8192,
		MaxOutputTokens:  8192,
	},
	"llama-3.1-8b-instant": {
		Provider:         ProviderGroq,
		InputCPM:         0.05,
		OutputCPM:        0.08,
		MaxContextTokens: 131072,
		MaxOutputTokens:  8192,
	},
	"llama-3.3-70b-versatile": {
		Provider:         ProviderGroq,
		InputCPM:         0.59,
		OutputCPM:        0.79,
		MaxContextTokens: 131072,
		MaxOutputTokens:  32768,
	},
	"mixtral-8x7b-32768": {
		Provider:         ProviderGroq,
		InputCPM:         0.24,
		OutputCPM:        0.24,
		MaxContextTokens: 32768,
		MaxOutputTokens:  8192,
	},
	"gemma2-9b-it": {
		Provider:         ProviderGroq,
		InputCPM:         0.20,
		OutputCPM:        0.20,
		MaxContextTokens: 8192,
		MaxOutputTokens:  8192,
	},

	// Claude models (Anthropic)
	"claude-sonnet-4-20250514": {
		Provider:         ProviderAnthropic,
		InputCPM:         3.0,
		OutputCPM:        15.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},
	"claude-3-5-haiku-20241022": {
		Provider:         ProviderAnthropic,
		InputCPM:         0.8,
		OutputCPM:        4.0,
		MaxContextTokens: 200000,
		MaxOutputTokens:  8192,
	},

	// Google Gemini models
	"gemini-2.0-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.10,
		OutputCPM:        0.40,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  8192,
	},
	"gemini-2.5-flash": {
		Provider:         ProviderGoogle,
		InputCPM:         0.30,
		OutputCPM:        2.50,
		MaxContextTokens: 1048576,
		MaxOutputTokens:  65536,
	},
}

// ProviderPattern represents a pattern for inferring provider from model name.
type ProviderPattern struct {
	Prefix   string
	Provider string
}

// ProviderPatterns defines rules for inferring providers from unknown model names.
// Allows using new models without code changes.
//
//nolint:gochecknoglobals // Intentional global for inference rules
var ProviderPatterns = []ProviderPattern{
	{"claude", ProviderAnthropic},
	{"gemini", ProviderGoogle},
	// Groq-hosted open model families
	{"llama", ProviderGroq},
	{"mixtral", ProviderGroq},
	{"gemma", ProviderGroq},
	{"deepseek-r1-distill", ProviderGroq},
	// Ollama models - common local model prefixes
	{"phi", ProviderOllama},
	{"qwen", ProviderOllama},
	{"mistral", ProviderOllama},
	{"codellama", ProviderOllama},
	{"ollama:", ProviderOllama}, // Explicit prefix like "ollama:phi4"
}

// GetModelProvider returns the API provider for a given model.
// First checks KnownModels, then tries pattern matching.
// Returns error if model cannot be mapped to a provider (FATAL).
func GetModelProvider(modelName string) (string, error) {
	// Check known models first
	if info, exists := KnownModels[modelName]; exists {
		return info.Provider, nil
	}

	// Try pattern matching for unknown models
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			return ProviderPatterns[i].Provider, nil
		}
	}

	// FATAL: Cannot proceed without valid provider
	return "", fmt.Errorf("unknown model '%s': no known provider mapping or pattern match - cannot determine API provider", modelName)
}

// GetModelInfo returns the ModelInfo for a given model name.
// Returns the info and true if found in KnownModels, or a default info with inferred provider and false if not found.
func GetModelInfo(modelName string) (ModelInfo, bool) {
	// Check known models first
	if info, exists := KnownModels[modelName]; exists {
		return info, true
	}

	// Try to infer provider for unknown models
	provider := ""
	for i := range ProviderPatterns {
		if strings.HasPrefix(modelName, ProviderPatterns[i].Prefix) {
			provider = ProviderPatterns[i].Provider
			break
		}
	}

	// Return default info with inferred provider (or empty if no pattern matched)
	// Use conservative defaults for unknown models
	return ModelInfo{
		Provider:         provider,
		InputCPM:         0.0,  // No cost tracking for unknown models
		OutputCPM:        0.0,  // No cost tracking for unknown models
		MaxContextTokens: 8192, // Conservative default
		MaxOutputTokens:  4096, // Conservative default
	}, false
}

// CircuitBreakerConfig defines configuration for circuit breaker behavior.
type CircuitBreakerConfig struct {
	FailureThreshold int           `json:"failure_threshold"` // Number of failures before opening circuit
	SuccessThreshold int           `json:"success_threshold"` // Number of successes to close circuit from half-open
	Timeout          time.Duration `json:"timeout"`           // Time to wait before trying half-open
}

// RetryConfig defines configuration for retry behavior.
type RetryConfig struct {
	MaxAttempts   int           `json:"max_attempts"`   // Maximum number of attempts (including initial)
	InitialDelay  time.Duration `json:"initial_delay"`  // Initial delay before first retry
	MaxDelay      time.Duration `json:"max_delay"`      // Maximum delay between retries
	BackoffFactor float64       `json:"backoff_factor"` // Multiplier for exponential backoff
	Jitter        bool          `json:"jitter"`         // Add random jitter to prevent thundering herd
}

// ProviderLimits defines rate limiting configuration for a specific API provider.
// These are user-configurable values that can be overridden in config.json.
type ProviderLimits struct {
	TokensPerMinute int `json:"tokens_per_minute"` // Rate limit in tokens per minute
	MaxConcurrency  int `json:"max_concurrency"`   // Maximum concurrent requests
}

// RateLimitConfig defines rate limiting configuration grouped by API provider.
type RateLimitConfig struct {
	Groq      ProviderLimits `json:"groq"`      // Rate limits for Groq-hosted models
	Anthropic ProviderLimits `json:"anthropic"` // Rate limits for Anthropic models
	Google    ProviderLimits `json:"google"`    // Rate limits for Google models
	Ollama    ProviderLimits `json:"ollama"`    // Rate limits for Ollama models (local inference)
}

// ProviderDefaults defines default rate limits for each provider.
// These are used when rate limits are not specified in config.json.
//
//nolint:gochecknoglobals // Intentional global for provider defaults
var ProviderDefaults = map[string]ProviderLimits{
	ProviderGroq: {
		TokensPerMinute: 30000, // Groq on-demand tier for llama3-8b
		MaxConcurrency:  5,
	},
	ProviderAnthropic: {
		TokensPerMinute: 300000,
		MaxConcurrency:  5,
	},
	ProviderGoogle: {
		TokensPerMinute: 1200000,
		MaxConcurrency:  5,
	},
	ProviderOllama: {
		TokensPerMinute: 1000000, // Effectively unlimited for local inference
		MaxConcurrency:  2,       // Limited by GPU memory
	},
}

// BudgetConfig caps LLM spend per day across all agents.
type BudgetConfig struct {
	DailyUSD float64 `json:"daily_usd"` // Daily spend limit in USD (0 disables the cap)
}

// ResilienceConfig bundles all resilience-related middleware configuration.
type ResilienceConfig struct {
	CircuitBreaker CircuitBreakerConfig `json:"circuit_breaker"` // Circuit breaker settings
	Retry          RetryConfig          `json:"retry"`           // Retry policy settings
	RateLimit      RateLimitConfig      `json:"rate_limit"`      // Rate limiting settings
	Timeout        time.Duration        `json:"timeout"`         // Per-request timeout
}

// MetricsConfig defines configuration for metrics collection.
type MetricsConfig struct {
	Enabled       bool   `json:"enabled"`        // Whether metrics collection is enabled
	Namespace     string `json:"namespace"`      // Metrics namespace for grouping
	PrometheusURL string `json:"prometheus_url"` // Prometheus server URL for querying metrics
}

// AgentsConfig defines which models each agent uses plus shared middleware settings.
type AgentsConfig struct {
	PipelineModel  string           `json:"pipeline_model"`  // Model for workflow/Dockerfile refinement
	PredictorModel string           `json:"predictor_model"` // Model for build failure prediction
	ReviewModel    string           `json:"review_model"`    // Model for code review
	ChatModel      string           `json:"chat_model"`      // Model for PR chat replies
	Metrics        MetricsConfig    `json:"metrics"`         // Metrics collection configuration
	Resilience     ResilienceConfig `json:"resilience"`      // Resilience middleware configuration
	Budget         BudgetConfig     `json:"budget"`          // Daily spend cap
}

// All constants bundled together for easy maintenance.
const (
	// Workflow generation defaults.
	DefaultWorkflowName  = "CI Pipeline"
	DefaultWorkflowFile  = "ci.yml"
	DefaultPythonVersion = "3.13.0"
	DefaultTargetBranch  = "main"

	// Dockerfile generation defaults (static nginx site).
	DefaultBaseImage      = "nginx:alpine"
	DefaultHTMLDir        = "./html"
	DefaultAppDir         = "/usr/share/nginx/html"
	DefaultExposePort     = 80
	DefaultImageTag       = "myapp:latest"
	DefaultDockerfilePath = "Dockerfile"

	// Review defaults.
	DefaultMaxDiffTokens = 6000 // Per-file patch clamp before sending to the review model

	// Budget defaults.
	DefaultDailyBudgetUSD = 10.0

	// Model name constants.
	ModelLlama38B    = "llama3-8b-8192"
	ModelLlama3370B  = "llama-3.3-70b-versatile"
	ModelLlama318B   = "llama-3.1-8b-instant"
	ModelMixtral8x7B = "mixtral-8x7b-32768"
	ModelGemma29B    = "gemma2-9b-it"
	ModelClaude4     = "claude-sonnet-4-20250514"
	ModelGeminiFlash = "gemini-2.0-flash"

	// Every agent defaults to the same small Groq model.
	DefaultPipelineModel  = ModelLlama38B
	DefaultPredictorModel = ModelLlama38B
	DefaultReviewModel    = ModelLlama38B
	DefaultChatModel      = ModelLlama38B

	// Project config constants.
	ProjectConfigFilename = "config.json"
	ProjectConfigDir      = ".devteam"
	DatabaseFilename      = "devteam.db"
	SchemaVersion         = "1.0"

	// Provider constants for middleware rate limiting.
	ProviderGroq      = "groq"
	ProviderAnthropic = "anthropic"
	ProviderGoogle    = "google"
	ProviderOllama    = "ollama"

	// API key environment variable names.
	EnvGroqAPIKey      = "GROQ_API_KEY"
	EnvGroqEndpoint    = "GROQ_API_ENDPOINT"
	EnvAnthropicAPIKey = "ANTHROPIC_API_KEY"
	EnvGoogleAPIKey    = "GOOGLE_GENAI_API_KEY"
	EnvOllamaHost      = "OLLAMA_HOST"

	// GitHub token environment variable names. GH_TOKEN matches the secret name
	// the generated workflow maps into its own environment.
	EnvGitHubToken = "GITHUB_TOKEN"
	EnvGHToken     = "GH_TOKEN"

	// DefaultGroqEndpoint is the OpenAI-compatible Groq API base URL.
	DefaultGroqEndpoint = "https://api.groq.com/openai/v1"
)

// ProjectInfo contains basic project metadata.
type ProjectInfo struct {
	Name string `json:"name"` // Project name (defaults to the project directory basename)
}

// WorkflowConfig defines GitHub Actions workflow generation settings.
type WorkflowConfig struct {
	Name          string `json:"name"`           // Workflow name (default: "CI Pipeline")
	File          string `json:"file"`           // Workflow filename under .github/workflows (default: ci.yml)
	PythonVersion string `json:"python_version"` // Python version for the setup-python step
	TargetBranch  string `json:"target_branch"`  // Branch that triggers the workflow (default: main)
	RunTests      bool   `json:"run_tests"`      // Append the container smoke-test steps
}

// DockerConfig defines Dockerfile generation and build status settings.
type DockerConfig struct {
	BaseImage  string `json:"base_image"` // Base image for the generated Dockerfile (default: nginx:alpine)
	HTMLDir    string `json:"html_dir"`   // Host directory copied into the image (default: ./html)
	AppDir     string `json:"app_dir"`    // In-image directory the content is copied to
	Port       int    `json:"port"`       // Port exposed by the generated Dockerfile (default: 80)
	ImageTag   string `json:"image_tag"`  // Image tag for builds and status checks (default: myapp:latest)
	Dockerfile string `json:"dockerfile"` // Dockerfile path relative to the project dir
}

// ReviewConfig defines code review agent settings.
type ReviewConfig struct {
	Extensions    []string `json:"extensions"`      // File extensions eligible for review (default: [".py"])
	MaxDiffTokens int      `json:"max_diff_tokens"` // Per-file patch token clamp
}

// GitHubConfig defines GitHub repository settings.
type GitHubConfig struct {
	Repo string `json:"repo"` // "owner/repo" override; empty means resolve from the local git remote
}

// Config is the project configuration persisted to .devteam/config.json.
type Config struct {
	SchemaVersion string `json:"schema_version"` // MUST increment for breaking changes

	Project  *ProjectInfo    `json:"project"`  // Basic project metadata
	Agents   *AgentsConfig   `json:"agents"`   // Which models to use and middleware settings
	Workflow *WorkflowConfig `json:"workflow"` // Workflow generation settings
	Docker   *DockerConfig   `json:"docker"`   // Dockerfile generation and build settings
	Review   *ReviewConfig   `json:"review"`   // Code review settings
	GitHub   *GitHubConfig   `json:"github"`   // Repository settings

	// === RUNTIME-ONLY STATE (NOT PERSISTED) ===
	SessionID string `json:"-"` // Current session ID (generated at startup)
}

// GetProjectDevteamDir returns the path to the .devteam directory containing all devteam files.
// Must call LoadConfig first to initialize projectDir.
func GetProjectDevteamDir() (string, error) {
	mu.RLock()
	defer mu.RUnlock()
	if projectDir == "" {
		return "", fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return filepath.Join(projectDir, ProjectConfigDir), nil
}

// GetProjectDir returns the current project directory.
// Must call LoadConfig first to initialize projectDir.
func GetProjectDir() string {
	mu.RLock()
	defer mu.RUnlock()
	return projectDir
}

// GetConfig returns the current global config BY VALUE (copy, not reference).
// This prevents external mutation.
// Must call LoadConfig first to initialize the global config.
func GetConfig() (Config, error) {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return Config{}, fmt.Errorf("config not initialized - call LoadConfig first")
	}
	// Return by value (copy) to prevent external mutation
	return *config, nil
}

// SetConfigForTesting sets the global config for testing purposes.
// Pass nil to reset. This bypasses normal initialization and should only be used in tests.
func SetConfigForTesting(cfg *Config) {
	mu.Lock()
	defer mu.Unlock()
	config = cfg
	if cfg == nil {
		projectDir = ""
	}
}

// SetProjectDirForTesting sets the project directory for testing purposes.
func SetProjectDirForTesting(dir string) {
	mu.Lock()
	defer mu.Unlock()
	projectDir = dir
}

// LoadConfig fills the singleton from <projectDir>/.devteam/config.json,
// typically once at startup. A missing file is created with defaults; an
// existing file is validated and back-filled with defaults for absent
// fields; an unparseable file is a hard error so user edits never get
// silently overwritten.
func LoadConfig(inputProjectDir string) error {
	mu.Lock()
	defer mu.Unlock()

	// Store project directory - immutable after this point
	projectDir = inputProjectDir
	configPath := filepath.Join(projectDir, ProjectConfigDir, ProjectConfigFilename)

	// Check if config file exists
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		// Missing file - create new config with defaults
		getLogger().Info("📝 Config file not found, creating new config at %s", configPath)
		config = createDefaultConfig(projectDir)

		if err := validateConfig(config); err != nil {
			return fmt.Errorf("default config validation failed: %w", err)
		}

		if err := saveConfigLocked(); err != nil {
			return fmt.Errorf("failed to save initial config: %w", err)
		}
		getLogger().Info("✅ New config file created and validated")
		return nil
	}

	// File exists - try to load it
	getLogger().Info("📝 Loading config from %s", configPath)
	loadedConfig, err := loadConfigFromFile(configPath)
	if err != nil {
		return fmt.Errorf("fatal: config file exists but cannot be parsed (to avoid overwriting your changes): %w", err)
	}

	// Apply defaults for missing fields
	applyDefaults(loadedConfig, projectDir)
	if err := validateConfig(loadedConfig); err != nil {
		return fmt.Errorf("config validation failed: %w", err)
	}

	config = loadedConfig

	// Save config back to disk with applied defaults (ensures old configs get updated)
	if err := saveConfigLocked(); err != nil {
		return fmt.Errorf("failed to save config with applied defaults: %w", err)
	}

	getLogger().Info("✅ Config loaded and validated successfully")
	return nil
}

// loadConfigFromFile loads config from the given path.
func loadConfigFromFile(configPath string) (*Config, error) {
	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file %s: %w", configPath, err)
	}

	var config Config
	if err := json.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("failed to parse config JSON %s: %w", configPath, err)
	}

	return &config, nil
}

// writeConfigFile marshals cfg to <dir>/.devteam/config.json, creating the
// directory when needed.
func writeConfigFile(cfg *Config, dir string) error {
	configPath := filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename)

	if err := os.MkdirAll(filepath.Dir(configPath), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(configPath, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveConfig saves config to <projectDir>/.devteam/config.json.
func SaveConfig(config *Config, projectDir string) error {
	return writeConfigFile(config, projectDir)
}

// createDefaultConfig creates a new config with sensible defaults.
func createDefaultConfig(projectDir string) *Config {
	return &Config{
		SchemaVersion: SchemaVersion,

		Project: &ProjectInfo{
			Name: filepath.Base(projectDir),
		},
		Agents: &AgentsConfig{
			PipelineModel:  DefaultPipelineModel,
			PredictorModel: DefaultPredictorModel,
			ReviewModel:    DefaultReviewModel,
			ChatModel:      DefaultChatModel,
			Metrics: MetricsConfig{
				Enabled:       true, // Enable metrics by default for cost visibility
				Namespace:     "devteam",
				PrometheusURL: "", // Only needed for -cost readback
			},
			Resilience: ResilienceConfig{
				CircuitBreaker: CircuitBreakerConfig{
					FailureThreshold: 5,
					SuccessThreshold: 3,
					Timeout:          30 * time.Second,
				},
				Retry: RetryConfig{
					MaxAttempts:   3,
					InitialDelay:  100 * time.Millisecond,
					MaxDelay:      10 * time.Second,
					BackoffFactor: 2.0,
					Jitter:        true,
				},
				RateLimit: RateLimitConfig{
					Groq:      ProviderDefaults[ProviderGroq],
					Anthropic: ProviderDefaults[ProviderAnthropic],
					Google:    ProviderDefaults[ProviderGoogle],
					Ollama:    ProviderDefaults[ProviderOllama],
				},
				Timeout: 2 * time.Minute,
			},
			Budget: BudgetConfig{
				DailyUSD: DefaultDailyBudgetUSD,
			},
		},
		Workflow: &WorkflowConfig{
			Name:          DefaultWorkflowName,
			File:          DefaultWorkflowFile,
			PythonVersion: DefaultPythonVersion,
			TargetBranch:  DefaultTargetBranch,
			RunTests:      true,
		},
		Docker: &DockerConfig{
			BaseImage:  DefaultBaseImage,
			HTMLDir:    DefaultHTMLDir,
			AppDir:     DefaultAppDir,
			Port:       DefaultExposePort,
			ImageTag:   DefaultImageTag,
			Dockerfile: DefaultDockerfilePath,
		},
		Review: &ReviewConfig{
			Extensions:    []string{".py"},
			MaxDiffTokens: DefaultMaxDiffTokens,
		},
		GitHub: &GitHubConfig{
			Repo: "", // Resolved from the local git remote when empty
		},
	}
}

// saveConfigLocked writes the singleton to disk. Caller holds mu.
func saveConfigLocked() error {
	if projectDir == "" {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}
	return writeConfigFile(config, projectDir)
}

// applyDefaults sets default values for missing configuration.
func applyDefaults(config *Config, projectDir string) {
	if config.SchemaVersion == "" {
		config.SchemaVersion = SchemaVersion
	}

	if config.Project == nil {
		config.Project = &ProjectInfo{}
	}
	if config.Project.Name == "" {
		config.Project.Name = filepath.Base(projectDir)
	}

	if config.Agents == nil {
		config.Agents = &AgentsConfig{}
	}
	agents := config.Agents
	if agents.PipelineModel == "" {
		agents.PipelineModel = DefaultPipelineModel
	}
	if agents.PredictorModel == "" {
		agents.PredictorModel = DefaultPredictorModel
	}
	if agents.ReviewModel == "" {
		agents.ReviewModel = DefaultReviewModel
	}
	if agents.ChatModel == "" {
		agents.ChatModel = DefaultChatModel
	}
	if agents.Metrics.Namespace == "" {
		agents.Metrics.Namespace = "devteam"
	}

	resilience := &agents.Resilience
	if resilience.CircuitBreaker.FailureThreshold == 0 {
		resilience.CircuitBreaker.FailureThreshold = 5
	}
	if resilience.CircuitBreaker.SuccessThreshold == 0 {
		resilience.CircuitBreaker.SuccessThreshold = 3
	}
	if resilience.CircuitBreaker.Timeout == 0 {
		resilience.CircuitBreaker.Timeout = 30 * time.Second
	}
	if resilience.Retry.MaxAttempts == 0 {
		resilience.Retry.MaxAttempts = 3
	}
	if resilience.Retry.InitialDelay == 0 {
		resilience.Retry.InitialDelay = 100 * time.Millisecond
	}
	if resilience.Retry.MaxDelay == 0 {
		resilience.Retry.MaxDelay = 10 * time.Second
	}
	if resilience.Retry.BackoffFactor == 0 {
		resilience.Retry.BackoffFactor = 2.0
		resilience.Retry.Jitter = true
	}
	if resilience.RateLimit.Groq.TokensPerMinute == 0 {
		resilience.RateLimit.Groq = ProviderDefaults[ProviderGroq]
	}
	if resilience.RateLimit.Anthropic.TokensPerMinute == 0 {
		resilience.RateLimit.Anthropic = ProviderDefaults[ProviderAnthropic]
	}
	if resilience.RateLimit.Google.TokensPerMinute == 0 {
		resilience.RateLimit.Google = ProviderDefaults[ProviderGoogle]
	}
	if resilience.RateLimit.Ollama.TokensPerMinute == 0 {
		resilience.RateLimit.Ollama = ProviderDefaults[ProviderOllama]
	}
	if resilience.Timeout == 0 {
		resilience.Timeout = 2 * time.Minute
	}

	if config.Workflow == nil {
		config.Workflow = &WorkflowConfig{}
	}
	if config.Workflow.Name == "" {
		config.Workflow.Name = DefaultWorkflowName
	}
	if config.Workflow.PythonVersion == "" {
		config.Workflow.PythonVersion = DefaultPythonVersion
	}
	if config.Workflow.TargetBranch == "" {
		config.Workflow.TargetBranch = DefaultTargetBranch
	}
	// Workflow.File stays empty when unset - the pipeline agent derives it from Name

	if config.Docker == nil {
		config.Docker = &DockerConfig{}
	}
	if config.Docker.BaseImage == "" {
		config.Docker.BaseImage = DefaultBaseImage
	}
	if config.Docker.HTMLDir == "" {
		config.Docker.HTMLDir = DefaultHTMLDir
	}
	if config.Docker.AppDir == "" {
		config.Docker.AppDir = DefaultAppDir
	}
	if config.Docker.Port == 0 {
		config.Docker.Port = DefaultExposePort
	}
	if config.Docker.ImageTag == "" {
		config.Docker.ImageTag = DefaultImageTag
	}
	if config.Docker.Dockerfile == "" {
		config.Docker.Dockerfile = DefaultDockerfilePath
	}

	if config.Review == nil {
		config.Review = &ReviewConfig{}
	}
	if len(config.Review.Extensions) == 0 {
		config.Review.Extensions = []string{".py"}
	}
	if config.Review.MaxDiffTokens == 0 {
		config.Review.MaxDiffTokens = DefaultMaxDiffTokens
	}

	if config.GitHub == nil {
		config.GitHub = &GitHubConfig{}
	}
}

// validateConfig rejects configurations that cannot work at runtime.
func validateConfig(config *Config) error {
	agents := config.Agents
	if agents == nil {
		return fmt.Errorf("agents section is required")
	}

	models := map[string]string{
		"pipeline_model":  agents.PipelineModel,
		"predictor_model": agents.PredictorModel,
		"review_model":    agents.ReviewModel,
		"chat_model":      agents.ChatModel,
	}
	for field, model := range models {
		if _, err := GetModelProvider(model); err != nil {
			return fmt.Errorf("%s '%s': %w", field, model, err)
		}
	}

	if agents.Budget.DailyUSD < 0 {
		return fmt.Errorf("budget daily_usd must not be negative")
	}

	if config.Workflow.Name == "" {
		return fmt.Errorf("workflow name must not be empty")
	}
	if f := config.Workflow.File; f != "" && !strings.HasSuffix(f, ".yml") && !strings.HasSuffix(f, ".yaml") {
		return fmt.Errorf("workflow file '%s' must end in .yml or .yaml", f)
	}

	if config.Docker.Port < 1 || config.Docker.Port > 65535 {
		return fmt.Errorf("docker port %d out of range", config.Docker.Port)
	}
	if !strings.Contains(config.Docker.ImageTag, ":") {
		return fmt.Errorf("docker image_tag '%s' must include a tag (e.g. myapp:latest)", config.Docker.ImageTag)
	}

	for _, ext := range config.Review.Extensions {
		if !strings.HasPrefix(ext, ".") {
			return fmt.Errorf("review extension '%s' must start with a dot", ext)
		}
	}

	if repo := config.GitHub.Repo; repo != "" && len(strings.Split(repo, "/")) != 2 {
		return fmt.Errorf("github repo '%s' must be in owner/repo form", repo)
	}

	return nil
}

// CalculateCost computes the USD cost of a completion using KnownModels pricing.
func CalculateCost(modelName string, promptTokens, completionTokens int) (float64, error) {
	// Try to get pricing from KnownModels
	if info, exists := KnownModels[modelName]; exists {
		inputCost := (float64(promptTokens) / 1_000_000.0) * info.InputCPM
		outputCost := (float64(completionTokens) / 1_000_000.0) * info.OutputCPM
		return inputCost + outputCost, nil
	}

	// For unknown models, return 0 cost (allows usage but no cost tracking)
	// This is intentional - we want to support new models without requiring pricing data
	return 0.0, nil
}

// GetAPIKey returns the API key for a given provider.
// Checks secrets file first, then falls back to environment variables.
// For Ollama, returns the host URL instead of an API key.
func GetAPIKey(provider string) (string, error) {
	var envVar string
	switch provider {
	case ProviderGroq:
		envVar = EnvGroqAPIKey
	case ProviderAnthropic:
		envVar = EnvAnthropicAPIKey
	case ProviderGoogle:
		envVar = EnvGoogleAPIKey
	case ProviderOllama:
		// Ollama doesn't use API keys - return host URL instead
		host := os.Getenv(EnvOllamaHost)
		if host == "" {
			host = "http://localhost:11434"
		}
		return host, nil
	default:
		return "", fmt.Errorf("unknown provider: %s", provider)
	}

	// Try to get from secrets file first, then environment variable
	key, err := GetSecret(envVar)
	if err == nil && key != "" {
		return key, nil
	}

	return "", fmt.Errorf("API key not found: %s not found in secrets file or environment variables", envVar)
}

// GetGroqEndpoint returns the Groq API base URL.
// GROQ_API_ENDPOINT (secrets file or environment) overrides the default.
func GetGroqEndpoint() string {
	if endpoint, err := GetSecret(EnvGroqEndpoint); err == nil && endpoint != "" {
		return endpoint
	}
	return DefaultGroqEndpoint
}

// GetGitHubToken returns the GitHub token.
// Checks secrets file first (GITHUB_TOKEN then GH_TOKEN), then environment variables.
func GetGitHubToken() string {
	for _, name := range []string{EnvGitHubToken, EnvGHToken} {
		if token, err := GetSecret(name); err == nil && token != "" {
			return token
		}
	}
	return ""
}

// HasGitHubToken returns true if a GitHub token is available.
func HasGitHubToken() bool {
	return GetGitHubToken() != ""
}

// GenerateSessionID generates a new session ID for the current run batch.
// Timestamp-based rather than a UUID so logs sort naturally while staying unique.
// Must be called after LoadConfig and before any database operations.
func GenerateSessionID() error {
	mu.Lock()
	defer mu.Unlock()

	if config == nil {
		return fmt.Errorf("config not initialized - call LoadConfig first")
	}

	sessionID := fmt.Sprintf("%d", time.Now().UnixNano())
	config.SessionID = sessionID

	getLogger().Info("Generated session ID: %s", sessionID)
	return nil
}

// GetSessionID returns the current session ID, or empty if not generated yet.
func GetSessionID() string {
	mu.RLock()
	defer mu.RUnlock()
	if config == nil {
		return ""
	}
	return config.SessionID
}
