package agent

import (
	"errors"
	"strings"
	"testing"
	"time"

	"devopsteam/pkg/agent/llmerrors"
	"devopsteam/pkg/config"
	"devopsteam/pkg/metrics"
)

func testConfig(metricsEnabled bool) *config.Config {
	return &config.Config{
		Agents: &config.AgentsConfig{
			PipelineModel:  config.ModelLlama38B,
			PredictorModel: config.ModelLlama38B,
			ReviewModel:    config.ModelLlama38B,
			ChatModel:      config.ModelLlama38B,
			Metrics: config.MetricsConfig{
				Enabled: metricsEnabled,
			},
			Resilience: config.ResilienceConfig{
				CircuitBreaker: config.CircuitBreakerConfig{
					FailureThreshold: 5,
					SuccessThreshold: 3,
					Timeout:          30 * time.Second,
				},
				Retry: config.RetryConfig{
					MaxAttempts:   3,
					InitialDelay:  100 * time.Millisecond,
					MaxDelay:      10 * time.Second,
					BackoffFactor: 2.0,
					Jitter:        true,
				},
				RateLimit: config.RateLimitConfig{
					Groq:      config.ProviderDefaults[config.ProviderGroq],
					Anthropic: config.ProviderDefaults[config.ProviderAnthropic],
					Google:    config.ProviderDefaults[config.ProviderGoogle],
					Ollama:    config.ProviderDefaults[config.ProviderOllama],
				},
				Timeout: 2 * time.Minute,
			},
			Budget: config.BudgetConfig{
				DailyUSD: config.DefaultDailyBudgetUSD,
			},
		},
	}
}

// The Prometheus recorder registers in the default registry, so only this
// test may create a metrics-enabled factory in this package.
func TestRecorderSelection(t *testing.T) {
	disabled := NewClientFactory(testConfig(false))
	defer disabled.Close()
	if _, ok := disabled.Recorder().(*metrics.MemoryRecorder); !ok {
		t.Errorf("disabled metrics: got %T, want *metrics.MemoryRecorder", disabled.Recorder())
	}

	enabled := NewClientFactory(testConfig(true))
	defer enabled.Close()
	if _, ok := enabled.Recorder().(*metrics.PrometheusRecorder); !ok {
		t.Errorf("enabled metrics: got %T, want *metrics.PrometheusRecorder", enabled.Recorder())
	}
}

func TestCreateClientResolvesModel(t *testing.T) {
	t.Setenv(config.EnvGroqAPIKey, "test-key")

	factory := NewClientFactory(testConfig(false))
	defer factory.Close()

	client, err := factory.CreateClient(TypePredictor)
	if err != nil {
		t.Fatalf("CreateClient() error = %v", err)
	}
	if got := client.GetModelName(); got != config.ModelLlama38B {
		t.Errorf("GetModelName() = %q, want %q", got, config.ModelLlama38B)
	}
}

func TestCreateClientUnknownModel(t *testing.T) {
	cfg := testConfig(false)
	cfg.Agents.PipelineModel = "mystery-model-9000"

	factory := NewClientFactory(cfg)
	defer factory.Close()

	_, err := factory.CreateClient(TypePipeline)
	if err == nil {
		t.Fatal("expected error for unknown model, got nil")
	}

	var llmErr *llmerrors.Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *llmerrors.Error, got %T: %v", err, err)
	}
	if llmErr.Type != llmerrors.ErrorTypeBadPrompt {
		t.Errorf("error type = %s, want %s", llmErr.Type, llmerrors.ErrorTypeBadPrompt)
	}
}

func TestCreateClientMissingAPIKey(t *testing.T) {
	t.Setenv(config.EnvAnthropicAPIKey, "")

	cfg := testConfig(false)
	cfg.Agents.ReviewModel = config.ModelClaude4

	factory := NewClientFactory(cfg)
	defer factory.Close()

	_, err := factory.CreateClient(TypeReview)
	if err == nil {
		t.Fatal("expected error for missing API key, got nil")
	}

	var llmErr *llmerrors.Error
	if !errors.As(err, &llmErr) {
		t.Fatalf("expected *llmerrors.Error, got %T: %v", err, err)
	}
	if llmErr.Type != llmerrors.ErrorTypeAuth {
		t.Errorf("error type = %s, want %s", llmErr.Type, llmerrors.ErrorTypeAuth)
	}
}

func TestCreateClientUnsupportedAgentType(t *testing.T) {
	factory := NewClientFactory(testConfig(false))
	defer factory.Close()

	_, err := factory.CreateClient(Type("janitor"))
	if err == nil {
		t.Fatal("expected error for unsupported agent type, got nil")
	}
	if !strings.Contains(err.Error(), "unsupported agent type") {
		t.Errorf("error = %q, want mention of unsupported agent type", err)
	}
}
