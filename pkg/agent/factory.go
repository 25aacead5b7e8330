// Package agent provides LLM client factory with middleware chain construction.
package agent

import (
	"fmt"

	"devopsteam/pkg/agent/internal/llmimpl/anthropic"
	"devopsteam/pkg/agent/internal/llmimpl/google"
	"devopsteam/pkg/agent/internal/llmimpl/groq"
	"devopsteam/pkg/agent/internal/llmimpl/ollama"
	"devopsteam/pkg/agent/llm"
	"devopsteam/pkg/agent/llmerrors"
	metricsmw "devopsteam/pkg/agent/middleware/metrics"
	"devopsteam/pkg/agent/middleware/resilience/circuit"
	"devopsteam/pkg/agent/middleware/resilience/ratelimit"
	"devopsteam/pkg/agent/middleware/resilience/retry"
	"devopsteam/pkg/agent/middleware/resilience/timeout"
	"devopsteam/pkg/config"
	"devopsteam/pkg/limiter"
	"devopsteam/pkg/logx"
	"devopsteam/pkg/metrics"
)

// ClientFactory creates LLM clients with properly configured middleware chains.
// All clients created by one factory share the circuit breaker registry, the
// rate limiter and the metrics recorder.
type ClientFactory struct {
	cfg      *config.Config
	recorder metrics.Recorder
	breakers *circuit.Registry
	limits   *limiter.Limiter
}

// NewClientFactory creates a new LLM client factory with the given configuration.
func NewClientFactory(cfg *config.Config) *ClientFactory {
	// Prometheus needs a server to be useful; without one the in-memory
	// recorder still powers end-of-run summaries
	var recorder metrics.Recorder
	if cfg.Agents.Metrics.Enabled {
		recorder = metrics.NewPrometheusRecorder()
	} else {
		recorder = metrics.NewMemoryRecorder()
	}

	breakers := circuit.NewRegistry(circuit.Config{
		FailureThreshold: cfg.Agents.Resilience.CircuitBreaker.FailureThreshold,
		SuccessThreshold: cfg.Agents.Resilience.CircuitBreaker.SuccessThreshold,
		Timeout:          cfg.Agents.Resilience.CircuitBreaker.Timeout,
	})

	return &ClientFactory{
		cfg:      cfg,
		recorder: recorder,
		breakers: breakers,
		limits:   limiter.NewLimiter(cfg.Agents.Resilience.RateLimit, cfg.Agents.Budget),
	}
}

// Recorder returns the metrics recorder shared by all clients from this factory.
func (f *ClientFactory) Recorder() metrics.Recorder {
	return f.recorder
}

// Close releases the factory's shared resources.
func (f *ClientFactory) Close() {
	f.limits.Close()
}

// CreateClient creates an LLM client for the specified agent type with the full
// middleware chain. The API key is retrieved from the secrets file or environment
// based on the model's provider.
func (f *ClientFactory) CreateClient(agentType Type) (llm.LLMClient, error) {
	return f.CreateClientWithContext(agentType, nil, nil)
}

// CreateClientWithContext creates an LLM client with run labels and logger for
// enhanced metrics.
func (f *ClientFactory) CreateClientWithContext(agentType Type, labels metrics.LabelProvider, logger *logx.Logger) (llm.LLMClient, error) {
	modelName, err := f.modelFor(agentType)
	if err != nil {
		return nil, err
	}
	return f.createClientWithMiddleware(modelName, labels, logger)
}

// modelFor maps an agent type to its configured model.
func (f *ClientFactory) modelFor(agentType Type) (string, error) {
	agents := f.cfg.Agents
	switch agentType {
	case TypePipeline:
		return agents.PipelineModel, nil
	case TypePredictor:
		return agents.PredictorModel, nil
	case TypeReview:
		return agents.ReviewModel, nil
	case TypeChat:
		return agents.ChatModel, nil
	default:
		return "", fmt.Errorf("unsupported agent type: %s", agentType)
	}
}

// createClientWithMiddleware creates a client with the full middleware chain.
func (f *ClientFactory) createClientWithMiddleware(modelName string, labels metrics.LabelProvider, logger *logx.Logger) (llm.LLMClient, error) {
	// Resolve the provider; unknown models fail fast before any network call
	provider, err := config.GetModelProvider(modelName)
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeBadPrompt, err,
			fmt.Sprintf("cannot route model %s to a provider", modelName))
	}

	// Get the credential for this provider (host URL in Ollama's case)
	apiKey, err := config.GetAPIKey(provider)
	if err != nil {
		return nil, llmerrors.NewErrorWithCause(llmerrors.ErrorTypeAuth, err,
			fmt.Sprintf("no credentials for provider %s", provider))
	}

	var rawClient llm.LLMClient
	switch provider {
	case config.ProviderGroq:
		rawClient = groq.NewClient(apiKey, modelName, config.GetGroqEndpoint())
	case config.ProviderAnthropic:
		rawClient = anthropic.NewClaudeClientWithModel(apiKey, modelName)
	case config.ProviderGoogle:
		rawClient = google.NewGeminiClientWithModel(apiKey, modelName)
	case config.ProviderOllama:
		rawClient = ollama.NewOllamaClientWithModel(apiKey, modelName)
	default:
		return nil, fmt.Errorf("unsupported provider: %s", provider)
	}

	retryPolicy := retry.NewPolicy(retry.Config{
		MaxAttempts:   f.cfg.Agents.Resilience.Retry.MaxAttempts,
		InitialDelay:  f.cfg.Agents.Resilience.Retry.InitialDelay,
		MaxDelay:      f.cfg.Agents.Resilience.Retry.MaxDelay,
		BackoffFactor: f.cfg.Agents.Resilience.Retry.BackoffFactor,
		Jitter:        f.cfg.Agents.Resilience.Retry.Jitter,
	}, nil) // Use default classifier

	// Build the middleware chain in the correct order:
	// Metrics -> Retry -> CircuitBreaker -> RateLimit -> Timeout -> RawClient
	client := llm.Chain(rawClient,
		metricsmw.Middleware(f.recorder, nil, labels, logger),
		retry.Middleware(retryPolicy),
		circuit.Middleware(f.breakers.For(provider)),
		ratelimit.Middleware(f.limits, nil, f.recorder),
		timeout.Middleware(f.cfg.Agents.Resilience.Timeout),
	)

	return client, nil
}
