package config

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
)

func TestLoadConfigCreatesDefaults(t *testing.T) {
	defer SetConfigForTesting(nil)
	dir := t.TempDir()

	if err := LoadConfig(dir); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	// Config file should have been written
	configPath := filepath.Join(dir, ProjectConfigDir, ProjectConfigFilename)
	if _, err := os.Stat(configPath); err != nil {
		t.Fatalf("config file was not created: %v", err)
	}

	cfg, err := GetConfig()
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}

	if cfg.Agents.PredictorModel != ModelLlama38B {
		t.Errorf("predictor model = %q, want %q", cfg.Agents.PredictorModel, ModelLlama38B)
	}
	if cfg.Workflow.Name != DefaultWorkflowName {
		t.Errorf("workflow name = %q, want %q", cfg.Workflow.Name, DefaultWorkflowName)
	}
	if cfg.Docker.BaseImage != DefaultBaseImage {
		t.Errorf("base image = %q, want %q", cfg.Docker.BaseImage, DefaultBaseImage)
	}
	if cfg.Docker.Port != DefaultExposePort {
		t.Errorf("port = %d, want %d", cfg.Docker.Port, DefaultExposePort)
	}
	if len(cfg.Review.Extensions) != 1 || cfg.Review.Extensions[0] != ".py" {
		t.Errorf("review extensions = %v, want [.py]", cfg.Review.Extensions)
	}
	if cfg.Agents.Resilience.Retry.MaxAttempts != 3 {
		t.Errorf("retry max attempts = %d, want 3", cfg.Agents.Resilience.Retry.MaxAttempts)
	}
	if cfg.Project.Name != filepath.Base(dir) {
		t.Errorf("project name = %q, want %q", cfg.Project.Name, filepath.Base(dir))
	}
}

func TestLoadConfigPreservesUserValues(t *testing.T) {
	defer SetConfigForTesting(nil)
	dir := t.TempDir()

	// Write a partial config; missing fields should be defaulted, set fields kept
	devteamDir := filepath.Join(dir, ProjectConfigDir)
	if err := os.MkdirAll(devteamDir, 0755); err != nil {
		t.Fatal(err)
	}
	partial := map[string]any{
		"agents": map[string]any{
			"review_model": ModelClaude4,
		},
		"docker": map[string]any{
			"image_tag": "site:v2",
		},
	}
	data, err := json.Marshal(partial)
	if err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(filepath.Join(devteamDir, ProjectConfigFilename), data, 0644); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(dir); err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	cfg, err := GetConfig()
	if err != nil {
		t.Fatalf("GetConfig failed: %v", err)
	}

	if cfg.Agents.ReviewModel != ModelClaude4 {
		t.Errorf("review model = %q, want %q", cfg.Agents.ReviewModel, ModelClaude4)
	}
	if cfg.Agents.ChatModel != DefaultChatModel {
		t.Errorf("chat model = %q, want default %q", cfg.Agents.ChatModel, DefaultChatModel)
	}
	if cfg.Docker.ImageTag != "site:v2" {
		t.Errorf("image tag = %q, want site:v2", cfg.Docker.ImageTag)
	}
	if cfg.Docker.BaseImage != DefaultBaseImage {
		t.Errorf("base image = %q, want default %q", cfg.Docker.BaseImage, DefaultBaseImage)
	}
}

func TestLoadConfigRejectsUnknownModel(t *testing.T) {
	defer SetConfigForTesting(nil)
	dir := t.TempDir()

	devteamDir := filepath.Join(dir, ProjectConfigDir)
	if err := os.MkdirAll(devteamDir, 0755); err != nil {
		t.Fatal(err)
	}
	bad := `{"agents": {"predictor_model": "frobnicator-9000"}}`
	if err := os.WriteFile(filepath.Join(devteamDir, ProjectConfigFilename), []byte(bad), 0644); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(dir); err == nil {
		t.Error("expected validation error for unmappable model")
	}
}

func TestLoadConfigRejectsUnparseableFile(t *testing.T) {
	defer SetConfigForTesting(nil)
	dir := t.TempDir()

	devteamDir := filepath.Join(dir, ProjectConfigDir)
	if err := os.MkdirAll(devteamDir, 0755); err != nil {
		t.Fatal(err)
	}
	path := filepath.Join(devteamDir, ProjectConfigFilename)
	if err := os.WriteFile(path, []byte("{not valid json"), 0644); err != nil {
		t.Fatal(err)
	}

	if err := LoadConfig(dir); err == nil {
		t.Fatal("expected error for unparseable config")
	}

	// The broken file must not have been overwritten
	content, err := os.ReadFile(path)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != "{not valid json" {
		t.Error("unparseable config file was overwritten")
	}
}

func TestGetConfigBeforeLoad(t *testing.T) {
	SetConfigForTesting(nil)

	if _, err := GetConfig(); err == nil {
		t.Error("expected error when config not initialized")
	}
}

func TestGetModelProvider(t *testing.T) {
	tests := []struct {
		model    string
		provider string
		wantErr  bool
	}{
		{"llama3-8b-8192", ProviderGroq, false},
		{"llama-3.3-70b-versatile", ProviderGroq, false},
		{"mixtral-8x7b-32768", ProviderGroq, false},
		{"gemma2-9b-it", ProviderGroq, false},
		{"claude-sonnet-4-20250514", ProviderAnthropic, false},
		{"claude-future-model", ProviderAnthropic, false}, // Pattern match
		{"gemini-2.0-flash", ProviderGoogle, false},
		{"ollama:phi4", ProviderOllama, false},
		{"qwen2.5-coder:32b", ProviderOllama, false},
		{"totally-unknown", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.model, func(t *testing.T) {
			provider, err := GetModelProvider(tt.model)
			if tt.wantErr {
				if err == nil {
					t.Errorf("expected error for %s", tt.model)
				}
				return
			}
			if err != nil {
				t.Fatalf("GetModelProvider(%s) failed: %v", tt.model, err)
			}
			if provider != tt.provider {
				t.Errorf("GetModelProvider(%s) = %s, want %s", tt.model, provider, tt.provider)
			}
		})
	}
}

func TestCalculateCost(t *testing.T) {
	// llama3-8b-8192: $0.05/M input, $0.08/M output
	cost, err := CalculateCost(ModelLlama38B, 1_000_000, 1_000_000)
	if err != nil {
		t.Fatalf("CalculateCost failed: %v", err)
	}
	want := 0.05 + 0.08
	if cost < want-0.0001 || cost > want+0.0001 {
		t.Errorf("cost = %f, want %f", cost, want)
	}

	// Unknown models cost nothing rather than erroring
	cost, err = CalculateCost("some-new-model", 1000, 1000)
	if err != nil {
		t.Fatalf("CalculateCost failed for unknown model: %v", err)
	}
	if cost != 0 {
		t.Errorf("unknown model cost = %f, want 0", cost)
	}
}

func TestGetAPIKeyOllama(t *testing.T) {
	t.Setenv(EnvOllamaHost, "")
	host, err := GetAPIKey(ProviderOllama)
	if err != nil {
		t.Fatalf("GetAPIKey(ollama) failed: %v", err)
	}
	if host != "http://localhost:11434" {
		t.Errorf("default ollama host = %q", host)
	}

	t.Setenv(EnvOllamaHost, "http://gpu-box:11434")
	host, err = GetAPIKey(ProviderOllama)
	if err != nil {
		t.Fatalf("GetAPIKey(ollama) failed: %v", err)
	}
	if host != "http://gpu-box:11434" {
		t.Errorf("ollama host = %q, want http://gpu-box:11434", host)
	}
}

func TestGetGroqEndpoint(t *testing.T) {
	defer SetDecryptedSecrets(nil)

	SetDecryptedSecrets(nil)
	t.Setenv(EnvGroqEndpoint, "")
	if got := GetGroqEndpoint(); got != DefaultGroqEndpoint {
		t.Errorf("default endpoint = %q, want %q", got, DefaultGroqEndpoint)
	}

	t.Setenv(EnvGroqEndpoint, "https://proxy.internal/v1")
	if got := GetGroqEndpoint(); got != "https://proxy.internal/v1" {
		t.Errorf("endpoint override = %q", got)
	}
}
