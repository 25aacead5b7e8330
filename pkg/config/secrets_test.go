package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestEncryptDecryptRoundTrip(t *testing.T) {
	dir := t.TempDir()

	secrets := map[string]string{
		EnvGroqAPIKey:  "gsk_test_key_123",
		EnvGitHubToken: "ghp_test_token",
	}

	if err := EncryptSecretsFile(dir, "correct horse battery staple", secrets); err != nil {
		t.Fatalf("EncryptSecretsFile failed: %v", err)
	}

	if !SecretsFileExists(dir) {
		t.Fatal("SecretsFileExists should report true after encryption")
	}

	decrypted, err := DecryptSecretsFile(dir, "correct horse battery staple")
	if err != nil {
		t.Fatalf("DecryptSecretsFile failed: %v", err)
	}

	if decrypted[EnvGroqAPIKey] != "gsk_test_key_123" {
		t.Errorf("decrypted GROQ_API_KEY = %q", decrypted[EnvGroqAPIKey])
	}
	if decrypted[EnvGitHubToken] != "ghp_test_token" {
		t.Errorf("decrypted GITHUB_TOKEN = %q", decrypted[EnvGitHubToken])
	}
}

func TestDecryptWrongPassword(t *testing.T) {
	dir := t.TempDir()

	if err := EncryptSecretsFile(dir, "right-password", map[string]string{"K": "v"}); err != nil {
		t.Fatalf("EncryptSecretsFile failed: %v", err)
	}

	_, err := DecryptSecretsFile(dir, "wrong-password")
	if err == nil {
		t.Fatal("expected decryption to fail with wrong password")
	}
	if !strings.Contains(err.Error(), "wrong password or corrupted file") {
		t.Errorf("unexpected error message: %v", err)
	}
}

func TestSecretsFilePermissions(t *testing.T) {
	dir := t.TempDir()

	if err := EncryptSecretsFile(dir, "pw", map[string]string{"K": "v"}); err != nil {
		t.Fatalf("EncryptSecretsFile failed: %v", err)
	}

	path := filepath.Join(dir, ProjectConfigDir, secretsFileName)
	info, err := os.Stat(path)
	if err != nil {
		t.Fatal(err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("secrets file permissions = %04o, want 0600", info.Mode().Perm())
	}
}

func TestDecryptCorruptedFile(t *testing.T) {
	dir := t.TempDir()

	devteamDir := filepath.Join(dir, ProjectConfigDir)
	if err := os.MkdirAll(devteamDir, 0755); err != nil {
		t.Fatal(err)
	}
	// Too small to contain salt + nonce + GCM tag
	if err := os.WriteFile(filepath.Join(devteamDir, secretsFileName), []byte("short"), 0600); err != nil {
		t.Fatal(err)
	}

	_, err := DecryptSecretsFile(dir, "pw")
	if err == nil {
		t.Error("expected error for corrupted secrets file")
	}
}

func TestGetSecretPrecedence(t *testing.T) {
	defer SetDecryptedSecrets(nil)

	t.Setenv("TEST_SECRET", "from-env")

	// Environment fallback when no secrets file loaded
	SetDecryptedSecrets(nil)
	value, err := GetSecret("TEST_SECRET")
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if value != "from-env" {
		t.Errorf("GetSecret = %q, want from-env", value)
	}

	// Secrets file wins over environment
	SetDecryptedSecrets(map[string]string{"TEST_SECRET": "from-file"})
	value, err = GetSecret("TEST_SECRET")
	if err != nil {
		t.Fatalf("GetSecret failed: %v", err)
	}
	if value != "from-file" {
		t.Errorf("GetSecret = %q, want from-file", value)
	}

	// Missing everywhere is an error
	SetDecryptedSecrets(nil)
	if _, err := GetSecret("DEFINITELY_NOT_SET_ANYWHERE"); err == nil {
		t.Error("expected error for missing secret")
	}
}

func TestSetSecretAndSave(t *testing.T) {
	defer SetDecryptedSecrets(nil)
	dir := t.TempDir()

	SetDecryptedSecrets(nil)
	SetSecret(EnvGroqAPIKey, "gsk_abc")
	SetSecret(EnvGHToken, "ghp_xyz")

	names := GetDecryptedSecretNames()
	if len(names) != 2 {
		t.Fatalf("expected 2 secret names, got %d", len(names))
	}

	if err := SaveSecretsToFile(dir, "pw"); err != nil {
		t.Fatalf("SaveSecretsToFile failed: %v", err)
	}

	decrypted, err := DecryptSecretsFile(dir, "pw")
	if err != nil {
		t.Fatalf("DecryptSecretsFile failed: %v", err)
	}
	if decrypted[EnvGroqAPIKey] != "gsk_abc" || decrypted[EnvGHToken] != "ghp_xyz" {
		t.Errorf("round-tripped secrets = %v", decrypted)
	}
}
