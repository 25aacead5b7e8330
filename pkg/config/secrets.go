package config

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"golang.org/x/crypto/scrypt"
)

// Credentials live in .devteam/secrets.json.enc, encrypted with AES-256-GCM
// under a key derived from the user's password. The file layout is
// [salt][nonce][ciphertext+tag].
const (
	secretsFileName = "secrets.json.enc"
	saltSize        = 16
	nonceSize       = 12
	gcmTagSize      = 16
	keySize         = 32

	// scrypt cost parameters (N=2^15)
	scryptN = 32768
	scryptR = 8
	scryptP = 1

	// EnvDevteamPassword lets CI decrypt the secrets file without a prompt.
	EnvDevteamPassword = "DEVTEAM_PASSWORD"
)

//nolint:gochecknoglobals // Decrypted credentials are held in memory for the process lifetime
var (
	secretsMu sync.RWMutex
	secrets   map[string]string
)

// SetDecryptedSecrets replaces the in-memory credential set, typically right
// after a successful DecryptSecretsFile at startup.
func SetDecryptedSecrets(values map[string]string) {
	secretsMu.Lock()
	defer secretsMu.Unlock()
	secrets = values
}

// SetSecret stores a single credential in memory.
func SetSecret(name, value string) {
	secretsMu.Lock()
	defer secretsMu.Unlock()
	if secrets == nil {
		secrets = make(map[string]string)
	}
	secrets[name] = value
}

// GetSecret resolves a credential: the decrypted secrets file wins, then the
// environment. Empty values never satisfy a lookup.
func GetSecret(name string) (string, error) {
	secretsMu.RLock()
	value, ok := secrets[name]
	secretsMu.RUnlock()
	if ok && value != "" {
		return value, nil
	}

	if env := os.Getenv(name); env != "" {
		return env, nil
	}
	return "", fmt.Errorf("secret %s not found in secrets file or environment", name)
}

// GetDecryptedSecretNames lists the names of in-memory credentials. Values are
// never exposed through this path; it exists for status output.
func GetDecryptedSecretNames() []string {
	secretsMu.RLock()
	defer secretsMu.RUnlock()

	names := make([]string, 0, len(secrets))
	for name := range secrets {
		names = append(names, name)
	}
	return names
}

// SaveSecretsToFile re-encrypts the in-memory credential set to disk.
func SaveSecretsToFile(projectDir, password string) error {
	secretsMu.RLock()
	snapshot := make(map[string]string, len(secrets))
	for k, v := range secrets {
		snapshot[k] = v
	}
	secretsMu.RUnlock()

	return EncryptSecretsFile(projectDir, password, snapshot)
}

// SecretsFileExists reports whether the project has an encrypted secrets file.
func SecretsFileExists(projectDir string) bool {
	_, err := os.Stat(secretsPath(projectDir))
	return err == nil
}

func secretsPath(projectDir string) string {
	return filepath.Join(projectDir, ProjectConfigDir, secretsFileName)
}

// deriveKey stretches the password with scrypt. Callers must zero the
// returned key when finished.
func deriveKey(password []byte, salt []byte) ([]byte, error) {
	key, err := scrypt.Key(password, salt, scryptN, scryptR, scryptP, keySize)
	if err != nil {
		return nil, fmt.Errorf("failed to derive encryption key: %w", err)
	}
	return key, nil
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("failed to create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("failed to create GCM: %w", err)
	}
	return gcm, nil
}

func zero(b []byte) {
	for i := range b {
		b[i] = 0
	}
}

// EncryptSecretsFile writes the credential map to the encrypted secrets file
// with 0600 permissions, creating .devteam/ if needed.
func EncryptSecretsFile(projectDir, password string, values map[string]string) error {
	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	salt := make([]byte, saltSize)
	if _, err := rand.Read(salt); err != nil {
		return fmt.Errorf("failed to generate salt: %w", err)
	}

	key, err := deriveKey(passwordBytes, salt)
	if err != nil {
		return err
	}
	defer zero(key)

	plaintext, err := json.Marshal(values)
	if err != nil {
		return fmt.Errorf("failed to marshal secrets: %w", err)
	}

	gcm, err := newGCM(key)
	if err != nil {
		return err
	}

	nonce := make([]byte, nonceSize)
	if _, err := rand.Read(nonce); err != nil {
		return fmt.Errorf("failed to generate nonce: %w", err)
	}

	fileData := make([]byte, 0, saltSize+nonceSize+len(plaintext)+gcmTagSize)
	fileData = append(fileData, salt...)
	fileData = append(fileData, nonce...)
	fileData = gcm.Seal(fileData, nonce, plaintext, nil)

	if err := os.MkdirAll(filepath.Join(projectDir, ProjectConfigDir), 0755); err != nil {
		return fmt.Errorf("failed to create .devteam directory: %w", err)
	}
	if err := os.WriteFile(secretsPath(projectDir), fileData, 0600); err != nil {
		return fmt.Errorf("failed to write secrets file: %w", err)
	}
	return nil
}

// DecryptSecretsFile reads and decrypts the project's secrets file. A file
// with loose permissions is chmodded back to 0600 before use.
func DecryptSecretsFile(projectDir, password string) (map[string]string, error) {
	path := secretsPath(projectDir)

	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("failed to stat secrets file: %w", err)
	}
	if info.Mode().Perm() != 0600 {
		LogInfo("⚠️  Secrets file has incorrect permissions (found: %04o, expected: 0600).", info.Mode().Perm())
		if chmodErr := os.Chmod(path, 0600); chmodErr != nil {
			return nil, fmt.Errorf("failed to fix file permissions: %w", chmodErr)
		}
		LogInfo("✅ File permissions corrected to 0600")
	}

	fileData, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read secrets file: %w", err)
	}
	if len(fileData) < saltSize+nonceSize+gcmTagSize {
		return nil, fmt.Errorf("secrets file is corrupted or invalid format (too small)")
	}

	salt := fileData[:saltSize]
	nonce := fileData[saltSize : saltSize+nonceSize]
	ciphertext := fileData[saltSize+nonceSize:]

	passwordBytes := []byte(password)
	defer zero(passwordBytes)

	key, err := deriveKey(passwordBytes, salt)
	if err != nil {
		return nil, err
	}
	defer zero(key)

	gcm, err := newGCM(key)
	if err != nil {
		return nil, err
	}

	plaintext, err := gcm.Open(nil, nonce, ciphertext, nil)
	if err != nil {
		return nil, fmt.Errorf("decryption failed (wrong password or corrupted file)")
	}

	var values map[string]string
	if err := json.Unmarshal(plaintext, &values); err != nil {
		return nil, fmt.Errorf("failed to parse secrets: %w", err)
	}
	return values, nil
}
