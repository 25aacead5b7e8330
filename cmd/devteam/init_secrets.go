package main

import (
	"bufio"
	"bytes"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"devopsteam/pkg/config"
)

// runSecretsBootstrap interactively collects credentials and writes the
// encrypted secrets file. Invoked by the -init-secrets flag.
func runSecretsBootstrap(projectDir string) error {
	fmt.Println("🔐 Devteam Secrets Setup")
	fmt.Println()
	fmt.Println("By default, devteam reads credentials like the Groq API key and GitHub")
	fmt.Println("token from environment variables. This stores them encrypted in the")
	fmt.Println("project instead.")
	fmt.Println()

	password, err := promptForPassword()
	if err != nil {
		return fmt.Errorf("failed to get password: %w", err)
	}

	scanner := bufio.NewScanner(os.Stdin)
	secrets := make(map[string]string)

	fmt.Printf("Enter %s (required): ", config.EnvGroqAPIKey)
	if scanner.Scan() {
		groqKey := strings.TrimSpace(scanner.Text())
		if groqKey == "" {
			return fmt.Errorf("%s is required", config.EnvGroqAPIKey)
		}
		secrets[config.EnvGroqAPIKey] = groqKey
	}

	fmt.Printf("Enter %s (optional, press Enter to skip): ", config.EnvGitHubToken)
	if scanner.Scan() {
		if token := strings.TrimSpace(scanner.Text()); token != "" {
			secrets[config.EnvGitHubToken] = token
		}
	}

	fmt.Printf("Enter %s (optional, press Enter to skip): ", config.EnvGroqEndpoint)
	if scanner.Scan() {
		if endpoint := strings.TrimSpace(scanner.Text()); endpoint != "" {
			secrets[config.EnvGroqEndpoint] = endpoint
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read input: %w", err)
	}

	fmt.Println()
	fmt.Println("🔐 Encrypting and saving credentials...")
	if err := config.EncryptSecretsFile(projectDir, password, secrets); err != nil {
		return fmt.Errorf("failed to encrypt secrets: %w", err)
	}

	fmt.Printf("✅ Credentials saved to %s/secrets.json.enc (file permissions: 0600)\n",
		config.ProjectConfigDir)
	fmt.Printf("💡 Set %s to skip the password prompt on startup.\n", config.EnvDevteamPassword)
	return nil
}

// promptForPassword prompts for a new password with confirmation.
func promptForPassword() (string, error) {
	maxAttempts := 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Print("Enter a password for this project's secrets: ")
		password1, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		fmt.Print("Confirm password: ")
		password2, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		if !bytes.Equal(password1, password2) {
			if attempt < maxAttempts {
				fmt.Println("❌ Passwords do not match. Please try again.")
				continue
			}
			return "", fmt.Errorf("passwords do not match after %d attempts", maxAttempts)
		}

		password := string(password1)

		// Clear password bytes from memory
		for i := range password1 {
			password1[i] = 0
		}
		for i := range password2 {
			password2[i] = 0
		}

		return password, nil
	}

	return "", fmt.Errorf("failed to get matching passwords")
}

// promptForExistingPassword reads the decryption password once, without
// confirmation.
func promptForExistingPassword() (string, error) {
	fmt.Print("🔐 Enter the secrets password: ")
	password, err := term.ReadPassword(syscall.Stdin)
	fmt.Println()
	if err != nil {
		return "", fmt.Errorf("failed to read password: %w", err)
	}
	if len(password) == 0 {
		return "", fmt.Errorf("no password provided")
	}

	out := string(password)
	for i := range password {
		password[i] = 0
	}
	return out, nil
}
