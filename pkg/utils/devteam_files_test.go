package utils

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestCreateDevteamDirectory(t *testing.T) {
	tempDir := t.TempDir()

	err := CreateDevteamDirectory(tempDir)
	if err != nil {
		t.Fatalf("CreateDevteamDirectory failed: %v", err)
	}

	devteamPath := filepath.Join(tempDir, DevteamDir)
	if _, err := os.Stat(devteamPath); os.IsNotExist(err) {
		t.Error(".devteam directory was not created")
	}

	logsPath := filepath.Join(devteamPath, LogsDirName)
	if _, err := os.Stat(logsPath); os.IsNotExist(err) {
		t.Error(".devteam/logs directory was not created")
	}

	seededFiles := []string{
		CommonInstructionsFile,
		ReviewInstructionsFile,
		"README.md",
	}

	for _, filename := range seededFiles {
		filePath := filepath.Join(devteamPath, filename)
		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			t.Errorf("%s was not created", filename)
			continue
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			t.Errorf("Failed to read %s: %v", filename, err)
			continue
		}

		if len(content) == 0 {
			t.Errorf("%s is empty", filename)
		}
	}
}

func TestCreateDevteamDirectoryPreservesEdits(t *testing.T) {
	tempDir := t.TempDir()

	if err := CreateDevteamDirectory(tempDir); err != nil {
		t.Fatalf("CreateDevteamDirectory failed: %v", err)
	}

	reviewPath := filepath.Join(tempDir, DevteamDir, ReviewInstructionsFile)
	custom := "# My Review Rules\nFlag bare excepts."
	if err := os.WriteFile(reviewPath, []byte(custom), 0644); err != nil {
		t.Fatal(err)
	}

	// Re-running the bootstrap must not reset edited files
	if err := CreateDevteamDirectory(tempDir); err != nil {
		t.Fatalf("second CreateDevteamDirectory failed: %v", err)
	}

	content, err := os.ReadFile(reviewPath)
	if err != nil {
		t.Fatal(err)
	}
	if string(content) != custom {
		t.Error("REVIEW.md was overwritten by re-bootstrap")
	}
}

func TestLoadUserInstructions(t *testing.T) {
	tempDir := t.TempDir()

	err := CreateDevteamDirectory(tempDir)
	if err != nil {
		t.Fatalf("CreateDevteamDirectory failed: %v", err)
	}

	instructions, err := LoadUserInstructions(tempDir)
	if err != nil {
		t.Fatalf("LoadUserInstructions failed: %v", err)
	}

	if instructions == nil {
		t.Fatal("LoadUserInstructions returned nil")
	}

	devteamPath := filepath.Join(tempDir, DevteamDir)
	customCommon := "# Custom Common Instructions\nKeep responses short."
	customReview := "# Custom Review Instructions\nFlag missing tests."

	err = os.WriteFile(filepath.Join(devteamPath, CommonInstructionsFile), []byte(customCommon), 0644)
	if err != nil {
		t.Fatalf("Failed to write custom common instructions: %v", err)
	}

	err = os.WriteFile(filepath.Join(devteamPath, ReviewInstructionsFile), []byte(customReview), 0644)
	if err != nil {
		t.Fatalf("Failed to write custom review instructions: %v", err)
	}

	instructions, err = LoadUserInstructions(tempDir)
	if err != nil {
		t.Fatalf("LoadUserInstructions failed with custom content: %v", err)
	}

	if !strings.Contains(instructions.Common, "Custom Common Instructions") {
		t.Error("Common instructions not loaded correctly")
	}

	if !strings.Contains(instructions.Review, "Custom Review Instructions") {
		t.Error("Review instructions not loaded correctly")
	}
}

func TestLoadUserInstructionsMissingDirectory(t *testing.T) {
	instructions, err := LoadUserInstructions(t.TempDir())
	if err != nil {
		t.Fatalf("LoadUserInstructions should tolerate a missing .devteam dir: %v", err)
	}
	if instructions.Common != "" || instructions.Review != "" {
		t.Error("expected empty instructions for missing directory")
	}
}

func TestLoadUserInstructionsTokenLimit(t *testing.T) {
	tempDir := t.TempDir()

	err := CreateDevteamDirectory(tempDir)
	if err != nil {
		t.Fatalf("CreateDevteamDirectory failed: %v", err)
	}

	devteamPath := filepath.Join(tempDir, DevteamDir)
	tooLongContent := strings.Repeat("This is a very long instruction. ", 500) // ~17,000 chars

	err = os.WriteFile(filepath.Join(devteamPath, ReviewInstructionsFile), []byte(tooLongContent), 0644)
	if err != nil {
		t.Fatalf("Failed to write long content: %v", err)
	}

	_, err = LoadUserInstructions(tempDir)
	if err == nil {
		t.Error("Expected error for content exceeding character limit")
	}

	if !strings.Contains(err.Error(), "exceeds character limit") {
		t.Errorf("Expected character limit error, got: %v", err)
	}
}

func TestFormatUserInstructions(t *testing.T) {
	tests := []struct {
		name         string
		instructions *UserInstructions
		agentID      string
		expectEmpty  bool
		expectCommon bool
		expectAgent  bool
	}{
		{
			name:         "nil instructions",
			instructions: nil,
			agentID:      "review",
			expectEmpty:  true,
		},
		{
			name: "empty instructions",
			instructions: &UserInstructions{
				Common: "",
				Review: "",
			},
			agentID:     "review",
			expectEmpty: true,
		},
		{
			name: "common only",
			instructions: &UserInstructions{
				Common: "Common instructions",
				Review: "",
			},
			agentID:      "review",
			expectCommon: true,
		},
		{
			name: "review only",
			instructions: &UserInstructions{
				Common: "",
				Review: "Review instructions",
			},
			agentID:     "review",
			expectAgent: true,
		},
		{
			name: "both common and review",
			instructions: &UserInstructions{
				Common: "Common instructions",
				Review: "Review instructions",
			},
			agentID:      "review",
			expectCommon: true,
			expectAgent:  true,
		},
		{
			name: "review instructions hidden from other agents",
			instructions: &UserInstructions{
				Common: "Common instructions",
				Review: "Review instructions",
			},
			agentID:      "chat",
			expectCommon: true,
			expectAgent:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := FormatUserInstructions(tt.instructions, tt.agentID)

			if tt.expectEmpty && result != "" {
				t.Errorf("Expected empty result, got: %s", result)
			}

			if !tt.expectEmpty && result == "" {
				t.Error("Expected non-empty result, got empty string")
			}

			if tt.expectCommon && !strings.Contains(result, "Common Instructions") {
				t.Error("Expected common instructions in result")
			}

			if tt.expectAgent && !strings.Contains(result, "Agent-Specific Instructions") {
				t.Error("Expected agent-specific instructions in result")
			}

			if !tt.expectAgent && strings.Contains(result, "Agent-Specific Instructions") {
				t.Error("Did not expect agent-specific instructions in result")
			}
		})
	}
}
