package utils

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

const (
	// DevteamDir is the directory name for devteam-specific files.
	DevteamDir = ".devteam"

	// LogsDirName is the subdirectory for debug logs and run event journals.
	LogsDirName = "logs"

	// CommonInstructionsFile is the filename for instructions applied to every agent.
	CommonInstructionsFile = "COMMON.md"
	// ReviewInstructionsFile is the filename for review-agent instructions.
	ReviewInstructionsFile = "REVIEW.md"

	// UserInstructionsTokenLimit is the token limit for user instruction files (2000 tokens ~ 8000 chars).
	UserInstructionsTokenLimit = 2000
	// UserInstructionsCharLimit is the character limit for user instruction files (~8000 chars).
	UserInstructionsCharLimit = 8000
)

// UserInstructions holds the content of user instruction files.
type UserInstructions struct {
	Common string
	Review string
}

// DevteamPath returns the path of the .devteam directory under projectDir.
func DevteamPath(projectDir string) string {
	return filepath.Join(projectDir, DevteamDir)
}

// LogsPath returns the path of the logs directory under projectDir.
func LogsPath(projectDir string) string {
	return filepath.Join(projectDir, DevteamDir, LogsDirName)
}

// CreateDevteamDirectory creates the .devteam directory structure with empty instruction files.
func CreateDevteamDirectory(projectDir string) error {
	devteamPath := DevteamPath(projectDir)

	if err := EnsureDir(devteamPath); err != nil {
		return fmt.Errorf("failed to create .devteam directory: %w", err)
	}

	if err := EnsureDir(filepath.Join(devteamPath, LogsDirName)); err != nil {
		return fmt.Errorf("failed to create .devteam/logs directory: %w", err)
	}

	instructionFiles := map[string]string{
		CommonInstructionsFile: "# Common Instructions\n\n<!-- Add instructions that apply to every agent here -->\n<!-- Maximum 2,000 tokens (≈8,000 characters) -->\n",
		ReviewInstructionsFile: "# Review Instructions\n\n<!-- Add review criteria here -->\n<!-- Examples: style rules, security checks, naming conventions -->\n<!-- Maximum 2,000 tokens (≈8,000 characters) -->\n",
	}

	for filename, defaultContent := range instructionFiles {
		if err := WriteFileIfMissing(filepath.Join(devteamPath, filename), defaultContent, 0644); err != nil {
			return fmt.Errorf("failed to create %s: %w", filename, err)
		}
	}

	readmeContent := `# .devteam Directory

This directory contains devteam-specific files for customizing agent behavior.

## User Instruction Files

- **COMMON.md**: Instructions that apply to every agent
- **REVIEW.md**: Instructions specific to the code review agent (style rules, review criteria, etc.)

Each instruction file has a limit of 2,000 tokens (≈8,000 characters) to prevent prompt bloat.

## System Files

- **config.json**: Project configuration overrides
- **secrets.json.enc**: Encrypted API keys (created by devteam -init-secrets)
- **devteam.db**: Run history database
- **logs/**: Debug logs and run event journals

## Usage

Add your project-specific instructions to the appropriate .md files. The content will be
automatically appended to agent system prompts.
`
	if err := WriteFileIfMissing(filepath.Join(devteamPath, "README.md"), readmeContent, 0644); err != nil {
		return fmt.Errorf("failed to create README.md: %w", err)
	}

	return nil
}

// LoadUserInstructions loads user instruction files from the .devteam directory.
// Returns empty strings for missing/empty files, returns error for unreadable files.
func LoadUserInstructions(projectDir string) (*UserInstructions, error) {
	devteamPath := DevteamPath(projectDir)

	instructions := &UserInstructions{}

	files := map[string]*string{
		CommonInstructionsFile: &instructions.Common,
		ReviewInstructionsFile: &instructions.Review,
	}

	for filename, target := range files {
		filePath := filepath.Join(devteamPath, filename)

		if _, err := os.Stat(filePath); os.IsNotExist(err) {
			*target = ""
			continue
		}

		content, err := os.ReadFile(filePath)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w (please check file permissions)", filename, err)
		}

		contentStr := string(content)

		if len(contentStr) > UserInstructionsCharLimit {
			return nil, fmt.Errorf("%s exceeds character limit of %d (current: %d)",
				filename, UserInstructionsCharLimit, len(contentStr))
		}

		// Use tiktoken for more accurate token counting
		tokenCount := CountTokensSimple(contentStr)
		if tokenCount > UserInstructionsTokenLimit {
			return nil, fmt.Errorf("%s exceeds token limit of %d (current: %d)",
				filename, UserInstructionsTokenLimit, tokenCount)
		}

		*target = contentStr
	}

	return instructions, nil
}

// FormatUserInstructions formats user instructions for inclusion in system prompts.
// Returns empty string if no instructions are provided.
func FormatUserInstructions(instructions *UserInstructions, agentID string) string {
	if instructions == nil {
		return ""
	}

	var parts []string

	if instructions.Common != "" {
		parts = append(parts, "---\n## Common Instructions\n"+instructions.Common)
	}

	if agentID == "review" && instructions.Review != "" {
		parts = append(parts, "---\n## Agent-Specific Instructions\n"+instructions.Review)
	}

	if len(parts) == 0 {
		return ""
	}

	return "\n" + strings.Join(parts, "\n")
}
