package config

import (
	"fmt"
	"os"
	"path/filepath"

	"crmai/internal/util"
)

// defaultPromptDir is the subdirectory within the user's home directory.
const defaultPromptDir = ".config/crmai/prompts"

// LoadPromptContent resolves the path for a prompt fragment and reads its
// cleaned content.
// If configuredPath is absolute, it's used directly.
// If configuredPath is relative or empty, it's treated as a filename within ~/.config/crmai/prompts/.
func LoadPromptContent(configuredPath, defaultFilename string) (string, error) {
	finalPath := configuredPath

	if !filepath.IsAbs(configuredPath) {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("failed to get user home directory: %w", err)
		}

		filename := configuredPath
		if filename == "" {
			filename = defaultFilename
		}
		finalPath = filepath.Join(homeDir, defaultPromptDir, filename)
	}

	promptBytes, err := os.ReadFile(finalPath)
	if err != nil {
		if os.IsNotExist(err) && !filepath.IsAbs(configuredPath) {
			return "", fmt.Errorf("prompt file not found at default location '%s': %w", finalPath, err)
		}
		return "", fmt.Errorf("failed to read prompt file '%s': %w", finalPath, err)
	}

	return util.CleanText(promptBytes, finalPath)
}
