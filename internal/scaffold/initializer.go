// Package scaffold writes the starting configuration of a streams workspace.
package scaffold

import (
	"embed"
	"fmt"
	"os"
	"path/filepath"

	"github.com/dyluth/streams/internal/config"
	"github.com/dyluth/streams/internal/printer"
)

//go:embed templates/*
var templatesFS embed.FS

// ConfigFile is the configuration file Initialize creates.
const ConfigFile = "streams.yml"

// FileInfo represents a file to be created during initialization
type FileInfo struct {
	Path        string
	Content     []byte
	Permissions os.FileMode
}

// Initialize writes streams.yml into dir.
// If force is true, an existing streams.yml is replaced. The keyring is never
// touched.
func Initialize(dir string, force bool) error {
	if force {
		if err := handleForce(dir); err != nil {
			return err
		}
	}

	files, err := getTemplateFiles(dir)
	if err != nil {
		return err
	}

	if err := writeFiles(files); err != nil {
		return err
	}

	return validateCreatedFiles(dir)
}

// handleForce removes an existing streams.yml
func handleForce(dir string) error {
	path := filepath.Join(dir, ConfigFile)
	if _, err := os.Stat(path); err == nil {
		printer.Warning("Removing existing %s...\n", ConfigFile)
		if err := os.Remove(path); err != nil {
			return fmt.Errorf("failed to remove %s: %w", ConfigFile, err)
		}
	}
	return nil
}

// getTemplateFiles reads all template files
func getTemplateFiles(dir string) ([]FileInfo, error) {
	content, err := templatesFS.ReadFile("templates/streams.yml.tmpl")
	if err != nil {
		return nil, fmt.Errorf("failed to read %s template: %w", ConfigFile, err)
	}
	return []FileInfo{{
		Path:        filepath.Join(dir, ConfigFile),
		Content:     content,
		Permissions: 0644,
	}}, nil
}

// writeFiles writes all template files to disk
func writeFiles(files []FileInfo) error {
	for _, file := range files {
		if err := os.WriteFile(file.Path, file.Content, file.Permissions); err != nil {
			return fmt.Errorf("failed to write %s: %w", file.Path, err)
		}
	}
	return nil
}

// validateCreatedFiles checks that the written configuration loads
func validateCreatedFiles(dir string) error {
	if _, err := config.Load(filepath.Join(dir, ConfigFile)); err != nil {
		return fmt.Errorf("created %s is invalid: %w", ConfigFile, err)
	}
	return nil
}

// PrintSuccess prints the success message with next steps
func PrintSuccess(keyring string) {
	printer.Success("Initialized streams workspace\n")
	printer.Info("\nCreated:\n")
	printer.Info("  ✓ %s\n", ConfigFile)
	printer.Info("\nNext steps:\n")
	printer.Info("  1. Add '%s' to your .gitignore file\n", keyring)
	printer.Info("  2. Point redis.url at your Redis server (or set REDIS_URL)\n")
	printer.Info("  3. Run 'streams stream create <name>' to start a stream\n")
}
