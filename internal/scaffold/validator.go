package scaffold

import (
	"fmt"
	"os"
	"path/filepath"
)

// CheckExisting returns an error if dir already holds a streams.yml
func CheckExisting(dir string) error {
	if _, err := os.Stat(filepath.Join(dir, ConfigFile)); err == nil {
		return fmt.Errorf("workspace already initialized\n\nFound existing: %s\n\nUse 'streams init --force' to reinitialize (this will overwrite existing configuration)", ConfigFile)
	}
	return nil
}
