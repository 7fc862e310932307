package scaffold

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dyluth/streams/internal/config"
	"github.com/dyluth/streams/internal/printer"
)

func TestInitialize(t *testing.T) {
	tests := []struct {
		name      string
		force     bool
		setupFunc func(string)
		wantErr   bool
	}{
		{
			name:      "fresh initialization",
			force:     false,
			setupFunc: func(dir string) {},
		},
		{
			name:  "force initialization replaces existing config",
			force: true,
			setupFunc: func(dir string) {
				os.WriteFile(filepath.Join(dir, ConfigFile), []byte("old content"), 0644)
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			printer.Err = io.Discard
			defer func() { printer.Err = os.Stderr }()

			dir := t.TempDir()
			keyring := filepath.Join(dir, config.DefaultKeyring)
			require.NoError(t, os.WriteFile(keyring, []byte("entries: []\n"), 0600))
			tt.setupFunc(dir)

			err := Initialize(dir, tt.force)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)

			cfg, err := config.Load(filepath.Join(dir, ConfigFile))
			require.NoError(t, err)
			assert.Equal(t, config.Default(), cfg)

			// The keyring is never removed
			_, err = os.Stat(keyring)
			assert.NoError(t, err)
		})
	}
}

func TestCheckExisting(t *testing.T) {
	dir := t.TempDir()
	assert.NoError(t, CheckExisting(dir))

	require.NoError(t, os.WriteFile(filepath.Join(dir, ConfigFile), []byte("version: \"1.0\"\n"), 0644))
	err := CheckExisting(dir)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "already initialized")
	assert.Contains(t, err.Error(), "--force")
}

func TestGetTemplateFiles(t *testing.T) {
	files, err := getTemplateFiles("somewhere")
	require.NoError(t, err)
	require.Len(t, files, 1)
	assert.Equal(t, filepath.Join("somewhere", ConfigFile), files[0].Path)
	assert.Equal(t, os.FileMode(0644), files[0].Permissions)
	assert.Contains(t, string(files[0].Content), "keyring:")
}
