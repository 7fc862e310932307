package config

import (
	"fmt"
	"os"
	"sort"

	"gopkg.in/yaml.v3"

	"github.com/dyluth/streams/internal/secure"
)

// Entry kinds stored in a keyring
const (
	KindSpace  = "space"
	KindStream = "stream"
)

// KeyringEntry is the credentials of one space or stream
type KeyringEntry struct {
	Kind               string `yaml:"kind"`
	Name               string `yaml:"name,omitempty"`
	secure.Credentials `yaml:",inline"`
}

// Capabilities returns the symmetric keys the entry grants
func (e KeyringEntry) Capabilities() secure.Capabilities {
	return secure.Capabilities{Member: e.EPriv, Reader: e.ReaderEPriv}
}

// Keyring is the local credential store. It holds private keys and is
// always written with owner-only permissions.
type Keyring struct {
	path    string
	Entries []KeyringEntry `yaml:"entries"`
}

// LoadKeyring reads the keyring at path. A missing file is an empty keyring.
func LoadKeyring(path string) (*Keyring, error) {
	k := &Keyring{path: path}
	data, err := os.ReadFile(path)
	if os.IsNotExist(err) {
		return k, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read keyring: %w", err)
	}
	if err := yaml.Unmarshal(data, k); err != nil {
		return nil, fmt.Errorf("failed to parse keyring %s: %w", path, err)
	}
	return k, nil
}

// Put adds or replaces the entry with the same ID
func (k *Keyring) Put(entry KeyringEntry) {
	for i, e := range k.Entries {
		if e.ID == entry.ID {
			k.Entries[i] = entry
			return
		}
	}
	k.Entries = append(k.Entries, entry)
	sort.SliceStable(k.Entries, func(i, j int) bool {
		return k.Entries[i].Kind < k.Entries[j].Kind
	})
}

// Lookup finds an entry of kind by ID, public key or name. Names must be
// unique within a kind to match.
func (k *Keyring) Lookup(kind, ref string) (KeyringEntry, error) {
	var byName []KeyringEntry
	for _, e := range k.Entries {
		if e.Kind != kind {
			continue
		}
		if e.ID == ref || e.Pub == ref {
			return e, nil
		}
		if e.Name == ref {
			byName = append(byName, e)
		}
	}
	switch len(byName) {
	case 0:
		return KeyringEntry{}, fmt.Errorf("no %s '%s' in keyring %s", kind, ref, k.path)
	case 1:
		return byName[0], nil
	default:
		return KeyringEntry{}, fmt.Errorf("%d %ss are named '%s', use the ID instead", len(byName), kind, ref)
	}
}

// Remove drops the entry with id. It reports whether one was removed.
func (k *Keyring) Remove(id string) bool {
	for i, e := range k.Entries {
		if e.ID == id {
			k.Entries = append(k.Entries[:i], k.Entries[i+1:]...)
			return true
		}
	}
	return false
}

// Save writes the keyring with 0600 permissions
func (k *Keyring) Save() error {
	data, err := yaml.Marshal(k)
	if err != nil {
		return fmt.Errorf("failed to marshal keyring: %w", err)
	}
	if err := os.WriteFile(k.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write keyring: %w", err)
	}
	// WriteFile keeps the mode of an existing file
	if err := os.Chmod(k.path, 0600); err != nil {
		return fmt.Errorf("failed to restrict keyring permissions: %w", err)
	}
	return nil
}

// Path returns where the keyring is stored
func (k *Keyring) Path() string {
	return k.path
}
