package runner

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// BinaryManifest lists the program binaries a runner may execute,
// with expected checksums. When a manifest is present, binaries not
// listed in it are refused.
type BinaryManifest struct {
	// Programs are the allowed program binaries.
	Programs []BinaryEntry `yaml:"programs"`
}

// BinaryEntry describes one allowed program binary.
type BinaryEntry struct {
	// Path is the runner-relative binary path, as referenced by
	// declarations.
	Path string `yaml:"path"`

	// Checksum is the expected sha256 checksum, hex encoded. Empty
	// means the binary is allowed without verification.
	Checksum string `yaml:"checksum"`
}

// LoadBinaryManifest loads a manifest from a YAML file.
func LoadBinaryManifest(path string) (*BinaryManifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest file: %w", err)
	}

	var manifest BinaryManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse manifest YAML: %w", err)
	}

	for _, entry := range manifest.Programs {
		if entry.Path == "" {
			return nil, fmt.Errorf("manifest entry with empty path")
		}
	}

	return &manifest, nil
}

// Entry returns the manifest entry for a runner-relative binary path.
func (m *BinaryManifest) Entry(path string) (*BinaryEntry, bool) {
	for i := range m.Programs {
		if m.Programs[i].Path == path {
			return &m.Programs[i], true
		}
	}
	return nil, false
}

// VerifyChecksum checks module bytes against an expected sha256 hex
// checksum.
func VerifyChecksum(module []byte, expected string) error {
	hash := sha256.Sum256(module)
	computed := hex.EncodeToString(hash[:])
	if computed != expected {
		return fmt.Errorf("checksum mismatch: expected %s, got %s", expected, computed)
	}
	return nil
}
