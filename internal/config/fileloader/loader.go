// Package fileloader loads scan policies from files on disk.
package fileloader

import (
	"context"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/leakwatch/leakwatch/internal/config"
)

// FileLoader loads a scan policy from a file on disk. It implements the
// PolicyLoader interface.
type FileLoader struct {
	// path is the filesystem path to the policy file.
	path string
}

// NewFileLoader creates a FileLoader reading from the specified path.
func NewFileLoader(path string) *FileLoader {
	return &FileLoader{path: path}
}

// Load reads and parses the policy file. It returns the parsed policy or an
// error if reading, parsing, or validation fails.
func (l *FileLoader) Load(ctx context.Context) (*config.ScanPolicy, error) {
	data, err := os.ReadFile(l.path)
	if err != nil {
		return nil, fmt.Errorf("failed to read policy file: %w", err)
	}

	var policy config.ScanPolicy
	if err := yaml.Unmarshal(data, &policy); err != nil {
		return nil, fmt.Errorf("failed to parse policy: %w", err)
	}
	if err := policy.Validate(); err != nil {
		return nil, fmt.Errorf("invalid policy: %w", err)
	}

	return &policy, nil
}
