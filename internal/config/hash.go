package config

import (
	"encoding/hex"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/zeebo/blake3"
	"gopkg.in/yaml.v3"
)

// ChecksumFile is the manifest name written next to the root config.
const ChecksumFile = ".checksums"

// ChecksumManifest records the BLAKE3 hash of every loaded config file.
type ChecksumManifest struct {
	Version     int               `yaml:"version"`
	GeneratedAt string            `yaml:"generated_at"`
	Hashes      map[string]string `yaml:"hashes"`
}

// IntegrityResult collects the outcome of VerifyIntegrity.
type IntegrityResult struct {
	Passed   bool
	Warnings []string
	Errors   []string
}

// ComputeBlake3Hash computes the BLAKE3 hash of a file.
func ComputeBlake3Hash(filePath string) (string, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return "", fmt.Errorf("failed to read file: %w", err)
	}

	hash := blake3.Sum256(data)
	return hex.EncodeToString(hash[:]), nil
}

// Files returns the absolute paths of every file cfg was loaded from, sorted.
func (c *Config) Files() []string {
	files := make([]string, 0, len(c.SourceFiles))
	for f := range c.SourceFiles {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

func checksumPath(c *Config) string {
	return filepath.Join(filepath.Dir(c.Root), ChecksumFile)
}

// WriteChecksums hashes every loaded file and writes the manifest.
func WriteChecksums(c *Config) (string, error) {
	if c.Root == "" {
		return "", fmt.Errorf("no configuration file loaded")
	}

	manifest := ChecksumManifest{
		Version:     1,
		GeneratedAt: time.Now().UTC().Format(time.RFC3339),
		Hashes:      make(map[string]string),
	}
	for _, f := range c.Files() {
		h, err := ComputeBlake3Hash(f)
		if err != nil {
			return "", fmt.Errorf("failed to hash %s: %w", f, err)
		}
		manifest.Hashes[f] = h
	}

	data, err := yaml.Marshal(manifest)
	if err != nil {
		return "", fmt.Errorf("failed to marshal checksums: %w", err)
	}

	path := checksumPath(c)
	// Restrictive permissions: the manifest is the trust anchor.
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("failed to write checksums: %w", err)
	}
	return path, nil
}

// LoadChecksums reads the manifest next to the root config.
func LoadChecksums(c *Config) (*ChecksumManifest, error) {
	data, err := os.ReadFile(checksumPath(c))
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("checksums file not found (run 'ipfsbridge config lock')")
		}
		return nil, fmt.Errorf("failed to read checksums: %w", err)
	}

	var manifest ChecksumManifest
	if err := yaml.Unmarshal(data, &manifest); err != nil {
		return nil, fmt.Errorf("failed to parse checksums: %w", err)
	}
	if manifest.Version != 1 {
		return nil, fmt.Errorf("unsupported checksums version: %d", manifest.Version)
	}
	return &manifest, nil
}

// VerifyIntegrity checks the loaded files against the manifest. A missing
// manifest is a warning; an unknown or modified file is an error.
func VerifyIntegrity(c *Config) *IntegrityResult {
	result := &IntegrityResult{Passed: true}
	if c.Root == "" {
		result.Warnings = append(result.Warnings, "running on built-in defaults; no files to verify")
		return result
	}

	manifest, err := LoadChecksums(c)
	if err != nil {
		result.Warnings = append(result.Warnings, err.Error())
		return result
	}

	for _, path := range c.Files() {
		expected, ok := manifest.Hashes[path]
		if !ok {
			result.Passed = false
			result.Errors = append(result.Errors, fmt.Sprintf("file %s not in %s", path, ChecksumFile))
			continue
		}
		actual, err := ComputeBlake3Hash(path)
		if err != nil {
			result.Passed = false
			result.Errors = append(result.Errors, fmt.Sprintf("failed to hash %s: %v", path, err))
			continue
		}
		if actual != expected {
			result.Passed = false
			result.Errors = append(result.Errors,
				fmt.Sprintf("hash mismatch for %s (expected %s, got %s)", path, expected, actual))
		}
	}
	return result
}
