package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// GetPath retrieves a value from the effective configuration using a
// dot-notation path ("runtime.kind"). An empty path returns everything.
func (c *Config) GetPath(path string) (any, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, fmt.Errorf("marshal config: %w", err)
	}

	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	return getValue(m, path)
}

func getValue(m map[string]any, path string) (any, error) {
	var current any = m

	for _, part := range strings.Split(path, ".") {
		if part == "" {
			continue
		}

		m, ok := current.(map[string]any)
		if !ok {
			return nil, fmt.Errorf("path %q breaks at %q (not a map)", path, part)
		}

		val, exists := m[part]
		if !exists {
			return nil, fmt.Errorf("path %q: key %q not found", path, part)
		}
		current = val
	}

	return current, nil
}

func findNode(node *yaml.Node, path string, create bool) (*yaml.Node, error) {
	current := node

	for _, part := range strings.Split(path, ".") {
		if current.Kind != yaml.MappingNode {
			return nil, fmt.Errorf("%q is not a mapping", part)
		}

		var next *yaml.Node
		for i := 0; i+1 < len(current.Content); i += 2 {
			if current.Content[i].Value == part {
				next = current.Content[i+1]
				break
			}
		}

		if next == nil {
			if !create {
				return nil, fmt.Errorf("key %q not found", part)
			}
			key := &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: part}
			next = &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
			current.Content = append(current.Content, key, next)
		}
		current = next
	}

	return current, nil
}

// SetPath writes value at path in the root config file. With persist the
// file is rewritten, reloaded and rolled back if the result does not
// validate.
func (c *Config) SetPath(path, value string, persist bool) error {
	if path == "" {
		return fmt.Errorf("path is required")
	}
	rootNode := c.SourceFiles[c.Root]
	if c.Root == "" || rootNode == nil {
		return fmt.Errorf("no configuration file loaded")
	}
	if rootNode.Kind == 0 {
		// Empty file.
		rootNode.Kind = yaml.DocumentNode
	}
	if rootNode.Kind != yaml.DocumentNode {
		return fmt.Errorf("%s is not a YAML document", c.Root)
	}
	if len(rootNode.Content) == 0 {
		rootNode.Content = []*yaml.Node{{Kind: yaml.MappingNode, Tag: "!!map"}}
	}

	target, err := findNode(rootNode.Content[0], path, true)
	if err != nil {
		return fmt.Errorf("failed to navigate/create path %q: %w", path, err)
	}

	target.Kind = yaml.ScalarNode
	target.Value = value
	target.Tag = guessTag(value)
	target.Content = nil

	if !persist {
		return nil
	}

	candidate, err := yaml.Marshal(rootNode)
	if err != nil {
		return err
	}
	return persistWithValidation(c.Root, candidate)
}

func guessTag(v string) string {
	if v == "true" || v == "false" {
		return "!!bool"
	}
	isDigit := v != "" && v != "-"
	for i, c := range v {
		if i == 0 && c == '-' {
			continue
		}
		if c < '0' || c > '9' {
			isDigit = false
			break
		}
	}
	if isDigit {
		return "!!int"
	}
	return "!!str"
}

func persistWithValidation(targetFile string, candidate []byte) error {
	original, err := os.ReadFile(targetFile)
	if err != nil {
		return fmt.Errorf("failed to read original config file: %w", err)
	}

	mode := os.FileMode(0o644)
	if info, statErr := os.Stat(targetFile); statErr == nil {
		mode = info.Mode().Perm()
	}

	if err := os.WriteFile(targetFile, candidate, mode); err != nil {
		return fmt.Errorf("failed to persist config change: %w", err)
	}

	if _, err := Load(targetFile); err != nil {
		if restoreErr := os.WriteFile(targetFile, original, mode); restoreErr != nil {
			return fmt.Errorf("validation failed (%v) and rollback failed (%v)", err, restoreErr)
		}
		return fmt.Errorf("validation failed: %w", err)
	}

	return nil
}
