package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// SetProjectValue writes key into <dir>/.noteport/config.yaml, creating the
// file if needed. Dotted keys become nested maps. Values that parse as a
// bool or an integer are stored as such. Comments in the file are not kept.
func SetProjectValue(dir, key, value string) (string, error) {
	if !IsKnownKey(key) {
		return "", fmt.Errorf("unknown config key %q", key)
	}
	if err := validateValue(key, value); err != nil {
		return "", err
	}

	path := filepath.Join(dir, DirName, "config.yaml")
	doc := map[string]any{}
	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return "", fmt.Errorf("failed to parse %s: %w", path, err)
		}
		if doc == nil {
			doc = map[string]any{}
		}
	case !os.IsNotExist(err):
		return "", fmt.Errorf("failed to read %s: %w", path, err)
	}

	setNested(doc, strings.Split(key, "."), typedValue(value))

	out, err := yaml.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("failed to encode config: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return "", fmt.Errorf("failed to create %s: %w", filepath.Dir(path), err)
	}
	// The file may hold the ETAPI token.
	if err := os.WriteFile(path, out, 0600); err != nil {
		return "", fmt.Errorf("failed to write %s: %w", path, err)
	}
	return path, nil
}

func setNested(m map[string]any, parts []string, value any) {
	if len(parts) == 1 {
		m[parts[0]] = value
		return
	}
	child, ok := m[parts[0]].(map[string]any)
	if !ok {
		child = map[string]any{}
		m[parts[0]] = child
	}
	setNested(child, parts[1:], value)
}

func typedValue(s string) any {
	if b, err := strconv.ParseBool(s); err == nil && (s == "true" || s == "false") {
		return b
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

var allowed = map[string][]string{
	"store.backend":             {BackendETAPI, BackendSQLite, BackendMemory},
	"import.duplicate-handling": {"skip", "overwrite"},
	"export.format":             {"directory", "obsidian", "git"},
	"sync.direction":            {"import", "export", "bidirectional"},
	"sync.conflict-resolution":  {"path", "hash", "prefer-local", "prefer-remote"},
}

func validateValue(key, value string) error {
	if opts, ok := allowed[key]; ok {
		for _, o := range opts {
			if value == o {
				return nil
			}
		}
		return fmt.Errorf("%s must be one of %s", key, strings.Join(opts, ", "))
	}
	switch defaults[key].(type) {
	case bool:
		if value != "true" && value != "false" {
			return fmt.Errorf("%s must be true or false", key)
		}
	case int:
		if n, err := strconv.Atoi(value); err != nil || n < 0 {
			return fmt.Errorf("%s must be a non-negative integer", key)
		}
	}
	return nil
}
