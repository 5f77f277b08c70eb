// Package config holds the process-wide settings: defaults, then the first
// config.yaml found, then NOTEPORT_* environment variables. Command-line
// flags are applied on top by the commands themselves.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/noteport/noteport/internal/debug"
)

// DirName is the per-project settings directory.
const DirName = ".noteport"

// Store backends.
const (
	BackendETAPI  = "etapi"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

var v *viper.Viper

// defaults lists every recognised key.
var defaults = map[string]any{
	"server.url":     "http://localhost:8080",
	"server.token":   "",
	"server.timeout": "30s",

	"store.backend": BackendETAPI,
	"store.path":    filepath.Join(DirName, "notes.db"),

	"import.include":            []string{},
	"import.exclude":            []string{},
	"import.max-depth":          0,
	"import.preserve-structure": true,
	"import.duplicate-handling": "skip",
	"import.include-hidden":     false,
	"import.parent-note":        "root",
	"import.workers":            8,

	"export.create-index": false,
	"export.index-name":   "index.md",
	"export.format":       "directory",

	"git.branch":             "",
	"git.remote":             "",
	"git.author-name":        "",
	"git.author-email":       "",
	"git.commit-message":     "",
	"git.pull-before-import": false,
	"git.push-after-export":  false,
	"git.timeout":            "30s",

	"sync.direction":           "bidirectional",
	"sync.conflict-resolution": "path",

	"watch.debounce": "500ms",
	"dashboard.port": 8089,

	"log.file":        "",
	"log.max-size":    10,
	"log.max-backups": 3,
}

// IsKnownKey reports whether key is a recognised setting.
func IsKnownKey(key string) bool {
	_, ok := defaults[key]
	return ok
}

// Initialize sets up the viper configuration singleton.
// Should be called once at application startup.
func Initialize() error {
	v = viper.New()
	v.SetConfigType("yaml")

	// Precedence: project .noteport/config.yaml > user config dir > ~/.noteport/config.yaml
	configPath := findConfigFile()
	if configPath != "" {
		v.SetConfigFile(configPath)
	}

	// NOTEPORT_SERVER_URL maps to server.url, NOTEPORT_IMPORT_MAX_DEPTH to
	// import.max-depth.
	v.SetEnvPrefix("NOTEPORT")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	// Shorter names for the two values people set most.
	_ = v.BindEnv("server.url", "NOTEPORT_SERVER_URL", "TRILIUM_URL")
	_ = v.BindEnv("server.token", "NOTEPORT_TOKEN", "TRILIUM_ETAPI_TOKEN")

	for key, value := range defaults {
		v.SetDefault(key, value)
	}

	if configPath != "" {
		if err := v.ReadInConfig(); err != nil {
			return fmt.Errorf("error reading config file: %w", err)
		}
		debug.Logf("loaded config from %s", v.ConfigFileUsed())
	} else {
		debug.Logf("no config.yaml found; using defaults and environment variables")
	}
	return nil
}

// findConfigFile returns the first existing config file, or "".
func findConfigFile() string {
	// Walk up from the working directory so commands work from subdirectories.
	if cwd, err := os.Getwd(); err == nil {
		if p := ProjectConfigPath(cwd); p != "" {
			return p
		}
	}
	if dir, err := os.UserConfigDir(); err == nil {
		p := filepath.Join(dir, "noteport", "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	if home, err := os.UserHomeDir(); err == nil {
		p := filepath.Join(home, DirName, "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// ProjectConfigPath returns the nearest .noteport/config.yaml at or above
// dir, or "".
func ProjectConfigPath(dir string) string {
	for d := dir; ; d = filepath.Dir(d) {
		p := filepath.Join(d, DirName, "config.yaml")
		if _, err := os.Stat(p); err == nil {
			return p
		}
		if d == filepath.Dir(d) {
			return ""
		}
	}
}

// ResetForTesting clears the config state, allowing Initialize() to be called again.
// Not thread-safe.
func ResetForTesting() {
	v = nil
}

// GetString retrieves a string configuration value
func GetString(key string) string {
	if v == nil {
		return ""
	}
	return v.GetString(key)
}

// GetBool retrieves a boolean configuration value
func GetBool(key string) bool {
	if v == nil {
		return false
	}
	return v.GetBool(key)
}

// GetInt retrieves an integer configuration value
func GetInt(key string) int {
	if v == nil {
		return 0
	}
	return v.GetInt(key)
}

// GetDuration retrieves a duration configuration value
func GetDuration(key string) time.Duration {
	if v == nil {
		return 0
	}
	return v.GetDuration(key)
}

// GetStringSlice retrieves a string slice configuration value
func GetStringSlice(key string) []string {
	if v == nil {
		return []string{}
	}
	return v.GetStringSlice(key)
}

// Get retrieves a configuration value of any type, or nil.
func Get(key string) any {
	if v == nil {
		return nil
	}
	return v.Get(key)
}

// Keys returns every recognised key, sorted.
func Keys() []string {
	keys := make([]string, 0, len(defaults))
	for k := range defaults {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Set sets a configuration value for this process only.
func Set(key string, value any) {
	if v != nil {
		v.Set(key, value)
	}
}

// AllSettings returns all configuration settings as a map
func AllSettings() map[string]any {
	if v == nil {
		return map[string]any{}
	}
	return v.AllSettings()
}

// ConfigFileUsed returns the path of the loaded config file, or "".
func ConfigFileUsed() string {
	if v == nil {
		return ""
	}
	return v.ConfigFileUsed()
}

// Source names where a value came from.
type Source string

const (
	SourceDefault    Source = "default"
	SourceConfigFile Source = "config_file"
	SourceEnvVar     Source = "env_var"
)

// GetValueSource returns where key's value came from. Flags are not
// visible here; commands report those themselves.
func GetValueSource(key string) Source {
	if v == nil {
		return SourceDefault
	}
	envKey := "NOTEPORT_" + strings.ToUpper(strings.NewReplacer(".", "_", "-", "_").Replace(key))
	if os.Getenv(envKey) != "" {
		return SourceEnvVar
	}
	if v.InConfig(key) {
		return SourceConfigFile
	}
	return SourceDefault
}
