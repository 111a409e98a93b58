// Package configpaths resolves the on-disk locations padlink reads and
// writes its CLI configuration and profile store from.
package configpaths

import (
	"errors"
	"os"
	"path/filepath"
)

// DefaultConfigDir returns the configuration directory for padlink,
// honoring XDG_CONFIG_HOME before falling back to $HOME/.config.
func DefaultConfigDir() (string, error) {
	if xdg := os.Getenv("XDG_CONFIG_HOME"); xdg != "" {
		return filepath.Join(xdg, "padlink"), nil
	}
	if home := os.Getenv("HOME"); home != "" {
		return filepath.Join(home, ".config", "padlink"), nil
	}
	return "", errors.New("HOME not set")
}

// DefaultConfigPath returns the default config file path for the given format using base name "config".
func DefaultConfigPath(format string) (string, error) {
	return DefaultNamedConfigPath("config", format)
}

// DefaultNamedConfigPath returns the default config file path for the given format and base name (e.g., "profiles").
func DefaultNamedConfigPath(baseName, format string) (string, error) {
	dir, err := DefaultConfigDir()
	if err != nil {
		return "", err
	}
	ext := "toml"
	switch format {
	case "yaml", "yml":
		ext = "yaml"
	case "json":
		ext = "json"
	}
	return filepath.Join(dir, baseName+"."+ext), nil
}

// EnsureDir ensures the directory for a given file path exists.
func EnsureDir(filePath string) error {
	dir := filepath.Dir(filePath)
	return os.MkdirAll(dir, 0o755)
}

// ConfigCandidatePaths builds candidate paths for the CLI config file per
// format. If userPath is provided, it is prioritized and routed to the
// matching loader by extension.
func ConfigCandidatePaths(userPath string) (jsonPaths, yamlPaths, tomlPaths []string) {
	add := func(slice *[]string, p string) { *slice = append(*slice, p) }

	if userPath != "" {
		switch ext := filepath.Ext(userPath); ext {
		case ".json":
			add(&jsonPaths, userPath)
		case ".yaml", ".yml":
			add(&yamlPaths, userPath)
		case ".toml":
			add(&tomlPaths, userPath)
		default:
			add(&tomlPaths, userPath)
		}
	}

	wd, _ := os.Getwd()
	add(&jsonPaths, filepath.Join(wd, "padlink.json"))
	add(&yamlPaths, filepath.Join(wd, "padlink.yaml"))
	add(&yamlPaths, filepath.Join(wd, "padlink.yml"))
	add(&tomlPaths, filepath.Join(wd, "padlink.toml"))

	if dir, err := DefaultConfigDir(); err == nil {
		add(&jsonPaths, filepath.Join(dir, "config.json"))
		add(&yamlPaths, filepath.Join(dir, "config.yaml"))
		add(&yamlPaths, filepath.Join(dir, "config.yml"))
		add(&tomlPaths, filepath.Join(dir, "config.toml"))
	}

	add(&jsonPaths, filepath.Join("/etc/padlink", "config.json"))
	add(&yamlPaths, filepath.Join("/etc/padlink", "config.yaml"))
	add(&tomlPaths, filepath.Join("/etc/padlink", "config.toml"))

	return
}
