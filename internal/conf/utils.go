package conf

import (
	"os"
	"path/filepath"
	"runtime"

	"github.com/dpscience/ddrs4pals/internal/errors"
)

const configFileName = "config.yaml"

// configDirs lists the config directories in search order: the working
// directory, the per-user directory, then the system directory.
func configDirs() ([]string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return nil, errors.New(err).
			Component("configuration").
			Category(errors.CategorySystem).
			Context("operation", "get-home-directory").
			Build()
	}
	if runtime.GOOS == "windows" {
		return []string{".", filepath.Join(home, "AppData", "Roaming", "ddrs4pals")}, nil
	}
	return []string{".", filepath.Join(home, ".config", "ddrs4pals"), "/etc/ddrs4pals"}, nil
}

// GetDefaultConfigPaths returns the directories searched for config.yaml.
// When one of them already holds a config file, only that one is returned.
func GetDefaultConfigPaths() ([]string, error) {
	dirs, err := configDirs()
	if err != nil {
		return nil, err
	}
	for _, dir := range dirs {
		if _, err := os.Stat(filepath.Join(dir, configFileName)); err == nil {
			return []string{dir}, nil
		}
	}
	return dirs, nil
}

// DefaultConfigPath is where `ddrs4pals config init` writes: the existing
// config file if there is one, otherwise the per-user directory.
func DefaultConfigPath() (string, error) {
	dirs, err := GetDefaultConfigPaths()
	if err != nil {
		return "", err
	}
	dir := dirs[0]
	if len(dirs) > 1 {
		dir = dirs[1]
	}
	return filepath.Join(dir, configFileName), nil
}
