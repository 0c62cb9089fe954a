// Package app provides the application initialization and wiring.
package app

import (
	"os"
	"path/filepath"

	"github.com/spf13/viper"
)

// ConfigName is the config file base name, without extension.
const ConfigName = "courseimages"

// DefaultDataDir returns the default data directory path.
// Uses ~/.courseimages for user installations, /var/lib/courseimages as fallback.
func DefaultDataDir() string {
	if homeDir, err := os.UserHomeDir(); err == nil {
		return filepath.Join(homeDir, "."+ConfigName)
	}
	return "/var/lib/" + ConfigName
}

// ConfigureViper sets up viper with standard config file search paths.
// Config file: courseimages.toml
// Search paths (in order): /etc/courseimages, ~/.config/courseimages, current directory
func ConfigureViper(v *viper.Viper, configPath string) {
	if configPath != "" {
		v.SetConfigFile(configPath)
		return
	}
	v.SetConfigName(ConfigName)
	v.SetConfigType("toml")
	v.AddConfigPath("/etc/" + ConfigName)
	v.AddConfigPath("$HOME/.config/" + ConfigName)
	v.AddConfigPath(".")
}
