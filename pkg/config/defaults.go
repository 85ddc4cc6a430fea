package config

import (
	"os"
	"path/filepath"
	"time"
)

const (
	// ConfigFileName is the base name of the ev-derive configuration file without extension.
	ConfigFileName = "evderive"
	// ConfigExtension is the file extension for the configuration file without the leading dot.
	ConfigExtension = "yaml"
	// ConfigName is the filename for the ev-derive configuration file.
	ConfigName = ConfigFileName + "." + ConfigExtension
	// AppConfigDir is the directory name for the app configuration.
	AppConfigDir = "config"
	// DBName is the name of the checkpoint database inside DBPath.
	DBName = "evderive"
)

// DefaultRootDir returns the default root directory for ev-derive
var DefaultRootDir = DefaultRootDirWithName(ConfigFileName)

// DefaultRootDirWithName returns the default root directory for an application,
// based on the app name and the user's home directory
func DefaultRootDirWithName(appName string) string {
	if appName == "" {
		appName = ConfigFileName
	}

	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, "."+appName)
}

// DefaultConfig keeps default values of Config
func DefaultConfig() Config {
	return Config{
		RootDir: DefaultRootDir,
		DBPath:  "data",
		Chain:   DevnetChainConfig(),
		Driver: DriverConfig{
			PollInterval:     DurationWrapper{250 * time.Millisecond},
			MaxBlocksPerStep: 0,
		},
		Instrumentation: DefaultInstrumentationConfig(),
		Log: LogConfig{
			Level:  "info",
			Format: "text",
			Trace:  false,
		},
	}
}
