// Package config holds the host configuration of the ensembled daemon.
//
// Settings come from three places, in order of precedence:
//
//   - command line flags that were explicitly set
//   - the YAML host configuration file (--config or ENSEMBLE_CONFIG)
//   - built-in defaults
//
// The security settings end up in reconcile.HostSettings and are merged into
// the embedded node's native property file on startup.
package config

import (
	"fmt"
	"os"

	"dario.cat/mergo"
	configDefaults "github.com/concave-dev/ensemble/internal/config"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/reconcile"
	"gopkg.in/yaml.v3"
)

// ConfigField represents a configuration field that can be explicitly set
type ConfigField int

const (
	// Configuration field identifiers
	SecureField ConfigField = iota
	KeyStoreField
	KeyStoreTypeField
	KeyStorePasswdField
	TrustStoreField
	TrustStoreTypeField
	TrustStorePasswdField
	ConnectStringField
	PropertiesFileField
	LogLevelField
	LogFileField
)

const (
	DefaultLogLevel  = configDefaults.DefaultLogLevel // Default log level
	DefaultStoreType = "PEM"                          // Default key and trust store type

	// ConfigEnv names the host configuration file when --config is not set.
	ConfigEnv = "ENSEMBLE_CONFIG"
)

// Config holds all daemon configuration values
type Config struct {
	ConfigFile string `yaml:"-"` // Host configuration file, "" for none

	Secure           bool   `yaml:"secure"`
	KeyStore         string `yaml:"keystore"`
	KeyStoreType     string `yaml:"keystoreType"`
	KeyStorePasswd   string `yaml:"keystorePasswd"`
	TrustStore       string `yaml:"truststore"`
	TrustStoreType   string `yaml:"truststoreType"`
	TrustStorePasswd string `yaml:"truststorePasswd"`
	ConnectString    string `yaml:"connectString"`

	// PropertiesFile is the embedded node's native property file; "" disables
	// the embedded node.
	PropertiesFile string `yaml:"embeddedPropertiesFile"`

	LogLevel string `yaml:"logLevel"`
	LogFile  string `yaml:"logFile"`

	explicit map[ConfigField]bool
}

// Global configuration instance
var Global Config

// SetExplicitlySet marks a configuration field as explicitly set by the user.
func (c *Config) SetExplicitlySet(field ConfigField, value bool) {
	if c.explicit == nil {
		c.explicit = make(map[ConfigField]bool)
	}
	c.explicit[field] = value
}

// IsExplicitlySet returns whether a configuration field was explicitly set by the user.
func (c *Config) IsExplicitlySet(field ConfigField) bool {
	return c.explicit[field]
}

// Defaults returns the built-in configuration.
func Defaults() Config {
	return Config{
		KeyStoreType:   DefaultStoreType,
		TrustStoreType: DefaultStoreType,
		LogLevel:       DefaultLogLevel,
	}
}

// HostSettings returns the security settings handed to the reconciler.
func (c *Config) HostSettings() reconcile.HostSettings {
	return reconcile.HostSettings{
		Secure:             c.Secure,
		KeyStore:           c.KeyStore,
		KeyStoreType:       c.KeyStoreType,
		KeyStorePassword:   c.KeyStorePasswd,
		TrustStore:         c.TrustStore,
		TrustStoreType:     c.TrustStoreType,
		TrustStorePassword: c.TrustStorePasswd,
		ConnectString:      c.ConnectString,
	}
}

// LoadFile reads a YAML host configuration file.
func LoadFile(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("failed to read host configuration %s: %w", path, err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("failed to parse host configuration %s: %w", path, err)
	}
	return cfg, nil
}

// Resolve layers c's explicitly set flags over file and defaults. Fields
// whose flag was not set are cleared first so the file can fill them.
func (c *Config) Resolve(file Config) error {
	resolved := Config{ConfigFile: c.ConfigFile, explicit: c.explicit}
	for field, set := range c.explicit {
		if set {
			copyField(&resolved, c, field)
		}
	}

	if err := mergo.Merge(&resolved, file); err != nil {
		return fmt.Errorf("failed to apply host configuration file: %w", err)
	}
	if err := mergo.Merge(&resolved, Defaults()); err != nil {
		return fmt.Errorf("failed to apply configuration defaults: %w", err)
	}
	*c = resolved
	return nil
}

func copyField(dst, src *Config, field ConfigField) {
	switch field {
	case SecureField:
		dst.Secure = src.Secure
	case KeyStoreField:
		dst.KeyStore = src.KeyStore
	case KeyStoreTypeField:
		dst.KeyStoreType = src.KeyStoreType
	case KeyStorePasswdField:
		dst.KeyStorePasswd = src.KeyStorePasswd
	case TrustStoreField:
		dst.TrustStore = src.TrustStore
	case TrustStoreTypeField:
		dst.TrustStoreType = src.TrustStoreType
	case TrustStorePasswdField:
		dst.TrustStorePasswd = src.TrustStorePasswd
	case ConnectStringField:
		dst.ConnectString = src.ConnectString
	case PropertiesFileField:
		dst.PropertiesFile = src.PropertiesFile
	case LogLevelField:
		dst.LogLevel = src.LogLevel
	case LogFileField:
		dst.LogFile = src.LogFile
	}
}

// InitializeConfig applies environment overrides and the host configuration
// file to Global.
func InitializeConfig() error {
	if Global.ConfigFile == "" {
		if path := os.Getenv(ConfigEnv); path != "" {
			Global.ConfigFile = path
			logging.Debug("%s environment variable detected, using %s", ConfigEnv, path)
		}
	}

	var file Config
	if Global.ConfigFile != "" {
		var err error
		if file, err = LoadFile(Global.ConfigFile); err != nil {
			return err
		}
	}
	if err := Global.Resolve(file); err != nil {
		return err
	}

	// Initialize DEBUG environment variable override
	if os.Getenv("DEBUG") == "true" {
		Global.LogLevel = "DEBUG"
		logging.Info("DEBUG environment variable detected, setting log level to DEBUG")
	}
	return nil
}
