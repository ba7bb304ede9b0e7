package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/concave-dev/ensemble/internal/connstr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeFile(t, "ensembled.yaml", `
secure: true
keystore: /etc/ensemble/node.pem
keystorePasswd: secret
truststore: /etc/ensemble/ca.pem
truststorePasswd: secret
connectString: node1:2281,node2:2281
embeddedPropertiesFile: /etc/ensemble/zoo.cfg
logLevel: WARN
`)

	cfg, err := LoadFile(path)
	require.NoError(t, err)
	assert.True(t, cfg.Secure)
	assert.Equal(t, "/etc/ensemble/node.pem", cfg.KeyStore)
	assert.Equal(t, "node1:2281,node2:2281", cfg.ConnectString)
	assert.Equal(t, "/etc/ensemble/zoo.cfg", cfg.PropertiesFile)
	assert.Equal(t, "WARN", cfg.LogLevel)

	_, err = LoadFile(writeFile(t, "bad.yaml", "secure: [unterminated"))
	assert.Error(t, err)

	_, err = LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestResolvePrecedence(t *testing.T) {
	file := Config{
		KeyStore:       "/from/file.pem",
		LogLevel:       "DEBUG",
		PropertiesFile: "/from/file.cfg",
		Secure:         true,
	}

	// flags carry defaults even when not set; only explicit ones win
	flags := Config{KeyStore: "/from/flag.pem", LogLevel: "INFO", KeyStoreType: "PEM"}
	flags.SetExplicitlySet(KeyStoreField, true)

	require.NoError(t, flags.Resolve(file))
	assert.Equal(t, "/from/flag.pem", flags.KeyStore)
	assert.Equal(t, "DEBUG", flags.LogLevel)
	assert.Equal(t, "/from/file.cfg", flags.PropertiesFile)
	assert.True(t, flags.Secure)
	assert.Equal(t, DefaultStoreType, flags.TrustStoreType, "defaults fill what neither sets")
	assert.True(t, flags.IsExplicitlySet(KeyStoreField))
	assert.False(t, flags.IsExplicitlySet(LogLevelField))
}

func TestHostSettings(t *testing.T) {
	c := Config{
		Secure:           true,
		KeyStore:         "/k.pem",
		KeyStorePasswd:   "kp",
		TrustStore:       "/t.pem",
		TrustStorePasswd: "tp",
		ConnectString:    "node1:2281",
	}
	h := c.HostSettings()
	assert.True(t, h.Secure)
	assert.Equal(t, "/k.pem", h.KeyStore)
	assert.Equal(t, "kp", h.KeyStorePassword)
	assert.Equal(t, "/t.pem", h.TrustStore)
	assert.Equal(t, "tp", h.TrustStorePassword)
	assert.Equal(t, "node1:2281", h.ConnectString)
}

func TestInitializeConfigFromEnvironment(t *testing.T) {
	path := writeFile(t, "ensembled.yaml", "logLevel: WARN\n")
	t.Setenv(ConfigEnv, path)
	t.Setenv("DEBUG", "")

	saved := Global
	t.Cleanup(func() { Global = saved })
	Global = Config{}

	require.NoError(t, InitializeConfig())
	assert.Equal(t, path, Global.ConfigFile)
	assert.Equal(t, "WARN", Global.LogLevel)

	t.Setenv("DEBUG", "true")
	Global = Config{}
	require.NoError(t, InitializeConfig())
	assert.Equal(t, "DEBUG", Global.LogLevel)
}

func TestValidate(t *testing.T) {
	props := writeFile(t, "zoo.cfg", "dataDir=/tmp\n")
	secure := func() Config {
		c := Defaults()
		c.Secure = true
		c.KeyStore, c.KeyStorePasswd = "/k.pem", "kp"
		c.TrustStore, c.TrustStorePasswd = "/t.pem", "tp"
		return c
	}

	tests := []struct {
		name          string
		mutate        func(c *Config)
		errorContains string
	}{
		{name: "insecure defaults", mutate: func(c *Config) { *c = Defaults() }},
		{name: "secure complete", mutate: func(c *Config) {}},
		{name: "existing properties file", mutate: func(c *Config) { c.PropertiesFile = props }},
		{name: "valid connect string", mutate: func(c *Config) { c.ConnectString = "node1:2281,node2:2281/app" }},
		{
			name:          "secure without truststore",
			mutate:        func(c *Config) { c.TrustStore = "" },
			errorContains: "truststore",
		},
		{
			name:          "secure without keystore password",
			mutate:        func(c *Config) { c.KeyStorePasswd = "" },
			errorContains: "keystorePasswd",
		},
		{
			name:          "unsupported store type",
			mutate:        func(c *Config) { c.KeyStoreType = "JKS" },
			errorContains: "not supported",
		},
		{
			name:          "bad log level",
			mutate:        func(c *Config) { c.LogLevel = "LOUD" },
			errorContains: "LOUD",
		},
		{
			name:          "missing properties file",
			mutate:        func(c *Config) { c.PropertiesFile = filepath.Join(t.TempDir(), "absent.cfg") },
			errorContains: "embedded properties file",
		},
		{
			name:          "properties path is a directory",
			mutate:        func(c *Config) { c.PropertiesFile = t.TempDir() },
			errorContains: "is a directory",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := secure()
			tt.mutate(&c)
			err := c.Validate()
			if tt.errorContains == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, strings.Contains(err.Error(), tt.errorContains), "error %q should contain %q", err, tt.errorContains)
		})
	}
}

func TestValidateMalformedConnectString(t *testing.T) {
	c := Defaults()
	c.ConnectString = "node1"
	err := c.Validate()
	assert.ErrorIs(t, err, connstr.ErrMalformedConnectionString)
}
