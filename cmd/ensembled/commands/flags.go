// Package commands contains Cobra CLI command definitions for ensembled.
package commands

import (
	"github.com/concave-dev/ensemble/cmd/ensembled/config"
	"github.com/spf13/cobra"
)

// SetupFlags configures all command line flags for the daemon
func SetupFlags(cmd *cobra.Command) {
	cmd.Flags().StringVar(&config.Global.ConfigFile, "config", "",
		"Host configuration file (YAML); falls back to $"+config.ConfigEnv)
	cmd.Flags().StringVar(&config.Global.PropertiesFile, "properties", "",
		"Embedded node property file (e.g., /etc/ensemble/zoo.cfg)\n"+
			"When empty the daemon runs without an embedded node")

	// Host TLS flags, shared with the embedded node when its own TLS keys are absent
	cmd.Flags().BoolVar(&config.Global.Secure, "secure", false,
		"Serve the embedded node's client API over TLS")
	cmd.Flags().StringVar(&config.Global.KeyStore, "keystore", "",
		"Key store location (PEM certificate chain and private key)")
	cmd.Flags().StringVar(&config.Global.KeyStoreType, "keystore-type", config.DefaultStoreType,
		"Key store type (only PEM is supported)")
	cmd.Flags().StringVar(&config.Global.KeyStorePasswd, "keystore-passwd", "",
		"Key store password")
	cmd.Flags().StringVar(&config.Global.TrustStore, "truststore", "",
		"Trust store location (PEM CA certificates)")
	cmd.Flags().StringVar(&config.Global.TrustStoreType, "truststore-type", config.DefaultStoreType,
		"Trust store type (only PEM is supported)")
	cmd.Flags().StringVar(&config.Global.TrustStorePasswd, "truststore-passwd", "",
		"Trust store password")
	cmd.Flags().StringVar(&config.Global.ConnectString, "connect-string", "",
		"Client connection string (e.g., host1:2181,host2:2181/chroot)\n"+
			"Its first port seeds the embedded node's secure client port")

	// Operational flags
	cmd.Flags().StringVar(&config.Global.LogLevel, "log-level", config.DefaultLogLevel,
		"Log level: DEBUG, INFO, WARN, ERROR")
	cmd.Flags().StringVar(&config.Global.LogFile, "log-file", "",
		"Write logs to this file instead of stdout/stderr")
}

// CheckExplicitFlags checks if flags were explicitly set by the user
func CheckExplicitFlags(cmd *cobra.Command) {
	config.Global.SetExplicitlySet(config.PropertiesFileField, cmd.Flags().Changed("properties"))
	config.Global.SetExplicitlySet(config.SecureField, cmd.Flags().Changed("secure"))
	config.Global.SetExplicitlySet(config.KeyStoreField, cmd.Flags().Changed("keystore"))
	config.Global.SetExplicitlySet(config.KeyStoreTypeField, cmd.Flags().Changed("keystore-type"))
	config.Global.SetExplicitlySet(config.KeyStorePasswdField, cmd.Flags().Changed("keystore-passwd"))
	config.Global.SetExplicitlySet(config.TrustStoreField, cmd.Flags().Changed("truststore"))
	config.Global.SetExplicitlySet(config.TrustStoreTypeField, cmd.Flags().Changed("truststore-type"))
	config.Global.SetExplicitlySet(config.TrustStorePasswdField, cmd.Flags().Changed("truststore-passwd"))
	config.Global.SetExplicitlySet(config.ConnectStringField, cmd.Flags().Changed("connect-string"))
	config.Global.SetExplicitlySet(config.LogLevelField, cmd.Flags().Changed("log-level"))
	config.Global.SetExplicitlySet(config.LogFileField, cmd.Flags().Changed("log-file"))
}
