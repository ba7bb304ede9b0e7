package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/concave-dev/ensemble/internal/connstr"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/validate"
)

// ValidateConfig checks the resolved configuration before the daemon starts.
//
// A secure host needs both stores and their passwords, in PEM format. The
// connect string, when set, must parse. The property file must exist when
// configured; an empty path is allowed and disables the embedded node.
func ValidateConfig() error {
	return Global.Validate()
}

// Validate checks c. See ValidateConfig.
func (c *Config) Validate() error {
	if err := logging.ValidateLogLevel(c.LogLevel); err != nil {
		return err
	}

	if c.Secure {
		required := []struct{ value, name string }{
			{c.KeyStore, "keystore"},
			{c.KeyStorePasswd, "keystorePasswd"},
			{c.TrustStore, "truststore"},
			{c.TrustStorePasswd, "truststorePasswd"},
		}
		for _, r := range required {
			if err := validate.ValidateRequiredString(r.value, r.name); err != nil {
				logging.Error("Secure host configuration incomplete: %v", err)
				return fmt.Errorf("secure host requires %s: %w", r.name, err)
			}
		}
	}

	for _, st := range []struct{ value, name string }{
		{c.KeyStoreType, "keystoreType"},
		{c.TrustStoreType, "truststoreType"},
	} {
		if st.value != "" && !strings.EqualFold(st.value, DefaultStoreType) {
			return fmt.Errorf("%s %q is not supported, use %s", st.name, st.value, DefaultStoreType)
		}
	}

	if c.ConnectString != "" {
		if _, _, err := connstr.ParseWithChroot(c.ConnectString); err != nil {
			logging.Error("Invalid connect string '%s': %v", c.ConnectString, err)
			return fmt.Errorf("invalid connect string: %w", err)
		}
	}

	if c.PropertiesFile != "" {
		info, err := os.Stat(c.PropertiesFile)
		if err != nil {
			return fmt.Errorf("embedded properties file: %w", err)
		}
		if info.IsDir() {
			return fmt.Errorf("embedded properties file %s is a directory", c.PropertiesFile)
		}
	}
	return nil
}
