// Package reconcile merges the host application's security settings into the
// native property file of the embedded node and returns the resulting config.
//
// For a secure host the reconciler:
//   - removes plaintext client ports
//   - enforces that the four TLS properties are all set or all absent
//   - resolves the secure client port (allocate, connect string, configured)
//   - switches the connection factory to TLS
//   - copies the host's key and trust stores when the file has none
//
// The mutated file is re-parsed and written back atomically when it changed,
// so running the reconciler again on its own output changes nothing.
package reconcile

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"strconv"

	"github.com/concave-dev/ensemble/internal/config"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/netutil"
	"github.com/concave-dev/ensemble/internal/quorum"
	"github.com/magiconair/properties"
)

// HostSettings are the security settings of the host application.
type HostSettings struct {
	Secure             bool
	KeyStore           string
	KeyStoreType       string
	KeyStorePassword   string
	TrustStore         string
	TrustStoreType     string
	TrustStorePassword string
	// ConnectString is the host's client connection string, "" when unset.
	ConnectString string
}

// tlsValue returns the host value copied into the given native TLS key.
func (h HostSettings) tlsValue(key string) string {
	switch key {
	case quorum.KeyKeyStoreLocation:
		return h.KeyStore
	case quorum.KeyKeyStorePassword:
		return h.KeyStorePassword
	case quorum.KeyTrustStoreLocation:
		return h.TrustStore
	case quorum.KeyTrustStorePassword:
		return h.TrustStorePassword
	}
	return ""
}

type options struct {
	floor    int
	allocate PortAllocator
}

// Option customises port allocation.
type Option func(*options)

// WithPortFloor sets the lowest port considered when allocating a secure port.
func WithPortFloor(floor int) Option {
	return func(o *options) { o.floor = floor }
}

// WithPortAllocator replaces the free port probe.
func WithPortAllocator(fn PortAllocator) Option {
	return func(o *options) { o.allocate = fn }
}

// Reconcile reads the property file at path, applies host, writes the file
// back when it changed and returns the parsed result.
func Reconcile(host HostSettings, path string, opts ...Option) (*quorum.Config, error) {
	o := options{floor: config.MinSecureClientPort, allocate: netutil.FindAvailableTCPPort}
	for _, opt := range opts {
		opt(&o)
	}

	props, err := quorum.Load(path)
	if err != nil {
		return nil, err
	}
	before := maps.Clone(props.Map())

	cfg, err := reconcileProperties(host, props, o)
	if err != nil {
		return nil, err
	}

	if !maps.Equal(before, props.Map()) {
		if err := writeAtomic(path, props); err != nil {
			return nil, err
		}
		logging.Info("Wrote reconciled native configuration to %s", path)
	}
	return cfg, nil
}

// reconcileProperties applies host to props in place and returns the re-parsed config.
func reconcileProperties(host HostSettings, props *properties.Properties, o options) (*quorum.Config, error) {
	cfg, err := quorum.Parse(props)
	if err != nil {
		return nil, err
	}

	if !host.Secure {
		logging.Info("Host is not secure, native TLS properties left unchanged")
		return cfg, nil
	}

	if cfg.ClientPortAddress != nil {
		props.Delete(quorum.KeyClientPort)
		props.Delete(quorum.KeyClientPortAddress)
		logging.Warn("Secure host with plaintext client port %s configured, removed %s and %s",
			cfg.ClientPortAddress, quorum.KeyClientPort, quorum.KeyClientPortAddress)
	}

	present, missing := tlsKeyPresence(props)
	if len(present) != 0 && len(missing) != 0 {
		return nil, &InconsistentTLSError{Present: present, Missing: missing}
	}

	bindHost := config.DefaultBindAddr
	if cfg.SecureClientPortAddress != nil {
		bindHost = cfg.SecureClientPortAddress.IP.String()
	}
	port, err := resolveSecurePort(portInput{
		configured:    cfg.SecureClientPortAddress,
		connectString: host.ConnectString,
		bindHost:      bindHost,
		floor:         o.floor,
		allocate:      o.allocate,
	})
	if err != nil {
		return nil, err
	}
	if _, _, err := props.Set(quorum.KeySecureClientPort, strconv.Itoa(port)); err != nil {
		return nil, fmt.Errorf("failed to set %s: %w", quorum.KeySecureClientPort, err)
	}

	if _, _, err := props.Set(quorum.KeyServerCnxnFactory, quorum.FactoryTLS); err != nil {
		return nil, fmt.Errorf("failed to set %s: %w", quorum.KeyServerCnxnFactory, err)
	}

	if len(present) == 0 {
		for _, key := range quorum.TLSKeys {
			value := host.tlsValue(key)
			if _, _, err := props.Set(key, value); err != nil {
				return nil, fmt.Errorf("failed to set %s: %w", key, err)
			}
			logging.Info("Mapped host TLS setting to %s with value '%s'", key, quorum.MaskValue(key, value))
		}
	} else {
		logging.Info("Native TLS properties already set, host settings not copied")
	}

	return quorum.Parse(props)
}

// tlsKeyPresence splits the four TLS keys by whether props contains them.
func tlsKeyPresence(props *properties.Properties) (present, missing []string) {
	for _, key := range quorum.TLSKeys {
		if _, ok := props.Get(key); ok {
			present = append(present, key)
		} else {
			missing = append(missing, key)
		}
	}
	return present, missing
}

// writeAtomic replaces path with props through a temporary file in the same
// directory, keeping comments and the original file mode.
func writeAtomic(path string, props *properties.Properties) error {
	mode := os.FileMode(0o600)
	if info, err := os.Stat(path); err == nil {
		mode = info.Mode().Perm()
	}

	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*.tmp")
	if err != nil {
		return fmt.Errorf("failed to create temporary file for %s: %w", path, err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := props.WriteComment(tmp, "# ", properties.UTF8); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write %s: %w", tmpName, err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to sync %s: %w", tmpName, err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", tmpName, err)
	}
	if err := os.Chmod(tmpName, mode); err != nil {
		return fmt.Errorf("failed to set mode on %s: %w", tmpName, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
