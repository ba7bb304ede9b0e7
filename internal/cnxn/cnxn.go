// Package cnxn provides the client connection factories of an embedded node.
//
// A factory is selected by the serverCnxnFactory identifier of the native
// configuration: "tcp" serves plaintext only, "tls" serves plaintext or TLS
// with client certificates verified against the configured trust store.
// Configure binds the listener right away so the port stays reserved while
// the node starts; Startup serves the client HTTP API against the node.
package cnxn

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/concave-dev/ensemble/internal/config"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/netutil"
	"github.com/concave-dev/ensemble/internal/quorum"
	"github.com/gin-gonic/gin"
	xnetutil "golang.org/x/net/netutil"
)

// Timeouts used when the node reports no session bounds.
const (
	defaultReadTimeout = 15 * time.Second
	defaultIdleTimeout = 60 * time.Second
	shutdownTimeout    = 5 * time.Second
)

// Node is the view of a running node the client API serves.
type Node interface {
	ID() string
	IsRunning() bool
	IsLeader() bool
	Leader() (id string, addr string)
	RaftState() string
	TickTime() time.Duration
	SessionTimeouts() (time.Duration, time.Duration)
	Get(key string) ([]byte, bool)
	Keys(prefix string) []string
	Put(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
}

// Factory accepts client connections for a node.
type Factory interface {
	// Configure binds addr. maxClientCnxns > 0 caps concurrent connections.
	Configure(addr *net.TCPAddr, maxClientCnxns int, secure bool) error
	// Startup begins serving node on the configured listener.
	Startup(node Node) error
	// Shutdown stops serving and releases the listener. Safe to call at any time.
	Shutdown()
	// Addr returns the bound address, nil before Configure.
	Addr() net.Addr
	// Secure reports whether connections are served over TLS.
	Secure() bool
}

// New returns the factory named by id.
func New(id string, tlsSettings quorum.TLS) (Factory, error) {
	switch id {
	case "", quorum.FactoryTCP:
		return &tcpFactory{base: base{name: quorum.FactoryTCP}}, nil
	case quorum.FactoryTLS:
		return &tlsFactory{base: base{name: quorum.FactoryTLS}, settings: tlsSettings}, nil
	default:
		return nil, fmt.Errorf("unknown connection factory %q", id)
	}
}

type tcpFactory struct {
	base
}

func (f *tcpFactory) Configure(addr *net.TCPAddr, maxClientCnxns int, secure bool) error {
	if secure {
		return errors.New("connection factory tcp cannot serve secure connections")
	}
	return f.bind(addr, maxClientCnxns)
}

type tlsFactory struct {
	base
	settings quorum.TLS
}

func (f *tlsFactory) Configure(addr *net.TCPAddr, maxClientCnxns int, secure bool) error {
	if !secure {
		return f.bind(addr, maxClientCnxns)
	}

	tlsConfig, err := LoadServerTLS(f.settings)
	if err != nil {
		return err
	}
	if err := f.bind(addr, maxClientCnxns); err != nil {
		return err
	}
	f.mu.Lock()
	f.tlsConfig = tlsConfig
	f.mu.Unlock()
	return nil
}

// base holds the listener and HTTP server shared by both factories.
type base struct {
	name string

	mu        sync.Mutex
	listener  net.Listener
	tlsConfig *tls.Config
	server    *http.Server
	done      chan struct{}
}

func (b *base) bind(addr *net.TCPAddr, maxClientCnxns int) error {
	if addr == nil {
		return errors.New("client address is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener != nil {
		return fmt.Errorf("connection factory %s is already configured on %s", b.name, b.listener.Addr())
	}

	host := config.DefaultBindAddr
	if addr.IP != nil && !addr.IP.IsUnspecified() {
		host = addr.IP.String()
	}
	listener, err := netutil.NewPortBinder().BindTCP(host, addr.Port)
	if err != nil {
		return fmt.Errorf("failed to bind client port: %w", err)
	}
	if maxClientCnxns > 0 {
		listener = xnetutil.LimitListener(listener, maxClientCnxns)
	}
	b.listener = listener

	logging.Debug("Connection factory %s bound %s (max %d connections)", b.name, listener.Addr(), maxClientCnxns)
	return nil
}

func (b *base) Addr() net.Addr {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return nil
	}
	return b.listener.Addr()
}

func (b *base) Secure() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.tlsConfig != nil
}

func (b *base) Startup(node Node) error {
	if node == nil {
		return errors.New("node is required")
	}

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.listener == nil {
		return fmt.Errorf("connection factory %s is not configured", b.name)
	}
	if b.server != nil {
		return nil
	}

	// Configure Gin logging only if not already configured by CLI tools
	if !logging.IsConfiguredByCLI() {
		gin.DefaultWriter = logging.NewLevelWriter("DEBUG", "gin")
		gin.DefaultErrorWriter = logging.NewLevelWriter("ERROR", "gin")
	}

	secure := b.tlsConfig != nil
	readTimeout, idleTimeout := serverTimeouts(node)
	b.server = &http.Server{
		Handler:           newRouter(b.name, secure, node),
		ReadHeaderTimeout: readTimeout,
		ReadTimeout:       readTimeout,
		WriteTimeout:      readTimeout,
		IdleTimeout:       idleTimeout,
	}

	listener := b.listener
	if secure {
		b.server.TLSConfig = b.tlsConfig
		listener = tls.NewListener(listener, b.tlsConfig)
	}

	done := make(chan struct{})
	b.done = done
	server := b.server
	go func() {
		defer close(done)
		if err := server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logging.Error("Client API server failed: %v", err)
		}
	}()

	scheme := "http"
	if secure {
		scheme = "https"
	}
	logging.Success("Client API for node %s serving %s on %s", node.ID(), scheme, listener.Addr())
	return nil
}

// serverTimeouts bounds reads by the node's max session timeout and idle
// connections by twice that.
func serverTimeouts(node Node) (time.Duration, time.Duration) {
	_, maxSession := node.SessionTimeouts()
	if maxSession <= 0 {
		return defaultReadTimeout, defaultIdleTimeout
	}
	return maxSession, 2 * maxSession
}

func (b *base) Shutdown() {
	b.mu.Lock()
	server, listener, done := b.server, b.listener, b.done
	b.server, b.listener, b.done, b.tlsConfig = nil, nil, nil, nil
	b.mu.Unlock()

	if server == nil {
		if listener != nil {
			if err := listener.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
				logging.Warn("Error closing client listener: %v", err)
			}
		}
		return
	}

	logging.Info("Shutting down client API on %s", listener.Addr())
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(ctx); err != nil {
		logging.Warn("Client API did not drain in time: %v", err)
		_ = server.Close()
	}
	<-done
}
