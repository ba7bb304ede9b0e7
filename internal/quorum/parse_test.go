package quorum

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/magiconair/properties"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// props builds a property map from lines of key=value text.
func props(t *testing.T, lines ...string) *properties.Properties {
	t.Helper()
	p, err := properties.LoadString(strings.Join(lines, "\n"))
	require.NoError(t, err)
	return p
}

func requireConfigError(t *testing.T, err error, key string) *ConfigError {
	t.Helper()
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrInvalidNativeConfig), "error %v does not wrap ErrInvalidNativeConfig", err)
	var cerr *ConfigError
	require.True(t, errors.As(err, &cerr))
	assert.Equal(t, key, cerr.Key)
	return cerr
}

func TestParseDefaults(t *testing.T) {
	dir := t.TempDir()
	cfg, err := Parse(props(t, "dataDir="+dir, "clientPort=2181"))
	require.NoError(t, err)

	assert.Equal(t, dir, cfg.DataDir)
	assert.Equal(t, dir, cfg.DataLogDir)
	assert.Equal(t, 2*time.Second, cfg.TickTime)
	assert.Equal(t, 4*time.Second, cfg.MinSessionTimeout)
	assert.Equal(t, 40*time.Second, cfg.MaxSessionTimeout)
	assert.Equal(t, 10, cfg.InitLimit)
	assert.Equal(t, 5, cfg.SyncLimit)
	assert.Equal(t, 3, cfg.ElectionAlg)
	assert.Equal(t, 60, cfg.MaxClientCnxns)
	assert.Equal(t, 3, cfg.SnapRetainCount)
	assert.Zero(t, cfg.PurgeInterval)
	assert.True(t, cfg.SyncEnabled)
	assert.Equal(t, FactoryTCP, cfg.ConnectionFactory)
	assert.Equal(t, BackendBolt, cfg.TxnLogBackend)
	assert.Equal(t, Participant, cfg.PeerType)
	assert.Equal(t, uint64(1), cfg.ServerID)
	assert.False(t, cfg.TLS.Enabled())

	require.NotNil(t, cfg.ClientPortAddress)
	assert.Equal(t, 2181, cfg.ClientPortAddress.Port)
	assert.Nil(t, cfg.SecureClientPortAddress)
	assert.Equal(t, Standalone, SelectMode(cfg))
}

func TestParseExplicitValues(t *testing.T) {
	dir := t.TempDir()
	logDir := t.TempDir()
	cfg, err := Parse(props(t,
		"dataDir="+dir,
		"dataLogDir="+logDir,
		"tickTime=500",
		"initLimit=4",
		"syncLimit=2",
		"minSessionTimeout=1500",
		"maxSessionTimeout=9000",
		"clientPortAddress=127.0.0.1",
		"clientPort=2181",
		"secureClientPort=2288",
		"secureClientPortAddress=127.0.0.1",
		"maxClientCnxns=0",
		"syncEnabled=false",
		"autopurge.snapRetainCount=5",
		"autopurge.purgeInterval=2",
		"serverCnxnFactory=tls",
		"txnLogBackend=badger",
		"ssl.keyStore.location=/keys/node.pem",
		"ssl.keyStore.password=secret",
		"ssl.trustStore.location=/keys/ca.pem",
		"ssl.trustStore.password=secret2",
	))
	require.NoError(t, err)

	assert.Equal(t, logDir, cfg.DataLogDir)
	assert.Equal(t, 500*time.Millisecond, cfg.TickTime)
	assert.Equal(t, 1500*time.Millisecond, cfg.MinSessionTimeout)
	assert.Equal(t, 9*time.Second, cfg.MaxSessionTimeout)
	assert.Equal(t, "127.0.0.1:2181", cfg.ClientPortAddress.String())
	assert.Equal(t, "127.0.0.1:2288", cfg.SecureClientPortAddress.String())
	assert.Equal(t, 0, cfg.MaxClientCnxns)
	assert.False(t, cfg.SyncEnabled)
	assert.Equal(t, 5, cfg.SnapRetainCount)
	assert.Equal(t, 2*time.Hour, cfg.PurgeInterval)
	assert.Equal(t, FactoryTLS, cfg.ConnectionFactory)
	assert.Equal(t, BackendBadger, cfg.TxnLogBackend)
	assert.True(t, cfg.TLS.Enabled())
	assert.Equal(t, "PEM", cfg.TLS.KeyStoreType)
}

func TestParseSnapRetainCountFloor(t *testing.T) {
	cfg, err := Parse(props(t, "dataDir="+t.TempDir(), "autopurge.snapRetainCount=1"))
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.SnapRetainCount)
}

func TestParseInvalid(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		name  string
		lines []string
		key   string
	}{
		{"missing dataDir", []string{"clientPort=2181"}, "dataDir"},
		{"non-numeric tickTime", []string{"dataDir=" + dir, "tickTime=fast"}, "tickTime"},
		{"zero tickTime", []string{"dataDir=" + dir, "tickTime=0"}, "tickTime"},
		{"old election algorithm", []string{"dataDir=" + dir, "electionAlg=0"}, "electionAlg"},
		{"client port out of range", []string{"dataDir=" + dir, "clientPort=70000"}, "clientPort"},
		{"address without port", []string{"dataDir=" + dir, "clientPortAddress=127.0.0.1"}, "clientPortAddress"},
		{"secure address without port", []string{"dataDir=" + dir, "secureClientPortAddress=127.0.0.1"}, "secureClientPortAddress"},
		{"unknown factory", []string{"dataDir=" + dir, "serverCnxnFactory=netty"}, "serverCnxnFactory"},
		{"unknown backend", []string{"dataDir=" + dir, "txnLogBackend=leveldb"}, "txnLogBackend"},
		{"unsupported store type", []string{"dataDir=" + dir, "ssl.keyStore.type=JKS"}, "ssl.keyStore.type"},
		{"min above max session", []string{"dataDir=" + dir, "minSessionTimeout=50000", "maxSessionTimeout=10000"}, "minSessionTimeout"},
		{"bad peer type", []string{"dataDir=" + dir, "peerType=leader"}, "peerType"},
		{"bad server id", []string{"dataDir=" + dir, "server.x=node1:2888:3888"}, "server.x"},
		{"bad server port", []string{"dataDir=" + dir, "server.1=node1:port"}, "server.1"},
		{"server without port", []string{"dataDir=" + dir, "server.1=node1"}, "server.1"},
		{"too many server ports", []string{"dataDir=" + dir, "server.1=node1:1:2:3"}, "server.1"},
		{"client suffix", []string{"dataDir=" + dir, "server.1=node1:2888:3888;2181"}, "server.1"},
		{"duplicate server id", []string{"dataDir=" + dir, "server.1=node1:2888", "server.01=node2:2888"}, "server.01"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse(props(t, tt.lines...))
			requireConfigError(t, err, tt.key)
		})
	}
}

func TestParseErrorMasksPasswords(t *testing.T) {
	err := &ConfigError{Key: KeyKeyStorePassword, Value: "hunter2", Reason: "bad"}
	assert.NotContains(t, err.Error(), "hunter2")
	assert.Contains(t, err.Error(), "********")
}

func TestParseServers(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MyIDFile), []byte("2\n"), 0o644))

	cfg, err := Parse(props(t,
		"dataDir="+dir,
		"server.3=node3:2888:3888:observer",
		"server.1=node1:2888:3888",
		"server.2=[::1]:2889",
	))
	require.NoError(t, err)

	require.Len(t, cfg.Servers, 3)
	assert.Equal(t, Server{ID: 1, Host: "node1", QuorumPort: 2888, ElectionPort: 3888, Type: Participant}, cfg.Servers[0])
	assert.Equal(t, Server{ID: 2, Host: "::1", QuorumPort: 2889, Type: Participant}, cfg.Servers[1])
	assert.Equal(t, Server{ID: 3, Host: "node3", QuorumPort: 2888, ElectionPort: 3888, Type: Observer}, cfg.Servers[2])
	assert.Equal(t, "[::1]:2889", cfg.Servers[1].QuorumAddr())

	assert.Equal(t, uint64(2), cfg.ServerID)
	assert.Equal(t, Participant, cfg.PeerType)
	assert.Equal(t, 2, cfg.Participants())
	assert.Equal(t, Distributed, SelectMode(cfg))
}

func TestParseObserverRole(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, MyIDFile), []byte("3"), 0o644))

	lines := []string{
		"dataDir=" + dir,
		"server.1=node1:2888",
		"server.2=node2:2888",
		"server.3=node3:2888:observer",
	}
	cfg, err := Parse(props(t, lines...))
	require.NoError(t, err)
	assert.Equal(t, Observer, cfg.PeerType)

	_, err = Parse(props(t, append(lines, "peerType=participant")...))
	requireConfigError(t, err, KeyPeerType)
}

func TestParseMembershipErrors(t *testing.T) {
	tests := []struct {
		name  string
		myid  string
		lines []string
		key   string
	}{
		{"missing myid", "", []string{"server.1=node1:2888", "server.2=node2:2888"}, MyIDFile},
		{"non-numeric myid", "one", []string{"server.1=node1:2888", "server.2=node2:2888"}, MyIDFile},
		{"myid not listed", "9", []string{"server.1=node1:2888", "server.2=node2:2888"}, MyIDFile},
		{"no participants", "1", []string{"server.1=node1:2888:observer", "server.2=node2:2888:observer"}, "server.1"},
		{"duplicate quorum address", "1", []string{"server.1=node1:2888", "server.2=node1:2888"}, "server.2"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			if tt.myid != "" {
				require.NoError(t, os.WriteFile(filepath.Join(dir, MyIDFile), []byte(tt.myid), 0o644))
			}
			_, err := Parse(props(t, append([]string{"dataDir=" + dir}, tt.lines...)...))
			requireConfigError(t, err, tt.key)
		})
	}
}

func TestSelectMode(t *testing.T) {
	tests := []struct {
		name    string
		servers int
		want    Mode
	}{
		{"no servers", 0, Standalone},
		{"single server", 1, Standalone},
		{"two servers", 2, Distributed},
		{"five servers", 5, Distributed},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &Config{Servers: make([]Server, tt.servers)}
			assert.Equal(t, tt.want, SelectMode(cfg))
		})
	}
	assert.Equal(t, "standalone", Standalone.String())
	assert.Equal(t, "distributed", Distributed.String())
}

func TestLoad(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "zoo.cfg")
	require.NoError(t, os.WriteFile(path, []byte("# comment\ndataDir="+dir+"\npassword=${notexpanded}\n"), 0o644))

	p, err := Load(path)
	require.NoError(t, err)
	v, ok := p.Get("password")
	require.True(t, ok)
	assert.Equal(t, "${notexpanded}", v)

	_, err = Load(filepath.Join(dir, "missing.cfg"))
	cerr := requireConfigError(t, err, "")
	assert.True(t, errors.Is(cerr, os.ErrNotExist))

	cfg, err := ParseFile(path)
	require.NoError(t, err)
	assert.Equal(t, dir, cfg.DataDir)
}
