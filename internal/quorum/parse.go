package quorum

import (
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"time"

	"dario.cat/mergo"
	"github.com/concave-dev/ensemble/internal/config"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/validate"
	"github.com/magiconair/properties"
	"github.com/mitchellh/mapstructure"
)

// rawConfig mirrors the flat property map before defaults and derived values
// are applied. Pointer fields distinguish an explicit zero from an absent key.
type rawConfig struct {
	DataDir    string `mapstructure:"dataDir" name:"dataDir" validate:"required"`
	DataLogDir string `mapstructure:"dataLogDir" name:"dataLogDir"`

	TickTime          *int `mapstructure:"tickTime" name:"tickTime" validate:"required,min=1"`
	InitLimit         *int `mapstructure:"initLimit" name:"initLimit" validate:"required,min=1"`
	SyncLimit         *int `mapstructure:"syncLimit" name:"syncLimit" validate:"required,min=1"`
	ElectionAlg       *int `mapstructure:"electionAlg" name:"electionAlg" validate:"required,eq=3"`
	MinSessionTimeout int  `mapstructure:"minSessionTimeout" name:"minSessionTimeout" validate:"min=-1"`
	MaxSessionTimeout int  `mapstructure:"maxSessionTimeout" name:"maxSessionTimeout" validate:"min=-1"`

	ClientPort              *int   `mapstructure:"clientPort" name:"clientPort" validate:"omitempty,min=1,max=65535"`
	ClientPortAddress       string `mapstructure:"clientPortAddress" name:"clientPortAddress" validate:"omitempty,ip|hostname_rfc1123"`
	SecureClientPort        *int   `mapstructure:"secureClientPort" name:"secureClientPort" validate:"omitempty,min=1,max=65535"`
	SecureClientPortAddress string `mapstructure:"secureClientPortAddress" name:"secureClientPortAddress" validate:"omitempty,ip|hostname_rfc1123"`
	MaxClientCnxns          *int   `mapstructure:"maxClientCnxns" name:"maxClientCnxns" validate:"required,min=0"`
	ServerCnxnFactory       string `mapstructure:"serverCnxnFactory" name:"serverCnxnFactory" validate:"oneof=tcp tls"`

	QuorumListenOnAllIPs bool   `mapstructure:"quorumListenOnAllIPs" name:"quorumListenOnAllIPs"`
	PeerType             string `mapstructure:"peerType" name:"peerType" validate:"omitempty,oneof=participant observer"`
	SyncEnabled          *bool  `mapstructure:"syncEnabled" name:"syncEnabled" validate:"required"`

	SnapRetainCount int    `mapstructure:"autopurge.snapRetainCount" name:"autopurge.snapRetainCount" validate:"min=0"`
	PurgeInterval   int    `mapstructure:"autopurge.purgeInterval" name:"autopurge.purgeInterval" validate:"min=0"`
	TxnLogBackend   string `mapstructure:"txnLogBackend" name:"txnLogBackend" validate:"oneof=bolt badger"`

	KeyStoreLocation   string `mapstructure:"ssl.keyStore.location" name:"ssl.keyStore.location"`
	KeyStorePassword   string `mapstructure:"ssl.keyStore.password" name:"ssl.keyStore.password"`
	KeyStoreType       string `mapstructure:"ssl.keyStore.type" name:"ssl.keyStore.type" validate:"oneof=PEM pem"`
	TrustStoreLocation string `mapstructure:"ssl.trustStore.location" name:"ssl.trustStore.location"`
	TrustStorePassword string `mapstructure:"ssl.trustStore.password" name:"ssl.trustStore.password"`
	TrustStoreType     string `mapstructure:"ssl.trustStore.type" name:"ssl.trustStore.type" validate:"oneof=PEM pem"`
}

// defaultRaw returns the values used for every key absent from the file.
func defaultRaw() rawConfig {
	tick := int(config.DefaultTickTime / time.Millisecond)
	initLimit := config.DefaultInitLimit
	syncLimit := config.DefaultSyncLimit
	electionAlg := config.DefaultElectionAlg
	maxCnxns := config.DefaultMaxClientCnxns
	syncEnabled := true

	return rawConfig{
		TickTime:          &tick,
		InitLimit:         &initLimit,
		SyncLimit:         &syncLimit,
		ElectionAlg:       &electionAlg,
		MaxClientCnxns:    &maxCnxns,
		ServerCnxnFactory: FactoryTCP,
		SyncEnabled:       &syncEnabled,
		SnapRetainCount:   config.DefaultSnapRetainCount,
		TxnLogBackend:     BackendBolt,
		KeyStoreType:      "PEM",
		TrustStoreType:    "PEM",
	}
}

// decodeKeyRegex pulls the property name out of a mapstructure decode error.
var decodeKeyRegex = regexp.MustCompile(`'([^']+)'`)

// Load reads a property file without variable expansion.
func Load(path string) (*properties.Properties, error) {
	l := &properties.Loader{Encoding: properties.UTF8, DisableExpansion: true}
	p, err := l.LoadFile(path)
	if err != nil {
		return nil, &ConfigError{Value: path, Reason: "cannot read property file", Err: err}
	}
	return p, nil
}

// ParseFile loads and parses the property file at path.
func ParseFile(path string) (*Config, error) {
	props, err := Load(path)
	if err != nil {
		return nil, err
	}
	return Parse(props)
}

// Parse builds a validated Config from a property map. The map is not
// modified. In an ensemble the member id is read from dataDir/myid.
func Parse(props *properties.Properties) (*Config, error) {
	values := props.Map()

	var raw rawConfig
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		WeaklyTypedInput: true,
		Result:           &raw,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create property decoder: %w", err)
	}
	if err := dec.Decode(values); err != nil {
		key := ""
		if m := decodeKeyRegex.FindStringSubmatch(err.Error()); len(m) == 2 {
			key = m[1]
		}
		return nil, &ConfigError{Key: key, Value: values[key], Reason: "cannot decode value", Err: err}
	}

	if err := mergo.Merge(&raw, defaultRaw(), mergo.WithoutDereference); err != nil {
		return nil, fmt.Errorf("failed to apply configuration defaults: %w", err)
	}

	if err := validate.Struct(raw); err != nil {
		var serr *validate.StructError
		if errors.As(err, &serr) {
			key := serr.FirstField()
			return nil, &ConfigError{Key: key, Value: values[key], Reason: err.Error()}
		}
		return nil, &ConfigError{Reason: err.Error()}
	}

	cfg := &Config{
		DataDir:              filepath.Clean(raw.DataDir),
		DataLogDir:           raw.DataLogDir,
		TickTime:             time.Duration(*raw.TickTime) * time.Millisecond,
		InitLimit:            *raw.InitLimit,
		SyncLimit:            *raw.SyncLimit,
		ElectionAlg:          *raw.ElectionAlg,
		QuorumListenOnAllIPs: raw.QuorumListenOnAllIPs,
		SyncEnabled:          *raw.SyncEnabled,
		ConnectionFactory:    raw.ServerCnxnFactory,
		MaxClientCnxns:       *raw.MaxClientCnxns,
		SnapRetainCount:      raw.SnapRetainCount,
		PurgeInterval:        time.Duration(raw.PurgeInterval) * time.Hour,
		TxnLogBackend:        raw.TxnLogBackend,
		TLS: TLS{
			KeyStoreLocation:   raw.KeyStoreLocation,
			KeyStorePassword:   raw.KeyStorePassword,
			KeyStoreType:       strings.ToUpper(raw.KeyStoreType),
			TrustStoreLocation: raw.TrustStoreLocation,
			TrustStorePassword: raw.TrustStorePassword,
			TrustStoreType:     strings.ToUpper(raw.TrustStoreType),
		},
	}
	if cfg.DataLogDir == "" {
		cfg.DataLogDir = cfg.DataDir
	} else {
		cfg.DataLogDir = filepath.Clean(cfg.DataLogDir)
	}

	if cfg.SnapRetainCount < config.DefaultSnapRetainCount {
		logging.Warn("Invalid %s=%d, raising to %d", KeySnapRetainCount, cfg.SnapRetainCount, config.DefaultSnapRetainCount)
		cfg.SnapRetainCount = config.DefaultSnapRetainCount
	}

	if err := parseSessionTimeouts(cfg, raw); err != nil {
		return nil, err
	}

	if cfg.ClientPortAddress, err = clientAddress(KeyClientPort, raw.ClientPort, KeyClientPortAddress, raw.ClientPortAddress); err != nil {
		return nil, err
	}
	if cfg.SecureClientPortAddress, err = clientAddress(KeySecureClientPort, raw.SecureClientPort, KeySecureClientPortAddress, raw.SecureClientPortAddress); err != nil {
		return nil, err
	}

	if cfg.Servers, err = parseServers(props); err != nil {
		return nil, err
	}
	if err := resolveMembership(cfg, raw.PeerType); err != nil {
		return nil, err
	}

	return cfg, nil
}

func parseSessionTimeouts(cfg *Config, raw rawConfig) error {
	cfg.MinSessionTimeout = 2 * cfg.TickTime
	if raw.MinSessionTimeout > 0 {
		cfg.MinSessionTimeout = time.Duration(raw.MinSessionTimeout) * time.Millisecond
	}
	cfg.MaxSessionTimeout = 20 * cfg.TickTime
	if raw.MaxSessionTimeout > 0 {
		cfg.MaxSessionTimeout = time.Duration(raw.MaxSessionTimeout) * time.Millisecond
	}
	if cfg.MinSessionTimeout > cfg.MaxSessionTimeout {
		return invalid(KeyMinSessionTimeout, strconv.Itoa(raw.MinSessionTimeout),
			fmt.Sprintf("must not exceed %s (%s)", KeyMaxSessionTimeout, cfg.MaxSessionTimeout))
	}
	return nil
}

// clientAddress combines a port key and its optional address key. An address
// without a port is rejected; a port without an address binds all interfaces.
func clientAddress(portKey string, port *int, addrKey, addr string) (*net.TCPAddr, error) {
	if port == nil {
		if addr != "" {
			return nil, invalid(addrKey, addr, fmt.Sprintf("%s is set but %s is not", addrKey, portKey))
		}
		return nil, nil
	}

	host := addr
	if host == "" {
		host = config.DefaultBindAddr
	}
	tcpAddr, err := net.ResolveTCPAddr("tcp", net.JoinHostPort(host, strconv.Itoa(*port)))
	if err != nil {
		return nil, &ConfigError{Key: addrKey, Value: addr, Reason: "cannot resolve address", Err: err}
	}
	return tcpAddr, nil
}

// parseServers collects server.N entries sorted by id.
func parseServers(props *properties.Properties) ([]Server, error) {
	var servers []Server
	seenID := make(map[uint64]string)
	seenAddr := make(map[string]string)

	for _, key := range props.FilterPrefix(ServerKeyPrefix).Keys() {
		value, _ := props.Get(key)

		id, err := strconv.ParseUint(strings.TrimPrefix(key, ServerKeyPrefix), 10, 64)
		if err != nil {
			return nil, invalid(key, value, "server id must be a non-negative integer")
		}
		if other, ok := seenID[id]; ok {
			return nil, invalid(key, value, fmt.Sprintf("duplicate server id %d (also %s)", id, other))
		}

		srv, err := parseServer(key, value)
		if err != nil {
			return nil, err
		}
		srv.ID = id

		if other, ok := seenAddr[srv.QuorumAddr()]; ok {
			return nil, invalid(key, value, fmt.Sprintf("quorum address %s already used by %s", srv.QuorumAddr(), other))
		}
		seenID[id] = key
		seenAddr[srv.QuorumAddr()] = key
		servers = append(servers, srv)
	}

	sort.Slice(servers, func(i, j int) bool { return servers[i].ID < servers[j].ID })
	return servers, nil
}

// parseServer parses host:quorumPort[:electionPort][:participant|observer].
// IPv6 hosts are written in brackets.
func parseServer(key, value string) (Server, error) {
	v := strings.TrimSpace(value)
	if strings.Contains(v, ";") {
		return Server{}, invalid(key, value, "client address suffix is not supported, use clientPort")
	}

	var host, rest string
	if strings.HasPrefix(v, "[") {
		end := strings.Index(v, "]")
		if end < 0 {
			return Server{}, invalid(key, value, "unterminated IPv6 host")
		}
		host, rest = v[1:end], strings.TrimPrefix(v[end+1:], ":")
	} else {
		i := strings.Index(v, ":")
		if i < 0 {
			return Server{}, invalid(key, value, "expected host:quorumPort[:electionPort][:participant|observer]")
		}
		host, rest = v[:i], v[i+1:]
	}
	if err := validate.ValidateHost(host); err != nil {
		return Server{}, invalid(key, value, err.Error())
	}

	parts := strings.Split(rest, ":")
	srv := Server{Host: host, Type: Participant}

	if last := parts[len(parts)-1]; last == string(Participant) || last == string(Observer) {
		srv.Type = PeerType(last)
		parts = parts[:len(parts)-1]
	}
	if len(parts) < 1 || len(parts) > 2 {
		return Server{}, invalid(key, value, "expected host:quorumPort[:electionPort][:participant|observer]")
	}

	ports := make([]int, len(parts))
	for i, p := range parts {
		port, err := strconv.Atoi(p)
		if err != nil || validate.ValidatePortRange(port) != nil {
			return Server{}, invalid(key, value, fmt.Sprintf("invalid port %q", p))
		}
		ports[i] = port
	}
	srv.QuorumPort = ports[0]
	if len(ports) == 2 {
		srv.ElectionPort = ports[1]
	}
	return srv, nil
}

// resolveMembership picks this member's id and role. In an ensemble the id
// comes from dataDir/myid and must be listed in the membership.
func resolveMembership(cfg *Config, peerType string) error {
	switch len(cfg.Servers) {
	case 0:
		cfg.ServerID = 1
		cfg.PeerType = Participant
		if peerType != "" {
			cfg.PeerType = PeerType(peerType)
		}
		return nil
	case 1:
		cfg.ServerID = cfg.Servers[0].ID
	default:
		id, err := readMyID(cfg.DataDir)
		if err != nil {
			return err
		}
		cfg.ServerID = id
	}

	self, ok := cfg.Self()
	if !ok {
		return invalid(MyIDFile, strconv.FormatUint(cfg.ServerID, 10), "id is not listed in any server.N entry")
	}
	if peerType != "" && PeerType(peerType) != self.Type {
		return invalid(KeyPeerType, peerType,
			fmt.Sprintf("does not match the role of %s%d (%s)", ServerKeyPrefix, self.ID, self.Type))
	}
	cfg.PeerType = self.Type

	if cfg.Participants() == 0 {
		return invalid(ServerKeyPrefix+strconv.FormatUint(self.ID, 10), "", "at least one participant is required")
	}
	return nil
}

// readMyID reads the member id file from dataDir.
func readMyID(dataDir string) (uint64, error) {
	path := filepath.Join(dataDir, MyIDFile)
	b, err := os.ReadFile(path)
	if err != nil {
		return 0, &ConfigError{Key: MyIDFile, Value: path, Reason: "cannot read member id file", Err: err}
	}
	id, err := strconv.ParseUint(strings.TrimSpace(string(b)), 10, 64)
	if err != nil {
		return 0, invalid(MyIDFile, strings.TrimSpace(string(b)), "member id must be a non-negative integer")
	}
	return id, nil
}
