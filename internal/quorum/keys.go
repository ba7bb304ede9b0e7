package quorum

// Property keys of the native configuration file.
const (
	KeyDataDir                 = "dataDir"
	KeyDataLogDir              = "dataLogDir"
	KeyTickTime                = "tickTime"
	KeyInitLimit               = "initLimit"
	KeySyncLimit               = "syncLimit"
	KeyClientPort              = "clientPort"
	KeyClientPortAddress       = "clientPortAddress"
	KeySecureClientPort        = "secureClientPort"
	KeySecureClientPortAddress = "secureClientPortAddress"
	KeyMaxClientCnxns          = "maxClientCnxns"
	KeyMinSessionTimeout       = "minSessionTimeout"
	KeyMaxSessionTimeout       = "maxSessionTimeout"
	KeyElectionAlg             = "electionAlg"
	KeyQuorumListenOnAllIPs    = "quorumListenOnAllIPs"
	KeyPeerType                = "peerType"
	KeySyncEnabled             = "syncEnabled"
	KeySnapRetainCount         = "autopurge.snapRetainCount"
	KeyPurgeInterval           = "autopurge.purgeInterval"
	KeyServerCnxnFactory       = "serverCnxnFactory"
	KeyTxnLogBackend           = "txnLogBackend"

	KeyKeyStoreLocation   = "ssl.keyStore.location"
	KeyKeyStorePassword   = "ssl.keyStore.password"
	KeyKeyStoreType       = "ssl.keyStore.type"
	KeyTrustStoreLocation = "ssl.trustStore.location"
	KeyTrustStorePassword = "ssl.trustStore.password"
	KeyTrustStoreType     = "ssl.trustStore.type"

	// ServerKeyPrefix starts every membership entry: server.<id>=...
	ServerKeyPrefix = "server."

	// MyIDFile is the file in dataDir holding this member's server id.
	MyIDFile = "myid"
)

// TLSKeys are the four properties that must be present together or not at all.
var TLSKeys = []string{
	KeyKeyStoreLocation,
	KeyKeyStorePassword,
	KeyTrustStoreLocation,
	KeyTrustStorePassword,
}

// Connection factory identifiers accepted by serverCnxnFactory.
const (
	FactoryTCP = "tcp"
	FactoryTLS = "tls"
)

// Transaction log backends accepted by txnLogBackend.
const (
	BackendBolt   = "bolt"
	BackendBadger = "badger"
)
