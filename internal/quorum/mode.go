package quorum

// Mode is how the node is launched.
type Mode int

const (
	// Standalone runs a single node serving clients on its own.
	Standalone Mode = iota
	// Distributed runs the node as one member of a multi-node ensemble.
	Distributed
)

func (m Mode) String() string {
	switch m {
	case Standalone:
		return "standalone"
	case Distributed:
		return "distributed"
	default:
		return "unknown"
	}
}

// SelectMode returns Distributed when more than one server is declared and
// Standalone otherwise. A single server.N entry still runs standalone.
func SelectMode(cfg *Config) Mode {
	if len(cfg.Servers) > 1 {
		return Distributed
	}
	return Standalone
}
