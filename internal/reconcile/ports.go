package reconcile

import (
	"fmt"
	"net"

	"github.com/concave-dev/ensemble/internal/connstr"
	"github.com/concave-dev/ensemble/internal/logging"
	"github.com/concave-dev/ensemble/internal/metrics"
)

// PortAllocator returns a free TCP port at or above floor on host.
type PortAllocator func(host string, floor int) (int, error)

// portInput is everything the secure port strategies may look at.
type portInput struct {
	configured    *net.TCPAddr
	connectString string
	bindHost      string
	floor         int
	allocate      PortAllocator
}

// portStrategy resolves the secure client port for one row of the table.
type portStrategy func(in portInput) (int, error)

// strategyKey selects a row: is a secure address configured, is a connect
// string given.
type strategyKey struct {
	secureAddress bool
	connectString bool
}

var portStrategies = map[strategyKey]portStrategy{
	{secureAddress: false, connectString: false}: allocatePort,
	{secureAddress: false, connectString: true}:  portFromConnectString,
	{secureAddress: true, connectString: false}:  configuredPort,
	{secureAddress: true, connectString: true}:   configuredPortChecked,
}

// resolveSecurePort dispatches to the strategy matching in.
func resolveSecurePort(in portInput) (int, error) {
	key := strategyKey{secureAddress: in.configured != nil, connectString: in.connectString != ""}
	return portStrategies[key](in)
}

func allocatePort(in portInput) (int, error) {
	port, err := in.allocate(in.bindHost, in.floor)
	if err != nil {
		return 0, fmt.Errorf("failed to find a free secure client port at or above %d: %w", in.floor, err)
	}
	metrics.SecurePortResolutionsTotal.WithLabelValues("allocate").Inc()
	logging.Info("Secure client port was not set, found and set available port %d", port)
	return port, nil
}

func portFromConnectString(in portInput) (int, error) {
	port, err := firstEndpointPort(in.connectString)
	if err != nil {
		return 0, err
	}
	metrics.SecurePortResolutionsTotal.WithLabelValues("connect_string").Inc()
	logging.Info("Secure client port set from connect string, set port %d", port)
	return port, nil
}

func configuredPort(in portInput) (int, error) {
	metrics.SecurePortResolutionsTotal.WithLabelValues("configured").Inc()
	logging.Info("Secure client port set from native configuration, set port %d", in.configured.Port)
	return in.configured.Port, nil
}

// configuredPortChecked keeps the configured port and only warns when the
// connect string points elsewhere.
func configuredPortChecked(in portInput) (int, error) {
	port, err := firstEndpointPort(in.connectString)
	if err != nil {
		return 0, err
	}
	metrics.SecurePortResolutionsTotal.WithLabelValues("configured").Inc()
	if port != in.configured.Port {
		logging.Warn("Potential mismatch between connect string port %d and secure client port %d, keeping %d",
			port, in.configured.Port, in.configured.Port)
	} else {
		logging.Info("Matched connect string %s with secure client port %d", in.connectString, port)
	}
	return in.configured.Port, nil
}

func firstEndpointPort(connectString string) (int, error) {
	endpoints, err := connstr.Parse(connectString)
	if err != nil {
		return 0, fmt.Errorf("connect string not usable for the secure client port: %w", err)
	}
	return int(endpoints[0].Port), nil
}
