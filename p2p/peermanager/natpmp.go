package peermanager

import (
	"fmt"
	"net"
	"time"

	natpmp "github.com/jackpal/go-nat-pmp"
)

// natPMPLeaseSeconds is a conservative lease; the caller is expected to call
// MapPort again well before it expires to keep the mapping alive.
const natPMPLeaseSeconds = 3600

// MapPort asks the LAN gateway to forward publicPort to internalPort on
// this host over TCP, so an operator behind NAT can still accept inbound
// P2P connections without manual router configuration. Returns the
// gateway-assigned external port.
func MapPort(internalPort, publicPort int) (int, error) {
	gatewayIP, err := natpmp.DiscoverGateway()
	if err != nil {
		return 0, fmt.Errorf("peermanager: discovering NAT-PMP gateway: %w", err)
	}
	client := natpmp.NewClientWithTimeout(gatewayIP, 2*time.Second)

	result, err := client.AddPortMapping("tcp", internalPort, publicPort, natPMPLeaseSeconds)
	if err != nil {
		return 0, fmt.Errorf("peermanager: NAT-PMP port mapping: %w", err)
	}
	return int(result.MappedExternalPort), nil
}

// ExternalAddress queries the gateway for the node's external IPv4 address,
// used to populate a Handshake's advertised_ip when the operator hasn't set
// one explicitly.
func ExternalAddress() (net.IP, error) {
	gatewayIP, err := natpmp.DiscoverGateway()
	if err != nil {
		return nil, fmt.Errorf("peermanager: discovering NAT-PMP gateway: %w", err)
	}
	client := natpmp.NewClientWithTimeout(gatewayIP, 2*time.Second)

	result, err := client.GetExternalAddress()
	if err != nil {
		return nil, fmt.Errorf("peermanager: NAT-PMP external address: %w", err)
	}
	ip := net.IPv4(result.ExternalIPAddress[0], result.ExternalIPAddress[1], result.ExternalIPAddress[2], result.ExternalIPAddress[3])
	return ip, nil
}
