/*
File Name:  interfaces.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/
package discovery

import "net"

// isIPv4 reports whether ip is an IPv4 address.
func isIPv4(ip net.IP) bool {
	return ip.To4() != nil
}

// nonLoopbackIPv4Interfaces returns, for every non-loopback network
// interface with an IPv4 address, that address and its containing network,
// matching the interface-enumeration idiom used by the beacon sender.
func nonLoopbackIPv4Interfaces() ([]*net.IPNet, error) {
	ifaces, err := net.Interfaces()
	if err != nil {
		return nil, err
	}

	var out []*net.IPNet
	for _, iface := range ifaces {
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			ipNet, ok := addr.(*net.IPNet)
			if !ok || !isIPv4(ipNet.IP) {
				continue
			}
			out = append(out, ipNet)
		}
	}

	return out, nil
}

// directedBroadcast computes the directed-broadcast address of an IPv4
// network by ORing in the host bits, e.g. 192.168.1.0/24 -> 192.168.1.255.
func directedBroadcast(ipnet *net.IPNet) net.IP {
	ip4 := ipnet.IP.To4()
	if ip4 == nil {
		return nil
	}

	broadcast := make(net.IP, len(ip4))
	for i := range ip4 {
		broadcast[i] = ip4[i] | ^ipnet.Mask[i]
	}
	return broadcast
}
