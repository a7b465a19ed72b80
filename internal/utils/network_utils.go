package utils

import (
	"net"
	"strings"
)

// ShouldForceRelay reports whether an active interface looks like a VPN
// tunnel or sits in the CGNAT range. Direct media between peers rarely
// works from there, so calls should go through TURN.
func ShouldForceRelay() bool {
	interfaces, err := net.Interfaces()
	if err != nil {
		return false
	}

	// Cloudflare WARP, Tailscale and carrier-grade NAT use 100.64.0.0/10.
	_, cgnatBlock, _ := net.ParseCIDR("100.64.0.0/10")

	for _, iface := range interfaces {
		// Ignore loopback and down interfaces
		if iface.Flags&net.FlagUp == 0 || iface.Flags&net.FlagLoopback != 0 {
			continue
		}

		if isTunnelName(iface.Name) {
			return true
		}

		addrs, err := iface.Addrs()
		if err != nil {
			continue
		}

		for _, addr := range addrs {
			var ip net.IP
			switch v := addr.(type) {
			case *net.IPNet:
				ip = v.IP
			case *net.IPAddr:
				ip = v.IP
			}

			if cgnatBlock.Contains(ip) {
				return true
			}
		}
	}

	return false
}

var tunnelPrefixes = []string{"tun", "tap", "wg", "ppp", "warp"}

// isTunnelName matches interface names used by OpenVPN, WireGuard, PPP
// and WARP clients.
func isTunnelName(name string) bool {
	name = strings.ToLower(name)
	for _, p := range tunnelPrefixes {
		if strings.Contains(name, p) {
			return true
		}
	}
	return false
}
