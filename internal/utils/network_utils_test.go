package utils

import "testing"

func TestIsTunnelName(t *testing.T) {
	for _, name := range []string{"tun0", "utun3", "wg0", "ppp0", "CloudflareWARP"} {
		if !isTunnelName(name) {
			t.Fatalf("%s not detected as a tunnel", name)
		}
	}
	for _, name := range []string{"eth0", "en0", "wlan0", "lo"} {
		if isTunnelName(name) {
			t.Fatalf("%s detected as a tunnel", name)
		}
	}
}
