package config

import (
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/andrefsp/video-democry/internal/negotiation"
)

func clearEnv(t *testing.T) {
	for _, k := range []string{
		"DOMAIN", "RELAY_URL", "ROOM", "USERNAME", "STUN_SERVER", "TURN_SERVER",
		"TURN_USERNAME", "TURN_PASSWORD", "TOPOLOGY", "VIDEO_FILE", "LISTEN_ADDR",
		"MAX_RESTARTS", "MAX_LINK_RECREATIONS",
	} {
		t.Setenv(k, "")
	}
	t.Setenv("FORCE_RELAY", "false")
}

func TestLoadDefaults(t *testing.T) {
	clearEnv(t)

	cfg, err := Load(Options{})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.RelayURL != "wss://"+DefaultDomain+"/ws" {
		t.Fatalf("RelayURL = %s", cfg.RelayURL)
	}
	if cfg.Topology != negotiation.TopologyMesh || !cfg.Audio || cfg.ForceRelay {
		t.Fatalf("cfg = %+v", cfg)
	}
	if cfg.MaxRestarts != DefaultMaxRestarts || cfg.MaxLinkRecreations != DefaultMaxLinkRecreations {
		t.Fatalf("limits = %d/%d", cfg.MaxRestarts, cfg.MaxLinkRecreations)
	}
	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr = %s", cfg.ListenAddr)
	}
}

func TestFlagsOverrideEnvironment(t *testing.T) {
	clearEnv(t)
	t.Setenv("DOMAIN", "env.example")
	t.Setenv("TOPOLOGY", "sfu")
	t.Setenv("MAX_RESTARTS", "9")

	cfg, err := Load(Options{Domain: "flag.example", MaxRestarts: 2})
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Domain != "flag.example" || cfg.RelayURL != "wss://flag.example/ws" {
		t.Fatalf("domain = %s, relay = %s", cfg.Domain, cfg.RelayURL)
	}
	if cfg.Topology != negotiation.TopologySFU {
		t.Fatalf("Topology = %s, want sfu from env", cfg.Topology)
	}
	if cfg.MaxRestarts != 2 {
		t.Fatalf("MaxRestarts = %d, want flag value", cfg.MaxRestarts)
	}
}

func TestLoadRejectsBadValues(t *testing.T) {
	clearEnv(t)

	cases := []Options{
		{RelayURL: "http://relay.example/ws"},
		{Topology: "star"},
	}
	for _, opts := range cases {
		if _, err := Load(opts); err == nil {
			t.Fatalf("Load(%+v) succeeded", opts)
		}
	}

	t.Setenv("MAX_LINK_RECREATIONS", "lots")
	if _, err := Load(Options{}); err == nil {
		t.Fatalf("non-numeric MAX_LINK_RECREATIONS accepted")
	}
}

func TestRelayEndpoint(t *testing.T) {
	cfg := &Config{RelayURL: "ws://localhost:8080/ws"}
	if got := cfg.RelayEndpoint("brave-ramen-otter"); got != "ws://localhost:8080/ws?room=brave-ramen-otter" {
		t.Fatalf("RelayEndpoint = %s", got)
	}
}

func TestICEServers(t *testing.T) {
	cfg := &Config{STUNServer: DefaultSTUN}
	if servers := cfg.ICEServers(); len(servers) != 1 {
		t.Fatalf("stun only: %+v", servers)
	}
	if cfg.ICETransportPolicy() != webrtc.ICETransportPolicyAll {
		t.Fatalf("policy without TURN should allow all candidates")
	}

	cfg.TURNServer = "turn:turn.example"
	cfg.TURNUser, cfg.TURNPass = "u", "p"
	cfg.ForceRelay = true
	servers := cfg.ICEServers()
	if len(servers) != 2 || len(servers[1].URLs) != 3 || servers[1].Username != "u" {
		t.Fatalf("servers = %+v", servers)
	}
	if servers[1].URLs[0] != "turn:turn.example:3478?transport=udp" {
		t.Fatalf("turn url = %s", servers[1].URLs[0])
	}
	if cfg.ICETransportPolicy() != webrtc.ICETransportPolicyRelay {
		t.Fatalf("ForceRelay with TURN should be relay-only")
	}
}
