package config

import (
	"fmt"
	"net/url"
	"os"
	"strconv"
	"strings"

	"github.com/pion/webrtc/v4"

	"github.com/andrefsp/video-democry/internal/negotiation"
	"github.com/andrefsp/video-democry/internal/utils"
)

// Default configuration values (production)
const (
	DefaultDomain             = "meet.video-democry.io"
	DefaultSTUN               = "stun:stun.l.google.com:19302"
	DefaultTURN               = "" // Optional, empty by default
	DefaultListenAddr         = ":8080"
	DefaultMaxRestarts        = 5
	DefaultMaxLinkRecreations = negotiation.DefaultMaxLinkRecreations
)

// Config holds application configuration
type Config struct {
	// Domain is the relay server domain
	Domain string

	// RelayURL is the relay WebSocket URL, constructed from domain unless
	// overridden
	RelayURL string

	Room     string
	Username string

	// ICE servers for WebRTC
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string

	// ForceRelay restricts ICE to TURN candidates
	ForceRelay bool

	Topology negotiation.Topology

	Audio     bool
	VideoFile string

	MaxRestarts        int
	MaxLinkRecreations int

	// ListenAddr is where `meshcall relay` listens
	ListenAddr string
}

// Options for loading config with CLI flag overrides. Zero values fall
// through to the environment and then to defaults.
type Options struct {
	Domain     string
	RelayURL   string
	Room       string
	Username   string
	STUNServer string
	TURNServer string
	TURNUser   string
	TURNPass   string
	ForceRelay bool
	Topology   string
	NoAudio    bool
	VideoFile  string
	ListenAddr string

	MaxRestarts        int
	MaxLinkRecreations int
}

// Load reads configuration with the following priority:
// 1. CLI flags (passed via Options) - highest priority
// 2. Environment variables
// 3. Hardcoded defaults - lowest priority
func Load(opts Options) (*Config, error) {
	domain := pick(opts.Domain, "DOMAIN", DefaultDomain)

	relayURL := pick(opts.RelayURL, "RELAY_URL", fmt.Sprintf("wss://%s/ws", domain))
	u, err := url.Parse(relayURL)
	if err != nil {
		return nil, fmt.Errorf("invalid relay url %q: %w", relayURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return nil, fmt.Errorf("invalid relay url %q: scheme must be ws or wss", relayURL)
	}

	topology := negotiation.Topology(strings.ToLower(pick(opts.Topology, "TOPOLOGY", string(negotiation.TopologyMesh))))
	if topology != negotiation.TopologyMesh && topology != negotiation.TopologySFU {
		return nil, fmt.Errorf("invalid topology %q: want mesh or sfu", topology)
	}

	maxRestarts, err := pickInt(opts.MaxRestarts, "MAX_RESTARTS", DefaultMaxRestarts)
	if err != nil {
		return nil, err
	}
	maxRecreations, err := pickInt(opts.MaxLinkRecreations, "MAX_LINK_RECREATIONS", DefaultMaxLinkRecreations)
	if err != nil {
		return nil, err
	}

	// ForceRelay: CLI flag > env > interface heuristic
	forceRelay := opts.ForceRelay
	if !forceRelay {
		if v, ok := os.LookupEnv("FORCE_RELAY"); ok {
			forceRelay, _ = strconv.ParseBool(v)
		} else {
			forceRelay = utils.ShouldForceRelay()
		}
	}

	return &Config{
		Domain:             domain,
		RelayURL:           relayURL,
		Room:               pick(opts.Room, "ROOM", ""),
		Username:           pick(opts.Username, "USERNAME", os.Getenv("USER")),
		STUNServer:         pick(opts.STUNServer, "STUN_SERVER", DefaultSTUN),
		TURNServer:         pick(opts.TURNServer, "TURN_SERVER", DefaultTURN),
		TURNUser:           pick(opts.TURNUser, "TURN_USERNAME", ""),
		TURNPass:           pick(opts.TURNPass, "TURN_PASSWORD", ""),
		ForceRelay:         forceRelay,
		Topology:           topology,
		Audio:              !opts.NoAudio,
		VideoFile:          pick(opts.VideoFile, "VIDEO_FILE", ""),
		MaxRestarts:        maxRestarts,
		MaxLinkRecreations: maxRecreations,
		ListenAddr:         pick(opts.ListenAddr, "LISTEN_ADDR", DefaultListenAddr),
	}, nil
}

func pick(flag, env, def string) string {
	if flag != "" {
		return flag
	}
	if v := os.Getenv(env); v != "" {
		return v
	}
	return def
}

func pickInt(flag int, env string, def int) (int, error) {
	if flag > 0 {
		return flag, nil
	}
	v := os.Getenv(env)
	if v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil || n <= 0 {
		return 0, fmt.Errorf("invalid %s %q: want a positive integer", env, v)
	}
	return n, nil
}

// RelayEndpoint returns the relay URL for a room
func (c *Config) RelayEndpoint(roomID string) string {
	u, err := url.Parse(c.RelayURL)
	if err != nil {
		return c.RelayURL
	}
	q := u.Query()
	q.Set("room", roomID)
	u.RawQuery = q.Encode()
	return u.String()
}

// GetSTUNServers returns STUN server URLs as strings
func (c *Config) GetSTUNServers() []string {
	if c.STUNServer == "" {
		return nil
	}
	return []string{c.STUNServer}
}

// GetTURNServers returns TURN server URLs if configured
func (c *Config) GetTURNServers() []string {
	if c.TURNServer == "" {
		return nil
	}
	host := strings.TrimPrefix(strings.TrimPrefix(c.TURNServer, "turn:"), "turns:")
	return []string{
		fmt.Sprintf("turn:%s:3478?transport=udp", host),
		fmt.Sprintf("turn:%s:3478?transport=tcp", host),
		fmt.Sprintf("turns:%s:5349?transport=tcp", host),
	}
}

// ICEServers returns the servers handed to every peer connection
func (c *Config) ICEServers() []webrtc.ICEServer {
	var servers []webrtc.ICEServer
	if stun := c.GetSTUNServers(); len(stun) > 0 {
		servers = append(servers, webrtc.ICEServer{URLs: stun})
	}
	if turn := c.GetTURNServers(); len(turn) > 0 {
		servers = append(servers, webrtc.ICEServer{
			URLs:       turn,
			Username:   c.TURNUser,
			Credential: c.TURNPass,
		})
	}
	return servers
}

// ICETransportPolicy is relay-only when ForceRelay is set and a TURN
// server is available.
func (c *Config) ICETransportPolicy() webrtc.ICETransportPolicy {
	if c.ForceRelay && c.TURNServer != "" {
		return webrtc.ICETransportPolicyRelay
	}
	return webrtc.ICETransportPolicyAll
}
