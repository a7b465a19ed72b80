package negotiation

// State is the negotiation state of a PeerLink.
type State int

const (
	StateNew State = iota
	StateHaveLocalOffer
	StateHaveRemoteOffer
	StateStable
	StateClosed
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateNew:
		return "new"
	case StateHaveLocalOffer:
		return "have-local-offer"
	case StateHaveRemoteOffer:
		return "have-remote-offer"
	case StateStable:
		return "stable"
	case StateClosed:
		return "closed"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// idle reports whether no offer/answer exchange is in flight.
func (s State) idle() bool {
	return s == StateNew || s == StateStable
}

// Topology selects how many links a session keeps.
type Topology string

const (
	// TopologyMesh keeps one link per remote user.
	TopologyMesh Topology = "mesh"
	// TopologySFU keeps a single link to the media server.
	TopologySFU Topology = "sfu"
)

// SFUPeerID keys the single link of an SFU session.
const SFUPeerID = "sfu"
