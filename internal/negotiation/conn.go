package negotiation

import (
	"github.com/pion/webrtc/v4"

	"github.com/andrefsp/video-democry/internal/room"
)

// RemoteTrack is an inbound track as reported by the connection.
type RemoteTrack struct {
	StreamID string
	Kind     string
	Handle   any
}

// PeerConnection is the subset of a WebRTC peer connection the engine
// drives. Callbacks may fire on any goroutine.
type PeerConnection interface {
	CreateOffer() (webrtc.SessionDescription, error)
	CreateAnswer() (webrtc.SessionDescription, error)
	SetLocalDescription(desc webrtc.SessionDescription) error
	SetRemoteDescription(desc webrtc.SessionDescription) error
	AddICECandidate(c webrtc.ICECandidateInit) error
	AddTrack(t webrtc.TrackLocal) error

	OnICECandidate(func(webrtc.ICECandidateInit))
	OnTrack(func(RemoteTrack))
	OnNegotiationNeeded(func())
	OnConnectionStateChange(func(webrtc.PeerConnectionState))
	OnHello(func(Hello))

	Close() error
}

// Factory builds the connection for a link to remote.
type Factory interface {
	New(local, remote room.User) (PeerConnection, error)
}

// Signaler carries local negotiation output to the relay. A nil recipient
// addresses the media server in SFU sessions. Implementations must not
// block.
type Signaler interface {
	SendOffer(to *room.User, offer webrtc.SessionDescription)
	SendAnswer(to *room.User, answer webrtc.SessionDescription)
	SendCandidate(to *room.User, c webrtc.ICECandidateInit)
}
