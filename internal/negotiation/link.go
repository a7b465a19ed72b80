package negotiation

import (
	"github.com/pion/webrtc/v4"

	"github.com/andrefsp/video-democry/internal/room"
)

// PeerLink is the negotiation state for one remote peer. Only the Engine
// touches it.
type PeerLink struct {
	remote    room.User
	conn      PeerConnection
	initiator bool

	state State
	// idle is the state to return to when an exchange is abandoned.
	idle State

	hasRemoteDescription    bool
	pendingRemoteCandidates []webrtc.ICECandidateInit

	connState webrtc.PeerConnectionState
	hello     *Hello

	// member is set once a reconciliation has listed the remote.
	member bool

	// alive is cleared on teardown; callbacks queued for a dead link are
	// dropped.
	alive bool
}

// LinkInfo is a read-only snapshot of a PeerLink.
type LinkInfo struct {
	Remote            room.User
	State             State
	ConnectionState   string
	Initiator         bool
	PendingCandidates int
	Hello             *Hello
}

func (l *PeerLink) info() LinkInfo {
	info := LinkInfo{
		Remote:            l.remote,
		State:             l.state,
		ConnectionState:   l.connState.String(),
		Initiator:         l.initiator,
		PendingCandidates: len(l.pendingRemoteCandidates),
	}
	if l.hello != nil {
		h := *l.hello
		info.Hello = &h
	}
	return info
}
