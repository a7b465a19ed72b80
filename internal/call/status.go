// Package call holds the vocabulary shared by the session components and
// the UI: error taxonomy and user-visible status changes.
package call

import "time"

type StatusKind string

const (
	StatusConnecting     StatusKind = "connecting"
	StatusJoined         StatusKind = "joined"
	StatusMembers        StatusKind = "members"
	StatusLinkState      StatusKind = "link-state"
	StatusPeerHello      StatusKind = "peer-hello"
	StatusLinkExhausted  StatusKind = "link-exhausted"
	StatusTransportLost  StatusKind = "transport-lost"
	StatusRestarting     StatusKind = "restarting"
	StatusRelayError     StatusKind = "relay-error"
	StatusSessionStopped StatusKind = "stopped"
)

// Status is a connection-status change worth showing to the user.
type Status struct {
	Kind   StatusKind
	Room   string
	Peer   string
	State  string
	Detail string
	At     time.Time
}

// Notifier receives status changes. Implementations must not block.
type Notifier func(Status)

// Notify calls n if it is set.
func (n Notifier) Notify(s Status) {
	if n == nil {
		return
	}
	if s.At.IsZero() {
		s.At = time.Now()
	}
	n(s)
}
