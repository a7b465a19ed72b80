package signaling

import (
	"errors"
	"log/slog"

	"github.com/pion/webrtc/v4"

	"github.com/andrefsp/video-democry/internal/room"
)

// Handler receives every message kind the relay sends. Adding a kind to
// the protocol means adding a method here, which every handler then has to
// implement.
type Handler interface {
	OnUserJoin(UserJoin)
	OnUserLeft(UserLeft)
	OnOffer(RelayedOffer)
	OnAnswer(RelayedAnswer)
	OnCandidate(RelayedCandidate)
	OnNegotiationNeeded(NegotiationNeeded)
	// OnPing runs after the pong has been queued.
	OnPing(Ping)
	OnRelayError(Error)
}

// Transport carries encoded frames to the relay without blocking.
type Transport interface {
	Send(data []byte) error
}

// Router decodes relay frames into Handler calls and encodes outbound
// messages. It is also the engine's Signaler.
type Router struct {
	local     room.User
	transport Transport
	handler   Handler
	log       *slog.Logger
}

func NewRouter(local room.User, transport Transport, handler Handler, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		local:     local,
		transport: transport,
		handler:   handler,
		log:       logger.With("component", "router"),
	}
}

// Dispatch handles one frame received from the relay.
func (r *Router) Dispatch(raw []byte) {
	msg, err := Decode(raw)
	if err != nil {
		if errors.Is(err, ErrUnknownURI) {
			r.log.Info("ignoring message", "err", err)
		} else {
			r.log.Warn("dropping message", "err", err)
		}
		return
	}

	switch m := msg.(type) {
	case Ping:
		r.Send(Pong{})
		r.handler.OnPing(m)
	case UserJoin:
		r.handler.OnUserJoin(m)
	case UserLeft:
		r.handler.OnUserLeft(m)
	case RelayedOffer:
		r.handler.OnOffer(m)
	case RelayedAnswer:
		r.handler.OnAnswer(m)
	case RelayedCandidate:
		r.handler.OnCandidate(m)
	case NegotiationNeeded:
		r.handler.OnNegotiationNeeded(m)
	case Error:
		r.handler.OnRelayError(m)
	default:
		r.log.Info("ignoring client-bound message", "uri", msg.URI())
	}
}

// Send encodes m and queues it on the relay channel.
func (r *Router) Send(m Message) {
	data, err := Encode(m)
	if err != nil {
		r.log.Error("encode message", "uri", m.URI(), "err", err)
		return
	}
	if err := r.transport.Send(data); err != nil {
		r.log.Warn("send message", "uri", m.URI(), "err", err)
	}
}

// Join announces the local user.
func (r *Router) Join() {
	r.Send(Join{User: r.local})
}

func (r *Router) SendOffer(to *room.User, offer webrtc.SessionDescription) {
	r.Send(Offer{FromUser: r.local, Offer: offer, ToUser: to})
}

func (r *Router) SendAnswer(to *room.User, answer webrtc.SessionDescription) {
	r.Send(Answer{FromUser: r.local, Answer: answer, ToUser: to})
}

func (r *Router) SendCandidate(to *room.User, c webrtc.ICECandidateInit) {
	r.Send(Candidate{FromUser: r.local, Candidate: c, ToUser: to})
}
