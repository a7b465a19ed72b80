package session

import (
	"fmt"
	"log/slog"

	"github.com/andrefsp/video-democry/internal/call"
	"github.com/andrefsp/video-democry/internal/negotiation"
	"github.com/andrefsp/video-democry/internal/room"
	"github.com/andrefsp/video-democry/internal/signaling"
)

// handler applies relay messages to the current attempt's registries and
// engine. It runs on the session loop.
type handler struct {
	session *Session
	room    *room.Registry
	engine  *negotiation.Engine
	log     *slog.Logger

	joined bool
}

func (h *handler) reconcile(users []room.User) {
	diff := h.room.Reconcile(users)
	if !h.joined {
		h.joined = true
		h.session.notify(call.Status{Kind: call.StatusJoined, Detail: h.room.ID()})
	}
	if diff.Empty() {
		return
	}
	for _, u := range diff.Joined {
		h.log.Info("member joined", "user", u.ID, "username", u.Username)
	}
	for _, u := range diff.Left {
		h.log.Info("member left", "user", u.ID, "username", u.Username)
	}
	h.engine.ApplyMembership(diff)
	h.session.notify(call.Status{Kind: call.StatusMembers, Detail: membersDetail(h.room.Len())})
}

func membersDetail(n int) string {
	if n == 1 {
		return "1 member"
	}
	return fmt.Sprintf("%d members", n)
}

func sender(u *room.User) room.User {
	if u == nil {
		return room.User{}
	}
	return *u
}

func (h *handler) OnUserJoin(m signaling.UserJoin) {
	h.reconcile(m.RoomUsers)
}

func (h *handler) OnUserLeft(m signaling.UserLeft) {
	h.reconcile(m.RoomUsers)
}

func (h *handler) OnOffer(m signaling.RelayedOffer) {
	h.engine.HandleOffer(sender(m.FromUser), m.Offer)
}

func (h *handler) OnAnswer(m signaling.RelayedAnswer) {
	h.engine.HandleAnswer(sender(m.FromUser), m.Answer)
}

func (h *handler) OnCandidate(m signaling.RelayedCandidate) {
	h.engine.HandleCandidate(sender(m.FromUser), m.Candidate)
}

func (h *handler) OnNegotiationNeeded(m signaling.NegotiationNeeded) {
	var id string
	if m.ToUser != nil {
		id = m.ToUser.ID
	}
	h.engine.RequestRenegotiation(id)
}

func (h *handler) OnPing(signaling.Ping) {
	h.log.Debug("relay ping")
}

func (h *handler) OnRelayError(m signaling.Error) {
	err := call.WrapError("relay", call.ErrRelayRejected, m.Reason)
	h.log.Warn("relay error", "err", err)
	h.session.notify(call.Status{Kind: call.StatusRelayError, Detail: m.Reason})
}
