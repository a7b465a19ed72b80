// Package negotiation drives the offer/answer/ICE exchange of every peer
// link in a call.
//
// The Engine is not safe for concurrent use. All of its methods run on the
// session loop, and callbacks raised by peer connections are handed back to
// that loop through Config.Post. Because the loop may process other events
// between a callback being raised and it running, every callback first
// checks that its link is still the live link for that peer.
package negotiation

import (
	"errors"
	"log/slog"
	"sort"

	"github.com/pion/webrtc/v4"

	"github.com/andrefsp/video-democry/internal/call"
	"github.com/andrefsp/video-democry/internal/media"
	"github.com/andrefsp/video-democry/internal/room"
	"github.com/andrefsp/video-democry/internal/tracks"
)

// DefaultMaxLinkRecreations bounds how often a failed link is rebuilt for
// the same peer before the failure is surfaced.
const DefaultMaxLinkRecreations = 3

type Config struct {
	Local    room.User
	Media    *media.LocalStream
	Topology Topology

	Factory  Factory
	Signaler Signaler
	Room     *room.Registry
	Tracks   *tracks.Registry
	Sink     media.Sink

	// Post schedules fn on the session loop. It must not block. When nil,
	// callbacks run inline on whatever goroutine raised them.
	Post func(fn func())

	MaxLinkRecreations int
	Notify             call.Notifier
	Logger             *slog.Logger
}

type Engine struct {
	cfg Config
	log *slog.Logger

	links     map[string]*PeerLink
	failures  map[string]int
	exhausted map[string]bool

	// failed holds peers whose link failed since the last reconciliation.
	// Only ApplyMembership rebuilds their links.
	failed map[string]bool
	// departed holds users a reconciliation removed. No link is opened to
	// them until a later snapshot lists them again.
	departed map[string]bool
	closed   bool
}

func New(cfg Config) *Engine {
	if cfg.Topology == "" {
		cfg.Topology = TopologyMesh
	}
	if cfg.MaxLinkRecreations <= 0 {
		cfg.MaxLinkRecreations = DefaultMaxLinkRecreations
	}
	if cfg.Tracks == nil {
		cfg.Tracks = tracks.NewRegistry()
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		cfg:       cfg,
		log:       logger.With("component", "negotiation", "local", cfg.Local.ID),
		links:     make(map[string]*PeerLink),
		failures:  make(map[string]int),
		exhausted: make(map[string]bool),
		failed:    make(map[string]bool),
		departed:  make(map[string]bool),
	}
}

// ApplyMembership reacts to a room reconciliation: links for departed users
// are torn down, users without a link get one (unless their link has failed
// too often), and tracks that arrived before their owner was known are
// assigned.
func (e *Engine) ApplyMembership(diff room.Diff) {
	if e.closed {
		return
	}

	for _, u := range diff.Left {
		if link, ok := e.links[u.ID]; ok {
			e.teardown(link, StateClosed)
		}
		delete(e.failures, u.ID)
		delete(e.exhausted, u.ID)
		e.departed[u.ID] = true
		e.cfg.Tracks.RemoveStream(u.StreamID)
	}
	clear(e.failed)

	switch e.cfg.Topology {
	case TopologySFU:
		if _, ok := e.links[SFUPeerID]; !ok {
			e.ensureLink(room.User{})
		}
	default:
		users := e.cfg.Room.Users()
		members := make(map[string]bool, len(users))
		for _, u := range users {
			members[u.ID] = true
			delete(e.departed, u.ID)
		}

		// Links opened on demand survive until their owner is first listed.
		for _, id := range e.sortedIDs() {
			link := e.links[id]
			if !members[id] && (link.member || e.departed[id]) {
				e.log.Debug("dropping link to non-member", "peer", id)
				e.teardown(link, StateClosed)
			}
		}

		for _, u := range users {
			if u.ID == e.cfg.Local.ID {
				continue
			}
			link, ok := e.links[u.ID]
			if !ok {
				link = e.ensureLink(u)
			}
			if link != nil {
				link.member = true
			}
		}
	}

	e.resolveOwners()
}

// HandleOffer applies a remote offer and answers it.
func (e *Engine) HandleOffer(from room.User, offer webrtc.SessionDescription) {
	link := e.ensureLink(from)
	if link == nil {
		return
	}
	log := e.log.With("peer", link.remote.ID)

	if link.state == StateHaveLocalOffer {
		if link.initiator {
			log.Debug("ignoring colliding offer")
			return
		}
		rollback := webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}
		if err := link.conn.SetLocalDescription(rollback); err != nil {
			log.Warn("roll back local offer", "err", e.transient("rollback offer", link, err))
			return
		}
		e.setState(link, link.idle)
	}
	if !link.state.idle() {
		log.Debug("offer ignored", "state", link.state)
		return
	}

	hadRemote := link.hasRemoteDescription
	if err := link.conn.SetRemoteDescription(offer); err != nil {
		log.Warn("apply remote offer", "err", e.transient("set remote description", link, err))
		return
	}
	if !e.current(link) {
		return
	}
	link.hasRemoteDescription = true
	e.setState(link, StateHaveRemoteOffer)
	e.flushCandidates(link)
	if !e.current(link) {
		return
	}

	answer, err := link.conn.CreateAnswer()
	if err == nil {
		err = link.conn.SetLocalDescription(answer)
	}
	if err != nil {
		log.Warn("answer offer", "err", e.transient("create answer", link, err))
		if rbErr := link.conn.SetRemoteDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); rbErr != nil {
			log.Debug("roll back remote offer", "err", rbErr)
		}
		link.hasRemoteDescription = hadRemote
		e.setState(link, link.idle)
		return
	}
	if !e.current(link) {
		return
	}

	link.idle = StateStable
	e.setState(link, StateStable)
	e.cfg.Signaler.SendAnswer(e.recipient(link), answer)
}

// HandleAnswer completes a locally initiated exchange.
func (e *Engine) HandleAnswer(from room.User, answer webrtc.SessionDescription) {
	link, ok := e.links[e.key(from)]
	if !ok {
		e.log.Debug("answer for unknown link", "peer", from.ID)
		return
	}
	log := e.log.With("peer", link.remote.ID)
	if link.state != StateHaveLocalOffer {
		log.Debug("answer ignored", "state", link.state)
		return
	}

	if err := link.conn.SetRemoteDescription(answer); err != nil {
		log.Warn("apply remote answer", "err", e.transient("set remote description", link, err))
		if rbErr := link.conn.SetLocalDescription(webrtc.SessionDescription{Type: webrtc.SDPTypeRollback}); rbErr != nil {
			log.Debug("roll back local offer", "err", rbErr)
		}
		e.setState(link, link.idle)
		return
	}
	if !e.current(link) {
		return
	}

	link.hasRemoteDescription = true
	link.idle = StateStable
	e.setState(link, StateStable)
	e.flushCandidates(link)
}

// HandleCandidate applies a remote ICE candidate, or buffers it until the
// link has a remote description.
func (e *Engine) HandleCandidate(from room.User, c webrtc.ICECandidateInit) {
	link := e.ensureLink(from)
	if link == nil {
		return
	}
	if !link.hasRemoteDescription {
		link.pendingRemoteCandidates = append(link.pendingRemoteCandidates, c)
		return
	}
	e.applyCandidate(link, c)
}

// RequestRenegotiation handles a relay hint that a fresh exchange is
// needed. An empty userID addresses every link.
func (e *Engine) RequestRenegotiation(userID string) {
	if userID != "" || e.cfg.Topology == TopologySFU {
		if link, ok := e.links[e.key(room.User{ID: userID})]; ok {
			e.negotiate(link, "relay")
		}
		return
	}
	for _, id := range e.sortedIDs() {
		e.negotiate(e.links[id], "relay")
	}
}

// Link returns a snapshot of the link to userID.
func (e *Engine) Link(userID string) (LinkInfo, bool) {
	link, ok := e.links[e.key(room.User{ID: userID})]
	if !ok {
		return LinkInfo{}, false
	}
	return link.info(), true
}

// Links returns snapshots of every live link ordered by peer id.
func (e *Engine) Links() []LinkInfo {
	out := make([]LinkInfo, 0, len(e.links))
	for _, id := range e.sortedIDs() {
		out = append(out, e.links[id].info())
	}
	return out
}

// Close tears down every link. The engine ignores all further input.
func (e *Engine) Close() {
	for _, id := range e.sortedIDs() {
		e.teardown(e.links[id], StateClosed)
	}
	e.closed = true
}

func (e *Engine) negotiate(link *PeerLink, reason string) {
	log := e.log.With("peer", link.remote.ID, "reason", reason)

	// Offers only start from a quiet link, and a fresh link only offers
	// from the designated side. A dropped request is raised again by the
	// connection once it is stable.
	if link.state != StateStable && !(link.state == StateNew && link.initiator) {
		log.Debug("negotiation deferred", "state", link.state)
		return
	}

	offer, err := link.conn.CreateOffer()
	if err == nil {
		err = link.conn.SetLocalDescription(offer)
	}
	if err != nil {
		log.Warn("create offer", "err", e.transient("create offer", link, err))
		return
	}
	if !e.current(link) {
		return
	}

	link.idle = link.state
	e.setState(link, StateHaveLocalOffer)
	e.cfg.Signaler.SendOffer(e.recipient(link), offer)
}

func (e *Engine) flushCandidates(link *PeerLink) {
	for len(link.pendingRemoteCandidates) > 0 {
		if !e.current(link) {
			link.pendingRemoteCandidates = nil
			return
		}
		c := link.pendingRemoteCandidates[0]
		link.pendingRemoteCandidates = link.pendingRemoteCandidates[1:]
		e.applyCandidate(link, c)
	}
	link.pendingRemoteCandidates = nil
}

func (e *Engine) applyCandidate(link *PeerLink, c webrtc.ICECandidateInit) {
	if err := link.conn.AddICECandidate(c); err != nil {
		err = call.NewPeerError("add ice candidate", link.remote.ID, errors.Join(call.ErrCandidateApply, err))
		e.log.Warn("skipping candidate", "peer", link.remote.ID, "candidate", c.Candidate, "err", err)
	}
}

func (e *Engine) ensureLink(from room.User) *PeerLink {
	key := e.key(from)
	if link, ok := e.links[key]; ok {
		return link
	}
	if e.closed || key == "" || key == e.cfg.Local.ID {
		return nil
	}
	if e.exhausted[key] {
		return nil
	}
	if e.failed[key] || e.departed[key] {
		e.log.Debug("no link until the next reconciliation", "peer", key, "failed", e.failed[key])
		return nil
	}
	if e.failures[key] > e.cfg.MaxLinkRecreations {
		e.exhausted[key] = true
		err := call.NewPeerError("recreate link", key, call.ErrLinksExhausted)
		e.log.Error("giving up on peer", "peer", key, "failures", e.failures[key], "err", err)
		e.cfg.Notify.Notify(call.Status{Kind: call.StatusLinkExhausted, Peer: key, Detail: err.Error()})
		return nil
	}

	remote := from
	if e.cfg.Topology == TopologySFU {
		remote = room.User{ID: SFUPeerID, Username: SFUPeerID}
	} else if u, err := e.cfg.Room.UserByID(from.ID); err == nil {
		remote = u
	}

	conn, err := e.cfg.Factory.New(e.cfg.Local, remote)
	if err != nil {
		e.log.Error("create peer connection", "peer", key, "err", call.NewPeerError("create peer connection", key, err))
		return nil
	}

	link := &PeerLink{
		remote:    remote,
		conn:      conn,
		initiator: e.cfg.Topology == TopologySFU || e.cfg.Local.ID < remote.ID,
		state:     StateNew,
		idle:      StateNew,
		connState: webrtc.PeerConnectionStateNew,
		alive:     true,
	}
	e.links[key] = link
	e.wire(link)

	if e.cfg.Media != nil {
		for _, t := range e.cfg.Media.Tracks {
			if err := conn.AddTrack(t); err != nil {
				e.log.Warn("attach local track", "peer", key, "track", t.ID(), "err", err)
			}
		}
	}

	e.log.Debug("link created", "peer", key, "initiator", link.initiator, "failures", e.failures[key])
	e.notifyState(link)

	// Not every connection raises negotiationneeded for a link without
	// media, so the initiator starts the first exchange itself.
	if link.initiator {
		e.post(link, func() {
			if link.state == StateNew {
				e.negotiate(link, "link created")
			}
		})
	}
	return link
}

func (e *Engine) wire(link *PeerLink) {
	link.conn.OnICECandidate(func(c webrtc.ICECandidateInit) {
		e.post(link, func() {
			e.cfg.Signaler.SendCandidate(e.recipient(link), c)
		})
	})
	link.conn.OnNegotiationNeeded(func() {
		e.post(link, func() {
			e.negotiate(link, "negotiationneeded")
		})
	})
	link.conn.OnTrack(func(t RemoteTrack) {
		e.post(link, func() {
			e.handleTrack(link, t)
		})
	})
	link.conn.OnConnectionStateChange(func(s webrtc.PeerConnectionState) {
		e.post(link, func() {
			e.handleConnectionState(link, s)
		})
	})
	link.conn.OnHello(func(h Hello) {
		e.post(link, func() {
			link.hello = &h
			e.cfg.Notify.Notify(call.Status{
				Kind:   call.StatusPeerHello,
				Peer:   link.remote.ID,
				Detail: h.String(),
			})
		})
	})
}

// post runs fn on the loop if link is still live when fn gets its turn.
func (e *Engine) post(link *PeerLink, fn func()) {
	guarded := func() {
		if e.current(link) {
			fn()
		}
	}
	if e.cfg.Post == nil {
		guarded()
		return
	}
	e.cfg.Post(guarded)
}

func (e *Engine) handleTrack(link *PeerLink, t RemoteTrack) {
	kind, err := tracks.ParseKind(t.Kind)
	if err != nil {
		e.log.Warn("ignoring track", "peer", link.remote.ID, "err", err)
		return
	}

	replaced := e.cfg.Tracks.Add(t.StreamID, kind, t.Handle)
	owner, err := e.cfg.Room.UserByStreamID(t.StreamID)
	if err == nil {
		e.cfg.Tracks.Assign(t.StreamID, owner.ID)
	} else {
		e.log.Debug("track owner not known yet", "stream", t.StreamID, "kind", kind)
	}
	e.log.Info("track received", "peer", link.remote.ID, "stream", t.StreamID, "kind", kind, "replaced", replaced)

	if e.cfg.Sink != nil {
		e.cfg.Sink.Attach(t.StreamID, kind, t.Handle)
	}
}

func (e *Engine) handleConnectionState(link *PeerLink, s webrtc.PeerConnectionState) {
	link.connState = s
	switch s {
	case webrtc.PeerConnectionStateConnected:
		delete(e.failures, link.remote.ID)
		e.notifyState(link)
	case webrtc.PeerConnectionStateFailed:
		e.failures[link.remote.ID]++
		e.failed[link.remote.ID] = true
		err := call.NewPeerError("connection", link.remote.ID, call.ErrLinkFailure)
		e.log.Warn("link failed", "peer", link.remote.ID, "failures", e.failures[link.remote.ID], "err", err)
		e.teardown(link, StateFailed)
	default:
		e.notifyState(link)
	}
}

func (e *Engine) teardown(link *PeerLink, final State) {
	link.alive = false
	link.pendingRemoteCandidates = nil
	key := e.key(link.remote)
	if e.links[key] == link {
		delete(e.links, key)
	}
	if err := link.conn.Close(); err != nil {
		e.log.Debug("close peer connection", "peer", link.remote.ID, "err", err)
	}
	e.setState(link, final)
}

func (e *Engine) resolveOwners() {
	for _, streamID := range e.cfg.Tracks.Unassigned() {
		if u, err := e.cfg.Room.UserByStreamID(streamID); err == nil {
			e.cfg.Tracks.Assign(streamID, u.ID)
			e.log.Debug("deferred track owner resolved", "stream", streamID, "owner", u.ID)
		}
	}
}

func (e *Engine) setState(link *PeerLink, s State) {
	if link.state == s {
		return
	}
	link.state = s
	e.notifyState(link)
}

func (e *Engine) notifyState(link *PeerLink) {
	e.cfg.Notify.Notify(call.Status{
		Kind:   call.StatusLinkState,
		Peer:   link.remote.ID,
		State:  link.state.String(),
		Detail: link.connState.String(),
	})
}

func (e *Engine) transient(op string, link *PeerLink, err error) error {
	return call.NewPeerError(op, link.remote.ID, errors.Join(call.ErrTransientNegotiation, err))
}

func (e *Engine) current(link *PeerLink) bool {
	return link.alive && e.links[e.key(link.remote)] == link
}

func (e *Engine) key(u room.User) string {
	if e.cfg.Topology == TopologySFU {
		return SFUPeerID
	}
	return u.ID
}

func (e *Engine) recipient(link *PeerLink) *room.User {
	if e.cfg.Topology == TopologySFU {
		return nil
	}
	to := link.remote
	return &to
}

func (e *Engine) sortedIDs() []string {
	ids := make([]string, 0, len(e.links))
	for id := range e.links {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
