// Package session runs one participant's membership in a room: it owns the
// local media, the room and track registries, the negotiation engine and
// the relay channel, and restarts all of them when the relay is lost.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/google/uuid"

	"github.com/andrefsp/video-democry/internal/call"
	"github.com/andrefsp/video-democry/internal/media"
	"github.com/andrefsp/video-democry/internal/negotiation"
	"github.com/andrefsp/video-democry/internal/room"
	"github.com/andrefsp/video-democry/internal/signaling"
	"github.com/andrefsp/video-democry/internal/tracks"
)

const (
	DefaultMaxRestarts    = 5
	DefaultConnectRetries = 5

	statusBuffer = 64
)

// Relay is the session's view of the relay channel.
type Relay interface {
	Connect(ctx context.Context) error
	Send(data []byte) error
	Incoming() <-chan []byte
	Err() error
	Close()
}

type Config struct {
	// Endpoint is the relay WebSocket URL including the room query.
	Endpoint string
	RoomID   string
	Username string
	Topology negotiation.Topology

	Constraints media.Constraints
	Source      media.Source
	Factory     negotiation.Factory
	Sink        media.Sink

	// MaxRestarts bounds consecutive restarts that never reach the room.
	MaxRestarts        int
	MaxLinkRecreations int
	ConnectRetries     uint64

	// NewRelay builds the relay channel for one attempt. Defaults to a
	// signaling.Client.
	NewRelay func(endpoint string, logger *slog.Logger) Relay
	// NewBackOff builds the delay policy between connect attempts.
	NewBackOff func() backoff.BackOff

	Logger *slog.Logger
}

type Session struct {
	cfg      Config
	log      *slog.Logger
	statuses chan call.Status

	mu       sync.Mutex
	links    []negotiation.LinkInfo
	members  []room.User
	local    room.User
	restarts int
}

func New(cfg Config) *Session {
	if cfg.Topology == "" {
		cfg.Topology = negotiation.TopologyMesh
	}
	if cfg.MaxRestarts <= 0 {
		cfg.MaxRestarts = DefaultMaxRestarts
	}
	if cfg.ConnectRetries == 0 {
		cfg.ConnectRetries = DefaultConnectRetries
	}
	if cfg.NewRelay == nil {
		cfg.NewRelay = func(endpoint string, logger *slog.Logger) Relay {
			return signaling.NewClient(endpoint, logger)
		}
	}
	if cfg.NewBackOff == nil {
		cfg.NewBackOff = func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 500 * time.Millisecond
			b.MaxInterval = 10 * time.Second
			return b
		}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Session{
		cfg:      cfg,
		log:      logger.With("component", "session", "room", cfg.RoomID),
		statuses: make(chan call.Status, statusBuffer),
	}
}

// Statuses delivers status changes. Changes are dropped when the reader
// falls behind.
func (s *Session) Statuses() <-chan call.Status {
	return s.statuses
}

func (s *Session) notify(st call.Status) {
	if st.Room == "" {
		st.Room = s.cfg.RoomID
	}
	if st.At.IsZero() {
		st.At = time.Now()
	}
	select {
	case s.statuses <- st:
	default:
	}
}

// Links returns the link snapshot taken after the last processed event.
func (s *Session) Links() []negotiation.LinkInfo {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]negotiation.LinkInfo(nil), s.links...)
}

// Members returns the room membership as last reconciled.
func (s *Session) Members() []room.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]room.User(nil), s.members...)
}

// Local returns the local user of the current attempt.
func (s *Session) Local() room.User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.local
}

// Restarts returns how many times the session has been rebuilt.
func (s *Session) Restarts() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.restarts
}

// Run keeps the participant in the room until ctx is done. Losing the relay
// tears everything down and starts over with fresh media, a fresh user id
// and empty registries. Run gives up after MaxRestarts consecutive
// attempts that never got a membership snapshot.
func (s *Session) Run(ctx context.Context) error {
	defer close(s.statuses)

	failures := 0
	for {
		joined, err := s.runOnce(ctx)
		if ctx.Err() != nil {
			s.notify(call.Status{Kind: call.StatusSessionStopped})
			return nil
		}
		if !errors.Is(err, call.ErrTransportFailure) {
			s.notify(call.Status{Kind: call.StatusSessionStopped, Detail: errString(err)})
			return err
		}

		if joined {
			failures = 0
		}
		failures++
		s.log.Warn("relay lost", "err", err, "consecutive", failures)
		s.notify(call.Status{Kind: call.StatusTransportLost, Detail: err.Error()})
		if failures > s.cfg.MaxRestarts {
			s.notify(call.Status{Kind: call.StatusSessionStopped, Detail: err.Error()})
			return fmt.Errorf("giving up after %d restarts: %w", s.cfg.MaxRestarts, err)
		}

		s.mu.Lock()
		s.restarts++
		s.mu.Unlock()
		s.notify(call.Status{Kind: call.StatusRestarting, Detail: fmt.Sprintf("attempt %d", failures)})
	}
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

// runOnce is one full attempt. joined reports whether a membership
// snapshot was received.
func (s *Session) runOnce(ctx context.Context) (joined bool, err error) {
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var stream *media.LocalStream
	if s.cfg.Source != nil {
		stream, err = s.cfg.Source.Acquire(s.cfg.Constraints)
		if err != nil {
			return false, call.NewError("acquire media", err)
		}
		defer stream.Close()
	}

	local := room.User{
		ID:       uuid.NewString(),
		Username: s.cfg.Username,
		StreamID: uuid.NewString(),
	}
	if stream != nil {
		local.StreamID = stream.ID
	}
	s.mu.Lock()
	s.local = local
	s.links = nil
	s.members = nil
	s.mu.Unlock()

	log := s.log.With("local", local.ID)
	s.notify(call.Status{Kind: call.StatusConnecting, Detail: s.cfg.Endpoint})

	relay, err := s.connect(runCtx, log)
	if err != nil {
		return false, err
	}
	defer relay.Close()

	events := newEventQueue()

	roomReg := room.NewRegistry(s.cfg.RoomID)
	h := &handler{session: s, room: roomReg, log: log}
	router := signaling.NewRouter(local, relay, h, log)

	engine := negotiation.New(negotiation.Config{
		Local:              local,
		Media:              stream,
		Topology:           s.cfg.Topology,
		Factory:            s.cfg.Factory,
		Signaler:           router,
		Room:               roomReg,
		Tracks:             tracks.NewRegistry(),
		Sink:               s.cfg.Sink,
		Post:               events.push,
		MaxLinkRecreations: s.cfg.MaxLinkRecreations,
		Notify:             s.notify,
		Logger:             log,
	})
	h.engine = engine
	defer func() {
		engine.Close()
		s.snapshot(engine, roomReg)
	}()

	router.Join()
	log.Info("joining room", "endpoint", s.cfg.Endpoint)

	incoming := relay.Incoming()
	for {
		select {
		case <-ctx.Done():
			return h.joined, ctx.Err()

		case data, ok := <-incoming:
			if !ok {
				err := relay.Err()
				if err == nil || !errors.Is(err, call.ErrTransportFailure) {
					err = call.NewError("relay", errors.Join(call.ErrTransportFailure, err))
				}
				return h.joined, err
			}
			router.Dispatch(data)

		case <-events.ready:
			for _, fn := range events.take() {
				fn()
			}
		}
		s.snapshot(engine, roomReg)
	}
}

func (s *Session) connect(ctx context.Context, log *slog.Logger) (Relay, error) {
	var relay Relay
	attempt := 0
	op := func() error {
		attempt++
		r := s.cfg.NewRelay(s.cfg.Endpoint, log)
		if err := r.Connect(ctx); err != nil {
			log.Debug("connect failed", "attempt", attempt, "err", err)
			return err
		}
		relay = r
		return nil
	}

	b := backoff.WithContext(backoff.WithMaxRetries(s.cfg.NewBackOff(), s.cfg.ConnectRetries), ctx)
	if err := backoff.Retry(op, b); err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		if !errors.Is(err, call.ErrTransportFailure) {
			err = errors.Join(call.ErrTransportFailure, err)
		}
		return nil, call.WrapError("connect relay", err, fmt.Sprintf("%d attempts", attempt))
	}
	return relay, nil
}

func (s *Session) snapshot(engine *negotiation.Engine, roomReg *room.Registry) {
	links := engine.Links()
	members := roomReg.Users()
	s.mu.Lock()
	s.links = links
	s.members = members
	s.mu.Unlock()
}
