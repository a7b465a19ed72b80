package session

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/cenkalti/backoff"
	"github.com/gin-gonic/gin"
	"github.com/pion/webrtc/v4"

	"github.com/andrefsp/video-democry/internal/call"
	"github.com/andrefsp/video-democry/internal/media"
	"github.com/andrefsp/video-democry/internal/negotiation"
	"github.com/andrefsp/video-democry/internal/relay"
	"github.com/andrefsp/video-democry/internal/room"
	"github.com/andrefsp/video-democry/internal/signaling"
)

// stubConn completes offer/answer exchanges without any transport.
type stubConn struct{}

func (stubConn) CreateOffer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"}, nil
}

func (stubConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return webrtc.SessionDescription{Type: webrtc.SDPTypeAnswer, SDP: "v=0"}, nil
}

func (stubConn) SetLocalDescription(webrtc.SessionDescription) error  { return nil }
func (stubConn) SetRemoteDescription(webrtc.SessionDescription) error { return nil }
func (stubConn) AddICECandidate(webrtc.ICECandidateInit) error        { return nil }
func (stubConn) AddTrack(webrtc.TrackLocal) error                     { return nil }

func (stubConn) OnICECandidate(func(webrtc.ICECandidateInit))            {}
func (stubConn) OnTrack(func(negotiation.RemoteTrack))                    {}
func (stubConn) OnNegotiationNeeded(func())                               {}
func (stubConn) OnConnectionStateChange(func(webrtc.PeerConnectionState)) {}
func (stubConn) OnHello(func(negotiation.Hello))                          {}

func (stubConn) Close() error { return nil }

type stubFactory struct{}

func (stubFactory) New(local, remote room.User) (negotiation.PeerConnection, error) {
	return stubConn{}, nil
}

// scriptedRelay answers in/join with a snapshot holding only the joiner.
type scriptedRelay struct {
	connectErr error
	joins      chan<- *scriptedRelay

	mu       sync.Mutex
	incoming chan []byte
	user     room.User
	err      error
	closed   bool
}

func (r *scriptedRelay) Connect(ctx context.Context) error {
	if r.connectErr != nil {
		return r.connectErr
	}
	r.incoming = make(chan []byte, 16)
	return nil
}

func (r *scriptedRelay) Send(data []byte) error {
	msg, err := signaling.Decode(data)
	if err != nil {
		return err
	}
	join, ok := msg.(signaling.Join)
	if !ok {
		return nil
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return io.ErrClosedPipe
	}
	r.user = join.User
	snapshot, _ := signaling.Encode(signaling.UserJoin{RoomUsers: []room.User{join.User}})
	r.incoming <- snapshot
	if r.joins != nil {
		r.joins <- r
	}
	return nil
}

func (r *scriptedRelay) Incoming() <-chan []byte {
	return r.incoming
}

func (r *scriptedRelay) Err() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.err
}

// drop simulates the relay hanging up.
func (r *scriptedRelay) drop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return
	}
	r.closed = true
	r.err = call.NewError("read", errors.Join(call.ErrTransportFailure, io.EOF))
	close(r.incoming)
}

func (r *scriptedRelay) Close() {
	r.drop()
}

func noDelay() backoff.BackOff {
	return &backoff.ZeroBackOff{}
}

func collect(s *Session) <-chan []call.Status {
	out := make(chan []call.Status, 1)
	go func() {
		var all []call.Status
		for st := range s.Statuses() {
			all = append(all, st)
		}
		out <- all
	}()
	return out
}

func count(statuses []call.Status, kind call.StatusKind) int {
	n := 0
	for _, st := range statuses {
		if st.Kind == kind {
			n++
		}
	}
	return n
}

func TestRestartAfterRelayLoss(t *testing.T) {
	joins := make(chan *scriptedRelay, 4)
	s := New(Config{
		RoomID:     "demo",
		Username:   "alice",
		Factory:    stubFactory{},
		NewBackOff: noDelay,
		NewRelay: func(string, *slog.Logger) Relay {
			return &scriptedRelay{joins: joins}
		},
	})
	statuses := collect(s)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	first := waitJoin(t, joins)
	first.drop()
	second := waitJoin(t, joins)

	if first.user.ID == second.user.ID {
		t.Fatalf("restart reused user id %s", first.user.ID)
	}
	if first.user.StreamID == second.user.StreamID {
		t.Fatalf("restart reused stream id %s", first.user.StreamID)
	}

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run returned %v after cancel", err)
	}
	if got := s.Restarts(); got != 1 {
		t.Fatalf("restarts = %d, want 1", got)
	}

	all := <-statuses
	if count(all, call.StatusTransportLost) != 1 || count(all, call.StatusRestarting) != 1 {
		t.Fatalf("statuses = %+v", all)
	}
	if count(all, call.StatusJoined) != 2 {
		t.Fatalf("joined %d times, want 2", count(all, call.StatusJoined))
	}
	if all[len(all)-1].Kind != call.StatusSessionStopped {
		t.Fatalf("last status = %s", all[len(all)-1].Kind)
	}
}

func waitJoin(t *testing.T, joins <-chan *scriptedRelay) *scriptedRelay {
	t.Helper()
	select {
	case r := <-joins:
		return r
	case <-time.After(5 * time.Second):
		t.Fatalf("session never joined")
		return nil
	}
}

func TestGivesUpWhenRelayUnreachable(t *testing.T) {
	var mu sync.Mutex
	attempts := 0
	s := New(Config{
		RoomID:         "demo",
		Factory:        stubFactory{},
		MaxRestarts:    2,
		ConnectRetries: 1,
		NewBackOff:     noDelay,
		NewRelay: func(string, *slog.Logger) Relay {
			mu.Lock()
			attempts++
			mu.Unlock()
			return &scriptedRelay{connectErr: call.NewError("dial", errors.Join(call.ErrTransportFailure, io.EOF))}
		},
	})
	statuses := collect(s)

	err := s.Run(context.Background())
	if !errors.Is(err, call.ErrTransportFailure) {
		t.Fatalf("Run = %v, want transport failure", err)
	}

	// Three runs, each trying twice.
	mu.Lock()
	defer mu.Unlock()
	if attempts != 6 {
		t.Fatalf("connect attempts = %d, want 6", attempts)
	}
	all := <-statuses
	if count(all, call.StatusJoined) != 0 || count(all, call.StatusTransportLost) != 3 {
		t.Fatalf("statuses = %+v", all)
	}
}

func TestMediaFailureStopsRun(t *testing.T) {
	s := New(Config{
		RoomID:  "demo",
		Source:  failingSource{},
		Factory: stubFactory{},
	})
	statuses := collect(s)

	err := s.Run(context.Background())
	if !errors.Is(err, call.ErrMediaUnavailable) {
		t.Fatalf("Run = %v, want media unavailable", err)
	}
	if all := <-statuses; count(all, call.StatusRestarting) != 0 {
		t.Fatalf("media failure restarted: %+v", all)
	}
}

type failingSource struct{}

func (failingSource) Acquire(media.Constraints) (*media.LocalStream, error) {
	return nil, call.ErrMediaUnavailable
}

func TestSessionsNegotiateThroughRelay(t *testing.T) {
	gin.SetMode(gin.TestMode)
	hub := relay.NewHub(0, nil)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go hub.Run(ctx)
	srv := httptest.NewServer(relay.NewRouter(hub))
	defer srv.Close()

	endpoint := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?room=demo"
	newSession := func(name string) *Session {
		return New(Config{
			Endpoint: endpoint,
			RoomID:   "demo",
			Username: name,
			Factory:  stubFactory{},
		})
	}
	alice, bob := newSession("alice"), newSession("bob")

	var wg sync.WaitGroup
	for _, s := range []*Session{alice, bob} {
		collect(s)
		wg.Add(1)
		go func(s *Session) {
			defer wg.Done()
			_ = s.Run(ctx)
		}(s)
	}

	stable := func(s *Session) bool {
		links := s.Links()
		return len(links) == 1 && links[0].State == negotiation.StateStable
	}
	deadline := time.Now().Add(10 * time.Second)
	for !(stable(alice) && stable(bob)) {
		if time.Now().After(deadline) {
			t.Fatalf("links never settled: alice=%+v bob=%+v", alice.Links(), bob.Links())
		}
		time.Sleep(10 * time.Millisecond)
	}

	if got := alice.Links()[0].Remote.ID; got != bob.Local().ID {
		t.Fatalf("alice linked to %s, want %s", got, bob.Local().ID)
	}
	if a, b := alice.Links()[0].Initiator, bob.Links()[0].Initiator; a == b {
		t.Fatalf("both sides initiator=%v", a)
	}
	if n := len(alice.Members()); n != 2 {
		t.Fatalf("alice sees %d members", n)
	}

	cancel()
	wg.Wait()
}
