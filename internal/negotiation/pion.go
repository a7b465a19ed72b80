package negotiation

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/pion/interceptor"
	"github.com/pion/interceptor/pkg/intervalpli"
	"github.com/pion/logging"
	"github.com/pion/transport/v3"
	"github.com/pion/webrtc/v4"

	"github.com/andrefsp/video-democry/internal/room"
)

// DefaultPLIInterval is how often a keyframe is requested on inbound video.
const DefaultPLIInterval = 3 * time.Second

type PionConfig struct {
	ICEServers         []webrtc.ICEServer
	ICETransportPolicy webrtc.ICETransportPolicy

	// Net replaces the host network, e.g. with a vnet in tests.
	Net           transport.Net
	LoggerFactory logging.LoggerFactory
	PLIInterval   time.Duration

	// Version is announced to peers in the hello message.
	Version string
	Logger  *slog.Logger
}

// PionFactory builds pion peer connections that share one API instance.
type PionFactory struct {
	api *webrtc.API
	cfg PionConfig
	log *slog.Logger
}

func NewPionFactory(cfg PionConfig) (*PionFactory, error) {
	if cfg.PLIInterval <= 0 {
		cfg.PLIInterval = DefaultPLIInterval
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	mediaEngine := &webrtc.MediaEngine{}
	if err := mediaEngine.RegisterDefaultCodecs(); err != nil {
		return nil, fmt.Errorf("register default codecs: %w", err)
	}

	interceptorRegistry := &interceptor.Registry{}
	if err := webrtc.RegisterDefaultInterceptors(mediaEngine, interceptorRegistry); err != nil {
		return nil, fmt.Errorf("register default interceptors: %w", err)
	}
	pli, err := intervalpli.NewReceiverInterceptor(intervalpli.GeneratorInterval(cfg.PLIInterval))
	if err != nil {
		return nil, fmt.Errorf("create PLI interceptor: %w", err)
	}
	interceptorRegistry.Add(pli)

	se := webrtc.SettingEngine{}
	if cfg.LoggerFactory != nil {
		se.LoggerFactory = cfg.LoggerFactory
	}
	if cfg.Net != nil {
		se.SetNet(cfg.Net)
	}

	api := webrtc.NewAPI(
		webrtc.WithSettingEngine(se),
		webrtc.WithMediaEngine(mediaEngine),
		webrtc.WithInterceptorRegistry(interceptorRegistry),
	)
	return &PionFactory{api: api, cfg: cfg, log: logger.With("component", "pion")}, nil
}

func (f *PionFactory) New(local, remote room.User) (PeerConnection, error) {
	pc, err := f.api.NewPeerConnection(webrtc.Configuration{
		ICEServers:         f.cfg.ICEServers,
		ICETransportPolicy: f.cfg.ICETransportPolicy,
	})
	if err != nil {
		return nil, fmt.Errorf("create peer connection: %w", err)
	}

	c := &pionConn{
		pc:  pc,
		log: f.log.With("peer", remote.ID),
		hello: Hello{
			UserID:   local.ID,
			Username: local.Username,
			Version:  f.cfg.Version,
		},
	}
	pc.OnNegotiationNeeded(c.negotiationNeeded)

	if err := c.openControl(); err != nil {
		_ = pc.Close()
		return nil, err
	}
	return c, nil
}

// pionConn adapts *webrtc.PeerConnection to PeerConnection and runs the
// hello exchange on a negotiated data channel.
type pionConn struct {
	pc    *webrtc.PeerConnection
	log   *slog.Logger
	hello Hello

	mu                sync.Mutex
	onNegotiation     func()
	negotiationQueued bool
	onHello           func(Hello)
	remoteHello       *Hello
}

func (c *pionConn) openControl() error {
	negotiated := true
	id := controlChannelID
	dc, err := c.pc.CreateDataChannel(controlChannelLabel, &webrtc.DataChannelInit{
		Negotiated: &negotiated,
		ID:         &id,
	})
	if err != nil {
		return fmt.Errorf("create control channel: %w", err)
	}

	dc.OnOpen(func() {
		data, err := encodeHello(c.hello)
		if err != nil {
			c.log.Warn("encode hello", "err", err)
			return
		}
		if err := dc.Send(data); err != nil {
			c.log.Debug("send hello", "err", err)
		}
	})
	dc.OnMessage(func(msg webrtc.DataChannelMessage) {
		h, ok, err := decodeControl(msg.Data)
		if err != nil {
			c.log.Debug("control message", "err", err)
			return
		}
		if !ok {
			return
		}
		c.mu.Lock()
		fn := c.onHello
		if fn == nil {
			c.remoteHello = &h
		}
		c.mu.Unlock()
		if fn != nil {
			fn(h)
		}
	})
	return nil
}

func (c *pionConn) negotiationNeeded() {
	c.mu.Lock()
	fn := c.onNegotiation
	if fn == nil {
		c.negotiationQueued = true
	}
	c.mu.Unlock()
	if fn != nil {
		fn()
	}
}

func (c *pionConn) CreateOffer() (webrtc.SessionDescription, error) {
	return c.pc.CreateOffer(nil)
}

func (c *pionConn) CreateAnswer() (webrtc.SessionDescription, error) {
	return c.pc.CreateAnswer(nil)
}

func (c *pionConn) SetLocalDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetLocalDescription(desc)
}

func (c *pionConn) SetRemoteDescription(desc webrtc.SessionDescription) error {
	return c.pc.SetRemoteDescription(desc)
}

func (c *pionConn) AddICECandidate(candidate webrtc.ICECandidateInit) error {
	return c.pc.AddICECandidate(candidate)
}

func (c *pionConn) AddTrack(t webrtc.TrackLocal) error {
	sender, err := c.pc.AddTrack(t)
	if err != nil {
		return err
	}
	// RTCP has to be read for the interceptors to run.
	go func() {
		buf := make([]byte, 1500)
		for {
			if _, _, err := sender.Read(buf); err != nil {
				return
			}
		}
	}()
	return nil
}

func (c *pionConn) OnICECandidate(fn func(webrtc.ICECandidateInit)) {
	c.pc.OnICECandidate(func(candidate *webrtc.ICECandidate) {
		if candidate == nil {
			return
		}
		fn(candidate.ToJSON())
	})
}

func (c *pionConn) OnTrack(fn func(RemoteTrack)) {
	c.pc.OnTrack(func(track *webrtc.TrackRemote, _ *webrtc.RTPReceiver) {
		fn(RemoteTrack{
			StreamID: track.StreamID(),
			Kind:     track.Kind().String(),
			Handle:   track,
		})
	})
}

func (c *pionConn) OnNegotiationNeeded(fn func()) {
	c.mu.Lock()
	c.onNegotiation = fn
	queued := c.negotiationQueued
	c.negotiationQueued = false
	c.mu.Unlock()
	if queued && fn != nil {
		fn()
	}
}

func (c *pionConn) OnConnectionStateChange(fn func(webrtc.PeerConnectionState)) {
	c.pc.OnConnectionStateChange(fn)
}

func (c *pionConn) OnHello(fn func(Hello)) {
	c.mu.Lock()
	c.onHello = fn
	early := c.remoteHello
	c.remoteHello = nil
	c.mu.Unlock()
	if early != nil && fn != nil {
		fn(*early)
	}
}

func (c *pionConn) Close() error {
	return c.pc.Close()
}
