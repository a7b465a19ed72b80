package media

import (
	"log/slog"
	"sort"
	"sync"

	"github.com/pion/interceptor"

	"github.com/andrefsp/video-democry/internal/tracks"
)

// Sink consumes inbound tracks. Attach must not block.
type Sink interface {
	Attach(streamID string, kind tracks.Kind, handle any)
}

// rtpSource is satisfied by *webrtc.TrackRemote.
type rtpSource interface {
	Read(b []byte) (int, interceptor.Attributes, error)
}

// StreamStats counts what arrived on one inbound stream.
type StreamStats struct {
	StreamID string
	Kind     tracks.Kind
	Packets  uint64
	Bytes    uint64
	Ended    bool
}

// DrainSink reads every attached track until it ends so the receive
// buffers never fill, and keeps per-track counters.
type DrainSink struct {
	log *slog.Logger

	mu    sync.Mutex
	stats map[string]*StreamStats
	gen   map[string]uint64
}

func NewDrainSink(logger *slog.Logger) *DrainSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &DrainSink{
		log:   logger.With("component", "sink"),
		stats: make(map[string]*StreamStats),
		gen:   make(map[string]uint64),
	}
}

func statsKey(streamID string, kind tracks.Kind) string {
	return streamID + "/" + string(kind)
}

func (s *DrainSink) Attach(streamID string, kind tracks.Kind, handle any) {
	src, ok := handle.(rtpSource)
	if !ok {
		s.log.Warn("track handle cannot be read", "stream", streamID, "kind", kind)
		return
	}

	key := statsKey(streamID, kind)
	s.mu.Lock()
	s.gen[key]++
	gen := s.gen[key]
	s.stats[key] = &StreamStats{StreamID: streamID, Kind: kind}
	s.mu.Unlock()

	go s.drain(key, gen, src)
}

func (s *DrainSink) drain(key string, gen uint64, src rtpSource) {
	buf := make([]byte, 1500)
	for {
		n, _, err := src.Read(buf)
		s.mu.Lock()
		// A replacement track for the same key owns the counters now.
		current := s.gen[key] == gen
		st := s.stats[key]
		if current && st != nil {
			if err != nil {
				st.Ended = true
			} else {
				st.Packets++
				st.Bytes += uint64(n)
			}
		}
		s.mu.Unlock()

		if err != nil {
			s.log.Debug("inbound track ended", "track", key, "err", err)
			return
		}
	}
}

// Stats returns a snapshot sorted by stream then kind.
func (s *DrainSink) Stats() []StreamStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]StreamStats, 0, len(s.stats))
	for _, st := range s.stats {
		out = append(out, *st)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StreamID != out[j].StreamID {
			return out[i].StreamID < out[j].StreamID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}
