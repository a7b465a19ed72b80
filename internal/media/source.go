// Package media provides the local capture handle attached to every peer
// link and the sink that consumes inbound tracks.
package media

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
	pionmedia "github.com/pion/webrtc/v4/pkg/media"
	"github.com/pion/webrtc/v4/pkg/media/h264reader"

	"github.com/andrefsp/video-democry/internal/call"
)

const (
	audioFrame = 20 * time.Millisecond
	videoFrame = 33 * time.Millisecond
)

// opusSilence is the Opus comfort-noise frame (TOC 0xf8, 20ms mono SILK).
var opusSilence = []byte{0xf8, 0xff, 0xfe}

// Constraints select which local tracks to produce.
type Constraints struct {
	Audio bool

	// VideoFile is an H.264 Annex-B file played in a loop. Empty means no
	// video track.
	VideoFile string
}

// Source acquires local media.
type Source interface {
	Acquire(c Constraints) (*LocalStream, error)
}

// LocalStream is the local capture handle. It is owned by the session and
// only read by peer links.
type LocalStream struct {
	ID     string
	Tracks []webrtc.TrackLocal

	cancel context.CancelFunc
	wg     sync.WaitGroup
	once   sync.Once
}

// Close stops every feeder goroutine.
func (s *LocalStream) Close() {
	if s == nil {
		return
	}
	s.once.Do(func() {
		if s.cancel != nil {
			s.cancel()
		}
		s.wg.Wait()
	})
}

// Generator produces pion sample tracks: Opus silence for audio and an
// H.264 file for video.
type Generator struct {
	log *slog.Logger
}

func NewGenerator(logger *slog.Logger) *Generator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Generator{log: logger.With("component", "media")}
}

func (g *Generator) Acquire(c Constraints) (*LocalStream, error) {
	if !c.Audio && c.VideoFile == "" {
		return &LocalStream{ID: uuid.NewString()}, nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	stream := &LocalStream{ID: uuid.NewString(), cancel: cancel}

	if c.Audio {
		audio, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeOpus, ClockRate: 48000, Channels: 2},
			"audio",
			stream.ID,
		)
		if err != nil {
			cancel()
			return nil, call.NewError("create audio track", errors.Join(call.ErrMediaUnavailable, err))
		}
		stream.Tracks = append(stream.Tracks, audio)
		stream.wg.Add(1)
		go g.feedSilence(ctx, &stream.wg, audio)
	}

	if c.VideoFile != "" {
		file, err := os.Open(c.VideoFile)
		if err != nil {
			stream.Close()
			return nil, call.NewError("open video file", errors.Join(call.ErrMediaUnavailable, err))
		}
		video, err := webrtc.NewTrackLocalStaticSample(
			webrtc.RTPCodecCapability{MimeType: webrtc.MimeTypeH264, ClockRate: 90000},
			"video",
			stream.ID,
		)
		if err != nil {
			file.Close()
			stream.Close()
			return nil, call.NewError("create video track", errors.Join(call.ErrMediaUnavailable, err))
		}
		stream.Tracks = append(stream.Tracks, video)
		stream.wg.Add(1)
		go g.playH264(ctx, &stream.wg, file, video)
	}

	g.log.Debug("local media acquired", "stream", stream.ID, "tracks", len(stream.Tracks))
	return stream, nil
}

func (g *Generator) feedSilence(ctx context.Context, wg *sync.WaitGroup, track *webrtc.TrackLocalStaticSample) {
	defer wg.Done()

	ticker := time.NewTicker(audioFrame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := track.WriteSample(pionmedia.Sample{Data: opusSilence, Duration: audioFrame}); err != nil {
				g.log.Debug("write audio sample", "err", err)
			}
		}
	}
}

func (g *Generator) playH264(ctx context.Context, wg *sync.WaitGroup, file *os.File, track *webrtc.TrackLocalStaticSample) {
	defer wg.Done()
	defer file.Close()

	reader, err := h264reader.NewReader(file)
	if err != nil {
		g.log.Error("open h264 stream", "err", err)
		return
	}

	ticker := time.NewTicker(videoFrame)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			nal, err := reader.NextNAL()
			if errors.Is(err, io.EOF) {
				if _, err := file.Seek(0, io.SeekStart); err != nil {
					g.log.Error("rewind video file", "err", err)
					return
				}
				if reader, err = h264reader.NewReader(file); err != nil {
					g.log.Error("reopen h264 stream", "err", err)
					return
				}
				continue
			}
			if err != nil {
				g.log.Error("read h264 nal", "err", err)
				return
			}
			if err := track.WriteSample(pionmedia.Sample{Data: nal.Data, Duration: videoFrame}); err != nil {
				g.log.Debug("write video sample", "err", err)
			}
		}
	}
}

// String describes the stream for logs.
func (s *LocalStream) String() string {
	if s == nil {
		return "<no media>"
	}
	return fmt.Sprintf("%s (%d tracks)", s.ID, len(s.Tracks))
}
