// Package tracks indexes inbound media tracks by the stream that carries them.
package tracks

import (
	"fmt"
	"sort"
)

// Kind is the media kind of a track.
type Kind string

const (
	KindAudio Kind = "audio"
	KindVideo Kind = "video"
)

// ParseKind maps a WebRTC kind string to a Kind.
func ParseKind(s string) (Kind, error) {
	switch Kind(s) {
	case KindAudio, KindVideo:
		return Kind(s), nil
	default:
		return "", fmt.Errorf("tracks: unknown kind %q", s)
	}
}

// Entry is one inbound track. Handle is whatever the media layer needs to
// consume the track; the registry never inspects it.
type Entry struct {
	StreamID string
	Kind     Kind
	Handle   any
}

// Registry holds at most one track per (stream, kind) and remembers which
// user owns each stream once that is known.
type Registry struct {
	streams map[string]map[Kind]Entry
	owners  map[string]string // streamID -> userID
}

func NewRegistry() *Registry {
	return &Registry{
		streams: make(map[string]map[Kind]Entry),
		owners:  make(map[string]string),
	}
}

// Add stores a track, replacing any previous track of the same kind on the
// same stream.
func (r *Registry) Add(streamID string, kind Kind, handle any) (replaced bool) {
	byKind, ok := r.streams[streamID]
	if !ok {
		byKind = make(map[Kind]Entry, 2)
		r.streams[streamID] = byKind
	}
	_, replaced = byKind[kind]
	byKind[kind] = Entry{StreamID: streamID, Kind: kind, Handle: handle}
	return replaced
}

// Assign records that userID owns streamID.
func (r *Registry) Assign(streamID, userID string) {
	if streamID == "" || userID == "" {
		return
	}
	r.owners[streamID] = userID
}

// Owner returns the user owning streamID, if known.
func (r *Registry) Owner(streamID string) (string, bool) {
	id, ok := r.owners[streamID]
	return id, ok
}

// TracksFor returns the tracks of every stream owned by userID, audio before
// video. A user that has produced no media yet has no tracks.
func (r *Registry) TracksFor(userID string) []Entry {
	var out []Entry
	for streamID, owner := range r.owners {
		if owner != userID {
			continue
		}
		for _, e := range r.streams[streamID] {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].StreamID != out[j].StreamID {
			return out[i].StreamID < out[j].StreamID
		}
		return out[i].Kind < out[j].Kind
	})
	return out
}

// Unassigned returns the ids of streams that carry tracks but whose owner is
// not known yet.
func (r *Registry) Unassigned() []string {
	var out []string
	for streamID := range r.streams {
		if _, ok := r.owners[streamID]; !ok {
			out = append(out, streamID)
		}
	}
	sort.Strings(out)
	return out
}

// RemoveStream forgets the stream's tracks and ownership.
func (r *Registry) RemoveStream(streamID string) {
	delete(r.streams, streamID)
	delete(r.owners, streamID)
}

// Len returns the total number of tracks.
func (r *Registry) Len() int {
	n := 0
	for _, byKind := range r.streams {
		n += len(byKind)
	}
	return n
}
