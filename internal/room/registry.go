package room

import (
	"errors"
	"fmt"
)

// ErrNotFound is returned when no user in the room matches a lookup.
var ErrNotFound = errors.New("room: user not found")

// User identifies a participant and the media stream it contributes.
type User struct {
	ID       string `json:"id"`
	Username string `json:"username,omitempty"`
	StreamID string `json:"streamID"`
}

func (u User) String() string {
	if u.Username != "" {
		return fmt.Sprintf("%s (%s)", u.Username, u.ID)
	}
	return u.ID
}

// Diff is the result of a reconciliation.
type Diff struct {
	Joined []User
	Left   []User
}

// Empty reports whether the reconciliation changed nothing.
func (d Diff) Empty() bool {
	return len(d.Joined) == 0 && len(d.Left) == 0
}

// Registry is the local view of room membership. It is reconciled against
// the snapshot pushed by the relay rather than patched incrementally, so a
// lost join or leave message is repaired by the next snapshot.
//
// Registry is not safe for concurrent use; it is owned by the session loop.
type Registry struct {
	id    string
	order []string
	users map[string]User
}

// NewRegistry creates an empty room.
func NewRegistry(id string) *Registry {
	return &Registry{
		id:    id,
		users: make(map[string]User),
	}
}

// ID returns the room identifier.
func (r *Registry) ID() string {
	return r.id
}

// Reconcile replaces the membership with users and returns what changed.
// Users are joined in the order given; removals follow local insertion order.
// A user whose stream changed is reported as having left and rejoined.
func (r *Registry) Reconcile(users []User) Diff {
	next := make(map[string]User, len(users))
	nextOrder := make([]string, 0, len(users))
	for _, u := range users {
		if u.ID == "" {
			continue
		}
		if _, dup := next[u.ID]; dup {
			continue
		}
		next[u.ID] = u
		nextOrder = append(nextOrder, u.ID)
	}

	var diff Diff
	kept := make([]string, 0, len(r.order))
	for _, id := range r.order {
		cur := r.users[id]
		if nu, ok := next[id]; ok && nu.StreamID == cur.StreamID {
			kept = append(kept, id)
			continue
		}
		diff.Left = append(diff.Left, cur)
		delete(r.users, id)
	}
	r.order = kept

	for _, id := range nextOrder {
		if _, ok := r.users[id]; ok {
			continue
		}
		u := next[id]
		r.users[id] = u
		r.order = append(r.order, id)
		diff.Joined = append(diff.Joined, u)
	}

	return diff
}

// UserByID returns the member with the given id.
func (r *Registry) UserByID(id string) (User, error) {
	u, ok := r.users[id]
	if !ok {
		return User{}, fmt.Errorf("%w: id %q", ErrNotFound, id)
	}
	return u, nil
}

// UserByStreamID returns the member owning streamID. Tracks can arrive
// before the membership snapshot that names their owner, so callers must
// treat ErrNotFound as "not yet known".
func (r *Registry) UserByStreamID(streamID string) (User, error) {
	if streamID != "" {
		for _, id := range r.order {
			if u := r.users[id]; u.StreamID == streamID {
				return u, nil
			}
		}
	}
	return User{}, fmt.Errorf("%w: stream %q", ErrNotFound, streamID)
}

// Users returns a copy of the membership in insertion order.
func (r *Registry) Users() []User {
	out := make([]User, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.users[id])
	}
	return out
}

// Len returns the number of members.
func (r *Registry) Len() int {
	return len(r.order)
}
