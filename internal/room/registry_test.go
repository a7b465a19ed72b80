package room

import (
	"errors"
	"strings"
	"testing"
)

func ids(users []User) []string {
	out := make([]string, len(users))
	for i, u := range users {
		out[i] = u.ID
	}
	return out
}

func equalIDs(t *testing.T, what string, got []User, want ...string) {
	t.Helper()
	g := ids(got)
	if len(g) != len(want) {
		t.Fatalf("%s = %v, want %v", what, g, want)
	}
	for i := range g {
		if g[i] != want[i] {
			t.Fatalf("%s = %v, want %v", what, g, want)
		}
	}
}

var (
	alice = User{ID: "a", Username: "alice", StreamID: "sa"}
	bob   = User{ID: "b", Username: "bob", StreamID: "sb"}
	carol = User{ID: "c", Username: "carol", StreamID: "sc"}
)

func TestReconcileAddsThenRemoves(t *testing.T) {
	r := NewRegistry("demo")

	diff := r.Reconcile([]User{alice, bob})
	equalIDs(t, "joined", diff.Joined, "a", "b")
	equalIDs(t, "left", diff.Left)

	diff = r.Reconcile([]User{bob})
	equalIDs(t, "joined", diff.Joined)
	equalIDs(t, "left", diff.Left, "a")
	equalIDs(t, "users", r.Users(), "b")
}

func TestReconcileIdempotent(t *testing.T) {
	r := NewRegistry("demo")
	r.Reconcile([]User{alice, bob, carol})

	diff := r.Reconcile([]User{alice, bob, carol})
	if !diff.Empty() {
		t.Fatalf("second reconcile changed membership: %+v", diff)
	}
	equalIDs(t, "users", r.Users(), "a", "b", "c")
}

func TestReconcileFinalStateMatchesLastSnapshot(t *testing.T) {
	r := NewRegistry("demo")
	snapshots := [][]User{
		{alice},
		{alice, bob, carol},
		{carol},
		{},
		{bob, alice},
		{bob, alice},
	}
	for _, s := range snapshots {
		r.Reconcile(s)
	}
	if r.Len() != 2 {
		t.Fatalf("len = %d, want 2", r.Len())
	}
	for _, u := range []User{alice, bob} {
		if _, err := r.UserByID(u.ID); err != nil {
			t.Fatalf("missing %s: %v", u.ID, err)
		}
	}
	if _, err := r.UserByID(carol.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("carol lookup err = %v, want ErrNotFound", err)
	}
}

func TestReconcileStreamChangeIsLeaveAndJoin(t *testing.T) {
	r := NewRegistry("demo")
	r.Reconcile([]User{alice})

	moved := alice
	moved.StreamID = "sa-2"
	diff := r.Reconcile([]User{moved})
	equalIDs(t, "joined", diff.Joined, "a")
	equalIDs(t, "left", diff.Left, "a")

	if _, err := r.UserByStreamID("sa"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("old stream still resolves: %v", err)
	}
	got, err := r.UserByStreamID("sa-2")
	if err != nil || got.ID != "a" {
		t.Fatalf("UserByStreamID = %+v, %v", got, err)
	}
}

func TestReconcileIgnoresDuplicatesAndEmptyIDs(t *testing.T) {
	r := NewRegistry("demo")
	diff := r.Reconcile([]User{alice, {StreamID: "x"}, alice})
	equalIDs(t, "joined", diff.Joined, "a")
	if r.Len() != 1 {
		t.Fatalf("len = %d, want 1", r.Len())
	}
}

func TestUserByStreamIDNotFound(t *testing.T) {
	r := NewRegistry("demo")
	r.Reconcile([]User{alice})

	if _, err := r.UserByStreamID("unknown"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if _, err := r.UserByStreamID(""); !errors.Is(err, ErrNotFound) {
		t.Fatalf("empty stream err = %v, want ErrNotFound", err)
	}
}

func TestUsersReturnsCopy(t *testing.T) {
	r := NewRegistry("demo")
	r.Reconcile([]User{alice})

	users := r.Users()
	users[0].ID = "mutated"
	if _, err := r.UserByID("a"); err != nil {
		t.Fatalf("registry mutated through Users(): %v", err)
	}
}

func TestNewRoomID(t *testing.T) {
	id := NewRoomID()
	parts := strings.Split(id, "-")
	if len(parts) != 3 {
		t.Fatalf("room id %q has %d words, want 3", id, len(parts))
	}
	for _, p := range parts {
		if p == "" {
			t.Fatalf("room id %q has an empty word", id)
		}
	}
}
