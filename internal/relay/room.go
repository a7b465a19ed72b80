package relay

import "github.com/andrefsp/video-democry/internal/room"

// Room is the set of connections that asked for the same room id. Only
// connections that sent in/join are members.
type Room struct {
	ID string

	clients map[*Client]struct{}
	// members holds joined clients in join order.
	members []*Client
}

func newRoom(id string) *Room {
	return &Room{ID: id, clients: make(map[*Client]struct{})}
}

func (r *Room) add(c *Client) {
	r.clients[c] = struct{}{}
}

// join records c as a member, replacing an earlier connection that claimed
// the same user id.
func (r *Room) join(c *Client, u room.User) (replaced *Client) {
	for i, m := range r.members {
		if m == c {
			r.members = append(r.members[:i], r.members[i+1:]...)
			break
		}
	}
	for i, m := range r.members {
		if m.user.ID == u.ID {
			replaced = m
			r.members = append(r.members[:i], r.members[i+1:]...)
			replaced.user = nil
			break
		}
	}
	c.user = &u
	r.members = append(r.members, c)
	return replaced
}

// remove drops c and reports whether it was a member.
func (r *Room) remove(c *Client) bool {
	delete(r.clients, c)
	for i, m := range r.members {
		if m == c {
			r.members = append(r.members[:i], r.members[i+1:]...)
			return true
		}
	}
	return false
}

func (r *Room) empty() bool {
	return len(r.clients) == 0
}

func (r *Room) users() []room.User {
	out := make([]room.User, 0, len(r.members))
	for _, m := range r.members {
		out = append(out, *m.user)
	}
	return out
}

func (r *Room) member(userID string) *Client {
	for _, m := range r.members {
		if m.user.ID == userID {
			return m
		}
	}
	return nil
}
