package broker

import (
	"sync"

	"github.com/immxrtalbeast/watchparty/internal/domain"
)

// channel is the broadcast group of one room. Everything that changes
// membership or emits to members holds mu, which keeps delivery in receive
// order for every member.
type channel struct {
	code    string
	mu      sync.Mutex
	members map[string]*Conn
	closed  bool
}

func newChannel(code string) *channel {
	return &channel{code: code, members: make(map[string]*Conn)}
}

func (ch *channel) add(c *Conn) bool {
	if _, ok := ch.members[c.id]; ok {
		return false
	}
	ch.members[c.id] = c
	c.joined(ch.code)
	return true
}

func (ch *channel) remove(c *Conn) bool {
	if _, ok := ch.members[c.id]; !ok {
		return false
	}
	delete(ch.members, c.id)
	c.left(ch.code)
	return true
}

func (ch *channel) has(id string) bool {
	_, ok := ch.members[id]
	return ok
}

// broadcast sends msg to every member except the one with id exclude.
func (ch *channel) broadcast(msg domain.SignalMessage, exclude string) {
	for id, c := range ch.members {
		if id == exclude {
			continue
		}
		c.enqueue(msg)
	}
}

func (ch *channel) hasUser(userID string) bool {
	for _, c := range ch.members {
		if c.identity.UserID == userID {
			return true
		}
	}
	return false
}
