package broker

import (
	"sync"

	"github.com/google/uuid"
	"github.com/immxrtalbeast/watchparty/internal/domain"
)

// Conn is one client's realtime connection. The transport drains Send until
// Done is closed.
type Conn struct {
	id       string
	identity domain.Identity
	send     chan domain.SignalMessage
	done     chan struct{}
	once     sync.Once

	mu    sync.Mutex
	rooms map[string]struct{}
}

func newConn(identity domain.Identity, buffer int) *Conn {
	return &Conn{
		id:       uuid.NewString(),
		identity: identity,
		send:     make(chan domain.SignalMessage, buffer),
		done:     make(chan struct{}),
		rooms:    make(map[string]struct{}),
	}
}

func (c *Conn) ID() string                        { return c.id }
func (c *Conn) Identity() domain.Identity         { return c.identity }
func (c *Conn) Send() <-chan domain.SignalMessage { return c.send }
func (c *Conn) Done() <-chan struct{}             { return c.done }

// Close marks the connection dead. It is safe to call more than once.
func (c *Conn) Close() {
	c.once.Do(func() { close(c.done) })
}

func (c *Conn) closed() bool {
	select {
	case <-c.done:
		return true
	default:
		return false
	}
}

// enqueue never blocks. A full queue means the client cannot keep up, so the
// connection is closed instead of stalling the channel.
func (c *Conn) enqueue(msg domain.SignalMessage) bool {
	if c.closed() {
		return false
	}
	select {
	case c.send <- msg:
		return true
	default:
		c.Close()
		return false
	}
}

func (c *Conn) joined(code string) {
	c.mu.Lock()
	c.rooms[code] = struct{}{}
	c.mu.Unlock()
}

func (c *Conn) left(code string) {
	c.mu.Lock()
	delete(c.rooms, code)
	c.mu.Unlock()
}

func (c *Conn) roomCodes() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	codes := make([]string, 0, len(c.rooms))
	for code := range c.rooms {
		codes = append(codes, code)
	}
	return codes
}
