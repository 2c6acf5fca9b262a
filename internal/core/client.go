package core

import (
	"sync"
	"sync/atomic"
)

// ConnState is the lifecycle state of a connection.
type ConnState int32

const (
	StateUnauthenticated ConnState = iota
	StateAuthenticated
	StateClosed
)

func (s ConnState) String() string {
	switch s {
	case StateUnauthenticated:
		return "unauthenticated"
	case StateAuthenticated:
		return "authenticated"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}

// Client is one live duplex connection as seen by the core layer.
type Client struct {
	ID     string
	Events chan *Event

	mu     sync.RWMutex
	userID int64
	state  ConnState

	done      chan struct{}
	closeOnce sync.Once
	dropped   atomic.Int64
}

// NewClient constructs an unauthenticated client with a buffered event channel.
func NewClient(id string, buffer int) *Client {
	if buffer <= 0 {
		buffer = 64
	}
	return &Client{
		ID:     id,
		Events: make(chan *Event, buffer),
		done:   make(chan struct{}),
	}
}

// UserID returns the owning identity; ok is false before authentication.
func (c *Client) UserID() (int64, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID, c.state == StateAuthenticated
}

// owner returns the user id set at authentication, even after Close.
func (c *Client) owner() int64 {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.userID
}

// State returns the current lifecycle state.
func (c *Client) State() ConnState {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Authenticated reports whether the client completed authentication.
func (c *Client) Authenticated() bool {
	return c.State() == StateAuthenticated
}

func (c *Client) authenticate(userID int64) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state == StateClosed {
		return false
	}
	c.userID = userID
	c.state = StateAuthenticated
	return true
}

// Send queues an event without blocking. It returns false when the client
// is closed or its buffer is full; the event is then dropped for this client.
func (c *Client) Send(ev *Event) bool {
	select {
	case <-c.done:
		return false
	default:
	}
	select {
	case c.Events <- ev:
		return true
	default:
		c.dropped.Add(1)
		return false
	}
}

// Dropped returns how many events were dropped because the buffer was full.
func (c *Client) Dropped() int64 {
	return c.dropped.Load()
}

// Close moves the client to the terminal state and signals the transport.
// Events already queued remain readable from Events.
func (c *Client) Close() {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.state = StateClosed
		c.mu.Unlock()
		close(c.done)
	})
}

// Done is closed when the client has been closed.
func (c *Client) Done() <-chan struct{} {
	return c.done
}
