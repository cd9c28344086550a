package core

// Client is a connection as seen by the hub.
type Client struct {
	ID       string
	UserID   string
	Name     string
	Commands chan *Command
	Events   chan *Event

	topics map[string]struct{}
	done   chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id, userID, name string) *Client {
	if name == "" {
		name = id
	}
	return &Client{
		ID:       id,
		UserID:   userID,
		Name:     name,
		Commands: make(chan *Command, 16),
		Events:   make(chan *Event, 64),
		topics:   make(map[string]struct{}),
		done:     make(chan struct{}),
	}
}

// Done is closed once the hub has unregistered the client.
func (c *Client) Done() <-chan struct{} {
	return c.done
}

// send delivers an event without blocking. Slow consumers lose events.
func (c *Client) send(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
