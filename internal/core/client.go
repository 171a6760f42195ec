package core

const clientBuffer = 32

// Profile holds the display fields cached for a connected user.
type Profile struct {
	UserID     int64
	Username   string
	Name       string
	ProfileImg string
}

// Client is a live connection as seen by the core layer.
// UserID 0 marks an anonymous connection: it receives broadcasts but is never registered.
type Client struct {
	ID       string
	Profile  Profile
	Commands chan *Command
	Events   chan *Event

	done chan struct{}
}

// NewClient constructs a client with initialized channels.
func NewClient(id string, profile Profile) *Client {
	if profile.Name == "" {
		profile.Name = profile.Username
	}
	return &Client{
		ID:       id,
		Profile:  profile,
		Commands: make(chan *Command, clientBuffer),
		Events:   make(chan *Event, clientBuffer),
		done:     make(chan struct{}),
	}
}

// UserID returns the authenticated user behind the connection, 0 if anonymous.
func (c *Client) UserID() int64 {
	return c.Profile.UserID
}

// Anonymous reports whether the connection carries no user identity.
func (c *Client) Anonymous() bool {
	return c.Profile.UserID <= 0
}

// push enqueues an event without blocking. Returns false when the client is not keeping up.
func (c *Client) push(ev *Event) bool {
	select {
	case c.Events <- ev:
		return true
	default:
		return false
	}
}
