package core

import (
	"context"
	"errors"

	"github.com/rs/zerolog"
)

// ErrHubClosed is returned by hub calls made after Run has returned.
var ErrHubClosed = errors.New("hub closed")

type clientCommand struct {
	client *Client
	cmd    *Command
}

// Hub owns the connection registry and serializes every registry mutation,
// presence broadcast and live push through a single run loop.
type Hub struct {
	log      *zerolog.Logger
	registry *Registry
	clients  map[*Client]struct{}

	register   chan *Client
	unregister chan *Client
	commands   chan clientCommand
	calls      chan func()

	sink      PresenceSink
	sinkQueue chan []PresenceEntry

	done chan struct{}
}

// Option configures a Hub.
type Option func(*Hub)

// WithPresenceSink mirrors every presence snapshot into sink.
func WithPresenceSink(sink PresenceSink) Option {
	return func(h *Hub) {
		h.sink = sink
	}
}

// NewHub creates a hub. Call Run to start it.
func NewHub(logger *zerolog.Logger, opts ...Option) *Hub {
	if logger == nil {
		nop := zerolog.Nop()
		logger = &nop
	}
	h := &Hub{
		log:        logger,
		registry:   NewRegistry(),
		clients:    make(map[*Client]struct{}),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		commands:   make(chan clientCommand, 64),
		calls:      make(chan func()),
		sinkQueue:  make(chan []PresenceEntry, 1),
		done:       make(chan struct{}),
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Run processes hub events until ctx is cancelled. It closes every remaining client on exit.
func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)

	if h.sink != nil {
		go h.runPresenceSink(ctx)
	}

	for {
		select {
		case c := <-h.register:
			h.handleRegister(c)
		case c := <-h.unregister:
			h.handleUnregister(c)
		case cc := <-h.commands:
			if _, ok := h.clients[cc.client]; ok {
				h.handleCommand(cc.client, cc.cmd)
			}
		case fn := <-h.calls:
			fn()
		case <-ctx.Done():
			for c := range h.clients {
				h.detach(c)
			}
			return
		}
	}
}

// RegisterClient attaches a connection to the hub.
func (h *Hub) RegisterClient(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
	}
}

// UnregisterClient detaches a connection. Safe to call more than once.
func (h *Hub) UnregisterClient(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

// Deliver pushes ev to userID's live connection. Returns false when the user is offline
// or the connection is not keeping up; neither is an error.
func (h *Hub) Deliver(ctx context.Context, userID int64, ev *Event) bool {
	var pushed bool
	err := h.call(ctx, func() {
		c, ok := h.registry.Resolve(userID)
		if !ok {
			return
		}
		pushed = c.push(ev)
		if !pushed {
			h.log.Debug().Int64("user_id", userID).Str("conn_id", c.ID).Str("event", ev.Kind.String()).Msg("push dropped for slow client")
		}
	})
	return err == nil && pushed
}

// Resolve returns the connection id currently registered for userID.
func (h *Hub) Resolve(ctx context.Context, userID int64) (string, bool) {
	var (
		connID string
		ok     bool
	)
	if err := h.call(ctx, func() {
		var c *Client
		if c, ok = h.registry.Resolve(userID); ok {
			connID = c.ID
		}
	}); err != nil {
		return "", false
	}
	return connID, ok
}

// Snapshot returns the current presence set ordered by user id.
func (h *Hub) Snapshot(ctx context.Context) ([]PresenceEntry, error) {
	var entries []PresenceEntry
	if err := h.call(ctx, func() {
		entries = h.registry.Snapshot()
	}); err != nil {
		return nil, err
	}
	return entries, nil
}

// call runs fn on the hub loop and waits for it to finish.
func (h *Hub) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	wrapped := func() {
		fn()
		close(finished)
	}

	select {
	case h.calls <- wrapped:
	case <-ctx.Done():
		return ctx.Err()
	case <-h.done:
		return ErrHubClosed
	}

	// Once accepted the loop runs fn before it can exit.
	<-finished
	return nil
}

func (h *Hub) handleRegister(c *Client) {
	if _, ok := h.clients[c]; ok {
		return
	}
	h.clients[c] = struct{}{}
	go h.forwardCommands(c)

	if c.Anonymous() {
		h.log.Debug().Str("conn_id", c.ID).Msg("anonymous client connected")
		h.sendPresence(c)
		return
	}

	if replaced := h.registry.Register(c); replaced != nil {
		h.log.Info().Int64("user_id", c.UserID()).Str("conn_id", c.ID).Str("replaced_conn_id", replaced.ID).Msg("session replaced")
	} else {
		h.log.Info().Int64("user_id", c.UserID()).Str("conn_id", c.ID).Msg("user online")
	}
	h.broadcastPresence()
}

func (h *Hub) handleUnregister(c *Client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	h.detach(c)

	if c.Anonymous() {
		return
	}
	if !h.registry.Unregister(c.UserID(), c.ID) {
		h.log.Debug().Int64("user_id", c.UserID()).Str("conn_id", c.ID).Msg("superseded connection closed")
		return
	}
	h.log.Info().Int64("user_id", c.UserID()).Str("conn_id", c.ID).Msg("user offline")
	h.broadcastPresence()
}

// detach forgets the client and closes its channels. Only the run loop writes to Events,
// so closing here cannot race with a push.
func (h *Hub) detach(c *Client) {
	delete(h.clients, c)
	close(c.done)
	close(c.Events)
}

func (h *Hub) handleCommand(c *Client, cmd *Command) {
	switch cmd.Kind {
	case CommandTypingStart:
		h.relayTyping(c, cmd.ToUserID, true)
	case CommandTypingStop:
		h.relayTyping(c, cmd.ToUserID, false)
	default:
		c.push(ErrorEvent(ErrCodeInvalidMessage, "unknown command"))
	}
}

// forwardCommands moves commands from the client's channel onto the hub loop until the client is detached.
func (h *Hub) forwardCommands(c *Client) {
	for {
		select {
		case cmd := <-c.Commands:
			if cmd == nil {
				continue
			}
			select {
			case h.commands <- clientCommand{client: c, cmd: cmd}:
			case <-c.done:
				return
			case <-h.done:
				return
			}
		case <-c.done:
			return
		case <-h.done:
			return
		}
	}
}
