package core

import (
	"context"
	"time"
)

const sinkPublishTimeout = 5 * time.Second

// PresenceEntry is the public view of one online user.
type PresenceEntry struct {
	UserID     int64
	Username   string
	Name       string
	ProfileImg string
}

// PresenceSink receives every presence snapshot the hub broadcasts.
// Implementations may be slow; the hub only ever hands them the latest snapshot.
type PresenceSink interface {
	PublishPresence(ctx context.Context, entries []PresenceEntry) error
}

func entryFromProfile(p Profile) PresenceEntry {
	return PresenceEntry{
		UserID:     p.UserID,
		Username:   p.Username,
		Name:       p.Name,
		ProfileImg: p.ProfileImg,
	}
}

// broadcastPresence pushes the full online set to every connection, anonymous ones included.
func (h *Hub) broadcastPresence() {
	snapshot := h.registry.Snapshot()
	ev := &Event{Kind: EventPresence, Presence: snapshot}

	for c := range h.clients {
		if !c.push(ev) {
			h.log.Debug().Str("conn_id", c.ID).Int64("user_id", c.UserID()).Msg("presence dropped for slow client")
		}
	}
	h.queuePresence(snapshot)
}

// sendPresence pushes the current snapshot to a single connection.
func (h *Hub) sendPresence(c *Client) {
	if !c.push(&Event{Kind: EventPresence, Presence: h.registry.Snapshot()}) {
		h.log.Debug().Str("conn_id", c.ID).Msg("presence dropped for slow client")
	}
}

// queuePresence hands a snapshot to the sink worker, replacing a pending one it has not picked up yet.
func (h *Hub) queuePresence(snapshot []PresenceEntry) {
	if h.sink == nil {
		return
	}
	select {
	case h.sinkQueue <- snapshot:
		return
	default:
	}
	select {
	case <-h.sinkQueue:
	default:
	}
	select {
	case h.sinkQueue <- snapshot:
	default:
	}
}

func (h *Hub) runPresenceSink(ctx context.Context) {
	for {
		select {
		case snapshot := <-h.sinkQueue:
			pubCtx, cancel := context.WithTimeout(ctx, sinkPublishTimeout)
			if err := h.sink.PublishPresence(pubCtx, snapshot); err != nil {
				h.log.Warn().Err(err).Int("online", len(snapshot)).Msg("presence sink publish failed")
			}
			cancel()
		case <-ctx.Done():
			return
		}
	}
}
