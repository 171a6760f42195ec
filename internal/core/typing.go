package core

// relayTyping forwards a typing signal to the target's live connection.
// Anonymous senders, self-targets and offline targets are dropped silently.
func (h *Hub) relayTyping(from *Client, to int64, isTyping bool) {
	if from.Anonymous() || to == from.UserID() {
		return
	}
	target, ok := h.registry.Resolve(to)
	if !ok {
		return
	}
	ev := &Event{
		Kind:   EventTyping,
		Typing: &TypingSignal{FromUserID: from.UserID(), IsTyping: isTyping},
	}
	if !target.push(ev) {
		h.log.Debug().Int64("user_id", to).Str("conn_id", target.ID).Msg("typing dropped for slow client")
	}
}
