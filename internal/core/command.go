package core

// CommandKind describes what the client wants to do.
type CommandKind int

const (
	// CommandTypingStart tells the target the sender began typing.
	CommandTypingStart CommandKind = iota
	// CommandTypingStop tells the target the sender stopped typing.
	CommandTypingStop
)

// Command represents an action requested by a client.
type Command struct {
	Kind     CommandKind
	ToUserID int64
}
