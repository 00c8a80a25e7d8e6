package records

import "encoding/json"

// ProtocolVersion is the wire version reported in connect replies.
const ProtocolVersion = 1

// Message types.
const (
	TypeConnect    = "connect"
	TypePush       = "push"
	TypePushResult = "push_result"
	TypePatch      = "patch"
	TypePresence   = "presence"
	TypePing       = "ping"
	TypePong       = "pong"
	TypeError      = "error"
)

// Push result actions.
const (
	ActionCommit  = "commit"
	ActionDiscard = "discard"
)

// Diff is a set of record writes and removals.
type Diff struct {
	Put    map[string]json.RawMessage `json:"put,omitempty"`
	Remove []string                   `json:"remove,omitempty"`
}

// Empty reports whether the diff changes nothing.
func (d *Diff) Empty() bool {
	return d == nil || (len(d.Put) == 0 && len(d.Remove) == 0)
}

// ClientMessage is any message a client may send.
type ClientMessage struct {
	Type            string `json:"type"`
	ProtocolVersion int    `json:"protocolVersion,omitempty"`
	LastServerClock int64  `json:"lastServerClock,omitempty"`
	ClientClock     int64  `json:"clientClock,omitempty"`
	Diff            *Diff  `json:"diff,omitempty"`
}

// ServerMessage is any message the engine sends.
type ServerMessage struct {
	Type            string   `json:"type"`
	ProtocolVersion int      `json:"protocolVersion,omitempty"`
	Hydrate         bool     `json:"hydrate,omitempty"`
	ServerClock     int64    `json:"serverClock,omitempty"`
	ClientClock     int64    `json:"clientClock,omitempty"`
	Action          string   `json:"action,omitempty"`
	Diff            *Diff    `json:"diff,omitempty"`
	Sessions        []string `json:"sessions,omitempty"`
	Reason          string   `json:"reason,omitempty"`
}
