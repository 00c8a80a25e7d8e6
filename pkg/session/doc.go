// Package session tracks which session each live connection carries.
//
// A Registry maps a connection handle (any comparable type, typically a
// pointer to the transport's connection) to a Session: the client-chosen
// session id plus a small lifecycle state machine.
//
//	Pending ──MarkJoined──▶ Joined
//	   │                      │
//	   └──────── Remove ──────┴──▶ Closed
//
// Pending covers the window between the upgrade and the engine learning
// about the session. Messages for a Pending or unknown handle are dropped
// by the caller. Remove is the only way to reach Closed and reports
// whether the handle was known, which makes close handling idempotent.
//
// # Usage
//
//	reg := session.NewRegistry[*server.Conn]()
//	reg.Add(conn, "alice")
//	// ... engine join ...
//	reg.MarkJoined(conn)
//
//	if s, ok := reg.Lookup(conn); ok && s.State == session.StateJoined {
//	    forward(s.ID, frame)
//	}
//
//	if prev, ok := reg.Remove(conn); ok && prev.State == session.StateJoined {
//	    engine.OnSessionLeave(prev.ID)
//	}
package session
