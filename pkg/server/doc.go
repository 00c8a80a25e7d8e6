// Package server is the HTTP and WebSocket surface of roomsync.
//
// Clients connect with:
//
//	GET /connect/{roomID}?sessionId={id}
//
// A request without sessionId is answered with 400 "Missing sessionId" and
// never upgraded. Otherwise the request is upgraded to a WebSocket and the
// connection is handed to the room for roomID.
//
// Each connection runs two goroutines. The read pump turns the socket into
// discrete message, close and error events for the room, in arrival order.
// The write pump drains a bounded send queue, so the room engine never
// blocks on a slow client, and sends heartbeat pings.
//
// The server also serves /healthz and, when enabled, Prometheus metrics.
package server
