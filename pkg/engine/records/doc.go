// Package records is a small Room State Engine: a last-writer-wins store of
// JSON records keyed by id, spoken to over a JSON text protocol.
//
// Client to server:
//
//	{"type":"connect","protocolVersion":1,"lastServerClock":0}
//	{"type":"push","clientClock":3,"diff":{"put":{"shape:1":{...}},"remove":["shape:2"]}}
//	{"type":"ping"}
//
// Server to client:
//
//	{"type":"connect","hydrate":true,"serverClock":12,"diff":{...}}
//	{"type":"push_result","clientClock":3,"serverClock":13,"action":"commit"}
//	{"type":"patch","serverClock":13,"diff":{...}}
//	{"type":"presence","sessions":["s1","s2"]}
//	{"type":"pong"}
//	{"type":"error","reason":"..."}
//
// Every accepted push advances the server clock by one; a record's value is
// whatever the most recently applied push wrote.
package records
