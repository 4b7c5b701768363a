// Package protocol defines the JSON frames exchanged with a topic stream server.
//
// Outbound commands are single JSON objects keyed by "action":
//
//	{"action":"subscribe","topic":"prices","payload":{...}}
//	{"action":"unsubscribe","topic":"prices"}
//	{"action":"ping"}
//
// Inbound frames are permissive objects of the form {topic?, payload?, type?}.
// A frame with type "pong" answers a ping. Extra fields are ignored.
package protocol
