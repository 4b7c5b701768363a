// Package router turns inbound stream frames into topic cache updates.
//
// The Router:
//   - Decodes each text frame as {topic?, payload?, type?}
//   - Reports pong frames to the caller without touching the cache
//   - Overwrites the cache entry for the frame's topic
//   - Forwards data updates to attached GrowableBuffers for recorders and relays
//   - Drops malformed frames silently, counting them
package router
