// Package connection implements the managed stream connection.
//
// The Manager:
//   - Owns one WebSocket at a time and drives its State
//   - Reconnects with capped exponential backoff unless closed by the caller
//   - Sends application-level pings and forces a reconnect when a pong is late
//   - Remembers subscriptions and replays them after every successful open
//   - Routes inbound frames into the topic cache exposed by Select
//
// All socket events, timer firings and public calls are serialized by one
// mutex, and every socket attempt carries a generation number so events from a
// superseded socket are discarded.
package connection
