// Package relay republishes routed topic updates to Redis pub/sub.
//
// Each update is published on the channel <prefix><topic> with the raw JSON
// payload as the message body. An update observed without a payload is
// published as an empty message. Updates drained together from the buffer
// are pipelined on one pooled connection.
package relay
