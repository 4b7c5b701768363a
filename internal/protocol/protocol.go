package protocol

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
)

// Actions understood by the server.
const (
	ActionSubscribe   = "subscribe"
	ActionUnsubscribe = "unsubscribe"
	ActionPing        = "ping"
)

// TypePong marks a frame as the answer to a ping.
const TypePong = "pong"

// ErrNotObject is returned when a frame decodes to something other than a JSON object.
var ErrNotObject = errors.New("frame is not a json object")

// Command is a client to server message.
type Command struct {
	Action  string `json:"action"`
	Topic   string `json:"topic,omitempty"`
	Payload any    `json:"payload,omitempty"`
}

// Subscribe builds a subscribe command. params may be nil.
func Subscribe(topic string, params any) Command {
	return Command{Action: ActionSubscribe, Topic: topic, Payload: params}
}

// Unsubscribe builds an unsubscribe command.
func Unsubscribe(topic string) Command {
	return Command{Action: ActionUnsubscribe, Topic: topic}
}

// Ping builds a liveness probe.
func Ping() Command {
	return Command{Action: ActionPing}
}

// Encode marshals v into a single-line JSON frame.
func Encode(v any) ([]byte, error) {
	data, err := sonic.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode frame: %w", err)
	}
	return data, nil
}

// Frame is a decoded server to client message.
type Frame struct {
	Topic string
	Type  string

	// Payload is the raw payload value. HasPayload distinguishes a missing
	// payload field from an explicit null.
	Payload    json.RawMessage
	HasPayload bool
}

// IsPong reports whether the frame answers a ping.
func (f Frame) IsPong() bool {
	return f.Type == TypePong
}

// Decode parses an inbound frame. Fields of the wrong JSON type are treated as absent.
func Decode(data []byte) (Frame, error) {
	var fields map[string]json.RawMessage
	if err := sonic.Unmarshal(data, &fields); err != nil {
		return Frame{}, fmt.Errorf("decode frame: %w", err)
	}
	if fields == nil {
		return Frame{}, ErrNotObject
	}

	var f Frame
	if raw, ok := fields["topic"]; ok {
		f.Topic = stringField(raw)
	}
	if raw, ok := fields["type"]; ok {
		f.Type = stringField(raw)
	}
	if raw, ok := fields["payload"]; ok {
		f.Payload = append(json.RawMessage(nil), raw...)
		f.HasPayload = true
	}
	return f, nil
}

func stringField(raw json.RawMessage) string {
	var s string
	if err := sonic.Unmarshal(raw, &s); err != nil {
		return ""
	}
	return s
}
