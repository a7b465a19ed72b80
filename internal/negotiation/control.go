package negotiation

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"
)

const (
	controlChannelLabel = "control"
	controlChannelID    = uint16(0)

	controlTypeHello = "hello"
)

// controlMessage is the envelope of every message on the control data
// channel.
type controlMessage struct {
	Type    string             `msgpack:"type"`
	Payload msgpack.RawMessage `msgpack:"payload"`
}

// Hello is what each side of a link announces once the control channel
// opens.
type Hello struct {
	UserID   string `msgpack:"userId"`
	Username string `msgpack:"username"`
	Version  string `msgpack:"version"`
}

func (h Hello) String() string {
	if h.Username == "" {
		return fmt.Sprintf("%s %s", h.UserID, h.Version)
	}
	return fmt.Sprintf("%s (%s) %s", h.Username, h.UserID, h.Version)
}

func (m controlMessage) decodePayload(v any) error {
	return msgpack.Unmarshal(m.Payload, v)
}

func newControlMessage(t string, payload any) (controlMessage, error) {
	b, err := msgpack.Marshal(payload)
	if err != nil {
		return controlMessage{}, err
	}
	return controlMessage{Type: t, Payload: b}, nil
}

func encodeHello(h Hello) ([]byte, error) {
	msg, err := newControlMessage(controlTypeHello, h)
	if err != nil {
		return nil, err
	}
	return msgpack.Marshal(msg)
}

// decodeControl parses a control channel frame. ok is false for message
// types this side does not understand.
func decodeControl(data []byte) (h Hello, ok bool, err error) {
	var msg controlMessage
	if err := msgpack.Unmarshal(data, &msg); err != nil {
		return Hello{}, false, fmt.Errorf("decode control message: %w", err)
	}
	if msg.Type != controlTypeHello {
		return Hello{}, false, nil
	}
	if err := msg.decodePayload(&h); err != nil {
		return Hello{}, false, fmt.Errorf("decode hello: %w", err)
	}
	return h, true, nil
}
