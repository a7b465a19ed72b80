package signaling

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/pion/webrtc/v4"

	"github.com/andrefsp/video-democry/internal/room"
)

// URI names a relay message kind. "in/" kinds travel from the client to
// the relay, "out/" kinds from the relay to the client.
type URI string

const (
	URIJoin      URI = "in/join"
	URIOffer     URI = "in/offer"
	URIAnswer    URI = "in/answer"
	URICandidate URI = "in/icecandidate"
	URIPong      URI = "in/pong"

	URIUserJoin          URI = "out/user-join"
	URIUserLeft          URI = "out/user-left"
	URIRelayedOffer      URI = "out/offer"
	URIRelayedAnswer     URI = "out/answer"
	URIRelayedCandidate  URI = "out/icecandidate"
	URINegotiationNeeded URI = "out/negotiationneeded"
	URIPing              URI = "out/ping"
	URIError             URI = "out/error"
)

var (
	ErrUnknownURI = errors.New("signaling: unknown message uri")
	ErrMalformed  = errors.New("signaling: malformed message")
)

// Message is one relay message. The set of implementations is closed.
type Message interface {
	URI() URI
}

// Join announces the local user to the room.
type Join struct {
	User room.User `json:"user"`
}

type Offer struct {
	FromUser room.User                 `json:"fromUser"`
	Offer    webrtc.SessionDescription `json:"offer"`
	ToUser   *room.User                `json:"toUser,omitempty"`
}

type Answer struct {
	FromUser room.User                 `json:"fromUser"`
	Answer   webrtc.SessionDescription `json:"answer"`
	ToUser   *room.User                `json:"toUser,omitempty"`
}

type Candidate struct {
	FromUser  room.User               `json:"fromUser"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
	ToUser    *room.User              `json:"toUser,omitempty"`
}

type Pong struct{}

// UserJoin carries the full membership after someone joined.
type UserJoin struct {
	RoomUsers []room.User `json:"roomUsers"`
}

// UserLeft carries the departed user and the remaining membership.
type UserLeft struct {
	User      room.User   `json:"user"`
	RoomUsers []room.User `json:"roomUsers"`
}

// RelayedOffer is an offer forwarded by the relay. FromUser is absent when
// the offer comes from a media server.
type RelayedOffer struct {
	FromUser *room.User                `json:"fromUser,omitempty"`
	Offer    webrtc.SessionDescription `json:"offer"`
}

type RelayedAnswer struct {
	FromUser *room.User                `json:"fromUser,omitempty"`
	Answer   webrtc.SessionDescription `json:"answer"`
}

type RelayedCandidate struct {
	FromUser  *room.User              `json:"fromUser,omitempty"`
	Candidate webrtc.ICECandidateInit `json:"candidate"`
}

// NegotiationNeeded asks the client to renegotiate. ToUser, when set,
// narrows the request to the link with that user.
type NegotiationNeeded struct {
	ToUser *room.User `json:"toUser,omitempty"`
}

type Ping struct{}

// Error is a relay-side rejection.
type Error struct {
	Reason string `json:"reason"`
}

func (Join) URI() URI              { return URIJoin }
func (Offer) URI() URI             { return URIOffer }
func (Answer) URI() URI            { return URIAnswer }
func (Candidate) URI() URI         { return URICandidate }
func (Pong) URI() URI              { return URIPong }
func (UserJoin) URI() URI          { return URIUserJoin }
func (UserLeft) URI() URI          { return URIUserLeft }
func (RelayedOffer) URI() URI      { return URIRelayedOffer }
func (RelayedAnswer) URI() URI     { return URIRelayedAnswer }
func (RelayedCandidate) URI() URI  { return URIRelayedCandidate }
func (NegotiationNeeded) URI() URI { return URINegotiationNeeded }
func (Ping) URI() URI              { return URIPing }
func (Error) URI() URI             { return URIError }

var decoders = map[URI]func([]byte) (Message, error){
	URIJoin:              decodeAs[Join],
	URIOffer:             decodeAs[Offer],
	URIAnswer:            decodeAs[Answer],
	URICandidate:         decodeAs[Candidate],
	URIPong:              decodeAs[Pong],
	URIUserJoin:          decodeAs[UserJoin],
	URIUserLeft:          decodeAs[UserLeft],
	URIRelayedOffer:      decodeAs[RelayedOffer],
	URIRelayedAnswer:     decodeAs[RelayedAnswer],
	URIRelayedCandidate:  decodeAs[RelayedCandidate],
	URINegotiationNeeded: decodeAs[NegotiationNeeded],
	URIPing:              decodeAs[Ping],
	URIError:             decodeAs[Error],
}

func decodeAs[T Message](data []byte) (Message, error) {
	var m T
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}

// Decode parses one relay message. Unknown kinds yield ErrUnknownURI.
func Decode(data []byte) (Message, error) {
	var envelope struct {
		URI URI `json:"uri"`
	}
	if err := json.Unmarshal(data, &envelope); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	decode, ok := decoders[envelope.URI]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownURI, envelope.URI)
	}
	m, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrMalformed, envelope.URI, err)
	}
	return m, nil
}

// Encode serialises m as a JSON object whose first field is its uri.
func Encode(m Message) ([]byte, error) {
	if m == nil {
		return nil, fmt.Errorf("%w: nil message", ErrMalformed)
	}
	uri, err := json.Marshal(m.URI())
	if err != nil {
		return nil, err
	}
	body, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", m.URI(), err)
	}

	out := make([]byte, 0, len(uri)+len(body)+8)
	out = append(out, `{"uri":`...)
	out = append(out, uri...)
	if len(body) > 2 {
		out = append(out, ',')
		out = append(out, body[1:]...)
	} else {
		out = append(out, '}')
	}
	return out, nil
}
