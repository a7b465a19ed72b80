package signaling

import (
	"bytes"
	"encoding/json"
	"errors"
	"testing"

	"github.com/pion/webrtc/v4"

	"github.com/andrefsp/video-democry/internal/room"
)

func TestDecodeInbound(t *testing.T) {
	cases := []struct {
		raw  string
		want URI
	}{
		{`{"uri":"out/user-join","roomUsers":[{"id":"a","streamID":"sa"}]}`, URIUserJoin},
		{`{"uri":"out/user-left","user":{"id":"a"},"roomUsers":[]}`, URIUserLeft},
		{`{"uri":"out/offer","fromUser":{"id":"a"},"offer":{"type":"offer","sdp":"v=0"}}`, URIRelayedOffer},
		{`{"uri":"out/answer","fromUser":{"id":"a"},"answer":{"type":"answer","sdp":"v=0"}}`, URIRelayedAnswer},
		{`{"uri":"out/icecandidate","fromUser":{"id":"a"},"candidate":{"candidate":"c1"}}`, URIRelayedCandidate},
		{`{"uri":"out/negotiationneeded"}`, URINegotiationNeeded},
		{`{"uri":"out/ping"}`, URIPing},
		{`{"uri":"out/error","reason":"room full"}`, URIError},
	}
	for _, tc := range cases {
		m, err := Decode([]byte(tc.raw))
		if err != nil {
			t.Fatalf("Decode(%s): %v", tc.raw, err)
		}
		if m.URI() != tc.want {
			t.Fatalf("Decode(%s) uri = %s, want %s", tc.raw, m.URI(), tc.want)
		}
	}
}

func TestDecodePayloads(t *testing.T) {
	m, err := Decode([]byte(`{"uri":"out/user-left","user":{"id":"a","username":"alice","streamID":"sa"},"roomUsers":[{"id":"b","streamID":"sb"}]}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	left, ok := m.(UserLeft)
	if !ok {
		t.Fatalf("type = %T", m)
	}
	if left.User.Username != "alice" || left.User.StreamID != "sa" {
		t.Fatalf("user = %+v", left.User)
	}
	if len(left.RoomUsers) != 1 || left.RoomUsers[0].ID != "b" {
		t.Fatalf("roomUsers = %+v", left.RoomUsers)
	}

	m, err = Decode([]byte(`{"uri":"out/icecandidate","candidate":{"candidate":"c1","sdpMid":"0"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	cand := m.(RelayedCandidate)
	if cand.FromUser != nil {
		t.Fatalf("fromUser = %+v, want nil for SFU messages", cand.FromUser)
	}
	if cand.Candidate.Candidate != "c1" || cand.Candidate.SDPMid == nil || *cand.Candidate.SDPMid != "0" {
		t.Fatalf("candidate = %+v", cand.Candidate)
	}
}

func TestDecodeErrors(t *testing.T) {
	if _, err := Decode([]byte(`{"uri":"out/teleport"}`)); !errors.Is(err, ErrUnknownURI) {
		t.Fatalf("unknown uri err = %v", err)
	}
	if _, err := Decode([]byte(`{"roomUsers":[]}`)); !errors.Is(err, ErrUnknownURI) {
		t.Fatalf("missing uri err = %v", err)
	}
	if _, err := Decode([]byte(`not json`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("garbage err = %v", err)
	}
	if _, err := Decode([]byte(`{"uri":"out/user-join","roomUsers":"nope"}`)); !errors.Is(err, ErrMalformed) {
		t.Fatalf("bad payload err = %v", err)
	}
}

func TestEncodePutsURIFirst(t *testing.T) {
	to := room.User{ID: "b", StreamID: "sb"}
	data, err := Encode(Offer{
		FromUser: room.User{ID: "a", StreamID: "sa"},
		Offer:    webrtc.SessionDescription{Type: webrtc.SDPTypeOffer, SDP: "v=0"},
		ToUser:   &to,
	})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if !bytes.HasPrefix(data, []byte(`{"uri":"in/offer",`)) {
		t.Fatalf("encoded = %s", data)
	}

	var generic map[string]json.RawMessage
	if err := json.Unmarshal(data, &generic); err != nil {
		t.Fatalf("encoded message is not valid JSON: %v", err)
	}
	for _, key := range []string{"uri", "fromUser", "offer", "toUser"} {
		if _, ok := generic[key]; !ok {
			t.Fatalf("missing %q in %s", key, data)
		}
	}
}

func TestEncodeOmitsAbsentRecipient(t *testing.T) {
	data, err := Encode(Candidate{FromUser: room.User{ID: "a"}, Candidate: webrtc.ICECandidateInit{Candidate: "c1"}})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if bytes.Contains(data, []byte("toUser")) {
		t.Fatalf("toUser present: %s", data)
	}
}

func TestEncodeEmptyPayload(t *testing.T) {
	data, err := Encode(Pong{})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if string(data) != `{"uri":"in/pong"}` {
		t.Fatalf("encoded = %s", data)
	}
}

func TestEncodeDecodeJoin(t *testing.T) {
	u := room.User{ID: "a", Username: "alice", StreamID: "sa"}
	data, err := Encode(Join{User: u})
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	m, err := Decode(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if got := m.(Join).User; got != u {
		t.Fatalf("user = %+v, want %+v", got, u)
	}
}
