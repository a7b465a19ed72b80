package relay

// inbound is one frame read from a client, tagged with its sender for the
// hub.
type inbound struct {
	client *Client
	data   []byte
}
