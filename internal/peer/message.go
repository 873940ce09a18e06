package peer

import (
	"encoding/json"
	"errors"

	"github.com/darkswapfoundation/darkswap-sub008/internal/replica"
)

// MessageType is the closed set of gossip wire messages.
type MessageType string

const (
	// MsgHello introduces a peer after connecting.
	MsgHello MessageType = "hello"
	// MsgSnapshot carries a full replica snapshot for one-shot merge.
	MsgSnapshot MessageType = "snapshot"
	// MsgSnapshotRequest asks the remote peer to send its snapshot.
	MsgSnapshotRequest MessageType = "snapshot_request"
	// MsgUpdate carries a single replica update event.
	MsgUpdate MessageType = "update"
)

// Message is the gossip envelope. Exactly one payload field is set,
// according to Type; unknown types are rejected, not ignored.
type Message struct {
	Type     MessageType       `json:"type"`
	PeerID   string            `json:"peer_id"`
	Update   *replica.Update   `json:"update,omitempty"`
	Snapshot *replica.Snapshot `json:"snapshot,omitempty"`
}

func (m *Message) Validate() error {
	switch m.Type {
	case MsgHello, MsgSnapshotRequest:
		return nil
	case MsgUpdate:
		if m.Update == nil {
			return errors.New("update message missing update payload")
		}
		return m.Update.Validate()
	case MsgSnapshot:
		if m.Snapshot == nil {
			return errors.New("snapshot message missing snapshot payload")
		}
		return nil
	default:
		return errors.New("unknown message type: " + string(m.Type))
	}
}

func encodeMessage(m *Message) ([]byte, error) {
	return json.Marshal(m)
}

func decodeMessage(data []byte) (*Message, error) {
	var m Message
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	if err := m.Validate(); err != nil {
		return nil, err
	}
	return &m, nil
}
