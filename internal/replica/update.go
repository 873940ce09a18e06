package replica

import (
	"errors"
	"time"

	"github.com/darkswapfoundation/darkswap-sub008/internal/models"
)

// UpdateType is the closed set of gossip event kinds.
type UpdateType string

const (
	UpdateAdd    UpdateType = "add"
	UpdateUpdate UpdateType = "update"
	UpdateRemove UpdateType = "remove"
)

func (t UpdateType) IsValid() bool {
	return t == UpdateAdd || t == UpdateUpdate || t == UpdateRemove
}

// Update is a single replica change gossiped between peers. It always
// carries a fully-typed Order; the type tag only distinguishes first sight,
// modification, and pruning.
type Update struct {
	Type         UpdateType    `json:"type"`
	Order        *models.Order `json:"order"`
	Timestamp    time.Time     `json:"timestamp"`
	OriginPeerID string        `json:"origin_peer_id"`
}

func (u *Update) Validate() error {
	if !u.Type.IsValid() {
		return errors.New("update type must be 'add', 'update' or 'remove'")
	}
	if u.Order == nil {
		return errors.New("update order is required")
	}
	if u.Timestamp.IsZero() {
		return errors.New("update timestamp is required")
	}
	return nil
}
