package core

import (
	"database/sql/driver"
	"encoding/json"
	"errors"
	"time"
)

// PeerID is peer-declared identifier of a camera device
type PeerID string

// Capabilities is free-form metadata reported by a peer at pairing time,
// stored as a JSON text column.
type Capabilities map[string]string

func (c Capabilities) Value() (driver.Value, error) {
	if c == nil {
		return "{}", nil
	}
	b, err := json.Marshal(c)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

func (c *Capabilities) Scan(src interface{}) error {
	if src == nil {
		*c = Capabilities{}
		return nil
	}

	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, c)
	case string:
		return json.Unmarshal([]byte(v), c)
	default:
		return errors.New("unsupported source type for capabilities")
	}
}

// Peer is the persisted identity of a camera device. Identity is keyed by
// DeviceKey, not by transport connection: a device reconnecting after an IP
// change or app restart is recognized as the same peer.
type Peer struct {
	ID           PeerID       `json:"id" db:"id"`
	DeviceKey    string       `json:"-" db:"device_key"`
	Name         string       `json:"name" db:"name"`
	Slot         *string      `json:"slot,omitempty" db:"slot"`
	Capabilities Capabilities `json:"capabilities,omitempty" db:"capabilities"`
	PairedAt     time.Time    `json:"paired_at" db:"paired_at"`
	LastSeenAt   time.Time    `json:"last_seen_at" db:"last_seen_at"`
	Active       bool         `json:"is_active" db:"is_active"`
}
