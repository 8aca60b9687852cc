package core

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

type PeersDBStorer interface {
	Save(peer *Peer) error
	Find(id PeerID) (*Peer, error)
	FindByDeviceKey(key string) (*Peer, error)
	GetAllActive() ([]*Peer, error)
	Rekey(oldID, newID PeerID) error
	SetSlot(id PeerID, slot *string) error
	Touch(id PeerID, seenAt time.Time) error
	Deactivate(id PeerID) error
}

type PeersRepository struct {
	db *sqlx.DB
}

func NewPeersRepository(db *sqlx.DB) PeersDBStorer {
	return &PeersRepository{
		db: db,
	}
}

func (r *PeersRepository) Save(peer *Peer) error {
	_, err := r.db.Exec(
		`INSERT INTO peers
			(id, device_key, name, slot, capabilities, paired_at, last_seen_at, is_active)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			device_key = excluded.device_key,
			name = excluded.name,
			slot = excluded.slot,
			capabilities = excluded.capabilities,
			last_seen_at = excluded.last_seen_at,
			is_active = excluded.is_active`,
		string(peer.ID),
		peer.DeviceKey,
		peer.Name,
		peer.Slot,
		peer.Capabilities,
		peer.PairedAt,
		peer.LastSeenAt,
		peer.Active,
	)
	return err
}

func (r *PeersRepository) Find(id PeerID) (*Peer, error) {
	peer := &Peer{}

	err := r.db.Get(peer, `SELECT * FROM peers WHERE id = ? LIMIT 1`, string(id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return peer, nil
}

func (r *PeersRepository) FindByDeviceKey(key string) (*Peer, error) {
	peer := &Peer{}

	err := r.db.Get(peer, `SELECT * FROM peers WHERE device_key = ? LIMIT 1`, key)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return peer, nil
}

func (r *PeersRepository) GetAllActive() ([]*Peer, error) {
	peers := []*Peer{}

	err := r.db.Select(&peers, `SELECT * FROM peers WHERE is_active = 1 ORDER BY name ASC`)
	if err != nil {
		return nil, err
	}

	return peers, nil
}

// Rekey moves a persisted identity to a new peer-declared id. Credential
// identity takes precedence over the declared id, so a reinstalled app
// keeping its stored device key is still the same peer.
func (r *PeersRepository) Rekey(oldID, newID PeerID) error {
	_, err := r.db.Exec(`UPDATE peers SET id = ? WHERE id = ?`, string(newID), string(oldID))
	return err
}

func (r *PeersRepository) SetSlot(id PeerID, slot *string) error {
	_, err := r.db.Exec(`UPDATE peers SET slot = ? WHERE id = ?`, slot, string(id))
	return err
}

func (r *PeersRepository) Touch(id PeerID, seenAt time.Time) error {
	_, err := r.db.Exec(`UPDATE peers SET last_seen_at = ? WHERE id = ?`, seenAt, string(id))
	return err
}

func (r *PeersRepository) Deactivate(id PeerID) error {
	_, err := r.db.Exec(`UPDATE peers SET is_active = 0 WHERE id = ?`, string(id))
	return err
}
