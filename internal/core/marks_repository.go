package core

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type MarksDBStorer interface {
	Save(mark *Mark) error
	Update(mark *Mark) error
	Delete(id MarkID) error
	Find(id MarkID) (*Mark, error)
	BySession(sessionID SessionID) ([]*Mark, error)
	AppendAck(ack *MarkAck) error
	AcksByMark(id MarkID) ([]*MarkAck, error)
}

type MarksRepository struct {
	db *sqlx.DB
}

func NewMarksRepository(db *sqlx.DB) MarksDBStorer {
	return &MarksRepository{
		db: db,
	}
}

func (r *MarksRepository) Save(mark *Mark) error {
	_, err := r.db.Exec(
		`INSERT INTO marks (id, session_id, ts, label, note, created_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		string(mark.ID),
		string(mark.SessionID),
		mark.Ts,
		mark.Label,
		mark.Note,
		mark.CreatedAt,
	)
	return err
}

// Update touches label and note only, the rest of a mark is immutable.
func (r *MarksRepository) Update(mark *Mark) error {
	_, err := r.db.Exec(
		`UPDATE marks SET label = ?, note = ? WHERE id = ?`,
		mark.Label,
		mark.Note,
		string(mark.ID),
	)
	return err
}

func (r *MarksRepository) Delete(id MarkID) error {
	_, err := r.db.Exec(`DELETE FROM marks WHERE id = ?`, string(id))
	return err
}

func (r *MarksRepository) Find(id MarkID) (*Mark, error) {
	mark := &Mark{}

	err := r.db.Get(mark, `SELECT * FROM marks WHERE id = ? LIMIT 1`, string(id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return mark, nil
}

func (r *MarksRepository) BySession(sessionID SessionID) ([]*Mark, error) {
	marks := []*Mark{}

	err := r.db.Select(&marks,
		`SELECT * FROM marks WHERE session_id = ? ORDER BY ts ASC`,
		string(sessionID),
	)
	if err != nil {
		return nil, err
	}

	return marks, nil
}

func (r *MarksRepository) AppendAck(ack *MarkAck) error {
	_, err := r.db.Exec(
		`INSERT INTO mark_acks (mark_id, peer_id, peer_ts, received_at)
		VALUES (?, ?, ?, ?)`,
		string(ack.MarkID),
		string(ack.PeerID),
		ack.PeerTs,
		ack.ReceivedAt,
	)
	return err
}

func (r *MarksRepository) AcksByMark(id MarkID) ([]*MarkAck, error) {
	acks := []*MarkAck{}

	err := r.db.Select(&acks,
		`SELECT * FROM mark_acks WHERE mark_id = ? ORDER BY received_at ASC`,
		string(id),
	)
	if err != nil {
		return nil, err
	}

	return acks, nil
}
