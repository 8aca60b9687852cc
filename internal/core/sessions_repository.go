package core

import (
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
)

type SessionsDBStorer interface {
	Save(session *Session) error
	Find(id SessionID) (*Session, error)
	FindRecording() (*Session, error)
	Stop(id SessionID, stoppedAt time.Time) error
	GetAll(limit int) ([]*Session, error)
}

type SessionsRepository struct {
	db *sqlx.DB
}

func NewSessionsRepository(db *sqlx.DB) SessionsDBStorer {
	return &SessionsRepository{
		db: db,
	}
}

func (r *SessionsRepository) Save(session *Session) error {
	_, err := r.db.Exec(
		`INSERT INTO sessions
			(id, event_id, match_id, title, profile, status, started_at, stopped_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title = excluded.title,
			status = excluded.status,
			stopped_at = excluded.stopped_at`,
		string(session.ID),
		session.EventID,
		session.MatchID,
		session.Title,
		session.Profile,
		string(session.Status),
		session.StartedAt,
		session.StoppedAt,
	)
	return err
}

func (r *SessionsRepository) Find(id SessionID) (*Session, error) {
	session := &Session{}

	err := r.db.Get(session, `SELECT * FROM sessions WHERE id = ? LIMIT 1`, string(id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return session, nil
}

// FindRecording returns the single session currently in `recording`
// status, nil if none. Used to reload soft state after restart.
func (r *SessionsRepository) FindRecording() (*Session, error) {
	session := &Session{}

	err := r.db.Get(session,
		`SELECT * FROM sessions WHERE status = ? ORDER BY started_at DESC LIMIT 1`,
		string(SessionRecording),
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return session, nil
}

func (r *SessionsRepository) Stop(id SessionID, stoppedAt time.Time) error {
	_, err := r.db.Exec(
		`UPDATE sessions SET status = ?, stopped_at = ? WHERE id = ?`,
		string(SessionStopped),
		stoppedAt,
		string(id),
	)
	return err
}

func (r *SessionsRepository) GetAll(limit int) ([]*Session, error) {
	if limit <= 0 {
		limit = 50
	}

	sessions := []*Session{}
	err := r.db.Select(&sessions,
		`SELECT * FROM sessions ORDER BY started_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}

	return sessions, nil
}
