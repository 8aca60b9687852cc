package core

import (
	"database/sql"

	"github.com/jmoiron/sqlx"
)

type ClipsDBStorer interface {
	Save(clip *Clip) error
	Update(clip *Clip) error
	Find(id ClipID) (*Clip, error)
	BySession(sessionID SessionID) ([]*Clip, error)
	ByMark(markID MarkID) ([]*Clip, error)
}

type ClipsRepository struct {
	db *sqlx.DB
}

func NewClipsRepository(db *sqlx.DB) ClipsDBStorer {
	return &ClipsRepository{
		db: db,
	}
}

func (r *ClipsRepository) Save(clip *Clip) error {
	_, err := r.db.Exec(
		`INSERT INTO clips
			(id, session_id, mark_id, peer_id, source_url, local_path,
			 duration_ms, size_bytes, status, progress, last_error,
			 created_at, downloaded_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		string(clip.ID),
		string(clip.SessionID),
		string(clip.MarkID),
		string(clip.PeerID),
		clip.SourceURL,
		clip.LocalPath,
		clip.DurationMs,
		clip.SizeBytes,
		string(clip.Status),
		clip.Progress,
		clip.LastError,
		clip.CreatedAt,
		clip.DownloadedAt,
	)
	return err
}

func (r *ClipsRepository) Update(clip *Clip) error {
	_, err := r.db.Exec(
		`UPDATE clips SET
			source_url = ?,
			local_path = ?,
			duration_ms = ?,
			size_bytes = ?,
			status = ?,
			progress = ?,
			last_error = ?,
			downloaded_at = ?
		WHERE id = ?`,
		clip.SourceURL,
		clip.LocalPath,
		clip.DurationMs,
		clip.SizeBytes,
		string(clip.Status),
		clip.Progress,
		clip.LastError,
		clip.DownloadedAt,
		string(clip.ID),
	)
	return err
}

func (r *ClipsRepository) Find(id ClipID) (*Clip, error) {
	clip := &Clip{}

	err := r.db.Get(clip, `SELECT * FROM clips WHERE id = ? LIMIT 1`, string(id))
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return clip, nil
}

func (r *ClipsRepository) BySession(sessionID SessionID) ([]*Clip, error) {
	clips := []*Clip{}

	err := r.db.Select(&clips,
		`SELECT * FROM clips WHERE session_id = ? ORDER BY created_at ASC`,
		string(sessionID),
	)
	if err != nil {
		return nil, err
	}

	return clips, nil
}

func (r *ClipsRepository) ByMark(markID MarkID) ([]*Clip, error) {
	clips := []*Clip{}

	err := r.db.Select(&clips,
		`SELECT * FROM clips WHERE mark_id = ? ORDER BY created_at ASC`,
		string(markID),
	)
	if err != nil {
		return nil, err
	}

	return clips, nil
}
