package core

import (
	"github.com/jmoiron/sqlx"
)

var migrations = []string{
	`
CREATE TABLE IF NOT EXISTS peers (
  id           TEXT PRIMARY KEY,
  device_key   TEXT NOT NULL UNIQUE,
  name         TEXT NOT NULL,
  slot         TEXT,
  capabilities TEXT NOT NULL DEFAULT '{}',
  paired_at    TIMESTAMP NOT NULL,
  last_seen_at TIMESTAMP NOT NULL,
  is_active    INTEGER NOT NULL DEFAULT 1
);
`,
	`
CREATE TABLE IF NOT EXISTS sessions (
  id         TEXT PRIMARY KEY,
  event_id   TEXT,
  match_id   TEXT,
  title      TEXT NOT NULL DEFAULT '',
  profile    TEXT NOT NULL DEFAULT '',
  status     TEXT NOT NULL CHECK(status IN ('pending','recording','stopped','completed')),
  started_at TIMESTAMP NOT NULL,
  stopped_at TIMESTAMP
);
`,
	`
CREATE TABLE IF NOT EXISTS marks (
  id         TEXT PRIMARY KEY,
  session_id TEXT NOT NULL REFERENCES sessions(id),
  ts         TIMESTAMP NOT NULL,
  label      TEXT NOT NULL,
  note       TEXT,
  created_at TIMESTAMP NOT NULL
);
`,
	`
CREATE TABLE IF NOT EXISTS mark_acks (
  mark_id     TEXT NOT NULL,
  peer_id     TEXT NOT NULL,
  peer_ts     INTEGER NOT NULL,
  received_at TIMESTAMP NOT NULL
);
`,
	`
CREATE TABLE IF NOT EXISTS clips (
  id            TEXT PRIMARY KEY,
  session_id    TEXT NOT NULL REFERENCES sessions(id),
  mark_id       TEXT NOT NULL,
  peer_id       TEXT NOT NULL,
  source_url    TEXT,
  local_path    TEXT,
  duration_ms   INTEGER NOT NULL DEFAULT 0,
  size_bytes    INTEGER NOT NULL DEFAULT 0,
  status        TEXT NOT NULL CHECK(status IN ('pending','requested','ready','downloading','downloaded','failed')),
  progress      REAL NOT NULL DEFAULT 0,
  last_error    TEXT,
  created_at    TIMESTAMP NOT NULL,
  downloaded_at TIMESTAMP
);
`,
	`
CREATE TABLE IF NOT EXISTS pairing_tokens (
  code       TEXT PRIMARY KEY,
  created_at TIMESTAMP NOT NULL,
  expires_at TIMESTAMP NOT NULL,
  used       INTEGER NOT NULL DEFAULT 0
);
`,
	`CREATE INDEX IF NOT EXISTS idx_marks_session ON marks(session_id);`,
	`CREATE INDEX IF NOT EXISTS idx_mark_acks_mark ON mark_acks(mark_id);`,
	`CREATE INDEX IF NOT EXISTS idx_clips_session ON clips(session_id);`,
	`CREATE INDEX IF NOT EXISTS idx_clips_mark ON clips(mark_id);`,
}

// Migrate applies the schema statements in order. Statements are
// idempotent, so running at every start is safe.
func Migrate(db *sqlx.DB) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}
	return nil
}
