package core

import (
	"database/sql"
	"strings"

	"github.com/jmoiron/sqlx"
)

type TokensDBStorer interface {
	Save(token *PairingToken) error
	FindByCode(code string) (*PairingToken, error)
	MarkUsed(code string) error
}

type TokensRepository struct {
	db *sqlx.DB
}

func NewTokensRepository(db *sqlx.DB) TokensDBStorer {
	return &TokensRepository{
		db: db,
	}
}

func (r *TokensRepository) Save(token *PairingToken) error {
	_, err := r.db.Exec(
		`INSERT INTO pairing_tokens (code, created_at, expires_at, used)
		VALUES (?, ?, ?, ?)`,
		strings.ToUpper(token.Code),
		token.CreatedAt,
		token.ExpiresAt,
		token.Used,
	)
	return err
}

// FindByCode is a case-insensitive lookup, codes are stored uppercased.
func (r *TokensRepository) FindByCode(code string) (*PairingToken, error) {
	token := &PairingToken{}

	err := r.db.Get(token,
		`SELECT * FROM pairing_tokens WHERE code = ? LIMIT 1`,
		strings.ToUpper(code),
	)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, err
	}

	return token, nil
}

func (r *TokensRepository) MarkUsed(code string) error {
	_, err := r.db.Exec(
		`UPDATE pairing_tokens SET used = 1 WHERE code = ?`,
		strings.ToUpper(code),
	)
	return err
}
