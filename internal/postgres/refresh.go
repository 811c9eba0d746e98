package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/eldernest/elderauth"
)

const refreshColumns = `id, user_id, token_hash, issued_at, expires_at,
	revoked, revoked_at, client_ip, user_agent`

// RefreshStore provides data access for the refresh_tokens table using sqlx.
// It implements [elderauth.RefreshStore].
type RefreshStore struct {
	db *sqlx.DB
}

// NewRefreshStore describes the newrefreshstore operation and its observable behavior.
func NewRefreshStore(db *sqlx.DB) *RefreshStore { return &RefreshStore{db: db} }

type refreshRow struct {
	ID        string     `db:"id"`
	UserID    string     `db:"user_id"`
	TokenHash string     `db:"token_hash"`
	IssuedAt  time.Time  `db:"issued_at"`
	ExpiresAt time.Time  `db:"expires_at"`
	Revoked   bool       `db:"revoked"`
	RevokedAt *time.Time `db:"revoked_at"`
	ClientIP  string     `db:"client_ip"`
	UserAgent string     `db:"user_agent"`
}

func (r refreshRow) toRecord() *elderauth.RefreshRecord {
	return &elderauth.RefreshRecord{
		ID:        r.ID,
		UserID:    r.UserID,
		TokenHash: r.TokenHash,
		IssuedAt:  r.IssuedAt,
		ExpiresAt: r.ExpiresAt,
		Revoked:   r.Revoked,
		RevokedAt: r.RevokedAt,
		ClientIP:  r.ClientIP,
		UserAgent: r.UserAgent,
	}
}

// Save describes the save operation and its observable behavior.
func (s *RefreshStore) Save(ctx context.Context, rec *elderauth.RefreshRecord) error {
	const q = `INSERT INTO refresh_tokens (id, user_id, token_hash, issued_at,
		expires_at, revoked, revoked_at, client_ip, user_agent)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	_, err := s.db.ExecContext(ctx, q,
		rec.ID, rec.UserID, rec.TokenHash, rec.IssuedAt, rec.ExpiresAt,
		rec.Revoked, rec.RevokedAt, rec.ClientIP, rec.UserAgent,
	)
	return err
}

// Get describes the get operation and its observable behavior.
func (s *RefreshStore) Get(ctx context.Context, id string) (*elderauth.RefreshRecord, error) {
	var row refreshRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+refreshColumns+` FROM refresh_tokens WHERE id=$1`, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, elderauth.ErrTokenInvalid
		}
		return nil, err
	}
	return row.toRecord(), nil
}

// Revoke describes the revoke operation and its observable behavior.
func (s *RefreshStore) Revoke(ctx context.Context, id string) error {
	const q = `UPDATE refresh_tokens SET revoked=true, revoked_at=NOW() WHERE id=$1`
	res, err := s.db.ExecContext(ctx, q, id)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return elderauth.ErrTokenInvalid
	}
	return nil
}

// RevokeAllForUser revokes every live record the user owns and reports how
// many were hit. Used for logout-everywhere and compromise response.
func (s *RefreshStore) RevokeAllForUser(ctx context.Context, userID string) (int, error) {
	const q = `UPDATE refresh_tokens SET revoked=true, revoked_at=NOW()
	WHERE user_id=$1 AND NOT revoked`

	res, err := s.db.ExecContext(ctx, q, userID)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// Rotate revokes the old record and inserts its successor in one
// transaction. A record that is already revoked yields
// [elderauth.ErrTokenRevoked]; callers treat that as a reuse signal.
func (s *RefreshStore) Rotate(ctx context.Context, oldID string, next *elderauth.RefreshRecord) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	const revokeQ = `UPDATE refresh_tokens SET revoked=true, revoked_at=NOW()
	WHERE id=$1 AND NOT revoked
	RETURNING user_id`

	var userID string
	if err := tx.GetContext(ctx, &userID, revokeQ, oldID); err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			return err
		}
		// Not revocable: either the record is gone or someone spent it
		// already. The distinction matters to the caller.
		var revoked bool
		probeErr := tx.GetContext(ctx, &revoked, `SELECT revoked FROM refresh_tokens WHERE id=$1`, oldID)
		if errors.Is(probeErr, sql.ErrNoRows) {
			return elderauth.ErrTokenInvalid
		}
		if probeErr != nil {
			return probeErr
		}
		return elderauth.ErrTokenRevoked
	}

	const insertQ = `INSERT INTO refresh_tokens (id, user_id, token_hash,
		issued_at, expires_at, revoked, revoked_at, client_ip, user_agent)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)`

	if _, err := tx.ExecContext(ctx, insertQ,
		next.ID, next.UserID, next.TokenHash, next.IssuedAt, next.ExpiresAt,
		next.Revoked, next.RevokedAt, next.ClientIP, next.UserAgent,
	); err != nil {
		return err
	}

	return tx.Commit()
}

// DeleteExpired removes up to limit records whose expiry lies before the
// given time and returns the number removed. Idempotent; safe as a periodic
// job.
func (s *RefreshStore) DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error) {
	if limit <= 0 {
		limit = 256
	}
	const q = `DELETE FROM refresh_tokens WHERE id IN (
		SELECT id FROM refresh_tokens WHERE expires_at < $1 LIMIT $2
	)`

	res, err := s.db.ExecContext(ctx, q, before, limit)
	if err != nil {
		return 0, err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}
