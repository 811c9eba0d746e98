package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"

	"github.com/eldernest/elderauth"
)

const userColumns = `id, role, phone, email, password_hash, full_name, age,
	account_status, locked_until, failed_login_attempts, connected_elders,
	connected_family, auth_provider, provider_subject, phone_verified,
	email_verified, created_at, updated_at, last_login_at`

// UserStore provides data access for the users table using sqlx. It
// implements [elderauth.UserStore].
type UserStore struct {
	db *sqlx.DB
}

// NewUserStore describes the newuserstore operation and its observable behavior.
func NewUserStore(db *sqlx.DB) *UserStore { return &UserStore{db: db} }

type userRow struct {
	ID                  string         `db:"id"`
	Role                string         `db:"role"`
	Phone               *string        `db:"phone"`
	Email               *string        `db:"email"`
	PasswordHash        string         `db:"password_hash"`
	FullName            string         `db:"full_name"`
	Age                 int            `db:"age"`
	AccountStatus       string         `db:"account_status"`
	LockedUntil         *time.Time     `db:"locked_until"`
	FailedLoginAttempts int            `db:"failed_login_attempts"`
	ConnectedElders     pq.StringArray `db:"connected_elders"`
	ConnectedFamily     pq.StringArray `db:"connected_family"`
	AuthProvider        string         `db:"auth_provider"`
	ProviderSubject     *string        `db:"provider_subject"`
	PhoneVerified       bool           `db:"phone_verified"`
	EmailVerified       bool           `db:"email_verified"`
	CreatedAt           time.Time      `db:"created_at"`
	UpdatedAt           time.Time      `db:"updated_at"`
	LastLoginAt         *time.Time     `db:"last_login_at"`
}

func (r userRow) toUser() *elderauth.User {
	return &elderauth.User{
		ID:                  r.ID,
		Role:                elderauth.Role(r.Role),
		Phone:               fromNullable(r.Phone),
		Email:               fromNullable(r.Email),
		PasswordHash:        r.PasswordHash,
		FullName:            r.FullName,
		Age:                 r.Age,
		AccountStatus:       elderauth.AccountStatus(r.AccountStatus),
		LockedUntil:         r.LockedUntil,
		FailedLoginAttempts: r.FailedLoginAttempts,
		ConnectedElders:     []string(r.ConnectedElders),
		ConnectedFamily:     []string(r.ConnectedFamily),
		AuthProvider:        elderauth.AuthProvider(r.AuthProvider),
		ProviderSubject:     fromNullable(r.ProviderSubject),
		PhoneVerified:       r.PhoneVerified,
		EmailVerified:       r.EmailVerified,
		CreatedAt:           r.CreatedAt,
		UpdatedAt:           r.UpdatedAt,
		LastLoginAt:         r.LastLoginAt,
	}
}

// Empty strings are stored as NULL so the UNIQUE constraints on phone and
// email only bite on real values.
func toNullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func fromNullable(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// Create inserts a new user row. Phone/email uniqueness conflicts surface as
// [elderauth.ErrAlreadyRegistered].
func (s *UserStore) Create(ctx context.Context, u *elderauth.User) error {
	const q = `INSERT INTO users (id, role, phone, email, password_hash, full_name, age,
		account_status, locked_until, failed_login_attempts, connected_elders,
		connected_family, auth_provider, provider_subject, phone_verified,
		email_verified, created_at, updated_at, last_login_at)
	VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19)`

	_, err := s.db.ExecContext(ctx, q,
		u.ID, string(u.Role), toNullable(u.Phone), toNullable(u.Email),
		u.PasswordHash, u.FullName, u.Age, string(u.AccountStatus),
		u.LockedUntil, u.FailedLoginAttempts,
		pq.StringArray(u.ConnectedElders), pq.StringArray(u.ConnectedFamily),
		string(u.AuthProvider), toNullable(u.ProviderSubject),
		u.PhoneVerified, u.EmailVerified, u.CreatedAt, u.UpdatedAt, u.LastLoginAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code.Name() == "unique_violation" {
			return elderauth.ErrAlreadyRegistered
		}
		return err
	}
	return nil
}

func (s *UserStore) getBy(ctx context.Context, where string, args ...interface{}) (*elderauth.User, error) {
	var row userRow
	if err := s.db.GetContext(ctx, &row, `SELECT `+userColumns+` FROM users WHERE `+where, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, elderauth.ErrUserNotFound
		}
		return nil, err
	}
	return row.toUser(), nil
}

// GetByID describes the getbyid operation and its observable behavior.
func (s *UserStore) GetByID(ctx context.Context, id string) (*elderauth.User, error) {
	return s.getBy(ctx, `id=$1`, id)
}

// GetByPhone describes the getbyphone operation and its observable behavior.
func (s *UserStore) GetByPhone(ctx context.Context, phone string) (*elderauth.User, error) {
	return s.getBy(ctx, `phone=$1`, phone)
}

// GetByEmail describes the getbyemail operation and its observable behavior.
func (s *UserStore) GetByEmail(ctx context.Context, email string) (*elderauth.User, error) {
	return s.getBy(ctx, `email=$1`, email)
}

// GetByProviderSubject describes the getbyprovidersubject operation and its observable behavior.
func (s *UserStore) GetByProviderSubject(ctx context.Context, provider elderauth.AuthProvider, subject string) (*elderauth.User, error) {
	return s.getBy(ctx, `auth_provider=$1 AND provider_subject=$2`, string(provider), subject)
}

func (s *UserStore) execOne(ctx context.Context, q string, args ...interface{}) error {
	res, err := s.db.ExecContext(ctx, q, args...)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return elderauth.ErrUserNotFound
	}
	return nil
}

// SetPasswordHash describes the setpasswordhash operation and its observable behavior.
func (s *UserStore) SetPasswordHash(ctx context.Context, id, hash string) error {
	const q = `UPDATE users SET password_hash=$2, updated_at=NOW() WHERE id=$1`
	return s.execOne(ctx, q, id, hash)
}

// SetProviderSubject describes the setprovidersubject operation and its observable behavior.
func (s *UserStore) SetProviderSubject(ctx context.Context, id string, provider elderauth.AuthProvider, subject string) error {
	const q = `UPDATE users SET auth_provider=$2, provider_subject=$3, updated_at=NOW() WHERE id=$1`
	return s.execOne(ctx, q, id, string(provider), subject)
}

// SetStatus describes the setstatus operation and its observable behavior.
func (s *UserStore) SetStatus(ctx context.Context, id string, status elderauth.AccountStatus) error {
	const q = `UPDATE users SET account_status=$2, updated_at=NOW() WHERE id=$1`
	return s.execOne(ctx, q, id, string(status))
}

// RecordLoginFailure increments the failure counter and flips the account to
// locked in the same statement once the threshold is reached, so concurrent
// failures cannot slip past the cap.
func (s *UserStore) RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, *time.Time, error) {
	const q = `UPDATE users SET
		failed_login_attempts = failed_login_attempts + 1,
		account_status = CASE WHEN failed_login_attempts + 1 >= $2 THEN 'locked' ELSE account_status END,
		locked_until   = CASE WHEN failed_login_attempts + 1 >= $2 THEN NOW() + $3 * INTERVAL '1 second' ELSE locked_until END,
		updated_at = NOW()
	WHERE id=$1
	RETURNING failed_login_attempts, locked_until`

	var row struct {
		FailedLoginAttempts int        `db:"failed_login_attempts"`
		LockedUntil         *time.Time `db:"locked_until"`
	}
	err := s.db.GetContext(ctx, &row, q, id, threshold, int64(lockFor.Seconds()))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil, elderauth.ErrUserNotFound
		}
		return 0, nil, err
	}
	return row.FailedLoginAttempts, row.LockedUntil, nil
}

// RecordLoginSuccess describes the recordloginsuccess operation and its observable behavior.
func (s *UserStore) RecordLoginSuccess(ctx context.Context, id string, at time.Time) error {
	const q = `UPDATE users SET failed_login_attempts=0, last_login_at=$2, updated_at=NOW() WHERE id=$1`
	return s.execOne(ctx, q, id, at)
}

// ClearExpiredLock transitions locked accounts back to active once the lock
// deadline has passed. Reports whether a transition happened.
func (s *UserStore) ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error) {
	const q = `UPDATE users SET account_status='active', locked_until=NULL,
		failed_login_attempts=0, updated_at=NOW()
	WHERE id=$1 AND account_status='locked' AND locked_until IS NOT NULL AND locked_until <= $2
	RETURNING 1`

	var one int
	err := s.db.GetContext(ctx, &one, q, id, now)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// LinkAccounts appends each user id to the other's relationship array inside
// one transaction; readers never observe a one-sided link. Appends are
// idempotent, so re-linking an existing pair is a no-op.
func (s *UserStore) LinkAccounts(ctx context.Context, elderID, familyID string) error {
	tx, err := s.db.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	link := func(q, id, other string) error {
		var one int
		if err := tx.GetContext(ctx, &one, q, id, other); err != nil {
			if errors.Is(err, sql.ErrNoRows) {
				return elderauth.ErrUserNotFound
			}
			return err
		}
		return nil
	}

	const elderQ = `UPDATE users SET
		connected_family = CASE WHEN $2 = ANY(connected_family) THEN connected_family ELSE array_append(connected_family, $2) END,
		updated_at = NOW()
	WHERE id=$1 RETURNING 1`
	const familyQ = `UPDATE users SET
		connected_elders = CASE WHEN $2 = ANY(connected_elders) THEN connected_elders ELSE array_append(connected_elders, $2) END,
		updated_at = NOW()
	WHERE id=$1 RETURNING 1`

	if err := link(elderQ, elderID, familyID); err != nil {
		return err
	}
	if err := link(familyQ, familyID, elderID); err != nil {
		return err
	}

	return tx.Commit()
}
