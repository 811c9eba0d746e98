package elderauth

import (
	"context"
	"time"
)

// Role defines a public type used by elderauth APIs.
//
// Role instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Role string

const (
	// RoleElder is an exported constant or variable used by the authentication engine.
	RoleElder Role = "elder"
	// RoleFamily is an exported constant or variable used by the authentication engine.
	RoleFamily Role = "family"
)

// Valid reports whether the role is one of the two platform roles.
func (r Role) Valid() bool {
	return r == RoleElder || r == RoleFamily
}

// AccountStatus represents the lifecycle state of a user account.
type AccountStatus string

const (
	// StatusActive is an exported constant or variable used by the authentication engine.
	StatusActive AccountStatus = "active"
	// StatusPending is an exported constant or variable used by the authentication engine.
	StatusPending AccountStatus = "pending"
	// StatusSuspended is an exported constant or variable used by the authentication engine.
	StatusSuspended AccountStatus = "suspended"
	// StatusLocked is an exported constant or variable used by the authentication engine.
	StatusLocked AccountStatus = "locked"
)

// AuthProvider identifies how an account was created and how it authenticates.
type AuthProvider string

const (
	// ProviderPhone is an exported constant or variable used by the authentication engine.
	ProviderPhone AuthProvider = "phone"
	// ProviderEmail is an exported constant or variable used by the authentication engine.
	ProviderEmail AuthProvider = "email"
	// ProviderGoogle is an exported constant or variable used by the authentication engine.
	ProviderGoogle AuthProvider = "google"
)

// OTPPurpose is the closed set of reasons a verification code may be issued.
// Every switch over OTPPurpose in this module handles all four values
// explicitly; adding a purpose without extending those switches is a bug.
type OTPPurpose string

const (
	// PurposeLogin is an exported constant or variable used by the authentication engine.
	PurposeLogin OTPPurpose = "login"
	// PurposeSignup is an exported constant or variable used by the authentication engine.
	PurposeSignup OTPPurpose = "signup"
	// PurposeFamilyVerification is an exported constant or variable used by the authentication engine.
	PurposeFamilyVerification OTPPurpose = "family-verification"
	// PurposePasswordReset is an exported constant or variable used by the authentication engine.
	PurposePasswordReset OTPPurpose = "password-reset"
)

// AllOTPPurposes is an exported constant or variable used by the authentication engine.
var AllOTPPurposes = [4]OTPPurpose{PurposeLogin, PurposeSignup, PurposeFamilyVerification, PurposePasswordReset}

// Valid reports whether the purpose is a member of the closed set.
func (p OTPPurpose) Valid() bool {
	switch p {
	case PurposeLogin, PurposeSignup, PurposeFamilyVerification, PurposePasswordReset:
		return true
	}
	return false
}

// OTPMetadata is the tagged metadata variant attached to an OTP record.
// Each purpose carries exactly the fields it needs; the store persists and
// restores the concrete variant so required fields cannot silently go
// missing between issuance and verification.
type OTPMetadata interface {
	Purpose() OTPPurpose
}

// ClientMeta defines a public type used by elderauth APIs.
//
// ClientMeta instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type ClientMeta struct {
	IP        string
	UserAgent string
}

// SignupMeta is the OTP metadata variant for elder signup step 1.
type SignupMeta struct {
	Client ClientMeta
}

// Purpose describes the purpose operation and its observable behavior.
func (SignupMeta) Purpose() OTPPurpose { return PurposeSignup }

// LoginMeta is the OTP metadata variant for phone login.
type LoginMeta struct {
	Client ClientMeta
	UserID string
}

// Purpose describes the purpose operation and its observable behavior.
func (LoginMeta) Purpose() OTPPurpose { return PurposeLogin }

// FamilyVerificationMeta is the OTP metadata variant for the family
// confirmation step of elder signup. PendingID references the pending
// connection awaiting this code.
type FamilyVerificationMeta struct {
	Client    ClientMeta
	PendingID string
}

// Purpose describes the purpose operation and its observable behavior.
func (FamilyVerificationMeta) Purpose() OTPPurpose { return PurposeFamilyVerification }

// PasswordResetMeta is the OTP metadata variant for password reset. UserID
// pins the reset to the account that requested it.
type PasswordResetMeta struct {
	Client ClientMeta
	UserID string
}

// Purpose describes the purpose operation and its observable behavior.
func (PasswordResetMeta) Purpose() OTPPurpose { return PurposePasswordReset }

// User is the durable identity record for one person on the platform.
// Exactly one User exists per verified phone or email; relationship slices
// hold the ids of linked accounts on the other side of the elder/family
// divide.
type User struct {
	ID                  string
	Role                Role
	Phone               string
	Email               string
	PasswordHash        string
	FullName            string
	Age                 int
	AccountStatus       AccountStatus
	LockedUntil         *time.Time
	FailedLoginAttempts int
	ConnectedElders     []string
	ConnectedFamily     []string
	AuthProvider        AuthProvider
	ProviderSubject     string
	PhoneVerified       bool
	EmailVerified       bool
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LastLoginAt         *time.Time
}

// UserView is the JSON-safe projection of a User returned to clients.
// It never carries the password hash, lockout counters, or provider subject.
type UserView struct {
	ID              string   `json:"id"`
	Role            Role     `json:"role"`
	Phone           string   `json:"phone,omitempty"`
	Email           string   `json:"email,omitempty"`
	FullName        string   `json:"fullName"`
	Age             int      `json:"age,omitempty"`
	AccountStatus   string   `json:"accountStatus"`
	PhoneVerified   bool     `json:"phoneVerified"`
	EmailVerified   bool     `json:"emailVerified"`
	ConnectedElders []string `json:"connectedElders,omitempty"`
	ConnectedFamily []string `json:"connectedFamily,omitempty"`
	CreatedAt       string   `json:"createdAt"`
	LastLoginAt     string   `json:"lastLoginAt,omitempty"`
}

// View describes the view operation and its observable behavior.
//
// View may return an error when input validation, dependency calls, or security checks fail.
// View does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (u *User) View() UserView {
	v := UserView{
		ID:              u.ID,
		Role:            u.Role,
		Phone:           u.Phone,
		Email:           u.Email,
		FullName:        u.FullName,
		Age:             u.Age,
		AccountStatus:   string(u.AccountStatus),
		PhoneVerified:   u.PhoneVerified,
		EmailVerified:   u.EmailVerified,
		ConnectedElders: u.ConnectedElders,
		ConnectedFamily: u.ConnectedFamily,
		CreatedAt:       u.CreatedAt.UTC().Format(time.RFC3339),
	}
	if u.LastLoginAt != nil {
		v.LastLoginAt = u.LastLoginAt.UTC().Format(time.RFC3339)
	}
	return v
}

// PendingStatus defines a public type used by elderauth APIs.
//
// PendingStatus instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type PendingStatus string

const (
	// PendingStatusPending is an exported constant or variable used by the authentication engine.
	PendingStatusPending PendingStatus = "pending"
	// PendingStatusVerified is an exported constant or variable used by the authentication engine.
	PendingStatusVerified PendingStatus = "verified"
	// PendingStatusExpired is an exported constant or variable used by the authentication engine.
	PendingStatusExpired PendingStatus = "expired"
	// PendingStatusCancelled is an exported constant or variable used by the authentication engine.
	PendingStatusCancelled PendingStatus = "cancelled"
)

// PendingConnection is the time-boxed join record bridging an elder's
// not-yet-created account and a family member's phone during elder signup.
// At most one pending-status record exists per elder phone; creating a new
// one cancels its predecessor.
type PendingConnection struct {
	ID             string        `json:"id"`
	ElderPhone     string        `json:"elderPhone"`
	ElderName      string        `json:"elderName"`
	ElderAge       int           `json:"elderAge"`
	FamilyPhone    string        `json:"familyPhone"`
	FamilyRelation string        `json:"familyRelation"`
	Status         PendingStatus `json:"status"`
	OTPID          string        `json:"otpId,omitempty"`
	ElderUID       string        `json:"elderUid,omitempty"`
	FamilyUID      string        `json:"familyUid,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	ExpiresAt      time.Time     `json:"expiresAt"`
}

// AuthResponse defines a public type used by elderauth APIs.
//
// AuthResponse instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type AuthResponse struct {
	User         UserView `json:"user"`
	AccessToken  string   `json:"accessToken"`
	RefreshToken string   `json:"refreshToken"`
	ExpiresIn    int64    `json:"expiresIn"`
	IsNewUser    bool     `json:"isNewUser,omitempty"`
}

// OTPIssueResult defines a public type used by elderauth APIs.
//
// OTPIssueResult instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type OTPIssueResult struct {
	OTPID     string
	ExpiresAt time.Time
}

// RefreshRecord is the persisted, revocable side of a refresh token. The
// signed token alone is never sufficient: a refresh exchange requires this
// record to exist, be unrevoked, and be unexpired.
type RefreshRecord struct {
	ID        string
	UserID    string
	TokenHash string
	IssuedAt  time.Time
	ExpiresAt time.Time
	Revoked   bool
	RevokedAt *time.Time
	ClientIP  string
	UserAgent string
}

// UserStore is the durable storage interface the engine requires for user
// records. Implementations must make Create fail with
// [ErrAlreadyRegistered] on phone/email uniqueness conflicts, return
// [ErrUserNotFound] for missing rows, and implement the lockout mutations
// as atomic single-statement updates so concurrent logins cannot lose
// counter increments.
type UserStore interface {
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id string) (*User, error)
	GetByPhone(ctx context.Context, phone string) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
	GetByProviderSubject(ctx context.Context, provider AuthProvider, subject string) (*User, error)
	SetPasswordHash(ctx context.Context, id, hash string) error
	SetProviderSubject(ctx context.Context, id string, provider AuthProvider, subject string) error
	SetStatus(ctx context.Context, id string, status AccountStatus) error

	// RecordLoginFailure increments the failure counter and, when the new
	// count reaches threshold, flips the account to locked until now+lockFor.
	// It returns the post-increment count and the lock deadline when locked.
	RecordLoginFailure(ctx context.Context, id string, threshold int, lockFor time.Duration) (int, *time.Time, error)
	// RecordLoginSuccess zeroes the failure counter and stamps last login.
	RecordLoginSuccess(ctx context.Context, id string, at time.Time) error
	// ClearExpiredLock transitions locked->active when the lock deadline has
	// passed, resetting the failure counter. Reports whether it cleared.
	ClearExpiredLock(ctx context.Context, id string, now time.Time) (bool, error)

	// LinkAccounts appends each id to the other's relationship slice in a
	// single transaction so readers never observe a one-sided link.
	LinkAccounts(ctx context.Context, elderID, familyID string) error
}

// RefreshStore is the durable storage interface for refresh token records.
type RefreshStore interface {
	Save(ctx context.Context, rec *RefreshRecord) error
	Get(ctx context.Context, id string) (*RefreshRecord, error)
	Revoke(ctx context.Context, id string) error
	RevokeAllForUser(ctx context.Context, userID string) (int, error)
	// Rotate revokes old and inserts next atomically. It returns
	// [ErrTokenRevoked] when old is already revoked, which callers treat as
	// a reuse signal.
	Rotate(ctx context.Context, oldID string, next *RefreshRecord) error
	DeleteExpired(ctx context.Context, before time.Time, limit int) (int, error)
}

// IdentityClaims is the verified payload returned by an [IdentityVerifier].
type IdentityClaims struct {
	Subject       string
	Email         string
	EmailVerified bool
	FullName      string
}

// IdentityVerifier validates a federated ID token (for example a Google ID
// token) with the external provider and returns its claims. Verification
// failures map to [ErrIdentityProvider]; transport failures to
// [ErrIdentityProviderUnavailable].
type IdentityVerifier interface {
	Verify(ctx context.Context, idToken string) (*IdentityClaims, error)
}
