package stores

import (
	"context"
	"crypto/subtle"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Purpose tags an OTP record. The set is closed; the engine maps its public
// purpose enum onto these wire values.
const (
	PurposeLogin              uint8 = 1
	PurposeSignup             uint8 = 2
	PurposeFamilyVerification uint8 = 3
	PurposePasswordReset      uint8 = 4
)

// AllPurposes is an exported constant or variable used by the authentication engine.
var AllPurposes = [4]uint8{PurposeLogin, PurposeSignup, PurposeFamilyVerification, PurposePasswordReset}

// OTPRecord is the stored lifecycle state of one verification code. The
// plaintext code never appears here; only its SHA-256 digest is kept.
// Ref carries the purpose-specific reference: the pending-connection id for
// family verification, the user id for login and password reset, empty for
// signup.
type OTPRecord struct {
	ID          string
	Purpose     uint8
	CodeHash    [32]byte
	CreatedAt   int64
	ExpiresAt   int64
	Attempts    uint16
	MaxAttempts uint16
	Verified    bool
	IP          string
	UserAgent   string
	Ref         string
}

// consumeOTPLua atomically performs GET→validate→mutate on an OTP record.
// KEYS[1] = record key
// ARGV[1] = provided code hash (32 bytes)
// ARGV[2] = current unix timestamp (int string)
//
// Record layout (see otp_codec.go): version(1) purpose(1) flags(1)
// attempts(2 BE) maxAttempts(2 BE) createdAt(8 BE) expiresAt(8 BE)
// codeHash(32) …variable tail.
//
// Returns record bytes on success, or an error string:
// "not_found", "expired", "attempts_exceeded", "mismatch:<remaining>".
//
// Expired and attempts-exceeded records are deliberately left in place so
// repeat submissions keep getting the specific failure until the retention
// TTL or the sweep removes them. A correct code after the attempt cap still
// fails: the cap check runs before the hash compare.
var consumeOTPLua = redis.NewScript(`
local data = redis.call('GET', KEYS[1])
if not data then
  return {err='not_found'}
end

local providedHash = ARGV[1]
local nowUnix = tonumber(ARGV[2])

local version = string.byte(data, 1)
if version ~= 1 then
  redis.call('DEL', KEYS[1])
  return {err='not_found'}
end

local flags = string.byte(data, 3)
if flags % 2 == 1 then
  return {err='not_found'}
end

local attempts = string.byte(data, 4) * 256 + string.byte(data, 5)
local maxAttempts = string.byte(data, 6) * 256 + string.byte(data, 7)

local e0,e1,e2,e3,e4,e5,e6,e7 = string.byte(data, 16, 23)
local expiresAt = e0
for _, b in ipairs({e1,e2,e3,e4,e5,e6,e7}) do
  expiresAt = expiresAt * 256 + b
end

if nowUnix > expiresAt then
  return {err='expired'}
end

if attempts >= maxAttempts then
  return {err='attempts_exceeded'}
end

local storedHash = string.sub(data, 24, 55)

if storedHash ~= providedHash then
  attempts = attempts + 1
  local newData = string.sub(data, 1, 3) .. string.char(math.floor(attempts / 256), attempts % 256) .. string.sub(data, 6)
  local ttlMs = redis.call('PTTL', KEYS[1])
  if ttlMs <= 0 then
    redis.call('DEL', KEYS[1])
    return {err='expired'}
  end
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
  return {err='mismatch:' .. (maxAttempts - attempts)}
end

local newData = string.sub(data, 1, 2) .. string.char(flags + 1) .. string.sub(data, 4)
local ttlMs = redis.call('PTTL', KEYS[1])
if ttlMs > 0 then
  redis.call('SET', KEYS[1], newData, 'PX', ttlMs)
end
return data
`)

// OTPStore keeps at most one live OTP record per (purpose, phone). Issuing a
// fresh code overwrites the predecessor, which is how a superseded flow dies.
type OTPStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewOTPStore creates an [OTPStore] with the given key prefix.
func NewOTPStore(redisClient redis.UniversalClient, prefix string) *OTPStore {
	if prefix == "" {
		prefix = "eo"
	}
	return &OTPStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *OTPStore) key(purpose uint8, phone string) string {
	return s.prefix + ":" + strconv.Itoa(int(purpose)) + ":" + phone
}

// Save persists the record under (purpose, phone), replacing any previous
// record for that pair. ttl must cover the logical expiry plus retention
// slack.
func (s *OTPStore) Save(ctx context.Context, phone string, record *OTPRecord, ttl time.Duration) error {
	encoded, err := encodeOTPRecord(record)
	if err != nil {
		return err
	}

	if err := s.redis.Set(ctx, s.key(record.Purpose, phone), encoded, ttl).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	return nil
}

// Consume runs one verification attempt against the live record for
// (purpose, phone). On a correct code it marks the record verified and
// returns it; the record is dead from then on. On a wrong code it returns
// [ErrOTPMismatch] and the remaining attempt budget. The attempt cap is
// checked before the code, so a correct code after exhaustion still fails
// with [ErrOTPAttemptsExceeded].
func (s *OTPStore) Consume(ctx context.Context, phone string, purpose uint8, providedHash [32]byte) (*OTPRecord, int, error) {
	key := s.key(purpose, phone)
	nowUnix := time.Now().Unix()

	result, err := consumeOTPLua.Run(ctx, s.redis,
		[]string{key},
		string(providedHash[:]),
		nowUnix,
	).Result()

	if err != nil {
		msg := err.Error()
		switch {
		case msg == "not_found":
			return nil, 0, ErrOTPNotFound
		case msg == "expired":
			return nil, 0, ErrOTPExpired
		case msg == "attempts_exceeded":
			return nil, 0, ErrOTPAttemptsExceeded
		case strings.HasPrefix(msg, "mismatch:"):
			remaining, convErr := strconv.Atoi(msg[len("mismatch:"):])
			if convErr != nil {
				remaining = 0
			}
			return nil, remaining, ErrOTPMismatch
		default:
			return nil, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	data, ok := result.(string)
	if !ok {
		return nil, 0, fmt.Errorf("%w: unexpected lua result type", ErrRedisUnavailable)
	}

	record, decErr := decodeOTPRecord([]byte(data))
	if decErr != nil {
		return nil, 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, decErr)
	}

	// Lua string comparison is not constant-time; re-check before trusting the match.
	if subtle.ConstantTimeCompare(record.CodeHash[:], providedHash[:]) != 1 {
		return nil, 0, ErrOTPMismatch
	}
	if record.Purpose != purpose {
		return nil, 0, ErrOTPNotFound
	}

	return record, int(record.MaxAttempts) - int(record.Attempts), nil
}

// Get reads the live record for (purpose, phone) without mutating it.
func (s *OTPStore) Get(ctx context.Context, phone string, purpose uint8) (*OTPRecord, error) {
	data, err := s.redis.Get(ctx, s.key(purpose, phone)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrOTPNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	record, decErr := decodeOTPRecord(data)
	if decErr != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, decErr)
	}
	return record, nil
}

// Delete removes the live record for (purpose, phone). Used to roll back an
// issuance whose SMS dispatch failed.
func (s *OTPStore) Delete(ctx context.Context, phone string, purpose uint8) error {
	if err := s.redis.Del(ctx, s.key(purpose, phone)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// InvalidateAll kills the live records for the phone across the given
// purposes (all purposes when none are named). Used when superseding a flow.
func (s *OTPStore) InvalidateAll(ctx context.Context, phone string, purposes ...uint8) error {
	if len(purposes) == 0 {
		purposes = AllPurposes[:]
	}

	keys := make([]string, 0, len(purposes))
	for _, p := range purposes {
		keys = append(keys, s.key(p, phone))
	}

	if err := s.redis.Del(ctx, keys...).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// SweepExpired deletes up to batch logically-expired records and returns the
// number removed. Safe to run concurrently with issuance and verification:
// Consume re-checks expiry on its own, so racing a deletion only changes
// which call observes the record first.
func (s *OTPStore) SweepExpired(ctx context.Context, batch int) (int, error) {
	if batch <= 0 {
		batch = 100
	}

	var (
		cursor  uint64
		scanned int
		expired []string
	)
	nowUnix := time.Now().Unix()

	for {
		keys, next, err := s.redis.Scan(ctx, cursor, s.prefix+":*", int64(batch)).Result()
		if err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}

		for _, key := range keys {
			if scanned >= batch {
				break
			}
			scanned++

			data, err := s.redis.Get(ctx, key).Bytes()
			if err != nil {
				if errors.Is(err, redis.Nil) {
					continue
				}
				return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
			}

			record, decErr := decodeOTPRecord(data)
			if decErr != nil {
				// Unreadable records are garbage; collect them too.
				expired = append(expired, key)
				continue
			}
			if nowUnix > record.ExpiresAt {
				expired = append(expired, key)
			}
		}

		cursor = next
		if cursor == 0 || scanned >= batch {
			break
		}
	}

	if len(expired) == 0 {
		return 0, nil
	}

	deleted, err := s.redis.Del(ctx, expired...).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return int(deleted), nil
}
