package stores

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
)

// Pending connection statuses. A record starts as pending and makes exactly
// one transition: to verified when the family code checks out, to cancelled
// when superseded or rolled back, or to expired when read past its deadline.
const (
	StatusPending   = "pending"
	StatusVerified  = "verified"
	StatusExpired   = "expired"
	StatusCancelled = "cancelled"
)

// PendingRecord bridges an elder phone that has no account yet and the family
// phone that vouches for it. ElderUID and FamilyUID stay empty until the
// accounts actually exist.
type PendingRecord struct {
	ID             string
	ElderPhone     string
	ElderName      string
	ElderAge       int
	FamilyPhone    string
	FamilyRelation string
	Status         string
	CreatedAt      int64
	ExpiresAt      int64
	OTPID          string
	ElderUID       string
	FamilyUID      string
}

// transitionPendingLua compare-and-sets the status field of a pending
// connection record.
// KEYS[1] = record key
// ARGV[1] = expected current status
// ARGV[2] = new status
// ARGV[3..] = extra field/value pairs set alongside the transition
//
// Returns "not_found" when the record is gone and "conflict:<status>" when
// the status moved under us; either way nothing is written.
var transitionPendingLua = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if not status then
  return {err='not_found'}
end
if status ~= ARGV[1] then
  return {err='conflict:' .. status}
end
redis.call('HSET', KEYS[1], 'status', ARGV[2])
for i = 3, #ARGV, 2 do
  redis.call('HSET', KEYS[1], ARGV[i], ARGV[i + 1])
end
return redis.status_reply('OK')
`)

// PendingStore keeps pending-connection records plus two lookup indexes: the
// elder phone maps to its single live pending id, and the family phone maps
// to the set of pending ids addressed to it. Records outlive their logical
// expiry by the retention slack baked into the caller's TTL, so a late read
// observes an expired record instead of nothing.
type PendingStore struct {
	redis  redis.UniversalClient
	prefix string
}

// NewPendingStore creates a [PendingStore] with the given key prefix.
func NewPendingStore(redisClient redis.UniversalClient, prefix string) *PendingStore {
	if prefix == "" {
		prefix = "ep"
	}
	return &PendingStore{
		redis:  redisClient,
		prefix: prefix,
	}
}

func (s *PendingStore) recordKey(id string) string {
	return s.prefix + ":rec:" + id
}

func (s *PendingStore) elderKey(phone string) string {
	return s.prefix + ":elder:" + phone
}

func (s *PendingStore) familyKey(phone string) string {
	return s.prefix + ":family:" + phone
}

// Create writes the record with status pending and points both indexes at it.
// Any prior pending record for the same elder phone is cancelled first, so at
// most one pending record exists per elder phone; cancellation precedes
// creation, which keeps the invariant even if the second write fails.
func (s *PendingStore) Create(ctx context.Context, record *PendingRecord, retention time.Duration) error {
	record.Status = StatusPending

	prevID, err := s.redis.Get(ctx, s.elderKey(record.ElderPhone)).Result()
	if err != nil && !errors.Is(err, redis.Nil) {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if prevID != "" && prevID != record.ID {
		err := s.Transition(ctx, prevID, StatusPending, StatusCancelled, nil)
		if err != nil && !errors.Is(err, ErrPendingNotFound) && !errors.Is(err, ErrPendingConflict) {
			return err
		}
	}

	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.HSet(ctx, s.recordKey(record.ID), pendingFields(record)...)
		pipe.PExpire(ctx, s.recordKey(record.ID), retention)
		pipe.Set(ctx, s.elderKey(record.ElderPhone), record.ID, retention)
		pipe.SAdd(ctx, s.familyKey(record.FamilyPhone), record.ID)
		pipe.PExpire(ctx, s.familyKey(record.FamilyPhone), retention)
		return nil
	})
	if err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// Get reads a record by id. A pending record read past its logical expiry is
// transitioned to expired on the way out; callers always observe the settled
// status.
func (s *PendingStore) Get(ctx context.Context, id string) (*PendingRecord, error) {
	vals, err := s.redis.HGetAll(ctx, s.recordKey(id)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if len(vals) == 0 {
		return nil, ErrPendingNotFound
	}

	record, err := pendingFromFields(vals)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if record.Status == StatusPending && time.Now().Unix() > record.ExpiresAt {
		err := s.Transition(ctx, id, StatusPending, StatusExpired, nil)
		if err != nil && !errors.Is(err, ErrPendingNotFound) && !errors.Is(err, ErrPendingConflict) {
			return nil, err
		}
		record.Status = StatusExpired
	}

	return record, nil
}

// Transition moves the record from one status to another, optionally setting
// extra fields in the same atomic step. Returns [ErrPendingConflict] when the
// record is not in the expected status.
func (s *PendingStore) Transition(ctx context.Context, id, from, to string, extra map[string]string) error {
	args := make([]interface{}, 0, 2+len(extra)*2)
	args = append(args, from, to)
	for field, value := range extra {
		args = append(args, field, value)
	}

	err := transitionPendingLua.Run(ctx, s.redis, []string{s.recordKey(id)}, args...).Err()
	if err == nil {
		return nil
	}

	msg := err.Error()
	switch {
	case msg == "not_found":
		return ErrPendingNotFound
	case strings.HasPrefix(msg, "conflict:"):
		return fmt.Errorf("%w: record is %s", ErrPendingConflict, msg[len("conflict:"):])
	default:
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
}

// MarkVerified settles a pending record after its family code checked out,
// storing the OTP record id that proved it.
func (s *PendingStore) MarkVerified(ctx context.Context, id, otpID string) error {
	return s.Transition(ctx, id, StatusPending, StatusVerified, map[string]string{"otpId": otpID})
}

// Cancel retires a pending record, either because a newer request superseded
// it or because its family OTP never went out.
func (s *PendingStore) Cancel(ctx context.Context, id string) error {
	return s.Transition(ctx, id, StatusPending, StatusCancelled, nil)
}

// AttachUsers stamps the created account ids onto a verified record. The
// verified-to-verified transition doubles as a guard: ids can only be
// attached once the family code has settled the record.
func (s *PendingStore) AttachUsers(ctx context.Context, id, elderUID, familyUID string) error {
	extra := make(map[string]string, 2)
	if elderUID != "" {
		extra["elderUid"] = elderUID
	}
	if familyUID != "" {
		extra["familyUid"] = familyUID
	}
	if len(extra) == 0 {
		return nil
	}
	return s.Transition(ctx, id, StatusVerified, StatusVerified, extra)
}

// ListPendingForFamilyPhone returns the live pending records addressed to a
// family phone, newest first. Index entries whose records are gone are pruned
// on the way through.
func (s *PendingStore) ListPendingForFamilyPhone(ctx context.Context, familyPhone string) ([]*PendingRecord, error) {
	ids, err := s.redis.SMembers(ctx, s.familyKey(familyPhone)).Result()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	records := make([]*PendingRecord, 0, len(ids))
	for _, id := range ids {
		record, err := s.Get(ctx, id)
		if err != nil {
			if errors.Is(err, ErrPendingNotFound) {
				s.redis.SRem(ctx, s.familyKey(familyPhone), id)
				continue
			}
			return nil, err
		}
		if record.Status == StatusPending {
			records = append(records, record)
		}
	}

	sort.Slice(records, func(i, j int) bool {
		return records[i].CreatedAt > records[j].CreatedAt
	})
	return records, nil
}

func pendingFields(record *PendingRecord) []interface{} {
	return []interface{}{
		"id", record.ID,
		"elderPhone", record.ElderPhone,
		"elderName", record.ElderName,
		"elderAge", strconv.Itoa(record.ElderAge),
		"familyPhone", record.FamilyPhone,
		"familyRelation", record.FamilyRelation,
		"status", record.Status,
		"createdAt", strconv.FormatInt(record.CreatedAt, 10),
		"expiresAt", strconv.FormatInt(record.ExpiresAt, 10),
		"otpId", record.OTPID,
		"elderUid", record.ElderUID,
		"familyUid", record.FamilyUID,
	}
}

func pendingFromFields(vals map[string]string) (*PendingRecord, error) {
	age, err := strconv.Atoi(vals["elderAge"])
	if err != nil {
		return nil, fmt.Errorf("bad elderAge field: %v", err)
	}
	createdAt, err := strconv.ParseInt(vals["createdAt"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad createdAt field: %v", err)
	}
	expiresAt, err := strconv.ParseInt(vals["expiresAt"], 10, 64)
	if err != nil {
		return nil, fmt.Errorf("bad expiresAt field: %v", err)
	}

	return &PendingRecord{
		ID:             vals["id"],
		ElderPhone:     vals["elderPhone"],
		ElderName:      vals["elderName"],
		ElderAge:       age,
		FamilyPhone:    vals["familyPhone"],
		FamilyRelation: vals["familyRelation"],
		Status:         vals["status"],
		CreatedAt:      createdAt,
		ExpiresAt:      expiresAt,
		OTPID:          vals["otpId"],
		ElderUID:       vals["elderUid"],
		FamilyUID:      vals["familyUid"],
	}, nil
}
