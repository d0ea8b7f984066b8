package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"catalog-service/internal/auth/domain/model"
	apperrors "catalog-service/internal/shared/errors"
	"catalog-service/internal/shared/logger"

	goredis "github.com/redis/go-redis/v9"
)

const (
	sessionKeyPrefix = "session:"
	userIndexPrefix  = "user_sessions:"
	payloadPrefix    = "p:"
	fieldUserID      = "user_id"
	fieldCreatedAt   = "created_at"
	fieldExpiresAt   = "expires_at"
	fieldVersion     = "version"
)

// incrementScript bumps a payload counter and the version only while the
// session is live.
var incrementScript = goredis.NewScript(`
local exp = redis.call('HGET', KEYS[1], 'expires_at')
if not exp then
  return false
end
if tonumber(exp) <= tonumber(ARGV[3]) then
  return false
end
redis.call('HINCRBY', KEYS[1], 'version', 1)
return redis.call('HINCRBY', KEYS[1], ARGV[1], ARGV[2])
`)

// extendIndexSource pushes a user's token set expiry out to ARGV[1] (unix ms)
// unless it already lives longer, so the set never outlives its last session.
const extendIndexSource = `
local want = tonumber(ARGV[1]) - tonumber(ARGV[2])
if want <= 0 then
  return 0
end
if redis.call('PTTL', KEYS[1]) < want then
  redis.call('PEXPIRE', KEYS[1], want)
  return 1
end
return 0
`

// RedisSessionRepository stores each session as a hash whose key expires at
// expires_at. A per-user set indexes tokens for cascade deletes.
type RedisSessionRepository struct {
	client goredis.UniversalClient
	logger logger.Logger
}

// NewRedisSessionRepository creates a repository on client.
func NewRedisSessionRepository(client goredis.UniversalClient, log logger.Logger) *RedisSessionRepository {
	if log == nil {
		log = logger.NewNopLogger()
	}
	return &RedisSessionRepository{client: client, logger: log.WithComponent("redis_sessions")}
}

func sessionKey(token string) string    { return sessionKeyPrefix + token }
func userIndexKey(userID string) string { return userIndexPrefix + userID }

func (r *RedisSessionRepository) Insert(ctx context.Context, session *model.Session) error {
	key := sessionKey(session.Token)
	fields := map[string]interface{}{
		fieldUserID:    session.UserID,
		fieldCreatedAt: session.CreatedAt.UnixMilli(),
		fieldExpiresAt: session.ExpiresAt.UnixMilli(),
		fieldVersion:   session.Version,
	}
	for k, v := range session.Payload {
		raw, err := json.Marshal(v)
		if err != nil {
			return apperrors.NewValidationError(fmt.Sprintf("payload key %q is not encodable", k))
		}
		fields[payloadPrefix+k] = string(raw)
	}

	now := session.CreatedAt
	if now.IsZero() {
		now = time.Now()
	}

	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		exists, err := tx.Exists(ctx, key).Result()
		if err != nil {
			return err
		}
		if exists > 0 {
			return errDuplicateToken
		}
		_, err = tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, fields)
			pipe.PExpireAt(ctx, key, session.ExpiresAt)
			pipe.SAdd(ctx, userIndexKey(session.UserID), session.Token)
			extendIndex(ctx, pipe, session.UserID, now, session.ExpiresAt)
			return nil
		})
		return err
	}, key)

	switch {
	case err == nil:
		if session.Payload == nil {
			session.Payload = map[string]interface{}{}
		}
		return nil
	case errors.Is(err, errDuplicateToken), errors.Is(err, goredis.TxFailedErr):
		return apperrors.NewDuplicateKeyError("sessions: duplicate token").WithComponent("redis_sessions")
	default:
		return r.wrap("insert session", err)
	}
}

var errDuplicateToken = errors.New("session token exists")

func (r *RedisSessionRepository) FindByToken(ctx context.Context, token string) (*model.Session, error) {
	values, err := r.client.HGetAll(ctx, sessionKey(token)).Result()
	if err != nil {
		return nil, r.wrap("find session", err)
	}
	if len(values) == 0 {
		return nil, nil
	}
	return decodeSession(token, values)
}

func (r *RedisSessionRepository) Delete(ctx context.Context, token string) error {
	key := sessionKey(token)
	userID, err := r.client.HGet(ctx, key, fieldUserID).Result()
	if err != nil && !errors.Is(err, goredis.Nil) {
		return r.wrap("delete session", err)
	}
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		pipe.Del(ctx, key)
		if userID != "" {
			pipe.SRem(ctx, userIndexKey(userID), token)
		}
		return nil
	})
	if err != nil {
		return r.wrap("delete session", err)
	}
	return nil
}

func (r *RedisSessionRepository) DeleteByUser(ctx context.Context, userID string) (int64, error) {
	indexKey := userIndexKey(userID)
	tokens, err := r.client.SMembers(ctx, indexKey).Result()
	if err != nil {
		return 0, r.wrap("list user sessions", err)
	}

	keys := make([]string, 0, len(tokens))
	for _, t := range tokens {
		keys = append(keys, sessionKey(t))
	}

	var deleted *goredis.IntCmd
	_, err = r.client.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
		if len(keys) > 0 {
			deleted = pipe.Del(ctx, keys...)
		}
		pipe.Del(ctx, indexKey)
		return nil
	})
	if err != nil {
		return 0, r.wrap("delete user sessions", err)
	}
	if deleted == nil {
		return 0, nil
	}
	return deleted.Val(), nil
}

func (r *RedisSessionRepository) ExtendExpiry(ctx context.Context, token string, now, expiresAt time.Time) (bool, error) {
	key := sessionKey(token)
	return r.watchLive(ctx, key, now, func(tx *goredis.Tx, current map[string]string) error {
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			pipe.HSet(ctx, key, fieldExpiresAt, expiresAt.UnixMilli())
			pipe.PExpireAt(ctx, key, expiresAt)
			if userID := current[fieldUserID]; userID != "" {
				extendIndex(ctx, pipe, userID, now, expiresAt)
			}
			return nil
		})
		return err
	})
}

func (r *RedisSessionRepository) CompareAndSwap(ctx context.Context, token string, version int64, payload map[string]interface{}, now time.Time) (bool, error) {
	key := sessionKey(token)
	encoded := make(map[string]interface{}, len(payload))
	for k, v := range payload {
		raw, err := json.Marshal(v)
		if err != nil {
			return false, apperrors.NewValidationError(fmt.Sprintf("payload key %q is not encodable", k))
		}
		encoded[payloadPrefix+k] = string(raw)
	}

	return r.watchLive(ctx, key, now, func(tx *goredis.Tx, current map[string]string) error {
		stored, _ := strconv.ParseInt(current[fieldVersion], 10, 64)
		if stored != version {
			return errNotApplied
		}
		var stale []string
		for field := range current {
			if strings.HasPrefix(field, payloadPrefix) {
				if _, keep := encoded[field]; !keep {
					stale = append(stale, field)
				}
			}
		}
		_, err := tx.TxPipelined(ctx, func(pipe goredis.Pipeliner) error {
			if len(stale) > 0 {
				pipe.HDel(ctx, key, stale...)
			}
			if len(encoded) > 0 {
				pipe.HSet(ctx, key, encoded)
			}
			pipe.HIncrBy(ctx, key, fieldVersion, 1)
			return nil
		})
		return err
	})
}

func (r *RedisSessionRepository) Increment(ctx context.Context, token, key string, delta int64, now time.Time) (int64, bool, error) {
	if key == "" || strings.ContainsAny(key, ".$") {
		return 0, false, apperrors.NewValidationError(fmt.Sprintf("invalid payload key %q", key))
	}
	n, err := incrementScript.Run(ctx, r.client,
		[]string{sessionKey(token)},
		payloadPrefix+key, delta, now.UnixMilli(),
	).Int64()
	if errors.Is(err, goredis.Nil) {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, r.wrap("increment session counter", err)
	}
	return n, true, nil
}

func extendIndex(ctx context.Context, pipe goredis.Pipeliner, userID string, now, expiresAt time.Time) {
	pipe.Eval(ctx, extendIndexSource, []string{userIndexKey(userID)}, expiresAt.UnixMilli(), now.UnixMilli())
}

var errNotApplied = errors.New("conditional write not applied")

// watchLive runs apply under WATCH when key holds a session live at now.
// It reports false when the session is gone, expired, apply declined, or the
// key changed under the transaction.
func (r *RedisSessionRepository) watchLive(ctx context.Context, key string, now time.Time, apply func(*goredis.Tx, map[string]string) error) (bool, error) {
	err := r.client.Watch(ctx, func(tx *goredis.Tx) error {
		current, err := tx.HGetAll(ctx, key).Result()
		if err != nil {
			return err
		}
		exp, parseErr := strconv.ParseInt(current[fieldExpiresAt], 10, 64)
		if len(current) == 0 || parseErr != nil || exp <= now.UnixMilli() {
			return errNotApplied
		}
		return apply(tx, current)
	}, key)

	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, errNotApplied), errors.Is(err, goredis.TxFailedErr):
		return false, nil
	default:
		return false, r.wrap("conditional session write", err)
	}
}

func (r *RedisSessionRepository) wrap(op string, err error) error {
	r.logger.Errorf("%s: %v", op, err)
	return apperrors.NewBackendUnavailableError(op, err).WithComponent("redis_sessions")
}

func decodeSession(token string, values map[string]string) (*model.Session, error) {
	created, _ := strconv.ParseInt(values[fieldCreatedAt], 10, 64)
	expires, err := strconv.ParseInt(values[fieldExpiresAt], 10, 64)
	if err != nil {
		return nil, apperrors.NewInternalError("stored session is corrupt").WithCause(err)
	}
	version, _ := strconv.ParseInt(values[fieldVersion], 10, 64)

	payload := make(map[string]interface{})
	for field, raw := range values {
		if !strings.HasPrefix(field, payloadPrefix) {
			continue
		}
		var v interface{}
		dec := json.NewDecoder(strings.NewReader(raw))
		dec.UseNumber()
		if err := dec.Decode(&v); err != nil {
			v = raw
		}
		if num, ok := v.(json.Number); ok {
			if i, err := num.Int64(); err == nil {
				v = i
			}
		}
		payload[strings.TrimPrefix(field, payloadPrefix)] = v
	}

	return &model.Session{
		Token:     token,
		UserID:    values[fieldUserID],
		CreatedAt: time.UnixMilli(created).UTC(),
		ExpiresAt: time.UnixMilli(expires).UTC(),
		Payload:   payload,
		Version:   version,
	}, nil
}
