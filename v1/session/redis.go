package session

import (
	"context"
	"strconv"
	"time"

	uuid "github.com/hashicorp/go-uuid"
	redis "github.com/redis/go-redis/v9"
)

// Key layout under the prefix: "sess:<id>" is a hash {behavior, ttl} whose
// expiry is the session expiry, "sess:<id>:held" is the set of paths the
// session holds, "own:<path>" is the holder session ID and "val:<path>" the
// payload. Holder keys carry the session's remaining TTL so locks auto-release
// on expiry; value keys get a TTL only for delete-behavior sessions, so
// release-behavior values survive expiry.

var createScript = redis.NewScript(`
redis.call("HSET", KEYS[1], "behavior", ARGV[1], "ttl", ARGV[2])
if tonumber(ARGV[2]) > 0 then
    redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 1
`)

var renewScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return 0
end
local ttl = tonumber(redis.call("HGET", KEYS[1], "ttl"))
if not ttl or ttl <= 0 then
    return 1
end
redis.call("PEXPIRE", KEYS[1], ttl)
redis.call("PEXPIRE", KEYS[2], ttl)
local behavior = redis.call("HGET", KEYS[1], "behavior")
for _, p in ipairs(redis.call("SMEMBERS", KEYS[2])) do
    redis.call("PEXPIRE", ARGV[1] .. p, ttl)
    if behavior == "delete" then
        redis.call("PEXPIRE", ARGV[2] .. p, ttl)
    end
end
return 1
`)

var acquireScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return 0
end
local owner = redis.call("GET", KEYS[3])
if owner and owner ~= ARGV[1] then
    return 0
end
redis.call("SET", KEYS[3], ARGV[1])
redis.call("SET", KEYS[4], ARGV[2])
redis.call("SADD", KEYS[2], ARGV[3])
local ttl = redis.call("PTTL", KEYS[1])
if ttl > 0 then
    redis.call("PEXPIRE", KEYS[2], ttl)
    redis.call("PEXPIRE", KEYS[3], ttl)
    if redis.call("HGET", KEYS[1], "behavior") == "delete" then
        redis.call("PEXPIRE", KEYS[4], ttl)
    end
end
return 1
`)

var releaseScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if not owner or owner ~= ARGV[1] then
    return 0
end
redis.call("DEL", KEYS[1])
redis.call("SREM", KEYS[3], ARGV[3])
if ARGV[4] == "1" then
    redis.call("SET", KEYS[2], ARGV[2])
end
redis.call("PERSIST", KEYS[2])
return 1
`)

var deleteScript = redis.NewScript(`
local owner = redis.call("GET", KEYS[1])
if owner then
    redis.call("SREM", ARGV[1] .. owner .. ":held", ARGV[2])
end
return redis.call("DEL", KEYS[1], KEYS[2])
`)

var destroyScript = redis.NewScript(`
if redis.call("EXISTS", KEYS[1]) == 0 then
    return 0
end
local behavior = redis.call("HGET", KEYS[1], "behavior")
for _, p in ipairs(redis.call("SMEMBERS", KEYS[2])) do
    if behavior == "delete" then
        redis.call("DEL", ARGV[1] .. p, ARGV[2] .. p)
    else
        redis.call("DEL", ARGV[1] .. p)
        redis.call("PERSIST", ARGV[2] .. p)
    end
end
redis.call("DEL", KEYS[1], KEYS[2])
return 1
`)

// Redis implements Store using a Redis backend. All conditional operations run
// as Lua scripts so the compare-and-set semantics hold under contention.
type Redis struct {
	client *redis.Client
	prefix string
}

// NewRedis returns a Redis-backed session store using the provided client.
func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client, prefix: "sessionlock:"}
}

func (r *Redis) sessKey(id string) string  { return r.prefix + "sess:" + id }
func (r *Redis) heldKey(id string) string  { return r.prefix + "sess:" + id + ":held" }
func (r *Redis) ownKey(path string) string { return r.prefix + "own:" + path }
func (r *Redis) valKey(path string) string { return r.prefix + "val:" + path }
func (r *Redis) ownPrefix() string         { return r.prefix + "own:" }
func (r *Redis) valPrefix() string         { return r.prefix + "val:" }
func (r *Redis) sessPrefix() string        { return r.prefix + "sess:" }

// CreateSession implements Store.CreateSession.
func (r *Redis) CreateSession(ctx context.Context, behavior Behavior, ttl time.Duration) (string, error) {
	id, err := uuid.GenerateUUID()
	if err != nil {
		return "", err
	}
	if behavior == "" {
		behavior = BehaviorRelease
	}
	ms := strconv.FormatInt(ttl.Milliseconds(), 10)
	if err := createScript.Run(ctx, r.client, []string{r.sessKey(id)}, string(behavior), ms).Err(); err != nil {
		return "", err
	}
	return id, nil
}

// RenewSession implements Store.RenewSession.
func (r *Redis) RenewSession(ctx context.Context, id string) (bool, error) {
	n, err := renewScript.Run(ctx, r.client,
		[]string{r.sessKey(id), r.heldKey(id)},
		r.ownPrefix(), r.valPrefix()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DestroySession implements Store.DestroySession.
func (r *Redis) DestroySession(ctx context.Context, id string) (bool, error) {
	n, err := destroyScript.Run(ctx, r.client,
		[]string{r.sessKey(id), r.heldKey(id)},
		r.ownPrefix(), r.valPrefix()).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// AcquireKey implements Store.AcquireKey.
func (r *Redis) AcquireKey(ctx context.Context, path string, value []byte, sessionID string) (bool, error) {
	n, err := acquireScript.Run(ctx, r.client,
		[]string{r.sessKey(sessionID), r.heldKey(sessionID), r.ownKey(path), r.valKey(path)},
		sessionID, string(value), path).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// ReleaseKey implements Store.ReleaseKey.
func (r *Redis) ReleaseKey(ctx context.Context, path string, value []byte, sessionID string) (bool, error) {
	hasValue := "0"
	if value != nil {
		hasValue = "1"
	}
	n, err := releaseScript.Run(ctx, r.client,
		[]string{r.ownKey(path), r.valKey(path), r.heldKey(sessionID)},
		sessionID, string(value), path, hasValue).Int()
	if err != nil {
		return false, err
	}
	return n == 1, nil
}

// DeleteKey implements Store.DeleteKey.
func (r *Redis) DeleteKey(ctx context.Context, path string) (bool, error) {
	n, err := deleteScript.Run(ctx, r.client,
		[]string{r.ownKey(path), r.valKey(path)},
		r.sessPrefix(), path).Int()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}
