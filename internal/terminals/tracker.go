// Package terminals keeps per-terminal sync watermarks in Redis.
package terminals

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

const keyPrefix = "possync"

// observeScript raises max_seq monotonically and returns the previous
// maximum, or -1 for a terminal seen for the first time.
var observeScript = redis.NewScript(`
local prev = redis.call('HGET', KEYS[1], 'max_seq')
local seq = tonumber(ARGV[1])
if (not prev) or seq > tonumber(prev) then
  redis.call('HSET', KEYS[1], 'max_seq', ARGV[1])
end
redis.call('HSET', KEYS[1], 'last_seen', ARGV[2])
redis.call('HINCRBY', KEYS[1], 'records', 1)
redis.call('PEXPIRE', KEYS[1], ARGV[3])
redis.call('SADD', KEYS[2], ARGV[4])
redis.call('PEXPIRE', KEYS[2], ARGV[3])
if not prev then
  return -1
end
return tonumber(prev)
`)

// Watermark is the tracked state of one terminal.
type Watermark struct {
	TerminalID string    `json:"terminalId"`
	MaxSeq     int64     `json:"maxLocalOpSeq"`
	LastSeen   time.Time `json:"lastSeen"`
	Records    int64     `json:"records"`
}

// Tracker records the highest localOpSeq and last activity per terminal.
type Tracker struct {
	client *redis.Client
	ttl    time.Duration
}

// NewTracker constructs a Tracker. Keys expire ttl after the last update.
func NewTracker(client *redis.Client, ttl time.Duration) *Tracker {
	if ttl <= 0 {
		ttl = 90 * 24 * time.Hour
	}
	return &Tracker{client: client, ttl: ttl}
}

func terminalKey(tenantID, branchID, terminalID string) string {
	return strings.Join([]string{keyPrefix, "terminal", tenantID, branchID, terminalID}, ":")
}

func indexKey(tenantID, branchID string) string {
	return strings.Join([]string{keyPrefix, "terminals", tenantID, branchID}, ":")
}

// Observe records a persisted operation and returns the previous max_seq.
func (t *Tracker) Observe(ctx context.Context, tenantID, branchID, terminalID string, seq int64, seenAt time.Time) (int64, error) {
	if t == nil || t.client == nil {
		return -1, errors.New("terminals: tracker not initialised")
	}
	prev, err := observeScript.Run(ctx, t.client,
		[]string{terminalKey(tenantID, branchID, terminalID), indexKey(tenantID, branchID)},
		seq, seenAt.UnixMilli(), t.ttl.Milliseconds(), terminalID,
	).Int64()
	if err != nil {
		return -1, fmt.Errorf("terminals: observe: %w", err)
	}
	return prev, nil
}

// List returns the watermarks of every terminal of a scope, sorted by id.
func (t *Tracker) List(ctx context.Context, tenantID, branchID string) ([]Watermark, error) {
	if t == nil || t.client == nil {
		return nil, errors.New("terminals: tracker not initialised")
	}
	ids, err := t.client.SMembers(ctx, indexKey(tenantID, branchID)).Result()
	if err != nil {
		return nil, fmt.Errorf("terminals: list index: %w", err)
	}
	sort.Strings(ids)

	pipe := t.client.Pipeline()
	cmds := make([]*redis.MapStringStringCmd, len(ids))
	for i, id := range ids {
		cmds[i] = pipe.HGetAll(ctx, terminalKey(tenantID, branchID, id))
	}
	if len(ids) > 0 {
		if _, err := pipe.Exec(ctx); err != nil {
			return nil, fmt.Errorf("terminals: load watermarks: %w", err)
		}
	}

	marks := make([]Watermark, 0, len(ids))
	for i, id := range ids {
		fields := cmds[i].Val()
		if len(fields) == 0 {
			// expired
			continue
		}
		mark := Watermark{TerminalID: id}
		mark.MaxSeq, _ = strconv.ParseInt(fields["max_seq"], 10, 64)
		mark.Records, _ = strconv.ParseInt(fields["records"], 10, 64)
		if ms, err := strconv.ParseInt(fields["last_seen"], 10, 64); err == nil {
			mark.LastSeen = time.UnixMilli(ms).UTC()
		}
		marks = append(marks, mark)
	}
	return marks, nil
}
