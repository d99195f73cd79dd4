// Package queueredis implements queue.Store on Redis. Jobs are JSON
// strings keyed by id; each unit has a waiting list, an active list, a
// delayed sorted set (scored by due time) and terminal sorted sets
// (scored by creation sequence). Claims move ids between the waiting
// and active lists with BLMOVE so a crash never loses a job, and
// promotions run as Lua scripts so due delayed jobs re-enter the
// waiting list atomically and in age order.
package queueredis

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/mchuluq/whatsapp-microservice/pkg/errx"
	"github.com/mchuluq/whatsapp-microservice/pkg/kernel"
	"github.com/mchuluq/whatsapp-microservice/pkg/queue"
)

// Store implements queue.Store backed by Redis.
type Store struct {
	rdb *redis.Client
}

var _ queue.Store = (*Store)(nil)

// New creates a Redis-backed job store.
func New(rdb *redis.Client) *Store {
	return &Store{rdb: rdb}
}

// Key helpers
const (
	unitsKey     = "dispatch:units"
	jobKeyPrefix = "dispatch:job:"
)

func jobKey(id kernel.JobID) string { return jobKeyPrefix + id.String() }

func waitKey(u kernel.UnitID) string      { return fmt.Sprintf("dispatch:wait:%s", u) }
func activeKey(u kernel.UnitID) string    { return fmt.Sprintf("dispatch:active:%s", u) }
func delayKey(u kernel.UnitID) string     { return fmt.Sprintf("dispatch:delay:%s", u) }
func completedKey(u kernel.UnitID) string { return fmt.Sprintf("dispatch:completed:%s", u) }
func failedKey(u kernel.UnitID) string    { return fmt.Sprintf("dispatch:failed:%s", u) }
func jobsKey(u kernel.UnitID) string      { return fmt.Sprintf("dispatch:jobs:%s", u) }
func seqKey(u kernel.UnitID) string       { return fmt.Sprintf("dispatch:seq:%s", u) }

// record is the stored form of a job. Seq is the unit-local creation
// sequence; it orders the waiting list, newest-first listings and
// retention trims.
type record struct {
	queue.Job
	Seq int64 `json:"seq"`
}

func (s *Store) loadRecord(ctx context.Context, jobID kernel.JobID) (*record, error) {
	data, err := s.rdb.Get(ctx, jobKey(jobID)).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, redisErrors.NewWithCause(ErrGet, err).WithDetail("job", jobID)
	}

	var rec record
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, redisErrors.NewWithCause(ErrUnmarshal, err).WithDetail("job", jobID)
	}
	return &rec, nil
}

func (s *Store) saveRecord(ctx context.Context, rec *record, code *errx.ErrorCode) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job", rec.ID)
	}
	if err := s.rdb.Set(ctx, jobKey(rec.ID), data, 0).Err(); err != nil {
		return redisErrors.NewWithCause(code, err).WithDetail("job", rec.ID)
	}
	return nil
}

// Create persists a new waiting job at the back of the unit's queue.
func (s *Store) Create(ctx context.Context, job *queue.Job) error {
	seq, err := s.rdb.Incr(ctx, seqKey(job.UnitID)).Result()
	if err != nil {
		return redisErrors.NewWithCause(ErrCreate, err).WithDetail("unit", job.UnitID)
	}

	data, err := json.Marshal(record{Job: *job, Seq: seq})
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job", job.ID)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.ZAdd(ctx, jobsKey(job.UnitID), redis.Z{Score: float64(seq), Member: job.ID.String()})
	pipe.LPush(ctx, waitKey(job.UnitID), job.ID.String())
	if _, err := pipe.Exec(ctx); err != nil {
		return redisErrors.NewWithCause(ErrCreate, err).WithDetail("unit", job.UnitID)
	}
	return nil
}

// Get retrieves a job by id, scoped to the unit.
func (s *Store) Get(ctx context.Context, unitID kernel.UnitID, jobID kernel.JobID) (*queue.Job, error) {
	rec, err := s.loadRecord(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec == nil || rec.UnitID != unitID {
		return nil, queue.ErrRegistry.New(queue.ErrJobNotFound).
			WithDetail("unit", unitID).
			WithDetail("job", jobID)
	}

	job := rec.Job
	return &job, nil
}

// List returns a page of the unit's jobs, newest first.
func (s *Store) List(ctx context.Context, unitID kernel.UnitID, status queue.Status, page kernel.PaginationOptions) ([]*queue.Job, int, error) {
	ids, err := s.rdb.ZRevRange(ctx, jobsKey(unitID), 0, -1).Result()
	if err != nil {
		return nil, 0, redisErrors.NewWithCause(ErrList, err).WithDetail("unit", unitID)
	}
	if len(ids) == 0 {
		return []*queue.Job{}, 0, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = jobKeyPrefix + id
	}
	values, err := s.rdb.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, 0, redisErrors.NewWithCause(ErrList, err).WithDetail("unit", unitID)
	}

	matched := make([]*queue.Job, 0, len(values))
	for _, v := range values {
		raw, ok := v.(string)
		if !ok {
			// Trimmed between the index read and the bulk get.
			continue
		}
		var rec record
		if err := json.Unmarshal([]byte(raw), &rec); err != nil {
			return nil, 0, redisErrors.NewWithCause(ErrUnmarshal, err).WithDetail("unit", unitID)
		}
		if status != "" && rec.Status != status {
			continue
		}
		job := rec.Job
		matched = append(matched, &job)
	}

	total := len(matched)
	offset := page.Offset()
	if offset < 0 || offset >= total {
		return []*queue.Job{}, total, nil
	}
	end := offset + page.PageSize
	if end > total {
		end = total
	}
	return matched[offset:end], total, nil
}

// Counts reads the per-status totals from the queue structures.
func (s *Store) Counts(ctx context.Context, unitID kernel.UnitID) (queue.Counts, error) {
	pipe := s.rdb.TxPipeline()
	waiting := pipe.LLen(ctx, waitKey(unitID))
	active := pipe.LLen(ctx, activeKey(unitID))
	delayed := pipe.ZCard(ctx, delayKey(unitID))
	completed := pipe.ZCard(ctx, completedKey(unitID))
	failed := pipe.ZCard(ctx, failedKey(unitID))
	if _, err := pipe.Exec(ctx); err != nil {
		return queue.Counts{}, redisErrors.NewWithCause(ErrCounts, err).WithDetail("unit", unitID)
	}

	return queue.Counts{
		Waiting:   int(waiting.Val()),
		Active:    int(active.Val()),
		Delayed:   int(delayed.Val()),
		Completed: int(completed.Val()),
		Failed:    int(failed.Val()),
	}, nil
}

// promoteScript moves due delayed jobs back into the waiting list on
// the claim side, oldest sequence last so it is claimed first, and
// reports the next due time of the jobs still delayed.
var promoteScript = redis.NewScript(`
local due = redis.call('ZRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
if #due > 0 then
    local ordered = {}
    for i, id in ipairs(due) do
        ordered[i] = {tonumber(redis.call('ZSCORE', KEYS[3], id)) or 0, id}
    end
    table.sort(ordered, function(a, b) return a[1] > b[1] end)
    for _, pair in ipairs(ordered) do
        redis.call('RPUSH', KEYS[2], pair[2])
    end
    redis.call('ZREMRANGEBYSCORE', KEYS[1], '-inf', ARGV[1])
end
local res = {}
local nxt = redis.call('ZRANGE', KEYS[1], 0, 0, 'WITHSCORES')
if #nxt == 0 then res[1] = '-1' else res[1] = nxt[2] end
for i, id in ipairs(due) do res[i + 1] = id end
return res
`)

// promote runs the due-job promotion and returns how long until the
// next delayed job is due, negative when none are delayed.
func (s *Store) promote(ctx context.Context, unitID kernel.UnitID) (time.Duration, error) {
	res, err := promoteScript.Run(ctx, s.rdb,
		[]string{delayKey(unitID), waitKey(unitID), jobsKey(unitID)},
		time.Now().UTC().UnixMilli(),
	).StringSlice()
	if err != nil && err != redis.Nil {
		return -1, redisErrors.NewWithCause(ErrClaim, err).WithDetail("unit", unitID)
	}
	if len(res) == 0 {
		return -1, nil
	}

	// Promoted ids keep status "delayed" in their records until
	// rewritten here; the queue structures already treat them as
	// waiting.
	for _, id := range res[1:] {
		rec, err := s.loadRecord(ctx, kernel.JobID(id))
		if err != nil {
			return -1, err
		}
		if rec == nil {
			continue
		}
		rec.MarkWaiting()
		if err := s.saveRecord(ctx, rec, ErrClaim); err != nil {
			return -1, err
		}
	}

	dueMs, err := strconv.ParseFloat(res[0], 64)
	if err != nil || dueMs < 0 {
		return -1, nil
	}
	next := time.Until(time.UnixMilli(int64(dueMs)))
	if next < 0 {
		next = 0
	}
	return next, nil
}

// Claim pops the unit's oldest claimable job, blocking up to block for
// one to appear. Returns (nil, nil) when the window elapses empty.
func (s *Store) Claim(ctx context.Context, unitID kernel.UnitID, block time.Duration) (*queue.Job, error) {
	deadline := time.Now().Add(block)

	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		nextDue, err := s.promote(ctx, unitID)
		if err != nil {
			return nil, err
		}

		// Take whatever is already claimable without blocking.
		id, err := s.rdb.LMove(ctx, waitKey(unitID), activeKey(unitID), "RIGHT", "LEFT").Result()
		if err == nil {
			return s.markClaimed(ctx, unitID, kernel.JobID(id))
		}
		if err != redis.Nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, redisErrors.NewWithCause(ErrClaim, err).WithDetail("unit", unitID)
		}

		wait := time.Until(deadline)
		if wait <= 0 {
			return nil, nil
		}
		// Wake early when a delayed job comes due inside the window.
		if nextDue >= 0 && nextDue < wait {
			wait = nextDue
		}
		if wait < time.Millisecond {
			wait = time.Millisecond
		}

		id, err = s.rdb.BLMove(ctx, waitKey(unitID), activeKey(unitID), "RIGHT", "LEFT", wait).Result()
		if err != nil {
			if err == redis.Nil {
				continue
			}
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			return nil, redisErrors.NewWithCause(ErrClaim, err).WithDetail("unit", unitID)
		}
		return s.markClaimed(ctx, unitID, kernel.JobID(id))
	}
}

// markClaimed stamps the claim on the popped job's record.
func (s *Store) markClaimed(ctx context.Context, unitID kernel.UnitID, jobID kernel.JobID) (*queue.Job, error) {
	rec, err := s.loadRecord(ctx, jobID)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		// Orphaned id with no record; drop it and report no job.
		if err := s.rdb.LRem(ctx, activeKey(unitID), 1, jobID.String()).Err(); err != nil {
			return nil, redisErrors.NewWithCause(ErrClaim, err).WithDetail("job", jobID)
		}
		return nil, nil
	}

	rec.MarkClaimed(time.Now().UTC())
	if err := s.saveRecord(ctx, rec, ErrClaim); err != nil {
		return nil, err
	}

	job := rec.Job
	return &job, nil
}

// Complete records a successful send and moves the job to the
// completed set.
func (s *Store) Complete(ctx context.Context, job *queue.Job, messageID string) error {
	rec, err := s.loadRecord(ctx, job.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		return queue.ErrRegistry.New(queue.ErrJobNotFound).WithDetail("job", job.ID)
	}

	job.MarkCompleted(messageID)
	rec.Job = *job

	data, err := json.Marshal(rec)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job", job.ID)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.LRem(ctx, activeKey(job.UnitID), 1, job.ID.String())
	pipe.ZAdd(ctx, completedKey(job.UnitID), redis.Z{Score: float64(rec.Seq), Member: job.ID.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return redisErrors.NewWithCause(ErrComplete, err).WithDetail("job", job.ID)
	}
	return nil
}

// Delay schedules the job's retry at runAt.
func (s *Store) Delay(ctx context.Context, job *queue.Job, runAt time.Time, detail string) error {
	rec, err := s.loadRecord(ctx, job.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		return queue.ErrRegistry.New(queue.ErrJobNotFound).WithDetail("job", job.ID)
	}

	job.MarkDelayed(runAt, detail)
	rec.Job = *job

	data, err := json.Marshal(rec)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job", job.ID)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.LRem(ctx, activeKey(job.UnitID), 1, job.ID.String())
	pipe.ZAdd(ctx, delayKey(job.UnitID), redis.Z{Score: float64(runAt.UnixMilli()), Member: job.ID.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return redisErrors.NewWithCause(ErrDelay, err).WithDetail("job", job.ID)
	}
	return nil
}

// Fail records a terminal failure and moves the job to the failed set.
func (s *Store) Fail(ctx context.Context, job *queue.Job, detail string) error {
	rec, err := s.loadRecord(ctx, job.ID)
	if err != nil {
		return err
	}
	if rec == nil {
		return queue.ErrRegistry.New(queue.ErrJobNotFound).WithDetail("job", job.ID)
	}

	job.MarkFailed(detail)
	rec.Job = *job

	data, err := json.Marshal(rec)
	if err != nil {
		return redisErrors.NewWithCause(ErrMarshal, err).WithDetail("job", job.ID)
	}

	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(job.ID), data, 0)
	pipe.LRem(ctx, activeKey(job.UnitID), 1, job.ID.String())
	pipe.ZAdd(ctx, failedKey(job.UnitID), redis.Z{Score: float64(rec.Seq), Member: job.ID.String()})
	if _, err := pipe.Exec(ctx); err != nil {
		return redisErrors.NewWithCause(ErrFail, err).WithDetail("job", job.ID)
	}
	return nil
}

// requeueScript drains the active list back onto the claim side of the
// waiting list, oldest sequence last so it is claimed first.
var requeueScript = redis.NewScript(`
local ids = redis.call('LRANGE', KEYS[1], 0, -1)
if #ids == 0 then return {} end
local ordered = {}
for i, id in ipairs(ids) do
    ordered[i] = {tonumber(redis.call('ZSCORE', KEYS[3], id)) or 0, id}
end
table.sort(ordered, function(a, b) return a[1] > b[1] end)
for _, pair in ipairs(ordered) do
    redis.call('RPUSH', KEYS[2], pair[2])
end
redis.call('DEL', KEYS[1])
local out = {}
for i, pair in ipairs(ordered) do out[i] = pair[2] end
return out
`)

// Requeue returns jobs a crash left active to the front of the queue.
func (s *Store) Requeue(ctx context.Context, unitID kernel.UnitID) (int, error) {
	ids, err := requeueScript.Run(ctx, s.rdb,
		[]string{activeKey(unitID), waitKey(unitID), jobsKey(unitID)},
	).StringSlice()
	if err != nil && err != redis.Nil {
		return 0, redisErrors.NewWithCause(ErrRequeue, err).WithDetail("unit", unitID)
	}

	for _, id := range ids {
		rec, err := s.loadRecord(ctx, kernel.JobID(id))
		if err != nil {
			return 0, err
		}
		if rec == nil {
			continue
		}
		rec.MarkWaiting()
		if err := s.saveRecord(ctx, rec, ErrRequeue); err != nil {
			return 0, err
		}
	}
	return len(ids), nil
}

// clearScript removes every waiting and delayed job of a unit in one
// atomic step.
var clearScript = redis.NewScript(`
local removed = 0
local wait_ids = redis.call('LRANGE', KEYS[1], 0, -1)
for _, id in ipairs(wait_ids) do
    redis.call('DEL', ARGV[1] .. id)
    redis.call('ZREM', KEYS[3], id)
    removed = removed + 1
end
local delay_ids = redis.call('ZRANGE', KEYS[2], 0, -1)
for _, id in ipairs(delay_ids) do
    redis.call('DEL', ARGV[1] .. id)
    redis.call('ZREM', KEYS[3], id)
    removed = removed + 1
end
redis.call('DEL', KEYS[1], KEYS[2])
return removed
`)

// Clear drops the unit's waiting and delayed jobs.
func (s *Store) Clear(ctx context.Context, unitID kernel.UnitID) (int, error) {
	removed, err := clearScript.Run(ctx, s.rdb,
		[]string{waitKey(unitID), delayKey(unitID), jobsKey(unitID)},
		jobKeyPrefix,
	).Int()
	if err != nil && err != redis.Nil {
		return 0, redisErrors.NewWithCause(ErrClear, err).WithDetail("unit", unitID)
	}
	return removed, nil
}

// trimScript drops the oldest members of a terminal set beyond the
// retention limit, along with their records.
var trimScript = redis.NewScript(`
local excess = redis.call('ZCARD', KEYS[1]) - tonumber(ARGV[1])
if excess <= 0 then return 0 end
local ids = redis.call('ZRANGE', KEYS[1], 0, excess - 1)
for _, id in ipairs(ids) do
    redis.call('DEL', ARGV[2] .. id)
    redis.call('ZREM', KEYS[2], id)
end
redis.call('ZREMRANGEBYRANK', KEYS[1], 0, excess - 1)
return #ids
`)

// Trim applies the retention limit to the unit's terminal jobs.
func (s *Store) Trim(ctx context.Context, unitID kernel.UnitID, keep int) error {
	for _, key := range []string{completedKey(unitID), failedKey(unitID)} {
		err := trimScript.Run(ctx, s.rdb,
			[]string{key, jobsKey(unitID)},
			keep, jobKeyPrefix,
		).Err()
		if err != nil && err != redis.Nil {
			return redisErrors.NewWithCause(ErrTrim, err).WithDetail("unit", unitID)
		}
	}
	return nil
}

// RegisterUnit records the unit id; registering twice is a no-op.
func (s *Store) RegisterUnit(ctx context.Context, unitID kernel.UnitID) error {
	if err := s.rdb.SAdd(ctx, unitsKey, unitID.String()).Err(); err != nil {
		return redisErrors.NewWithCause(ErrDirectory, err).WithDetail("unit", unitID)
	}
	return nil
}

// deleteUnitScript removes the unit's registration and every key that
// belongs to it.
var deleteUnitScript = redis.NewScript(`
local ids = redis.call('ZRANGE', KEYS[1], 0, -1)
for _, id in ipairs(ids) do
    redis.call('DEL', ARGV[1] .. id)
end
redis.call('DEL', KEYS[1], KEYS[2], KEYS[3], KEYS[4], KEYS[5], KEYS[6], KEYS[7])
redis.call('SREM', KEYS[8], ARGV[2])
return #ids
`)

// DeleteUnit purges the unit's registration and all of its jobs.
func (s *Store) DeleteUnit(ctx context.Context, unitID kernel.UnitID) error {
	err := deleteUnitScript.Run(ctx, s.rdb,
		[]string{
			jobsKey(unitID),
			waitKey(unitID),
			activeKey(unitID),
			delayKey(unitID),
			completedKey(unitID),
			failedKey(unitID),
			seqKey(unitID),
			unitsKey,
		},
		jobKeyPrefix, unitID.String(),
	).Err()
	if err != nil && err != redis.Nil {
		return redisErrors.NewWithCause(ErrDirectory, err).WithDetail("unit", unitID)
	}
	return nil
}

// ListUnits returns the registered unit ids, sorted.
func (s *Store) ListUnits(ctx context.Context) ([]kernel.UnitID, error) {
	members, err := s.rdb.SMembers(ctx, unitsKey).Result()
	if err != nil {
		return nil, redisErrors.NewWithCause(ErrDirectory, err)
	}

	units := make([]kernel.UnitID, len(members))
	for i, m := range members {
		units[i] = kernel.UnitID(m)
	}
	slices.Sort(units)
	return units, nil
}

// Ping verifies the Redis connection.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.rdb.Ping(ctx).Err(); err != nil {
		return redisErrors.NewWithCause(ErrPing, err)
	}
	return nil
}

// Close releases the underlying client.
func (s *Store) Close() error {
	return s.rdb.Close()
}
