package tracker

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ninalin0217/docsplit/internal/apperr"
	"github.com/ninalin0217/docsplit/internal/models"
)

// Redis implements Tracker on a redis instance. The completed-set update
// and the processing→merging transition run as Lua scripts so every
// per-document mutation is a single atomic step, which is what keeps
// concurrent part completions from double-firing the merge trigger.
type Redis struct {
	client *redis.Client
}

func NewRedis(client *redis.Client) *Redis {
	return &Redis{client: client}
}

func jobKey(id string) string       { return "tracker:" + id + ":job" }
func completedKey(id string) string { return "tracker:" + id + ":completed" }
func failedKey(id string) string    { return "tracker:" + id + ":failed" }
func partKey(id string, idx int) string {
	return fmt.Sprintf("tracker:%s:part:%d", id, idx)
}

// initScript creates the job hash and its part hashes unless the job
// already exists. Returns 1 on create, 0 on an identical re-init, and
// the existing totalParts negated minus one on a mismatch.
var initScript = redis.NewScript(`
local total = redis.call('HGET', KEYS[1], 'total')
if total then
  if tonumber(total) == tonumber(ARGV[1]) then
    return 0
  end
  return -1 - tonumber(total)
end
redis.call('HSET', KEYS[1], 'total', ARGV[1], 'maxRetries', ARGV[2], 'status', ARGV[3], 'progress', '0', 'error', '')
for i = 0, tonumber(ARGV[1]) - 1 do
  redis.call('HSET', ARGV[4] .. i, 'status', 'pending', 'retryCount', '0', 'lastError', '', 'updatedAt', ARGV[5])
end
return 1
`)

// completeScript records one part completed and reports whether the
// completed set now covers every part. Single script, so two concurrent
// completions serialize and exactly one sees the full set first.
var completeScript = redis.NewScript(`
local total = redis.call('HGET', KEYS[1], 'total')
if not total then
  return -1
end
redis.call('HSET', KEYS[4], 'status', 'completed', 'lastError', '', 'updatedAt', ARGV[2])
redis.call('SADD', KEYS[2], ARGV[1])
redis.call('SREM', KEYS[3], ARGV[1])
if redis.call('SCARD', KEYS[2]) == tonumber(total) then
  return 1
end
return 0
`)

// failScript increments the part's retry count and reports {retryCount,
// canRetry}.
var failScript = redis.NewScript(`
local max = redis.call('HGET', KEYS[1], 'maxRetries')
if not max then
  return {-1, 0}
end
local rc = redis.call('HINCRBY', KEYS[3], 'retryCount', 1)
redis.call('HSET', KEYS[3], 'status', 'failed', 'lastError', ARGV[2], 'updatedAt', ARGV[3])
redis.call('SADD', KEYS[2], ARGV[1])
if rc < tonumber(max) then
  return {rc, 1}
end
return {rc, 0}
`)

// mergeScript is the processing→merging compare-and-set.
var mergeScript = redis.NewScript(`
local status = redis.call('HGET', KEYS[1], 'status')
if status == ARGV[1] then
  redis.call('HSET', KEYS[1], 'status', ARGV[2])
  return 1
end
return 0
`)

func (r *Redis) Initialize(ctx context.Context, documentID string, totalParts, maxRetries int) error {
	res, err := initScript.Run(ctx, r.client,
		[]string{jobKey(documentID)},
		totalParts, maxRetries, string(models.JobPending),
		"tracker:"+documentID+":part:", time.Now().Format(time.RFC3339),
	).Int()
	if err != nil {
		return &apperr.TrackerError{Op: "initialize", Err: err}
	}
	if res < 0 {
		return &apperr.JobInconsistencyError{
			DocumentID: documentID,
			Have:       -res - 1,
			Want:       totalParts,
		}
	}
	return nil
}

func (r *Redis) MarkProcessing(ctx context.Context, documentID string, partIndex int) error {
	exists, err := r.client.Exists(ctx, jobKey(documentID)).Result()
	if err != nil {
		return &apperr.TrackerError{Op: "mark processing", Err: err}
	}
	if exists == 0 {
		return apperr.ErrJobNotFound
	}
	err = r.client.HSet(ctx, partKey(documentID, partIndex),
		"status", string(models.PartProcessing),
		"updatedAt", time.Now().Format(time.RFC3339),
	).Err()
	if err != nil {
		return &apperr.TrackerError{Op: "mark processing", Err: err}
	}
	return nil
}

func (r *Redis) MarkCompleted(ctx context.Context, documentID string, partIndex int) (bool, error) {
	res, err := completeScript.Run(ctx, r.client,
		[]string{
			jobKey(documentID),
			completedKey(documentID),
			failedKey(documentID),
			partKey(documentID, partIndex),
		},
		partIndex, time.Now().Format(time.RFC3339),
	).Int()
	if err != nil {
		return false, &apperr.TrackerError{Op: "mark completed", Err: err}
	}
	if res < 0 {
		return false, apperr.ErrJobNotFound
	}
	return res == 1, nil
}

func (r *Redis) MarkFailed(ctx context.Context, documentID string, partIndex int, cause string) (int, bool, error) {
	res, err := failScript.Run(ctx, r.client,
		[]string{
			jobKey(documentID),
			failedKey(documentID),
			partKey(documentID, partIndex),
		},
		partIndex, cause, time.Now().Format(time.RFC3339),
	).Int64Slice()
	if err != nil {
		return 0, false, &apperr.TrackerError{Op: "mark failed", Err: err}
	}
	if len(res) != 2 || res[0] < 0 {
		return 0, false, apperr.ErrJobNotFound
	}
	return int(res[0]), res[1] == 1, nil
}

func (r *Redis) TryBeginMerge(ctx context.Context, documentID string) (bool, error) {
	res, err := mergeScript.Run(ctx, r.client,
		[]string{jobKey(documentID)},
		string(models.JobProcessing), string(models.JobMerging),
	).Int()
	if err != nil {
		return false, &apperr.TrackerError{Op: "begin merge", Err: err}
	}
	return res == 1, nil
}

func (r *Redis) SetJobStatus(ctx context.Context, documentID string, status models.JobStatus, progress float64, errMsg string) error {
	exists, err := r.client.Exists(ctx, jobKey(documentID)).Result()
	if err != nil {
		return &apperr.TrackerError{Op: "set job status", Err: err}
	}
	if exists == 0 {
		return apperr.ErrJobNotFound
	}
	fields := []interface{}{
		"status", string(status),
		"progress", strconv.FormatFloat(progress, 'f', -1, 64),
		"error", errMsg,
	}
	if status == models.JobCompleted || status == models.JobFailed {
		fields = append(fields, "finishedAt", time.Now().Format(time.RFC3339))
	}
	if err := r.client.HSet(ctx, jobKey(documentID), fields...).Err(); err != nil {
		return &apperr.TrackerError{Op: "set job status", Err: err}
	}
	return nil
}

func (r *Redis) JobStatus(ctx context.Context, documentID string) (models.JobStatus, error) {
	status, err := r.client.HGet(ctx, jobKey(documentID), "status").Result()
	if err == redis.Nil {
		return "", apperr.ErrJobNotFound
	}
	if err != nil {
		return "", &apperr.TrackerError{Op: "job status", Err: err}
	}
	return models.JobStatus(status), nil
}

func (r *Redis) Snapshot(ctx context.Context, documentID string) (*models.JobProgressSnapshot, error) {
	job, err := r.client.HGetAll(ctx, jobKey(documentID)).Result()
	if err != nil {
		return nil, &apperr.TrackerError{Op: "snapshot", Err: err}
	}
	if len(job) == 0 {
		return nil, apperr.ErrJobNotFound
	}

	totalParts, _ := strconv.Atoi(job["total"])
	maxRetries, _ := strconv.Atoi(job["maxRetries"])

	completed, err := r.intSet(ctx, completedKey(documentID))
	if err != nil {
		return nil, err
	}
	failed, err := r.intSet(ctx, failedKey(documentID))
	if err != nil {
		return nil, err
	}

	pipe := r.client.Pipeline()
	partCmds := make([]*redis.MapStringStringCmd, totalParts)
	for i := 0; i < totalParts; i++ {
		partCmds[i] = pipe.HGetAll(ctx, partKey(documentID, i))
	}
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return nil, &apperr.TrackerError{Op: "snapshot", Err: err}
	}

	snap := &models.JobProgressSnapshot{
		DocumentID:     documentID,
		Status:         models.JobStatus(job["status"]),
		TotalParts:     totalParts,
		CompletedParts: completed,
		FailedParts:    failed,
		Error:          job["error"],
	}
	for i := 0; i < totalParts; i++ {
		fields := partCmds[i].Val()
		retryCount, _ := strconv.Atoi(fields["retryCount"])
		updatedAt, _ := time.Parse(time.RFC3339, fields["updatedAt"])
		snap.Parts = append(snap.Parts, models.DocumentPart{
			DocumentID: documentID,
			PartIndex:  i,
			Status:     models.PartStatus(fields["status"]),
			RetryCount: retryCount,
			MaxRetries: maxRetries,
			LastError:  fields["lastError"],
			UpdatedAt:  updatedAt,
		})
	}
	if totalParts > 0 {
		snap.PercentComplete = 100 * float64(len(completed)) / float64(totalParts)
	}
	return snap, nil
}

func (r *Redis) Cleanup(ctx context.Context, documentID string) error {
	total, err := r.client.HGet(ctx, jobKey(documentID), "total").Int()
	if err == redis.Nil {
		return nil
	}
	if err != nil {
		return &apperr.TrackerError{Op: "cleanup", Err: err}
	}

	keys := []string{jobKey(documentID), completedKey(documentID), failedKey(documentID)}
	for i := 0; i < total; i++ {
		keys = append(keys, partKey(documentID, i))
	}
	if err := r.client.Del(ctx, keys...).Err(); err != nil {
		return &apperr.TrackerError{Op: "cleanup", Err: err}
	}
	return nil
}

func (r *Redis) intSet(ctx context.Context, key string) ([]int, error) {
	members, err := r.client.SMembers(ctx, key).Result()
	if err != nil {
		return nil, &apperr.TrackerError{Op: "snapshot", Err: err}
	}
	out := make([]int, 0, len(members))
	for _, m := range members {
		if v, err := strconv.Atoi(m); err == nil {
			out = append(out, v)
		}
	}
	sort.Ints(out)
	return out, nil
}
