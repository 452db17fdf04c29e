package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"go-blur/pkg/common"
)

const (
	workersGroup    = "workers"
	assemblersGroup = "assemblers"
	batchTTL        = 24 * time.Hour
)

type RedisClient struct {
	client *redis.Client
}

func NewRedisClient(ctx context.Context, addr string) (*RedisClient, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         addr,
		MaxRetries:   3,
		DialTimeout:  5 * time.Second,
		ReadTimeout:  3 * time.Second,
		WriteTimeout: 3 * time.Second,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}

	return &RedisClient{client: client}, nil
}

func (r *RedisClient) Close() error {
	return r.client.Close()
}

func (r *RedisClient) jobsStream() string {
	return "blur:jobs"
}

func (r *RedisClient) resultsStream() string {
	return "blur:results"
}

func (r *RedisClient) batchInfoKey(batchID string) string {
	return fmt.Sprintf("blur:batch:%s:info", batchID)
}

func (r *RedisClient) batchDoneKey(batchID string) string {
	return fmt.Sprintf("blur:batch:%s:done", batchID)
}

func (r *RedisClient) batchStatusKey(batchID string) string {
	return fmt.Sprintf("blur:batch:%s:status", batchID)
}

// EnsureGroups creates both consumer groups, ignoring groups that already
// exist.
func (r *RedisClient) EnsureGroups(ctx context.Context) error {
	for stream, group := range map[string]string{
		r.jobsStream():    workersGroup,
		r.resultsStream(): assemblersGroup,
	} {
		err := r.client.XGroupCreateMkStream(ctx, stream, group, "0").Err()
		if err != nil && !isBusyGroup(err) {
			return fmt.Errorf("create group %s on %s: %w", group, stream, err)
		}
	}
	return nil
}

func isBusyGroup(err error) bool {
	return strings.HasPrefix(err.Error(), "BUSYGROUP")
}

func (r *RedisClient) AddJob(ctx context.Context, job *common.JobMessage) (string, error) {
	return r.add(ctx, r.jobsStream(), job)
}

func (r *RedisClient) AddResult(ctx context.Context, res *common.ResultMessage) (string, error) {
	return r.add(ctx, r.resultsStream(), res)
}

func (r *RedisClient) add(ctx context.Context, stream string, v any) (string, error) {
	b, err := json.Marshal(v)
	if err != nil {
		return "", err
	}

	return r.client.XAdd(ctx, &redis.XAddArgs{
		Stream: stream,
		Values: map[string]interface{}{"data": b},
	}).Result()
}

// ReadJob blocks up to block for the next job. It returns a nil job and nil
// error when the wait times out.
func (r *RedisClient) ReadJob(ctx context.Context, consumer string, block time.Duration) (string, *common.JobMessage, error) {
	var job common.JobMessage
	id, ok, err := r.read(ctx, r.jobsStream(), workersGroup, consumer, block, &job)
	if err != nil || !ok {
		return "", nil, err
	}
	return id, &job, nil
}

func (r *RedisClient) AckJob(ctx context.Context, id string) error {
	return r.client.XAck(ctx, r.jobsStream(), workersGroup, id).Err()
}

// ReadResult blocks up to block for the next result. It returns a nil
// result and nil error when the wait times out.
func (r *RedisClient) ReadResult(ctx context.Context, consumer string, block time.Duration) (string, *common.ResultMessage, error) {
	var res common.ResultMessage
	id, ok, err := r.read(ctx, r.resultsStream(), assemblersGroup, consumer, block, &res)
	if err != nil || !ok {
		return "", nil, err
	}
	return id, &res, nil
}

func (r *RedisClient) AckResult(ctx context.Context, id string) error {
	return r.client.XAck(ctx, r.resultsStream(), assemblersGroup, id).Err()
}

func (r *RedisClient) read(ctx context.Context, stream, group, consumer string, block time.Duration, v any) (string, bool, error) {
	result, err := r.client.XReadGroup(ctx, &redis.XReadGroupArgs{
		Group:    group,
		Consumer: consumer,
		Streams:  []string{stream, ">"},
		Count:    1,
		Block:    block,
	}).Result()
	if errors.Is(err, redis.Nil) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	if len(result) == 0 || len(result[0].Messages) == 0 {
		return "", false, nil
	}

	msg := result[0].Messages[0]
	if err := json.Unmarshal(bytesFromInterface(msg.Values["data"]), v); err != nil {
		return msg.ID, false, fmt.Errorf("decode message %s: %w", msg.ID, err)
	}
	return msg.ID, true, nil
}

func (r *RedisClient) StoreBatch(ctx context.Context, info *common.BatchInfo) error {
	b, err := json.Marshal(info)
	if err != nil {
		return err
	}
	return r.client.Set(ctx, r.batchInfoKey(info.ID), b, batchTTL).Err()
}

func (r *RedisClient) GetBatch(ctx context.Context, batchID string) (*common.BatchInfo, error) {
	data, err := r.client.Get(ctx, r.batchInfoKey(batchID)).Bytes()
	if err != nil {
		return nil, err
	}

	var info common.BatchInfo
	if err := json.Unmarshal(data, &info); err != nil {
		return nil, err
	}
	return &info, nil
}

// MarkSizeDone records a finished kernel size for a batch. It reports false
// when the size had already been recorded.
func (r *RedisClient) MarkSizeDone(ctx context.Context, batchID string, kernelSize int) (bool, error) {
	key := r.batchDoneKey(batchID)
	added, err := r.client.SAdd(ctx, key, kernelSize).Result()
	if err != nil {
		return false, err
	}
	r.client.Expire(ctx, key, batchTTL)
	return added == 1, nil
}

func (r *RedisClient) DoneCount(ctx context.Context, batchID string) (int64, error) {
	return r.client.SCard(ctx, r.batchDoneKey(batchID)).Result()
}

func (r *RedisClient) MarkBatchCompleted(ctx context.Context, batchID string) error {
	return r.client.Set(ctx, r.batchStatusKey(batchID), "completed", batchTTL).Err()
}

func (r *RedisClient) IsBatchCompleted(ctx context.Context, batchID string) (bool, error) {
	result, err := r.client.Get(ctx, r.batchStatusKey(batchID)).Result()
	if errors.Is(err, redis.Nil) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return result == "completed", nil
}

func bytesFromInterface(v interface{}) []byte {
	switch t := v.(type) {
	case string:
		return []byte(t)
	case []byte:
		return t
	default:
		b, _ := json.Marshal(t)
		return b
	}
}
