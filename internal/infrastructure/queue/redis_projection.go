// Package queue adapts domain/queue.Backend onto hibiken/asynq for
// enqueue/dispatch/retry/backoff and a redis/go-redis/v9-backed projection
// store for the rich job state asynq's opaque task bytes don't retain.
// Grounded on internal/infrastructure/pubsub/redis_pubsub.go's style of
// wrapping *redis.Client behind a small domain-shaped adapter, and
// internal/infrastructure/persistence/postgres/generation_job_repository.go's
// "one row/hash per job, plus index sets" repository shape.
package queue

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/redis/go-redis/v9"

	"github.com/Pimboto/DarkStackBackend/internal/domain/queue"
	"github.com/Pimboto/DarkStackBackend/internal/domain/valueobject"
)

// projectionStore is the redis-backed read/write side of JobRecord state,
// keyed by queue+job id. One JSON string value per job (`job:<queue>:<id>`), one set per
// parent (`parent:<queue>:<parentId>`), one set per (queue,state)
// (`state:<queue>:<state>`).
type projectionStore struct {
	rdb *redis.Client
}

func newProjectionStore(rdb *redis.Client) *projectionStore {
	return &projectionStore{rdb: rdb}
}

func jobKey(queueName, jobID string) string    { return fmt.Sprintf("job:%s:%s", queueName, jobID) }
func parentKey(queueName, parentID string) string { return fmt.Sprintf("parent:%s:%s", queueName, parentID) }
func stateKey(queueName string, state valueobject.JobState) string {
	return fmt.Sprintf("state:%s:%s", queueName, state)
}

func (s *projectionStore) create(ctx context.Context, queueName string, rec *queue.JobRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(queueName, rec.ID), data, 0)
	pipe.SAdd(ctx, stateKey(queueName, rec.State), rec.ID)
	if rec.ParentID != "" {
		pipe.SAdd(ctx, parentKey(queueName, rec.ParentID), rec.ID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *projectionStore) get(ctx context.Context, queueName, jobID string) (*queue.JobRecord, error) {
	data, err := s.rdb.Get(ctx, jobKey(queueName, jobID)).Bytes()
	if err == redis.Nil {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var rec queue.JobRecord
	if err := json.Unmarshal(data, &rec); err != nil {
		return nil, fmt.Errorf("unmarshal job record: %w", err)
	}
	return &rec, nil
}

func (s *projectionStore) mutate(ctx context.Context, queueName, jobID string, fn func(rec *queue.JobRecord)) error {
	rec, err := s.get(ctx, queueName, jobID)
	if err != nil {
		return err
	}
	if rec == nil {
		return fmt.Errorf("job %s/%s not found", queueName, jobID)
	}
	prevState := rec.State
	fn(rec)

	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal job record: %w", err)
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, jobKey(queueName, jobID), data, 0)
	if rec.State != prevState {
		pipe.SRem(ctx, stateKey(queueName, prevState), jobID)
		pipe.SAdd(ctx, stateKey(queueName, rec.State), jobID)
	}
	_, err = pipe.Exec(ctx)
	return err
}

func (s *projectionStore) listByState(ctx context.Context, queueName string, states []valueobject.JobState) ([]*queue.JobRecord, error) {
	var ids []string
	for _, st := range states {
		got, err := s.rdb.SMembers(ctx, stateKey(queueName, st)).Result()
		if err != nil {
			return nil, err
		}
		ids = append(ids, got...)
	}
	return s.getMany(ctx, queueName, ids)
}

func (s *projectionStore) listByParent(ctx context.Context, queueName, parentID string) ([]*queue.JobRecord, error) {
	ids, err := s.rdb.SMembers(ctx, parentKey(queueName, parentID)).Result()
	if err != nil {
		return nil, err
	}
	return s.getMany(ctx, queueName, ids)
}

func (s *projectionStore) getMany(ctx context.Context, queueName string, ids []string) ([]*queue.JobRecord, error) {
	out := make([]*queue.JobRecord, 0, len(ids))
	for _, id := range ids {
		rec, err := s.get(ctx, queueName, id)
		if err != nil {
			return nil, err
		}
		if rec != nil {
			out = append(out, rec)
		}
	}
	return out, nil
}

func (s *projectionStore) appendLog(ctx context.Context, queueName, jobID string, line queue.JobLogLine) error {
	return s.mutate(ctx, queueName, jobID, func(rec *queue.JobRecord) {
		rec.Logs = append(rec.Logs, line)
		if len(rec.Logs) > 200 {
			rec.Logs = rec.Logs[len(rec.Logs)-200:]
		}
	})
}
