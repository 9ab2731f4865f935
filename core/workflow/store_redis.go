package workflow

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

const defaultRedisURL = "redis://localhost:6379"

// RedisStore archives workflow executions and their decisions in Redis.
// The engine keeps live executions in memory; the store is the durable
// record that survives restarts and feeds the retention sweep.
type RedisStore struct {
	client *redis.Client
}

// NewRedisStore constructs a Redis-backed execution archive.
func NewRedisStore(url string) (*RedisStore, error) {
	if url == "" {
		url = defaultRedisURL
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	client := redis.NewClient(opts)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("connect redis: %w", err)
	}
	return &RedisStore{client: client}, nil
}

// Close closes the underlying Redis client.
func (s *RedisStore) Close() error {
	if s.client == nil {
		return nil
	}
	return s.client.Close()
}

// SaveExecution upserts an execution document and its indexes.
func (s *RedisStore) SaveExecution(ctx context.Context, ex *Execution) error {
	if ex == nil || ex.ID == "" {
		return fmt.Errorf("execution id required")
	}
	prevStatus := ExecutionStatus("")
	if data, err := s.client.Get(ctx, executionKey(ex.ID)).Bytes(); err == nil {
		var prev Execution
		if err := json.Unmarshal(data, &prev); err == nil {
			prevStatus = prev.Status
		}
	}

	payload, err := json.Marshal(ex)
	if err != nil {
		return fmt.Errorf("marshal execution: %w", err)
	}
	status := ex.CurrentStatus()
	score := float64(time.Now().UTC().Unix())
	ex.mu.RLock()
	if ex.CompletedAt != nil {
		score = float64(ex.CompletedAt.Unix())
	}
	appID := ex.ApplicationID
	ex.mu.RUnlock()

	pipe := s.client.TxPipeline()
	pipe.Set(ctx, executionKey(ex.ID), payload, 0)
	pipe.ZAdd(ctx, executionAllIndexKey(), redis.Z{Score: score, Member: ex.ID})
	pipe.ZAdd(ctx, executionWorkflowIndexKey(ex.WorkflowID), redis.Z{Score: score, Member: ex.ID})
	pipe.ZAdd(ctx, executionStatusIndexKey(status), redis.Z{Score: score, Member: ex.ID})
	if prevStatus != "" && prevStatus != status {
		pipe.ZRem(ctx, executionStatusIndexKey(prevStatus), ex.ID)
	}
	if appID != "" {
		pipe.ZAdd(ctx, executionApplicationIndexKey(appID), redis.Z{Score: score, Member: ex.ID})
	}
	_, err = pipe.Exec(ctx)
	return err
}

// GetExecution fetches an archived execution by id.
func (s *RedisStore) GetExecution(ctx context.Context, id string) (*Execution, error) {
	if id == "" {
		return nil, fmt.Errorf("execution id required")
	}
	data, err := s.client.Get(ctx, executionKey(id)).Bytes()
	if err != nil {
		return nil, err
	}
	var ex Execution
	if err := json.Unmarshal(data, &ex); err != nil {
		return nil, fmt.Errorf("unmarshal execution: %w", err)
	}
	return &ex, nil
}

// DeleteExecution removes an execution, its decision, and all indexes.
func (s *RedisStore) DeleteExecution(ctx context.Context, id string) error {
	if id == "" {
		return fmt.Errorf("execution id required")
	}
	ex, err := s.GetExecution(ctx, id)
	if err != nil {
		return err
	}
	pipe := s.client.TxPipeline()
	pipe.Del(ctx, executionKey(id))
	pipe.Del(ctx, decisionKey(id))
	pipe.ZRem(ctx, executionAllIndexKey(), id)
	pipe.ZRem(ctx, executionWorkflowIndexKey(ex.WorkflowID), id)
	pipe.ZRem(ctx, executionStatusIndexKey(ex.Status), id)
	if ex.ApplicationID != "" {
		pipe.ZRem(ctx, executionApplicationIndexKey(ex.ApplicationID), id)
	}
	_, err = pipe.Exec(ctx)
	return err
}

// ListExecutionsByWorkflow returns recent executions of a workflow.
func (s *RedisStore) ListExecutionsByWorkflow(ctx context.Context, workflowID string, limit int64) ([]*Execution, error) {
	if workflowID == "" {
		return nil, fmt.Errorf("workflow id required")
	}
	if limit <= 0 {
		limit = 50
	}
	ids, err := s.client.ZRevRange(ctx, executionWorkflowIndexKey(workflowID), 0, limit-1).Result()
	if err != nil {
		return nil, err
	}
	if len(ids) == 0 {
		return []*Execution{}, nil
	}

	pipe := s.client.Pipeline()
	cmds := make(map[string]*redis.StringCmd, len(ids))
	for _, id := range ids {
		cmds[id] = pipe.Get(ctx, executionKey(id))
	}
	_, _ = pipe.Exec(ctx)

	out := make([]*Execution, 0, len(ids))
	for _, id := range ids {
		cmd := cmds[id]
		if cmd == nil {
			continue
		}
		data, err := cmd.Bytes()
		if err != nil {
			continue
		}
		var ex Execution
		if err := json.Unmarshal(data, &ex); err != nil {
			continue
		}
		out = append(out, &ex)
	}
	return out, nil
}

// ListExecutionIDsByStatus returns recent execution ids in a given status.
func (s *RedisStore) ListExecutionIDsByStatus(ctx context.Context, status ExecutionStatus, limit int64) ([]string, error) {
	if status == "" {
		return nil, fmt.Errorf("status required")
	}
	if limit <= 0 {
		limit = 200
	}
	return s.client.ZRevRange(ctx, executionStatusIndexKey(status), 0, limit-1).Result()
}

// SaveDecision archives the decision issued for an execution. The value is
// stored as JSON so the store stays decoupled from the decision package.
func (s *RedisStore) SaveDecision(ctx context.Context, executionID string, decision any) error {
	if executionID == "" {
		return fmt.Errorf("execution id required")
	}
	payload, err := json.Marshal(decision)
	if err != nil {
		return fmt.Errorf("marshal decision: %w", err)
	}
	return s.client.Set(ctx, decisionKey(executionID), payload, 0).Err()
}

// GetDecision returns the archived decision document for an execution.
func (s *RedisStore) GetDecision(ctx context.Context, executionID string) (json.RawMessage, error) {
	if executionID == "" {
		return nil, fmt.Errorf("execution id required")
	}
	data, err := s.client.Get(ctx, decisionKey(executionID)).Bytes()
	if err != nil {
		return nil, err
	}
	return json.RawMessage(data), nil
}

// Sweep removes archived executions whose index score (completion time) is
// older than the retention window. Returns the number removed. Terminal-only:
// live statuses are re-indexed on every save, so their scores stay fresh.
func (s *RedisStore) Sweep(ctx context.Context, olderThan time.Duration) (int, error) {
	cutoff := time.Now().UTC().Add(-olderThan).Unix()
	ids, err := s.client.ZRangeByScore(ctx, executionAllIndexKey(), &redis.ZRangeBy{
		Min: "-inf",
		Max: fmt.Sprintf("%d", cutoff),
	}).Result()
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, id := range ids {
		ex, err := s.GetExecution(ctx, id)
		if err != nil {
			continue
		}
		switch ex.Status {
		case ExecutionStatusCompleted, ExecutionStatusFailed, ExecutionStatusCancelled:
		default:
			continue
		}
		if err := s.DeleteExecution(ctx, id); err != nil {
			continue
		}
		removed++
	}
	return removed, nil
}

func executionKey(id string) string {
	return "lc:execution:" + id
}

func executionAllIndexKey() string {
	return "lc:executions:all"
}

func executionWorkflowIndexKey(workflowID string) string {
	return "lc:executions:workflow:" + workflowID
}

func executionStatusIndexKey(status ExecutionStatus) string {
	return "lc:executions:status:" + string(status)
}

func executionApplicationIndexKey(appID string) string {
	return "lc:executions:app:" + appID
}

func decisionKey(executionID string) string {
	return "lc:decision:" + executionID
}
