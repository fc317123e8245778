package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/redis/go-redis/v9"
)

const popInterval = time.Second

// RedisQueue is a frontier backed by a Redis list, for runs that should
// survive a process restart. Tasks are JSON-encoded; producers LPUSH and
// consumers BRPOP, so order stays FIFO.
type RedisQueue struct {
	client *redis.Client
	key    string
	closed atomic.Bool
}

func NewRedisQueue(client *redis.Client, key string) *RedisQueue {
	return &RedisQueue{
		client: client,
		key:    key,
	}
}

func (q *RedisQueue) Push(task *Task) error {
	if q.closed.Load() {
		return ErrQueueClosed
	}

	payload, err := json.Marshal(task)
	if err != nil {
		return fmt.Errorf("failed to encode task: %w", err)
	}

	if err := q.client.LPush(context.Background(), q.key, payload).Err(); err != nil {
		return fmt.Errorf("failed to push task: %w", err)
	}

	return nil
}

func (q *RedisQueue) Pop(ctx context.Context) (*Task, error) {
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		res, err := q.client.BRPop(ctx, popInterval, q.key).Result()
		if err == redis.Nil {
			if q.closed.Load() {
				return nil, ErrQueueClosed
			}
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("failed to pop task: %w", err)
		}

		var task Task
		if err := json.Unmarshal([]byte(res[1]), &task); err != nil {
			return nil, fmt.Errorf("failed to decode task: %w", err)
		}
		return &task, nil
	}
}

func (q *RedisQueue) Size() int {
	n, err := q.client.LLen(context.Background(), q.key).Result()
	if err != nil {
		return 0
	}
	return int(n)
}

func (q *RedisQueue) Close() error {
	q.closed.Store(true)
	return nil
}
