package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// MirrorQueue is the redis list carrying the committed writes in commit order.
const MirrorQueue = "books:queue:mirror"

// Kinds of write carried by a queue message.
const (
	OpCreate = "create"
	OpUpdate = "update"
	OpDelete = "delete"
)

// Ensure *redisQueue implements Queuer.
var _ Queuer = (*redisQueue)(nil)

// Queuer describes an ordered queue of book writes.
type Queuer interface {
	Push(ctx context.Context, op string, book Book) error
	Pop(ctx context.Context) (string, Book, error)
}

// QueueMessage is the envelope stored on the queue. A single list keeps
// creates, updates and deletes in the order they were pushed.
type QueueMessage struct {
	Op   string `json:"op"`
	Book Book   `json:"book"`
}

// redisQueue represents a queue backed by a redis list.
type redisQueue struct {
	client  *redis.Client
	key     string
	timeout time.Duration
}

// NewRedisQueue provides a queue on the list key. Pop blocks up to timeout, forever when zero.
func NewRedisQueue(client *redis.Client, key string, timeout time.Duration) Queuer {
	return &redisQueue{client: client, key: key, timeout: timeout}
}

// Push appends the write to the tail of the list.
func (q *redisQueue) Push(ctx context.Context, op string, book Book) error {
	msgBytes, err := json.Marshal(QueueMessage{Op: op, Book: book})
	if err != nil {
		return err
	}
	return q.client.RPush(ctx, q.key, msgBytes).Err()
}

// Pop returns the oldest write of the list with its kind.
// It returns redis.Nil when nothing arrived before the timeout.
func (q *redisQueue) Pop(ctx context.Context) (string, Book, error) {
	var msg QueueMessage
	infos, err := q.client.BLPop(ctx, q.timeout, q.key).Result()
	if err != nil {
		return "", msg.Book, err
	}
	if len(infos) != 2 {
		return "", msg.Book, fmt.Errorf("queue: unexpected pop reply of %d elements", len(infos))
	}
	if err = json.Unmarshal([]byte(infos[1]), &msg); err != nil {
		return "", msg.Book, err
	}
	return msg.Op, msg.Book, nil
}
