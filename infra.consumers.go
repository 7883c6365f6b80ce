package main

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

type Consumer interface {
	Consume(ctx context.Context) error
}

// BookMirror is the storage side of the mirror. The primary storage
// already enforced the uniqueness rules so Put stores without checking them.
type BookMirror interface {
	Put(ctx context.Context, book Book) error
	Delete(ctx context.Context, id string) (Book, error)
}

// boltDBConsumer replays the published writes into the mirror storage.
type boltDBConsumer struct {
	logger *zap.Logger
	queue  Queuer
	mirror BookMirror
}

func NewBoltDBConsumer(logger *zap.Logger, q Queuer, mirror BookMirror) Consumer {
	return &boltDBConsumer{logger, q, mirror}
}

// Consume pops writes until the context is done. Failures are logged and skipped.
func (bc *boltDBConsumer) Consume(ctx context.Context) error {
	for {
		op, book, err := bc.queue.Pop(ctx)
		if err != nil && ctx.Err() != nil {
			bc.logger.Info("consumer: queue pop call: context is done: exit", zap.String("reason", ctx.Err().Error()))
			return nil
		}

		if errors.Is(err, redis.Nil) {
			continue
		}

		if err != nil {
			bc.logger.Error("consumer: error on queue pop call", zap.Error(err))
			continue
		}

		bc.apply(ctx, op, book)
	}
}

func (bc *boltDBConsumer) apply(ctx context.Context, op string, book Book) {
	switch op {
	case OpCreate, OpUpdate:
		// an update of a missed creation inserts the book.
		if err := bc.mirror.Put(ctx, book); err != nil {
			bc.logger.Error("consumer: failed to store", zap.String("op", op), zap.String("book.id", book.ID), zap.Error(err))
		}
	case OpDelete:
		if _, err := bc.mirror.Delete(ctx, book.ID); err != nil && !errors.Is(err, ErrBookNotFound) {
			bc.logger.Error("consumer: failed to delete", zap.String("book.id", book.ID), zap.Error(err))
		}
	default:
		bc.logger.Warn("consumer: received book with unknown operation", zap.String("op", op), zap.String("book.id", book.ID))
	}
}
