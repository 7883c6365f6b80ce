package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const HBooks string = "books"

var ErrTxMaxRetries = errors.New("redis: transaction reached maximum number of retries")

type redisBookStorage struct {
	logger     *zap.Logger
	client     *redis.Client
	maxRetries int
}

// NewRedisBookStorage provides an instance of redis-based book storage. All records
// live into a single hash. Writes run into optimistic transactions watching that hash.
func NewRedisBookStorage(logger *zap.Logger, client *redis.Client, maxRetries int) BookStorage {
	if maxRetries <= 0 {
		maxRetries = 1
	}
	return &redisBookStorage{
		logger:     logger,
		client:     client,
		maxRetries: maxRetries,
	}
}

// GetRedisClient provides a ready to use redis client.
func GetRedisClient(config *Config) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         fmt.Sprintf("%s:%s", config.Redis.Host, config.Redis.Port),
		DialTimeout:  config.Redis.DialTimeout,
		ReadTimeout:  config.Redis.ReadTimeout,
		WriteTimeout: config.Redis.WriteTimeout,
		PoolSize:     config.Redis.PoolSize,
		PoolTimeout:  config.Redis.PoolTimeout,
		Password:     config.Redis.Password,
		Username:     config.Redis.Username,
		DB:           config.Redis.DatabaseIndex,
	})

	// test connection.
	if pong, err := client.Ping(context.Background()).Result(); pong != "PONG" || err != nil {
		return client, fmt.Errorf("test connection failed: %v", err)
	}
	return client, nil
}

// watch runs the transaction function until it commits without
// concurrent modification of the books hash or retries run out.
func (rs *redisBookStorage) watch(ctx context.Context, txf func(tx *redis.Tx) error) error {
	for i := 0; i < rs.maxRetries; i++ {
		err := rs.client.Watch(ctx, txf, HBooks)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
		rs.logger.Debug("redis: books hash modified during transaction. retrying", zap.Int("attempt", i+1))
	}
	return ErrTxMaxRetries
}

// Add inserts a new book record once none of the stored ones breaks uniqueness.
func (rs *redisBookStorage) Add(ctx context.Context, book Book) error {
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return err
	}
	return rs.watch(ctx, func(tx *redis.Tx) error {
		values, err := tx.HVals(ctx, HBooks).Result()
		if err != nil {
			return err
		}
		for _, v := range values {
			var existing Book
			if err = json.Unmarshal([]byte(v), &existing); err != nil {
				return err
			}
			if err = CheckUniqueness(&existing, &book); err != nil {
				return err
			}
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, HBooks, book.ID, bookBytes)
			return nil
		})
		return err
	})
}

// GetOne retrieves a book record based on its ID.
func (rs *redisBookStorage) GetOne(ctx context.Context, id string) (Book, error) {
	var book Book
	bookJSONString, err := rs.client.HGet(ctx, HBooks, id).Result()
	if err == redis.Nil {
		return book, ErrBookNotFound
	}
	if err != nil {
		return book, err
	}
	err = json.Unmarshal([]byte(bookJSONString), &book)
	return book, err
}

// Exists checks the presence of a book record.
func (rs *redisBookStorage) Exists(ctx context.Context, id string) (bool, error) {
	return rs.client.HExists(ctx, HBooks, id).Result()
}

// Update applies the mutation on the stored record and saves the result.
func (rs *redisBookStorage) Update(ctx context.Context, id string, mutate func(*Book) error) (Book, error) {
	var book Book
	err := rs.watch(ctx, func(tx *redis.Tx) error {
		bookJSONString, err := tx.HGet(ctx, HBooks, id).Result()
		if err == redis.Nil {
			return ErrBookNotFound
		}
		if err != nil {
			return err
		}
		book = Book{}
		if err = json.Unmarshal([]byte(bookJSONString), &book); err != nil {
			return err
		}
		if err = mutate(&book); err != nil {
			return err
		}
		book.ID = id
		bookBytes, err := json.Marshal(book)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HSet(ctx, HBooks, id, bookBytes)
			return nil
		})
		return err
	})
	return book, err
}

// Delete removes a book record based on its ID and returns it.
func (rs *redisBookStorage) Delete(ctx context.Context, id string) (Book, error) {
	var book Book
	err := rs.watch(ctx, func(tx *redis.Tx) error {
		bookJSONString, err := tx.HGet(ctx, HBooks, id).Result()
		if err == redis.Nil {
			return ErrBookNotFound
		}
		if err != nil {
			return err
		}
		if err = json.Unmarshal([]byte(bookJSONString), &book); err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.HDel(ctx, HBooks, id)
			return nil
		})
		return err
	})
	return book, err
}

// GetAll retrieves a list of all books stored in the redis database.
func (rs *redisBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	mapBooks, err := rs.client.HVals(ctx, HBooks).Result()
	if err != nil {
		return nil, err
	}
	books := make([]Book, 0, len(mapBooks))
	for _, bookJSONString := range mapBooks {
		var book Book
		if err = json.Unmarshal([]byte(bookJSONString), &book); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, nil
}

// Ping checks the redis server connectivity.
func (rs *redisBookStorage) Ping(ctx context.Context) error {
	return rs.client.Ping(ctx).Err()
}

// Close does nothing. The redis client is shared with the cache
// and the queues so its owner (the App) closes it on shutdown.
func (rs *redisBookStorage) Close() error {
	return nil
}
