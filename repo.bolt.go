package main

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/boltdb/bolt"
	"go.uber.org/zap"
)

type boltBookStorage struct {
	logger *zap.Logger
	client *bolt.DB
	config *BoltDBConfig
}

// GetBoltDBClient setup the database and the bucket then provides a ready to use client.
func GetBoltDBClient(config *Config) (*bolt.DB, error) {
	db, err := bolt.Open(config.BoltDB.FilePath, 0o600, &bolt.Options{Timeout: config.BoltDB.Timeout})
	if err != nil {
		return nil, fmt.Errorf("failed to open the database, %v", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		if _, errB := tx.CreateBucketIfNotExists([]byte(config.BoltDB.BucketName)); errB != nil {
			return fmt.Errorf("failed to create %s bucket: %v", config.BoltDB.BucketName, errB)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to set up bucket: %v", err)
	}
	return db, nil
}

// NewBoltBookStorage provides an instance of bolt-based book storage. Bolt allows
// a single read-write transaction at a time so every write is serialized.
func NewBoltBookStorage(logger *zap.Logger, boltConfig *BoltDBConfig, client *bolt.DB) BookStorage {
	return &boltBookStorage{
		logger: logger,
		client: client,
		config: boltConfig,
	}
}

// NewBoltBookMirror provides the bolt-based storage used as the mirror of the primary storage.
func NewBoltBookMirror(logger *zap.Logger, boltConfig *BoltDBConfig, client *bolt.DB) BookMirror {
	return &boltBookStorage{
		logger: logger,
		client: client,
		config: boltConfig,
	}
}

func (bs *boltBookStorage) bucket(tx *bolt.Tx) *bolt.Bucket {
	return tx.Bucket([]byte(bs.config.BucketName))
}

// Close shuts down the bolt-based book storage.
func (bs *boltBookStorage) Close() error {
	return bs.client.Close()
}

// Add inserts a new book record into boltdb store once none
// of the stored ones breaks the uniqueness invariants.
func (bs *boltBookStorage) Add(_ context.Context, book Book) error {
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return err
	}
	return bs.client.Update(func(tx *bolt.Tx) error {
		b := bs.bucket(tx)
		err := b.ForEach(func(_, v []byte) error {
			var existing Book
			if err := json.Unmarshal(v, &existing); err != nil {
				return err
			}
			return CheckUniqueness(&existing, &book)
		})
		if err != nil {
			return err
		}
		return b.Put([]byte(book.ID), bookBytes)
	})
}

// Put stores the book under its ID, replacing any previous record.
// It does not check the uniqueness invariants.
func (bs *boltBookStorage) Put(_ context.Context, book Book) error {
	bookBytes, err := json.Marshal(book)
	if err != nil {
		return err
	}
	return bs.client.Update(func(tx *bolt.Tx) error {
		return bs.bucket(tx).Put([]byte(book.ID), bookBytes)
	})
}

// GetOne retrieves a book record based on its ID from boltdb store.
func (bs *boltBookStorage) GetOne(_ context.Context, id string) (Book, error) {
	var book Book
	// initialize a readable transaction.
	tx, err := bs.client.Begin(false)
	if err != nil {
		return book, err
	}
	defer tx.Rollback()

	result := bs.bucket(tx).Get([]byte(id))
	if result == nil {
		return book, ErrBookNotFound
	}
	err = json.Unmarshal(result, &book)
	return book, err
}

// Exists checks the presence of a book record into boltdb store.
func (bs *boltBookStorage) Exists(_ context.Context, id string) (bool, error) {
	var found bool
	err := bs.client.View(func(tx *bolt.Tx) error {
		found = bs.bucket(tx).Get([]byte(id)) != nil
		return nil
	})
	return found, err
}

// Update applies the mutation on the stored record into the same write transaction.
func (bs *boltBookStorage) Update(_ context.Context, id string, mutate func(*Book) error) (Book, error) {
	var book Book
	err := bs.client.Update(func(tx *bolt.Tx) error {
		b := bs.bucket(tx)
		result := b.Get([]byte(id))
		if result == nil {
			return ErrBookNotFound
		}
		if err := json.Unmarshal(result, &book); err != nil {
			return err
		}
		if err := mutate(&book); err != nil {
			return err
		}
		book.ID = id
		bookBytes, err := json.Marshal(book)
		if err != nil {
			return err
		}
		return b.Put([]byte(id), bookBytes)
	})
	return book, err
}

// Delete removes a book record based on its ID from boltdb store and returns it.
func (bs *boltBookStorage) Delete(_ context.Context, id string) (Book, error) {
	var book Book
	err := bs.client.Update(func(tx *bolt.Tx) error {
		b := bs.bucket(tx)
		result := b.Get([]byte(id))
		if result == nil {
			return ErrBookNotFound
		}
		if err := json.Unmarshal(result, &book); err != nil {
			return err
		}
		return b.Delete([]byte(id))
	})
	return book, err
}

// GetAll retrieves a list of all books stored in the bolt database.
func (bs *boltBookStorage) GetAll(_ context.Context) ([]Book, error) {
	tx, err := bs.client.Begin(false)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	// Create a cursor on the books' bucket.
	c := bs.bucket(tx).Cursor()

	books := []Book{}
	for k, v := c.First(); k != nil; k, v = c.Next() {
		var book Book
		if err = json.Unmarshal(v, &book); err != nil {
			return nil, err
		}
		books = append(books, book)
	}
	return books, nil
}

// Ping checks the books bucket is reachable.
func (bs *boltBookStorage) Ping(_ context.Context) error {
	return bs.client.View(func(tx *bolt.Tx) error {
		if bs.bucket(tx) == nil {
			return fmt.Errorf("bucket %s does not exist", bs.config.BucketName)
		}
		return nil
	})
}
