package main

import (
	"context"
	"encoding/json"
	"strings"
	"sync"
	"time"
)

// This file contains mocks definitions needed to perform unit tests.

type MockBookStorage struct {
	AddFunc    func(ctx context.Context, book Book) error
	GetOneFunc func(ctx context.Context, id string) (Book, error)
	ExistsFunc func(ctx context.Context, id string) (bool, error)
	UpdateFunc func(ctx context.Context, id string, mutate func(*Book) error) (Book, error)
	DeleteFunc func(ctx context.Context, id string) (Book, error)
	GetAllFunc func(ctx context.Context) ([]Book, error)
	PingFunc   func(ctx context.Context) error
}

// Add mocks the behavior of book creation by the repository.
func (m *MockBookStorage) Add(ctx context.Context, book Book) error {
	return m.AddFunc(ctx, book)
}

// GetOne mocks the behavior of retrieving a book by the repository.
func (m *MockBookStorage) GetOne(ctx context.Context, id string) (Book, error) {
	return m.GetOneFunc(ctx, id)
}

// Exists mocks the behavior of checking a book presence by the repository.
func (m *MockBookStorage) Exists(ctx context.Context, id string) (bool, error) {
	return m.ExistsFunc(ctx, id)
}

// Update mocks the behavior of updating a book by the repository.
func (m *MockBookStorage) Update(ctx context.Context, id string, mutate func(*Book) error) (Book, error) {
	return m.UpdateFunc(ctx, id, mutate)
}

// Delete mocks the behavior of deleting a book by the repository.
func (m *MockBookStorage) Delete(ctx context.Context, id string) (Book, error) {
	return m.DeleteFunc(ctx, id)
}

// GetAll mocks the behavior of retrieving all books by the repository.
func (m *MockBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	return m.GetAllFunc(ctx)
}

// Ping succeeds unless a PingFunc is set.
func (m *MockBookStorage) Ping(ctx context.Context) error {
	if m.PingFunc == nil {
		return nil
	}
	return m.PingFunc(ctx)
}

func (m *MockBookStorage) Close() error {
	return nil
}

// MockClocker implements a fake Clocker.
type MockClocker struct {
	MockNow time.Time
}

// NewMockClocker returns a mocked instance with fixed time.
func NewMockClocker() *MockClocker {
	return &MockClocker{time.Date(2023, 0o7, 0o2, 0o0, 0o0, 0o0, 0o00000000, time.UTC)}
}

// Now returns an already defined time to be used as mock. This
// equals to `Sun, 02 Jul 2023 00:00:00 UTC` in time.RFC1123 format.
func (mck *MockClocker) Now() time.Time {
	return mck.MockNow
}

// MockUIDHandler implements a fake UIDHandler.
type MockUIDHandler struct {
	MockedUID string
	Valid     bool
}

// NewMockUIDHandler returns a mocked instance with predictable id.
func NewMockUIDHandler(id string, valid bool) *MockUIDHandler {
	return &MockUIDHandler{MockedUID: id, Valid: valid}
}

// Generate constructs a predictable id to be used as mock.
func (muid *MockUIDHandler) Generate(prefix string) string {
	return prefix + ":" + muid.MockedUID
}

// IsValid mocks IsValid behavior by providing configured status.
func (muid *MockUIDHandler) IsValid(_, _ string) bool {
	return muid.Valid
}

// MockBookCache is an in-memory cache keeping json encoded entries.
type MockBookCache struct {
	mu      sync.Mutex
	entries map[string][]byte
	purges  int
}

func NewMockBookCache() *MockBookCache {
	return &MockBookCache{entries: make(map[string][]byte)}
}

func (mc *MockBookCache) Get(_ context.Context, key string, dst interface{}) (bool, error) {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	v, ok := mc.entries[key]
	if !ok {
		return false, nil
	}
	return true, json.Unmarshal(v, dst)
}

func (mc *MockBookCache) Set(_ context.Context, key string, value interface{}) error {
	v, err := json.Marshal(value)
	if err != nil {
		return err
	}
	mc.mu.Lock()
	mc.entries[key] = v
	mc.mu.Unlock()
	return nil
}

func (mc *MockBookCache) Delete(_ context.Context, keys ...string) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	for _, k := range keys {
		delete(mc.entries, k)
	}
	return nil
}

func (mc *MockBookCache) Purge(_ context.Context) error {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	mc.entries = make(map[string][]byte)
	mc.purges++
	return nil
}

// Has tells whether the key is cached.
func (mc *MockBookCache) Has(key string) bool {
	mc.mu.Lock()
	defer mc.mu.Unlock()
	_, ok := mc.entries[key]
	return ok
}

// MockQueue records pushed books and serves them back on Pop.
type MockQueue struct {
	mu     sync.Mutex
	pushed []queuedBook
}

type queuedBook struct {
	op   string
	book Book
}

func (mq *MockQueue) Push(_ context.Context, op string, book Book) error {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	mq.pushed = append(mq.pushed, queuedBook{op, book})
	return nil
}

// Pop returns the oldest pushed book. Once empty it waits for the context end.
func (mq *MockQueue) Pop(ctx context.Context) (string, Book, error) {
	mq.mu.Lock()
	if len(mq.pushed) > 0 {
		qb := mq.pushed[0]
		mq.pushed = mq.pushed[1:]
		mq.mu.Unlock()
		return qb.op, qb.book, nil
	}
	mq.mu.Unlock()
	<-ctx.Done()
	return "", Book{}, ctx.Err()
}

// Ops returns the operations of the pushed books in order.
func (mq *MockQueue) Ops() string {
	mq.mu.Lock()
	defer mq.mu.Unlock()
	ops := make([]string, 0, len(mq.pushed))
	for _, qb := range mq.pushed {
		ops = append(ops, qb.op)
	}
	return strings.Join(ops, ",")
}

// String, Float and Int return pointers to the given values.
func String(v string) *string { return &v }
func Float(v float64) *float64 { return &v }
func Int(v int) *int { return &v }
