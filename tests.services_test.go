package main

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// newTestBookService returns a service backed by a temporary bolt store.
func newTestBookService(t *testing.T) (*BookService, *MockBookCache, *MockQueue) {
	t.Helper()
	store, err := newTestBoltStore()
	require.NoError(t, err, "failed in creating a test bolt store")
	t.Cleanup(func() { store.closeTestBoltStore() })

	cache, queue := NewMockBookCache(), &MockQueue{}
	bs := NewBookService(zap.NewNop(), nil, NewMockClocker(), NewIDsHandler(), store, cache, queue)
	return bs.(*BookService), cache, queue
}

func TestBookService_Add(t *testing.T) {
	bs, cache, queue := newTestBookService(t)
	ctx := context.Background()

	book, err := bs.Add(ctx, BookPayload{Title: "Dune", Author: "Frank Herbert", ISBN: String("111")})
	require.NoError(t, err)
	assert.True(t, NewIDsHandler().IsValid(book.ID, BookIDPrefix))
	assert.True(t, book.Available)
	assert.Equal(t, NewMockClocker().Now(), book.CreatedAt)
	assert.Equal(t, book.CreatedAt, book.UpdatedAt)
	assert.Equal(t, 1, cache.purges)
	assert.Equal(t, OpCreate, queue.Ops())

	t.Run("duplicate title and author", func(t *testing.T) {
		_, err := bs.Add(ctx, BookPayload{Title: "dune", Author: "FRANK HERBERT"})
		assert.ErrorIs(t, err, ErrDuplicateTitleAuthor)
		assert.ErrorIs(t, err, ErrConflict)
	})

	t.Run("duplicate isbn", func(t *testing.T) {
		_, err := bs.Add(ctx, BookPayload{Title: "Children of Dune", Author: "Frank Herbert", ISBN: String("111")})
		assert.ErrorIs(t, err, ErrDuplicateISBN)
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := bs.Add(ctx, BookPayload{Title: "No author"})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	// failed creations are neither cached nor published.
	assert.Equal(t, 1, cache.purges)
	assert.Equal(t, OpCreate, queue.Ops())
}

func TestBookService_Update(t *testing.T) {
	bs, cache, queue := newTestBookService(t)
	ctx := context.Background()

	dune, err := bs.Add(ctx, BookPayload{Title: "Dune", Author: "Frank Herbert", Price: Float(15)})
	require.NoError(t, err)
	other, err := bs.Add(ctx, BookPayload{Title: "Other", Author: "Anon"})
	require.NoError(t, err)

	// warm up the cache.
	_, err = bs.GetOne(ctx, dune.ID)
	require.NoError(t, err)
	_, err = bs.GetOne(ctx, other.ID)
	require.NoError(t, err)
	_, err = bs.GetByAuthor(ctx, "Frank Herbert")
	require.NoError(t, err)
	_, err = bs.GetByAuthor(ctx, "Anon")
	require.NoError(t, err)
	_, err = bs.Statistics(ctx)
	require.NoError(t, err)
	for _, key := range []string{CacheKeyBook(dune.ID), CacheKeyBook(other.ID), CacheKeyAllBooks, CacheKeyStats, CacheKeyAuthor("Frank Herbert"), CacheKeyAuthor("Anon")} {
		require.True(t, cache.Has(key), key)
	}

	updated, err := bs.Update(ctx, dune.ID, BookPayload{Title: "Dune", Author: "F. Herbert"})
	require.NoError(t, err)
	assert.Equal(t, "F. Herbert", updated.Author)
	assert.Equal(t, 15.0, *updated.Price)

	assert.False(t, cache.Has(CacheKeyBook(dune.ID)))
	assert.False(t, cache.Has(CacheKeyAllBooks))
	assert.False(t, cache.Has(CacheKeyStats))
	assert.False(t, cache.Has(CacheKeyAuthor("Frank Herbert")))
	// unrelated entries survive.
	assert.True(t, cache.Has(CacheKeyBook(other.ID)))
	assert.True(t, cache.Has(CacheKeyAuthor("Anon")))

	books, err := bs.GetByAuthor(ctx, "F. Herbert")
	require.NoError(t, err)
	assert.Equal(t, []string{dune.ID}, bookIDs(books))
	books, err = bs.GetByAuthor(ctx, "Frank Herbert")
	require.NoError(t, err)
	assert.Empty(t, books)

	assert.Equal(t, OpCreate+","+OpCreate+","+OpUpdate, queue.Ops())

	t.Run("not found", func(t *testing.T) {
		_, err := bs.Update(ctx, "b:unknown", BookPayload{Title: "x", Author: "y"})
		assert.ErrorIs(t, err, ErrBookNotFound)
	})

	t.Run("invalid payload", func(t *testing.T) {
		_, err := bs.Update(ctx, dune.ID, BookPayload{Price: Float(-3)})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})
}

func TestBookService_Delete(t *testing.T) {
	bs, cache, queue := newTestBookService(t)
	ctx := context.Background()

	book, err := bs.Add(ctx, BookPayload{Title: "Dune", Author: "Frank Herbert"})
	require.NoError(t, err)
	_, err = bs.GetAll(ctx, "", "")
	require.NoError(t, err)
	require.True(t, cache.Has(CacheKeyAllBooks))

	deleted, err := bs.Delete(ctx, book.ID)
	require.NoError(t, err)
	assert.Equal(t, book, deleted)
	assert.False(t, cache.Has(CacheKeyAllBooks))
	assert.Equal(t, 2, cache.purges)
	assert.Equal(t, OpCreate+","+OpDelete, queue.Ops())

	_, err = bs.GetOne(ctx, book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
	found, err := bs.Exists(ctx, book.ID)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = bs.Delete(ctx, book.ID)
	assert.ErrorIs(t, err, ErrBookNotFound)
}

func TestBookService_ReadThroughCache(t *testing.T) {
	var calls atomic.Int32
	storage := &MockBookStorage{
		GetAllFunc: func(ctx context.Context) ([]Book, error) {
			calls.Add(1)
			return catalogFixture(), nil
		},
	}
	bs := NewBookService(zap.NewNop(), nil, NewMockClocker(), NewMockUIDHandler("abc", true), storage, NewMockBookCache(), nil)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		books, err := bs.GetAll(ctx, "title", "asc")
		require.NoError(t, err)
		assert.Equal(t, []string{"b:2", "b:1", "b:3", "b:4"}, bookIDs(books))
	}

	_, err := bs.Search(ctx, BookFilter{Genre: String("Sci-Fi")}, PageRequest{Size: 10})
	require.NoError(t, err)
	_, err = bs.Statistics(ctx)
	require.NoError(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

// TestBookService_LoadAfterWrite ensures a read issued after a creation returned
// does not share the result of a load started before that creation.
func TestBookService_LoadAfterWrite(t *testing.T) {
	entered, release := make(chan struct{}), make(chan struct{})
	var calls atomic.Int32
	stored := catalogFixture()
	storage := &MockBookStorage{
		AddFunc: func(ctx context.Context, book Book) error {
			return nil
		},
		GetAllFunc: func(ctx context.Context) ([]Book, error) {
			if calls.Add(1) == 1 {
				close(entered)
				<-release
				return stored, nil
			}
			return append(catalogFixture(), Book{ID: "b:abc", Title: "New", Author: "Author"}), nil
		},
	}
	cache := NewMockBookCache()
	bs := NewBookService(zap.NewNop(), nil, NewMockClocker(), NewMockUIDHandler("abc", true), storage, cache, nil)
	ctx := context.Background()

	stale := make(chan []Book, 1)
	go func() {
		books, _ := bs.GetAll(ctx, "", "")
		stale <- books
	}()
	<-entered

	_, err := bs.Add(ctx, BookPayload{Title: "New", Author: "Author"})
	require.NoError(t, err)

	books, err := bs.GetAll(ctx, "", "")
	require.NoError(t, err)
	assert.Len(t, books, 5)
	assert.Equal(t, int32(2), calls.Load())

	close(release)
	assert.Len(t, <-stale, 4)
	// the load started before the creation is not cached.
	var cached []Book
	hit, err := cache.Get(ctx, CacheKeyAllBooks, &cached)
	require.NoError(t, err)
	assert.True(t, hit)
	assert.Len(t, cached, 5)
}

func TestBookService_StorageFailure(t *testing.T) {
	storage := &MockBookStorage{
		GetAllFunc: func(ctx context.Context) ([]Book, error) {
			return nil, errors.New("storage down")
		},
	}
	cache := NewMockBookCache()
	bs := NewBookService(zap.NewNop(), nil, NewMockClocker(), NewMockUIDHandler("abc", true), storage, cache, nil)

	_, err := bs.GetAll(context.Background(), "", "")
	assert.EqualError(t, err, "storage down")
	assert.False(t, cache.Has(CacheKeyAllBooks))
}

func TestBookService_Queries(t *testing.T) {
	storage := &MockBookStorage{
		GetAllFunc: func(ctx context.Context) ([]Book, error) {
			return catalogFixture(), nil
		},
	}
	bs := NewBookService(zap.NewNop(), nil, NewMockClocker(), NewMockUIDHandler("abc", true), storage, nil, nil)
	ctx := context.Background()

	t.Run("get all keeps storage order", func(t *testing.T) {
		books, err := bs.GetAll(ctx, "", "")
		require.NoError(t, err)
		assert.Equal(t, []string{"b:1", "b:2", "b:3", "b:4"}, bookIDs(books))
	})

	t.Run("get all sorted", func(t *testing.T) {
		books, err := bs.GetAll(ctx, "", "desc")
		require.NoError(t, err)
		assert.Equal(t, []string{"b:1", "b:3", "b:2", "b:4"}, bookIDs(books))
		_, err = bs.GetAll(ctx, "rating", "")
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("page", func(t *testing.T) {
		page, err := bs.GetPage(ctx, PageRequest{Page: 1, Size: 3})
		require.NoError(t, err)
		assert.Equal(t, []string{"b:1"}, bookIDs(page.Books))
		assert.Equal(t, int64(4), page.TotalItems)
		assert.Equal(t, 2, page.TotalPages)
		_, err = bs.GetPage(ctx, PageRequest{Size: 0})
		assert.ErrorIs(t, err, ErrInvalidRequest)
	})

	t.Run("by author is exact", func(t *testing.T) {
		books, err := bs.GetByAuthor(ctx, "Frank Herbert")
		require.NoError(t, err)
		assert.Equal(t, []string{"b:1"}, bookIDs(books))
		books, err = bs.GetByAuthor(ctx, "Nobody")
		require.NoError(t, err)
		assert.NotNil(t, books)
		assert.Empty(t, books)
	})

	t.Run("available", func(t *testing.T) {
		page, err := bs.GetAvailable(ctx, PageRequest{Size: 10, SortBy: "title"})
		require.NoError(t, err)
		assert.Equal(t, []string{"b:2", "b:1", "b:4"}, bookIDs(page.Books))
	})

	t.Run("search", func(t *testing.T) {
		page, err := bs.Search(ctx, BookFilter{Genre: String("sci-fi"), MinPrice: Float(10)}, PageRequest{Size: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"b:1"}, bookIDs(page.Books))
	})

	t.Run("text search", func(t *testing.T) {
		page, err := bs.TextSearch(ctx, "java", PageRequest{Size: 10})
		require.NoError(t, err)
		assert.Equal(t, []string{"b:3"}, bookIDs(page.Books))

		_, err = bs.TextSearch(ctx, "   ", PageRequest{Size: 10})
		assert.ErrorIs(t, err, ErrInvalidRequest)
		assert.EqualError(t, err, "q is required")
	})

	t.Run("statistics", func(t *testing.T) {
		stats, err := bs.Statistics(ctx)
		require.NoError(t, err)
		assert.Equal(t, int64(4), stats.TotalBooks)
		assert.Equal(t, NewMockClocker().Now(), stats.GeneratedAt)
	})
}
