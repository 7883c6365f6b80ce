package main

import (
	"context"
	"strings"
	"sync"
	"sync/atomic"

	"go.uber.org/zap"
	"golang.org/x/sync/singleflight"
)

// BookServiceProvider defines the catalog operations exposed to the api handlers.
type BookServiceProvider interface {
	Add(ctx context.Context, payload BookPayload) (Book, error)
	GetOne(ctx context.Context, id string) (Book, error)
	Exists(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, id string, payload BookPayload) (Book, error)
	Delete(ctx context.Context, id string) (Book, error)
	GetAll(ctx context.Context, sortBy, sortDir string) ([]Book, error)
	GetPage(ctx context.Context, pr PageRequest) (BookPage, error)
	GetByAuthor(ctx context.Context, author string) ([]Book, error)
	GetAvailable(ctx context.Context, pr PageRequest) (BookPage, error)
	Search(ctx context.Context, filter BookFilter, pr PageRequest) (BookPage, error)
	TextSearch(ctx context.Context, term string, pr PageRequest) (BookPage, error)
	Statistics(ctx context.Context) (CatalogStatistics, error)
	Ping(ctx context.Context) error
}

type BookService struct {
	logger     *zap.Logger
	config     *Config
	clock      Clocker
	idsHandler UIDHandler
	storage    BookStorage
	cache      BookCacher
	queue      Queuer
	group      singleflight.Group
	inflight   sync.Map
	generation atomic.Uint64
}

// NewBookService provides the catalog service. A nil cache disables caching
// and a nil queue disables the publication of writes to the mirror.
func NewBookService(logger *zap.Logger, config *Config, clock Clocker, idsHandler UIDHandler, storage BookStorage, cache BookCacher, queue Queuer) BookServiceProvider {
	if cache == nil {
		cache = NewNoopBookCache()
	}
	return &BookService{
		logger:     logger,
		config:     config,
		clock:      clock,
		idsHandler: idsHandler,
		storage:    storage,
		cache:      cache,
		queue:      queue,
	}
}

// loadThrough serves the key from the cache or loads it once for all concurrent
// callers. A loaded value is not cached when a write happened during its loading.
func loadThrough[T any](ctx context.Context, bs *BookService, key string, load func(context.Context) (T, error)) (T, error) {
	var value T
	hit, err := bs.cache.Get(ctx, key, &value)
	if err != nil {
		bs.logger.Warn("service: failed to read from cache", zap.String("cache.key", key), zap.Error(err))
	}
	if hit {
		return value, nil
	}

	res, err, _ := bs.group.Do(key, func() (interface{}, error) {
		token := new(struct{})
		bs.inflight.Store(key, token)
		defer bs.inflight.CompareAndDelete(key, token)
		gen := bs.generation.Load()
		v, lerr := load(ctx)
		if lerr != nil {
			return v, lerr
		}
		if bs.generation.Load() == gen {
			if serr := bs.cache.Set(ctx, key, v); serr != nil {
				bs.logger.Warn("service: failed to write to cache", zap.String("cache.key", key), zap.Error(serr))
			}
		}
		return v, nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return res.(T), nil
}

// invalidate drops the given cache keys or the whole cache when none is given.
// Loads in flight for the dropped keys are forgotten so later callers do not
// join a load started before the write.
func (bs *BookService) invalidate(ctx context.Context, keys ...string) {
	bs.generation.Add(1)
	for _, k := range keys {
		bs.group.Forget(k)
	}
	var err error
	if len(keys) == 0 {
		bs.inflight.Range(func(k, _ interface{}) bool {
			bs.group.Forget(k.(string))
			return true
		})
		err = bs.cache.Purge(ctx)
	} else {
		err = bs.cache.Delete(ctx, keys...)
	}
	if err != nil {
		bs.logger.Error("service: failed to invalidate cache", zap.Strings("cache.keys", keys), zap.Error(err))
	}
}

// publish pushes the committed write to the mirror queue if enabled.
func (bs *BookService) publish(ctx context.Context, op string, book Book) {
	if bs.queue == nil {
		return
	}
	if err := bs.queue.Push(ctx, op, book); err != nil {
		bs.logger.Error("service: failed to push book to queue", zap.String("op", op), zap.String("book.id", book.ID), zap.Error(err))
	}
}

// allBooks returns the cached books list. The slice may be shared with
// concurrent callers so it must be copied before any reordering.
func (bs *BookService) allBooks(ctx context.Context) ([]Book, error) {
	return loadThrough(ctx, bs, CacheKeyAllBooks, bs.storage.GetAll)
}

func cloneBooks(books []Book) []Book {
	return append(make([]Book, 0, len(books)), books...)
}

func (bs *BookService) Add(ctx context.Context, payload BookPayload) (Book, error) {
	if err := ValidateCreateBookPayload(&payload); err != nil {
		return Book{}, err
	}
	book := NewBookFromPayload(bs.idsHandler.Generate(BookIDPrefix), payload, bs.clock.Now().UTC())
	if err := bs.storage.Add(ctx, book); err != nil {
		return Book{}, err
	}
	bs.invalidate(ctx)
	bs.publish(ctx, OpCreate, book)
	return book, nil
}

func (bs *BookService) GetOne(ctx context.Context, id string) (Book, error) {
	return loadThrough(ctx, bs, CacheKeyBook(id), func(ctx context.Context) (Book, error) {
		return bs.storage.GetOne(ctx, id)
	})
}

func (bs *BookService) Exists(ctx context.Context, id string) (bool, error) {
	return bs.storage.Exists(ctx, id)
}

// Update applies the partial update. Only the entries the update can affect are evicted.
func (bs *BookService) Update(ctx context.Context, id string, payload BookPayload) (Book, error) {
	if err := ValidateUpdateBookPayload(&payload); err != nil {
		return Book{}, err
	}
	var oldAuthor string
	now := bs.clock.Now().UTC()
	book, err := bs.storage.Update(ctx, id, func(b *Book) error {
		oldAuthor = b.Author
		b.ApplyUpdate(payload, now)
		return nil
	})
	if err != nil {
		return Book{}, err
	}
	bs.invalidate(ctx,
		CacheKeyBook(id),
		CacheKeyAllBooks,
		CacheKeyStats,
		CacheKeyAuthor(oldAuthor),
		CacheKeyAuthor(book.Author),
	)
	bs.publish(ctx, OpUpdate, book)
	return book, nil
}

func (bs *BookService) Delete(ctx context.Context, id string) (Book, error) {
	book, err := bs.storage.Delete(ctx, id)
	if err != nil {
		return Book{}, err
	}
	bs.invalidate(ctx)
	bs.publish(ctx, OpDelete, book)
	return book, nil
}

// GetAll returns every book. The order is the storage one unless a sort is requested.
func (bs *BookService) GetAll(ctx context.Context, sortBy, sortDir string) ([]Book, error) {
	books, err := bs.allBooks(ctx)
	if err != nil {
		return nil, err
	}
	books = cloneBooks(books)
	if sortBy == "" && sortDir == "" {
		return books, nil
	}
	if sortBy == "" {
		sortBy = DefaultSortField
	}
	if err = SortBooks(books, sortBy, sortDir); err != nil {
		return nil, err
	}
	return books, nil
}

func (bs *BookService) GetPage(ctx context.Context, pr PageRequest) (BookPage, error) {
	if err := pr.Validate(); err != nil {
		return BookPage{}, err
	}
	books, err := bs.allBooks(ctx)
	if err != nil {
		return BookPage{}, err
	}
	return Paginate(cloneBooks(books), pr)
}

// GetByAuthor returns the books whose author exactly matches the given one.
func (bs *BookService) GetByAuthor(ctx context.Context, author string) ([]Book, error) {
	return loadThrough(ctx, bs, CacheKeyAuthor(author), func(ctx context.Context) ([]Book, error) {
		books, err := bs.allBooks(ctx)
		if err != nil {
			return nil, err
		}
		return Filter(books, AuthorIs(author)), nil
	})
}

func (bs *BookService) GetAvailable(ctx context.Context, pr PageRequest) (BookPage, error) {
	return bs.Search(ctx, BookFilter{Available: Bool(true)}, pr)
}

func (bs *BookService) Search(ctx context.Context, filter BookFilter, pr PageRequest) (BookPage, error) {
	if err := pr.Validate(); err != nil {
		return BookPage{}, err
	}
	books, err := bs.allBooks(ctx)
	if err != nil {
		return BookPage{}, err
	}
	return Paginate(Filter(books, filter.Predicate()), pr)
}

// TextSearch matches the term against title, author, description and genre.
func (bs *BookService) TextSearch(ctx context.Context, term string, pr PageRequest) (BookPage, error) {
	if strings.TrimSpace(term) == "" {
		return BookPage{}, missingFieldError("q")
	}
	if err := pr.Validate(); err != nil {
		return BookPage{}, err
	}
	books, err := bs.allBooks(ctx)
	if err != nil {
		return BookPage{}, err
	}
	return Paginate(Filter(books, TextMatches(term)), pr)
}

func (bs *BookService) Statistics(ctx context.Context) (CatalogStatistics, error) {
	return loadThrough(ctx, bs, CacheKeyStats, func(ctx context.Context) (CatalogStatistics, error) {
		books, err := bs.allBooks(ctx)
		if err != nil {
			return CatalogStatistics{}, err
		}
		return ComputeStatistics(books, bs.clock.Now().UTC()), nil
	})
}

// Ping checks the storage reachability.
func (bs *BookService) Ping(ctx context.Context) error {
	return bs.storage.Ping(ctx)
}

// Bool returns a pointer to the given value.
func Bool(v bool) *bool {
	return &v
}
