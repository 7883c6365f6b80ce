package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// booksLockKey identifies the transaction-level advisory lock
// taken by every book creation to serialize duplicates checks.
const booksLockKey int64 = 0x626f6f6b73

const booksSchema = `
CREATE TABLE IF NOT EXISTS books (
	id               TEXT PRIMARY KEY,
	title            TEXT NOT NULL,
	author           TEXT NOT NULL,
	isbn             TEXT,
	description      TEXT,
	genre            TEXT,
	price            DOUBLE PRECISION,
	publication_year INTEGER,
	stock_quantity   INTEGER,
	available        BOOLEAN NOT NULL DEFAULT TRUE,
	created_at       TIMESTAMPTZ NOT NULL,
	updated_at       TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS books_author_idx ON books (author);
CREATE INDEX IF NOT EXISTS books_isbn_idx ON books (isbn) WHERE isbn IS NOT NULL;
`

const bookColumns = `id, title, author, isbn, description, genre, price,
	publication_year, stock_quantity, available, created_at, updated_at`

type postgresBookStorage struct {
	logger *zap.Logger
	pool   *pgxpool.Pool
}

// GetPostgresPool provides a ready to use connection pool with the books schema in place.
func GetPostgresPool(ctx context.Context, config *Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(config.Postgres.DSN)
	if err != nil {
		return nil, fmt.Errorf("failed to parse postgres dsn: %w", err)
	}
	if config.Postgres.MaxConns > 0 {
		poolConfig.MaxConns = config.Postgres.MaxConns
	}
	if config.Postgres.ConnectTimeout > 0 {
		poolConfig.ConnConfig.ConnectTimeout = config.Postgres.ConnectTimeout
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create postgres pool: %w", err)
	}
	if err = pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("test connection failed: %w", err)
	}
	if _, err = pool.Exec(ctx, booksSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to set up books schema: %w", err)
	}
	return pool, nil
}

// NewPostgresBookStorage provides an instance of postgres-based book storage.
func NewPostgresBookStorage(logger *zap.Logger, pool *pgxpool.Pool) BookStorage {
	return &postgresBookStorage{
		logger: logger,
		pool:   pool,
	}
}

func scanBook(row pgx.Row) (Book, error) {
	var b Book
	err := row.Scan(
		&b.ID, &b.Title, &b.Author, &b.ISBN, &b.Description, &b.Genre, &b.Price,
		&b.PublicationYear, &b.StockQuantity, &b.Available, &b.CreatedAt, &b.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return b, ErrBookNotFound
	}
	return b, err
}

// Add inserts a new book record. The advisory lock makes concurrent
// creations wait so the duplicates checks and the insert are atomic.
func (ps *postgresBookStorage) Add(ctx context.Context, book Book) error {
	return pgx.BeginFunc(ctx, ps.pool, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, "SELECT pg_advisory_xact_lock($1)", booksLockKey); err != nil {
			return err
		}

		var exists bool
		err := tx.QueryRow(ctx,
			`SELECT EXISTS(SELECT 1 FROM books WHERE lower(title) = lower($1) AND lower(author) = lower($2))`,
			book.Title, book.Author,
		).Scan(&exists)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateTitleAuthor
		}

		if book.ISBN != nil {
			err = tx.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM books WHERE isbn = $1)`, *book.ISBN).Scan(&exists)
			if err != nil {
				return err
			}
			if exists {
				return ErrDuplicateISBN
			}
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO books (`+bookColumns+`) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
			book.ID, book.Title, book.Author, book.ISBN, book.Description, book.Genre, book.Price,
			book.PublicationYear, book.StockQuantity, book.Available, book.CreatedAt, book.UpdatedAt,
		)
		return err
	})
}

// GetOne retrieves a book record based on its ID.
func (ps *postgresBookStorage) GetOne(ctx context.Context, id string) (Book, error) {
	return scanBook(ps.pool.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1`, id))
}

// Exists checks the presence of a book record.
func (ps *postgresBookStorage) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := ps.pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM books WHERE id = $1)`, id).Scan(&exists)
	return exists, err
}

// Update locks the row, applies the mutation then saves it within the same transaction.
func (ps *postgresBookStorage) Update(ctx context.Context, id string, mutate func(*Book) error) (Book, error) {
	var book Book
	err := pgx.BeginFunc(ctx, ps.pool, func(tx pgx.Tx) error {
		var err error
		book, err = scanBook(tx.QueryRow(ctx, `SELECT `+bookColumns+` FROM books WHERE id = $1 FOR UPDATE`, id))
		if err != nil {
			return err
		}
		if err = mutate(&book); err != nil {
			return err
		}
		book.ID = id
		_, err = tx.Exec(ctx,
			`UPDATE books SET title = $2, author = $3, isbn = $4, description = $5, genre = $6, price = $7,
				publication_year = $8, stock_quantity = $9, available = $10, updated_at = $11
			WHERE id = $1`,
			id, book.Title, book.Author, book.ISBN, book.Description, book.Genre, book.Price,
			book.PublicationYear, book.StockQuantity, book.Available, book.UpdatedAt,
		)
		return err
	})
	return book, err
}

// Delete removes a book record based on its ID and returns it.
func (ps *postgresBookStorage) Delete(ctx context.Context, id string) (Book, error) {
	return scanBook(ps.pool.QueryRow(ctx, `DELETE FROM books WHERE id = $1 RETURNING `+bookColumns, id))
}

// GetAll retrieves a list of all books stored in the books table.
func (ps *postgresBookStorage) GetAll(ctx context.Context) ([]Book, error) {
	rows, err := ps.pool.Query(ctx, `SELECT `+bookColumns+` FROM books`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (Book, error) {
		return scanBook(row)
	})
}

// Ping checks the database connectivity.
func (ps *postgresBookStorage) Ping(ctx context.Context) error {
	return ps.pool.Ping(ctx)
}

// Close releases all pool connections.
func (ps *postgresBookStorage) Close() error {
	ps.pool.Close()
	return nil
}
