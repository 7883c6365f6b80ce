package main

import (
	"context"
	"strings"
	"time"
)

// Book represents a book entity of the catalog. Optional
// fields are pointers so that absence is distinct from zero.
type Book struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	Author          string    `json:"author"`
	ISBN            *string   `json:"isbn"`
	Description     *string   `json:"description"`
	Genre           *string   `json:"genre"`
	Price           *float64  `json:"price"`
	PublicationYear *int      `json:"publicationYear"`
	StockQuantity   *int      `json:"stockQuantity"`
	Available       bool      `json:"available"`
	CreatedAt       time.Time `json:"createdAt"`
	UpdatedAt       time.Time `json:"updatedAt"`
}

// BookPayload is the body of create and update requests.
type BookPayload struct {
	Title           string   `json:"title"`
	Author          string   `json:"author"`
	ISBN            *string  `json:"isbn"`
	Description     *string  `json:"description"`
	Genre           *string  `json:"genre"`
	Price           *float64 `json:"price"`
	PublicationYear *int     `json:"publicationYear"`
	StockQuantity   *int     `json:"stockQuantity"`
	Available       *bool    `json:"available"`
}

// NewBookFromPayload builds a new book record. The book is
// available unless the payload explicitly states otherwise.
func NewBookFromPayload(id string, p BookPayload, now time.Time) Book {
	book := Book{
		ID:              id,
		Title:           p.Title,
		Author:          p.Author,
		ISBN:            p.ISBN,
		Description:     p.Description,
		Genre:           p.Genre,
		Price:           p.Price,
		PublicationYear: p.PublicationYear,
		StockQuantity:   p.StockQuantity,
		Available:       true,
		CreatedAt:       now,
		UpdatedAt:       now,
	}
	if p.Available != nil {
		book.Available = *p.Available
	}
	return book
}

// ApplyUpdate overwrites the book fields with the payload ones. Title and
// author are always replaced, the remaining fields only when present.
func (b *Book) ApplyUpdate(p BookPayload, now time.Time) {
	b.Title = p.Title
	b.Author = p.Author
	if p.ISBN != nil {
		b.ISBN = p.ISBN
	}
	if p.Description != nil {
		b.Description = p.Description
	}
	if p.PublicationYear != nil {
		b.PublicationYear = p.PublicationYear
	}
	if p.Genre != nil {
		b.Genre = p.Genre
	}
	if p.Price != nil {
		b.Price = p.Price
	}
	if p.StockQuantity != nil {
		b.StockQuantity = p.StockQuantity
	}
	if p.Available != nil {
		b.Available = *p.Available
	}
	b.UpdatedAt = now
}

// SameTitleAndAuthor reports whether both books share the same
// title and author pair regardless of the letters case.
func (b *Book) SameTitleAndAuthor(other *Book) bool {
	return strings.EqualFold(b.Title, other.Title) && strings.EqualFold(b.Author, other.Author)
}

// SameISBN reports whether both books carry the same non-null isbn.
func (b *Book) SameISBN(other *Book) bool {
	return b.ISBN != nil && other.ISBN != nil && *b.ISBN == *other.ISBN
}

// CheckUniqueness returns the conflict error raised by adding
// the candidate book into a catalog made of the existing book.
func CheckUniqueness(existing, candidate *Book) error {
	if existing.SameTitleAndAuthor(candidate) {
		return ErrDuplicateTitleAuthor
	}
	if existing.SameISBN(candidate) {
		return ErrDuplicateISBN
	}
	return nil
}

// BookStorage defines possible operations on book entity. Add must check both
// uniqueness invariants atomically with the insertion. Update must apply the
// mutation atomically with the fetch of the current record.
type BookStorage interface {
	Add(ctx context.Context, book Book) error
	GetOne(ctx context.Context, id string) (Book, error)
	Exists(ctx context.Context, id string) (bool, error)
	Update(ctx context.Context, id string, mutate func(*Book) error) (Book, error)
	Delete(ctx context.Context, id string) (Book, error)
	GetAll(ctx context.Context) ([]Book, error)
	Ping(ctx context.Context) error
	Close() error
}
