package main

import (
	"math"
	"sort"
	"strings"
)

const (
	DefaultSortField = "createdAt"
	SortAsc          = "asc"
	SortDesc         = "desc"
)

// Predicate reports whether a book belongs to a result set.
type Predicate func(b *Book) bool

// All combines predicates with a logical AND. No predicate matches every book.
func All(preds ...Predicate) Predicate {
	return func(b *Book) bool {
		for _, p := range preds {
			if !p(b) {
				return false
			}
		}
		return true
	}
}

// Any combines predicates with a logical OR. No predicate matches nothing.
func Any(preds ...Predicate) Predicate {
	return func(b *Book) bool {
		for _, p := range preds {
			if p(b) {
				return true
			}
		}
		return false
	}
}

// containsFold reports whether substr is within s regardless of the case.
func containsFold(s, substr string) bool {
	return strings.Contains(strings.ToLower(s), strings.ToLower(substr))
}

func TitleContains(s string) Predicate {
	return func(b *Book) bool { return containsFold(b.Title, s) }
}

func AuthorContains(s string) Predicate {
	return func(b *Book) bool { return containsFold(b.Author, s) }
}

func GenreContains(s string) Predicate {
	return func(b *Book) bool { return b.Genre != nil && containsFold(*b.Genre, s) }
}

func DescriptionContains(s string) Predicate {
	return func(b *Book) bool { return b.Description != nil && containsFold(*b.Description, s) }
}

func AuthorIs(author string) Predicate {
	return func(b *Book) bool { return b.Author == author }
}

func AvailableIs(v bool) Predicate {
	return func(b *Book) bool { return b.Available == v }
}

func PriceAtLeast(v float64) Predicate {
	return func(b *Book) bool { return b.Price != nil && *b.Price >= v }
}

func PriceAtMost(v float64) Predicate {
	return func(b *Book) bool { return b.Price != nil && *b.Price <= v }
}

func YearAtLeast(v int) Predicate {
	return func(b *Book) bool { return b.PublicationYear != nil && *b.PublicationYear >= v }
}

func YearAtMost(v int) Predicate {
	return func(b *Book) bool { return b.PublicationYear != nil && *b.PublicationYear <= v }
}

// TextMatches matches a keyword against title, author, description and genre.
func TextMatches(keyword string) Predicate {
	return Any(
		TitleContains(keyword),
		AuthorContains(keyword),
		DescriptionContains(keyword),
		GenreContains(keyword),
	)
}

// BookFilter holds the multi-criteria search inputs.
// A nil field imposes no constraint on the result.
type BookFilter struct {
	Title     *string
	Author    *string
	Genre     *string
	MinPrice  *float64
	MaxPrice  *float64
	MinYear   *int
	MaxYear   *int
	Available *bool
}

// Predicate builds the conjunction of all present criteria.
func (f BookFilter) Predicate() Predicate {
	var preds []Predicate
	if f.Title != nil {
		preds = append(preds, TitleContains(*f.Title))
	}
	if f.Author != nil {
		preds = append(preds, AuthorContains(*f.Author))
	}
	if f.Genre != nil {
		preds = append(preds, GenreContains(*f.Genre))
	}
	if f.MinPrice != nil {
		preds = append(preds, PriceAtLeast(*f.MinPrice))
	}
	if f.MaxPrice != nil {
		preds = append(preds, PriceAtMost(*f.MaxPrice))
	}
	if f.MinYear != nil {
		preds = append(preds, YearAtLeast(*f.MinYear))
	}
	if f.MaxYear != nil {
		preds = append(preds, YearAtMost(*f.MaxYear))
	}
	if f.Available != nil {
		preds = append(preds, AvailableIs(*f.Available))
	}
	return All(preds...)
}

// Echo returns the filter values used, with an empty string for absent ones.
func (f BookFilter) Echo() map[string]interface{} {
	echo := map[string]interface{}{
		"title":     "",
		"author":    "",
		"genre":     "",
		"minPrice":  "",
		"maxPrice":  "",
		"minYear":   "",
		"maxYear":   "",
		"available": "",
	}
	if f.Title != nil {
		echo["title"] = *f.Title
	}
	if f.Author != nil {
		echo["author"] = *f.Author
	}
	if f.Genre != nil {
		echo["genre"] = *f.Genre
	}
	if f.MinPrice != nil {
		echo["minPrice"] = *f.MinPrice
	}
	if f.MaxPrice != nil {
		echo["maxPrice"] = *f.MaxPrice
	}
	if f.MinYear != nil {
		echo["minYear"] = *f.MinYear
	}
	if f.MaxYear != nil {
		echo["maxYear"] = *f.MaxYear
	}
	if f.Available != nil {
		echo["available"] = *f.Available
	}
	return echo
}

// Filter returns the books matching the predicate, keeping their order.
func Filter(books []Book, pred Predicate) []Book {
	result := make([]Book, 0, len(books))
	for i := range books {
		if pred(&books[i]) {
			result = append(result, books[i])
		}
	}
	return result
}

// compareFunc returns -1, 0 or +1. Null values come first.
type compareFunc func(a, b *Book) int

func compareStrings(a, b string) int {
	return strings.Compare(a, b)
}

func compareOptString(a, b *string) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	}
	return strings.Compare(*a, *b)
}

func compareOptInt(a, b *int) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

func compareOptFloat(a, b *float64) int {
	switch {
	case a == nil && b == nil:
		return 0
	case a == nil:
		return -1
	case b == nil:
		return 1
	case *a < *b:
		return -1
	case *a > *b:
		return 1
	}
	return 0
}

func compareBool(a, b bool) int {
	switch {
	case a == b:
		return 0
	case !a:
		return -1
	}
	return 1
}

// sortFields lists the fields books can be ordered by.
var sortFields = map[string]compareFunc{
	"id":              func(a, b *Book) int { return compareStrings(a.ID, b.ID) },
	"title":           func(a, b *Book) int { return compareStrings(a.Title, b.Title) },
	"author":          func(a, b *Book) int { return compareStrings(a.Author, b.Author) },
	"isbn":            func(a, b *Book) int { return compareOptString(a.ISBN, b.ISBN) },
	"description":     func(a, b *Book) int { return compareOptString(a.Description, b.Description) },
	"genre":           func(a, b *Book) int { return compareOptString(a.Genre, b.Genre) },
	"price":           func(a, b *Book) int { return compareOptFloat(a.Price, b.Price) },
	"publicationYear": func(a, b *Book) int { return compareOptInt(a.PublicationYear, b.PublicationYear) },
	"stockQuantity":   func(a, b *Book) int { return compareOptInt(a.StockQuantity, b.StockQuantity) },
	"available":       func(a, b *Book) int { return compareBool(a.Available, b.Available) },
	"createdAt":       func(a, b *Book) int { return a.CreatedAt.Compare(b.CreatedAt) },
	"updatedAt":       func(a, b *Book) int { return a.UpdatedAt.Compare(b.UpdatedAt) },
}

// IsSortField reports whether books can be ordered by the given field.
func IsSortField(field string) bool {
	_, ok := sortFields[field]
	return ok
}

// SortBooks orders the books in place. Ties are broken by id
// in the same direction so the order is deterministic.
func SortBooks(books []Book, field, direction string) error {
	cmp, ok := sortFields[field]
	if !ok {
		return NewInvalidFieldError("sortBy", "has unknown value "+field)
	}
	desc := false
	switch strings.ToLower(direction) {
	case "", SortAsc:
	case SortDesc:
		desc = true
	default:
		return NewInvalidFieldError("sortDir", "must be asc or desc")
	}
	sort.SliceStable(books, func(i, j int) bool {
		c := cmp(&books[i], &books[j])
		if c == 0 {
			c = compareStrings(books[i].ID, books[j].ID)
		}
		if desc {
			return c > 0
		}
		return c < 0
	})
	return nil
}

// PageRequest describes the page to extract from a result set.
type PageRequest struct {
	Page    int
	Size    int
	SortBy  string
	SortDir string
}

// Validate checks the pagination inputs and fills the sort defaults.
func (pr *PageRequest) Validate() error {
	if pr.Page < 0 {
		return NewInvalidFieldError("page", "must be greater than or equal to 0")
	}
	if pr.Size < 1 {
		return NewInvalidFieldError("size", "must be greater than or equal to 1")
	}
	if pr.SortBy == "" {
		pr.SortBy = DefaultSortField
	}
	if !IsSortField(pr.SortBy) {
		return NewInvalidFieldError("sortBy", "has unknown value "+pr.SortBy)
	}
	pr.SortDir = strings.ToLower(pr.SortDir)
	if pr.SortDir == "" {
		pr.SortDir = SortAsc
	}
	if pr.SortDir != SortAsc && pr.SortDir != SortDesc {
		return NewInvalidFieldError("sortDir", "must be asc or desc")
	}
	return nil
}

// BookPage is a bounded slice of a sorted result set with its position.
type BookPage struct {
	Books       []Book `json:"books"`
	CurrentPage int    `json:"currentPage"`
	TotalItems  int64  `json:"totalItems"`
	TotalPages  int    `json:"totalPages"`
	PageSize    int    `json:"pageSize"`
	HasNext     bool   `json:"hasNext"`
	HasPrevious bool   `json:"hasPrevious"`
}

// Paginate sorts the books then extracts the requested page. The
// books slice is reordered. A page past the end is empty.
func Paginate(books []Book, pr PageRequest) (BookPage, error) {
	if err := pr.Validate(); err != nil {
		return BookPage{}, err
	}
	if err := SortBooks(books, pr.SortBy, pr.SortDir); err != nil {
		return BookPage{}, err
	}

	total := len(books)
	totalPages := int(math.Ceil(float64(total) / float64(pr.Size)))
	page := BookPage{
		Books:       []Book{},
		CurrentPage: pr.Page,
		TotalItems:  int64(total),
		TotalPages:  totalPages,
		PageSize:    pr.Size,
		HasNext:     pr.Page < totalPages-1,
		HasPrevious: pr.Page > 0,
	}

	// checked before multiplying so a huge page index cannot overflow.
	if pr.Page >= totalPages {
		return page, nil
	}
	start := pr.Page * pr.Size
	end := start + pr.Size
	if end > total {
		end = total
	}
	page.Books = append(page.Books, books[start:end]...)
	return page, nil
}
