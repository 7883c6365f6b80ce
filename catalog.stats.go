package main

import (
	"time"
)

// CatalogStatistics holds the aggregates computed over the whole catalog.
type CatalogStatistics struct {
	TotalBooks       int64            `json:"totalBooks"`
	AvailableBooks   int64            `json:"availableBooks"`
	UnavailableBooks int64            `json:"unavailableBooks"`
	BooksByGenre     map[string]int64 `json:"booksByGenre"`
	BooksByAuthor    map[string]int64 `json:"booksByAuthor"`
	AveragePrice     float64          `json:"averagePrice"`
	MaxPrice         float64          `json:"maxPrice"`
	MinPrice         float64          `json:"minPrice"`
	BooksInStock     int64            `json:"booksInStock"`
	BooksOutOfStock  int64            `json:"booksOutOfStock"`
	Timestamp        int64            `json:"timestamp"`
	GeneratedAt      time.Time        `json:"generatedAt"`
}

// ComputeStatistics aggregates the books. Books without genre are counted in
// the totals but left out of BooksByGenre. Price aggregates only consider
// priced books and stay at zero when none has a price.
func ComputeStatistics(books []Book, now time.Time) CatalogStatistics {
	stats := CatalogStatistics{
		TotalBooks:    int64(len(books)),
		BooksByGenre:  make(map[string]int64),
		BooksByAuthor: make(map[string]int64),
		Timestamp:     now.UnixMilli(),
		GeneratedAt:   now,
	}

	var sum float64
	var priced int64
	for i := range books {
		b := &books[i]
		if b.Available {
			stats.AvailableBooks++
		}
		if b.Genre != nil {
			stats.BooksByGenre[*b.Genre]++
		}
		stats.BooksByAuthor[b.Author]++
		if b.StockQuantity != nil && *b.StockQuantity > 0 {
			stats.BooksInStock++
		}
		if b.Price == nil {
			continue
		}
		p := *b.Price
		if priced == 0 || p > stats.MaxPrice {
			stats.MaxPrice = p
		}
		if priced == 0 || p < stats.MinPrice {
			stats.MinPrice = p
		}
		sum += p
		priced++
	}

	if priced > 0 {
		stats.AveragePrice = sum / float64(priced)
	}
	stats.UnavailableBooks = stats.TotalBooks - stats.AvailableBooks
	stats.BooksOutOfStock = stats.TotalBooks - stats.BooksInStock
	return stats
}
