package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
)

type ContextKey string

const (
	BookIDPrefix            string     = "b"
	RequestIDPrefix         string     = "r"
	RequestIDContextKey     ContextKey = "request.id"
	RequestNumberContextKey ContextKey = "request.number"
)

// GetValueFromContext returns the value of a given key in the context
// if this key is not available, it returns an empty string.
func GetValueFromContext(ctx context.Context, contextKey ContextKey) string {
	if val := ctx.Value(contextKey); val != nil {
		return val.(string)
	}
	return ""
}

// GetRequestNumberFromContext returns the request number set in
// the context. if not previously set then it returns 0.
func GetRequestNumberFromContext(ctx context.Context) uint64 {
	if val := ctx.Value(RequestNumberContextKey); val != nil {
		return val.(uint64)
	}
	return 0
}

// DecodeBookPayload is a helper function to read the content of a book creation or update request.
func DecodeBookPayload(r *http.Request, payload *BookPayload) error {
	if r.Body == nil {
		return fmt.Errorf("%w: empty book request body", ErrInvalidRequest)
	}
	if err := json.NewDecoder(r.Body).Decode(payload); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

// ValidateCreateBookPayload is a helper function to check if the content of a book creation request is valid.
func ValidateCreateBookPayload(p *BookPayload) error {
	if len(strings.TrimSpace(p.Title)) == 0 {
		return missingFieldError("title")
	}

	if len(strings.TrimSpace(p.Author)) == 0 {
		return missingFieldError("author")
	}

	return validateOptionalFields(p)
}

// ValidateUpdateBookPayload is a helper function to check if the content of a book update request
// is valid. Title and author are not checked since they are always overwritten as they come.
func ValidateUpdateBookPayload(p *BookPayload) error {
	return validateOptionalFields(p)
}

func validateOptionalFields(p *BookPayload) error {
	if p.Price != nil && *p.Price < 0 {
		return NewInvalidFieldError("price", "must be greater than or equal to 0")
	}

	if p.StockQuantity != nil && *p.StockQuantity < 0 {
		return NewInvalidFieldError("stockQuantity", "must be greater than or equal to 0")
	}

	return nil
}

// ParsePageRequest reads the pagination query parameters. Missing page
// defaults to 0 and missing size defaults to the provided value.
func ParsePageRequest(q url.Values, defaultSize int) (PageRequest, error) {
	pr := PageRequest{
		Size:    defaultSize,
		SortBy:  q.Get("sortBy"),
		SortDir: q.Get("sortDir"),
	}
	var err error
	if v := q.Get("page"); v != "" {
		if pr.Page, err = strconv.Atoi(v); err != nil {
			return pr, NewInvalidFieldError("page", "must be an integer")
		}
	}
	if v := q.Get("size"); v != "" {
		if pr.Size, err = strconv.Atoi(v); err != nil {
			return pr, NewInvalidFieldError("size", "must be an integer")
		}
	}
	return pr, pr.Validate()
}

// IsPaginationRequested reports whether the listing query asks for a page.
func IsPaginationRequested(q url.Values) bool {
	return q.Has("paginated") || q.Has("page") || q.Has("size")
}

// ParseBookFilter reads the multi-criteria search query parameters.
// Empty values are considered as absent filters.
func ParseBookFilter(q url.Values) (BookFilter, error) {
	var f BookFilter
	if v := q.Get("title"); v != "" {
		f.Title = &v
	}
	if v := q.Get("author"); v != "" {
		f.Author = &v
	}
	if v := q.Get("genre"); v != "" {
		f.Genre = &v
	}

	var err error
	if f.MinPrice, err = parseOptionalFloat(q, "minPrice"); err != nil {
		return f, err
	}
	if f.MaxPrice, err = parseOptionalFloat(q, "maxPrice"); err != nil {
		return f, err
	}
	if f.MinYear, err = parseOptionalInt(q, "minYear"); err != nil {
		return f, err
	}
	if f.MaxYear, err = parseOptionalInt(q, "maxYear"); err != nil {
		return f, err
	}
	if v := q.Get("available"); v != "" {
		b, perr := strconv.ParseBool(v)
		if perr != nil {
			return f, NewInvalidFieldError("available", "must be a boolean")
		}
		f.Available = &b
	}
	return f, nil
}

func parseOptionalFloat(q url.Values, key string) (*float64, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		return nil, NewInvalidFieldError(key, "must be a decimal number")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return nil, NewInvalidFieldError(key, "must be a finite decimal number")
	}
	return &f, nil
}

func parseOptionalInt(q url.Values, key string) (*int, error) {
	v := q.Get(key)
	if v == "" {
		return nil, nil
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return nil, NewInvalidFieldError(key, "must be an integer")
	}
	return &i, nil
}

// ErrorStatusCode maps a service error to its http status code.
func ErrorStatusCode(err error) int {
	switch {
	case errors.Is(err, ErrBookNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, ErrConflict):
		return http.StatusConflict
	default:
		return http.StatusInternalServerError
	}
}

// GetRequestSourceIP helps find the source IP of the caller.
func GetRequestSourceIP(r *http.Request) string {
	// Get IP from the X-REAL-IP header
	ip := r.Header.Get("X-REAL-IP")
	netIP := net.ParseIP(ip)
	if netIP != nil {
		return ip
	}

	// Get IP from X-FORWARDED-FOR header
	ips := r.Header.Get("X-FORWARDED-FOR")
	splitIps := strings.Split(ips, ",")
	for _, ip := range splitIps {
		netIP = net.ParseIP(strings.TrimSpace(ip))
		if netIP != nil {
			return strings.TrimSpace(ip)
		}
	}

	// Get IP from RemoteAddr
	ip, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return ""
	}
	netIP = net.ParseIP(ip)
	if netIP != nil {
		return ip
	}
	return ""
}

// IsAppRunningInDocker checks the existence of the .dockerenv
// file at the root directory and returns a boolean result. This
// helps know if the App is running in a docker container or not.
func IsAppRunningInDocker() bool {
	if _, err := os.Stat("/.dockerenv"); err == nil {
		return true
	}
	return false
}
