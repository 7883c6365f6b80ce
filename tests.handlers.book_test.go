package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testBookID = "b:5d0f2b8e-7a3c-4c1e-9e2a-3f6b1d4c8a90"

// newTestAPIHandler returns an api handler wired to a service over the given storage.
func newTestAPIHandler(storage BookStorage, validIDs bool) *APIHandler {
	clock := NewMockClocker()
	idsHandler := NewMockUIDHandler("abc", validIDs)
	bs := NewBookService(zap.NewNop(), nil, clock, idsHandler, storage, nil, nil)
	return NewAPIHandler(zap.NewNop(), nil, &Statistics{started: clock.Now()}, clock, idsHandler, bs)
}

// readJSONResponse checks the json content type then decodes the response body.
func readJSONResponse(t *testing.T, w *httptest.ResponseRecorder) (*http.Response, map[string]interface{}) {
	t.Helper()
	res := w.Result()
	defer res.Body.Close()
	data, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Equal(t, "application/json; charset=UTF-8", res.Header.Get("Content-Type"))
	resultMap := make(map[string]interface{})
	require.NoError(t, json.Unmarshal(data, &resultMap))
	return res, resultMap
}

func fixtureStorage() *MockBookStorage {
	return &MockBookStorage{
		GetAllFunc: func(ctx context.Context) ([]Book, error) {
			return catalogFixture(), nil
		},
	}
}

// TestStatusHandler ensures api handler can provides its status.
func TestStatusHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	w := httptest.NewRecorder()
	api := newTestAPIHandler(&MockBookStorage{}, true)
	api.Status(w, req, httprouter.Params{})
	res, m := readJSONResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)

	_, ok := m["requestid"]
	assert.True(t, ok)
	assert.Equal(t, "up & running since 0 mins", m["status"])
	assert.Equal(t, "Hello. Books catalog api is available. Enjoy :)", m["message"])
}

// TestCreateBookHandler ensures api handler can create a book.
//
//nolint:funlen
func TestCreateBookHandler(t *testing.T) {
	t.Run("should pass: valid payload", func(t *testing.T) {
		var stored Book
		api := newTestAPIHandler(&MockBookStorage{
			AddFunc: func(ctx context.Context, book Book) error {
				stored = book
				return nil
			},
		}, true)

		payload := []byte(`{"title":"Test book title","description":"Test book description","author":"Jerome Amon","price":10.5}`)
		req := httptest.NewRequest(http.MethodPost, "/v1/books", bytes.NewBuffer(payload))
		w := httptest.NewRecorder()
		api.CreateBook(w, req, httprouter.Params{})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusCreated, res.StatusCode)

		_, ok := resultMap["requestid"]
		assert.True(t, ok)
		assert.Equal(t, float64(http.StatusCreated), resultMap["status"])
		assert.Equal(t, "Book created successfully.", resultMap["message"])

		bookMap, ok := resultMap["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "b:abc", bookMap["id"])
		assert.Equal(t, "Test book title", bookMap["title"])
		assert.Equal(t, "Test book description", bookMap["description"])
		assert.Equal(t, "Jerome Amon", bookMap["author"])
		assert.Equal(t, 10.5, bookMap["price"])
		assert.Equal(t, true, bookMap["available"])
		assert.Nil(t, bookMap["isbn"])
		assert.Equal(t, "2023-07-02T00:00:00Z", bookMap["createdAt"])
		assert.Equal(t, "2023-07-02T00:00:00Z", bookMap["updatedAt"])
		assert.Equal(t, "b:abc", stored.ID)
	})

	t.Run("should fail: missing author", func(t *testing.T) {
		api := newTestAPIHandler(&MockBookStorage{}, true)
		req := httptest.NewRequest(http.MethodPost, "/v1/books", bytes.NewBufferString(`{"title":"Test book title"}`))
		w := httptest.NewRecorder()
		api.CreateBook(w, req, httprouter.Params{})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, float64(http.StatusBadRequest), resultMap["status"])
		assert.Equal(t, "failed to create the book", resultMap["message"])
		assert.Equal(t, "author is required", resultMap["data"])
	})

	t.Run("should fail: malformed payload", func(t *testing.T) {
		api := newTestAPIHandler(&MockBookStorage{}, true)
		req := httptest.NewRequest(http.MethodPost, "/v1/books", bytes.NewBufferString(`{"title":`))
		w := httptest.NewRecorder()
		api.CreateBook(w, req, httprouter.Params{})
		res, _ := readJSONResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("should fail: duplicate book", func(t *testing.T) {
		api := newTestAPIHandler(&MockBookStorage{
			AddFunc: func(ctx context.Context, book Book) error {
				return ErrDuplicateTitleAuthor
			},
		}, true)
		req := httptest.NewRequest(http.MethodPost, "/v1/books", bytes.NewBufferString(`{"title":"Dune","author":"Frank Herbert"}`))
		w := httptest.NewRecorder()
		api.CreateBook(w, req, httprouter.Params{})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusConflict, res.StatusCode)
		assert.Equal(t, ErrDuplicateTitleAuthor.Error(), resultMap["data"])
	})

	t.Run("should fail: storage insertion failure", func(t *testing.T) {
		api := newTestAPIHandler(&MockBookStorage{
			AddFunc: func(ctx context.Context, book Book) error {
				return errors.New("storage failure")
			},
		}, true)
		req := httptest.NewRequest(http.MethodPost, "/v1/books", bytes.NewBufferString(`{"title":"Dune","author":"Frank Herbert"}`))
		w := httptest.NewRecorder()
		api.CreateBook(w, req, httprouter.Params{})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusInternalServerError, res.StatusCode)
		assert.Equal(t, float64(http.StatusInternalServerError), resultMap["status"])
		assert.Equal(t, "failed to create the book", resultMap["message"])
		// internal details are not exposed.
		assert.Equal(t, map[string]interface{}{}, resultMap["data"])
	})
}

// TestGetOneBookHandler ensures api handler can fetch a single book.
func TestGetOneBookHandler(t *testing.T) {
	storage := &MockBookStorage{
		GetOneFunc: func(ctx context.Context, id string) (Book, error) {
			if id == testBookID {
				return Book{ID: id, Title: "Dune", Author: "Frank Herbert"}, nil
			}
			return Book{}, ErrBookNotFound
		},
	}

	t.Run("should pass: existing book", func(t *testing.T) {
		api := newTestAPIHandler(storage, true)
		req := httptest.NewRequest(http.MethodGet, "/v1/books/"+testBookID, nil)
		w := httptest.NewRecorder()
		api.GetOneBook(w, req, httprouter.Params{{Key: "id", Value: testBookID}})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "Book fetched successfully.", resultMap["message"])
		bookMap, ok := resultMap["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "Dune", bookMap["title"])
	})

	t.Run("should fail: unknown book", func(t *testing.T) {
		api := newTestAPIHandler(storage, true)
		req := httptest.NewRequest(http.MethodGet, "/v1/books/b:other", nil)
		w := httptest.NewRecorder()
		api.GetOneBook(w, req, httprouter.Params{{Key: "id", Value: "b:other"}})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
		assert.Equal(t, "book not found", resultMap["data"])
	})

	t.Run("should fail: invalid id", func(t *testing.T) {
		api := newTestAPIHandler(storage, false)
		req := httptest.NewRequest(http.MethodGet, "/v1/books/abc", nil)
		w := httptest.NewRecorder()
		api.GetOneBook(w, req, httprouter.Params{{Key: "id", Value: "abc"}})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
		assert.Equal(t, "book id provided is not valid", resultMap["message"])
	})
}

// TestUpdateBookHandler ensures api handler applies partial updates.
func TestUpdateBookHandler(t *testing.T) {
	current := Book{ID: testBookID, Title: "Dune", Author: "Frank Herbert", Price: Float(15), Available: true}
	api := newTestAPIHandler(&MockBookStorage{
		UpdateFunc: func(ctx context.Context, id string, mutate func(*Book) error) (Book, error) {
			if id != testBookID {
				return Book{}, ErrBookNotFound
			}
			b := current
			err := mutate(&b)
			return b, err
		},
	}, true)

	t.Run("should pass: price kept when absent", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/v1/books/"+testBookID, bytes.NewBufferString(`{"title":"Dune","author":"F. Herbert","available":false}`))
		w := httptest.NewRecorder()
		api.UpdateBook(w, req, httprouter.Params{{Key: "id", Value: testBookID}})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "Book updated successfully.", resultMap["message"])
		bookMap, ok := resultMap["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, "F. Herbert", bookMap["author"])
		assert.Equal(t, 15.0, bookMap["price"])
		assert.Equal(t, false, bookMap["available"])
	})

	t.Run("should fail: negative stock", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/v1/books/"+testBookID, bytes.NewBufferString(`{"stockQuantity":-1}`))
		w := httptest.NewRecorder()
		api.UpdateBook(w, req, httprouter.Params{{Key: "id", Value: testBookID}})
		res, _ := readJSONResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})

	t.Run("should fail: unknown book", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodPut, "/v1/books/b:other", bytes.NewBufferString(`{"title":"x","author":"y"}`))
		w := httptest.NewRecorder()
		api.UpdateBook(w, req, httprouter.Params{{Key: "id", Value: "b:other"}})
		res, _ := readJSONResponse(t, w)
		assert.Equal(t, http.StatusNotFound, res.StatusCode)
	})
}

// TestDeleteOneBookHandler ensures api handler confirms deletions.
func TestDeleteOneBookHandler(t *testing.T) {
	api := newTestAPIHandler(&MockBookStorage{
		DeleteFunc: func(ctx context.Context, id string) (Book, error) {
			if id != testBookID {
				return Book{}, ErrBookNotFound
			}
			return Book{ID: id}, nil
		},
	}, true)

	req := httptest.NewRequest(http.MethodDelete, "/v1/books/"+testBookID, nil)
	w := httptest.NewRecorder()
	api.DeleteOneBook(w, req, httprouter.Params{{Key: "id", Value: testBookID}})
	res, resultMap := readJSONResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Book deleted successfully.", resultMap["message"])
	assert.Equal(t, map[string]interface{}{"message": "Book deleted successfully", "id": testBookID}, resultMap["data"])

	req = httptest.NewRequest(http.MethodDelete, "/v1/books/b:other", nil)
	w = httptest.NewRecorder()
	api.DeleteOneBook(w, req, httprouter.Params{{Key: "id", Value: "b:other"}})
	res, _ = readJSONResponse(t, w)
	assert.Equal(t, http.StatusNotFound, res.StatusCode)
}

// TestBookExistsHandler ensures malformed ids are reported as absent.
func TestBookExistsHandler(t *testing.T) {
	calls := 0
	storage := &MockBookStorage{
		ExistsFunc: func(ctx context.Context, id string) (bool, error) {
			calls++
			return id == testBookID, nil
		},
	}

	api := newTestAPIHandler(storage, true)
	req := httptest.NewRequest(http.MethodGet, "/v1/books/"+testBookID+"/exists", nil)
	w := httptest.NewRecorder()
	api.BookExists(w, req, httprouter.Params{{Key: "id", Value: testBookID}})
	res, resultMap := readJSONResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Book existence checked successfully.", resultMap["message"])
	assert.Equal(t, true, resultMap["data"])

	api = newTestAPIHandler(storage, false)
	req = httptest.NewRequest(http.MethodGet, "/v1/books/abc/exists", nil)
	w = httptest.NewRecorder()
	api.BookExists(w, req, httprouter.Params{{Key: "id", Value: "abc"}})
	res, resultMap = readJSONResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, false, resultMap["data"])
	assert.Equal(t, 1, calls)
}

// TestGetAllBooksHandler ensures listing serves full list or pages.
func TestGetAllBooksHandler(t *testing.T) {
	api := newTestAPIHandler(fixtureStorage(), true)

	t.Run("should pass: full list with total", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/books", nil)
		w := httptest.NewRecorder()
		api.GetAllBooks(w, req, httprouter.Params{})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "All books fetched successfully.", resultMap["message"])
		assert.Equal(t, float64(4), resultMap["total"])
		assert.Len(t, resultMap["data"], 4)
	})

	t.Run("should pass: page", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/books?page=1&size=3", nil)
		w := httptest.NewRecorder()
		api.GetAllBooks(w, req, httprouter.Params{})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, "Books page fetched successfully.", resultMap["message"])
		_, ok := resultMap["total"]
		assert.False(t, ok)
		page, ok := resultMap["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(1), page["currentPage"])
		assert.Equal(t, float64(4), page["totalItems"])
		assert.Equal(t, float64(2), page["totalPages"])
		assert.Equal(t, false, page["hasNext"])
		assert.Equal(t, true, page["hasPrevious"])
		assert.Len(t, page["books"], 1)
	})

	t.Run("should pass: empty page far past the end", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/books?page=4611686018427387903&size=4", nil)
		w := httptest.NewRecorder()
		api.GetAllBooks(w, req, httprouter.Params{})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		page, ok := resultMap["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Len(t, page["books"], 0)
		assert.Equal(t, float64(1), page["totalPages"])
		assert.Equal(t, false, page["hasNext"])
	})

	t.Run("should fail: invalid sort direction", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/books?paginated=true&sortDir=up", nil)
		w := httptest.NewRecorder()
		api.GetAllBooks(w, req, httprouter.Params{})
		res, _ := readJSONResponse(t, w)
		assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	})
}

// TestSearchBooksHandler ensures search echoes the filters in use.
func TestSearchBooksHandler(t *testing.T) {
	api := newTestAPIHandler(fixtureStorage(), true)

	req := httptest.NewRequest(http.MethodGet, "/v1/catalog/search?genre=Sci-Fi&minPrice=10", nil)
	w := httptest.NewRecorder()
	api.SearchBooks(w, req, httprouter.Params{})
	res, resultMap := readJSONResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "Books searched successfully.", resultMap["message"])

	result, ok := resultMap["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, float64(1), result["totalItems"])
	filters, ok := result["filters"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "Sci-Fi", filters["genre"])
	assert.Equal(t, float64(10), filters["minPrice"])
	assert.Equal(t, "", filters["author"])
	assert.Equal(t, "", filters["available"])

	req = httptest.NewRequest(http.MethodGet, "/v1/catalog/search?minYear=old", nil)
	w = httptest.NewRecorder()
	api.SearchBooks(w, req, httprouter.Params{})
	res, resultMap = readJSONResponse(t, w)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "minYear must be an integer", resultMap["data"])

	req = httptest.NewRequest(http.MethodGet, "/v1/catalog/search?minPrice=NaN", nil)
	w = httptest.NewRecorder()
	api.SearchBooks(w, req, httprouter.Params{})
	res, resultMap = readJSONResponse(t, w)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "minPrice must be a finite decimal number", resultMap["data"])
}

// TestTextSearchBooksHandler ensures full-text search requires its term.
func TestTextSearchBooksHandler(t *testing.T) {
	api := newTestAPIHandler(fixtureStorage(), true)

	req := httptest.NewRequest(http.MethodGet, "/v1/catalog/search/text?q=herbert&sortBy=title", nil)
	w := httptest.NewRecorder()
	api.TextSearchBooks(w, req, httprouter.Params{})
	res, resultMap := readJSONResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	result, ok := resultMap["data"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "herbert", result["searchTerm"])
	assert.Equal(t, float64(2), result["totalItems"])

	req = httptest.NewRequest(http.MethodGet, "/v1/catalog/search/text", nil)
	w = httptest.NewRecorder()
	api.TextSearchBooks(w, req, httprouter.Params{})
	res, resultMap = readJSONResponse(t, w)
	assert.Equal(t, http.StatusBadRequest, res.StatusCode)
	assert.Equal(t, "q is required", resultMap["data"])
}

// TestCatalogQueriesHandlers covers author, availability and statistics endpoints.
func TestCatalogQueriesHandlers(t *testing.T) {
	api := newTestAPIHandler(fixtureStorage(), true)

	t.Run("books by author", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/catalog/authors/Anon", nil)
		w := httptest.NewRecorder()
		api.GetBooksByAuthor(w, req, httprouter.Params{{Key: "author", Value: "Anon"}})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		assert.Equal(t, float64(1), resultMap["total"])
	})

	t.Run("available books", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/catalog/available?size=2", nil)
		w := httptest.NewRecorder()
		api.GetAvailableBooks(w, req, httprouter.Params{})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		page, ok := resultMap["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(3), page["totalItems"])
		assert.Equal(t, true, page["hasNext"])
	})

	t.Run("statistics", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/v1/catalog/stats", nil)
		w := httptest.NewRecorder()
		api.GetCatalogStatistics(w, req, httprouter.Params{})
		res, resultMap := readJSONResponse(t, w)
		assert.Equal(t, http.StatusOK, res.StatusCode)
		stats, ok := resultMap["data"].(map[string]interface{})
		require.True(t, ok)
		assert.Equal(t, float64(4), stats["totalBooks"])
		assert.Equal(t, float64(1), stats["unavailableBooks"])
		assert.Equal(t, map[string]interface{}{"Sci-Fi": float64(2)}, stats["booksByGenre"])
	})
}

// TestHealthHandlers ensures probes reflect the storage reachability.
func TestHealthHandlers(t *testing.T) {
	healthy := newTestAPIHandler(&MockBookStorage{}, true)
	broken := newTestAPIHandler(&MockBookStorage{
		PingFunc: func(ctx context.Context) error { return errors.New("connection refused") },
	}, true)

	req := httptest.NewRequest(http.MethodGet, "/health/live", nil)
	w := httptest.NewRecorder()
	broken.Liveness(w, req, httprouter.Params{})
	res, m := readJSONResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, HealthUp, m["status"])

	w = httptest.NewRecorder()
	healthy.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil), httprouter.Params{})
	res, m = readJSONResponse(t, w)
	assert.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, HealthUp, m["status"])

	w = httptest.NewRecorder()
	broken.Readiness(w, httptest.NewRequest(http.MethodGet, "/health/ready", nil), httprouter.Params{})
	res, m = readJSONResponse(t, w)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	assert.Equal(t, HealthDown, m["status"])

	w = httptest.NewRecorder()
	broken.HealthStatus(w, httptest.NewRequest(http.MethodGet, "/health/status", nil), httprouter.Params{})
	res, m = readJSONResponse(t, w)
	assert.Equal(t, http.StatusServiceUnavailable, res.StatusCode)
	details, ok := m["details"].(map[string]interface{})
	require.True(t, ok)
	storage, ok := details["storage"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "connection refused", storage["error"])
}

// TestWriteResponse_Aborted ensures nothing is sent once the request context is done.
func TestWriteResponse_Aborted(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	rec := httptest.NewRecorder()
	cw := NewCustomResponseWriter(rec)
	err := WriteResponse(ctx, cw, GenericResponse("r:abc", http.StatusOK, "ok", nil, EmptyData))
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 499, cw.Status())
	assert.Equal(t, 0, rec.Body.Len())
	assert.Equal(t, "1", rec.Header().Get(HeaderAborted))
}
