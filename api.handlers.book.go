package main

import (
	"net/http"

	"github.com/julienschmidt/httprouter"
	"go.uber.org/zap"
)

// SearchResult is the filtered search page with the filters in use.
type SearchResult struct {
	BookPage
	Filters map[string]interface{} `json:"filters"`
}

// TextSearchResult is the full-text search page with the searched term.
type TextSearchResult struct {
	BookPage
	SearchTerm string `json:"searchTerm"`
}

// DeleteConfirmation is sent back once a book is deleted.
type DeleteConfirmation struct {
	Message string `json:"message"`
	ID      string `json:"id"`
}

func (api *APIHandler) defaultPageSize() int {
	if api.config == nil || api.config.Catalog.DefaultPageSize <= 0 {
		return 10
	}
	return api.config.Catalog.DefaultPageSize
}

// validBookID checks the id format so malformed ids never reach the storage.
func (api *APIHandler) validBookID(id string) error {
	if !api.idsHandler.IsValid(id, BookIDPrefix) {
		return NewInvalidFieldError("id", "is not a valid book id")
	}
	return nil
}

// CreateBook godoc
// @Summary      Create a book
// @Tags         books
// @Accept       json
// @Produce      json
// @Param        book  body      BookPayload  true  "book to create"
// @Success      201   {object}  APIResponse{data=Book}
// @Failure      400   {object}  APIError
// @Failure      409   {object}  APIError
// @Router       /v1/books [post]
func (api *APIHandler) CreateBook(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	var payload BookPayload
	if err := DecodeBookPayload(r, &payload); err != nil {
		api.sendError(w, r, err, "failed to create the book")
		return
	}
	book, err := api.bookService.Add(r.Context(), payload)
	if err != nil {
		api.sendError(w, r, err, "failed to create the book")
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to create book", zap.String("book.id", book.ID))
	api.sendResponse(w, r, http.StatusCreated, "Book created successfully.", nil, book)
}

// GetAllBooks godoc
// @Summary      List books
// @Description  Returns every book, or a page of books when paginated, page or size is given.
// @Tags         books
// @Produce      json
// @Param        paginated  query     bool    false  "paginate the result"
// @Param        page       query     int     false  "zero-based page index"
// @Param        size       query     int     false  "page size"
// @Param        sortBy     query     string  false  "sort field"
// @Param        sortDir    query     string  false  "asc or desc"
// @Success      200        {object}  APIResponse
// @Failure      400        {object}  APIError
// @Router       /v1/books [get]
func (api *APIHandler) GetAllBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	if IsPaginationRequested(q) {
		pr, err := ParsePageRequest(q, api.defaultPageSize())
		if err != nil {
			api.sendError(w, r, err, "failed to get books page")
			return
		}
		page, err := api.bookService.GetPage(r.Context(), pr)
		if err != nil {
			api.sendError(w, r, err, "failed to get books page")
			return
		}
		api.sendResponse(w, r, http.StatusOK, "Books page fetched successfully.", nil, page)
		return
	}

	books, err := api.bookService.GetAll(r.Context(), q.Get("sortBy"), q.Get("sortDir"))
	if err != nil {
		api.sendError(w, r, err, "failed to get all books")
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to get all books")
	total := len(books)
	api.sendResponse(w, r, http.StatusOK, "All books fetched successfully.", &total, books)
}

// GetOneBook godoc
// @Summary      Get a book
// @Tags         books
// @Produce      json
// @Param        id   path      string  true  "book id"
// @Success      200  {object}  APIResponse{data=Book}
// @Failure      400  {object}  APIError
// @Failure      404  {object}  APIError
// @Router       /v1/books/{id} [get]
func (api *APIHandler) GetOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if err := api.validBookID(id); err != nil {
		api.sendError(w, r, err, "book id provided is not valid")
		return
	}
	book, err := api.bookService.GetOne(r.Context(), id)
	if err != nil {
		api.sendError(w, r, err, "failed to get the book")
		return
	}
	api.sendResponse(w, r, http.StatusOK, "Book fetched successfully.", nil, book)
}

// UpdateBook godoc
// @Summary      Update a book
// @Description  Title and author are always overwritten. Other fields only when present.
// @Tags         books
// @Accept       json
// @Produce      json
// @Param        id    path      string       true  "book id"
// @Param        book  body      BookPayload  true  "fields to update"
// @Success      200   {object}  APIResponse{data=Book}
// @Failure      400   {object}  APIError
// @Failure      404   {object}  APIError
// @Router       /v1/books/{id} [put]
func (api *APIHandler) UpdateBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if err := api.validBookID(id); err != nil {
		api.sendError(w, r, err, "book id provided is not valid")
		return
	}
	var payload BookPayload
	if err := DecodeBookPayload(r, &payload); err != nil {
		api.sendError(w, r, err, "failed to update the book")
		return
	}
	book, err := api.bookService.Update(r.Context(), id, payload)
	if err != nil {
		api.sendError(w, r, err, "failed to update the book")
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to update book", zap.String("book.id", id))
	api.sendResponse(w, r, http.StatusOK, "Book updated successfully.", nil, book)
}

// DeleteOneBook godoc
// @Summary      Delete a book
// @Tags         books
// @Produce      json
// @Param        id   path      string  true  "book id"
// @Success      200  {object}  APIResponse{data=DeleteConfirmation}
// @Failure      400  {object}  APIError
// @Failure      404  {object}  APIError
// @Router       /v1/books/{id} [delete]
func (api *APIHandler) DeleteOneBook(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	if err := api.validBookID(id); err != nil {
		api.sendError(w, r, err, "book id provided is not valid")
		return
	}
	if _, err := api.bookService.Delete(r.Context(), id); err != nil {
		api.sendError(w, r, err, "failed to delete the book")
		return
	}
	api.GetLoggerFromContext(r.Context()).Info("success to delete book", zap.String("book.id", id))
	api.sendResponse(w, r, http.StatusOK, "Book deleted successfully.", nil,
		DeleteConfirmation{Message: "Book deleted successfully", ID: id})
}

// BookExists godoc
// @Summary      Check a book existence
// @Description  A malformed id simply does not exist.
// @Tags         books
// @Produce      json
// @Param        id   path      string  true  "book id"
// @Success      200  {object}  APIResponse{data=bool}
// @Router       /v1/books/{id}/exists [get]
func (api *APIHandler) BookExists(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	id := ps.ByName("id")
	exists := false
	if api.validBookID(id) == nil {
		var err error
		if exists, err = api.bookService.Exists(r.Context(), id); err != nil {
			api.sendError(w, r, err, "failed to check the book existence")
			return
		}
	}
	api.sendResponse(w, r, http.StatusOK, "Book existence checked successfully.", nil, exists)
}

// SearchBooks godoc
// @Summary      Search books
// @Description  All criteria are optional and combined. Strings match as case-insensitive substrings.
// @Tags         catalog
// @Produce      json
// @Param        title      query     string  false  "title substring"
// @Param        author     query     string  false  "author substring"
// @Param        genre      query     string  false  "genre substring"
// @Param        minPrice   query     number  false  "minimum price"
// @Param        maxPrice   query     number  false  "maximum price"
// @Param        minYear    query     int     false  "minimum publication year"
// @Param        maxYear    query     int     false  "maximum publication year"
// @Param        available  query     bool    false  "availability"
// @Param        page       query     int     false  "zero-based page index"
// @Param        size       query     int     false  "page size"
// @Param        sortBy     query     string  false  "sort field"
// @Param        sortDir    query     string  false  "asc or desc"
// @Success      200        {object}  APIResponse{data=SearchResult}
// @Failure      400        {object}  APIError
// @Router       /v1/catalog/search [get]
func (api *APIHandler) SearchBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	filter, err := ParseBookFilter(q)
	if err != nil {
		api.sendError(w, r, err, "failed to search books")
		return
	}
	pr, err := ParsePageRequest(q, api.defaultPageSize())
	if err != nil {
		api.sendError(w, r, err, "failed to search books")
		return
	}
	page, err := api.bookService.Search(r.Context(), filter, pr)
	if err != nil {
		api.sendError(w, r, err, "failed to search books")
		return
	}
	api.sendResponse(w, r, http.StatusOK, "Books searched successfully.", nil,
		SearchResult{BookPage: page, Filters: filter.Echo()})
}

// TextSearchBooks godoc
// @Summary      Full-text search
// @Description  Matches the term in title, author, description or genre.
// @Tags         catalog
// @Produce      json
// @Param        q        query     string  true   "search term"
// @Param        page     query     int     false  "zero-based page index"
// @Param        size     query     int     false  "page size"
// @Param        sortBy   query     string  false  "sort field"
// @Param        sortDir  query     string  false  "asc or desc"
// @Success      200      {object}  APIResponse{data=TextSearchResult}
// @Failure      400      {object}  APIError
// @Router       /v1/catalog/search/text [get]
func (api *APIHandler) TextSearchBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	q := r.URL.Query()
	term := q.Get("q")
	pr, err := ParsePageRequest(q, api.defaultPageSize())
	if err != nil {
		api.sendError(w, r, err, "failed to search books")
		return
	}
	page, err := api.bookService.TextSearch(r.Context(), term, pr)
	if err != nil {
		api.sendError(w, r, err, "failed to search books")
		return
	}
	api.sendResponse(w, r, http.StatusOK, "Books searched successfully.", nil,
		TextSearchResult{BookPage: page, SearchTerm: term})
}

// GetBooksByAuthor godoc
// @Summary      Books of an author
// @Description  Exact author match, unpaginated.
// @Tags         catalog
// @Produce      json
// @Param        author  path      string  true  "author"
// @Success      200     {object}  APIResponse{data=[]Book}
// @Router       /v1/catalog/authors/{author} [get]
func (api *APIHandler) GetBooksByAuthor(w http.ResponseWriter, r *http.Request, ps httprouter.Params) {
	books, err := api.bookService.GetByAuthor(r.Context(), ps.ByName("author"))
	if err != nil {
		api.sendError(w, r, err, "failed to get author books")
		return
	}
	total := len(books)
	api.sendResponse(w, r, http.StatusOK, "Author books fetched successfully.", &total, books)
}

// GetAvailableBooks godoc
// @Summary      Available books
// @Tags         catalog
// @Produce      json
// @Param        page     query     int     false  "zero-based page index"
// @Param        size     query     int     false  "page size"
// @Param        sortBy   query     string  false  "sort field"
// @Param        sortDir  query     string  false  "asc or desc"
// @Success      200      {object}  APIResponse{data=BookPage}
// @Failure      400      {object}  APIError
// @Router       /v1/catalog/available [get]
func (api *APIHandler) GetAvailableBooks(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	pr, err := ParsePageRequest(r.URL.Query(), api.defaultPageSize())
	if err != nil {
		api.sendError(w, r, err, "failed to get available books")
		return
	}
	page, err := api.bookService.GetAvailable(r.Context(), pr)
	if err != nil {
		api.sendError(w, r, err, "failed to get available books")
		return
	}
	api.sendResponse(w, r, http.StatusOK, "Available books fetched successfully.", nil, page)
}

// GetCatalogStatistics godoc
// @Summary      Catalog statistics
// @Tags         catalog
// @Produce      json
// @Success      200  {object}  APIResponse{data=CatalogStatistics}
// @Router       /v1/catalog/stats [get]
func (api *APIHandler) GetCatalogStatistics(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	stats, err := api.bookService.Statistics(r.Context())
	if err != nil {
		api.sendError(w, r, err, "failed to compute catalog statistics")
		return
	}
	api.sendResponse(w, r, http.StatusOK, "Catalog statistics computed successfully.", nil, stats)
}
