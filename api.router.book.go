package main

import (
	"github.com/julienschmidt/httprouter"
)

// SetupBookRoutes injects book and catalog query related endpoints. The query
// endpoints live under /v1/catalog since a static segment cannot share its
// position with the book id wildcard.
func (api *APIHandler) SetupBookRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET("/", m.public(api.Index))
	router.GET("/status", m.public(api.Status))

	router.POST("/v1/books", m.public(api.CreateBook))
	router.GET("/v1/books", m.public(api.GetAllBooks))
	router.GET("/v1/books/:id", m.public(api.GetOneBook))
	router.PUT("/v1/books/:id", m.public(api.UpdateBook))
	router.DELETE("/v1/books/:id", m.public(api.DeleteOneBook))
	router.GET("/v1/books/:id/exists", m.public(api.BookExists))

	router.GET("/v1/catalog/search", m.public(api.SearchBooks))
	router.GET("/v1/catalog/search/text", m.public(api.TextSearchBooks))
	router.GET("/v1/catalog/authors/:author", m.public(api.GetBooksByAuthor))
	router.GET("/v1/catalog/available", m.public(api.GetAvailableBooks))
	router.GET("/v1/catalog/stats", m.public(api.GetCatalogStatistics))
	return router
}

// SetupHealthRoutes injects the probes endpoints. They stay
// reachable while the maintenance mode is enabled.
func (api *APIHandler) SetupHealthRoutes(router *httprouter.Router, m *MiddlewareMap) *httprouter.Router {
	router.GET("/health/live", m.ops(api.Liveness))
	router.GET("/health/ready", m.ops(api.Readiness))
	router.GET("/health/status", m.ops(api.HealthStatus))
	return router
}
