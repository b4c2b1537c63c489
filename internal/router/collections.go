package router

import (
	"github.com/deppfellow/backboneapi/internal/handler"
	"github.com/labstack/echo/v4"
)

// registerCollectionRoutes mounts a collection on /name and /name/:id for
// every method; the collection itself answers unsupported ones.
func registerCollectionRoutes(g *echo.Group, name string, h *handler.CollectionHandler, m ...echo.MiddlewareFunc) {
	g.Any("/"+name, h.Serve, m...)
	g.Any("/"+name+"/:"+handler.IDParam, h.Serve, m...)
}
