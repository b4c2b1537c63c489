package handler

import (
	"fmt"

	"github.com/deppfellow/backboneapi/internal/server"
	"github.com/deppfellow/backboneapi/internal/service"
)

// Handlers groups the HTTP handlers registered by the router.
type Handlers struct {
	Health  *HealthHandler
	Widgets *CollectionHandler
}

func NewHandlers(s *server.Server, services *service.Services) (*Handlers, error) {
	widgets, err := services.Widgets.Collection()
	if err != nil {
		return nil, fmt.Errorf("failed to build widgets collection: %w", err)
	}

	return &Handlers{
		Health:  NewHealthHandler(s),
		Widgets: NewCollectionHandler(s, widgets),
	}, nil
}
