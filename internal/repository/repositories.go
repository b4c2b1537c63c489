// Package repository handles all interactions with the database.
//
// It contains raw SQL queries and methods to fetch, persist,
// or update data, abstracting SQL logic away from the service layer.
package repository

import (
	"github.com/deppfellow/backboneapi/internal/server"
)

// Repositories is a container for all repository instances.
type Repositories struct {
	Widgets *WidgetRepository
	Audit   *AuditRepository
}

// NewRepositories constructs the repository container over the server's pool.
func NewRepositories(s *server.Server) *Repositories {
	return &Repositories{
		Widgets: NewWidgetRepository(s.DB.Pool),
		Audit:   NewAuditRepository(s.DB.Pool),
	}
}
