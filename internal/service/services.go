// Package service contains the business logic.
//
// It sits between the handler and repository layers. It
// builds the collections the handlers expose, with their
// forms, authorization rules and audit sinks, on top of
// the repository data sources.
package service

import (
	"github.com/deppfellow/backboneapi/internal/lib/job"
	"github.com/deppfellow/backboneapi/internal/repository"
	"github.com/deppfellow/backboneapi/internal/server"
)

type Services struct {
	Auth    *AuthService
	Job     *job.JobService
	Widgets *WidgetService
}

func NewServices(s *server.Server, repos *repository.Repositories) (*Services, error) {
	authService := NewAuthService(s)

	auditor := job.NewAuditEnqueuer(s.Job.Client)

	return &Services{
		Job:  s.Job,
		Auth: authService,
		Widgets: NewWidgetService(
			repos.Widgets.Source(),
			repos.Widgets,
			auditor,
			s.Config.Collections,
		),
	}, nil
}
