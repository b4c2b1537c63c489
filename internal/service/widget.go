package service

import (
	"github.com/deppfellow/backboneapi/internal/collection"
	"github.com/deppfellow/backboneapi/internal/config"
	"github.com/deppfellow/backboneapi/internal/repository"
)

// WidgetsCollection is the route name of the widgets collection.
const WidgetsCollection = "widgets"

// WidgetService wires the widgets table into a REST collection.
type WidgetService struct {
	source  collection.DataSource
	writer  WidgetWriter
	auditor collection.Auditor
	cfg     config.CollectionsConfig
}

func NewWidgetService(source collection.DataSource, writer WidgetWriter, auditor collection.Auditor, cfg config.CollectionsConfig) *WidgetService {
	return &WidgetService{
		source:  source,
		writer:  writer,
		auditor: auditor,
		cfg:     cfg,
	}
}

func (s *WidgetService) createForm(in collection.Input) collection.Form {
	return NewWidgetCreateForm(s.writer, in)
}

func (s *WidgetService) updateForm(existing collection.Record, in collection.Input) collection.Form {
	return NewWidgetUpdateForm(s.writer, existing, in)
}

// Collection builds the widgets collection.
func (s *WidgetService) Collection() (*collection.Collection, error) {
	return collection.New(collection.Config{
		Name:   WidgetsCollection,
		Source: s.source,
		Fields: collection.FieldSet(repository.WidgetColumns),
		Page: &collection.PageSpec{
			Size:  s.cfg.PageSize,
			Param: s.cfg.PageParam,
		},
		CreateForm:      s.createForm,
		UpdateForm:      s.updateForm,
		Authorizer:      WidgetAuthorizer{},
		EmptyCollection: collection.EmptyAllow,
		Auditor:         s.auditor,
	})
}
