// Package collection exposes a record collection over the Backbone.js REST
// protocol:
//
//	create -> POST   /collection
//	read   -> GET    /collection[/id]
//	update -> PUT    /collection/id
//	delete -> DELETE /collection/id
//
// A request is normalized into an Envelope (Normalize), routed to one action
// (Dispatch) and executed against the collaborators configured for the
// collection: a DataSource, optional create/update forms, an Authorizer and
// an optional Auditor. Every outcome is a Result; nothing is returned as an
// error past Execute.
package collection

import (
	"context"
	"fmt"
	"net/url"
	"time"

	"github.com/deppfellow/backboneapi/internal/errs"
	"github.com/rs/zerolog"
)

// Config describes one collection.
type Config struct {
	// Name labels logs and audit events, e.g. "widgets".
	Name string

	Source DataSource

	// Fields restricts serialized fields; nil serializes everything.
	Fields FieldSet

	// Page enables pagination of collection reads when non-nil.
	Page *PageSpec

	// CreateForm and UpdateForm enable POST and PUT. A nil constructor makes
	// the operation answer 501.
	CreateForm CreateFormFunc
	UpdateForm UpdateFormFunc

	// Authorizer defaults to AllowAll.
	Authorizer Authorizer

	EmptyCollection EmptyCollectionPolicy

	// Auditor is optional.
	Auditor Auditor
}

// Collection runs the CRUD operations of one configured collection.
type Collection struct {
	cfg Config
}

// New validates cfg and builds a Collection.
func New(cfg Config) (*Collection, error) {
	if cfg.Source == nil {
		return nil, fmt.Errorf("collection %q: data source is required", cfg.Name)
	}
	if cfg.Page != nil {
		if cfg.Page.Size <= 0 {
			return nil, fmt.Errorf("collection %q: page size must be positive, got %d", cfg.Name, cfg.Page.Size)
		}
		if cfg.Page.Param == "" {
			page := *cfg.Page
			page.Param = DefaultPageParam
			cfg.Page = &page
		}
	}
	if cfg.Authorizer == nil {
		cfg.Authorizer = AllowAll
	}
	return &Collection{cfg: cfg}, nil
}

// Name returns the configured collection name.
func (c *Collection) Name() string {
	return c.cfg.Name
}

// Execute dispatches env and runs the matching operation.
func (c *Collection) Execute(ctx context.Context, env Envelope) Result {
	action, err := Dispatch(env.Verb, env.ID)
	if err != nil {
		return FailureFrom(err)
	}

	switch action {
	case ActionReadOne:
		return c.ReadOne(ctx, env.ID)
	case ActionReadMany:
		return c.ReadMany(ctx, env.Query)
	case ActionCreate:
		return c.Create(ctx, env.Input())
	case ActionUpdate:
		return c.Update(ctx, env.ID, env.Input())
	case ActionDelete:
		return c.Delete(ctx, env.ID)
	}
	return Failure(errs.NewMethodNotAllowedError(MsgMethodNotAllowed))
}

func notFound() Result {
	return Failure(errs.NewNotFoundError("Not found", false, nil))
}

func (c *Collection) logger(ctx context.Context, actor Actor) zerolog.Logger {
	return zerolog.Ctx(ctx).With().
		Str("collection", c.cfg.Name).
		Str("actor", actor.ID).
		Logger()
}

// fetchOne returns the single record with id. ok is false when zero or more
// than one record matched.
func (c *Collection) fetchOne(ctx context.Context, id string) (Record, bool, error) {
	records, err := c.cfg.Source.FilterByID(ctx, id)
	if err != nil {
		return Record{}, false, err
	}
	if len(records) != 1 {
		return Record{}, false, nil
	}
	return records[0], true, nil
}

func (c *Collection) sourceFailure(ctx context.Context, actor Actor, err error) Result {
	l := c.logger(ctx, actor)
	l.Error().Err(err).Msg("data source failed")
	return FailureFrom(err)
}

// ReadOne answers GET /collection/id.
//
// A denied read is indistinguishable from a missing record.
func (c *Collection) ReadOne(ctx context.Context, id string) Result {
	actor := ActorFrom(ctx)

	record, ok, err := c.fetchOne(ctx, id)
	if err != nil {
		return c.sourceFailure(ctx, actor, err)
	}
	if !ok {
		return notFound()
	}
	if !c.cfg.Authorizer.Authorize(ctx, actor, &record, PermReadSingle) {
		return notFound()
	}

	return Success(Serialize([]Record{record}, c.cfg.Fields, true, nil, 0))
}

// ReadMany answers GET /collection, honoring the page query parameter.
func (c *Collection) ReadMany(ctx context.Context, query url.Values) Result {
	actor := ActorFrom(ctx)

	pageNumber := 1
	if c.cfg.Page != nil {
		pageNumber = PageNumber(query.Get(c.cfg.Page.Param))
		if w, ok := c.cfg.Source.(Windowed); ok {
			return c.readWindow(ctx, actor, w, pageNumber)
		}
	}

	records, err := c.cfg.Source.All(ctx)
	if err != nil {
		return c.sourceFailure(ctx, actor, err)
	}

	if !c.authorizeCollection(ctx, actor, records) {
		return notFound()
	}

	return Success(Serialize(records, c.cfg.Fields, false, c.cfg.Page, pageNumber))
}

// readWindow reads only the requested page. Authorization still looks at the
// first record of the whole collection.
func (c *Collection) readWindow(ctx context.Context, actor Actor, w Windowed, pageNumber int) Result {
	offset := pageOffset(c.cfg.Page.Size, pageNumber)

	page, err := w.Window(ctx, offset, c.cfg.Page.Size)
	if err != nil {
		return c.sourceFailure(ctx, actor, err)
	}

	head := page
	if offset > 0 {
		if head, err = w.Window(ctx, 0, 1); err != nil {
			return c.sourceFailure(ctx, actor, err)
		}
	}

	if !c.authorizeCollection(ctx, actor, head) {
		return notFound()
	}

	return Success(Serialize(page, c.cfg.Fields, false, nil, 0))
}

func (c *Collection) authorizeCollection(ctx context.Context, actor Actor, records []Record) bool {
	if len(records) > 0 {
		return c.cfg.Authorizer.Authorize(ctx, actor, &records[0], PermReadCollection)
	}

	switch c.cfg.EmptyCollection {
	case EmptyAllow:
		return true
	case EmptyDeny:
		return false
	default:
		return c.cfg.Authorizer.Authorize(ctx, actor, nil, PermReadCollection)
	}
}

// Create answers POST /collection.
func (c *Collection) Create(ctx context.Context, in Input) Result {
	if c.cfg.CreateForm == nil {
		return Failure(errs.NewNotImplementedError("POST not supported"))
	}

	actor := ActorFrom(ctx)
	if !c.cfg.Authorizer.Authorize(ctx, actor, nil, PermCreate) {
		return Failure(errs.NewForbiddenError("Permission denied", false))
	}

	form := c.cfg.CreateForm(in)
	bindRequest(form, in)

	l := c.logger(ctx, actor)

	if fieldErrs := form.Validate(ctx); !fieldErrs.Empty() {
		l.Warn().
			Interface("data", loggableData(in.Data)).
			Strs("files", fileNames(in.Files)).
			Interface("errors", fieldErrs).
			Msg("record creation failed validation")
		c.audit(ctx, AuditEvent{
			Action:  PermCreate.String(),
			Actor:   actor.ID,
			Outcome: OutcomeInvalid,
			Data:    in.Data,
			Errors:  fieldErrs,
		})
		return Failure(errs.FieldValidationError(fieldErrs))
	}

	record, err := c.saveAndReload(ctx, form, "")
	if err != nil {
		l.Error().Err(err).Msg("record creation failed")
		return FailureFrom(err)
	}

	l.Info().
		Interface("id", record.ID).
		Interface("data", loggableData(in.Data)).
		Strs("files", fileNames(in.Files)).
		Msg("record created")
	c.audit(ctx, AuditEvent{
		Action:   PermCreate.String(),
		Actor:    actor.ID,
		RecordID: record.ID,
		Outcome:  OutcomeSuccess,
		Data:     in.Data,
	})

	return Success(Serialize([]Record{record}, c.cfg.Fields, true, nil, 0))
}

// Update answers PUT /collection/id.
//
// A denied update answers 404, not 403, so unauthorized callers cannot probe
// which identifiers exist.
func (c *Collection) Update(ctx context.Context, id string, in Input) Result {
	if c.cfg.UpdateForm == nil {
		return Failure(errs.NewNotImplementedError("PUT not supported"))
	}

	actor := ActorFrom(ctx)

	existing, ok, err := c.fetchOne(ctx, id)
	if err != nil {
		return c.sourceFailure(ctx, actor, err)
	}
	if !ok {
		return notFound()
	}
	if !c.cfg.Authorizer.Authorize(ctx, actor, &existing, PermUpdate) {
		return notFound()
	}

	form := c.cfg.UpdateForm(existing, in)
	bindRequest(form, in)

	changes := diff(existing, in.Data, mutableFields(form))

	l := c.logger(ctx, actor).With().Interface("id", existing.ID).Logger()

	if fieldErrs := form.Validate(ctx); !fieldErrs.Empty() {
		l.Warn().
			Interface("changes", changes).
			Interface("errors", fieldErrs).
			Msg("record update failed validation")
		c.audit(ctx, AuditEvent{
			Action:   PermUpdate.String(),
			Actor:    actor.ID,
			RecordID: existing.ID,
			Outcome:  OutcomeInvalid,
			Data:     in.Data,
			Changes:  changes,
			Errors:   fieldErrs,
		})
		return Failure(errs.FieldValidationError(fieldErrs))
	}

	record, err := c.saveAndReload(ctx, form, id)
	if err != nil {
		l.Error().Err(err).Msg("record update failed")
		return FailureFrom(err)
	}

	l.Info().
		Interface("changes", changes).
		Strs("files", fileNames(in.Files)).
		Msg("record updated")
	c.audit(ctx, AuditEvent{
		Action:   PermUpdate.String(),
		Actor:    actor.ID,
		RecordID: record.ID,
		Outcome:  OutcomeSuccess,
		Data:     in.Data,
		Changes:  changes,
	})

	return Success(Serialize([]Record{record}, c.cfg.Fields, true, nil, 0))
}

// Delete answers DELETE /collection/id with an empty body.
func (c *Collection) Delete(ctx context.Context, id string) Result {
	actor := ActorFrom(ctx)

	existing, ok, err := c.fetchOne(ctx, id)
	if err != nil {
		return c.sourceFailure(ctx, actor, err)
	}
	if !ok {
		return notFound()
	}
	if !c.cfg.Authorizer.Authorize(ctx, actor, &existing, PermDelete) {
		return notFound()
	}

	if err := c.cfg.Source.DeleteByID(ctx, id); err != nil {
		return c.sourceFailure(ctx, actor, err)
	}

	l := c.logger(ctx, actor)
	l.Info().Interface("id", existing.ID).Msg("record deleted")
	c.audit(ctx, AuditEvent{
		Action:   PermDelete.String(),
		Actor:    actor.ID,
		RecordID: existing.ID,
		Outcome:  OutcomeSuccess,
	})

	return Success(nil)
}

// saveAndReload saves the form and re-reads the stored record, inside one
// transaction when the source supports it. id is the record being updated,
// empty on create.
func (c *Collection) saveAndReload(ctx context.Context, form Form, id string) (Record, error) {
	var record Record

	run := func(ctx context.Context) error {
		savedID, err := form.Save(ctx)
		if err != nil {
			return err
		}
		if id == "" {
			id = fmt.Sprint(savedID)
		}

		reloaded, ok, err := c.fetchOne(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("record %s vanished after save", id)
		}
		record = reloaded
		return nil
	}

	if tx, ok := c.cfg.Source.(Transactional); ok {
		return record, tx.WithinTx(ctx, run)
	}
	return record, run(ctx)
}

func (c *Collection) audit(ctx context.Context, event AuditEvent) {
	if c.cfg.Auditor == nil {
		return
	}
	event.Collection = c.cfg.Name
	event.At = time.Now().UTC()

	if err := c.cfg.Auditor.Audit(ctx, event); err != nil {
		l := zerolog.Ctx(ctx)
		l.Error().Err(err).
			Str("collection", event.Collection).
			Str("action", event.Action).
			Msg("failed to record audit event")
	}
}

func bindRequest(form Form, in Input) {
	if ra, ok := form.(RequestAware); ok && in.Request != nil {
		ra.SetRequest(in.Request)
	}
}

func (p Permission) String() string {
	return string(p)
}
