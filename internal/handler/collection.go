package handler

import (
	"time"

	"github.com/deppfellow/backboneapi/internal/collection"
	"github.com/deppfellow/backboneapi/internal/middleware"
	"github.com/deppfellow/backboneapi/internal/server"
	"github.com/labstack/echo/v4"
	"github.com/newrelic/go-agent/v3/integrations/nrpkgerrors"
	"github.com/newrelic/go-agent/v3/newrelic"
	"github.com/pkg/errors"
)

// IDParam is the route parameter holding the record identifier.
const IDParam = "id"

// CollectionHandler serves one collection on a collection URL and its
// item URL, e.g. /widgets and /widgets/:id, for every HTTP method.
type CollectionHandler struct {
	Handler
	collection *collection.Collection
	maxMemory  int64
}

func NewCollectionHandler(s *server.Server, coll *collection.Collection) *CollectionHandler {
	return &CollectionHandler{
		Handler:    NewHandler(s),
		collection: coll,
		maxMemory:  s.Config.Collections.MaxMultipartMemory,
	}
}

func actorFrom(c echo.Context) collection.Actor {
	role, _ := c.Get(middleware.UserRoleKey).(string)
	return collection.Actor{
		ID:          middleware.GetUserID(c),
		Role:        role,
		Permissions: middleware.GetPermissions(c),
	}
}

// Serve normalizes the request, runs the collection and renders the result.
// Every outcome, failures included, is written here rather than handed to
// the global error handler, so clients see the collection's exact bodies.
func (h *CollectionHandler) Serve(c echo.Context) error {
	start := time.Now()
	actor := actorFrom(c)

	// The collection adds its own name and actor fields.
	base := middleware.GetLogger(c)
	logger := base.With().
		Str("collection", h.collection.Name()).
		Str("actor", actor.ID).
		Logger()

	ctx := collection.WithActor(c.Request().Context(), actor)
	ctx = base.WithContext(ctx)
	c.SetRequest(c.Request().WithContext(ctx))

	txn := newrelic.FromContext(ctx)
	if txn != nil {
		txn.AddAttribute("collection.name", h.collection.Name())
	}

	env, err := collection.Normalize(c.Request(), c.Param(IDParam), h.maxMemory)

	var res collection.Result
	if err != nil {
		res = collection.FailureFrom(err)
	} else {
		res = h.collection.Execute(ctx, env)
	}

	responseHandler := responseHandlerFor(env.Encoding)
	duration := time.Since(start)

	event := logger.Debug()
	if !res.OK() && res.Status() >= 500 {
		event = logger.Error()
	}
	event.
		Str("operation", responseHandler.GetOperation()).
		Str("verb", string(env.Verb)).
		Str("encoding", string(env.Encoding)).
		Int("status", res.Status()).
		Dur("total_duration", duration).
		Msg("collection request handled")

	if txn != nil {
		txn.AddAttribute("collection.verb", string(env.Verb))
		txn.AddAttribute("collection.encoding", string(env.Encoding))
		txn.AddAttribute("total.duration_ms", duration.Milliseconds())
		if !res.OK() && res.Status() >= 500 {
			txn.NoticeError(nrpkgerrors.Wrap(errors.New(res.Err.Message)))
		}
		responseHandler.AddAttributes(txn, res)
	}

	return responseHandler.Handle(c, res)
}
