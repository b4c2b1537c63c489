package collection

import (
	"context"
	"net/http"
	"slices"
)

// Record is one stored item: its identifier plus named field values.
type Record struct {
	ID     any
	Fields map[string]any
}

// DataSource fetches and deletes records of one collection.
//
// Implementations return an empty slice, not an error, when nothing matches.
// An identifier that cannot be parsed by the source simply matches nothing.
type DataSource interface {
	FilterByID(ctx context.Context, id string) ([]Record, error)
	All(ctx context.Context) ([]Record, error)
	DeleteByID(ctx context.Context, id string) error
}

// Windowed is implemented by data sources that can read one page of the
// collection directly, in the same order as All.
type Windowed interface {
	Window(ctx context.Context, offset, limit int) ([]Record, error)
}

// Transactional is implemented by data sources that can run a write and the
// follow-up read in one transaction. fn must use the ctx it is given.
type Transactional interface {
	WithinTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// Input is the raw data a form is built from.
type Input struct {
	Data  Values
	Files Files

	// Request is the originating HTTP request, handed to RequestAware forms.
	Request *http.Request
}

// Form validates raw input and persists it.
type Form interface {
	// Validate returns field-level errors; an empty result means valid.
	Validate(ctx context.Context) FieldErrors
	// Save persists the validated input and returns the record identifier.
	Save(ctx context.Context) (any, error)
}

// RequestAware forms receive the HTTP request before validation.
type RequestAware interface {
	SetRequest(r *http.Request)
}

// Mutator is implemented by forms that write only some submitted fields.
// Update diffs are limited to the fields Mutable names.
type Mutator interface {
	Mutable() []string
}

// CreateFormFunc builds a form for a new record.
type CreateFormFunc func(in Input) Form

// UpdateFormFunc builds a form bound to an existing record.
type UpdateFormFunc func(existing Record, in Input) Form

// Permission names the operation an actor asks to perform.
type Permission string

const (
	PermReadSingle     Permission = "read_single_item"
	PermReadCollection Permission = "read_collection"
	PermCreate         Permission = "create"
	PermUpdate         Permission = "update"
	PermDelete         Permission = "delete"
)

// Authorizer decides whether actor may perform perm. record is nil for
// create, and for read_collection on an empty collection.
type Authorizer interface {
	Authorize(ctx context.Context, actor Actor, record *Record, perm Permission) bool
}

// AuthorizerFunc adapts a function to Authorizer.
type AuthorizerFunc func(ctx context.Context, actor Actor, record *Record, perm Permission) bool

func (f AuthorizerFunc) Authorize(ctx context.Context, actor Actor, record *Record, perm Permission) bool {
	return f(ctx, actor, record, perm)
}

// AllowAll grants every request.
var AllowAll Authorizer = AuthorizerFunc(func(context.Context, Actor, *Record, Permission) bool {
	return true
})

// EmptyCollectionPolicy decides read_collection authorization when there is
// no record to check against.
type EmptyCollectionPolicy int

const (
	// EmptyAskAuthorizer calls the authorizer with a nil record.
	EmptyAskAuthorizer EmptyCollectionPolicy = iota
	// EmptyAllow returns an empty list without asking.
	EmptyAllow
	// EmptyDeny answers 404.
	EmptyDeny
)

// Actor is the authenticated caller.
type Actor struct {
	ID          string
	Role        string
	Permissions []string
}

// Anonymous reports whether no identity was established.
func (a Actor) Anonymous() bool {
	return a.ID == ""
}

// Has reports whether the actor holds permission.
func (a Actor) Has(permission string) bool {
	return slices.Contains(a.Permissions, permission)
}

type actorKey struct{}

// WithActor stores actor in ctx.
func WithActor(ctx context.Context, actor Actor) context.Context {
	return context.WithValue(ctx, actorKey{}, actor)
}

// ActorFrom returns the actor stored in ctx, or the anonymous actor.
func ActorFrom(ctx context.Context) Actor {
	actor, _ := ctx.Value(actorKey{}).(Actor)
	return actor
}
