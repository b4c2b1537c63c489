package collection_test

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"testing"

	"github.com/deppfellow/backboneapi/internal/collection"
	"github.com/deppfellow/backboneapi/internal/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type logLines []map[string]any

func (l logLines) messages() []string {
	var out []string
	for _, line := range l {
		if msg, ok := line["message"].(string); ok {
			out = append(out, msg)
		}
	}
	return out
}

func (l logLines) find(message string) map[string]any {
	for _, line := range l {
		if line["message"] == message {
			return line
		}
	}
	return nil
}

type harness struct {
	source  *testutil.MemorySource
	auditor *testutil.RecordingAuditor
	coll    *collection.Collection
	logs    *bytes.Buffer
	actor   collection.Actor
}

func newHarness(t *testing.T, mutate func(*collection.Config)) *harness {
	t.Helper()

	h := &harness{
		source: testutil.NewMemorySource(
			map[string]any{"name": "bolt", "quantity": int64(3)},
			map[string]any{"name": "nut", "quantity": int64(10)},
		),
		auditor: &testutil.RecordingAuditor{},
		logs:    &bytes.Buffer{},
		actor:   collection.Actor{ID: "user_1"},
	}

	cfg := collection.Config{
		Name:       "widgets",
		Source:     h.source,
		CreateForm: testutil.CreateForm(h.source, "name"),
		UpdateForm: testutil.UpdateForm(h.source, "name"),
		Auditor:    h.auditor,
	}
	if mutate != nil {
		mutate(&cfg)
	}

	coll, err := collection.New(cfg)
	require.NoError(t, err)
	h.coll = coll
	return h
}

func (h *harness) ctx() context.Context {
	logger := zerolog.New(h.logs)
	return collection.WithActor(logger.WithContext(context.Background()), h.actor)
}

func (h *harness) lines(t *testing.T) logLines {
	t.Helper()

	var out logLines
	sc := bufio.NewScanner(bytes.NewReader(h.logs.Bytes()))
	for sc.Scan() {
		var line map[string]any
		require.NoError(t, json.Unmarshal(sc.Bytes(), &line))
		out = append(out, line)
	}
	return out
}

func (h *harness) exec(t *testing.T, env collection.Envelope) collection.Result {
	t.Helper()
	if env.Data == nil {
		env.Data = collection.Values{}
	}
	return h.coll.Execute(h.ctx(), env)
}

func TestNewRequiresSource(t *testing.T) {
	_, err := collection.New(collection.Config{Name: "widgets"})
	require.Error(t, err)

	_, err = collection.New(collection.Config{Name: "widgets", Source: testutil.NewMemorySource(), Page: &collection.PageSpec{}})
	require.Error(t, err)
}

func TestReadOne(t *testing.T) {
	h := newHarness(t, nil)

	res := h.exec(t, collection.Envelope{Verb: collection.VerbGet, ID: "2"})
	require.True(t, res.OK())
	assert.Equal(t, map[string]any{"id": int64(2), "name": "nut", "quantity": int64(10)}, res.Payload)

	res = h.exec(t, collection.Envelope{Verb: collection.VerbGet, ID: "9999"})
	assert.Equal(t, http.StatusNotFound, res.Status())
	assert.Equal(t, "Not found", res.Err.Message)

	res = h.exec(t, collection.Envelope{Verb: collection.VerbGet, ID: "abc"})
	assert.Equal(t, http.StatusNotFound, res.Status())
}

func TestReadOneDeniedLooksMissing(t *testing.T) {
	h := newHarness(t, func(cfg *collection.Config) {
		cfg.Authorizer = collection.AuthorizerFunc(func(_ context.Context, _ collection.Actor, _ *collection.Record, perm collection.Permission) bool {
			return perm != collection.PermReadSingle
		})
	})

	res := h.exec(t, collection.Envelope{Verb: collection.VerbGet, ID: "1"})
	assert.Equal(t, http.StatusNotFound, res.Status())
}

func TestReadOneRestrictsFields(t *testing.T) {
	h := newHarness(t, func(cfg *collection.Config) {
		cfg.Fields = collection.FieldSet{"name"}
	})

	res := h.exec(t, collection.Envelope{Verb: collection.VerbGet, ID: "1"})
	assert.Equal(t, map[string]any{"id": int64(1), "name": "bolt"}, res.Payload)
}

func TestReadManyPagination(t *testing.T) {
	h := newHarness(t, func(cfg *collection.Config) {
		cfg.Page = &collection.PageSpec{Size: 10}
	})
	for range 23 {
		h.source.Insert(map[string]any{"name": "filler"})
	}

	page := func(q string) []map[string]any {
		res := h.exec(t, collection.Envelope{Verb: collection.VerbGet, Query: url.Values{"p": {q}}})
		require.True(t, res.OK())
		return res.Payload.([]map[string]any)
	}

	assert.Len(t, page("1"), 10)
	assert.Len(t, page("3"), 5)
	assert.Empty(t, page("4"))
	assert.Equal(t, page("1"), page("abc"))
}

type windowSource struct {
	*testutil.MemorySource
	windows [][2]int
}

func (s *windowSource) All(context.Context) ([]collection.Record, error) {
	return nil, errors.New("full scan")
}

func (s *windowSource) Window(ctx context.Context, offset, limit int) ([]collection.Record, error) {
	s.windows = append(s.windows, [2]int{offset, limit})
	all, err := s.MemorySource.All(ctx)
	if err != nil || offset >= len(all) {
		return nil, err
	}
	return all[offset:min(offset+limit, len(all))], nil
}

func TestReadManyWindowed(t *testing.T) {
	src := &windowSource{MemorySource: testutil.NewMemorySource()}
	for i := range 23 {
		src.Insert(map[string]any{"name": fmt.Sprintf("w%d", i+1)})
	}

	var authorized []any
	coll, err := collection.New(collection.Config{
		Name:   "widgets",
		Source: src,
		Page:   &collection.PageSpec{Size: 10},
		Authorizer: collection.AuthorizerFunc(func(_ context.Context, _ collection.Actor, r *collection.Record, _ collection.Permission) bool {
			authorized = append(authorized, r.ID)
			return true
		}),
	})
	require.NoError(t, err)

	res := coll.ReadMany(context.Background(), url.Values{"p": {"3"}})
	require.True(t, res.OK())
	list := res.Payload.([]map[string]any)
	require.Len(t, list, 3)
	assert.Equal(t, int64(21), list[0]["id"])

	assert.Equal(t, [][2]int{{20, 10}, {0, 1}}, src.windows)
	assert.Equal(t, []any{int64(1)}, authorized)

	res = coll.ReadMany(context.Background(), url.Values{"p": {"9223372036854775807"}})
	require.True(t, res.OK())
	assert.Empty(t, res.Payload)
}

func TestReadManyCustomPageParam(t *testing.T) {
	h := newHarness(t, func(cfg *collection.Config) {
		cfg.Page = &collection.PageSpec{Size: 1, Param: "page"}
	})

	res := h.exec(t, collection.Envelope{Verb: collection.VerbGet, Query: url.Values{"page": {"2"}}})
	list := res.Payload.([]map[string]any)
	require.Len(t, list, 1)
	assert.Equal(t, int64(2), list[0]["id"])
}

func TestReadManyAuthorization(t *testing.T) {
	var seen []*collection.Record
	deny := collection.AuthorizerFunc(func(_ context.Context, _ collection.Actor, r *collection.Record, _ collection.Permission) bool {
		seen = append(seen, r)
		return false
	})

	h := newHarness(t, func(cfg *collection.Config) { cfg.Authorizer = deny })
	res := h.exec(t, collection.Envelope{Verb: collection.VerbGet})
	assert.Equal(t, http.StatusNotFound, res.Status())
	require.Len(t, seen, 1)
	assert.Equal(t, int64(1), seen[0].ID)

	empty := func(policy collection.EmptyCollectionPolicy) collection.Result {
		coll, err := collection.New(collection.Config{
			Name:            "widgets",
			Source:          testutil.NewMemorySource(),
			Authorizer:      deny,
			EmptyCollection: policy,
		})
		require.NoError(t, err)
		return coll.ReadMany(context.Background(), nil)
	}

	seen = nil
	assert.Equal(t, http.StatusNotFound, empty(collection.EmptyAskAuthorizer).Status())
	require.Len(t, seen, 1)
	assert.Nil(t, seen[0])

	res = empty(collection.EmptyAllow)
	require.True(t, res.OK())
	assert.Equal(t, []map[string]any{}, res.Payload)

	assert.Equal(t, http.StatusNotFound, empty(collection.EmptyDeny).Status())
}

func TestCreate(t *testing.T) {
	h := newHarness(t, nil)

	res := h.exec(t, collection.Envelope{
		Verb: collection.VerbPost,
		Data: collection.Values{"name": "washer"},
	})
	require.True(t, res.OK())
	assert.Equal(t, map[string]any{"id": int64(3), "name": "washer"}, res.Payload)
	assert.Equal(t, 3, h.source.Len())

	line := h.lines(t).find("record created")
	require.NotNil(t, line)
	assert.Equal(t, "widgets", line["collection"])
	assert.Equal(t, "user_1", line["actor"])
	assert.Equal(t, map[string]any{"name": "washer"}, line["data"])

	require.Len(t, h.auditor.Events, 1)
	event := h.auditor.Events[0]
	assert.Equal(t, "create", event.Action)
	assert.Equal(t, collection.OutcomeSuccess, event.Outcome)
	assert.Equal(t, int64(3), event.RecordID)
	assert.Equal(t, "widgets", event.Collection)
	assert.False(t, event.At.IsZero())
}

func TestCreateInvalid(t *testing.T) {
	h := newHarness(t, nil)

	res := h.exec(t, collection.Envelope{Verb: collection.VerbPost, Data: collection.Values{"name": ""}})
	assert.Equal(t, http.StatusBadRequest, res.Status())

	body, _, err := res.Body()
	require.NoError(t, err)
	assert.JSONEq(t, `{"name":["is required"]}`, string(body))
	assert.Equal(t, 2, h.source.Len())

	lines := h.lines(t)
	assert.NotContains(t, lines.messages(), "record created")
	line := lines.find("record creation failed validation")
	require.NotNil(t, line)
	assert.Equal(t, "warn", line["level"])

	require.Len(t, h.auditor.Events, 1)
	assert.Equal(t, collection.OutcomeInvalid, h.auditor.Events[0].Outcome)
}

func TestCreateInvalidMultipartFragment(t *testing.T) {
	h := newHarness(t, nil)
	req := multipartRequest(t, "/widgets", map[string]string{"quantity": "4"}, map[string]string{"attachment": "a.txt"})

	env, err := collection.Normalize(req, "", 0)
	require.NoError(t, err)

	res := h.coll.Execute(h.ctx(), env)
	body, _, err := res.Body()
	require.NoError(t, err)

	fragment := string(collection.Fragment(res.Status(), body))
	assert.Contains(t, fragment, "<textarea status='400'>")
	assert.Contains(t, fragment, `"name":["is required"]`)
}

func TestCreateWithoutForm(t *testing.T) {
	h := newHarness(t, func(cfg *collection.Config) { cfg.CreateForm = nil })

	res := h.exec(t, collection.Envelope{Verb: collection.VerbPost})
	assert.Equal(t, http.StatusNotImplemented, res.Status())
	assert.Equal(t, "POST not supported", res.Err.Message)
}

func TestCreateDenied(t *testing.T) {
	h := newHarness(t, func(cfg *collection.Config) {
		cfg.Authorizer = collection.AuthorizerFunc(func(_ context.Context, a collection.Actor, _ *collection.Record, _ collection.Permission) bool {
			return !a.Anonymous()
		})
	})
	h.actor = collection.Actor{}

	res := h.exec(t, collection.Envelope{Verb: collection.VerbPost, Data: collection.Values{"name": "x"}})
	assert.Equal(t, http.StatusForbidden, res.Status())
	assert.Equal(t, 2, h.source.Len())
}

func TestCreateHandsRequestToForm(t *testing.T) {
	var got *testutil.MemoryForm
	h := newHarness(t, nil)
	build := testutil.CreateForm(h.source, "name")

	coll, err := collection.New(collection.Config{
		Name:   "widgets",
		Source: h.source,
		CreateForm: func(in collection.Input) collection.Form {
			f := build(in)
			got = f.(*testutil.MemoryForm)
			return f
		},
	})
	require.NoError(t, err)

	req := jsonRequest(http.MethodPost, "/widgets", `{"name":"pin"}`)
	env, err := collection.Normalize(req, "", 0)
	require.NoError(t, err)

	require.True(t, coll.Execute(h.ctx(), env).OK())
	require.NotNil(t, got)
	assert.Same(t, req, got.Request)
}

func TestUpdate(t *testing.T) {
	h := newHarness(t, nil)

	res := h.exec(t, collection.Envelope{Verb: collection.VerbPut, ID: "1", Data: collection.Values{"name": "hex bolt", "quantity": float64(3)}})
	require.True(t, res.OK())
	assert.Equal(t, "hex bolt", res.Payload.(map[string]any)["name"])

	line := h.lines(t).find("record updated")
	require.NotNil(t, line)
	assert.Equal(t, map[string]any{
		"name": map[string]any{"before": "bolt", "after": "hex bolt"},
	}, line["changes"])
}

func TestUpdateRepeatedLogsEmptyDiff(t *testing.T) {
	h := newHarness(t, nil)
	env := collection.Envelope{Verb: collection.VerbPut, ID: "2", Data: collection.Values{"name": "lock nut"}}

	require.True(t, h.exec(t, env).OK())
	h.logs.Reset()
	require.True(t, h.exec(t, env).OK())

	line := h.lines(t).find("record updated")
	require.NotNil(t, line)
	assert.Equal(t, map[string]any{}, line["changes"])
}

// renameForm writes only name and stamps updated_at on every save.
type renameForm struct {
	source *testutil.MemorySource
	id     int64
	name   any
	saves  *int
}

func (f *renameForm) Validate(context.Context) collection.FieldErrors {
	return collection.FieldErrors{}
}

func (f *renameForm) Save(context.Context) (any, error) {
	*f.saves++
	return f.id, f.source.Update(f.id, map[string]any{
		"name":       f.name,
		"updated_at": fmt.Sprintf("T%d", *f.saves),
	})
}

func (f *renameForm) Mutable() []string {
	return []string{"name"}
}

func TestUpdateDiffCoversOnlyMutableFields(t *testing.T) {
	var saves int
	h := newHarness(t, nil)

	id := h.source.Insert(map[string]any{"name": "washer", "owner_id": "user_1", "updated_at": "T0"})
	coll, err := collection.New(collection.Config{
		Name:   "widgets",
		Source: h.source,
		UpdateForm: func(existing collection.Record, in collection.Input) collection.Form {
			return &renameForm{source: h.source, id: existing.ID.(int64), name: in.Data["name"], saves: &saves}
		},
		Auditor: h.auditor,
	})
	require.NoError(t, err)
	h.coll = coll

	// Backbone sends the whole model, read-only columns included.
	env := collection.Envelope{
		Verb: collection.VerbPut,
		ID:   strconv.FormatInt(id, 10),
		Data: collection.Values{"name": "spring washer", "owner_id": "mallory", "updated_at": "T0"},
	}
	require.True(t, h.exec(t, env).OK())
	require.True(t, h.exec(t, env).OK())

	require.Len(t, h.auditor.Events, 2)
	assert.Equal(t, map[string]collection.Change{
		"name": {Before: "washer", After: "spring washer"},
	}, h.auditor.Events[0].Changes)
	assert.Empty(t, h.auditor.Events[1].Changes)

	stored, err := h.source.FilterByID(context.Background(), env.ID)
	require.NoError(t, err)
	assert.Equal(t, "user_1", stored[0].Fields["owner_id"])
}

func TestUpdateMissing(t *testing.T) {
	h := newHarness(t, nil)

	res := h.exec(t, collection.Envelope{Verb: collection.VerbPut, ID: "9999", Data: collection.Values{"name": "x"}})
	assert.Equal(t, http.StatusNotFound, res.Status())
	assert.Equal(t, "Not found", res.Err.Message)
	assert.NotContains(t, h.lines(t).messages(), "record updated")
	assert.Empty(t, h.auditor.Events)
}

func TestUpdateInvalid(t *testing.T) {
	h := newHarness(t, nil)

	res := h.exec(t, collection.Envelope{Verb: collection.VerbPut, ID: "1", Data: collection.Values{"name": ""}})
	assert.Equal(t, http.StatusBadRequest, res.Status())

	line := h.lines(t).find("record update failed validation")
	require.NotNil(t, line)
	assert.Contains(t, line, "changes")
	assert.Contains(t, line, "errors")

	stored, err := h.source.FilterByID(context.Background(), "1")
	require.NoError(t, err)
	assert.Equal(t, "bolt", stored[0].Fields["name"])
}

func TestUpdateWithoutForm(t *testing.T) {
	h := newHarness(t, func(cfg *collection.Config) { cfg.UpdateForm = nil })

	res := h.exec(t, collection.Envelope{Verb: collection.VerbPut, ID: "1"})
	assert.Equal(t, http.StatusNotImplemented, res.Status())
}

func TestMethodOverrideMatchesNativeVerb(t *testing.T) {
	native := newHarness(t, nil)
	overridden := newHarness(t, nil)

	env, err := collection.Normalize(jsonRequest(http.MethodPut, "/widgets/1", `{"name":"cap"}`), "1", 0)
	require.NoError(t, err)
	nativeRes := native.coll.Execute(native.ctx(), env)

	env, err = collection.Normalize(formRequest(http.MethodPost, "/widgets/1", url.Values{"_method": {"PUT"}, "name": {"cap"}}), "1", 0)
	require.NoError(t, err)
	overriddenRes := overridden.coll.Execute(overridden.ctx(), env)

	assert.Equal(t, nativeRes.Status(), overriddenRes.Status())
	assert.Equal(t, nativeRes.Payload, overriddenRes.Payload)
}

func TestDelete(t *testing.T) {
	h := newHarness(t, nil)

	res := h.exec(t, collection.Envelope{Verb: collection.VerbDelete, ID: "1"})
	require.True(t, res.OK())
	body, _, err := res.Body()
	require.NoError(t, err)
	assert.Empty(t, body)
	assert.Equal(t, 1, h.source.Len())
	assert.Contains(t, h.lines(t).messages(), "record deleted")

	res = h.exec(t, collection.Envelope{Verb: collection.VerbGet, ID: "1"})
	assert.Equal(t, http.StatusNotFound, res.Status())
}

func TestDeleteCollection(t *testing.T) {
	h := newHarness(t, nil)

	res := h.exec(t, collection.Envelope{Verb: collection.VerbDelete})
	assert.Equal(t, http.StatusMethodNotAllowed, res.Status())
	body, _, err := res.Body()
	require.NoError(t, err)
	assert.Equal(t, "DELETE is not supported for collections", string(body))
	assert.Equal(t, 2, h.source.Len())
}

func TestDeleteDenied(t *testing.T) {
	h := newHarness(t, func(cfg *collection.Config) {
		cfg.Authorizer = collection.AuthorizerFunc(func(_ context.Context, _ collection.Actor, _ *collection.Record, perm collection.Permission) bool {
			return perm != collection.PermDelete
		})
	})

	res := h.exec(t, collection.Envelope{Verb: collection.VerbDelete, ID: "1"})
	assert.Equal(t, http.StatusNotFound, res.Status())
	assert.Equal(t, 2, h.source.Len())
}

func TestSourceFailure(t *testing.T) {
	h := newHarness(t, nil)
	h.source.Err = errors.New("connection refused")

	res := h.exec(t, collection.Envelope{Verb: collection.VerbGet})
	assert.Equal(t, http.StatusInternalServerError, res.Status())
	assert.Contains(t, h.lines(t).messages(), "data source failed")
}

func TestAuditFailureDoesNotFailRequest(t *testing.T) {
	h := newHarness(t, nil)
	h.auditor.Err = errors.New("queue down")

	res := h.exec(t, collection.Envelope{Verb: collection.VerbDelete, ID: "2"})
	assert.True(t, res.OK())
	assert.Contains(t, h.lines(t).messages(), "failed to record audit event")
}

type txSource struct {
	*testutil.MemorySource
	calls int
}

func (s *txSource) WithinTx(ctx context.Context, fn func(context.Context) error) error {
	s.calls++
	return fn(ctx)
}

func TestSaveRunsInTransaction(t *testing.T) {
	src := &txSource{MemorySource: testutil.NewMemorySource()}
	coll, err := collection.New(collection.Config{
		Name:       "widgets",
		Source:     src,
		CreateForm: testutil.CreateForm(src.MemorySource),
	})
	require.NoError(t, err)

	res := coll.Create(context.Background(), collection.Input{Data: collection.Values{"name": "x"}})
	require.True(t, res.OK())
	assert.Equal(t, 1, src.calls)
}
