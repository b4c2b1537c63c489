package service

import (
	"bytes"
	"context"
	"mime/multipart"
	"testing"

	"github.com/deppfellow/backboneapi/internal/collection"
	"github.com/deppfellow/backboneapi/internal/errs"
	"github.com/deppfellow/backboneapi/internal/repository"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeWriter struct {
	created []repository.WidgetParams
	updated map[int64]repository.WidgetParams
	err     error
}

func (w *fakeWriter) Create(_ context.Context, p repository.WidgetParams) (int64, error) {
	if w.err != nil {
		return 0, w.err
	}
	w.created = append(w.created, p)
	return int64(len(w.created)), nil
}

func (w *fakeWriter) Update(_ context.Context, id int64, p repository.WidgetParams) error {
	if w.err != nil {
		return w.err
	}
	if w.updated == nil {
		w.updated = map[int64]repository.WidgetParams{}
	}
	w.updated[id] = p
	return nil
}

func existingWidget() collection.Record {
	name, size := "old.pdf", int64(12)
	return collection.Record{
		ID: int64(5),
		Fields: map[string]any{
			"name":            "bolt",
			"description":     "steel",
			"quantity":        int32(4),
			"status":          "active",
			"owner_id":        "user_1",
			"attachment_name": name,
			"attachment_size": size,
		},
	}
}

func TestWidgetCreateForm(t *testing.T) {
	ctx := collection.WithActor(context.Background(), collection.Actor{ID: "user_9"})
	w := &fakeWriter{}

	form := NewWidgetCreateForm(w, collection.Input{Data: collection.Values{
		"name":     "bolt",
		"quantity": "3",
	}})

	assert.Empty(t, form.Validate(ctx))

	id, err := form.Save(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), id)

	require.Len(t, w.created, 1)
	got := w.created[0]
	assert.Equal(t, "bolt", got.Name)
	assert.Equal(t, 3, got.Quantity)
	assert.Equal(t, "draft", got.Status)
	assert.Equal(t, "user_9", got.OwnerID)
	assert.Nil(t, got.AttachmentName)
}

func TestWidgetCreateFormJSONNumbers(t *testing.T) {
	form := NewWidgetCreateForm(&fakeWriter{}, collection.Input{Data: collection.Values{
		"name":     "bolt",
		"quantity": float64(7),
		"status":   "archived",
	}})

	assert.Empty(t, form.Validate(context.Background()))
	assert.Equal(t, 7, form.input.Quantity)
}

func TestWidgetCreateFormInvalid(t *testing.T) {
	form := NewWidgetCreateForm(&fakeWriter{}, collection.Input{Data: collection.Values{
		"quantity": "many",
		"status":   "lost",
	}})

	fe := form.Validate(context.Background())
	assert.Equal(t, []string{"is required"}, fe["name"])
	assert.Equal(t, []string{"has an invalid value"}, fe["quantity"])
	assert.Contains(t, fe, "status")
}

func TestWidgetCreateFormNegativeQuantity(t *testing.T) {
	form := NewWidgetCreateForm(&fakeWriter{}, collection.Input{Data: collection.Values{
		"name":     "bolt",
		"quantity": -1,
	}})

	fe := form.Validate(context.Background())
	assert.Contains(t, fe, "quantity")
	assert.NotContains(t, fe, "name")
}

func TestWidgetCreateFormQuantityBounds(t *testing.T) {
	tests := []struct {
		name     string
		quantity any
		valid    bool
	}{
		{name: "whole float", quantity: float64(4), valid: true},
		{name: "fractional float", quantity: 3.7},
		{name: "fractional string", quantity: "3.7"},
		{name: "int4 maximum", quantity: float64(2147483647), valid: true},
		{name: "beyond int4", quantity: float64(3e9)},
		{name: "beyond int4 as text", quantity: "3000000000"},
		{name: "beyond int64", quantity: 1e20},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			form := NewWidgetCreateForm(&fakeWriter{}, collection.Input{Data: collection.Values{
				"name":     "bolt",
				"quantity": tt.quantity,
			}})

			fe := form.Validate(context.Background())
			if tt.valid {
				assert.Empty(t, fe)
				return
			}
			assert.Contains(t, fe, "quantity")
		})
	}
}

func TestWidgetFormMutableFields(t *testing.T) {
	var form collection.Form = NewWidgetUpdateForm(&fakeWriter{}, existingWidget(), collection.Input{})

	m, ok := form.(collection.Mutator)
	require.True(t, ok)
	assert.ElementsMatch(t, []string{"name", "description", "quantity", "status"}, m.Mutable())
}

func TestWidgetUpdateFormLogsStoredFieldsThatDoNotBind(t *testing.T) {
	existing := existingWidget()
	existing.Fields["quantity"] = "lots"

	var buf bytes.Buffer
	ctx := zerolog.New(&buf).WithContext(context.Background())

	form := NewWidgetUpdateForm(&fakeWriter{}, existing, collection.Input{Data: collection.Values{"quantity": "2"}})
	assert.Empty(t, form.Validate(ctx))
	assert.Contains(t, buf.String(), "stored widget fields did not bind")
	assert.Contains(t, buf.String(), `"quantity"`)
}

func TestWidgetCreateFormAttachment(t *testing.T) {
	w := &fakeWriter{}
	in := collection.Input{
		Data:  collection.Values{"name": "bolt"},
		Files: collection.Files{AttachmentField: {{Filename: "spec.pdf", Size: 2048}}},
	}

	form := NewWidgetCreateForm(w, in)
	assert.Empty(t, form.Validate(context.Background()))

	_, err := form.Save(context.Background())
	require.NoError(t, err)

	require.NotNil(t, w.created[0].AttachmentName)
	assert.Equal(t, "spec.pdf", *w.created[0].AttachmentName)
	assert.Equal(t, int64(2048), *w.created[0].AttachmentSize)
}

func TestWidgetCreateFormAttachmentTooLarge(t *testing.T) {
	in := collection.Input{
		Data:  collection.Values{"name": "bolt"},
		Files: collection.Files{AttachmentField: {&multipart.FileHeader{Filename: "big.iso", Size: MaxAttachmentSize + 1}}},
	}

	fe := NewWidgetCreateForm(&fakeWriter{}, in).Validate(context.Background())
	assert.Contains(t, fe, AttachmentField)
}

func TestWidgetUpdateFormPrefills(t *testing.T) {
	w := &fakeWriter{}
	form := NewWidgetUpdateForm(w, existingWidget(), collection.Input{Data: collection.Values{
		"quantity": "9",
	}})

	assert.Empty(t, form.Validate(context.Background()))

	id, err := form.Save(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(5), id)

	got := w.updated[5]
	assert.Equal(t, "bolt", got.Name)
	assert.Equal(t, "steel", got.Description)
	assert.Equal(t, 9, got.Quantity)
	assert.Equal(t, "active", got.Status)
	assert.Equal(t, "user_1", got.OwnerID)
	require.NotNil(t, got.AttachmentName)
	assert.Equal(t, "old.pdf", *got.AttachmentName)
}

func TestWidgetUpdateFormClearsName(t *testing.T) {
	form := NewWidgetUpdateForm(&fakeWriter{}, existingWidget(), collection.Input{Data: collection.Values{
		"name": "",
	}})

	fe := form.Validate(context.Background())
	assert.Contains(t, fe, "name")
}

func TestWidgetFormSaveMapsDatabaseErrors(t *testing.T) {
	t.Run("unique violation", func(t *testing.T) {
		w := &fakeWriter{err: &pgconn.PgError{
			Code:           "23505",
			TableName:      "widgets",
			ConstraintName: "widgets_name_key",
			Severity:       "ERROR",
		}}
		form := NewWidgetCreateForm(w, collection.Input{Data: collection.Values{"name": "bolt"}})

		_, err := form.Save(context.Background())

		var httpErr *errs.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, 400, httpErr.Status)
	})

	t.Run("vanished row", func(t *testing.T) {
		w := &fakeWriter{err: pgx.ErrNoRows}
		form := NewWidgetUpdateForm(w, existingWidget(), collection.Input{})

		_, err := form.Save(context.Background())

		var httpErr *errs.HTTPError
		require.ErrorAs(t, err, &httpErr)
		assert.Equal(t, 404, httpErr.Status)
	})
}
