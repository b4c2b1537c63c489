package service

import (
	"context"
	"fmt"
	"math"
	"mime/multipart"
	"reflect"

	"github.com/deppfellow/backboneapi/internal/collection"
	"github.com/deppfellow/backboneapi/internal/errs"
	"github.com/deppfellow/backboneapi/internal/repository"
	"github.com/deppfellow/backboneapi/internal/sqlerr"
	"github.com/deppfellow/backboneapi/internal/validation"
	"github.com/go-viper/mapstructure/v2"
	"github.com/rs/zerolog"
)

// AttachmentField is the multipart field carrying a widget attachment.
const AttachmentField = "attachment"

// MaxAttachmentSize bounds uploaded attachments, in bytes.
const MaxAttachmentSize = 10 << 20

// WidgetInput holds the client-editable widget fields.
type WidgetInput struct {
	Name        string `mapstructure:"name" form:"name" validate:"required,max=120"`
	Description string `mapstructure:"description" form:"description" validate:"max=2000"`
	Quantity    int    `mapstructure:"quantity" form:"quantity" validate:"min=0,max=2147483647"`
	Status      string `mapstructure:"status" form:"status" validate:"required,oneof=draft active archived"`
}

var widgetInputFields = []string{"name", "description", "quantity", "status"}

// WidgetWriter persists widgets.
type WidgetWriter interface {
	Create(ctx context.Context, p repository.WidgetParams) (int64, error)
	Update(ctx context.Context, id int64, p repository.WidgetParams) error
}

// WidgetForm binds, validates and saves one widget.
type WidgetForm struct {
	writer   WidgetWriter
	input    WidgetInput
	bindErrs errs.FieldErrors
	files    collection.Files

	// prefillErrs are stored fields that no longer bind to WidgetInput.
	prefillErrs errs.FieldErrors

	// existing is set for updates.
	existing *collection.Record
	id       int64

	attachmentName *string
	attachmentSize *int64
}

// NewWidgetCreateForm builds a form for a new widget. Status defaults to draft.
func NewWidgetCreateForm(writer WidgetWriter, in collection.Input) *WidgetForm {
	f := &WidgetForm{
		writer: writer,
		input:  WidgetInput{Status: "draft"},
		files:  in.Files,
	}
	f.bindErrs = bind(in.Data, &f.input)
	return f
}

// NewWidgetUpdateForm builds a form pre-filled from the stored widget, so
// fields missing from the request keep their current values.
func NewWidgetUpdateForm(writer WidgetWriter, existing collection.Record, in collection.Input) *WidgetForm {
	f := &WidgetForm{
		writer:   writer,
		files:    in.Files,
		existing: &existing,
	}

	id, _ := existing.ID.(int64)
	f.id = id

	f.prefillErrs = bind(collection.Values(existing.Fields), &f.input)
	f.attachmentName = optional[string](existing.Fields["attachment_name"])
	f.attachmentSize = optional[int64](existing.Fields["attachment_size"])

	f.bindErrs = bind(in.Data, &f.input)
	return f
}

func optional[T any](v any) *T {
	if t, ok := v.(T); ok {
		return &t
	}
	return nil
}

// bind decodes the known fields of data into out one at a time, so every
// field that cannot be converted gets its own error.
func bind(data collection.Values, out *WidgetInput) errs.FieldErrors {
	fe := errs.FieldErrors{}
	for _, field := range widgetInputFields {
		v, ok := data[field]
		if !ok || v == nil {
			continue
		}

		dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
			WeaklyTypedInput: true,
			DecodeHook:       wholeNumbers,
			Result:           out,
		})
		if err != nil {
			fe.Add(errs.NonFieldKey, err.Error())
			continue
		}
		if err := dec.Decode(map[string]any{field: v}); err != nil {
			fe.Add(field, "has an invalid value")
		}
	}
	return fe
}

// wholeNumbers rejects floats that would lose their fraction or overflow when
// decoded into an integer field.
func wholeNumbers(from, to reflect.Type, data any) (any, error) {
	switch to.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
	default:
		return data, nil
	}
	if from.Kind() != reflect.Float32 && from.Kind() != reflect.Float64 {
		return data, nil
	}

	f := reflect.ValueOf(data).Float()
	if f != math.Trunc(f) || f >= math.MaxInt64 || f < math.MinInt64 {
		return nil, fmt.Errorf("%v is not a whole number", data)
	}
	return data, nil
}

// Mutable lists the fields Save writes from submitted data.
func (f *WidgetForm) Mutable() []string {
	return widgetInputFields
}

func (f *WidgetForm) attachment() (*multipart.FileHeader, bool) {
	headers := f.files[AttachmentField]
	if len(headers) == 0 {
		return nil, false
	}
	return headers[0], true
}

func (f *WidgetForm) Validate(ctx context.Context) collection.FieldErrors {
	if !f.prefillErrs.Empty() {
		l := zerolog.Ctx(ctx)
		l.Warn().
			Int64("id", f.id).
			Interface("errors", f.prefillErrs).
			Msg("stored widget fields did not bind")
	}

	fe := errs.FieldErrors{}
	for field, msgs := range f.bindErrs {
		fe[field] = append(fe[field], msgs...)
	}

	for field, msgs := range validation.Struct(f.input) {
		// A field that failed to bind is already reported.
		if _, seen := fe[field]; seen {
			continue
		}
		fe[field] = append(fe[field], msgs...)
	}

	if h, ok := f.attachment(); ok && h.Size > MaxAttachmentSize {
		fe.Add(AttachmentField, fmt.Sprintf("must not exceed %d bytes", MaxAttachmentSize))
	}

	return fe
}

func (f *WidgetForm) params(ownerID string) repository.WidgetParams {
	p := repository.WidgetParams{
		Name:           f.input.Name,
		Description:    f.input.Description,
		Quantity:       f.input.Quantity,
		Status:         f.input.Status,
		OwnerID:        ownerID,
		AttachmentName: f.attachmentName,
		AttachmentSize: f.attachmentSize,
	}
	if h, ok := f.attachment(); ok {
		name, size := h.Filename, h.Size
		p.AttachmentName = &name
		p.AttachmentSize = &size
	}
	return p
}

func (f *WidgetForm) Save(ctx context.Context) (any, error) {
	l := zerolog.Ctx(ctx)

	if f.existing == nil {
		id, err := f.writer.Create(ctx, f.params(collection.ActorFrom(ctx).ID))
		if err != nil {
			l.Error().Err(err).Msg("widget insert failed")
			return nil, sqlerr.HandleError(err)
		}
		return id, nil
	}

	owner, _ := f.existing.Fields["owner_id"].(string)
	if err := f.writer.Update(ctx, f.id, f.params(owner)); err != nil {
		l.Error().Err(err).Int64("id", f.id).Msg("widget update failed")
		return nil, sqlerr.HandleError(err)
	}
	return f.id, nil
}
