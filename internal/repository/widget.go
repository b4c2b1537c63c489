package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// WidgetsTable is the table behind the widgets collection.
const WidgetsTable = "widgets"

// WidgetColumns are the serialized widget columns besides id.
var WidgetColumns = []string{
	"name",
	"description",
	"quantity",
	"status",
	"owner_id",
	"attachment_name",
	"attachment_size",
	"created_at",
	"updated_at",
}

// WidgetParams are the writable widget columns.
type WidgetParams struct {
	Name           string
	Description    string
	Quantity       int
	Status         string
	OwnerID        string
	AttachmentName *string
	AttachmentSize *int64
}

func (p WidgetParams) args() pgx.NamedArgs {
	return pgx.NamedArgs{
		"name":            p.Name,
		"description":     p.Description,
		"quantity":        p.Quantity,
		"status":          p.Status,
		"owner_id":        p.OwnerID,
		"attachment_name": p.AttachmentName,
		"attachment_size": p.AttachmentSize,
	}
}

// WidgetRepository writes widgets. Reads go through Source.
type WidgetRepository struct {
	pool   *pgxpool.Pool
	source *TableSource
}

func NewWidgetRepository(pool *pgxpool.Pool) *WidgetRepository {
	return &WidgetRepository{
		pool:   pool,
		source: NewTableSource(pool, WidgetsTable, WidgetColumns),
	}
}

// Source returns the collection data source for widgets.
func (r *WidgetRepository) Source() *TableSource {
	return r.source
}

const insertWidgetSQL = `
INSERT INTO widgets (name, description, quantity, status, owner_id, attachment_name, attachment_size)
VALUES (@name, @description, @quantity, @status, @owner_id, @attachment_name, @attachment_size)
RETURNING id`

// Create inserts a widget and returns its id.
func (r *WidgetRepository) Create(ctx context.Context, p WidgetParams) (int64, error) {
	var id int64
	if err := querier(ctx, r.pool).QueryRow(ctx, insertWidgetSQL, p.args()).Scan(&id); err != nil {
		return 0, fmt.Errorf("failed to insert widget: %w", err)
	}
	return id, nil
}

const updateWidgetSQL = `
UPDATE widgets SET
    name = @name,
    description = @description,
    quantity = @quantity,
    status = @status,
    attachment_name = @attachment_name,
    attachment_size = @attachment_size,
    updated_at = now()
WHERE id = @id`

// Update overwrites the writable columns of widget id. Ownership is never
// changed by an update.
func (r *WidgetRepository) Update(ctx context.Context, id int64, p WidgetParams) error {
	args := p.args()
	args["id"] = id

	tag, err := querier(ctx, r.pool).Exec(ctx, updateWidgetSQL, args)
	if err != nil {
		return fmt.Errorf("failed to update widget %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("table:%s: widget %d: %w", WidgetsTable, id, pgx.ErrNoRows)
	}
	return nil
}
