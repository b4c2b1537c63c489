package service

import (
	"context"

	"github.com/deppfellow/backboneapi/internal/collection"
)

// PermManageWidgets lets an organization member change any widget.
const PermManageWidgets = "org:widgets:manage"

// WidgetAuthorizer opens reads to everyone, lets any signed-in actor create,
// and limits update and delete to the owner or a widget manager.
type WidgetAuthorizer struct{}

func (WidgetAuthorizer) Authorize(_ context.Context, actor collection.Actor, record *collection.Record, perm collection.Permission) bool {
	switch perm {
	case collection.PermReadSingle, collection.PermReadCollection:
		return true
	case collection.PermCreate:
		return !actor.Anonymous()
	case collection.PermUpdate, collection.PermDelete:
		if actor.Anonymous() || record == nil {
			return false
		}
		if actor.Has(PermManageWidgets) {
			return true
		}
		owner, _ := record.Fields["owner_id"].(string)
		return owner != "" && owner == actor.ID
	}
	return false
}
