package collection

import (
	"github.com/deppfellow/backboneapi/internal/errs"
)

// Action is one of the five collection operations.
type Action int

const (
	ActionReadOne Action = iota + 1
	ActionReadMany
	ActionCreate
	ActionUpdate
	ActionDelete
)

func (a Action) String() string {
	switch a {
	case ActionReadOne:
		return "read_one"
	case ActionReadMany:
		return "read_many"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	}
	return "unknown"
}

// Fixed 405 bodies.
const (
	MsgMethodNotAllowed   = "Method not allowed"
	MsgPutNotSupported    = "PUT not supported"
	MsgDeleteOnCollection = "DELETE is not supported for collections"
)

// Dispatch maps a verb and the presence of an identifier to an action.
func Dispatch(verb Verb, id string) (Action, error) {
	switch verb {
	case VerbGet:
		if id != "" {
			return ActionReadOne, nil
		}
		return ActionReadMany, nil
	case VerbPost:
		return ActionCreate, nil
	case VerbPut:
		if id == "" {
			return 0, errs.NewMethodNotAllowedError(MsgPutNotSupported)
		}
		return ActionUpdate, nil
	case VerbDelete:
		if id == "" {
			return 0, errs.NewMethodNotAllowedError(MsgDeleteOnCollection)
		}
		return ActionDelete, nil
	}
	return 0, errs.NewMethodNotAllowedError(MsgMethodNotAllowed)
}
