package permissions

import (
	"github.com/uptrace/bun"
)

// AccessRights is the bitmask of rights a user has on a module or item.
type AccessRights int

const (
	AccessNothing AccessRights = 0
	AccessRead    AccessRights = 1
	AccessCreate  AccessRights = 2
	AccessUpdate  AccessRights = 4
	AccessDelete  AccessRights = 8

	AccessAll = AccessRead | AccessCreate | AccessUpdate | AccessDelete
)

// Has reports whether every bit of rights is present.
func (a AccessRights) Has(rights AccessRights) bool {
	return a&rights == rights
}

// EntityAction is an operation a user attempts on an item.
type EntityAction int

const (
	ActionRead EntityAction = iota
	ActionCreate
	ActionUpdate
	ActionDelete
)

// String returns the action name used in error messages.
func (a EntityAction) String() string {
	switch a {
	case ActionRead:
		return "read"
	case ActionCreate:
		return "create"
	case ActionUpdate:
		return "update"
	case ActionDelete:
		return "delete"
	default:
		return "unknown"
	}
}

// RequiredRights maps the action to the bit that must be set.
func (a EntityAction) RequiredRights() AccessRights {
	switch a {
	case ActionRead:
		return AccessRead
	case ActionCreate:
		return AccessCreate
	case ActionUpdate:
		return AccessUpdate
	case ActionDelete:
		return AccessDelete
	default:
		return AccessNothing
	}
}

// ItemMeta carries the item fields the evaluator needs. Callers that already
// loaded the item pass it to avoid a second read.
type ItemMeta struct {
	ID         uint64
	EntityType string
	ModuleID   int
	ReadOnly   bool
}

// Permission is one row of the permission metadata table. A row is scoped to
// a role and to either a module or a specific item.
type Permission struct {
	bun.BaseModel `bun:"table:wiser_permission,alias:wp"`

	ID               uint64 `bun:"id,pk,autoincrement"`
	RoleID           uint64 `bun:"role_id,notnull"`
	EntityName       string `bun:"entity_name,notnull,default:''"`
	ItemID           uint64 `bun:"item_id,notnull,default:0"`
	EntityPropertyID uint64 `bun:"entity_property_id,notnull,default:0"`
	Permissions      int    `bun:"permissions,notnull,default:0"`
	ModuleID         int    `bun:"module_id,notnull,default:0"`
}

// UserRole links a user to a role.
type UserRole struct {
	bun.BaseModel `bun:"table:wiser_userroles,alias:wur"`

	ID     uint64 `bun:"id,pk,autoincrement"`
	UserID uint64 `bun:"user_id,notnull"`
	RoleID uint64 `bun:"role_id,notnull"`
}
