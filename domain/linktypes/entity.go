package linktypes

import (
	"github.com/uptrace/bun"
)

// Relationship is the cardinality of a link type.
type Relationship string

const (
	RelationshipOneToOne   Relationship = "one-to-one"
	RelationshipOneToMany  Relationship = "one-to-many"
	RelationshipManyToMany Relationship = "many-to-many"
)

// DuplicationMethod controls what happens to links of this type when their
// source item is duplicated.
type DuplicationMethod string

const (
	// DuplicationNone skips the link entirely.
	DuplicationNone DuplicationMethod = "none"
	// DuplicationCopyLink copies the link row, pointing at the original
	// destination item.
	DuplicationCopyLink DuplicationMethod = "copy-link"
	// DuplicationCopyItem recursively duplicates the linked item as well.
	DuplicationCopyItem DuplicationMethod = "copy-item"
)

// Settings is the resolved metadata of one link type.
type Settings struct {
	ID                    uint64
	Type                  int
	Name                  string
	SourceEntityType      string
	DestinationEntityType string
	Relationship          Relationship
	DuplicationMethod     DuplicationMethod

	// UseItemParentId stores the relation in the item's parent_item_id column
	// instead of as a link row.
	UseItemParentId bool

	// UseDedicatedTable stores link rows in a per-type table prefixed with
	// the type number.
	UseDedicatedTable bool

	// CascadeDelete deletes child items when the parent is deleted.
	CascadeDelete bool
}

// LinkType is one row of the link metadata table.
type LinkType struct {
	bun.BaseModel `bun:"table:wiser_link,alias:wl"`

	ID                    uint64 `bun:"id,pk,autoincrement"`
	Type                  int    `bun:"type,notnull"`
	DestinationEntityType string `bun:"destination_entity_type,notnull,default:''"`
	ConnectedEntityType   string `bun:"connected_entity_type,notnull,default:''"`
	Name                  string `bun:"name,notnull"`
	Relationship          string `bun:"relationship,notnull,default:'one-to-many'"`
	Duplication           string `bun:"duplication,notnull,default:'none'"`
	UseItemParentId       bool   `bun:"use_item_parent_id,notnull,default:0"`
	UseDedicatedTable     bool   `bun:"use_dedicated_table,notnull,default:0"`
	CascadeDelete         bool   `bun:"cascade_delete,notnull,default:0"`
}
