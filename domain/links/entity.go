package links

import (
	"time"

	"github.com/uptrace/bun"
)

// ItemLink is a directed, typed edge between two items, stored in the shared
// link table or a per-type dedicated one.
type ItemLink struct {
	bun.BaseModel `bun:"table:wiser_itemlink,alias:wil"`

	ID                uint64    `bun:"id,pk,autoincrement"`
	ItemID            uint64    `bun:"item_id,notnull"`
	DestinationItemID uint64    `bun:"destination_item_id,notnull"`
	Ordering          int       `bun:"ordering,notnull,default:1"`
	Type              int       `bun:"type,notnull,default:1"`
	AddedOn           time.Time `bun:"added_on,notnull,default:current_timestamp"`
}

// ItemLinkDetail is one key/value property scoped to a link instead of an
// item.
type ItemLinkDetail struct {
	bun.BaseModel `bun:"table:wiser_itemlinkdetail,alias:wild"`

	ID           uint64  `bun:"id,pk,autoincrement"`
	LanguageCode string  `bun:"language_code,notnull,default:''"`
	ItemLinkID   uint64  `bun:"itemlink_id,notnull"`
	GroupName    string  `bun:"groupname,notnull,default:''"`
	Key          string  `bun:"key,notnull"`
	Value        string  `bun:"value,notnull,default:''"`
	LongValue    *string `bun:"long_value"`
}

// Explicitly enumerated column lists for the archive copies. Archive tables
// may legally have a superset or differently ordered schema, so copies must
// never rely on SELECT *.
const (
	itemLinkColumns       = "`id`, `item_id`, `destination_item_id`, `ordering`, `type`, `added_on`"
	itemLinkDetailColumns = "`id`, `language_code`, `itemlink_id`, `groupname`, `key`, `value`, `long_value`"
)
