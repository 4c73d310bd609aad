package items

import (
	"time"
)

// Environment is the bitmask of publication environments an item is visible
// in. Zero means hidden everywhere.
type Environment int

const (
	EnvironmentHidden      Environment = 0
	EnvironmentDevelopment Environment = 1
	EnvironmentTest        Environment = 2
	EnvironmentAcceptance  Environment = 4
	EnvironmentLive        Environment = 8

	EnvironmentAll = EnvironmentDevelopment | EnvironmentTest | EnvironmentAcceptance | EnvironmentLive
)

// Item is one row of an item table, plus its typed key/value details.
type Item struct {
	ID             uint64
	OriginalItemID uint64
	ParentItemID   uint64
	UniqueUUID     string
	EntityType     string
	ModuleID       int

	// Optional scalar fields. Nil means "leave unchanged" on update.
	Title                *string
	PublishedEnvironment *Environment
	ReadOnly             *bool

	Removed bool

	AddedBy   string
	AddedOn   time.Time
	ChangedBy string
	ChangedOn time.Time

	// EncryptedID is the obfuscated id handed out to untrusted callers. It is
	// derived, never stored.
	EncryptedID string

	Details []ItemDetail
}

// SetTitle marks the title for persistence.
func (i *Item) SetTitle(title string) {
	i.Title = &title
}

// SetDetail adds or replaces a detail by key and language code and marks it
// changed.
func (i *Item) SetDetail(key, languageCode string, value any) {
	for index := range i.Details {
		detail := &i.Details[index]
		if detail.Key == key && detail.LanguageCode == languageCode && !detail.IsLinkProperty {
			detail.Value = value
			detail.Changed = true
			return
		}
	}

	i.Details = append(i.Details, ItemDetail{
		Key:          key,
		LanguageCode: languageCode,
		Value:        value,
		Changed:      true,
	})
}

// GetDetail returns the item-scoped detail with the given key and language
// code, or nil.
func (i *Item) GetDetail(key, languageCode string) *ItemDetail {
	for index := range i.Details {
		detail := &i.Details[index]
		if detail.Key == key && detail.LanguageCode == languageCode && !detail.IsLinkProperty {
			return detail
		}
	}
	return nil
}

// ItemDetail is one key/value property of an item, or of a link when
// IsLinkProperty is set.
type ItemDetail struct {
	ID           uint64
	Key          string
	LanguageCode string
	GroupName    string

	// Value is a scalar, or a []string / []any for multi-select fields.
	Value any

	ReadOnly bool

	// Changed marks the detail dirty; only changed details are persisted.
	Changed bool

	// Link-scoped details belong to a specific relationship instance instead
	// of the item itself.
	IsLinkProperty bool
	ItemLinkID     uint64
	LinkType       int
}

// Explicitly enumerated column lists for archive copies. Archive tables may
// legally have a superset or differently ordered schema, so copies never use
// SELECT *.
const (
	itemColumns = "`id`, `original_item_id`, `unique_uuid`, `parent_item_id`, `ordering`, `entity_type`, `moduleid`, " +
		"`published_environment`, `readonly`, `removed`, `title`, `added_on`, `added_by`, `changed_on`, `changed_by`"
	itemDetailColumns = "`id`, `language_code`, `item_id`, `groupname`, `key`, `value`, `long_value`"
	itemFileColumns   = "`id`, `item_id`, `content_type`, `content`, `content_url`, `file_name`, `extension`, " +
		"`added_on`, `added_by`, `title`, `property_name`, `itemlink_id`"
)

// maxValueColumnLength is the widest value that still fits the value column;
// anything longer goes to the long_value MEDIUMTEXT column.
const maxValueColumnLength = 1000

// MaximumLevelsToDuplicate bounds the recursion depth of DuplicateItem so a
// cyclic link graph terminates.
const MaximumLevelsToDuplicate = 25

// itemRow is the scan target for item table rows.
type itemRow struct {
	ID                   uint64     `bun:"id"`
	OriginalItemID       uint64     `bun:"original_item_id"`
	UniqueUUID           string     `bun:"unique_uuid"`
	ParentItemID         uint64     `bun:"parent_item_id"`
	Ordering             int        `bun:"ordering"`
	EntityType           string     `bun:"entity_type"`
	ModuleID             int        `bun:"moduleid"`
	PublishedEnvironment int        `bun:"published_environment"`
	ReadOnly             bool       `bun:"readonly"`
	Removed              bool       `bun:"removed"`
	Title                string     `bun:"title"`
	AddedOn              time.Time  `bun:"added_on"`
	AddedBy              string     `bun:"added_by"`
	ChangedOn            *time.Time `bun:"changed_on"`
	ChangedBy            *string    `bun:"changed_by"`
}

func (r *itemRow) toItem() *Item {
	environment := Environment(r.PublishedEnvironment)
	readOnly := r.ReadOnly
	title := r.Title

	item := &Item{
		ID:                   r.ID,
		OriginalItemID:       r.OriginalItemID,
		ParentItemID:         r.ParentItemID,
		UniqueUUID:           r.UniqueUUID,
		EntityType:           r.EntityType,
		ModuleID:             r.ModuleID,
		Title:                &title,
		PublishedEnvironment: &environment,
		ReadOnly:             &readOnly,
		Removed:              r.Removed,
		AddedBy:              r.AddedBy,
		AddedOn:              r.AddedOn,
	}
	if r.ChangedOn != nil {
		item.ChangedOn = *r.ChangedOn
	}
	if r.ChangedBy != nil {
		item.ChangedBy = *r.ChangedBy
	}
	return item
}

// storedDetail is an existing detail row used for change detection.
type storedDetail struct {
	ID           uint64  `bun:"id"`
	Key          string  `bun:"key"`
	LanguageCode string  `bun:"language_code"`
	GroupName    string  `bun:"groupname"`
	Value        string  `bun:"value"`
	LongValue    *string `bun:"long_value"`
}

func (d *storedDetail) storedValue() string {
	if d.LongValue != nil && *d.LongValue != "" {
		return *d.LongValue
	}
	return d.Value
}
