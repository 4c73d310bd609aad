package entities

import (
	"github.com/uptrace/bun"
)

// DeleteAction controls what happens to items of an entity type when they are
// deleted.
type DeleteAction string

const (
	// DeleteActionArchive moves rows to the shadow archive tables.
	DeleteActionArchive DeleteAction = "archive"
	// DeleteActionPermanent removes rows outright; such items cannot be undeleted.
	DeleteActionPermanent DeleteAction = "permanent"
	// DeleteActionHide flips the published environment to hidden.
	DeleteActionHide DeleteAction = "hide"
	// DeleteActionDisallow rejects deletion entirely.
	DeleteActionDisallow DeleteAction = "disallow"
)

// StoreType controls the physical storage model of an entity type.
type StoreType string

const (
	StoreTypeTable         StoreType = "table"
	StoreTypeDocumentStore StoreType = "document_store"
	StoreTypeHybrid        StoreType = "hybrid"
)

// SaveMode is the closed set of field save behaviors. The behavior is chosen
// once when entity metadata is loaded, from the field's input type and its
// options JSON, instead of being re-parsed per save.
type SaveMode int

const (
	// SaveModePlain stores the value as-is.
	SaveModePlain SaveMode = iota
	// SaveModeSecure hashes or encrypts the value before storage.
	SaveModeSecure
	// SaveModeDatePart narrows a date-time value to its date or time part.
	SaveModeDatePart
	// SaveModeNumeric normalizes decimal separators to invariant culture.
	SaveModeNumeric
	// SaveModeHTML runs the value through the HTML sanitization pass.
	SaveModeHTML
	// SaveModeLinkedSelection stores selected ids as item links of a
	// configured link type instead of as a detail row.
	SaveModeLinkedSelection
)

// SecurityMethod selects how a secure-input field protects its value.
type SecurityMethod string

const (
	SecurityMethodSHA512    SecurityMethod = "JCL_SHA512"
	SecurityMethodAESSalted SecurityMethod = "JCL_AES"
	SecurityMethodAES       SecurityMethod = "AES"
)

// DatePartGranularity narrows a date-time picker value.
type DatePartGranularity string

const (
	DatePartDateTime DatePartGranularity = ""
	DatePartDate     DatePartGranularity = "date"
	DatePartTime     DatePartGranularity = "time"
)

// FieldOptions is the decoded save behavior for one field of an entity type,
// keyed by property key and language code.
type FieldOptions struct {
	InputType        string
	SaveMode         SaveMode
	ReadOnly         bool
	AlsoSaveSeoValue bool

	// SaveModeSecure
	SecurityMethod SecurityMethod
	SecurityKey    string

	// SaveModeDatePart
	Granularity DatePartGranularity

	// SaveModeLinkedSelection
	LinkType                 int
	CurrentItemIsDestination bool
}

// AutoIncrementField identifies a property whose value is computed as the
// maximum stored value plus one on every save.
type AutoIncrementField struct {
	PropertyName string
	LanguageCode string
}

// Settings is the resolved metadata of one entity type.
type Settings struct {
	ID                         uint64
	EntityType                 string
	ModuleID                   int
	AcceptedChildTypes         []string
	DedicatedTablePrefix       string
	DeleteAction               DeleteAction
	StoreType                  StoreType
	SaveHistory                bool
	ShowInTreeView             bool
	EnableMultipleEnvironments bool
	QueryAfterInsert           string
	QueryAfterUpdate           string
	QueryBeforeUpdate          string
	QueryBeforeDelete          string

	AutoIncrementFields []AutoIncrementField

	// FieldOptions is keyed by "{key}_{languageCode}" with a "{key}" fallback
	// for language-neutral fields. Use FieldOptionsFor for lookup.
	FieldOptions map[string]FieldOptions
}

// FieldOptionsFor resolves the options for a property, preferring the
// language-specific entry.
func (s *Settings) FieldOptionsFor(key, languageCode string) (FieldOptions, bool) {
	if s.FieldOptions == nil {
		return FieldOptions{}, false
	}
	if languageCode != "" {
		if options, ok := s.FieldOptions[FieldOptionsKey(key, languageCode)]; ok {
			return options, true
		}
	}
	options, ok := s.FieldOptions[FieldOptionsKey(key, "")]
	return options, ok
}

// Entity is one row of the entity metadata table.
type Entity struct {
	bun.BaseModel `bun:"table:wiser_entity,alias:we"`

	ID                         uint64  `bun:"id,pk,autoincrement"`
	Name                       string  `bun:"name,notnull"`
	ModuleID                   int     `bun:"module_id,notnull,default:0"`
	AcceptedChildTypes         string  `bun:"accepted_childtypes"`
	ShowInTreeView             bool    `bun:"show_in_tree_view,notnull,default:1"`
	QueryAfterInsert           *string `bun:"query_after_insert"`
	QueryAfterUpdate           *string `bun:"query_after_update"`
	QueryBeforeUpdate          *string `bun:"query_before_update"`
	QueryBeforeDelete          *string `bun:"query_before_delete"`
	DedicatedTablePrefix       string  `bun:"dedicated_table_prefix"`
	DeleteAction               string  `bun:"delete_action,notnull,default:'archive'"`
	StoreType                  string  `bun:"store_type,notnull,default:'table'"`
	SaveHistory                bool    `bun:"save_history,notnull,default:1"`
	EnableMultipleEnvironments bool    `bun:"enable_multiple_environments,notnull,default:0"`
}

// EntityProperty is one row of the field metadata table.
type EntityProperty struct {
	bun.BaseModel `bun:"table:wiser_entityproperty,alias:wep"`

	ID               uint64  `bun:"id,pk,autoincrement"`
	ModuleID         int     `bun:"module_id,notnull,default:0"`
	EntityName       string  `bun:"entity_name"`
	LinkType         int     `bun:"link_type,notnull,default:0"`
	PropertyName     string  `bun:"property_name"`
	LanguageCode     string  `bun:"language_code"`
	InputType        string  `bun:"inputtype,notnull,default:'input'"`
	DisplayName      string  `bun:"display_name"`
	Options           *string `bun:"options"`
	AlsoSaveSeoValue  bool    `bun:"also_save_seo_value,notnull,default:0"`
	ReadOnly          bool    `bun:"readonly,notnull,default:0"`
	EnableAggregation bool    `bun:"enable_aggregation,notnull,default:0"`
	AggregateOptions  *string `bun:"aggregate_options"`
	Ordering          int     `bun:"ordering,notnull,default:0"`
}
