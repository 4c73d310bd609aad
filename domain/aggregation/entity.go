package aggregation

// Method is the roll-up applied to a parent item's column.
type Method string

const (
	MethodNone    Method = "none"
	MethodSum     Method = "sum"
	MethodMin     Method = "min"
	MethodMax     Method = "max"
	MethodAverage Method = "average"
)

// Detail is one property value of the item being aggregated.
type Detail struct {
	Key          string
	LanguageCode string
	Value        string

	// Link-scoped details carry the link they belong to.
	ItemLinkID uint64
	LinkType   int
}

// ItemData is the flattened view of an item handed to the engine. It is
// deliberately independent of the item store's own types.
type ItemData struct {
	ID         uint64
	EntityType string
	ModuleID   int
	Title      string
	Details    []Detail
}

// DetailValue returns the value of the named item-scoped detail, or "".
// Link-scoped details never feed the item's own columns; LinkDetailValue
// resolves those per link.
func (i *ItemData) DetailValue(key, languageCode string) string {
	for _, detail := range i.Details {
		if detail.ItemLinkID != 0 {
			continue
		}
		if detail.Key == key && detail.LanguageCode == languageCode {
			return detail.Value
		}
	}
	return ""
}

// LinkDetailValue returns the value of the named detail scoped to one link,
// or "".
func (i *ItemData) LinkDetailValue(linkID uint64, key, languageCode string) string {
	for _, detail := range i.Details {
		if detail.ItemLinkID != linkID {
			continue
		}
		if detail.Key == key && detail.LanguageCode == languageCode {
			return detail.Value
		}
	}
	return ""
}

// LinkTypes returns the distinct link types of the item's link-scoped
// details, in order of appearance.
func (i *ItemData) LinkTypes() []int {
	var types []int
	seen := map[int]bool{}
	for _, detail := range i.Details {
		if detail.ItemLinkID == 0 || detail.LinkType == 0 || seen[detail.LinkType] {
			continue
		}
		seen[detail.LinkType] = true
		types = append(types, detail.LinkType)
	}
	return types
}

// LinkIDs returns the distinct link ids carrying details of the given link
// type, in order of appearance.
func (i *ItemData) LinkIDs(linkType int) []uint64 {
	var ids []uint64
	seen := map[uint64]bool{}
	for _, detail := range i.Details {
		if detail.ItemLinkID == 0 || detail.LinkType != linkType || seen[detail.ItemLinkID] {
			continue
		}
		seen[detail.ItemLinkID] = true
		ids = append(ids, detail.ItemLinkID)
	}
	return ids
}

// fieldSettings is the aggregation configuration of one entity or link
// property. LinkType is zero for item-scoped properties; link-scoped ones
// aggregate into one row per link instead of one row per item.
type fieldSettings struct {
	PropertyName string
	LanguageCode string
	InputType    string
	TableName    string
	ColumnName   string
	LinkType     int

	// Parent roll-up, optional.
	Method           Method
	ParentTableName  string
	ParentColumnName string
	ParentLinkType   int
}

// aggregateOptions is the shape of the aggregate_options JSON column.
type aggregateOptions struct {
	TableName         string `json:"tableName"`
	ColumnName        string `json:"columnName"`
	AggregationMethod string `json:"aggregationMethod"`
	ParentTableName   string `json:"parentTableName"`
	ParentColumnName  string `json:"parentColumnName"`
	ParentLinkType    int    `json:"parentLinkType"`
}
