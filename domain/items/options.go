package items

// SaveOptions controls Create and Update operations.
type SaveOptions struct {
	// Username and UserID attribute the change, both in audit columns and in
	// the session variables read by the history triggers.
	Username string
	UserID   uint64

	// AlwaysSaveValues writes every changed detail even when the new value
	// equals the stored one.
	AlwaysSaveValues bool

	// SaveHistory toggles the database-side history triggers.
	SaveHistory bool

	// CreateNewTransaction opens a dedicated transaction for this operation.
	// Leave it false when the operation runs as a sub-step of a larger one.
	CreateNewTransaction bool

	// SkipPermissionsCheck bypasses the permission evaluator. Only for
	// internal sub-operations that were already authorized.
	SkipPermissionsCheck bool

	// EncryptionKey overrides the configured key for encrypted ids and
	// secure-input fields.
	EncryptionKey string
}

// CreateOptions controls item creation.
type CreateOptions struct {
	SaveOptions

	// ParentItemID links the new item under a parent, either via a link row
	// or the parent_item_id column depending on the link type settings.
	ParentItemID uint64

	// ParentEntityType helps resolve the link type between child and parent.
	ParentEntityType string

	// LinkType selects the link type towards the parent. Zero resolves it
	// from the entity types.
	LinkType int
}

// ReadOptions controls item reads.
type ReadOptions struct {
	UserID               uint64
	SkipPermissionsCheck bool
	EncryptionKey        string

	// SkipDetails loads only the item row.
	SkipDetails bool
}

// DeleteOptions controls Delete and Undelete operations.
type DeleteOptions struct {
	Username             string
	UserID               uint64
	SaveHistory          bool
	CreateNewTransaction bool
	SkipPermissionsCheck bool

	// Undelete reverses an earlier archive or hide.
	Undelete bool
}

// DuplicateOptions controls item duplication.
type DuplicateOptions struct {
	SaveOptions

	// ParentItemID is the item the duplicate is linked under.
	ParentItemID     uint64
	ParentEntityType string

	// LinkType selects the link type towards the parent. Zero resolves it
	// from the entity types.
	LinkType int
}
