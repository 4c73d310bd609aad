// Package items stores schema-flexible items: fixed scalar columns on the
// item tables plus typed key/value details, with permission checks, workflow
// hooks and aggregation kept in step on every mutation.
package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/happy-geeks/geeks-core-library-sub000/domain/aggregation"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/entities"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/links"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/linktypes"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/permissions"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/workflows"
	"github.com/happy-geeks/geeks-core-library-sub000/internal/database"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/encryption"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/htmlcleaner"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/logger"
)

// defaultParentLinkType is used when a parent relation has no configured link
// type.
const defaultParentLinkType = 1

// Service owns the item lifecycle.
type Service struct {
	db          *bun.DB
	log         *slog.Logger
	entities    *entities.Service
	linkTypes   *linktypes.Service
	permissions *permissions.Service
	workflows   *workflows.Service
	links       *links.Service
	aggregation *aggregation.Engine
	encryption  *encryption.Service
	cleaner     *htmlcleaner.Cleaner
}

// NewService creates a new item store.
func NewService(
	db *bun.DB,
	log *slog.Logger,
	entityService *entities.Service,
	linkTypeService *linktypes.Service,
	permissionService *permissions.Service,
	workflowService *workflows.Service,
	linkService *links.Service,
	aggregationEngine *aggregation.Engine,
	encryptionService *encryption.Service,
	cleaner *htmlcleaner.Cleaner,
) *Service {
	return &Service{
		db:          db,
		log:         log.With(logger.Scope("items")),
		entities:    entityService,
		linkTypes:   linkTypeService,
		permissions: permissionService,
		workflows:   workflowService,
		links:       linkService,
		aggregation: aggregationEngine,
		encryption:  encryptionService,
		cleaner:     cleaner,
	}
}

// Save creates the item when it has no id yet and then persists its scalar
// fields and details.
func (s *Service) Save(ctx context.Context, db bun.IDB, item *Item, opts CreateOptions) (*Item, error) {
	if item == nil {
		return nil, apperror.ErrInvalidArgument.WithMessage("an item is required")
	}

	isNewItem := item.ID == 0
	if isNewItem {
		if _, err := s.Create(ctx, db, item, opts); err != nil {
			return nil, err
		}
	}

	return s.Update(ctx, db, item.ID, item, isNewItem, opts.SaveOptions)
}

// Create inserts the item row, links it under the optional parent and runs
// the entity type's after-insert workflow. Details are not persisted here;
// use Save or a follow-up Update for those.
func (s *Service) Create(ctx context.Context, db bun.IDB, item *Item, opts CreateOptions) (*Item, error) {
	if item == nil || item.EntityType == "" {
		return nil, apperror.ErrInvalidArgument.WithMessage("an item with an entity type is required")
	}

	settings, err := s.entities.GetEntityTypeSettings(ctx, item.EntityType, item.ModuleID)
	if err != nil {
		return nil, err
	}
	tablePrefix := entities.GetTablePrefix(settings)

	if opts.ParentItemID > 0 && !opts.SkipPermissionsCheck {
		ok, message, _, err := s.permissions.CheckIfEntityActionIsPossible(ctx, opts.ParentItemID, permissions.ActionCreate, opts.UserID, nil, opts.ParentEntityType)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, permissionDenied(message, permissions.ActionCreate, opts.ParentItemID, opts.UserID)
		}
	}

	if item.ModuleID == 0 {
		item.ModuleID = settings.ModuleID
	}
	if item.UniqueUUID == "" {
		item.UniqueUUID = uuid.NewString()
	}

	environment := EnvironmentAll
	if item.PublishedEnvironment != nil {
		environment = *item.PublishedEnvironment
	}
	readOnly := false
	if item.ReadOnly != nil {
		readOnly = *item.ReadOnly
	}
	title := ""
	if item.Title != nil {
		title = *item.Title
	}

	err = database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, saveHistory(settings, opts.SaveOptions)); err != nil {
			return err
		}

		result, err := tx.ExecContext(ctx,
			fmt.Sprintf("INSERT INTO `%swiser_item` (unique_uuid, entity_type, moduleid, published_environment, readonly, title, added_on, added_by) VALUES (?, ?, ?, ?, ?, ?, NOW(), ?)", tablePrefix),
			item.UniqueUUID, item.EntityType, item.ModuleID, int(environment), readOnly, title, opts.Username)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}

		newID, err := result.LastInsertId()
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		item.ID = uint64(newID)

		if opts.ParentItemID > 0 {
			if err := s.linkToParent(ctx, tx, tablePrefix, item, opts); err != nil {
				return err
			}
		}

		return nil
	})
	if err != nil {
		return nil, err
	}

	s.attachEncryptedID(item, opts.EncryptionKey)

	// The item is saved at this point. A failing workflow query is surfaced
	// to the caller but must not undo the insert.
	if _, err := s.workflows.ExecuteWorkflow(ctx, s.connection(db), true, settings, s.workflowValues(item, opts.SaveOptions)); err != nil {
		s.log.Warn("after-insert workflow failed",
			slog.Uint64("item_id", item.ID),
			logger.Error(err))
		return item, err
	}

	return item, nil
}

// Update persists the item's changed scalar fields and details and rebuilds
// the aggregation rows. The workflow query runs after the save is committed;
// its failure is surfaced but leaves the saved item in place.
func (s *Service) Update(ctx context.Context, db bun.IDB, itemID uint64, item *Item, isNewItem bool, opts SaveOptions) (*Item, error) {
	if item == nil || itemID == 0 {
		return nil, apperror.ErrInvalidArgument.WithMessage("an item with an id is required")
	}
	if item.EntityType == "" {
		return nil, apperror.ErrInvalidArgument.WithMessage("the item's entity type is required")
	}
	item.ID = itemID

	settings, err := s.entities.GetEntityTypeSettings(ctx, item.EntityType, item.ModuleID)
	if err != nil {
		return nil, err
	}
	tablePrefix := entities.GetTablePrefix(settings)

	if !opts.SkipPermissionsCheck {
		ok, message, _, err := s.permissions.CheckIfEntityActionIsPossible(ctx, itemID, permissions.ActionUpdate, opts.UserID, nil, item.EntityType)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, permissionDenied(message, permissions.ActionUpdate, itemID, opts.UserID)
		}
	}

	err = database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, saveHistory(settings, opts)); err != nil {
			return err
		}

		current := new(itemRow)
		err := tx.NewRaw(
			fmt.Sprintf("SELECT readonly, removed, entity_type, moduleid FROM `%swiser_item` WHERE id = ?", tablePrefix),
			itemID,
		).Scan(ctx, current)
		if errors.Is(err, sql.ErrNoRows) {
			return apperror.ErrNotFound.WithMessagef("item %d does not exist", itemID)
		}
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		if err := updateBlocked(current, itemID, isNewItem); err != nil {
			return err
		}

		if err := s.applyAutoIncrementFields(ctx, tx, tablePrefix, settings, item); err != nil {
			return err
		}
		if err := s.updateScalarColumns(ctx, tx, tablePrefix, item, opts); err != nil {
			return err
		}
		if err := s.saveDetails(ctx, tx, tablePrefix, settings, item, opts); err != nil {
			return err
		}

		return s.aggregation.HandleItemAggregation(ctx, tx, s.aggregationData(item))
	})
	if err != nil {
		return nil, err
	}

	for i := range item.Details {
		item.Details[i].Changed = false
	}
	if item.EncryptedID == "" {
		s.attachEncryptedID(item, opts.EncryptionKey)
	}

	// The save is committed at this point. A failing workflow query is
	// surfaced to the caller but must not undo it.
	if _, err := s.workflows.ExecuteWorkflow(ctx, s.connection(db), isNewItem, settings, s.workflowValues(item, opts)); err != nil {
		s.log.Warn("after-save workflow failed",
			slog.Uint64("item_id", item.ID),
			logger.Error(err))
		return item, err
	}

	return item, nil
}

// updateBlocked reports why the stored row cannot accept an update. Removed
// items never accept one; read only items only accept the writes of their own
// creation.
func updateBlocked(current *itemRow, itemID uint64, isNewItem bool) error {
	if current.Removed {
		return apperror.ErrInvalidState.WithMessagef("item %d has been removed", itemID)
	}
	if current.ReadOnly && !isNewItem {
		return apperror.ErrInvalidState.WithMessagef("item %d is read only", itemID)
	}
	return nil
}

// GetItemDetails loads one item with its details. Field metadata is applied
// so read only fields are flagged for the caller.
func (s *Service) GetItemDetails(ctx context.Context, db bun.IDB, itemID uint64, entityType string, opts ReadOptions) (*Item, error) {
	if itemID == 0 {
		return nil, apperror.ErrInvalidArgument.WithMessage("an item id is required")
	}

	if !opts.SkipPermissionsCheck {
		ok, message, _, err := s.permissions.CheckIfEntityActionIsPossible(ctx, itemID, permissions.ActionRead, opts.UserID, nil, entityType)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, permissionDenied(message, permissions.ActionRead, itemID, opts.UserID)
		}
	}

	tablePrefix, err := s.entities.GetTablePrefixForEntityType(ctx, entityType)
	if err != nil {
		return nil, err
	}
	conn := s.connection(db)

	row := new(itemRow)
	err = conn.NewRaw(
		fmt.Sprintf("SELECT %s FROM `%swiser_item` WHERE id = ?", itemColumns, tablePrefix),
		itemID,
	).Scan(ctx, row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrNotFound.WithMessagef("item %d does not exist", itemID)
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	item := row.toItem()
	s.attachEncryptedID(item, opts.EncryptionKey)

	if opts.SkipDetails {
		return item, nil
	}

	settings, err := s.entities.GetEntityTypeSettings(ctx, item.EntityType, item.ModuleID)
	if err != nil {
		return nil, err
	}

	var details []storedDetail
	err = conn.NewRaw(
		fmt.Sprintf("SELECT id, `key`, language_code, groupname, `value`, long_value FROM `%swiser_itemdetail` WHERE item_id = ? ORDER BY id ASC", tablePrefix),
		itemID,
	).Scan(ctx, &details)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	for _, stored := range details {
		detail := ItemDetail{
			ID:           stored.ID,
			Key:          stored.Key,
			LanguageCode: stored.LanguageCode,
			GroupName:    stored.GroupName,
			Value:        stored.storedValue(),
		}
		if options, ok := settings.FieldOptionsFor(stored.Key, stored.LanguageCode); ok {
			detail.ReadOnly = options.ReadOnly
		}
		item.Details = append(item.Details, detail)
	}

	return item, nil
}

// RemoveReadOnlyAndNoPermissionFields strips details the caller must not see
// or post back: secure-input values, which never leave storage in readable
// form, and read only fields when the user lacks update rights.
func (s *Service) RemoveReadOnlyAndNoPermissionFields(ctx context.Context, item *Item, rights permissions.AccessRights) error {
	if item == nil || len(item.Details) == 0 {
		return nil
	}

	settings, err := s.entities.GetEntityTypeSettings(ctx, item.EntityType, item.ModuleID)
	if err != nil {
		return err
	}

	item.Details = removeProtectedDetails(settings, rights, item.Details)
	return nil
}

func removeProtectedDetails(settings *entities.Settings, rights permissions.AccessRights, details []ItemDetail) []ItemDetail {
	kept := details[:0]
	for _, detail := range details {
		options, ok := settings.FieldOptionsFor(detail.Key, detail.LanguageCode)
		if ok {
			if options.SaveMode == entities.SaveModeSecure {
				continue
			}
			if (options.ReadOnly || detail.ReadOnly) && !rights.Has(permissions.AccessUpdate) {
				continue
			}
		}
		kept = append(kept, detail)
	}
	return kept
}

// GetItemIDByUniqueUUID resolves an item id from its stable UUID.
func (s *Service) GetItemIDByUniqueUUID(ctx context.Context, db bun.IDB, uniqueUUID, entityType string) (uint64, error) {
	if uniqueUUID == "" {
		return 0, apperror.ErrInvalidArgument.WithMessage("a unique uuid is required")
	}

	tablePrefix, err := s.entities.GetTablePrefixForEntityType(ctx, entityType)
	if err != nil {
		return 0, err
	}

	var itemID uint64
	err = s.connection(db).NewRaw(
		fmt.Sprintf("SELECT id FROM `%swiser_item` WHERE unique_uuid = ? LIMIT 1", tablePrefix),
		uniqueUUID,
	).Scan(ctx, &itemID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, apperror.ErrNotFound.WithMessagef("no item with uuid '%s'", uniqueUUID)
	}
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}

	return itemID, nil
}

// ChangeEntityType moves an item to another entity type. It fails when the
// types are stored under different table prefixes, since that would require
// moving rows between physical tables.
func (s *Service) ChangeEntityType(ctx context.Context, db bun.IDB, itemID uint64, currentEntityType, newEntityType string, opts SaveOptions) error {
	if itemID == 0 || currentEntityType == "" || newEntityType == "" {
		return apperror.ErrInvalidArgument.WithMessage("item id, current and new entity type are required")
	}

	currentPrefix, err := s.entities.GetTablePrefixForEntityType(ctx, currentEntityType)
	if err != nil {
		return err
	}
	newPrefix, err := s.entities.GetTablePrefixForEntityType(ctx, newEntityType)
	if err != nil {
		return err
	}
	if currentPrefix != newPrefix {
		return apperror.ErrInvalidState.WithMessagef(
			"cannot change entity type '%s' to '%s': they are stored in different physical tables ('%swiser_item' vs '%swiser_item')",
			currentEntityType, newEntityType, currentPrefix, newPrefix)
	}

	if !opts.SkipPermissionsCheck {
		ok, message, _, err := s.permissions.CheckIfEntityActionIsPossible(ctx, itemID, permissions.ActionUpdate, opts.UserID, nil, currentEntityType)
		if err != nil {
			return err
		}
		if !ok {
			return permissionDenied(message, permissions.ActionUpdate, itemID, opts.UserID)
		}
	}

	return database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, opts.SaveHistory); err != nil {
			return err
		}

		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE `%swiser_item` SET entity_type = ?, changed_on = NOW(), changed_by = ? WHERE id = ?", currentPrefix),
			newEntityType, opts.Username, itemID)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}

		// The old aggregation rows describe an entity type the item no longer
		// has; the next save under the new type rebuilds them.
		return s.aggregation.DeleteAggregatedItems(ctx, tx, currentEntityType, []uint64{itemID})
	})
}

// linkToParent attaches a freshly created or duplicated item under its
// parent, either through the parent_item_id column or a link row, depending
// on the link type settings.
func (s *Service) linkToParent(ctx context.Context, tx bun.IDB, tablePrefix string, item *Item, opts CreateOptions) error {
	linkSettings, err := s.linkTypes.GetLinkTypeSettings(ctx, opts.LinkType, item.EntityType, opts.ParentEntityType)
	if err != nil {
		return err
	}

	if linkSettings.UseItemParentId {
		_, err := tx.ExecContext(ctx, fmt.Sprintf(
			"UPDATE `%swiser_item` AS item JOIN (SELECT COALESCE(MAX(ordering), 0) + 1 AS next_ordering FROM `%swiser_item` WHERE parent_item_id = ?) AS sibling SET item.parent_item_id = ?, item.ordering = sibling.next_ordering WHERE item.id = ?",
			tablePrefix, tablePrefix),
			opts.ParentItemID, opts.ParentItemID, item.ID)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		item.ParentItemID = opts.ParentItemID
		return nil
	}

	linkType := linkSettings.Type
	if linkType == 0 {
		linkType = defaultParentLinkType
	}

	_, err = s.links.AddItemLink(ctx, tx, item.ID, opts.ParentItemID, linkType, links.Options{
		Username:             opts.Username,
		UserID:               opts.UserID,
		SaveHistory:          opts.SaveHistory,
		SkipPermissionsCheck: true,
	})
	return err
}

// needsAutoIncrementValue reports whether the field still has to be assigned
// a number. A value handed in by the caller wins over the generated one.
func needsAutoIncrementValue(item *Item, field entities.AutoIncrementField) bool {
	detail := item.GetDetail(field.PropertyName, field.LanguageCode)
	return detail == nil || valueToString(detail.Value) == ""
}

// autoIncrementQuery selects one past the highest value other items of the
// same entity type store for the field.
func autoIncrementQuery(tablePrefix string) string {
	return fmt.Sprintf(
		"SELECT COALESCE(MAX(CAST(detail.`value` AS UNSIGNED)), 0) + 1 FROM `%swiser_itemdetail` AS detail JOIN `%swiser_item` AS item ON item.id = detail.item_id WHERE detail.`key` = ? AND detail.language_code = ? AND item.entity_type = ? AND detail.item_id <> ?",
		tablePrefix, tablePrefix)
}

// applyAutoIncrementFields fills empty auto-increment details with the next
// number for their entity type. The maximum is read without a row lock, so
// two concurrent saves can observe the same value.
func (s *Service) applyAutoIncrementFields(ctx context.Context, tx bun.IDB, tablePrefix string, settings *entities.Settings, item *Item) error {
	for _, field := range settings.AutoIncrementFields {
		if !needsAutoIncrementValue(item, field) {
			continue
		}

		var next uint64
		err := tx.NewRaw(autoIncrementQuery(tablePrefix),
			field.PropertyName, field.LanguageCode, item.EntityType, item.ID,
		).Scan(ctx, &next)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return apperror.ErrDatabase.WithInternal(err)
		}
		if next == 0 {
			next = 1
		}

		item.SetDetail(field.PropertyName, field.LanguageCode, strconv.FormatUint(next, 10))
	}

	return nil
}

// updateScalarColumns writes the provided scalar fields. Absent fields are
// left untouched; the audit columns always move.
func (s *Service) updateScalarColumns(ctx context.Context, tx bun.IDB, tablePrefix string, item *Item, opts SaveOptions) error {
	assignments, args := scalarAssignments(item, opts.Username)
	args = append(args, item.ID)

	_, err := tx.ExecContext(ctx,
		fmt.Sprintf("UPDATE `%swiser_item` SET %s WHERE id = ?", tablePrefix, strings.Join(assignments, ", ")),
		args...)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	return nil
}

// scalarAssignments builds the SET clause for the partial scalar update. The
// entity type is only backfilled on rows that do not carry one yet, so a save
// can never silently move an item between entity types.
func scalarAssignments(item *Item, username string) ([]string, []any) {
	assignments := []string{"changed_on = NOW()", "changed_by = ?"}
	args := []any{username}

	if item.Title != nil {
		assignments = append(assignments, "title = ?")
		args = append(args, *item.Title)
	}
	if item.PublishedEnvironment != nil {
		assignments = append(assignments, "published_environment = ?")
		args = append(args, int(*item.PublishedEnvironment))
	}
	if item.ReadOnly != nil {
		assignments = append(assignments, "readonly = ?")
		args = append(args, *item.ReadOnly)
	}
	if item.UniqueUUID != "" {
		assignments = append(assignments, "unique_uuid = ?")
		args = append(args, item.UniqueUUID)
	}
	if item.ParentItemID > 0 {
		assignments = append(assignments, "parent_item_id = ?")
		args = append(args, item.ParentItemID)
	}
	if item.EntityType != "" {
		assignments = append(assignments, "entity_type = IF(entity_type = '', ?, entity_type)")
		args = append(args, item.EntityType)
	}

	return assignments, args
}

// saveDetails persists every changed detail according to its field's save
// behavior, batching the resulting deletes and upserts per table.
func (s *Service) saveDetails(ctx context.Context, tx bun.IDB, tablePrefix string, settings *entities.Settings, item *Item, opts SaveOptions) error {
	stored, err := s.loadStoredDetails(ctx, tx, tablePrefix, item.ID)
	if err != nil {
		return err
	}

	batch := newDetailBatch(tablePrefix+"wiser_itemdetail", "item_id")
	linkBatches := map[string]*detailBatch{}

	for i := range item.Details {
		detail := &item.Details[i]
		if !detail.Changed || detail.Key == "" {
			continue
		}

		options, _ := settings.FieldOptionsFor(detail.Key, detail.LanguageCode)
		detail.ReadOnly = options.ReadOnly

		if detail.IsLinkProperty {
			if err := s.saveLinkDetail(ctx, linkBatches, detail, options, opts); err != nil {
				return err
			}
			continue
		}

		previous, hasPrevious := stored[storedKey(detail.Key, detail.LanguageCode)]

		// Read only fields accept their first value and freeze after that.
		if options.ReadOnly && hasPrevious && previous.storedValue() != "" {
			detail.Changed = false
			continue
		}

		if options.SaveMode == entities.SaveModeLinkedSelection {
			if err := s.saveLinkedSelection(ctx, tx, item, detail, options, opts); err != nil {
				return err
			}
			if hasPrevious {
				batch.delete(item.ID, detail.Key, detail.LanguageCode)
			}
			continue
		}

		raw := valueToString(detail.Value)
		value, err := s.applySaveMode(options, raw, opts.EncryptionKey)
		if err != nil {
			return err
		}

		if value == "" {
			if hasPrevious {
				batch.delete(item.ID, detail.Key, detail.LanguageCode)
			}
			if options.AlsoSaveSeoValue {
				batch.delete(item.ID, detail.Key+seoKeySuffix, detail.LanguageCode)
			}
			continue
		}

		if !opts.AlwaysSaveValues && hasPrevious && previous.storedValue() == value {
			continue
		}

		batch.upsert(item.ID, detail.Key, detail.LanguageCode, detail.GroupName, value)
		if options.AlsoSaveSeoValue && options.SaveMode != entities.SaveModeSecure {
			batch.upsert(item.ID, detail.Key+seoKeySuffix, detail.LanguageCode, detail.GroupName, seoValue(raw))
		}
	}

	if err := batch.flush(ctx, tx); err != nil {
		return err
	}
	for _, linkBatch := range linkBatches {
		if err := linkBatch.flush(ctx, tx); err != nil {
			return err
		}
	}

	return nil
}

// saveLinkDetail routes a link-scoped detail to the link detail table of its
// link type.
func (s *Service) saveLinkDetail(ctx context.Context, batches map[string]*detailBatch, detail *ItemDetail, options entities.FieldOptions, opts SaveOptions) error {
	if detail.ItemLinkID == 0 {
		return apperror.ErrInvalidArgument.WithMessagef("detail '%s' is link scoped but has no item link id", detail.Key)
	}

	linkSettings, err := s.linkTypes.GetLinkTypeSettings(ctx, detail.LinkType, "", "")
	if err != nil {
		return err
	}
	linkPrefix := linktypes.GetTablePrefixForLink(linkSettings)

	batch, ok := batches[linkPrefix]
	if !ok {
		batch = newDetailBatch(linkPrefix+"wiser_itemlinkdetail", "itemlink_id")
		batches[linkPrefix] = batch
	}

	value, err := s.applySaveMode(options, valueToString(detail.Value), opts.EncryptionKey)
	if err != nil {
		return err
	}
	if value == "" {
		batch.delete(detail.ItemLinkID, detail.Key, detail.LanguageCode)
		return nil
	}

	batch.upsert(detail.ItemLinkID, detail.Key, detail.LanguageCode, detail.GroupName, value)
	return nil
}

// saveLinkedSelection reconciles the selected ids of a field that stores its
// value as item links: links for dropped ids are removed, links for new ids
// are added, untouched ids are left alone.
func (s *Service) saveLinkedSelection(ctx context.Context, tx bun.IDB, item *Item, detail *ItemDetail, options entities.FieldOptions, opts SaveOptions) error {
	desired := parseSelectionIDs(detail.Value)
	desiredSet := map[uint64]bool{}
	for _, id := range desired {
		desiredSet[id] = true
	}

	linkOpts := links.Options{
		Username:             opts.Username,
		UserID:               opts.UserID,
		SaveHistory:          opts.SaveHistory,
		SkipPermissionsCheck: true,
	}

	var existing []links.ItemLink
	var err error
	if options.CurrentItemIsDestination {
		existing, err = s.links.GetLinksToDestination(ctx, tx, item.ID, options.LinkType)
	} else {
		existing, err = s.links.GetLinks(ctx, tx, item.ID, 0, options.LinkType)
	}
	if err != nil {
		return err
	}

	var removeIDs []uint64
	for _, link := range existing {
		other := link.DestinationItemID
		if options.CurrentItemIsDestination {
			other = link.ItemID
		}
		if desiredSet[other] {
			delete(desiredSet, other)
			continue
		}
		removeIDs = append(removeIDs, link.ID)
	}

	if len(removeIDs) > 0 {
		if err := s.links.RemoveItemLinksByID(ctx, tx, options.LinkType, removeIDs, linkOpts); err != nil {
			return err
		}
	}

	for _, id := range desired {
		if !desiredSet[id] {
			continue
		}
		source, destination := item.ID, id
		if options.CurrentItemIsDestination {
			source, destination = id, item.ID
		}
		if _, err := s.links.AddItemLink(ctx, tx, source, destination, options.LinkType, linkOpts); err != nil {
			return err
		}
	}

	return nil
}

func (s *Service) loadStoredDetails(ctx context.Context, tx bun.IDB, tablePrefix string, itemID uint64) (map[string]storedDetail, error) {
	var rows []storedDetail
	err := tx.NewRaw(
		fmt.Sprintf("SELECT id, `key`, language_code, groupname, `value`, long_value FROM `%swiser_itemdetail` WHERE item_id = ?", tablePrefix),
		itemID,
	).Scan(ctx, &rows)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	result := make(map[string]storedDetail, len(rows))
	for _, row := range rows {
		result[storedKey(row.Key, row.LanguageCode)] = row
	}
	return result, nil
}

// storedKey matches the unique key of the detail tables, which covers the
// owner, key and language code but not the group name.
func storedKey(key, languageCode string) string {
	return strings.ToLower(key) + "|" + strings.ToLower(languageCode)
}

// workflowValues builds the placeholder values available to workflow queries.
func (s *Service) workflowValues(item *Item, opts SaveOptions) map[string]string {
	values := map[string]string{
		"itemId":   strconv.FormatUint(item.ID, 10),
		"moduleId": strconv.Itoa(item.ModuleID),
		"userId":   strconv.FormatUint(opts.UserID, 10),
		"username": opts.Username,
	}
	if item.Title != nil {
		values["title"] = *item.Title
	}
	for _, detail := range item.Details {
		if detail.IsLinkProperty || detail.Key == "" {
			continue
		}
		values[detail.Key] = valueToString(detail.Value)
	}
	return values
}

// aggregationData flattens the item for the aggregation engine.
func (s *Service) aggregationData(item *Item) *aggregation.ItemData {
	data := &aggregation.ItemData{
		ID:         item.ID,
		EntityType: item.EntityType,
		ModuleID:   item.ModuleID,
	}
	if item.Title != nil {
		data.Title = *item.Title
	}
	for _, detail := range item.Details {
		data.Details = append(data.Details, aggregation.Detail{
			Key:          detail.Key,
			LanguageCode: detail.LanguageCode,
			Value:        valueToString(detail.Value),
			ItemLinkID:   detail.ItemLinkID,
			LinkType:     detail.LinkType,
		})
	}
	return data
}

func (s *Service) attachEncryptedID(item *Item, key string) {
	encryptedID, err := s.encryption.EncryptID(item.ID, key)
	if err != nil {
		s.log.Warn("could not encrypt item id",
			slog.Uint64("item_id", item.ID),
			logger.Error(err))
		return
	}
	item.EncryptedID = encryptedID
}

func saveHistory(settings *entities.Settings, opts SaveOptions) bool {
	return opts.SaveHistory && settings.SaveHistory
}

func (s *Service) connection(db bun.IDB) bun.IDB {
	if db != nil {
		return db
	}
	return s.db
}

func permissionDenied(message string, action permissions.EntityAction, itemID, userID uint64) error {
	err := apperror.ErrPermissionDenied.WithDetails(map[string]any{
		"action": action.String(),
		"itemId": itemID,
		"userId": userID,
	})
	if strings.TrimSpace(message) != "" {
		return err.WithMessage(message)
	}
	return err
}
