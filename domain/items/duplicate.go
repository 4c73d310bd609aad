package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"
	"github.com/uptrace/bun"

	"github.com/happy-geeks/geeks-core-library-sub000/domain/entities"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/links"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/linktypes"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/permissions"
	"github.com/happy-geeks/geeks-core-library-sub000/internal/database"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
)

// DuplicateItem copies an item with its details and files and links the copy
// under the given parent. Linked children follow each link type's duplication
// method: copy-link shares the child, copy-item duplicates it recursively.
func (s *Service) DuplicateItem(ctx context.Context, db bun.IDB, itemID uint64, entityType string, opts DuplicateOptions) (*Item, error) {
	if itemID == 0 || entityType == "" {
		return nil, apperror.ErrInvalidArgument.WithMessage("an item id and entity type are required")
	}

	if opts.ParentItemID > 0 && !opts.SkipPermissionsCheck {
		ok, message, _, err := s.permissions.CheckIfEntityActionIsPossible(ctx, opts.ParentItemID, permissions.ActionCreate, opts.UserID, nil, opts.ParentEntityType)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, permissionDenied(message, permissions.ActionCreate, opts.ParentItemID, opts.UserID)
		}
	}

	var newID uint64
	err := database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, opts.SaveHistory); err != nil {
			return err
		}

		id, err := s.duplicateInternal(ctx, tx, itemID, entityType, opts.ParentItemID, opts.ParentEntityType, opts.LinkType, 1, map[uint64]uint64{}, opts.SaveOptions)
		if err != nil {
			return err
		}
		newID = id
		return nil
	})
	if err != nil {
		return nil, err
	}

	item := &Item{ID: newID, OriginalItemID: itemID, EntityType: entityType}
	s.attachEncryptedID(item, opts.EncryptionKey)
	return item, nil
}

// duplicateInternal copies one item and walks its children. The duplicated
// map remembers source-to-copy ids so shared children are copied once and
// cycles terminate; the level counter bounds the depth regardless. A branch
// past the depth cap is dropped without failing the rest of the run.
func (s *Service) duplicateInternal(ctx context.Context, tx bun.IDB, itemID uint64, entityType string, parentID uint64, parentEntityType string, linkType, level int, duplicated map[uint64]uint64, opts SaveOptions) (uint64, error) {
	if level > MaximumLevelsToDuplicate {
		s.log.Warn("duplication stopped, item graph deeper than the maximum",
			slog.Uint64("item_id", itemID),
			slog.Int("max_levels", MaximumLevelsToDuplicate))
		return 0, nil
	}
	if newID, ok := duplicated[itemID]; ok {
		return newID, nil
	}

	settings, err := s.entities.GetEntityTypeSettings(ctx, entityType, 0)
	if err != nil {
		return 0, err
	}
	tablePrefix := entities.GetTablePrefix(settings)

	result, err := tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO `%swiser_item` (original_item_id, unique_uuid, entity_type, moduleid, published_environment, readonly, title, added_on, added_by) SELECT id, ?, entity_type, moduleid, published_environment, readonly, title, NOW(), ? FROM `%swiser_item` WHERE id = ?",
		tablePrefix, tablePrefix),
		uuid.NewString(), opts.Username, itemID)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	copied, err := result.RowsAffected()
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	if copied == 0 {
		return 0, apperror.ErrNotFound.WithMessagef("item %d does not exist", itemID)
	}

	lastID, err := result.LastInsertId()
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}
	newID := uint64(lastID)
	duplicated[itemID] = newID

	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO `%swiser_itemdetail` (language_code, item_id, groupname, `key`, `value`, long_value) SELECT language_code, ?, groupname, `key`, `value`, long_value FROM `%swiser_itemdetail` WHERE item_id = ?",
		tablePrefix, tablePrefix),
		newID, itemID)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}

	_, err = tx.ExecContext(ctx, fmt.Sprintf(
		"INSERT INTO `%swiser_itemfile` (item_id, content_type, content, content_url, file_name, extension, added_on, added_by, title, property_name, itemlink_id) SELECT ?, content_type, content, content_url, file_name, extension, NOW(), ?, title, property_name, 0 FROM `%swiser_itemfile` WHERE item_id = ? AND itemlink_id = 0",
		tablePrefix, tablePrefix),
		newID, opts.Username, itemID)
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}

	if parentID > 0 {
		duplicate := &Item{ID: newID, EntityType: entityType}
		createOpts := CreateOptions{
			SaveOptions:      opts,
			ParentItemID:     parentID,
			ParentEntityType: parentEntityType,
			LinkType:         linkType,
		}
		if err := s.linkToParent(ctx, tx, tablePrefix, duplicate, createOpts); err != nil {
			return 0, err
		}
	}

	if err := s.duplicateChildren(ctx, tx, itemID, newID, entityType, level, duplicated, opts); err != nil {
		return 0, err
	}

	return newID, nil
}

// duplicateChildren applies each link type's duplication method to the
// children of the source item.
func (s *Service) duplicateChildren(ctx context.Context, tx bun.IDB, sourceID, newID uint64, entityType string, level int, duplicated map[uint64]uint64, opts SaveOptions) error {
	allLinkSettings, err := s.linkTypes.GetAllLinkTypeSettings(ctx)
	if err != nil {
		return err
	}

	linkOpts := links.Options{
		Username:             opts.Username,
		UserID:               opts.UserID,
		SaveHistory:          opts.SaveHistory,
		SkipPermissionsCheck: true,
	}

	for _, linkSettings := range allLinkSettings {
		if linkSettings.DuplicationMethod == linktypes.DuplicationNone {
			continue
		}

		if linkSettings.UseItemParentId {
			// Parent-id relations have no link row to share, so only full
			// copies make sense here.
			if linkSettings.DuplicationMethod != linktypes.DuplicationCopyItem || linkSettings.SourceEntityType == "" {
				continue
			}
			childPrefix, err := s.entities.GetTablePrefixForEntityType(ctx, linkSettings.SourceEntityType)
			if err != nil {
				return err
			}
			var childIDs []uint64
			err = tx.NewRaw(
				fmt.Sprintf("SELECT id FROM `%swiser_item` WHERE parent_item_id = ? AND entity_type = ?", childPrefix),
				sourceID, linkSettings.SourceEntityType,
			).Scan(ctx, &childIDs)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrDatabase.WithInternal(err)
			}
			for _, childID := range childIDs {
				if _, err := s.duplicateInternal(ctx, tx, childID, linkSettings.SourceEntityType, newID, entityType, linkSettings.Type, level+1, duplicated, opts); err != nil {
					return err
				}
			}
			continue
		}

		linkPrefix := linktypes.GetTablePrefixForLink(linkSettings)
		var childIDs []uint64
		err = tx.NewRaw(
			fmt.Sprintf("SELECT item_id FROM `%swiser_itemlink` WHERE destination_item_id = ? AND type = ?", linkPrefix),
			sourceID, linkSettings.Type,
		).Scan(ctx, &childIDs)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return apperror.ErrDatabase.WithInternal(err)
		}

		for _, childID := range childIDs {
			switch linkSettings.DuplicationMethod {
			case linktypes.DuplicationCopyLink:
				if _, err := s.links.AddItemLink(ctx, tx, childID, newID, linkSettings.Type, linkOpts); err != nil {
					return err
				}
			case linktypes.DuplicationCopyItem:
				if linkSettings.SourceEntityType == "" {
					continue
				}
				if _, err := s.duplicateInternal(ctx, tx, childID, linkSettings.SourceEntityType, newID, entityType, linkSettings.Type, level+1, duplicated, opts); err != nil {
					return err
				}
			}
		}
	}

	return nil
}
