// Package links creates, removes, reparents and retypes item-to-item links,
// and resolves which physical table stores a given link.
package links

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/uptrace/bun"

	"github.com/happy-geeks/geeks-core-library-sub000/domain/entities"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/linktypes"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/permissions"
	"github.com/happy-geeks/geeks-core-library-sub000/internal/database"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/logger"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/mysqlutil"
)

// Options controls a link mutation.
type Options struct {
	Username             string
	UserID               uint64
	SaveHistory          bool
	SkipPermissionsCheck bool
	CreateNewTransaction bool
}

// Service owns the lifecycle of link rows.
type Service struct {
	db          *bun.DB
	log         *slog.Logger
	entities    *entities.Service
	linkTypes   *linktypes.Service
	permissions *permissions.Service
}

// NewService creates a new link manager.
func NewService(db *bun.DB, log *slog.Logger, entityService *entities.Service, linkTypeService *linktypes.Service, permissionService *permissions.Service) *Service {
	return &Service{
		db:          db,
		log:         log.With(logger.Scope("links")),
		entities:    entityService,
		linkTypes:   linkTypeService,
		permissions: permissionService,
	}
}

// AddItemLink links two items. It is idempotent: when an identical (source,
// destination, type) link already exists its id is returned and no row is
// written. New links get the next ordering value among links sharing the
// destination. db may be nil to run on the service's own connection.
func (s *Service) AddItemLink(ctx context.Context, db bun.IDB, sourceItemID, destinationItemID uint64, linkType int, opts Options) (uint64, error) {
	if sourceItemID == 0 || destinationItemID == 0 {
		return 0, apperror.ErrInvalidArgument.WithMessage("source and destination item ids are required")
	}

	settings, err := s.linkTypes.GetLinkTypeSettings(ctx, linkType, "", "")
	if err != nil {
		return 0, err
	}
	tablePrefix := linktypes.GetTablePrefixForLink(settings)

	if !opts.SkipPermissionsCheck {
		if err := s.checkEndpointPermissions(ctx, opts.UserID, sourceItemID, settings.SourceEntityType, destinationItemID, settings.DestinationEntityType); err != nil {
			return 0, err
		}
	}

	var linkID uint64
	err = database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, opts.SaveHistory); err != nil {
			return err
		}

		err := tx.NewRaw(
			findLinkQuery(tablePrefix),
			sourceItemID, destinationItemID, linkType,
		).Scan(ctx, &linkID)
		if err == nil && linkID > 0 {
			return nil
		}
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return apperror.ErrDatabase.WithInternal(err)
		}

		result, err := tx.ExecContext(ctx,
			insertLinkQuery(tablePrefix),
			sourceItemID, destinationItemID, linkType, destinationItemID, linkType)
		if mysqlutil.IsDuplicateEntry(err) {
			// Lost a race with a concurrent identical link; its row is ours.
			err = tx.NewRaw(
				findLinkQuery(tablePrefix),
				sourceItemID, destinationItemID, linkType,
			).Scan(ctx, &linkID)
			if err != nil {
				return apperror.ErrDatabase.WithInternal(err)
			}
			return nil
		}
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}

		newID, err := result.LastInsertId()
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		linkID = uint64(newID)
		return nil
	})
	if err != nil {
		return 0, err
	}

	return linkID, nil
}

// findLinkQuery selects an existing link by its identifying triple.
func findLinkQuery(tablePrefix string) string {
	return fmt.Sprintf("SELECT id FROM `%swiser_itemlink` WHERE item_id = ? AND destination_item_id = ? AND type = ?", tablePrefix)
}

// insertLinkQuery inserts a link with the next ordering value among links
// sharing the destination.
func insertLinkQuery(tablePrefix string) string {
	return fmt.Sprintf(`INSERT INTO `+"`%swiser_itemlink`"+` (item_id, destination_item_id, type, ordering)
		SELECT ?, ?, ?, COALESCE(MAX(ordering), 0) + 1
		FROM `+"`%swiser_itemlink`"+`
		WHERE destination_item_id = ? AND type = ?`, tablePrefix, tablePrefix)
}

// GetLinks returns all links of the given type where sourceItemID is the
// source. When destinationItemID is non-zero the result is narrowed to that
// destination.
func (s *Service) GetLinks(ctx context.Context, db bun.IDB, sourceItemID, destinationItemID uint64, linkType int) ([]ItemLink, error) {
	settings, err := s.linkTypes.GetLinkTypeSettings(ctx, linkType, "", "")
	if err != nil {
		return nil, err
	}
	tablePrefix := linktypes.GetTablePrefixForLink(settings)

	query := fmt.Sprintf("SELECT %s FROM `%swiser_itemlink` WHERE item_id = ? AND type = ?", itemLinkColumns, tablePrefix)
	args := []any{sourceItemID, linkType}
	if destinationItemID > 0 {
		query += " AND destination_item_id = ?"
		args = append(args, destinationItemID)
	}

	var result []ItemLink
	err = s.connection(db).NewRaw(query+" ORDER BY ordering ASC", args...).Scan(ctx, &result)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return result, nil
}

// GetLinksToDestination returns all links of the given type where the item is
// the destination.
func (s *Service) GetLinksToDestination(ctx context.Context, db bun.IDB, destinationItemID uint64, linkType int) ([]ItemLink, error) {
	settings, err := s.linkTypes.GetLinkTypeSettings(ctx, linkType, "", "")
	if err != nil {
		return nil, err
	}
	tablePrefix := linktypes.GetTablePrefixForLink(settings)

	var result []ItemLink
	err = s.connection(db).NewRaw(
		fmt.Sprintf("SELECT %s FROM `%swiser_itemlink` WHERE destination_item_id = ? AND type = ? ORDER BY ordering ASC", itemLinkColumns, tablePrefix),
		destinationItemID, linkType,
	).Scan(ctx, &result)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return result, nil
}

// RemoveItemLinksByID archives and then deletes specific link rows, including
// their link-scoped details.
func (s *Service) RemoveItemLinksByID(ctx context.Context, db bun.IDB, linkType int, linkIDs []uint64, opts Options) error {
	if len(linkIDs) == 0 {
		return nil
	}

	settings, err := s.linkTypes.GetLinkTypeSettings(ctx, linkType, "", "")
	if err != nil {
		return err
	}
	tablePrefix := linktypes.GetTablePrefixForLink(settings)

	if !opts.SkipPermissionsCheck {
		links, err := s.loadLinks(ctx, db, tablePrefix, linkIDs)
		if err != nil {
			return err
		}
		for _, link := range links {
			if err := s.checkEndpointPermissions(ctx, opts.UserID, link.ItemID, settings.SourceEntityType, link.DestinationItemID, settings.DestinationEntityType); err != nil {
				return err
			}
		}
	}

	return database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, opts.SaveHistory); err != nil {
			return err
		}
		return s.archiveAndDeleteLinks(ctx, tx, tablePrefix, "id IN (?)", bun.In(linkIDs))
	})
}

// RemoveItemLinks archives and then deletes every link in which the item
// participates, as source or destination, across the shared link table and
// every dedicated one.
func (s *Service) RemoveItemLinks(ctx context.Context, db bun.IDB, itemID uint64, entityType string, opts Options) error {
	if itemID == 0 {
		return apperror.ErrInvalidArgument.WithMessage("item id is required")
	}

	if !opts.SkipPermissionsCheck {
		ok, message, _, err := s.permissions.CheckIfEntityActionIsPossible(ctx, itemID, permissions.ActionUpdate, opts.UserID, nil, entityType)
		if err != nil {
			return err
		}
		if !ok {
			return permissionDenied(message, permissions.ActionUpdate, itemID, opts.UserID)
		}
	}

	prefixes, err := s.allLinkTablePrefixes(ctx)
	if err != nil {
		return err
	}

	return database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, opts.SaveHistory); err != nil {
			return err
		}
		for _, tablePrefix := range prefixes {
			err := s.archiveAndDeleteLinks(ctx, tx, tablePrefix, "item_id = ? OR destination_item_id = ?", itemID, itemID)
			if err != nil {
				return err
			}
		}
		return nil
	})
}

// RestoreItemLinks moves every archived link in which the item participates
// back to the live tables, as source or destination, across the shared link
// table and every dedicated one. The inverse of RemoveItemLinks.
func (s *Service) RestoreItemLinks(ctx context.Context, db bun.IDB, itemID uint64, opts Options) error {
	if itemID == 0 {
		return apperror.ErrInvalidArgument.WithMessage("item id is required")
	}

	prefixes, err := s.allLinkTablePrefixes(ctx)
	if err != nil {
		return err
	}

	return database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, opts.SaveHistory); err != nil {
			return err
		}

		where := "item_id = ? OR destination_item_id = ?"
		for _, tablePrefix := range prefixes {
			statements := []string{
				fmt.Sprintf("INSERT IGNORE INTO `%swiser_itemlink` (%s) SELECT %s FROM `%swiser_itemlink_archive` WHERE %s",
					tablePrefix, itemLinkColumns, itemLinkColumns, tablePrefix, where),
				fmt.Sprintf("INSERT IGNORE INTO `%swiser_itemlinkdetail` (%s) SELECT %s FROM `%swiser_itemlinkdetail_archive` WHERE itemlink_id IN (SELECT id FROM `%swiser_itemlink_archive` WHERE %s)",
					tablePrefix, itemLinkDetailColumns, itemLinkDetailColumns, tablePrefix, tablePrefix, where),
				fmt.Sprintf("DELETE FROM `%swiser_itemlinkdetail_archive` WHERE itemlink_id IN (SELECT id FROM `%swiser_itemlink_archive` WHERE %s)",
					tablePrefix, tablePrefix, where),
				fmt.Sprintf("DELETE FROM `%swiser_itemlink_archive` WHERE %s", tablePrefix, where),
			}
			for _, statement := range statements {
				if _, err := tx.NewRaw(statement, itemID, itemID).Exec(ctx); err != nil {
					return apperror.ErrDatabase.WithInternal(err)
				}
			}
		}
		return nil
	})
}

// RemoveParentLinkOfItems clears the parent of items whose relation is stored
// in the parent_item_id column rather than as link rows.
func (s *Service) RemoveParentLinkOfItems(ctx context.Context, db bun.IDB, itemIDs []uint64, entityType string, opts Options) error {
	if len(itemIDs) == 0 {
		return nil
	}

	if !opts.SkipPermissionsCheck {
		for _, itemID := range itemIDs {
			ok, message, _, err := s.permissions.CheckIfEntityActionIsPossible(ctx, itemID, permissions.ActionUpdate, opts.UserID, nil, entityType)
			if err != nil {
				return err
			}
			if !ok {
				return permissionDenied(message, permissions.ActionUpdate, itemID, opts.UserID)
			}
		}
	}

	tablePrefix, err := s.entities.GetTablePrefixForEntityType(ctx, entityType)
	if err != nil {
		return err
	}

	return database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, opts.SaveHistory); err != nil {
			return err
		}
		_, err := tx.NewRaw(
			fmt.Sprintf("UPDATE `%swiser_item` SET parent_item_id = 0, changed_by = ? WHERE id IN (?)", tablePrefix),
			opts.Username, bun.In(itemIDs),
		).Exec(ctx)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		return nil
	})
}

// ChangeItemLinks repoints every link of the given type from one destination
// item to another.
func (s *Service) ChangeItemLinks(ctx context.Context, db bun.IDB, oldDestinationItemID, newDestinationItemID uint64, linkType int, destinationEntityType string, opts Options) error {
	if oldDestinationItemID == 0 || newDestinationItemID == 0 {
		return apperror.ErrInvalidArgument.WithMessage("old and new destination item ids are required")
	}

	if !opts.SkipPermissionsCheck {
		if err := s.checkEndpointPermissions(ctx, opts.UserID, oldDestinationItemID, destinationEntityType, newDestinationItemID, destinationEntityType); err != nil {
			return err
		}
	}

	settings, err := s.linkTypes.GetLinkTypeSettings(ctx, linkType, "", destinationEntityType)
	if err != nil {
		return err
	}
	tablePrefix := linktypes.GetTablePrefixForLink(settings)

	return database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, opts.SaveHistory); err != nil {
			return err
		}

		query := fmt.Sprintf("UPDATE `%swiser_itemlink` SET destination_item_id = ? WHERE destination_item_id = ?", tablePrefix)
		args := []any{newDestinationItemID, oldDestinationItemID}
		if linkType > 0 {
			query += " AND type = ?"
			args = append(args, linkType)
		}

		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		return nil
	})
}

// ChangeLinkTypes retypes every link of a type. It fails when the old and new
// types resolve to different table prefixes, since that would require moving
// rows between physical tables.
func (s *Service) ChangeLinkTypes(ctx context.Context, db bun.IDB, oldLinkType, newLinkType int, opts Options) error {
	tablePrefix, err := s.samePrefixForTypes(ctx, oldLinkType, newLinkType)
	if err != nil {
		return err
	}

	return database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, opts.SaveHistory); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE `%swiser_itemlink` SET type = ? WHERE type = ?", tablePrefix),
			newLinkType, oldLinkType)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		return nil
	})
}

// ChangeLinkType retypes the links between one source and one destination
// item. The same physical-table restriction applies as in ChangeLinkTypes.
func (s *Service) ChangeLinkType(ctx context.Context, db bun.IDB, newLinkType, oldLinkType int, sourceItemID, destinationItemID uint64, opts Options) error {
	tablePrefix, err := s.samePrefixForTypes(ctx, oldLinkType, newLinkType)
	if err != nil {
		return err
	}

	return database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, opts.SaveHistory); err != nil {
			return err
		}
		_, err := tx.ExecContext(ctx,
			fmt.Sprintf("UPDATE `%swiser_itemlink` SET type = ? WHERE type = ? AND item_id = ? AND destination_item_id = ?", tablePrefix),
			newLinkType, oldLinkType, sourceItemID, destinationItemID)
		if err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
		return nil
	})
}

// archiveAndDeleteLinks copies matching link rows and their details to the
// archive tables with explicitly enumerated columns, then deletes the
// originals.
func (s *Service) archiveAndDeleteLinks(ctx context.Context, tx bun.IDB, tablePrefix, where string, args ...any) error {
	statements := []string{
		fmt.Sprintf("INSERT IGNORE INTO `%swiser_itemlinkdetail_archive` (%s) SELECT %s FROM `%swiser_itemlinkdetail` WHERE itemlink_id IN (SELECT id FROM `%swiser_itemlink` WHERE %s)",
			tablePrefix, itemLinkDetailColumns, itemLinkDetailColumns, tablePrefix, tablePrefix, where),
		fmt.Sprintf("INSERT IGNORE INTO `%swiser_itemlink_archive` (%s) SELECT %s FROM `%swiser_itemlink` WHERE %s",
			tablePrefix, itemLinkColumns, itemLinkColumns, tablePrefix, where),
		fmt.Sprintf("DELETE FROM `%swiser_itemlinkdetail` WHERE itemlink_id IN (SELECT id FROM `%swiser_itemlink` WHERE %s)",
			tablePrefix, tablePrefix, where),
		fmt.Sprintf("DELETE FROM `%swiser_itemlink` WHERE %s", tablePrefix, where),
	}

	for _, statement := range statements {
		if _, err := tx.NewRaw(statement, args...).Exec(ctx); err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
	}

	return nil
}

// allLinkTablePrefixes returns the shared link table prefix plus one prefix
// per dedicated link table.
func (s *Service) allLinkTablePrefixes(ctx context.Context) ([]string, error) {
	allSettings, err := s.linkTypes.GetAllLinkTypeSettings(ctx)
	if err != nil {
		return nil, err
	}

	prefixes := []string{""}
	seen := map[string]bool{"": true}
	for _, settings := range allSettings {
		tablePrefix := linktypes.GetTablePrefixForLink(settings)
		if !seen[tablePrefix] {
			seen[tablePrefix] = true
			prefixes = append(prefixes, tablePrefix)
		}
	}

	return prefixes, nil
}

func (s *Service) loadLinks(ctx context.Context, db bun.IDB, tablePrefix string, linkIDs []uint64) ([]ItemLink, error) {
	var result []ItemLink
	err := s.connection(db).NewRaw(
		fmt.Sprintf("SELECT %s FROM `%swiser_itemlink` WHERE id IN (?)", itemLinkColumns, tablePrefix),
		bun.In(linkIDs),
	).Scan(ctx, &result)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	return result, nil
}

func (s *Service) samePrefixForTypes(ctx context.Context, oldLinkType, newLinkType int) (string, error) {
	oldSettings, err := s.linkTypes.GetLinkTypeSettings(ctx, oldLinkType, "", "")
	if err != nil {
		return "", err
	}
	newSettings, err := s.linkTypes.GetLinkTypeSettings(ctx, newLinkType, "", "")
	if err != nil {
		return "", err
	}

	oldPrefix := linktypes.GetTablePrefixForLink(oldSettings)
	newPrefix := linktypes.GetTablePrefixForLink(newSettings)
	if oldPrefix != newPrefix {
		return "", apperror.ErrInvalidState.WithMessagef(
			"cannot change link type %d to %d: they are stored in different physical tables ('%swiser_itemlink' vs '%swiser_itemlink')",
			oldLinkType, newLinkType, oldPrefix, newPrefix)
	}

	return oldPrefix, nil
}

// checkEndpointPermissions requires update rights on both ends of a link.
func (s *Service) checkEndpointPermissions(ctx context.Context, userID, sourceItemID uint64, sourceEntityType string, destinationItemID uint64, destinationEntityType string) error {
	ok, message, _, err := s.permissions.CheckIfEntityActionIsPossible(ctx, sourceItemID, permissions.ActionUpdate, userID, nil, sourceEntityType)
	if err != nil {
		return err
	}
	if !ok {
		return permissionDenied(message, permissions.ActionUpdate, sourceItemID, userID)
	}

	ok, message, _, err = s.permissions.CheckIfEntityActionIsPossible(ctx, destinationItemID, permissions.ActionUpdate, userID, nil, destinationEntityType)
	if err != nil {
		return err
	}
	if !ok {
		return permissionDenied(message, permissions.ActionUpdate, destinationItemID, userID)
	}

	return nil
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
