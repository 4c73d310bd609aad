package items

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/uptrace/bun"

	"github.com/happy-geeks/geeks-core-library-sub000/domain/entities"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/links"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/linktypes"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/permissions"
	"github.com/happy-geeks/geeks-core-library-sub000/internal/database"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
)

// Delete removes or restores items of one entity type according to the
// type's delete action: hide flips the published environment, archive moves
// the rows to the shadow tables, permanent removes them outright. With
// opts.Undelete set the operation runs in reverse where the action allows it.
func (s *Service) Delete(ctx context.Context, db bun.IDB, itemIDs []uint64, entityType string, opts DeleteOptions) error {
	if len(itemIDs) == 0 {
		return nil
	}
	if entityType == "" {
		return apperror.ErrInvalidArgument.WithMessage("an entity type is required")
	}

	return s.deleteInternal(ctx, db, itemIDs, entityType, opts, map[uint64]bool{})
}

// deleteInternal carries the set of already visited items so cascade deletes
// over a cyclic link graph terminate.
func (s *Service) deleteInternal(ctx context.Context, db bun.IDB, itemIDs []uint64, entityType string, opts DeleteOptions, visited map[uint64]bool) error {
	filtered := make([]uint64, 0, len(itemIDs))
	for _, itemID := range itemIDs {
		if itemID == 0 || visited[itemID] {
			continue
		}
		visited[itemID] = true
		filtered = append(filtered, itemID)
	}
	if len(filtered) == 0 {
		return nil
	}

	settings, err := s.entities.GetEntityTypeSettings(ctx, entityType, 0)
	if err != nil {
		return err
	}
	tablePrefix := entities.GetTablePrefix(settings)

	switch {
	case settings.DeleteAction == entities.DeleteActionDisallow:
		return apperror.ErrInvalidState.WithMessagef("items of entity type '%s' cannot be deleted", entityType)
	case opts.Undelete && settings.DeleteAction == entities.DeleteActionPermanent:
		return apperror.ErrInvalidState.WithMessagef("items of entity type '%s' are deleted permanently and cannot be restored", entityType)
	}

	if !opts.SkipPermissionsCheck {
		for _, itemID := range filtered {
			ok, message, _, err := s.permissions.CheckIfEntityActionIsPossible(ctx, itemID, permissions.ActionDelete, opts.UserID, nil, entityType)
			if err != nil {
				return err
			}
			if !ok {
				return permissionDenied(message, permissions.ActionDelete, itemID, opts.UserID)
			}
		}
	}

	return database.WithTransaction(ctx, s.connection(db), opts.CreateNewTransaction, func(tx bun.IDB) error {
		if err := database.SetSessionContext(ctx, tx, opts.Username, opts.UserID, opts.SaveHistory && settings.SaveHistory); err != nil {
			return err
		}

		if settings.DeleteAction == entities.DeleteActionHide {
			return s.hideItems(ctx, tx, tablePrefix, filtered, entityType, opts)
		}

		if opts.Undelete {
			return s.restoreItems(ctx, tx, tablePrefix, filtered, entityType, opts)
		}

		// Cascade before touching the items themselves, while their links
		// still exist to find the children through.
		if err := s.cascadeDelete(ctx, tx, filtered, opts, visited); err != nil {
			return err
		}

		if err := s.archiveItems(ctx, tx, tablePrefix, filtered); err != nil {
			return err
		}

		linkOpts := links.Options{
			Username:             opts.Username,
			UserID:               opts.UserID,
			SaveHistory:          opts.SaveHistory,
			SkipPermissionsCheck: true,
		}
		for _, itemID := range filtered {
			if err := s.links.RemoveItemLinks(ctx, tx, itemID, entityType, linkOpts); err != nil {
				return err
			}
		}

		if settings.DeleteAction == entities.DeleteActionPermanent {
			if err := s.purgeArchivedItems(ctx, tx, tablePrefix, filtered); err != nil {
				return err
			}
			if err := s.purgeArchivedLinks(ctx, tx, filtered); err != nil {
				return err
			}
		}

		return s.aggregation.DeleteAggregatedItems(ctx, tx, entityType, filtered)
	})
}

// hideItems flips the published environment instead of moving rows.
func (s *Service) hideItems(ctx context.Context, tx bun.IDB, tablePrefix string, itemIDs []uint64, entityType string, opts DeleteOptions) error {
	environment := EnvironmentHidden
	if opts.Undelete {
		environment = EnvironmentAll
	}

	_, err := tx.NewRaw(
		fmt.Sprintf("UPDATE `%swiser_item` SET published_environment = ?, changed_on = NOW(), changed_by = ? WHERE id IN (?)", tablePrefix),
		int(environment), opts.Username, bun.In(itemIDs),
	).Exec(ctx)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	if opts.Undelete {
		return s.regenerateAggregation(ctx, tx, itemIDs, entityType)
	}
	return s.aggregation.DeleteAggregatedItems(ctx, tx, entityType, itemIDs)
}

// archiveItemStatements builds the statements that move item rows, details
// and files to the archive tables with explicitly enumerated columns, then
// delete the originals.
func archiveItemStatements(tablePrefix string) []string {
	return []string{
		fmt.Sprintf("INSERT IGNORE INTO `%swiser_itemdetail_archive` (%s) SELECT %s FROM `%swiser_itemdetail` WHERE item_id IN (?)",
			tablePrefix, itemDetailColumns, itemDetailColumns, tablePrefix),
		fmt.Sprintf("INSERT IGNORE INTO `%swiser_itemfile_archive` (%s) SELECT %s FROM `%swiser_itemfile` WHERE item_id IN (?)",
			tablePrefix, itemFileColumns, itemFileColumns, tablePrefix),
		fmt.Sprintf("INSERT IGNORE INTO `%swiser_item_archive` (%s) SELECT %s FROM `%swiser_item` WHERE id IN (?)",
			tablePrefix, itemColumns, itemColumns, tablePrefix),
		fmt.Sprintf("DELETE FROM `%swiser_itemdetail` WHERE item_id IN (?)", tablePrefix),
		fmt.Sprintf("DELETE FROM `%swiser_itemfile` WHERE item_id IN (?)", tablePrefix),
		fmt.Sprintf("DELETE FROM `%swiser_item` WHERE id IN (?)", tablePrefix),
	}
}

// restoreItemStatements builds the reverse of archiveItemStatements: copy the
// archived rows back to the live tables, then delete the archive copies.
func restoreItemStatements(tablePrefix string) []string {
	return []string{
		fmt.Sprintf("INSERT IGNORE INTO `%swiser_item` (%s) SELECT %s FROM `%swiser_item_archive` WHERE id IN (?)",
			tablePrefix, itemColumns, itemColumns, tablePrefix),
		fmt.Sprintf("INSERT IGNORE INTO `%swiser_itemdetail` (%s) SELECT %s FROM `%swiser_itemdetail_archive` WHERE item_id IN (?)",
			tablePrefix, itemDetailColumns, itemDetailColumns, tablePrefix),
		fmt.Sprintf("INSERT IGNORE INTO `%swiser_itemfile` (%s) SELECT %s FROM `%swiser_itemfile_archive` WHERE item_id IN (?)",
			tablePrefix, itemFileColumns, itemFileColumns, tablePrefix),
		fmt.Sprintf("DELETE FROM `%swiser_itemdetail_archive` WHERE item_id IN (?)", tablePrefix),
		fmt.Sprintf("DELETE FROM `%swiser_itemfile_archive` WHERE item_id IN (?)", tablePrefix),
		fmt.Sprintf("DELETE FROM `%swiser_item_archive` WHERE id IN (?)", tablePrefix),
	}
}

// archiveItems moves the item rows, details and files to the archive tables.
func (s *Service) archiveItems(ctx context.Context, tx bun.IDB, tablePrefix string, itemIDs []uint64) error {
	for _, statement := range archiveItemStatements(tablePrefix) {
		if _, err := tx.NewRaw(statement, bun.In(itemIDs)).Exec(ctx); err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
	}

	return nil
}

// restoreItems copies archived rows back to the live tables, restores the
// items' links and rebuilds their aggregation rows.
func (s *Service) restoreItems(ctx context.Context, tx bun.IDB, tablePrefix string, itemIDs []uint64, entityType string, opts DeleteOptions) error {
	for _, statement := range restoreItemStatements(tablePrefix) {
		if _, err := tx.NewRaw(statement, bun.In(itemIDs)).Exec(ctx); err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
	}

	linkOpts := links.Options{
		Username:             opts.Username,
		UserID:               opts.UserID,
		SaveHistory:          opts.SaveHistory,
		SkipPermissionsCheck: true,
	}
	for _, itemID := range itemIDs {
		if err := s.links.RestoreItemLinks(ctx, tx, itemID, linkOpts); err != nil {
			return err
		}
	}

	return s.regenerateAggregation(ctx, tx, itemIDs, entityType)
}

// purgeArchivedItems removes the freshly made archive copies for entity types
// that delete permanently.
func (s *Service) purgeArchivedItems(ctx context.Context, tx bun.IDB, tablePrefix string, itemIDs []uint64) error {
	statements := []string{
		fmt.Sprintf("DELETE FROM `%swiser_itemdetail_archive` WHERE item_id IN (?)", tablePrefix),
		fmt.Sprintf("DELETE FROM `%swiser_itemfile_archive` WHERE item_id IN (?)", tablePrefix),
		fmt.Sprintf("DELETE FROM `%swiser_item_archive` WHERE id IN (?)", tablePrefix),
	}

	for _, statement := range statements {
		if _, err := tx.NewRaw(statement, bun.In(itemIDs)).Exec(ctx); err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
	}

	return nil
}

// purgeArchivedLinks removes the archived link rows of permanently deleted
// items across the shared link table and every dedicated one.
func (s *Service) purgeArchivedLinks(ctx context.Context, tx bun.IDB, itemIDs []uint64) error {
	allLinkSettings, err := s.linkTypes.GetAllLinkTypeSettings(ctx)
	if err != nil {
		return err
	}

	prefixes := []string{""}
	seen := map[string]bool{"": true}
	for _, linkSettings := range allLinkSettings {
		prefix := linktypes.GetTablePrefixForLink(linkSettings)
		if !seen[prefix] {
			seen[prefix] = true
			prefixes = append(prefixes, prefix)
		}
	}

	for _, prefix := range prefixes {
		statements := []string{
			fmt.Sprintf("DELETE FROM `%swiser_itemlinkdetail_archive` WHERE itemlink_id IN (SELECT id FROM `%swiser_itemlink_archive` WHERE item_id IN (?) OR destination_item_id IN (?))",
				prefix, prefix),
			fmt.Sprintf("DELETE FROM `%swiser_itemlink_archive` WHERE item_id IN (?) OR destination_item_id IN (?)", prefix),
		}
		for _, statement := range statements {
			if _, err := tx.NewRaw(statement, bun.In(itemIDs), bun.In(itemIDs)).Exec(ctx); err != nil {
				return apperror.ErrDatabase.WithInternal(err)
			}
		}
	}

	return nil
}

// cascadeDelete recursively deletes children connected through link types
// configured with cascade delete.
func (s *Service) cascadeDelete(ctx context.Context, tx bun.IDB, itemIDs []uint64, opts DeleteOptions, visited map[uint64]bool) error {
	allLinkSettings, err := s.linkTypes.GetAllLinkTypeSettings(ctx)
	if err != nil {
		return err
	}

	childOpts := opts
	childOpts.SkipPermissionsCheck = true
	childOpts.CreateNewTransaction = false
	childOpts.Undelete = false

	for _, linkSettings := range allLinkSettings {
		if !linkSettings.CascadeDelete || linkSettings.SourceEntityType == "" {
			continue
		}

		var childIDs []uint64
		if linkSettings.UseItemParentId {
			childPrefix, err := s.entities.GetTablePrefixForEntityType(ctx, linkSettings.SourceEntityType)
			if err != nil {
				return err
			}
			err = tx.NewRaw(
				fmt.Sprintf("SELECT id FROM `%swiser_item` WHERE parent_item_id IN (?) AND entity_type = ?", childPrefix),
				bun.In(itemIDs), linkSettings.SourceEntityType,
			).Scan(ctx, &childIDs)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrDatabase.WithInternal(err)
			}
		} else {
			linkPrefix := linktypes.GetTablePrefixForLink(linkSettings)
			err = tx.NewRaw(
				fmt.Sprintf("SELECT item_id FROM `%swiser_itemlink` WHERE destination_item_id IN (?) AND type = ?", linkPrefix),
				bun.In(itemIDs), linkSettings.Type,
			).Scan(ctx, &childIDs)
			if err != nil && !errors.Is(err, sql.ErrNoRows) {
				return apperror.ErrDatabase.WithInternal(err)
			}
		}

		if len(childIDs) == 0 {
			continue
		}
		if err := s.deleteInternal(ctx, tx, childIDs, linkSettings.SourceEntityType, childOpts, visited); err != nil {
			return err
		}
	}

	return nil
}

// regenerateAggregation rebuilds the aggregation rows of restored items from
// their current details.
func (s *Service) regenerateAggregation(ctx context.Context, tx bun.IDB, itemIDs []uint64, entityType string) error {
	for _, itemID := range itemIDs {
		item, err := s.GetItemDetails(ctx, tx, itemID, entityType, ReadOptions{SkipPermissionsCheck: true})
		if err != nil {
			if errors.Is(err, apperror.ErrNotFound) {
				continue
			}
			return err
		}
		if err := s.aggregation.HandleItemAggregation(ctx, tx, s.aggregationData(item)); err != nil {
			return err
		}
	}
	return nil
}
