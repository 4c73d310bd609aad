// Package permissions computes the access-rights bitmask for (item, user)
// pairs, combining module-level and item-level role grants.
package permissions

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/uptrace/bun"

	"github.com/happy-geeks/geeks-core-library-sub000/domain/entities"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/logger"
)

// Service evaluates permissions against the permission metadata tables.
type Service struct {
	db       bun.IDB
	log      *slog.Logger
	entities *entities.Service
}

// NewService creates a new permission evaluator.
func NewService(db bun.IDB, log *slog.Logger, entityService *entities.Service) *Service {
	return &Service{
		db:       db,
		log:      log.With(logger.Scope("permissions")),
		entities: entityService,
	}
}

// GetUserItemPermissions computes the rights bitmask of a user on an item.
//
// Anonymous users (id 0) get nothing. Authenticated users with no explicit
// role grants get all rights. Module-level grants are OR-ed across the user's
// roles; item-level grants are OR-ed the same way and, when any item-level
// row exists for any of the user's roles, replace the module-level result
// entirely. That replacement can discard a more permissive module grant from
// another role; this matches the historical behavior and is relied upon by
// existing configurations.
func (s *Service) GetUserItemPermissions(ctx context.Context, itemID, userID uint64, entityType string) (AccessRights, error) {
	if userID == 0 {
		return AccessNothing, nil
	}

	moduleID, err := s.resolveItemModule(ctx, itemID, entityType)
	if err != nil {
		return AccessNothing, err
	}

	moduleRights, moduleGrantFound, err := s.aggregateRights(ctx, userID, func(query *bun.SelectQuery) *bun.SelectQuery {
		return query.Where("wp.module_id = ?", moduleID).Where("wp.item_id = 0")
	})
	if err != nil {
		return AccessNothing, err
	}

	itemRights, itemGrantFound, err := s.aggregateRights(ctx, userID, func(query *bun.SelectQuery) *bun.SelectQuery {
		return query.Where("wp.item_id = ?", itemID)
	})
	if err != nil {
		return AccessNothing, err
	}

	return combineRights(moduleRights, moduleGrantFound, itemRights, itemGrantFound), nil
}

// combineRights applies the precedence rule: item-level grants, when present,
// replace the module-level result; no grants at all means full rights for an
// authenticated user.
func combineRights(moduleRights AccessRights, moduleGrantFound bool, itemRights AccessRights, itemGrantFound bool) AccessRights {
	if itemGrantFound {
		return itemRights
	}
	if moduleGrantFound {
		return moduleRights
	}
	return AccessAll
}

// effectiveRights downgrades every user to read-only on a readonly item,
// whatever the grants say.
func effectiveRights(rights AccessRights, readOnly bool) AccessRights {
	if readOnly {
		return rights & AccessRead
	}
	return rights
}

// CheckIfEntityActionIsPossible verifies an action against the user's rights,
// the item's readonly flag and any entity-configured pre-check query. It
// returns whether the action is allowed, a user-facing message when it is
// not, and the computed permissions.
func (s *Service) CheckIfEntityActionIsPossible(ctx context.Context, itemID uint64, action EntityAction, userID uint64, item *ItemMeta, entityType string) (bool, string, AccessRights, error) {
	rights, err := s.GetUserItemPermissions(ctx, itemID, userID, entityType)
	if err != nil {
		return false, "", AccessNothing, err
	}
	if rights == AccessNothing {
		return false, fmt.Sprintf("User %d has no rights on item %d", userID, itemID), rights, nil
	}

	if item == nil {
		item, err = s.loadItemMeta(ctx, itemID, entityType)
		if err != nil {
			return false, "", rights, err
		}
	}

	readOnly := item != nil && item.ReadOnly
	if !effectiveRights(rights, readOnly).Has(action.RequiredRights()) {
		return false, fmt.Sprintf("User %d is not allowed to %s item %d", userID, action, itemID), rights, nil
	}

	if action != ActionUpdate && action != ActionDelete {
		return true, "", rights, nil
	}

	resolvedEntityType := entityType
	if resolvedEntityType == "" && item != nil {
		resolvedEntityType = item.EntityType
	}
	if resolvedEntityType == "" {
		return true, "", rights, nil
	}

	settings, err := s.entities.GetEntityTypeSettings(ctx, resolvedEntityType, 0)
	if err != nil {
		return false, "", rights, err
	}

	precheckQuery := settings.QueryBeforeUpdate
	if action == ActionDelete {
		precheckQuery = settings.QueryBeforeDelete
	}
	if strings.TrimSpace(precheckQuery) == "" {
		return true, "", rights, nil
	}

	allowed, message, err := s.runPrecheckQuery(ctx, precheckQuery, itemID)
	if err != nil {
		return false, "", rights, err
	}
	if !allowed {
		if message == "" {
			message = fmt.Sprintf("The %s of item %d was blocked by the entity configuration", action, itemID)
		}
		return false, message, rights, nil
	}

	return true, "", rights, nil
}

// aggregateRights ORs the permission bits of all grants matching the scope
// for any of the user's roles, and reports whether any grant row existed.
func (s *Service) aggregateRights(ctx context.Context, userID uint64, scope func(*bun.SelectQuery) *bun.SelectQuery) (AccessRights, bool, error) {
	var bitmasks []int
	query := s.db.NewSelect().
		Model((*Permission)(nil)).
		Column("wp.permissions").
		Join("JOIN wiser_userroles AS wur ON wur.role_id = wp.role_id").
		Where("wur.user_id = ?", userID)

	if err := scope(query).Scan(ctx, &bitmasks); err != nil && !errors.Is(err, sql.ErrNoRows) {
		return AccessNothing, false, apperror.ErrDatabase.WithInternal(err)
	}
	if len(bitmasks) == 0 {
		return AccessNothing, false, nil
	}

	rights := AccessNothing
	for _, bitmask := range bitmasks {
		rights |= AccessRights(bitmask)
	}

	return rights, true, nil
}

// resolveItemModule finds the module an item belongs to, via the entity
// type's table prefix.
func (s *Service) resolveItemModule(ctx context.Context, itemID uint64, entityType string) (int, error) {
	if itemID == 0 {
		return 0, nil
	}

	tablePrefix, err := s.entities.GetTablePrefixForEntityType(ctx, entityType)
	if err != nil {
		return 0, err
	}

	var moduleID int
	err = s.db.NewRaw(
		fmt.Sprintf("SELECT moduleid FROM `%swiser_item` WHERE id = ?", tablePrefix),
		itemID,
	).Scan(ctx, &moduleID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, apperror.ErrDatabase.WithInternal(err)
	}

	return moduleID, nil
}

func (s *Service) loadItemMeta(ctx context.Context, itemID uint64, entityType string) (*ItemMeta, error) {
	if itemID == 0 {
		return nil, nil
	}

	tablePrefix, err := s.entities.GetTablePrefixForEntityType(ctx, entityType)
	if err != nil {
		return nil, err
	}

	meta := &ItemMeta{ID: itemID}
	err = s.db.NewRaw(
		fmt.Sprintf("SELECT entity_type, moduleid, readonly FROM `%swiser_item` WHERE id = ?", tablePrefix),
		itemID,
	).Scan(ctx, &meta.EntityType, &meta.ModuleID, &meta.ReadOnly)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return meta, nil
}

// runPrecheckQuery executes an entity-configured pre-check statement with the
// {itemId} placeholder substituted. A truthy first column means the action is
// allowed; an optional second column carries the user-facing refusal message.
func (s *Service) runPrecheckQuery(ctx context.Context, query string, itemID uint64) (bool, string, error) {
	query = strings.ReplaceAll(query, "{itemId}", strconv.FormatUint(itemID, 10))

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return false, "", apperror.ErrDatabase.WithInternal(err)
	}
	defer rows.Close()

	if !rows.Next() {
		// No result rows means nothing vetoed the action.
		return true, "", rows.Err()
	}

	columns, err := rows.Columns()
	if err != nil {
		return false, "", apperror.ErrDatabase.WithInternal(err)
	}

	var allowedValue any
	var messageValue sql.NullString
	targets := []any{&allowedValue}
	if len(columns) > 1 {
		targets = append(targets, &messageValue)
	}
	for i := 2; i < len(columns); i++ {
		targets = append(targets, new(any))
	}

	if err := rows.Scan(targets...); err != nil {
		return false, "", apperror.ErrDatabase.WithInternal(err)
	}

	return truthy(allowedValue), messageValue.String, nil
}

func truthy(value any) bool {
	switch v := value.(type) {
	case nil:
		return false
	case bool:
		return v
	case int64:
		return v != 0
	case float64:
		return v != 0
	case []byte:
		return truthyString(string(v))
	case string:
		return truthyString(v)
	default:
		return false
	}
}

func truthyString(value string) bool {
	value = strings.TrimSpace(strings.ToLower(value))
	return value != "" && value != "0" && value != "false"
}
