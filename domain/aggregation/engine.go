// Package aggregation maintains denormalized per-entity-type tables that are
// rebuilt from item details on every save, so reporting queries never have to
// pivot the key/value storage.
package aggregation

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"github.com/uptrace/bun"

	"github.com/happy-geeks/geeks-core-library-sub000/domain/entities"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/linktypes"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/logger"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/mysqlutil"
)

// Engine rebuilds aggregation tables from item data.
type Engine struct {
	db        *bun.DB
	log       *slog.Logger
	linkTypes *linktypes.Service

	mu            sync.Mutex
	ensuredTables map[string]map[string]bool
}

// NewEngine creates a new aggregation engine.
func NewEngine(db *bun.DB, log *slog.Logger, linkTypeService *linktypes.Service) *Engine {
	return &Engine{
		db:            db,
		log:           log.With(logger.Scope("aggregation")),
		linkTypes:     linkTypeService,
		ensuredTables: map[string]map[string]bool{},
	}
}

// HandleItemAggregation upserts the item's row in every aggregation table its
// entity type is configured for, plus one row per link for link-scoped
// properties, creating tables and columns on first use, and then recomputes
// configured parent roll-ups. It is a no-op for entity types
// without aggregated properties. The statements run on the given connection so
// they join the caller's transaction.
func (e *Engine) HandleItemAggregation(ctx context.Context, db bun.IDB, item *ItemData) error {
	if item == nil || item.ID == 0 {
		return apperror.ErrInvalidArgument.WithMessage("an item with an id is required for aggregation")
	}

	allSettings, err := e.loadFieldSettings(ctx, item.EntityType, item.LinkTypes())
	if err != nil {
		return err
	}
	if len(allSettings) == 0 {
		return nil
	}

	conn := e.connection(db)

	itemTables := map[string][]fieldSettings{}
	linkTables := map[string][]fieldSettings{}
	for _, settings := range allSettings {
		if settings.LinkType > 0 {
			linkTables[settings.TableName] = append(linkTables[settings.TableName], settings)
		} else {
			itemTables[settings.TableName] = append(itemTables[settings.TableName], settings)
		}
	}

	for tableName, tableSettings := range itemTables {
		columns, err := columnsFor(tableSettings)
		if err != nil {
			return err
		}
		if err := e.ensureTable(ctx, conn, tableName, columns, false); err != nil {
			return err
		}
		if err := e.upsertRow(ctx, conn, tableName, tableSettings, item); err != nil {
			return err
		}
	}

	for tableName, tableSettings := range linkTables {
		columns, err := columnsFor(tableSettings)
		if err != nil {
			return err
		}
		if err := e.ensureTable(ctx, conn, tableName, columns, true); err != nil {
			return err
		}
		if err := e.upsertLinkRows(ctx, conn, tableName, tableSettings, item); err != nil {
			return err
		}
	}

	for _, settings := range allSettings {
		if settings.Method == MethodNone || settings.LinkType > 0 {
			continue
		}
		if err := e.rollUpToParents(ctx, conn, settings, item.ID); err != nil {
			return err
		}
	}

	return nil
}

// DeleteAggregatedItems removes the rows of the given items from every
// aggregation table of their entity type. Missing tables are ignored since
// they are only created on first save.
func (e *Engine) DeleteAggregatedItems(ctx context.Context, db bun.IDB, entityType string, itemIDs []uint64) error {
	if len(itemIDs) == 0 {
		return nil
	}

	linkTypes, err := e.linkTypesForEntity(ctx, entityType)
	if err != nil {
		return err
	}
	allSettings, err := e.loadFieldSettings(ctx, entityType, linkTypes)
	if err != nil {
		return err
	}

	conn := e.connection(db)
	seen := map[string]bool{}
	for _, settings := range allSettings {
		if seen[settings.TableName] {
			continue
		}
		seen[settings.TableName] = true

		// Link-scoped tables key their rows by link id, so the item's rows
		// are matched on the item_id column instead.
		keyColumn := "id"
		if settings.LinkType > 0 {
			keyColumn = "item_id"
		}

		_, err := conn.NewRaw(
			fmt.Sprintf("DELETE FROM `%s` WHERE `%s` IN (?)", settings.TableName, keyColumn),
			bun.In(itemIDs),
		).Exec(ctx)
		if err != nil && !mysqlutil.IsNoSuchTable(err) {
			return apperror.ErrDatabase.WithInternal(err)
		}
	}

	return nil
}

// linkTypesForEntity returns the link types whose source entity matches, so
// deletions can also clear link-scoped aggregation rows.
func (e *Engine) linkTypesForEntity(ctx context.Context, entityType string) ([]int, error) {
	allLinkSettings, err := e.linkTypes.GetAllLinkTypeSettings(ctx)
	if err != nil {
		return nil, err
	}

	var types []int
	seen := map[int]bool{}
	for _, linkSettings := range allLinkSettings {
		if linkSettings.SourceEntityType != entityType || seen[linkSettings.Type] {
			continue
		}
		seen[linkSettings.Type] = true
		types = append(types, linkSettings.Type)
	}
	return types, nil
}

// loadFieldSettings reads the aggregated properties of an entity type and
// resolves their table and column placement. Item-scoped properties always
// load; link-scoped ones only for the link types actually present on the item
// being aggregated.
func (e *Engine) loadFieldSettings(ctx context.Context, entityType string, linkTypes []int) ([]fieldSettings, error) {
	if entityType == "" {
		return nil, nil
	}

	var properties []entities.EntityProperty
	err := e.db.NewSelect().
		Model(&properties).
		Where("entity_name = ?", entityType).
		Where("link_type = ?", 0).
		Where("enable_aggregation = ?", true).
		Order("ordering ASC", "id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	if len(linkTypes) > 0 {
		var linkProperties []entities.EntityProperty
		err = e.db.NewSelect().
			Model(&linkProperties).
			Where("link_type IN (?)", bun.In(linkTypes)).
			Where("enable_aggregation = ?", true).
			Order("ordering ASC", "id ASC").
			Scan(ctx)
		if err != nil && !errors.Is(err, sql.ErrNoRows) {
			return nil, apperror.ErrDatabase.WithInternal(err)
		}
		properties = append(properties, linkProperties...)
	}

	result := make([]fieldSettings, 0, len(properties))
	for i := range properties {
		settings, err := parseFieldSettings(&properties[i], entityType)
		if err != nil {
			return nil, err
		}
		result = append(result, settings)
	}

	return result, nil
}

// parseFieldSettings combines a property row and its aggregate_options JSON
// into resolved settings with validated identifiers.
func parseFieldSettings(property *entities.EntityProperty, entityType string) (fieldSettings, error) {
	options := aggregateOptions{}
	if property.AggregateOptions != nil && strings.TrimSpace(*property.AggregateOptions) != "" {
		if err := json.Unmarshal([]byte(*property.AggregateOptions), &options); err != nil {
			return fieldSettings{}, apperror.ErrConfiguration.
				WithMessagef("invalid aggregate options JSON for property '%s'", property.PropertyName).
				WithInternal(err)
		}
	}

	settings := fieldSettings{
		PropertyName:     property.PropertyName,
		LanguageCode:     property.LanguageCode,
		InputType:        strings.ToLower(property.InputType),
		TableName:        options.TableName,
		ColumnName:       options.ColumnName,
		LinkType:         property.LinkType,
		Method:           MethodNone,
		ParentTableName:  options.ParentTableName,
		ParentColumnName: options.ParentColumnName,
		ParentLinkType:   options.ParentLinkType,
	}

	if settings.TableName == "" {
		if settings.LinkType > 0 {
			settings.TableName = fmt.Sprintf("aggregate_link_%d", settings.LinkType)
		} else {
			settings.TableName = "aggregate_" + entityType
		}
	}
	if settings.ColumnName == "" {
		settings.ColumnName = property.PropertyName
		if property.LanguageCode != "" {
			settings.ColumnName += "_" + property.LanguageCode
		}
	}

	switch Method(strings.ToLower(options.AggregationMethod)) {
	case MethodNone, "":
		settings.Method = MethodNone
	case MethodSum:
		settings.Method = MethodSum
	case MethodMin:
		settings.Method = MethodMin
	case MethodMax:
		settings.Method = MethodMax
	case MethodAverage:
		settings.Method = MethodAverage
	default:
		return fieldSettings{}, apperror.ErrConfiguration.
			WithMessagef("unknown aggregation method '%s' for property '%s'", options.AggregationMethod, property.PropertyName)
	}

	if settings.Method != MethodNone {
		if settings.ParentTableName == "" || settings.ParentColumnName == "" {
			return fieldSettings{}, apperror.ErrConfiguration.
				WithMessagef("property '%s' has a parent aggregation method but no parent table or column configured", property.PropertyName)
		}
	}

	for _, identifier := range []string{settings.TableName, settings.ColumnName, settings.ParentTableName, settings.ParentColumnName} {
		if identifier != "" && !validIdentifier.MatchString(identifier) {
			return fieldSettings{}, apperror.ErrConfiguration.
				WithMessagef("invalid aggregation identifier '%s' for property '%s'", identifier, property.PropertyName)
		}
	}

	if _, err := columnTypeFor(settings.InputType, property.PropertyName); err != nil {
		return fieldSettings{}, err
	}

	return settings, nil
}

var validIdentifier = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)

// Input types that have no sensible single-column representation.
var unsupportedInputTypes = map[string]bool{
	"sub-entities-grid": true,
	"item-linker":       true,
	"file-upload":       true,
	"action-button":     true,
	"grid":              true,
}

// columnTypeFor maps a field input type to the column definition in the
// aggregation table.
func columnTypeFor(inputType, propertyName string) (string, error) {
	if unsupportedInputTypes[inputType] {
		return "", apperror.ErrConfiguration.
			WithMessagef("input type '%s' of property '%s' cannot be aggregated into a column", inputType, propertyName)
	}

	switch inputType {
	case entities.InputTypeNumeric, entities.InputTypeAutoIncrement:
		return "DECIMAL(65,30) NULL", nil
	case entities.InputTypeCheckBox:
		return "TINYINT NOT NULL DEFAULT 0", nil
	case entities.InputTypeHTMLEditor, "textbox":
		return "MEDIUMTEXT NULL", nil
	case entities.InputTypeDateTime:
		return "DATETIME NULL", nil
	default:
		return "VARCHAR(1000) NULL", nil
	}
}

// tableColumn is one column an aggregation table must carry.
type tableColumn struct {
	Name       string
	Definition string
}

// columnsFor resolves the column definitions of one table's settings.
func columnsFor(tableSettings []fieldSettings) ([]tableColumn, error) {
	columns := make([]tableColumn, 0, len(tableSettings))
	for _, settings := range tableSettings {
		definition, err := columnTypeFor(settings.InputType, settings.PropertyName)
		if err != nil {
			return nil, err
		}
		columns = append(columns, tableColumn{Name: settings.ColumnName, Definition: definition})
	}
	return columns, nil
}

// ensureTable creates the aggregation table and any missing columns. Link
// tables key their rows by link id and carry an indexed item_id so rows can
// be purged with the item. Schema statements cannot be rolled back in MySQL,
// which is acceptable here since they are idempotent and additive.
func (e *Engine) ensureTable(ctx context.Context, db bun.IDB, tableName string, columns []tableColumn, forLinks bool) error {
	e.mu.Lock()
	ensured := e.ensuredTables[tableName]
	if ensured == nil {
		ensured = map[string]bool{}
		e.ensuredTables[tableName] = ensured
	}
	missing := make([]tableColumn, 0, len(columns))
	for _, column := range columns {
		if !ensured[column.Name] {
			missing = append(missing, column)
		}
	}
	e.mu.Unlock()

	if len(missing) == 0 {
		return nil
	}

	createStatement := fmt.Sprintf(
		"CREATE TABLE IF NOT EXISTS `%s` (`id` BIGINT UNSIGNED NOT NULL, `title` VARCHAR(255) NOT NULL DEFAULT '', PRIMARY KEY (`id`)) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
		tableName)
	if forLinks {
		createStatement = fmt.Sprintf(
			"CREATE TABLE IF NOT EXISTS `%s` (`id` BIGINT UNSIGNED NOT NULL, `item_id` BIGINT UNSIGNED NOT NULL, PRIMARY KEY (`id`), KEY `idx_item_id` (`item_id`)) ENGINE=InnoDB DEFAULT CHARSET=utf8mb4",
			tableName)
	}
	if _, err := db.ExecContext(ctx, createStatement); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	var existing []string
	err := db.NewRaw(
		"SELECT COLUMN_NAME FROM information_schema.COLUMNS WHERE TABLE_SCHEMA = DATABASE() AND TABLE_NAME = ?",
		tableName,
	).Scan(ctx, &existing)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	existingSet := map[string]bool{}
	for _, column := range existing {
		existingSet[strings.ToLower(column)] = true
	}

	for _, column := range missing {
		if !existingSet[strings.ToLower(column.Name)] {
			_, err = db.ExecContext(ctx, fmt.Sprintf(
				"ALTER TABLE `%s` ADD COLUMN `%s` %s", tableName, column.Name, column.Definition))
			if err != nil {
				return apperror.ErrDatabase.WithInternal(err)
			}
			e.log.Info("added aggregation column",
				slog.String("table", tableName),
				slog.String("column", column.Name))
		}
	}

	e.mu.Lock()
	for _, column := range missing {
		ensured[column.Name] = true
	}
	e.mu.Unlock()

	return nil
}

// upsertRow writes the item's row into one aggregation table.
func (e *Engine) upsertRow(ctx context.Context, db bun.IDB, tableName string, tableSettings []fieldSettings, item *ItemData) error {
	columns := []string{"`id`", "`title`"}
	placeholders := []string{"?", "?"}
	args := []any{item.ID, item.Title}
	updates := []string{"`title` = VALUES(`title`)"}

	for _, settings := range tableSettings {
		columns = append(columns, "`"+settings.ColumnName+"`")
		placeholders = append(placeholders, "?")
		args = append(args, columnValue(settings, item))
		updates = append(updates, fmt.Sprintf("`%s` = VALUES(`%s`)", settings.ColumnName, settings.ColumnName))
	}

	query := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
		tableName,
		strings.Join(columns, ", "),
		strings.Join(placeholders, ", "),
		strings.Join(updates, ", "))

	if _, err := db.ExecContext(ctx, query, args...); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	return nil
}

// upsertLinkRows writes one row per link the item carries link-scoped values
// for, into one aggregation table.
func (e *Engine) upsertLinkRows(ctx context.Context, db bun.IDB, tableName string, tableSettings []fieldSettings, item *ItemData) error {
	for _, linkType := range item.LinkTypes() {
		relevant := make([]fieldSettings, 0, len(tableSettings))
		for _, settings := range tableSettings {
			if settings.LinkType == linkType {
				relevant = append(relevant, settings)
			}
		}
		if len(relevant) == 0 {
			continue
		}

		for _, linkID := range item.LinkIDs(linkType) {
			columns := []string{"`id`", "`item_id`"}
			placeholders := []string{"?", "?"}
			args := []any{linkID, item.ID}
			updates := []string{"`item_id` = VALUES(`item_id`)"}

			for _, settings := range relevant {
				columns = append(columns, "`"+settings.ColumnName+"`")
				placeholders = append(placeholders, "?")
				args = append(args, linkColumnValue(settings, item, linkID))
				updates = append(updates, fmt.Sprintf("`%s` = VALUES(`%s`)", settings.ColumnName, settings.ColumnName))
			}

			query := fmt.Sprintf("INSERT INTO `%s` (%s) VALUES (%s) ON DUPLICATE KEY UPDATE %s",
				tableName,
				strings.Join(columns, ", "),
				strings.Join(placeholders, ", "),
				strings.Join(updates, ", "))

			if _, err := db.ExecContext(ctx, query, args...); err != nil {
				return apperror.ErrDatabase.WithInternal(err)
			}
		}
	}

	return nil
}

// columnValue converts an item-scoped detail value to its column
// representation.
func columnValue(settings fieldSettings, item *ItemData) any {
	return convertColumnValue(settings, item.DetailValue(settings.PropertyName, settings.LanguageCode))
}

// linkColumnValue converts a link-scoped detail value to its column
// representation.
func linkColumnValue(settings fieldSettings, item *ItemData, linkID uint64) any {
	return convertColumnValue(settings, item.LinkDetailValue(linkID, settings.PropertyName, settings.LanguageCode))
}

// convertColumnValue converts a detail value to its column representation.
// Empty values become NULL for typed columns so sums and averages ignore
// them.
func convertColumnValue(settings fieldSettings, value string) any {
	switch settings.InputType {
	case entities.InputTypeNumeric, entities.InputTypeAutoIncrement:
		if strings.TrimSpace(value) == "" {
			return nil
		}
		return strings.ReplaceAll(value, ",", ".")
	case entities.InputTypeCheckBox:
		switch strings.ToLower(strings.TrimSpace(value)) {
		case "1", "true", "yes", "on":
			return 1
		default:
			return 0
		}
	case entities.InputTypeDateTime:
		if strings.TrimSpace(value) == "" {
			return nil
		}
		return value
	default:
		return value
	}
}

// rollUpToParents recomputes the parent column for every parent the item is
// linked to via the configured link type.
func (e *Engine) rollUpToParents(ctx context.Context, db bun.IDB, settings fieldSettings, itemID uint64) error {
	linkSettings, err := e.linkTypes.GetLinkTypeSettings(ctx, settings.ParentLinkType, "", "")
	if err != nil {
		return err
	}
	linkPrefix := linktypes.GetTablePrefixForLink(linkSettings)

	sqlFunc, err := sqlFunctionFor(settings.Method)
	if err != nil {
		return err
	}

	// The parent's own entity type may never have been saved, so its table
	// and column are not guaranteed to exist yet.
	definition, err := columnTypeFor(settings.InputType, settings.PropertyName)
	if err != nil {
		return err
	}
	parentColumns := []tableColumn{{Name: settings.ParentColumnName, Definition: definition}}
	if err := e.ensureTable(ctx, db, settings.ParentTableName, parentColumns, false); err != nil {
		return err
	}

	query := fmt.Sprintf(`UPDATE `+"`%s`"+` AS parent
		JOIN `+"`%swiser_itemlink`"+` AS link
			ON link.destination_item_id = parent.id AND link.type = ?
		SET parent.`+"`%s`"+` = (
			SELECT %s(child.`+"`%s`"+`)
			FROM `+"`%s`"+` AS child
			JOIN `+"`%swiser_itemlink`"+` AS child_link
				ON child_link.item_id = child.id AND child_link.type = ?
			WHERE child_link.destination_item_id = parent.id
		)
		WHERE link.item_id = ?`,
		settings.ParentTableName, linkPrefix, settings.ParentColumnName,
		sqlFunc, settings.ColumnName, settings.TableName, linkPrefix)

	_, err = db.ExecContext(ctx, query, settings.ParentLinkType, settings.ParentLinkType, itemID)
	if err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	return nil
}

func sqlFunctionFor(method Method) (string, error) {
	switch method {
	case MethodSum:
		return "SUM", nil
	case MethodMin:
		return "MIN", nil
	case MethodMax:
		return "MAX", nil
	case MethodAverage:
		return "AVG", nil
	default:
		return "", apperror.ErrConfiguration.WithMessagef("aggregation method '%s' has no SQL function", method)
	}
}

func (e *Engine) connection(db bun.IDB) bun.IDB {
	if db != nil {
		return db
	}
	return e.db
}
