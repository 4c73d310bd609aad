// Package entities resolves entity-type metadata: table placement, deletion
// policy and per-field save behavior.
package entities

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"log/slog"
	"strings"

	"github.com/uptrace/bun"

	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/logger"
)

// Option keys used in the field options JSON.
const (
	optionSaveValueAsItemLink      = "saveValueAsItemLink"
	optionLinkTypeNumber           = "linkTypeNumber"
	optionCurrentItemIsDestination = "currentItemIsDestinationId"
	optionSecurityMethod           = "securityMethod"
	optionSecurityKey              = "securityKey"
	optionDateTimePickerType       = "type"
)

// Input types with dedicated save behavior.
const (
	InputTypeSecure        = "secure-input"
	InputTypeDateTime      = "date-time picker"
	InputTypeNumeric       = "numeric-input"
	InputTypeHTMLEditor    = "htmleditor"
	InputTypeComboBox      = "combobox"
	InputTypeMultiSelect   = "multiselect"
	InputTypeCheckBox      = "checkbox"
	InputTypeAutoIncrement = "auto-increment"
)

// Service resolves entity type settings from the metadata tables.
type Service struct {
	db  bun.IDB
	log *slog.Logger
}

// NewService creates a new entity type registry.
func NewService(db bun.IDB, log *slog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With(logger.Scope("entities")),
	}
}

// GetEntityTypeSettings resolves the settings of an entity type. When the
// same entity type is defined for multiple modules the row matching moduleID
// wins, otherwise the first row by id. Unknown entity types yield default
// settings, not an error; callers must tolerate the zero value.
func (s *Service) GetEntityTypeSettings(ctx context.Context, entityType string, moduleID int) (*Settings, error) {
	settings := defaultSettings(entityType)
	if entityType == "" {
		return settings, nil
	}

	var rows []Entity
	err := s.db.NewSelect().
		Model(&rows).
		Where("name = ?", entityType).
		Order("id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}
	if len(rows) == 0 {
		return settings, nil
	}

	entity := rows[0]
	if moduleID > 0 {
		for _, row := range rows {
			if row.ModuleID == moduleID {
				entity = row
				break
			}
		}
	}

	if err := applyEntityRow(settings, &entity); err != nil {
		return nil, err
	}

	var properties []EntityProperty
	err = s.db.NewSelect().
		Model(&properties).
		Where("entity_name = ?", entityType).
		Order("ordering ASC", "id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	for i := range properties {
		property := &properties[i]
		if property.PropertyName == "" {
			continue
		}

		if strings.EqualFold(property.InputType, InputTypeAutoIncrement) {
			settings.AutoIncrementFields = append(settings.AutoIncrementFields, AutoIncrementField{
				PropertyName: property.PropertyName,
				LanguageCode: property.LanguageCode,
			})
		}

		options, err := ParseFieldOptions(property)
		if err != nil {
			s.log.Warn("invalid field options, falling back to plain save",
				slog.String("entity_type", entityType),
				slog.String("property", property.PropertyName),
				logger.Error(err))
			options = FieldOptions{InputType: property.InputType}
		}
		settings.FieldOptions[FieldOptionsKey(property.PropertyName, property.LanguageCode)] = options
	}

	return settings, nil
}

// GetAllEntityTypes lists the distinct entity type names, optionally limited
// to one module.
func (s *Service) GetAllEntityTypes(ctx context.Context, moduleID int) ([]string, error) {
	query := s.db.NewSelect().
		Model((*Entity)(nil)).
		ColumnExpr("DISTINCT name").
		Where("name <> ''").
		Order("name ASC")
	if moduleID > 0 {
		query = query.Where("module_id = ?", moduleID)
	}

	var names []string
	if err := query.Scan(ctx, &names); err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return names, nil
}

// GetTablePrefixForEntityType resolves the physical table prefix for an
// entity type name.
func (s *Service) GetTablePrefixForEntityType(ctx context.Context, entityType string) (string, error) {
	settings, err := s.GetEntityTypeSettings(ctx, entityType, 0)
	if err != nil {
		return "", err
	}
	return GetTablePrefix(settings), nil
}

// GetTablePrefix returns the dedicated table prefix of an entity type,
// normalized to end with an underscore, or the empty string for shared tables.
func GetTablePrefix(settings *Settings) string {
	if settings == nil || settings.DedicatedTablePrefix == "" {
		return ""
	}
	prefix := settings.DedicatedTablePrefix
	if !strings.HasSuffix(prefix, "_") {
		prefix += "_"
	}
	return prefix
}

// FieldOptionsKey builds the lookup key for the field options map.
func FieldOptionsKey(key, languageCode string) string {
	key = strings.ToLower(key)
	if languageCode == "" {
		return key
	}
	return key + "_" + strings.ToLower(languageCode)
}

// ParseFieldOptions decodes the save behavior of one field from its input
// type and options JSON. The result is stored on the entity settings so the
// JSON is parsed once per metadata load instead of once per save.
func ParseFieldOptions(property *EntityProperty) (FieldOptions, error) {
	options := FieldOptions{
		InputType:        strings.ToLower(property.InputType),
		ReadOnly:         property.ReadOnly,
		AlsoSaveSeoValue: property.AlsoSaveSeoValue,
	}

	raw := map[string]any{}
	if property.Options != nil && strings.TrimSpace(*property.Options) != "" {
		if err := json.Unmarshal([]byte(*property.Options), &raw); err != nil {
			return options, apperror.ErrConfiguration.
				WithMessagef("invalid options JSON for property '%s'", property.PropertyName).
				WithInternal(err)
		}
	}

	switch options.InputType {
	case InputTypeSecure:
		options.SaveMode = SaveModeSecure
		method, _ := raw[optionSecurityMethod].(string)
		switch SecurityMethod(strings.ToUpper(method)) {
		case SecurityMethodSHA512, "":
			options.SecurityMethod = SecurityMethodSHA512
		case SecurityMethodAESSalted:
			options.SecurityMethod = SecurityMethodAESSalted
		case SecurityMethodAES:
			options.SecurityMethod = SecurityMethodAES
		default:
			return options, apperror.ErrConfiguration.
				WithMessagef("unsupported security method '%s' for property '%s'", method, property.PropertyName)
		}
		if key, ok := raw[optionSecurityKey].(string); ok {
			options.SecurityKey = key
		}
	case InputTypeDateTime:
		options.SaveMode = SaveModeDatePart
		if subType, ok := raw[optionDateTimePickerType].(string); ok {
			options.Granularity = DatePartGranularity(strings.ToLower(subType))
		}
	case InputTypeNumeric:
		options.SaveMode = SaveModeNumeric
	case InputTypeHTMLEditor:
		options.SaveMode = SaveModeHTML
	case InputTypeComboBox, InputTypeMultiSelect:
		saveAsLink, _ := raw[optionSaveValueAsItemLink].(bool)
		if !saveAsLink {
			break
		}
		options.SaveMode = SaveModeLinkedSelection
		if linkType, ok := raw[optionLinkTypeNumber].(float64); ok {
			options.LinkType = int(linkType)
		}
		if isDestination, ok := raw[optionCurrentItemIsDestination].(bool); ok {
			options.CurrentItemIsDestination = isDestination
		}
		if options.LinkType == 0 {
			return options, apperror.ErrConfiguration.
				WithMessagef("property '%s' saves values as item links but has no link type configured", property.PropertyName)
		}
	}

	return options, nil
}

func defaultSettings(entityType string) *Settings {
	return &Settings{
		EntityType:   entityType,
		DeleteAction: DeleteActionArchive,
		StoreType:    StoreTypeTable,
		SaveHistory:  true,
		FieldOptions: map[string]FieldOptions{},
	}
}

func applyEntityRow(settings *Settings, entity *Entity) error {
	settings.ID = entity.ID
	settings.ModuleID = entity.ModuleID
	settings.DedicatedTablePrefix = entity.DedicatedTablePrefix
	settings.SaveHistory = entity.SaveHistory
	settings.ShowInTreeView = entity.ShowInTreeView
	settings.EnableMultipleEnvironments = entity.EnableMultipleEnvironments
	settings.QueryAfterInsert = stringValue(entity.QueryAfterInsert)
	settings.QueryAfterUpdate = stringValue(entity.QueryAfterUpdate)
	settings.QueryBeforeUpdate = stringValue(entity.QueryBeforeUpdate)
	settings.QueryBeforeDelete = stringValue(entity.QueryBeforeDelete)

	if entity.AcceptedChildTypes != "" {
		for _, childType := range strings.Split(entity.AcceptedChildTypes, ",") {
			childType = strings.TrimSpace(childType)
			if childType != "" {
				settings.AcceptedChildTypes = append(settings.AcceptedChildTypes, childType)
			}
		}
	}

	switch DeleteAction(strings.ToLower(entity.DeleteAction)) {
	case DeleteActionArchive, "":
		settings.DeleteAction = DeleteActionArchive
	case DeleteActionPermanent:
		settings.DeleteAction = DeleteActionPermanent
	case DeleteActionHide:
		settings.DeleteAction = DeleteActionHide
	case DeleteActionDisallow:
		settings.DeleteAction = DeleteActionDisallow
	default:
		return apperror.ErrConfiguration.
			WithMessagef("unknown delete action '%s' for entity type '%s'", entity.DeleteAction, entity.Name)
	}

	switch StoreType(strings.ToLower(entity.StoreType)) {
	case StoreTypeTable, "":
		settings.StoreType = StoreTypeTable
	case StoreTypeDocumentStore:
		settings.StoreType = StoreTypeDocumentStore
	case StoreTypeHybrid:
		settings.StoreType = StoreTypeHybrid
	default:
		return apperror.ErrConfiguration.
			WithMessagef("unknown store type '%s' for entity type '%s'", entity.StoreType, entity.Name)
	}

	return nil
}

func stringValue(value *string) string {
	if value == nil {
		return ""
	}
	return *value
}
