// Package linktypes resolves link-type metadata: physical storage mode,
// cardinality, duplication policy and cascade-delete behavior.
package linktypes

import (
	"context"
	"database/sql"
	"errors"
	"log/slog"
	"strconv"
	"strings"

	"github.com/uptrace/bun"

	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/logger"
)

// Service resolves link type settings from the metadata tables.
type Service struct {
	db  bun.IDB
	log *slog.Logger
}

// NewService creates a new link type registry.
func NewService(db bun.IDB, log *slog.Logger) *Service {
	return &Service{
		db:  db,
		log: log.With(logger.Scope("linktypes")),
	}
}

// GetLinkTypeSettings resolves the settings of a link type. At least one of
// linkType, sourceEntityType and destinationEntityType must be given. When no
// row matches, default settings are returned, not an error.
func (s *Service) GetLinkTypeSettings(ctx context.Context, linkType int, sourceEntityType, destinationEntityType string) (*Settings, error) {
	if linkType <= 0 && sourceEntityType == "" && destinationEntityType == "" {
		return nil, apperror.ErrInvalidArgument.
			WithMessage("at least one of link type, source entity type and destination entity type is required")
	}

	row := new(LinkType)
	query := s.db.NewSelect().
		Model(row).
		Order("id ASC").
		Limit(1)
	if linkType > 0 {
		query = query.Where("type = ?", linkType)
	}
	if sourceEntityType != "" {
		query = query.Where("connected_entity_type = ?", sourceEntityType)
	}
	if destinationEntityType != "" {
		query = query.Where("destination_entity_type = ?", destinationEntityType)
	}

	err := query.Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return defaultSettings(linkType, sourceEntityType, destinationEntityType), nil
	}
	if err != nil {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	return settingsFromRow(row), nil
}

// GetAllLinkTypeSettings lists every configured link type. Used for archive
// sweeps and aggregation over dedicated link tables.
func (s *Service) GetAllLinkTypeSettings(ctx context.Context) ([]*Settings, error) {
	var rows []LinkType
	err := s.db.NewSelect().
		Model(&rows).
		Order("type ASC", "id ASC").
		Scan(ctx)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return nil, apperror.ErrDatabase.WithInternal(err)
	}

	settings := make([]*Settings, 0, len(rows))
	for i := range rows {
		settings = append(settings, settingsFromRow(&rows[i]))
	}

	return settings, nil
}

// GetTablePrefixForLink returns the physical table prefix for a link type.
// Parent-id-based links never get a dedicated link table because they are not
// stored as link rows at all.
func GetTablePrefixForLink(settings *Settings) string {
	if settings == nil || !settings.UseDedicatedTable || settings.UseItemParentId {
		return ""
	}
	return strconv.Itoa(settings.Type) + "_"
}

func settingsFromRow(row *LinkType) *Settings {
	settings := &Settings{
		ID:                    row.ID,
		Type:                  row.Type,
		Name:                  row.Name,
		SourceEntityType:      row.ConnectedEntityType,
		DestinationEntityType: row.DestinationEntityType,
		UseItemParentId:       row.UseItemParentId,
		UseDedicatedTable:     row.UseDedicatedTable,
		CascadeDelete:         row.CascadeDelete,
	}

	switch Relationship(strings.ToLower(row.Relationship)) {
	case RelationshipOneToOne:
		settings.Relationship = RelationshipOneToOne
	case RelationshipManyToMany:
		settings.Relationship = RelationshipManyToMany
	default:
		settings.Relationship = RelationshipOneToMany
	}

	switch DuplicationMethod(strings.ToLower(row.Duplication)) {
	case DuplicationCopyLink:
		settings.DuplicationMethod = DuplicationCopyLink
	case DuplicationCopyItem:
		settings.DuplicationMethod = DuplicationCopyItem
	default:
		settings.DuplicationMethod = DuplicationNone
	}

	return settings
}

func defaultSettings(linkType int, sourceEntityType, destinationEntityType string) *Settings {
	return &Settings{
		Type:                  linkType,
		SourceEntityType:      sourceEntityType,
		DestinationEntityType: destinationEntityType,
		Relationship:          RelationshipOneToMany,
		DuplicationMethod:     DuplicationNone,
	}
}
