// Package workflows runs entity-type-configured SQL snippets after item
// inserts and updates.
package workflows

import (
	"context"
	"log/slog"
	"regexp"
	"strings"

	"github.com/uptrace/bun"

	"github.com/happy-geeks/geeks-core-library-sub000/domain/entities"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/logger"
)

// Service executes post-insert and post-update workflow queries.
type Service struct {
	log *slog.Logger
}

// NewService creates a new workflow executor.
func NewService(log *slog.Logger) *Service {
	return &Service{
		log: log.With(logger.Scope("workflows")),
	}
}

// ExecuteWorkflow runs the configured after-insert or after-update query of
// an entity type with placeholders substituted from the item's values. The
// query runs on the given connection so it joins the caller's transaction.
// It returns whether a workflow was configured and executed.
func (s *Service) ExecuteWorkflow(ctx context.Context, db bun.IDB, isNewItem bool, settings *entities.Settings, values map[string]string) (bool, error) {
	if settings == nil {
		return false, nil
	}

	query := settings.QueryAfterUpdate
	if isNewItem {
		query = settings.QueryAfterInsert
	}
	if strings.TrimSpace(query) == "" {
		return false, nil
	}

	boundQuery, args := substitutePlaceholders(query, values)

	if _, err := db.ExecContext(ctx, boundQuery, args...); err != nil {
		s.log.Error("workflow query failed",
			slog.String("entity_type", settings.EntityType),
			slog.Bool("is_new_item", isNewItem),
			logger.Error(err))
		return false, apperror.ErrDatabase.
			WithMessagef("workflow query for entity type '%s' failed", settings.EntityType).
			WithInternal(err)
	}

	return true, nil
}

var placeholderPattern = regexp.MustCompile(`\{([a-zA-Z0-9_]+)\}`)

// substitutePlaceholders turns every known {placeholder} into a bind
// parameter so values never end up interpolated into the statement text.
// Unknown placeholders are left untouched.
func substitutePlaceholders(query string, values map[string]string) (string, []any) {
	var args []any

	bound := placeholderPattern.ReplaceAllStringFunc(query, func(match string) string {
		name := match[1 : len(match)-1]
		value, ok := values[name]
		if !ok {
			return match
		}
		args = append(args, value)
		return "?"
	})

	return bound, args
}
