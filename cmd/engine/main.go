// Package main starts the item storage engine with all domain services wired
// together. It is the integration entry point; most consumers embed the
// domain modules in their own fx application instead.
package main

import (
	"context"
	"log/slog"

	"github.com/joho/godotenv"
	"github.com/uptrace/bun"
	"go.uber.org/fx"
	"go.uber.org/fx/fxevent"

	"github.com/happy-geeks/geeks-core-library-sub000/domain/aggregation"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/entities"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/items"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/links"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/linktypes"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/permissions"
	"github.com/happy-geeks/geeks-core-library-sub000/domain/workflows"
	"github.com/happy-geeks/geeks-core-library-sub000/internal/config"
	"github.com/happy-geeks/geeks-core-library-sub000/internal/database"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/encryption"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/htmlcleaner"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/logger"
)

func main() {
	// Load .env files if present (for local development). Load() won't
	// overwrite existing vars, Overload() will.
	_ = godotenv.Load(".env")
	_ = godotenv.Overload(".env.local")

	fx.New(
		fx.WithLogger(func(log *slog.Logger) fxevent.Logger {
			return &fxevent.SlogLogger{Logger: log}
		}),

		// Infrastructure modules
		logger.Module,
		config.Module,
		database.Module,
		encryption.Module,
		htmlcleaner.Module,

		// Domain modules
		entities.Module,
		linktypes.Module,
		permissions.Module,
		workflows.Module,
		links.Module,
		aggregation.Module,
		items.Module,

		fx.Invoke(func(lc fx.Lifecycle, db *bun.DB, log *slog.Logger, _ *items.Service) {
			lc.Append(fx.Hook{
				OnStart: func(ctx context.Context) error {
					if err := db.PingContext(ctx); err != nil {
						return err
					}
					log.Info("item storage engine ready")
					return nil
				},
			})
		}),
	).Run()
}
