package database

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/mysqldialect"
	"go.uber.org/fx"

	"github.com/happy-geeks/geeks-core-library-sub000/internal/config"
	"github.com/happy-geeks/geeks-core-library-sub000/pkg/logger"
)

var Module = fx.Module("database",
	fx.Provide(
		NewSQLDB,
		NewBunDB,
		// Provide bun.IDB interface binding for services that use the interface
		fx.Annotate(
			func(db *bun.DB) bun.IDB { return db },
			fx.As(new(bun.IDB)),
		),
	),
)

// NewSQLDB opens a MySQL connection pool.
func NewSQLDB(lc fx.Lifecycle, cfg *config.Config, log *slog.Logger) (*sql.DB, error) {
	log = log.With(logger.Scope("database"))

	mysqlCfg, err := mysql.ParseDSN(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse mysql dsn: %w", err)
	}

	connector, err := mysql.NewConnector(mysqlCfg)
	if err != nil {
		return nil, fmt.Errorf("create mysql connector: %w", err)
	}

	sqldb := sql.OpenDB(connector)
	sqldb.SetMaxOpenConns(cfg.Database.MaxOpenConns)
	sqldb.SetMaxIdleConns(cfg.Database.MaxIdleConns)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := sqldb.PingContext(ctx); err != nil {
		sqldb.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	log.Info("database pool created",
		slog.String("host", cfg.Database.Host),
		slog.Int("port", cfg.Database.Port),
		slog.String("database", cfg.Database.Database),
		slog.Int("max_conns", cfg.Database.MaxOpenConns),
	)

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			log.Info("closing database pool")
			return sqldb.Close()
		},
	})

	return sqldb, nil
}

// NewBunDB creates a Bun instance with the MySQL dialect on top of the pool.
func NewBunDB(cfg *config.Config, sqldb *sql.DB, log *slog.Logger) *bun.DB {
	log = log.With(logger.Scope("bun"))

	db := bun.NewDB(sqldb, mysqldialect.New())

	if cfg.Database.QueryDebug {
		db.AddQueryHook(&queryLoggingHook{log: log})
	}

	log.Info("bun database initialized")

	return db
}

// queryLoggingHook implements bun.QueryHook for query logging
type queryLoggingHook struct {
	log *slog.Logger
}

func (h *queryLoggingHook) BeforeQuery(ctx context.Context, event *bun.QueryEvent) context.Context {
	return ctx
}

func (h *queryLoggingHook) AfterQuery(ctx context.Context, event *bun.QueryEvent) {
	duration := time.Since(event.StartTime)

	if event.Err != nil && event.Err != sql.ErrNoRows {
		h.log.Error("query error",
			slog.String("query", event.Query),
			slog.Duration("duration", duration),
			logger.Error(event.Err),
		)
		return
	}

	// Log slow queries as warnings
	if duration > 3*time.Second {
		h.log.Warn("slow query",
			slog.String("query", event.Query),
			slog.Duration("duration", duration),
		)
		return
	}

	h.log.Debug("query",
		slog.String("query", event.Query),
		slog.Duration("duration", duration),
	)
}

// SetSessionContext sets the session variables read by the database-side
// history triggers. It must be called on the same connection/transaction that
// performs the mutation, which in practice means inside a transaction.
func SetSessionContext(ctx context.Context, db bun.IDB, username string, userID uint64, saveHistory bool) error {
	_, err := db.ExecContext(ctx,
		"SET @_username = ?, @_userId = ?, @saveHistory = ?",
		username, userID, saveHistory)
	if err != nil {
		return fmt.Errorf("set session context: %w", err)
	}

	return nil
}

// WithTransaction runs fn inside a transaction. When createNew is false the
// caller's connection is passed through unchanged, so fn joins whatever
// transaction the caller already has open. When createNew is true a new
// transaction is begun on db, committed when fn succeeds and rolled back when
// it fails.
func WithTransaction(ctx context.Context, db bun.IDB, createNew bool, fn func(bun.IDB) error) error {
	if !createNew {
		return fn(db)
	}

	tx, err := BeginSafeTx(ctx, db)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx.Tx); err != nil {
		return err
	}

	return tx.Commit()
}

// SafeTx wraps a bun.Tx to make Rollback safe to call after Commit.
//
// This allows the deferred-rollback pattern: begin, defer Rollback, do work,
// return Commit. Rollback after a successful Commit is a no-op instead of an
// error that would mask the real result.
type SafeTx struct {
	bun.Tx
	committed bool
}

// BeginSafeTx starts a new transaction and returns a SafeTx wrapper.
func BeginSafeTx(ctx context.Context, db bun.IDB) (*SafeTx, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	return &SafeTx{Tx: tx}, nil
}

// Commit commits the transaction and marks it as committed.
func (tx *SafeTx) Commit() error {
	if tx.committed {
		return nil
	}
	err := tx.Tx.Commit()
	if err == nil {
		tx.committed = true
	}
	return err
}

// Rollback rolls back the transaction only if it hasn't been committed.
// This is safe to call in a defer statement even after Commit.
func (tx *SafeTx) Rollback() error {
	if tx.committed {
		return nil
	}
	return tx.Tx.Rollback()
}
