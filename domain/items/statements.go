package items

import (
	"context"
	"fmt"
	"strings"

	"github.com/uptrace/bun"

	"github.com/happy-geeks/geeks-core-library-sub000/pkg/apperror"
)

// detailRef identifies a detail row to remove.
type detailRef struct {
	ownerID      uint64
	key          string
	languageCode string
}

// detailWrite is a detail row to insert or update.
type detailWrite struct {
	ownerID      uint64
	key          string
	languageCode string
	groupName    string
	value        string
}

// detailBatch collects detail mutations against one table so they can be
// flushed as grouped statements instead of one round trip per field.
type detailBatch struct {
	table       string
	ownerColumn string
	deletes     []detailRef
	upserts     []detailWrite
}

func newDetailBatch(table, ownerColumn string) *detailBatch {
	return &detailBatch{table: table, ownerColumn: ownerColumn}
}

func (b *detailBatch) delete(ownerID uint64, key, languageCode string) {
	b.deletes = append(b.deletes, detailRef{ownerID: ownerID, key: key, languageCode: languageCode})
}

func (b *detailBatch) upsert(ownerID uint64, key, languageCode, groupName, value string) {
	b.upserts = append(b.upserts, detailWrite{
		ownerID:      ownerID,
		key:          key,
		languageCode: languageCode,
		groupName:    groupName,
		value:        value,
	})
}

// deleteStatement builds a single grouped delete over the unique key
// (owner, key, language_code).
func (b *detailBatch) deleteStatement() (string, []any) {
	rows := make([]string, 0, len(b.deletes))
	args := make([]any, 0, len(b.deletes)*3)
	for _, ref := range b.deletes {
		rows = append(rows, "(?, ?, ?)")
		args = append(args, ref.ownerID, ref.key, ref.languageCode)
	}

	query := fmt.Sprintf("DELETE FROM `%s` WHERE (`%s`, `key`, language_code) IN (%s)",
		b.table, b.ownerColumn, strings.Join(rows, ", "))
	return query, args
}

// upsertStatement builds a single multi-row upsert over the same unique key.
func (b *detailBatch) upsertStatement() (string, []any) {
	rows := make([]string, 0, len(b.upserts))
	args := make([]any, 0, len(b.upserts)*6)
	for _, write := range b.upserts {
		shortValue, longValue := splitValueColumns(write.value)
		rows = append(rows, "(?, ?, ?, ?, ?, ?)")
		args = append(args, write.ownerID, write.key, write.languageCode, write.groupName, shortValue, longValue)
	}

	query := fmt.Sprintf(
		"INSERT INTO `%s` (`%s`, `key`, language_code, groupname, `value`, long_value) VALUES %s "+
			"ON DUPLICATE KEY UPDATE groupname = VALUES(groupname), `value` = VALUES(`value`), long_value = VALUES(long_value)",
		b.table, b.ownerColumn, strings.Join(rows, ", "))
	return query, args
}

// flush runs one grouped delete and one multi-row upsert.
func (b *detailBatch) flush(ctx context.Context, tx bun.IDB) error {
	if len(b.deletes) > 0 {
		query, args := b.deleteStatement()
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return apperror.ErrDatabase.WithInternal(err)
		}
	}

	if len(b.upserts) == 0 {
		return nil
	}

	query, args := b.upsertStatement()
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		return apperror.ErrDatabase.WithInternal(err)
	}

	return nil
}
