package db

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/rotisserie/eris"
)

// Beginner starts transactions. Pool and pgx.Tx both satisfy it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Upsert describes a keyed bulk insert-or-update.
type Upsert struct {
	Table   string   // target table, optionally schema-qualified
	Columns []string // columns carried by each row
	Keys    []string // unique constraint columns
	Update  []string // columns overwritten on conflict; nil means every non-key column
}

func (u Upsert) validate() error {
	if u.Table == "" {
		return eris.New("db: upsert: no table specified")
	}
	if len(u.Columns) == 0 {
		return eris.New("db: upsert: no columns specified")
	}
	if len(u.Keys) == 0 {
		return eris.New("db: upsert: no conflict keys specified")
	}
	return nil
}

func (u Upsert) updateColumns() []string {
	if u.Update != nil {
		return u.Update
	}
	keys := make(map[string]bool, len(u.Keys))
	for _, k := range u.Keys {
		keys[k] = true
	}
	var cols []string
	for _, c := range u.Columns {
		if !keys[c] {
			cols = append(cols, c)
		}
	}
	return cols
}

// staging is the temp table rows are copied into before the merge.
func (u Upsert) staging() string {
	return "_stage_" + strings.ReplaceAll(u.Table, ".", "_")
}

func (u Upsert) createStagingSQL() string {
	return fmt.Sprintf("CREATE TEMP TABLE %s (LIKE %s INCLUDING DEFAULTS) ON COMMIT DROP",
		pgx.Identifier{u.staging()}.Sanitize(), sanitizeTable(u.Table))
}

func (u Upsert) mergeSQL() string {
	cols := quoteAndJoin(u.Columns)
	action := "DO NOTHING"
	if upd := u.updateColumns(); len(upd) > 0 {
		sets := make([]string, len(upd))
		for i, c := range upd {
			id := pgx.Identifier{c}.Sanitize()
			sets[i] = id + " = EXCLUDED." + id
		}
		action = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	return fmt.Sprintf("INSERT INTO %s (%s) SELECT %s FROM %s ON CONFLICT (%s) %s",
		sanitizeTable(u.Table), cols, cols, pgx.Identifier{u.staging()}.Sanitize(),
		quoteAndJoin(u.Keys), action)
}

// UpsertRows copies rows into a temp staging table and merges them into the
// target with INSERT ... ON CONFLICT, all in one transaction. It returns the
// number of rows inserted or updated.
func UpsertRows(ctx context.Context, b Beginner, u Upsert, rows [][]any) (int64, error) {
	if len(rows) == 0 {
		return 0, nil
	}
	if err := u.validate(); err != nil {
		return 0, err
	}

	tx, err := b.Begin(ctx)
	if err != nil {
		return 0, eris.Wrap(err, "db: upsert: begin")
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	if _, err := tx.Exec(ctx, u.createStagingSQL()); err != nil {
		return 0, eris.Wrapf(err, "db: upsert: stage %s", u.Table)
	}
	if _, err := CopyFrom(ctx, tx, u.staging(), u.Columns, rows); err != nil {
		return 0, err
	}
	tag, err := tx.Exec(ctx, u.mergeSQL())
	if err != nil {
		return 0, eris.Wrapf(err, "db: upsert: merge into %s", u.Table)
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, eris.Wrap(err, "db: upsert: commit")
	}
	return tag.RowsAffected(), nil
}

// sanitizeTable quotes a possibly schema-qualified table name.
func sanitizeTable(table string) string {
	return pgx.Identifier(strings.SplitN(table, ".", 2)).Sanitize()
}

func quoteAndJoin(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = pgx.Identifier{c}.Sanitize()
	}
	return strings.Join(quoted, ", ")
}
