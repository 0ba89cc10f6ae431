// Package sqlxrepos implements the core repositories on PostgreSQL through sqlx.
package sqlxrepos

import (
	"context"
	"strings"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/darasa/core"
	"github.com/trezcool/darasa/storage/database"
)

// repo is embedded by all the repositories. ext is either the *sqlx.DB or the running *sqlx.Tx.
type repo struct {
	db  *sqlx.DB
	ext sqlx.ExtContext
}

func newRepo(db *sqlx.DB) repo {
	return repo{db: db, ext: db}
}

func (r repo) inTx() bool {
	_, ok := r.ext.(*sqlx.Tx)
	return ok
}

// atomic runs fn within the running transaction, or a new one. When lockKey is set, fn runs while holding
// the transaction-level advisory lock keyed by lockKey.
func (r repo) atomic(ctx context.Context, lockKey string, fn func(ext sqlx.ExtContext) error) error {
	run := func(ext sqlx.ExtContext) error {
		if lockKey != "" {
			if _, err := ext.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext($1))", lockKey); err != nil {
				return errors.Wrapf(err, "acquiring lock %q", lockKey)
			}
		}
		return fn(ext)
	}

	if r.inTx() {
		return run(r.ext)
	}
	return database.WithTx(ctx, r.db, func(tx *sqlx.Tx) error { return run(tx) })
}

// where builds AND-ed conditions using `?` placeholders.
type where struct {
	conds []string
	args  []interface{}
}

func (w *where) add(cond string, args ...interface{}) {
	w.conds = append(w.conds, cond)
	w.args = append(w.args, args...)
}

func (w *where) String() string {
	if len(w.conds) == 0 {
		return ""
	}
	return " WHERE " + strings.Join(w.conds, " AND ")
}

// orderBy renders the allowed orderings, falling back to `def`.
func orderBy(ordering []core.DBOrdering, def string, allowed ...string) string {
	ordering = core.FilterOrderings(ordering, allowed...)
	if len(ordering) == 0 {
		return " ORDER BY " + def
	}
	clauses := make([]string, 0, len(ordering))
	for _, ord := range ordering {
		clauses = append(clauses, ord.String())
	}
	return " ORDER BY " + strings.Join(clauses, ", ")
}

func isUUID(id string) bool {
	_, err := uuid.Parse(id)
	return err == nil
}

// uuids drops the ids postgres would fail to cast to UUID.
func uuids(ids []string) []string {
	res := make([]string, 0, len(ids))
	for _, id := range ids {
		if isUUID(id) {
			res = append(res, id)
		}
	}
	return res
}

func rowsAffected(res interface{ RowsAffected() (int64, error) }) (int, error) {
	n, err := res.RowsAffected()
	return int(n), err
}
