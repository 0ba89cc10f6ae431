package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/breakglass"
)

const grantColumns = `id, ticket, user_id, granted_by, reason, self_promoted, activated_at, expires_at,
	deactivated_at, deactivated_by, deactivation_reason`

type grantRow struct {
	ID                 string      `db:"id"`
	Ticket             string      `db:"ticket"`
	UserID             string      `db:"user_id"`
	GrantedBy          null.String `db:"granted_by"`
	Reason             string      `db:"reason"`
	SelfPromoted       bool        `db:"self_promoted"`
	ActivatedAt        time.Time   `db:"activated_at"`
	ExpiresAt          time.Time   `db:"expires_at"`
	DeactivatedAt      null.Time   `db:"deactivated_at"`
	DeactivatedBy      null.String `db:"deactivated_by"`
	DeactivationReason string      `db:"deactivation_reason"`
}

func (row grantRow) toGrant() breakglass.Grant {
	g := breakglass.Grant{
		ID:                 row.ID,
		Ticket:             row.Ticket,
		UserID:             row.UserID,
		GrantedBy:          row.GrantedBy.String,
		Reason:             row.Reason,
		SelfPromoted:       row.SelfPromoted,
		ActivatedAt:        row.ActivatedAt.UTC(),
		ExpiresAt:          row.ExpiresAt.UTC(),
		DeactivatedBy:      row.DeactivatedBy.String,
		DeactivationReason: row.DeactivationReason,
	}
	if row.DeactivatedAt.Valid {
		t := row.DeactivatedAt.Time.UTC()
		g.DeactivatedAt = &t
	}
	return g
}

type breakGlassRepository struct {
	repo
}

var _ breakglass.Repository = (*breakGlassRepository)(nil)

func NewBreakGlassRepository(db *sqlx.DB) breakglass.Repository {
	return &breakGlassRepository{repo: newRepo(db)}
}

func (r *breakGlassRepository) LockUser(ctx context.Context, userID string, fn func(repo breakglass.Repository) error) error {
	return r.atomic(ctx, "breakglass:user:"+userID, func(ext sqlx.ExtContext) error {
		return fn(&breakGlassRepository{repo: repo{db: r.db, ext: ext}})
	})
}

func (r *breakGlassRepository) CreateGrant(ctx context.Context, g breakglass.Grant) (breakglass.Grant, error) {
	q := `INSERT INTO break_glass_grants (ticket, user_id, granted_by, reason, self_promoted, activated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + grantColumns
	var row grantRow
	err := sqlx.GetContext(
		ctx, r.ext, &row, q,
		g.Ticket, g.UserID, nullString(g.GrantedBy), g.Reason, g.SelfPromoted, g.ActivatedAt, g.ExpiresAt,
	)
	if err != nil {
		return breakglass.Grant{}, errors.Wrap(err, "inserting grant")
	}
	return row.toGrant(), nil
}

func (r *breakGlassRepository) GetGrant(ctx context.Context, id string) (breakglass.Grant, error) {
	if !isUUID(id) {
		return breakglass.Grant{}, breakglass.ErrNotFound
	}
	var row grantRow
	if err := sqlx.GetContext(ctx, r.ext, &row, "SELECT "+grantColumns+" FROM break_glass_grants WHERE id = $1", id); err != nil {
		if err == sql.ErrNoRows {
			return breakglass.Grant{}, breakglass.ErrNotFound
		}
		return breakglass.Grant{}, errors.Wrap(err, "selecting grant")
	}
	return row.toGrant(), nil
}

func (r *breakGlassRepository) ActiveGrant(ctx context.Context, userID string, now time.Time) (breakglass.Grant, error) {
	if !isUUID(userID) {
		return breakglass.Grant{}, breakglass.ErrNotFound
	}
	q := `SELECT ` + grantColumns + ` FROM break_glass_grants
		WHERE user_id = $1 AND deactivated_at IS NULL AND activated_at <= $2 AND expires_at > $2
		ORDER BY activated_at DESC
		LIMIT 1`
	var row grantRow
	if err := sqlx.GetContext(ctx, r.ext, &row, q, userID, now); err != nil {
		if err == sql.ErrNoRows {
			return breakglass.Grant{}, breakglass.ErrNotFound
		}
		return breakglass.Grant{}, errors.Wrap(err, "selecting active grant")
	}
	return row.toGrant(), nil
}

func (r *breakGlassRepository) QueryGrants(ctx context.Context, filter breakglass.QueryFilter, now time.Time) ([]breakglass.Grant, error) {
	var w where
	if filter.UserID != "" {
		if !isUUID(filter.UserID) {
			return []breakglass.Grant{}, nil
		}
		w.add("user_id = ?", filter.UserID)
	}
	if filter.ActiveOnly {
		w.add("deactivated_at IS NULL AND activated_at <= ? AND expires_at > ?", now, now)
	}

	var rows []grantRow
	q := "SELECT " + grantColumns + " FROM break_glass_grants" + w.String() + " ORDER BY activated_at DESC"
	if err := sqlx.SelectContext(ctx, r.ext, &rows, r.ext.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting grants")
	}
	grants := make([]breakglass.Grant, 0, len(rows))
	for _, row := range rows {
		grants = append(grants, row.toGrant())
	}
	return grants, nil
}

func (r *breakGlassRepository) UpdateGrant(ctx context.Context, g breakglass.Grant) (breakglass.Grant, error) {
	q := `UPDATE break_glass_grants SET expires_at = $2, deactivated_at = $3, deactivated_by = $4, deactivation_reason = $5
		WHERE id = $1
		RETURNING ` + grantColumns
	var deactivatedAt null.Time
	if g.DeactivatedAt != nil {
		deactivatedAt = null.TimeFrom(*g.DeactivatedAt)
	}
	var row grantRow
	err := sqlx.GetContext(ctx, r.ext, &row, q, g.ID, g.ExpiresAt, deactivatedAt, nullString(g.DeactivatedBy), g.DeactivationReason)
	if err != nil {
		if err == sql.ErrNoRows {
			return breakglass.Grant{}, breakglass.ErrNotFound
		}
		return breakglass.Grant{}, errors.Wrap(err, "updating grant")
	}
	return row.toGrant(), nil
}

func (r *breakGlassRepository) ExpireGrants(ctx context.Context, now time.Time) (int, error) {
	q := `UPDATE break_glass_grants SET deactivated_at = expires_at, deactivation_reason = $2
		WHERE deactivated_at IS NULL AND expires_at <= $1`
	res, err := r.ext.ExecContext(ctx, q, now, breakglass.ReasonExpired)
	if err != nil {
		return 0, errors.Wrap(err, "expiring grants")
	}
	return rowsAffected(res)
}
