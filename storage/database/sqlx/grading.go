package sqlxrepos

import (
	"context"
	"database/sql"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/grading"
)

const componentColumns = "id, course_id, name, weight, max_score, created_at, updated_at"

type componentRow struct {
	ID        string    `db:"id"`
	CourseID  string    `db:"course_id"`
	Name      string    `db:"name"`
	Weight    float64   `db:"weight"`
	MaxScore  float64   `db:"max_score"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at"`
}

func (row componentRow) toComponent() grading.Component {
	return grading.Component{
		ID:        row.ID,
		CourseID:  row.CourseID,
		Name:      row.Name,
		Weight:    row.Weight,
		MaxScore:  row.MaxScore,
		CreatedAt: row.CreatedAt.UTC(),
		UpdatedAt: row.UpdatedAt.UTC(),
	}
}

type entryRow struct {
	ComponentID string      `db:"component_id"`
	StudentID   string      `db:"student_id"`
	Score       float64     `db:"score"`
	RecordedBy  null.String `db:"recorded_by"`
	UpdatedAt   time.Time   `db:"updated_at"`
}

func (row entryRow) toEntry() grading.Entry {
	return grading.Entry{
		ComponentID: row.ComponentID,
		StudentID:   row.StudentID,
		Score:       row.Score,
		RecordedBy:  row.RecordedBy.String,
		UpdatedAt:   row.UpdatedAt.UTC(),
	}
}

type gradingRepository struct {
	repo
}

var _ grading.Repository = (*gradingRepository)(nil)

func NewGradingRepository(db *sqlx.DB) grading.Repository {
	return &gradingRepository{repo: newRepo(db)}
}

func (r *gradingRepository) LockCourse(ctx context.Context, courseID string, fn func(repo grading.Repository) error) error {
	return r.atomic(ctx, "grading:course:"+courseID, func(ext sqlx.ExtContext) error {
		return fn(&gradingRepository{repo: repo{db: r.db, ext: ext}})
	})
}

func (r *gradingRepository) CreateComponent(ctx context.Context, c grading.Component) (grading.Component, error) {
	q := `INSERT INTO grade_components (course_id, name, weight, max_score, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING ` + componentColumns
	var row componentRow
	if err := sqlx.GetContext(ctx, r.ext, &row, q, c.CourseID, c.Name, c.Weight, c.MaxScore, c.CreatedAt, c.UpdatedAt); err != nil {
		return grading.Component{}, errors.Wrap(err, "inserting component")
	}
	return row.toComponent(), nil
}

func (r *gradingRepository) GetComponent(ctx context.Context, id string) (grading.Component, error) {
	if !isUUID(id) {
		return grading.Component{}, grading.ErrNotFound
	}
	var row componentRow
	err := sqlx.GetContext(ctx, r.ext, &row, "SELECT "+componentColumns+" FROM grade_components WHERE id = $1", id)
	if err != nil {
		if err == sql.ErrNoRows {
			return grading.Component{}, grading.ErrNotFound
		}
		return grading.Component{}, errors.Wrap(err, "selecting component")
	}
	return row.toComponent(), nil
}

func (r *gradingRepository) QueryComponents(ctx context.Context, courseID string) ([]grading.Component, error) {
	if !isUUID(courseID) {
		return []grading.Component{}, nil
	}
	var rows []componentRow
	q := "SELECT " + componentColumns + " FROM grade_components WHERE course_id = $1 ORDER BY created_at, name"
	if err := sqlx.SelectContext(ctx, r.ext, &rows, q, courseID); err != nil {
		return nil, errors.Wrap(err, "selecting components")
	}
	comps := make([]grading.Component, 0, len(rows))
	for _, row := range rows {
		comps = append(comps, row.toComponent())
	}
	return comps, nil
}

func (r *gradingRepository) UpdateComponent(ctx context.Context, c grading.Component) (grading.Component, error) {
	q := `UPDATE grade_components SET name = $2, weight = $3, max_score = $4, updated_at = $5
		WHERE id = $1
		RETURNING ` + componentColumns
	var row componentRow
	if err := sqlx.GetContext(ctx, r.ext, &row, q, c.ID, c.Name, c.Weight, c.MaxScore, c.UpdatedAt); err != nil {
		if err == sql.ErrNoRows {
			return grading.Component{}, grading.ErrNotFound
		}
		return grading.Component{}, errors.Wrap(err, "updating component")
	}
	return row.toComponent(), nil
}

func (r *gradingRepository) DeleteComponent(ctx context.Context, id string) error {
	if !isUUID(id) {
		return grading.ErrNotFound
	}
	// entries are deleted on cascade
	res, err := r.ext.ExecContext(ctx, "DELETE FROM grade_components WHERE id = $1", id)
	if err != nil {
		return errors.Wrap(err, "deleting component")
	}
	if n, err := rowsAffected(res); err != nil {
		return err
	} else if n == 0 {
		return grading.ErrNotFound
	}
	return nil
}

func (r *gradingRepository) UpsertEntry(ctx context.Context, e grading.Entry) (grading.Entry, error) {
	q := `INSERT INTO grade_entries (component_id, student_id, score, recorded_by, updated_at)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (component_id, student_id) DO UPDATE SET
			score = EXCLUDED.score,
			recorded_by = EXCLUDED.recorded_by,
			updated_at = EXCLUDED.updated_at
		RETURNING component_id, student_id, score, recorded_by, updated_at`
	var row entryRow
	if err := sqlx.GetContext(ctx, r.ext, &row, q, e.ComponentID, e.StudentID, e.Score, nullString(e.RecordedBy), e.UpdatedAt); err != nil {
		return grading.Entry{}, errors.Wrap(err, "upserting entry")
	}
	return row.toEntry(), nil
}

func (r *gradingRepository) QueryEntries(ctx context.Context, filter grading.EntryFilter) ([]grading.Entry, error) {
	var w where
	for _, id := range []struct{ col, val string }{
		{"gc.course_id", filter.CourseID},
		{"ge.component_id", filter.ComponentID},
		{"ge.student_id", filter.StudentID},
	} {
		if id.val == "" {
			continue
		}
		if !isUUID(id.val) {
			return []grading.Entry{}, nil
		}
		w.add(id.col+" = ?", id.val)
	}

	var rows []entryRow
	q := `SELECT ge.component_id, ge.student_id, ge.score, ge.recorded_by, ge.updated_at
		FROM grade_entries ge JOIN grade_components gc ON gc.id = ge.component_id` + w.String() +
		" ORDER BY ge.student_id, gc.created_at"
	if err := sqlx.SelectContext(ctx, r.ext, &rows, r.ext.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting entries")
	}
	entries := make([]grading.Entry, 0, len(rows))
	for _, row := range rows {
		entries = append(entries, row.toEntry())
	}
	return entries, nil
}
