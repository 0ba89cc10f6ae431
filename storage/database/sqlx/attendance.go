package sqlxrepos

import (
	"context"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
	"github.com/pkg/errors"
	"github.com/volatiletech/null/v8"

	"github.com/trezcool/darasa/core/attendance"
)

const attendanceColumns = `id, course_id, student_id, to_char(date, 'YYYY-MM-DD') AS date, status, remarks, recorded_by,
	created_at, updated_at`

type attendanceRow struct {
	ID         string            `db:"id"`
	CourseID   string            `db:"course_id"`
	StudentID  string            `db:"student_id"`
	Date       string            `db:"date"`
	Status     attendance.Status `db:"status"`
	Remarks    string            `db:"remarks"`
	RecordedBy null.String       `db:"recorded_by"`
	CreatedAt  time.Time         `db:"created_at"`
	UpdatedAt  time.Time         `db:"updated_at"`
}

func (row attendanceRow) toRecord() attendance.Record {
	return attendance.Record{
		ID:         row.ID,
		CourseID:   row.CourseID,
		StudentID:  row.StudentID,
		Date:       row.Date,
		Status:     row.Status,
		Remarks:    row.Remarks,
		RecordedBy: row.RecordedBy.String,
		CreatedAt:  row.CreatedAt.UTC(),
		UpdatedAt:  row.UpdatedAt.UTC(),
	}
}

type attendanceRepository struct {
	repo
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *sqlx.DB) attendance.Repository {
	return &attendanceRepository{repo: newRepo(db)}
}

func (r *attendanceRepository) Atomic(ctx context.Context, fn func(repo attendance.Repository) error) error {
	return r.atomic(ctx, "", func(ext sqlx.ExtContext) error {
		return fn(&attendanceRepository{repo: repo{db: r.db, ext: ext}})
	})
}

func (r *attendanceRepository) UpsertRecord(ctx context.Context, rec attendance.Record) (attendance.Record, error) {
	q := `INSERT INTO attendance_records (course_id, student_id, date, status, remarks, recorded_by, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (course_id, student_id, date) DO UPDATE SET
			status = EXCLUDED.status,
			remarks = EXCLUDED.remarks,
			recorded_by = EXCLUDED.recorded_by,
			updated_at = EXCLUDED.updated_at
		RETURNING ` + attendanceColumns
	var row attendanceRow
	err := sqlx.GetContext(
		ctx, r.ext, &row, q,
		rec.CourseID, rec.StudentID, rec.Date, rec.Status, rec.Remarks, nullString(rec.RecordedBy), rec.CreatedAt, rec.UpdatedAt,
	)
	if err != nil {
		return attendance.Record{}, errors.Wrap(err, "upserting attendance record")
	}
	return row.toRecord(), nil
}

func (r *attendanceRepository) QueryRecords(ctx context.Context, filter attendance.QueryFilter) ([]attendance.Record, error) {
	var w where
	for _, id := range []struct{ col, val string }{{"course_id", filter.CourseID}, {"student_id", filter.StudentID}} {
		if id.val == "" {
			continue
		}
		if !isUUID(id.val) {
			return []attendance.Record{}, nil
		}
		w.add(id.col+" = ?", id.val)
	}
	if filter.DateFrom != "" {
		w.add("date >= ?", filter.DateFrom)
	}
	if filter.DateTo != "" {
		w.add("date <= ?", filter.DateTo)
	}
	if filter.Status != "" {
		w.add("status = ?", filter.Status)
	}

	var rows []attendanceRow
	q := "SELECT " + attendanceColumns + " FROM attendance_records" + w.String() + " ORDER BY attendance_records.date, student_id"
	if err := sqlx.SelectContext(ctx, r.ext, &rows, r.ext.Rebind(q), w.args...); err != nil {
		return nil, errors.Wrap(err, "selecting attendance records")
	}
	records := make([]attendance.Record, 0, len(rows))
	for _, row := range rows {
		records = append(records, row.toRecord())
	}
	return records, nil
}

func (r *attendanceRepository) DeleteRecordsByID(ctx context.Context, ids ...string) (int, error) {
	res, err := r.ext.ExecContext(ctx, "DELETE FROM attendance_records WHERE id = ANY($1::uuid[])", pq.Array(uuids(ids)))
	if err != nil {
		return 0, errors.Wrap(err, "deleting attendance records")
	}
	return rowsAffected(res)
}
