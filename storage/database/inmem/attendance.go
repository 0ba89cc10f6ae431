package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/darasa/core/attendance"
)

type attendanceRepository struct {
	db *DB
}

var _ attendance.Repository = (*attendanceRepository)(nil)

func NewAttendanceRepository(db *DB) attendance.Repository {
	return &attendanceRepository{db: db}
}

func (repo *attendanceRepository) Atomic(_ context.Context, fn func(repo attendance.Repository) error) error {
	return repo.db.locks.with("attendance", func() error { return fn(repo) })
}

func (repo *attendanceRepository) UpsertRecord(_ context.Context, r attendance.Record) (attendance.Record, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	for id, existing := range repo.db.attendance {
		if existing.CourseID == r.CourseID && existing.StudentID == r.StudentID && existing.Date == r.Date {
			r.ID = id
			r.CreatedAt = existing.CreatedAt
			repo.db.attendance[id] = r
			return r, nil
		}
	}
	r.ID = newID()
	repo.db.attendance[r.ID] = r
	return r, nil
}

func (repo *attendanceRepository) QueryRecords(_ context.Context, filter attendance.QueryFilter) ([]attendance.Record, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	records := make([]attendance.Record, 0)
	for _, r := range repo.db.attendance {
		if filter.Match(r) {
			records = append(records, r)
		}
	}
	sort.Slice(records, func(i, j int) bool {
		if records[i].Date != records[j].Date {
			return records[i].Date < records[j].Date
		}
		return records[i].StudentID < records[j].StudentID
	})
	return records, nil
}

func (repo *attendanceRepository) DeleteRecordsByID(_ context.Context, ids ...string) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for _, id := range ids {
		if _, ok := repo.db.attendance[id]; ok {
			delete(repo.db.attendance, id)
			n++
		}
	}
	return n, nil
}
