package inmemdb

import (
	"context"
	"sort"

	"github.com/trezcool/darasa/core/grading"
)

type gradingRepository struct {
	db *DB
}

var _ grading.Repository = (*gradingRepository)(nil)

func NewGradingRepository(db *DB) grading.Repository {
	return &gradingRepository{db: db}
}

func (repo *gradingRepository) LockCourse(_ context.Context, courseID string, fn func(repo grading.Repository) error) error {
	return repo.db.locks.with("grading:course:"+courseID, func() error { return fn(repo) })
}

func (repo *gradingRepository) CreateComponent(_ context.Context, c grading.Component) (grading.Component, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	c.ID = newID()
	repo.db.components[c.ID] = c
	return c, nil
}

func (repo *gradingRepository) GetComponent(_ context.Context, id string) (grading.Component, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if c, ok := repo.db.components[id]; ok {
		return c, nil
	}
	return grading.Component{}, grading.ErrNotFound
}

func (repo *gradingRepository) QueryComponents(_ context.Context, courseID string) ([]grading.Component, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	comps := make([]grading.Component, 0)
	for _, c := range repo.db.components {
		if c.CourseID == courseID {
			comps = append(comps, c)
		}
	}
	sort.Slice(comps, func(i, j int) bool {
		if !comps[i].CreatedAt.Equal(comps[j].CreatedAt) {
			return comps[i].CreatedAt.Before(comps[j].CreatedAt)
		}
		return comps[i].Name < comps[j].Name
	})
	return comps, nil
}

func (repo *gradingRepository) UpdateComponent(_ context.Context, c grading.Component) (grading.Component, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.components[c.ID]; !ok {
		return grading.Component{}, grading.ErrNotFound
	}
	repo.db.components[c.ID] = c
	return c, nil
}

func (repo *gradingRepository) DeleteComponent(_ context.Context, id string) error {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.components[id]; !ok {
		return grading.ErrNotFound
	}
	delete(repo.db.components, id)
	delete(repo.db.entries, id)
	return nil
}

func (repo *gradingRepository) UpsertEntry(_ context.Context, e grading.Entry) (grading.Entry, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.components[e.ComponentID]; !ok {
		return grading.Entry{}, grading.ErrNotFound
	}
	entries, ok := repo.db.entries[e.ComponentID]
	if !ok {
		entries = make(map[string]grading.Entry)
		repo.db.entries[e.ComponentID] = entries
	}
	entries[e.StudentID] = e
	return e, nil
}

func (repo *gradingRepository) QueryEntries(_ context.Context, filter grading.EntryFilter) ([]grading.Entry, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	res := make([]grading.Entry, 0)
	for compID, entries := range repo.db.entries {
		comp := repo.db.components[compID]
		if filter.CourseID != "" && comp.CourseID != filter.CourseID {
			continue
		}
		if filter.ComponentID != "" && compID != filter.ComponentID {
			continue
		}
		for _, e := range entries {
			if filter.StudentID != "" && e.StudentID != filter.StudentID {
				continue
			}
			res = append(res, e)
		}
	}
	sort.Slice(res, func(i, j int) bool {
		if res[i].StudentID != res[j].StudentID {
			return res[i].StudentID < res[j].StudentID
		}
		return res[i].ComponentID < res[j].ComponentID
	})
	return res, nil
}
