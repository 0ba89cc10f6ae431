package inmemdb

import (
	"context"
	"sort"
	"time"

	"github.com/trezcool/darasa/core/breakglass"
)

type breakGlassRepository struct {
	db *DB
}

var _ breakglass.Repository = (*breakGlassRepository)(nil)

func NewBreakGlassRepository(db *DB) breakglass.Repository {
	return &breakGlassRepository{db: db}
}

func (repo *breakGlassRepository) LockUser(_ context.Context, userID string, fn func(repo breakglass.Repository) error) error {
	return repo.db.locks.with("breakglass:user:"+userID, func() error { return fn(repo) })
}

func (repo *breakGlassRepository) CreateGrant(_ context.Context, g breakglass.Grant) (breakglass.Grant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	g.ID = newID()
	repo.db.grants[g.ID] = g
	return g, nil
}

func (repo *breakGlassRepository) GetGrant(_ context.Context, id string) (breakglass.Grant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	if g, ok := repo.db.grants[id]; ok {
		return g, nil
	}
	return breakglass.Grant{}, breakglass.ErrNotFound
}

func (repo *breakGlassRepository) ActiveGrant(_ context.Context, userID string, now time.Time) (breakglass.Grant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	var (
		active breakglass.Grant
		found  bool
	)
	for _, g := range repo.db.grants {
		if g.UserID == userID && g.IsActive(now) && (!found || g.ActivatedAt.After(active.ActivatedAt)) {
			active, found = g, true
		}
	}
	if !found {
		return breakglass.Grant{}, breakglass.ErrNotFound
	}
	return active, nil
}

func (repo *breakGlassRepository) QueryGrants(_ context.Context, filter breakglass.QueryFilter, now time.Time) ([]breakglass.Grant, error) {
	repo.db.mutex.RLock()
	defer repo.db.mutex.RUnlock()

	grants := make([]breakglass.Grant, 0)
	for _, g := range repo.db.grants {
		if filter.UserID != "" && g.UserID != filter.UserID {
			continue
		}
		if filter.ActiveOnly && !g.IsActive(now) {
			continue
		}
		grants = append(grants, g)
	}
	sort.Slice(grants, func(i, j int) bool { return grants[i].ActivatedAt.After(grants[j].ActivatedAt) })
	return grants, nil
}

func (repo *breakGlassRepository) UpdateGrant(_ context.Context, g breakglass.Grant) (breakglass.Grant, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	if _, ok := repo.db.grants[g.ID]; !ok {
		return breakglass.Grant{}, breakglass.ErrNotFound
	}
	repo.db.grants[g.ID] = g
	return g, nil
}

func (repo *breakGlassRepository) ExpireGrants(_ context.Context, now time.Time) (int, error) {
	repo.db.mutex.Lock()
	defer repo.db.mutex.Unlock()

	var n int
	for id, g := range repo.db.grants {
		if g.DeactivatedAt != nil || g.ExpiresAt.After(now) {
			continue
		}
		expiredAt := g.ExpiresAt
		g.DeactivatedAt = &expiredAt
		g.DeactivationReason = breakglass.ReasonExpired
		repo.db.grants[id] = g
		n++
	}
	return n, nil
}
