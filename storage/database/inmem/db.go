// Package inmemdb implements the core repositories in memory. It backs the tests and the
// `memory` database engine.
package inmemdb

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/trezcool/darasa/core/attendance"
	"github.com/trezcool/darasa/core/breakglass"
	"github.com/trezcool/darasa/core/course"
	"github.com/trezcool/darasa/core/grading"
	"github.com/trezcool/darasa/core/user"
)

type DB struct {
	mutex sync.RWMutex

	users       map[string]user.User
	courses     map[string]course.Course
	enrollments map[string]map[string]time.Time // {courseID: {studentID: enrolledAt}}
	attendance  map[string]attendance.Record
	components  map[string]grading.Component
	entries     map[string]map[string]grading.Entry // {componentID: {studentID: entry}}
	grants      map[string]breakglass.Grant

	locks keyedMutex
}

func Open() *DB {
	return &DB{
		users:       make(map[string]user.User),
		courses:     make(map[string]course.Course),
		enrollments: make(map[string]map[string]time.Time),
		attendance:  make(map[string]attendance.Record),
		components:  make(map[string]grading.Component),
		entries:     make(map[string]map[string]grading.Entry),
		grants:      make(map[string]breakglass.Grant),
		locks:       keyedMutex{m: make(map[string]*sync.Mutex)},
	}
}

// keyedMutex stands for the advisory locks of the SQL repositories.
type keyedMutex struct {
	mu sync.Mutex
	m  map[string]*sync.Mutex
}

func (km *keyedMutex) with(key string, fn func() error) error {
	km.mu.Lock()
	l, ok := km.m[key]
	if !ok {
		l = new(sync.Mutex)
		km.m[key] = l
	}
	km.mu.Unlock()

	l.Lock()
	defer l.Unlock()
	return fn()
}

func newID() string {
	return uuid.New().String()
}

func idSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
