// Package inmemdb implements the repositories in process memory.
// Every read returns copies, so callers never share state with the tables.
package inmemdb

import (
	"sync"

	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/user"
)

type (
	DB struct {
		user  *userTable
		child *childTable
	}

	userTable struct {
		table map[string]*user.User
		mutex sync.RWMutex
	}

	childTable struct {
		table map[string]*child.Child
		mutex sync.RWMutex
	}
)

func Open() *DB {
	return &DB{
		user:  &userTable{table: make(map[string]*user.User)},
		child: &childTable{table: make(map[string]*child.Child)},
	}
}

// Reset drops every row. Meant for tests.
func (db *DB) Reset() {
	db.user.mutex.Lock()
	db.user.table = make(map[string]*user.User)
	db.user.mutex.Unlock()

	db.child.mutex.Lock()
	db.child.table = make(map[string]*child.Child)
	db.child.mutex.Unlock()
}
