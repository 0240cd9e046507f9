package inmemdb

import (
	"context"
	"strings"

	"github.com/google/uuid"

	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/user"
)

var userOrderingFields = map[string]comparator[user.User]{
	"name":       func(a, b user.User) int { return compareStrings(a.Name, b.Name) },
	"username":   func(a, b user.User) int { return compareStrings(a.Username, b.Username) },
	"email":      func(a, b user.User) int { return compareStrings(a.Email, b.Email) },
	"is_active":  func(a, b user.User) int { return compareBools(a.Active(), b.Active()) },
	"created_at": func(a, b user.User) int { return compareTimes(a.CreatedAt, b.CreatedAt) },
	"last_login": func(a, b user.User) int { return compareTimes(a.LastLogin, b.LastLogin) },
}

type userRepository struct {
	db *DB
}

var _ user.Repository = (*userRepository)(nil) // interface compliance check

func NewUserRepository(db *DB) user.Repository {
	return &userRepository{db: db}
}

func copyUser(usr user.User) user.User {
	if usr.Roles != nil {
		usr.Roles = append([]string(nil), usr.Roles...)
	}
	if usr.PasswordHash != nil {
		usr.PasswordHash = append([]byte(nil), usr.PasswordHash...)
	}
	if usr.IsActive != nil {
		usr.SetActive(*usr.IsActive)
	}
	return usr
}

func (repo *userRepository) CheckUsernameUniqueness(_ context.Context, username, email string, excludedUsers ...user.User) error {
	tbl := repo.db.user
	tbl.mutex.RLock()
	defer tbl.mutex.RUnlock()

	excluded := make(map[string]bool, len(excludedUsers))
	for _, u := range excludedUsers {
		excluded[u.ID] = true
	}
	for _, usr := range tbl.table {
		if excluded[usr.ID] {
			continue
		}
		if username != "" && usr.Username == username {
			return user.ErrUsernameExists
		}
		if email != "" && usr.Email == email {
			return user.ErrEmailExists
		}
	}
	return nil
}

func (repo *userRepository) CreateUser(_ context.Context, usr user.User) (user.User, error) {
	tbl := repo.db.user
	tbl.mutex.Lock()
	defer tbl.mutex.Unlock()

	usr.ID = uuid.New().String()
	usr = copyUser(usr)
	tbl.table[usr.ID] = &usr
	return copyUser(usr), nil
}

func (repo *userRepository) QueryUsers(_ context.Context, filter *user.QueryFilter, ordering []core.DBOrdering) ([]user.User, error) {
	tbl := repo.db.user
	tbl.mutex.RLock()
	defer tbl.mutex.RUnlock()

	users := make([]user.User, 0, len(tbl.table))
	for _, usr := range tbl.table {
		if matchUser(*usr, filter) {
			users = append(users, copyUser(*usr))
		}
	}
	sortRows(users, ordering, userOrderingFields, core.DBOrdering{Field: "created_at"})
	return users, nil
}

func matchUser(usr user.User, filter *user.QueryFilter) bool {
	if filter == nil {
		return true
	}
	if filter.Search != "" {
		search := strings.ToLower(filter.Search)
		if !(strings.Contains(strings.ToLower(usr.Name), search) ||
			strings.Contains(strings.ToLower(usr.Username), search) ||
			strings.Contains(strings.ToLower(usr.Email), search)) {
			return false
		}
	}
	if len(filter.Roles) > 0 {
		var found bool
		for _, role := range filter.Roles {
			if usr.RoleStartsWith(role) {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}
	if filter.IsActive != nil && usr.Active() != *filter.IsActive {
		return false
	}
	if !filter.CreatedFrom.IsZero() && usr.CreatedAt.Before(filter.CreatedFrom) {
		return false
	}
	if !filter.CreatedTo.IsZero() && usr.CreatedAt.After(filter.CreatedTo) {
		return false
	}
	return true
}

func (repo *userRepository) GetUser(_ context.Context, filter user.GetFilter) (user.User, error) {
	tbl := repo.db.user
	tbl.mutex.RLock()
	defer tbl.mutex.RUnlock()

	if filter.ID != "" {
		if usr, ok := tbl.table[filter.ID]; ok {
			return copyUser(*usr), nil
		}
		return user.User{}, user.ErrNotFound
	}
	for _, usr := range tbl.table {
		if filter.Match(*usr) {
			return copyUser(*usr), nil
		}
	}
	return user.User{}, user.ErrNotFound
}

func (repo *userRepository) UpdateUser(_ context.Context, usr user.User) (user.User, error) {
	tbl := repo.db.user
	tbl.mutex.Lock()
	defer tbl.mutex.Unlock()

	if _, ok := tbl.table[usr.ID]; !ok {
		return user.User{}, user.ErrNotFound
	}
	usr = copyUser(usr)
	tbl.table[usr.ID] = &usr
	return copyUser(usr), nil
}

func (repo *userRepository) UpdateOrCreateUser(ctx context.Context, usr user.User) (user.User, error) {
	if usr.ID == "" {
		return repo.CreateUser(ctx, usr)
	}
	return repo.UpdateUser(ctx, usr)
}

// DeleteUsersByID also deletes the children of the deleted users.
func (repo *userRepository) DeleteUsersByID(_ context.Context, ids ...string) (int, error) {
	users, children := repo.db.user, repo.db.child
	users.mutex.Lock()
	defer users.mutex.Unlock()
	children.mutex.Lock()
	defer children.mutex.Unlock()

	var cnt int
	for _, id := range ids {
		if _, ok := users.table[id]; !ok {
			continue
		}
		delete(users.table, id)
		cnt++
		for cid, c := range children.table {
			if c.ParentID == id {
				delete(children.table, cid)
			}
		}
	}
	return cnt, nil
}
