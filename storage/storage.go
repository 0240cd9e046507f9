// Package storage opens the repositories of the configured storage engine.
package storage

import (
	"github.com/jmoiron/sqlx"
	"github.com/pkg/errors"

	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/user"
	"github.com/trezcool/afya/storage/database"
	inmemdb "github.com/trezcool/afya/storage/database/inmem"
	sqlxrepos "github.com/trezcool/afya/storage/database/sqlx"
)

var errUnknownStorage = errors.New("unknown storage engine")

type Repositories struct {
	Users    user.Repository
	Children child.Repository

	// DB is nil for the memory storage.
	DB *sqlx.DB
}

func (r *Repositories) Close() error {
	if r.DB == nil {
		return nil
	}
	return r.DB.Close()
}

// Open returns the repositories of conf.Storage.
// For postgres, the role and database are created when missing and pending migrations are applied if migrate is set.
func Open(conf *core.Config, migrate bool) (*Repositories, error) {
	switch conf.Storage {
	case core.StorageMemory:
		db := inmemdb.Open()
		return &Repositories{
			Users:    inmemdb.NewUserRepository(db),
			Children: inmemdb.NewChildRepository(db),
		}, nil

	case core.StoragePostgres:
		if err := database.CreateIfNotExist(conf); err != nil {
			return nil, err
		}
		db, err := database.Open(conf)
		if err != nil {
			return nil, err
		}
		if migrate {
			if err = database.Migrate(db.DB); err != nil {
				_ = db.Close()
				return nil, err
			}
		}
		return &Repositories{
			Users:    sqlxrepos.NewUserRepository(db),
			Children: sqlxrepos.NewChildRepository(db),
			DB:       db,
		}, nil
	}
	return nil, errors.Wrap(errUnknownStorage, conf.Storage)
}
