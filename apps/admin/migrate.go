package main

import (
	"github.com/trezcool/afya/storage/database"
)

var runMigrationFunc = database.RunMigration // mockable

func (cli *commandLine) migrate(args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	return runMigrationFunc(args[0], cli.db, args[1:]...)
}
