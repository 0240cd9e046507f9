package main

import (
	"context"
	"fmt"

	"github.com/trezcool/afya/core/user"
)

// addUser updates or creates a user.User
func (cli *commandLine) addUser(uname, email, pwd string, isAdmin bool) error {
	roles := []string{user.RoleParent}
	if isAdmin {
		roles = user.AllRoles
	}
	usr, err := cli.usrSvc.AddOrUpdate(context.Background(), uname, email, pwd, roles)
	if err != nil {
		return err
	}
	fmt.Printf("user %q saved\n", usr.Username)
	return nil
}
