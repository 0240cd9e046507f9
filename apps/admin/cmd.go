package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"syscall"

	"golang.org/x/term"

	"github.com/trezcool/afya/core"
	"github.com/trezcool/afya/core/child"
	"github.com/trezcool/afya/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp       = errors.New("help provided")
	errNoDatabase = errors.New("migrations need the postgres storage")
)

type commandLine struct {
	db       *sql.DB // nil for the memory storage
	usrSvc   user.Service
	childSvc child.Service
	mailSvc  core.EmailService
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS...]                      - run a goose migration command (up, down, status, redo...)")
	fmt.Println("  adduser -username USERNAME -email EMAIL [-admin] - create a user or reset its password")
	fmt.Println("  remind [-date YYYY-MM-DD]                      - email parents about upcoming and overdue vaccinations")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	addUserCmd := flag.NewFlagSet("adduser", flag.ContinueOnError)
	addUserUname := addUserCmd.String("username", "", "The user's username. The password will be prompted next.")
	addUserEmail := addUserCmd.String("email", "", "The user's email.")
	addUserAdmin := addUserCmd.Bool("admin", false, "Give the user every role.")

	remindCmd := flag.NewFlagSet("remind", flag.ContinueOnError)
	remindDate := remindCmd.String("date", "", "The day to evaluate the vaccinations at. Defaults to today.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			fmt.Println("Usage: migrate COMMAND [ARGS...]")
			return errHelp
		}
		return cli.migrate(args[2:])

	case "adduser":
		if err := addUserCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *addUserUname == "" && *addUserEmail == "" {
			addUserCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter password:")
		pwd, err := readPasswordFunc(int(syscall.Stdin))
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pwd) == 0 {
			addUserCmd.Usage()
			return errHelp
		}
		return cli.addUser(*addUserUname, *addUserEmail, string(pwd), *addUserAdmin)

	case "remind":
		if err := remindCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.remind(*remindDate)

	default:
		cli.printUsage()
		return errHelp
	}
}
