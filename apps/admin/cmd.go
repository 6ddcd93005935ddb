package main

import (
	"database/sql"
	"errors"
	"flag"
	"fmt"
	"strconv"
	"syscall"
	"time"

	"golang.org/x/term"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/order"
	"github.com/laurinbuild/kantine/core/theme"
	"github.com/laurinbuild/kantine/core/user"
)

var (
	readPasswordFunc = term.ReadPassword // mockable

	errHelp = errors.New("help provided")
)

type commandLine struct {
	db        *sql.DB
	conf      *core.Config
	usrSvc    *user.Service
	themeSvc  *theme.Service
	orderRepo order.Repository
}

func (cli *commandLine) printUsage() {
	fmt.Println("Usage:")
	fmt.Println("  migrate COMMAND [ARGS]       - run database migrations (up, down, status, ...)")
	fmt.Println("  resetpin -user ID            - reset a user's PIN; the new PIN is prompted next")
	fmt.Println("  admintoken                   - mint a new admin access token")
	fmt.Println("  settheme -name THEME         - switch the global kiosk theme")
	fmt.Println("  backup [-year Y -month M]    - export consumption CSVs (defaults to the previous month)")
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	resetPINCmd := flag.NewFlagSet("resetpin", flag.ExitOnError)
	resetPINUser := resetPINCmd.Int("user", 0, "The user's ID. The new PIN will be prompted next.")

	setThemeCmd := flag.NewFlagSet("settheme", flag.ExitOnError)
	setThemeName := setThemeCmd.String("name", "", "The theme name: "+fmt.Sprint(theme.Names))

	backupCmd := flag.NewFlagSet("backup", flag.ExitOnError)
	backupYear := backupCmd.Int("year", 0, "The report year.")
	backupMonth := backupCmd.Int("month", 0, "The report month (1-12).")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "resetpin":
		if err := resetPINCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *resetPINUser == 0 {
			resetPINCmd.Usage()
			return errHelp
		}
		fmt.Print("Enter PIN:")
		pin, err := readPasswordFunc(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return err
		}
		if len(pin) == 0 {
			resetPINCmd.Usage()
			return errHelp
		}
		return cli.resetPIN(*resetPINUser, string(pin))
	case "admintoken":
		return cli.adminToken()
	case "settheme":
		if err := setThemeCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *setThemeName == "" {
			setThemeCmd.Usage()
			return errHelp
		}
		return cli.setTheme(*setThemeName)
	case "backup":
		if err := backupCmd.Parse(args[2:]); err != nil {
			return err
		}
		year, month := *backupYear, *backupMonth
		if year == 0 || month == 0 {
			prev := time.Now().UTC().AddDate(0, -1, 0)
			year, month = prev.Year(), int(prev.Month())
		}
		if month < 1 || month > 12 {
			return errors.New("month must be 1-12 (got '" + strconv.Itoa(month) + "')")
		}
		return cli.backup(year, time.Month(month))
	default:
		cli.printUsage()
		return errHelp
	}
}
