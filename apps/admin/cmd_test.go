package main

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"testing"

	"github.com/go-playground/locales/en"
	ut "github.com/go-playground/universal-translator"
	"github.com/go-playground/validator/v10"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/theme"
	"github.com/laurinbuild/kantine/core/user"
	emailsvc "github.com/laurinbuild/kantine/services/email"
	dummydb "github.com/laurinbuild/kantine/storage/database/dummy"
)

var usrSvc *user.Service

func setup(t *testing.T) *commandLine {
	t.Helper()

	translator, _ := ut.New(en.New()).GetTranslator("en")
	core.InitValidators(validator.New(), translator)

	conf := &core.Config{AppName: "Kantine", TestMode: true}

	db, err := dummydb.Open()
	if err != nil {
		t.Fatalf("dummydb.Open() failed: %v", err)
	}
	usrSvc = user.NewService(dummydb.NewUserRepository(db), dummydb.NewPINArchive(db), emailsvc.NewConsoleServiceMock(conf), conf)

	return &commandLine{
		conf:     conf,
		usrSvc:   usrSvc,
		themeSvc: theme.NewService(dummydb.NewSettingsRepository(db), nil),
	}
}

type cliTest struct {
	name       string
	args       []string // without program name
	wantErr    error
	wantErrStr string
	extra      interface{}
}

func Test_commandLine_migrate(t *testing.T) {
	cli := setup(t)

	gooseRunFunc = func(command string, db *sql.DB, dir string, args ...string) error {
		switch command {
		case "up", "up-by-one", "down", "fix", "redo", "reset", "status", "version": // pass
		case "up-to", "down-to":
			if len(args) == 0 {
				return fmt.Errorf("%s must be of form: goose [OPTIONS] DRIVER DBSTRING %s VERSION", command, command)
			}
			if _, err := strconv.ParseInt(args[0], 10, 64); err != nil {
				return fmt.Errorf("version must be a number (got '%s')", args[0])
			}
		case "create":
			if len(args) == 0 {
				return fmt.Errorf("create must be of form: goose [OPTIONS] DRIVER DBSTRING create NAME [go|sql]")
			}
		default:
			return fmt.Errorf("%q: no such command", command)
		}
		return nil
	}

	tests := []cliTest{
		{name: "no subcommand", args: []string{"migrate"}, wantErr: errHelp},
		{name: "unknown subcommand", args: []string{"migrate", "lol"}, wantErrStr: "\"lol\": no such command"},
		{name: "up-to: no args", args: []string{"migrate", "up-to"}, wantErrStr: "up-to must be of form: goose [OPTIONS] DRIVER DBSTRING up-to VERSION"},
		{name: "up-to: non-int arg", args: []string{"migrate", "up-to", "lol"}, wantErrStr: "version must be a number (got 'lol')"},
		{name: "down-to: no args", args: []string{"migrate", "down-to"}, wantErrStr: "down-to must be of form: goose [OPTIONS] DRIVER DBSTRING down-to VERSION"},
		{name: "up", args: []string{"migrate", "up"}},
		{name: "up-by-one", args: []string{"migrate", "up-by-one"}},
		{name: "up-to", args: []string{"migrate", "up-to", "2"}},
		{name: "down", args: []string{"migrate", "down"}},
		{name: "redo", args: []string{"migrate", "redo"}},
		{name: "reset", args: []string{"migrate", "reset"}},
		{name: "status", args: []string{"migrate", "status"}},
		{name: "version", args: []string{"migrate", "version"}},
		{name: "create", args: []string{"migrate", "create", "beverage", "sql"}},
		{name: "fix", args: []string{"migrate", "fix"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != nil {
				if tt.wantErr != nil {
					if err != tt.wantErr {
						t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
					}
				} else if tt.wantErrStr != "" {
					if err.Error() != tt.wantErrStr {
						t.Errorf("cli.run() error.Error() = %s, wantErrStr %s", err.Error(), tt.wantErrStr)
					}
				} else {
					t.Errorf("cli.run() unexpected error = %v", err)
				}
			}
		})
	}
}

func Test_commandLine_resetPIN(t *testing.T) {
	cli := setup(t)

	usr, err := usrSvc.Create(context.Background(), user.NewUser{FirstName: "Mia", LastName: "Keller", RoleID: 1, PIN: "1234"})
	if err != nil {
		t.Fatalf("creating user failed: %v", err)
	}
	userArg := strconv.Itoa(usr.ID)

	type extra struct {
		pin string
	}
	tests := []cliTest{
		{name: "no command", wantErr: errHelp},
		{name: "unknown command", args: []string{"lol"}, wantErr: errHelp},
		{name: "no args", args: []string{"resetpin"}, wantErr: errHelp},
		{name: "user but no PIN", args: []string{"resetpin", "-user", userArg}, wantErr: errHelp},
		{name: "user not found", args: []string{"resetpin", "-user", "999"}, extra: extra{pin: "4711"}, wantErr: user.ErrNotFound},
		{name: "reset", args: []string{"resetpin", "-user", userArg}, extra: extra{pin: "4711"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		readPasswordFunc = func(fd int) ([]byte, error) {
			if extra, ok := tt.extra.(extra); ok {
				return []byte(extra.pin), nil
			}
			return nil, nil
		}

		t.Run(tt.name, func(t *testing.T) {
			err := cli.run(args)
			if err == nil {
				if _, err = usrSvc.VerifyPIN(context.Background(), user.PINAttempt{UserID: usr.ID, PIN: "4711"}); err != nil {
					t.Errorf("new PIN does not verify: %v", err)
				}
			} else if err != tt.wantErr {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func Test_commandLine_setTheme(t *testing.T) {
	cli := setup(t)

	tests := []cliTest{
		{name: "no name", args: []string{"settheme"}, wantErr: errHelp},
		{name: "unknown theme", args: []string{"settheme", "-name", "neon"}, wantErr: theme.ErrUnknownTheme},
		{name: "switch", args: []string{"settheme", "-name", "winter"}},
	}
	for _, tt := range tests {
		args := append([]string{"admin"}, tt.args...)

		t.Run(tt.name, func(t *testing.T) {
			if err := cli.run(args); err != tt.wantErr && tt.wantErr != nil {
				t.Errorf("cli.run() error = %v, wantErr %v", err, tt.wantErr)
			} else if tt.wantErr == nil && err != nil {
				t.Errorf("cli.run() unexpected error = %v", err)
			}
		})
	}
}
