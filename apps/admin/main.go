package main

import (
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/laurinbuild/kantine/core"
	"github.com/laurinbuild/kantine/core/theme"
	"github.com/laurinbuild/kantine/core/user"
	emailsvc "github.com/laurinbuild/kantine/services/email"
	"github.com/laurinbuild/kantine/storage/database"
	sqlxrepos "github.com/laurinbuild/kantine/storage/database/sqlx"
)

var logger *log.Logger

func main() {
	defer os.Exit(0)

	logger = log.New(os.Stdout, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile)

	conf := core.NewConfig()

	// set up DB
	db, err := database.Open(conf)
	errAndDie(err)
	defer db.Close()
	errAndDie(db.Ping())
	dbx := sqlx.NewDb(db, "postgres")

	orderRepo := sqlxrepos.NewOrderRepository(dbx)

	// start CLI
	cli := commandLine{
		db:        db,
		conf:      conf,
		usrSvc:    user.NewService(sqlxrepos.NewUserRepository(dbx), sqlxrepos.NewPINArchiveRepository(dbx), emailsvc.NewConsoleService(conf), conf),
		themeSvc:  theme.NewService(sqlxrepos.NewSettingsRepository(dbx), nil),
		orderRepo: orderRepo,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Printf("\nerror: %s\n", err)
		}
		os.Exit(1)
	}
}

func errAndDie(err error) {
	if err != nil {
		logger.Fatal(err)
	}
}
