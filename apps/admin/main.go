package main

import (
	"log"
	"os"

	"github.com/trezcool/trainingops/core"
	"github.com/trezcool/trainingops/core/query"
	logsvc "github.com/trezcool/trainingops/services/logger"
	"github.com/trezcool/trainingops/storage/database"
	sqlxrepos "github.com/trezcool/trainingops/storage/database/sqlx"
)

func main() {
	conf := core.NewConfig()

	logger := logsvc.NewRollbarLogger(
		log.New(os.Stderr, "ADMIN : ", log.LstdFlags|log.Lmicroseconds|log.Lshortfile),
		conf,
	)
	defer logger.Close()

	if err := conf.Validate(); err != nil {
		logger.Fatal("invalid configuration", err)
	}

	cli := commandLine{
		conf:   conf,
		logger: logger,
		open: func(admin bool) (query.Backend, func() error, error) {
			db, err := database.Open(conf, admin)
			if err != nil {
				return nil, nil, err
			}
			return sqlxrepos.NewBackend(db, logger), db.Close, nil
		},
		in:      os.Stdin,
		stdinFd: int(os.Stdin.Fd()),
		out:     os.Stdout,
		errOut:  os.Stderr,
	}
	if err := cli.run(os.Args); err != nil {
		if err != errHelp {
			logger.Error("command failed", err)
		}
		logger.Close()
		os.Exit(1)
	}
}
