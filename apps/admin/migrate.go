package main

import (
	"context"

	"github.com/pkg/errors"

	pgstore "github.com/trezcool/registrar/storage/docstore/postgres"
)

var migrateFunc = pgstore.Migrate // mockable

var errNoDatabase = errors.New("migrations need the postgres store engine (STORE_ENGINE=postgres)")

func (cli *commandLine) migrate(ctx context.Context, args []string) error {
	if cli.db == nil {
		return errNoDatabase
	}
	return migrateFunc(ctx, cli.db, args[0], args[1:]...)
}
