package postgres_test

import "database/sql"

var sqlErrNoRows = sql.ErrNoRows
