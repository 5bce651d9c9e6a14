package store

import (
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
	postgresdriver "gorm.io/driver/postgres"
	"gorm.io/gorm"
)

// OpenPostgres opens a GORM connection to dsn and wraps it as a GORMStore
// for the PostgreSQL dialect, enabling the SELECT ... FOR UPDATE SKIP
// LOCKED poll strategy.
func OpenPostgres(dsn string, opts ...Option) (*GORMStore, error) {
	db, err := gorm.Open(postgresdriver.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return New(db, DialectPostgres, opts...), nil
}

// postgresUniqueViolationCode is PostgreSQL's unique_violation SQLSTATE.
const postgresUniqueViolationCode = "23505"

func isPostgresUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == postgresUniqueViolationCode
}

func isDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}
	return isMySQLDuplicateKeyErr(err) || isPostgresUniqueViolation(err)
}
