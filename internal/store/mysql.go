package store

import (
	"errors"
	"time"

	mysqlconn "github.com/go-sql-driver/mysql"
	mysqldriver "gorm.io/driver/mysql"
	"gorm.io/gorm"
)

// OpenMySQL opens a GORM connection to dsn and wraps it as a GORMStore for
// the MySQL dialect.
func OpenMySQL(dsn string, opts ...Option) (*GORMStore, error) {
	db, err := gorm.Open(mysqldriver.Open(dsn), &gorm.Config{})
	if err != nil {
		return nil, err
	}
	return New(db, DialectMySQL, opts...), nil
}

// Ping retries a ping against the store's underlying connection, for use
// during startup while a database container is still coming up.
func Ping(s *GORMStore, attempts int, interval time.Duration) error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	var lastErr error
	for i := 0; i < attempts; i++ {
		if lastErr = sqlDB.Ping(); lastErr == nil {
			return nil
		}
		time.Sleep(interval)
	}
	return lastErr
}

// mysqlDuplicateKeyErrorNumber is MySQL's ER_DUP_ENTRY code.
const mysqlDuplicateKeyErrorNumber = 1062

func isMySQLDuplicateKeyErr(err error) bool {
	var mysqlErr *mysqlconn.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlDuplicateKeyErrorNumber
}

// mysqlSyntaxErrorNumber is MySQL's ER_PARSE_ERROR code, what a server older
// than 8.0 returns for a SKIP LOCKED clause it doesn't recognize.
const mysqlSyntaxErrorNumber = 1064

func isMySQLUnsupportedSkipLockedErr(err error) bool {
	var mysqlErr *mysqlconn.MySQLError
	return errors.As(err, &mysqlErr) && mysqlErr.Number == mysqlSyntaxErrorNumber
}
