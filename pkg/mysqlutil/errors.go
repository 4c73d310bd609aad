package mysqlutil

import (
	"errors"

	"github.com/go-sql-driver/mysql"
)

// MySQL server error numbers.
// See: https://dev.mysql.com/doc/mysql-errors/8.0/en/server-error-reference.html
const (
	CodeDuplicateEntry = 1062
	CodeNoSuchTable    = 1146
)

// IsDuplicateEntry checks if the error is a unique key violation (1062).
func IsDuplicateEntry(err error) bool {
	return hasErrorNumber(err, CodeDuplicateEntry)
}

// IsNoSuchTable checks if the error means the target table does not exist (1146).
func IsNoSuchTable(err error) bool {
	return hasErrorNumber(err, CodeNoSuchTable)
}

func hasErrorNumber(err error, number uint16) bool {
	if err == nil {
		return false
	}
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) {
		return mysqlErr.Number == number
	}
	return false
}
