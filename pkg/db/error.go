package db

import (
	"errors"
	"strings"

	"gorm.io/gorm"
)

func IsDuplicateKeyErr(err error) bool {
	if err == nil {
		return false
	}

	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}

	// PostgreSQL (error code 23505)
	if strings.Contains(err.Error(), "duplicate key value violates unique constraint") {
		return true
	}

	// MySQL (error code 1062)
	if strings.Contains(err.Error(), "Error 1062") {
		return true
	}

	// SQLite (error code 2067)
	if strings.Contains(err.Error(), "UNIQUE constraint failed") {
		return true
	}

	return false
}

// SupportsRowLocks reports whether the dialect honors SELECT ... FOR UPDATE.
// sqlite serializes writers at the file level, so the clause is omitted there.
func SupportsRowLocks(conn *gorm.DB) bool {
	if conn == nil {
		return false
	}
	return conn.Dialector.Name() != "sqlite"
}

// ForUpdate appends a FOR UPDATE clause when the dialect supports it.
func ForUpdate(conn *gorm.DB, query string) string {
	if SupportsRowLocks(conn) {
		return query + " FOR UPDATE"
	}
	return query
}
