// Package repository is the MySQL implementation of the admission
// store. Each table family has its own repo type; Store bundles them
// behind the interfaces the engine consumes.
package repository

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
)

const (
	errDuplicateEntry = 1062 // ER_DUP_ENTRY
	errNoReferenced   = 1452 // ER_NO_REFERENCED_ROW_2
)

func mysqlErrNumber(err error) uint16 {
	var me *mysql.MySQLError
	if errors.As(err, &me) {
		return me.Number
	}
	return 0
}

// isDuplicate reports a unique-key violation.
func isDuplicate(err error) bool { return mysqlErrNumber(err) == errDuplicateEntry }

// isMissingParent reports a foreign-key violation on insert.
func isMissingParent(err error) bool { return mysqlErrNumber(err) == errNoReferenced }

// inClause returns "(?,?,...)" with n placeholders.
func inClause(n int) string {
	if n <= 0 {
		return "(NULL)"
	}
	return "(" + strings.TrimSuffix(strings.Repeat("?,", n), ",") + ")"
}

func uint64Args(ids []uint64) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
