package mysql

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"net"

	mysqldriver "github.com/go-sql-driver/mysql"

	"docengine/internal/core/apperror"
	"docengine/internal/core/engine"
)

// classify maps driver errors onto engine error kinds.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var ee *engine.Error
	if errors.As(err, &ee) || apperror.IsAppError(err) {
		return err
	}
	return engine.Wrap(kindOf(err), err)
}

func kindOf(err error) engine.ErrorKind {
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return engine.KindUnavailable
	}
	if errors.Is(err, sql.ErrNoRows) {
		return engine.KindNotFound
	}
	if errors.Is(err, driver.ErrBadConn) || errors.Is(err, mysqldriver.ErrInvalidConn) || errors.Is(err, sql.ErrConnDone) {
		return engine.KindUnavailable
	}

	var myErr *mysqldriver.MySQLError
	if errors.As(err, &myErr) {
		return kindOfNumber(myErr.Number)
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return engine.KindUnavailable
	}
	return engine.KindUnknown
}

func kindOfNumber(n uint16) engine.ErrorKind {
	switch n {
	case 1062: // ER_DUP_ENTRY
		return engine.KindConflict
	case 1146, 1305, 1049: // no such table, procedure, database
		return engine.KindNotFound
	case 1048, 1264, 1366, 1451, 1452, 1644: // null, out of range, bad value, foreign keys, SIGNAL
		return engine.KindValidation
	case 1040, 1205, 1213, 2002, 2003, 2006, 2013: // connections, lock wait, deadlock, gone away
		return engine.KindUnavailable
	}
	return engine.KindUnknown
}
