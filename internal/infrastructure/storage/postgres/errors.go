package postgres

import (
	"context"
	"errors"
	"net"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"docengine/internal/core/apperror"
	"docengine/internal/core/engine"
)

// Classify maps a pgx error onto an engine error kind. Engine and
// application errors pass through. Shared by every engine that talks to PostgreSQL.
func Classify(err error) error {
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
	if errors.Is(err, pgx.ErrNoRows) {
		return engine.KindNotFound
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return kindOfCode(pgErr.Code)
	}

	var connErr *pgconn.ConnectError
	if errors.As(err, &connErr) {
		return engine.KindUnavailable
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return engine.KindUnavailable
	}
	if pgconn.Timeout(err) {
		return engine.KindUnavailable
	}
	return engine.KindUnknown
}

// kindOfCode classifies a SQLSTATE.
func kindOfCode(code string) engine.ErrorKind {
	switch code {
	case "23505": // unique_violation
		return engine.KindConflict
	case "P0001": // raise_exception from a routine
		return engine.KindValidation
	case "P0002", "42P01", "42883", "3F000": // no_data_found, undefined table/function/schema
		return engine.KindNotFound
	}
	switch {
	case strings.HasPrefix(code, "23"), strings.HasPrefix(code, "22"):
		return engine.KindValidation
	case strings.HasPrefix(code, "08"), strings.HasPrefix(code, "53"), strings.HasPrefix(code, "57P"):
		return engine.KindUnavailable
	case code == "40001", code == "40P01": // serialization failure, deadlock
		return engine.KindUnavailable
	}
	return engine.KindUnknown
}
