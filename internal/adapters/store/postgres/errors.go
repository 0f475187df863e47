package postgres

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"errors"
	"io"
	"net"

	"github.com/lib/pq"
	"github.com/okian/leadpulse/internal/adapters/store"
	"github.com/okian/leadpulse/internal/domain/errs"
)

const (
	codeInsufficientPrivilege = "42501"
	classConnectionException  = "08"
	classDataException        = "22"
)

// classify maps a driver error onto the pipeline taxonomy.
func classify(op string, rel store.Relation, err error) error {
	if err == nil {
		return nil
	}
	if errs.KindOf(err) != errs.KindUnknown {
		return err
	}
	if errors.Is(err, sql.ErrNoRows) {
		return errs.NotFound(op)
	}

	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		code := string(pqErr.Code)
		switch {
		case code == codeInsufficientPrivilege:
			return errs.PermissionDenied(op, code, err)
		case string(pqErr.Code.Class()) == classConnectionException:
			return errs.Network(op, err)
		case string(pqErr.Code.Class()) == classDataException:
			// malformed input such as a bad uuid or an out of range number
			return &errs.Error{Kind: errs.KindInvalid, Op: op, Code: code, Err: err}
		}
		return errs.Database(op, code, err, map[string]any{
			"relation": string(rel),
			"detail":   pqErr.Detail,
			"table":    pqErr.Table,
		})
	}

	var netErr net.Error
	switch {
	case errors.As(err, &netErr),
		errors.Is(err, driver.ErrBadConn),
		errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled):
		return errs.Network(op, err)
	}
	return errs.Database(op, "", err, map[string]any{"relation": string(rel)})
}
