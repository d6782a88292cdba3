package db

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"strings"

	"github.com/jackc/pgx/v5/pgconn"

	"github.com/healthfed/healthfed/internal/platform/apperror"
)

// SQLSTATE codes the repositories care about.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeNotNullViolation    = "23502"
)

// classify maps a pgx failure onto the application error taxonomy.
// Statement errors that are neither integrity nor data problems (syntax,
// missing table) and client-side failures such as scan errors are returned
// wrapped but unclassified: they are bugs, not store outages. A canceled
// context means the caller went away and is returned as is.
func classify(err error) error {
	if err == nil {
		return nil
	}
	var appErr *apperror.Error
	if errors.As(err, &appErr) {
		return err
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) || pgconn.Timeout(err) {
		return apperror.NewUnavailable(storeName, err)
	}

	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		switch {
		case pgErr.Code == codeUniqueViolation:
			return apperror.NewValidation("", fmt.Sprintf("duplicate value violates unique constraint %s", pgErr.ConstraintName), err)
		case pgErr.Code == codeForeignKeyViolation:
			return apperror.NewValidation("", fmt.Sprintf("foreign key constraint %s violated", pgErr.ConstraintName), err)
		case pgErr.Code == codeNotNullViolation:
			return apperror.NewValidation("", fmt.Sprintf("column %s must not be null", pgErr.ColumnName), err)
		case strings.HasPrefix(pgErr.Code, "23"):
			return apperror.NewValidation("", fmt.Sprintf("constraint %s violated", pgErr.ConstraintName), err)
		case strings.HasPrefix(pgErr.Code, "22"):
			return apperror.NewValidation("", "invalid value: "+pgErr.Message, err)
		case strings.HasPrefix(pgErr.Code, "08"), strings.HasPrefix(pgErr.Code, "53"), strings.HasPrefix(pgErr.Code, "57P"):
			return apperror.NewUnavailable(storeName, err)
		default:
			return fmt.Errorf("relational statement failed: %w", err)
		}
	}

	if isConnectionFailure(err) {
		return apperror.NewUnavailable(storeName, err)
	}
	return fmt.Errorf("relational call failed: %w", err)
}

// isConnectionFailure reports whether err came from reaching the server
// rather than from the statement: dial, TLS, a dropped connection, or a
// failure pgconn marks as safe to retry because nothing was sent.
func isConnectionFailure(err error) bool {
	var connectErr *pgconn.ConnectError
	if errors.As(err, &connectErr) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	return pgconn.SafeToRetry(err) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}
