package graph

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/healthfed/healthfed/internal/platform/apperror"
)

const codeConstraintViolation = "Neo.ClientError.Schema.ConstraintValidationFailed"

// classify maps driver failures onto the application error taxonomy.
// Errors already classified (for example a NotFound raised inside WriteTx)
// pass through, and so does a canceled context: the caller went away.
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
	if errors.Is(err, context.DeadlineExceeded) {
		return apperror.NewUnavailable(storeName, err)
	}
	if neo4j.IsConnectivityError(err) || neo4j.IsTransactionExecutionLimit(err) {
		return apperror.NewUnavailable(storeName, err)
	}

	var neoErr *neo4j.Neo4jError
	if errors.As(err, &neoErr) {
		switch {
		case neoErr.Code == codeConstraintViolation:
			return apperror.NewValidation("", "graph constraint violated: "+neoErr.Msg, err)
		case strings.HasPrefix(neoErr.Code, "Neo.TransientError."),
			strings.HasPrefix(neoErr.Code, "Neo.ClientError.Security."),
			strings.HasPrefix(neoErr.Code, "Neo.ClientError.Database.DatabaseNotFound"):
			return apperror.NewUnavailable(storeName, err)
		case strings.HasPrefix(neoErr.Code, "Neo.ClientError.Statement.") && strings.Contains(neoErr.Code, "ArgumentError"):
			return apperror.NewValidation("", "invalid argument: "+neoErr.Msg, err)
		}
	}
	return fmt.Errorf("graph statement failed: %w", err)
}
