package resolver

import (
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
)

var (
	// ErrNotFound reports an update or delete whose primary key matched no row.
	ErrNotFound = errors.New("record not found")
	// ErrMutationFailed wraps the database cause of a rolled-back mutation.
	ErrMutationFailed = errors.New("mutation failed")

	errAccessDenied = errors.New("access denied")
)

// SQLSTATE 42501 insufficient_privilege.
const pgInsufficientPrivilege = "42501"

// normalizeQueryError hides privilege violations behind a uniform error so
// responses do not leak which objects exist.
func normalizeQueryError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == pgInsufficientPrivilege {
		return errAccessDenied
	}
	return err
}

// mutationError wraps a failed mutation's cause. The SQLSTATE travels in the
// message so clients can distinguish constraint violations.
func mutationError(err error) error {
	if err == nil {
		return nil
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return fmt.Errorf("%w: %s (SQLSTATE %s)", ErrMutationFailed, pgErr.Message, pgErr.Code)
	}
	return fmt.Errorf("%w: %v", ErrMutationFailed, err)
}
