package dbexec

import (
	"context"
	"database/sql"
	"fmt"

	"pg-graphql/internal/sqlutil"
)

// RoleExecutor executes queries under SET ROLE on a dedicated connection.
// The connection is reset with RESET ROLE before returning to the pool.
type RoleExecutor struct {
	db           *sql.DB
	schemaName   string
	roleFromCtx  func(context.Context) (string, bool)
	allowedRoles map[string]struct{}
	validateRole bool
}

// RoleExecutorConfig controls role execution behavior.
type RoleExecutorConfig struct {
	DB           *sql.DB
	SchemaName   string
	RoleFromCtx  func(context.Context) (string, bool)
	AllowedRoles []string
	ValidateRole bool
}

// NewRoleExecutor creates an executor that applies SET ROLE before each query.
// This lets the database itself enforce privileges and row-level security for
// the role extracted from the request context.
func NewRoleExecutor(cfg RoleExecutorConfig) *RoleExecutor {
	allowed := make(map[string]struct{}, len(cfg.AllowedRoles))
	for _, role := range cfg.AllowedRoles {
		allowed[role] = struct{}{}
	}
	return &RoleExecutor{
		db:           cfg.DB,
		schemaName:   cfg.SchemaName,
		roleFromCtx:  cfg.RoleFromCtx,
		allowedRoles: allowed,
		validateRole: cfg.ValidateRole,
	}
}

func (e *RoleExecutor) QueryContext(ctx context.Context, query string, args ...any) (Rows, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}

	cleanup := func() {
		_, _ = conn.ExecContext(context.Background(), "RESET ROLE")
		_ = conn.Close()
	}

	if err := e.assumeRole(ctx, conn); err != nil {
		cleanup()
		return nil, err
	}

	rows, err := conn.QueryContext(ctx, query, args...)
	if err != nil {
		cleanup()
		return nil, err
	}

	return &roleAwareRows{
		Rows:    rows,
		cleanup: cleanup,
	}, nil
}

func (e *RoleExecutor) ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error) {
	conn, err := e.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire connection: %w", err)
	}
	defer func() {
		_, _ = conn.ExecContext(context.Background(), "RESET ROLE")
		_ = conn.Close()
	}()

	if err := e.assumeRole(ctx, conn); err != nil {
		return nil, err
	}

	return conn.ExecContext(ctx, query, args...)
}

// BeginTx starts a transaction with the request's role applied via
// SET LOCAL, so the role and search_path revert on commit or rollback.
func (e *RoleExecutor) BeginTx(ctx context.Context) (*sql.Tx, error) {
	tx, err := e.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}

	role, ok := e.roleFromCtx(ctx)
	if ok && role != "" {
		if e.validateRole {
			if _, allowed := e.allowedRoles[role]; !allowed {
				_ = tx.Rollback()
				return nil, fmt.Errorf("role not allowed: %s", role)
			}
		}
		setRoleSQL := fmt.Sprintf("SET LOCAL ROLE %s", sqlutil.QuoteIdentifier(role))
		if _, err := tx.ExecContext(ctx, setRoleSQL); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to set role %s: %w", role, err)
		}
	}
	if e.schemaName != "" {
		searchPathSQL := fmt.Sprintf("SET LOCAL search_path TO %s", sqlutil.QuoteIdentifier(e.schemaName))
		if _, err := tx.ExecContext(ctx, searchPathSQL); err != nil {
			_ = tx.Rollback()
			return nil, fmt.Errorf("failed to set search_path to %s: %w", e.schemaName, err)
		}
	}
	return tx, nil
}

func (e *RoleExecutor) assumeRole(ctx context.Context, conn *sql.Conn) error {
	role, ok := e.roleFromCtx(ctx)
	if !ok || role == "" {
		return e.useSchema(ctx, conn)
	}
	if e.validateRole {
		if _, allowed := e.allowedRoles[role]; !allowed {
			return fmt.Errorf("role not allowed: %s", role)
		}
	}
	// PostgreSQL does not support a parameterized SET ROLE, so the role
	// travels as a quoted identifier. Safe because the role is validated
	// against the allowlist above.
	setRoleSQL := fmt.Sprintf("SET ROLE %s", sqlutil.QuoteIdentifier(role))
	if _, err := conn.ExecContext(ctx, setRoleSQL); err != nil {
		return fmt.Errorf("failed to set role %s: %w", role, err)
	}
	return e.useSchema(ctx, conn)
}

func (e *RoleExecutor) useSchema(ctx context.Context, conn *sql.Conn) error {
	if e.schemaName == "" {
		return nil
	}
	searchPathSQL := fmt.Sprintf("SET search_path TO %s", sqlutil.QuoteIdentifier(e.schemaName))
	if _, err := conn.ExecContext(ctx, searchPathSQL); err != nil {
		return fmt.Errorf("failed to set search_path to %s: %w", e.schemaName, err)
	}
	return nil
}

type roleAwareRows struct {
	*sql.Rows
	cleanup func()
}

func (r *roleAwareRows) Close() error {
	defer r.cleanup()
	return r.Rows.Close()
}
