// Package privileges reads per-role table grants, column grants, and row
// level security policies from the PostgreSQL catalogs. Results are cached
// per role so schema filtering does not hit the catalogs on every request.
package privileges

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"pg-graphql/internal/cache"
	"pg-graphql/internal/introspection"
)

// Operation is a table privilege kind as spelled by the catalogs.
type Operation string

const (
	OpSelect     Operation = "SELECT"
	OpInsert     Operation = "INSERT"
	OpUpdate     Operation = "UPDATE"
	OpDelete     Operation = "DELETE"
	OpTruncate   Operation = "TRUNCATE"
	OpReferences Operation = "REFERENCES"
)

// RlsPolicy describes one row level security policy. The core does not
// evaluate these expressions; the database enforces them once the role is
// set on the connection. They are carried so capability flags can be derived.
type RlsPolicy struct {
	PolicyName          string
	Table               string
	Schema              string
	Permissive          bool
	Roles               []string
	Command             string
	UsingExpression     string
	WithCheckExpression string
}

// TableGrant holds a role's table-level operations and column-level grants
// for one table.
type TableGrant struct {
	Operations map[Operation]bool
	// Columns maps operation to the set of explicitly granted column names.
	Columns map[Operation]map[string]bool
}

// RolePrivileges is everything the schema filter needs to scope the model
// for one role.
type RolePrivileges struct {
	Role        string
	IsSuperuser bool
	Tables      map[string]TableGrant
	Policies    []RlsPolicy
}

// HasTable reports whether the role has the table-level operation.
// Superusers pass every check.
func (p *RolePrivileges) HasTable(table string, op Operation) bool {
	if p.IsSuperuser {
		return true
	}
	grant, ok := p.Tables[table]
	return ok && grant.Operations[op]
}

// HasColumn reports whether the role may perform op on the column, either
// through a table-level grant or an explicit column grant.
func (p *RolePrivileges) HasColumn(table, column string, op Operation) bool {
	if p.IsSuperuser {
		return true
	}
	grant, ok := p.Tables[table]
	if !ok {
		return false
	}
	if grant.Operations[op] {
		return true
	}
	return grant.Columns[op][column]
}

// HasAnyPrivilege reports whether the role can touch the table at all.
func (p *RolePrivileges) HasAnyPrivilege(table string) bool {
	if p.IsSuperuser {
		return true
	}
	grant, ok := p.Tables[table]
	if !ok {
		return false
	}
	if len(grant.Operations) > 0 {
		return true
	}
	for _, cols := range grant.Columns {
		if len(cols) > 0 {
			return true
		}
	}
	return false
}

// TableHasRls reports whether any policy applies to the table for this role.
func (p *RolePrivileges) TableHasRls(table string) bool {
	for _, policy := range p.Policies {
		if policy.Table == table {
			return true
		}
	}
	return false
}

// Service reads and caches role privileges. The queryer must be privileged
// enough to read other roles' grants, which is the same connection the
// golden reflection uses.
type Service struct {
	queryer    introspection.Queryer
	schemaName string
	cached     *cache.Cache[string, *RolePrivileges]
}

// NewService returns a privilege service whose per-role results expire
// after ttl.
func NewService(q introspection.Queryer, schemaName string, ttl time.Duration) *Service {
	return &Service{
		queryer:    q,
		schemaName: schemaName,
		cached:     cache.New[string, *RolePrivileges](ttl),
	}
}

// ForRole returns the privileges of role, reading the catalogs on a cold
// cache. Concurrent callers for the same role share one read.
func (s *Service) ForRole(ctx context.Context, role string) (*RolePrivileges, error) {
	return s.cached.GetOrCompute(role, func() (*RolePrivileges, error) {
		return s.read(ctx, role)
	})
}

// Invalidate drops the cached privileges for role.
func (s *Service) Invalidate(role string) {
	s.cached.Remove(role)
}

// Clear drops all cached privileges.
func (s *Service) Clear() {
	s.cached.Clear()
}

func (s *Service) read(ctx context.Context, role string) (*RolePrivileges, error) {
	tracer := otel.Tracer("pg-graphql/privileges")
	ctx, span := tracer.Start(ctx, "privileges.read_role")
	span.SetAttributes(attribute.String("db.role", role))
	defer span.End()

	privs := &RolePrivileges{
		Role:   role,
		Tables: make(map[string]TableGrant),
	}

	superuser, err := s.isSuperuser(ctx, role)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to check superuser for role %s: %w", role, err)
	}
	privs.IsSuperuser = superuser
	if superuser {
		// Grant rows are irrelevant for superusers; every check short-circuits.
		return privs, nil
	}

	if err := s.readTableGrants(ctx, role, privs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read table grants for role %s: %w", role, err)
	}
	if err := s.readColumnGrants(ctx, role, privs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read column grants for role %s: %w", role, err)
	}
	if err := s.readPolicies(ctx, role, privs); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, fmt.Errorf("failed to read policies for role %s: %w", role, err)
	}
	return privs, nil
}

func (s *Service) isSuperuser(ctx context.Context, role string) (bool, error) {
	rows, err := s.queryer.QueryContext(ctx,
		`SELECT rolsuper FROM pg_roles WHERE rolname = $1`, role)
	if err != nil {
		return false, err
	}
	defer rows.Close()

	var superuser bool
	if rows.Next() {
		if err := rows.Scan(&superuser); err != nil {
			return false, err
		}
	}
	return superuser, rows.Err()
}

func (s *Service) readTableGrants(ctx context.Context, role string, privs *RolePrivileges) error {
	query := `
		SELECT table_name, privilege_type
		FROM information_schema.role_table_grants
		WHERE table_schema = $1
			AND grantee = $2
		ORDER BY table_name, privilege_type
	`
	rows, err := s.queryer.QueryContext(ctx, query, s.schemaName, role)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var table, privilege string
		if err := rows.Scan(&table, &privilege); err != nil {
			return err
		}
		grant := s.grantFor(privs, table)
		grant.Operations[Operation(privilege)] = true
	}
	return rows.Err()
}

func (s *Service) readColumnGrants(ctx context.Context, role string, privs *RolePrivileges) error {
	query := `
		SELECT table_name, column_name, privilege_type
		FROM information_schema.role_column_grants
		WHERE table_schema = $1
			AND grantee = $2
		ORDER BY table_name, column_name, privilege_type
	`
	rows, err := s.queryer.QueryContext(ctx, query, s.schemaName, role)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var table, column, privilege string
		if err := rows.Scan(&table, &column, &privilege); err != nil {
			return err
		}
		grant := s.grantFor(privs, table)
		op := Operation(privilege)
		if grant.Columns[op] == nil {
			grant.Columns[op] = make(map[string]bool)
		}
		grant.Columns[op][column] = true
	}
	return rows.Err()
}

func (s *Service) readPolicies(ctx context.Context, role string, privs *RolePrivileges) error {
	// roles is a name[]; flattening to CSV keeps the scan on database/sql
	// without a driver-specific array codec.
	query := `
		SELECT
			policyname,
			tablename,
			schemaname,
			permissive = 'PERMISSIVE',
			array_to_string(roles, ','),
			cmd,
			COALESCE(qual, ''),
			COALESCE(with_check, '')
		FROM pg_policies
		WHERE schemaname = $1
			AND ($2 = ANY(roles) OR 'public' = ANY(roles))
		ORDER BY tablename, policyname
	`
	rows, err := s.queryer.QueryContext(ctx, query, s.schemaName, role)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var policy RlsPolicy
		var roleCSV string
		if err := rows.Scan(
			&policy.PolicyName,
			&policy.Table,
			&policy.Schema,
			&policy.Permissive,
			&roleCSV,
			&policy.Command,
			&policy.UsingExpression,
			&policy.WithCheckExpression,
		); err != nil {
			return err
		}
		if roleCSV != "" {
			policy.Roles = strings.Split(roleCSV, ",")
		}
		privs.Policies = append(privs.Policies, policy)
	}
	return rows.Err()
}

func (s *Service) grantFor(privs *RolePrivileges, table string) TableGrant {
	grant, ok := privs.Tables[table]
	if !ok {
		grant = TableGrant{
			Operations: make(map[Operation]bool),
			Columns:    make(map[Operation]map[string]bool),
		}
		privs.Tables[table] = grant
	}
	return grant
}
