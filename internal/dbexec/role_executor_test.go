package dbexec

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
)

func roleCtxFunc(role string, ok bool) func(context.Context) (string, bool) {
	return func(ctx context.Context) (string, bool) {
		return role, ok
	}
}

func TestRoleExecutorSetsAndResetsRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`SET ROLE "app_reader"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec(`SET search_path TO "public"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery("SELECT 1").WillReturnRows(sqlmock.NewRows([]string{"one"}).AddRow(1))
	mock.ExpectExec("RESET ROLE").WillReturnResult(sqlmock.NewResult(0, 0))

	executor := NewRoleExecutor(RoleExecutorConfig{
		DB:          db,
		SchemaName:  "public",
		RoleFromCtx: roleCtxFunc("app_reader", true),
	})

	rows, err := executor.QueryContext(context.Background(), "SELECT 1")
	if err != nil {
		t.Fatalf("QueryContext() error: %v", err)
	}
	if !rows.Next() {
		t.Fatal("expected one row")
	}
	var one int
	if err := rows.Scan(&one); err != nil {
		t.Fatalf("Scan() error: %v", err)
	}
	if err := rows.Close(); err != nil {
		t.Fatalf("Close() error: %v", err)
	}

	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleExecutorSkipsSetRoleWithoutRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec(`SET search_path TO "public"`).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("DELETE FROM widget").WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("RESET ROLE").WillReturnResult(sqlmock.NewResult(0, 0))

	executor := NewRoleExecutor(RoleExecutorConfig{
		DB:          db,
		SchemaName:  "public",
		RoleFromCtx: roleCtxFunc("", false),
	})

	if _, err := executor.ExecContext(context.Background(), "DELETE FROM widget"); err != nil {
		t.Fatalf("ExecContext() error: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleExecutorRejectsDisallowedRole(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("failed to create mock: %v", err)
	}
	defer db.Close()

	mock.ExpectExec("RESET ROLE").WillReturnResult(sqlmock.NewResult(0, 0))

	executor := NewRoleExecutor(RoleExecutorConfig{
		DB:           db,
		RoleFromCtx:  roleCtxFunc("superuser", true),
		AllowedRoles: []string{"app_reader", "app_writer"},
		ValidateRole: true,
	})

	if _, err := executor.QueryContext(context.Background(), "SELECT 1"); err == nil {
		t.Fatal("expected disallowed role to be rejected")
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestRoleValidationLogic(t *testing.T) {
	tests := []struct {
		name         string
		role         string
		hasRole      bool
		allowedRoles []string
		validateRole bool
		expectValid  bool
	}{
		{
			name:         "valid role with validation enabled",
			role:         "app_writer",
			hasRole:      true,
			allowedRoles: []string{"app_reader", "app_writer"},
			validateRole: true,
			expectValid:  true,
		},
		{
			name:         "invalid role with validation enabled",
			role:         "superuser",
			hasRole:      true,
			allowedRoles: []string{"app_reader"},
			validateRole: true,
			expectValid:  false,
		},
		{
			name:         "invalid role with validation disabled",
			role:         "superuser",
			hasRole:      true,
			allowedRoles: []string{"app_reader"},
			validateRole: false,
			expectValid:  true,
		},
		{
			name:         "no role provided",
			role:         "",
			hasRole:      false,
			allowedRoles: []string{"app_reader"},
			validateRole: true,
			expectValid:  true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			executor := NewRoleExecutor(RoleExecutorConfig{
				RoleFromCtx:  roleCtxFunc(tt.role, tt.hasRole),
				AllowedRoles: tt.allowedRoles,
				ValidateRole: tt.validateRole,
			})

			role, ok := executor.roleFromCtx(context.Background())
			shouldValidate := ok && role != "" && executor.validateRole

			valid := true
			if shouldValidate {
				_, valid = executor.allowedRoles[role]
			}
			if valid != tt.expectValid {
				t.Errorf("expected valid=%v, got valid=%v (role=%q)", tt.expectValid, valid, role)
			}
		})
	}
}

func TestStandardExecutorNilDB(t *testing.T) {
	executor := &StandardExecutor{db: nil}

	if _, err := executor.QueryContext(context.Background(), "SELECT 1"); err != sql.ErrConnDone {
		t.Errorf("expected ErrConnDone, got %v", err)
	}
	if _, err := executor.ExecContext(context.Background(), "DELETE FROM widget"); err != sql.ErrConnDone {
		t.Errorf("expected ErrConnDone, got %v", err)
	}
}
