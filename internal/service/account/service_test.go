package account

import (
	"context"
	"database/sql"
	"errors"
	"testing"

	"quantumlab/internal/config"
	"quantumlab/internal/models"
	"quantumlab/internal/storage"
)

func openTestDB(t *testing.T) *sql.DB {
	t.Helper()
	cfg := &config.Config{
		Databases: map[string]config.DatabaseConfig{
			"sqlite3": {
				DSN: ":memory:",
			},
		},
	}
	db, err := storage.Open("sqlite3", cfg)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	if err := storage.Migrate(db, "sqlite3"); err != nil {
		t.Fatalf("migrate db: %v", err)
	}
	return db
}

func TestFirstRegisteredUserBecomesAdmin(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	first, err := svc.Register(ctx, "alice", "secret", models.UserRoleUser)
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if first.Role != models.UserRoleAdmin {
		t.Fatalf("first user role = %q, want admin", first.Role)
	}

	second, err := svc.Register(ctx, "bob", "secret", "")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if second.Role != models.UserRoleUser {
		t.Fatalf("second user role = %q, want user", second.Role)
	}
}

func TestRegisterDuplicateUsername(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "secret", ""); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := svc.Register(ctx, "alice", "other", ""); !errors.Is(err, ErrUsernameTaken) {
		t.Fatalf("expected ErrUsernameTaken, got %v", err)
	}
}

func TestLogin(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	if _, err := svc.Register(ctx, "alice", "secret", ""); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	user, err := svc.Login(ctx, "alice", "secret")
	if err != nil {
		t.Fatalf("Login error: %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("unexpected username %q", user.Username)
	}

	if _, err := svc.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for bad password, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "secret"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials for unknown user, got %v", err)
	}
}

func TestDeleteProtectsPrimaryAdmin(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	admin, err := svc.Register(ctx, "alice", "secret", "")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	user, err := svc.Register(ctx, "bob", "secret", "")
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}

	if err := svc.Delete(ctx, admin.ID); !errors.Is(err, ErrProtectedUser) {
		t.Fatalf("expected ErrProtectedUser, got %v", err)
	}
	if err := svc.Delete(ctx, user.ID); err != nil {
		t.Fatalf("Delete error: %v", err)
	}
	if err := svc.Delete(ctx, user.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for repeated delete, got %v", err)
	}
}

func TestListAndCount(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	count, err := svc.Count(ctx)
	if err != nil || count != 0 {
		t.Fatalf("expected empty table, count=%d err=%v", count, err)
	}

	if _, err := svc.Register(ctx, "alice", "secret", ""); err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if _, err := svc.Register(ctx, "bob", "secret", ""); err != nil {
		t.Fatalf("Register error: %v", err)
	}

	users, err := svc.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(users) != 2 {
		t.Fatalf("expected 2 users, got %d", len(users))
	}
	if users[0].Username != "alice" || users[1].Username != "bob" {
		t.Fatalf("unexpected order: %q, %q", users[0].Username, users[1].Username)
	}
}
