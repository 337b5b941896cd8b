package exam

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

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
	if _, err := db.Exec(`INSERT INTO users (id, username, password_hash, created_at) VALUES (1, 'tester', '', ?)`,
		time.Now().UTC()); err != nil {
		t.Fatalf("insert user: %v", err)
	}
	return db
}

func sampleAnalysis(severity string) *models.Analysis {
	a := &models.Analysis{
		Patient:         models.PatientRecord{Name: "Jane Roe", Age: "41", Sex: "F", Weight: "70", Height: "175", BMI: "22.9"},
		Summary:         "stable",
		Systems:         map[string]string{"hepatic": "mild ALT elevation"},
		Severity:        severity,
		Recommendations: []string{"hydration"},
	}
	a.SchemaComplete()
	return a
}

func TestCreateAndGet(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	record, err := svc.Create(ctx, 1, "labs.zip", sampleAnalysis(models.SeverityLow))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if record.ID <= 0 {
		t.Fatalf("expected assigned id, got %d", record.ID)
	}

	got, err := svc.GetByID(ctx, 1, record.ID)
	if err != nil {
		t.Fatalf("GetByID error: %v", err)
	}
	if got.FileName != "labs.zip" || got.Severity != models.SeverityLow {
		t.Fatalf("unexpected record: %+v", got)
	}
	if got.Patient.Name != "Jane Roe" {
		t.Fatalf("patient not round-tripped: %+v", got.Patient)
	}
	if len(got.Analysis.Systems) != len(models.RequiredSystems) {
		t.Fatalf("analysis systems not round-tripped: %d", len(got.Analysis.Systems))
	}
}

func TestGetByIDOwnership(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	record, err := svc.Create(ctx, 1, "labs.zip", sampleAnalysis(models.SeverityLow))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	if _, err := svc.GetByID(ctx, 99, record.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for other user, got %v", err)
	}
	if _, err := svc.GetByID(ctx, 1, record.ID+100); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for missing exam, got %v", err)
	}
}

func TestListByUserNewestFirst(t *testing.T) {
	db := openTestDB(t)
	defer db.Close()
	svc := NewService(db)
	ctx := context.Background()

	first, err := svc.Create(ctx, 1, "first.zip", sampleAnalysis(models.SeverityLow))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}
	second, err := svc.Create(ctx, 1, "second.zip", sampleAnalysis(models.SeverityHigh))
	if err != nil {
		t.Fatalf("Create error: %v", err)
	}

	exams, err := svc.ListByUser(ctx, 1)
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(exams) != 2 {
		t.Fatalf("expected 2 exams, got %d", len(exams))
	}
	if exams[0].ID != second.ID || exams[1].ID != first.ID {
		t.Fatalf("expected newest first, got ids %d, %d", exams[0].ID, exams[1].ID)
	}

	other, err := svc.ListByUser(ctx, 42)
	if err != nil {
		t.Fatalf("ListByUser error: %v", err)
	}
	if len(other) != 0 {
		t.Fatalf("expected no exams for other user, got %d", len(other))
	}
}
