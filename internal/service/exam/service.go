package exam

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"quantumlab/internal/models"
	"quantumlab/internal/pipeline"
)

// ErrNotFound is returned when no exam matches the query.
var ErrNotFound = errors.New("exam not found")

// Service persists and retrieves exam records. Records are written once and
// never updated.
type Service struct {
	db *sql.DB
}

// NewService builds the exam service.
func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// Create stores a completed analysis for the user and returns the record with
// its assigned id and timestamp.
func (s *Service) Create(ctx context.Context, userID int64, fileName string, analysis *models.Analysis) (*models.Exam, error) {
	if userID <= 0 {
		return nil, errors.New("user_id is required")
	}
	if analysis == nil {
		return nil, errors.New("analysis is required")
	}

	patientJSON, err := json.Marshal(analysis.Patient)
	if err != nil {
		return nil, fmt.Errorf("%w: encode patient: %v", pipeline.ErrStorage, err)
	}
	analysisJSON, err := json.Marshal(analysis)
	if err != nil {
		return nil, fmt.Errorf("%w: encode analysis: %v", pipeline.ErrStorage, err)
	}

	now := time.Now().UTC()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO exams (user_id, file_name, patient_info, analysis, severity, created_at)
		 VALUES (?, ?, ?, ?, ?, ?)`,
		userID, fileName, string(patientJSON), string(analysisJSON), analysis.Severity, now,
	)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", pipeline.ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return nil, fmt.Errorf("%w: exam id: %v", pipeline.ErrStorage, err)
	}

	return &models.Exam{
		ID:        id,
		UserID:    userID,
		FileName:  fileName,
		Patient:   analysis.Patient,
		Analysis:  *analysis,
		Severity:  analysis.Severity,
		CreatedAt: now,
	}, nil
}

// ListByUser returns the user's exams, newest first.
func (s *Service) ListByUser(ctx context.Context, userID int64) ([]*models.Exam, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, user_id, file_name, patient_info, analysis, severity, created_at
		 FROM exams WHERE user_id = ? ORDER BY created_at DESC, id DESC`, userID,
	)
	if err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	defer rows.Close()

	exams := make([]*models.Exam, 0, 8)
	for rows.Next() {
		exam, err := scanExam(rows)
		if err != nil {
			return nil, err
		}
		exams = append(exams, exam)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list exams: %w", err)
	}
	return exams, nil
}

// GetByID returns a single exam owned by the user.
func (s *Service) GetByID(ctx context.Context, userID, examID int64) (*models.Exam, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, user_id, file_name, patient_info, analysis, severity, created_at
		 FROM exams WHERE id = ? AND user_id = ?`, examID, userID,
	)
	exam, err := scanExam(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return exam, nil
}

type rowScanner interface {
	Scan(dest ...interface{}) error
}

func scanExam(row rowScanner) (*models.Exam, error) {
	var (
		exam         models.Exam
		patientJSON  string
		analysisJSON string
	)
	if err := row.Scan(&exam.ID, &exam.UserID, &exam.FileName, &patientJSON, &analysisJSON, &exam.Severity, &exam.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, sql.ErrNoRows
		}
		return nil, fmt.Errorf("scan exam: %w", err)
	}
	if err := json.Unmarshal([]byte(patientJSON), &exam.Patient); err != nil {
		return nil, fmt.Errorf("decode patient for exam %d: %w", exam.ID, err)
	}
	if err := json.Unmarshal([]byte(analysisJSON), &exam.Analysis); err != nil {
		return nil, fmt.Errorf("decode analysis for exam %d: %w", exam.ID, err)
	}
	return &exam, nil
}
