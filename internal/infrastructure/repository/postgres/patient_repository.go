// Package postgres stores patient records. Records arrive from an external
// EHR feed (or the demo seed) and are read-only for the assessment pipeline.
package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
)

type PatientRepository struct {
	db *sql.DB
}

func NewPatientRepository(db *sql.DB) *PatientRepository {
	return &PatientRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *PatientRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026082601)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS patients (
	patient_id TEXT PRIMARY KEY,
	name TEXT NOT NULL,
	age INTEGER NOT NULL,
	gender TEXT NOT NULL,
	smoking_history TEXT NOT NULL DEFAULT '',
	symptoms JSONB NOT NULL DEFAULT '[]'::jsonb,
	symptom_duration_days INTEGER NOT NULL DEFAULT 0,
	updated_at TIMESTAMPTZ NOT NULL
);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

func (r *PatientRepository) GetPatient(ctx context.Context, patientID string) (*domain.PatientRecord, error) {
	row := r.db.QueryRowContext(ctx, `
SELECT patient_id, name, age, gender, smoking_history, symptoms, symptom_duration_days
FROM patients
WHERE patient_id = $1
`, patientID)

	var record domain.PatientRecord
	var symptomsRaw []byte

	err := row.Scan(
		&record.PatientID, &record.Name, &record.Age, &record.Gender,
		&record.SmokingHistory, &symptomsRaw, &record.SymptomDurationDays,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, domain.WrapError(domain.ErrPatientNotFound, "get patient", fmt.Errorf("patient %s", patientID))
		}
		return nil, fmt.Errorf("scan patient: %w", err)
	}

	if err := json.Unmarshal(symptomsRaw, &record.Symptoms); err != nil {
		return nil, fmt.Errorf("unmarshal symptoms: %w", err)
	}
	return &record, nil
}

func (r *PatientRepository) UpsertPatient(ctx context.Context, record domain.PatientRecord) error {
	symptomsJSON, err := json.Marshal(record.Symptoms)
	if err != nil {
		return fmt.Errorf("marshal symptoms: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO patients (
	patient_id, name, age, gender, smoking_history, symptoms, symptom_duration_days, updated_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8)
ON CONFLICT (patient_id) DO UPDATE SET
	name = EXCLUDED.name,
	age = EXCLUDED.age,
	gender = EXCLUDED.gender,
	smoking_history = EXCLUDED.smoking_history,
	symptoms = EXCLUDED.symptoms,
	symptom_duration_days = EXCLUDED.symptom_duration_days,
	updated_at = EXCLUDED.updated_at
`,
		record.PatientID, record.Name, record.Age, record.Gender,
		record.SmokingHistory, symptomsJSON, record.SymptomDurationDays, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("upsert patient: %w", err)
	}
	return nil
}

func (r *PatientRepository) ListPatients(ctx context.Context) ([]domain.PatientRecord, error) {
	rows, err := r.db.QueryContext(ctx, `
SELECT patient_id, name, age, gender, smoking_history, symptoms, symptom_duration_days
FROM patients
ORDER BY patient_id
`)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	defer rows.Close()

	var out []domain.PatientRecord
	for rows.Next() {
		var record domain.PatientRecord
		var symptomsRaw []byte
		if err := rows.Scan(
			&record.PatientID, &record.Name, &record.Age, &record.Gender,
			&record.SmokingHistory, &symptomsRaw, &record.SymptomDurationDays,
		); err != nil {
			return nil, fmt.Errorf("scan patient row: %w", err)
		}
		if err := json.Unmarshal(symptomsRaw, &record.Symptoms); err != nil {
			return nil, fmt.Errorf("unmarshal symptoms: %w", err)
		}
		out = append(out, record)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate patients: %w", err)
	}
	return out, nil
}
