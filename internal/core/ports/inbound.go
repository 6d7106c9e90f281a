package ports

import (
	"context"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
)

// RiskAssessor is the inbound contract for patient risk assessment.
type RiskAssessor interface {
	Assess(ctx context.Context, patientID string) (*domain.AssessResult, error)
}

// ChatService is the inbound contract for conversational guideline Q&A.
type ChatService interface {
	Chat(ctx context.Context, sessionID, message string) (*domain.ChatResult, error)
}

// SessionAdmin reads and clears per-session conversation state.
type SessionAdmin interface {
	SessionHistory(sessionID string) (*domain.SessionHistory, error)
	ClearSession(sessionID string) error
}

// PatientDirectory lists the patients available for assessment.
type PatientDirectory interface {
	ListPatients(ctx context.Context) ([]domain.PatientSummary, error)
}
