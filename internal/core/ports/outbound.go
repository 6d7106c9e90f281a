package ports

import (
	"context"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
)

// EvidenceStore issues similarity queries against the search and
// symptom-index corpora and exact-key lookups against the canonical corpus.
type EvidenceStore interface {
	// Query searches both retrieval corpora with the same text, merges the
	// result sets, and returns candidates with base scores in [0, 1]
	// (1 - cosine distance).
	Query(ctx context.Context, text string, fetchK int) ([]domain.Candidate, error)
	// GetCanonical looks up a canonical chunk by rule id (e.g. "1.1.1").
	// A miss returns (nil, nil); only transport failures produce an error.
	GetCanonical(ctx context.Context, ruleID string) (*domain.Chunk, error)
}

// GenerateOptions bound a single text-generation call.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
}

// TextGenerator drafts free-text output (query rewrites, chat answers,
// structured assessments). Available reports whether the collaborator is
// configured; callers fall back to degraded deterministic behavior when it
// is not.
type TextGenerator interface {
	Available() bool
	Generate(ctx context.Context, systemPrompt, userPrompt string, opts GenerateOptions) (string, error)
}

// PatientSource resolves patient records by id and lists the known cohort.
type PatientSource interface {
	GetPatient(ctx context.Context, patientID string) (*domain.PatientRecord, error)
	ListPatients(ctx context.Context) ([]domain.PatientRecord, error)
}

// SessionMemory stores per-session conversation turns and the derived topic.
// Implementations must be safe for concurrent use across sessions.
type SessionMemory interface {
	History(sessionID string) []domain.Turn
	Append(sessionID, role, content string)
	Topic(sessionID string) string
	SetTopic(sessionID, topic string)
	Clear(sessionID string)
}

// DecisionPublisher emits an audit event for every terminal routing decision.
// Publishing is best-effort; pipelines never fail on publish errors.
type DecisionPublisher interface {
	PublishDecision(ctx context.Context, event domain.DecisionEvent) error
}
