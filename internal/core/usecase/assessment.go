package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
	"github.com/clinassist/ng12-assistant/internal/core/ports"
)

// AssessmentLimits bound the assessment pipeline. Zero values fall back to
// defaults.
type AssessmentLimits struct {
	TopK            int
	FetchMultiplier int
	GenerateTimeout time.Duration
}

type AssessmentUseCase struct {
	patients  ports.PatientSource
	store     ports.EvidenceStore
	generator ports.TextGenerator
	publisher ports.DecisionPublisher
	resolver  *CanonicalResolver
	limits    AssessmentLimits
}

func NewAssessmentUseCase(
	patients ports.PatientSource,
	store ports.EvidenceStore,
	generator ports.TextGenerator,
	publisher ports.DecisionPublisher,
	limits AssessmentLimits,
) *AssessmentUseCase {
	if limits.TopK <= 0 {
		limits.TopK = 8
	}
	if limits.FetchMultiplier <= 0 {
		limits.FetchMultiplier = 3
	}
	if limits.GenerateTimeout <= 0 {
		limits.GenerateTimeout = 60 * time.Second
	}

	return &AssessmentUseCase{
		patients:  patients,
		store:     store,
		generator: generator,
		publisher: publisher,
		resolver:  NewCanonicalResolver(store),
		limits:    limits,
	}
}

// Assess runs the clinical decision-support pipeline for one patient:
// record lookup, guideline retrieval with patient-aware reranking, canonical
// resolution, and a structured risk assessment drafted by the generator.
func (uc *AssessmentUseCase) Assess(ctx context.Context, patientID string) (*domain.AssessResult, error) {
	patientID = strings.TrimSpace(patientID)
	if patientID == "" {
		return nil, domain.WrapError(domain.ErrInvalidInput, "assess", fmt.Errorf("patient_id is required"))
	}

	patient, err := uc.patients.GetPatient(ctx, patientID)
	if err != nil {
		return nil, fmt.Errorf("fetch patient %s: %w", patientID, err)
	}

	query := assessmentQuery(*patient)
	fetchK := uc.limits.TopK * uc.limits.FetchMultiplier
	pool, err := uc.store.Query(ctx, query, fetchK)
	if err != nil {
		return nil, domain.WrapError(domain.ErrCollaboratorUnavailable, "assess retrieve", err)
	}

	reranker, err := SelectReranker(domain.ModeAssessment, query, patient)
	if err != nil {
		return nil, fmt.Errorf("select reranker: %w", err)
	}
	ranked := sortAndTruncate(reranker.Rerank(pool), uc.limits.TopK)
	results := uc.resolver.Resolve(ctx, ranked)

	result := &domain.AssessResult{
		Patient:    *patient,
		Citations:  assessmentCitations(results),
		Results:    results,
		Assessment: uc.draftAssessment(ctx, *patient, results),
	}

	uc.publish(ctx, patientID, result)
	return result, nil
}

// ListPatients returns the directory view of the known cohort: id, name,
// and a short summary of up to three symptoms.
func (uc *AssessmentUseCase) ListPatients(ctx context.Context) ([]domain.PatientSummary, error) {
	records, err := uc.patients.ListPatients(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}

	summaries := make([]domain.PatientSummary, 0, len(records))
	for _, record := range records {
		symptoms := record.Symptoms
		if len(symptoms) > 3 {
			symptoms = symptoms[:3]
		}
		summaries = append(summaries, domain.PatientSummary{
			PatientID:       record.PatientID,
			Name:            record.Name,
			SymptomsSummary: strings.Join(symptoms, ", "),
		})
	}
	return summaries, nil
}

// assessmentQuery builds the retrieval query from the patient record.
func assessmentQuery(p domain.PatientRecord) string {
	return fmt.Sprintf("%s age %d %s %s",
		strings.Join(p.Symptoms, " "), p.Age, p.Gender, p.SmokingHistory)
}

// assessmentCitations cites every retained result. Unlike chat, assessment
// citations are not filtered by answer markers: the whole evidence set backs
// the structured output.
func assessmentCitations(results []domain.RankedResult) []domain.Citation {
	citations := make([]domain.Citation, 0, len(results))
	for i, r := range results {
		section := sectionOf(r)
		if section == "" {
			section = "Part B"
		}
		chunkID := r.Chunk.Metadata.ChunkID
		if chunkID == "" {
			chunkID = fmt.Sprintf("chunk_%d", i)
		}
		citations = append(citations, domain.Citation{
			Source:  "NG12 PDF",
			Section: section,
			Page:    pageNumOf(r),
			ChunkID: chunkID,
			Excerpt: truncateText(r.Chunk.Text, 200),
		})
	}
	return citations
}

var (
	jsonFenceOpenRE  = regexp.MustCompile("^```(?:json)?\\s*")
	jsonFenceCloseRE = regexp.MustCompile("\\s*```$")
)

// cleanJSONText strips a markdown code fence wrapper, if present.
func cleanJSONText(text string) string {
	text = strings.TrimSpace(text)
	text = jsonFenceOpenRE.ReplaceAllString(text, "")
	text = jsonFenceCloseRE.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

// draftAssessment asks the generator for a structured assessment, falling
// back to a deterministic summary of the matched evidence when the
// generator is unavailable, fails, or returns unparseable output.
func (uc *AssessmentUseCase) draftAssessment(ctx context.Context, patient domain.PatientRecord, results []domain.RankedResult) domain.Assessment {
	if uc.generator == nil || !uc.generator.Available() {
		return fallbackAssessment(results)
	}

	genCtx, cancel := context.WithTimeout(ctx, uc.limits.GenerateTimeout)
	defer cancel()

	raw, err := uc.generator.Generate(genCtx, assessmentSystemPrompt,
		buildAssessmentPrompt(patient, results),
		ports.GenerateOptions{Temperature: 0.1, MaxTokens: 2048})
	if err != nil {
		slog.Warn("assessment generation failed", "patient_id", patient.PatientID, "error", err)
		return fallbackAssessment(results)
	}

	var assessment domain.Assessment
	if err := json.Unmarshal([]byte(cleanJSONText(raw)), &assessment); err != nil {
		slog.Warn("assessment response is not valid JSON", "patient_id", patient.PatientID, "error", err)
		return fallbackAssessment(results)
	}
	return assessment
}

// fallbackAssessment builds a deterministic assessment from the evidence
// alone: the highest-ranked recommendation dictates the headline fields and
// every rule passage becomes a matched recommendation.
func fallbackAssessment(results []domain.RankedResult) domain.Assessment {
	assessment := domain.Assessment{
		RiskLevel:         "Undetermined",
		CancerType:        "N/A",
		RecommendedAction: "Review the matched guideline passages with a clinician",
		Reasoning: "The text-generation service is unavailable. The passages below " +
			"matched the patient record by symptom, age, and risk-factor criteria " +
			"and should be reviewed manually.",
		MatchedRecommendations: []domain.MatchedRecommendation{},
	}

	for _, r := range results {
		if r.Chunk.DocType != domain.DocTypeRuleSearch {
			continue
		}
		meta := r.Chunk.Metadata
		if assessment.CancerType == "N/A" && meta.CancerType != "" {
			assessment.CancerType = meta.CancerType
		}
		if assessment.RecommendedAction == "Review the matched guideline passages with a clinician" &&
			meta.ActionType != "" {
			assessment.RecommendedAction = meta.ActionType
		}
		criteria := r.CanonicalText
		if criteria == "" {
			criteria = r.Chunk.Text
		}
		assessment.MatchedRecommendations = append(assessment.MatchedRecommendations, domain.MatchedRecommendation{
			Section:               sectionOf(r),
			ActionType:            meta.ActionType,
			CriteriaMet:           strings.Join(meta.SymptomKeywords, ", "),
			CriteriaFromGuideline: criteria,
		})
	}
	return assessment
}

func (uc *AssessmentUseCase) publish(ctx context.Context, patientID string, result *domain.AssessResult) {
	if uc.publisher == nil {
		return
	}
	event := domain.DecisionEvent{
		ID:        uuid.NewString(),
		Kind:      "assessment",
		PatientID: patientID,
		Citations: len(result.Citations),
		CreatedAt: time.Now().UTC(),
	}
	if err := uc.publisher.PublishDecision(ctx, event); err != nil {
		slog.Warn("decision publish failed", "kind", event.Kind, "error", err)
	}
}
