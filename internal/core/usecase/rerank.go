package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
)

// Reranker re-scores a candidate pool in place and returns it. Exactly one
// strategy is selected per request; the two strategies never run on the same
// pool.
type Reranker interface {
	Rerank(pool []domain.Candidate) []domain.Candidate
}

// SelectReranker picks the reranking strategy for the request mode.
// Assessment mode requires a patient record; chat mode requires the query.
func SelectReranker(mode domain.RerankMode, query string, patient *domain.PatientRecord) (Reranker, error) {
	switch mode {
	case domain.ModeAssessment:
		if patient == nil {
			return nil, fmt.Errorf("assessment rerank requires a patient record")
		}
		return &assessmentReranker{patient: *patient}, nil
	case domain.ModeChat:
		return &chatReranker{intents: detectQueryIntents(query)}, nil
	default:
		return nil, fmt.Errorf("unsupported rerank mode: %s", mode)
	}
}

// sortAndTruncate orders candidates by descending score, breaking ties by
// original retrieval order, and keeps at most topK.
func sortAndTruncate(pool []domain.Candidate, topK int) []domain.Candidate {
	sort.SliceStable(pool, func(i, j int) bool {
		return pool[i].Score > pool[j].Score
	})
	if topK > 0 && len(pool) > topK {
		pool = pool[:topK]
	}
	return pool
}

// assessmentReranker applies additive deterministic boosts based on patient
// characteristics. A field absent on a candidate contributes no boost.
type assessmentReranker struct {
	patient domain.PatientRecord
}

const (
	boostAgeBound       = 0.15
	boostSymptomOverlap = 0.10
	boostSmoking        = 0.10
	boostGenderMatch    = 0.05
	penaltyGenderClash  = 0.30
)

// normalizeSpelling lowercases and folds the British "ae" digraph so that
// "haemoptysis" and "hemoptysis" compare equal regardless of which spelling
// the record or the index carries.
func normalizeSpelling(s string) string {
	return strings.ReplaceAll(strings.ToLower(s), "ae", "e")
}

func (r *assessmentReranker) Rerank(pool []domain.Candidate) []domain.Candidate {
	patientSymptoms := make([]string, 0, len(r.patient.Symptoms))
	for _, s := range r.patient.Symptoms {
		patientSymptoms = append(patientSymptoms, normalizeSpelling(s))
	}

	for i := range pool {
		meta := pool[i].Chunk.Metadata
		boost := 0.0

		if meta.AgeMin != nil && r.patient.Age >= *meta.AgeMin {
			boost += boostAgeBound
		}
		if meta.AgeMax != nil && r.patient.Age < *meta.AgeMax {
			boost += boostAgeBound
		}

		// Substring containment in either direction, counted once per
		// patient symptom. Short keywords can produce false positives;
		// that looseness matches the indexed keyword granularity.
		for _, ps := range patientSymptoms {
			for _, cs := range meta.SymptomKeywords {
				cs = normalizeSpelling(cs)
				if strings.Contains(ps, cs) || strings.Contains(cs, ps) {
					boost += boostSymptomOverlap
					break
				}
			}
		}

		if r.patient.Smoker() && meta.RiskFactorSmoking {
			boost += boostSmoking
		}

		// Gender-specific criteria that contradict the patient are
		// suppressed with a hard penalty, not merely de-prioritized.
		if gs := meta.GenderSpecific; gs == "Male" || gs == "Female" {
			if gs == r.patient.Gender {
				boost += boostGenderMatch
			} else if r.patient.Gender == "Male" || r.patient.Gender == "Female" {
				boost -= penaltyGenderClash
			}
		}

		pool[i].Score += boost
	}
	return pool
}

// Query-intent signals for chat-mode reranking.
var (
	urgencyRE  = regexp.MustCompile(`(?i)urgent|red\s*flag|emergency|immediate`)
	ageRE      = regexp.MustCompile(`(?i)age|under\s+\d|over\s+\d|years?\s*old|\byo\b|\byrs?\b`)
	durationRE = regexp.MustCompile(`(?i)weeks?|months?|persistent|duration|lasting`)
	exactRE    = regexp.MustCompile(`(?i)quote|exact|wording|verbatim`)
)

// Urgency tiers that warrant a boost when the query asks about urgency.
var highUrgencyTiers = map[string]struct{}{
	"immediate":   {},
	"very_urgent": {},
	"urgent":      {},
}

type queryIntents struct {
	urgency  bool
	age      bool
	duration bool
	exact    bool
}

func detectQueryIntents(query string) queryIntents {
	return queryIntents{
		urgency:  urgencyRE.MatchString(query),
		age:      ageRE.MatchString(query),
		duration: durationRE.MatchString(query),
		exact:    exactRE.MatchString(query),
	}
}

const (
	boostUrgency      = 0.10
	boostAgeIntent    = 0.10
	boostDuration     = 0.10
	boostExactWording = 0.15
)

// chatReranker applies lightweight query-aware boosts when no patient data
// is present.
type chatReranker struct {
	intents queryIntents
}

func (r *chatReranker) Rerank(pool []domain.Candidate) []domain.Candidate {
	for i := range pool {
		meta := pool[i].Chunk.Metadata
		boost := 0.0

		if r.intents.urgency {
			if _, ok := highUrgencyTiers[strings.ToLower(meta.Urgency)]; ok {
				boost += boostUrgency
			}
		}
		if r.intents.age && (meta.AgeMin != nil || meta.AgeMax != nil) {
			boost += boostAgeIntent
		}
		if r.intents.duration && durationRE.MatchString(pool[i].Chunk.Text) {
			boost += boostDuration
		}
		// Verbatim rule text satisfies an exact-wording request better
		// than a summarized symptom-index row.
		if r.intents.exact && pool[i].Chunk.DocType == domain.DocTypeRuleSearch {
			boost += boostExactWording
		}

		pool[i].Score += boost
	}
	return pool
}
