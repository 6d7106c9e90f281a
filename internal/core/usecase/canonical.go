package usecase

import (
	"context"
	"log/slog"
	"strings"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
	"github.com/clinassist/ng12-assistant/internal/core/ports"
)

// CanonicalResolver attaches verbatim source text to ranked candidates.
// Lookup misses leave a candidate without canonical text; they never fail
// the request.
type CanonicalResolver struct {
	store ports.EvidenceStore
}

func NewCanonicalResolver(store ports.EvidenceStore) *CanonicalResolver {
	return &CanonicalResolver{store: store}
}

// Resolve converts the top-k candidates into RankedResults. rule_search
// candidates gain the canonical rule text by rule id; symptom_index
// candidates gain the list of resolved cross-references from their reference
// list, unresolvable identifiers omitted. Resolution is idempotent with
// respect to an unchanged canonical corpus.
func (cr *CanonicalResolver) Resolve(ctx context.Context, pool []domain.Candidate) []domain.RankedResult {
	results := make([]domain.RankedResult, 0, len(pool))
	for _, candidate := range pool {
		result := domain.RankedResult{Candidate: candidate}

		switch candidate.Chunk.DocType {
		case domain.DocTypeRuleSearch:
			ruleID := candidate.Chunk.Metadata.RuleID
			if ruleID == "" {
				break
			}
			canonical, err := cr.store.GetCanonical(ctx, ruleID)
			if err != nil {
				slog.Warn("canonical lookup failed", "rule_id", ruleID, "error", err)
				break
			}
			if canonical != nil {
				result.CanonicalText = canonical.Text
				meta := canonical.Metadata
				result.CanonicalMetadata = &meta
			}

		case domain.DocTypeSymptomIndex:
			result.ReferencedCanonicals = cr.resolveReferences(ctx, candidate.Chunk.Metadata.References)
		}

		results = append(results, result)
	}
	return results
}

// resolveReferences follows a symptom-index entry's reference strings
// ("[1.5.2]") back into the canonical corpus. Bounded fan-out: one lookup
// per listed reference.
func (cr *CanonicalResolver) resolveReferences(ctx context.Context, refs []string) []domain.ReferencedCanonical {
	if len(refs) == 0 {
		return nil
	}
	resolved := make([]domain.ReferencedCanonical, 0, len(refs))
	for _, ref := range refs {
		ruleID := strings.Trim(ref, "[]")
		if ruleID == "" {
			continue
		}
		canonical, err := cr.store.GetCanonical(ctx, ruleID)
		if err != nil {
			slog.Warn("reference resolution failed", "rule_id", ruleID, "error", err)
			continue
		}
		if canonical == nil {
			continue
		}
		resolved = append(resolved, domain.ReferencedCanonical{
			RuleID:   ruleID,
			Text:     canonical.Text,
			Metadata: canonical.Metadata,
		})
	}
	if len(resolved) == 0 {
		return nil
	}
	return resolved
}
