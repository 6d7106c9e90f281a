package usecase

import (
	"strings"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
)

// Topics the guideline does not cover; a question touching them is out of
// scope regardless of retrieval scores.
var outOfScopeTerms = []string{
	"treatment", "chemotherapy", "prognosis", "survival rate",
	"medication", "drug", "cure", "surgery", "radiotherapy",
	"immunotherapy", "dosage", "side effect", "stage", "staging",
	"metastasis", "palliative",
}

// Recognition-and-referral vocabulary that overrides the out-of-scope check.
var inScopeTerms = []string{
	"referral", "refer", "investigation", "symptom", "recognition",
	"criteria", "threshold", "age", "guideline", "ng12",
	"suspected cancer", "pathway", "urgent", "safety net",
}

// Sufficiency thresholds. The tiers deliberately separate "nothing relevant"
// from "marginally relevant" from "strong evidence" because each routes to a
// different response template.
const (
	scoreFloor     = 0.25
	scoreGood      = 0.40
	scoreWeakBest  = 0.35
	scoreStrongTop = 0.50
)

// ClassifySufficiency classifies the final ranked result set. The
// out-of-scope keyword check against the original message runs first and
// wins over any score.
func ClassifySufficiency(message string, results []domain.RankedResult) domain.SufficiencyTier {
	msgLower := strings.ToLower(message)
	if containsAny(msgLower, outOfScopeTerms) && !containsAny(msgLower, inScopeTerms) {
		return domain.TierOutOfScope
	}
	return classifyEvidence(results)
}

func classifyEvidence(results []domain.RankedResult) domain.SufficiencyTier {
	if len(results) == 0 {
		return domain.TierNone
	}

	best := results[0].Score
	good := 0
	allBelowFloor := true
	for _, r := range results {
		if r.Score > best {
			best = r.Score
		}
		if r.Score > scoreGood {
			good++
		}
		if r.Score >= scoreFloor {
			allBelowFloor = false
		}
	}

	if allBelowFloor {
		return domain.TierNone
	}
	if good == 0 {
		if best < scoreWeakBest {
			return domain.TierNone
		}
		return domain.TierWeak
	}
	if good <= 2 && best < scoreStrongTop {
		return domain.TierWeak
	}
	return domain.TierSufficient
}

// Common stop-words excluded from the lexical overlap guard.
var stopWords = map[string]struct{}{
	"the": {}, "a": {}, "an": {}, "is": {}, "are": {}, "was": {}, "were": {},
	"in": {}, "on": {}, "at": {}, "to": {}, "for": {}, "of": {}, "and": {},
	"or": {}, "with": {}, "what": {}, "how": {}, "does": {}, "do": {},
	"can": {}, "about": {}, "tell": {}, "me": {}, "that": {}, "this": {},
	"it": {}, "be": {}, "not": {}, "no": {}, "by": {}, "from": {}, "but": {},
	"if": {}, "so": {}, "my": {}, "you": {}, "your": {}, "i": {}, "we": {},
	"they": {}, "he": {}, "she": {},
}

// HasLexicalOverlap reports whether any meaningful word of text appears in
// at least one result's text. Used by the chat pipeline to downgrade
// sufficient/weak tiers when the retrieved evidence shares no vocabulary
// with the query at all.
func HasLexicalOverlap(text string, results []domain.RankedResult) bool {
	words := make([]string, 0, 8)
	for _, w := range strings.Fields(strings.ToLower(text)) {
		if _, stop := stopWords[w]; !stop {
			words = append(words, w)
		}
	}
	if len(words) == 0 {
		return true
	}

	for _, r := range results {
		chunkLower := strings.ToLower(r.Chunk.Text)
		for _, w := range words {
			if strings.Contains(chunkLower, w) {
				return true
			}
		}
	}
	return false
}
