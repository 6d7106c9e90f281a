package usecase

import (
	"strings"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
)

// Clinical terms looked for in chunk text when deriving a session topic.
// Covers symptoms, investigation types, and cancer-type names so the topic
// string is useful when prepended to a follow-up query.
var clinicalTerms = []string{
	"haemoptysis", "hemoptysis", "dysphagia", "haematuria", "hematuria",
	"lymphadenopathy", "hoarseness", "breast lump", "weight loss",
	"chest x-ray", "referral", "investigation", "endoscopy",
	"ultrasound", "anaemia", "jaundice",
	"lung", "breast", "colorectal", "prostate", "skin", "melanoma",
	"sarcoma", "leukaemia", "lymphoma", "myeloma", "pancreatic",
	"ovarian", "bladder", "renal", "testicular", "thyroid", "brain",
}

// cancer_type metadata values that label support or preamble sections
// rather than an actual cancer type. Excluded from topic derivation.
var nonCancerTypes = map[string]bool{
	"General":                         true,
	"Patient information and support": true,
	"Safety netting":                  true,
	"Overview":                        true,
	"Introduction":                    true,
	"N/A":                             true,
	"":                                true,
}

// DeriveTopic builds a space-separated topic string from retrieved chunks:
// the most common cancer type plus up to two clinical keywords found in the
// chunk text. Generic support chunks are skipped unless nothing else
// remains. Returns "general" when no signal is found and "" for no chunks.
func DeriveTopic(chunks []domain.Chunk) string {
	if len(chunks) == 0 {
		return ""
	}

	relevant := make([]domain.Chunk, 0, len(chunks))
	for _, c := range chunks {
		if !nonCancerTypes[c.Metadata.CancerType] && c.Metadata.Section != "general" {
			relevant = append(relevant, c)
		}
	}
	if len(relevant) == 0 {
		relevant = chunks
	}

	counts := map[string]int{}
	order := []string{}
	for _, c := range relevant {
		ct := c.Metadata.CancerType
		if nonCancerTypes[ct] {
			continue
		}
		if counts[ct] == 0 {
			order = append(order, ct)
		}
		counts[ct]++
	}
	topCancer := ""
	for _, ct := range order {
		if topCancer == "" || counts[ct] > counts[topCancer] {
			topCancer = ct
		}
	}

	var keywords []string
	for _, c := range relevant {
		text := strings.ToLower(c.Text)
		for _, term := range clinicalTerms {
			if strings.Contains(text, term) && !containsString(keywords, term) {
				keywords = append(keywords, term)
				if len(keywords) >= 2 {
					break
				}
			}
		}
		if len(keywords) >= 2 {
			break
		}
	}

	var parts []string
	if topCancer != "" {
		parts = append(parts, topCancer)
	}
	parts = append(parts, keywords...)
	if len(parts) == 0 {
		return "general"
	}
	return strings.Join(parts, " ")
}

func containsString(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
