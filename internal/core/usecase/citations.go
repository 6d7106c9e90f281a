package usecase

import (
	"fmt"
	"regexp"
	"sort"
	"strconv"
	"strings"
	"unicode/utf8"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
)

// truncateText cuts s to at most max bytes without splitting a multi-byte
// rune. Guideline text carries em-dashes and similar characters, so a plain
// byte slice could leave an invalid UTF-8 tail.
func truncateText(s string, max int) string {
	if len(s) <= max {
		return s
	}
	cut := max
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

var (
	sourceSingleRE = regexp.MustCompile(`\[Source\s*(\d+)\]`)
	sourceMultiRE  = regexp.MustCompile(`\[Source\s*([\d,\s]+)\]`)
)

// sectionOf returns the chunk's section, falling back to the canonical
// metadata attached at resolve time. Empty for symptom-index chunks with no
// canonical section.
func sectionOf(r domain.RankedResult) string {
	if r.Chunk.Metadata.Section != "" {
		return r.Chunk.Metadata.Section
	}
	if r.CanonicalMetadata != nil {
		return r.CanonicalMetadata.Section
	}
	return ""
}

func pageNumOf(r domain.RankedResult) int {
	if r.Chunk.Metadata.Page != 0 {
		return r.Chunk.Metadata.Page
	}
	if r.CanonicalMetadata != nil {
		return r.CanonicalMetadata.Page
	}
	return 0
}

// pageOf renders the page number for prompt headers, "?" when unknown.
func pageOf(r domain.RankedResult) string {
	if p := pageNumOf(r); p != 0 {
		return strconv.Itoa(p)
	}
	return "?"
}

// BuildCitations extracts [Source N] references from answer and maps them
// back to the ranked results. Handles both single ([Source 1]) and
// multi-source ([Source 1, 2, 3]) markers. If the answer carries no markers
// at all it returns nil rather than fabricating citations.
func BuildCitations(results []domain.RankedResult, answer string) []domain.Citation {
	cited := map[int]bool{}

	for _, m := range sourceSingleRE.FindAllStringSubmatch(answer, -1) {
		if idx, err := strconv.Atoi(m[1]); err == nil && idx >= 1 && idx <= len(results) {
			cited[idx-1] = true
		}
	}
	for _, m := range sourceMultiRE.FindAllStringSubmatch(answer, -1) {
		for _, numStr := range strings.Split(m[1], ",") {
			numStr = strings.TrimSpace(numStr)
			if idx, err := strconv.Atoi(numStr); err == nil && idx >= 1 && idx <= len(results) {
				cited[idx-1] = true
			}
		}
	}

	if len(cited) == 0 {
		return nil
	}

	indices := make([]int, 0, len(cited))
	for i := range cited {
		indices = append(indices, i)
	}
	sort.Ints(indices)

	citations := make([]domain.Citation, 0, len(indices))
	for _, i := range indices {
		r := results[i]
		section := sectionOf(r)
		if section == "" {
			section = "Part B"
		}
		chunkID := r.Chunk.Metadata.ChunkID
		if chunkID == "" {
			chunkID = "unknown"
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

// citationRef builds a human-readable reference for a result:
// "NG12 §1.1.1, p.9" for rule chunks, "NG12 Part B, p.43" for symptom-index
// chunks.
func citationRef(r domain.RankedResult) string {
	page := pageOf(r)
	if r.Chunk.DocType == domain.DocTypeSymptomIndex {
		return "NG12 Part B, p." + page
	}
	if section := sectionOf(r); section != "" {
		return fmt.Sprintf("NG12 §%s, p.%s", section, page)
	}
	return "NG12 p." + page
}

// CleanAnswerSources replaces [Source N] and [Source N, N, ...] markers in
// the answer with readable references. Markers pointing outside the result
// set are left untouched.
func CleanAnswerSources(answer string, results []domain.RankedResult) string {
	answer = sourceMultiRE.ReplaceAllStringFunc(answer, func(match string) string {
		inner := sourceMultiRE.FindStringSubmatch(match)[1]
		var refs []string
		for _, numStr := range strings.Split(inner, ",") {
			numStr = strings.TrimSpace(numStr)
			if idx, err := strconv.Atoi(numStr); err == nil && idx >= 1 && idx <= len(results) {
				refs = append(refs, citationRef(results[idx-1]))
			}
		}
		if len(refs) == 0 {
			return match
		}
		return "[" + strings.Join(refs, "; ") + "]"
	})
	return sourceSingleRE.ReplaceAllStringFunc(answer, func(match string) string {
		inner := sourceSingleRE.FindStringSubmatch(match)[1]
		idx, err := strconv.Atoi(inner)
		if err != nil || idx < 1 || idx > len(results) {
			return match
		}
		return "[" + citationRef(results[idx-1]) + "]"
	})
}
