package domain

type DocType string

const (
	DocTypeRuleSearch    DocType = "rule_search"
	DocTypeRuleCanonical DocType = "rule_canonical"
	DocTypeSymptomIndex  DocType = "symptom_index"
)

// ChunkMetadata carries the structured fields extracted at ingestion time.
// Every field is optional: a zero value (or nil pointer for the age bounds)
// means the field was absent on the indexed chunk.
type ChunkMetadata struct {
	ChunkID           string   `json:"chunk_id,omitempty"`
	Section           string   `json:"section,omitempty"`
	Page              int      `json:"page,omitempty"`
	PageEnd           int      `json:"page_end,omitempty"`
	CancerType        string   `json:"cancer_type,omitempty"`
	ActionType        string   `json:"action_type,omitempty"`
	AgeMin            *int     `json:"age_min,omitempty"`
	AgeMax            *int     `json:"age_max,omitempty"`
	SymptomKeywords   []string `json:"symptom_keywords,omitempty"`
	RiskFactorSmoking bool     `json:"risk_factor_smoking,omitempty"`
	Urgency           string   `json:"urgency,omitempty"`
	GenderSpecific    string   `json:"gender_specific,omitempty"`
	System            string   `json:"system,omitempty"`
	SubTitle          string   `json:"sub_title,omitempty"`
	Symptom           string   `json:"symptom,omitempty"`
	PossibleCancer    string   `json:"possible_cancer,omitempty"`
	References        []string `json:"references,omitempty"`
	RuleID            string   `json:"rule_id,omitempty"`
}

// Chunk is an indexed unit of guideline content. Chunks are produced by the
// external ingestion pipeline and are read-only inside this service.
type Chunk struct {
	ID       string        `json:"chunk_id"`
	DocType  DocType       `json:"doc_type"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// Candidate is a chunk scored during one retrieval call. The score starts as
// the base similarity returned by the evidence store and is adjusted by
// exactly one reranking strategy before truncation.
type Candidate struct {
	Chunk Chunk   `json:"chunk"`
	Score float64 `json:"score"`
}

// ReferencedCanonical is one resolved cross-reference from a symptom-index
// entry back into the canonical corpus.
type ReferencedCanonical struct {
	RuleID   string        `json:"rule_id"`
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

// RankedResult is a reranked, truncated candidate augmented with resolved
// canonical text. It is immutable after construction.
type RankedResult struct {
	Candidate
	CanonicalText        string                `json:"canonical_text,omitempty"`
	CanonicalMetadata    *ChunkMetadata        `json:"canonical_metadata,omitempty"`
	ReferencedCanonicals []ReferencedCanonical `json:"referenced_canonicals,omitempty"`
}
