package domain

import "time"

// QueryStrategy labels which tier of the query-building cascade produced the
// retrieval query.
type QueryStrategy string

const (
	StrategyDirect        QueryStrategy = "direct"
	StrategyTopicEnriched QueryStrategy = "topic_enriched"
	StrategyLLMRewrite    QueryStrategy = "llm_rewrite"
)

// InputCategory is the input guardrail's classification of a chat message.
// Exactly one category is always produced; the cascade falls back to proceed.
type InputCategory string

const (
	InputSmalltalk          InputCategory = "smalltalk"
	InputMeta               InputCategory = "meta"
	InputChitchatRedirect   InputCategory = "chitchat_redirect"
	InputSafetyUrgent       InputCategory = "safety_urgent"
	InputMedicalOutOfScope  InputCategory = "medical_out_of_scope"
	InputNeedsClarification InputCategory = "needs_clarification"
	InputProceed            InputCategory = "proceed"
)

// SufficiencyTier classifies the final ranked result set and drives routing.
type SufficiencyTier string

const (
	TierSufficient SufficiencyTier = "sufficient"
	TierWeak       SufficiencyTier = "weak"
	TierNone       SufficiencyTier = "none"
	TierOutOfScope SufficiencyTier = "out_of_scope"
)

// RerankMode selects which of the two deterministic reranking strategies is
// applied to a candidate pool. The two strategies never run on the same pool.
type RerankMode string

const (
	ModeAssessment RerankMode = "assessment"
	ModeChat       RerankMode = "chat"
)

// Turn is one message in a session's append-only history.
type Turn struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// Citation references a specific guideline chunk cited by a generated answer.
type Citation struct {
	Source  string `json:"source"`
	Section string `json:"section"`
	Page    int    `json:"page"`
	ChunkID string `json:"chunk_id"`
	Excerpt string `json:"excerpt"`
}

// ScoreBreakdown summarises retrieval quality for debugging and auditing.
type ScoreBreakdown struct {
	Top1Score     float64 `json:"top1_score"`
	MeanScore     float64 `json:"mean_score"`
	Above035Count int     `json:"above_035_count"`
	TotalResults  int     `json:"total_results"`
}

// ChatResult is the routing outcome of one conversational turn.
type ChatResult struct {
	SessionID     string          `json:"session_id"`
	Answer        string          `json:"answer"`
	Citations     []Citation      `json:"citations"`
	InputCategory InputCategory   `json:"input_category"`
	Tier          SufficiencyTier `json:"sufficiency_tier,omitempty"`
	Strategy      QueryStrategy   `json:"query_strategy,omitempty"`
	SearchQuery   string          `json:"search_query,omitempty"`
	QuerySummary  string          `json:"query_summary,omitempty"`
	Results       []RankedResult  `json:"results,omitempty"`
	Scores        *ScoreBreakdown `json:"score_breakdown,omitempty"`
}

// SessionHistory is a read-only view of one session's stored conversation.
type SessionHistory struct {
	SessionID string `json:"session_id"`
	History   []Turn `json:"history"`
	Topic     string `json:"topic"`
}

// PatientSummary is the directory listing entry for one patient.
type PatientSummary struct {
	PatientID       string `json:"patient_id"`
	Name            string `json:"name"`
	SymptomsSummary string `json:"symptoms_summary"`
}

// MatchedRecommendation is one guideline recommendation the assessment
// matched against the patient.
type MatchedRecommendation struct {
	Section               string `json:"section"`
	ActionType            string `json:"action_type"`
	CriteriaMet           string `json:"criteria_met"`
	CriteriaFromGuideline string `json:"criteria_from_guideline,omitempty"`
}

// Assessment is the structured risk-assessment output drafted by the
// text-generation collaborator (or the deterministic fallback).
type Assessment struct {
	RiskLevel              string                  `json:"risk_level"`
	CancerType             string                  `json:"cancer_type"`
	RecommendedAction      string                  `json:"recommended_action"`
	Reasoning              string                  `json:"reasoning"`
	MatchedRecommendations []MatchedRecommendation `json:"matched_recommendations"`
}

// AssessResult is the full outcome of one patient assessment.
type AssessResult struct {
	Patient    PatientRecord  `json:"patient"`
	Assessment Assessment     `json:"assessment"`
	Citations  []Citation     `json:"citations"`
	Results    []RankedResult `json:"results,omitempty"`
}

// DecisionEvent is the audit record published after every terminal routing
// decision.
type DecisionEvent struct {
	ID        string          `json:"id"`
	Kind      string          `json:"kind"`
	SessionID string          `json:"session_id,omitempty"`
	PatientID string          `json:"patient_id,omitempty"`
	Category  InputCategory   `json:"input_category,omitempty"`
	Tier      SufficiencyTier `json:"sufficiency_tier,omitempty"`
	Strategy  QueryStrategy   `json:"query_strategy,omitempty"`
	Citations int             `json:"citations"`
	CreatedAt time.Time       `json:"created_at"`
}
