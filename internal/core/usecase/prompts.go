package usecase

import (
	"fmt"
	"strings"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
)

const chatSystemPrompt = `You are a clinical guidelines assistant specialising in the NICE NG12 guideline: Suspected Cancer - Recognition and Referral.

STRICT GROUNDING RULES:
1. ONLY answer based on the NG12 guideline passages provided below. Do NOT use your general medical knowledge.
2. Every factual claim must cite a specific source using [Source N] format.
3. Be precise with age thresholds, action types, and clinical criteria.
4. If multiple sources are relevant, cite all of them.
5. When quoting criteria, include ALL conditions (age AND symptom AND duration etc.).
6. Use the conversation history for context, but always ground answers in the provided passages.
7. Never fabricate numbers. If a passage says "persistent" without defining duration, say "persistent (duration not specified)".
8. If you cannot fully answer with the evidence provided, acknowledge what you DO know from the passages, then state what is missing.`

const refuseResponse = `I don't have sufficient evidence in the NG12 guidelines to answer this question. The retrieved passages don't appear to be relevant enough to provide a grounded response.

Could you try:
- Asking about a specific cancer type (e.g., lung, breast, colorectal)
- Asking about a specific symptom (e.g., haemoptysis, dysphagia, haematuria)
- Asking about referral criteria for a particular age group or risk factor`

const qualifyTemplate = `Based on the limited evidence found in the NG12 guidelines, I can share the following, but please note this may not fully address your question:

%s

For a more complete answer, you may want to ask about a specific cancer type, symptom, or referral pathway.`

const smalltalkResponse = `Hello! I'm a clinical guidelines assistant specialising in the NICE NG12 guideline: Suspected Cancer — Recognition and Referral.

I can help you understand referral criteria, age thresholds, urgent investigation pathways, and safety-netting recommendations across all cancer types covered by NG12.

How can I help you today?`

const metaResponse = `I'm a clinical guidelines assistant specialising in the NICE NG12 guideline: Suspected Cancer — Recognition and Referral.

I can answer questions about which symptoms and risk factors trigger urgent referral for specific cancers, age thresholds, investigation pathways, referral timeframes, and safety-netting recommendations.

Important: I am not a doctor and I cannot provide a diagnosis or treatment advice. My answers are based solely on the published NG12 guideline content.`

const chitchatRedirectResponse = `That's outside what I can help with — I'm designed to answer questions about the NICE NG12 guideline for suspected cancer recognition and referral.

Try asking something like: "What symptoms warrant an urgent referral for lung cancer?".`

const outOfScopeResponse = `This question appears to fall outside the scope of the NG12 Suspected Cancer: Recognition and Referral guideline. NG12 covers criteria for referring patients with suspected cancer symptoms for urgent investigation or specialist assessment.

I can help with questions about which symptoms trigger urgent referral for specific cancer types, age thresholds and risk factors, the difference between urgent referral and urgent investigation, and safety netting recommendations.`

const safetyResponse = `I understand your concern, but I'm not able to provide emergency medical advice, confirm or rule out a cancer diagnosis, or advise you to skip professional medical care.

If you are experiencing severe, sudden, or worsening symptoms, please contact emergency services (999/911) or go to your nearest A&E immediately.

What I can help with is explaining the NG12 guideline criteria for referral and investigation. Would you like to ask about a specific symptom or referral pathway?`

const clarifyResponse = `To help you find the right information in the NG12 guideline, I need a bit more detail. Could you tell me:

1. Age — many referral thresholds are age-specific
2. Sex — some criteria differ by sex
3. Key symptoms — e.g. unexplained bleeding, persistent cough, lump, weight loss, difficulty swallowing, blood in urine
4. Duration — how long have the symptoms been present?
5. Smoking history — relevant for lung cancer referral criteria

The more specific you can be, the better I can match your question to the NG12 referral and investigation criteria.`

const noCitationsNote = "\n\n_Note: I was unable to provide specific guideline citations for this response. Please verify this information against the NG12 guideline directly._"

// cannedResponse maps every non-proceed input category to its fixed answer.
func cannedResponse(category domain.InputCategory) string {
	switch category {
	case domain.InputMeta:
		return metaResponse
	case domain.InputChitchatRedirect:
		return chitchatRedirectResponse
	case domain.InputSafetyUrgent:
		return safetyResponse
	case domain.InputNeedsClarification:
		return clarifyResponse
	case domain.InputMedicalOutOfScope:
		return outOfScopeResponse
	default:
		return smalltalkResponse
	}
}

const summarySystemPrompt = `You extract clinical information from conversations. Carry forward details from earlier messages. ONLY report what was explicitly stated by the user. Never infer or hallucinate details not mentioned. Use [None] for fields not mentioned anywhere.`

const querySummaryHeader = "\U0001F4CB **Understanding your question:**\n"

// buildSummaryPrompt asks the generator for a structured extraction of the
// clinical details in the conversation. Only earlier USER messages are
// included: assistant responses quote guideline thresholds that would be
// extracted as patient details.
func buildSummaryPrompt(history []domain.Turn, message string) string {
	var historyContext string
	if len(history) > 8 {
		history = history[len(history)-8:]
	}
	var userLines []string
	for _, turn := range history {
		if turn.Role != "user" {
			continue
		}
		content := turn.Content
		if len(content) > 200 {
			content = truncateText(content, 200) + "..."
		}
		userLines = append(userLines, "- "+content)
	}
	if len(userLines) > 0 {
		historyContext = "Previous user messages:\n" + strings.Join(userLines, "\n") + "\n\n"
	}

	return fmt.Sprintf(`Extract key clinical information from the conversation below.
Include details from BOTH the previous conversation AND the current question.
If the user mentioned age, gender, or symptoms in an earlier message, carry those forward.

STRICT RULES:
- ONLY include information explicitly stated by the user somewhere in this conversation
- Do NOT infer, guess, or hallucinate details never mentioned
- Do NOT use general medical knowledge to fill gaps
- If a field was NOT mentioned anywhere in the conversation, write [None]
- Include symptoms or conditions the user is ASKING ABOUT, not only symptoms they claim to have personally
- Include hypothetical ages or scenarios the user mentions (e.g. 'under 40', 'if I'm a smoker')

%sCurrent question: %s

Return a brief structured summary in this exact format:

Patient details: [any age, gender, or risk factors mentioned or asked about, otherwise None]
Symptoms: [any symptoms or conditions mentioned or asked about, otherwise None]
Duration/timing: [if mentioned anywhere in conversation, otherwise None]
Question: [what they're asking now]

Keep each field to one line, under 20 words.

Summary:`, historyContext, message)
}

// buildRewritePrompt asks the generator to turn a follow-up message into a
// standalone search query. The constraints keep it a query, not an answer.
func buildRewritePrompt(history []domain.Turn, message string, maxTurns int) string {
	return fmt.Sprintf(`Rewrite this message into a standalone search query for NICE NG12 guidelines.

RULES:
1. Do NOT add facts (ages, durations, symptoms) not in the conversation
2. Keep the user's exact medical terms (e.g., "haemoptysis" not "coughing blood")
3. If information is missing, keep the query general - do not guess
4. Under 20 words
5. Do NOT answer - only rewrite for search

Conversation:
%s

Message: %s

Query:`, formatHistory(history, maxTurns), message)
}

// formatHistory renders the most recent maxTurns messages; assistant turns
// are truncated to save prompt space.
func formatHistory(history []domain.Turn, maxTurns int) string {
	if maxTurns > 0 && len(history) > maxTurns {
		history = history[len(history)-maxTurns:]
	}
	if len(history) == 0 {
		return "(No previous conversation)"
	}

	lines := make([]string, 0, len(history))
	for _, turn := range history {
		role := "Assistant"
		content := turn.Content
		if turn.Role == "user" {
			role = "User"
		} else if len(content) > 200 {
			content = truncateText(content, 200) + "..."
		}
		lines = append(lines, role+": "+content)
	}
	return strings.Join(lines, "\n")
}

// formatChatContext renders ranked results into numbered context blocks.
func formatChatContext(results []domain.RankedResult) string {
	parts := make([]string, 0, len(results))
	for i, r := range results {
		section := sectionOf(r)
		if section == "" {
			section = "Part B"
		}
		header := fmt.Sprintf("[Source %d | Section %s | Page %s | %s | %s]",
			i+1, section, pageOf(r),
			orNA(r.Chunk.Metadata.CancerType), orNA(r.Chunk.Metadata.ActionType))
		parts = append(parts, header+"\n"+r.Chunk.Text)
	}
	return strings.Join(parts, "\n\n---\n\n")
}

func buildChatPrompt(message string, results []domain.RankedResult, history []domain.Turn, maxTurns int) string {
	return fmt.Sprintf(`NG12 Guideline Passages:

%s

---

Conversation History:
%s

---

Current Question: %s

---

Instructions:
- Answer using ONLY the guideline passages above
- Cite using [Source N] format for EVERY factual claim
- If the passages don't contain enough evidence, say so explicitly
- Be precise with clinical criteria (age, symptoms, action types)`,
		formatChatContext(results), formatHistory(history, maxTurns), message)
}

const assessmentSystemPrompt = `You are a clinical decision-support assistant applying the NICE NG12 guideline: Suspected Cancer - Recognition and Referral.

Given a patient record and guideline passages, assess the patient's cancer-risk referral needs. Ground every conclusion in the provided passages only; never use general medical knowledge. Return ONLY a JSON object with keys: risk_level, cancer_type, recommended_action, reasoning, matched_recommendations (array of {section, action_type, criteria_met, criteria_from_guideline}).`

func buildAssessmentPrompt(patient domain.PatientRecord, results []domain.RankedResult) string {
	return fmt.Sprintf(`Patient record:
- Age: %d
- Sex: %s
- Smoking history: %s
- Symptoms: %s
- Symptom duration (days): %d

NG12 Guideline Passages:

%s

Assess this patient against the passages above. Return ONLY the JSON object.`,
		patient.Age, patient.Gender, patient.SmokingHistory,
		strings.Join(patient.Symptoms, ", "), patient.SymptomDurationDays,
		formatChatContext(results))
}

// fallbackAnswer builds a deterministic grounded response when the
// text-generation collaborator is unavailable or fails.
func fallbackAnswer(results []domain.RankedResult) string {
	var b strings.Builder
	b.WriteString("The text-generation service is unavailable. Relevant guideline passages found:\n")
	for i, r := range results {
		section := sectionOf(r)
		if section == "" {
			section = "Part B"
		}
		excerpt := r.Chunk.Text
		if len(excerpt) > 150 {
			excerpt = truncateText(excerpt, 150) + "..."
		}
		fmt.Fprintf(&b, "\n[Source %d] Section %s (%s): %s\n",
			i+1, section, orNA(r.Chunk.Metadata.ActionType), excerpt)
	}
	return b.String()
}

func orNA(s string) string {
	if s == "" {
		return "N/A"
	}
	return s
}
