package usecase

import (
	"regexp"
	"strings"

	"github.com/clinassist/ng12-assistant/internal/core/domain"
)

// The input guardrail is a pure, deterministic priority cascade: an ordered
// list of predicates evaluated top-to-bottom, first match wins, with proceed
// as the guaranteed fallback. No external calls.

// Greetings, farewells, pleasantries.
var smalltalkPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)^(hi|hello|hey|howdy|hiya|yo)[\s!.,?]*$`),
	regexp.MustCompile(`(?i)^(hi|hello|hey)\s+there[\s!.,?]*$`),
	regexp.MustCompile(`(?i)^good\s+(morning|afternoon|evening|day)[\s!.,?]*$`),
	regexp.MustCompile(`(?i)^(thanks|thank\s*you|cheers|ta)[\s!.,?]*$`),
	regexp.MustCompile(`(?i)^(bye|goodbye|see\s*you|farewell)[\s!.,?]*$`),
	regexp.MustCompile(`(?i)^(ok|okay|sure|great|nice|cool|got\s*it)[\s!.,?]*$`),
	regexp.MustCompile(`(?i)^how\s+are\s+you(\s+doing)?[\s!.,?]*$`),
	regexp.MustCompile(`(?i)^how\s+are\s+you\s+today[\s!.,?]*$`),
	regexp.MustCompile(`(?i)^(are\s+)?you\s+there[\s!.,?]*$`),
	regexp.MustCompile(`(?i)^what'?s\s+up[\s!.,?]*$`),
	regexp.MustCompile(`(?i)^sup[\s!.,?]*$`),
	regexp.MustCompile(`(?i)^(good|fine|great)\s+thanks[\s!.,?]*$`),
	regexp.MustCompile(`(?i)^(lol|haha|hehe)[\s!.,?]*$`),
}

// Questions about the assistant itself.
var metaPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)who\s+are\s+you`),
	regexp.MustCompile(`(?i)what\s+are\s+you`),
	regexp.MustCompile(`(?i)what\s+can\s+you\s+do`),
	regexp.MustCompile(`(?i)how\s+do(es)?\s+(this|you)\s+work`),
	regexp.MustCompile(`(?i)what\s+is\s+this(\s+tool|\s+system|\s+assistant)?[\s?]*$`),
	regexp.MustCompile(`(?i)tell\s+me\s+about\s+(yourself|this\s+system)`),
	regexp.MustCompile(`(?i)what\s+do\s+you\s+know`),
	regexp.MustCompile(`(?i)^help[\s!?]*$`),
	regexp.MustCompile(`(?i)are\s+you\s+a\s+doctor`),
	regexp.MustCompile(`(?i)can\s+you\s+diagnose`),
}

// Non-medical chitchat: jokes, weather, time, sports, model trivia.
var chitchatPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)tell\s+me\s+a\s+joke`),
	regexp.MustCompile(`(?i)joke`),
	regexp.MustCompile(`(?i)weather`),
	regexp.MustCompile(`(?i)what\s*time\s+is\s+it`),
	regexp.MustCompile(`(?i)time\s+now`),
	regexp.MustCompile(`(?i)what('?s| is)\s+the\s+date`),
	regexp.MustCompile(`(?i)(sports?|football|soccer)\s+score`),
	regexp.MustCompile(`(?i)(remember|know)\s+my\s+name`),
	regexp.MustCompile(`(?i)what\s+(kind|type)\s+of\s+(ai|model|llm)`),
	regexp.MustCompile(`(?i)how\s+(were|are)\s+you\s+(built|made|created|trained)`),
	regexp.MustCompile(`(?i)explain\s+how\s+you\s+(were|are)\s+(built|made|created)`),
	regexp.MustCompile(`(?i)can\s+you\s+(explain|tell)\s+how\s+you\s+(were|are)\s+(built|made)`),
}

// Safety-critical queries: emergency care, diagnosis confirmation,
// self-treatment. Checked before the out-of-scope rules so distress language
// is never answered with a scope refusal.
var safetyUrgentPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\bemergency\s+(room|department)\b`),
	regexp.MustCompile(`(?i)\bgo\s+to\s+(the\s+)?(er|a&e)\b`),
	regexp.MustCompile(`(?i)\bshould\s+i\s+(go\s+to|visit)\s+(the\s+)?(er|a&e|emergency)\b`),
	regexp.MustCompile(`(?i)\bcall\s+(911|999|an?\s+ambulance)\b`),
	regexp.MustCompile(`(?i)\bskip\s+(seeing\s+)?(a\s+)?doctor\b`),
	regexp.MustCompile(`(?i)\bdefinitely\b.{0,20}\bcancer\b`),
	regexp.MustCompile(`(?i)\bconfirm\b.{0,30}\bcancer\b`),
	regexp.MustCompile(`(?i)\bcancer\b.{0,30}\bnot\s+(just\s+)?anxiety\b`),
	regexp.MustCompile(`(?i)\b(treat|manage)\b.{0,15}\b(myself|at\s+home|on\s+my\s+own)\b`),
	regexp.MustCompile(`(?i)\bself[\s-]?treat\b`),
}

// Vague symptom descriptions that need clarification before retrieval.
var vagueSymptomPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(feel(ing)?|felt)\s+(unwell|sick|ill|bad|off|wrong|funny|strange)\b`),
	regexp.MustCompile(`(?i)\bsomething\s+(is\s+|feels?\s+)?(wrong|off)\b`),
	regexp.MustCompile(`(?i)\bnot\s+feeling\s+(well|right|good|myself|great)\b`),
	regexp.MustCompile(`(?i)\b(been|feeling|very|so|really|quite)\s+(tired|exhausted|fatigued)\b`),
	regexp.MustCompile(`(?i)\b(tired|exhausted|fatigued)\s+(lately|recently|all\s+the\s+time)\b`),
	regexp.MustCompile(`(?i)\bis\s+(that|this|it)\s+cancer\b`),
	regexp.MustCompile(`(?i)\bwhat\s+should\s+i\s+do\b`),
}

// Specific guideline symptoms; their presence skips needs_clarification.
var specificSymptomTerms = []string{
	"haematuria", "hematuria", "dysphagia", "haemoptysis", "hemoptysis",
	"lymphadenopathy", "hoarseness", "jaundice", "anaemia", "anemia",
	"dyspepsia", "night sweats", "rectal bleeding", "breast lump",
	"weight loss", "abdominal mass", "abdominal pain", "chest pain",
	"haematemesis", "mole", "lesion", "ulcer",
	"bruising", "petechiae", "hepatomegaly", "splenomegaly",
	"ascites", "pleural effusion", "bone pain", "lump",
}

// Medical signal words; their presence disables the smalltalk and chitchat
// rules so a clinical question wrapped in a greeting still proceeds.
var medicalSignalTerms = []string{
	"referral", "refer", "urgent", "symptom", "cancer",
	"haemoptysis", "dysphagia", "haematuria", "lump",
	"hoarseness", "mole", "bleeding", "weight loss",
	"investigation", "pathway", "guideline", "ng12",
	"suspected", "criteria", "threshold", "safety net",
	"age", "diagnosis", "rectal", "breast", "lung",
	"colorectal", "prostate", "ovarian", "pancreatic",
	"oesophageal", "bladder", "renal", "melanoma",
}

// Treatment, prognosis, and self-diagnosis language outside the guideline's
// recognition-and-referral scope.
var (
	treatmentTerms = []string{
		"chemotherapy", "radiotherapy", "immunotherapy", "surgery",
		"medication", "drug", "cure", "therapy", "treat",
	}
	prognosisTerms = []string{
		"prognosis", "survival rate", "life expectancy", "outcome",
		"mortality", "survive",
	}
	diagnosisPhrases = []string{
		"do i have cancer", "diagnose me", "is this cancer",
		"could this be cancer",
	}
	// Referral context overrides the out-of-scope classification.
	referralContextTerms = []string{
		"referral", "refer", "investigation", "criteria", "symptom", "sign",
	}
)

func containsAny(text string, terms []string) bool {
	for _, term := range terms {
		if strings.Contains(text, term) {
			return true
		}
	}
	return false
}

func matchesAny(text string, patterns []*regexp.Regexp) bool {
	for _, p := range patterns {
		if p.MatchString(text) {
			return true
		}
	}
	return false
}

// ClassifyInput classifies a chat message before retrieval is attempted.
// Non-proceed categories short-circuit the pipeline.
func ClassifyInput(message string) domain.InputCategory {
	text := strings.TrimSpace(message)
	textLower := strings.ToLower(text)
	hasMedical := containsAny(textLower, medicalSignalTerms)

	if !hasMedical && matchesAny(text, smalltalkPatterns) {
		return domain.InputSmalltalk
	}

	if matchesAny(text, metaPatterns) {
		return domain.InputMeta
	}

	if !hasMedical && matchesAny(text, chitchatPatterns) {
		return domain.InputChitchatRedirect
	}

	if matchesAny(text, safetyUrgentPatterns) {
		return domain.InputSafetyUrgent
	}

	outOfScope := containsAny(textLower, treatmentTerms) ||
		containsAny(textLower, prognosisTerms) ||
		containsAny(textLower, diagnosisPhrases)
	if outOfScope && !containsAny(textLower, referralContextTerms) {
		return domain.InputMedicalOutOfScope
	}

	if matchesAny(text, vagueSymptomPatterns) && !containsAny(textLower, specificSymptomTerms) {
		return domain.InputNeedsClarification
	}

	return domain.InputProceed
}
