package domain

const SmokingNever = "Never Smoked"

// PatientRecord is the external read-only input to assessment-mode reranking.
type PatientRecord struct {
	PatientID           string   `json:"patient_id"`
	Name                string   `json:"name"`
	Age                 int      `json:"age"`
	Gender              string   `json:"gender"`
	SmokingHistory      string   `json:"smoking_history"`
	Symptoms            []string `json:"symptoms"`
	SymptomDurationDays int      `json:"symptom_duration_days"`
}

// Smoker reports whether the record carries any current or former smoking
// history.
func (p PatientRecord) Smoker() bool {
	return p.SmokingHistory != "" && p.SmokingHistory != SmokingNever
}
