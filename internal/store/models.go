package store

import "time"

type TriageLevel string

const (
	TriageUrgent      TriageLevel = "Urgent Care Needed"
	TriageDoctorVisit TriageLevel = "Doctor Visit Recommended"
	TriageSelfCare    TriageLevel = "Self-care Manageable"
)

type Severity string

const (
	SeverityHigh   Severity = "High"
	SeverityMedium Severity = "Medium"
	SeverityLow    Severity = "Low"
)

type User struct {
	ID         int64     `json:"-"`
	ExternalID string    `json:"id"` // Subject claim of the identity token
	Name       string    `json:"name"`
	Email      string    `json:"email"`
	Picture    string    `json:"picture"`
	CreatedAt  time.Time `json:"created_at"`
}

type Diagnosis struct {
	Condition        string   `json:"condition"`
	UncertaintyScore float64  `json:"uncertaintyScore"` // 0.0 to 1.0
	BriefDescription string   `json:"briefDescription"`
	Severity         Severity `json:"severity"`
}

type TestSuggestion struct {
	TestName  string `json:"testName"`
	Rationale string `json:"rationale"`
}

type SuggestedSpecialist struct {
	SpecialistName string `json:"specialistName"`
	Rationale      string `json:"rationale"`
}

type CausalPathway struct {
	Symptom     string `json:"symptom"`
	Condition   string `json:"condition"`
	Explanation string `json:"explanation"`
}

type SeverityAssessment struct {
	TriageLevel TriageLevel `json:"triageLevel"`
	Reasoning   string      `json:"reasoning"`
}

type Reasoning struct {
	PatientFriendly string `json:"patientFriendly"` // May contain markdown links
	Professional    string `json:"professional"`    // May contain markdown links
}

type AnalysisResult struct {
	Disclaimer            string                `json:"disclaimer"`
	SeverityAssessment    SeverityAssessment    `json:"severityAssessment"`
	DifferentialDiagnosis []Diagnosis           `json:"differentialDiagnosis"`
	SuggestedTests        []TestSuggestion      `json:"suggestedTests"`
	SuggestedSpecialists  []SuggestedSpecialist `json:"suggestedSpecialists"`
	CausalPathways        []CausalPathway       `json:"causalPathways"`
	Reasoning             Reasoning             `json:"reasoning"`
}

type PatientContext struct {
	Timeline    string `json:"timeline"`
	Medications string `json:"medications"`
	Lifestyle   string `json:"lifestyle"`
}

type SavedAnalysis struct {
	ID       int64          `json:"id"` // Creation time in Unix milliseconds
	UserID   int64          `json:"-"`
	Symptoms string         `json:"symptoms"`
	Result   AnalysisResult `json:"result"`
	Date     string         `json:"date"` // RFC 3339
}

type Preferences struct {
	Language string `json:"language"`
	Theme    string `json:"theme"` // "light" or "dark"
}
