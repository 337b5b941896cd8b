package models

import "time"

// Severity levels reported by the synthesis step. The upstream model's value
// is stored as received; callers should treat unknown strings as unclassified.
const (
	SeverityLow    = "LOW"
	SeverityMedium = "MEDIUM"
	SeverityHigh   = "HIGH"
)

// RequiredSystems is the fixed set of physiological systems every analysis
// must address. SchemaComplete fills any the model left out.
var RequiredSystems = []string{
	"hepatic",
	"cardiovascular",
	"renal",
	"endocrine",
	"digestive",
	"immunologic",
	"skeletal",
	"neurologic",
	"respiratory",
	"muscular",
	"hematologic",
	"other",
}

// SystemPlaceholder is stored for systems the model did not cover.
const SystemPlaceholder = "No significant alterations detected in this system."

// Analysis is the structured result returned by the synthesis call.
// Severity and Recommendations are passed through exactly as the model
// produced them, including when malformed.
type Analysis struct {
	Patient         PatientRecord     `json:"patient"`
	Summary         string            `json:"summary"`
	Systems         map[string]string `json:"systems"`
	Severity        string            `json:"severity"`
	Recommendations []string          `json:"recommendations"`
}

// SchemaComplete guarantees the per-system map carries every required key,
// inserting the placeholder for missing ones. Existing entries are untouched.
func (a *Analysis) SchemaComplete() {
	if a.Systems == nil {
		a.Systems = make(map[string]string, len(RequiredSystems))
	}
	for _, system := range RequiredSystems {
		if _, ok := a.Systems[system]; !ok {
			a.Systems[system] = SystemPlaceholder
		}
	}
}

// Exam is the persisted outcome of one analyzed archive. Records are
// immutable once inserted.
type Exam struct {
	ID        int64         `json:"id"`
	UserID    int64         `json:"user_id"`
	FileName  string        `json:"file_name"`
	Patient   PatientRecord `json:"patient"`
	Analysis  Analysis      `json:"analysis"`
	Severity  string        `json:"severity"`
	CreatedAt time.Time     `json:"created_at"`
}
