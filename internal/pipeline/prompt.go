package pipeline

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"quantumlab/internal/models"
)

const summarySeparator = "\n---\n"

// clampText cuts s to at most limit bytes without splitting a UTF-8 rune,
// backing up to the previous rune boundary when the cut lands mid-sequence.
func clampText(s string, limit int) string {
	if limit <= 0 || len(s) <= limit {
		return s
	}
	cut := limit
	for cut > 0 && !utf8.RuneStart(s[cut]) {
		cut--
	}
	return s[:cut]
}

// AssemblePrompt builds the final synthesis prompt: reconciled patient data,
// all file summaries, the fixed instruction block naming every required
// system, and the recommendation catalog. The assembled text is clamped to
// charLimit as a final safety cut, discarding trailing characters.
func AssemblePrompt(patient models.PatientRecord, summaries []FileSummary, catalogList string, charLimit int) string {
	var b strings.Builder

	fmt.Fprintf(&b, "Patient: %s, age %s, BMI: %s\n\n", patient.Name, patient.Age, patient.BMI)

	b.WriteString("Lab report summaries:\n")
	for i, s := range summaries {
		if i > 0 {
			b.WriteString(summarySeparator)
		}
		b.WriteString(s.Text)
	}
	b.WriteString("\n\n")

	b.WriteString("Produce a global health analysis as a single JSON object, with no text outside the JSON. Use exactly this structure:\n")
	b.WriteString(`{
  "patient": {"name": "", "age": "", "sex": "", "weight_kg": "", "height_cm": "", "bmi": ""},
  "summary": "short overall summary",
  "systems": {`)
	for i, system := range models.RequiredSystems {
		if i > 0 {
			b.WriteString(", ")
		}
		fmt.Fprintf(&b, "%q: \"\"", system)
	}
	b.WriteString(`},
  "severity": "LOW | MEDIUM | HIGH",
  "recommendations": ["..."]
}
`)
	fmt.Fprintf(&b, "Every one of the %d system keys must be present. ", len(models.RequiredSystems))
	b.WriteString("Base the narrative only on the summaries above.\n")

	if catalogList != "" {
		b.WriteString("\nRecommend only items from this catalog:\n")
		b.WriteString(catalogList)
		b.WriteString("\n")
	}

	return clampText(b.String(), charLimit)
}
