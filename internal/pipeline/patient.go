package pipeline

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"quantumlab/internal/models"
)

// PatientCandidates holds the field values one file proposes. Empty strings
// mean the file offered nothing for that field.
type PatientCandidates struct {
	Name   string
	Age    string
	Sex    string
	Weight string
	Height string
}

// Reconciler accumulates patient metadata across files with first-writer-wins
// precedence. It is owned by a single goroutine: workers return candidates and
// the scheduler applies them in file order, so no locking is needed and the
// outcome is deterministic for a given file ordering.
type Reconciler struct {
	record models.PatientRecord
}

// NewReconciler starts from the default (all-unset) patient record.
func NewReconciler() *Reconciler {
	return &Reconciler{record: models.NewPatientRecord()}
}

// Apply merges one file's candidates. A field set to a non-default value is
// never overwritten by a later file.
func (r *Reconciler) Apply(c PatientCandidates) {
	if r.record.Name == models.PatientNameUnknown && c.Name != "" {
		r.record.Name = c.Name
	}
	if r.record.Age == models.PatientFieldNA && c.Age != "" {
		r.record.Age = c.Age
	}
	if r.record.Sex == models.PatientFieldNA && c.Sex != "" {
		r.record.Sex = c.Sex
	}
	if r.record.Weight == models.PatientFieldZero && c.Weight != "" {
		r.record.Weight = c.Weight
	}
	if r.record.Height == models.PatientFieldZero && c.Height != "" {
		r.record.Height = c.Height
	}
}

// Finalize computes BMI from weight and height once all files are processed.
// Either value missing or zero leaves BMI at its default.
func (r *Reconciler) Finalize() models.PatientRecord {
	weight, _ := strconv.ParseFloat(strings.TrimSpace(r.record.Weight), 64)
	height, _ := strconv.ParseFloat(strings.TrimSpace(r.record.Height), 64)
	if weight > 0 && height > 0 {
		bmi := weight / ((height / 100) * (height / 100))
		r.record.BMI = strconv.FormatFloat(bmi, 'f', 1, 64)
	}
	return r.record
}

// Record returns the current state of the accumulated record.
func (r *Reconciler) Record() models.PatientRecord {
	return r.record
}

// Ordered alias lists for JSON documents; the first present, non-empty value
// wins within a single file.
var (
	nameAliases = []string{
		"paciente", "nombre", "name", "patient",
		"PatientName", "Nombre del Paciente", "nombre_paciente",
		"Nombre", "fullName", "full_name", "Patient", "Patient Name",
	}
	ageAliases    = []string{"edad", "age", "Edad", "Age"}
	sexAliases    = []string{"sexo", "gender", "Sexo", "Gender", "sexo_biologico"}
	weightAliases = []string{"peso", "weight", "Peso", "Weight"}
	heightAliases = []string{"estatura", "height", "Estatura", "Height"}
)

// ExtractJSONCandidates pulls patient fields from a parsed JSON object using
// the ordered alias lists.
func ExtractJSONCandidates(fields map[string]interface{}) PatientCandidates {
	var c PatientCandidates
	if fields == nil {
		return c
	}
	c.Name = firstStringAlias(fields, nameAliases)
	c.Age = firstStringAlias(fields, ageAliases)
	c.Sex = firstStringAlias(fields, sexAliases)
	c.Weight = firstNumericAlias(fields, weightAliases)
	c.Height = firstNumericAlias(fields, heightAliases)
	return c
}

func firstStringAlias(fields map[string]interface{}, aliases []string) string {
	for _, alias := range aliases {
		val, ok := fields[alias]
		if !ok {
			continue
		}
		s := stringify(val)
		if s != "" {
			return s
		}
	}
	return ""
}

func firstNumericAlias(fields map[string]interface{}, aliases []string) string {
	for _, alias := range aliases {
		val, ok := fields[alias]
		if !ok {
			continue
		}
		num, err := strconv.ParseFloat(stringify(val), 64)
		if err != nil || num <= 0 {
			continue
		}
		return strconv.FormatFloat(num, 'f', -1, 64)
	}
	return ""
}

func stringify(val interface{}) string {
	switch v := val.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return ""
	case nil:
		return ""
	default:
		return strings.TrimSpace(fmt.Sprintf("%v", v))
	}
}

// Regular expressions applied over the plain-text rendering of HTML reports.
var (
	htmlNameRe      = regexp.MustCompile(`(?i)(?:Nombre|Name)[:\s]*([^,;\n]+)`)
	htmlAgeRe       = regexp.MustCompile(`(?i)(?:Edad|Age)[:\s]*([0-9]+)`)
	htmlSexRe       = regexp.MustCompile(`(?i)(?:Sexo|Sex|Gender)[:\s]*([^\s,;\n]+)`)
	htmlWeightParen = regexp.MustCompile(`(?i)\(.*?([0-9]+)kg`)
	htmlWeightPlain = regexp.MustCompile(`(?i)([0-9]+)\s*kg`)
	htmlHeightParen = regexp.MustCompile(`(?i)\(.*?([0-9]+)cm`)
	htmlHeightPlain = regexp.MustCompile(`(?i)([0-9]+)\s*cm`)
)

// ExtractHTMLCandidates pulls patient fields from tag-stripped report text.
func ExtractHTMLCandidates(text string) PatientCandidates {
	var c PatientCandidates
	if m := htmlNameRe.FindStringSubmatch(text); m != nil {
		c.Name = strings.TrimSpace(m[1])
	}
	if m := htmlAgeRe.FindStringSubmatch(text); m != nil {
		c.Age = m[1]
	}
	if m := htmlSexRe.FindStringSubmatch(text); m != nil {
		c.Sex = strings.TrimSpace(m[1])
	}
	if m := firstMatch(text, htmlWeightParen, htmlWeightPlain); m != "" {
		c.Weight = m
	}
	if m := firstMatch(text, htmlHeightParen, htmlHeightPlain); m != "" {
		c.Height = m
	}
	return c
}

func firstMatch(text string, patterns ...*regexp.Regexp) string {
	for _, re := range patterns {
		if m := re.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// CandidatesFor extracts patient candidates from a classified file.
func CandidatesFor(file SourceFile) PatientCandidates {
	switch file.Kind {
	case KindJSON:
		return ExtractJSONCandidates(file.Fields)
	case KindHTML:
		return ExtractHTMLCandidates(file.Text)
	default:
		return PatientCandidates{}
	}
}
