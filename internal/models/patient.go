package models

// Defaults for patient fields that no report file managed to fill.
const (
	PatientNameUnknown = "unspecified"
	PatientFieldNA     = "N/A"
	PatientFieldZero   = "0"
)

// PatientRecord holds the reconciled patient metadata discovered across the
// report files of one archive. Weight and height are kept as numeric strings
// because source files mix numbers and text; BMI is derived after the whole
// batch has been processed.
type PatientRecord struct {
	Name   string `json:"name"`
	Age    string `json:"age"`
	Sex    string `json:"sex"`
	Weight string `json:"weight_kg"`
	Height string `json:"height_cm"`
	BMI    string `json:"bmi"`
}

// NewPatientRecord returns a record with every field at its default.
func NewPatientRecord() PatientRecord {
	return PatientRecord{
		Name:   PatientNameUnknown,
		Age:    PatientFieldNA,
		Sex:    PatientFieldNA,
		Weight: PatientFieldZero,
		Height: PatientFieldZero,
		BMI:    PatientFieldNA,
	}
}
