package extract

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownType is returned for a term-list category that is not one of
// the five entity types.
var ErrUnknownType = errors.New("unknown entity type")

// Type is a dictionary entity category.
type Type int

// Entity types, in match-order priority.
const (
	TypeDisease Type = iota
	TypeMedication
	TypeSymptom
	TypeLabTest
	TypeProcedure
	numTypes
)

var typeNames = [...]string{
	TypeDisease:    "DISEASE",
	TypeMedication: "MEDICATION",
	TypeSymptom:    "SYMPTOM",
	TypeLabTest:    "LAB_TEST",
	TypeProcedure:  "PROCEDURE",
}

// Types lists all entity types in order.
func Types() []Type {
	out := make([]Type, numTypes)
	for i := range out {
		out[i] = Type(i)
	}
	return out
}

func (t Type) String() string {
	if t >= 0 && t < numTypes {
		return typeNames[t]
	}
	return fmt.Sprintf("Type(%d)", int(t))
}

// ParseType parses a type name. Matching ignores case, and spaces or
// hyphens are read as underscores ("lab test" → LAB_TEST).
func ParseType(s string) (Type, error) {
	norm := strings.ToUpper(strings.TrimSpace(s))
	norm = strings.NewReplacer(" ", "_", "-", "_").Replace(norm)
	for i, n := range typeNames {
		if n == norm {
			return Type(i), nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
}

// MarshalText encodes the type by name.
func (t Type) MarshalText() ([]byte, error) { return []byte(t.String()), nil }

// UnmarshalText decodes a type name.
func (t *Type) UnmarshalText(b []byte) error {
	v, err := ParseType(string(b))
	if err != nil {
		return err
	}
	*t = v
	return nil
}

// Terms holds the curated term list for each type.
type Terms map[Type][]string

// DefaultTerms returns a fresh copy of the built-in term lists. Several
// terms appear under more than one type on purpose (MRI, CT scan, Anxiety).
func DefaultTerms() Terms {
	return Terms{
		TypeDisease: {
			"Diabetes", "Hypertension", "Asthma", "COVID-19", "Pneumonia",
			"Tuberculosis", "Malaria", "Cancer", "Stroke", "Heart Disease",
			"Kidney Failure", "HIV", "Hepatitis B", "Hepatitis C",
			"Arthritis", "Depression", "Anxiety", "Migraine",
			"Thyroid Disorder", "Obesity", "Epilepsy", "Alzheimer's",
		},
		TypeMedication: {
			"Metformin", "Paracetamol", "Insulin", "Aspirin", "Ibuprofen",
			"Amoxicillin", "Azithromycin", "Atorvastatin", "Omeprazole",
			"Losartan", "Hydrochlorothiazide", "Prednisone", "Warfarin",
			"Metoprolol", "Salbutamol", "Diclofenac", "Levothyroxine",
			"Ciprofloxacin", "Doxycycline", "Tramadol",
		},
		TypeSymptom: {
			"Fever", "Cough", "Headache", "Fatigue", "Chest pain",
			"Shortness of breath", "Nausea", "Vomiting", "Dizziness",
			"Sore throat", "Runny nose", "Diarrhea", "Back pain",
			"Joint pain", "Swelling", "Rash", "Anxiety",
			"Palpitations", "Weight loss", "Loss of appetite",
		},
		TypeLabTest: {
			"Blood Glucose", "WBC Count", "Hemoglobin", "Creatinine",
			"Platelet Count", "ECG", "MRI", "CT scan", "X-ray",
			"Liver Function Test", "Kidney Function Test", "Urinalysis",
			"HbA1c", "Cholesterol", "Triglycerides", "Thyroid Function Test",
			"Blood Pressure", "Oxygen Saturation", "Echocardiogram",
			"Prothrombin Time",
		},
		TypeProcedure: {
			"MRI", "Appendectomy", "Chemotherapy", "Vaccination", "CT scan",
			"Dialysis", "Angioplasty", "Bypass Surgery", "Endoscopy",
			"Biopsy", "Cesarean Section", "Cataract Surgery", "Liver Transplant",
			"Knee Replacement", "Hip Replacement", "Colonoscopy", "Radiotherapy",
			"Pacemaker Implantation", "Tonsillectomy", "Gastrectomy",
		},
	}
}

// LoadTerms reads term lists from a YAML file of the form
//
//	DISEASE: [Diabetes, Asthma]
//	lab_test:
//	  - MRI
//
// The file replaces the built-in lists; types it omits have no terms.
func LoadTerms(path string) (Terms, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read term lists: %w", err)
	}
	var raw map[string][]string
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse term lists %s: %w", path, err)
	}
	terms := make(Terms, len(raw))
	for key, list := range raw {
		t, err := ParseType(key)
		if err != nil {
			return nil, fmt.Errorf("term lists %s: %w", path, err)
		}
		for _, term := range list {
			if term = strings.TrimSpace(term); term != "" {
				terms[t] = append(terms[t], term)
			}
		}
	}
	return terms, nil
}

// All returns every term of every type, in type order. Duplicates across
// types are kept.
func (t Terms) All() []string {
	var out []string
	for _, typ := range Types() {
		out = append(out, t[typ]...)
	}
	return out
}

// Len returns the total number of terms.
func (t Terms) Len() int {
	n := 0
	for _, list := range t {
		n += len(list)
	}
	return n
}
