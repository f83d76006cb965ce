package cases

import (
	"fmt"
	"strings"
)

// Field identifies one editable text or date field of a Record.
type Field int

const (
	FieldPreviousDate Field = iota
	FieldCaseNumber
	FieldCourtDetails
	FieldCourtType
	FieldOurParty
	FieldPurpose
	FieldNextDate
	FieldNotes
)

// Fields lists the editable fields in form order.
var Fields = []Field{
	FieldPreviousDate,
	FieldCaseNumber,
	FieldCourtDetails,
	FieldCourtType,
	FieldOurParty,
	FieldPurpose,
	FieldNextDate,
	FieldNotes,
}

var fieldNames = map[Field]string{
	FieldPreviousDate: "previous_date",
	FieldCaseNumber:   "case_number",
	FieldCourtDetails: "court_details",
	FieldCourtType:    "court_type",
	FieldOurParty:     "our_party",
	FieldPurpose:      "purpose",
	FieldNextDate:     "next_date",
	FieldNotes:        "notes",
}

var fieldLabels = map[Field]string{
	FieldPreviousDate: "Previous Date",
	FieldCaseNumber:   "Case No",
	FieldCourtDetails: "Court Details",
	FieldCourtType:    "Court Type",
	FieldOurParty:     "Our Party",
	FieldPurpose:      "Purpose",
	FieldNextDate:     "Next Date",
	FieldNotes:        "Notes",
}

// String returns the column name of the field.
func (f Field) String() string {
	if n, ok := fieldNames[f]; ok {
		return n
	}
	return fmt.Sprintf("field(%d)", int(f))
}

// Label returns the human-readable form label.
func (f Field) Label() string {
	return fieldLabels[f]
}

// IsDate reports whether the field holds a calendar date.
func (f Field) IsDate() bool {
	return f == FieldPreviousDate || f == FieldNextDate
}

// ParseField resolves a column name such as "case_number".
func ParseField(name string) (Field, error) {
	n := strings.ToLower(strings.TrimSpace(name))
	for f, fn := range fieldNames {
		if fn == n {
			return f, nil
		}
	}
	return 0, fmt.Errorf("unknown case field %q", name)
}

// Get returns the current value of field f.
func (r Record) Get(f Field) string {
	switch f {
	case FieldPreviousDate:
		return r.PreviousDate
	case FieldCaseNumber:
		return r.CaseNumber
	case FieldCourtDetails:
		return r.CourtDetails
	case FieldCourtType:
		return r.CourtType
	case FieldOurParty:
		return r.OurParty
	case FieldPurpose:
		return r.Purpose
	case FieldNextDate:
		return r.NextDate
	case FieldNotes:
		return r.Notes
	}
	return ""
}

// With returns a copy of r with only field f replaced by value.
func (r Record) With(f Field, value string) Record {
	switch f {
	case FieldPreviousDate:
		r.PreviousDate = value
	case FieldCaseNumber:
		r.CaseNumber = value
	case FieldCourtDetails:
		r.CourtDetails = value
	case FieldCourtType:
		r.CourtType = value
	case FieldOurParty:
		r.OurParty = value
	case FieldPurpose:
		r.Purpose = value
	case FieldNextDate:
		r.NextDate = value
	case FieldNotes:
		r.Notes = value
	}
	return r
}

// WithActive returns a copy of r with the active flag replaced.
func (r Record) WithActive(active bool) Record {
	r.Active = active
	return r
}

// ParseActive coerces a form value to a strict boolean.
func ParseActive(v string) bool {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "true", "y", "yes", "1", "t":
		return true
	default:
		return false
	}
}

// ActiveLabel renders the active flag the way the form displays it.
func ActiveLabel(active bool) string {
	if active {
		return "Y"
	}
	return "N"
}
