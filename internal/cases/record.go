package cases

import (
	"encoding/json"
	"iter"
	"strings"
	"time"
)

// DateLayout is the calendar-date format used for every date field shown or edited.
const DateLayout = "2006-01-02"

// MaxFetch is the hard cap on records held by the client-side list.
const MaxFetch = 1000

// Record represents a single legal case entry
type Record struct {
	ID           int64  `json:"id,omitempty"`
	Active       bool   `json:"active"`
	PreviousDate string `json:"previous_date"`
	CaseNumber   string `json:"case_number"`
	CourtDetails string `json:"court_details"`
	CourtType    string `json:"court_type"`
	OurParty     string `json:"our_party"`
	Purpose      string `json:"purpose"`
	NextDate     string `json:"next_date"`
	Notes        string `json:"notes"`
}

// HasID reports whether the record has been persisted.
func (r Record) HasID() bool {
	return r.ID != 0
}

// MarshalJSON encodes empty date fields as null so date columns never receive "".
func (r Record) MarshalJSON() ([]byte, error) {
	type wire struct {
		ID           int64   `json:"id,omitempty"`
		Active       bool    `json:"active"`
		PreviousDate *string `json:"previous_date"`
		CaseNumber   string  `json:"case_number"`
		CourtDetails string  `json:"court_details"`
		CourtType    string  `json:"court_type"`
		OurParty     string  `json:"our_party"`
		Purpose      string  `json:"purpose"`
		NextDate     *string `json:"next_date"`
		Notes        string  `json:"notes"`
	}
	return json.Marshal(wire{
		ID:           r.ID,
		Active:       r.Active,
		PreviousDate: nullable(r.PreviousDate),
		CaseNumber:   r.CaseNumber,
		CourtDetails: r.CourtDetails,
		CourtType:    r.CourtType,
		OurParty:     r.OurParty,
		Purpose:      r.Purpose,
		NextDate:     nullable(r.NextDate),
		Notes:        r.Notes,
	})
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// NormalizeDate truncates a timestamp string to its calendar-date prefix.
// Values shorter than the prefix are returned unchanged.
func NormalizeDate(s string) string {
	if len(s) > len(DateLayout) {
		return s[:len(DateLayout)]
	}
	return s
}

// Normalize returns a copy of r with both date fields normalized.
func Normalize(r Record) Record {
	r.PreviousDate = NormalizeDate(r.PreviousDate)
	r.NextDate = NormalizeDate(r.NextDate)
	return r
}

// NormalizeAll normalizes every record in place and returns the slice.
func NormalizeAll(records []Record) []Record {
	for i := range records {
		records[i] = Normalize(records[i])
	}
	return records
}

// Matches reports whether query is a case-insensitive substring of the case
// number, court details or our party fields.
func Matches(r Record, query string) bool {
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(r.CaseNumber), q) ||
		strings.Contains(strings.ToLower(r.CourtDetails), q) ||
		strings.Contains(strings.ToLower(r.OurParty), q)
}

// Filter yields the records matching query, in their original order.
// The input slice is never modified.
func Filter(records []Record, query string) iter.Seq[Record] {
	return func(yield func(Record) bool) {
		for _, r := range records {
			if !Matches(r, query) {
				continue
			}
			if !yield(r) {
				return
			}
		}
	}
}

// NewDraft returns a blank active record dated today.
func NewDraft(now time.Time) Record {
	return Record{
		Active:       true,
		PreviousDate: now.Format(DateLayout),
	}
}
