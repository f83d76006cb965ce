package cases

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWithReplacesOnlyOneField(t *testing.T) {
	base := Record{
		ID:           42,
		Active:       true,
		PreviousDate: "2024-01-01",
		CaseNumber:   "CV-1",
		CourtDetails: "District",
		CourtType:    "Civil",
		OurParty:     "Acme",
		Purpose:      "Hearing",
		NextDate:     "2024-02-01",
		Notes:        "n",
	}

	for _, f := range Fields {
		t.Run(f.String(), func(t *testing.T) {
			got := base.With(f, "changed")
			assert.Equal(t, "changed", got.Get(f))
			for _, other := range Fields {
				if other == f {
					continue
				}
				assert.Equal(t, base.Get(other), got.Get(other), "field %s changed unexpectedly", other)
			}
			assert.Equal(t, base.ID, got.ID)
			assert.Equal(t, base.Active, got.Active)
			// base is a value, so it must not have been touched
			assert.NotEqual(t, "changed", base.Get(f))
		})
	}
}

func TestParseField(t *testing.T) {
	f, err := ParseField("Court_Details")
	require.NoError(t, err)
	assert.Equal(t, FieldCourtDetails, f)

	_, err = ParseField("active")
	assert.Error(t, err)
}

func TestParseActive(t *testing.T) {
	for _, v := range []string{"true", "Y", "yes", "1"} {
		assert.True(t, ParseActive(v), v)
	}
	for _, v := range []string{"false", "N", "", "maybe"} {
		assert.False(t, ParseActive(v), v)
	}
	assert.Equal(t, "Y", ActiveLabel(true))
	assert.Equal(t, "N", ActiveLabel(false))
}

func TestFieldMetadata(t *testing.T) {
	assert.True(t, FieldNextDate.IsDate())
	assert.True(t, FieldPreviousDate.IsDate())
	assert.False(t, FieldNotes.IsDate())
	assert.Equal(t, "Case No", FieldCaseNumber.Label())
	assert.Equal(t, "field(99)", Field(99).String())
}
