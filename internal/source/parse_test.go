package source

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseAmountDefaultsToZero(t *testing.T) {
	cases := []struct {
		name string
		in   any
		want int64
	}{
		{"garbage string", "abc", 0},
		{"empty string", "", 0},
		{"nil", nil, 0},
		{"negative number", float64(-500), 0},
		{"bool", true, 0},
		{"plain number", float64(250000), 250000},
		{"currency string", "₹1,00,000", 100000},
		{"dollar string", "$5,000", 5000},
		{"suffixed string", "36 months", 36},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, parseAmount(tc.in))
		})
	}
}

func TestFirstStringChainsAlternateFieldNames(t *testing.T) {
	rec := map[string]any{"minimum_loan": "50000", "rate": 8.5}
	assert.Equal(t, "50000", firstString(rec, "min_amount", "minimum_loan"))
	assert.Equal(t, "8.5", firstString(rec, "interest_rate", "rate"))
	assert.Equal(t, "", firstString(rec, "absent", "also_absent"))
}

func TestAmountFieldUsesFirstPresentKey(t *testing.T) {
	rec := map[string]any{"min_amount": "abc", "minimum_loan": float64(75000)}
	// min_amount exists but is garbage; the chain stops there and coerces to 0
	// rather than silently reading the sibling field.
	assert.Equal(t, int64(0), amountField(rec, "min_amount", "minimum_loan"))
	assert.Equal(t, int64(75000), amountField(rec, "minimum_loan"))
}

func TestStringListAcceptsArraysAndCSV(t *testing.T) {
	rec := map[string]any{
		"benefits":  []any{"No collateral", " Fast approval "},
		"documents": "PAN, Aadhaar , ",
	}
	assert.Equal(t, []string{"No collateral", "Fast approval"}, stringList(rec, "benefits"))
	assert.Equal(t, []string{"PAN", "Aadhaar"}, stringList(rec, "documents"))
	assert.Nil(t, stringList(rec, "missing"))
}

func TestBoolFieldCoercions(t *testing.T) {
	rec := map[string]any{
		"a": true,
		"b": "yes",
		"c": "required",
		"d": "no",
		"e": float64(1),
	}
	assert.True(t, boolField(rec, "a"))
	assert.True(t, boolField(rec, "b"))
	assert.True(t, boolField(rec, "c"))
	assert.False(t, boolField(rec, "d"))
	assert.True(t, boolField(rec, "e"))
	assert.False(t, boolField(rec, "missing"))
}

func TestClassifyCategory(t *testing.T) {
	assert.Equal(t, CategoryStartup, classifyCategory("Seed fund for startups"))
	assert.Equal(t, CategorySME, classifyCategory("MSME credit guarantee"))
	assert.Equal(t, CategoryEducation, classifyCategory("Student loan subsidy"))
	assert.Equal(t, CategoryAgriculture, classifyCategory("Kisan farm credit"))
	assert.Equal(t, CategoryNGO, classifyCategory("Non-profit support scheme"))
	assert.Equal(t, CategoryGeneral, classifyCategory("Personal overdraft"))
}

func TestRecordIDStableAndPrefixed(t *testing.T) {
	rec := map[string]any{"scheme_id": "PMMY 2024/v1"}
	id := recordID("gov-india", rec, "scheme_id", "id")
	require.Equal(t, "gov-india-pmmy-2024-v1", id)
	// Same record, same id.
	assert.Equal(t, id, recordID("gov-india", rec, "scheme_id", "id"))
}

func TestRecordIDFallsBackToRandomSuffix(t *testing.T) {
	first := recordID("rapid", map[string]any{}, "loan_id")
	second := recordID("rapid", map[string]any{}, "loan_id")
	require.True(t, strings.HasPrefix(first, "rapid-"))
	assert.NotEqual(t, first, second)
}

func TestNormalizeNumericDefaulting(t *testing.T) {
	rec := map[string]any{
		"scheme_name": "Broken Scheme",
		"min_amount":  "abc",
	}
	loan := normalizeGovIndia(rec, time.Now().UTC())
	assert.Equal(t, int64(0), loan.LoanAmount.Min)
	assert.Equal(t, int64(0), loan.LoanAmount.Max)
	assert.Equal(t, 0, loan.Eligibility.CreditScoreMin)
}
