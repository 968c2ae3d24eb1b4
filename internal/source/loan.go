package source

import (
	"encoding/json"
	"strings"
	"time"
)

// LenderType buckets who stands behind a loan program.
type LenderType string

const (
	LenderGovernment LenderType = "government"
	LenderBank       LenderType = "bank"
	LenderOther      LenderType = "other"
)

// Category buckets the audience a program targets.
type Category string

const (
	CategoryStartup     Category = "startup"
	CategorySME         Category = "sme"
	CategoryEducation   Category = "education"
	CategoryAgriculture Category = "agriculture"
	CategoryNGO         Category = "ngo"
	CategoryGeneral     Category = "general"
)

// Range bounds a numeric field. Zero means the source didn't say.
type Range struct {
	Min int64 `json:"min"`
	Max int64 `json:"max"`
}

// Eligibility captures who may apply.
type Eligibility struct {
	MinAge            int      `json:"minAge"`
	MaxAge            int      `json:"maxAge"`
	MinIncome         int64    `json:"minIncome"`
	CreditScoreMin    int      `json:"creditScoreMin"`
	OrganizationTypes []string `json:"organizationTypes,omitempty"`
	BusinessAgeMonths int      `json:"businessAgeMonths"`
	Sectors           []string `json:"sectors,omitempty"`
}

// Loan is the canonical record every source normalizes into. Numeric fields
// are always valid numbers; parsing failures coerce to zero.
type Loan struct {
	ID             string      `json:"id"`
	Name           string      `json:"name"`
	Lender         string      `json:"lender"`
	LenderType     LenderType  `json:"lenderType"`
	Category       Category    `json:"category"`
	Country        string      `json:"country"`
	InterestRate   string      `json:"interestRate"`
	LoanAmount     Range       `json:"loanAmount"`
	RepaymentTerm  Range       `json:"repaymentTerm"`
	ProcessingFee  string      `json:"processingFee"`
	Collateral     bool        `json:"collateral"`
	Description    string      `json:"description"`
	Benefits       []string    `json:"benefits,omitempty"`
	Documents      []string    `json:"documents,omitempty"`
	Features       []string    `json:"features,omitempty"`
	Eligibility    Eligibility `json:"eligibility"`
	ApplicationURL string      `json:"applicationUrl"`
	ProcessingTime string      `json:"processingTime"`
	LastUpdated    time.Time   `json:"lastUpdated"`
}

// SourceError records one source's failure inside an otherwise successful
// aggregation.
type SourceError struct {
	Source string `json:"source"`
	Error  string `json:"error"`
}

// SourceSummary reports how much each source contributed to an aggregation.
type SourceSummary struct {
	PerSource    map[string]int `json:"perSource"`
	TotalEnabled int            `json:"totalEnabled"`
}

// Result is the outcome of one aggregation cycle.
type Result struct {
	Loans     []Loan          `json:"loans"`
	Market    json.RawMessage `json:"market,omitempty"`
	Sources   SourceSummary   `json:"sources"`
	Errors    []SourceError   `json:"errors,omitempty"`
	FetchedAt time.Time       `json:"fetchedAt"`
}

// dedupeKey identifies a loan program across sources; sources frequently
// republish the same program with different metadata.
func dedupeKey(l Loan) string {
	return strings.ToLower(l.Name) + "|" + strings.ToLower(l.Lender) + "|" + strings.ToLower(l.Country)
}

// dedupe drops later duplicates of (name, lender, country); the first
// occurrence wins.
func dedupe(loans []Loan) []Loan {
	seen := make(map[string]struct{}, len(loans))
	out := make([]Loan, 0, len(loans))
	for _, l := range loans {
		key := dedupeKey(l)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, l)
	}
	return out
}
