package source

import "time"

// Static datasets served when every endpoint of a source fails. Small on
// purpose: enough that a consumer never renders an empty list during an
// upstream outage, stale enough that nobody mistakes it for live data.

func fallbackLoans(name string) []Loan {
	switch name {
	case "govindia":
		return govIndiaFallback()
	case "sba":
		return sbaFallback()
	case "rapid":
		return rapidFallback()
	default:
		return nil
	}
}

func govIndiaFallback() []Loan {
	now := time.Now().UTC()
	return []Loan{
		{
			ID:            "gov-india-fallback-mudra",
			Name:          "Pradhan Mantri MUDRA Yojana",
			Lender:        "Government of India",
			LenderType:    LenderGovernment,
			Category:      CategorySME,
			Country:       "India",
			InterestRate:  "8.15% onwards",
			LoanAmount:    Range{Min: 50000, Max: 1000000},
			RepaymentTerm: Range{Min: 12, Max: 60},
			Collateral:    false,
			Description:   "Collateral-free loans for micro and small enterprises.",
			Benefits:      []string{"No collateral", "Subsidized interest"},
			Documents:     []string{"Aadhaar", "Business plan"},
			Eligibility: Eligibility{
				MinAge:            18,
				OrganizationTypes: []string{"proprietorship", "partnership"},
			},
			ApplicationURL: "https://www.mudra.org.in",
			ProcessingTime: "7-10 days",
			LastUpdated:    now,
		},
		{
			ID:            "gov-india-fallback-standup",
			Name:          "Stand-Up India",
			Lender:        "Government of India",
			LenderType:    LenderGovernment,
			Category:      CategoryStartup,
			Country:       "India",
			InterestRate:  "MCLR + 3%",
			LoanAmount:    Range{Min: 1000000, Max: 10000000},
			RepaymentTerm: Range{Min: 12, Max: 84},
			Collateral:    true,
			Description:   "Bank loans for SC/ST and women entrepreneurs setting up greenfield enterprises.",
			Eligibility: Eligibility{
				MinAge: 18,
			},
			ApplicationURL: "https://www.standupmitra.in",
			ProcessingTime: "2-4 weeks",
			LastUpdated:    now,
		},
	}
}

func sbaFallback() []Loan {
	now := time.Now().UTC()
	return []Loan{
		{
			ID:            "sba-fallback-7a",
			Name:          "SBA 7(a) Loan Program",
			Lender:        "U.S. Small Business Administration",
			LenderType:    LenderGovernment,
			Category:      CategorySME,
			Country:       "USA",
			InterestRate:  "Prime + 2.25% to 4.75%",
			LoanAmount:    Range{Min: 5000, Max: 5000000},
			RepaymentTerm: Range{Min: 12, Max: 300},
			Collateral:    true,
			Description:   "General-purpose small business loans guaranteed by the SBA.",
			Documents:     []string{"Business financials", "Tax returns"},
			Eligibility: Eligibility{
				CreditScoreMin: 640,
			},
			ApplicationURL: "https://www.sba.gov/funding-programs/loans/7a-loans",
			ProcessingTime: "30-90 days",
			LastUpdated:    now,
		},
		{
			ID:             "sba-fallback-microloan",
			Name:           "SBA Microloan Program",
			Lender:         "U.S. Small Business Administration",
			LenderType:     LenderGovernment,
			Category:       CategoryStartup,
			Country:        "USA",
			InterestRate:   "8% to 13%",
			LoanAmount:     Range{Min: 500, Max: 50000},
			RepaymentTerm:  Range{Min: 6, Max: 72},
			Collateral:     false,
			Description:    "Small loans for startups and underserved entrepreneurs via nonprofit intermediaries.",
			ApplicationURL: "https://www.sba.gov/funding-programs/loans/microloans",
			ProcessingTime: "30-60 days",
			LastUpdated:    now,
		},
	}
}

func rapidFallback() []Loan {
	now := time.Now().UTC()
	return []Loan{
		{
			ID:             "rapid-fallback-working-capital",
			Name:           "Working Capital Line",
			Lender:         "Marketplace Lender",
			LenderType:     LenderBank,
			Category:       CategoryGeneral,
			Country:        "Global",
			InterestRate:   "from 9.9% APR",
			LoanAmount:     Range{Min: 10000, Max: 500000},
			RepaymentTerm:  Range{Min: 6, Max: 36},
			Collateral:     false,
			Description:    "Revolving working-capital facility from marketplace lending partners.",
			ProcessingTime: "48 hours",
			LastUpdated:    now,
		},
	}
}
