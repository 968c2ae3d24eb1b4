package source

import (
	"context"
	"time"

	"github.com/l0p7/loanfeed/internal/config"
)

// fetchRapid pulls the commercial lending-marketplace API. Authentication
// rides in headers rather than query parameters.
func (a *Aggregator) fetchRapid(ctx context.Context, cfg config.SourceConfig) ([]Loan, error) {
	headers := map[string]string{}
	if cfg.APIKey != "" {
		headers["X-RapidAPI-Key"] = cfg.APIKey
	}

	payload, err := a.getJSON(ctx, cfg.Timeout(), cfg.BaseEndpoint+"/loans?limit=100", headers)
	if err != nil {
		return nil, err
	}

	var loans []Loan
	for _, rec := range recordList(payload, "loans", "results", "data") {
		loans = append(loans, normalizeRapid(rec, time.Now().UTC()))
	}
	return loans, nil
}

// normalizeRapid maps one marketplace listing into the canonical shape.
func normalizeRapid(rec map[string]any, now time.Time) Loan {
	name := firstString(rec, "loan_name", "title", "name")
	lender := firstString(rec, "provider", "lender_name", "lender")
	if lender == "" {
		lender = "Marketplace Lender"
	}
	lenderType := classifyLenderType(firstString(rec, "lender_type", "provider_type") + " " + lender)
	if lenderType == LenderOther {
		lenderType = LenderBank
	}
	description := firstString(rec, "description", "summary", "details")
	country := firstString(rec, "country", "region")
	if country == "" {
		country = "Global"
	}
	return Loan{
		ID:           recordID("rapid", rec, "loan_id", "id", "listing_id"),
		Name:         name,
		Lender:       lender,
		LenderType:   lenderType,
		Category:     classifyCategory(firstString(rec, "category", "segment") + " " + name + " " + description),
		Country:      country,
		InterestRate: firstString(rec, "interest_rate", "apr", "rate"),
		LoanAmount: Range{
			Min: amountField(rec, "amount_min", "min_amount", "minimum"),
			Max: amountField(rec, "amount_max", "max_amount", "maximum"),
		},
		RepaymentTerm: Range{
			Min: amountField(rec, "term_min", "min_term_months"),
			Max: amountField(rec, "term_max", "max_term_months", "term"),
		},
		ProcessingFee: firstString(rec, "origination_fee", "processing_fee", "fees"),
		Collateral:    boolField(rec, "secured", "collateral_required", "collateral"),
		Description:   description,
		Benefits:      stringList(rec, "benefits", "perks"),
		Documents:     stringList(rec, "documents", "requirements"),
		Features:      stringList(rec, "features", "tags"),
		Eligibility: Eligibility{
			MinAge:            intField(rec, "min_age"),
			MaxAge:            intField(rec, "max_age"),
			MinIncome:         amountField(rec, "min_income", "min_annual_revenue"),
			CreditScoreMin:    intField(rec, "min_credit_score", "credit_score_min"),
			OrganizationTypes: stringList(rec, "entity_types"),
			BusinessAgeMonths: intField(rec, "min_business_age_months"),
			Sectors:           stringList(rec, "industries", "sectors"),
		},
		ApplicationURL: firstString(rec, "apply_url", "application_url", "url"),
		ProcessingTime: firstString(rec, "funding_time", "processing_time"),
		LastUpdated:    now,
	}
}
