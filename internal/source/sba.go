package source

import (
	"context"
	"time"

	"github.com/l0p7/loanfeed/internal/config"
)

// fetchSBA pulls the US Small Business Administration program catalog.
func (a *Aggregator) fetchSBA(ctx context.Context, cfg config.SourceConfig) ([]Loan, error) {
	url := cfg.BaseEndpoint + "/programs?format=json&limit=100"
	if cfg.APIKey != "" {
		url += "&api_key=" + cfg.APIKey
	}

	payload, err := a.getJSON(ctx, cfg.Timeout(), url, nil)
	if err != nil {
		return nil, err
	}

	var loans []Loan
	for _, rec := range recordList(payload, "programs", "records", "data") {
		loans = append(loans, normalizeSBA(rec, time.Now().UTC()))
	}
	return loans, nil
}

// normalizeSBA maps one SBA program record into the canonical shape.
func normalizeSBA(rec map[string]any, now time.Time) Loan {
	name := firstString(rec, "program_name", "name", "title")
	description := firstString(rec, "description", "summary")
	lender := firstString(rec, "lender", "administering_office")
	if lender == "" {
		lender = "U.S. Small Business Administration"
	}
	return Loan{
		ID:           recordID("sba", rec, "program_id", "id", "program_number"),
		Name:         name,
		Lender:       lender,
		LenderType:   LenderGovernment,
		Category:     classifyCategory(name + " " + description),
		Country:      "USA",
		InterestRate: firstString(rec, "interest_rate", "rate", "apr"),
		LoanAmount: Range{
			Min: amountField(rec, "min_amount", "minimum_loan", "loan_minimum"),
			Max: amountField(rec, "max_amount", "maximum_loan", "loan_maximum"),
		},
		RepaymentTerm: Range{
			Min: amountField(rec, "term_min_months", "min_term"),
			Max: amountField(rec, "term_max_months", "max_term", "term_months"),
		},
		ProcessingFee: firstString(rec, "guaranty_fee", "fees", "processing_fee"),
		Collateral:    boolField(rec, "collateral_required", "collateral"),
		Description:   description,
		Benefits:      stringList(rec, "benefits"),
		Documents:     stringList(rec, "required_documents", "documents"),
		Features:      stringList(rec, "features", "use_of_proceeds"),
		Eligibility: Eligibility{
			MinAge:            intField(rec, "min_age"),
			MaxAge:            intField(rec, "max_age"),
			MinIncome:         amountField(rec, "min_revenue", "min_income"),
			CreditScoreMin:    intField(rec, "min_credit_score", "credit_score_minimum"),
			OrganizationTypes: stringList(rec, "entity_types", "organization_types"),
			BusinessAgeMonths: intField(rec, "time_in_business_months", "business_age_months"),
			Sectors:           stringList(rec, "eligible_industries", "sectors"),
		},
		ApplicationURL: firstString(rec, "application_url", "url", "link"),
		ProcessingTime: firstString(rec, "processing_time", "approval_time"),
		LastUpdated:    now,
	}
}
