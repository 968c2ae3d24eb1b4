package source

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/l0p7/loanfeed/internal/config"
)

// fetchGovIndia pulls the Indian open-data portal. The portal splits loan
// schemes across two resources with slightly different shapes; a failure on
// one still lets the other contribute.
func (a *Aggregator) fetchGovIndia(ctx context.Context, cfg config.SourceConfig) ([]Loan, error) {
	endpoints := []string{
		cfg.BaseEndpoint + "/loan-schemes?format=json&limit=100",
		cfg.BaseEndpoint + "/credit-guarantee-programs?format=json&limit=100",
	}
	if cfg.APIKey != "" {
		for i := range endpoints {
			endpoints[i] += "&api-key=" + cfg.APIKey
		}
	}

	var loans []Loan
	var errs []error
	for _, url := range endpoints {
		payload, err := a.getJSON(ctx, cfg.Timeout(), url, nil)
		if err != nil {
			a.logger.Warn("govindia endpoint failed", slog.String("url", url), slog.Any("error", err))
			errs = append(errs, err)
			continue
		}
		for _, rec := range recordList(payload, "records", "data") {
			loans = append(loans, normalizeGovIndia(rec, time.Now().UTC()))
		}
	}
	if len(errs) == len(endpoints) {
		return nil, errors.Join(errs...)
	}
	return loans, nil
}

// normalizeGovIndia maps one open-data record into the canonical shape.
func normalizeGovIndia(rec map[string]any, now time.Time) Loan {
	name := firstString(rec, "scheme_name", "name", "title")
	lender := firstString(rec, "ministry", "department", "implementing_agency")
	if lender == "" {
		lender = "Government of India"
	}
	description := firstString(rec, "description", "details", "objective")
	return Loan{
		ID:           recordID("gov-india", rec, "scheme_id", "id", "scheme_code"),
		Name:         name,
		Lender:       lender,
		LenderType:   LenderGovernment,
		Category:     classifyCategory(name + " " + description),
		Country:      "India",
		InterestRate: firstString(rec, "interest_rate", "rate_of_interest", "interest"),
		LoanAmount: Range{
			Min: amountField(rec, "min_loan_amount", "minimum_loan", "min_amount"),
			Max: amountField(rec, "max_loan_amount", "maximum_loan", "max_amount"),
		},
		RepaymentTerm: Range{
			Min: amountField(rec, "min_tenure_months", "tenure_min"),
			Max: amountField(rec, "max_tenure_months", "tenure_max", "tenure_months"),
		},
		ProcessingFee: firstString(rec, "processing_fee", "fees"),
		Collateral:    boolField(rec, "collateral_required", "collateral"),
		Description:   description,
		Benefits:      stringList(rec, "benefits", "key_benefits"),
		Documents:     stringList(rec, "documents_required", "documents"),
		Features:      stringList(rec, "features", "highlights"),
		Eligibility: Eligibility{
			MinAge:            intField(rec, "min_age"),
			MaxAge:            intField(rec, "max_age"),
			MinIncome:         amountField(rec, "min_income", "minimum_income"),
			CreditScoreMin:    intField(rec, "min_credit_score", "credit_score"),
			OrganizationTypes: stringList(rec, "organization_types", "eligible_entities"),
			BusinessAgeMonths: intField(rec, "business_age_months", "vintage_months"),
			Sectors:           stringList(rec, "sectors", "eligible_sectors"),
		},
		ApplicationURL: firstString(rec, "application_url", "apply_url", "url"),
		ProcessingTime: firstString(rec, "processing_time", "turnaround_time"),
		LastUpdated:    now,
	}
}
