package domain

import (
	"fmt"
	"sort"
	"time"

	"github.com/SscSPs/fin_model_app/internal/apperrors"
	"github.com/go-playground/validator/v10"
)

// Section slugs.
const (
	SectionCompanyDetails    = "company-details"
	SectionProfitLoss        = "profit-loss"
	SectionBalanceSheet      = "balance-sheet"
	SectionDebtStructure     = "debt-structure"
	SectionGrowthAssumptions = "growth-assumptions"
	SectionWorkingCapital    = "working-capital"
	SectionSeasonality       = "seasonality"
	SectionCashFlow          = "cash-flow"
)

var fieldValidator = validator.New()

func numericFields(names ...string) []FieldSpec {
	out := make([]FieldSpec, len(names))
	for i, n := range names {
		out[i] = FieldSpec{Name: n, Type: FieldNumeric}
	}
	return out
}

func textFields(names ...string) []FieldSpec {
	out := make([]FieldSpec, len(names))
	for i, n := range names {
		out[i] = FieldSpec{Name: n, Type: FieldText}
	}
	return out
}

func monthlySeries(prefix string) []FieldSpec {
	out := make([]FieldSpec, 12)
	for i := range out {
		out[i] = FieldSpec{Name: fmt.Sprintf("%s_%d", prefix, i+1), Type: FieldNumeric}
	}
	return out
}

func concatFields(groups ...[]FieldSpec) []FieldSpec {
	var out []FieldSpec
	for _, g := range groups {
		out = append(out, g...)
	}
	return out
}

var companyDetailsSchema = func() *SectionSchema {
	s := newSectionSchema(SectionCompanyDetails, "company_details", "Company details", concatFields(
		textFields("company_name", "industry", "fiscal_year_end", "reporting_currency", "region", "country"),
		[]FieldSpec{
			{Name: "employee_count", Type: FieldInteger},
			{Name: "founded", Type: FieldInteger},
		},
		textFields("company_website", "business_case", "notes"),
		[]FieldSpec{
			{Name: "projection_start_month", Type: FieldInteger},
			{Name: "projection_start_year", Type: FieldInteger},
			{Name: "projections_year", Type: FieldInteger},
		},
	))
	s.Validate = validateCompanyDetails
	return s
}()

var profitLossSchema = newSectionSchema(SectionProfitLoss, "profit_loss_data", "Profit & loss", numericFields(
	"revenue", "cogs", "operating_expenses", "ebitda", "depreciation", "amortization",
	"ebit", "interest_expense", "ebt", "tax_rates", "taxes", "net_income",
))

var balanceSheetSchema = func() *SectionSchema {
	s := newSectionSchema(SectionBalanceSheet, "balance_sheet_data", "Balance sheet", concatFields(
		numericFields(
			"cash", "accounts_receivable", "inventory", "prepaid_expenses", "other_current_assets",
			"total_current_assets", "ppe", "intangible_assets", "goodwill", "other_assets", "total_assets",
			"accounts_payable", "accrued_expenses", "short_term_debt", "other_current_liabilities",
			"total_current_liabilities", "long_term_debt", "other_liabilities", "total_liabilities",
			"common_stock", "retained_earnings", "other_equity", "total_equity", "total_liabilities_equity",
			"capital_expenditure_additions", "asset_depreciated_over_years",
		),
		textFields("senior_secured", "debt_tranche1"),
	))
	s.Derive = deriveBalanceSheet
	return s
}()

var debtStructureSchema = newSectionSchema(SectionDebtStructure, "debt_structure_data", "Debt structure", concatFields(
	numericFields(
		"total_debt", "interest_rate",
		"additional_loan_senior_secured", "bank_base_rate_senior_secured", "liquidity_premiums_senior_secured",
		"credit_risk_premiums_senior_secured", "maturity_y_senior_secured", "amortization_y_senior_secured",
		"additional_loan_short_term", "bank_base_rate_short_term", "liquidity_premiums_short_term",
		"credit_risk_premiums_short_term", "maturity_y_short_term", "amortization_y_short_term",
	),
	[]FieldSpec{{Name: "maturity_date", Type: FieldDate}},
	textFields("payment_frequency", "senior_secured_loan_type", "short_term_loan_type"),
))

var growthAssumptionsSchema = newSectionSchema(SectionGrowthAssumptions, "growth_assumptions_data", "Growth assumptions", concatFields(
	monthlySeries("gr_revenue"),
	monthlySeries("gr_cost"),
	monthlySeries("gr_cost_oper"),
	monthlySeries("gr_capex"),
))

var workingCapitalSchema = newSectionSchema(SectionWorkingCapital, "working_capital_data", "Working capital", numericFields(
	"days_receivables", "days_inventory", "days_payables", "cash_cycle",
	"account_receivable_percent", "inventory_percent", "other_current_assets_percent", "accounts_payable_percent",
))

var seasonalitySchema = newSectionSchema(SectionSeasonality, "seasonality_data", "Seasonality", concatFields(
	numericFields(
		"january", "february", "march", "april", "may", "june",
		"july", "august", "september", "october", "november", "december",
		"seasonal_working_capital",
	),
	textFields("seasonality_pattern"),
))

var cashFlowSchema = func() *SectionSchema {
	s := newSectionSchema(SectionCashFlow, "cash_flow_data", "Cash flow", numericFields(
		"net_income", "depreciation", "amortization", "changes_in_working_capital", "operating_cash_flow",
		"capex", "acquisitions", "investing_cash_flow", "debt_issuance", "debt_repayment", "dividends",
		"financing_cash_flow", "net_cash_flow", "capital_expenditures", "free_cash_flow", "debt_service",
	))
	s.Derive = deriveCashFlow
	return s
}()

var sectionRegistry = []*SectionSchema{
	companyDetailsSchema,
	profitLossSchema,
	balanceSheetSchema,
	debtStructureSchema,
	growthAssumptionsSchema,
	workingCapitalSchema,
	seasonalitySchema,
	cashFlowSchema,
}

var (
	sectionsBySlug  = map[string]*SectionSchema{}
	sectionsByTable = map[string]*SectionSchema{}
)

func init() {
	for _, s := range sectionRegistry {
		sectionsBySlug[s.Section] = s
		sectionsByTable[s.Table] = s
	}
}

// Sections returns every registered section schema.
func Sections() []*SectionSchema {
	out := make([]*SectionSchema, len(sectionRegistry))
	copy(out, sectionRegistry)
	return out
}

// SectionByName looks a schema up by its slug.
func SectionByName(section string) (*SectionSchema, bool) {
	s, ok := sectionsBySlug[section]
	return s, ok
}

// SectionByTable looks a schema up by table name.
func SectionByTable(table string) (*SectionSchema, bool) {
	s, ok := sectionsByTable[table]
	return s, ok
}

// SectionTables lists all section table names, sorted.
func SectionTables() []string {
	out := make([]string, 0, len(sectionRegistry))
	for _, s := range sectionRegistry {
		out = append(out, s.Table)
	}
	sort.Strings(out)
	return out
}

func deriveBalanceSheet(m FieldValues) FieldValues {
	currentAssets := sumOf(m, "cash", "accounts_receivable", "inventory", "prepaid_expenses", "other_current_assets")
	totalAssets := currentAssets.Add(sumOf(m, "ppe", "intangible_assets", "goodwill", "other_assets"))
	currentLiabilities := sumOf(m, "accounts_payable", "accrued_expenses", "short_term_debt", "other_current_liabilities")
	totalLiabilities := currentLiabilities.Add(sumOf(m, "long_term_debt", "other_liabilities"))
	totalEquity := sumOf(m, "common_stock", "retained_earnings", "other_equity")

	return FieldValues{
		"total_current_assets":      currentAssets,
		"total_assets":              totalAssets,
		"total_current_liabilities": currentLiabilities,
		"total_liabilities":         totalLiabilities,
		"total_equity":              totalEquity,
		"total_liabilities_equity":  totalLiabilities.Add(totalEquity),
	}
}

func deriveCashFlow(m FieldValues) FieldValues {
	operating := sumOf(m, "net_income", "depreciation", "amortization", "changes_in_working_capital").Round(2)
	investing := numberOf(m, "capex").Add(numberOf(m, "acquisitions")).Neg().Round(2)
	financing := numberOf(m, "debt_issuance").
		Sub(numberOf(m, "debt_repayment")).
		Sub(numberOf(m, "dividends")).
		Round(2)

	return FieldValues{
		"operating_cash_flow": operating,
		"investing_cash_flow": investing,
		"financing_cash_flow": financing,
		"net_cash_flow":       operating.Add(investing).Add(financing).Round(2),
		"free_cash_flow":      operating.Sub(numberOf(m, "capital_expenditures")).Round(2),
	}
}

func validateCompanyDetails(v FieldValues) error {
	invalid := map[string]string{}
	currentYear := int64(time.Now().Year())

	for _, f := range []string{"company_name", "industry"} {
		if s, ok := v[f].(string); ok && len(s) > 255 {
			invalid[f] = "must be 255 characters or less"
		}
	}
	if n, ok := v["employee_count"].(int64); ok && n < 0 {
		invalid["employee_count"] = "must be a positive number"
	}
	if n, ok := v["founded"].(int64); ok && (n < 1800 || n > currentYear) {
		invalid["founded"] = "must be a valid year between 1800 and the current year"
	}
	if n, ok := v["projections_year"].(int64); ok && n < currentYear {
		invalid["projections_year"] = "must be the current year or later"
	}
	if n, ok := v["projection_start_month"].(int64); ok && (n < 1 || n > 12) {
		invalid["projection_start_month"] = "must be between 1 and 12"
	}
	if s, ok := v["company_website"].(string); ok && s != "" {
		if err := fieldValidator.Var(s, "url"); err != nil {
			invalid["company_website"] = "must be a valid URL"
		}
	}

	if len(invalid) > 0 {
		return &apperrors.ValidationError{Fields: invalid}
	}
	return nil
}
