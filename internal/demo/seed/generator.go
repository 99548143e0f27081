// Package seed fills a warehouse with deterministic demo financial data so
// the pipeline can be exercised without a production data load.
package seed

import (
	"fmt"
	"math"
	"math/rand"
)

type FinancialRow struct {
	Year       int
	Month      string
	Version    string
	Scenario   string
	Currency   string
	Entity     string
	GLAccount  int
	Department string
	Location   string
	Property   string
	Project    string
	Value      float64
}

type GLAccountRow struct {
	GLAccount      int
	GLDescription  string
	PLMainCategory string
	PLSubCategory  string
}

type BusinessUnitRow struct {
	Entity            string
	BusinessUnit      string
	AdditionalMapping string
}

type entityProfile struct {
	name         string
	businessUnit string
	mapping      string
	revenueScale float64
}

var entityProfiles = []entityProfile{
	{name: "Falcon Aviation LLC", businessUnit: "Aviation", mapping: "Operations", revenueScale: 1.6},
	{name: "Harbor Real Estate FZ", businessUnit: "Real Estate", mapping: "Commercial", revenueScale: 2.2},
	{name: "Marina Hospitality Group", businessUnit: "Hospitality", mapping: "Leisure", revenueScale: 1.1},
	{name: "Desert Retail Trading", businessUnit: "Retail", mapping: "Commercial", revenueScale: 0.8},
	{name: "Corporate Holding HQ", businessUnit: "Corporate", mapping: "Support", revenueScale: 0.3},
}

var glAccountRows = []GLAccountRow{
	{GLAccount: 400100, GLDescription: "Service Revenue", PLMainCategory: "Revenue", PLSubCategory: "Services"},
	{GLAccount: 400200, GLDescription: "Product Revenue", PLMainCategory: "Revenue", PLSubCategory: "Products"},
	{GLAccount: 500100, GLDescription: "Cost of Services", PLMainCategory: "Direct Costs", PLSubCategory: "Services"},
	{GLAccount: 500200, GLDescription: "Cost of Goods Sold", PLMainCategory: "Direct Costs", PLSubCategory: "Products"},
	{GLAccount: 600100, GLDescription: "Salaries and Wages", PLMainCategory: "Payroll", PLSubCategory: "Salaries"},
	{GLAccount: 600200, GLDescription: "Employee Benefits", PLMainCategory: "Payroll", PLSubCategory: "Benefits"},
	{GLAccount: 610100, GLDescription: "Office Rent", PLMainCategory: "General and Admin", PLSubCategory: "Facilities"},
	{GLAccount: 610200, GLDescription: "Professional Fees", PLMainCategory: "General and Admin", PLSubCategory: "Services"},
	{GLAccount: 620100, GLDescription: "Digital Advertising", PLMainCategory: "Marketing", PLSubCategory: "Advertising"},
	{GLAccount: 630100, GLDescription: "Group Overhead Charge", PLMainCategory: "Corporate Allocation", PLSubCategory: "Overhead"},
	{GLAccount: 700100, GLDescription: "Depreciation Expense", PLMainCategory: "Depreciation", PLSubCategory: "Fixed Assets"},
	{GLAccount: 800100, GLDescription: "Foreign Exchange Loss", PLMainCategory: "Other Expenses", PLSubCategory: "FX"},
}

var departments = []string{"Operations", "Finance", "Sales", "Technology"}

// Generator produces a reproducible dataset for a span of years. The same
// seed always yields the same rows.
type Generator struct {
	rnd   *rand.Rand
	years []int
}

func NewGenerator(seed int64, years []int) *Generator {
	if len(years) == 0 {
		years = []int{2023, 2024}
	}
	return &Generator{rnd: rand.New(rand.NewSource(seed)), years: years}
}

func (g *Generator) GLAccounts() []GLAccountRow {
	rows := make([]GLAccountRow, len(glAccountRows))
	copy(rows, glAccountRows)
	return rows
}

func (g *Generator) BusinessUnits() []BusinessUnitRow {
	rows := make([]BusinessUnitRow, 0, len(entityProfiles))
	for _, profile := range entityProfiles {
		rows = append(rows, BusinessUnitRow{
			Entity:            profile.name,
			BusinessUnit:      profile.businessUnit,
			AdditionalMapping: profile.mapping,
		})
	}
	return rows
}

// FinancialRows yields one Actual and one Budget row per entity, account,
// department, and month.
func (g *Generator) FinancialRows() []FinancialRow {
	var rows []FinancialRow
	for _, year := range g.years {
		for month := 1; month <= 12; month++ {
			monthKey := fmt.Sprintf("%04d-%02d", year, month)
			for _, profile := range entityProfiles {
				for _, account := range glAccountRows {
					department := departments[g.rnd.Intn(len(departments))]
					actual := g.amountFor(account, profile)
					budget := round2(actual * (0.9 + g.rnd.Float64()*0.2))
					for _, version := range []struct {
						name  string
						value float64
					}{{"Actual", actual}, {"Budget", budget}} {
						rows = append(rows, FinancialRow{
							Year:       year,
							Month:      monthKey,
							Version:    version.name,
							Scenario:   "Working Version",
							Currency:   "AED",
							Entity:     profile.name,
							GLAccount:  account.GLAccount,
							Department: department,
							Location:   "Dubai",
							Property:   profile.businessUnit,
							Project:    "BAU",
							Value:      version.value,
						})
					}
				}
			}
		}
	}
	return rows
}

func (g *Generator) amountFor(account GLAccountRow, profile entityProfile) float64 {
	base := 0.0
	switch account.PLMainCategory {
	case "Revenue":
		base = 400000 + g.rnd.Float64()*600000
	case "Direct Costs":
		base = 150000 + g.rnd.Float64()*250000
	case "Payroll":
		base = 80000 + g.rnd.Float64()*120000
	case "General and Admin":
		base = 30000 + g.rnd.Float64()*60000
	case "Marketing":
		base = 20000 + g.rnd.Float64()*50000
	case "Corporate Allocation":
		base = 15000 + g.rnd.Float64()*25000
	case "Depreciation":
		base = 25000 + g.rnd.Float64()*30000
	default:
		base = 5000 + g.rnd.Float64()*15000
	}
	return round2(base * profile.revenueScale)
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
