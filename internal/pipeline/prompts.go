package pipeline

import (
	"fmt"
	"strings"

	"github.com/ledgerchat/ledgerchat/internal/memory"
	"github.com/ledgerchat/ledgerchat/internal/warehouse"
)

// PromptContext is everything the prompt builders need: the rendered schema,
// the memory context, and cached categorical values for grounding.
type PromptContext struct {
	Schema        string
	Memory        memory.Context
	BusinessUnits []string
	PropertyTypes []string
}

const planSystemPrompt = `You are an expert SQL query planner for financial data analysis.
Your task is to create detailed execution plans for converting natural language questions
into SQL queries. If you encounter an ambiguous user prompt, ask for clarification.`

const sqlSystemPrompt = `You are an expert SQL query generator for an analytical warehouse. Generate precise SQL queries based on execution plans and natural language questions.`

const fixerSystemPrompt = `You are an expert SQL query debugger. Fix SQL queries that have errors.`

const answerSystemPrompt = `You are a financial data analyst assistant. Your task is to provide clear, accurate, and insightful responses based on SQL query results.

IMPORTANT GUIDELINES:
1. Base your response ONLY on the provided SQL results
2. Do not make up or assume any data not present in the results
3. Provide specific numbers, percentages, and insights when available
4. If results are empty, clearly state that no data was found
5. Use professional but accessible language
6. Include relevant context from previous analysis when appropriate
7. If you don't have enough information, say so clearly
8. If clarification is needed, ask specific questions to gather more information about the user's intent
9. Do not round off numbers unless explicitly asked
10. If the user asks for a summary, provide a concise overview of key findings
11. If the user asks for a detailed analysis, provide a comprehensive breakdown of the data
12. If the user asks for a comparison, highlight differences and similarities clearly`

const schemaReference = `DATABASE SCHEMA:
================

1. FINANCIAL_DATA TABLE (main fact table, one row per booked amount):

   Time dimensions:
   - "year" INTEGER, e.g. 2023, 2024
   - "month" VARCHAR storing 'YYYY-MM', e.g. '2023-01'

   Version and scenario:
   - "version" VARCHAR ('Actual', 'Budget', 'Forecast')
   - "scenario" VARCHAR (usually 'Working Version')
   - "currency" VARCHAR currency code

   Organization hierarchy:
   - "entity" VARCHAR legal entity name
   - "gl_accounts" INTEGER general ledger account code
   - "department" VARCHAR
   - "location" VARCHAR
   - "property" VARCHAR
   - "project" VARCHAR

   Measures:
   - "value" DECIMAL financial amount

2. GL_ACCOUNTS TABLE (chart of accounts):
   - "gl_accounts" INTEGER account code (links to financial_data)
   - "gl_description" VARCHAR
   - "pl_main_category" VARCHAR P&L main category
   - "pl_sub_category" VARCHAR

3. ENTITY_BUSINESS_UNITS TABLE (maps entities to business units):
   - "entity" VARCHAR (links to financial_data)
   - "business_unit" VARCHAR
   - "additional_mapping" VARCHAR additional classification

KEY RELATIONSHIPS:
==================
- financial_data."gl_accounts" joins gl_accounts."gl_accounts"
- financial_data."entity" joins entity_business_units."entity"

P&L CATEGORY MAPPINGS (from gl_accounts table):
===============================================
- Revenue: "pl_main_category" LIKE '%Revenue%'
- Direct Costs: "pl_main_category" LIKE '%Direct%'
- G&A: "pl_main_category" LIKE '%General%' OR LIKE '%Admin%'
- Payroll: "pl_main_category" LIKE '%Payroll%'
- Marketing: "pl_main_category" LIKE '%Marketing%'
- Corporate Allocation: "pl_main_category" LIKE '%Corporate%'
- Depreciation: "pl_main_category" LIKE '%Depreciation%'
- Other: "pl_main_category" LIKE '%Other%'

FINANCIAL CALCULATIONS:
======================
- Gross Profit = Revenue - Direct Costs
- Total OpEx = G&A + Payroll + Marketing + Corporate Allocation
- EBITDA = Gross Profit - Total OpEx
- Net Profit = EBITDA - Depreciation - Other Expenses

TIME PERIOD EXAMPLES:
====================
- Full Year 2023: "year" = 2023
- Q1 2023: "month" IN ('2023-01', '2023-02', '2023-03')
- May 2023: "month" = '2023-05'
- YTD 2023 (up to May): "month" BETWEEN '2023-01' AND '2023-05'`

// BuildPlanPrompt assembles the execution-plan prompt from the schema
// reference, cached categorical values, memory context, and the question.
func BuildPlanPrompt(question string, ctx PromptContext) string {
	var parts []string

	parts = append(parts, "You are planning a SQL query against a financial warehouse. Create a detailed execution plan for the user's question.")
	parts = append(parts, schemaReference)

	if len(ctx.BusinessUnits) > 0 {
		parts = append(parts, "BUSINESS UNITS (from entity_business_units):\n"+strings.Join(ctx.BusinessUnits, ", "))
	}
	if len(ctx.PropertyTypes) > 0 {
		parts = append(parts, "PROPERTY TYPES (additional_mapping):\n"+strings.Join(ctx.PropertyTypes, ", "))
	}
	if ctx.Schema != "" {
		parts = append(parts, "CURRENT DATABASE CONTENT:\n"+ctx.Schema)
	}

	if len(ctx.Memory.Recent) > 0 {
		parts = append(parts, "RECENT CONVERSATION CONTEXT:")
		for _, interaction := range tailInteractions(ctx.Memory.Recent, 2) {
			parts = append(parts, fmt.Sprintf("Previous Q: %s", interaction.Question))
			parts = append(parts, fmt.Sprintf("Previous SQL: %s", interaction.SQLQuery))
		}
	}
	if ctx.Memory.Flow != "" {
		parts = append(parts, "CONVERSATION FLOW:\n"+ctx.Memory.Flow)
	}

	parts = append(parts, "USER QUESTION: "+question)

	parts = append(parts, `CREATE EXECUTION PLAN:
=====================
Provide a step-by-step plan with these sections:

1. **Question Analysis**: What metrics/data is the user asking for?
2. **Time Period**: Identify specific time filters needed
3. **Entity/Business Unit Scope**: Which entities or business units are involved?
4. **Required Tables**: Which tables need to be joined?
5. **P&L Categories**: Which account categories are needed?
6. **Calculations**: What calculations need to be performed?
7. **Grouping**: How should results be grouped?
8. **Filters**: What WHERE conditions are required?
9. **Expected Output**: What columns should be in the result?

Note:
1. Use double quotes for identifiers when needed, single quotes for string values.
2. Do not create views or CTEs, use direct table joins.`)

	return strings.Join(parts, "\n\n")
}

// BuildSQLPrompt assembles the generation prompt: rules, worked templates,
// the plan, recent SQL, and the required response format.
func BuildSQLPrompt(question, plan string, ctx PromptContext) string {
	var parts []string

	parts = append(parts, `You are an expert SQL query generator. Generate ONLY valid SQL queries.

CRITICAL SQL RULES:
===================
1. Identifiers: quote with double quotes when needed, never square brackets
2. String values: use single quotes 'value'
3. "month" is VARCHAR storing 'YYYY-MM', "year" is INTEGER
4. Use explicit JOIN syntax
5. Use GROUP BY for all non-aggregated columns

WORKING QUERY TEMPLATES:
=======================

1. SIMPLE AGGREGATION:
`+"```sql"+`
SELECT
    SUM(fd."value") AS total_amount
FROM financial_data fd
WHERE fd."version" = 'Actual'
    AND fd."year" = 2023
    AND fd."month" IN ('2023-01', '2023-02', '2023-03')
`+"```"+`

2. REVENUE BY BUSINESS UNIT:
`+"```sql"+`
SELECT
    ebu."business_unit",
    SUM(fd."value") AS revenue
FROM financial_data fd
    INNER JOIN entity_business_units ebu ON fd."entity" = ebu."entity"
    INNER JOIN gl_accounts gl ON fd."gl_accounts" = gl."gl_accounts"
WHERE fd."version" = 'Actual'
    AND fd."year" = 2023
    AND gl."pl_main_category" LIKE '%Revenue%'
GROUP BY ebu."business_unit"
ORDER BY revenue DESC
`+"```"+`

3. COMPLETE P&L ANALYSIS:
`+"```sql"+`
SELECT
    ebu."business_unit",
    SUM(CASE WHEN gl."pl_main_category" LIKE '%Revenue%'
        THEN fd."value" ELSE 0 END) AS revenue,
    SUM(CASE WHEN gl."pl_main_category" LIKE '%Direct%'
        THEN fd."value" ELSE 0 END) AS direct_cost,
    SUM(CASE WHEN gl."pl_main_category" LIKE '%Revenue%'
        THEN fd."value"
        WHEN gl."pl_main_category" LIKE '%Direct%'
        THEN -fd."value"
        ELSE 0 END) AS gross_profit,
    SUM(CASE WHEN gl."pl_main_category" LIKE '%General%'
        OR gl."pl_main_category" LIKE '%Admin%'
        THEN fd."value" ELSE 0 END) AS g_and_a,
    SUM(CASE WHEN gl."pl_main_category" LIKE '%Payroll%'
        THEN fd."value" ELSE 0 END) AS payroll,
    SUM(CASE WHEN gl."pl_main_category" LIKE '%Marketing%'
        THEN fd."value" ELSE 0 END) AS marketing,
    SUM(CASE
        WHEN gl."pl_main_category" LIKE '%Revenue%' THEN fd."value"
        WHEN gl."pl_main_category" LIKE '%Direct%'
            OR gl."pl_main_category" LIKE '%General%'
            OR gl."pl_main_category" LIKE '%Admin%'
            OR gl."pl_main_category" LIKE '%Payroll%'
            OR gl."pl_main_category" LIKE '%Marketing%'
            OR gl."pl_main_category" LIKE '%Corporate%' THEN -fd."value"
        ELSE 0 END) AS ebitda
FROM financial_data fd
    INNER JOIN gl_accounts gl ON fd."gl_accounts" = gl."gl_accounts"
    INNER JOIN entity_business_units ebu ON fd."entity" = ebu."entity"
WHERE fd."version" = 'Actual'
    AND fd."year" = 2023
GROUP BY ebu."business_unit"
ORDER BY ebu."business_unit"
`+"```"+`

4. MONTHLY TREND ANALYSIS:
`+"```sql"+`
SELECT
    fd."month",
    SUM(CASE WHEN gl."pl_main_category" LIKE '%Revenue%'
        THEN fd."value" ELSE 0 END) AS revenue,
    SUM(CASE WHEN gl."pl_main_category" LIKE '%Direct%'
        THEN fd."value" ELSE 0 END) AS direct_cost
FROM financial_data fd
    INNER JOIN gl_accounts gl ON fd."gl_accounts" = gl."gl_accounts"
WHERE fd."version" = 'Actual'
    AND fd."year" = 2023
GROUP BY fd."month"
ORDER BY fd."month"
`+"```")

	parts = append(parts, "EXECUTION PLAN:\n"+plan)

	if len(ctx.Memory.Recent) > 0 {
		parts = append(parts, "RECENT QUERIES FOR CONTEXT:")
		for _, interaction := range tailInteractions(ctx.Memory.Recent, 1) {
			parts = append(parts, "Previous SQL: "+interaction.SQLQuery)
		}
	}

	parts = append(parts, "CURRENT QUESTION: "+question)

	parts = append(parts, `GENERATE SQL QUERY:
==================
1. Follow the execution plan exactly
2. Use an appropriate template from above
3. Include proper JOINs (use INNER JOIN for required tables)
4. Add WHERE conditions for version='Actual' and appropriate time filters
5. Remember: "month" is VARCHAR ('YYYY-MM'), "year" is INTEGER
6. Use GROUP BY for all non-aggregated columns
7. Add ORDER BY for better readability
8. DO NOT include a semicolon at the end

RESPONSE FORMAT:
`+"```sql"+`
[Your SQL query here without semicolon]
`+"```"+`

EXPLANATION:
[Brief explanation of the query logic and any calculations]`)

	return strings.Join(parts, "\n\n")
}

// BuildFixerPrompt assembles the repair prompt for a failing query.
func BuildFixerPrompt(failedQuery, errorMessage, question string) string {
	return fmt.Sprintf(`Fix this SQL query that has an error.

ORIGINAL QUESTION: %s

FAILED QUERY:
%s

ERROR MESSAGE:
%s

DATABASE SCHEMA REMINDERS:
=========================
FINANCIAL_DATA columns:
- "year" INTEGER (not a string!) - use: "year" = 2023
- "month" VARCHAR - format 'YYYY-MM' - use: "month" = '2023-01' or "month" IN ('2023-01', '2023-02')
- "version", "entity", "department" are VARCHAR - need quotes
- "gl_accounts" INTEGER - no quotes needed
- "value" DECIMAL

GL_ACCOUNTS columns:
- "gl_accounts" INTEGER
- "pl_main_category" VARCHAR - use LIKE for matching

ENTITY_BUSINESS_UNITS columns:
- "entity" VARCHAR
- "business_unit" VARCHAR
- "additional_mapping" VARCHAR

COMMON FIXES:
============
1. Data type issues:
   wrong: "month" IN (1, 2, 3)
   right: "month" IN ('2023-01', '2023-02', '2023-03')

   wrong: "year" = '2023'
   right: "year" = 2023

2. Syntax issues: missing or extra commas in the SELECT list, trailing comma before FROM.

3. Column names: check spelling and quoting against the schema above.

4. Table joins: add INNER JOIN for gl_accounts and entity_business_units when their columns are used.

5. GROUP BY: include all SELECT columns that are not aggregated.

RESPONSE FORMAT:
===============
`+"```sql"+`
[Fixed query WITHOUT semicolon]
`+"```", question, failedQuery, errorMessage)
}

// BuildAnswerPrompt assembles the final-answer prompt from the memory
// context, the executed query, and its results.
func BuildAnswerPrompt(question, sqlQuery string, result warehouse.Result, ctx PromptContext) string {
	var parts []string

	if len(ctx.Memory.Recent) > 0 {
		parts = append(parts, "RECENT CONVERSATION CONTEXT:")
		for _, interaction := range tailInteractions(ctx.Memory.Recent, 2) {
			parts = append(parts, "Previous Q: "+interaction.Question)
			parts = append(parts, "Previous A: "+truncate(interaction.Answer, 200))
		}
	}
	if len(ctx.Memory.Relevant) > 0 {
		parts = append(parts, "RELEVANT HISTORICAL CONTEXT:")
		parts = append(parts, "Similar past analysis: "+truncate(ctx.Memory.Relevant[0].Answer, 150))
	}

	parts = append(parts, "CURRENT USER QUESTION: "+question)
	parts = append(parts, "SQL QUERY EXECUTED: "+sqlQuery)
	parts = append(parts, renderResults(result))

	parts = append(parts, `RESPONSE INSTRUCTIONS:
- Provide a clear, conversational response that directly answers the user's question
- Include specific numbers and insights from the data
- If this builds on previous analysis, acknowledge that connection
- If no data was found, explain what that means
- Keep the response concise but informative
- Use bullet points or formatting only when it improves clarity`)

	return strings.Join(parts, "\n\n")
}

func renderResults(result warehouse.Result) string {
	if result.RowCount == 0 {
		return "SQL RESULTS: No data found"
	}

	var builder strings.Builder
	fmt.Fprintf(&builder, "SQL RESULTS (%d rows):\n", result.RowCount)
	rows := result.Rows
	if len(rows) > 10 {
		builder.WriteString("First 10 rows:\n")
		rows = rows[:10]
	}
	builder.WriteString(strings.Join(result.Columns, " | "))
	builder.WriteString("\n")
	for _, row := range rows {
		cells := make([]string, len(row))
		for i, value := range row {
			cells[i] = fmt.Sprintf("%v", value)
		}
		builder.WriteString(strings.Join(cells, " | "))
		builder.WriteString("\n")
	}
	if result.RowCount > 10 {
		fmt.Fprintf(&builder, "... and %d more rows", result.RowCount-10)
	}
	return builder.String()
}

func tailInteractions(interactions []memory.Interaction, n int) []memory.Interaction {
	if len(interactions) <= n {
		return interactions
	}
	return interactions[len(interactions)-n:]
}

func truncate(value string, limit int) string {
	if len(value) <= limit {
		return value
	}
	return value[:limit] + "..."
}
