package prompts

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Vocabulary is the deployment-specific domain text embedded in prompts:
// what data exists and which worked examples the oracle sees.
type Vocabulary struct {
	DataDomains        []string       `yaml:"data_domains"`
	ScopeDomains       []string       `yaml:"scope_domains"`
	SQLExamples        []SQLExample   `yaml:"sql_examples"`
	InScopeExamples    []ScopeExample `yaml:"in_scope_examples"`
	OutOfScopeExamples []ScopeExample `yaml:"out_of_scope_examples"`
}

// SQLExample is a worked question → SQL pair. Dialect restricts the example
// to one store dialect; empty means it applies to all.
type SQLExample struct {
	Question string `yaml:"question"`
	SQL      string `yaml:"sql"`
	Dialect  string `yaml:"dialect,omitempty"`
}

// ScopeExample is a labelled question for the scope detector.
type ScopeExample struct {
	Question string `yaml:"question"`
	Note     string `yaml:"note,omitempty"`
}

// DefaultVocabulary describes the investor-portal schema.
func DefaultVocabulary() *Vocabulary {
	return &Vocabulary{
		DataDomains: []string{
			"Financial data (companies, quarterly financials, expenses, deals, metrics)",
			"Forum/community Q&A (questions, replies, upvotes)",
			"Chat history (sessions, messages, routing metadata)",
			"Escalation tracking (questions needing human review)",
		},
		ScopeDomains: []string{
			"Financial data (company revenues, expenses, profits, deals, metrics)",
			"Forum Q&A discussions (questions, replies, upvotes)",
			"Chat history (user conversations, messages)",
			"Escalation tracking (questions flagged for human review)",
		},
		SQLExamples: []SQLExample{
			{
				Question: "What was TechFlow's Q3 2024 revenue?",
				SQL:      "SELECT revenue, year, quarter FROM quarterly_financials qf JOIN companies c ON qf.company_id = c.id WHERE c.ticker_symbol = 'TFLW' AND year = 2024 AND quarter = 3",
			},
			{
				Question: "What are the top 5 most upvoted forum questions?",
				SQL:      "SELECT title, upvotes FROM forum_questions ORDER BY upvotes DESC LIMIT 5",
			},
			{
				Question: "How many questions were escalated this week?",
				SQL:      "SELECT COUNT(*) AS count FROM escalated_questions WHERE created_at > date('now', '-7 days')",
				Dialect:  "sqlite",
			},
			{
				Question: "How many questions were escalated this week?",
				SQL:      "SELECT COUNT(*) AS count FROM escalated_questions WHERE created_at > NOW() - INTERVAL '7 days'",
				Dialect:  "postgres",
			},
			{
				Question: "Which company has the highest gross margin?",
				SQL:      "SELECT c.name, ((qf.gross_profit * 100.0) / qf.revenue) AS gross_margin_pct FROM quarterly_financials qf JOIN companies c ON qf.company_id = c.id WHERE qf.year = 2024 AND qf.quarter = 4 ORDER BY gross_margin_pct DESC LIMIT 1",
			},
		},
		InScopeExamples: []ScopeExample{
			{Question: "What was TechFlow's revenue?", Note: "financial data"},
			{Question: "What are the top upvoted questions?", Note: "forum data"},
			{Question: "How many chats were escalated?", Note: "escalation data"},
			{Question: "Show me recent forum discussions about expenses", Note: "forum + financial topic"},
		},
		OutOfScopeExamples: []ScopeExample{
			{Question: "What's the weather today?", Note: "unrelated to database"},
			{Question: "How do I bake a cake?", Note: "unrelated to database"},
			{Question: "Who won the game yesterday?", Note: "unrelated to database"},
		},
	}
}

// LoadVocabulary reads a YAML vocabulary file. Sections missing from the
// file keep their default values.
func LoadVocabulary(path string) (*Vocabulary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read vocabulary: %w", err)
	}

	var loaded Vocabulary
	if err := yaml.Unmarshal(data, &loaded); err != nil {
		return nil, fmt.Errorf("parse vocabulary %s: %w", path, err)
	}

	v := DefaultVocabulary()
	if len(loaded.DataDomains) > 0 {
		v.DataDomains = loaded.DataDomains
	}
	if len(loaded.ScopeDomains) > 0 {
		v.ScopeDomains = loaded.ScopeDomains
	}
	if len(loaded.SQLExamples) > 0 {
		v.SQLExamples = loaded.SQLExamples
	}
	if len(loaded.InScopeExamples) > 0 {
		v.InScopeExamples = loaded.InScopeExamples
	}
	if len(loaded.OutOfScopeExamples) > 0 {
		v.OutOfScopeExamples = loaded.OutOfScopeExamples
	}
	return v, nil
}

// examplesFor returns the SQL examples that apply to dialect, in order.
func (v *Vocabulary) examplesFor(dialect string) []SQLExample {
	out := make([]SQLExample, 0, len(v.SQLExamples))
	for _, ex := range v.SQLExamples {
		if ex.Dialect == "" || ex.Dialect == dialect {
			out = append(out, ex)
		}
	}
	return out
}
