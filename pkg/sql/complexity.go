package sql

import (
	"fmt"
	"regexp"
	"strings"
)

// ComplexityLevel is a coarse classification of a query's structure.
type ComplexityLevel string

const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
)

// Classification thresholds: score <= 2 is simple, 3..5 moderate, above 5 complex.
const (
	simpleMaxScore   = 2
	moderateMaxScore = 5
)

// ComplexityWeights are the additive weights of each structural feature.
// Weights must be non-negative so that adding a feature never lowers the score.
type ComplexityWeights struct {
	Join        int
	Subquery    int
	Aggregation int
}

// DefaultComplexityWeights returns JOIN=1, subquery=2, aggregation=1.
func DefaultComplexityWeights() ComplexityWeights {
	return ComplexityWeights{Join: 1, Subquery: 2, Aggregation: 1}
}

// Complexity is the structural assessment of one SQL statement.
type Complexity struct {
	Level          ComplexityLevel
	Score          int
	Joins          int
	HasSubquery    bool
	HasAggregation bool
	Factors        []string
}

var comparativeIntent = regexp.MustCompile(`(?i)compare|comparison|trend|year.over.year|\byoy\b|correlation`)

// EstimateComplexity scores sqlText from its text alone. question is only used
// to label the "Comparative analysis" factor and never changes the score.
func EstimateComplexity(sqlText, question string, w ComplexityWeights) Complexity {
	c := scanStructure(sqlText)

	if c.Joins > 0 {
		c.Score += c.Joins * nonNegative(w.Join)
		c.Factors = append(c.Factors, fmt.Sprintf("%d JOIN(s)", c.Joins))
	}
	if c.HasSubquery {
		c.Score += nonNegative(w.Subquery)
		c.Factors = append(c.Factors, "Subquery")
	}
	if c.HasAggregation {
		c.Score += nonNegative(w.Aggregation)
		c.Factors = append(c.Factors, "Aggregation")
	}
	if question != "" && comparativeIntent.MatchString(question) {
		c.Factors = append(c.Factors, "Comparative analysis")
	}
	if c.Factors == nil {
		c.Factors = []string{}
	}

	c.Level = ClassifyComplexity(c.Score)
	return c
}

// ClassifyComplexity maps a score to its level.
func ClassifyComplexity(score int) ComplexityLevel {
	switch {
	case score <= simpleMaxScore:
		return ComplexitySimple
	case score <= moderateMaxScore:
		return ComplexityModerate
	default:
		return ComplexityComplex
	}
}

// scanStructure counts JOINs and detects subqueries and aggregation using
// the tokenizer, so keywords inside literals are ignored. Text that cannot
// be tokenized falls back to a plain keyword scan.
func scanStructure(sqlText string) Complexity {
	tokens, err := Tokenize(sqlText)
	if err != nil {
		return scanStructureText(sqlText)
	}

	var c Complexity
	sig := significant(tokens)
	for i, t := range sig {
		switch {
		case t.IsWord("JOIN"):
			c.Joins++
		case t.IsWord("HAVING"):
			c.HasAggregation = true
		case t.IsWord("GROUP") && i+1 < len(sig) && sig[i+1].IsWord("BY"):
			c.HasAggregation = true
		case t.IsSymbol('(') && i+1 < len(sig) && sig[i+1].IsWord("SELECT"):
			c.HasSubquery = true
		}
	}
	return c
}

var (
	joinPattern        = regexp.MustCompile(`\bJOIN\b`)
	subqueryPattern    = regexp.MustCompile(`\(\s*SELECT\b`)
	aggregationPattern = regexp.MustCompile(`\bGROUP\s+BY\b|\bHAVING\b`)
)

func scanStructureText(sqlText string) Complexity {
	upper := strings.ToUpper(sqlText)
	return Complexity{
		Joins:          len(joinPattern.FindAllStringIndex(upper, -1)),
		HasSubquery:    subqueryPattern.MatchString(upper),
		HasAggregation: aggregationPattern.MatchString(upper),
	}
}

func nonNegative(n int) int {
	if n < 0 {
		return 0
	}
	return n
}
