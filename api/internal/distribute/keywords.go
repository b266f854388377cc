package distribute

import (
	"regexp"

	"evater/api/internal/exam"
)

var (
	reOnly     = regexp.MustCompile(`\b(only|just|solely|exclusively)\b`)
	reNegation = regexp.MustCompile(`\b(no|not|without|avoid|exclude|excluding|except|skip)\b`)
)

var typeMentions = []struct {
	re    *regexp.Regexp
	types []exam.QuestionType
}{
	{regexp.MustCompile(`\bmcqs?\b|multiple[\s-]*choice|\bobjective\b`), []exam.QuestionType{exam.MCQ}},
	{regexp.MustCompile(`\btrue\s*(/|-|or)?\s*false\b|\bt\s*/\s*f\b`), []exam.QuestionType{exam.TrueFalse}},
	{regexp.MustCompile(`\bshort[\s-]*(answers?|questions?)\b|\bshort[\s-]*answer[\s-]*type\b`), []exam.QuestionType{exam.ShortAnswer}},
	{regexp.MustCompile(`\blong[\s-]*(answers?|questions?)\b|\bessays?\b|\bdescriptive\b`), []exam.QuestionType{exam.LongAnswer}},
	{regexp.MustCompile(`\bsubjective\b`), []exam.QuestionType{exam.ShortAnswer, exam.LongAnswer}},
}

// reClause splits "no mcq, only subjective" into independent clauses.
var reClause = regexp.MustCompile(`[,;]|\bbut\b`)
