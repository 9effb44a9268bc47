package matching

import (
	"strings"

	"github.com/getmockd/contractd/pkg/contract"
	"github.com/getmockd/contractd/pkg/pathexp"
	"github.com/getmockd/contractd/pkg/rules"
)

// Score constants for path matching.
// Higher scores indicate more specific expectations.
const (
	// ScorePathExact is the score for a literal path.
	ScorePathExact = 15

	// ScorePathTemplate is the score for a path with {name} parameters.
	ScorePathTemplate = 12

	// ScorePathRule is the score for a path governed by a rule at $.
	ScorePathRule = 10
)

// Score constants for method, header and query matching.
const (
	// ScoreMethod is the score for a method.
	ScoreMethod = 10

	// ScoreHeader is the score for each expected header.
	ScoreHeader = 10

	// ScoreQueryParam is the score for each expected query parameter.
	ScoreQueryParam = 5
)

// Score constants for body matching.
const (
	// ScoreBodyEquals is the score for a body compared without rules.
	ScoreBodyEquals = 25

	// ScoreBodyRules is the score for a body governed by rules.
	ScoreBodyRules = 20

	// ScoreBodyNoCriteria is the score when the body is not checked.
	ScoreBodyNoCriteria = 1
)

// Specificity scores how narrowly an expected request constrains what it
// accepts. Literal paths beat templates, and each header, query parameter
// and body adds to the score.
func Specificity(req contract.Request) int {
	score := ScoreMethod

	pathRules := req.Rules.Category(rules.CategoryPath)
	switch {
	case !pathRules.RulesFor(pathexp.Root()).IsEmpty():
		score += ScorePathRule
	case strings.Contains(req.Path, "{"):
		score += ScorePathTemplate
	default:
		score += ScorePathExact
	}

	score += len(req.Query) * ScoreQueryParam
	score += len(req.Headers) * ScoreHeader

	switch {
	case req.Body.State == contract.BodyMissing:
		score += ScoreBodyNoCriteria
	case req.Rules.Category(rules.CategoryBody).Len() > 0:
		score += ScoreBodyRules
	default:
		score += ScoreBodyEquals
	}
	return score
}
