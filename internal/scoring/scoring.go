// Package scoring holds the pure score engine. Every function is
// deterministic and side-effect free; absent results are nil pointers, never
// zero values.
package scoring

// DefaultPassThreshold applies when a tenant policy does not override it.
const DefaultPassThreshold = 0.7

// ScoreMCAnswer scores a multiple-choice answer by exact, case-sensitive
// string equality. Two empty strings compare equal and score 1.0.
func ScoreMCAnswer(selected, correct string) float64 {
	if selected == correct {
		return 1.0
	}
	return 0.0
}

// ComputeModuleScore returns the arithmetic mean of the concatenation of
// scenario and quiz scores, or nil if both lists are empty. How the same
// values are split across the two lists never changes the result.
func ComputeModuleScore(scenarioScores, quizScores []float64) *float64 {
	n := len(scenarioScores) + len(quizScores)
	if n == 0 {
		return nil
	}
	var sum float64
	for _, s := range scenarioScores {
		sum += s
	}
	for _, s := range quizScores {
		sum += s
	}
	mean := sum / float64(n)
	return &mean
}

// ComputeAggregateScore returns the arithmetic mean across module scores, or
// nil if there are none.
func ComputeAggregateScore(moduleScores []float64) *float64 {
	if len(moduleScores) == 0 {
		return nil
	}
	var sum float64
	for _, s := range moduleScores {
		sum += s
	}
	mean := sum / float64(len(moduleScores))
	return &mean
}

// IsPassing reports whether score meets threshold; the boundary is passing.
func IsPassing(score, threshold float64) bool {
	return score >= threshold
}

// ModuleResult pairs a scored module's topic area with its score for weak
// area identification.
type ModuleResult struct {
	TopicArea string
	Score     float64
}

// IdentifyWeakAreas returns the topic areas of modules scoring strictly below
// threshold, preserving input order. A module exactly at threshold is never
// weak.
func IdentifyWeakAreas(modules []ModuleResult, threshold float64) []string {
	weak := make([]string, 0, len(modules))
	for _, m := range modules {
		if m.Score < threshold {
			weak = append(weak, m.TopicArea)
		}
	}
	return weak
}
