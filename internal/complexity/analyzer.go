// Package complexity implements the Complexity Analyzer (C4): scores a
// question's estimated difficulty from weighted structural factors and
// derives a tool-count/time/memory estimate and an execution strategy hint.
package complexity

import (
	"regexp"
	"strings"
	"time"

	"dtcore/internal/types"
)

var (
	capitalizedWordRe = regexp.MustCompile(`\b[A-Z][a-z]+\b`)
	doubleQuotedRe     = regexp.MustCompile(`"[^"]*"`)
	singleQuotedRe     = regexp.MustCompile(`'[^']*'`)
)

var complexityWeights = map[string]float64{
	"word_count":     0.1,
	"entity_mentions": 0.2,
	"multi_part":      0.3,
	"comparison":      0.2,
	"aggregation":     0.2,
	"temporal":        0.15,
	"inference":       0.25,
	"nested_clauses":  0.2,
}

var nestedIndicators = map[string]bool{
	"which": true, "that": true, "who": true, "where": true, "when": true,
	"if": true, "unless": true, "because": true, "although": true,
}

// Analyzer computes a ComplexityResult for a question, optionally informed
// by a preceding IntentResult.
type Analyzer struct{}

// NewAnalyzer builds a complexity Analyzer.
func NewAnalyzer() *Analyzer {
	return &Analyzer{}
}

// Analyze scores the question's complexity factors, classifies its level,
// and estimates the tool count, execution time, memory, and strategy hint.
func (a *Analyzer) Analyze(question string, intentResult *types.IntentResult) types.ComplexityResult {
	factors := a.complexityFactors(question)

	score := 0.0
	for name, value := range factors {
		w, ok := complexityWeights[name]
		if !ok {
			w = 0.1
		}
		score += value * w
	}

	var level types.ComplexityLevel
	switch {
	case score < 0.3:
		level = types.ComplexitySimple
	case score < 0.7:
		level = types.ComplexityModerate
	default:
		level = types.ComplexityComplex
	}

	estimatedTools := a.estimateToolCount(factors, intentResult)
	parallelizable := a.identifyParallelizableComponents(question)
	estimatedTime := a.estimateExecutionTime(estimatedTools, parallelizable)
	estimatedMemory := a.estimateMemoryRequirements(estimatedTools)
	strategyHint := a.determineExecutionStrategy(level, parallelizable)

	return types.ComplexityResult{
		Level:                    level,
		EstimatedTools:           estimatedTools,
		ParallelizableComponents: parallelizable,
		EstimatedTime:            estimatedTime,
		EstimatedMemory:          estimatedMemory,
		ExecutionStrategyHint:    strategyHint,
		Factors:                  factors,
		Score:                    score,
	}
}

func (a *Analyzer) complexityFactors(question string) map[string]float64 {
	lower := strings.ToLower(question)
	words := strings.Fields(question)

	clamp := func(v float64) float64 {
		if v > 1.0 {
			return 1.0
		}
		return v
	}

	hasAny := func(s string, words ...string) bool {
		for _, w := range words {
			if strings.Contains(s, w) {
				return true
			}
		}
		return false
	}

	multiPart := strings.Contains(question, " and ") || strings.Contains(question, ", ") || strings.Contains(question, ";")

	return map[string]float64{
		"word_count":      clamp(float64(len(words)) / 20.0),
		"entity_mentions":  clamp(float64(a.countEntityMentions(question)) / 5.0),
		"multi_part":       boolToFloat(multiPart),
		"comparison":       boolToFloat(hasAny(lower, "compare", "versus", "difference")),
		"aggregation":      boolToFloat(hasAny(lower, "all", "total", "average", "every")),
		"temporal":         boolToFloat(hasAny(lower, "when", "timeline", "history", "year", "temporal", "patterns", "chronological", "evolution", "trend")),
		"inference":        boolToFloat(hasAny(lower, "why", "predict", "cause", "will", "causal", "mechanisms", "explain", "reasoning")),
		"nested_clauses":   clamp(float64(a.countNestedClauses(question)) / 3.0),
	}
}

func (a *Analyzer) countEntityMentions(question string) int {
	capitalized := capitalizedWordRe.FindAllString(question, -1)
	quoted := doubleQuotedRe.FindAllString(question, -1)
	quoted = append(quoted, singleQuotedRe.FindAllString(question, -1)...)
	return len(capitalized) + len(quoted)
}

func (a *Analyzer) countNestedClauses(question string) int {
	count := 0
	for _, w := range strings.Fields(strings.ToLower(question)) {
		if nestedIndicators[w] {
			count++
		}
	}
	count += strings.Count(question, "(") + strings.Count(question, ",")
	return count
}

func (a *Analyzer) estimateToolCount(factors map[string]float64, intentResult *types.IntentResult) int {
	const baseTools = 3
	additional := 0

	if factors["entity_mentions"] > 0.5 {
		additional += 2
	}
	if factors["comparison"] > 0 {
		additional++
	}
	if factors["aggregation"] > 0 {
		additional++
	}
	if factors["inference"] > 0 {
		additional++
	}
	if factors["temporal"] > 0 {
		additional++
	}
	if factors["multi_part"] > 0 {
		additional++
	}

	if intentResult != nil && len(intentResult.RecommendedTools) > 0 {
		fromIntent := len(intentResult.RecommendedTools) - baseTools
		if fromIntent > additional {
			additional = fromIntent
		}
	}

	return baseTools + additional
}

func (a *Analyzer) identifyParallelizableComponents(question string) int {
	parallelizable := 0

	if strings.Contains(question, " and ") {
		clauses := strings.Split(question, " and ")
		independent := 0
		for i, clause := range clauses {
			isIndependent := true
			for j, other := range clauses {
				if i == j {
					continue
				}
				_ = other
				if hasReferenceWord(strings.ToLower(clause)) {
					isIndependent = false
					break
				}
			}
			if isIndependent {
				independent++
			}
		}
		if independent > 1 {
			parallelizable = independent - 1
		}
	}

	lower := strings.ToLower(question)
	var parallelAnalyses []string
	if strings.Contains(lower, "sentiment") {
		parallelAnalyses = append(parallelAnalyses, "sentiment")
	}
	if strings.Contains(lower, "theme") || strings.Contains(lower, "topic") {
		parallelAnalyses = append(parallelAnalyses, "theme")
	}
	if strings.Contains(lower, "pattern") {
		parallelAnalyses = append(parallelAnalyses, "pattern")
	}
	if strings.Contains(lower, "statistic") {
		parallelAnalyses = append(parallelAnalyses, "statistics")
	}
	if len(parallelAnalyses) > 1 && len(parallelAnalyses)-1 > parallelizable {
		parallelizable = len(parallelAnalyses) - 1
	}

	return parallelizable
}

func hasReferenceWord(clause string) bool {
	for _, w := range []string{"their", "these", "those", "it"} {
		if strings.Contains(clause, w) {
			return true
		}
	}
	return false
}

func (a *Analyzer) estimateExecutionTime(toolCount, parallelizable int) time.Duration {
	const avgToolTimeSeconds = 1.0
	sequential := float64(toolCount) * avgToolTimeSeconds

	if parallelizable > 0 {
		reduction := float64(parallelizable) * 0.5
		maxReduction := sequential * 0.4
		if reduction > maxReduction {
			reduction = maxReduction
		}
		sequential -= reduction
	}

	return time.Duration(sequential * float64(time.Second))
}

func (a *Analyzer) estimateMemoryRequirements(toolCount int) int {
	const baseMemory = 200
	const memoryPerTool = 100

	highMemoryCount := toolCount / 3
	if highMemoryCount > 2 {
		highMemoryCount = 2
	}

	return baseMemory + toolCount*memoryPerTool + highMemoryCount*200
}

func (a *Analyzer) determineExecutionStrategy(level types.ComplexityLevel, parallelizable int) string {
	switch level {
	case types.ComplexitySimple:
		return "sequential"
	case types.ComplexityModerate:
		if parallelizable > 0 {
			return "parallel_simple"
		}
		return "sequential_optimized"
	default:
		if parallelizable >= 2 {
			return "parallel_advanced"
		}
		if parallelizable > 0 {
			return "hybrid"
		}
		return "sequential_chunked"
	}
}

func boolToFloat(b bool) float64 {
	if b {
		return 1.0
	}
	return 0.0
}
