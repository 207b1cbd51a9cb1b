// Package qcontext implements the Context Extractor (C5): deterministic
// pattern-based extraction of temporal, entity, comparison, aggregation,
// filter, output, scope, and ambiguity signals from a question.
package qcontext

import (
	"regexp"
	"strconv"
	"strings"

	"dtcore/internal/types"
)

var (
	yearRe         = regexp.MustCompile(`\b((?:19|20)\d{2})\b`)
	monthRe        = regexp.MustCompile(`(?i)\b(January|February|March|April|May|June|July|August|September|October|November|December|Jan|Feb|Mar|Apr|Jun|Jul|Aug|Sep|Oct|Nov|Dec)\b`)
	relativeRe     = regexp.MustCompile(`(?i)\b(last|next|previous|recent|current|this|past)\s+(year|month|week|quarter)`)
	rangeRe        = regexp.MustCompile(`(?i)(from|between)\s+.*\s+(to|and)\s+`)
	specificDateRe = regexp.MustCompile(`\b\d{1,2}[/-]\d{1,2}[/-]\d{2,4}\b`)

	doubleQuotedEntityRe = regexp.MustCompile(`"([^"]*)"`)
	singleQuotedEntityRe = regexp.MustCompile(`'([^']+)'(?:[^s]|$)`)
	possessiveRe         = regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+)*)'s\s+(\w+)`)
	topNRe               = regexp.MustCompile(`(?i)top\s+(\d+)|best\s+(\d+)|(\d+)\s+most`)
	versusRe             = regexp.MustCompile(`(?i)(\w+)\s+(?:vs|versus|compared to)\s+(\w+)`)
)

var comparisonKeywords = map[types.ComparisonType][]string{
	types.ComparisonVersus:     {"vs", "versus", "compared to", "against", "compare"},
	types.ComparisonRanking:    {"top", "best", "worst", "highest", "lowest", "most", "least"},
	types.ComparisonSimilarity: {"similar", "like", "same as", "different from", "differ"},
}

var aggregationOrder = []string{"average", "sum", "count", "max", "min"}

var aggregationKeywords = map[string][]string{
	"average": {"average", "mean", "avg"},
	"sum":     {"total", "sum", "combined", "altogether"},
	"count":   {"count", "number of", "how many"},
	"max":     {"maximum", "max", "highest", "most"},
	"min":     {"minimum", "min", "lowest", "least"},
}

var scopeOrder = []string{"all", "only", "except"}

var scopeKeywords = map[string][]string{
	"all":    {"all", "every", "each", "entire", "whole"},
	"only":   {"only", "just", "solely", "exclusively"},
	"except": {"except", "excluding", "but not", "without"},
}

var questionWords = map[string]bool{
	"What": true, "How": true, "When": true, "Where": true, "Why": true,
	"Which": true, "Who": true, "Compare": true,
}

// Extractor derives a QuestionContext from a raw question string.
type Extractor struct{}

// NewExtractor builds a context Extractor.
func NewExtractor() *Extractor {
	return &Extractor{}
}

// Extract runs the full extraction pipeline over a question.
func (e *Extractor) Extract(question string) types.QuestionContext {
	ctx := types.QuestionContext{
		EntityConstraints: make(map[string]string),
	}
	lower := strings.ToLower(question)

	requiresTemporalAnalysis := e.extractTemporal(question, &ctx)
	e.extractEntities(question, &ctx)
	e.extractComparison(lower, &ctx)
	e.extractAggregation(lower, &ctx)
	e.extractFilters(question, &ctx)
	e.extractOutputHints(lower, &ctx)
	e.extractScope(lower, &ctx)
	e.assessAmbiguity(question, &ctx, requiresTemporalAnalysis)

	return ctx
}

// extractTemporal fills in the context's temporal fields and reports
// whether the question requires temporal analysis beyond a plain date
// mention (relative dates, ranges, or temporal keywords).
func (e *Extractor) extractTemporal(question string, ctx *types.QuestionContext) bool {
	requiresTemporal := false

	if m := yearRe.FindAllString(question, -1); len(m) > 0 {
		ctx.HasTemporal = true
		ctx.TemporalConstraints = append(ctx.TemporalConstraints, m...)
	}
	if m := monthRe.FindAllString(question, -1); len(m) > 0 {
		ctx.HasTemporal = true
		ctx.TemporalConstraints = append(ctx.TemporalConstraints, m...)
	}
	if m := specificDateRe.FindAllString(question, -1); len(m) > 0 {
		ctx.HasTemporal = true
		ctx.TemporalConstraints = append(ctx.TemporalConstraints, m...)
	}
	if m := relativeRe.FindAllStringSubmatch(question, -1); len(m) > 0 {
		ctx.HasTemporal = true
		requiresTemporal = true
		for _, g := range m {
			ctx.TemporalConstraints = append(ctx.TemporalConstraints, g[1]+" "+g[2])
		}
	}
	if rangeRe.MatchString(question) {
		ctx.HasTemporal = true
		requiresTemporal = true
	}

	lower := strings.ToLower(question)
	for _, kw := range []string{"when", "timeline", "chronological", "evolution", "history", "trend"} {
		if strings.Contains(lower, kw) {
			ctx.HasTemporal = true
			requiresTemporal = true
			break
		}
	}

	return requiresTemporal
}

func (e *Extractor) extractEntities(question string, ctx *types.QuestionContext) {
	cleanQuestion := strings.ReplaceAll(question, "'s", " ")
	words := strings.Fields(cleanQuestion)

	var entities []string
	for _, w := range words {
		if w == "" || !isUpperFirst(w) || questionWords[w] {
			continue
		}
		clean := strings.TrimRight(w, "?.,!:;")
		if clean != "" && !questionWords[clean] {
			entities = append(entities, clean)
		}
	}

	for _, m := range doubleQuotedEntityRe.FindAllStringSubmatch(question, -1) {
		entities = append(entities, m[1])
	}
	for _, m := range singleQuotedEntityRe.FindAllStringSubmatch(question, -1) {
		entities = append(entities, strings.TrimSuffix(m[1], "'"))
	}

	seen := make(map[string]bool, len(entities))
	unique := make([]string, 0, len(entities))
	for _, ent := range entities {
		if !seen[ent] {
			seen[ent] = true
			unique = append(unique, ent)
		}
	}
	ctx.MentionedEntities = unique

	entitySet := make(map[string]bool, len(unique))
	for _, ent := range unique {
		entitySet[ent] = true
	}
	for _, m := range possessiveRe.FindAllStringSubmatch(question, -1) {
		name, constraint := m[1], m[2]
		if entitySet[name] {
			ctx.EntityConstraints[name] = constraint
		}
	}
}

func (e *Extractor) extractComparison(lower string, ctx *types.QuestionContext) {
	if containsAny(lower, comparisonKeywords[types.ComparisonRanking]) {
		ctx.RequiresComparison = true
		ctx.ComparisonType = types.ComparisonRanking
	} else {
		for _, ct := range []types.ComparisonType{types.ComparisonVersus, types.ComparisonRanking, types.ComparisonSimilarity} {
			if containsAny(lower, comparisonKeywords[ct]) {
				ctx.RequiresComparison = true
				ctx.ComparisonType = ct
				break
			}
		}
	}

	if m := topNRe.FindStringSubmatch(lower); m != nil {
		for _, g := range m[1:] {
			if g != "" {
				if n, err := strconv.Atoi(g); err == nil {
					ctx.ComparisonCount = n
				}
				break
			}
		}
	}

	if ctx.RequiresComparison && len(ctx.MentionedEntities) >= 2 {
		ctx.ComparisonEntities = append([]string(nil), ctx.MentionedEntities[:2]...)

		if m := versusRe.FindStringSubmatch(lower); m != nil {
			ctx.ComparisonEntities = []string{m[1], m[2]}
		}
	}
}

func (e *Extractor) extractAggregation(lower string, ctx *types.QuestionContext) {
	for _, aggType := range aggregationOrder {
		if containsAny(lower, aggregationKeywords[aggType]) {
			ctx.RequiresAggregation = true
			ctx.AggregationType = aggType
			break
		}
	}

	if !ctx.RequiresAggregation {
		return
	}

	switch {
	case strings.Contains(lower, "entities"):
		ctx.AggregationScope = "all entities"
	case containsAny(lower, []string{"all", "every", "total"}):
		ctx.AggregationScope = "all"
	case containsAny(lower, []string{"filtered", "selected", "specific"}):
		ctx.AggregationScope = "filtered"
	case containsAny(lower, []string{"by", "per", "grouped"}):
		ctx.AggregationScope = "grouped"
	default:
		ctx.AggregationScope = "all"
	}
}

func (e *Extractor) extractFilters(question string, ctx *types.QuestionContext) {
	filterKeywords := []string{"where", "with", "having", "that have", "which have", "containing"}
	for _, kw := range filterKeywords {
		re := regexp.MustCompile(`(?i)` + regexp.QuoteMeta(kw) + `\s+([^,\.]+)`)
		for _, m := range re.FindAllStringSubmatch(question, -1) {
			ctx.HasFilters = true
			ctx.FilterConditions = append(ctx.FilterConditions, m[1])
		}
	}

	exclusionPatterns := []string{`except\s+([^,\.]+)`, `excluding\s+([^,\.]+)`, `but not\s+([^,\.]+)`}
	for _, p := range exclusionPatterns {
		re := regexp.MustCompile(`(?i)` + p)
		for _, m := range re.FindAllStringSubmatch(question, -1) {
			ctx.HasFilters = true
			ctx.FilterConditions = append(ctx.FilterConditions, "NOT "+m[1])
		}
	}
}

func (e *Extractor) extractOutputHints(lower string, ctx *types.QuestionContext) {
	vizKeywords := []string{"visualize", "graph", "chart", "diagram", "plot", "tree", "network"}
	if containsAny(lower, vizKeywords) {
		ctx.OutputHints = append(ctx.OutputHints, "visualization")
	}
	if strings.Contains(lower, "list") {
		ctx.OutputHints = append(ctx.OutputHints, "list")
	}
	if strings.Contains(lower, "table") {
		ctx.OutputHints = append(ctx.OutputHints, "table")
	}
	if strings.Contains(lower, "summary") {
		ctx.OutputHints = append(ctx.OutputHints, "summary")
	}
	if strings.Contains(lower, "detailed") || strings.Contains(lower, "detail") {
		ctx.OutputHints = append(ctx.OutputHints, "detailed")
	}
	if strings.Contains(lower, "brief") || strings.Contains(lower, "concise") {
		ctx.OutputHints = append(ctx.OutputHints, "brief")
	}
}

func (e *Extractor) extractScope(lower string, ctx *types.QuestionContext) {
	for _, scopeType := range scopeOrder {
		if containsAny(lower, scopeKeywords[scopeType]) {
			ctx.ScopeModifiers = append(ctx.ScopeModifiers, scopeType)
		}
	}

	negationWords := []string{"not", "no", "don't", "doesn't", "isn't", "aren't", "without"}
	if containsAny(lower, negationWords) {
		ctx.HasNegation = true
	}
}

func (e *Extractor) assessAmbiguity(question string, ctx *types.QuestionContext, requiresTemporalAnalysis bool) {
	lower := strings.ToLower(question)
	score := 0.0

	vaguePronouns := []string{"it", "they", "them", "these", "those", "this", "that"}
	for _, pronoun := range vaguePronouns {
		if strings.Contains(lower, " "+pronoun+" ") && len(ctx.MentionedEntities) == 0 {
			score += 0.2
			ctx.MissingContext = append(ctx.MissingContext, "entity_reference")
		}
	}

	if len(ctx.MentionedEntities) == 0 && !strings.Contains(lower, "document") {
		score += 0.3
		ctx.MissingContext = append(ctx.MissingContext, "specific_entities")
	}

	if requiresTemporalAnalysis && len(ctx.TemporalConstraints) == 0 {
		score += 0.2
		ctx.MissingContext = append(ctx.MissingContext, "time_period")
	}

	if ctx.RequiresComparison && len(ctx.ComparisonEntities) < 2 {
		score += 0.2
		ctx.MissingContext = append(ctx.MissingContext, "comparison_targets")
	}

	if score > 1.0 {
		score = 1.0
	}
	ctx.Ambiguity = score
}

func isUpperFirst(s string) bool {
	if s == "" {
		return false
	}
	r := s[0]
	return r >= 'A' && r <= 'Z'
}

func containsAny(s string, candidates []string) bool {
	for _, c := range candidates {
		if strings.Contains(s, c) {
			return true
		}
	}
	return false
}
