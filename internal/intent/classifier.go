// Package intent implements the Intent Classifier (C3): multi-dimensional
// question classification over a fixed set of 15 intents, scored by
// keyword and regex-pattern hits against per-intent pattern tables.
package intent

import (
	"regexp"
	"sort"
	"strings"

	"dtcore/internal/types"
)

// patternSet is one intent's scoring configuration.
type patternSet struct {
	keywords []string
	patterns []*regexp.Regexp
	weight   float64
}

// Classifier scores a question against the fixed intent table and derives
// recommended tools and multi-step requirements.
type Classifier struct {
	patterns     map[types.Intent]patternSet
	intentTools  map[types.Intent][]types.ToolID
}

// NewClassifier builds a Classifier with the canonical intent pattern and
// tool-mapping tables.
func NewClassifier() *Classifier {
	return &Classifier{
		patterns:    defaultPatterns(),
		intentTools: defaultIntentTools(),
	}
}

// Classify scores question against every known intent and derives the
// primary/secondary intents, confidence, recommended tools, and
// requiresMultiStep flag.
func (c *Classifier) Classify(question string) types.IntentResult {
	lower := strings.ToLower(question)

	scores := make(map[types.Intent]float64, len(types.AllIntents))
	for _, i := range types.AllIntents {
		scores[i] = 0
	}

	for _, i := range types.AllIntents {
		ps, ok := c.patterns[i]
		if !ok {
			continue
		}
		score := 0.0
		for _, kw := range ps.keywords {
			if strings.Contains(lower, kw) {
				score += 0.4 * ps.weight
			}
		}
		for _, re := range ps.patterns {
			if re.MatchString(lower) {
				score += 0.6 * ps.weight
			}
		}
		scores[i] = score
	}

	ordered := append([]types.Intent(nil), types.AllIntents...)
	sort.SliceStable(ordered, func(i, j int) bool { return scores[ordered[i]] > scores[ordered[j]] })

	if question == "" {
		return types.IntentResult{
			Primary:          ordered[0],
			PerIntentScore:   scores,
			Confidence:       0,
			RecommendedTools: c.recommendedTools(ordered[0], nil),
		}
	}

	primary := ordered[0]
	primaryScore := scores[primary]

	var secondary []types.Intent
	for _, i := range ordered[1:] {
		s := scores[i]
		if s > 0.3 && s >= primaryScore*0.5 {
			secondary = append(secondary, i)
		}
	}

	confidence := c.confidence(primaryScore, scores)
	recommended := c.recommendedTools(primary, secondary)
	hasMultipleParts := strings.Contains(lower, " and ") || strings.Contains(question, ",")

	return types.IntentResult{
		Primary:           primary,
		Secondary:         secondary,
		PerIntentScore:    scores,
		Confidence:        confidence,
		RequiresMultiStep: len(secondary) > 0 || hasMultipleParts,
		RecommendedTools:  recommended,
	}
}

func (c *Classifier) confidence(primaryScore float64, scores map[types.Intent]float64) float64 {
	if primaryScore == 0 {
		return 0
	}

	base := primaryScore
	if base > 1.0 {
		base = 1.0
	}

	total := 0.0
	for _, s := range scores {
		total += s
	}
	if total > 0 {
		ratio := primaryScore / total
		if ratio > 0.5 {
			base *= 1.2
			if base > 1.0 {
				base = 1.0
			}
		} else if ratio < 0.3 {
			base *= 0.8
		}
	}
	return round2(base)
}

func (c *Classifier) recommendedTools(primary types.Intent, secondary []types.Intent) map[types.ToolID]bool {
	tools := make(map[types.ToolID]bool)
	for _, t := range c.intentTools[primary] {
		tools[t] = true
	}
	for _, i := range secondary {
		for _, t := range c.intentTools[i] {
			tools[t] = true
		}
	}
	tools["T01_PDF_LOADER"] = true
	tools["T15A_TEXT_CHUNKER"] = true
	return tools
}

func round2(v float64) float64 {
	return float64(int(v*100+0.5)) / 100
}

func defaultPatterns() map[types.Intent]patternSet {
	compile := func(exprs ...string) []*regexp.Regexp {
		out := make([]*regexp.Regexp, 0, len(exprs))
		for _, e := range exprs {
			out = append(out, regexp.MustCompile(e))
		}
		return out
	}

	return map[types.Intent]patternSet{
		types.IntentDocumentSummary: {
			keywords: []string{"about", "summary", "overview", "describe", "main points", "gist"},
			patterns: compile(`what.*document.*about`, `summarize`, `give.*overview`),
			weight:   1.0,
		},
		types.IntentEntityExtraction: {
			keywords: []string{"entities", "mentions", "names", "companies", "people", "organizations", "who"},
			patterns: compile(`what.*mentioned`, `which.*entities`, `list.*companies`, `^what\s+\w+\s+are\s+mentioned`),
			weight:   1.0,
		},
		types.IntentRelationshipAnalysis: {
			keywords: []string{"relate", "relationship", "connection", "between", "interact", "associated"},
			patterns: compile(`how.*relate`, `relationship.*between`, `connections?`),
			weight:   1.0,
		},
		types.IntentTheme: {
			keywords: []string{"themes", "topics", "subjects", "main ideas", "concepts"},
			patterns: compile(`main.*themes?`, `key.*topics?`, `central.*ideas?`),
			weight:   1.0,
		},
		types.IntentSpecificSearch: {
			keywords: []string{"find", "search", "locate", "information about", "details on"},
			patterns: compile(`find.*about`, `search.*for`, `information.*(?:about|on)`),
			weight:   0.9,
		},
		types.IntentComparative: {
			keywords: []string{"compare", "contrast", "versus", "vs", "difference", "similar", "differ"},
			patterns: compile(`compare.*(?:and|with)`, `difference.*between`, `contrast`),
			weight:   1.2,
		},
		types.IntentPatternDiscovery: {
			keywords: []string{"pattern", "trend", "recurring", "common", "emerge", "identify patterns"},
			patterns: compile(`what.*patterns?`, `identify.*trends?`, `recurring.*themes?`),
			weight:   1.1,
		},
		types.IntentPredictive: {
			keywords: []string{"predict", "forecast", "future", "will", "expect", "anticipate", "projection"},
			patterns: compile(`predict.*future`, `what.*will`, `forecast`),
			weight:   1.3,
		},
		types.IntentCausal: {
			keywords: []string{"cause", "effect", "because", "why", "reason", "lead to", "result"},
			patterns: compile(`what.*caused?`, `why.*happen`, `causal.*relationship`),
			weight:   1.2,
		},
		types.IntentTemporal: {
			keywords: []string{"timeline", "when", "chronological", "sequence", "history", "evolution", "over time"},
			patterns: compile(`timeline`, `chronological.*order`, `when.*happen`),
			weight:   1.1,
		},
		types.IntentStatistical: {
			keywords: []string{"statistics", "correlation", "average", "mean", "median", "distribution", "percentage"},
			patterns: compile(`statistical.*analysis`, `correlation`, `average`),
			weight:   1.2,
		},
		types.IntentAnomaly: {
			keywords: []string{"anomaly", "outlier", "unusual", "abnormal", "exception", "irregular"},
			patterns: compile(`identify.*anomal`, `find.*outliers?`, `unusual.*patterns?`),
			weight:   1.1,
		},
		types.IntentSentiment: {
			keywords: []string{"sentiment", "opinion", "feeling", "positive", "negative", "emotion", "attitude"},
			patterns: compile(`sentiment.*analysis`, `what.*opinion`, `positive.*negative`, `what.*sentiment`),
			weight:   1.3,
		},
		types.IntentHierarchical: {
			keywords: []string{"hierarchy", "structure", "organize", "categorize", "taxonomy", "tree", "levels"},
			patterns: compile(`hierarchical.*(?:view|structure)`, `organize.*categories`),
			weight:   1.0,
		},
		types.IntentNetwork: {
			keywords: []string{"network", "graph", "connections", "nodes", "centrality", "cluster"},
			patterns: compile(`network.*(?:analysis|effect)`, `graph.*structure`),
			weight:   1.1,
		},
	}
}

func defaultIntentTools() map[types.Intent][]types.ToolID {
	return map[types.Intent][]types.ToolID{
		types.IntentDocumentSummary:      {"T01_PDF_LOADER", "T15A_TEXT_CHUNKER", "T23A_SPACY_NER"},
		types.IntentEntityExtraction:     {"T23A_SPACY_NER", "T31_ENTITY_BUILDER"},
		types.IntentRelationshipAnalysis: {"T27_RELATIONSHIP_EXTRACTOR", "T34_EDGE_BUILDER"},
		types.IntentTheme:                {"T23A_SPACY_NER", "T27_RELATIONSHIP_EXTRACTOR"},
		types.IntentSpecificSearch:       {"T49_MULTI_HOP_QUERY"},
		types.IntentComparative:          {"T23A_SPACY_NER", "T27_RELATIONSHIP_EXTRACTOR", "T49_MULTI_HOP_QUERY"},
		types.IntentPatternDiscovery:     {"T23A_SPACY_NER", "T27_RELATIONSHIP_EXTRACTOR", "T68_PAGE_RANK"},
		types.IntentPredictive:           {"T23A_SPACY_NER", "T27_RELATIONSHIP_EXTRACTOR", "T68_PAGE_RANK"},
		types.IntentCausal:               {"T27_RELATIONSHIP_EXTRACTOR", "T49_MULTI_HOP_QUERY"},
		types.IntentTemporal:             {"T23A_SPACY_NER", "T27_RELATIONSHIP_EXTRACTOR"},
		types.IntentStatistical:          {"T23A_SPACY_NER", "T68_PAGE_RANK"},
		types.IntentAnomaly:              {"T23A_SPACY_NER", "T68_PAGE_RANK"},
		types.IntentSentiment:            {"T23A_SPACY_NER"},
		types.IntentHierarchical:         {"T23A_SPACY_NER", "T31_ENTITY_BUILDER", "T27_RELATIONSHIP_EXTRACTOR"},
		types.IntentNetwork:              {"T27_RELATIONSHIP_EXTRACTOR", "T34_EDGE_BUILDER", "T68_PAGE_RANK"},
	}
}
