// Package synthesis implements the Response Synthesizer (C13): it turns a
// Dynamic Executor RunOutcome into a structured SynthesisResult by
// categorizing each successful tool's output into content buckets
// (entities, relationships, themes, metrics, summaries, other), resolving
// disagreement within a bucket per a ConflictPolicy, emitting fragments,
// and composing a primary response ordered by a SynthesisStrategy.
package synthesis

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"dtcore/internal/types"
)

// bucket names the content category a tool's output is categorized into.
// Categorization reads the *shape* of a tool's Data (which keys it carries),
// never the ToolID itself, so a new tool slots into the right bucket just
// by naming its outputs the way an entity/relationship/metric producer
// would.
type bucket string

const (
	bucketEntities      bucket = "entities"
	bucketRelationships bucket = "relationships"
	bucketThemes        bucket = "themes"
	bucketMetrics       bucket = "metrics"
	bucketSummaries     bucket = "summaries"
	bucketOther         bucket = "other"
)

var bucketOrder = []bucket{bucketEntities, bucketRelationships, bucketThemes, bucketMetrics, bucketSummaries, bucketOther}

// observation is one tool's output placed into a bucket, carrying enough of
// the original ToolOutcome to resolve conflicts and extract content.
type observation struct {
	toolID     types.ToolID
	outcome    types.ToolOutcome
	priority   float64
}

// Synthesizer implements the Response Synthesizer.
type Synthesizer struct {
	toolPriorities map[types.ToolID]float64
}

// New builds a Synthesizer with the default source-priority table used by
// ConflictSourcePriority: graph/query tools outrank raw extraction, which
// outranks plain ingestion.
func New() *Synthesizer {
	return &Synthesizer{
		toolPriorities: map[types.ToolID]float64{
			"T68_PAGE_RANK":              0.9,
			"T49_MULTI_HOP_QUERY":        0.9,
			"T23A_SPACY_NER":             0.8,
			"T27_RELATIONSHIP_EXTRACTOR": 0.8,
			"T31_ENTITY_BUILDER":         0.7,
			"T34_EDGE_BUILDER":           0.7,
			"T15A_TEXT_CHUNKER":          0.6,
			"T01_PDF_LOADER":             0.5,
		},
	}
}

func (s *Synthesizer) priority(id types.ToolID) float64 {
	if p, ok := s.toolPriorities[id]; ok {
		return p
	}
	return 0.5
}

// Synthesize builds a SynthesisResult from a completed run.
func (s *Synthesizer) Synthesize(run types.RunOutcome, question string, strategy types.SynthesisStrategy, policy types.ConflictPolicy) types.SynthesisResult {
	organized := s.organize(run)
	resolved := s.resolveConflicts(organized, policy)

	fragments := s.buildFragments(resolved)
	primary := s.composePrimaryResponse(fragments, question, strategy)
	quality := s.qualityMetrics(fragments, organized)
	coverage := toolCoverage(fragments)
	alternatives := s.alternatives(organized, policy)
	caveats := s.caveats(quality.OverallConfidence, fragments, organized)

	return types.SynthesisResult{
		PrimaryResponse:   primary,
		Fragments:         fragments,
		OverallConfidence: quality.OverallConfidence,
		Strategy:          strategy,
		ToolCoverage:      coverage,
		QualityMetrics:    quality,
		Alternatives:      alternatives,
		Caveats:           caveats,
	}
}

// organize partitions every successful tool outcome into content buckets by
// the keys present in its Data map.
func (s *Synthesizer) organize(run types.RunOutcome) map[bucket][]observation {
	organized := make(map[bucket][]observation, len(bucketOrder))
	for _, b := range bucketOrder {
		organized[b] = nil
	}

	for toolID, outcome := range run.PerToolOutcomes {
		if outcome.Status != types.OutcomeSuccess {
			continue
		}
		b := classify(outcome.Data)
		organized[b] = append(organized[b], observation{toolID: toolID, outcome: outcome, priority: s.priority(toolID)})
	}
	return organized
}

func classify(data map[string]interface{}) bucket {
	switch {
	case hasAny(data, "entities"):
		return bucketEntities
	case hasAny(data, "relationships"):
		return bucketRelationships
	case hasAny(data, "theme", "themes", "topics"):
		return bucketThemes
	case hasAny(data, "rankings", "graph_nodes", "graph_edges"):
		return bucketMetrics
	case hasAny(data, "query_results", "summary", "summaries"):
		return bucketSummaries
	default:
		return bucketOther
	}
}

func hasAny(data map[string]interface{}, keys ...string) bool {
	for _, k := range keys {
		if _, ok := data[k]; ok {
			return true
		}
	}
	return false
}

// resolveConflicts applies policy independently within each bucket.
func (s *Synthesizer) resolveConflicts(organized map[bucket][]observation, policy types.ConflictPolicy) map[bucket][]observation {
	resolved := make(map[bucket][]observation, len(organized))
	for b, obs := range organized {
		if len(obs) <= 1 {
			resolved[b] = obs
			continue
		}
		switch policy {
		case types.ConflictMajority:
			resolved[b] = resolveByMajority(obs)
		case types.ConflictSourcePriority:
			resolved[b] = resolveByPriority(obs)
		case types.ConflictConsensusOnly:
			resolved[b] = resolveByConsensus(obs)
		case types.ConflictAllPerspectives:
			resolved[b] = obs
		default:
			resolved[b] = resolveByConfidence(obs)
		}
	}
	return resolved
}

func resolveByConfidence(obs []observation) []observation {
	sorted := append([]observation(nil), obs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].outcome.Confidence > sorted[j].outcome.Confidence })
	threshold := sorted[0].outcome.Confidence * 0.8
	var kept []observation
	for _, o := range sorted {
		if o.outcome.Confidence >= threshold {
			kept = append(kept, o)
		}
	}
	return kept
}

func resolveByPriority(obs []observation) []observation {
	sorted := append([]observation(nil), obs...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].priority > sorted[j].priority })
	threshold := sorted[0].priority * 0.9
	var kept []observation
	for _, o := range sorted {
		if o.priority >= threshold {
			kept = append(kept, o)
		}
	}
	return kept
}

func groupingKey(o observation) string {
	keys := make([]string, 0, len(o.outcome.Data))
	for k := range o.outcome.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	var parts []string
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%v", o.outcome.Data[k]))
	}
	return strings.Join(parts, "|")
}

func resolveByMajority(obs []observation) []observation {
	groups := make(map[string][]observation)
	var order []string
	for _, o := range obs {
		key := groupingKey(o)
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], o)
	}
	var majority []observation
	for _, key := range order {
		if len(groups[key]) > len(majority) {
			majority = groups[key]
		}
	}
	return majority
}

func resolveByConsensus(obs []observation) []observation {
	counts := make(map[string]int)
	for _, o := range obs {
		counts[groupingKey(o)]++
	}
	var kept []observation
	for _, o := range obs {
		if counts[groupingKey(o)] > 1 {
			kept = append(kept, o)
		}
	}
	return kept
}

func confidenceSpread(obs []observation) float64 {
	if len(obs) < 2 {
		return 0
	}
	min, max := math.Inf(1), math.Inf(-1)
	for _, o := range obs {
		if o.outcome.Confidence < min {
			min = o.outcome.Confidence
		}
		if o.outcome.Confidence > max {
			max = o.outcome.Confidence
		}
	}
	return max - min
}

func toolCoverage(fragments []types.SynthesisFragment) []types.ToolID {
	seen := make(map[types.ToolID]bool)
	var out []types.ToolID
	for _, f := range fragments {
		for _, t := range f.SourceTools {
			if !seen[t] {
				seen[t] = true
				out = append(out, t)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
