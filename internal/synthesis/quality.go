package synthesis

import (
	"fmt"

	"dtcore/internal/types"
)

// qualityMetrics computes overallConfidence as a source-weighted mean
// (weight = number of contributing tools), coverage as the fraction of
// observed tools actually represented in a fragment, and coherence as
// fragment-type diversity: the number of distinct fragment types present
// divided by six.
func (s *Synthesizer) qualityMetrics(fragments []types.SynthesisFragment, organized map[bucket][]observation) types.QualityMetrics {
	if len(fragments) == 0 {
		return types.QualityMetrics{}
	}

	var weightedSum, totalWeight float64
	for _, f := range fragments {
		w := float64(len(f.SourceTools))
		if w == 0 {
			w = 1
		}
		weightedSum += f.Confidence * w
		totalWeight += w
	}
	overall := 0.5
	if totalWeight > 0 {
		overall = weightedSum / totalWeight
	}

	totalSources := 0
	for _, obs := range organized {
		totalSources += len(obs)
	}
	represented := make(map[types.ToolID]bool)
	for _, f := range fragments {
		for _, t := range f.SourceTools {
			represented[t] = true
		}
	}
	coverage := 0.0
	if totalSources > 0 {
		coverage = float64(len(represented)) / float64(totalSources)
	}

	seenTypes := make(map[types.FragmentType]bool)
	for _, f := range fragments {
		seenTypes[f.FragmentType] = true
	}
	coherence := float64(len(seenTypes)) / 6.0

	return types.QualityMetrics{
		OverallConfidence: overall,
		Coverage:          coverage,
		Coherence:         coherence,
	}
}

// alternatives surfaces bucket-level disagreement that conflict resolution
// discarded, unless the policy already kept every perspective.
func (s *Synthesizer) alternatives(organized map[bucket][]observation, policy types.ConflictPolicy) []string {
	if policy == types.ConflictAllPerspectives {
		return nil
	}
	var out []string
	for _, b := range bucketOrder {
		obs := organized[b]
		if len(obs) <= 1 {
			continue
		}
		spread := confidenceSpread(obs)
		if spread > 0.2 {
			min, max := confidenceBounds(obs)
			out = append(out, fmt.Sprintf("alternative %s interpretations exist with confidence ranging from %.2f to %.2f", b, min, max))
		}
	}
	return out
}

func confidenceBounds(obs []observation) (float64, float64) {
	min, max := obs[0].outcome.Confidence, obs[0].outcome.Confidence
	for _, o := range obs[1:] {
		if o.outcome.Confidence < min {
			min = o.outcome.Confidence
		}
		if o.outcome.Confidence > max {
			max = o.outcome.Confidence
		}
	}
	return min, max
}

// caveats applies the three spec-mandated triggers (low overall confidence,
// single-source majority, wide within-bucket confidence spread), plus a
// data-sparsity note carried over from the source material.
func (s *Synthesizer) caveats(overallConfidence float64, fragments []types.SynthesisFragment, organized map[bucket][]observation) []string {
	var caveats []string

	if overallConfidence < 0.6 {
		caveats = append(caveats, "overall confidence is low; treat this response as provisional")
	}

	if len(fragments) > 0 {
		singleSource := 0
		for _, f := range fragments {
			if len(f.SourceTools) == 1 {
				singleSource++
			}
		}
		if float64(singleSource) > float64(len(fragments))*0.5 {
			caveats = append(caveats, "more than half of the results rest on a single source and may benefit from additional validation")
		}
	}

	for _, b := range bucketOrder {
		if confidenceSpread(organized[b]) > 0.2 {
			caveats = append(caveats, fmt.Sprintf("%s results disagree in confidence by more than 0.2", b))
		}
	}

	switch {
	case len(fragments) == 0:
		caveats = append(caveats, "no information was available for analysis")
	case len(fragments) < 3:
		caveats = append(caveats, "this response is based on limited information")
	}

	return caveats
}
