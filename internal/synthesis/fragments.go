package synthesis

import (
	"fmt"
	"sort"

	"dtcore/internal/types"
)

// buildFragments emits one or more SynthesisFragments per bucket of
// resolved observations.
func (s *Synthesizer) buildFragments(resolved map[bucket][]observation) []types.SynthesisFragment {
	var fragments []types.SynthesisFragment
	fragments = append(fragments, entityFragments(resolved[bucketEntities])...)
	fragments = append(fragments, relationshipFragments(resolved[bucketRelationships])...)
	fragments = append(fragments, themeFragments(resolved[bucketThemes])...)
	fragments = append(fragments, metricFragments(resolved[bucketMetrics])...)
	fragments = append(fragments, summaryFragments(resolved[bucketSummaries])...)
	return fragments
}

type entityInstance struct {
	entityType string
	confidence float64
	source     types.ToolID
}

// entityFragments groups every extracted entity across all observations by
// its text, so an entity surfaced by two tools becomes one fragment
// crediting both.
func entityFragments(obs []observation) []types.SynthesisFragment {
	groups := make(map[string][]entityInstance)
	var order []string
	for _, o := range obs {
		raw, _ := o.outcome.Data["entities"].([]interface{})
		for _, e := range raw {
			m, ok := e.(map[string]interface{})
			if !ok {
				continue
			}
			text, _ := m["text"].(string)
			if text == "" {
				continue
			}
			entityType, _ := m["type"].(string)
			conf, _ := m["confidence"].(float64)
			if conf == 0 {
				conf = o.outcome.Confidence
			}
			if _, seen := groups[text]; !seen {
				order = append(order, text)
			}
			groups[text] = append(groups[text], entityInstance{entityType: entityType, confidence: conf, source: o.toolID})
		}
	}

	fragments := make([]types.SynthesisFragment, 0, len(order))
	for _, name := range order {
		instances := groups[name]
		var total float64
		sources := make(map[types.ToolID]bool)
		var types_ []string
		seenType := make(map[string]bool)
		for _, inst := range instances {
			total += inst.confidence
			sources[inst.source] = true
			if inst.entityType != "" && !seenType[inst.entityType] {
				seenType[inst.entityType] = true
				types_ = append(types_, inst.entityType)
			}
		}
		content := name
		if len(types_) > 0 {
			content = fmt.Sprintf("%s (%s)", name, joinStrings(types_))
		}
		fragments = append(fragments, types.SynthesisFragment{
			Content:            content,
			SourceTools:        toolIDSet(sources),
			Confidence:         total / float64(len(instances)),
			FragmentType:       types.FragmentEntity,
			SupportingEvidence: []string{fmt.Sprintf("identified by %d tool(s)", len(sources))},
		})
	}
	sort.Slice(fragments, func(i, j int) bool { return fragments[i].Confidence > fragments[j].Confidence })
	return fragments
}

type relInstance struct {
	relType    string
	confidence float64
	source     types.ToolID
}

func relationshipFragments(obs []observation) []types.SynthesisFragment {
	groups := make(map[string][]relInstance)
	content := make(map[string]string)
	var order []string
	for _, o := range obs {
		raw, _ := o.outcome.Data["relationships"].([]interface{})
		for _, r := range raw {
			m, ok := r.(map[string]interface{})
			if !ok {
				continue
			}
			from, _ := m["from"].(string)
			to, _ := m["to"].(string)
			if from == "" || to == "" {
				continue
			}
			relType, _ := m["type"].(string)
			if relType == "" {
				relType = "related to"
			}
			conf, _ := m["confidence"].(float64)
			if conf == 0 {
				conf = o.outcome.Confidence
			}
			key := from + "->" + to
			if _, seen := groups[key]; !seen {
				order = append(order, key)
				content[key] = fmt.Sprintf("%s %s %s", from, relType, to)
			}
			groups[key] = append(groups[key], relInstance{relType: relType, confidence: conf, source: o.toolID})
		}
	}

	fragments := make([]types.SynthesisFragment, 0, len(order))
	for _, key := range order {
		instances := groups[key]
		var total float64
		sources := make(map[types.ToolID]bool)
		for _, inst := range instances {
			total += inst.confidence
			sources[inst.source] = true
		}
		fragments = append(fragments, types.SynthesisFragment{
			Content:            content[key],
			SourceTools:        toolIDSet(sources),
			Confidence:         total / float64(len(instances)),
			FragmentType:       types.FragmentRelationship,
			SupportingEvidence: []string{fmt.Sprintf("relationship identified by %d tool(s)", len(sources))},
		})
	}
	sort.Slice(fragments, func(i, j int) bool { return fragments[i].Confidence > fragments[j].Confidence })
	return fragments
}

func themeFragments(obs []observation) []types.SynthesisFragment {
	var fragments []types.SynthesisFragment
	for _, o := range obs {
		for _, key := range []string{"theme", "themes", "topics"} {
			raw, ok := o.outcome.Data[key]
			if !ok {
				continue
			}
			for _, desc := range themeStrings(raw) {
				fragments = append(fragments, types.SynthesisFragment{
					Content:            desc,
					SourceTools:        []types.ToolID{o.toolID},
					Confidence:         o.outcome.Confidence,
					FragmentType:       types.FragmentTheme,
					SupportingEvidence: []string{"theme analysis"},
				})
			}
		}
	}
	return fragments
}

func themeStrings(raw interface{}) []string {
	switch v := raw.(type) {
	case string:
		return []string{v}
	case []interface{}:
		var out []string
		for _, item := range v {
			if s, ok := item.(string); ok {
				out = append(out, s)
				continue
			}
			if m, ok := item.(map[string]interface{}); ok {
				if d, ok := m["description"].(string); ok {
					out = append(out, d)
				} else if n, ok := m["name"].(string); ok {
					out = append(out, n)
				}
			}
		}
		return out
	}
	return nil
}

// metricFragments covers centrality rankings and raw graph-structure
// counts: the former gets a ranked top-N summary, the latter a plain count.
func metricFragments(obs []observation) []types.SynthesisFragment {
	var fragments []types.SynthesisFragment
	for _, o := range obs {
		if rankings, ok := o.outcome.Data["rankings"].([]interface{}); ok && len(rankings) > 0 {
			fragments = append(fragments, types.SynthesisFragment{
				Content:            fmt.Sprintf("top-ranked: %s", topRankings(rankings, 3)),
				SourceTools:        []types.ToolID{o.toolID},
				Confidence:         o.outcome.Confidence,
				FragmentType:       types.FragmentMetric,
				SupportingEvidence: []string{"centrality ranking"},
			})
		}
		for _, key := range []string{"graph_nodes", "graph_edges"} {
			if raw, ok := o.outcome.Data[key]; ok {
				n := sliceLen(raw)
				fragments = append(fragments, types.SynthesisFragment{
					Content:            fmt.Sprintf("%s: %d", key, n),
					SourceTools:        []types.ToolID{o.toolID},
					Confidence:         o.outcome.Confidence,
					FragmentType:       types.FragmentMetric,
					SupportingEvidence: []string{fmt.Sprintf("computed %s", key)},
				})
			}
		}
	}
	return fragments
}

func topRankings(rankings []interface{}, n int) string {
	if n > len(rankings) {
		n = len(rankings)
	}
	var parts []string
	for i := 0; i < n; i++ {
		m, ok := rankings[i].(map[string]interface{})
		if !ok {
			continue
		}
		entity, _ := m["entity"].(string)
		score, _ := m["score"].(float64)
		parts = append(parts, fmt.Sprintf("%s (%.2f)", entity, score))
	}
	return joinStrings(parts)
}

func summaryFragments(obs []observation) []types.SynthesisFragment {
	var fragments []types.SynthesisFragment
	for _, o := range obs {
		if results, ok := o.outcome.Data["query_results"].([]interface{}); ok {
			fragments = append(fragments, types.SynthesisFragment{
				Content:            fmt.Sprintf("%d reachable connections found", len(results)),
				SourceTools:        []types.ToolID{o.toolID},
				Confidence:         o.outcome.Confidence,
				FragmentType:       types.FragmentSummary,
				SupportingEvidence: []string{"multi-hop query"},
			})
		}
		if s, ok := o.outcome.Data["summary"].(string); ok && len(s) > 20 {
			fragments = append(fragments, types.SynthesisFragment{
				Content:            s,
				SourceTools:        []types.ToolID{o.toolID},
				Confidence:         o.outcome.Confidence,
				FragmentType:       types.FragmentSummary,
				SupportingEvidence: []string{"summary analysis"},
			})
		}
	}
	return fragments
}

func sliceLen(raw interface{}) int {
	switch v := raw.(type) {
	case []interface{}:
		return len(v)
	case []string:
		return len(v)
	case int:
		return v
	case float64:
		return int(v)
	}
	return 0
}

func toolIDSet(m map[types.ToolID]bool) []types.ToolID {
	out := make([]types.ToolID, 0, len(m))
	for id := range m {
		out = append(out, id)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

func joinStrings(parts []string) string {
	out := ""
	for i, p := range parts {
		if i > 0 {
			out += ", "
		}
		out += p
	}
	return out
}
