package synthesis

import (
	"fmt"
	"sort"
	"strings"

	"dtcore/internal/types"
)

// composePrimaryResponse assembles ordered sections per fragment type,
// shaped by strategy, then joins them (narrative strategy gets connective
// phrasing instead of a blank-line join).
func (s *Synthesizer) composePrimaryResponse(fragments []types.SynthesisFragment, question string, strategy types.SynthesisStrategy) string {
	if len(fragments) == 0 {
		return "No information available to synthesize a response."
	}

	byType := make(map[types.FragmentType][]types.SynthesisFragment)
	for _, f := range fragments {
		byType[f.FragmentType] = append(byType[f.FragmentType], f)
	}

	var sections []string
	if strategy == types.SynthesisComprehensive || strategy == types.SynthesisNarrative {
		sections = append(sections, introduction(question, fragments))
	}
	if sec := entitySection(byType[types.FragmentEntity], strategy); sec != "" {
		sections = append(sections, sec)
	}
	if sec := relationshipSection(byType[types.FragmentRelationship], strategy); sec != "" {
		sections = append(sections, sec)
	}
	if sec := themeSection(byType[types.FragmentTheme], strategy); sec != "" {
		sections = append(sections, sec)
	}
	if sec := metricSection(byType[types.FragmentMetric], strategy); sec != "" {
		sections = append(sections, sec)
	}
	if sec := summarySection(byType[types.FragmentSummary], strategy); sec != "" {
		sections = append(sections, sec)
	}

	if strategy == types.SynthesisNarrative {
		return narrativeResponse(sections)
	}
	return strings.TrimSpace(strings.Join(sections, "\n\n"))
}

func introduction(question string, fragments []types.SynthesisFragment) string {
	tools := make(map[types.ToolID]bool)
	fragTypes := make(map[types.FragmentType]bool)
	for _, f := range fragments {
		for _, t := range f.SourceTools {
			tools[t] = true
		}
		fragTypes[f.FragmentType] = true
	}

	var parts []string
	for _, ft := range []types.FragmentType{types.FragmentEntity, types.FragmentRelationship, types.FragmentTheme, types.FragmentMetric} {
		if fragTypes[ft] {
			parts = append(parts, string(ft)+"s")
		}
	}
	if len(parts) == 0 {
		return fmt.Sprintf("Based on analysis from %d tool(s):", len(tools))
	}
	return fmt.Sprintf("Based on analysis from %d tool(s) examining %s:", len(tools), joinStrings(parts))
}

func entitySection(fragments []types.SynthesisFragment, strategy types.SynthesisStrategy) string {
	if len(fragments) == 0 {
		return ""
	}
	sorted := sortedByConfidence(fragments)

	switch strategy {
	case types.SynthesisSummary:
		top := firstN(sorted, 3)
		return fmt.Sprintf("Key entities: %s", joinStrings(contents(top)))
	case types.SynthesisFocused:
		var highConf []types.SynthesisFragment
		for _, f := range sorted {
			if f.Confidence > 0.7 {
				highConf = append(highConf, f)
			}
		}
		if len(highConf) == 0 {
			highConf = firstN(sorted, 2)
		}
		return fmt.Sprintf("Primary entities identified: %s", joinStrings(contents(highConf)))
	default:
		top := firstN(sorted, 5)
		var descs []string
		for _, f := range top {
			desc := f.Content
			if len(f.SourceTools) > 1 {
				desc += fmt.Sprintf(" (identified by %d tools)", len(f.SourceTools))
			}
			descs = append(descs, desc)
		}
		return fmt.Sprintf("Entities identified: %s", joinStrings(descs))
	}
}

func relationshipSection(fragments []types.SynthesisFragment, strategy types.SynthesisStrategy) string {
	if len(fragments) == 0 {
		return ""
	}
	sorted := sortedByConfidence(fragments)

	switch strategy {
	case types.SynthesisSummary:
		return fmt.Sprintf("Key relationships identified: %d connections found", len(sorted))
	case types.SynthesisComparative:
		byKind := make(map[string]int)
		var order []string
		for _, f := range sorted {
			kind := relationshipKind(f.Content)
			if byKind[kind] == 0 {
				order = append(order, kind)
			}
			byKind[kind]++
		}
		var parts []string
		for _, kind := range order {
			parts = append(parts, fmt.Sprintf("%d %s relationships", byKind[kind], kind))
		}
		return fmt.Sprintf("Relationship analysis: %s", joinStrings(parts))
	default:
		top := firstN(sorted, 3)
		return fmt.Sprintf("Key relationships: %s", strings.Join(contents(top), ". "))
	}
}

// relationshipKind extracts the middle verb from a "from TYPE to" fragment,
// falling back to the whole content if it doesn't parse.
func relationshipKind(content string) string {
	parts := strings.Fields(content)
	if len(parts) >= 3 {
		return strings.Join(parts[1:len(parts)-1], " ")
	}
	return content
}

func themeSection(fragments []types.SynthesisFragment, strategy types.SynthesisStrategy) string {
	if len(fragments) == 0 {
		return ""
	}
	sorted := sortedByConfidence(fragments)
	if strategy == types.SynthesisSummary {
		return fmt.Sprintf("Main themes: %d themes identified", len(sorted))
	}
	return fmt.Sprintf("Themes: %s", strings.Join(contents(firstN(sorted, 3)), ". "))
}

func metricSection(fragments []types.SynthesisFragment, strategy types.SynthesisStrategy) string {
	if len(fragments) == 0 {
		return ""
	}
	if strategy == types.SynthesisAnalytical {
		return fmt.Sprintf("Quantitative analysis: %s", joinStrings(contents(fragments)))
	}
	return fmt.Sprintf("Metrics calculated: %d measurement(s)", len(fragments))
}

func summarySection(fragments []types.SynthesisFragment, strategy types.SynthesisStrategy) string {
	if len(fragments) == 0 {
		return ""
	}
	var highConf []types.SynthesisFragment
	for _, f := range fragments {
		if f.Confidence > 0.7 {
			highConf = append(highConf, f)
		}
	}
	if len(highConf) == 0 {
		highConf = fragments[:1]
	}
	best := highConf[0]
	for _, f := range highConf[1:] {
		if f.Confidence > best.Confidence {
			best = f
		}
	}
	return best.Content
}

func narrativeResponse(sections []string) string {
	if len(sections) == 0 {
		return "No information available."
	}
	var out []string
	for i, sec := range sections {
		switch {
		case i == 0:
			out = append(out, sec)
		case i == len(sections)-1:
			out = append(out, "Finally, "+strings.ToLower(sec))
		default:
			out = append(out, "Additionally, "+strings.ToLower(sec))
		}
	}
	return strings.Join(out, " ")
}

func sortedByConfidence(fragments []types.SynthesisFragment) []types.SynthesisFragment {
	sorted := append([]types.SynthesisFragment(nil), fragments...)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Confidence > sorted[j].Confidence })
	return sorted
}

func firstN(fragments []types.SynthesisFragment, n int) []types.SynthesisFragment {
	if n > len(fragments) {
		n = len(fragments)
	}
	return fragments[:n]
}

func contents(fragments []types.SynthesisFragment) []string {
	out := make([]string, len(fragments))
	for i, f := range fragments {
		out[i] = f.Content
	}
	return out
}
