package toolsim

import (
	"regexp"
	"strings"

	"dtcore/internal/types"
)

// entityPattern mirrors the teacher's regex-extractor pattern table: one
// compiled regex, the entity type it tags, and a base confidence.
type entityPattern struct {
	regex      *regexp.Regexp
	entityType string
	confidence float64
}

var entityPatterns = []entityPattern{
	{regexp.MustCompile(`\b([A-Z][a-z]+(?:\s+[A-Z][a-z]+){0,3})\b`), "named_entity", 0.75},
	{regexp.MustCompile(`\b\d{4}-\d{2}-\d{2}\b`), "date", 0.90},
	{regexp.MustCompile(`\b\d+\.?\d*\s*(?:ms|seconds?|minutes?|hours?|days?|percent|%)\b`), "measurement", 0.80},
}

// extractEntities tags named-entity-shaped spans in the chunked text.
// confidence_threshold (adapted per question ambiguity) filters low-
// confidence matches out of the result.
func extractEntities(input, params map[string]interface{}) (types.ToolOutcome, error) {
	text := joinedText(input)
	if text == "" {
		return types.ToolOutcome{Status: types.OutcomeError, Error: "ner: no chunked text available"}, nil
	}

	threshold := 0.5
	if v, ok := params["confidence_threshold"].(float64); ok {
		threshold = v
	}

	seen := make(map[string]bool)
	var entities []interface{}
	for _, p := range entityPatterns {
		for _, m := range p.regex.FindAllString(text, -1) {
			key := p.entityType + ":" + m
			if seen[key] || p.confidence < threshold {
				continue
			}
			seen[key] = true
			entities = append(entities, map[string]interface{}{
				"text":       m,
				"type":       p.entityType,
				"confidence": p.confidence,
			})
		}
	}

	return types.ToolOutcome{
		Status:     types.OutcomeSuccess,
		Confidence: confidenceFromEntityCount(len(entities)),
		DataVolume: len(entities),
		Data: map[string]interface{}{
			"entities": entities,
		},
	}, nil
}

func confidenceFromEntityCount(n int) float64 {
	if n == 0 {
		return 0.3
	}
	if n > 20 {
		return 0.95
	}
	return 0.6 + 0.35*float64(n)/20.0
}

// causalPattern mirrors the teacher's ExtractCausalRelationships table: a
// regex with two capture groups (from, to), a relationship type, and a
// confidence.
type causalPattern struct {
	regex      *regexp.Regexp
	relType    string
	confidence float64
}

var causalPatterns = []causalPattern{
	{regexp.MustCompile(`(?i)(\w+(?:\s+\w+){0,3})\s+causes?\s+(\w+(?:\s+\w+){0,3})`), "causes", 0.85},
	{regexp.MustCompile(`(?i)(\w+(?:\s+\w+){0,3})\s+enables?\s+(\w+(?:\s+\w+){0,3})`), "enables", 0.80},
	{regexp.MustCompile(`(?i)(\w+(?:\s+\w+){0,3})\s+leads? to\s+(\w+(?:\s+\w+){0,3})`), "causes", 0.75},
	{regexp.MustCompile(`(?i)(\w+(?:\s+\w+){0,3})\s+contradicts?\s+(\w+(?:\s+\w+){0,3})`), "contradicts", 0.80},
	{regexp.MustCompile(`(?i)(\w+(?:\s+\w+){0,3})\s+(?:is|are)\s+(?:similar to|comparable to)\s+(\w+(?:\s+\w+){0,3})`), "compares", 0.70},
}

// extractRelationships finds causal/comparative relationships between
// spans of the chunked text. If comparison relationship extraction was
// requested (extract_comparison_relationships), pairs among
// comparison_entities are also emitted as explicit "compares" edges.
func extractRelationships(input, params map[string]interface{}) (types.ToolOutcome, error) {
	text := joinedText(input)
	if text == "" {
		return types.ToolOutcome{Status: types.OutcomeError, Error: "relationship extractor: no chunked text available"}, nil
	}

	var relationships []interface{}
	for _, p := range causalPatterns {
		for _, m := range p.regex.FindAllStringSubmatch(text, -1) {
			if len(m) < 3 {
				continue
			}
			from := strings.TrimSpace(m[1])
			to := strings.TrimSpace(m[2])
			if from == "" || to == "" {
				continue
			}
			relationships = append(relationships, map[string]interface{}{
				"from":       from,
				"to":         to,
				"type":       p.relType,
				"confidence": p.confidence,
			})
		}
	}

	if extract, _ := params["extract_comparison_relationships"].(bool); extract {
		entities, _ := params["comparison_entities"].([]string)
		for i := 0; i < len(entities); i++ {
			for j := i + 1; j < len(entities); j++ {
				relationships = append(relationships, map[string]interface{}{
					"from":       entities[i],
					"to":         entities[j],
					"type":       "compares",
					"confidence": 0.9,
				})
			}
		}
	}

	return types.ToolOutcome{
		Status:     types.OutcomeSuccess,
		Confidence: confidenceFromEntityCount(len(relationships)),
		DataVolume: len(relationships),
		Data: map[string]interface{}{
			"relationships": relationships,
		},
	}, nil
}
