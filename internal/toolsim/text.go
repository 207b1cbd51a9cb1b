package toolsim

import (
	"strings"

	"dtcore/internal/types"
)

const defaultChunkSize = 1000

// chunkText splits document_text into runs of roughly chunk_size bytes,
// breaking on whitespace so no chunk splits a word. aggregated_text is the
// original text rejoined from the produced chunks (identity for contiguous
// input, but it is what every downstream tool actually reads).
func chunkText(input, params map[string]interface{}) (types.ToolOutcome, error) {
	text, _ := input["document_text"].(string)
	if text == "" {
		return types.ToolOutcome{Status: types.OutcomeError, Error: "text chunker: document_text missing or empty"}, nil
	}

	size := defaultChunkSize
	if v, ok := params["chunk_size"].(int); ok && v > 0 {
		size = v
	}

	words := strings.Fields(text)
	var chunks []string
	var cur strings.Builder
	for _, w := range words {
		if cur.Len() > 0 && cur.Len()+1+len(w) > size {
			chunks = append(chunks, cur.String())
			cur.Reset()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(w)
	}
	if cur.Len() > 0 {
		chunks = append(chunks, cur.String())
	}
	if len(chunks) == 0 {
		chunks = []string{text}
	}

	return types.ToolOutcome{
		Status:     types.OutcomeSuccess,
		Confidence: 1.0,
		DataVolume: len(text),
		Data: map[string]interface{}{
			"chunks":          chunks,
			"aggregated_text": strings.Join(chunks, " "),
		},
	}, nil
}

func joinedText(input map[string]interface{}) string {
	if text, ok := input["aggregated_text"].(string); ok && text != "" {
		return text
	}
	if chunks, ok := input["chunks"].([]string); ok {
		return strings.Join(chunks, " ")
	}
	if chunks, ok := input["chunks"].([]interface{}); ok {
		parts := make([]string, 0, len(chunks))
		for _, c := range chunks {
			if s, ok := c.(string); ok {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, " ")
	}
	return ""
}
