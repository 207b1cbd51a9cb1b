// Package toolsim implements a reference ToolAdapter (internal/executor's
// invocation seam) for the eight canonical analysis tools the rest of the
// module is grounded on: a document loader, a chunker, an entity extractor,
// a relationship extractor, an entity-graph builder, an edge-graph builder,
// a PageRank-style ranker, and a multi-hop graph query. It is the adapter
// used by tests and by a standalone run of the engine; a production
// deployment would swap in a bridge to real NLP/graph services behind the
// same executor.ToolAdapter interface.
package toolsim

import (
	"context"
	"fmt"

	"dtcore/internal/types"
)

// DocumentSource resolves a document reference to its raw text. Tests and
// small deployments can satisfy this with an in-memory map; a production
// adapter would back it with the actual document store.
type DocumentSource interface {
	Load(ref string) (string, error)
}

// MapSource is a DocumentSource backed by a fixed map, handed to a document
// once it has already been extracted to text.
type MapSource map[string]string

func (m MapSource) Load(ref string) (string, error) {
	text, ok := m[ref]
	if !ok {
		return "", fmt.Errorf("toolsim: unknown document ref %q", ref)
	}
	return text, nil
}

// Adapter implements executor.ToolAdapter over the eight canonical tools.
type Adapter struct {
	source DocumentSource
}

// New builds an Adapter backed by the given document source.
func New(source DocumentSource) *Adapter {
	return &Adapter{source: source}
}

const (
	toolPDFLoader             types.ToolID = "T01_PDF_LOADER"
	toolTextChunker           types.ToolID = "T15A_TEXT_CHUNKER"
	toolSpacyNER              types.ToolID = "T23A_SPACY_NER"
	toolRelationshipExtractor types.ToolID = "T27_RELATIONSHIP_EXTRACTOR"
	toolEntityBuilder         types.ToolID = "T31_ENTITY_BUILDER"
	toolEdgeBuilder           types.ToolID = "T34_EDGE_BUILDER"
	toolPageRank              types.ToolID = "T68_PAGE_RANK"
	toolMultiHopQuery         types.ToolID = "T49_MULTI_HOP_QUERY"
)

// Invoke dispatches to the tool named by toolID. arguments carries
// "parameters" (the step's adapted parameters) and "input_data" (resolved
// input bindings), both map[string]interface{}, matching what
// internal/executor.resolveInputs builds.
func (a *Adapter) Invoke(ctx context.Context, toolID types.ToolID, arguments map[string]interface{}) (types.ToolOutcome, error) {
	params, _ := arguments["parameters"].(map[string]interface{})
	input, _ := arguments["input_data"].(map[string]interface{})

	switch toolID {
	case toolPDFLoader:
		return a.loadDocument(params)
	case toolTextChunker:
		return chunkText(input, params)
	case toolSpacyNER:
		return extractEntities(input, params)
	case toolRelationshipExtractor:
		return extractRelationships(input, params)
	case toolEntityBuilder:
		return buildEntityGraph(input)
	case toolEdgeBuilder:
		return buildEdgeGraph(input)
	case toolPageRank:
		return pageRank(input, params)
	case toolMultiHopQuery:
		return multiHopQuery(input, params)
	default:
		return types.ToolOutcome{}, fmt.Errorf("toolsim: unrecognized tool %q", toolID)
	}
}

func (a *Adapter) loadDocument(params map[string]interface{}) (types.ToolOutcome, error) {
	ref, _ := params["document_ref"].(string)
	if ref == "" {
		ref = "default"
	}
	text, err := a.source.Load(ref)
	if err != nil {
		return types.ToolOutcome{Status: types.OutcomeError, Error: err.Error()}, nil
	}
	return types.ToolOutcome{
		Status:     types.OutcomeSuccess,
		Confidence: 1.0,
		DataVolume: len(text),
		Data: map[string]interface{}{
			"document_text": text,
			"document_ref":  ref,
		},
	}, nil
}
