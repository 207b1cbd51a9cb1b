package chain

import (
	"testing"

	"dtcore/internal/types"
)

type stubRegistry struct {
	contracts map[types.ToolID]types.ToolContract
}

func (s *stubRegistry) Get(id types.ToolID) (types.ToolContract, bool) {
	c, ok := s.contracts[id]
	return c, ok
}

func (s *stubRegistry) All() []types.ToolContract {
	out := make([]types.ToolContract, 0, len(s.contracts))
	for _, c := range s.contracts {
		out = append(out, c)
	}
	return out
}

func newPipelineRegistry() *stubRegistry {
	contracts := map[types.ToolID]types.ToolContract{
		"T01_PDF_LOADER": {
			ToolID:          "T01_PDF_LOADER",
			DeclaredOutputs: []string{"document_text", "document_ref"},
		},
		"T15A_TEXT_CHUNKER": {
			ToolID:          "T15A_TEXT_CHUNKER",
			DeclaredInputs:  []string{"document_text", "document_ref"},
			DeclaredOutputs: []string{"chunks", "aggregated_text"},
		},
		"T23A_SPACY_NER": {
			ToolID:          "T23A_SPACY_NER",
			DeclaredInputs:  []string{"aggregated_text", "chunks"},
			DeclaredOutputs: []string{"entities"},
		},
		"T27_RELATIONSHIP_EXTRACTOR": {
			ToolID:          "T27_RELATIONSHIP_EXTRACTOR",
			DeclaredInputs:  []string{"chunks", "entities"},
			DeclaredOutputs: []string{"relationships"},
		},
		"T31_ENTITY_BUILDER": {
			ToolID:          "T31_ENTITY_BUILDER",
			DeclaredInputs:  []string{"entities"},
			DeclaredOutputs: []string{"graph_nodes"},
		},
		"T34_EDGE_BUILDER": {
			ToolID:          "T34_EDGE_BUILDER",
			DeclaredInputs:  []string{"relationships"},
			DeclaredOutputs: []string{"graph_edges"},
		},
		"T68_PAGE_RANK": {
			ToolID:          "T68_PAGE_RANK",
			DeclaredInputs:  []string{"graph_nodes", "graph_edges"},
			DeclaredOutputs: []string{"rankings"},
		},
		"T49_MULTI_HOP_QUERY": {
			ToolID:          "T49_MULTI_HOP_QUERY",
			DeclaredInputs:  []string{"graph_nodes", "graph_edges"},
			DeclaredOutputs: []string{"query_results"},
		},
	}
	return &stubRegistry{contracts: contracts}
}

func TestGenerateAlwaysIncludesBasicPipeline(t *testing.T) {
	g := NewGenerator(newPipelineRegistry())
	chain := g.Generate(
		types.IntentResult{Primary: types.IntentDocumentSummary},
		types.ComplexityResult{Level: types.ComplexityModerate},
		types.QuestionContext{},
		"Summarize the document",
	)

	ids := make(map[types.ToolID]bool)
	for _, s := range chain.Steps {
		ids[s.ToolID] = true
	}
	if !ids["T01_PDF_LOADER"] || !ids["T15A_TEXT_CHUNKER"] {
		t.Fatal("expected basic pipeline tools present")
	}
}

func TestGenerateOrdersByContractDependency(t *testing.T) {
	g := NewGenerator(newPipelineRegistry())
	chain := g.Generate(
		types.IntentResult{Primary: types.IntentEntityExtraction},
		types.ComplexityResult{Level: types.ComplexityModerate},
		types.QuestionContext{},
		"What entities are mentioned?",
	)

	pos := make(map[types.ToolID]int)
	for i, s := range chain.Steps {
		pos[s.ToolID] = i
	}
	if pos["T01_PDF_LOADER"] >= pos["T15A_TEXT_CHUNKER"] {
		t.Fatal("expected loader before chunker")
	}
	if pos["T15A_TEXT_CHUNKER"] >= pos["T23A_SPACY_NER"] {
		t.Fatal("expected chunker before NER")
	}
	if pos["T23A_SPACY_NER"] >= pos["T31_ENTITY_BUILDER"] {
		t.Fatal("expected NER before entity builder")
	}
}

func TestGenerateDetectsParallelCandidateFromSharedDependency(t *testing.T) {
	g := NewGenerator(newPipelineRegistry())
	chain := g.Generate(
		types.IntentResult{Primary: types.IntentComparative},
		types.ComplexityResult{Level: types.ComplexityModerate},
		types.QuestionContext{RequiresComparison: true},
		"Compare Acme versus Globex",
	)

	if !chain.CanParallelize {
		t.Fatal("expected entity-builder and relationship-extractor branches to be flagged as a parallel candidate")
	}
}

func TestGenerateSimpleChainTrimsToEssentials(t *testing.T) {
	g := NewGenerator(newPipelineRegistry())
	chain := g.Generate(
		types.IntentResult{Primary: types.IntentDocumentSummary},
		types.ComplexityResult{Level: types.ComplexitySimple},
		types.QuestionContext{},
		"What is this about?",
	)

	ids := make(map[types.ToolID]bool)
	for _, s := range chain.Steps {
		ids[s.ToolID] = true
	}
	if ids["T68_PAGE_RANK"] {
		t.Fatal("expected simple chain to drop advanced graph tools")
	}
}

func TestGenerateComplexChainEnsuresPageRank(t *testing.T) {
	g := NewGenerator(newPipelineRegistry())
	chain := g.Generate(
		types.IntentResult{Primary: types.IntentRelationshipAnalysis},
		types.ComplexityResult{Level: types.ComplexityComplex},
		types.QuestionContext{},
		"Why are Acme and Globex related to each other across the supply chain?",
	)

	ids := make(map[types.ToolID]bool)
	for _, s := range chain.Steps {
		ids[s.ToolID] = true
	}
	if !ids["T68_PAGE_RANK"] {
		t.Fatal("expected complex chain with graph builders to ensure page rank")
	}
}

func TestStepInputBindingsReferenceDependency(t *testing.T) {
	g := NewGenerator(newPipelineRegistry())
	chain := g.Generate(
		types.IntentResult{Primary: types.IntentEntityExtraction},
		types.ComplexityResult{Level: types.ComplexityModerate},
		types.QuestionContext{},
		"Which entities are present?",
	)

	for _, s := range chain.Steps {
		if s.ToolID != "T23A_SPACY_NER" {
			continue
		}
		if s.InputBindings["aggregated_text"] != "T15A_TEXT_CHUNKER.aggregated_text" {
			t.Fatalf("expected NER's aggregated_text input bound to chunker output, got %v", s.InputBindings)
		}
	}
}
