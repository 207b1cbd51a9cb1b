package engine

import (
	"time"

	"dtcore/internal/contract"
	"dtcore/internal/types"
)

// defaultContracts declares the eight canonical tools internal/toolsim
// implements. Declared inputs/outputs are the single source of truth the
// Tool-Chain Generator and Dependency Analyzer read dependency and
// parallel-safety decisions from; nothing downstream branches on a literal
// ToolID.
func defaultContracts() []types.ToolContract {
	return []types.ToolContract{
		{
			ToolID:             "T01_PDF_LOADER",
			DeclaredInputs:     nil,
			DeclaredOutputs:    []string{"document_text", "document_ref"},
			ResourceTags:       []types.ResourceTag{{Resource: "disk_io", Reads: true}},
			ReliabilityPrior:   0.95,
			BaseDurationEst:    500 * time.Millisecond,
			BaseMemoryEstimate: 50,
		},
		{
			ToolID:             "T15A_TEXT_CHUNKER",
			DeclaredInputs:     []string{"document_text"},
			DeclaredOutputs:    []string{"chunks", "aggregated_text"},
			ResourceTags:       []types.ResourceTag{{Resource: "cpu", Reads: true}},
			ReliabilityPrior:   0.9,
			BaseDurationEst:    300 * time.Millisecond,
			BaseMemoryEstimate: 30,
		},
		{
			ToolID:             "T23A_SPACY_NER",
			DeclaredInputs:     []string{"aggregated_text"},
			DeclaredOutputs:    []string{"entities"},
			ResourceTags:       []types.ResourceTag{{Resource: "cpu", Reads: true}},
			ReliabilityPrior:   0.85,
			BaseDurationEst:    time.Second,
			BaseMemoryEstimate: 200,
		},
		{
			ToolID:             "T27_RELATIONSHIP_EXTRACTOR",
			DeclaredInputs:     []string{"aggregated_text"},
			DeclaredOutputs:    []string{"relationships"},
			ResourceTags:       []types.ResourceTag{{Resource: "cpu", Reads: true}},
			ReliabilityPrior:   0.8,
			BaseDurationEst:    1500 * time.Millisecond,
			BaseMemoryEstimate: 150,
		},
		{
			ToolID:             "T31_ENTITY_BUILDER",
			DeclaredInputs:     []string{"entities"},
			DeclaredOutputs:    []string{"graph_nodes"},
			ResourceTags:       []types.ResourceTag{{Resource: "knowledge_graph", Writes: true}},
			ReliabilityPrior:   0.9,
			BaseDurationEst:    800 * time.Millisecond,
			BaseMemoryEstimate: 100,
		},
		{
			ToolID:             "T34_EDGE_BUILDER",
			DeclaredInputs:     []string{"relationships"},
			DeclaredOutputs:    []string{"graph_edges"},
			ResourceTags:       []types.ResourceTag{{Resource: "knowledge_graph", Writes: true}},
			ReliabilityPrior:   0.88,
			BaseDurationEst:    time.Second,
			BaseMemoryEstimate: 100,
		},
		{
			ToolID:             "T68_PAGE_RANK",
			DeclaredInputs:     []string{"graph_nodes", "graph_edges"},
			DeclaredOutputs:    []string{"rankings"},
			ResourceTags:       []types.ResourceTag{{Resource: "knowledge_graph", Reads: true}, {Resource: "cpu", Reads: true}},
			ReliabilityPrior:   0.82,
			BaseDurationEst:    2 * time.Second,
			BaseMemoryEstimate: 300,
		},
		{
			ToolID:             "T49_MULTI_HOP_QUERY",
			DeclaredInputs:     []string{"graph_nodes", "graph_edges"},
			DeclaredOutputs:    []string{"query_results"},
			ResourceTags:       []types.ResourceTag{{Resource: "knowledge_graph", Reads: true}},
			ReliabilityPrior:   0.8,
			BaseDurationEst:    1500 * time.Millisecond,
			BaseMemoryEstimate: 200,
		},
	}
}

// NewDefaultRegistry builds a frozen contract.Registry over the eight
// canonical tools.
func NewDefaultRegistry() (*contract.Registry, error) {
	r := contract.NewRegistry()
	for _, c := range defaultContracts() {
		if err := r.Register(c); err != nil {
			return nil, err
		}
	}
	r.Freeze()
	return r, nil
}
