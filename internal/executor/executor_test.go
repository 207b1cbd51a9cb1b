package executor

import (
	"context"
	"sync"
	"testing"
	"time"

	"dtcore/internal/coreerrors"
	"dtcore/internal/resourcemgr"
	"dtcore/internal/types"
)

type stubRegistry struct {
	contracts map[types.ToolID]types.ToolContract
}

func (s *stubRegistry) Get(id types.ToolID) (types.ToolContract, bool) {
	c, ok := s.contracts[id]
	return c, ok
}

func newStubRegistry(ids ...types.ToolID) *stubRegistry {
	contracts := make(map[types.ToolID]types.ToolContract, len(ids))
	for _, id := range ids {
		contracts[id] = types.ToolContract{ToolID: id, BaseDurationEst: 10 * time.Millisecond}
	}
	return &stubRegistry{contracts: contracts}
}

type stubReliability struct {
	mu      sync.Mutex
	updates map[types.ToolID]float64
}

func newStubReliability() *stubReliability {
	return &stubReliability{updates: make(map[types.ToolID]float64)}
}

func (r *stubReliability) UpdateReliability(id types.ToolID, score float64) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.updates[id] = score
}

type stubAdapter struct {
	mu      sync.Mutex
	invoked []types.ToolID
	fn      func(toolID types.ToolID, args map[string]interface{}) (types.ToolOutcome, error)
}

func (a *stubAdapter) Invoke(ctx context.Context, toolID types.ToolID, args map[string]interface{}) (types.ToolOutcome, error) {
	a.mu.Lock()
	a.invoked = append(a.invoked, toolID)
	a.mu.Unlock()
	if a.fn != nil {
		return a.fn(toolID, args)
	}
	return types.ToolOutcome{Status: types.OutcomeSuccess, Data: map[string]interface{}{}, Confidence: 0.9}, nil
}

func successAdapter() *stubAdapter {
	return &stubAdapter{fn: func(toolID types.ToolID, args map[string]interface{}) (types.ToolOutcome, error) {
		return types.ToolOutcome{Status: types.OutcomeSuccess, Data: map[string]interface{}{"value": toolID}, Confidence: 0.85}, nil
	}}
}

func TestExecuteSequentialChain(t *testing.T) {
	chain := types.ToolChain{
		Steps: []types.ToolStep{
			{ToolID: "A"},
			{ToolID: "B", DependsOn: []types.ToolID{"A"}},
		},
	}
	reg := newStubRegistry("A", "B")
	adapter := successAdapter()
	e := New(reg, adapter, nil, nil, nil)

	out, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Executed) != 2 {
		t.Fatalf("expected 2 executed steps, got %d: %v", len(out.Executed), out.Executed)
	}
	if len(out.Failed) != 0 {
		t.Fatalf("expected no failures, got %v", out.Failed)
	}
	if out.PerToolOutcomes["A"].Status != types.OutcomeSuccess || out.PerToolOutcomes["B"].Status != types.OutcomeSuccess {
		t.Fatalf("expected both steps successful, got %+v", out.PerToolOutcomes)
	}
}

func TestExecuteParallelGroupDispatchesDiamond(t *testing.T) {
	chain := types.ToolChain{
		CanParallelize: true,
		Steps: []types.ToolStep{
			{ToolID: "A"},
			{ToolID: "B", DependsOn: []types.ToolID{"A"}},
			{ToolID: "C", DependsOn: []types.ToolID{"A"}},
			{ToolID: "D", DependsOn: []types.ToolID{"B", "C"}},
		},
	}
	reg := newStubRegistry("A", "B", "C", "D")
	adapter := successAdapter()
	e := New(reg, adapter, nil, nil, nil)

	out, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Executed) != 4 {
		t.Fatalf("expected 4 executed steps, got %d", len(out.Executed))
	}

	var sawParallelPair bool
	for _, g := range out.ParallelGroupsRun {
		if len(g.Tools) == 2 {
			sawParallelPair = true
		}
	}
	if !sawParallelPair {
		t.Fatalf("expected B and C to be dispatched together as a parallel group, got %+v", out.ParallelGroupsRun)
	}
}

func TestExecuteSkipsRelationshipExtractorWithFewEntities(t *testing.T) {
	chain := types.ToolChain{
		Steps: []types.ToolStep{
			{ToolID: "T23A_SPACY_NER"},
			{ToolID: "T27_RELATIONSHIP_EXTRACTOR", DependsOn: []types.ToolID{"T23A_SPACY_NER"}},
		},
	}
	reg := newStubRegistry("T23A_SPACY_NER", "T27_RELATIONSHIP_EXTRACTOR")
	adapter := &stubAdapter{fn: func(toolID types.ToolID, args map[string]interface{}) (types.ToolOutcome, error) {
		if toolID == "T23A_SPACY_NER" {
			return types.ToolOutcome{Status: types.OutcomeSuccess, Data: map[string]interface{}{"entities": []interface{}{"x"}}, Confidence: 0.9}, nil
		}
		return types.ToolOutcome{Status: types.OutcomeSuccess, Confidence: 0.9}, nil
	}}
	e := New(reg, adapter, nil, nil, nil)

	out, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reason, skipped := out.Skipped["T27_RELATIONSHIP_EXTRACTOR"]
	if !skipped || reason != types.SkipInsufficientEntities {
		t.Fatalf("expected T27 skipped with SkipInsufficientEntities, got skipped=%v reason=%v", skipped, reason)
	}
}

func TestExecuteSkipsPageRankOnSmallGraph(t *testing.T) {
	chain := types.ToolChain{
		Steps: []types.ToolStep{
			{ToolID: "T31_ENTITY_BUILDER"},
			{ToolID: "T68_PAGE_RANK", DependsOn: []types.ToolID{"T31_ENTITY_BUILDER"}},
		},
	}
	reg := newStubRegistry("T31_ENTITY_BUILDER", "T68_PAGE_RANK")
	adapter := &stubAdapter{fn: func(toolID types.ToolID, args map[string]interface{}) (types.ToolOutcome, error) {
		if toolID == "T31_ENTITY_BUILDER" {
			return types.ToolOutcome{Status: types.OutcomeSuccess, Data: map[string]interface{}{"graph_nodes": 2}, Confidence: 0.9}, nil
		}
		return types.ToolOutcome{Status: types.OutcomeSuccess, Confidence: 0.9}, nil
	}}
	e := New(reg, adapter, nil, nil, nil)

	out, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reason, skipped := out.Skipped["T68_PAGE_RANK"]
	if !skipped || reason != types.SkipGraphTooSmall {
		t.Fatalf("expected T68 skipped with SkipGraphTooSmall, got skipped=%v reason=%v", skipped, reason)
	}
}

func TestExecuteSkipsMultiHopQueryWithFewEdges(t *testing.T) {
	chain := types.ToolChain{
		Steps: []types.ToolStep{
			{ToolID: "T34_EDGE_BUILDER"},
			{ToolID: "T49_MULTI_HOP_QUERY", DependsOn: []types.ToolID{"T34_EDGE_BUILDER"}},
		},
	}
	reg := newStubRegistry("T34_EDGE_BUILDER", "T49_MULTI_HOP_QUERY")
	adapter := &stubAdapter{fn: func(toolID types.ToolID, args map[string]interface{}) (types.ToolOutcome, error) {
		if toolID == "T34_EDGE_BUILDER" {
			return types.ToolOutcome{Status: types.OutcomeSuccess, Data: map[string]interface{}{"graph_edges": 1}, Confidence: 0.9}, nil
		}
		return types.ToolOutcome{Status: types.OutcomeSuccess, Confidence: 0.9}, nil
	}}
	e := New(reg, adapter, nil, nil, nil)

	out, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	reason, skipped := out.Skipped["T49_MULTI_HOP_QUERY"]
	if !skipped || reason != types.SkipInsufficientEdges {
		t.Fatalf("expected T49 skipped with SkipInsufficientEdges, got skipped=%v reason=%v", skipped, reason)
	}
}

func TestExecutePropagatesUpstreamFailureToDependents(t *testing.T) {
	chain := types.ToolChain{
		Steps: []types.ToolStep{
			{ToolID: "A"},
			{ToolID: "B", DependsOn: []types.ToolID{"A"}},
			{ToolID: "C", DependsOn: []types.ToolID{"B"}},
		},
	}
	reg := newStubRegistry("A", "B", "C")
	adapter := &stubAdapter{fn: func(toolID types.ToolID, args map[string]interface{}) (types.ToolOutcome, error) {
		if toolID == "A" {
			return types.ToolOutcome{Status: types.OutcomeError, Error: "boom"}, nil
		}
		return types.ToolOutcome{Status: types.OutcomeSuccess, Confidence: 0.9}, nil
	}}
	e := New(reg, adapter, nil, nil, nil)

	out, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(out.Failed) != 1 || out.Failed[0] != "A" {
		t.Fatalf("expected only A to be recorded as failed, got %v", out.Failed)
	}
	for _, dep := range []types.ToolID{"B", "C"} {
		reason, skipped := out.Skipped[dep]
		if !skipped || reason != types.SkipUpstreamFailure {
			t.Fatalf("expected %s skipped with SkipUpstreamFailure, got skipped=%v reason=%v", dep, skipped, reason)
		}
	}
	if adapter.invoked[0] != "A" {
		t.Fatalf("expected A to have run")
	}
	for _, id := range adapter.invoked {
		if id == "B" || id == "C" {
			t.Fatalf("expected B and C never to be invoked, got invocation list %v", adapter.invoked)
		}
	}
}

func TestExecuteOptionalStepFailureDoesNotBlockUnrelatedDownstream(t *testing.T) {
	// B is optional and fails; C depends on B for ordering only (no input
	// binding on B's output), so the dependency-level gate in computeReady
	// must not skip-propagate C just because its optional predecessor
	// failed. Only a non-optional failed dependency blocks a dependent.
	chain := types.ToolChain{
		Steps: []types.ToolStep{
			{ToolID: "A"},
			{ToolID: "B", DependsOn: []types.ToolID{"A"}, Optional: true},
			{ToolID: "C", DependsOn: []types.ToolID{"B"}},
		},
	}
	reg := newStubRegistry("A", "B", "C")
	adapter := &stubAdapter{fn: func(toolID types.ToolID, args map[string]interface{}) (types.ToolOutcome, error) {
		if toolID == "B" {
			return types.ToolOutcome{Status: types.OutcomeError, Error: "optional failure"}, nil
		}
		return types.ToolOutcome{Status: types.OutcomeSuccess, Data: map[string]interface{}{"value": "ok"}, Confidence: 0.9}, nil
	}}
	e := New(reg, adapter, nil, nil, nil)

	out, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, ran := out.PerToolOutcomes["C"]; !ran {
		t.Fatalf("expected C to run despite optional predecessor B failing, got %+v", out.PerToolOutcomes)
	}
	if reason, skipped := out.Skipped["C"]; skipped {
		t.Fatalf("expected C not skipped, got reason %v", reason)
	}
}

func TestExecuteOptionalInputBindingDefaultsToNilWhenPredecessorSkipped(t *testing.T) {
	// The NER result has only one entity so T27 is skipped by the built-in
	// gate; C optionally consumes T27's output and must still run, with a
	// nil default for the missing binding rather than being skipped itself.
	chain := types.ToolChain{
		Steps: []types.ToolStep{
			{ToolID: "T23A_SPACY_NER"},
			{ToolID: "T27_RELATIONSHIP_EXTRACTOR", DependsOn: []types.ToolID{"T23A_SPACY_NER"}},
			{
				ToolID:        "C",
				DependsOn:     []types.ToolID{"T27_RELATIONSHIP_EXTRACTOR"},
				Optional:      true,
				InputBindings: map[string]string{"rels": "T27_RELATIONSHIP_EXTRACTOR.relationships"},
			},
		},
	}
	reg := newStubRegistry("T23A_SPACY_NER", "T27_RELATIONSHIP_EXTRACTOR", "C")
	adapter := &stubAdapter{fn: func(toolID types.ToolID, args map[string]interface{}) (types.ToolOutcome, error) {
		if toolID == "T23A_SPACY_NER" {
			return types.ToolOutcome{Status: types.OutcomeSuccess, Data: map[string]interface{}{"entities": []interface{}{"x"}}, Confidence: 0.9}, nil
		}
		return types.ToolOutcome{Status: types.OutcomeSuccess, Confidence: 0.9}, nil
	}}
	e := New(reg, adapter, nil, nil, nil)

	out, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, skipped := out.Skipped["T27_RELATIONSHIP_EXTRACTOR"]; !skipped {
		t.Fatalf("expected T27 skipped for insufficient entities, got %+v", out.Skipped)
	}
	if _, ran := out.PerToolOutcomes["C"]; !ran {
		t.Fatalf("expected C (optional binding on a skipped predecessor) to still run, got %+v", out.PerToolOutcomes)
	}
}

func TestExecuteParameterAdaptationTemporalAndConfidence(t *testing.T) {
	chain := types.ToolChain{
		Steps: []types.ToolStep{
			{ToolID: "T23A_SPACY_NER"},
		},
	}
	reg := newStubRegistry("T23A_SPACY_NER")
	adapter := successAdapter()
	e := New(reg, adapter, nil, nil, nil)

	qctx := types.QuestionContext{
		HasTemporal:         true,
		TemporalConstraints: []string{"2024"},
		Ambiguity:           0.9,
	}
	out, err := e.Execute(context.Background(), chain, "q", qctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params := out.AdaptedParams["T23A_SPACY_NER"]
	if params["time_filter"] != "2024" {
		t.Fatalf("expected time_filter adapted to 2024, got %+v", params)
	}
	if params["temporal_filtering_enabled"] != true {
		t.Fatalf("expected temporal_filtering_enabled true, got %+v", params)
	}
	if params["confidence_threshold"] != 0.7 {
		t.Fatalf("expected confidence_threshold 0.7 for high ambiguity, got %+v", params)
	}
}

func TestExecuteParameterAdaptationChunkSizeAndPageRankBoost(t *testing.T) {
	chain := types.ToolChain{
		Steps: []types.ToolStep{
			{ToolID: "T15A_TEXT_CHUNKER"},
			{ToolID: "T68_PAGE_RANK", DependsOn: []types.ToolID{"T15A_TEXT_CHUNKER"}},
		},
	}
	reg := newStubRegistry("T15A_TEXT_CHUNKER", "T68_PAGE_RANK")
	adapter := &stubAdapter{fn: func(toolID types.ToolID, args map[string]interface{}) (types.ToolOutcome, error) {
		if toolID == "T68_PAGE_RANK" {
			return types.ToolOutcome{Status: types.OutcomeSuccess, Data: map[string]interface{}{"graph_nodes": 10}, Confidence: 0.9}, nil
		}
		return types.ToolOutcome{Status: types.OutcomeSuccess, Confidence: 0.9}, nil
	}}
	e := New(reg, adapter, nil, nil, nil)

	qctx := types.QuestionContext{RequiresAggregation: true, MentionedEntities: []string{"alpha", "beta"}}
	out, err := e.Execute(context.Background(), chain, "q", qctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	chunkerParams := out.AdaptedParams["T15A_TEXT_CHUNKER"]
	if chunkerParams["chunk_size"] != 500 {
		t.Fatalf("expected chunk_size 500 under aggregation, got %+v", chunkerParams)
	}
	prParams := out.AdaptedParams["T68_PAGE_RANK"]
	if prParams["max_iterations"] != 150 {
		t.Fatalf("expected boosted max_iterations under aggregation, got %+v", prParams)
	}
	if prParams["boost_factor"] != 2.0 {
		t.Fatalf("expected boost_factor set from mentioned entities, got %+v", prParams)
	}
}

func TestExecuteComparisonRelationshipAdaptation(t *testing.T) {
	chain := types.ToolChain{
		Steps: []types.ToolStep{
			{ToolID: "T27_RELATIONSHIP_EXTRACTOR"},
		},
	}
	reg := newStubRegistry("T27_RELATIONSHIP_EXTRACTOR")
	adapter := successAdapter()
	e := New(reg, adapter, nil, nil, nil)

	qctx := types.QuestionContext{RequiresComparison: true, ComparisonEntities: []string{"x", "y"}}
	out, err := e.Execute(context.Background(), chain, "q", qctx)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	params := out.AdaptedParams["T27_RELATIONSHIP_EXTRACTOR"]
	if params["extract_comparison_relationships"] != true {
		t.Fatalf("expected extract_comparison_relationships true, got %+v", params)
	}
	entities, ok := params["comparison_entities"].([]string)
	if !ok || len(entities) != 2 {
		t.Fatalf("expected comparison_entities to carry through, got %+v", params)
	}
}

func TestExecuteDetectsStalledExecution(t *testing.T) {
	// A mutual dependency between two steps never becomes terminal, and no
	// upstream failure exists to skip-propagate, so the executor must
	// detect a stall instead of looping forever.
	chain := types.ToolChain{
		Steps: []types.ToolStep{
			{ToolID: "A", DependsOn: []types.ToolID{"B"}},
			{ToolID: "B", DependsOn: []types.ToolID{"A"}},
		},
	}
	reg := newStubRegistry("A", "B")
	adapter := successAdapter()
	e := New(reg, adapter, nil, nil, nil)

	_, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{})
	if err == nil {
		t.Fatal("expected a stalled-execution error")
	}
	ce, ok := err.(*coreerrors.CoreError)
	if !ok || ce.Kind != coreerrors.KindStalledExecution {
		t.Fatalf("expected KindStalledExecution, got %v", err)
	}
}

func TestExecuteDetectsUnknownTool(t *testing.T) {
	chain := types.ToolChain{
		Steps: []types.ToolStep{{ToolID: "GHOST"}},
	}
	reg := newStubRegistry("A") // GHOST has no contract
	adapter := successAdapter()
	e := New(reg, adapter, nil, nil, nil)

	_, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{})
	if err == nil {
		t.Fatal("expected an unknown-tool error")
	}
	ce, ok := err.(*coreerrors.CoreError)
	if !ok || ce.Kind != coreerrors.KindUnknownTool {
		t.Fatalf("expected KindUnknownTool, got %v", err)
	}
}

func TestExecuteFeedsReliabilityUpdater(t *testing.T) {
	chain := types.ToolChain{Steps: []types.ToolStep{{ToolID: "A"}}}
	reg := newStubRegistry("A")
	adapter := successAdapter()
	rel := newStubReliability()
	e := New(reg, adapter, nil, rel, nil)

	if _, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	rel.mu.Lock()
	defer rel.mu.Unlock()
	if rel.updates["A"] != 0.85 {
		t.Fatalf("expected reliability updated with observed confidence, got %+v", rel.updates)
	}
}

func TestExecuteRunsUnthrottledWithNoResourceManager(t *testing.T) {
	chain := types.ToolChain{Steps: []types.ToolStep{{ToolID: "A"}}}
	reg := newStubRegistry("A")
	adapter := successAdapter()
	e := New(reg, adapter, nil, nil, nil)

	out, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.PerToolOutcomes["A"].Status != types.OutcomeSuccess {
		t.Fatalf("expected success with no resource manager configured, got %+v", out.PerToolOutcomes["A"])
	}
}

func TestSplitRefHandlesDottedToolIDs(t *testing.T) {
	id, key := splitRef("T23A_SPACY_NER.entities")
	if id != "T23A_SPACY_NER" || key != "entities" {
		t.Fatalf("unexpected split: id=%q key=%q", id, key)
	}
	id, key = splitRef("NO_DOT")
	if id != "NO_DOT" || key != "" {
		t.Fatalf("expected empty key for dotless ref, got id=%q key=%q", id, key)
	}
}

func TestDataLenHandlesShapes(t *testing.T) {
	data := map[string]interface{}{
		"list":  []interface{}{1, 2, 3},
		"strs":  []string{"a", "b"},
		"count": 4,
		"float": float64(5),
	}
	cases := map[string]int{"list": 3, "strs": 2, "count": 4, "float": 5, "missing": 0}
	for key, want := range cases {
		if got := dataLen(data, key); got != want {
			t.Fatalf("dataLen(%q) = %d, want %d", key, got, want)
		}
	}
}

func TestComputeReadyProgressesOnSkipPropagationEvenWithoutReadySteps(t *testing.T) {
	byID := map[types.ToolID]types.ToolStep{
		"A": {ToolID: "A"},
		"B": {ToolID: "B", DependsOn: []types.ToolID{"A"}},
	}
	pending := map[types.ToolID]types.ToolStep{"B": byID["B"]}
	state := newExecutionState()
	state.results["A"] = types.ToolOutcome{Status: types.OutcomeError}

	e := &Executor{metrics: noopMetrics{}}
	ready, progressed := e.computeReady(pending, byID, state)
	if len(ready) != 0 {
		t.Fatalf("expected no ready steps, got %v", ready)
	}
	if !progressed {
		t.Fatal("expected progressed=true due to skip propagation")
	}
	if len(pending) != 0 {
		t.Fatalf("expected B removed from pending after skip propagation, got %v", pending)
	}
	reason, ok := state.skipped["B"]
	if !ok || reason != types.SkipUpstreamFailure {
		t.Fatalf("expected B skipped with SkipUpstreamFailure, got %v %v", ok, reason)
	}
}

func TestExecuteWithResourceManagerGrantsAndReleases(t *testing.T) {
	chain := types.ToolChain{Steps: []types.ToolStep{{ToolID: "A"}, {ToolID: "B"}}}
	reg := newStubRegistry("A", "B")
	adapter := successAdapter()
	mgr := resourcemgr.NewManager(resourcemgr.DefaultLimits(4), nil)
	defer mgr.Stop()

	e := New(reg, adapter, mgr, nil, nil)
	out, err := e.Execute(context.Background(), chain, "q", types.QuestionContext{})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if out.PerToolOutcomes["A"].Status != types.OutcomeSuccess || out.PerToolOutcomes["B"].Status != types.OutcomeSuccess {
		t.Fatalf("expected both steps to succeed under resource management, got %+v", out.PerToolOutcomes)
	}

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if mgr.Utilization()[types.ResourceCPU] == 0 {
			return
		}
		time.Sleep(20 * time.Millisecond)
	}
	t.Fatal("expected all allocations released after execution completed")
}
