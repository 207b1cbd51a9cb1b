// Package executor implements the Dynamic Executor (C11): the hot path that
// drives a ToolChain to completion. It runs a ready-set loop (Pending →
// Ready → Running → {Succeeded | Failed | Skipped}), asks the Dependency
// Analyzer for parallel opportunities among whatever is Ready right now,
// adapts each step's parameters from the question context, resolves input
// bindings from already-terminal predecessors, and records a RunOutcome.
//
// The ExecutionContext built for one call to Execute is the only mutable
// state this package owns; contracts and the dependency analyzer are only
// read, and the resource manager and reliability updater are only called
// through their own methods (allocation requests/releases and per-tool
// reliability updates).
package executor

import (
	"context"
	"fmt"
	"sync"
	"time"

	"dtcore/internal/coreerrors"
	"dtcore/internal/depgraph"
	"dtcore/internal/resourcemgr"
	"dtcore/internal/types"
)

// ContractLookup is the subset of the tool registry the executor needs.
type ContractLookup interface {
	Get(id types.ToolID) (types.ToolContract, bool)
}

// ReliabilityUpdater lets the executor fold an observed outcome back into a
// tool's reliability score after every invocation.
type ReliabilityUpdater interface {
	UpdateReliability(id types.ToolID, performanceScore float64)
}

// ToolAdapter invokes one tool with its resolved arguments. Implementations
// live outside this package (internal/toolsim provides the one the engine
// wires in).
type ToolAdapter interface {
	Invoke(ctx context.Context, toolID types.ToolID, arguments map[string]interface{}) (types.ToolOutcome, error)
}

// MetricsSink records per-tool outcomes and skips for observability.
type MetricsSink interface {
	RecordToolOutcome(toolID types.ToolID, outcome types.ToolOutcome)
	RecordSkip(toolID types.ToolID, reason types.SkipReason)
}

type noopMetrics struct{}

func (noopMetrics) RecordToolOutcome(types.ToolID, types.ToolOutcome) {}
func (noopMetrics) RecordSkip(types.ToolID, types.SkipReason)        {}

// defaultResourceTimeout is the resource request timeout applied when a
// step's contract does not suggest a tighter one (spec: "default 30s").
const defaultResourceTimeout = 30 * time.Second

// Executor drives one ToolChain to completion per call to Execute.
type Executor struct {
	registry   ContractLookup
	analyzer   *depgraph.Analyzer
	resources  *resourcemgr.Manager
	adapter    ToolAdapter
	reliability ReliabilityUpdater
	metrics    MetricsSink
}

// New builds an Executor. resources and reliability may be nil: with no
// Resource Manager, steps run unthrottled; with no ReliabilityUpdater,
// observed outcomes are not fed back into the registry.
func New(registry ContractLookup, adapter ToolAdapter, resources *resourcemgr.Manager, reliability ReliabilityUpdater, metrics MetricsSink) *Executor {
	if metrics == nil {
		metrics = noopMetrics{}
	}
	return &Executor{
		registry:    registry,
		analyzer:    depgraph.NewAnalyzer(registry),
		resources:   resources,
		adapter:     adapter,
		reliability: reliability,
		metrics:     metrics,
	}
}

// executionState is the mutable, single-writer-discipline state for one run.
// Parallel group members may read it (under mu) but only
// the main loop, after a group completes, writes to it.
type executionState struct {
	mu               sync.Mutex
	results          map[types.ToolID]types.ToolOutcome
	executionTimes   map[types.ToolID]time.Duration
	skipped          map[types.ToolID]types.SkipReason
	adaptedParams    map[types.ToolID]map[string]interface{}
	parallelGroupsRun []types.ExecutedGroup
}

func newExecutionState() *executionState {
	return &executionState{
		results:        make(map[types.ToolID]types.ToolOutcome),
		executionTimes: make(map[types.ToolID]time.Duration),
		skipped:        make(map[types.ToolID]types.SkipReason),
		adaptedParams:  make(map[types.ToolID]map[string]interface{}),
	}
}

// Execute drives toolChain to completion. It returns an error only for the
// fatal kinds (UnknownTool, StalledExecution); every other failure is
// captured per-step in the returned RunOutcome.
func (e *Executor) Execute(ctx context.Context, chain types.ToolChain, question string, qctx types.QuestionContext) (types.RunOutcome, error) {
	byID := make(map[types.ToolID]types.ToolStep, len(chain.Steps))
	for _, s := range chain.Steps {
		if _, ok := e.registry.Get(s.ToolID); !ok {
			return types.RunOutcome{}, coreerrors.New(coreerrors.KindUnknownTool, string(s.ToolID), fmt.Errorf("no contract registered"))
		}
		byID[s.ToolID] = s
	}

	state := newExecutionState()
	pending := make(map[types.ToolID]types.ToolStep, len(byID))
	for id, s := range byID {
		pending[id] = s
	}

	start := time.Now()

	for len(pending) > 0 {
		ready, progressed := e.computeReady(pending, byID, state)
		if len(ready) == 0 {
			if !progressed {
				return types.RunOutcome{}, coreerrors.New(coreerrors.KindStalledExecution, "", fmt.Errorf("%d steps pending with no ready successor", len(pending)))
			}
			continue
		}

		if chain.CanParallelize && len(ready) > 1 {
			groups, err := e.analyzer.Analyze(ready)
			if err != nil {
				return types.RunOutcome{}, err
			}
			for _, group := range groups.ParallelGroups {
				steps := make([]types.ToolStep, 0, len(group))
				for _, id := range group {
					steps = append(steps, byID[id])
				}
				e.dispatchGroup(ctx, steps, question, qctx, byID, state)
				for _, s := range steps {
					delete(pending, s.ToolID)
				}
			}
		} else {
			for _, s := range ready {
				e.dispatchGroup(ctx, []types.ToolStep{s}, question, qctx, byID, state)
				delete(pending, s.ToolID)
			}
		}
	}

	return e.compile(chain, start, state), nil
}

// computeReady returns the steps whose dependencies are all terminal and
// not blocked by a non-optional upstream failure. Steps blocked by a
// non-optional failure are skip-propagated into state as a side effect.
// progressed reports whether any step was skip-propagated this call, so the
// caller can distinguish "nothing ready yet, but we made progress" from a
// genuine stall.
func (e *Executor) computeReady(pending map[types.ToolID]types.ToolStep, byID map[types.ToolID]types.ToolStep, state *executionState) ([]types.ToolStep, bool) {
	state.mu.Lock()
	defer state.mu.Unlock()

	var ready []types.ToolStep
	progressed := false

	for id, s := range pending {
		blocked := false
		allTerminal := true
		for _, dep := range s.DependsOn {
			if _, ok := byID[dep]; !ok {
				continue // dependency outside this chain; treat as already resolved
			}
			if outcome, ok := state.results[dep]; ok {
				if outcome.Status == types.OutcomeError && !byID[dep].Optional {
					blocked = true
				}
				continue
			}
			if _, ok := state.skipped[dep]; ok {
				continue
			}
			allTerminal = false
		}

		if blocked {
			state.skipped[id] = types.SkipUpstreamFailure
			e.metrics.RecordSkip(id, types.SkipUpstreamFailure)
			delete(pending, id)
			progressed = true
			continue
		}
		if allTerminal {
			ready = append(ready, s)
		}
	}
	return ready, progressed
}

// dispatchGroup runs a set of independent steps concurrently (or one step,
// for singleton groups) and merges their outcomes into state once every
// member has completed.
func (e *Executor) dispatchGroup(ctx context.Context, steps []types.ToolStep, question string, qctx types.QuestionContext, byID map[types.ToolID]types.ToolStep, state *executionState) {
	groupStart := time.Now()

	results := make([]dispatchResult, len(steps))

	if len(steps) == 1 {
		results[0] = e.runOne(ctx, steps[0], question, qctx, byID, state)
	} else {
		var wg sync.WaitGroup
		for i, s := range steps {
			wg.Add(1)
			go func(i int, s types.ToolStep) {
				defer wg.Done()
				results[i] = e.runOne(ctx, s, question, qctx, byID, state)
			}(i, s)
		}
		wg.Wait()
	}

	wallTime := time.Since(groupStart)

	state.mu.Lock()
	defer state.mu.Unlock()
	tools := make([]types.ToolID, 0, len(steps))
	for _, r := range results {
		tools = append(tools, r.toolID)
		if r.skipped {
			state.skipped[r.toolID] = r.skip
			continue
		}
		state.results[r.toolID] = r.outcome
		state.executionTimes[r.toolID] = r.outcome.Duration
		if r.params != nil {
			state.adaptedParams[r.toolID] = r.params
		}
	}
	state.parallelGroupsRun = append(state.parallelGroupsRun, types.ExecutedGroup{Tools: tools, WallTime: wallTime})
}

// dispatchResult is one step's outcome from runOne, merged into
// executionState by dispatchGroup once every member of its group completes.
type dispatchResult struct {
	toolID  types.ToolID
	outcome types.ToolOutcome
	skip    types.SkipReason
	params  map[string]interface{}
	skipped bool
}

// runOne performs the skip check, parameter adaptation, input resolution,
// resource acquisition, and tool invocation for a single step. It reads
// state (already-terminal predecessors only) but does not write to it; the
// caller merges the result after the whole dispatch group completes.
func (e *Executor) runOne(ctx context.Context, s types.ToolStep, question string, qctx types.QuestionContext, byID map[types.ToolID]types.ToolStep, state *executionState) dispatchResult {
	if reason, skip := e.shouldSkip(s, state); skip {
		e.metrics.RecordSkip(s.ToolID, reason)
		return dispatchResult{toolID: s.ToolID, skip: reason, skipped: true}
	}

	params := e.adaptParameters(s, qctx)

	args, skipReason, blocked := e.resolveInputs(s, byID, state, params)
	if blocked {
		e.metrics.RecordSkip(s.ToolID, skipReason)
		return dispatchResult{toolID: s.ToolID, skip: skipReason, skipped: true, params: params}
	}

	outcome := e.invoke(ctx, s, args)
	e.metrics.RecordToolOutcome(s.ToolID, outcome)
	if e.reliability != nil {
		e.reliability.UpdateReliability(s.ToolID, performanceScore(outcome))
	}
	return dispatchResult{toolID: s.ToolID, outcome: outcome, params: params}
}

func performanceScore(outcome types.ToolOutcome) float64 {
	if outcome.Status == types.OutcomeError {
		return 0.0
	}
	return outcome.Confidence
}

// invoke acquires a resource allocation sized from the tool's contract (if
// a Resource Manager is configured), calls the adapter, and releases the
// allocation afterward regardless of outcome.
func (e *Executor) invoke(ctx context.Context, s types.ToolStep, args map[string]interface{}) types.ToolOutcome {
	contract, _ := e.registry.Get(s.ToolID)

	var allocID string
	if e.resources != nil {
		amount := 25.0
		for _, tag := range contract.ResourceTags {
			if tag.Exclusive {
				amount = 50.0
			}
		}
		priority := 5
		if contract.ReliabilityPrior >= 0.8 {
			priority = 6
		}
		alloc, err := e.resources.RequestResource(ctx, types.ResourceRequest{
			RequesterID:      string(s.ToolID),
			ResourceType:     types.ResourceCPU,
			Amount:           amount,
			Priority:         priority,
			DurationEstimate: contract.BaseDurationEst,
			CanWait:          true,
			Timeout:          defaultResourceTimeout,
		})
		if err != nil {
			return types.ToolOutcome{Status: types.OutcomeError, Error: err.Error()}
		}
		allocID = alloc.AllocationID
	}

	start := time.Now()
	outcome, err := e.adapter.Invoke(ctx, s.ToolID, args)
	elapsed := time.Since(start)
	outcome.Duration = elapsed

	if e.resources != nil && allocID != "" {
		_ = e.resources.UpdateUsage(allocID, elapsed.Seconds())
		_ = e.resources.ReleaseResource(allocID)
	}

	if err != nil {
		return types.ToolOutcome{Status: types.OutcomeError, Error: err.Error(), Duration: elapsed}
	}
	return outcome
}

// shouldSkip evaluates the step's own condition plus the three exhaustive
// built-in data-driven gates: relationship extraction needs at least two
// upstream entities, PageRank needs at least three graph nodes, multi-hop
// query needs at least two graph edges.
func (e *Executor) shouldSkip(s types.ToolStep, state *executionState) (types.SkipReason, bool) {
	state.mu.Lock()
	defer state.mu.Unlock()

	switch s.ToolID {
	case "T27_RELATIONSHIP_EXTRACTOR":
		if outcome, ok := state.results["T23A_SPACY_NER"]; ok && outcome.Status == types.OutcomeSuccess {
			if dataLen(outcome.Data, "entities") < 2 {
				return types.SkipInsufficientEntities, true
			}
		}
	case "T68_PAGE_RANK":
		if outcome, ok := state.results["T31_ENTITY_BUILDER"]; ok && outcome.Status == types.OutcomeSuccess {
			if dataLen(outcome.Data, "graph_nodes") < 3 {
				return types.SkipGraphTooSmall, true
			}
		}
	case "T49_MULTI_HOP_QUERY":
		if outcome, ok := state.results["T34_EDGE_BUILDER"]; ok && outcome.Status == types.OutcomeSuccess {
			if dataLen(outcome.Data, "graph_edges") < 2 {
				return types.SkipInsufficientEdges, true
			}
		}
	}

	if s.Condition != nil && !evaluateCondition(*s.Condition, state.results) {
		return types.SkipCondition, true
	}
	return "", false
}

// evaluateCondition checks a generator-supplied predicate against
// accumulated results. Kind "min_data_len" is the only built-in predicate
// today; unrecognized kinds never block dispatch.
func evaluateCondition(cond types.StepCondition, results map[types.ToolID]types.ToolOutcome) bool {
	if cond.Kind != "min_data_len" {
		return true
	}
	outcome, ok := results[types.ToolID(cond.Field)]
	if !ok || outcome.Status != types.OutcomeSuccess {
		return false
	}
	threshold, ok := cond.Value.(float64)
	if !ok {
		return true
	}
	return float64(dataLen(outcome.Data, cond.Operator)) >= threshold
}

func dataLen(data map[string]interface{}, key string) int {
	v, ok := data[key]
	if !ok {
		return 0
	}
	switch vv := v.(type) {
	case []interface{}:
		return len(vv)
	case []string:
		return len(vv)
	case int:
		return vv
	case float64:
		return int(vv)
	default:
		return 0
	}
}

// adaptParameters merges a step's static parameters with context-driven
// overrides. The merged result is recorded on the returned RunOutcome's
// AdaptedParams regardless of whether any override actually applied.
func (e *Executor) adaptParameters(s types.ToolStep, qctx types.QuestionContext) map[string]interface{} {
	merged := make(map[string]interface{}, len(s.Parameters)+2)
	for k, v := range s.Parameters {
		merged[k] = v
	}

	if qctx.HasTemporal && len(qctx.TemporalConstraints) > 0 {
		if s.ToolID == "T23A_SPACY_NER" || s.ToolID == "T27_RELATIONSHIP_EXTRACTOR" {
			merged["time_filter"] = qctx.TemporalConstraints[0]
			merged["temporal_filtering_enabled"] = true
		}
	}

	if s.ToolID == "T15A_TEXT_CHUNKER" {
		if qctx.RequiresAggregation || len(qctx.MentionedEntities) > 3 {
			merged["chunk_size"] = 500
		} else {
			merged["chunk_size"] = 1000
		}
	}

	if s.ToolID == "T23A_SPACY_NER" {
		if qctx.Ambiguity > 0.5 {
			merged["confidence_threshold"] = 0.7
		} else {
			merged["confidence_threshold"] = 0.5
		}
	}

	if s.ToolID == "T27_RELATIONSHIP_EXTRACTOR" && qctx.RequiresComparison {
		merged["extract_comparison_relationships"] = true
		entities := qctx.ComparisonEntities
		if len(entities) == 0 {
			entities = qctx.MentionedEntities
		}
		merged["comparison_entities"] = entities
	}

	if s.ToolID == "T68_PAGE_RANK" {
		if qctx.RequiresAggregation || qctx.RequiresComparison {
			merged["max_iterations"] = 150
			merged["tolerance"] = 1e-7
		}
		if len(qctx.MentionedEntities) > 0 {
			merged["boost_entities"] = qctx.MentionedEntities
			merged["boost_factor"] = 2.0
		}
	}

	return merged
}

// resolveInputs builds the argument map for a step from its input bindings,
// substituting a nil default when an optional step's predecessor was
// skipped, and reporting UpstreamSkipped if a required predecessor output
// is unavailable.
func (e *Executor) resolveInputs(s types.ToolStep, byID map[types.ToolID]types.ToolStep, state *executionState, params map[string]interface{}) (map[string]interface{}, types.SkipReason, bool) {
	state.mu.Lock()
	defer state.mu.Unlock()

	args := map[string]interface{}{"parameters": params}
	resolved := make(map[string]interface{}, len(s.InputBindings))

	for localName, ref := range s.InputBindings {
		toolID, key := splitRef(ref)
		outcome, succeeded := state.results[toolID]
		if succeeded && outcome.Status == types.OutcomeSuccess {
			resolved[localName] = outcome.Data[key]
			continue
		}
		if _, wasSkipped := state.skipped[toolID]; wasSkipped || (succeeded && outcome.Status == types.OutcomeError) {
			if s.Optional {
				resolved[localName] = nil
				continue
			}
			return nil, types.SkipUpstreamSkipped, true
		}
	}

	args["input_data"] = resolved
	return args, "", false
}

func splitRef(ref string) (types.ToolID, string) {
	for i := len(ref) - 1; i >= 0; i-- {
		if ref[i] == '.' {
			return types.ToolID(ref[:i]), ref[i+1:]
		}
	}
	return types.ToolID(ref), ""
}

// compile assembles the final RunOutcome from accumulated state.
func (e *Executor) compile(chain types.ToolChain, start time.Time, state *executionState) types.RunOutcome {
	state.mu.Lock()
	defer state.mu.Unlock()

	executed := make([]types.ToolID, 0, len(state.results))
	var failed []types.ToolID
	for id, outcome := range state.results {
		executed = append(executed, id)
		if outcome.Status == types.OutcomeError {
			failed = append(failed, id)
		}
	}

	return types.RunOutcome{
		PerToolOutcomes:   copyOutcomes(state.results),
		Executed:          executed,
		Skipped:           copySkipped(state.skipped),
		Failed:            failed,
		TotalTime:         time.Since(start),
		ParallelGroupsRun: append([]types.ExecutedGroup(nil), state.parallelGroupsRun...),
		AdaptedParams:     copyAdaptedParams(state.adaptedParams),
	}
}

func copyOutcomes(in map[types.ToolID]types.ToolOutcome) map[types.ToolID]types.ToolOutcome {
	out := make(map[types.ToolID]types.ToolOutcome, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copySkipped(in map[types.ToolID]types.SkipReason) map[types.ToolID]types.SkipReason {
	out := make(map[types.ToolID]types.SkipReason, len(in))
	for k, v := range in {
		out[k] = v
	}
	return out
}

func copyAdaptedParams(in map[types.ToolID]map[string]interface{}) map[types.ToolID]map[string]interface{} {
	out := make(map[types.ToolID]map[string]interface{}, len(in))
	for k, v := range in {
		cp := make(map[string]interface{}, len(v))
		for pk, pv := range v {
			cp[pk] = pv
		}
		out[k] = cp
	}
	return out
}
