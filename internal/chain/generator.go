// Package chain implements the Tool-Chain Generator (C6): expands an
// intent/complexity/context analysis into an ordered ToolChain. Step
// ordering and input bindings are derived entirely from ToolContract
// declared inputs/outputs; the generator never compares literal ToolIDs to
// decide what can run in parallel — that decision belongs to the
// Dependency Analyzer (internal/depgraph), which reasons over contract
// resource tags instead of a hardcoded pair table.
package chain

import (
	"sort"
	"strings"
	"time"

	"dtcore/internal/depgraph"
	"dtcore/internal/types"
)

// ContractLookup is the subset of the tool registry the generator needs.
type ContractLookup interface {
	Get(id types.ToolID) (types.ToolContract, bool)
	All() []types.ToolContract
}

// Generator builds tool chains from question analysis results.
type Generator struct {
	registry    ContractLookup
	depAnalyzer *depgraph.Analyzer
	intentTools map[types.Intent][]types.ToolID
}

// NewGenerator builds a Generator over the given contract registry. It
// builds its own Dependency Analyzer over the same registry to satisfy step
// 8 of the generation algorithm (mark parallel-eligible steps and compute
// canParallelize) without the caller having to wire a second component.
func NewGenerator(registry ContractLookup) *Generator {
	return &Generator{
		registry:    registry,
		depAnalyzer: depgraph.NewAnalyzer(registry),
		intentTools: defaultIntentTools(),
	}
}

// Generate produces a ToolChain from the combined outputs of the Intent
// Classifier, Complexity Analyzer, and Context Extractor.
func (g *Generator) Generate(intentResult types.IntentResult, complexityResult types.ComplexityResult, ctxResult types.QuestionContext, question string) types.ToolChain {
	required := map[types.ToolID]bool{
		"T01_PDF_LOADER":    true,
		"T15A_TEXT_CHUNKER": true,
	}

	for t := range g.toolsForIntent(intentResult.Primary) {
		required[t] = true
	}
	for _, secondary := range intentResult.Secondary {
		for t := range g.toolsForIntent(secondary) {
			required[t] = true
		}
	}
	for t := range g.toolsForContext(ctxResult) {
		required[t] = true
	}

	lower := strings.ToLower(question)
	if required["T23A_SPACY_NER"] {
		if isRelationalIntent(intentResult.Primary) || strings.Contains(lower, "relationship") || strings.Contains(lower, "relate") {
			required["T27_RELATIONSHIP_EXTRACTOR"] = true
		}
	}
	if required["T27_RELATIONSHIP_EXTRACTOR"] || intentResult.Primary == types.IntentNetwork {
		required["T31_ENTITY_BUILDER"] = true
		required["T34_EDGE_BUILDER"] = true
	}

	switch complexityResult.Level {
	case types.ComplexitySimple:
		required = g.optimizeSimpleChain(required)
	case types.ComplexityComplex:
		required = g.ensureComplexChain(required)
	}

	order := g.contractOrder(required)

	steps := make([]types.ToolStep, 0, len(order))
	for _, id := range order {
		steps = append(steps, g.buildStep(id, required))
	}

	executionGraph := make(map[types.ToolID][]types.ToolID, len(steps))
	for _, s := range steps {
		executionGraph[s.ToolID] = append([]types.ToolID(nil), s.DependsOn...)
	}

	canParallelize := false
	if depAnalysis, err := g.depAnalyzer.Analyze(steps); err == nil {
		canParallelize = depAnalysis.CanParallelize
		applyParallelGroups(steps, depAnalysis.ParallelGroups)
	}
	estimatedTime := g.estimateTime(steps, canParallelize)
	estimatedMemory := g.estimateMemory(steps)

	return types.ToolChain{
		Steps:           steps,
		CanParallelize:  canParallelize,
		EstimatedTime:   estimatedTime,
		EstimatedMemory: estimatedMemory,
		ExecutionGraph:  executionGraph,
	}
}

// contractOrder topologically sorts the required tools using dependencies
// derived purely from contract input/output overlap: tool A depends on tool
// B when A declares an input B declares as an output.
func (g *Generator) contractOrder(required map[types.ToolID]bool) []types.ToolID {
	deps := g.contractDependencies(required)

	inDegree := make(map[types.ToolID]int, len(required))
	for id := range required {
		inDegree[id] = 0
	}
	for id, ds := range deps {
		inDegree[id] = len(ds)
	}

	ready := make([]types.ToolID, 0, len(required))
	for id := range required {
		if inDegree[id] == 0 {
			ready = append(ready, id)
		}
	}
	sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })

	successors := make(map[types.ToolID][]types.ToolID)
	for id, ds := range deps {
		for _, d := range ds {
			successors[d] = append(successors[d], id)
		}
	}

	var order []types.ToolID
	for len(ready) > 0 {
		sort.Slice(ready, func(i, j int) bool { return ready[i] < ready[j] })
		next := ready[0]
		ready = ready[1:]
		order = append(order, next)

		succ := append([]types.ToolID(nil), successors[next]...)
		sort.Slice(succ, func(i, j int) bool { return succ[i] < succ[j] })
		for _, s := range succ {
			inDegree[s]--
			if inDegree[s] == 0 {
				ready = append(ready, s)
			}
		}
	}

	return order
}

func (g *Generator) contractDependencies(required map[types.ToolID]bool) map[types.ToolID][]types.ToolID {
	deps := make(map[types.ToolID][]types.ToolID, len(required))
	for id := range required {
		contract, ok := g.registry.Get(id)
		if !ok {
			continue
		}
		var found []types.ToolID
		for other := range required {
			if other == id {
				continue
			}
			otherContract, ok := g.registry.Get(other)
			if !ok {
				continue
			}
			if sharesOutputInput(otherContract, contract) {
				found = append(found, other)
			}
		}
		sort.Slice(found, func(i, j int) bool { return found[i] < found[j] })
		deps[id] = found
	}
	return deps
}

func sharesOutputInput(producer, consumer types.ToolContract) bool {
	for _, out := range producer.DeclaredOutputs {
		if consumer.HasInput(out) {
			return true
		}
	}
	return false
}

func (g *Generator) buildStep(id types.ToolID, required map[types.ToolID]bool) types.ToolStep {
	deps := g.contractDependencies(required)[id]

	inputBindings := make(map[string]string)
	if contract, ok := g.registry.Get(id); ok {
		for _, input := range contract.DeclaredInputs {
			for _, dep := range deps {
				if depContract, ok := g.registry.Get(dep); ok && depContract.HasOutput(input) {
					inputBindings[input] = string(dep) + "." + input
				}
			}
		}
	}

	return types.ToolStep{
		ToolID:        id,
		InputBindings: inputBindings,
		Parameters:    map[string]interface{}{},
		DependsOn:     deps,
		ExecutionMode: types.ExecSequential,
	}
}

// applyParallelGroups sets ExecutionMode to parallel on every step that is a
// member of a non-singleton Dependency Analyzer parallel group, and
// sequential otherwise, per step 8 of the generation algorithm.
func applyParallelGroups(steps []types.ToolStep, groups [][]types.ToolID) {
	parallel := make(map[types.ToolID]bool)
	for _, group := range groups {
		if len(group) < 2 {
			continue
		}
		for _, id := range group {
			parallel[id] = true
		}
	}
	for i := range steps {
		if parallel[steps[i].ToolID] {
			steps[i].ExecutionMode = types.ExecParallel
		} else {
			steps[i].ExecutionMode = types.ExecSequential
		}
	}
}

func (g *Generator) toolsForIntent(intent types.Intent) map[types.ToolID]bool {
	out := make(map[types.ToolID]bool)
	tools, ok := g.intentTools[intent]
	if !ok {
		out["T23A_SPACY_NER"] = true
		return out
	}
	for _, t := range tools {
		out[t] = true
	}
	return out
}

func (g *Generator) toolsForContext(ctx types.QuestionContext) map[types.ToolID]bool {
	out := make(map[types.ToolID]bool)
	if len(ctx.MentionedEntities) > 0 {
		out["T23A_SPACY_NER"] = true
		out["T31_ENTITY_BUILDER"] = true
	}
	if ctx.RequiresComparison {
		out["T27_RELATIONSHIP_EXTRACTOR"] = true
		out["T49_MULTI_HOP_QUERY"] = true
	}
	if ctx.RequiresAggregation {
		out["T68_PAGE_RANK"] = true
	}
	if ctx.HasTemporal {
		out["T27_RELATIONSHIP_EXTRACTOR"] = true
	}
	return out
}

func isRelationalIntent(intent types.Intent) bool {
	switch intent {
	case types.IntentRelationshipAnalysis, types.IntentNetwork, types.IntentComparative:
		return true
	default:
		return false
	}
}

func (g *Generator) optimizeSimpleChain(required map[types.ToolID]bool) map[types.ToolID]bool {
	essential := map[types.ToolID]bool{
		"T01_PDF_LOADER":    true,
		"T15A_TEXT_CHUNKER": true,
		"T23A_SPACY_NER":    true,
	}
	if required["T27_RELATIONSHIP_EXTRACTOR"] && required["T34_EDGE_BUILDER"] {
		essential["T27_RELATIONSHIP_EXTRACTOR"] = true
		essential["T34_EDGE_BUILDER"] = true
	}
	return essential
}

func (g *Generator) ensureComplexChain(required map[types.ToolID]bool) map[types.ToolID]bool {
	out := make(map[types.ToolID]bool, len(required))
	for k, v := range required {
		out[k] = v
	}
	if out["T27_RELATIONSHIP_EXTRACTOR"] {
		out["T34_EDGE_BUILDER"] = true
	}
	if out["T31_ENTITY_BUILDER"] || out["T34_EDGE_BUILDER"] {
		out["T68_PAGE_RANK"] = true
	}
	return out
}

var toolDurations = map[types.ToolID]float64{
	"T01_PDF_LOADER":             0.5,
	"T15A_TEXT_CHUNKER":          0.3,
	"T23A_SPACY_NER":             1.0,
	"T27_RELATIONSHIP_EXTRACTOR": 1.5,
	"T31_ENTITY_BUILDER":         0.8,
	"T34_EDGE_BUILDER":           1.0,
	"T68_PAGE_RANK":              2.0,
	"T49_MULTI_HOP_QUERY":        1.5,
}

var toolMemoryMB = map[types.ToolID]int{
	"T01_PDF_LOADER":             50,
	"T15A_TEXT_CHUNKER":          30,
	"T23A_SPACY_NER":             200,
	"T27_RELATIONSHIP_EXTRACTOR": 150,
	"T31_ENTITY_BUILDER":         100,
	"T34_EDGE_BUILDER":           100,
	"T68_PAGE_RANK":              300,
	"T49_MULTI_HOP_QUERY":        200,
}

func (g *Generator) estimateTime(steps []types.ToolStep, canParallelize bool) time.Duration {
	total := 0.0
	for _, s := range steps {
		d, ok := toolDurations[s.ToolID]
		if !ok {
			d = 1.0
		}
		total += d
	}
	if canParallelize {
		total *= 0.7
	}
	return time.Duration(total * float64(time.Second))
}

func defaultIntentTools() map[types.Intent][]types.ToolID {
	return map[types.Intent][]types.ToolID{
		types.IntentDocumentSummary:      {"T23A_SPACY_NER"},
		types.IntentEntityExtraction:     {"T23A_SPACY_NER", "T31_ENTITY_BUILDER"},
		types.IntentRelationshipAnalysis: {"T27_RELATIONSHIP_EXTRACTOR", "T34_EDGE_BUILDER"},
		types.IntentTheme:                {"T23A_SPACY_NER"},
		types.IntentSpecificSearch:       {"T23A_SPACY_NER"},
		types.IntentComparative:          {"T23A_SPACY_NER", "T27_RELATIONSHIP_EXTRACTOR", "T49_MULTI_HOP_QUERY"},
		types.IntentPatternDiscovery:     {"T23A_SPACY_NER", "T27_RELATIONSHIP_EXTRACTOR", "T68_PAGE_RANK"},
		types.IntentPredictive:           {"T23A_SPACY_NER", "T27_RELATIONSHIP_EXTRACTOR", "T68_PAGE_RANK"},
		types.IntentCausal:               {"T27_RELATIONSHIP_EXTRACTOR", "T49_MULTI_HOP_QUERY"},
		types.IntentTemporal:             {"T23A_SPACY_NER", "T27_RELATIONSHIP_EXTRACTOR"},
		types.IntentStatistical:          {"T23A_SPACY_NER", "T68_PAGE_RANK"},
		types.IntentAnomaly:              {"T23A_SPACY_NER", "T68_PAGE_RANK"},
		types.IntentSentiment:            {"T23A_SPACY_NER"},
		types.IntentHierarchical:         {"T23A_SPACY_NER", "T31_ENTITY_BUILDER", "T27_RELATIONSHIP_EXTRACTOR"},
		types.IntentNetwork:              {"T31_ENTITY_BUILDER", "T34_EDGE_BUILDER", "T68_PAGE_RANK"},
	}
}

func (g *Generator) estimateMemory(steps []types.ToolStep) int {
	const overhead = 200
	peak := 100
	for _, s := range steps {
		if m, ok := toolMemoryMB[s.ToolID]; ok && m > peak {
			peak = m
		}
	}
	return peak + overhead
}
