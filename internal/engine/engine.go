// Package engine wires the thirteen components of the dynamic tool-chain
// execution core into a single Answer call: a question and a document
// reference go in, a synthesized, confidence-scored response comes out.
package engine

import (
	"context"
	"fmt"
	"runtime"

	"github.com/google/uuid"

	"dtcore/internal/chain"
	"dtcore/internal/complexity"
	"dtcore/internal/confidence"
	"dtcore/internal/config"
	"dtcore/internal/contract"
	"dtcore/internal/depgraph"
	"dtcore/internal/executor"
	"dtcore/internal/optimize"
	"dtcore/internal/plan"
	"dtcore/internal/qcontext"
	"dtcore/internal/reinforcement"
	"dtcore/internal/resourcemgr"
	"dtcore/internal/synthesis"
	"dtcore/internal/toolsim"
	"dtcore/internal/types"
)

// MetricsSink is implemented by internal/metrics.Collector; it satisfies
// both the executor's MetricsSink and the Resource Manager's
// EmergencyObserver so one collector instance can back both.
type MetricsSink interface {
	RecordToolOutcome(toolID types.ToolID, outcome types.ToolOutcome)
	RecordSkip(toolID types.ToolID, reason types.SkipReason)
	RecordResourceDenied(requesterID string, rt types.ResourceType)
}

// Engine holds one instance of every pipeline component, built once and
// reused across calls to Answer.
type Engine struct {
	cfg         *config.Config
	registry    *contract.Registry
	classifier  intentClassifier
	complexity  *complexity.Analyzer
	qcontext    *qcontext.Extractor
	chainGen    *chain.Generator
	depAnalyzer *depgraph.Analyzer
	planner     *plan.Planner
	optimizer   *optimize.Optimizer
	resources   *resourcemgr.Manager
	exec        *executor.Executor
	aggregator  *confidence.Aggregator
	synth       *synthesis.Synthesizer
}

// intentClassifier is the narrow surface Engine needs from internal/intent,
// named locally so this file doesn't have to import the package only to
// spell out its concrete type in a field declaration.
type intentClassifier interface {
	Classify(question string) types.IntentResult
}

// Options configures New's optional collaborators. Metrics may be nil (a
// no-op sink is used); Source is required.
type Options struct {
	Source  toolsim.DocumentSource
	Metrics MetricsSink
	Config  *config.Config
}

// New builds an Engine from its default registry and the canonical
// toolsim adapter.
func New(classifier intentClassifier, opts Options) (*Engine, error) {
	cfg := opts.Config
	if cfg == nil {
		cfg = config.Default()
	}

	registry, err := NewDefaultRegistry()
	if err != nil {
		return nil, fmt.Errorf("engine: building default registry: %w", err)
	}

	limits := resourcemgr.DefaultLimits(runtime.NumCPU())
	var observer resourcemgr.EmergencyObserver
	if opts.Metrics != nil {
		observer = opts.Metrics
	}
	resources := resourcemgr.NewManager(limits, observer)

	adapter := toolsim.New(opts.Source)

	var metricsSink executor.MetricsSink
	if opts.Metrics != nil {
		metricsSink = opts.Metrics
	}
	exec := executor.New(registry, adapter, resources, registry, metricsSink)

	selector := reinforcement.NewThompsonSelector(1)
	optimizer := optimize.NewOptimizer(selector)

	return &Engine{
		cfg:         cfg,
		registry:    registry,
		classifier:  classifier,
		complexity:  complexity.NewAnalyzer(),
		qcontext:    qcontext.NewExtractor(),
		chainGen:    chain.NewGenerator(registry),
		depAnalyzer: depgraph.NewAnalyzer(registry),
		planner:     plan.NewPlanner(registry),
		optimizer:   optimizer,
		resources:   resources,
		exec:        exec,
		aggregator:  confidence.New(registry),
		synth:       synthesis.New(),
	}, nil
}

// Stop releases the Resource Manager's background monitor goroutine.
func (e *Engine) Stop() {
	e.resources.Stop()
}

// Answer runs the full pipeline: classify intent, assess complexity,
// extract question context, generate a tool chain, analyze its
// dependencies, plan and optimize its schedule, execute it, aggregate
// per-tool confidence, and synthesize a structured response.
func (e *Engine) Answer(ctx context.Context, question, documentRef string) (types.SynthesisResult, error) {
	intentResult := e.classifier.Classify(question)
	complexityResult := e.complexity.Analyze(question, &intentResult)
	qctxResult := e.qcontext.Extract(question)

	toolChain := e.chainGen.Generate(intentResult, complexityResult, qctxResult, question)
	seedDocumentRef(&toolChain, documentRef)

	depAnalysis, err := e.depAnalyzer.Analyze(toolChain.Steps)
	if err != nil {
		return types.SynthesisResult{}, fmt.Errorf("engine: dependency analysis: %w", err)
	}

	execPlan, err := e.planner.Plan(uuid.NewString(), toolChain, depAnalysis)
	if err != nil {
		return types.SynthesisResult{}, fmt.Errorf("engine: planning: %w", err)
	}

	strategy := strategyFromComplexity(complexityResult.Level)
	execPlan = e.optimizer.Optimize(execPlan, strategy, e.cfg.Optimizer)

	run, err := e.exec.Execute(ctx, toolChain, question, qctxResult)
	if err != nil {
		return types.SynthesisResult{}, fmt.Errorf("engine: execution: %w", err)
	}
	e.optimizer.RecordOutcome(execPlan.Strategy, len(run.Failed) == 0)

	e.aggregateConfidence(run, complexityResult)

	synthStrategy := synthesisStrategyFromIntent(intentResult.Primary)
	policy := conflictPolicyFromConfig(e.cfg.Synthesis.DefaultConflictPolicy)
	result := e.synth.Synthesize(run, question, synthStrategy, policy)
	return result, nil
}

// seedDocumentRef injects the caller's document reference as a static
// parameter on the loader step, the one input the contract graph cannot
// supply (nothing upstream of T01_PDF_LOADER produces it).
func seedDocumentRef(tc *types.ToolChain, documentRef string) {
	for i := range tc.Steps {
		if tc.Steps[i].ToolID == "T01_PDF_LOADER" {
			if tc.Steps[i].Parameters == nil {
				tc.Steps[i].Parameters = map[string]interface{}{}
			}
			tc.Steps[i].Parameters["document_ref"] = documentRef
		}
	}
}

// aggregateConfidence feeds every successful tool outcome through the
// Confidence Aggregator and folds the resulting per-tool reliability score
// back into the registry, where the Confidence Aggregator reads it when
// weighting tool outputs on the next question.
func (e *Engine) aggregateConfidence(run types.RunOutcome, complexityResult types.ComplexityResult) {
	var inputs []types.ConfidenceInput
	for toolID, outcome := range run.PerToolOutcomes {
		if outcome.Status != types.OutcomeSuccess {
			continue
		}
		inputs = append(inputs, types.ConfidenceInput{
			SourceID:      string(toolID),
			SourceType:    types.SourceToolOutput,
			Confidence:    outcome.Confidence,
			Uncertainty:   outcome.Uncertainty,
			Weight:        1.0,
			ExecutionTime: outcome.Duration,
			DataVolume:    outcome.DataVolume,
		})
	}
	if len(inputs) == 0 {
		return
	}

	method := aggregationMethodFromConfig(e.cfg.Confidence.DefaultAggregationMethod)
	dyn := &confidence.DynamicContext{Complexity: complexityResult.Level}
	metrics := e.aggregator.Aggregate(inputs, method, dyn)

	for toolID, score := range metrics.PerTool {
		e.registry.UpdateReliability(types.ToolID(toolID), score)
	}
}

func strategyFromComplexity(level types.ComplexityLevel) types.Strategy {
	switch level {
	case types.ComplexitySimple:
		return types.StrategyLatencyMin
	case types.ComplexityComplex:
		return types.StrategyAdaptive
	default:
		return types.StrategyBalanced
	}
}

func synthesisStrategyFromIntent(intent types.Intent) types.SynthesisStrategy {
	switch intent {
	case types.IntentComparative:
		return types.SynthesisComparative
	case types.IntentStatistical, types.IntentAnomaly, types.IntentPatternDiscovery:
		return types.SynthesisAnalytical
	case types.IntentDocumentSummary:
		return types.SynthesisSummary
	case types.IntentTemporal, types.IntentCausal, types.IntentPredictive:
		return types.SynthesisNarrative
	default:
		return types.SynthesisComprehensive
	}
}

func conflictPolicyFromConfig(s string) types.ConflictPolicy {
	switch s {
	case "majority":
		return types.ConflictMajority
	case "source_priority":
		return types.ConflictSourcePriority
	case "consensus_only":
		return types.ConflictConsensusOnly
	case "all_perspectives":
		return types.ConflictAllPerspectives
	default:
		return types.ConflictConfidenceWeighted
	}
}

func aggregationMethodFromConfig(s string) types.AggregationMethod {
	switch s {
	case "bayesian_fusion":
		return types.MethodBayesianFusion
	case "minimum_consensus":
		return types.MethodMinimumConsensus
	case "uncertainty_weighted":
		return types.MethodUncertaintyWeighted
	case "dynamic_weighting":
		return types.MethodDynamicWeighting
	default:
		return types.MethodWeightedAverage
	}
}
