// Package types defines the core value objects shared across the dynamic
// execution core: tool contracts, question analysis results, tool chains,
// execution plans, resource requests, and synthesis results.
//
// Types in this package are value objects unless their doc comment says
// otherwise: everything here is built once and read thereafter. Per-run
// execution state lives in the executor's ExecutionContext (see
// internal/executor) and allocation state in the Resource Manager's
// allocation table (see internal/resourcemgr).
package types

import "time"

// ToolID is an opaque, globally unique tool identifier, e.g. "T23A_SPACY_NER".
type ToolID string

// ResourceTag describes how a tool interacts with a shared resource.
type ResourceTag struct {
	Resource  string `json:"resource"`            // e.g. "knowledge_graph", "cpu", "disk"
	Reads     bool   `json:"reads"`
	Writes    bool   `json:"writes"`
	Exclusive bool   `json:"exclusive"`            // true: no other tool may write this resource concurrently
}

// ToolContract is the static, load-once declaration of a tool's interface.
// The Contract Analyzer, Tool-Chain Generator, Dependency Analyzer, and
// Planner all derive behavior from contracts rather than from the tool's
// identifier — no component may branch on a literal ToolID outside contract
// loading.
type ToolContract struct {
	ToolID             ToolID        `json:"tool_id"`
	DeclaredInputs     []string      `json:"declared_inputs"`
	DeclaredOutputs    []string      `json:"declared_outputs"`
	ResourceTags       []ResourceTag `json:"resource_tags"`
	ReliabilityPrior   float64       `json:"reliability_prior"` // [0,1]
	BaseDurationEst    time.Duration `json:"base_duration_estimate"`
	BaseMemoryEstimate int           `json:"base_memory_estimate_mb"`
}

// HasInput reports whether the contract declares the given input key.
func (c ToolContract) HasInput(key string) bool {
	for _, k := range c.DeclaredInputs {
		if k == key {
			return true
		}
	}
	return false
}

// HasOutput reports whether the contract declares the given output key.
func (c ToolContract) HasOutput(key string) bool {
	for _, k := range c.DeclaredOutputs {
		if k == key {
			return true
		}
	}
	return false
}

// Intent is one of a fixed set of 15 named question intents.
type Intent string

const (
	IntentDocumentSummary      Intent = "document_summary"
	IntentEntityExtraction     Intent = "entity_extraction"
	IntentRelationshipAnalysis Intent = "relationship_analysis"
	IntentTheme                Intent = "theme"
	IntentSpecificSearch       Intent = "specific_search"
	IntentComparative          Intent = "comparative"
	IntentPatternDiscovery     Intent = "pattern_discovery"
	IntentPredictive           Intent = "predictive"
	IntentCausal               Intent = "causal"
	IntentTemporal             Intent = "temporal"
	IntentStatistical          Intent = "statistical"
	IntentAnomaly              Intent = "anomaly"
	IntentSentiment            Intent = "sentiment"
	IntentHierarchical         Intent = "hierarchical"
	IntentNetwork              Intent = "network"
)

// AllIntents is the fixed, ordered set of recognized intents.
var AllIntents = []Intent{
	IntentDocumentSummary, IntentEntityExtraction, IntentRelationshipAnalysis,
	IntentTheme, IntentSpecificSearch, IntentComparative, IntentPatternDiscovery,
	IntentPredictive, IntentCausal, IntentTemporal, IntentStatistical,
	IntentAnomaly, IntentSentiment, IntentHierarchical, IntentNetwork,
}

// IntentResult is the output of the Intent Classifier (C3).
type IntentResult struct {
	Primary           Intent             `json:"primary"`
	Secondary         []Intent           `json:"secondary"`
	PerIntentScore    map[Intent]float64 `json:"per_intent_score"`
	Confidence        float64            `json:"confidence"`
	RequiresMultiStep bool               `json:"requires_multi_step"`
	RecommendedTools  map[ToolID]bool    `json:"recommended_tools"`
}

// ComplexityLevel buckets a question's estimated difficulty.
type ComplexityLevel string

const (
	ComplexitySimple   ComplexityLevel = "simple"
	ComplexityModerate ComplexityLevel = "moderate"
	ComplexityComplex  ComplexityLevel = "complex"
)

// ComplexityResult is the output of the Complexity Analyzer (C4).
type ComplexityResult struct {
	Level                   ComplexityLevel    `json:"level"`
	EstimatedTools          int                `json:"estimated_tools"`
	ParallelizableComponents int               `json:"parallelizable_components"`
	EstimatedTime           time.Duration      `json:"estimated_time"`
	EstimatedMemory         int                `json:"estimated_memory_mb"`
	ExecutionStrategyHint   string             `json:"execution_strategy_hint"`
	Factors                 map[string]float64 `json:"factors"`
	Score                   float64            `json:"score"`
}

// ComparisonType enumerates the kinds of comparisons a question can request.
type ComparisonType string

const (
	ComparisonVersus     ComparisonType = "versus"
	ComparisonRanking    ComparisonType = "ranking"
	ComparisonSimilarity ComparisonType = "similarity"
)

// QuestionContext is the output of the Context Extractor (C5).
//
// Invariant: Ambiguity > 0.3 implies MissingContext is non-empty.
type QuestionContext struct {
	HasTemporal         bool              `json:"has_temporal"`
	TemporalConstraints []string          `json:"temporal_constraints"`
	MentionedEntities   []string          `json:"mentioned_entities"`
	EntityConstraints   map[string]string `json:"entity_constraints"`
	RequiresComparison  bool              `json:"requires_comparison"`
	ComparisonType      ComparisonType    `json:"comparison_type,omitempty"`
	ComparisonCount     int               `json:"comparison_count"`
	ComparisonEntities  []string          `json:"comparison_entities"`
	RequiresAggregation bool              `json:"requires_aggregation"`
	AggregationType     string            `json:"aggregation_type,omitempty"`
	AggregationScope    string            `json:"aggregation_scope,omitempty"`
	HasFilters          bool              `json:"has_filters"`
	FilterConditions    []string          `json:"filter_conditions"`
	OutputHints         []string          `json:"output_hints"`
	ScopeModifiers      []string          `json:"scope_modifiers"`
	HasNegation         bool              `json:"has_negation"`
	Ambiguity           float64           `json:"ambiguity"`
	MissingContext      []string          `json:"missing_context"`
}

// ExecutionMode is the dispatch mode the generator assigns a step.
type ExecutionMode string

const (
	ExecSequential  ExecutionMode = "sequential"
	ExecParallel    ExecutionMode = "parallel"
	ExecConditional ExecutionMode = "conditional"
)

// StepCondition is an opaque predicate evaluated against accumulated results
// before a step is dispatched. Kind selects the check; Field/Operator/Value
// parameterize it. Built-in gating policies (see internal/executor) are
// applied in addition to any condition carried here.
type StepCondition struct {
	Kind     string      `json:"kind"`
	Field    string      `json:"field,omitempty"`
	Operator string      `json:"operator,omitempty"`
	Value    interface{} `json:"value,omitempty"`
}

// ToolStep is one node of a ToolChain: a planned invocation of a tool with
// its input bindings, static parameters, and declared dependencies.
type ToolStep struct {
	ToolID         ToolID                 `json:"tool_id"`
	InputBindings  map[string]string      `json:"input_bindings"` // local name -> "ToolID.outputKey" reference
	Parameters     map[string]interface{} `json:"parameters"`
	DependsOn      []ToolID               `json:"depends_on"`
	ExecutionMode  ExecutionMode          `json:"execution_mode"`
	Optional       bool                   `json:"optional"`
	Condition      *StepCondition         `json:"condition,omitempty"`
}

// ToolChain is the ordered sequence of tool steps produced by the generator,
// the pre-plan form of the DAG.
//
// Invariant: for every step s and dep in s.DependsOn, dep appears earlier in
// Steps.
type ToolChain struct {
	Steps           []ToolStep           `json:"steps"`
	CanParallelize  bool                 `json:"can_parallelize"`
	EstimatedTime   time.Duration        `json:"estimated_time"`
	EstimatedMemory int                  `json:"estimated_memory_mb"`
	ExecutionGraph  map[ToolID][]ToolID  `json:"execution_graph"` // tool -> its dependencies
}

// DependencyAnalysis is the output of the Dependency Analyzer (C7).
type DependencyAnalysis struct {
	Levels           map[ToolID]int        `json:"levels"`
	IndependentPairs [][2]ToolID           `json:"independent_pairs"`
	ParallelGroups   [][]ToolID            `json:"parallel_groups"`
	CanParallelize   bool                  `json:"can_parallelize"`
}

// PlannedStep is one entry in an ExecutionPlan: a ToolStep enriched with
// scheduling estimates and adaptive parameters.
type PlannedStep struct {
	StepID             string                 `json:"step_id"`
	ToolID             ToolID                 `json:"tool_id"`
	Level              int                    `json:"level"`
	DependsOn          []ToolID               `json:"depends_on"`
	EstimatedStartTime time.Duration          `json:"estimated_start_time"`
	EstimatedDuration  time.Duration          `json:"estimated_duration"`
	ResourceAllocation ResourceEstimate       `json:"resource_allocation"`
	Priority           int                    `json:"priority"`
	AdaptiveParameters map[string]interface{} `json:"adaptive_parameters"`
}

// ResourceEstimate is a planner-time resource estimate for a step, distinct
// from a runtime ResourceAllocation granted by the Resource Manager.
type ResourceEstimate struct {
	MemoryMB int           `json:"memory_mb"`
	CPUShare float64       `json:"cpu_share"`
	Tags     []ResourceTag `json:"tags"`
}

// Strategy names the execution optimization strategy applied to a plan.
type Strategy string

const (
	StrategyThroughputMax    Strategy = "throughput-max"
	StrategyLatencyMin       Strategy = "latency-min"
	StrategyResourceEfficient Strategy = "resource-efficient"
	StrategyBalanced         Strategy = "balanced"
	StrategyAdaptive         Strategy = "adaptive"
)

// ExecutionPlan is the concrete execution schedule derived from a ToolChain.
type ExecutionPlan struct {
	PlanID               string        `json:"plan_id"`
	Steps                []PlannedStep `json:"steps"`
	Strategy             Strategy      `json:"strategy"`
	TotalEstimatedTime   time.Duration `json:"total_estimated_time"`
	ParallelizationRatio float64       `json:"parallelization_ratio"`
	ResourceEfficiency   float64       `json:"resource_efficiency"`
	Confidence           float64       `json:"confidence"`
}

// ResourceType enumerates the resource pools the Resource Manager governs.
type ResourceType string

const (
	ResourceCPU          ResourceType = "cpu"
	ResourceMemory       ResourceType = "memory"
	ResourceDiskIO       ResourceType = "disk_io"
	ResourceNetIO        ResourceType = "net_io"
	ResourceDBConns      ResourceType = "db_connections"
	ResourceThreadPool   ResourceType = "thread_pool"
	ResourceProcessPool  ResourceType = "process_pool"
)

// ResourceRequest asks the Resource Manager for an allocation.
type ResourceRequest struct {
	RequesterID     string        `json:"requester_id"`
	ResourceType    ResourceType  `json:"resource_type"`
	Amount          float64       `json:"amount"`
	Priority        int           `json:"priority"` // [1,10]
	DurationEstimate time.Duration `json:"duration_estimate"`
	CanWait         bool          `json:"can_wait"`
	Timeout         time.Duration `json:"timeout"`
}

// ResourceAllocation is a granted resource request. Active and ActualUsage
// are mutable after creation; everything else is fixed at grant time.
type ResourceAllocation struct {
	AllocationID string       `json:"allocation_id"`
	RequesterID  string       `json:"requester_id"`
	Type         ResourceType `json:"type"`
	Amount       float64      `json:"amount"`
	Start        time.Time    `json:"start"`
	ExpiresAt    *time.Time   `json:"expires_at,omitempty"`
	ActualUsage  float64      `json:"actual_usage"`
	Active       bool         `json:"active"`
}

// OutcomeStatus is the tagged variant of a ToolOutcome.
type OutcomeStatus string

const (
	OutcomeSuccess OutcomeStatus = "success"
	OutcomeError   OutcomeStatus = "error"
)

// ToolOutcome is what a tool adapter invocation returns.
type ToolOutcome struct {
	Status      OutcomeStatus          `json:"status"`
	Data        map[string]interface{} `json:"data,omitempty"`
	Error       string                 `json:"error,omitempty"`
	Duration    time.Duration          `json:"duration"`
	Confidence  float64                `json:"confidence"`
	Uncertainty float64                `json:"uncertainty"`
	DataVolume  int                    `json:"data_volume"`
}

// SkipReason names why a step never ran.
type SkipReason string

const (
	SkipInsufficientEntities SkipReason = "insufficient_entities"
	SkipGraphTooSmall        SkipReason = "graph_too_small"
	SkipInsufficientEdges    SkipReason = "insufficient_edges"
	SkipCondition            SkipReason = "condition_not_met"
	SkipUpstreamFailure      SkipReason = "upstream_failure"
	SkipUpstreamSkipped      SkipReason = "upstream_skipped"
)

// ExecutedGroup records one parallel (or singleton) dispatch group.
type ExecutedGroup struct {
	Tools    []ToolID      `json:"tools"`
	WallTime time.Duration `json:"wall_time"`
}

// RunOutcome is the result of one Dynamic Executor run over one plan.
type RunOutcome struct {
	PerToolOutcomes  map[ToolID]ToolOutcome        `json:"per_tool_outcomes"`
	Executed         []ToolID                      `json:"executed"`
	Skipped          map[ToolID]SkipReason         `json:"skipped"`
	Failed           []ToolID                      `json:"failed"`
	TotalTime        time.Duration                 `json:"total_time"`
	ParallelGroupsRun []ExecutedGroup              `json:"parallel_groups_run"`
	AdaptedParams    map[ToolID]map[string]interface{} `json:"adapted_params"`
}

// ConfidenceSourceType classifies what produced a ConfidenceInput.
type ConfidenceSourceType string

const (
	SourceToolOutput        ConfidenceSourceType = "tool-output"
	SourceExecutionSuccess  ConfidenceSourceType = "execution-success"
	SourceDataQuality       ConfidenceSourceType = "data-quality"
	SourceTemporalConsist   ConfidenceSourceType = "temporal-consistency"
	SourceCrossValidation   ConfidenceSourceType = "cross-validation"
	SourceStatistical       ConfidenceSourceType = "statistical"
	SourceDomain            ConfidenceSourceType = "domain"
	SourceUserFeedback      ConfidenceSourceType = "user-feedback"
)

// ConfidenceInput is one signal fed into the Confidence Aggregator (C12).
type ConfidenceInput struct {
	SourceID      string               `json:"source_id"`
	SourceType    ConfidenceSourceType `json:"source_type"`
	Confidence    float64              `json:"confidence"`
	Uncertainty   float64              `json:"uncertainty"`
	Weight        float64              `json:"weight"`
	ExecutionTime time.Duration        `json:"execution_time"`
	DataVolume    int                  `json:"data_volume"`
}

// AggregationMethod selects the Confidence Aggregator's combination rule.
type AggregationMethod string

const (
	MethodWeightedAverage  AggregationMethod = "weighted-average"
	MethodBayesianFusion   AggregationMethod = "bayesian-fusion"
	MethodMinimumConsensus AggregationMethod = "minimum-consensus"
	MethodUncertaintyWeighted AggregationMethod = "uncertainty-weighted"
	MethodDynamicWeighting AggregationMethod = "dynamic-weighting"
)

// UncertaintyBreakdown reports uncertainty across its recognized facets.
type UncertaintyBreakdown struct {
	Aleatoric  float64 `json:"aleatoric"`
	Epistemic  float64 `json:"epistemic"`
	Measurement float64 `json:"measurement"`
	Systematic float64 `json:"systematic"`
	Temporal   float64 `json:"temporal"`
	Total      float64 `json:"total"`
	Reducible  float64 `json:"reducible"`
	Irreducible float64 `json:"irreducible"`
}

// ConfidenceMetrics is the output of the Confidence Aggregator (C12).
//
// Invariant: every float component is in [0,1].
type ConfidenceMetrics struct {
	Overall          float64               `json:"overall"`
	Variance         float64               `json:"variance"`
	UncertaintyLevel float64               `json:"uncertainty_level"`
	Reliability      float64               `json:"reliability"`
	ConsensusStrength float64              `json:"consensus_strength"`
	PerTool          map[string]float64    `json:"per_tool"`
	PerSource        map[string]float64    `json:"per_source"`
	Outliers         []string              `json:"outliers"`
	Distribution     []float64             `json:"distribution"`
	Uncertainty      UncertaintyBreakdown  `json:"uncertainty"`
}

// FragmentType classifies a SynthesisFragment's content.
type FragmentType string

const (
	FragmentEntity       FragmentType = "entity"
	FragmentRelationship FragmentType = "relationship"
	FragmentTheme        FragmentType = "theme"
	FragmentMetric       FragmentType = "metric"
	FragmentSummary      FragmentType = "summary"
	FragmentFinding      FragmentType = "finding"
	FragmentEvidence     FragmentType = "evidence"
	FragmentComparison   FragmentType = "comparison"
	FragmentAnswer       FragmentType = "answer"
)

// SynthesisFragment is one structured unit of synthesized content,
// attributable to one or more tools.
type SynthesisFragment struct {
	Content            string       `json:"content"`
	SourceTools        []ToolID     `json:"source_tools"`
	Confidence         float64      `json:"confidence"`
	FragmentType       FragmentType `json:"fragment_type"`
	SupportingEvidence []string     `json:"supporting_evidence"`
}

// ConflictPolicy selects how the Response Synthesizer resolves disagreeing
// tool outputs within one content bucket.
type ConflictPolicy string

const (
	ConflictConfidenceWeighted ConflictPolicy = "confidence-weighted"
	ConflictMajority           ConflictPolicy = "majority"
	ConflictSourcePriority     ConflictPolicy = "source-priority"
	ConflictConsensusOnly      ConflictPolicy = "consensus-only"
	ConflictAllPerspectives    ConflictPolicy = "all-perspectives"
)

// SynthesisStrategy selects which sections compose the primary response.
type SynthesisStrategy string

const (
	SynthesisComprehensive SynthesisStrategy = "comprehensive"
	SynthesisFocused       SynthesisStrategy = "focused"
	SynthesisComparative   SynthesisStrategy = "comparative"
	SynthesisNarrative     SynthesisStrategy = "narrative"
	SynthesisAnalytical    SynthesisStrategy = "analytical"
	SynthesisSummary       SynthesisStrategy = "summary"
)

// QualityMetrics reports synthesis-level quality signals.
type QualityMetrics struct {
	OverallConfidence float64 `json:"overall_confidence"`
	Coverage          float64 `json:"coverage"`
	Coherence         float64 `json:"coherence"`
}

// SynthesisResult is the output of the Response Synthesizer (C13).
type SynthesisResult struct {
	PrimaryResponse   string               `json:"primary_response"`
	Fragments         []SynthesisFragment  `json:"fragments"`
	OverallConfidence float64              `json:"overall_confidence"`
	Strategy          SynthesisStrategy    `json:"strategy"`
	ToolCoverage      []ToolID             `json:"tool_coverage"`
	QualityMetrics    QualityMetrics       `json:"quality_metrics"`
	Alternatives      []string             `json:"alternatives"`
	Caveats           []string             `json:"caveats"`
}

// Metadata is a loosely-typed bag used at component boundaries that must
// accept heterogeneous tool-reported data (mirrors the external tool
// adapter's untyped `data` map, spec.md §6). Prefer a typed field whenever
// one is named in this package; Metadata exists only for the parts of the
// payload the core does not interpret itself.
type Metadata map[string]interface{}
