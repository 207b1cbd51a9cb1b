package confidence

import (
	"testing"
	"time"

	"dtcore/internal/types"
)

type stubRegistry map[types.ToolID]float64

func (s stubRegistry) Reliability(id types.ToolID) float64 {
	if v, ok := s[id]; ok {
		return v
	}
	return 1.0
}

func sampleInputs() []types.ConfidenceInput {
	return []types.ConfidenceInput{
		{SourceID: "T23A_SPACY_NER", SourceType: types.SourceToolOutput, Confidence: 0.9, Uncertainty: 0.1, Weight: 1.0},
		{SourceID: "T27_RELATIONSHIP_EXTRACTOR", SourceType: types.SourceToolOutput, Confidence: 0.8, Uncertainty: 0.2, Weight: 1.0},
		{SourceID: "T68_PAGE_RANK", SourceType: types.SourceCrossValidation, Confidence: 0.85, Uncertainty: 0.05, Weight: 1.0},
	}
}

func TestAggregateWeightedAverageIsWithinRange(t *testing.T) {
	a := New(stubRegistry{})
	m := a.Aggregate(sampleInputs(), types.MethodWeightedAverage, nil)
	if m.Overall <= 0 || m.Overall > 1 {
		t.Fatalf("expected overall confidence in (0,1], got %v", m.Overall)
	}
	if len(m.PerTool) != 3 {
		t.Fatalf("expected per-tool breakdown for all 3 inputs, got %+v", m.PerTool)
	}
}

func TestAggregateDropsOutOfRangeConfidence(t *testing.T) {
	a := New(stubRegistry{})
	inputs := append(sampleInputs(), types.ConfidenceInput{SourceID: "bad", Confidence: 1.5})
	m := a.Aggregate(inputs, types.MethodWeightedAverage, nil)
	if _, ok := m.PerTool["bad"]; ok {
		t.Fatalf("expected the out-of-range input to be dropped, got %+v", m.PerTool)
	}
}

func TestAggregateEmptyInputsReturnsDefaultMetrics(t *testing.T) {
	a := New(stubRegistry{})
	m := a.Aggregate(nil, types.MethodWeightedAverage, nil)
	if m.Overall != 0.5 || m.UncertaintyLevel != 0.8 {
		t.Fatalf("expected neutral default metrics for no inputs, got %+v", m)
	}
}

func TestAggregateBayesianFusionCombinesTowardAgreement(t *testing.T) {
	a := New(stubRegistry{})
	inputs := []types.ConfidenceInput{
		{SourceID: "a", SourceType: types.SourceToolOutput, Confidence: 0.9, Weight: 1.0},
		{SourceID: "b", SourceType: types.SourceToolOutput, Confidence: 0.9, Weight: 1.0},
	}
	m := a.Aggregate(inputs, types.MethodBayesianFusion, nil)
	if m.Overall < 0.8 {
		t.Fatalf("expected fused confidence close to the agreeing inputs, got %v", m.Overall)
	}
}

func TestAggregateMinimumConsensusFindsLargestGroup(t *testing.T) {
	a := New(stubRegistry{})
	inputs := []types.ConfidenceInput{
		{SourceID: "a", SourceType: types.SourceToolOutput, Confidence: 0.9, Weight: 1.0},
		{SourceID: "b", SourceType: types.SourceToolOutput, Confidence: 0.88, Weight: 1.0},
		{SourceID: "c", SourceType: types.SourceToolOutput, Confidence: 0.2, Weight: 1.0},
	}
	m := a.Aggregate(inputs, types.MethodMinimumConsensus, nil)
	if m.ConsensusStrength <= 0 {
		t.Fatalf("expected a nonzero consensus strength with 2 agreeing inputs, got %v", m.ConsensusStrength)
	}
	if m.Overall < 0.8 {
		t.Fatalf("expected overall confidence near the consensus group mean, got %v", m.Overall)
	}
}

func TestAggregateMinimumConsensusNoAgreementIsConservative(t *testing.T) {
	a := New(stubRegistry{})
	inputs := []types.ConfidenceInput{
		{SourceID: "a", SourceType: types.SourceToolOutput, Confidence: 0.9, Weight: 1.0},
		{SourceID: "b", SourceType: types.SourceToolOutput, Confidence: 0.1, Weight: 1.0},
	}
	m := a.Aggregate(inputs, types.MethodMinimumConsensus, nil)
	if m.ConsensusStrength != 0 {
		t.Fatalf("expected zero consensus strength for disagreeing inputs, got %v", m.ConsensusStrength)
	}
	if m.Overall >= 0.1 {
		t.Fatalf("expected the conservative min*0.8 estimate, got %v", m.Overall)
	}
}

func TestAggregateUncertaintyWeightedPrefersCertainInputs(t *testing.T) {
	a := New(stubRegistry{})
	inputs := []types.ConfidenceInput{
		{SourceID: "certain", SourceType: types.SourceToolOutput, Confidence: 0.9, Uncertainty: 0.0, Weight: 1.0},
		{SourceID: "uncertain", SourceType: types.SourceToolOutput, Confidence: 0.1, Uncertainty: 0.9, Weight: 1.0},
	}
	m := a.Aggregate(inputs, types.MethodUncertaintyWeighted, nil)
	if m.Overall < 0.5 {
		t.Fatalf("expected the certain input to dominate, got %v", m.Overall)
	}
}

func TestAggregateDynamicWeightingBoostsHighVolumeTool(t *testing.T) {
	a := New(stubRegistry{})
	inputs := []types.ConfidenceInput{
		{SourceID: "small", SourceType: types.SourceToolOutput, Confidence: 0.5, Weight: 1.0, DataVolume: 10},
		{SourceID: "large", SourceType: types.SourceToolOutput, Confidence: 0.9, Weight: 1.0, DataVolume: 1000},
	}
	dyn := &DynamicContext{AverageDataVolume: 505}
	m := a.Aggregate(inputs, types.MethodDynamicWeighting, dyn)
	if m.Overall < 0.5 {
		t.Fatalf("expected the higher-volume, higher-confidence tool to pull the average up, got %v", m.Overall)
	}
}

func TestAggregateDynamicWeightingFavorsReliableToolsOnComplexQuestions(t *testing.T) {
	a := New(stubRegistry{"reliable": 1.0, "flaky": 0.2})
	inputs := []types.ConfidenceInput{
		{SourceID: "reliable", SourceType: types.SourceToolOutput, Confidence: 0.9, Weight: 1.0},
		{SourceID: "flaky", SourceType: types.SourceToolOutput, Confidence: 0.1, Weight: 1.0},
	}
	dyn := &DynamicContext{Complexity: types.ComplexityComplex}
	m := a.Aggregate(inputs, types.MethodDynamicWeighting, dyn)
	if m.Overall < 0.5 {
		t.Fatalf("expected the reliable tool to dominate on a complex question, got %v", m.Overall)
	}
}

func TestQuantifyUncertaintyIsBounded(t *testing.T) {
	a := New(stubRegistry{})
	m := a.Aggregate(sampleInputs(), types.MethodWeightedAverage, nil)
	if m.Uncertainty.Total < 0 || m.Uncertainty.Total > 1 {
		t.Fatalf("expected total uncertainty in [0,1], got %v", m.Uncertainty.Total)
	}
	if m.Uncertainty.Reducible+m.Uncertainty.Irreducible > m.Uncertainty.Total+1e-9 {
		t.Fatalf("expected reducible+irreducible to not exceed total, got %v + %v > %v",
			m.Uncertainty.Reducible, m.Uncertainty.Irreducible, m.Uncertainty.Total)
	}
}

func TestIdentifyOutliersFlagsFarOutlier(t *testing.T) {
	a := New(stubRegistry{})
	inputs := []types.ConfidenceInput{
		{SourceID: "a", SourceType: types.SourceToolOutput, Confidence: 0.9, Weight: 1.0},
		{SourceID: "b", SourceType: types.SourceToolOutput, Confidence: 0.91, Weight: 1.0},
		{SourceID: "c", SourceType: types.SourceToolOutput, Confidence: 0.89, Weight: 1.0},
		{SourceID: "d", SourceType: types.SourceToolOutput, Confidence: 0.9, Weight: 1.0},
		{SourceID: "e", SourceType: types.SourceToolOutput, Confidence: 0.91, Weight: 1.0},
		{SourceID: "f", SourceType: types.SourceToolOutput, Confidence: 0.89, Weight: 1.0},
		{SourceID: "g", SourceType: types.SourceToolOutput, Confidence: 0.9, Weight: 1.0},
		{SourceID: "outlier", SourceType: types.SourceToolOutput, Confidence: 0.05, Weight: 1.0},
	}
	m := a.Aggregate(inputs, types.MethodWeightedAverage, nil)
	var found bool
	for _, o := range m.Outliers {
		if o == "outlier" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected the far-off input to be flagged as an outlier, got %+v", m.Outliers)
	}
}

func TestIdentifyOutliersNeedsAtLeastThreeInputs(t *testing.T) {
	a := New(stubRegistry{})
	inputs := []types.ConfidenceInput{
		{SourceID: "a", SourceType: types.SourceToolOutput, Confidence: 0.9, Weight: 1.0},
		{SourceID: "b", SourceType: types.SourceToolOutput, Confidence: 0.1, Weight: 1.0},
	}
	m := a.Aggregate(inputs, types.MethodWeightedAverage, nil)
	if len(m.Outliers) != 0 {
		t.Fatalf("expected no outlier detection below 3 inputs, got %+v", m.Outliers)
	}
}

func TestDistributionCarriesRawConfidenceScores(t *testing.T) {
	a := New(stubRegistry{})
	m := a.Aggregate(sampleInputs(), types.MethodWeightedAverage, nil)
	if len(m.Distribution) != 3 {
		t.Fatalf("expected one distribution entry per valid input, got %+v", m.Distribution)
	}
}

func TestWithConfigChangesOutlierThreshold(t *testing.T) {
	a := New(stubRegistry{}).WithConfig(Config{OutlierZ: 100, ConsensusThreshold: 0.7, UncertaintyPenalty: 0.1})
	inputs := []types.ConfidenceInput{
		{SourceID: "a", SourceType: types.SourceToolOutput, Confidence: 0.9, Weight: 1.0},
		{SourceID: "b", SourceType: types.SourceToolOutput, Confidence: 0.91, Weight: 1.0},
		{SourceID: "c", SourceType: types.SourceToolOutput, Confidence: 0.01, Weight: 1.0},
	}
	m := a.Aggregate(inputs, types.MethodWeightedAverage, nil)
	if len(m.Outliers) != 0 {
		t.Fatalf("expected a very high Z threshold to suppress outlier detection, got %+v", m.Outliers)
	}
}

func TestDynamicWeightTimeFactorDoesNotPanicOnZeroExecutionTime(t *testing.T) {
	a := New(stubRegistry{})
	in := types.ConfidenceInput{SourceID: "a", Weight: 1.0, ExecutionTime: 0}
	w := a.dynamicWeight(in, &DynamicContext{AverageExecutionTime: 5 * time.Second})
	if w != 1.0 {
		t.Fatalf("expected zero execution time to leave weight unchanged, got %v", w)
	}
}
