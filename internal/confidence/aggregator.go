// Package confidence implements the Confidence Aggregator (C12): it combines
// per-tool confidence and uncertainty signals collected during a run into a
// single calibrated ConfidenceMetrics, via one of five aggregation methods
// (WeightedAverage, BayesianFusion, MinimumConsensus, UncertaintyWeighted,
// DynamicWeighting). It also quantifies uncertainty across its recognized
// facets and flags outlier sources by Z-score.
//
// The only state carried across runs is tool reliability, which this
// package reads from (and the caller feeds back into) a Registry-like
// store; the aggregator itself is stateless.
package confidence

import (
	"math"
	"sort"
	"time"

	"dtcore/internal/types"
)

// ReliabilityLookup resolves a tool's current reliability weight. Satisfied
// by *contract.Registry; declared here so this package does not import
// contract directly.
type ReliabilityLookup interface {
	Reliability(id types.ToolID) float64
}

// sourceTypeWeights mirrors the teacher-domain source-type priors: cross
// validated and statistically-significant signals count for more than a
// single raw tool output.
var sourceTypeWeights = map[types.ConfidenceSourceType]float64{
	types.SourceToolOutput:       1.0,
	types.SourceExecutionSuccess: 0.8,
	types.SourceDataQuality:      0.9,
	types.SourceTemporalConsist:  0.7,
	types.SourceCrossValidation:  1.2,
	types.SourceStatistical:      1.1,
	types.SourceDomain:           0.9,
	types.SourceUserFeedback:     1.0,
}

// Config holds the recognized Confidence configuration surface.
type Config struct {
	OutlierZ           float64
	ConsensusThreshold float64
	UncertaintyPenalty float64
}

// DefaultConfig returns the spec-documented defaults.
func DefaultConfig() Config {
	return Config{
		OutlierZ:           2.0,
		ConsensusThreshold: 0.7,
		UncertaintyPenalty: 0.1,
	}
}

// DynamicContext carries the signals DynamicWeighting adjusts weights by:
// the run's average tool execution time and data volume (faster, more
// data-rich tools get a small bonus), and the question's complexity
// (complex questions lean harder on reliable tools).
type DynamicContext struct {
	AverageExecutionTime time.Duration
	AverageDataVolume    int
	Complexity           types.ComplexityLevel
}

// Aggregator combines ConfidenceInputs into ConfidenceMetrics.
type Aggregator struct {
	registry ReliabilityLookup
	config   Config
}

// New builds an Aggregator backed by the given reliability lookup and the
// default configuration.
func New(registry ReliabilityLookup) *Aggregator {
	return &Aggregator{registry: registry, config: DefaultConfig()}
}

// WithConfig overrides the aggregator's configuration.
func (a *Aggregator) WithConfig(cfg Config) *Aggregator {
	a.config = cfg
	return a
}

// Aggregate combines confidenceInputs using method, optionally adjusted by
// dyn when method is MethodDynamicWeighting (nil is fine for any method).
func (a *Aggregator) Aggregate(inputs []types.ConfidenceInput, method types.AggregationMethod, dyn *DynamicContext) types.ConfidenceMetrics {
	valid := a.preprocess(inputs)
	if len(valid) == 0 {
		return a.defaultMetrics()
	}

	var metrics types.ConfidenceMetrics
	switch method {
	case types.MethodBayesianFusion:
		metrics = a.bayesianFusion(valid)
	case types.MethodMinimumConsensus:
		metrics = a.minimumConsensus(valid)
	case types.MethodUncertaintyWeighted:
		metrics = a.uncertaintyWeighted(valid)
	case types.MethodDynamicWeighting:
		metrics = a.dynamicWeighting(valid, dyn)
	default:
		metrics = a.weightedAverage(valid)
	}

	uq := a.quantifyUncertainty(valid)
	metrics.UncertaintyLevel = uq.Total
	metrics.Uncertainty = uq

	metrics.Distribution = confidenceScores(valid)
	metrics.Outliers = a.identifyOutliers(valid)

	return metrics
}

// preprocess validates inputs and folds tool reliability and source-type
// weight into each input's effective Weight. Confidence scores outside
// [0,1] are dropped; an out-of-range Uncertainty defaults to 0.
func (a *Aggregator) preprocess(inputs []types.ConfidenceInput) []types.ConfidenceInput {
	valid := make([]types.ConfidenceInput, 0, len(inputs))
	for _, in := range inputs {
		if in.Confidence < 0.0 || in.Confidence > 1.0 {
			continue
		}
		if in.Uncertainty < 0.0 || in.Uncertainty > 1.0 {
			in.Uncertainty = 0.0
		}
		weight := in.Weight
		if weight == 0 {
			weight = 1.0
		}
		toolWeight := 1.0
		if a.registry != nil {
			toolWeight = a.registry.Reliability(types.ToolID(in.SourceID))
		}
		sourceWeight := sourceTypeWeights[in.SourceType]
		if sourceWeight == 0 {
			sourceWeight = 1.0
		}
		in.Weight = weight * toolWeight * sourceWeight
		valid = append(valid, in)
	}
	return valid
}

func (a *Aggregator) weightedAverage(inputs []types.ConfidenceInput) types.ConfidenceMetrics {
	var totalWeighted, totalWeight float64
	perTool := make(map[string]float64, len(inputs))
	perSourceScores := make(map[types.ConfidenceSourceType][]float64)

	for _, in := range inputs {
		effective := in.Weight * (1.0 - in.Uncertainty*a.config.UncertaintyPenalty)
		totalWeighted += in.Confidence * effective
		totalWeight += effective

		perTool[in.SourceID] = in.Confidence
		perSourceScores[in.SourceType] = append(perSourceScores[in.SourceType], in.Confidence)
	}

	overall := 0.0
	if totalWeight > 0 {
		overall = totalWeighted / totalWeight
	}

	perSource := make(map[string]float64, len(perSourceScores))
	for t, scores := range perSourceScores {
		perSource[string(t)] = mean(scores)
	}

	return types.ConfidenceMetrics{
		Overall:           overall,
		Variance:          populationVariance(confidenceScores(inputs), overall),
		ConsensusStrength: a.consensusStrength(inputs),
		Reliability:       a.reliabilityScore(inputs),
		PerTool:           perTool,
		PerSource:         perSource,
	}
}

func (a *Aggregator) bayesianFusion(inputs []types.ConfidenceInput) types.ConfidenceMetrics {
	var logOddsSum, totalWeight float64
	for _, in := range inputs {
		p := math.Max(0.001, math.Min(0.999, in.Confidence))
		logOdds := math.Log(p / (1 - p))
		weight := in.Weight * (1.0 - in.Uncertainty)
		logOddsSum += logOdds * weight
		totalWeight += weight
	}

	fused := 0.5
	if totalWeight > 0 {
		avgLogOdds := logOddsSum / totalWeight
		fused = 1.0 / (1.0 + math.Exp(-avgLogOdds))
	}

	return types.ConfidenceMetrics{
		Overall:           fused,
		Variance:          sampleVariance(confidenceScores(inputs)),
		UncertaintyLevel:  a.disagreement(inputs) * 0.5,
		Reliability:       a.reliabilityScore(inputs),
		ConsensusStrength: a.consensusStrength(inputs),
		PerTool:           perToolMap(inputs),
	}
}

func (a *Aggregator) minimumConsensus(inputs []types.ConfidenceInput) types.ConfidenceMetrics {
	groups := a.consensusGroups(inputs)

	var overall, consensusStrength float64
	if len(groups) == 0 {
		overall = minConfidence(inputs) * 0.8
	} else {
		largest := groups[0]
		for _, g := range groups[1:] {
			if len(g) > len(largest) {
				largest = g
			}
		}
		var scores []float64
		for _, in := range largest {
			scores = append(scores, in.Confidence)
		}
		overall = mean(scores)
		consensusStrength = float64(len(largest)) / float64(len(inputs))
	}

	return types.ConfidenceMetrics{
		Overall:           overall,
		Variance:          sampleVariance(confidenceScores(inputs)),
		UncertaintyLevel:  1.0 - consensusStrength,
		Reliability:       a.reliabilityScore(inputs),
		ConsensusStrength: consensusStrength,
		PerTool:           perToolMap(inputs),
	}
}

func (a *Aggregator) uncertaintyWeighted(inputs []types.ConfidenceInput) types.ConfidenceMetrics {
	var totalWeighted, totalWeight float64
	for _, in := range inputs {
		certainty := 1.0 - in.Uncertainty
		weight := in.Weight * certainty * certainty
		totalWeighted += in.Confidence * weight
		totalWeight += weight
	}
	overall := 0.0
	if totalWeight > 0 {
		overall = totalWeighted / totalWeight
	}

	var weightedUncertainty, weightSum float64
	for _, in := range inputs {
		weightedUncertainty += in.Uncertainty * in.Weight
		weightSum += in.Weight
	}
	overallUncertainty := 0.5
	if weightSum > 0 {
		overallUncertainty = weightedUncertainty / weightSum
	}

	perSource := make(map[string]float64, len(inputs))
	for _, in := range inputs {
		perSource[in.SourceID] = in.Uncertainty
	}

	return types.ConfidenceMetrics{
		Overall:           overall,
		Variance:          sampleVariance(confidenceScores(inputs)),
		UncertaintyLevel:  overallUncertainty,
		Reliability:       a.reliabilityScore(inputs),
		ConsensusStrength: a.consensusStrength(inputs),
		PerTool:           perToolMap(inputs),
		PerSource:         perSource,
	}
}

func (a *Aggregator) dynamicWeighting(inputs []types.ConfidenceInput, dyn *DynamicContext) types.ConfidenceMetrics {
	adjusted := make([]types.ConfidenceInput, len(inputs))
	for i, in := range inputs {
		in.Weight = a.dynamicWeight(in, dyn)
		adjusted[i] = in
	}
	return a.weightedAverage(adjusted)
}

// dynamicWeight adjusts an already tool/source-weighted input by execution
// speed, data volume, and (for complex questions) tool reliability.
func (a *Aggregator) dynamicWeight(in types.ConfidenceInput, dyn *DynamicContext) float64 {
	weight := in.Weight
	if dyn == nil {
		return weight
	}

	if in.ExecutionTime > 0 && dyn.AverageExecutionTime > 0 {
		timeFactor := math.Min(2.0, float64(dyn.AverageExecutionTime)/float64(in.ExecutionTime))
		weight *= 1.0 + 0.1*(timeFactor-1.0)
	}
	if in.DataVolume > 0 {
		avgVolume := dyn.AverageDataVolume
		if avgVolume <= 0 {
			avgVolume = in.DataVolume
		}
		volumeFactor := math.Min(2.0, float64(in.DataVolume)/float64(maxInt(1, avgVolume)))
		weight *= 1.0 + 0.2*(volumeFactor-1.0)
	}
	if dyn.Complexity == types.ComplexityComplex && a.registry != nil {
		weight *= a.registry.Reliability(types.ToolID(in.SourceID))
	}
	return weight
}

func (a *Aggregator) reliabilityScore(inputs []types.ConfidenceInput) float64 {
	if len(inputs) == 0 {
		return 0.0
	}
	var scores []float64
	for _, in := range inputs {
		toolReliability := 1.0
		if a.registry != nil {
			toolReliability = a.registry.Reliability(types.ToolID(in.SourceID))
		}
		executionReliability := 0.0
		if in.Confidence > 0 {
			executionReliability = 1.0
		}
		uncertaintyPenalty := 1.0 - in.Uncertainty
		scores = append(scores, toolReliability*executionReliability*uncertaintyPenalty)
	}
	return mean(scores)
}

func (a *Aggregator) consensusStrength(inputs []types.ConfidenceInput) float64 {
	if len(inputs) < 2 {
		return 1.0
	}
	var agreements []float64
	for i := 0; i < len(inputs); i++ {
		for j := i + 1; j < len(inputs); j++ {
			agreements = append(agreements, 1.0-math.Abs(inputs[i].Confidence-inputs[j].Confidence))
		}
	}
	return mean(agreements)
}

func (a *Aggregator) disagreement(inputs []types.ConfidenceInput) float64 {
	var maxDisagreement float64
	for i := 0; i < len(inputs); i++ {
		for j := i + 1; j < len(inputs); j++ {
			if d := math.Abs(inputs[i].Confidence - inputs[j].Confidence); d > maxDisagreement {
				maxDisagreement = d
			}
		}
	}
	return maxDisagreement
}

// consensusGroups clusters inputs by pairwise agreement against the
// consensus threshold, keeping only groups of 2 or more.
func (a *Aggregator) consensusGroups(inputs []types.ConfidenceInput) [][]types.ConfidenceInput {
	var groups [][]types.ConfidenceInput
	for _, in := range inputs {
		placed := false
		for gi, g := range groups {
			if math.Abs(in.Confidence-g[0].Confidence) <= (1.0 - a.config.ConsensusThreshold) {
				groups[gi] = append(g, in)
				placed = true
				break
			}
		}
		if !placed {
			groups = append(groups, []types.ConfidenceInput{in})
		}
	}
	var withConsensus [][]types.ConfidenceInput
	for _, g := range groups {
		if len(g) >= 2 {
			withConsensus = append(withConsensus, g)
		}
	}
	return withConsensus
}

// UncertaintyQuantification is an alias to the shared breakdown type; kept
// as a named return type for readability within this package.
type UncertaintyQuantification = types.UncertaintyBreakdown

func (a *Aggregator) quantifyUncertainty(inputs []types.ConfidenceInput) UncertaintyQuantification {
	scores := confidenceScores(inputs)
	aleatoric := sampleStdev(scores)

	var uncertainties []float64
	for _, in := range inputs {
		uncertainties = append(uncertainties, in.Uncertainty)
	}
	epistemic := mean(uncertainties)

	var execTimes []float64
	for _, in := range inputs {
		if in.ExecutionTime > 0 {
			execTimes = append(execTimes, float64(in.ExecutionTime))
		}
	}
	measurement := 0.0
	if len(execTimes) > 1 {
		avg := mean(execTimes)
		if avg > 0 {
			measurement = math.Min(1.0, sampleStdev(execTimes)/avg)
		}
	}

	var reliabilities []float64
	for _, in := range inputs {
		r := 1.0
		if a.registry != nil {
			r = a.registry.Reliability(types.ToolID(in.SourceID))
		}
		reliabilities = append(reliabilities, r)
	}
	systematic := 0.0
	if len(reliabilities) > 0 {
		systematic = 1.0 - mean(reliabilities)
	}

	total := math.Min(1.0, math.Sqrt(aleatoric*aleatoric+epistemic*epistemic+measurement*measurement+systematic*systematic))
	reducible := math.Min(total, epistemic+measurement)
	irreducible := total - reducible

	return UncertaintyQuantification{
		Aleatoric:   aleatoric,
		Epistemic:   epistemic,
		Measurement: measurement,
		Systematic:  systematic,
		Temporal:    0.0,
		Total:       total,
		Reducible:   reducible,
		Irreducible: irreducible,
	}
}

// identifyOutliers flags sources whose confidence Z-score against the
// group's mean/stdev exceeds the configured threshold. Needs at least 3
// inputs to be meaningful.
func (a *Aggregator) identifyOutliers(inputs []types.ConfidenceInput) []string {
	if len(inputs) < 3 {
		return nil
	}
	scores := confidenceScores(inputs)
	meanConf := mean(scores)
	stdConf := sampleStdev(scores)

	var outliers []string
	for _, in := range inputs {
		z := 0.0
		if stdConf > 0 {
			z = math.Abs(in.Confidence-meanConf) / stdConf
		}
		if z > a.config.OutlierZ {
			outliers = append(outliers, in.SourceID)
		}
	}
	sort.Strings(outliers)
	return outliers
}

func (a *Aggregator) defaultMetrics() types.ConfidenceMetrics {
	return types.ConfidenceMetrics{
		Overall:           0.5,
		Variance:          0.0,
		UncertaintyLevel:  0.8,
		Reliability:       0.3,
		ConsensusStrength: 0.0,
	}
}

func confidenceScores(inputs []types.ConfidenceInput) []float64 {
	scores := make([]float64, len(inputs))
	for i, in := range inputs {
		scores[i] = in.Confidence
	}
	return scores
}

func perToolMap(inputs []types.ConfidenceInput) map[string]float64 {
	m := make(map[string]float64, len(inputs))
	for _, in := range inputs {
		m[in.SourceID] = in.Confidence
	}
	return m
}

func minConfidence(inputs []types.ConfidenceInput) float64 {
	min := math.Inf(1)
	for _, in := range inputs {
		if in.Confidence < min {
			min = in.Confidence
		}
	}
	return min
}

func mean(xs []float64) float64 {
	if len(xs) == 0 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		sum += x
	}
	return sum / float64(len(xs))
}

func populationVariance(xs []float64, about float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	var sum float64
	for _, x := range xs {
		d := x - about
		sum += d * d
	}
	return sum / float64(len(xs))
}

func sampleVariance(xs []float64) float64 {
	if len(xs) < 2 {
		return 0
	}
	m := mean(xs)
	var sum float64
	for _, x := range xs {
		d := x - m
		sum += d * d
	}
	return sum / float64(len(xs)-1)
}

func sampleStdev(xs []float64) float64 {
	return math.Sqrt(sampleVariance(xs))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
