// Package optimize implements the Execution Optimizer (C9): applies one of
// five scheduling strategies to an ExecutionPlan, re-deriving per-step
// concurrency and timing under the chosen policy. The "adaptive" strategy
// delegates the choice among the other four to a Thompson Sampling bandit
// (internal/reinforcement), so the system learns which policy performs best
// for this workload over repeated runs. The re-derived schedule for a given
// (strategy, chain shape) pair is deterministic, so it is cached (pkg/cache)
// to skip recomputation for repeated questions over the same tool chain.
package optimize

import (
	"sort"
	"strconv"
	"strings"
	"time"

	"dtcore/internal/config"
	"dtcore/internal/reinforcement"
	"dtcore/internal/types"
	"dtcore/pkg/cache"
)

const adaptiveStrategyGroup = "execution-optimizer"

var concreteStrategies = []types.Strategy{
	types.StrategyThroughputMax,
	types.StrategyLatencyMin,
	types.StrategyResourceEfficient,
	types.StrategyBalanced,
}

// Optimizer applies an optimization strategy to an ExecutionPlan.
type Optimizer struct {
	selector *reinforcement.ThompsonSelector
	planCache *cache.LRU[string, types.ExecutionPlan]
}

// NewOptimizer builds an Optimizer backed by the given Thompson Sampling
// selector, registering the four concrete strategies as bandit arms if they
// are not already present.
func NewOptimizer(selector *reinforcement.ThompsonSelector) *Optimizer {
	for _, s := range concreteStrategies {
		if _, err := selector.GetStrategy(string(s)); err != nil {
			selector.AddStrategy(&reinforcement.Strategy{
				ID:       string(s),
				Name:     string(s),
				IsActive: true,
			})
		}
	}
	return &Optimizer{
		selector:  selector,
		planCache: cache.New[string, types.ExecutionPlan](&cache.Config{MaxEntries: 500}),
	}
}

// Optimize re-derives the plan's schedule under the requested strategy. If
// strategy is StrategyAdaptive, the bandit picks a concrete strategy and the
// choice is recorded on the returned plan's Strategy field so the caller can
// feed RecordOutcome back once the run completes.
func (o *Optimizer) Optimize(planIn types.ExecutionPlan, strategy types.Strategy, cfg config.OptimizerConfig) types.ExecutionPlan {
	resolved := strategy
	if strategy == types.StrategyAdaptive {
		resolved = o.selectAdaptive(planIn)
	}

	var out types.ExecutionPlan
	cacheKey := ""
	if cfg.EnableCaching {
		cacheKey = planCacheKey(resolved, planIn, cfg)
		if cached, ok := o.planCache.Get(cacheKey); ok {
			out = cached
			out.PlanID = planIn.PlanID
		}
	}

	if out.PlanID == "" {
		switch resolved {
		case types.StrategyThroughputMax:
			out = o.throughputMax(planIn)
		case types.StrategyLatencyMin:
			out = o.latencyMin(planIn)
		case types.StrategyResourceEfficient:
			out = o.resourceEfficient(planIn, cfg)
		default:
			out = o.balanced(planIn, cfg)
		}

		if cfg.EnableCaching {
			ttl := time.Duration(cfg.CacheTTLSeconds) * time.Second
			if ttl <= 0 {
				ttl = time.Hour
			}
			o.planCache.SetWithExpiry(cacheKey, out, time.Now().Add(ttl))
		}
	}

	out.Strategy = resolved
	return out
}

// planCacheKey identifies a (strategy, chain shape, tuning config) triple
// whose re-derived schedule would be identical across calls; PlanID and
// per-run timestamps are deliberately excluded since they vary every call.
func planCacheKey(resolved types.Strategy, planIn types.ExecutionPlan, cfg config.OptimizerConfig) string {
	var b strings.Builder
	b.WriteString(string(resolved))
	b.WriteByte('|')
	for _, s := range planIn.Steps {
		b.WriteString(string(s.ToolID))
		b.WriteByte(':')
		b.WriteString(strconv.Itoa(s.Level))
		b.WriteByte(',')
	}
	b.WriteByte('|')
	b.WriteString(strconv.Itoa(int(cfg.TargetCPUUtilization * 1000)))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(int(cfg.TargetMemoryUtilization * 1000)))
	b.WriteByte(',')
	b.WriteString(strconv.Itoa(int(cfg.MinParallelBenefit * 1000)))
	return b.String()
}

// RecordOutcome feeds a run's observed success back into the adaptive
// bandit. appliedStrategy is the concrete strategy the optimizer actually
// used (not StrategyAdaptive).
func (o *Optimizer) RecordOutcome(appliedStrategy types.Strategy, success bool) {
	_ = o.selector.RecordOutcome(string(appliedStrategy), success)
}

func (o *Optimizer) selectAdaptive(planIn types.ExecutionPlan) types.Strategy {
	strat, err := o.selector.SelectStrategy(reinforcement.SelectionContext{
		Description: adaptiveStrategyGroup,
		Metadata:    types.Metadata{"plan_id": planIn.PlanID, "step_count": len(planIn.Steps)},
	})
	if err != nil {
		return types.StrategyBalanced
	}
	return types.Strategy(strat.ID)
}

// throughputMax maximizes the number of steps dispatched concurrently,
// ignoring per-step resource cost; it keeps the planner's level-based start
// times (levels are already the maximal-parallelism grouping) and boosts
// priority for earlier levels so they are never starved of workers.
func (o *Optimizer) throughputMax(planIn types.ExecutionPlan) types.ExecutionPlan {
	steps := clonePlannedSteps(planIn.Steps)
	for i := range steps {
		steps[i].Priority = priorityForLevel(steps[i].Level, len(steps))
		steps[i].AdaptiveParameters["concurrency_hint"] = "max"
	}
	return finalizePlan(planIn, steps, planIn.TotalEstimatedTime)
}

// latencyMin prioritizes the critical path: steps with downstream
// dependents get boosted priority so a scheduler with limited capacity
// drains them first, minimizing the plan's total wall-clock time.
func (o *Optimizer) latencyMin(planIn types.ExecutionPlan) types.ExecutionPlan {
	steps := clonePlannedSteps(planIn.Steps)
	downstreamCount := make(map[types.ToolID]int)
	for _, s := range steps {
		for _, d := range s.DependsOn {
			downstreamCount[d]++
		}
	}
	for i := range steps {
		count := downstreamCount[steps[i].ToolID]
		priority := 5 + count
		if priority > 10 {
			priority = 10
		}
		steps[i].Priority = priority
		steps[i].AdaptiveParameters["concurrency_hint"] = "critical_path"
	}
	return finalizePlan(planIn, steps, planIn.TotalEstimatedTime)
}

// resourceEfficient caps the number of steps dispatched concurrently per
// level at concurrencyCap(cfg) (TargetCPUUtilization × 4, or 2 when no
// target is set, never below 1), recomputing start times as a sequence of
// capacity-bounded waves.
func (o *Optimizer) resourceEfficient(planIn types.ExecutionPlan, cfg config.OptimizerConfig) types.ExecutionPlan {
	steps := clonePlannedSteps(planIn.Steps)
	byLevel := groupByLevel(steps)
	maxConcurrent := concurrencyCap(cfg)

	var cursor time.Duration
	for _, lvl := range sortedLevels(byLevel) {
		levelSteps := byLevel[lvl]
		sort.Slice(levelSteps, func(i, j int) bool { return levelSteps[i].ToolID < levelSteps[j].ToolID })

		waveStart := cursor
		for start := 0; start < len(levelSteps); start += maxConcurrent {
			end := start + maxConcurrent
			if end > len(levelSteps) {
				end = len(levelSteps)
			}
			var waveDur time.Duration
			for i := start; i < end; i++ {
				levelSteps[i].EstimatedStartTime = waveStart
				levelSteps[i].AdaptiveParameters["concurrency_hint"] = "bounded"
				if levelSteps[i].EstimatedDuration > waveDur {
					waveDur = levelSteps[i].EstimatedDuration
				}
			}
			waveStart += waveDur
		}
		byLevel[lvl] = levelSteps
		cursor = waveStart
	}

	merged := flattenLevels(byLevel)
	return finalizePlan(planIn, merged, cursor)
}

func concurrencyCap(cfg config.OptimizerConfig) int {
	maxConcurrent := 2
	if cfg.TargetCPUUtilization > 0 {
		maxConcurrent = int(cfg.TargetCPUUtilization * 4)
	}
	if maxConcurrent < 1 {
		maxConcurrent = 1
	}
	return maxConcurrent
}

// balanced blends latency and resource awareness: it runs the
// resource-efficient pass with TargetCPUUtilization raised halfway toward
// 1.0, a wider concurrency cap that trades some resource headroom for lower
// latency than the strict resource-efficient strategy.
func (o *Optimizer) balanced(planIn types.ExecutionPlan, cfg config.OptimizerConfig) types.ExecutionPlan {
	widened := cfg
	widened.TargetCPUUtilization = cfg.TargetCPUUtilization + (1-cfg.TargetCPUUtilization)*0.5
	out := o.resourceEfficient(planIn, widened)
	for i := range out.Steps {
		out.Steps[i].AdaptiveParameters["concurrency_hint"] = "balanced"
	}
	return out
}

func priorityForLevel(level, totalSteps int) int {
	p := 10 - level
	if p < 1 {
		p = 1
	}
	return p
}

func clonePlannedSteps(in []types.PlannedStep) []types.PlannedStep {
	out := make([]types.PlannedStep, len(in))
	for i, s := range in {
		cp := s
		cp.AdaptiveParameters = make(map[string]interface{}, len(s.AdaptiveParameters)+1)
		for k, v := range s.AdaptiveParameters {
			cp.AdaptiveParameters[k] = v
		}
		out[i] = cp
	}
	return out
}

func groupByLevel(steps []types.PlannedStep) map[int][]types.PlannedStep {
	out := make(map[int][]types.PlannedStep)
	for _, s := range steps {
		out[s.Level] = append(out[s.Level], s)
	}
	return out
}

func sortedLevels(byLevel map[int][]types.PlannedStep) []int {
	levels := make([]int, 0, len(byLevel))
	for lvl := range byLevel {
		levels = append(levels, lvl)
	}
	sort.Ints(levels)
	return levels
}

func flattenLevels(byLevel map[int][]types.PlannedStep) []types.PlannedStep {
	var out []types.PlannedStep
	for _, lvl := range sortedLevels(byLevel) {
		out = append(out, byLevel[lvl]...)
	}
	return out
}

func finalizePlan(planIn types.ExecutionPlan, steps []types.PlannedStep, totalTime time.Duration) types.ExecutionPlan {
	var busy time.Duration
	parallelSteps := 0
	byLevel := groupByLevel(steps)
	for _, levelSteps := range byLevel {
		if len(levelSteps) > 1 {
			parallelSteps += len(levelSteps)
		}
	}
	for _, s := range steps {
		busy += s.EstimatedDuration
	}

	var parallelizationRatio float64
	if len(steps) > 0 {
		parallelizationRatio = float64(parallelSteps) / float64(len(steps))
	}
	var resourceEfficiency float64
	if totalTime > 0 {
		resourceEfficiency = float64(busy) / float64(totalTime)
		if resourceEfficiency > 1.0 {
			resourceEfficiency = 1.0
		}
	}

	return types.ExecutionPlan{
		PlanID:               planIn.PlanID,
		Steps:                steps,
		Strategy:             planIn.Strategy,
		TotalEstimatedTime:   totalTime,
		ParallelizationRatio: parallelizationRatio,
		ResourceEfficiency:   resourceEfficiency,
		Confidence:           planIn.Confidence,
	}
}
