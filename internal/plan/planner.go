// Package plan implements the DAG Builder & Execution Planner (C8): builds a
// directed acyclic graph from a ToolChain's steps using
// github.com/dominikbraun/graph, validates it against the Dependency
// Analyzer's level assignment, and emits a concrete ExecutionPlan with
// per-step start-time, duration, resource, and priority estimates.
package plan

import (
	"fmt"
	"sort"
	"time"

	"github.com/dominikbraun/graph"

	"dtcore/internal/coreerrors"
	"dtcore/internal/types"
)

// ContractLookup is the subset of the tool registry the planner needs.
type ContractLookup interface {
	Get(id types.ToolID) (types.ToolContract, bool)
}

// Planner turns a ToolChain and its DependencyAnalysis into an ExecutionPlan.
type Planner struct {
	registry ContractLookup
}

// NewPlanner builds a Planner backed by the given contract lookup.
func NewPlanner(registry ContractLookup) *Planner {
	return &Planner{registry: registry}
}

func toolIDHash(id types.ToolID) types.ToolID { return id }

// Plan builds and validates the tool-step DAG, then derives a scheduled
// ExecutionPlan. Returns a coreerrors.KindCyclicDependency error if the
// chain's declared dependencies form a cycle or an edge that the
// Dependency Analyzer's level assignment disagrees with.
func (p *Planner) Plan(planID string, chain types.ToolChain, dep types.DependencyAnalysis) (types.ExecutionPlan, error) {
	g := graph.New(toolIDHash, graph.Directed(), graph.PreventCycles())

	byID := make(map[types.ToolID]types.ToolStep, len(chain.Steps))
	for _, s := range chain.Steps {
		byID[s.ToolID] = s
		if err := g.AddVertex(s.ToolID); err != nil {
			return types.ExecutionPlan{}, fmt.Errorf("plan: add vertex %s: %w", s.ToolID, err)
		}
	}
	for _, s := range chain.Steps {
		for _, d := range s.DependsOn {
			if _, ok := byID[d]; !ok {
				continue
			}
			if dep.Levels[d] >= dep.Levels[s.ToolID] {
				return types.ExecutionPlan{}, coreerrors.New(coreerrors.KindCyclicDependency, string(s.ToolID),
					fmt.Errorf("dependency %s at level %d is not below level %d", d, dep.Levels[d], dep.Levels[s.ToolID]))
			}
			if err := g.AddEdge(d, s.ToolID); err != nil {
				return types.ExecutionPlan{}, coreerrors.New(coreerrors.KindCyclicDependency, string(s.ToolID), err)
			}
		}
	}

	if _, err := graph.TopologicalSort(g); err != nil {
		return types.ExecutionPlan{}, coreerrors.New(coreerrors.KindCyclicDependency, "", err)
	}

	order := orderByLevel(chain.Steps, dep.Levels)

	maxLevel := 0
	for _, lvl := range dep.Levels {
		if lvl > maxLevel {
			maxLevel = lvl
		}
	}

	levelDuration := make(map[int]time.Duration, maxLevel+1)
	levelStart := make(map[int]time.Duration, maxLevel+1)
	for lvl := 0; lvl <= maxLevel; lvl++ {
		var maxDur time.Duration
		for _, id := range order {
			if dep.Levels[id] != lvl {
				continue
			}
			d := p.estimateDuration(id)
			if d > maxDur {
				maxDur = d
			}
		}
		levelDuration[lvl] = maxDur
		if lvl == 0 {
			levelStart[lvl] = 0
		} else {
			levelStart[lvl] = levelStart[lvl-1] + levelDuration[lvl-1]
		}
	}

	steps := make([]types.PlannedStep, 0, len(order))
	for i, id := range order {
		lvl := dep.Levels[id]
		steps = append(steps, types.PlannedStep{
			StepID:             fmt.Sprintf("%s-%d", id, i),
			ToolID:             id,
			Level:              lvl,
			DependsOn:          byID[id].DependsOn,
			EstimatedStartTime: levelStart[lvl],
			EstimatedDuration:  p.estimateDuration(id),
			ResourceAllocation: p.estimateResources(id),
			Priority:           p.estimatePriority(id),
			AdaptiveParameters: map[string]interface{}{},
		})
	}

	totalTime := levelStart[maxLevel] + levelDuration[maxLevel]

	parallelSteps := 0
	for _, grp := range dep.ParallelGroups {
		if len(grp) >= 2 {
			parallelSteps += len(grp)
		}
	}
	var parallelizationRatio float64
	if len(steps) > 0 {
		parallelizationRatio = float64(parallelSteps) / float64(len(steps))
	}

	resourceEfficiency := estimateResourceEfficiency(steps, totalTime)
	confidence := p.averageReliability(order)

	return types.ExecutionPlan{
		PlanID:               planID,
		Steps:                steps,
		TotalEstimatedTime:   totalTime,
		ParallelizationRatio: parallelizationRatio,
		ResourceEfficiency:   resourceEfficiency,
		Confidence:           confidence,
	}, nil
}

// orderByLevel returns step ToolIDs ordered by (level, ToolID) for
// deterministic scheduling within a level.
func orderByLevel(steps []types.ToolStep, levels map[types.ToolID]int) []types.ToolID {
	order := make([]types.ToolID, 0, len(steps))
	for _, s := range steps {
		order = append(order, s.ToolID)
	}
	sort.Slice(order, func(i, j int) bool {
		li, lj := levels[order[i]], levels[order[j]]
		if li != lj {
			return li < lj
		}
		return order[i] < order[j]
	})
	return order
}

func (p *Planner) estimateDuration(id types.ToolID) time.Duration {
	if c, ok := p.registry.Get(id); ok && c.BaseDurationEst > 0 {
		return c.BaseDurationEst
	}
	return time.Second
}

func (p *Planner) estimateResources(id types.ToolID) types.ResourceEstimate {
	c, ok := p.registry.Get(id)
	if !ok {
		return types.ResourceEstimate{MemoryMB: 100, CPUShare: 0.25}
	}
	memory := c.BaseMemoryEstimate
	if memory == 0 {
		memory = 100
	}
	return types.ResourceEstimate{
		MemoryMB: memory,
		CPUShare: 0.25,
		Tags:     c.ResourceTags,
	}
}

func (p *Planner) estimatePriority(id types.ToolID) int {
	c, ok := p.registry.Get(id)
	if !ok {
		return 5
	}
	for _, tag := range c.ResourceTags {
		if tag.Exclusive {
			return 8
		}
	}
	return 5
}

func (p *Planner) averageReliability(order []types.ToolID) float64 {
	if len(order) == 0 {
		return 0
	}
	total := 0.0
	for _, id := range order {
		if c, ok := p.registry.Get(id); ok {
			total += c.ReliabilityPrior
		} else {
			total += 0.5
		}
	}
	return total / float64(len(order))
}

// estimateResourceEfficiency approximates the fraction of total scheduled
// time actually spent executing work rather than idle between levels.
func estimateResourceEfficiency(steps []types.PlannedStep, totalTime time.Duration) float64 {
	if totalTime == 0 {
		return 0
	}
	var busy time.Duration
	for _, s := range steps {
		busy += s.EstimatedDuration
	}
	ratio := float64(busy) / float64(totalTime)
	if ratio > 1.0 {
		ratio = 1.0
	}
	return ratio
}
