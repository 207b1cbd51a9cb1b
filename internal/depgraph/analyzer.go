// Package depgraph implements the contract-driven Dependency Analyzer (C7).
//
// All parallel-safety and dependency decisions are derived from
// ToolContract.ResourceTags (reads/writes/exclusive on named resources) and
// from the declared step dependency edges. No component in this package
// compares ToolIDs to a hardcoded pair table.
package depgraph

import (
	"sort"

	"dtcore/internal/coreerrors"
	"dtcore/internal/types"
)

// Analyzer computes level assignments, pairwise independence, and greedy
// parallel groups for a set of tool steps.
type Analyzer struct {
	registry ContractLookup
}

// ContractLookup is the subset of the tool registry the analyzer needs.
type ContractLookup interface {
	Get(id types.ToolID) (types.ToolContract, bool)
}

// NewAnalyzer builds an Analyzer backed by the given contract lookup.
func NewAnalyzer(registry ContractLookup) *Analyzer {
	return &Analyzer{registry: registry}
}

// Analyze computes a DependencyAnalysis for a set of steps.
func (a *Analyzer) Analyze(steps []types.ToolStep) (types.DependencyAnalysis, error) {
	byID := make(map[types.ToolID]types.ToolStep, len(steps))
	for _, s := range steps {
		byID[s.ToolID] = s
	}

	levels, order, err := a.levelAssignment(steps, byID)
	if err != nil {
		return types.DependencyAnalysis{}, err
	}

	transitive := transitiveDeps(byID)

	independentPairs := a.independentPairs(order, levels, transitive, byID)
	groups := a.parallelGroups(order, levels, independentPairs)

	canParallelize := false
	for _, g := range groups {
		if len(g) >= 2 {
			canParallelize = true
			break
		}
	}

	return types.DependencyAnalysis{
		Levels:           levels,
		IndependentPairs: independentPairs,
		ParallelGroups:   groups,
		CanParallelize:   canParallelize,
	}, nil
}

// levelAssignment performs iterative Kahn-style leveling: nodes whose
// remaining dependency set is empty get the next level, repeated until all
// nodes are placed or no progress is made (cycle).
func (a *Analyzer) levelAssignment(steps []types.ToolStep, byID map[types.ToolID]types.ToolStep) (map[types.ToolID]int, []types.ToolID, error) {
	remaining := make(map[types.ToolID][]types.ToolID, len(steps))
	for _, s := range steps {
		deps := make([]types.ToolID, 0, len(s.DependsOn))
		for _, d := range s.DependsOn {
			if _, ok := byID[d]; ok {
				deps = append(deps, d)
			}
		}
		remaining[s.ToolID] = deps
	}

	levels := make(map[types.ToolID]int, len(steps))
	placed := make(map[types.ToolID]bool, len(steps))
	order := make([]types.ToolID, 0, len(steps))
	level := 0

	for len(placed) < len(steps) {
		var frontier []types.ToolID
		for id, deps := range remaining {
			if placed[id] {
				continue
			}
			allSatisfied := true
			for _, d := range deps {
				if !placed[d] {
					allSatisfied = false
					break
				}
			}
			if allSatisfied {
				frontier = append(frontier, id)
			}
		}

		if len(frontier) == 0 {
			return nil, nil, coreerrors.New(coreerrors.KindCyclicDependency, "", nil)
		}

		sort.Slice(frontier, func(i, j int) bool { return frontier[i] < frontier[j] })

		for _, id := range frontier {
			levels[id] = level
			placed[id] = true
			order = append(order, id)
		}
		level++
	}

	return levels, order, nil
}

// transitiveDeps computes the full transitive dependency set for each step.
func transitiveDeps(byID map[types.ToolID]types.ToolStep) map[types.ToolID]map[types.ToolID]bool {
	memo := make(map[types.ToolID]map[types.ToolID]bool, len(byID))

	var resolve func(id types.ToolID, visiting map[types.ToolID]bool) map[types.ToolID]bool
	resolve = func(id types.ToolID, visiting map[types.ToolID]bool) map[types.ToolID]bool {
		if cached, ok := memo[id]; ok {
			return cached
		}
		set := make(map[types.ToolID]bool)
		step, ok := byID[id]
		if !ok {
			memo[id] = set
			return set
		}
		if visiting[id] {
			memo[id] = set
			return set
		}
		visiting[id] = true
		for _, d := range step.DependsOn {
			set[d] = true
			for anc := range resolve(d, visiting) {
				set[anc] = true
			}
		}
		visiting[id] = false
		memo[id] = set
		return set
	}

	for id := range byID {
		resolve(id, make(map[types.ToolID]bool))
	}
	return memo
}

// independentPairs returns every pair (A, B) satisfying the three
// independence conditions from the dependency-analysis contract:
// (i) neither is a transitive dependency of the other,
// (ii) same level, and
// (iii) no contract-declared resource conflict.
func (a *Analyzer) independentPairs(order []types.ToolID, levels map[types.ToolID]int, transitive map[types.ToolID]map[types.ToolID]bool, byID map[types.ToolID]types.ToolStep) [][2]types.ToolID {
	var pairs [][2]types.ToolID

	for i := 0; i < len(order); i++ {
		for j := i + 1; j < len(order); j++ {
			x, y := order[i], order[j]
			if levels[x] != levels[y] {
				continue
			}
			if transitive[x][y] || transitive[y][x] {
				continue
			}
			if a.resourceConflict(x, y) {
				continue
			}
			pairs = append(pairs, [2]types.ToolID{x, y})
		}
	}
	return pairs
}

// resourceConflict reports whether two tools declare a conflicting use of a
// shared resource per their contracts: either one declares the resource
// exclusive and the other reads or writes it, or one writes a resource the
// other reads or writes.
func (a *Analyzer) resourceConflict(x, y types.ToolID) bool {
	cx, okX := a.registry.Get(x)
	cy, okY := a.registry.Get(y)
	if !okX || !okY {
		// Unknown contract: conservatively assume conflict, never assume safety.
		return true
	}

	for _, tx := range cx.ResourceTags {
		for _, ty := range cy.ResourceTags {
			if tx.Resource != ty.Resource {
				continue
			}
			if tx.Exclusive && (ty.Reads || ty.Writes) {
				return true
			}
			if ty.Exclusive && (tx.Reads || tx.Writes) {
				return true
			}
			if tx.Writes && (ty.Writes || ty.Reads) {
				return true
			}
			if ty.Writes && (tx.Writes || tx.Reads) {
				return true
			}
		}
	}
	return false
}

// parallelGroups computes, per level, a greedy maximal-clique cover of the
// independence graph: repeatedly seed from the highest-degree unplaced node
// and grow the clique with compatible candidates, in deterministic ToolID
// order for ties.
func (a *Analyzer) parallelGroups(order []types.ToolID, levels map[types.ToolID]int, independentPairs [][2]types.ToolID) [][]types.ToolID {
	adjacency := make(map[types.ToolID]map[types.ToolID]bool)
	for _, id := range order {
		adjacency[id] = make(map[types.ToolID]bool)
	}
	for _, p := range independentPairs {
		adjacency[p[0]][p[1]] = true
		adjacency[p[1]][p[0]] = true
	}

	byLevel := make(map[int][]types.ToolID)
	for _, id := range order {
		byLevel[levels[id]] = append(byLevel[levels[id]], id)
	}

	var levelKeys []int
	for lvl := range byLevel {
		levelKeys = append(levelKeys, lvl)
	}
	sort.Ints(levelKeys)

	var groups [][]types.ToolID
	for _, lvl := range levelKeys {
		nodes := byLevel[lvl]
		placed := make(map[types.ToolID]bool, len(nodes))

		sorted := append([]types.ToolID(nil), nodes...)
		sort.Slice(sorted, func(i, j int) bool {
			di, dj := len(adjacency[sorted[i]]), len(adjacency[sorted[j]])
			if di != dj {
				return di > dj
			}
			return sorted[i] < sorted[j]
		})

		for _, seed := range sorted {
			if placed[seed] {
				continue
			}
			clique := []types.ToolID{seed}
			placed[seed] = true

			for _, cand := range sorted {
				if placed[cand] {
					continue
				}
				compatible := true
				for _, member := range clique {
					if !adjacency[member][cand] {
						compatible = false
						break
					}
				}
				if compatible {
					clique = append(clique, cand)
					placed[cand] = true
				}
			}
			groups = append(groups, clique)
		}
	}
	return groups
}
