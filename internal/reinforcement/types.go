// Package reinforcement implements Thompson Sampling bandits used by the
// Execution Optimizer to pick between candidate optimization strategies
// based on their observed improvement over time.
package reinforcement

import "dtcore/internal/types"

// Strategy is one arm of the bandit: a candidate optimization strategy with
// its Thompson Sampling state.
type Strategy struct {
	ID          string         `json:"id"`
	Name        string         `json:"name"`
	Description string         `json:"description"`
	Parameters  types.Metadata `json:"parameters"`
	IsActive    bool           `json:"is_active"`

	// Thompson Sampling state
	Alpha          float64 `json:"alpha"` // Successes + 1
	Beta           float64 `json:"beta"`  // Failures + 1
	TotalTrials    int     `json:"total_trials"`
	TotalSuccesses int     `json:"total_successes"`
}

// SuccessRate computes empirical success rate
func (s *Strategy) SuccessRate() float64 {
	if s.TotalTrials == 0 {
		return 0.0
	}
	return float64(s.TotalSuccesses) / float64(s.TotalTrials)
}

// Outcome represents the result of applying a strategy to one plan
type Outcome struct {
	StrategyID        string  `json:"strategy_id"`
	PlanID            string  `json:"plan_id"`
	Success           bool    `json:"success"`
	ImprovementBefore float64 `json:"improvement_before"`
	ImprovementAfter  float64 `json:"improvement_after"`
	ExecutionTimeNs   int64   `json:"execution_time_ns"`
}

// SelectionContext provides context for strategy selection
type SelectionContext struct {
	Description string         `json:"description"`
	Metadata    types.Metadata `json:"metadata"`
}
