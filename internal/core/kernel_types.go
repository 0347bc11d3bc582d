package core

import (
	"cogkernel/internal/patterns"
	"cogkernel/internal/planner"
	"cogkernel/internal/types"
)

// TickReport summarizes one completed tick.
type TickReport struct {
	Tick            uint64       `json:"tick"`
	Action          types.Action `json:"action"` // control action applied during the tick
	FactsAdded      int          `json:"facts_added"`
	PredictionsMade int          `json:"predictions_made"`
	Contradictions  int          `json:"contradictions"`
	TasksResolved   int          `json:"tasks_resolved"`
	PatternsFound   int          `json:"patterns_found"`
	MetaEvents      int          `json:"meta_events"`
	RulesProposed   int          `json:"rules_proposed"`
	Evicted         int          `json:"evicted"` // canvas items pushed out
	Pruned          int          `json:"pruned"`  // formulas removed by consolidation
	NextAction      types.Action `json:"next_action"`
}

// Statistics are per-module counters for the host's observability.
type Statistics struct {
	Tick                  uint64                     `json:"tick"`
	Formulas              int                        `json:"formulas"`
	ActiveRules           int                        `json:"active_rules"`
	StrongestRule         types.FormulaID            `json:"strongest_rule,omitempty"`
	CanvasItems           int                        `json:"canvas_items"`
	CanvasPushed          uint64                     `json:"canvas_pushed"`
	PendingTasks          int                        `json:"pending_tasks"`
	DroppedTasks          int                        `json:"dropped_tasks"`
	Contradictions        int                        `json:"contradictions"`
	TasksResolved         int                        `json:"tasks_resolved"`
	TasksCompleted        int                        `json:"tasks_completed"`
	RulesInvalidated      int                        `json:"rules_invalidated"`
	ShortcutsMaterialized int                        `json:"shortcuts_materialized"`
	RulesProposed         int                        `json:"rules_proposed"`
	AbstractRules         int                        `json:"abstract_rules"`
	Patterns              int                        `json:"patterns"`
	PatternsEvicted       int                        `json:"patterns_evicted"`
	MetaEventsEvicted     int                        `json:"meta_events_evicted"`
	MetaEventsPerLevel    [patterns.MaxLevel + 1]int `json:"meta_events_per_level"`
	AgentsTracked         int                        `json:"agents_tracked"`
	AgentsRejected        int                        `json:"agents_rejected"`
	CoordinationEvents    int                        `json:"coordination_events"`
	SyncRate              float64                    `json:"sync_rate"`
	ScenariosExplored     int                        `json:"scenarios_explored"`
	CausalLinks           int                        `json:"causal_links"`
	AverageDivergence     float64                    `json:"average_divergence"`
	GranularityLevel      int                        `json:"granularity_level"`
	GranularitySwitches   int                        `json:"granularity_switches"`
	AdaptiveEvaluations   int                        `json:"adaptive_evaluations"`
	PoliciesLearned       int                        `json:"policies_learned"`
	PolicyUpdates         int                        `json:"policy_updates"`
	PolicyStatesRejected  int                        `json:"policy_states_rejected"`
	ConfirmedCausalEdges  int                        `json:"confirmed_causal_edges"`
	AverageEntropy        float64                    `json:"average_entropy"`
	PlansMade             int                        `json:"plans_made"`
	LastPlan              *planner.Recommendation    `json:"last_plan,omitempty"`
	RandomDraws           uint64                     `json:"random_draws"`
}

// counters accumulate across ticks and roll back with the rest of the state.
type counters struct {
	contradictions int
	tasksResolved  int
	invalidated    int
	shortcuts      int
	proposed       int
	abstract       int
	plans          int
}
