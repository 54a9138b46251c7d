package graph

import "github.com/alexfarlander/stitch-run-sub015/pkg/models"

// IsComplete reports whether every node of the execution graph reached a
// terminal state in the run. A node without a state-map entry counts as
// unreached and therefore incomplete.
func IsComplete(run *models.Run, graph *models.ExecutionGraph) bool {
	for i := range graph.Nodes {
		state, ok := run.NodeStates[graph.Nodes[i].ID]
		if !ok || !state.Status.IsTerminal() {
			return false
		}
	}

	return true
}

// Stats counts run node states per status. Advisory only; completion
// decisions go through IsComplete.
func Stats(run *models.Run) map[models.NodeStatus]int {
	stats := make(map[models.NodeStatus]int)

	for _, state := range run.NodeStates {
		stats[state.Status]++
	}

	return stats
}
