package core

import (
	"errors"

	"cogkernel/internal/bayes"
	"cogkernel/internal/counterfactual"
	"cogkernel/internal/types"
)

// Causal network nodes. Three of them share names with counterfactual
// outcome components so inferred links map straight onto edges.
const (
	nodeAction         = "action"
	nodeCanvas         = counterfactual.ComponentCanvas
	nodeSync           = counterfactual.ComponentSync
	nodePatterns       = counterfactual.ComponentPatterns
	nodeContradictions = "contradictions"
)

// buildNetwork registers the kernel's observables and their assumed
// dependencies. Counterfactual exploration adds edges later.
func buildNetwork(n *bayes.Network) error {
	nodes := []struct {
		name   string
		states int
	}{
		{nodeAction, types.NumActions},
		{nodeCanvas, 3},
		{nodeSync, 3},
		{nodePatterns, 3},
		{nodeContradictions, 2},
	}
	for _, nd := range nodes {
		if err := n.AddNode(nd.name, nd.states); err != nil {
			return err
		}
	}
	edges := [][2]string{
		{nodeAction, nodeCanvas},
		{nodeAction, nodeSync},
		{nodeCanvas, nodePatterns},
		{nodeSync, nodePatterns},
		{nodeCanvas, nodeContradictions},
	}
	for _, e := range edges {
		if err := n.AddEdge(e[0], e[1], nil, 1); err != nil {
			return err
		}
	}
	return nil
}

func isCycle(err error) bool { return errors.Is(err, bayes.ErrCycle) }
