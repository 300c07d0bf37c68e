package workflow

import (
	"fmt"

	"github.com/BaSui01/flowcore/types"
)

// ValidateShape checks node id uniqueness and edge endpoint integrity.
// It is used before a draft is persisted and before every run.
func ValidateShape(g *Graph) error {
	if g == nil {
		return types.NewBadRequestError(types.ErrGraphInvalidPayload, "graph is nil")
	}
	seen := make(map[string]struct{}, len(g.Nodes))
	for _, n := range g.Nodes {
		if n.ID == "" {
			return types.NewBadRequestError(types.ErrGraphInvalidPayload, "node id cannot be empty")
		}
		if _, dup := seen[n.ID]; dup {
			return types.NewBadRequestError(types.ErrGraphDuplicateNode,
				fmt.Sprintf("duplicate node id: %s", n.ID))
		}
		seen[n.ID] = struct{}{}
	}
	for _, e := range g.Edges {
		if _, ok := seen[e.Source]; !ok {
			return types.NewBadRequestError(types.ErrGraphUnknownNode,
				fmt.Sprintf("edge %s references unknown source node: %s", e.ID, e.Source))
		}
		if _, ok := seen[e.Target]; !ok {
			return types.NewBadRequestError(types.ErrGraphUnknownNode,
				fmt.Sprintf("edge %s references unknown target node: %s", e.ID, e.Target))
		}
	}
	return nil
}

// Schedule returns the node ids in topological order using Kahn's algorithm.
// The queue is seeded in node order and neighbors are visited in edge order,
// so the result is deterministic for a given graph.
func Schedule(g *Graph) ([]string, error) {
	if err := ValidateShape(g); err != nil {
		return nil, err
	}

	inDegree := make(map[string]int, len(g.Nodes))
	adjacency := make(map[string][]string, len(g.Nodes))
	for _, e := range g.Edges {
		adjacency[e.Source] = append(adjacency[e.Source], e.Target)
		inDegree[e.Target]++
	}

	queue := make([]string, 0, len(g.Nodes))
	for _, n := range g.Nodes {
		if inDegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	order := make([]string, 0, len(g.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)
		for _, next := range adjacency[id] {
			inDegree[next]--
			if inDegree[next] == 0 {
				queue = append(queue, next)
			}
		}
	}

	if len(order) != len(g.Nodes) {
		return nil, types.NewBadRequestError(types.ErrGraphCycle,
			fmt.Sprintf("workflow graph has cycle (%d of %d nodes ordered)", len(order), len(g.Nodes)))
	}
	return order, nil
}

// CheckStepLimit rejects orders longer than maxSteps.
func CheckStepLimit(order []string, maxSteps int) error {
	if maxSteps > 0 && len(order) > maxSteps {
		return types.NewBadRequestError(types.ErrGraphStepLimit,
			fmt.Sprintf("workflow has %d steps, limit is %d", len(order), maxSteps))
	}
	return nil
}

func invalidPayload(err error) error {
	return types.NewBadRequestError(types.ErrGraphInvalidPayload, "invalid workflow definition").WithCause(err)
}
