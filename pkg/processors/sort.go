package processors

import (
	"errors"
	"sort"
)

// ErrCyclicDependency is returned by SortProcessors when the
// dependency graph contains a cycle.
var ErrCyclicDependency = errors.New("cyclic processor dependency")

// SortProcessors computes Kahn's topological sort over the processor
// dependency graph, where A must precede B iff A.Outputs() and
// B.Dependencies() share a key. It returns stages: each stage is a
// set of processors with no ordering constraint between them, and
// stage N only begins after stage N-1 completes. Ties within a stage
// are broken by (Order(), declaration sequence).
func SortProcessors(procs []Processor) ([][]Processor, error) {
	n := len(procs)
	if n == 0 {
		return nil, nil
	}

	indegree := make([]int, n)
	edges := make([][]int, n)
	for i, p := range procs {
		for j, q := range procs {
			if i == j {
				continue
			}
			if overlaps(p.Outputs(), q.Dependencies()) {
				edges[i] = append(edges[i], j)
				indegree[j]++
			}
		}
	}

	processed := make([]bool, n)
	remaining := n
	var stages [][]Processor

	for remaining > 0 {
		var ready []int
		for i := 0; i < n; i++ {
			if !processed[i] && indegree[i] == 0 {
				ready = append(ready, i)
			}
		}
		if len(ready) == 0 {
			return nil, ErrCyclicDependency
		}

		sort.Slice(ready, func(a, b int) bool {
			oa, ob := procs[ready[a]].Order(), procs[ready[b]].Order()
			if oa != ob {
				return oa < ob
			}
			return ready[a] < ready[b]
		})

		stage := make([]Processor, 0, len(ready))
		for _, idx := range ready {
			stage = append(stage, procs[idx])
			processed[idx] = true
			remaining--
			for _, j := range edges[idx] {
				indegree[j]--
			}
		}
		stages = append(stages, stage)
	}

	return stages, nil
}
