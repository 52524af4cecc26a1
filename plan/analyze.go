package plan

import "sort"

// DependencyAnalysis is advisory scheduling metadata derived from the
// dependency graph. Parallel groups are a hint for an external
// orchestrator, never an execution guarantee.
type DependencyAnalysis struct {
	// Forward maps each task to the tasks it depends on.
	Forward map[int][]int `json:"forward"`

	// Reverse maps each task to the tasks that depend on it.
	Reverse map[int][]int `json:"reverse"`

	// Depths maps each task to its depth in the dependency graph; tasks
	// with no dependencies have depth 0.
	Depths map[int]int `json:"depths"`

	// CriticalPathLength is the number of tasks on the longest chain.
	CriticalPathLength int `json:"critical_path_length"`

	// ParallelGroups partitions task ids by equal depth, shallowest
	// first. Tasks in one group have no chain between them.
	ParallelGroups [][]int `json:"parallel_groups"`
}

// AnalyzeDependencies builds the forward and reverse dependency maps,
// computes each task's depth, derives the critical path length and
// partitions tasks into same-depth parallel groups.
//
// Depth traversal guards against cycles with a per-branch copy of the
// visited set: a back-edge contributes depth 0 on that branch instead of
// recursing forever. Construction does not reject cycles outright; a
// cyclic subgraph simply never becomes executable, which surfaces the
// defect without corrupting the plan.
func (p *Plan) AnalyzeDependencies() DependencyAnalysis {
	p.mu.Lock()
	defer p.mu.Unlock()

	analysis := DependencyAnalysis{
		Forward: make(map[int][]int, len(p.tasks)),
		Reverse: make(map[int][]int, len(p.tasks)),
		Depths:  make(map[int]int, len(p.tasks)),
	}

	for _, t := range p.tasks {
		analysis.Forward[t.ID] = append([]int(nil), t.Dependencies...)
		for _, dep := range t.Dependencies {
			if dep >= 0 && dep < len(p.tasks) {
				analysis.Reverse[dep] = append(analysis.Reverse[dep], t.ID)
			}
		}
	}

	maxDepth := -1
	for _, t := range p.tasks {
		d := p.depthOf(t.ID, map[int]bool{})
		analysis.Depths[t.ID] = d
		if d > maxDepth {
			maxDepth = d
		}
	}
	if maxDepth >= 0 {
		analysis.CriticalPathLength = maxDepth + 1
	}

	groups := make(map[int][]int)
	for id, d := range analysis.Depths {
		groups[d] = append(groups[d], id)
	}
	depths := make([]int, 0, len(groups))
	for d := range groups {
		depths = append(depths, d)
	}
	sort.Ints(depths)
	for _, d := range depths {
		ids := groups[d]
		sort.Ints(ids)
		analysis.ParallelGroups = append(analysis.ParallelGroups, ids)
	}

	return analysis
}

// depthOf computes a task's dependency depth via depth-first traversal.
// visited is copied per branch so a back-edge bounds recursion on that
// branch without poisoning sibling branches.
func (p *Plan) depthOf(id int, visited map[int]bool) int {
	if visited[id] {
		return 0
	}
	t := p.tasks[id]
	if len(t.Dependencies) == 0 {
		return 0
	}

	max := 0
	for _, dep := range t.Dependencies {
		if dep < 0 || dep >= len(p.tasks) {
			continue
		}
		branch := make(map[int]bool, len(visited)+1)
		for k, v := range visited {
			branch[k] = v
		}
		branch[id] = true

		if d := p.depthOf(dep, branch) + 1; d > max {
			max = d
		}
	}
	return max
}
