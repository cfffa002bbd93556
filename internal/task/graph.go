package task

// resolution holds the outcome of id normalization across a task list.
// A task is "resolved" when it has a usable id that no other task shares;
// only resolved tasks participate in dependency resolution.
type resolution struct {
	ids      []string       // normalized id per task index ("" when absent)
	resolved map[string]int // normalized id -> task index, unique ids only
}

// resolve normalizes every task id and builds the unique-id index.
// Duplicate ids make every holder unresolvable rather than picking a winner.
func resolve(tasks []Task) resolution {
	res := resolution{
		ids:      make([]string, len(tasks)),
		resolved: make(map[string]int, len(tasks)),
	}
	counts := make(map[string]int, len(tasks))
	for i, t := range tasks {
		id, ok := NormalizeID(t.ID)
		if !ok {
			continue
		}
		res.ids[i] = id
		counts[id]++
	}
	for i, id := range res.ids {
		if id != "" && counts[id] == 1 {
			res.resolved[id] = i
		}
	}
	return res
}

// TopologicalOrder returns the tasks ordered so that every resolvable task
// appears after all tasks in its resolved blocker set.
//
// Tasks that cannot participate in the sort are appended after the sorted
// prefix in their original relative order rather than failing the whole
// operation: tasks with missing or duplicate ids, tasks naming a blocker
// that does not resolve to any task, and tasks on a dependency cycle
// (which never reach indegree zero). Inputs of length <= 1 are returned
// unchanged.
func TopologicalOrder(tasks []Task) []Task {
	if len(tasks) <= 1 {
		return tasks
	}

	res := resolve(tasks)

	// A task is sortable when its own id resolved and every one of its
	// normalized blockers resolves to some task index. Otherwise its
	// position cannot be bounded and it is excluded from the pass.
	sortable := make([]bool, len(tasks))
	blockers := make([][]string, len(tasks))
	for i, t := range tasks {
		id := res.ids[i]
		if id == "" {
			continue
		}
		if idx, ok := res.resolved[id]; !ok || idx != i {
			continue
		}
		bs := normalizeBlockers(t.BlockedBy)
		ok := true
		for _, b := range bs {
			if _, found := res.resolved[b]; !found {
				ok = false
				break
			}
		}
		if !ok {
			continue
		}
		sortable[i] = true
		blockers[i] = bs
	}

	// Kahn's algorithm over the sortable subset. The frontier is scanned
	// in ascending original index so the result is deterministic and
	// respects input order among unblocked peers.
	indegree := make([]int, len(tasks))
	dependents := make([][]int, len(tasks))
	for i := range tasks {
		if !sortable[i] {
			continue
		}
		for _, b := range blockers[i] {
			j := res.resolved[b]
			if j == i {
				// A self-dependency is a one-node cycle. The indegree is
				// kept with no dependent edge to decrement it, so the task
				// never reaches the frontier and falls to the tail.
				indegree[i]++
				continue
			}
			if !sortable[j] {
				// Edges into excluded tasks cannot be enforced by the
				// sort; skip them rather than deadlock.
				continue
			}
			indegree[i]++
			dependents[j] = append(dependents[j], i)
		}
	}

	sorted := make([]int, 0, len(tasks))
	placed := make([]bool, len(tasks))
	frontier := make([]int, 0, len(tasks))
	for i := range tasks {
		if sortable[i] && indegree[i] == 0 {
			frontier = append(frontier, i)
		}
	}
	for len(frontier) > 0 {
		next := make([]int, 0, len(frontier))
		for _, i := range frontier {
			sorted = append(sorted, i)
			placed[i] = true
			for _, d := range dependents[i] {
				indegree[d]--
				if indegree[d] == 0 {
					next = append(next, d)
				}
			}
		}
		frontier = next
	}

	out := make([]Task, 0, len(tasks))
	for _, i := range sorted {
		out = append(out, tasks[i])
	}
	// Everything not placed (unresolved or cyclic) keeps its original
	// relative order after the sorted prefix.
	for i := range tasks {
		if !placed[i] {
			out = append(out, tasks[i])
		}
	}
	return out
}

// ReadyTasks returns, in original order, every pending task whose
// normalized blockers all resolve to completed tasks. A pending task with
// no blockers is immediately ready. A task naming a blocker that cannot
// be resolved is never ready.
func ReadyTasks(tasks []Task) []Task {
	res := resolve(tasks)

	var ready []Task
	for _, t := range tasks {
		if t.Status != StatusPending {
			continue
		}
		ok := true
		for _, b := range normalizeBlockers(t.BlockedBy) {
			idx, found := res.resolved[b]
			if !found || tasks[idx].Status != StatusCompleted {
				ok = false
				break
			}
		}
		if ok {
			ready = append(ready, t)
		}
	}
	return ready
}
