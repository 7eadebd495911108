package lock

import (
	"fmt"
	"sort"
	"time"

	"daemondb/concurrency/txn"
)

// runDetector rebuilds the waits-for graph and aborts cycle victims
// every interval, until Close stops it.
func (m *Manager) runDetector() {
	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()
	for {
		select {
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.runDetectionPass()
		}
	}
}

// runDetectionPass rebuilds the graph from scratch and aborts victims
// until no cycle remains, exactly as spec'd: detection and abort happen
// entirely under the manager's coarse lock. abortVictim only flips the
// victim's state; the victim's own requests still sit in the queues
// until it wakes and removes them itself, so each already-aborted
// victim's row must be erased from the graph before the next rebuild or
// the same cycle would be found and the same victim "aborted" forever.
func (m *Manager) runDetectionPass() {
	m.mu.Lock()
	defer m.mu.Unlock()

	aborted := make(map[int64]bool)
	for {
		graph := m.buildWaitsForGraph(aborted)
		victim, found := findCycleVictim(graph)
		if !found {
			return
		}
		m.abortVictim(victim)
		aborted[victim] = true
	}
}

// buildWaitsForGraph adds an edge u -> g for every ungranted request u
// and every granted request g competing for the same RID. Requests
// belonging to txns in aborted are skipped, erasing their row from the
// graph even though they still physically sit in the queues.
func (m *Manager) buildWaitsForGraph(aborted map[int64]bool) map[int64][]int64 {
	graph := make(map[int64]map[int64]struct{})
	for _, q := range m.queues {
		var granted []int64
		for _, r := range q.requests {
			if aborted[r.txnID] {
				continue
			}
			if r.granted {
				granted = append(granted, r.txnID)
			}
		}
		for _, r := range q.requests {
			if aborted[r.txnID] || r.granted {
				continue
			}
			for _, g := range granted {
				if g == r.txnID {
					continue
				}
				if graph[r.txnID] == nil {
					graph[r.txnID] = make(map[int64]struct{})
				}
				graph[r.txnID][g] = struct{}{}
			}
		}
	}

	sorted := make(map[int64][]int64, len(graph))
	for v, neighbors := range graph {
		ns := make([]int64, 0, len(neighbors))
		for n := range neighbors {
			ns = append(ns, n)
		}
		sort.Slice(ns, func(i, j int) bool { return ns[i] < ns[j] })
		sorted[v] = ns
	}
	return sorted
}

// findCycleVictim runs DFS over graph with deterministic ordering
// (vertices and neighbors visited ascending) and returns the largest
// txn id on the active DFS stack the first time a back edge is found.
func findCycleVictim(graph map[int64][]int64) (int64, bool) {
	vertices := make([]int64, 0, len(graph))
	for v := range graph {
		vertices = append(vertices, v)
	}
	sort.Slice(vertices, func(i, j int) bool { return vertices[i] < vertices[j] })

	visited := make(map[int64]bool, len(vertices))
	onStack := make(map[int64]bool, len(vertices))
	var stack []int64

	var dfs func(v int64) (int64, bool)
	dfs = func(v int64) (int64, bool) {
		visited[v] = true
		onStack[v] = true
		stack = append(stack, v)

		for _, next := range graph[v] {
			if onStack[next] {
				victim := stack[0]
				for _, id := range stack {
					if id > victim {
						victim = id
					}
				}
				return victim, true
			}
			if !visited[next] {
				if victim, ok := dfs(next); ok {
					return victim, true
				}
			}
		}

		onStack[v] = false
		stack = stack[:len(stack)-1]
		return 0, false
	}

	for _, v := range vertices {
		if !visited[v] {
			if victim, ok := dfs(v); ok {
				return victim, true
			}
		}
	}
	return 0, false
}

// abortVictim marks victim ABORTED and wakes every queue where it has a
// still-ungranted request, so it observes the new state inside its own
// LockShared/LockExclusive/LockUpgrade wait loop and removes its entry.
func (m *Manager) abortVictim(victim int64) {
	t, ok := m.txns[victim]
	if !ok {
		return
	}
	t.SetState(txn.Aborted)
	fmt.Printf("[LockManager] DEADLOCK victim=%d\n", victim)

	for _, q := range m.queues {
		for _, r := range q.requests {
			if r.txnID == victim && !r.granted {
				q.cond.Broadcast()
			}
		}
	}
}
