package engine

import (
	"math"
	"time"

	"github.com/google/uuid"

	"github.com/tradewatch/cyclarb/pkg/types"
)

const minCycleLen = 3

// detectLoop runs paced Bellman-Ford sweeps. A sweep that overruns the
// interval starts the next one immediately; no sweep is skipped or batched.
func (e *Engine) detectLoop() {
	defer e.wg.Done()

	for e.running.Load() {
		start := time.Now()
		e.sweep()
		if elapsed := time.Since(start); elapsed < e.cfg.DetectionInterval {
			time.Sleep(e.cfg.DetectionInterval - elapsed)
		}
	}
}

// sweep runs Bellman-Ford from every active source and emits each negative
// cycle reachable through a still-relaxable edge. Loops are bounded by the
// assigned-id count; ids published mid-sweep have no finite edges yet.
func (e *Engine) sweep() {
	n := int(e.index.count())
	if n == 0 {
		return
	}

	dist := e.dist[:n]
	parent := e.parent[:n]

	for src := 0; src < n; src++ {
		if !e.graph.active(uint32(src)) {
			continue
		}

		for i := range dist {
			dist[i] = math.Inf(1)
			parent[i] = -1
		}
		dist[src] = 0

		// Relax all edges n-1 times, stopping early once a pass makes no
		// progress.
		for pass := 0; pass < n-1; pass++ {
			updated := false
			for u := 0; u < n; u++ {
				du := dist[u]
				if math.IsInf(du, 1) {
					continue
				}
				for v := 0; v < n; v++ {
					w := e.graph.weight(uint32(u), uint32(v))
					if math.IsInf(w, 1) {
						continue
					}
					if nd := du + w; nd < dist[v] {
						dist[v] = nd
						parent[v] = int32(u)
						updated = true
					}
				}
			}
			if !updated {
				break
			}
		}

		// Any edge still relaxable after n-1 passes witnesses a negative
		// cycle in the parent forest.
		for u := 0; u < n; u++ {
			du := dist[u]
			if math.IsInf(du, 1) {
				continue
			}
			for v := 0; v < n; v++ {
				w := e.graph.weight(uint32(u), uint32(v))
				if math.IsInf(w, 1) {
					continue
				}
				if du+w < dist[v] {
					if opp, ok := e.extractCycle(int32(v), parent); ok {
						e.emit(opp)
					}
				}
			}
		}
	}
}

// extractCycle walks parent pointers back from a relaxable target until the
// first revisit, which identifies the cycle entry point. Walks that run off
// the parent forest, cycles shorter than three nodes, and cycles whose log
// return is non-negative are all rejected.
func (e *Engine) extractCycle(target int32, parent []int32) (*types.Opportunity, bool) {
	visited := make(map[int32]bool)
	var walk []int32

	current := target
	for current != -1 && !visited[current] {
		visited[current] = true
		walk = append(walk, current)
		current = parent[current]
	}
	if current == -1 {
		return nil, false
	}

	// The cycle is the walked suffix starting at the revisited node.
	entry := -1
	for i, node := range walk {
		if node == current {
			entry = i
			break
		}
	}
	if entry < 0 {
		return nil, false
	}
	cycle := walk[entry:]
	if len(cycle) < minCycleLen {
		return nil, false
	}

	// The walk followed parent pointers, so reverse into forward trading
	// order before summing edge weights.
	path := make([]int32, len(cycle))
	for i, node := range cycle {
		path[len(cycle)-1-i] = node
	}

	var logReturn float64
	for i := range path {
		next := path[(i+1)%len(path)]
		logReturn += e.graph.weight(uint32(path[i]), uint32(next))
	}
	if logReturn >= 0 {
		return nil, false
	}

	labels := make([]string, len(path))
	for i, node := range path {
		labels[i] = e.index.label(uint32(node))
	}

	return &types.Opportunity{
		ID:         uuid.NewString(),
		Path:       labels,
		ProfitPct:  math.Exp(-logReturn) - 1,
		MaxVolume:  e.cfg.MaxPositionSize / float64(len(path)),
		Confidence: e.confidence(len(path), logReturn),
		DetectedAt: time.Now(),
	}, true
}

// confidence scores an opportunity from profit magnitude, path length and
// data freshness. Each term contributes at most 50, so the result lies in
// [0, 150].
func (e *Engine) confidence(pathLen int, logReturn float64) uint32 {
	profit := math.Min(math.Abs(logReturn)*100.0, 50.0)
	length := math.Max(0, 50.0-float64(pathLen)*10.0)

	ageMs := float64(time.Now().UnixNano()-e.lastUpdateNanos.Load()) / 1e6
	freshness := math.Max(0, 50.0-ageMs/100.0)

	return uint32(profit + length + freshness)
}

// emit routes one extracted cycle through the sink; accepted opportunities
// count toward opportunities_found, gate rejections toward false_positives.
func (e *Engine) emit(opp *types.Opportunity) {
	switch e.sink.offer(opp) {
	case sinkAccepted:
		e.opportunitiesFound.Add(1)
	case sinkUnprofitable:
		e.falsePositives.Add(1)
	}
}
