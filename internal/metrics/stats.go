package metrics

import (
	"math"
	"sort"

	"wanwatch/internal/model"
)

// Summary describes one collection cycle across interfaces. Averages cover
// only interfaces where the figure was measured.
type Summary struct {
	Count        int
	Reachable    int
	AvgLatencyMs float64
	P95LatencyMs float64
	MinLatencyMs float64
	MaxLatencyMs float64
	AvgLossPct   float64
	TotalMbps    float64
	Best         string
}

// Summarize computes a summary of one cycle. Best is the reachable interface
// with the lowest loss, ties broken by latency.
func Summarize(items []model.NeighborRecord) Summary {
	s := Summary{Count: len(items)}
	if len(items) == 0 {
		return s
	}

	latencies := make([]float64, 0, len(items))
	var sumLatency, sumLoss float64
	lossN := 0
	minLatency := math.MaxFloat64
	maxLatency := 0.0
	var best *model.NeighborRecord

	for i := range items {
		r := &items[i]
		if r.LatencyMs != model.Missing {
			s.Reachable++
			latencies = append(latencies, r.LatencyMs)
			sumLatency += r.LatencyMs
			minLatency = math.Min(minLatency, r.LatencyMs)
			maxLatency = math.Max(maxLatency, r.LatencyMs)
		}
		if r.PacketLossPercent != model.Missing {
			sumLoss += r.PacketLossPercent
			lossN++
		}
		if r.ThroughputMbps != model.Missing {
			s.TotalMbps += r.ThroughputMbps
		}
		if r.LatencyMs != model.Missing && better(r, best) {
			best = r
		}
	}

	if len(latencies) > 0 {
		sort.Float64s(latencies)
		s.AvgLatencyMs = sumLatency / float64(len(latencies))
		s.P95LatencyMs = percentile(latencies, 0.95)
		s.MinLatencyMs = minLatency
		s.MaxLatencyMs = maxLatency
	}
	if lossN > 0 {
		s.AvgLossPct = sumLoss / float64(lossN)
	}
	if best != nil {
		s.Best = best.Name
	}
	return s
}

func better(r, than *model.NeighborRecord) bool {
	if than == nil {
		return true
	}
	rl, tl := lossOrWorst(r), lossOrWorst(than)
	if rl != tl {
		return rl < tl
	}
	return r.LatencyMs < than.LatencyMs
}

func lossOrWorst(r *model.NeighborRecord) float64 {
	if r.PacketLossPercent == model.Missing {
		return 101
	}
	return r.PacketLossPercent
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return values[0]
	}
	if p >= 1 {
		return values[len(values)-1]
	}
	idx := int(math.Ceil(p*float64(len(values)))) - 1
	if idx < 0 {
		idx = 0
	}
	if idx >= len(values) {
		idx = len(values) - 1
	}
	return values[idx]
}
