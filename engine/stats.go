package engine

import (
	"time"

	"github.com/montanaflynn/stats"
)

// maxSamples is the number of latest latencies kept per operation.
const maxSamples = 4096

// Summary is a latency summary of one operation.
type Summary struct {
	Count  int
	Mean   time.Duration
	Median time.Duration
	P95    time.Duration
}

// latencies is a bounded window of durations in seconds.
type latencies struct {
	values []float64
	next   int
	count  int
}

func (l *latencies) add(d time.Duration) {
	if len(l.values) < maxSamples {
		l.values = append(l.values, d.Seconds())
	} else {
		l.values[l.next] = d.Seconds()
		l.next = (l.next + 1) % maxSamples
	}
	l.count++
}

func (l *latencies) summary() (s Summary) {

	s.Count = l.count

	if len(l.values) == 0 {
		return
	}

	seconds := func(f float64) time.Duration {
		return time.Duration(f * float64(time.Second))
	}

	data := stats.Float64Data(l.values)

	mean, _ := stats.Mean(data)
	median, _ := stats.Median(data)

	// Percentile is undefined on too few samples.
	p95, err := stats.Percentile(data, 95)
	if err != nil {
		p95, _ = stats.Max(data)
	}

	s.Mean, s.Median, s.P95 = seconds(mean), seconds(median), seconds(p95)

	return
}

// Stats returns the latency summary of every operation the engine completed successfully,
// over the latest completed calls of each operation.
func (e *Engine) Stats() map[string]Summary {

	e.mu.Lock()
	defer e.mu.Unlock()

	out := make(map[string]Summary, len(e.latencies))
	for op, l := range e.latencies {
		out[op] = l.summary()
	}

	return out
}
