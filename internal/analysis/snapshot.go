package analysis

import (
	"io"
	"math"
	"time"
)

// ResponseTimeBucketsMS are the fixed upper bounds of the response time
// histogram, in milliseconds. The final implicit bucket is unbounded.
var ResponseTimeBucketsMS = []float64{50, 100, 250, 500, 1000, 2500}

// ResponseTimes summarizes the latency distribution of a window.
type ResponseTimes struct {
	MinMS float64
	MaxMS float64
	AvgMS float64
	// BucketCounts has one count per entry of ResponseTimeBucketsMS plus a
	// trailing overflow count.
	BucketCounts []int
}

// MetricsSnapshot aggregates one analysis window. Recomputed per run; the
// logs stay the source of truth.
type MetricsSnapshot struct {
	WindowStart time.Time
	WindowEnd   time.Time

	TotalRequests int
	TotalErrors   int

	StatusCounts    map[int]int
	EventTypeCounts map[string]int

	ResponseTimes ResponseTimes

	UniqueCustomers int
	PeakPerMinute   int
}

// ErrorRate is the share of requests answered with a 4xx/5xx status.
func (s *MetricsSnapshot) ErrorRate() float64 {
	if s.TotalRequests == 0 {
		return 0
	}
	return float64(s.TotalErrors) / float64(s.TotalRequests)
}

// Analyze consumes request log lines from r and aggregates them into one
// snapshot. window bounds how far back lines are counted; zero means all.
func Analyze(r io.Reader, window time.Duration, now time.Time) (*MetricsSnapshot, error) {
	snapshot := &MetricsSnapshot{
		WindowEnd:       now,
		StatusCounts:    make(map[int]int),
		EventTypeCounts: make(map[string]int),
		ResponseTimes: ResponseTimes{
			MinMS:        math.Inf(1),
			BucketCounts: make([]int, len(ResponseTimeBucketsMS)+1),
		},
	}
	if window > 0 {
		snapshot.WindowStart = now.Add(-window)
	}

	customers := make(map[string]struct{})
	perMinute := make(map[int64]int)

	err := Parse(r, window, now, func(rec Record) {
		snapshot.TotalRequests++
		snapshot.StatusCounts[rec.Status]++
		if rec.Status >= 400 {
			snapshot.TotalErrors++
		}
		if rec.EventType != "" {
			snapshot.EventTypeCounts[rec.EventType]++
		}
		if rec.CustomerID != "" {
			customers[rec.CustomerID] = struct{}{}
		}

		minute := rec.Timestamp.Unix() / 60
		perMinute[minute]++

		rt := &snapshot.ResponseTimes
		if rec.DurationMS < rt.MinMS {
			rt.MinMS = rec.DurationMS
		}
		if rec.DurationMS > rt.MaxMS {
			rt.MaxMS = rec.DurationMS
		}
		// AvgMS accumulates the sum until finalization below.
		rt.AvgMS += rec.DurationMS

		placed := false
		for i, bound := range ResponseTimeBucketsMS {
			if rec.DurationMS <= bound {
				rt.BucketCounts[i]++
				placed = true
				break
			}
		}
		if !placed {
			rt.BucketCounts[len(ResponseTimeBucketsMS)]++
		}
	})
	if err != nil {
		return nil, err
	}

	snapshot.UniqueCustomers = len(customers)
	for _, count := range perMinute {
		if count > snapshot.PeakPerMinute {
			snapshot.PeakPerMinute = count
		}
	}

	if snapshot.TotalRequests > 0 {
		snapshot.ResponseTimes.AvgMS /= float64(snapshot.TotalRequests)
	} else {
		snapshot.ResponseTimes.MinMS = 0
	}

	return snapshot, nil
}
