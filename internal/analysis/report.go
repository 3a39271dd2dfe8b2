package analysis

import (
	"fmt"
	"io"
	"sort"
)

// WriteExposition renders the snapshot as plain-text counters and histograms
// in the scrape-friendly name/type/value format.
func WriteExposition(w io.Writer, s *MetricsSnapshot) error {
	var err error
	write := func(format string, args ...interface{}) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, format, args...)
	}

	write("# TYPE webhook_log_requests_total counter\n")
	write("webhook_log_requests_total %d\n", s.TotalRequests)
	write("# TYPE webhook_log_errors_total counter\n")
	write("webhook_log_errors_total %d\n", s.TotalErrors)

	write("# TYPE webhook_log_requests_by_status counter\n")
	statuses := make([]int, 0, len(s.StatusCounts))
	for status := range s.StatusCounts {
		statuses = append(statuses, status)
	}
	sort.Ints(statuses)
	for _, status := range statuses {
		write("webhook_log_requests_by_status{status=\"%d\"} %d\n", status, s.StatusCounts[status])
	}

	write("# TYPE webhook_log_events_by_type counter\n")
	types := make([]string, 0, len(s.EventTypeCounts))
	for eventType := range s.EventTypeCounts {
		types = append(types, eventType)
	}
	sort.Strings(types)
	for _, eventType := range types {
		write("webhook_log_events_by_type{event_type=\"%s\"} %d\n", eventType, s.EventTypeCounts[eventType])
	}

	write("# TYPE webhook_log_response_time_ms histogram\n")
	cumulative := 0
	for i, bound := range ResponseTimeBucketsMS {
		cumulative += s.ResponseTimes.BucketCounts[i]
		write("webhook_log_response_time_ms_bucket{le=\"%g\"} %d\n", bound, cumulative)
	}
	cumulative += s.ResponseTimes.BucketCounts[len(ResponseTimeBucketsMS)]
	write("webhook_log_response_time_ms_bucket{le=\"+Inf\"} %d\n", cumulative)
	write("webhook_log_response_time_ms_avg %g\n", s.ResponseTimes.AvgMS)
	write("webhook_log_response_time_ms_min %g\n", s.ResponseTimes.MinMS)
	write("webhook_log_response_time_ms_max %g\n", s.ResponseTimes.MaxMS)

	write("# TYPE webhook_log_unique_customers gauge\n")
	write("webhook_log_unique_customers %d\n", s.UniqueCustomers)
	write("# TYPE webhook_log_peak_requests_per_minute gauge\n")
	write("webhook_log_peak_requests_per_minute %d\n", s.PeakPerMinute)

	return err
}

// WriteSummary renders the operator-facing console report.
func WriteSummary(w io.Writer, s *MetricsSnapshot, alerts []Alert) error {
	var err error
	write := func(format string, args ...interface{}) {
		if err != nil {
			return
		}
		_, err = fmt.Fprintf(w, format, args...)
	}

	write("Webhook traffic report\n")
	if !s.WindowStart.IsZero() {
		write("  window:           %s .. %s\n",
			s.WindowStart.Format("2006-01-02 15:04:05"),
			s.WindowEnd.Format("2006-01-02 15:04:05"))
	}
	write("  requests:         %d\n", s.TotalRequests)
	write("  errors:           %d (%.2f%%)\n", s.TotalErrors, s.ErrorRate()*100)
	write("  unique customers: %d\n", s.UniqueCustomers)
	write("  peak rate:        %d req/min\n", s.PeakPerMinute)
	write("  response time:    min %.1fms / avg %.1fms / max %.1fms\n",
		s.ResponseTimes.MinMS, s.ResponseTimes.AvgMS, s.ResponseTimes.MaxMS)

	if len(s.StatusCounts) > 0 {
		write("  by status:\n")
		statuses := make([]int, 0, len(s.StatusCounts))
		for status := range s.StatusCounts {
			statuses = append(statuses, status)
		}
		sort.Ints(statuses)
		for _, status := range statuses {
			write("    %d: %d\n", status, s.StatusCounts[status])
		}
	}

	if len(s.EventTypeCounts) > 0 {
		write("  by event type:\n")
		types := make([]string, 0, len(s.EventTypeCounts))
		for eventType := range s.EventTypeCounts {
			types = append(types, eventType)
		}
		sort.Strings(types)
		for _, eventType := range types {
			write("    %s: %d\n", eventType, s.EventTypeCounts[eventType])
		}
	}

	if len(alerts) == 0 {
		write("  alerts:           none\n")
	} else {
		write("  alerts:\n")
		for _, alert := range alerts {
			write("    [%s] %s\n", alert.Name, alert.Message)
		}
	}

	return err
}
