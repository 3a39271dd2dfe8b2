package analysis

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Thresholds configures the alert checks. Zero values disable a check.
type Thresholds struct {
	// ErrorRate alerts when the 4xx/5xx share exceeds this fraction.
	ErrorRate float64 `yaml:"error_rate"`
	// ResponseTimeMS alerts when the average response time exceeds this.
	ResponseTimeMS float64 `yaml:"response_time_ms"`
	// ConcurrentRequests alerts when the peak per-minute rate exceeds this.
	ConcurrentRequests int `yaml:"concurrent_requests"`
}

// Alert is one threshold breach.
type Alert struct {
	Name      string  `json:"name"`
	Message   string  `json:"message"`
	Value     float64 `json:"value"`
	Threshold float64 `json:"threshold"`
}

// LoadThresholds reads a yaml thresholds file.
func LoadThresholds(path string) (*Thresholds, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read thresholds file: %w", err)
	}

	var t Thresholds
	if err := yaml.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("failed to parse thresholds file: %w", err)
	}
	return &t, nil
}

// CheckThresholds compares a snapshot against thresholds. Pure; callers
// decide how alerts are surfaced.
func CheckThresholds(snapshot *MetricsSnapshot, thresholds Thresholds) []Alert {
	var alerts []Alert

	if thresholds.ErrorRate > 0 {
		if rate := snapshot.ErrorRate(); rate > thresholds.ErrorRate {
			alerts = append(alerts, Alert{
				Name: "error_rate",
				Message: fmt.Sprintf("error rate %.2f%% exceeds threshold %.2f%%",
					rate*100, thresholds.ErrorRate*100),
				Value:     rate,
				Threshold: thresholds.ErrorRate,
			})
		}
	}

	if thresholds.ResponseTimeMS > 0 {
		if avg := snapshot.ResponseTimes.AvgMS; avg > thresholds.ResponseTimeMS {
			alerts = append(alerts, Alert{
				Name: "response_time",
				Message: fmt.Sprintf("average response time %.1fms exceeds threshold %.1fms",
					avg, thresholds.ResponseTimeMS),
				Value:     avg,
				Threshold: thresholds.ResponseTimeMS,
			})
		}
	}

	if thresholds.ConcurrentRequests > 0 {
		if peak := snapshot.PeakPerMinute; peak > thresholds.ConcurrentRequests {
			alerts = append(alerts, Alert{
				Name: "request_rate",
				Message: fmt.Sprintf("peak rate %d req/min exceeds threshold %d req/min",
					peak, thresholds.ConcurrentRequests),
				Value:     float64(peak),
				Threshold: float64(thresholds.ConcurrentRequests),
			})
		}
	}

	return alerts
}
