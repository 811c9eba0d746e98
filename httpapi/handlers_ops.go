package httpapi

import (
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	elderauth "github.com/eldernest/elderauth"
)

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	if err := s.engine.Ping(r.Context()); err != nil {
		writeJSON(w, http.StatusServiceUnavailable, struct {
			Status string `json:"status"`
		}{"degraded"})
		return
	}
	writeJSON(w, http.StatusOK, struct {
		Status string `json:"status"`
	}{"ok"})
}

const metricNamespace = "elderauth_"

// handleMetrics renders the engine's metrics snapshot in the Prometheus text
// exposition format. Counters sort by name; the verify-latency histogram is
// rendered with cumulative buckets.
func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	snap := s.engine.MetricsSnapshot()

	type counterLine struct {
		name  string
		value uint64
	}
	counters := make([]counterLine, 0, len(snap.Counters))
	for id, v := range snap.Counters {
		if _, isHist := snap.Histograms[id]; isHist {
			continue
		}
		name := elderauth.MetricName(id)
		if name == "unknown" {
			continue
		}
		counters = append(counters, counterLine{name: metricNamespace + name, value: v})
	}
	sort.Slice(counters, func(i, j int) bool { return counters[i].name < counters[j].name })

	var b strings.Builder
	for _, c := range counters {
		fmt.Fprintf(&b, "# TYPE %s counter\n", c.name)
		fmt.Fprintf(&b, "%s %d\n", c.name, c.value)
	}

	histIDs := make([]elderauth.MetricID, 0, len(snap.Histograms))
	for id := range snap.Histograms {
		histIDs = append(histIDs, id)
	}
	sort.Slice(histIDs, func(i, j int) bool {
		return elderauth.MetricName(histIDs[i]) < elderauth.MetricName(histIDs[j])
	})

	bounds := elderauth.HistogramBucketBounds()
	for _, id := range histIDs {
		buckets := snap.Histograms[id]
		name := metricNamespace + elderauth.MetricName(id) + "_seconds"
		fmt.Fprintf(&b, "# TYPE %s histogram\n", name)

		var cum uint64
		for i, bound := range bounds {
			if i < len(buckets) {
				cum += buckets[i]
			}
			fmt.Fprintf(&b, "%s_bucket{le=\"%g\"} %d\n", name, bound, cum)
		}
		// Overflow bucket.
		if len(buckets) > len(bounds) {
			cum += buckets[len(bounds)]
		}
		fmt.Fprintf(&b, "%s_bucket{le=\"+Inf\"} %d\n", name, cum)
		fmt.Fprintf(&b, "%s_count %d\n", name, cum)
	}

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_, _ = io.WriteString(w, b.String())
}
