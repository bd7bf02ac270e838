package analytics

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// GenerateReport renders a human-readable summary combining frequency,
// performance, and pattern analysis over the window. The layout is
// informational, not a machine contract.
func (a *Analyzer) GenerateReport(window time.Duration) string {
	freq := a.FrequencyAnalysis(window)
	perf := a.PerformanceMetrics(window)
	patterns := a.DetectPatterns(window)

	var b strings.Builder
	rule := strings.Repeat("=", 60)
	line := strings.Repeat("-", 60)

	fmt.Fprintln(&b, rule)
	fmt.Fprintln(&b, "MESSAGE BUS ANALYTICS REPORT")
	fmt.Fprintln(&b, rule)
	fmt.Fprintf(&b, "Time Window: %s\n", windowLabel(window))
	fmt.Fprintf(&b, "Generated: %s\n", a.now().Format(time.RFC3339))
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "FREQUENCY ANALYSIS")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Total Messages: %d\n", freq.TotalMessages)
	fmt.Fprintf(&b, "Messages/Hour: %.2f\n", freq.MessagesPerHour)
	fmt.Fprintf(&b, "Time Span: %.2f hours\n", freq.TimeSpanHours)
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Top Message Types:")
	for _, row := range topCounts(freq.ByType, 5) {
		fmt.Fprintf(&b, "  %s: %d\n", row.name, row.count)
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "Top Senders:")
	for _, row := range topCounts(freq.BySender, 5) {
		fmt.Fprintf(&b, "  %s: %d\n", row.name, row.count)
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "PERFORMANCE METRICS")
	fmt.Fprintln(&b, line)
	fmt.Fprintf(&b, "Processing Rate: %.2f msg/sec\n", perf.ProcessingRate)
	fmt.Fprintf(&b, "Critical Message Ratio: %.1f%%\n", perf.CriticalRatio*100)
	fmt.Fprintf(&b, "Unique Senders: %d\n", perf.UniqueSenders)
	fmt.Fprintf(&b, "Unique Recipients: %d\n", perf.UniqueRecipients)

	if perf.ResponseTimes.Count > 0 {
		rt := perf.ResponseTimes
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Response Times:")
		fmt.Fprintf(&b, "  Count: %d\n", rt.Count)
		fmt.Fprintf(&b, "  Average: %.2fs\n", rt.Mean.Seconds())
		fmt.Fprintf(&b, "  Median: %.2fs\n", rt.Median.Seconds())
		fmt.Fprintf(&b, "  Min: %.2fs\n", rt.Min.Seconds())
		fmt.Fprintf(&b, "  Max: %.2fs\n", rt.Max.Seconds())
	}
	fmt.Fprintln(&b)

	fmt.Fprintln(&b, "PATTERN DETECTION")
	fmt.Fprintln(&b, line)

	if len(patterns.RepeatedErrors) > 0 {
		fmt.Fprintln(&b, "Repeated Errors:")
		for _, e := range head(patterns.RepeatedErrors, 3) {
			fmt.Fprintf(&b, "  %s: %s (%d times)\n", e.Sender, e.Type, e.Count)
		}
	}
	if len(patterns.Bursts) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Message Bursts:")
		for _, burst := range head(patterns.Bursts, 3) {
			fmt.Fprintf(&b, "  %s: %d messages (%.1f/min)\n",
				burst.Start.Format(time.RFC3339), burst.Count, burst.RatePerMinute)
		}
	}
	if len(patterns.SlowResponses) > 0 {
		fmt.Fprintln(&b)
		fmt.Fprintln(&b, "Slow Responses:")
		for _, slow := range head(patterns.SlowResponses, 3) {
			fmt.Fprintf(&b, "  %s -> %s: %.1fs\n",
				slow.Sender, slow.Recipient, slow.Latency.Seconds())
		}
	}

	fmt.Fprintln(&b)
	fmt.Fprintln(&b, rule)
	return b.String()
}

func windowLabel(window time.Duration) string {
	if window <= 0 {
		return "all history"
	}
	return window.String()
}

type countRow struct {
	name  string
	count int
}

// topCounts orders a count map descending by count, ties broken by name,
// truncated to n rows.
func topCounts(counts map[string]int, n int) []countRow {
	rows := make([]countRow, 0, len(counts))
	for name, count := range counts {
		rows = append(rows, countRow{name: name, count: count})
	}
	sort.Slice(rows, func(i, j int) bool {
		if rows[i].count != rows[j].count {
			return rows[i].count > rows[j].count
		}
		return rows[i].name < rows[j].name
	})
	if len(rows) > n {
		rows = rows[:n]
	}
	return rows
}

func head[T any](items []T, n int) []T {
	if len(items) > n {
		return items[:n]
	}
	return items
}
