package bus

import "time"

// Stats is a point-in-time snapshot of the bus counters. Every successful
// per-phase queue append counts as one delivery, so a broadcast reaching N
// subscribers adds N to TotalDelivered; direct deliveries count the same
// way. TotalPublished always equals TotalBroadcast + TotalDirect.
type Stats struct {
	TotalPublished int64 `json:"totalPublished"`
	TotalDelivered int64 `json:"totalDelivered"`
	TotalBroadcast int64 `json:"totalBroadcast"`
	TotalDirect    int64 `json:"totalDirect"`

	// ByType and ByPriority are keyed by canonical names.
	ByType     map[string]int64 `json:"byType"`
	ByPriority map[string]int64 `json:"byPriority"`

	// QueueSizes reports the current length of each phase queue.
	QueueSizes map[string]int `json:"queueSizes"`

	HistorySize         int           `json:"historySize"`
	ActiveSubscriptions int           `json:"activeSubscriptions"`
	Uptime              time.Duration `json:"uptime"`
}
