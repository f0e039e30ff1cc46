package probe

// HostStats is a snapshot of host-wide load and uptime.
type HostStats struct {
	LoadAverage   [3]float64
	UptimeSeconds int64
}
