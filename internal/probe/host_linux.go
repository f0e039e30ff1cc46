//go:build linux

package probe

import "golang.org/x/sys/unix"

// Load averages from sysinfo are fixed-point with 16 fractional bits.
const loadScale = 1 << 16

func readHostStats() (HostStats, error) {
	var info unix.Sysinfo_t
	if err := unix.Sysinfo(&info); err != nil {
		return HostStats{}, err
	}
	var hs HostStats
	for i := range hs.LoadAverage {
		hs.LoadAverage[i] = float64(info.Loads[i]) / loadScale
	}
	hs.UptimeSeconds = int64(info.Uptime)
	return hs, nil
}
