package probe

import (
	"bufio"
	"fmt"
	"math"
	"regexp"
	"strconv"
	"strings"
)

// ParsePIDs returns the process ids printed by pgrep, one per line.
func ParsePIDs(out string) []int {
	var pids []int
	for _, field := range strings.Fields(out) {
		if pid, err := strconv.Atoi(field); err == nil && pid > 0 {
			pids = append(pids, pid)
		}
	}
	return pids
}

// ListeningOn reports whether `netstat -tln` output has a listening TCP
// socket whose local address ends in ":port".
func ListeningOn(out string, port int) bool {
	suffix := ":" + strconv.Itoa(port)
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 4 || !strings.HasPrefix(fields[0], "tcp") {
			continue
		}
		if len(fields) >= 6 && fields[5] != "LISTEN" {
			continue
		}
		if strings.HasSuffix(fields[3], suffix) {
			return true
		}
	}
	return false
}

var percentRe = regexp.MustCompile(`^\d+(\.\d+)?%$`)

// ParseDiskUsage extracts the use% column (5th field) from the last line
// of `df -h <path>` output, e.g. "42%".
func ParseDiskUsage(out string) (string, error) {
	lines := strings.Split(strings.TrimSpace(out), "\n")
	if len(lines) < 2 {
		return "", fmt.Errorf("unexpected df output")
	}
	fields := strings.Fields(lines[len(lines)-1])
	if len(fields) < 5 || !percentRe.MatchString(fields[4]) {
		return "", fmt.Errorf("unexpected df output: %q", lines[len(lines)-1])
	}
	return fields[4], nil
}

// ParseMemoryUsage computes used/total*100 from the "Mem:" line of `free`,
// rounded to one decimal.
func ParseMemoryUsage(out string) (float64, error) {
	scanner := bufio.NewScanner(strings.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < 3 || fields[0] != "Mem:" {
			continue
		}
		total, err := strconv.ParseFloat(fields[1], 64)
		if err != nil || total <= 0 {
			return 0, fmt.Errorf("unexpected free total %q", fields[1])
		}
		used, err := strconv.ParseFloat(fields[2], 64)
		if err != nil {
			return 0, fmt.Errorf("unexpected free used %q", fields[2])
		}
		return math.Round(used/total*1000) / 10, nil
	}
	return 0, fmt.Errorf("no Mem: line in free output")
}

// NodeStatus is what `myria-node --status` reports about the current cycle.
type NodeStatus struct {
	Healthy     bool   `json:"healthy"`
	NodeID      string `json:"nodeId,omitempty"`
	CycleStatus string `json:"cycleStatus,omitempty"`
	CycleUptime string `json:"cycleUptime,omitempty"`
}

var (
	cycleStatusRe = regexp.MustCompile(`(?i)Current Cycle Status:\s*(\w+)`)
	nodeIDRe      = regexp.MustCompile(`Node ID:[ \t]*(\S+)`)
	cycleUptimeRe = regexp.MustCompile(`Current Cycle Uptime:[ \t]*([^\r\n]*)`)
)

// ParseNodeStatus decides node health from --status output: healthy iff
// the cycle status is "running", or, when no status line is printed, the
// output carries both a node id and a cycle uptime.
func ParseNodeStatus(out string) NodeStatus {
	var ns NodeStatus
	if m := nodeIDRe.FindStringSubmatch(out); m != nil {
		ns.NodeID = m[1]
	}
	if m := cycleUptimeRe.FindStringSubmatch(out); m != nil {
		ns.CycleUptime = strings.TrimSpace(m[1])
	}

	if m := cycleStatusRe.FindStringSubmatch(out); m != nil {
		ns.CycleStatus = strings.ToLower(m[1])
		ns.Healthy = ns.CycleStatus == "running"
		return ns
	}
	ns.Healthy = strings.Contains(out, "Node ID:") && strings.Contains(out, "Current Cycle Uptime:")
	return ns
}
