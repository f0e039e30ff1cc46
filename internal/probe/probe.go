// Package probe implements the independent signal checks the health
// aggregator folds into verdicts. A probe never panics or returns an
// error; every failure is reported as Result.OK == false.
package probe

import (
	"context"
	"fmt"
	"time"
)

// Probe names.
const (
	NameProcess    = "process"
	NameRPC        = "rpc"
	NamePorts      = "ports"
	NameNetwork    = "network"
	NameResources  = "resources"
	NameSystemd    = "systemd"
	NameService    = "service"
	NameVersion    = "version"
	NameNodeStatus = "node_status"
)

// ErrTimeout is the Result.Error text for a probe that missed its deadline.
const ErrTimeout = "timeout"

// Result is one probe observation. It is not mutated after it is returned.
type Result struct {
	Name       string         `json:"name"`
	OK         bool           `json:"ok"`
	Detail     map[string]any `json:"detail"`
	Error      string         `json:"error,omitempty"`
	MeasuredAt time.Time      `json:"measuredAt"`
	LatencyMs  int64          `json:"latencyMs"`
}

// Probe evaluates one signal.
type Probe func(ctx context.Context) Result

// Catalog maps probe names to probes.
type Catalog map[string]Probe

// Failed builds a negative result, e.g. for a probe that never reported.
func Failed(name, reason string) Result {
	return Result{
		Name:       name,
		OK:         false,
		Detail:     map[string]any{},
		Error:      reason,
		MeasuredAt: time.Now().UTC(),
	}
}

// Guard stamps name, timing and a non-nil Detail onto fn's result and
// turns a panic into a failed result.
func Guard(name string, fn Probe) Probe {
	return func(ctx context.Context) (res Result) {
		start := time.Now()
		defer func() {
			if r := recover(); r != nil {
				res = Failed(name, fmt.Sprintf("probe fault: %v", r))
			}
			res.Name = name
			if res.Detail == nil {
				res.Detail = map[string]any{}
			}
			res.MeasuredAt = time.Now().UTC()
			res.LatencyMs = time.Since(start).Milliseconds()
		}()
		return fn(ctx)
	}
}
