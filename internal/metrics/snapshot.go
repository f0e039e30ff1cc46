package metrics

import (
	"sort"
	"strings"

	dto "github.com/prometheus/client_model/go"
)

// Snapshot flattens the supervisor's own counters and gauges into
// "name{label=value,...}" keys. Runtime collectors are skipped.
func (r *Registry) Snapshot() map[string]float64 {
	out := make(map[string]float64)
	families, err := r.Gatherer().Gather()
	if err != nil {
		return out
	}

	for _, mf := range families {
		name := mf.GetName()
		if !strings.HasPrefix(name, namespace+"_") {
			continue
		}
		for _, m := range mf.GetMetric() {
			key := name + labelSuffix(m.GetLabel())
			switch mf.GetType() {
			case dto.MetricType_COUNTER:
				out[key] = m.GetCounter().GetValue()
			case dto.MetricType_GAUGE:
				out[key] = m.GetGauge().GetValue()
			case dto.MetricType_HISTOGRAM:
				out[key+"_count"] = float64(m.GetHistogram().GetSampleCount())
			}
		}
	}
	return out
}

func labelSuffix(labels []*dto.LabelPair) string {
	if len(labels) == 0 {
		return ""
	}
	parts := make([]string, 0, len(labels))
	for _, l := range labels {
		parts = append(parts, l.GetName()+"="+l.GetValue())
	}
	sort.Strings(parts)
	return "{" + strings.Join(parts, ",") + "}"
}
