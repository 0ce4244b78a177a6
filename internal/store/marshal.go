package store

import (
	"encoding/json"
	"fmt"

	"github.com/roach88/layoutdb/internal/value"
)

func (p Params) record() value.Record {
	return value.Record{
		"fanout":    value.Int(p.Fanout),
		"mutations": value.Int(p.Mutations),
		"nodes":     value.Int(p.Nodes),
		"workers":   value.Int(p.Workers),
	}
}

func metricsRecord(m map[string]int64) value.Record {
	rec := make(value.Record, len(m))
	for k, v := range m {
		rec[k] = value.Int(v)
	}
	return rec
}

// runRecord is the content a run ID is derived from.
func runRecord(r Run) value.Record {
	return value.Record{
		"metrics": metricsRecord(r.Metrics),
		"name":    value.Str(r.Name),
		"params":  r.Params.record(),
		"token":   value.Str(r.Token),
	}
}

func marshalParams(p Params) (string, error) {
	data, err := value.MarshalCanonical(p.record())
	if err != nil {
		return "", fmt.Errorf("marshal params: %w", err)
	}
	return string(data), nil
}

func marshalMetrics(m map[string]int64) (string, error) {
	data, err := value.MarshalCanonical(metricsRecord(m))
	if err != nil {
		return "", fmt.Errorf("marshal metrics: %w", err)
	}
	return string(data), nil
}

func unmarshalParams(data string) (Params, error) {
	var p Params
	if err := json.Unmarshal([]byte(data), &p); err != nil {
		return Params{}, fmt.Errorf("unmarshal params: %w", err)
	}
	return p, nil
}

func unmarshalMetrics(data string) (map[string]int64, error) {
	m := map[string]int64{}
	if data == "" || data == "{}" {
		return m, nil
	}
	if err := json.Unmarshal([]byte(data), &m); err != nil {
		return nil, fmt.Errorf("unmarshal metrics: %w", err)
	}
	return m, nil
}
