package config

import "gopkg.in/yaml.v3"

// decodeSnapshot converts the generic merged map into the typed
// Snapshot via a YAML round trip: the map's keys already match the
// struct's `yaml` tags because every source — files, env mapping,
// runtime updates — is produced as yaml-shaped data in the first place.
func decodeSnapshot(m map[string]any) (Snapshot, error) {
	var snap Snapshot
	data, err := yaml.Marshal(m)
	if err != nil {
		return snap, err
	}
	if err := yaml.Unmarshal(data, &snap); err != nil {
		return snap, err
	}
	return snap, nil
}

// encodeSnapshot is the inverse of decodeSnapshot, used for round-trip
// export (Testable Property 7).
func encodeSnapshot(s Snapshot) (map[string]any, error) {
	data, err := yaml.Marshal(s)
	if err != nil {
		return nil, err
	}
	var m map[string]any
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return normalizeYAMLMap(m), nil
}

// normalizeYAMLMap recursively converts map[string]interface{} produced
// by gopkg.in/yaml.v3 (which may nest map[string]interface{} already in
// modern versions, but defensively handles map[any]any too) into the
// map[string]any shape the rest of this package works with.
func normalizeYAMLMap(v any) any {
	switch vv := v.(type) {
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			out[k] = normalizeYAMLMap(val)
		}
		return out
	case map[any]any:
		out := make(map[string]any, len(vv))
		for k, val := range vv {
			ks, _ := k.(string)
			out[ks] = normalizeYAMLMap(val)
		}
		return out
	case []any:
		out := make([]any, len(vv))
		for i, val := range vv {
			out[i] = normalizeYAMLMap(val)
		}
		return out
	default:
		return v
	}
}
